// Package nl2sql calls the NL2SQL service, which writes SQL for a question
// over named tables and runs it.
package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/gateway"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// schemaPromptEnd marks where the service's prompt stops describing
// schemas and starts instructing the model.
const schemaPromptEnd = "Based on the schemas above, please use MySQL syntax to solve the following problem"

// Client implements ports.SQLExecutor.
type Client struct {
	endpoint string
	gw       *gateway.Gateway
	policy   gateway.Policy
	logger   hclog.Logger
}

func NewClient(endpoint string, policy gateway.Policy, gw *gateway.Gateway, logger hclog.Logger) *Client {
	if endpoint == "" {
		endpoint = "http://localhost:5000/get_tablerag_response"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{endpoint: endpoint, gw: gw, policy: policy, logger: logger}
}

type request struct {
	Query         string   `json:"query"`
	TableNameList []string `json:"table_name_list"`
}

// response fields are raw so a missing key can be told apart from an empty
// one. A null value counts as missing.
type response struct {
	SQL             json.RawMessage `json:"sql_str"`
	ExecutionResult json.RawMessage `json:"sql_execution_result"`
	Prompt          json.RawMessage `json:"nl2sql_prompt"`
}

func (r *response) validate() error {
	var missing []string
	if absent(r.SQL) {
		missing = append(missing, "sql_str")
	}
	if absent(r.ExecutionResult) {
		missing = append(missing, "sql_execution_result")
	}
	if absent(r.Prompt) {
		missing = append(missing, "nl2sql_prompt")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ports.ErrIncompleteSQLResult, strings.Join(missing, ", "))
	}
	return nil
}

// Execute sends the sub-query with every alias of the candidate tables.
// Responses missing any expected field are retried like failures.
func (c *Client) Execute(ctx context.Context, tableAliases []string, subquery string) (*entities.SQLResult, error) {
	if tableAliases == nil {
		tableAliases = []string{}
	}
	var resp response
	ok := c.gw.Call(ctx, gateway.Request{
		Endpoint: c.endpoint,
		Payload:  request{Query: subquery, TableNameList: tableAliases},
		Policy:   &c.policy,
	}, &resp, resp.validate)
	if !ok {
		return nil, fmt.Errorf("nl2sql for %q: %w", subquery, ports.ErrNoResult)
	}

	result := &entities.SQLResult{
		SQL:             text(resp.SQL),
		ExecutionResult: text(resp.ExecutionResult),
		SchemaPrompt:    schemaSection(text(resp.Prompt)),
	}
	c.logger.Debug("nl2sql result", "tables", len(tableAliases), "sql", result.SQL)
	return result, nil
}

func absent(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// text returns a JSON string's value, or the compact JSON of anything else
// (query rows arrive as arrays).
func text(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var buf bytes.Buffer
	if json.Compact(&buf, raw) == nil {
		return buf.String()
	}
	return string(raw)
}

func schemaSection(prompt string) string {
	if i := strings.Index(prompt, schemaPromptEnd); i >= 0 {
		prompt = prompt[:i]
	}
	return strings.TrimSpace(prompt)
}
