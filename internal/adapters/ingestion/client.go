// Package ingestion talks to the offline ingestion service, which turns
// spreadsheets into relational tables plus schema descriptions.
package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/gateway"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// Client implements ports.Ingestor over HTTP.
type Client struct {
	baseURL      string
	gw           *gateway.Gateway
	policy       gateway.Policy
	healthPolicy gateway.Policy
	logger       hclog.Logger
}

// NewClient creates a client. policy governs the import call; imports are
// slow, so callers usually pass a long timeout and few retries.
func NewClient(baseURL string, policy gateway.Policy, gw *gateway.Gateway, logger hclog.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5001"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		gw:           gw,
		policy:       policy,
		healthPolicy: gateway.Policy{MaxRetries: 0, InitialDelay: 100 * time.Millisecond, Timeout: 3 * time.Second},
		logger:       logger,
	}
}

type importRequest struct {
	DataDir   string `json:"data_dir"`
	SchemaDir string `json:"schema_dir"`
}

// Import asks the service to ingest every file in dataDir and write the
// schemas to schemaDir. The service's JSON summary is returned as is.
func (c *Client) Import(ctx context.Context, dataDir, schemaDir string) (map[string]any, error) {
	var summary map[string]any
	ok := c.gw.Call(ctx, gateway.Request{
		Endpoint: c.baseURL + "/import",
		Payload:  importRequest{DataDir: dataDir, SchemaDir: schemaDir},
		Policy:   &c.policy,
	}, &summary, nil)
	if !ok {
		return nil, fmt.Errorf("importing %s: %w", dataDir, ports.ErrNoResult)
	}
	if summary == nil {
		summary = map[string]any{}
	}
	c.logger.Info("ingestion finished", "data_dir", dataDir, "schema_dir", schemaDir)
	return summary, nil
}

// Healthy reports whether GET /health answers 2xx within a few seconds.
// It makes a single attempt.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.gw.Call(ctx, gateway.Request{
		Method:   http.MethodGet,
		Endpoint: c.baseURL + "/health",
		Policy:   &c.healthPolicy,
	}, nil, nil)
}
