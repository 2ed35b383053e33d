// Package llm provides chat completion adapters.
// Clean Architecture: adapters implementing ports.ChatService.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/gateway"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// OllamaChat implements ports.ChatService against an OpenAI-compatible
// /v1/chat/completions endpoint, which Ollama serves.
type OllamaChat struct {
	endpoint    string
	model       string
	temperature float64
	gw          *gateway.Gateway
	logger      hclog.Logger
}

// NewOllamaChat creates a chat adapter. baseURL may or may not end in /v1.
func NewOllamaChat(baseURL, model string, temperature float64, gw *gateway.Gateway, logger hclog.Logger) *OllamaChat {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "qwen2.5:7b"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &OllamaChat{
		endpoint:    completionsURL(baseURL),
		model:       model,
		temperature: temperature,
		gw:          gw,
		logger:      logger,
	}
}

func completionsURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/chat/completions"
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
	Tools       []wireTool    `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

// Arguments is a JSON string on the OpenAI wire but some servers send
// the object itself.
type wireFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type wireTool struct {
	Type     string         `json:"type"`
	Function wireToolSchema `json:"function"`
}

type wireToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Strict      bool           `json:"strict,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends the conversation and returns the assistant reply.
func (c *OllamaChat) Complete(ctx context.Context, messages []entities.Message, tools []entities.Tool) (*entities.Message, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    make([]wireMessage, 0, len(messages)),
		Temperature: c.temperature,
	}
	for _, m := range messages {
		wm, err := toWire(m)
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, wm)
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, wireTool{
			Type: "function",
			Function: wireToolSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
				Strict:      t.Strict,
			},
		})
	}

	var resp chatResponse
	ok := c.gw.Call(ctx, gateway.Request{Endpoint: c.endpoint, Payload: req}, &resp, func() error {
		if len(resp.Choices) == 0 {
			return fmt.Errorf("response has no choices")
		}
		return nil
	})
	if !ok {
		return nil, fmt.Errorf("chat completion via %s: %w", c.endpoint, ports.ErrNoResult)
	}

	reply := fromWire(resp.Choices[0].Message)
	c.logger.Debug("chat completion", "model", c.model, "tool_calls", len(reply.ToolCalls))
	return &reply, nil
}

func toWire(m entities.Message) (wireMessage, error) {
	wm := wireMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		args, err := json.Marshal(tc.Arguments)
		if err != nil {
			return wm, fmt.Errorf("encoding tool arguments: %w", err)
		}
		wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: wireFunction{Name: tc.Name, Arguments: args},
		})
	}
	return wm, nil
}

func fromWire(wm wireMessage) entities.Message {
	msg := entities.Message{Role: entities.RoleAssistant, Content: wm.Content}
	for i, tc := range wm.ToolCalls {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		msg.ToolCalls = append(msg.ToolCalls, entities.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: argumentText(tc.Function.Arguments),
		})
	}
	return msg
}

func argumentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
