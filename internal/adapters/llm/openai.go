package llm

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/adapters/gateway"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
)

// OpenAIChat implements ports.ChatService with the OpenAI SDK. Retries are
// left to the gateway so every backend shares one policy.
type OpenAIChat struct {
	client      openai.Client
	model       string
	temperature float64
	gw          *gateway.Gateway
	logger      hclog.Logger
}

// NewOpenAIChat creates an adapter. An empty baseURL targets api.openai.com.
func NewOpenAIChat(apiKey, baseURL, model string, temperature float64, gw *gateway.Gateway, logger hclog.Logger) *OpenAIChat {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &OpenAIChat{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
		gw:          gw,
		logger:      logger,
	}
}

func (c *OpenAIChat) Complete(ctx context.Context, messages []entities.Message, tools []entities.Tool) (*entities.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    convertMessages(messages),
		Temperature: openai.Float(c.temperature),
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
				Strict:      openai.Bool(t.Strict),
			},
		})
	}

	var reply entities.Message
	err := c.gw.Do(ctx, c.gw.Policy(), func(ctx context.Context) error {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("response has no choices")
		}
		msg := resp.Choices[0].Message
		reply = entities.Message{Role: entities.RoleAssistant, Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			reply.ToolCalls = append(reply.ToolCalls, entities.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	c.logger.Debug("chat completion", "model", c.model, "tool_calls", len(reply.ToolCalls))
	return &reply, nil
}

func convertMessages(messages []entities.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case entities.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case entities.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case entities.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := &openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

var _ ports.ChatService = (*OpenAIChat)(nil)
var _ ports.ChatService = (*OllamaChat)(nil)
