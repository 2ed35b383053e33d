package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
)

func TestOpenAIChat_ToolCallRoundTrip(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":null,
			"tool_calls":[{"id":"call_1","type":"function","function":{"name":"solve_subquery","arguments":"{\"subquery\":\"q1\"}"}}]}}]}`))
	}))
	defer server.Close()

	chat := NewOpenAIChat("sk-test", server.URL+"/v1/", "gpt-4o-mini", 0.1, testGateway(0), nil)
	reply, err := chat.Complete(context.Background(), []entities.Message{
		entities.SystemMessage("sys"),
		entities.UserMessage("question"),
	}, []entities.Tool{subqueryTool})
	require.NoError(t, err)

	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "call_1", reply.ToolCalls[0].ID)
	assert.Equal(t, "solve_subquery", reply.ToolCalls[0].Name)
	assert.Equal(t, `{"subquery":"q1"}`, reply.ToolCalls[0].Arguments)

	assert.Equal(t, "gpt-4o-mini", raw["model"])
	tools := raw["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "solve_subquery", fn["name"])
	assert.Equal(t, true, fn["strict"])
}

func TestOpenAIChat_ConvertsHistory(t *testing.T) {
	msgs := convertMessages([]entities.Message{
		entities.SystemMessage("s"),
		entities.UserMessage("u"),
		{Role: entities.RoleAssistant, ToolCalls: []entities.ToolCall{{ID: "c1", Name: "solve_subquery", Arguments: "{}"}}},
		entities.ToolMessage("c1", "Subquery Answer: x"),
		entities.AssistantMessage("done"),
	})
	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Equal(t, "c1", msgs[2].OfAssistant.ToolCalls[0].ID)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
	assert.NotNil(t, msgs[4].OfAssistant)
}

func TestOpenAIChat_FailureIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	chat := NewOpenAIChat("k", server.URL+"/v1/", "m", 0, testGateway(0), nil)
	_, err := chat.Complete(context.Background(), []entities.Message{entities.UserMessage("q")}, nil)
	assert.Error(t, err)
}
