package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/resilience"
	"github.com/wordflowlab/abapagents/pkg/types"
)

// capture 记录最后一次请求
type capture struct {
	path    string
	query   string
	headers http.Header
	body    map[string]interface{}
	count   atomic.Int32
}

func newServer(t *testing.T, c *capture, status int, respBody string, extraHeaders map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.count.Add(1)
		c.path = r.URL.Path
		c.query = r.URL.RawQuery
		c.headers = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		c.body = nil
		_ = json.Unmarshal(data, &c.body)

		for k, v := range extraHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastOptions() []Option {
	policy := resilience.DefaultRetryPolicy()
	policy.BaseDelay = time.Millisecond
	policy.MaxDelay = 2 * time.Millisecond
	return []Option{
		WithLogger(logging.Nop()),
		WithExecutor(resilience.NewExecutor("test", resilience.WithLogger(logging.Nop()), resilience.WithRetryPolicy(policy))),
	}
}

func sampleTools() []ToolSchema {
	return []ToolSchema{{
		Name:        "list_objects",
		Description: "List objects in a package",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"package": map[string]interface{}{"type": "string"}},
			"required":   []interface{}{"package"},
		},
	}}
}

func TestOpenAIProvider_RequestShapeAndToolCalls(t *testing.T) {
	c := &capture{}
	srv := newServer(t, c, http.StatusOK, `{
		"choices": [{
			"finish_reason": "tool_calls",
			"message": {
				"role": "assistant",
				"content": null,
				"tool_calls": [{
					"id": "call_1",
					"type": "function",
					"function": {"name": "list_objects", "arguments": "{\"package\":\"ZTEST\"}"}
				}]
			}
		}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 5}
	}`, nil)

	p, err := NewOpenAIProvider(&types.ModelConfig{APIKey: "sk-test", Model: "gpt-4o", BaseURL: srv.URL}, fastOptions()...)
	require.NoError(t, err)

	messages := []types.Message{
		types.NewSystemMessage("You are a planner."),
		types.NewUserMessage("## Requirement\n\nAdd vendor rating"),
	}
	resp, err := p.Complete(context.Background(), messages, sampleTools(), nil)
	require.NoError(t, err)

	assert.Equal(t, "/chat/completions", c.path)
	assert.Equal(t, "Bearer sk-test", c.headers.Get("Authorization"))
	assert.EqualValues(t, 4096, c.body["max_tokens"])

	msgs := c.body["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.Equal(t, "You are a planner.", msgs[0].(map[string]interface{})["content"])

	tools := c.body["tools"].([]interface{})
	tool := tools[0].(map[string]interface{})
	assert.Equal(t, "function", tool["type"])
	fn := tool["function"].(map[string]interface{})
	assert.Equal(t, "list_objects", fn["name"])
	assert.NotNil(t, fn["parameters"])

	assert.Equal(t, StopToolUse, resp.StopReason)
	require.True(t, resp.HasToolCalls())
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, map[string]interface{}{"package": "ZTEST"}, resp.ToolCalls[0].Input)
	assert.Equal(t, types.TokenUsage{InputTokens: 12, OutputTokens: 5}, resp.Usage)
}

func TestOpenAIProvider_ConvertsToolConversation(t *testing.T) {
	p, err := NewOpenAIProvider(&types.ModelConfig{APIKey: "k"}, fastOptions()...)
	require.NoError(t, err)

	messages := []types.Message{
		types.NewSystemMessage("sys"),
		types.NewUserMessage("req"),
		{Role: types.RoleAssistant, ContentBlocks: []types.ContentBlock{
			&types.TextBlock{Text: "Looking up."},
			&types.ToolUseBlock{ID: "call_1", Name: "list_objects", Input: map[string]interface{}{"package": "ZTEST"}},
		}},
		types.NewToolResultMessage("call_1", "Objects in ZTEST: none"),
	}

	out := p.convertMessages(messages)
	require.Len(t, out, 4)
	assert.Equal(t, "Looking up.", out[2]["content"])
	calls := out[2]["tool_calls"].([]map[string]interface{})
	assert.Equal(t, `{"package":"ZTEST"}`, calls[0]["function"].(map[string]interface{})["arguments"])
	assert.Equal(t, "tool", out[3]["role"])
	assert.Equal(t, "call_1", out[3]["tool_call_id"])
}

func TestOpenAIProvider_TextOnlyAndBadArguments(t *testing.T) {
	c := &capture{}
	srv := newServer(t, c, http.StatusOK, `{
		"choices": [{"message": {"content": "# Plan", "tool_calls": [
			{"id": "x", "function": {"name": "read_abap_source", "arguments": "{not json"}}
		]}}]
	}`, nil)
	p, err := NewOpenAIProvider(&types.ModelConfig{APIKey: "k", BaseURL: srv.URL}, fastOptions()...)
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), []types.Message{types.NewUserMessage("hi")}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "# Plan", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Empty(t, resp.ToolCalls[0].Input)
	assert.Nil(t, c.body["tools"])
}

func TestAzureOpenAIProvider_DeploymentURL(t *testing.T) {
	c := &capture{}
	srv := newServer(t, c, http.StatusOK, `{"choices":[{"message":{"content":"done"}}]}`, nil)

	p, err := NewAzureOpenAIProvider(&types.ModelConfig{
		APIKey:     "az-key",
		BaseURL:    srv.URL,
		Model:      "gpt4-deploy",
		APIVersion: "2024-06-01",
	}, fastOptions()...)
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), []types.Message{types.NewUserMessage("hi")}, nil, &Options{MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "/openai/deployments/gpt4-deploy/chat/completions", c.path)
	assert.Equal(t, "api-version=2024-06-01", c.query)
	assert.Equal(t, "az-key", c.headers.Get("api-key"))
	assert.EqualValues(t, 100, c.body["max_tokens"])
	assert.Equal(t, StopEndTurn, resp.StopReason)
	assert.Equal(t, "azure", p.Name())
	assert.Equal(t, "gpt4-deploy", p.Deployment())
}

func TestProvider_RateLimitIsSurfacedWithRetryAfter(t *testing.T) {
	c := &capture{}
	srv := newServer(t, c, http.StatusTooManyRequests, `{"error":"slow down"}`, map[string]string{"Retry-After": "12"})
	p, err := NewOpenAIProvider(&types.ModelConfig{APIKey: "k", Model: "gpt-4o", BaseURL: srv.URL}, fastOptions()...)
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []types.Message{types.NewUserMessage("hi")}, nil, nil)

	var te *types.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.KindRateLimit, te.Kind)
	assert.Equal(t, 12*time.Second, te.RetryAfter)
	assert.EqualValues(t, 1, c.count.Load())
}

func TestProvider_ServerErrorCarriesContext(t *testing.T) {
	c := &capture{}
	srv := newServer(t, c, http.StatusInternalServerError, `{"error":"boom"}`, nil)
	p, err := NewOpenAIProvider(&types.ModelConfig{APIKey: "k", Model: "gpt-4o", BaseURL: srv.URL}, fastOptions()...)
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []types.Message{types.NewUserMessage("hi")}, nil, nil)

	var te *types.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.KindLLM, te.Kind)
	assert.Equal(t, "openai", te.Provider)
	assert.Equal(t, "gpt-4o", te.Model)
	assert.Equal(t, http.StatusInternalServerError, te.Status)
	assert.EqualValues(t, 1, c.count.Load())
}

func TestProvider_RetriesDroppedConnection(t *testing.T) {
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if count.Add(1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(&types.ModelConfig{APIKey: "k", BaseURL: srv.URL}, fastOptions()...)
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), []types.Message{types.NewUserMessage("hi")}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.EqualValues(t, 2, count.Load())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter("", now))
	assert.Zero(t, parseRetryAfter("soon", now))
}
