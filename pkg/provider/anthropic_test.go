package provider

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wordflowlab/abapagents/pkg/types"
)

func TestAnthropicProvider_RequestShape(t *testing.T) {
	c := &capture{}
	srv := newServer(t, c, http.StatusOK, `{
		"stop_reason": "tool_use",
		"content": [
			{"type": "text", "text": "Let me check. "},
			{"type": "tool_use", "id": "toolu_1", "name": "list_objects", "input": {"package": "ZTEST"}}
		],
		"usage": {"input_tokens": 100, "output_tokens": 20}
	}`, nil)

	p, err := NewAnthropicProvider(&types.ModelConfig{APIKey: "ak", Model: "claude-test", BaseURL: srv.URL, MaxTokens: 2048}, fastOptions()...)
	require.NoError(t, err)

	messages := []types.Message{
		types.NewSystemMessage("You are the planner."),
		types.NewUserMessage("## Requirement\n\nAdd vendor rating"),
	}
	resp, err := p.Complete(context.Background(), messages, sampleTools(), nil)
	require.NoError(t, err)

	assert.Equal(t, "/v1/messages", c.path)
	assert.Equal(t, "ak", c.headers.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", c.headers.Get("anthropic-version"))
	assert.Equal(t, "You are the planner.", c.body["system"])
	assert.EqualValues(t, 2048, c.body["max_tokens"])

	msgs := c.body["messages"].([]interface{})
	require.Len(t, msgs, 1, "system message is lifted out of the conversation")
	assert.Equal(t, "user", msgs[0].(map[string]interface{})["role"])

	tool := c.body["tools"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "list_objects", tool["name"])
	assert.Contains(t, tool, "input_schema")
	assert.NotContains(t, tool, "type")

	assert.Equal(t, StopToolUse, resp.StopReason)
	assert.Equal(t, "Let me check. ", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, ToolCall{ID: "toolu_1", Name: "list_objects", Input: map[string]interface{}{"package": "ZTEST"}}, resp.ToolCalls[0])
	assert.Equal(t, types.TokenUsage{InputTokens: 100, OutputTokens: 20}, resp.Usage)
}

func TestAnthropicProvider_ConvertsToolBlocks(t *testing.T) {
	p, err := NewAnthropicProvider(&types.ModelConfig{APIKey: "ak"}, fastOptions()...)
	require.NoError(t, err)

	out := p.convertMessages([]types.Message{
		{Role: types.RoleAssistant, ContentBlocks: []types.ContentBlock{
			&types.ToolUseBlock{ID: "toolu_1", Name: "read_abap_source"},
		}},
		types.NewToolResultMessage("toolu_1", "CLASS zcl_x DEFINITION."),
	})

	require.Len(t, out, 2)
	use := out[0]["content"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "tool_use", use["type"])
	assert.Equal(t, map[string]interface{}{}, use["input"])

	result := out[1]["content"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "tool_result", result["type"])
	assert.Equal(t, "toolu_1", result["tool_use_id"])
}

func TestAnthropicProvider_EndTurnWithoutToolCalls(t *testing.T) {
	c := &capture{}
	srv := newServer(t, c, http.StatusOK, `{"stop_reason":"tool_use","content":[{"type":"text","text":"# Plan"}]}`, nil)
	p, err := NewAnthropicProvider(&types.ModelConfig{APIKey: "ak", BaseURL: srv.URL}, fastOptions()...)
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), []types.Message{types.NewUserMessage("x")}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StopEndTurn, resp.StopReason)
	assert.False(t, resp.HasToolCalls())
}

func TestAnthropicProvider_AuthenticationError(t *testing.T) {
	c := &capture{}
	srv := newServer(t, c, http.StatusUnauthorized, `{"error":"invalid x-api-key"}`, nil)
	p, err := NewAnthropicProvider(&types.ModelConfig{APIKey: "bad", BaseURL: srv.URL}, fastOptions()...)
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), []types.Message{types.NewUserMessage("x")}, nil, nil)
	assert.True(t, types.IsKind(err, types.KindAuthentication))
	assert.EqualValues(t, 1, c.count.Load())
}
