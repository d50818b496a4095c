package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/wordflowlab/abapagents/pkg/types"
)

// OpenAICompatibleProvider OpenAI Chat Completions 格式的通用 Provider
// system 作为第一条消息, 工具包装为 {type: function, function: {...}}
type OpenAICompatibleProvider struct {
	config       *types.ModelConfig
	providerName string
	endpoint     string
	headers      map[string]string
	http         *jsonClient
}

func newOpenAICompatible(cfg *types.ModelConfig, providerName, endpoint string, headers map[string]string, opts []Option) *OpenAICompatibleProvider {
	o := buildOptions(providerName, cfg, opts)
	return &OpenAICompatibleProvider{
		config:       cfg,
		providerName: providerName,
		endpoint:     endpoint,
		headers:      headers,
		http: &jsonClient{
			provider: providerName,
			model:    cfg.Model,
			client:   o.httpClient,
			executor: o.executor,
			logger:   o.logger.Named(providerName),
		},
	}
}

// Complete 非流式补全
func (p *OpenAICompatibleProvider) Complete(ctx context.Context, messages []types.Message, tools []ToolSchema, opts *Options) (*Response, error) {
	apiResp, err := p.http.post(ctx, p.endpoint, p.headers, p.buildRequest(messages, tools, opts))
	if err != nil {
		return nil, err
	}
	return p.parseResponse(ctx, apiResp), nil
}

func (p *OpenAICompatibleProvider) buildRequest(messages []types.Message, tools []ToolSchema, opts *Options) map[string]interface{} {
	req := map[string]interface{}{
		"model":      p.config.Model,
		"messages":   p.convertMessages(messages),
		"max_tokens": maxTokens(p.config, opts),
	}
	if len(tools) > 0 {
		req["tools"] = p.convertTools(tools)
	}
	return req
}

// convertMessages system 保持在原位置, 工具调用/结果转换为 tool_calls 与 role=tool 消息
func (p *OpenAICompatibleProvider) convertMessages(messages []types.Message) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(messages))

	for _, msg := range messages {
		if len(msg.ContentBlocks) == 0 {
			result = append(result, map[string]interface{}{
				"role":    string(msg.Role),
				"content": msg.Content,
			})
			continue
		}

		var text strings.Builder
		var toolCalls []map[string]interface{}
		var toolResults []map[string]interface{}

		for _, block := range msg.ContentBlocks {
			switch b := block.(type) {
			case *types.TextBlock:
				text.WriteString(b.Text)
			case *types.ToolUseBlock:
				args, _ := json.Marshal(b.Input)
				if b.Input == nil {
					args = []byte("{}")
				}
				toolCalls = append(toolCalls, map[string]interface{}{
					"id":   b.ID,
					"type": "function",
					"function": map[string]interface{}{
						"name":      b.Name,
						"arguments": string(args),
					},
				})
			case *types.ToolResultBlock:
				toolResults = append(toolResults, map[string]interface{}{
					"role":         "tool",
					"tool_call_id": b.ToolUseID,
					"content":      b.Content,
				})
			}
		}

		if text.Len() > 0 || len(toolCalls) > 0 {
			m := map[string]interface{}{"role": string(msg.Role)}
			if text.Len() > 0 {
				m["content"] = text.String()
			} else {
				m["content"] = nil
			}
			if len(toolCalls) > 0 {
				m["tool_calls"] = toolCalls
			}
			result = append(result, m)
		}
		result = append(result, toolResults...)
	}
	return result
}

func (p *OpenAICompatibleProvider) convertTools(tools []ToolSchema) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		result = append(result, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.InputSchema,
			},
		})
	}
	return result
}

func (p *OpenAICompatibleProvider) parseResponse(ctx context.Context, apiResp map[string]interface{}) *Response {
	resp := &Response{}

	choices, _ := apiResp["choices"].([]interface{})
	if len(choices) > 0 {
		choice, _ := choices[0].(map[string]interface{})
		message, _ := choice["message"].(map[string]interface{})

		if content, ok := message["content"].(string); ok {
			resp.Text = content
		}

		calls, _ := message["tool_calls"].([]interface{})
		for _, raw := range calls {
			call, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			id, _ := call["id"].(string)
			fn, _ := call["function"].(map[string]interface{})
			name, _ := fn["name"].(string)

			input := map[string]interface{}{}
			if args, ok := fn["arguments"].(string); ok && args != "" {
				if err := json.Unmarshal([]byte(args), &input); err != nil {
					p.http.logger.Warn(ctx, "tool call arguments are not valid JSON", map[string]interface{}{
						"tool":  name,
						"error": err.Error(),
					})
					input = map[string]interface{}{}
				}
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: id, Name: name, Input: input})
		}
	}

	if usage, ok := apiResp["usage"].(map[string]interface{}); ok {
		resp.Usage = types.TokenUsage{
			InputTokens:  toInt64(usage["prompt_tokens"]),
			OutputTokens: toInt64(usage["completion_tokens"]),
		}
	}
	return resp.normalize()
}

// Name 提供商名称
func (p *OpenAICompatibleProvider) Name() string {
	return p.providerName
}

// Config 返回配置
func (p *OpenAICompatibleProvider) Config() *types.ModelConfig {
	return p.config
}
