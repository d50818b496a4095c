package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/wordflowlab/abapagents/pkg/types"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicVersion = "2023-06-01"
	defaultAnthropicModel   = "claude-sonnet-4-5"
)

// AnthropicProvider Anthropic 模型提供商
// system 作为顶层字段, 工具以 {name, description, input_schema} 传递
type AnthropicProvider struct {
	config  *types.ModelConfig
	baseURL string
	version string
	http    *jsonClient
}

// NewAnthropicProvider 创建Anthropic提供商
func NewAnthropicProvider(config *types.ModelConfig, opts ...Option) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	cfg := *config
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAnthropicVersion
	}

	o := buildOptions(types.ProviderAnthropic, &cfg, opts)
	return &AnthropicProvider{
		config:  &cfg,
		baseURL: baseURL,
		version: version,
		http: &jsonClient{
			provider: types.ProviderAnthropic,
			model:    cfg.Model,
			client:   o.httpClient,
			executor: o.executor,
			logger:   o.logger.Named("anthropic"),
		},
	}, nil
}

// Complete 非流式补全
func (ap *AnthropicProvider) Complete(ctx context.Context, messages []types.Message, tools []ToolSchema, opts *Options) (*Response, error) {
	reqBody := ap.buildRequest(messages, tools, opts)

	apiResp, err := ap.http.post(ctx, ap.baseURL+"/v1/messages", map[string]string{
		"x-api-key":         ap.config.APIKey,
		"anthropic-version": ap.version,
	}, reqBody)
	if err != nil {
		return nil, err
	}
	return ap.parseResponse(apiResp), nil
}

func (ap *AnthropicProvider) buildRequest(messages []types.Message, tools []ToolSchema, opts *Options) map[string]interface{} {
	system, conversation := splitSystem(messages)

	req := map[string]interface{}{
		"model":      ap.config.Model,
		"max_tokens": maxTokens(ap.config, opts),
		"messages":   ap.convertMessages(conversation),
	}
	if system != "" {
		req["system"] = system
	}
	if len(tools) > 0 {
		defs := make([]map[string]interface{}, 0, len(tools))
		for _, t := range tools {
			defs = append(defs, map[string]interface{}{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.InputSchema,
			})
		}
		req["tools"] = defs
	}
	return req
}

// splitSystem 把 system 消息合并为一个字符串, 其余消息保持顺序
func splitSystem(messages []types.Message) (string, []types.Message) {
	var parts []string
	rest := make([]types.Message, 0, len(messages))
	for i := range messages {
		if messages[i].Role == types.RoleSystem {
			parts = append(parts, messages[i].GetContent())
			continue
		}
		rest = append(rest, messages[i])
	}
	return strings.Join(parts, "\n\n"), rest
}

func (ap *AnthropicProvider) convertMessages(messages []types.Message) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(messages))

	for _, msg := range messages {
		var blocks []interface{}
		if len(msg.ContentBlocks) > 0 {
			for _, block := range msg.ContentBlocks {
				switch b := block.(type) {
				case *types.TextBlock:
					blocks = append(blocks, map[string]interface{}{
						"type": "text",
						"text": b.Text,
					})
				case *types.ToolUseBlock:
					input := b.Input
					if input == nil {
						input = map[string]interface{}{}
					}
					blocks = append(blocks, map[string]interface{}{
						"type":  "tool_use",
						"id":    b.ID,
						"name":  b.Name,
						"input": input,
					})
				case *types.ToolResultBlock:
					blocks = append(blocks, map[string]interface{}{
						"type":        "tool_result",
						"tool_use_id": b.ToolUseID,
						"content":     b.Content,
					})
				}
			}
		} else {
			blocks = []interface{}{
				map[string]interface{}{"type": "text", "text": msg.Content},
			}
		}

		result = append(result, map[string]interface{}{
			"role":    string(msg.Role),
			"content": blocks,
		})
	}
	return result
}

func (ap *AnthropicProvider) parseResponse(apiResp map[string]interface{}) *Response {
	resp := &Response{}
	var text strings.Builder

	content, _ := apiResp["content"].([]interface{})
	for _, item := range content {
		block, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		switch block["type"] {
		case "text":
			if t, ok := block["text"].(string); ok {
				text.WriteString(t)
			}
		case "tool_use":
			id, _ := block["id"].(string)
			name, _ := block["name"].(string)
			input, ok := block["input"].(map[string]interface{})
			if !ok {
				input = map[string]interface{}{}
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: id, Name: name, Input: input})
		}
	}
	resp.Text = text.String()

	if usage, ok := apiResp["usage"].(map[string]interface{}); ok {
		resp.Usage = types.TokenUsage{
			InputTokens:  toInt64(usage["input_tokens"]),
			OutputTokens: toInt64(usage["output_tokens"]),
		}
	}
	return resp.normalize()
}

// Name 提供商名称
func (ap *AnthropicProvider) Name() string {
	return types.ProviderAnthropic
}

// Config 返回配置
func (ap *AnthropicProvider) Config() *types.ModelConfig {
	return ap.config
}
