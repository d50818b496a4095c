package provider

import (
	"context"

	"github.com/wordflowlab/abapagents/pkg/types"
)

// StopReason 归一化后的停止原因
type StopReason string

const (
	StopToolUse StopReason = "tool_use"
	StopEndTurn StopReason = "end_turn"
)

// ToolSchema 工具Schema
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolCall 模型产生的一次工具调用
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// Options 单次补全选项
type Options struct {
	// MaxTokens 覆盖配置中的最大输出 token 数
	MaxTokens int
}

// Response 归一化的补全响应
// StopReason 为 tool_use 当且仅当 ToolCalls 非空
type Response struct {
	StopReason StopReason       `json:"stop_reason"`
	Text       string           `json:"text,omitempty"`
	ToolCalls  []ToolCall       `json:"tool_calls,omitempty"`
	Usage      types.TokenUsage `json:"usage"`
}

// HasToolCalls 是否包含工具调用
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// normalize 根据工具调用修正停止原因
func (r *Response) normalize() *Response {
	if len(r.ToolCalls) > 0 {
		r.StopReason = StopToolUse
	} else {
		r.StopReason = StopEndTurn
	}
	return r
}

// Provider 模型提供商接口
type Provider interface {
	// Complete 非流式对话(阻塞式,返回归一化响应)
	Complete(ctx context.Context, messages []types.Message, tools []ToolSchema, opts *Options) (*Response, error)

	// Name 提供商名称
	Name() string

	// Config 返回配置
	Config() *types.ModelConfig
}
