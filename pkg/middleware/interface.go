package middleware

import (
	"context"

	"github.com/wordflowlab/abapagents/pkg/provider"
	"github.com/wordflowlab/abapagents/pkg/types"
)

// ModelRequest 模型请求
type ModelRequest struct {
	Role     string
	Messages []types.Message
	Tools    []provider.ToolSchema
	Options  *provider.Options
}

// ModelResponse 模型响应
type ModelResponse struct {
	Response *provider.Response
}

// ToolCallRequest 工具调用请求
type ToolCallRequest struct {
	Role       string
	ToolCallID string
	ToolName   string
	ToolInput  map[string]interface{}
}

// ToolCallResponse 工具调用响应
// Result 是交还给模型之前的结构化结果, 由调用方格式化
type ToolCallResponse struct {
	Result interface{}
}

// ModelCallHandler 模型调用处理器
type ModelCallHandler func(ctx context.Context, req *ModelRequest) (*ModelResponse, error)

// ToolCallHandler 工具调用处理器
type ToolCallHandler func(ctx context.Context, req *ToolCallRequest) (*ToolCallResponse, error)

// Middleware 中间件接口
// 中间件采用洋葱模型,支持请求和响应的拦截处理
type Middleware interface {
	// Name 返回中间件名称
	Name() string

	// Priority 返回优先级 (数值越小越靠外层, 越早执行)
	// 0-100: 观测类中间件
	// 100-500: 策略类中间件
	Priority() int

	// WrapModelCall 包装模型调用
	WrapModelCall(ctx context.Context, req *ModelRequest, handler ModelCallHandler) (*ModelResponse, error)

	// WrapToolCall 包装工具调用
	// 返回非 nil 的 ToolCallResponse 而不调用 handler 即可短路本次工具执行
	WrapToolCall(ctx context.Context, req *ToolCallRequest, handler ToolCallHandler) (*ToolCallResponse, error)

	// OnAgentStart Agent 启动时回调
	OnAgentStart(ctx context.Context, role string) error

	// OnAgentStop Agent 停止时回调
	OnAgentStop(ctx context.Context, role string) error
}

// BaseMiddleware 基础中间件实现
// 提供默认的空实现,子类只需覆盖需要的方法
type BaseMiddleware struct {
	name     string
	priority int
}

// NewBaseMiddleware 创建基础中间件
func NewBaseMiddleware(name string, priority int) *BaseMiddleware {
	return &BaseMiddleware{
		name:     name,
		priority: priority,
	}
}

func (m *BaseMiddleware) Name() string {
	return m.name
}

func (m *BaseMiddleware) Priority() int {
	return m.priority
}

func (m *BaseMiddleware) WrapModelCall(ctx context.Context, req *ModelRequest, handler ModelCallHandler) (*ModelResponse, error) {
	return handler(ctx, req)
}

func (m *BaseMiddleware) WrapToolCall(ctx context.Context, req *ToolCallRequest, handler ToolCallHandler) (*ToolCallResponse, error) {
	return handler(ctx, req)
}

func (m *BaseMiddleware) OnAgentStart(ctx context.Context, role string) error {
	return nil
}

func (m *BaseMiddleware) OnAgentStop(ctx context.Context, role string) error {
	return nil
}
