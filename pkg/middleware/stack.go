package middleware

import (
	"context"
	"sort"
)

// Stack 中间件栈
// 管理多个中间件,构建洋葱模型的调用链
type Stack struct {
	middlewares []Middleware
}

// NewStack 创建中间件栈, nil 项被忽略
func NewStack(middlewares ...Middleware) *Stack {
	sorted := make([]Middleware, 0, len(middlewares))
	for _, m := range middlewares {
		if m != nil {
			sorted = append(sorted, m)
		}
	}
	// 稳定排序, 同优先级保持注册顺序
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})

	return &Stack{middlewares: sorted}
}

// ExecuteModelCall 执行模型调用(通过中间件栈)
func (s *Stack) ExecuteModelCall(ctx context.Context, req *ModelRequest, finalHandler ModelCallHandler) (*ModelResponse, error) {
	handler := finalHandler
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		m := s.middlewares[i]
		next := handler
		handler = func(ctx context.Context, req *ModelRequest) (*ModelResponse, error) {
			return m.WrapModelCall(ctx, req, next)
		}
	}
	return handler(ctx, req)
}

// ExecuteToolCall 执行工具调用(通过中间件栈)
func (s *Stack) ExecuteToolCall(ctx context.Context, req *ToolCallRequest, finalHandler ToolCallHandler) (*ToolCallResponse, error) {
	handler := finalHandler
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		m := s.middlewares[i]
		next := handler
		handler = func(ctx context.Context, req *ToolCallRequest) (*ToolCallResponse, error) {
			return m.WrapToolCall(ctx, req, next)
		}
	}
	return handler(ctx, req)
}

// OnAgentStart 通知所有中间件 Agent 启动
func (s *Stack) OnAgentStart(ctx context.Context, role string) error {
	for _, m := range s.middlewares {
		if err := m.OnAgentStart(ctx, role); err != nil {
			return err
		}
	}
	return nil
}

// OnAgentStop 逆序通知所有中间件 Agent 停止
func (s *Stack) OnAgentStop(ctx context.Context, role string) error {
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		if err := s.middlewares[i].OnAgentStop(ctx, role); err != nil {
			return err
		}
	}
	return nil
}

// Middlewares 返回排序后的中间件列表
func (s *Stack) Middlewares() []Middleware {
	return s.middlewares
}
