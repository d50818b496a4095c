package middleware

import (
	"context"
	"strings"

	"github.com/wordflowlab/abapagents/pkg/events"
	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/safety"
	"github.com/wordflowlab/abapagents/pkg/tools"
)

// SafetyGatePriority 安全闸门位于观测中间件之内, 被拦截的调用同样会被记录
const SafetyGatePriority = 200

// BlockedPrefix 拦截结果的前缀
const BlockedPrefix = "Safety gate blocked: "

// SafetyGateMiddleware 在写入和激活之前调用策略评估器
//
//   - 评估器拒绝: 返回 {"error": "Safety gate blocked: ..."}, 不执行工具
//   - 评估器出错: 记录日志后继续执行
//   - 未配置评估器: 直接执行
type SafetyGateMiddleware struct {
	*BaseMiddleware
	evaluator        safety.Evaluator
	defaultTransport string
	bus              *events.EventBus
	logger           *logging.Logger
}

// SafetyGateConfig 配置
type SafetyGateConfig struct {
	Evaluator safety.Evaluator
	// DefaultTransport 远端客户端在调用未指定传输请求时使用的传输请求
	DefaultTransport string
	EventBus         *events.EventBus
	Logger           *logging.Logger
}

// NewSafetyGateMiddleware 创建安全闸门
func NewSafetyGateMiddleware(cfg *SafetyGateConfig) *SafetyGateMiddleware {
	if cfg == nil {
		cfg = &SafetyGateConfig{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default
	}
	return &SafetyGateMiddleware{
		BaseMiddleware:   NewBaseMiddleware("safety_gate", SafetyGatePriority),
		evaluator:        cfg.Evaluator,
		defaultTransport: cfg.DefaultTransport,
		bus:              cfg.EventBus,
		logger:           logger.Named("safety"),
	}
}

// WrapToolCall 拦截可变更工具
func (m *SafetyGateMiddleware) WrapToolCall(ctx context.Context, req *ToolCallRequest, handler ToolCallHandler) (*ToolCallResponse, error) {
	if m.evaluator == nil || !tools.IsMutating(req.ToolName) {
		return handler(ctx, req)
	}

	artifact := m.artifact(ctx, req)
	verdict, err := m.evaluator.Evaluate(ctx, artifact)
	if err != nil {
		m.logger.Warn(ctx, "safety evaluation failed, continuing", map[string]interface{}{
			"tool":     req.ToolName,
			"artifact": artifact.Name,
			"error":    err.Error(),
		})
		return handler(ctx, req)
	}
	if verdict == nil || verdict.Approved {
		return handler(ctx, req)
	}

	messages := verdict.Messages()
	m.logger.Warn(ctx, "tool call blocked", map[string]interface{}{
		"tool":     req.ToolName,
		"artifact": artifact.Name,
		"role":     req.Role,
		"failures": messages,
	})
	if m.bus != nil {
		m.bus.EmitMonitor(events.SafetyBlockedEvent{
			Tool:     req.ToolName,
			Artifact: artifact.Name,
			Failures: messages,
		})
	}
	return &ToolCallResponse{
		Result: map[string]interface{}{
			"error": BlockedPrefix + strings.Join(messages, "; "),
		},
	}, nil
}

// artifact 构建待检查工件, 传输请求按远端客户端的顺序补全: 输入, ctx, 默认值
func (m *SafetyGateMiddleware) artifact(ctx context.Context, req *ToolCallRequest) safety.Artifact {
	a := safety.ArtifactFromInput(req.ToolInput)
	a.Action = safety.ActionWrite
	if req.ToolName == tools.ActivateObject {
		a.Action = safety.ActionActivate
	}
	if a.Transport == "" {
		a.Transport = tools.TransportFromContext(ctx)
	}
	if a.Transport == "" {
		a.Transport = m.defaultTransport
	}
	return a
}
