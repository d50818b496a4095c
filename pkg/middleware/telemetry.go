package middleware

import (
	"context"
	"time"

	"github.com/wordflowlab/abapagents/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TelemetryPriority 观测中间件位于最外层
const TelemetryPriority = 10

// Recorder 指标记录接口, 由 telemetry.Metrics 实现
type Recorder interface {
	ObserveModelCall(role string, d time.Duration, usage types.TokenUsage, err error)
	ObserveToolCall(role, tool string, d time.Duration, err error)
}

// TelemetryMiddleware 为模型调用与工具调用创建 span 并记录指标
type TelemetryMiddleware struct {
	*BaseMiddleware
	tracer   trace.Tracer
	recorder Recorder
}

// NewTelemetryMiddleware 创建观测中间件, tracer 为 nil 时使用全局 TracerProvider
func NewTelemetryMiddleware(tracer trace.Tracer, recorder Recorder) *TelemetryMiddleware {
	if tracer == nil {
		tracer = otel.Tracer("github.com/wordflowlab/abapagents")
	}
	return &TelemetryMiddleware{
		BaseMiddleware: NewBaseMiddleware("telemetry", TelemetryPriority),
		tracer:         tracer,
		recorder:       recorder,
	}
}

func (m *TelemetryMiddleware) WrapModelCall(ctx context.Context, req *ModelRequest, handler ModelCallHandler) (*ModelResponse, error) {
	ctx, span := m.tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("agent.role", req.Role),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Int("llm.tools", len(req.Tools)),
	))
	defer span.End()

	start := time.Now()
	resp, err := handler(ctx, req)

	var usage types.TokenUsage
	if resp != nil && resp.Response != nil {
		usage = resp.Response.Usage
		span.SetAttributes(
			attribute.String("llm.stop_reason", string(resp.Response.StopReason)),
			attribute.Int("llm.tool_calls", len(resp.Response.ToolCalls)),
			attribute.Int64("llm.usage.input_tokens", usage.InputTokens),
			attribute.Int64("llm.usage.output_tokens", usage.OutputTokens),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if m.recorder != nil {
		m.recorder.ObserveModelCall(req.Role, time.Since(start), usage, err)
	}
	return resp, err
}

func (m *TelemetryMiddleware) WrapToolCall(ctx context.Context, req *ToolCallRequest, handler ToolCallHandler) (*ToolCallResponse, error) {
	ctx, span := m.tracer.Start(ctx, "tool."+req.ToolName, trace.WithAttributes(
		attribute.String("agent.role", req.Role),
		attribute.String("tool.name", req.ToolName),
		attribute.String("tool.use_id", req.ToolCallID),
	))
	defer span.End()

	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if m.recorder != nil {
		m.recorder.ObserveToolCall(req.Role, req.ToolName, time.Since(start), err)
	}
	return resp, err
}
