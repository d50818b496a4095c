package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	agentctx "github.com/wordflowlab/abapagents/pkg/context"
	"github.com/wordflowlab/abapagents/pkg/events"
	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/middleware"
	"github.com/wordflowlab/abapagents/pkg/parser"
	"github.com/wordflowlab/abapagents/pkg/provider"
	"github.com/wordflowlab/abapagents/pkg/tools"
	"github.com/wordflowlab/abapagents/pkg/types"
)

const (
	// DefaultMaxIterations 单个 agent 最多的模型调用次数
	DefaultMaxIterations = 25

	// NoteHeading 降级结果的唯一章节
	NoteHeading = "Note"
)

// Runner 运行单个角色的工具调用循环
type Runner struct {
	deps          Dependencies
	maxIterations int
	contextBudget int
	tracer        trace.Tracer
	logger        *logging.Logger
}

// RunnerOption Runner 选项
type RunnerOption func(*Runner)

// WithMaxIterations 设置最大迭代次数
func WithMaxIterations(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithContextBudget 设置上下文 token 预算
func WithContextBudget(tokens int) RunnerOption {
	return func(r *Runner) {
		if tokens > 0 {
			r.contextBudget = tokens
		}
	}
}

// WithTracer 使用指定的 tracer
func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// NewRunner 创建 Runner
func NewRunner(deps Dependencies, opts ...RunnerOption) (*Runner, error) {
	if deps.Provider == nil {
		return nil, errors.New("agent runner: provider is required")
	}
	if deps.Tools == nil {
		return nil, errors.New("agent runner: tool executor is required")
	}

	r := &Runner{
		deps:          deps,
		maxIterations: DefaultMaxIterations,
		contextBudget: agentctx.DefaultBudget,
		tracer:        otel.Tracer("github.com/wordflowlab/abapagents/agent"),
		logger:        deps.Logger,
	}
	if r.logger == nil {
		r.logger = logging.Nop()
	}
	r.logger = r.logger.Named("agent")
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run 运行一个角色直到模型给出最终文本或达到迭代上限
// prior 为上一个角色的结果, 可以为 nil
func (r *Runner) Run(ctx context.Context, def *Definition, requirement string, prior *types.AgentResult) (result *types.AgentResult, err error) {
	start := time.Now()
	ctx = logging.WithFields(ctx, map[string]interface{}{"role": def.Role})
	ctx, span := r.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.role", def.Role),
		attribute.String("agent.command", def.Command),
	))
	defer span.End()

	var (
		usage      types.TokenUsage
		iterations int
		degraded   bool
	)

	r.emitProgress(events.AgentStartEvent{Role: def.Role, Requirement: requirement})
	r.logger.Info(ctx, "agent started", nil)

	if r.deps.Middleware != nil {
		if err := r.deps.Middleware.OnAgentStart(ctx, def.Role); err != nil {
			return nil, fmt.Errorf("agent %s start: %w", def.Role, err)
		}
		defer func() {
			if stopErr := r.deps.Middleware.OnAgentStop(ctx, def.Role); stopErr != nil {
				r.logger.Warn(ctx, "middleware stop failed", map[string]interface{}{"error": stopErr.Error()})
			}
		}()
	}

	defer func() {
		if r.deps.Usage != nil {
			r.deps.Usage.Add(usage)
		}
		done := events.AgentDoneEvent{
			Role:         def.Role,
			Iterations:   iterations,
			Duration:     time.Since(start),
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
		}
		span.SetAttributes(
			attribute.Int("agent.iterations", iterations),
			attribute.Int64("llm.usage.input_tokens", usage.InputTokens),
			attribute.Int64("llm.usage.output_tokens", usage.OutputTokens),
		)
		if err != nil {
			done.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.Error(ctx, "agent failed", map[string]interface{}{"error": err.Error()})
		} else {
			done.Title = result.Title
			done.Degraded = degraded
			r.logger.Info(ctx, "agent finished", map[string]interface{}{
				"iterations": iterations,
				"duration":   result.Duration,
			})
		}
		r.emitProgress(done)
	}()

	conversation := []types.Message{
		types.NewSystemMessage(def.SystemPrompt),
		types.NewUserMessage(agentctx.BuildUserMessage(requirement, prior)),
	}
	schemas := tools.Schemas(tools.ForRole(def.Tools))

	for iterations < r.maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		iterations++

		msgs, omitted := agentctx.CompressReport(conversation, r.contextBudget)
		if omitted > 0 {
			r.logger.Debug(ctx, "conversation compressed", map[string]interface{}{"omitted": omitted})
		}

		resp, err := r.complete(ctx, def, msgs, schemas)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", def.Role, err)
		}
		usage.Add(resp.Usage)

		if !resp.HasToolCalls() {
			res := parser.Parse(def.Role, resp.Text)
			if res.Title == "" {
				res.Title = def.Name + " Output"
			}
			return r.finish(res, start, usage), nil
		}

		conversation = append(conversation, assistantMessage(resp))
		for _, call := range resp.ToolCalls {
			content, err := r.executeTool(ctx, def, call)
			if err != nil {
				return nil, err
			}
			conversation = append(conversation, types.NewToolResultMessage(call.ID, content))
		}
	}

	r.logger.Warn(ctx, "max iterations reached", map[string]interface{}{"max": r.maxIterations})
	degraded = true
	note := &types.AgentResult{
		Role:  def.Role,
		Title: def.Name + " Output (max iterations reached)",
		Sections: []types.Section{{
			Heading: NoteHeading,
			Content: fmt.Sprintf("The agent stopped after %d iterations without producing a final answer.", r.maxIterations),
		}},
	}
	return r.finish(note, start, usage), nil
}

func (r *Runner) finish(res *types.AgentResult, start time.Time, usage types.TokenUsage) *types.AgentResult {
	res.Duration = fmt.Sprintf("%.1fs", time.Since(start).Seconds())
	u := usage
	res.Usage = &u
	return res
}

// complete 经过中间件栈调用模型
func (r *Runner) complete(ctx context.Context, def *Definition, msgs []types.Message, schemas []provider.ToolSchema) (*provider.Response, error) {
	final := func(ctx context.Context, req *middleware.ModelRequest) (*middleware.ModelResponse, error) {
		resp, err := r.deps.Provider.Complete(ctx, req.Messages, req.Tools, req.Options)
		if err != nil {
			return nil, err
		}
		return &middleware.ModelResponse{Response: resp}, nil
	}

	req := &middleware.ModelRequest{Role: def.Role, Messages: msgs, Tools: schemas}
	var (
		out *middleware.ModelResponse
		err error
	)
	if r.deps.Middleware != nil {
		out, err = r.deps.Middleware.ExecuteModelCall(ctx, req, final)
	} else {
		out, err = final(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if out == nil || out.Response == nil {
		return nil, errors.New("provider returned no response")
	}
	return out.Response, nil
}

// executeTool 执行单个工具调用并格式化为 tool_result 内容
// 工具错误交给模型处理, 只有取消会终止循环
func (r *Runner) executeTool(ctx context.Context, def *Definition, call provider.ToolCall) (string, error) {
	start := time.Now()
	r.emitProgress(events.ToolStartEvent{Role: def.Role, ToolUseID: call.ID, Name: call.Name, Input: call.Input})

	final := func(ctx context.Context, req *middleware.ToolCallRequest) (*middleware.ToolCallResponse, error) {
		res, err := r.deps.Tools.Execute(ctx, req.ToolName, req.ToolInput)
		if err != nil {
			return nil, err
		}
		return &middleware.ToolCallResponse{Result: res}, nil
	}

	req := &middleware.ToolCallRequest{
		Role:       def.Role,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		ToolInput:  call.Input,
	}
	var (
		resp *middleware.ToolCallResponse
		err  error
	)
	if r.deps.Middleware != nil {
		resp, err = r.deps.Middleware.ExecuteToolCall(ctx, req, final)
	} else {
		resp, err = final(ctx, req)
	}

	end := events.ToolEndEvent{Role: def.Role, ToolUseID: call.ID, Name: call.Name}
	var result interface{}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		msg := fmt.Sprintf("Tool %s failed: %s", call.Name, err.Error())
		end.Error = msg
		result = map[string]interface{}{"error": msg}
		r.logger.Warn(ctx, "tool failed", map[string]interface{}{"tool": call.Name, "error": err.Error()})
	} else if resp != nil {
		result = resp.Result
	}

	content := agentctx.FormatToolResult(call.Name, result)
	end.Duration = time.Since(start)
	r.emitProgress(end)
	return content, nil
}

func assistantMessage(resp *provider.Response) types.Message {
	blocks := make([]types.ContentBlock, 0, len(resp.ToolCalls)+1)
	if resp.Text != "" {
		blocks = append(blocks, &types.TextBlock{Text: resp.Text})
	}
	for _, c := range resp.ToolCalls {
		blocks = append(blocks, &types.ToolUseBlock{ID: c.ID, Name: c.Name, Input: c.Input})
	}
	msg := types.Message{Role: types.RoleAssistant}
	msg.SetContentBlocks(blocks)
	return msg
}

func (r *Runner) emitProgress(ev events.Event) {
	if r.deps.EventBus != nil {
		r.deps.EventBus.EmitProgress(ev)
	}
}
