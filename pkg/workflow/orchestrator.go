// Package workflow 按命令运行一个或全部五个角色。
//
// "workflow" 命令依次运行 Planner、Designer、Implementer、Tester、Reviewer,
// 每个角色收到上一个角色的结果作为上下文。其他命令只运行对应的单个角色。
package workflow

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wordflowlab/abapagents/pkg/agent"
	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/types"
)

// AgentRunner 运行单个角色, 由 agent.Runner 与 MockRunner 实现
type AgentRunner interface {
	Run(ctx context.Context, def *agent.Definition, requirement string, prior *types.AgentResult) (*types.AgentResult, error)
}

// Orchestrator 工作流编排器
type Orchestrator struct {
	runner   AgentRunner
	registry *agent.DefinitionRegistry
	mock     bool
	tracer   trace.Tracer
	logger   *logging.Logger
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithRegistry 使用自定义角色注册表
func WithRegistry(r *agent.DefinitionRegistry) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithLogger 设置日志
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer 设置 tracer
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// New 创建编排器
func New(runner AgentRunner, opts ...Option) (*Orchestrator, error) {
	if runner == nil {
		return nil, errors.New("workflow: agent runner is required")
	}
	_, mock := runner.(*MockRunner)
	o := &Orchestrator{
		runner:   runner,
		registry: agent.Definitions(),
		mock:     mock,
		tracer:   otel.Tracer("github.com/wordflowlab/abapagents/workflow"),
		logger:   logging.Default,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("workflow")
	return o, nil
}

// Mock 是否运行在离线模式
func (o *Orchestrator) Mock() bool {
	return o.mock
}

// Registry 返回角色注册表
func (o *Orchestrator) Registry() *agent.DefinitionRegistry {
	return o.registry
}

// Plan 解析命令, 返回要运行的角色序列
func (o *Orchestrator) Plan(command string) ([]*agent.Definition, error) {
	if command == agent.CommandWorkflow {
		return o.registry.List(), nil
	}
	def, err := o.registry.ByCommand(command)
	if err != nil {
		return nil, err
	}
	return []*agent.Definition{def}, nil
}

// Run 运行命令
// 出错或取消时返回已完成的部分结果和错误
func (o *Orchestrator) Run(ctx context.Context, command, requirement string) (*types.WorkflowResult, error) {
	defs, err := o.Plan(command)
	if err != nil {
		return nil, err
	}

	result := &types.WorkflowResult{RunID: uuid.NewString(), Command: command, Results: []*types.AgentResult{}}
	ctx = logging.WithFields(ctx, map[string]interface{}{"run_id": result.RunID})
	ctx, span := o.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.run_id", result.RunID),
		attribute.String("workflow.command", command),
		attribute.Bool("workflow.mock", o.mock),
	))
	defer span.End()

	o.logger.Info(ctx, "workflow started", map[string]interface{}{
		"command": command,
		"agents":  len(defs),
		"mock":    o.mock,
	})

	for res, err := range o.stream(ctx, defs, requirement) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.logger.Error(ctx, "workflow aborted", map[string]interface{}{
				"completed": len(result.Results),
				"error":     err.Error(),
			})
			return result, err
		}
		result.Results = append(result.Results, res)
		if res.Usage != nil {
			result.Usage.Add(*res.Usage)
		}
	}

	span.SetAttributes(
		attribute.Int64("llm.usage.input_tokens", result.Usage.InputTokens),
		attribute.Int64("llm.usage.output_tokens", result.Usage.OutputTokens),
	)
	o.logger.Info(ctx, "workflow finished", map[string]interface{}{
		"input_tokens":  result.Usage.InputTokens,
		"output_tokens": result.Usage.OutputTokens,
	})
	return result, nil
}

// Stream 按顺序逐个产出角色结果, 遇到错误后停止
func (o *Orchestrator) Stream(ctx context.Context, command, requirement string) iter.Seq2[*types.AgentResult, error] {
	defs, err := o.Plan(command)
	if err != nil {
		return func(yield func(*types.AgentResult, error) bool) {
			yield(nil, err)
		}
	}
	return o.stream(ctx, defs, requirement)
}

func (o *Orchestrator) stream(ctx context.Context, defs []*agent.Definition, requirement string) iter.Seq2[*types.AgentResult, error] {
	return func(yield func(*types.AgentResult, error) bool) {
		var prior *types.AgentResult
		for i, def := range defs {
			// 取消后跳过剩余角色
			if err := ctx.Err(); err != nil {
				yield(nil, fmt.Errorf("workflow cancelled before %s: %w", def.Role, err))
				return
			}
			res, err := o.runner.Run(ctx, def, requirement, prior)
			if err != nil {
				yield(nil, fmt.Errorf("agent %d/%d (%s): %w", i+1, len(defs), def.Role, err))
				return
			}
			if !yield(res, nil) {
				return
			}
			prior = res
		}
	}
}
