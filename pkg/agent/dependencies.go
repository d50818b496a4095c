package agent

import (
	"context"

	"github.com/wordflowlab/abapagents/pkg/events"
	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/middleware"
	"github.com/wordflowlab/abapagents/pkg/provider"
	"github.com/wordflowlab/abapagents/pkg/types"
)

// ToolExecutor 执行一次工具调用, 由 tools.Dispatcher 实现
type ToolExecutor interface {
	Execute(ctx context.Context, name string, input map[string]interface{}) (interface{}, error)
}

// Dependencies Runner 依赖
type Dependencies struct {
	Provider provider.Provider
	Tools    ToolExecutor

	// Middleware 包裹模型调用与工具调用, 为 nil 时直接调用
	Middleware *middleware.Stack

	// EventBus 可选, 接收 agent 与工具的进度事件
	EventBus *events.EventBus

	// Usage 进程级累计用量, 可在多个 Runner 之间共享
	Usage *types.UsageTracker

	Logger *logging.Logger
}
