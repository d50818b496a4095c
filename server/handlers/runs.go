package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wordflowlab/abapagents/pkg/agent"
	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/render"
	"github.com/wordflowlab/abapagents/pkg/types"
)

// Runner 工作流入口, 由 workflow.Orchestrator 实现
type Runner interface {
	Run(ctx context.Context, command, requirement string) (*types.WorkflowResult, error)
	Registry() *agent.DefinitionRegistry
	Mock() bool
}

// CreateRunRequest 运行请求
type CreateRunRequest struct {
	Command     string `json:"command" binding:"required"`
	Requirement string `json:"requirement" binding:"required"`
	// Format 为 "markdown" 时在响应中附带渲染结果
	Format string `json:"format"`
}

// RunResponse 运行结果
type RunResponse struct {
	*types.WorkflowResult
	Mock     bool   `json:"mock"`
	Markdown string `json:"markdown,omitempty"`
}

// RunHandler 工作流运行处理器
type RunHandler struct {
	runner  Runner
	timeout time.Duration
	started func() func()
	logger  *logging.Logger
}

// RunOption 处理器选项
type RunOption func(*RunHandler)

// WithRunTimeout 单次运行的超时
func WithRunTimeout(d time.Duration) RunOption {
	return func(h *RunHandler) { h.timeout = d }
}

// WithRunGauge 运行开始时调用, 返回值在结束时调用
func WithRunGauge(started func() func()) RunOption {
	return func(h *RunHandler) {
		if started != nil {
			h.started = started
		}
	}
}

// WithRunLogger 设置日志
func WithRunLogger(l *logging.Logger) RunOption {
	return func(h *RunHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewRunHandler 创建处理器
func NewRunHandler(runner Runner, opts ...RunOption) *RunHandler {
	h := &RunHandler{
		runner:  runner,
		started: func() func() { return func() {} },
		logger:  logging.Default,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Create 同步运行一个命令
// POST /api/v1/runs
func (h *RunHandler) Create(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Command = strings.ToLower(strings.TrimSpace(req.Command))
	if strings.TrimSpace(req.Requirement) == "" {
		Error(c, http.StatusBadRequest, "invalid_request", "requirement must not be blank")
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	done := h.started()
	result, err := h.runner.Run(ctx, req.Command, req.Requirement)
	done()

	if err != nil {
		status, code := classify(err)
		h.logger.Warn(ctx, "run failed", map[string]interface{}{
			"command": req.Command,
			"status":  status,
			"code":    code,
			"error":   err.Error(),
		})
		var data interface{}
		if result != nil {
			data = h.response(result, req.Format)
		}
		ErrorWithData(c, status, code, err.Error(), data)
		return
	}

	JSON(c, http.StatusOK, h.response(result, req.Format))
}

func (h *RunHandler) response(result *types.WorkflowResult, format string) *RunResponse {
	resp := &RunResponse{WorkflowResult: result, Mock: h.runner.Mock()}
	if strings.EqualFold(format, "markdown") {
		resp.Markdown = render.Markdown(result)
	}
	return resp
}

// classify 将错误映射为 HTTP 状态码和错误码
func classify(err error) (int, string) {
	var notFound *agent.DefinitionNotFoundError
	switch {
	case errors.As(err, &notFound):
		return http.StatusBadRequest, "unknown_command"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "run_timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "run_cancelled"
	}

	switch types.KindOf(err) {
	case types.KindRateLimit:
		return http.StatusTooManyRequests, "upstream_rate_limited"
	case types.KindCircuitOpen:
		return http.StatusServiceUnavailable, "circuit_open"
	case types.KindTimeout:
		return http.StatusGatewayTimeout, "upstream_timeout"
	case types.KindAuthentication:
		return http.StatusBadGateway, "upstream_authentication"
	case types.KindTransport, types.KindRemote, types.KindLLM:
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
