package telemetry

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wordflowlab/abapagents/pkg/events"
	"github.com/wordflowlab/abapagents/pkg/types"
)

// DefaultNamespace 指标命名空间
const DefaultNamespace = "abapagents"

// 熔断器状态对应的 gauge 取值
var breakerStateValue = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// Metrics Prometheus 指标
// 实现 middleware.Recorder, 并通过 Subscribe 从事件总线收集 agent、熔断器与安全闸门指标
type Metrics struct {
	registry *prometheus.Registry

	// 模型调用
	llmCalls    *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	// 工具调用
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec

	// agent 与工作流
	agentRuns        *prometheus.CounterVec
	agentDuration    *prometheus.HistogramVec
	workflowsRunning prometheus.Gauge

	// 基础设施
	safetyBlocked      *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec

	// HTTP
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewMetrics 创建指标并注册到独立的 registry
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_calls_total",
		Help:      "Total number of LLM completion calls",
	}, []string{"role", "outcome"})
	m.llmDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_call_duration_seconds",
		Help:      "LLM completion latency in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"role"})
	m.llmTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_tokens_total",
		Help:      "Tokens consumed by LLM calls",
	}, []string{"role", "direction"})

	m.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_calls_total",
		Help:      "Total number of tool calls",
	}, []string{"role", "tool", "outcome"})
	m.toolDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tool_call_duration_seconds",
		Help:      "Tool call latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tool"})

	m.agentRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_runs_total",
		Help:      "Total number of agent runs",
	}, []string{"role", "outcome"})
	m.agentDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "agent_run_duration_seconds",
		Help:      "Agent run duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"role"})
	m.workflowsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workflows_running",
		Help:      "Number of running workflows",
	})

	m.safetyBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "safety_blocked_total",
		Help:      "Tool calls rejected by the safety gate",
	}, []string{"tool"})
	m.breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "breaker_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})
	m.breakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state transitions",
	}, []string{"name", "to"})

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.registry.MustRegister(
		m.llmCalls, m.llmDuration, m.llmTokens,
		m.toolCalls, m.toolDuration,
		m.agentRuns, m.agentDuration, m.workflowsRunning,
		m.safetyBlocked, m.breakerState, m.breakerTransitions,
		m.requestsTotal, m.requestDuration,
	)
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Registry 返回内部 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveModelCall 记录一次模型调用
func (m *Metrics) ObserveModelCall(role string, d time.Duration, usage types.TokenUsage, err error) {
	m.llmCalls.WithLabelValues(role, outcome(err)).Inc()
	m.llmDuration.WithLabelValues(role).Observe(d.Seconds())
	if usage.InputTokens > 0 {
		m.llmTokens.WithLabelValues(role, "input").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		m.llmTokens.WithLabelValues(role, "output").Add(float64(usage.OutputTokens))
	}
}

// ObserveToolCall 记录一次工具调用
func (m *Metrics) ObserveToolCall(role, tool string, d time.Duration, err error) {
	m.toolCalls.WithLabelValues(role, tool, outcome(err)).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// WorkflowStarted 运行中的工作流加一, 返回的函数在结束时调用
func (m *Metrics) WorkflowStarted() func() {
	m.workflowsRunning.Inc()
	return m.workflowsRunning.Dec
}

// Subscribe 订阅 agent 结束、安全闸门与熔断器事件
func (m *Metrics) Subscribe(bus *events.EventBus) {
	bus.On(events.AgentDoneEvent{}.EventType(), func(env events.Envelope) {
		ev, ok := env.Event.(events.AgentDoneEvent)
		if !ok {
			return
		}
		result := "ok"
		switch {
		case ev.Error != "":
			result = "error"
		case ev.Degraded:
			result = "degraded"
		}
		m.agentRuns.WithLabelValues(ev.Role, result).Inc()
		m.agentDuration.WithLabelValues(ev.Role).Observe(ev.Duration.Seconds())
	})
	bus.On(events.SafetyBlockedEvent{}.EventType(), func(env events.Envelope) {
		if ev, ok := env.Event.(events.SafetyBlockedEvent); ok {
			m.safetyBlocked.WithLabelValues(ev.Tool).Inc()
		}
	})
	bus.On(events.BreakerStateChangedEvent{}.EventType(), func(env events.Envelope) {
		ev, ok := env.Event.(events.BreakerStateChangedEvent)
		if !ok {
			return
		}
		if v, known := breakerStateValue[ev.To]; known {
			m.breakerState.WithLabelValues(ev.Name).Set(v)
		}
		m.breakerTransitions.WithLabelValues(ev.Name, ev.To).Inc()
	})
}

// Middleware gin 请求指标中间件
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		m.requestsTotal.WithLabelValues(c.Request.Method, path, statusClass(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler 指标暴露端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// outcome 成功为 ok, 失败时取错误类别
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := types.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

// statusClass 返回 HTTP 状态码类别
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
