package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wordflowlab/abapagents/pkg/events"
	"github.com/wordflowlab/abapagents/pkg/types"
)

func TestMetrics_ModelAndToolCalls(t *testing.T) {
	m := NewMetrics("")

	m.ObserveModelCall("planner", 2*time.Second, types.TokenUsage{InputTokens: 120, OutputTokens: 30}, nil)
	m.ObserveModelCall("planner", time.Second, types.TokenUsage{}, types.NewRateLimitError("anthropic", "m", 0))
	m.ObserveToolCall("planner", "list_objects", 10*time.Millisecond, nil)
	m.ObserveToolCall("planner", "read_abap_source", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("planner", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("planner", "rate_limit")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.llmTokens.WithLabelValues("planner", "input")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.llmTokens.WithLabelValues("planner", "output")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("planner", "list_objects", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("planner", "read_abap_source", "error")))
}

func TestMetrics_SubscribeToBus(t *testing.T) {
	m := NewMetrics("")
	bus := events.NewEventBus()
	m.Subscribe(bus)

	bus.EmitProgress(events.AgentDoneEvent{Role: "planner", Duration: 3 * time.Second})
	bus.EmitProgress(events.AgentDoneEvent{Role: "tester", Degraded: true})
	bus.EmitProgress(events.AgentDoneEvent{Role: "tester", Error: "rate_limit"})
	bus.EmitMonitor(events.SafetyBlockedEvent{Tool: "write_abap_source"})
	bus.EmitMonitor(events.BreakerStateChangedEvent{Name: "adt", From: "closed", To: "open"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.agentRuns.WithLabelValues("planner", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.agentRuns.WithLabelValues("tester", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.agentRuns.WithLabelValues("tester", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.safetyBlocked.WithLabelValues("write_abap_source")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.breakerState.WithLabelValues("adt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerTransitions.WithLabelValues("adt", "open")))

	bus.EmitMonitor(events.BreakerStateChangedEvent{Name: "adt", From: "open", To: "half-open"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("adt")))
}

func TestMetrics_WorkflowGauge(t *testing.T) {
	m := NewMetrics("")
	done := m.WorkflowStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.workflowsRunning))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.workflowsRunning))
}

func TestMetrics_HTTPMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics("")
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/health", "2xx")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "abapagents_http_requests_total"))
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{200: "2xx", 204: "2xx", 302: "3xx", 404: "4xx", 503: "5xx", 100: "unknown"}
	for status, want := range cases {
		assert.Equal(t, want, statusClass(status), status)
	}
}

func TestTracingManager_Disabled(t *testing.T) {
	tm, err := NewTracingManager(TracingConfig{})
	require.NoError(t, err)
	assert.False(t, tm.Enabled())
	assert.NotNil(t, tm.Tracer())
	assert.NoError(t, tm.Shutdown(context.Background()))
	assert.Empty(t, TraceID(context.Background()))
}

func TestTracingManager_RecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tm, err := newTracingManager(TracingConfig{ServiceName: "test"}, sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	defer tm.Shutdown(context.Background())
	assert.True(t, tm.Enabled())

	ctx, span := tm.Tracer().Start(context.Background(), "workflow.run")
	assert.NotEmpty(t, TraceID(ctx))
	span.End()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(tm.Middleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "workflow.run")
	require.Len(t, names, 2)
	assert.Contains(t, names[1], "/health")
}
