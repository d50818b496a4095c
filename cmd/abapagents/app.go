package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wordflowlab/abapagents/pkg/adt"
	"github.com/wordflowlab/abapagents/pkg/agent"
	"github.com/wordflowlab/abapagents/pkg/appconfig"
	"github.com/wordflowlab/abapagents/pkg/auth"
	"github.com/wordflowlab/abapagents/pkg/events"
	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/middleware"
	"github.com/wordflowlab/abapagents/pkg/provider"
	"github.com/wordflowlab/abapagents/pkg/resilience"
	"github.com/wordflowlab/abapagents/pkg/safety"
	"github.com/wordflowlab/abapagents/pkg/telemetry"
	"github.com/wordflowlab/abapagents/pkg/tools"
	"github.com/wordflowlab/abapagents/pkg/types"
	"github.com/wordflowlab/abapagents/pkg/workflow"
)

// app 一次进程运行所需的全部组件
type app struct {
	cfg      *appconfig.Config
	logger   *logging.Logger
	bus      *events.EventBus
	metrics  *telemetry.Metrics
	tracing  *telemetry.TracingManager
	orch     *workflow.Orchestrator
	usage    *types.UsageTracker
	breakers []*resilience.Breaker

	closers []func(context.Context) error
}

// newApp 按配置装配日志、遥测和编排器
// 未配置 AI key 时使用离线夹具
func newApp(ctx context.Context, cfg *appconfig.Config, stderr io.Writer, noColor bool) (*app, error) {
	a := &app{cfg: cfg, bus: events.NewEventBus(), usage: &types.UsageTracker{}}

	if err := a.setupLogging(stderr, noColor); err != nil {
		return nil, err
	}

	a.metrics = telemetry.NewMetrics("")
	a.metrics.Subscribe(a.bus)

	tracing, err := telemetry.NewTracingManager(telemetry.TracingConfig{
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.Insecure,
		SamplingRate: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.tracing = tracing
	a.closers = append(a.closers, tracing.Shutdown)

	var runner workflow.AgentRunner
	if cfg.MockMode() {
		a.logger.Warn(ctx, "AI_API_KEY not set, using offline fixtures", nil)
		runner, err = workflow.NewMockRunner(a.bus)
	} else {
		runner, err = a.liveRunner(ctx)
	}
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.orch, err = workflow.New(runner,
		workflow.WithLogger(a.logger),
		workflow.WithTracer(a.tracing.Tracer()),
	)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) setupLogging(stderr io.Writer, noColor bool) error {
	level, err := logging.ParseLevel(a.cfg.Log.Level)
	if err != nil {
		return err
	}

	var transports []logging.Transport
	if a.cfg.Log.Format == "json" {
		transports = append(transports, logging.NewJSONTransport(stderr))
	} else {
		transports = append(transports, logging.NewConsoleTransport(stderr, noColor))
	}
	if a.cfg.Log.File != "" {
		ft, err := logging.NewFileTransport(a.cfg.Log.File)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		transports = append(transports, ft)
		a.closers = append(a.closers, func(context.Context) error { return ft.Close() })
	}

	logging.Default.SetLevel(level)
	logging.Default.SetTransports(transports...)
	a.logger = logging.Default
	return nil
}

// liveRunner 连接 LLM 与远端系统
func (a *app) liveRunner(ctx context.Context) (*agent.Runner, error) {
	cfg := a.cfg
	if !cfg.RemoteConfigured() {
		return nil, errors.New("SAP_BASE_URL is required when AI_API_KEY is set")
	}

	mc := cfg.ModelConfig()
	llmExec := resilience.NewExecutor("llm-"+mc.Provider,
		resilience.WithEventBus(a.bus),
		resilience.WithLogger(a.logger),
	)
	prov, err := provider.NewMultiProviderFactory(
		provider.WithExecutor(llmExec),
		provider.WithLogger(a.logger),
	).Create(mc)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	// TokenCache 为 nil 指针时不能作为 HeaderSource 传入
	var headers adt.HeaderSource
	if oc := cfg.TokenConfig(); oc != nil {
		headers = auth.NewTokenCache(*oc, auth.WithLogger(a.logger))
	}
	client, err := adt.New(adt.Config{
		BaseURL:   cfg.SAP.BaseURL,
		Client:    cfg.SAP.Client,
		Transport: cfg.SAP.Transport,
		Timeout:   cfg.SAP.Timeout,
	}, headers, adt.WithLogger(a.logger), adt.WithEventBus(a.bus))
	if err != nil {
		return nil, err
	}

	for _, e := range []*resilience.Executor{llmExec, client.Executor()} {
		if b := e.Breaker(); b != nil {
			a.breakers = append(a.breakers, b)
		}
	}

	mws := []middleware.Middleware{middleware.NewTelemetryMiddleware(a.tracing.Tracer(), a.metrics)}
	if cfg.Safety.Enabled {
		gate, err := a.safetyGate(ctx)
		if err != nil {
			return nil, err
		}
		mws = append(mws, gate)
	}

	return agent.NewRunner(agent.Dependencies{
		Provider:   prov,
		Tools:      tools.NewDispatcher(client),
		Middleware: middleware.NewStack(mws...),
		EventBus:   a.bus,
		Usage:      a.usage,
		Logger:     a.logger,
	},
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithContextBudget(cfg.Agent.ContextBudget),
		agent.WithTracer(a.tracing.Tracer()),
	)
}

// safetyGate 创建规则评估器, 配置了策略文件时监听其变化
func (a *app) safetyGate(ctx context.Context) (*middleware.SafetyGateMiddleware, error) {
	evaluator := safety.NewRuleEvaluator(nil)
	if path := a.cfg.Safety.PolicyFile; path != "" {
		if a.cfg.Safety.Watch {
			w, err := safety.NewPolicyWatcher(path, evaluator, a.logger)
			if err != nil {
				return nil, err
			}
			if err := w.Start(ctx); err != nil {
				return nil, err
			}
			a.closers = append(a.closers, func(context.Context) error { return w.Stop() })
		} else {
			p, err := safety.LoadPolicy(path)
			if err != nil {
				return nil, err
			}
			evaluator.SetPolicy(p)
		}
	}
	return middleware.NewSafetyGateMiddleware(&middleware.SafetyGateConfig{
		Evaluator:        evaluator,
		DefaultTransport: a.cfg.SAP.Transport,
		EventBus:         a.bus,
		Logger:           a.logger,
	}), nil
}

// Close 逆序释放资源
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.logger != nil {
			a.logger.Warn(ctx, "shutdown step failed", map[string]interface{}{"error": err.Error()})
		}
	}
	a.closers = nil
	logging.Flush(ctx)
}
