package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/wordflowlab/abapagents/server"
	"github.com/wordflowlab/abapagents/server/observability"
)

// serveFlags serve 参数
type serveFlags struct {
	addr       string
	mode       string
	runTimeout time.Duration
	rateLimit  int
	burst      int
}

func newServeCmd(root *rootFlags) *cobra.Command {
	flags := &serveFlags{}
	defaults := server.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

  POST /api/v1/runs    {"command": "analyze", "requirement": "..."}
  GET  /api/v1/agents
  GET  /health
  GET  /metrics

API keys come from SERVER_API_KEYS (comma separated); when unset the API is open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, flags)
		},
	}
	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address (default from SERVER_ADDR or :8080)")
	cmd.Flags().StringVar(&flags.mode, "mode", defaults.Mode, "gin mode: debug, release, test")
	cmd.Flags().DurationVar(&flags.runTimeout, "run-timeout", defaults.RunTimeout, "upper bound for a single run")
	cmd.Flags().IntVar(&flags.rateLimit, "rate-limit", defaults.RateLimit.RequestsPerMinute, "requests per minute per client, 0 disables")
	cmd.Flags().IntVar(&flags.burst, "burst", defaults.RateLimit.Burst, "rate limit burst size")
	return cmd
}

func runServe(cmd *cobra.Command, root *rootFlags, flags *serveFlags) error {
	a, err := bootstrap(cmd, root)
	if err != nil {
		return err
	}
	// 关闭顺序: 先停 HTTP, 再刷新 tracing 与日志
	defer a.Close(context.Background())

	cfg := server.ConfigFrom(a.cfg)
	if flags.addr != "" {
		cfg.Addr = flags.addr
	}
	cfg.Mode = flags.mode
	cfg.RunTimeout = flags.runTimeout
	if cfg.WriteTimeout < cfg.RunTimeout {
		cfg.WriteTimeout = cfg.RunTimeout + 30*time.Second
	}
	cfg.RateLimit.Enabled = flags.rateLimit > 0
	cfg.RateLimit.RequestsPerMinute = flags.rateLimit
	cfg.RateLimit.Burst = flags.burst

	var checks []observability.HealthCheck
	for _, b := range a.breakers {
		checks = append(checks, observability.BreakerCheck(b))
	}

	srv, err := server.New(cfg, server.Dependencies{
		Runner:  a.orch,
		Metrics: a.metrics,
		Tracing: a.tracing,
		Logger:  a.logger,
	}, server.WithHealthCheck(checks...))
	if err != nil {
		return err
	}
	srv.Health().SetDependency("remote", a.cfg.RemoteConfigured())

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		return err
	}
	return <-errc
}
