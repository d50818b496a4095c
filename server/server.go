// Package server 提供工作流的 HTTP 接口。
//
// 路由:
//
//	POST /api/v1/runs    同步运行一个命令
//	GET  /api/v1/agents  列出角色与命令
//	GET  /health         健康检查
//	GET  /metrics        Prometheus 指标
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wordflowlab/abapagents"
	"github.com/wordflowlab/abapagents/pkg/logging"
	"github.com/wordflowlab/abapagents/pkg/telemetry"
	"github.com/wordflowlab/abapagents/server/auth"
	"github.com/wordflowlab/abapagents/server/handlers"
	"github.com/wordflowlab/abapagents/server/observability"
	"github.com/wordflowlab/abapagents/server/ratelimit"
)

// Dependencies holds all dependencies for the server
type Dependencies struct {
	Runner handlers.Runner

	// Metrics 和 Tracing 可为 nil
	Metrics *telemetry.Metrics
	Tracing *telemetry.TracingManager
	Logger  *logging.Logger
}

// Server HTTP 服务
type Server struct {
	config *Config
	router *gin.Engine
	server *http.Server
	deps   Dependencies
	logger *logging.Logger

	keys    *auth.KeySet
	limiter *ratelimit.TokenBucketLimiter
	health  *observability.HealthChecker
	extra   []gin.HandlerFunc
}

// New creates a new Server instance with the given configuration
func New(config *Config, deps Dependencies, opts ...Option) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Runner == nil {
		return nil, errors.New("server: runner is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default
	}

	switch config.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(config.Mode)
	case "":
		gin.SetMode(gin.ReleaseMode)
	default:
		return nil, fmt.Errorf("server: unknown mode %q", config.Mode)
	}
	if config.APIKeyHeader == "" {
		config.APIKeyHeader = DefaultConfig().APIKeyHeader
	}

	s := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: deps.Logger.Named("server"),
		keys:   auth.NewKeySet(config.APIKeys),
		health: observability.NewHealthChecker(abapagents.Version),
	}
	s.health.SetDependency("llm", !deps.Runner.Mock())

	if config.RateLimit.Enabled {
		s.limiter = ratelimit.NewTokenBucketLimiter(config.RateLimit.RequestsPerMinute, config.RateLimit.Burst, 0)
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())

	// Tracing middleware (should be early in the chain)
	if s.deps.Tracing != nil {
		s.router.Use(s.deps.Tracing.Middleware())
	}
	s.router.Use(loggingMiddleware(s.logger))
	if s.deps.Metrics != nil {
		s.router.Use(s.deps.Metrics.Middleware())
	}
	s.router.Use(s.extra...)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	if s.keys.Enabled() {
		v1.Use(s.keys.Middleware(s.config.APIKeyHeader))
	}
	if s.limiter != nil {
		v1.Use(ratelimit.Middleware(s.limiter, ratelimit.ByClient))
	}

	runOpts := []handlers.RunOption{
		handlers.WithRunTimeout(s.config.RunTimeout),
		handlers.WithRunLogger(s.logger),
	}
	if s.deps.Metrics != nil {
		runOpts = append(runOpts, handlers.WithRunGauge(s.deps.Metrics.WorkflowStarted))
	}
	runs := handlers.NewRunHandler(s.deps.Runner, runOpts...)
	v1.POST("/runs", runs.Create)

	agents := handlers.NewAgentHandler(s.deps.Runner)
	v1.GET("/agents", agents.List)
}

// healthCheck handles health check requests
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, s.health.Check(c.Request.Context()))
}

// Start 监听并阻塞直到 Stop, 正常关闭时返回 nil
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ln)
}

// Serve 在给定 listener 上提供服务
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info(context.Background(), "server listening", map[string]interface{}{
		"addr":       ln.Addr().String(),
		"mock":       s.deps.Runner.Mock(),
		"auth":       s.keys.Enabled(),
		"rate_limit": s.limiter != nil,
	})

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.logger.Info(ctx, "server shutting down", nil)
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Router returns the underlying Gin router for advanced customization
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Health 返回健康检查器
func (s *Server) Health() *observability.HealthChecker {
	return s.health
}
