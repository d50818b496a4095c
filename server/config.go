package server

import (
	"time"

	"github.com/wordflowlab/abapagents/pkg/appconfig"
)

// Config HTTP 服务配置
type Config struct {
	Addr string
	Mode string // "debug", "release" 或 "test"

	// APIKeys 为空时不启用认证
	APIKeys      []string
	APIKeyHeader string

	// RunTimeout 单次工作流调用的上限
	RunTimeout time.Duration

	RateLimit RateLimitConfig

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// RateLimitConfig 令牌桶限流配置, 按 API key 或客户端 IP 计数
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	runTimeout := 15 * time.Minute
	return &Config{
		Addr:         ":8080",
		Mode:         "release",
		APIKeyHeader: "X-API-Key",
		RunTimeout:   runTimeout,
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
			Burst:             5,
		},
		ReadTimeout:  30 * time.Second,
		WriteTimeout: runTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// ConfigFrom 从应用配置构造服务配置
func ConfigFrom(cfg *appconfig.Config) *Config {
	c := DefaultConfig()
	if cfg.Server.Addr != "" {
		c.Addr = cfg.Server.Addr
	}
	c.APIKeys = cfg.Server.APIKeys
	return c
}
