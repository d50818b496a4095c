// Package appconfig 加载 CLI 与 HTTP 服务共用的配置。
//
// 优先级: 命令行指定的配置文件或 ./abapagents.yml < 环境变量。
// 未配置 AI_API_KEY 时进入离线 mock 模式。
package appconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wordflowlab/abapagents/pkg/types"
)

// ConfigName 默认配置文件名 (不含扩展名)
const ConfigName = "abapagents"

// AIConfig 模型提供商配置
type AIConfig struct {
	Provider   string        `mapstructure:"provider" yaml:"provider"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Model      string        `mapstructure:"model" yaml:"model"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url"`
	APIVersion string        `mapstructure:"api_version" yaml:"api_version"`
	MaxTokens  int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// OAuthConfig 远端系统的 client-credentials 配置
type OAuthConfig struct {
	TokenURL     string `mapstructure:"token_url" yaml:"token_url"`
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	Scope        string `mapstructure:"scope" yaml:"scope"`
}

// SAPConfig 远端 ABAP 系统配置
type SAPConfig struct {
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Client    string        `mapstructure:"client" yaml:"client"`
	Transport string        `mapstructure:"transport" yaml:"transport"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	OAuth     OAuthConfig   `mapstructure:"oauth" yaml:"oauth"`
}

// AgentConfig agent 运行参数
type AgentConfig struct {
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	ContextBudget int `mapstructure:"context_budget" yaml:"context_budget"`
}

// SafetyConfig 安全闸门配置
type SafetyConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	PolicyFile string `mapstructure:"policy_file" yaml:"policy_file"`
	Watch      bool   `mapstructure:"watch" yaml:"watch"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Format console | json
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// TelemetryConfig 追踪配置, OTLPEndpoint 为空时不导出
type TelemetryConfig struct {
	ServiceName  string  `mapstructure:"service_name" yaml:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr    string   `mapstructure:"addr" yaml:"addr"`
	APIKeys []string `mapstructure:"api_keys" yaml:"api_keys"`
}

// Config 顶层应用配置
type Config struct {
	AI        AIConfig        `mapstructure:"ai" yaml:"ai"`
	SAP       SAPConfig       `mapstructure:"sap" yaml:"sap"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Safety    SafetyConfig    `mapstructure:"safety" yaml:"safety"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// envBindings 配置键到环境变量的映射
var envBindings = map[string]string{
	"ai.provider":             "AI_PROVIDER",
	"ai.api_key":              "AI_API_KEY",
	"ai.model":                "AI_MODEL",
	"ai.base_url":             "AI_BASE_URL",
	"ai.api_version":          "AI_API_VERSION",
	"ai.max_tokens":           "AI_MAX_TOKENS",
	"sap.base_url":            "SAP_BASE_URL",
	"sap.client":              "SAP_CLIENT",
	"sap.transport":           "SAP_TRANSPORT",
	"sap.oauth.token_url":     "SAP_OAUTH_TOKEN_URL",
	"sap.oauth.client_id":     "SAP_OAUTH_CLIENT_ID",
	"sap.oauth.client_secret": "SAP_OAUTH_CLIENT_SECRET",
	"sap.oauth.scope":         "SAP_OAUTH_SCOPE",
	"agent.max_iterations":    "AGENT_MAX_ITERATIONS",
	"agent.context_budget":    "AGENT_CONTEXT_BUDGET",
	"safety.policy_file":      "SAFETY_POLICY_FILE",
	"log.level":               "LOG_LEVEL",
	"log.format":              "LOG_FORMAT",
	"log.file":                "LOG_FILE",
	"telemetry.otlp_endpoint": "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.service_name":  "OTEL_SERVICE_NAME",
	"server.addr":             "SERVER_ADDR",
	"server.api_keys":         "SERVER_API_KEYS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ai.provider", types.ProviderAnthropic)
	v.SetDefault("ai.max_tokens", types.DefaultMaxTokens)
	v.SetDefault("ai.timeout", 120*time.Second)
	v.SetDefault("sap.timeout", 30*time.Second)
	v.SetDefault("agent.max_iterations", 25)
	v.SetDefault("agent.context_budget", 100000)
	v.SetDefault("safety.enabled", true)
	v.SetDefault("safety.watch", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("telemetry.service_name", "abapagents")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("server.addr", ":8080")
}

// Load 加载配置, path 为空时查找当前目录下的 abapagents.yml
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	// SERVER_API_KEYS 以逗号分隔
	cfg.Server.APIKeys = splitList(strings.Join(cfg.Server.APIKeys, ","))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch strings.ToLower(c.AI.Provider) {
	case types.ProviderAnthropic, types.ProviderOpenAI, types.ProviderAzure, "azure-openai":
	default:
		return fmt.Errorf("unsupported AI provider %q", c.AI.Provider)
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("ai.max_tokens must be positive, got %d", c.AI.MaxTokens)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.ContextBudget <= 0 {
		return fmt.Errorf("agent.context_budget must be positive, got %d", c.Agent.ContextBudget)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1], got %v", c.Telemetry.SampleRatio)
	}
	return nil
}

// MockMode 未配置 API key 时使用离线夹具
func (c *Config) MockMode() bool {
	return strings.TrimSpace(c.AI.APIKey) == ""
}

// ModelConfig 转换为提供商配置
func (c *Config) ModelConfig() *types.ModelConfig {
	return &types.ModelConfig{
		Provider:   strings.ToLower(c.AI.Provider),
		Model:      c.AI.Model,
		APIKey:     c.AI.APIKey,
		BaseURL:    c.AI.BaseURL,
		APIVersion: c.AI.APIVersion,
		MaxTokens:  c.AI.MaxTokens,
		Timeout:    c.AI.Timeout,
	}
}

// RemoteConfigured 是否配置了远端系统
func (c *Config) RemoteConfigured() bool {
	return c.SAP.BaseURL != ""
}

// TokenConfig 转换为 token 缓存配置, 未配置 token URL 时返回 nil
func (c *Config) TokenConfig() *types.OAuthConfig {
	o := c.SAP.OAuth
	if o.TokenURL == "" {
		return nil
	}
	return &types.OAuthConfig{
		TokenURL:     o.TokenURL,
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		Scopes:       splitList(strings.ReplaceAll(o.Scope, " ", ",")),
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
