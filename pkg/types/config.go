package types

import "time"

// 支持的模型提供商
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
)

// DefaultMaxTokens 单次补全默认的最大输出 token 数
const DefaultMaxTokens = 4096

// ModelConfig 模型配置
type ModelConfig struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	APIKey     string `json:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
	MaxTokens  int    `json:"max_tokens,omitempty"`

	// Timeout 单次 HTTP 请求超时，0 表示使用默认值
	Timeout time.Duration `json:"timeout,omitempty"`
}

// OAuthConfig OAuth2 client-credentials 配置
type OAuthConfig struct {
	TokenURL     string   `json:"token_url"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes,omitempty"`

	// TenantHeader 租户请求头名称，为空时不发送
	TenantHeader string `json:"tenant_header,omitempty"`
	TenantID     string `json:"tenant_id,omitempty"`
}
