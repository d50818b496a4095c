package provider

import (
	"fmt"
	"strings"

	"github.com/wordflowlab/abapagents/pkg/types"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o"
)

// OpenAIProvider OpenAI 提供商
type OpenAIProvider struct {
	*OpenAICompatibleProvider
}

// NewOpenAIProvider 创建 OpenAI 提供商
func NewOpenAIProvider(config *types.ModelConfig, opts ...Option) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	cfg := *config
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	headers := map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	return &OpenAIProvider{
		OpenAICompatibleProvider: newOpenAICompatible(&cfg, types.ProviderOpenAI, baseURL+"/chat/completions", headers, opts),
	}, nil
}
