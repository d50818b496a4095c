package provider

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/wordflowlab/abapagents/pkg/types"
)

const defaultAzureAPIVersion = "2024-06-01"

// AzureOpenAIProvider 按 deployment 寻址的 Azure OpenAI 提供商
// Model 字段作为 deployment 名称
type AzureOpenAIProvider struct {
	*OpenAICompatibleProvider
	deployment string
	apiVersion string
}

// NewAzureOpenAIProvider 创建 Azure OpenAI 提供商
func NewAzureOpenAIProvider(config *types.ModelConfig, opts ...Option) (*AzureOpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("azure api key is required")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("azure base url is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("azure deployment (model) is required")
	}
	cfg := *config
	version := cfg.APIVersion
	if version == "" {
		version = defaultAzureAPIVersion
	}

	endpoint := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(cfg.Model), url.QueryEscape(version))
	headers := map[string]string{"api-key": cfg.APIKey}

	return &AzureOpenAIProvider{
		OpenAICompatibleProvider: newOpenAICompatible(&cfg, types.ProviderAzure, endpoint, headers, opts),
		deployment:               cfg.Model,
		apiVersion:               version,
	}, nil
}

// Deployment 返回 deployment 名称
func (p *AzureOpenAIProvider) Deployment() string {
	return p.deployment
}
