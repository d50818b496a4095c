package provider

import (
	"fmt"
	"strings"

	"github.com/wordflowlab/abapagents/pkg/types"
)

// Factory 提供商工厂接口
type Factory interface {
	Create(config *types.ModelConfig) (Provider, error)
}

// MultiProviderFactory 多提供商工厂, opts 注入到每个创建的提供商
type MultiProviderFactory struct {
	opts []Option
}

// NewMultiProviderFactory 创建多提供商工厂
func NewMultiProviderFactory(opts ...Option) *MultiProviderFactory {
	return &MultiProviderFactory{opts: opts}
}

// Create 根据配置创建相应的提供商
func (f *MultiProviderFactory) Create(config *types.ModelConfig) (Provider, error) {
	providerType := strings.ToLower(strings.TrimSpace(config.Provider))
	if providerType == "" {
		// 默认使用 anthropic
		providerType = types.ProviderAnthropic
	}

	switch providerType {
	case types.ProviderAnthropic:
		return NewAnthropicProvider(config, f.opts...)
	case types.ProviderOpenAI:
		return NewOpenAIProvider(config, f.opts...)
	case types.ProviderAzure, "azure-openai":
		return NewAzureOpenAIProvider(config, f.opts...)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerType)
	}
}
