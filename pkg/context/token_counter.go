// Package context 负责组装 agent 对话: 构造首条用户消息、估算 token、
// 按预算压缩历史, 以及把工具结果格式化为模型可读的文本。
package context

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/wordflowlab/abapagents/pkg/types"
)

const (
	// CharsPerToken 平均每个 token 的字符数
	CharsPerToken = 4

	// MessageOverhead 每条消息的固定 token 开销
	MessageOverhead = 4
)

// EstimateTokens 估算文本的 token 数: ⌈字符数 / 4⌉
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// EstimateMessage 估算单条消息, 含固定开销
func EstimateMessage(msg types.Message) int {
	tokens := MessageOverhead
	if len(msg.ContentBlocks) == 0 {
		return tokens + EstimateTokens(msg.Content)
	}
	for _, block := range msg.ContentBlocks {
		switch b := block.(type) {
		case *types.TextBlock:
			tokens += EstimateTokens(b.Text)
		case *types.ToolUseBlock:
			data, err := json.Marshal(b.Input)
			if err == nil {
				tokens += EstimateTokens(string(data))
			}
		case *types.ToolResultBlock:
			tokens += EstimateTokens(b.Content)
		}
	}
	return tokens
}

// EstimateMessages 估算消息列表的总 token 数
func EstimateMessages(messages []types.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateMessage(msg)
	}
	return total
}

// TokenBudget 上下文预算
type TokenBudget struct {
	MaxTokens int
}

// DefaultBudget 单次 agent 运行的默认预算
const DefaultBudget = 100000

// DefaultTokenBudget 返回默认预算
func DefaultTokenBudget() TokenBudget {
	return TokenBudget{MaxTokens: DefaultBudget}
}

// IsWithinBudget 检查是否在预算内
func (b TokenBudget) IsWithinBudget(usedTokens int) bool {
	return usedTokens <= b.MaxTokens
}

// RemainingTokens 计算剩余 token
func (b TokenBudget) RemainingTokens(usedTokens int) int {
	if remaining := b.MaxTokens - usedTokens; remaining > 0 {
		return remaining
	}
	return 0
}

// UsagePercentage 计算使用百分比
func (b TokenBudget) UsagePercentage(usedTokens int) float64 {
	if b.MaxTokens <= 0 {
		return 0
	}
	return float64(usedTokens) / float64(b.MaxTokens) * 100
}
