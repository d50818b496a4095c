package context

import (
	"fmt"

	"github.com/wordflowlab/abapagents/pkg/types"
)

// preservedHead 始终保留的头部消息数 (system + 初始 user)
const preservedHead = 2

// OmittedMarker 被省略消息的占位文本
func OmittedMarker(n int) string {
	return fmt.Sprintf("[%d earlier message(s) omitted for context budget]", n)
}

// Compress 按 token 预算压缩对话, 返回新切片, 不修改入参
//
// 总量不超过预算时原样返回。否则保留前两条消息, 从尾部向前贪心保留
// 能放进剩余预算的连续消息, 并在两段之间插入一条省略标记。
// budget <= 0 时使用 DefaultBudget。
func Compress(messages []types.Message, budget int) []types.Message {
	out, _ := CompressReport(messages, budget)
	return out
}

// CompressReport 与 Compress 相同, 额外返回被省略的消息数
func CompressReport(messages []types.Message, budget int) ([]types.Message, int) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	b := TokenBudget{MaxTokens: budget}
	if len(messages) <= preservedHead || b.IsWithinBudget(EstimateMessages(messages)) {
		return messages, 0
	}

	head := messages[:preservedHead]
	remaining := b.RemainingTokens(EstimateMessages(head))
	// 标记本身也占预算
	remaining -= EstimateMessage(types.NewUserMessage(OmittedMarker(len(messages))))

	start := len(messages)
	used := 0
	for i := len(messages) - 1; i >= preservedHead; i-- {
		cost := EstimateMessage(messages[i])
		if used+cost > remaining {
			break
		}
		used += cost
		start = i
	}

	// 尾部不能以孤立的工具结果开头, 其对应的 tool_use 已被省略
	for start < len(messages) && start > preservedHead && messages[start].IsToolResult() {
		start++
	}

	omitted := start - preservedHead
	if omitted == 0 {
		return messages, 0
	}

	out := make([]types.Message, 0, preservedHead+1+len(messages)-start)
	out = append(out, head...)
	out = append(out, types.NewUserMessage(OmittedMarker(omitted)))
	out = append(out, messages[start:]...)
	return out, omitted
}
