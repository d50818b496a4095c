package context

import (
	"strings"

	"github.com/wordflowlab/abapagents/pkg/types"
)

// BuildUserMessage 构造 agent 的首条用户消息
// prior 非 nil 时附加上一个 agent 的结果作为上下文
func BuildUserMessage(requirement string, prior *types.AgentResult) string {
	var sb strings.Builder
	sb.WriteString("## Requirement\n\n")
	sb.WriteString(requirement)

	if prior != nil {
		sb.WriteString("\n\n## Context from Previous Agent\n\n")
		sb.WriteString("**Agent:** " + prior.Role + "\n")
		sb.WriteString("**Title:** " + prior.Title + "\n")
		for _, s := range prior.Sections {
			sb.WriteString("\n### " + s.Heading + "\n")
			if s.Content != "" {
				sb.WriteString("\n" + s.Content + "\n")
			}
			if s.Table != nil && len(s.Table.Headers) > 0 {
				sb.WriteString("\n" + RenderTable(s.Table))
			}
		}
	}
	return sb.String()
}

// RenderTable 将表格渲染为管道分隔的 Markdown 行
func RenderTable(t *types.Table) string {
	var sb strings.Builder
	writeRow := func(cells []string) {
		escaped := make([]string, len(cells))
		for i, c := range cells {
			escaped[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		sb.WriteString("| " + strings.Join(escaped, " | ") + " |\n")
	}

	writeRow(t.Headers)
	sep := make([]string, len(t.Headers))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, row := range t.Rows {
		writeRow(row)
	}
	return sb.String()
}
