// Package render 将 agent 结果渲染为 Markdown, 并可选地用 glamour 渲染到终端。
package render

import (
	"fmt"
	"strings"

	"charm.land/glamour/v2"

	agentctx "github.com/wordflowlab/abapagents/pkg/context"
	"github.com/wordflowlab/abapagents/pkg/types"
)

// MaxWidth 终端渲染的最大行宽
const MaxWidth = 120

// AgentMarkdown 渲染单个 agent 结果
func AgentMarkdown(res *types.AgentResult) string {
	var sb strings.Builder
	sb.WriteString("# " + res.Title + "\n\n")

	meta := []string{res.Role}
	if res.Duration != "" {
		meta = append(meta, res.Duration)
	}
	if res.Usage != nil && res.Usage.Total() > 0 {
		meta = append(meta, fmt.Sprintf("%d in / %d out tokens", res.Usage.InputTokens, res.Usage.OutputTokens))
	}
	sb.WriteString("_" + strings.Join(meta, " · ") + "_\n")

	for _, s := range res.Sections {
		sb.WriteString("\n## " + s.Heading + "\n")
		if s.Content != "" {
			sb.WriteString("\n" + s.Content + "\n")
		}
		if s.Table != nil && len(s.Table.Headers) > 0 {
			sb.WriteString("\n" + agentctx.RenderTable(s.Table))
		}
	}
	return sb.String()
}

// Markdown 渲染整个工作流结果
func Markdown(res *types.WorkflowResult) string {
	parts := make([]string, 0, len(res.Results)+1)
	for _, r := range res.Results {
		parts = append(parts, AgentMarkdown(r))
	}
	footer := fmt.Sprintf("_run %s · %s · %d agent(s) · %d in / %d out tokens_\n",
		res.RunID, res.Command, len(res.Results), res.Usage.InputTokens, res.Usage.OutputTokens)
	parts = append(parts, footer)
	return strings.Join(parts, "\n---\n\n")
}

// Terminal 用 glamour 渲染 Markdown, 失败时原样返回
// style 为 glamour 标准样式名, 例如 dark、light、notty
func Terminal(markdown, style string, width int) string {
	if width <= 0 || width > MaxWidth {
		width = MaxWidth
	}
	if style == "" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimSuffix(out, "\n")
}
