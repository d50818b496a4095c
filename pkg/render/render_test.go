package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordflowlab/abapagents/pkg/parser"
	"github.com/wordflowlab/abapagents/pkg/types"
)

func sample() *types.AgentResult {
	return &types.AgentResult{
		Role:     "planner",
		Title:    "Vendor Rating",
		Duration: "1.2s",
		Usage:    &types.TokenUsage{InputTokens: 10, OutputTokens: 4},
		Sections: []types.Section{
			{Heading: "Scope", Content: "rate vendors"},
			{Heading: "Objects", Table: &types.Table{Headers: []string{"Object", "Type"}, Rows: [][]string{{"ZCL_A", "CLAS"}}}},
		},
	}
}

func TestAgentMarkdown_ParsesBack(t *testing.T) {
	md := AgentMarkdown(sample())
	assert.Contains(t, md, "_planner · 1.2s · 10 in / 4 out tokens_")

	got := parser.Parse("planner", md)
	// 元信息行使标题章节有正文, 因此不会被提升为标题
	require.Len(t, got.Sections, 3)
	assert.Equal(t, "Vendor Rating", got.Sections[0].Heading)
	assert.Equal(t, "Scope", got.Sections[1].Heading)
	require.NotNil(t, got.Sections[2].Table)
	assert.Equal(t, [][]string{{"ZCL_A", "CLAS"}}, got.Sections[2].Table.Rows)
}

func TestMarkdown_Workflow(t *testing.T) {
	res := &types.WorkflowResult{
		RunID:   "run-1",
		Command: "workflow",
		Results: []*types.AgentResult{sample(), sample()},
		Usage:   types.TokenUsage{InputTokens: 20, OutputTokens: 8},
	}
	md := Markdown(res)
	assert.Equal(t, 2, strings.Count(md, "# Vendor Rating"))
	assert.Contains(t, md, "run run-1 · workflow · 2 agent(s) · 20 in / 8 out tokens")
}

func TestTerminal_PlainStyle(t *testing.T) {
	out := Terminal("# Title\n\nbody", "notty", 40)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "body")
	assert.False(t, strings.HasSuffix(out, "\n"))
}
