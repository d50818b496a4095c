package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	agentctx "github.com/wordflowlab/abapagents/pkg/context"
	"github.com/wordflowlab/abapagents/pkg/types"
)

func TestParse_TitlePromotion(t *testing.T) {
	got := Parse("planner", "# Plan\n## Scope\ntext")
	assert.Equal(t, "planner", got.Role)
	assert.Equal(t, "Plan", got.Title)
	assert.Equal(t, []types.Section{{Heading: "Scope", Content: "text"}}, got.Sections)
}

func TestParse_NoHeadings(t *testing.T) {
	text := "  Just some free text\nwithout structure.  "
	got := Parse("reviewer", text)
	assert.Empty(t, got.Title)
	assert.Equal(t, []types.Section{{Heading: FallbackHeading, Content: "Just some free text\nwithout structure."}}, got.Sections)

	empty := Parse("reviewer", "")
	require.Len(t, empty.Sections, 1)
	assert.Equal(t, FallbackHeading, empty.Sections[0].Heading)
}

func TestParse_FirstSectionWithBodyIsNotPromoted(t *testing.T) {
	got := Parse("designer", "# Design\nOverview text\n## Classes\nZCL_A")
	assert.Empty(t, got.Title)
	require.Len(t, got.Sections, 2)
	assert.Equal(t, "Design", got.Sections[0].Heading)
	assert.Equal(t, "Overview text", got.Sections[0].Content)
}

func TestParse_Tables(t *testing.T) {
	text := `# Review
## Findings
Some findings below.

| Severity | Object | Note |
|----------|:------:|------|
| High | ZCL_A | Missing \| escaping |
| Low | ZCL_B |  |

Trailing remark.
### Next
done`

	got := Parse("reviewer", text)
	assert.Equal(t, "Review", got.Title)
	require.Len(t, got.Sections, 2)

	findings := got.Sections[0]
	assert.Equal(t, "Findings", findings.Heading)
	assert.Equal(t, "Some findings below.\n\n\nTrailing remark.", findings.Content)
	require.NotNil(t, findings.Table)
	assert.Equal(t, []string{"Severity", "Object", "Note"}, findings.Table.Headers)
	assert.Equal(t, [][]string{{"High", "ZCL_A", "Missing | escaping"}, {"Low", "ZCL_B", ""}}, findings.Table.Rows)

	assert.Equal(t, types.Section{Heading: "Next", Content: "done"}, got.Sections[1])
}

func TestParse_CodeFenceIsContent(t *testing.T) {
	text := "# Code\n## Implementation\n```abap\n# not a heading\n| not | a table |\n```"
	got := Parse("implementer", text)
	require.Len(t, got.Sections, 1)
	assert.Nil(t, got.Sections[0].Table)
	assert.Contains(t, got.Sections[0].Content, "# not a heading")
}

func TestParse_Preamble(t *testing.T) {
	got := Parse("planner", "Here is the plan.\n# Plan\n## Scope\nall")
	assert.Equal(t, "Plan", got.Title)
	require.Len(t, got.Sections, 2)
	assert.Equal(t, types.Section{Heading: PreambleHeading, Content: "Here is the plan."}, got.Sections[0])
}

func TestParse_DeepHeadingsAreContent(t *testing.T) {
	got := Parse("tester", "## Cases\n#### detail\ntext")
	require.Len(t, got.Sections, 1)
	assert.Equal(t, "#### detail\ntext", got.Sections[0].Content)
}

func TestParse_BuilderTableRoundTrip(t *testing.T) {
	tables := []*types.Table{
		{Headers: []string{"Object", "Type"}, Rows: [][]string{{"ZCL_VENDOR_RATING", "CLAS"}, {"ZVR_RATING", "TABL"}}},
		{Headers: []string{"Expr"}, Rows: [][]string{{"a | b"}, {"c"}}},
		{Headers: []string{"A", "B", "C"}, Rows: [][]string{{"1", "", "3"}}},
	}
	for _, want := range tables {
		text := "## Table\n" + agentctx.RenderTable(want)
		got := Parse("planner", text)
		require.Len(t, got.Sections, 1)
		require.NotNil(t, got.Sections[0].Table)
		assert.Equal(t, want.Headers, got.Sections[0].Table.Headers)
		assert.Equal(t, want.Rows, got.Sections[0].Table.Rows)
	}
}
