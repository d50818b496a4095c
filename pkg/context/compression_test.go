package context

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wordflowlab/abapagents/pkg/types"
)

// conversation 构造 system + user + n 轮 (assistant tool_use, tool_result)
func conversation(rounds int, payload int) []types.Message {
	msgs := []types.Message{
		types.NewSystemMessage("You are the planner."),
		types.NewUserMessage("## Requirement\n\nAdd vendor rating"),
	}
	for i := 0; i < rounds; i++ {
		id := fmt.Sprintf("toolu_%d", i)
		a := types.Message{Role: types.RoleAssistant}
		a.SetContentBlocks([]types.ContentBlock{
			&types.TextBlock{Text: "checking"},
			&types.ToolUseBlock{ID: id, Name: "read_abap_source", Input: map[string]interface{}{"object_name": "ZCL_X"}},
		})
		msgs = append(msgs, a, types.NewToolResultMessage(id, strings.Repeat("s", payload)))
	}
	return msgs
}

func TestCompress_UnderBudgetUnchanged(t *testing.T) {
	msgs := conversation(3, 100)
	out := Compress(msgs, math.MaxInt)
	assert.Equal(t, msgs, out)

	out = Compress(msgs, EstimateMessages(msgs))
	assert.Equal(t, msgs, out)
}

func TestCompress_DefaultBudget(t *testing.T) {
	msgs := conversation(2, 100)
	assert.Equal(t, msgs, Compress(msgs, 0))
}

func TestCompress_DropsInteriorAndInsertsMarker(t *testing.T) {
	msgs := conversation(10, 400)
	budget := EstimateMessages(msgs) / 2

	out, omitted := CompressReport(msgs, budget)
	require.Greater(t, omitted, 0)
	assert.LessOrEqual(t, len(out), len(msgs))
	assert.LessOrEqual(t, EstimateMessages(out), budget)

	// 头部原样保留
	assert.Equal(t, msgs[0], out[0])
	assert.Equal(t, msgs[1], out[1])

	assert.Equal(t, types.RoleUser, out[2].Role)
	assert.Equal(t, OmittedMarker(omitted), out[2].Content)
	assert.Equal(t, len(msgs), len(out)-1+omitted)

	// 尾部是原对话的后缀
	tail := out[3:]
	assert.Equal(t, msgs[len(msgs)-len(tail):], tail)
}

func TestCompress_TailNeverStartsWithOrphanToolResult(t *testing.T) {
	msgs := conversation(6, 400)
	for budget := 150; budget < EstimateMessages(msgs); budget += 37 {
		out, omitted := CompressReport(msgs, budget)
		if omitted == 0 {
			continue
		}
		if len(out) > 3 {
			assert.False(t, out[3].IsToolResult(), "budget %d", budget)
		}

		// 每个 tool_use 之后紧跟对应的 tool_result
		for i, m := range out {
			uses := m.ToolUses()
			for j, u := range uses {
				require.Less(t, i+1+j, len(out), "budget %d", budget)
				next := out[i+1+j]
				require.True(t, next.IsToolResult())
				assert.Equal(t, u.ID, next.ContentBlocks[0].(*types.ToolResultBlock).ToolUseID)
			}
		}
	}
}

func TestCompress_HeadOnlyWhenNothingFits(t *testing.T) {
	msgs := conversation(2, 4000)
	out, omitted := CompressReport(msgs, EstimateMessages(msgs[:2])+10)
	assert.Equal(t, 4, omitted)
	require.Len(t, out, 3)
	assert.Equal(t, OmittedMarker(4), out[2].Content)
}

func TestCompress_ShortConversation(t *testing.T) {
	msgs := []types.Message{types.NewSystemMessage(strings.Repeat("x", 1000)), types.NewUserMessage("hi")}
	assert.Equal(t, msgs, Compress(msgs, 10))
}

func TestOmittedMarker(t *testing.T) {
	assert.Equal(t, "[3 earlier message(s) omitted for context budget]", OmittedMarker(3))
}
