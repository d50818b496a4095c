// Package parser 从模型输出的 Markdown 文本中宽松地提取标题、段落和表格。
// 解析从不失败, 最差情况下返回一个包含原文的章节。
package parser

import (
	"regexp"
	"strings"

	"github.com/wordflowlab/abapagents/pkg/types"
)

// FallbackHeading 没有任何标题时使用的章节名
const FallbackHeading = "Output"

// PreambleHeading 第一个标题之前的文本所在章节
const PreambleHeading = "Summary"

var (
	headingRe   = regexp.MustCompile(`^(#{1,3})\s+(.*?)(?:\s+#+)?\s*$`)
	separatorRe = regexp.MustCompile(`^\|?[\s:|-]+\|?$`)
)

type section struct {
	heading string
	lines   []string
	table   *types.Table
}

// Parse 解析文本, 返回的 Title 为空时由调用方决定默认标题
func Parse(role, text string) *types.AgentResult {
	result := &types.AgentResult{Role: role}

	var (
		preamble []string
		sections []*section
		current  *section
		inFence  bool
		tableBuf []string
	)

	appendLine := func(line string) {
		if current == nil {
			preamble = append(preamble, line)
		} else {
			current.lines = append(current.lines, line)
		}
	}
	flushTable := func() {
		if len(tableBuf) == 0 {
			return
		}
		table := parseTable(tableBuf)
		if current != nil && current.table == nil && table != nil {
			current.table = table
		} else {
			// 章节之外或同一章节的第二张表保留为原文
			for _, l := range tableBuf {
				appendLine(l)
			}
		}
		tableBuf = nil
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			flushTable()
			inFence = !inFence
			appendLine(line)
			continue
		}
		if inFence {
			appendLine(line)
			continue
		}

		if isTableLine(trimmed) {
			tableBuf = append(tableBuf, trimmed)
			continue
		}
		flushTable()

		if m := headingRe.FindStringSubmatch(trimmed); m != nil && m[2] != "" {
			current = &section{heading: m[2]}
			sections = append(sections, current)
			continue
		}
		appendLine(line)
	}
	flushTable()

	if len(sections) == 0 {
		result.Sections = []types.Section{{Heading: FallbackHeading, Content: strings.TrimSpace(text)}}
		return result
	}

	// 第一个章节只有标题时提升为结果标题
	if first := sections[0]; strings.TrimSpace(strings.Join(first.lines, "\n")) == "" && first.table == nil {
		result.Title = first.heading
		sections = sections[1:]
	}

	if body := strings.TrimSpace(strings.Join(preamble, "\n")); body != "" {
		result.Sections = append(result.Sections, types.Section{Heading: PreambleHeading, Content: body})
	}
	for _, s := range sections {
		result.Sections = append(result.Sections, types.Section{
			Heading: s.heading,
			Content: strings.TrimSpace(strings.Join(s.lines, "\n")),
			Table:   s.table,
		})
	}
	if result.Sections == nil {
		result.Sections = []types.Section{}
	}
	return result
}

func isTableLine(trimmed string) bool {
	return len(trimmed) >= 2 && strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|")
}

// parseTable 第一行为表头, 紧随的分隔行跳过, 其余为数据行
func parseTable(lines []string) *types.Table {
	if len(lines) == 0 {
		return nil
	}
	t := &types.Table{Headers: splitCells(lines[0])}
	rest := lines[1:]
	if len(rest) > 0 && separatorRe.MatchString(rest[0]) && strings.Contains(rest[0], "-") {
		rest = rest[1:]
	}
	for _, l := range rest {
		t.Rows = append(t.Rows, splitCells(l))
	}
	return t
}

// splitCells 按未转义的 | 拆分, 去掉首尾空单元格
func splitCells(line string) []string {
	var (
		cells []string
		cur   strings.Builder
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '\\' && i+1 < len(line) && line[i+1] == '|' {
			cur.WriteByte('|')
			i++
			continue
		}
		if c == '|' {
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteByte(c)
	}
	cells = append(cells, strings.TrimSpace(cur.String()))

	if len(cells) > 0 && cells[0] == "" {
		cells = cells[1:]
	}
	if len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}
