package context

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wordflowlab/abapagents/pkg/tools"
)

const (
	// MaxSourceChars 源码结果的截断长度
	MaxSourceChars = 8000

	// MaxFallbackChars 未知结果 JSON 的截断长度
	MaxFallbackChars = 2000
)

// FormatToolResult 把工具的结构化结果渲染为交给模型的紧凑文本
// 输出只依赖输入, 不修改 result
func FormatToolResult(name string, result interface{}) string {
	if msg, ok := errorMessage(result); ok {
		return msg
	}

	switch r := result.(type) {
	case *tools.SourceResult:
		return formatSource(r)
	case *tools.WriteResult:
		return formatWrite(r)
	case *tools.ObjectList:
		return formatObjects(fmt.Sprintf("Package %s: %d object(s)", r.Package, len(r.Objects)), r.Objects)
	case *tools.SearchResult:
		return formatObjects(fmt.Sprintf("Search %q: %d result(s)", r.Query, len(r.Results)), r.Results)
	case *tools.DDICResult:
		return formatDDIC(r)
	case *tools.ActivationResult:
		return formatActivation(r)
	case *tools.TestRunResult:
		return formatTests(r)
	case *tools.SyntaxResult:
		return formatSyntax(r)
	}
	return formatFallback(result)
}

// errorMessage 识别 {"error": "..."} 形式的结果
func errorMessage(result interface{}) (string, bool) {
	m, ok := result.(map[string]interface{})
	if !ok || len(m) != 1 {
		return "", false
	}
	msg, ok := m["error"].(string)
	return msg, ok
}

// Truncate 超过 limit 个字符时截断并附加原始长度
func Truncate(s string, limit int) string {
	n := utf8.RuneCountInString(s)
	if n <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + fmt.Sprintf("\n... [truncated, %d chars total]", n)
}

func formatSource(r *tools.SourceResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Source of %s %s (%d lines):\n", r.ObjectType, r.ObjectName, strings.Count(r.Source, "\n")+1)
	sb.WriteString("```abap\n")
	sb.WriteString(Truncate(r.Source, MaxSourceChars))
	sb.WriteString("\n```")
	return sb.String()
}

func formatWrite(r *tools.WriteResult) string {
	action := "Updated"
	if r.Created {
		action = "Created"
	}
	s := fmt.Sprintf("%s %s", action, r.ObjectName)
	if r.ObjectType != "" {
		s += " (" + r.ObjectType + ")"
	}
	if r.Package != "" {
		s += " in package " + r.Package
	}
	if r.Transport != "" {
		s += ", transport " + r.Transport
	}
	if r.Message != "" {
		s += ": " + r.Message
	}
	return s
}

func formatObjects(header string, objects []tools.ObjectInfo) string {
	lines := []string{header}
	for _, o := range objects {
		line := fmt.Sprintf("- %s (%s)", o.Name, o.Type)
		if o.Description != "" {
			line += " " + o.Description
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatDDIC(r *tools.DDICResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Data dictionary %s (%s)", r.ObjectName, r.Kind)
	if r.Description != "" {
		sb.WriteString(": " + r.Description)
	}
	if len(r.Fields) == 0 {
		return sb.String()
	}
	sb.WriteString("\n| Field | Key | Type | Length | Description |\n| --- | --- | --- | --- | --- |\n")
	for _, f := range r.Fields {
		key := ""
		if f.Key {
			key = "X"
		}
		typ := f.Type
		if f.DataElement != "" {
			typ = f.DataElement
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %d | %s |\n", f.Name, key, typ, f.Length, f.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatDiagnostics(lines []string, diags []tools.Diagnostic) []string {
	for _, d := range diags {
		if d.Line > 0 {
			lines = append(lines, fmt.Sprintf("- [%s] line %d: %s", d.Severity, d.Line, d.Text))
		} else {
			lines = append(lines, fmt.Sprintf("- [%s] %s", d.Severity, d.Text))
		}
	}
	return lines
}

func formatActivation(r *tools.ActivationResult) string {
	status := "failed"
	if r.Success {
		status = "succeeded"
	}
	return strings.Join(formatDiagnostics([]string{fmt.Sprintf("Activation of %s %s", r.ObjectName, status)}, r.Messages), "\n")
}

func formatTests(r *tools.TestRunResult) string {
	header := fmt.Sprintf("Unit tests for %s: %d passed, %d failed", r.ObjectName, r.Passed, r.Failed)
	if r.Coverage != nil {
		header += fmt.Sprintf(", coverage %.1f%%", *r.Coverage)
	}
	lines := []string{header}
	for _, c := range r.Cases {
		if c.Passed {
			continue
		}
		line := fmt.Sprintf("- FAIL %s->%s", c.Class, c.Method)
		if c.Message != "" {
			line += ": " + c.Message
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatSyntax(r *tools.SyntaxResult) string {
	header := fmt.Sprintf("Syntax check of %s: no errors", r.ObjectName)
	if !r.Valid {
		header = fmt.Sprintf("Syntax check of %s: %d issue(s)", r.ObjectName, len(r.Messages))
	}
	return strings.Join(formatDiagnostics([]string{header}, r.Messages), "\n")
}

func formatFallback(result interface{}) string {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprint(result)
	}
	return Truncate(string(data), MaxFallbackChars)
}
