package types

import "sync/atomic"

// TokenUsage Token使用统计
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int64 `json:"output_tokens" yaml:"output_tokens"`
}

// Add 累加另一份使用量
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Total 返回输入与输出 token 之和
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// UsageTracker 进程级 token 使用量，可被并发的 agent 运行安全更新
type UsageTracker struct {
	input  atomic.Int64
	output atomic.Int64
}

// Add 原子地累加使用量
func (t *UsageTracker) Add(u TokenUsage) {
	t.input.Add(u.InputTokens)
	t.output.Add(u.OutputTokens)
}

// Snapshot 返回当前累计值
func (t *UsageTracker) Snapshot() TokenUsage {
	return TokenUsage{InputTokens: t.input.Load(), OutputTokens: t.output.Load()}
}

// Table 表格
type Table struct {
	Headers []string   `json:"headers" yaml:"headers"`
	Rows    [][]string `json:"rows" yaml:"rows"`
}

// Section 结果中的一个章节
type Section struct {
	Heading string `json:"heading" yaml:"heading"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
	Table   *Table `json:"table,omitempty" yaml:"table,omitempty"`
}

// AgentResult 单个 agent 运行的结构化结果
type AgentResult struct {
	Role     string      `json:"role" yaml:"role"`
	Title    string      `json:"title" yaml:"title"`
	Sections []Section   `json:"sections" yaml:"sections"`
	Duration string      `json:"duration,omitempty" yaml:"duration,omitempty"`
	Usage    *TokenUsage `json:"usage,omitempty" yaml:"usage,omitempty"`
}

// Clone 深拷贝结果，避免共享夹具数据被调用方修改
func (r *AgentResult) Clone() *AgentResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Sections = make([]Section, len(r.Sections))
	for i, s := range r.Sections {
		out.Sections[i] = s
		if s.Table != nil {
			t := Table{Headers: append([]string(nil), s.Table.Headers...)}
			for _, row := range s.Table.Rows {
				t.Rows = append(t.Rows, append([]string(nil), row...))
			}
			out.Sections[i].Table = &t
		}
	}
	if r.Usage != nil {
		u := *r.Usage
		out.Usage = &u
	}
	return &out
}

// WorkflowResult 一次工作流调用的结果
type WorkflowResult struct {
	RunID   string         `json:"run_id"`
	Command string         `json:"command"`
	Results []*AgentResult `json:"results"`
	Usage   TokenUsage     `json:"usage"`
}
