package events

import "time"

// AgentStartEvent agent 开始运行
type AgentStartEvent struct {
	Role        string `json:"role"`
	Requirement string `json:"requirement"`
}

func (AgentStartEvent) EventType() string { return "agent_start" }

// AgentDoneEvent agent 运行结束
type AgentDoneEvent struct {
	Role         string        `json:"role"`
	Title        string        `json:"title"`
	Iterations   int           `json:"iterations"`
	Duration     time.Duration `json:"duration"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	Degraded     bool          `json:"degraded,omitempty"`
	Error        string        `json:"error,omitempty"`
}

func (AgentDoneEvent) EventType() string { return "agent_done" }

// ToolStartEvent 工具开始执行
type ToolStartEvent struct {
	Role      string                 `json:"role"`
	ToolUseID string                 `json:"tool_use_id"`
	Name      string                 `json:"name"`
	Input     map[string]interface{} `json:"input,omitempty"`
}

func (ToolStartEvent) EventType() string { return "tool_start" }

// ToolEndEvent 工具执行结束
type ToolEndEvent struct {
	Role      string        `json:"role"`
	ToolUseID string        `json:"tool_use_id"`
	Name      string        `json:"name"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

func (ToolEndEvent) EventType() string { return "tool_end" }

// SafetyBlockedEvent 安全闸门拦截了一次写操作
type SafetyBlockedEvent struct {
	Tool     string   `json:"tool"`
	Artifact string   `json:"artifact"`
	Failures []string `json:"failures"`
}

func (SafetyBlockedEvent) EventType() string { return "safety_blocked" }

// BreakerStateChangedEvent 熔断器状态变化
type BreakerStateChangedEvent struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

func (BreakerStateChangedEvent) EventType() string { return "breaker_state_changed" }
