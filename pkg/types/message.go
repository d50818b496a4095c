package types

// Role 定义消息角色
type Role string

const (
	// RoleSystem 系统角色
	RoleSystem Role = "system"

	// RoleUser 用户角色
	RoleUser Role = "user"

	// RoleAssistant AI助手角色
	RoleAssistant Role = "assistant"
)

// ContentBlock 内容块接口
// 仅允许 TextBlock / ToolUseBlock / ToolResultBlock 三种实现
type ContentBlock interface {
	isContentBlock()
}

// TextBlock 文本内容块
type TextBlock struct {
	Text string `json:"text"`
}

func (*TextBlock) isContentBlock() {}

// ToolUseBlock 工具使用块（由模型产生）
type ToolUseBlock struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

func (*ToolUseBlock) isContentBlock() {}

// ToolResultBlock 工具结果块
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

func (*ToolResultBlock) isContentBlock() {}

// Message 表示一条消息
type Message struct {
	// Role 消息角色
	Role Role `json:"role"`

	// Content 消息内容（简单文本格式，与 ContentBlocks 二选一）
	Content string `json:"content,omitempty"`

	// ContentBlocks 消息内容块（复杂格式，与 Content 二选一）
	ContentBlocks []ContentBlock `json:"-"`
}

// NewSystemMessage 创建系统消息
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage 创建用户消息
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewToolResultMessage 创建只包含单个工具结果块的用户消息
func NewToolResultMessage(toolUseID, content string) Message {
	return Message{
		Role:          RoleUser,
		ContentBlocks: []ContentBlock{&ToolResultBlock{ToolUseID: toolUseID, Content: content}},
	}
}

// GetContent 获取消息内容，优先返回 Content，如果为空则拼接 ContentBlocks 中的文本
func (m *Message) GetContent() string {
	if m.Content != "" {
		return m.Content
	}
	text := ""
	for _, block := range m.ContentBlocks {
		if tb, ok := block.(*TextBlock); ok {
			text += tb.Text
		}
	}
	return text
}

// SetContentBlocks 设置消息内容块（复杂格式）
func (m *Message) SetContentBlocks(blocks []ContentBlock) {
	m.ContentBlocks = blocks
	m.Content = ""
}

// ToolUses 返回消息中的工具调用块，保持原始顺序
func (m *Message) ToolUses() []*ToolUseBlock {
	var uses []*ToolUseBlock
	for _, block := range m.ContentBlocks {
		if tu, ok := block.(*ToolUseBlock); ok {
			uses = append(uses, tu)
		}
	}
	return uses
}

// IsToolResult 判断消息是否是工具结果消息
func (m *Message) IsToolResult() bool {
	if m.Role != RoleUser || len(m.ContentBlocks) == 0 {
		return false
	}
	_, ok := m.ContentBlocks[0].(*ToolResultBlock)
	return ok
}
