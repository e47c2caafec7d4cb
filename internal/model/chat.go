package model

import "time"

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// 消息类型
const (
	MessageTypeText               = "text"
	MessageTypeFunctionCall       = "function_call"
	MessageTypeFunctionCallOutput = "function_call_output"
)

// ChatMessage 代表对话中的单条消息，存储在 chats/{chat_id}/messages 下。
// function_call 与对应的 function_call_output 通过 CallID 关联。
type ChatMessage struct {
	MessageID  string    `json:"message_id,omitempty"`
	ChatID     string    `json:"chat_id,omitempty"`
	Role       string    `json:"role"`
	Type       string    `json:"type,omitempty"`
	Content    string    `json:"content"`
	CallID     string    `json:"call_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	Arguments  string    `json:"arguments,omitempty"`
	Output     string    `json:"output,omitempty"`
	ResponseID string    `json:"response_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Kind 返回消息类型，旧数据中缺省的类型视为 text。
func (m ChatMessage) Kind() string {
	if m.Type == "" {
		return MessageTypeText
	}
	return m.Type
}

// Chat 代表一次对话会话。
type Chat struct {
	ChatID      string    `json:"chat_id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastMessage string    `json:"last_message"`
}

// ChatDetail 是带消息列表的对话。
type ChatDetail struct {
	Chat
	Messages []ChatMessage `json:"messages"`
}

// ChatRequest 是 POST /api/chat 与 WebSocket 帧的请求体。
type ChatRequest struct {
	Message            ChatMessage   `json:"message"`
	ChatID             string        `json:"chat_id,omitempty"`
	PreviousResponseID string        `json:"previous_response_id,omitempty"`
	PreviousMessages   []ChatMessage `json:"previous_messages,omitempty"`
}

// ChatReply 是聊天接口的响应体。
type ChatReply struct {
	Message    ChatMessage `json:"message"`
	ResponseID string      `json:"response_id,omitempty"`
	ChatID     string      `json:"chat_id"`
}

// ChatExport 是导出到对象存储的对话记录。
type ChatExport struct {
	URL       string    `json:"url"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}
