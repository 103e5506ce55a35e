package types

import "time"

// SessionStatus 会话状态
type SessionStatus string

const (
	SessionUploaded   SessionStatus = "uploaded"
	SessionProcessing SessionStatus = "processing"
	SessionProcessed  SessionStatus = "processed"
	SessionFailed     SessionStatus = "failed"
)

// ConversationTurn 一轮问答，只作为提示词上下文使用
type ConversationTurn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Timestamp time.Time `json:"timestamp"`
}

// Session 以不透明ID标识的分析会话
type Session struct {
	ID              string             `json:"session_id"`
	FilePath        string             `json:"file_path"`
	Filename        string             `json:"filename"`
	Username        string             `json:"username,omitempty"`
	Status          SessionStatus      `json:"status"`
	Processed       bool               `json:"processed"`
	VectorStorePath string             `json:"vector_store_path,omitempty"`
	History         []ConversationTurn `json:"conversation_history"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}
