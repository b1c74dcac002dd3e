package models

import "time"

// Chat message types and their length caps.
const (
	MessageTypeText  = "text"
	MessageTypeEmoji = "emoji"

	MaxTextLength  = 100
	MaxEmojiLength = 10
)

// ChatMessage is immutable once created, except for deletion by its
// author or the session's curator.
type ChatMessage struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string    `gorm:"type:uuid;index" json:"session_id"`
	UserID    string    `gorm:"type:uuid;index" json:"user_id"`
	Username  string    `gorm:"type:varchar(255)" json:"username"`
	Type      string    `gorm:"type:varchar(10)" json:"type"`
	Content   string    `gorm:"type:varchar(100)" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
