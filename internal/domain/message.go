package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ChatMessage is one transcript entry. Assistant messages carry
// RetrievedContext: the JSON array of document IDs that backed the
// response, read back by the reformulator for follow-up anchoring.
type ChatMessage struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_messages_session_created" json:"session_id"`
	Role             MessageRole    `gorm:"type:text;not null" json:"role"`
	Content          string         `gorm:"type:text;not null" json:"content"`
	TokenCount       int            `gorm:"not null;default:0" json:"token_count"`
	IsCompacted      bool           `gorm:"not null;default:false;index" json:"is_compacted"`
	SummaryRef       *uuid.UUID     `gorm:"type:uuid" json:"summary_ref,omitempty"`
	RetrievedContext datatypes.JSON `gorm:"type:jsonb" json:"retrieved_context,omitempty"`
	CreatedAt        time.Time      `gorm:"index:idx_messages_session_created" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

func (m *ChatMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
