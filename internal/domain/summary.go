package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatSummary is the compacted form of a contiguous batch of messages.
// Never mutated after creation.
type ChatSummary struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID          uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	SummaryContent     string    `gorm:"type:text;not null" json:"summary_content"`
	FromTimestamp      time.Time `json:"from_timestamp"`
	ToTimestamp        time.Time `json:"to_timestamp"`
	MessageCount       int       `gorm:"not null" json:"message_count"`
	OriginalTokenCount int       `gorm:"not null" json:"original_token_count"`
	TokenCount         int       `gorm:"not null" json:"token_count"`
	CreatedAt          time.Time `json:"created_at"`
}

func (ChatSummary) TableName() string { return "chat_summaries" }

func (s *ChatSummary) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
