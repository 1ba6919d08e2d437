package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MemoryType string

const (
	MemoryTypeFact       MemoryType = "fact"
	MemoryTypePreference MemoryType = "preference"
	MemoryTypeInsight    MemoryType = "insight"
)

// Memory is one extracted long-lived fact about the conversation.
// Sessions hold at most a configured cap; overflow evicts
// lowest-importance-then-oldest.
type Memory struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"session_id"`
	MemoryContent  string     `gorm:"type:text;not null" json:"memory_content"`
	MemoryType     MemoryType `gorm:"type:text;not null;default:'fact'" json:"memory_type"`
	Importance     float64    `gorm:"not null;default:0" json:"importance"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
}

func (Memory) TableName() string { return "memories" }

func (m *Memory) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.LastAccessedAt.IsZero() {
		m.LastAccessedAt = time.Now().UTC()
	}
	return nil
}
