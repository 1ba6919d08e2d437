package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Mode selects the retrieval/answering posture of a session.
type Mode string

const (
	ModeExploring Mode = "exploring"
	ModeResearch  Mode = "research"
	ModeLearning  Mode = "learning"
)

// TopK is the per-mode final result count.
func (m Mode) TopK() int {
	switch m {
	case ModeExploring:
		return 8
	case ModeResearch:
		return 4
	case ModeLearning:
		return 6
	default:
		return 6
	}
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeExploring, ModeResearch, ModeLearning:
		return true
	}
	return false
}

// Session owns a document corpus, a transcript, summaries and memories.
// Deleting it is the sole trigger that purges all secondary indices.
type Session struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"type:text" json:"title"`
	Mode      Mode      `gorm:"type:text;not null;default:'exploring'" json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }

func (s *Session) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
