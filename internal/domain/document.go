package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is an uploaded file owned by one session. Status moves
// Pending -> Processing -> {Ready | Failed}; the Pending->Processing
// transition doubles as the ingestion re-entry lock.
type Document struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"session_id"`
	FileName        string         `gorm:"type:text;not null" json:"file_name"`
	MimeType        string         `gorm:"type:text;not null" json:"mime_type"`
	Status          DocumentStatus `gorm:"type:text;not null;default:'pending';index" json:"status"`
	ChunkCount      int            `gorm:"not null;default:0" json:"chunk_count"`
	ProcessingError string         `gorm:"type:text" json:"processing_error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (Document) TableName() string { return "documents" }

func (d *Document) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
