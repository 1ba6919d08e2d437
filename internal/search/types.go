package search

import (
	"strconv"
	"strings"
)

// ChunkDoc is the indexed form of one document chunk.
type ChunkDoc struct {
	SessionID          string    `json:"sessionId"`
	DocumentID         string    `json:"documentId"`
	FileName           string    `json:"fileName"`
	ChunkIndex         int       `json:"chunkIndex"`
	Content            string    `json:"content"`
	DocumentTitle      string    `json:"documentTitle"`
	SectionTitle       string    `json:"sectionTitle,omitempty"`
	SectionBreadcrumb  []string  `json:"sectionBreadcrumb,omitempty"`
	AssociatedImageIDs []string  `json:"associatedImageIds,omitempty"`
	TokenCount         int       `json:"tokenCount"`
	TitleEmbedding     []float32 `json:"titleEmbedding,omitempty"`
	ContentEmbedding   []float32 `json:"contentEmbedding,omitempty"`
}

// DocID is "<documentId>:<chunkIndex>", unique within a session's corpus.
func (d ChunkDoc) DocID() string {
	return d.DocumentID + ":" + strconv.Itoa(d.ChunkIndex)
}

// Breadcrumb renders the section path for prompts and keyword boosting.
func (d ChunkDoc) Breadcrumb() string {
	return strings.Join(d.SectionBreadcrumb, " > ")
}

// MessageDoc is the indexed form of one chat message.
type MessageDoc struct {
	SessionID string    `json:"sessionId"`
	MessageID string    `json:"messageId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp int64     `json:"timestamp"` // epoch millis
	Embedding []float32 `json:"embedding,omitempty"`
}

func (d MessageDoc) DocID() string { return d.MessageID }

// MemoryDoc is the indexed form of one session memory.
type MemoryDoc struct {
	SessionID  string    `json:"sessionId"`
	MemoryID   string    `json:"memoryId"`
	MemoryType string    `json:"memoryType"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

func (d MemoryDoc) DocID() string { return d.MemoryID }
