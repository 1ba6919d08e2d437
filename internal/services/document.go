package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/notebook-backend/internal/data/repos"
	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/ingest"
	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// DefaultMaxUploadBytes caps a single document upload.
const DefaultMaxUploadBytes = 20 << 20

// ErrTooLarge rejects uploads over the configured size cap.
var ErrTooLarge = fmt.Errorf("document too large")

// DocumentService accepts uploads and hands them to the ingestion
// executor. The upload request returns as soon as the Pending row
// exists; processing happens on the worker pool.
type DocumentService struct {
	log       *logger.Logger
	sessions  repos.SessionRepo
	documents repos.DocumentRepo
	executor  *ingest.Executor
	maxBytes  int64
}

func NewDocumentService(
	log *logger.Logger,
	sessions repos.SessionRepo,
	documents repos.DocumentRepo,
	executor *ingest.Executor,
	maxBytes int64,
) *DocumentService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &DocumentService{
		log:       log.With("service", "DocumentService"),
		sessions:  sessions,
		documents: documents,
		executor:  executor,
		maxBytes:  maxBytes,
	}
}

func (s *DocumentService) Upload(ctx context.Context, sessionID uuid.UUID, fileName, mimeType string, data []byte) (*domain.Document, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.sessions.GetByID(dbc, sessionID); err != nil {
		if err == repos.ErrNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrTooLarge
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		fileName = "untitled"
	}

	doc := &domain.Document{
		SessionID: sessionID,
		FileName:  fileName,
		MimeType:  mimeType,
		Status:    domain.DocumentStatusPending,
	}
	if err := s.documents.Create(dbc, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	s.executor.Enqueue(doc.ID, data)
	observability.Current().IncCounter("documents_uploaded_total", "Accepted document uploads")
	s.log.Info("document accepted",
		"document_id", doc.ID, "session_id", sessionID, "file_name", fileName, "bytes", len(data))
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	doc, err := s.documents.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err == repos.ErrNotFound {
		return nil, fmt.Errorf("document not found")
	}
	return doc, err
}

func (s *DocumentService) List(ctx context.Context, sessionID uuid.UUID) ([]domain.Document, error) {
	return s.documents.ListBySession(dbctx.Context{Ctx: ctx}, sessionID)
}
