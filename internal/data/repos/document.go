package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

type DocumentRepo interface {
	Create(dbc dbctx.Context, d *domain.Document) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Document, error)
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]domain.Document, error)

	// TransitionStatus flips status from->to in a single guarded update.
	// Returns false when the document was not in the expected status,
	// which is how ingestion re-entry is fenced.
	TransitionStatus(dbc dbctx.Context, id uuid.UUID, from, to domain.DocumentStatus, extra map[string]any) (bool, error)

	MarkReady(dbc dbctx.Context, id uuid.UUID, chunkCount int) (bool, error)
	MarkFailed(dbc dbctx.Context, id uuid.UUID, reason string) error
	DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, log *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: log.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(dbc dbctx.Context, d *domain.Document) error {
	return dbc.DB(r.db).Create(d).Error
}

func (r *documentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Document, error) {
	var d domain.Document
	if err := dbc.DB(r.db).First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *documentRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]domain.Document, error) {
	var out []domain.Document
	err := dbc.DB(r.db).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *documentRepo) TransitionStatus(dbc dbctx.Context, id uuid.UUID, from, to domain.DocumentStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := dbc.DB(r.db).
		Model(&domain.Document{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *documentRepo) MarkReady(dbc dbctx.Context, id uuid.UUID, chunkCount int) (bool, error) {
	return r.TransitionStatus(dbc, id, domain.DocumentStatusProcessing, domain.DocumentStatusReady, map[string]any{
		"chunk_count":      chunkCount,
		"processing_error": "",
	})
}

func (r *documentRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, reason string) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return dbc.DB(r.db).
		Model(&domain.Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":           domain.DocumentStatusFailed,
			"processing_error": reason,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *documentRepo) DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error {
	return dbc.DB(r.db).Delete(&domain.Document{}, "session_id = ?", sessionID).Error
}
