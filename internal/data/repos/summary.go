package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

type SummaryRepo interface {
	Create(dbc dbctx.Context, s *domain.ChatSummary) error

	// Latest returns the most recent summary, or nil when none exist.
	Latest(dbc dbctx.Context, sessionID uuid.UUID) (*domain.ChatSummary, error)

	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]domain.ChatSummary, error)
	DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error
}

type summaryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSummaryRepo(db *gorm.DB, log *logger.Logger) SummaryRepo {
	return &summaryRepo{db: db, log: log.With("repo", "SummaryRepo")}
}

func (r *summaryRepo) Create(dbc dbctx.Context, s *domain.ChatSummary) error {
	return dbc.DB(r.db).Create(s).Error
}

func (r *summaryRepo) Latest(dbc dbctx.Context, sessionID uuid.UUID) (*domain.ChatSummary, error) {
	var s domain.ChatSummary
	err := dbc.DB(r.db).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		First(&s).Error
	if err != nil {
		if translate(err) == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *summaryRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]domain.ChatSummary, error) {
	var out []domain.ChatSummary
	err := dbc.DB(r.db).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *summaryRepo) DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error {
	return dbc.DB(r.db).Delete(&domain.ChatSummary{}, "session_id = ?", sessionID).Error
}
