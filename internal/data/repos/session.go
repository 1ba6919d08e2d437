package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

type SessionRepo interface {
	Create(dbc dbctx.Context, s *domain.Session) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Session, error)
	List(dbc dbctx.Context, limit int) ([]domain.Session, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, log *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: log.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(dbc dbctx.Context, s *domain.Session) error {
	return dbc.DB(r.db).Create(s).Error
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Session, error) {
	var s domain.Session
	if err := dbc.DB(r.db).First(&s, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *sessionRepo) List(dbc dbctx.Context, limit int) ([]domain.Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []domain.Session
	err := dbc.DB(r.db).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *sessionRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return dbc.DB(r.db).Delete(&domain.Session{}, "id = ?", id).Error
}
