package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

type MemoryRepo interface {
	Create(dbc dbctx.Context, m *domain.Memory) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Memory, error)
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]domain.Memory, error)
	Count(dbc dbctx.Context, sessionID uuid.UUID) (int64, error)

	UpdateImportance(dbc dbctx.Context, id uuid.UUID, importance float64) error
	TouchAccessed(dbc dbctx.Context, ids []uuid.UUID) error

	// ListEvictable returns memories ordered lowest-importance-first,
	// ties broken by oldest createdAt.
	ListEvictable(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]domain.Memory, error)

	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
	DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error
}

type memoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMemoryRepo(db *gorm.DB, log *logger.Logger) MemoryRepo {
	return &memoryRepo{db: db, log: log.With("repo", "MemoryRepo")}
}

func (r *memoryRepo) Create(dbc dbctx.Context, m *domain.Memory) error {
	return dbc.DB(r.db).Create(m).Error
}

func (r *memoryRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.Memory, error) {
	var m domain.Memory
	if err := dbc.DB(r.db).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *memoryRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]domain.Memory, error) {
	var out []domain.Memory
	err := dbc.DB(r.db).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *memoryRepo) Count(dbc dbctx.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&domain.Memory{}).
		Where("session_id = ?", sessionID).
		Count(&n).Error
	return n, err
}

func (r *memoryRepo) UpdateImportance(dbc dbctx.Context, id uuid.UUID, importance float64) error {
	return dbc.DB(r.db).
		Model(&domain.Memory{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"importance":       importance,
			"last_accessed_at": time.Now().UTC(),
		}).Error
}

func (r *memoryRepo) TouchAccessed(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return dbc.DB(r.db).
		Model(&domain.Memory{}).
		Where("id IN ?", ids).
		Update("last_accessed_at", time.Now().UTC()).Error
}

func (r *memoryRepo) ListEvictable(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]domain.Memory, error) {
	if limit <= 0 {
		limit = 1
	}
	var out []domain.Memory
	err := dbc.DB(r.db).
		Where("session_id = ?", sessionID).
		Order("importance ASC, created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *memoryRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return dbc.DB(r.db).Delete(&domain.Memory{}, "id IN ?", ids).Error
}

func (r *memoryRepo) DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error {
	return dbc.DB(r.db).Delete(&domain.Memory{}, "session_id = ?", sessionID).Error
}
