package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

type ChatMessageRepo interface {
	Create(dbc dbctx.Context, m *domain.ChatMessage) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ChatMessage, error)

	// ListRecent returns the newest messages first.
	ListRecent(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]domain.ChatMessage, error)

	// ListWindow returns the newest non-compacted messages in
	// chronological order (the sliding window handed to the generator).
	ListWindow(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]domain.ChatMessage, error)

	// ListNonCompactedAsc returns every non-compacted message oldest first.
	ListNonCompactedAsc(dbc dbctx.Context, sessionID uuid.UUID) ([]domain.ChatMessage, error)

	CountNonCompacted(dbc dbctx.Context, sessionID uuid.UUID) (int64, error)
	SumNonCompactedTokens(dbc dbctx.Context, sessionID uuid.UUID) (int64, error)

	// LatestAssistant returns the newest assistant message, or nil.
	LatestAssistant(dbc dbctx.Context, sessionID uuid.UUID) (*domain.ChatMessage, error)

	MarkCompacted(dbc dbctx.Context, ids []uuid.UUID, summaryID uuid.UUID) error
	DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, log *logger.Logger) ChatMessageRepo {
	return &chatMessageRepo{db: db, log: log.With("repo", "ChatMessageRepo")}
}

func (r *chatMessageRepo) Create(dbc dbctx.Context, m *domain.ChatMessage) error {
	return dbc.DB(r.db).Create(m).Error
}

func (r *chatMessageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := dbc.DB(r.db).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *chatMessageRepo) ListRecent(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.ChatMessage
	err := dbc.DB(r.db).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *chatMessageRepo) ListWindow(dbc dbctx.Context, sessionID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []domain.ChatMessage
	err := dbc.DB(r.db).
		Where("session_id = ? AND is_compacted = ?", sessionID, false).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	// Reverse to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *chatMessageRepo) ListNonCompactedAsc(dbc dbctx.Context, sessionID uuid.UUID) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := dbc.DB(r.db).
		Where("session_id = ? AND is_compacted = ?", sessionID, false).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *chatMessageRepo) CountNonCompacted(dbc dbctx.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := dbc.DB(r.db).
		Model(&domain.ChatMessage{}).
		Where("session_id = ? AND is_compacted = ?", sessionID, false).
		Count(&n).Error
	return n, err
}

func (r *chatMessageRepo) SumNonCompactedTokens(dbc dbctx.Context, sessionID uuid.UUID) (int64, error) {
	var sum *int64
	err := dbc.DB(r.db).
		Model(&domain.ChatMessage{}).
		Where("session_id = ? AND is_compacted = ?", sessionID, false).
		Select("SUM(token_count)").
		Scan(&sum).Error
	if err != nil || sum == nil {
		return 0, err
	}
	return *sum, nil
}

func (r *chatMessageRepo) LatestAssistant(dbc dbctx.Context, sessionID uuid.UUID) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	err := dbc.DB(r.db).
		Where("session_id = ? AND role = ?", sessionID, domain.RoleAssistant).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if translate(err) == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *chatMessageRepo) MarkCompacted(dbc dbctx.Context, ids []uuid.UUID, summaryID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return dbc.DB(r.db).
		Model(&domain.ChatMessage{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"is_compacted": true,
			"summary_ref":  summaryID,
		}).Error
}

func (r *chatMessageRepo) DeleteBySession(dbc dbctx.Context, sessionID uuid.UUID) error {
	return dbc.DB(r.db).Delete(&domain.ChatMessage{}, "session_id = ?", sessionID).Error
}
