package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/notebook-backend/internal/data/repos"
	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// SessionIndexCleaner is the slice of a search index that session
// deletion needs: purge everything under a sessionId, then refresh so
// the deletion is visible before the relational rows go away.
type SessionIndexCleaner interface {
	DeleteBySession(ctx context.Context, sessionID string) error
	Refresh(ctx context.Context) error
}

// SessionService manages session lifecycle. Deletion is the only
// operation that touches every store the session owns.
type SessionService struct {
	log     *logger.Logger
	db      *gorm.DB
	repos   *repos.Repos
	indices []SessionIndexCleaner
}

func NewSessionService(log *logger.Logger, db *gorm.DB, r *repos.Repos, indices ...SessionIndexCleaner) *SessionService {
	return &SessionService{
		log:     log.With("service", "SessionService"),
		db:      db,
		repos:   r,
		indices: indices,
	}
}

func (s *SessionService) Create(ctx context.Context, title string, mode domain.Mode) (*domain.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled session"
	}
	if mode == "" {
		mode = domain.ModeExploring
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid mode %q", mode)
	}
	session := &domain.Session{Title: title, Mode: mode}
	if err := s.repos.Sessions.Create(dbctx.Context{Ctx: ctx}, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	session, err := s.repos.Sessions.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err == repos.ErrNotFound {
		return nil, ErrSessionNotFound
	}
	return session, err
}

func (s *SessionService) List(ctx context.Context, limit int) ([]domain.Session, error) {
	return s.repos.Sessions.List(dbctx.Context{Ctx: ctx}, limit)
}

// Delete purges the session everywhere. Index deletions run first so a
// crash mid-way leaves relational rows that make the delete retryable;
// orphaned index entries would be unreachable garbage instead. The call
// is idempotent: a second delete of the same id is a no-op.
func (s *SessionService) Delete(ctx context.Context, id uuid.UUID) error {
	log := s.log.With("session_id", id)

	for _, idx := range s.indices {
		if err := idx.DeleteBySession(ctx, id.String()); err != nil {
			return fmt.Errorf("purge index: %w", err)
		}
		if err := idx.Refresh(ctx); err != nil {
			log.Warn("index refresh after purge failed", "error", err)
		}
	}

	err := repos.WithLockRetry(ctx, 3, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			if err := s.repos.Messages.DeleteBySession(dbc, id); err != nil {
				return err
			}
			if err := s.repos.Summaries.DeleteBySession(dbc, id); err != nil {
				return err
			}
			if err := s.repos.Memories.DeleteBySession(dbc, id); err != nil {
				return err
			}
			if err := s.repos.Documents.DeleteBySession(dbc, id); err != nil {
				return err
			}
			return s.repos.Sessions.Delete(dbc, id)
		})
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	observability.Current().IncCounter("sessions_deleted_total", "Sessions fully purged")
	log.Info("session deleted")
	return nil
}
