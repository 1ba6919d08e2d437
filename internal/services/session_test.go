package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/notebook-backend/internal/data/repos"
	"github.com/yungbote/notebook-backend/internal/data/repos/testutil"
	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// recordingCleaner checks that the relational rows are still present
// when the index purge runs, which pins the indices-first ordering.
type recordingCleaner struct {
	t         *testing.T
	db        *gorm.DB
	purged    []string
	refreshes int
}

func (c *recordingCleaner) DeleteBySession(_ context.Context, sessionID string) error {
	var count int64
	if err := c.db.Model(&domain.Session{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
		c.t.Fatalf("count sessions: %v", err)
	}
	if count != 1 {
		c.t.Fatalf("index purge must run before the relational delete")
	}
	c.purged = append(c.purged, sessionID)
	return nil
}

func (c *recordingCleaner) Refresh(_ context.Context) error {
	c.refreshes++
	return nil
}

type noopCleaner struct{}

func (noopCleaner) DeleteBySession(_ context.Context, _ string) error { return nil }
func (noopCleaner) Refresh(_ context.Context) error                   { return nil }

type sessionFixture struct {
	svc     *SessionService
	repos   repos.Repos
	cleaner *recordingCleaner
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	db := testutil.DB(t)
	log := logger.NewNop()
	reposet := repos.New(db, log)
	cleaner := &recordingCleaner{t: t, db: db}
	return &sessionFixture{
		svc:     NewSessionService(log, db, &reposet, cleaner),
		repos:   reposet,
		cleaner: cleaner,
	}
}

func TestSessionCreateValidatesMode(t *testing.T) {
	f := newSessionFixture(t)

	s, err := f.svc.Create(context.Background(), "notes", domain.ModeResearch)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Mode != domain.ModeResearch || s.ID == uuid.Nil {
		t.Fatalf("session: %+v", s)
	}

	if s, err = f.svc.Create(context.Background(), "", ""); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if s.Mode != domain.ModeExploring || s.Title == "" {
		t.Fatalf("defaults not applied: %+v", s)
	}

	if _, err := f.svc.Create(context.Background(), "x", "turbo"); err == nil {
		t.Fatalf("invalid mode must be rejected")
	}
}

func TestSessionDeletePurgesEverythingAndIsIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	session, err := f.svc.Create(ctx, "doomed", domain.ModeExploring)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := session.ID
	if err := f.repos.Documents.Create(dbc, &domain.Document{SessionID: id, FileName: "a.md", MimeType: "text/markdown"}); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	if err := f.repos.Messages.Create(dbc, &domain.ChatMessage{SessionID: id, Role: domain.RoleUser, Content: "q"}); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	if err := f.repos.Summaries.Create(dbc, &domain.ChatSummary{SessionID: id, SummaryContent: "s"}); err != nil {
		t.Fatalf("seed summary: %v", err)
	}
	if err := f.repos.Memories.Create(dbc, &domain.Memory{SessionID: id, MemoryContent: "m", MemoryType: domain.MemoryTypeFact, Importance: 0.5}); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	if err := f.svc.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(f.cleaner.purged) != 1 || f.cleaner.purged[0] != id.String() {
		t.Fatalf("index purge calls: %v", f.cleaner.purged)
	}
	if f.cleaner.refreshes != 1 {
		t.Fatalf("expected one refresh, got %d", f.cleaner.refreshes)
	}

	if _, err := f.repos.Sessions.GetByID(dbc, id); err != repos.ErrNotFound {
		t.Fatalf("session must be gone, err=%v", err)
	}
	docs, _ := f.repos.Documents.ListBySession(dbc, id)
	if len(docs) != 0 {
		t.Fatalf("documents not purged: %d", len(docs))
	}
	msgs, _ := f.repos.Messages.ListRecent(dbc, id, 10)
	if len(msgs) != 0 {
		t.Fatalf("messages not purged: %d", len(msgs))
	}
	sums, _ := f.repos.Summaries.ListBySession(dbc, id)
	if len(sums) != 0 {
		t.Fatalf("summaries not purged: %d", len(sums))
	}
	memCount, _ := f.repos.Memories.Count(dbc, id)
	if memCount != 0 {
		t.Fatalf("memories not purged: %d", memCount)
	}

	// Second delete is a no-op, not an error. Swap in a cleaner without
	// the presence assertion, since the session is already gone.
	f.svc.indices = []SessionIndexCleaner{noopCleaner{}}
	if err := f.svc.Delete(ctx, id); err != nil {
		t.Fatalf("repeat delete must be idempotent: %v", err)
	}
}
