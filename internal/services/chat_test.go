package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/notebook-backend/internal/data/repos"
	"github.com/yungbote/notebook-backend/internal/data/repos/testutil"
	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/jobs/worker"
	"github.com/yungbote/notebook-backend/internal/modules/chat/steps"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
	"github.com/yungbote/notebook-backend/internal/platform/openai"
	"github.com/yungbote/notebook-backend/internal/search"
)

type fakeModel struct {
	streamChatFn func(ctx context.Context, turns []openai.Turn, onDelta func(string)) (string, error)
}

func (f *fakeModel) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func (f *fakeModel) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return out, nil
}

func (f *fakeModel) GenerateText(_ context.Context, _, _ string) (string, error) {
	return "generated", nil
}

func (f *fakeModel) GenerateJSON(_ context.Context, _, _, _ string, _ map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func (f *fakeModel) StreamChat(ctx context.Context, turns []openai.Turn, onDelta func(string)) (string, error) {
	if f.streamChatFn != nil {
		return f.streamChatFn(ctx, turns, onDelta)
	}
	onDelta("Hello ")
	onDelta("world.")
	return "Hello world.", nil
}

type fakeChunkSearcher struct {
	hits []search.Hit[search.ChunkDoc]
}

func (f *fakeChunkSearcher) VectorSearch(_ context.Context, _ search.VectorQuery) ([]search.Hit[search.ChunkDoc], error) {
	return f.hits, nil
}

func (f *fakeChunkSearcher) KeywordSearch(_ context.Context, _ search.KeywordQuery) ([]search.Hit[search.ChunkDoc], error) {
	return f.hits, nil
}

type fakeMessageSearcher struct{}

func (f *fakeMessageSearcher) VectorSearch(_ context.Context, _ search.VectorQuery) ([]search.Hit[search.MessageDoc], error) {
	return nil, nil
}

func (f *fakeMessageSearcher) KeywordSearch(_ context.Context, _ search.KeywordQuery) ([]search.Hit[search.MessageDoc], error) {
	return nil, nil
}

type fakeMemoryStore struct{}

func (f *fakeMemoryStore) VectorSearch(_ context.Context, _ search.VectorQuery) ([]search.Hit[search.MemoryDoc], error) {
	return nil, nil
}

func (f *fakeMemoryStore) KeywordSearch(_ context.Context, _ search.KeywordQuery) ([]search.Hit[search.MemoryDoc], error) {
	return nil, nil
}

func (f *fakeMemoryStore) BulkIndex(_ context.Context, _ []search.MemoryDoc) (int, error) {
	return 0, nil
}

func (f *fakeMemoryStore) DeleteByIDs(_ context.Context, _ string, _ []string) error {
	return nil
}

type fakeMessageIndex struct {
	indexed chan []search.MessageDoc
}

func (f *fakeMessageIndex) BulkIndex(_ context.Context, docs []search.MessageDoc) (int, error) {
	f.indexed <- docs
	return 0, nil
}

type chatFixture struct {
	svc       *ChatService
	db        *gorm.DB
	repos     repos.Repos
	model     *fakeModel
	chunks    *fakeChunkSearcher
	msgIndex  *fakeMessageIndex
	sessionID uuid.UUID
}

func chunkHit(sessionID, docID string, idx int, content string) search.Hit[search.ChunkDoc] {
	doc := search.ChunkDoc{
		SessionID:  sessionID,
		DocumentID: docID,
		FileName:   docID + ".md",
		ChunkIndex: idx,
		Content:    content,
	}
	return search.Hit[search.ChunkDoc]{ID: doc.DocID(), Score: 1, Doc: doc}
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := testutil.DB(t)
	log := logger.NewNop()
	reposet := repos.New(db, log)

	session := &domain.Session{Title: "t", Mode: domain.ModeLearning}
	if err := reposet.Sessions.Create(dbctx.Context{Ctx: context.Background()}, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	f := &chatFixture{
		db:        db,
		repos:     reposet,
		model:     &fakeModel{},
		chunks:    &fakeChunkSearcher{},
		msgIndex:  &fakeMessageIndex{indexed: make(chan []search.MessageDoc, 4)},
		sessionID: session.ID,
	}
	f.chunks.hits = []search.Hit[search.ChunkDoc]{
		chunkHit(session.ID.String(), "d1", 0, "alpha content"),
		chunkHit(session.ID.String(), "d2", 0, "beta content"),
	}

	rerank := steps.NewRerankStack(log, nil, steps.RerankConfig{DiversityEnabled: true})
	retriever := steps.NewRetriever(log, f.model, f.chunks, rerank, steps.RetrievalConfig{})
	reformulator := steps.NewReformulator(log, f.model, reposet.Messages, &fakeMessageSearcher{}, steps.ReformulationConfig{})
	memories := steps.NewMemories(log, f.model, reposet.Memories, &fakeMemoryStore{}, steps.MemoryConfig{})
	compactor := steps.NewCompactor(log, db, f.model, reposet.Messages, reposet.Summaries, steps.CompactionConfig{})
	verifier := steps.NewVerifier(log, f.model, steps.VerificationConfig{})

	pool := worker.NewPool(log, "chat-test", 1, 16)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	f.svc = NewChatService(log,
		reposet.Sessions, reposet.Messages, reposet.Summaries,
		f.model, reformulator, retriever, memories, compactor, verifier,
		f.msgIndex, pool, ChatConfig{}, steps.VerificationConfig{})
	return f
}

func collect(t *testing.T, events <-chan steps.Event) []steps.Event {
	t.Helper()
	var out []steps.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("stream did not close; got %d events", len(out))
		}
	}
}

func TestStreamChatEventOrderAndLineage(t *testing.T) {
	f := newChatFixture(t)

	events, err := f.svc.StreamChat(context.Background(), f.sessionID, "what is alpha?")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	got := collect(t, events)

	var tokens, citations int
	lastToken, firstCitation := -1, len(got)
	for i, ev := range got {
		switch ev.Type {
		case steps.EventToken:
			tokens++
			lastToken = i
		case steps.EventCitation:
			citations++
			if i < firstCitation {
				firstCitation = i
			}
		case steps.EventError:
			t.Fatalf("unexpected error event: %+v", ev.Error)
		}
	}
	if tokens != 2 {
		t.Fatalf("expected 2 token events, got %d", tokens)
	}
	if citations != 2 {
		t.Fatalf("expected one citation per result, got %d", citations)
	}
	if lastToken > firstCitation {
		t.Fatalf("tokens must precede citations")
	}
	last := got[len(got)-1]
	if last.Type != steps.EventDone || last.Done == nil {
		t.Fatalf("stream must end with done, got %+v", last)
	}

	// Both turns persisted; the assistant message carries its source
	// document lineage.
	dbc := dbctx.Context{Ctx: context.Background()}
	assistant, err := f.repos.Messages.GetByID(dbc, last.Done.MessageID)
	if err != nil {
		t.Fatalf("load assistant message: %v", err)
	}
	if assistant.Content != "Hello world." || assistant.Role != domain.RoleAssistant {
		t.Fatalf("assistant message: %+v", assistant)
	}
	var lineage []string
	if err := json.Unmarshal(assistant.RetrievedContext, &lineage); err != nil {
		t.Fatalf("lineage not JSON: %v", err)
	}
	if len(lineage) != 2 || lineage[0] != "d1" || lineage[1] != "d2" {
		t.Fatalf("lineage: %v", lineage)
	}

	// Background maintenance indexes both messages with embeddings.
	select {
	case docs := <-f.msgIndex.indexed:
		if len(docs) != 2 {
			t.Fatalf("expected 2 indexed messages, got %d", len(docs))
		}
		for _, d := range docs {
			if len(d.Embedding) == 0 || d.Timestamp == 0 {
				t.Fatalf("indexed message incomplete: %+v", d)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("messages never indexed")
	}
}

func TestStreamChatGeneratorErrorEmitsErrorOnly(t *testing.T) {
	f := newChatFixture(t)
	f.model.streamChatFn = func(_ context.Context, _ []openai.Turn, _ func(string)) (string, error) {
		return "", fmt.Errorf("upstream unavailable")
	}

	events, err := f.svc.StreamChat(context.Background(), f.sessionID, "q")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	got := collect(t, events)
	if len(got) != 1 || got[0].Type != steps.EventError {
		t.Fatalf("expected exactly one error event, got %+v", got)
	}
	if got[0].Error.ErrorID == "" {
		t.Fatalf("error event missing id")
	}
	if strings.Contains(got[0].Error.Message, "upstream") {
		t.Fatalf("internal cause must not leak to the client: %q", got[0].Error.Message)
	}

	// The user message stays; no assistant message is written.
	msgs, err := f.repos.Messages.ListRecent(dbctx.Context{Ctx: context.Background()}, f.sessionID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != domain.RoleUser {
		t.Fatalf("expected only the user message, got %+v", msgs)
	}
}

func TestStreamChatUnknownSession(t *testing.T) {
	f := newChatFixture(t)
	if _, err := f.svc.StreamChat(context.Background(), uuid.New(), "q"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStreamChatRejectsEmptyMessage(t *testing.T) {
	f := newChatFixture(t)
	if _, err := f.svc.StreamChat(context.Background(), f.sessionID, "   "); err == nil {
		t.Fatalf("blank message must be rejected")
	}
}

func TestListMessagesChronological(t *testing.T) {
	f := newChatFixture(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	base := time.Now().Add(-time.Hour).UTC()
	for i := 0; i < 3; i++ {
		m := &domain.ChatMessage{
			SessionID: f.sessionID,
			Role:      domain.RoleUser,
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := f.repos.Messages.Create(dbc, m); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	msgs, err := f.svc.ListMessages(context.Background(), f.sessionID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "m1" || msgs[1].Content != "m2" {
		t.Fatalf("expected the newest two in chronological order, got %+v", msgs)
	}

	if _, err := f.svc.ListMessages(context.Background(), uuid.New(), 10); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
