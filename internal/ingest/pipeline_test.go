package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/notebook-backend/internal/data/repos"
	"github.com/yungbote/notebook-backend/internal/data/repos/testutil"
	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
	"github.com/yungbote/notebook-backend/internal/search"
)

type fakeEmbedder struct {
	dims   int
	err    error
	badIdx map[int]bool // indexes that get an empty vector
	calls  int
}

func (f *fakeEmbedder) Dims() int { return f.dims }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		if f.badIdx[i] {
			continue
		}
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}

type fakeChunkIndexer struct {
	indexed   []search.ChunkDoc
	deletes   []string // "<sessionID>/<documentID>"
	refreshes int
	bulkErr   error
	ops       []string
}

func (f *fakeChunkIndexer) BulkIndex(_ context.Context, docs []search.ChunkDoc) (int, error) {
	f.ops = append(f.ops, "bulk")
	if f.bulkErr != nil {
		return 0, f.bulkErr
	}
	f.indexed = append(f.indexed, docs...)
	return 0, nil
}

func (f *fakeChunkIndexer) DeleteByDocument(_ context.Context, sessionID, documentID string) error {
	f.ops = append(f.ops, "delete")
	f.deletes = append(f.deletes, sessionID+"/"+documentID)
	return nil
}

func (f *fakeChunkIndexer) Refresh(context.Context) error {
	f.refreshes++
	return nil
}

type pipelineFixture struct {
	pipeline  *Pipeline
	documents repos.DocumentRepo
	embedder  *fakeEmbedder
	indexer   *fakeChunkIndexer
	sessionID uuid.UUID
	statuses  []domain.DocumentStatus
}

func newPipelineFixture(t *testing.T, opts ChunkOptions) *pipelineFixture {
	t.Helper()
	db := testutil.DB(t)
	log := logger.NewNop()

	sessions := repos.NewSessionRepo(db, log)
	documents := repos.NewDocumentRepo(db, log)

	session := &domain.Session{Title: "test", Mode: domain.ModeResearch}
	if err := sessions.Create(dbctx.Context{Ctx: context.Background()}, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	f := &pipelineFixture{
		documents: documents,
		embedder:  &fakeEmbedder{dims: 4},
		indexer:   &fakeChunkIndexer{},
		sessionID: session.ID,
	}
	f.pipeline = NewPipeline(log, documents, f.embedder, f.indexer, NewRouter(opts), func(d *domain.Document) {
		f.statuses = append(f.statuses, d.Status)
	})
	return f
}

func (f *pipelineFixture) createDocument(t *testing.T, status domain.DocumentStatus) *domain.Document {
	t.Helper()
	doc := &domain.Document{
		SessionID: f.sessionID,
		FileName:  "notes.txt",
		MimeType:  "text/plain",
		Status:    status,
	}
	if err := f.documents.Create(dbctx.Context{Ctx: context.Background()}, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

func (f *pipelineFixture) reload(t *testing.T, id uuid.UUID) *domain.Document {
	t.Helper()
	doc, err := f.documents.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		t.Fatalf("reload document: %v", err)
	}
	return doc
}

func TestProcessDocumentHappyPath(t *testing.T) {
	f := newPipelineFixture(t, ChunkOptions{})
	doc := f.createDocument(t, domain.DocumentStatusPending)

	data := []byte("First paragraph of notes.\n\nSecond paragraph with more detail.")
	if err := f.pipeline.ProcessDocument(context.Background(), doc.ID, data); err != nil {
		t.Fatalf("process: %v", err)
	}

	got := f.reload(t, doc.ID)
	if got.Status != domain.DocumentStatusReady {
		t.Fatalf("expected Ready, got %s (%s)", got.Status, got.ProcessingError)
	}
	if got.ChunkCount != len(f.indexer.indexed) {
		t.Fatalf("chunk count %d does not match %d indexed docs", got.ChunkCount, len(f.indexer.indexed))
	}
	if len(f.indexer.indexed) == 0 {
		t.Fatalf("nothing indexed")
	}
	for _, d := range f.indexer.indexed {
		if d.SessionID != f.sessionID.String() {
			t.Fatalf("indexed chunk missing session scope: %q", d.SessionID)
		}
		if d.DocumentID != doc.ID.String() {
			t.Fatalf("indexed chunk has wrong document id: %q", d.DocumentID)
		}
		if len(d.TitleEmbedding) != 4 || len(d.ContentEmbedding) != 4 {
			t.Fatalf("chunk %d missing embeddings", d.ChunkIndex)
		}
	}
	if len(f.indexer.ops) < 2 || f.indexer.ops[0] != "delete" || f.indexer.ops[1] != "bulk" {
		t.Fatalf("expected delete before bulk, got %v", f.indexer.ops)
	}
	if f.indexer.refreshes != 1 {
		t.Fatalf("expected one refresh, got %d", f.indexer.refreshes)
	}
	if len(f.statuses) != 2 || f.statuses[0] != domain.DocumentStatusProcessing || f.statuses[1] != domain.DocumentStatusReady {
		t.Fatalf("status notifications: %v", f.statuses)
	}
	if f.embedder.calls != 2 {
		t.Fatalf("expected title and content embed calls, got %d", f.embedder.calls)
	}
}

func TestProcessDocumentReentryIsNoOp(t *testing.T) {
	f := newPipelineFixture(t, ChunkOptions{})
	doc := f.createDocument(t, domain.DocumentStatusReady)

	if err := f.pipeline.ProcessDocument(context.Background(), doc.ID, []byte("text")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(f.indexer.ops) != 0 {
		t.Fatalf("index touched for already-claimed document: %v", f.indexer.ops)
	}
	if got := f.reload(t, doc.ID); got.Status != domain.DocumentStatusReady {
		t.Fatalf("status changed to %s", got.Status)
	}
}

func TestProcessDocumentFailedRerunSucceeds(t *testing.T) {
	f := newPipelineFixture(t, ChunkOptions{})
	doc := f.createDocument(t, domain.DocumentStatusFailed)

	if err := f.pipeline.ProcessDocument(context.Background(), doc.ID, []byte("Recovered content.")); err != nil {
		t.Fatalf("process: %v", err)
	}
	got := f.reload(t, doc.ID)
	if got.Status != domain.DocumentStatusReady {
		t.Fatalf("expected Ready after rerun, got %s", got.Status)
	}
	if got.ProcessingError != "" {
		t.Fatalf("processing error not cleared: %q", got.ProcessingError)
	}
	if len(f.indexer.deletes) != 1 {
		t.Fatalf("rerun must clear previous index state, deletes: %v", f.indexer.deletes)
	}
}

func TestProcessDocumentEmbedFailureMarksFailed(t *testing.T) {
	f := newPipelineFixture(t, ChunkOptions{})
	f.embedder.err = fmt.Errorf("upstream unavailable")
	doc := f.createDocument(t, domain.DocumentStatusPending)

	err := f.pipeline.ProcessDocument(context.Background(), doc.ID, []byte("Some content."))
	if err == nil {
		t.Fatalf("expected error")
	}
	got := f.reload(t, doc.ID)
	if got.Status != domain.DocumentStatusFailed {
		t.Fatalf("expected Failed, got %s", got.Status)
	}
	if !strings.Contains(got.ProcessingError, "upstream unavailable") {
		t.Fatalf("reason not recorded: %q", got.ProcessingError)
	}
	if len(f.indexer.ops) != 0 {
		t.Fatalf("index touched despite embed failure: %v", f.indexer.ops)
	}
}

func TestProcessDocumentDropThresholdFails(t *testing.T) {
	// Small token budget forces one chunk per paragraph.
	f := newPipelineFixture(t, ChunkOptions{ChunkTokens: 10})
	f.embedder.badIdx = map[int]bool{0: true, 1: true}
	doc := f.createDocument(t, domain.DocumentStatusPending)

	var paras []string
	for i := 0; i < 12; i++ {
		paras = append(paras, fmt.Sprintf("Paragraph %d with enough words to stand alone here.", i))
	}
	err := f.pipeline.ProcessDocument(context.Background(), doc.ID, []byte(strings.Join(paras, "\n\n")))
	if err == nil {
		t.Fatalf("expected drop-threshold failure")
	}
	got := f.reload(t, doc.ID)
	if got.Status != domain.DocumentStatusFailed {
		t.Fatalf("expected Failed, got %s", got.Status)
	}
	if !strings.Contains(got.ProcessingError, "dropped") {
		t.Fatalf("reason not recorded: %q", got.ProcessingError)
	}
}

func TestProcessDocumentEmptyContentFails(t *testing.T) {
	f := newPipelineFixture(t, ChunkOptions{})
	doc := f.createDocument(t, domain.DocumentStatusPending)

	err := f.pipeline.ProcessDocument(context.Background(), doc.ID, []byte("   \n\n  "))
	if err == nil {
		t.Fatalf("expected error for empty content")
	}
	if got := f.reload(t, doc.ID); got.Status != domain.DocumentStatusFailed {
		t.Fatalf("expected Failed, got %s", got.Status)
	}
}
