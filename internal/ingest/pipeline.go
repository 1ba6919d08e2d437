package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/notebook-backend/internal/data/repos"
	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
	"github.com/yungbote/notebook-backend/internal/search"
)

// Embedder is the slice of the model gateway the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dims() int
}

// ChunkIndexer is the slice of the chunk index the pipeline needs.
type ChunkIndexer interface {
	BulkIndex(ctx context.Context, docs []search.ChunkDoc) (int, error)
	DeleteByDocument(ctx context.Context, sessionID, documentID string) error
	Refresh(ctx context.Context) error
}

// StatusNotifier publishes document status changes, best-effort.
type StatusNotifier func(doc *domain.Document)

// Pipeline is the sole writer of chunk index entries for a document:
// claim -> chunk -> embed -> index -> ready, with every failure path
// ending in a Failed status carrying the reason.
type Pipeline struct {
	log       *logger.Logger
	documents repos.DocumentRepo
	embedder  Embedder
	chunks    ChunkIndexer
	router    *Router
	notify    StatusNotifier
}

func NewPipeline(log *logger.Logger, documents repos.DocumentRepo, embedder Embedder, chunks ChunkIndexer, router *Router, notify StatusNotifier) *Pipeline {
	return &Pipeline{
		log:       log.With("service", "IngestPipeline"),
		documents: documents,
		embedder:  embedder,
		chunks:    chunks,
		router:    router,
		notify:    notify,
	}
}

// ProcessDocument ingests one document end to end. Idempotent per
// document: the Pending->Processing transition is the re-entry lock, so
// a concurrent or repeated invocation for a Ready/Processing document is
// a no-op. A Failed document may be reprocessed and has its previous
// index state replaced.
func (p *Pipeline) ProcessDocument(ctx context.Context, documentID uuid.UUID, data []byte) error {
	dbc := dbctx.Context{Ctx: ctx}
	log := p.log.With("document_id", documentID)

	doc, err := p.documents.GetByID(dbc, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	claimed, err := p.claim(dbc, documentID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Info("document already claimed, skipping",
			"status", doc.Status)
		return nil
	}
	doc.Status = domain.DocumentStatusProcessing
	p.publish(doc)

	if err := p.process(ctx, dbc, doc, data); err != nil {
		log.Warn("document processing failed", "error", err)
		if markErr := p.documents.MarkFailed(dbc, documentID, err.Error()); markErr != nil {
			log.Error("failed to record processing failure", "error", markErr)
		}
		doc.Status = domain.DocumentStatusFailed
		doc.ProcessingError = err.Error()
		p.publish(doc)
		observability.Current().IncCounter(
			"ingest_documents_failed_total", "Documents that ended in Failed status")
		return err
	}
	return nil
}

// FailDocument records a failure that happened before processing could
// start, such as the ingestion queue rejecting the task. The document
// lands in Failed with the reason set, so the client sees it and a
// re-upload retries.
func (p *Pipeline) FailDocument(ctx context.Context, documentID uuid.UUID, reason string) {
	dbc := dbctx.Context{Ctx: ctx}
	if err := p.documents.MarkFailed(dbc, documentID, reason); err != nil {
		p.log.Error("failed to record processing failure",
			"document_id", documentID, "error", err)
		return
	}
	if doc, err := p.documents.GetByID(dbc, documentID); err == nil {
		p.publish(doc)
	}
	observability.Current().IncCounter(
		"ingest_documents_failed_total", "Documents that ended in Failed status")
}

// claim flips Pending->Processing (or Failed->Processing for reruns)
// under the lock-contention retry policy.
func (p *Pipeline) claim(dbc dbctx.Context, documentID uuid.UUID) (bool, error) {
	var claimed bool
	err := repos.WithLockRetry(dbc.Ctx, 3, func() error {
		ok, err := p.documents.TransitionStatus(dbc, documentID, domain.DocumentStatusPending, domain.DocumentStatusProcessing, nil)
		if err != nil {
			return err
		}
		if !ok {
			ok, err = p.documents.TransitionStatus(dbc, documentID, domain.DocumentStatusFailed, domain.DocumentStatusProcessing, nil)
			if err != nil {
				return err
			}
		}
		claimed = ok
		return nil
	})
	return claimed, err
}

func (p *Pipeline) process(ctx context.Context, dbc dbctx.Context, doc *domain.Document, data []byte) error {
	strategy := p.router.Pick(doc.MimeType)
	res, err := strategy.Chunk(SourceDoc{FileName: doc.FileName, MimeType: doc.MimeType, Data: data})
	if err != nil {
		return fmt.Errorf("%s strategy: %w", strategy.Name(), err)
	}
	if res == nil || len(res.Chunks) == 0 {
		return fmt.Errorf("no extractable content")
	}

	title := DocumentTitle(res, doc.FileName)

	titleTexts := make([]string, len(res.Chunks))
	contentTexts := make([]string, len(res.Chunks))
	for i, c := range res.Chunks {
		breadcrumb := strings.Join(c.Breadcrumb, " > ")
		titleTexts[i] = strings.TrimSpace(title + " " + breadcrumb)
		contentTexts[i] = contentToEmbed(c)
	}

	var titleVecs, contentVecs [][]float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		titleVecs, err = p.embedder.Embed(gctx, titleTexts)
		return err
	})
	g.Go(func() error {
		var err error
		contentVecs, err = p.embedder.Embed(gctx, contentTexts)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(titleVecs) != len(res.Chunks) || len(contentVecs) != len(res.Chunks) {
		return fmt.Errorf("embedding count mismatch: %d titles, %d contents, %d chunks",
			len(titleVecs), len(contentVecs), len(res.Chunks))
	}

	dims := p.embedder.Dims()
	sessionID := doc.SessionID.String()
	docs := make([]search.ChunkDoc, 0, len(res.Chunks))
	dropped := 0
	for i, c := range res.Chunks {
		if len(titleVecs[i]) != dims || len(contentVecs[i]) != dims {
			dropped++
			continue
		}
		docs = append(docs, search.ChunkDoc{
			SessionID:          sessionID,
			DocumentID:         doc.ID.String(),
			FileName:           doc.FileName,
			ChunkIndex:         c.Index,
			Content:            c.Content,
			DocumentTitle:      title,
			SectionTitle:       strings.Join(c.Breadcrumb, " > "),
			SectionBreadcrumb:  c.Breadcrumb,
			AssociatedImageIDs: c.ImageIDs,
			TokenCount:         c.TokenCount,
			TitleEmbedding:     titleVecs[i],
			ContentEmbedding:   contentVecs[i],
		})
	}
	if len(docs) == 0 {
		return fmt.Errorf("all %d chunks dropped: empty embeddings", len(res.Chunks))
	}
	if len(res.Chunks) >= 10 && dropped*10 > len(res.Chunks) {
		return fmt.Errorf("%d/%d chunks dropped: embedding failures over threshold", dropped, len(res.Chunks))
	}

	// Replace any prior index state for this document before writing.
	if err := p.chunks.DeleteByDocument(ctx, sessionID, doc.ID.String()); err != nil {
		return fmt.Errorf("clear previous chunks: %w", err)
	}
	if _, err := p.chunks.BulkIndex(ctx, docs); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	if err := p.chunks.Refresh(ctx); err != nil {
		p.log.Warn("post-ingest refresh failed", "error", err)
	}

	var ready bool
	err = repos.WithLockRetry(dbc.Ctx, 3, func() error {
		var err error
		ready, err = p.documents.MarkReady(dbc, doc.ID, len(docs))
		return err
	})
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	if !ready {
		return fmt.Errorf("document left processing state unexpectedly")
	}

	doc.Status = domain.DocumentStatusReady
	doc.ChunkCount = len(docs)
	p.publish(doc)
	observability.Current().IncCounter(
		"ingest_documents_ready_total", "Documents successfully ingested")
	observability.Current().AddCounter(
		"ingest_chunks_indexed_total", "Chunks written to the chunk index", float64(len(docs)))
	return nil
}

func (p *Pipeline) publish(doc *domain.Document) {
	if p.notify != nil {
		p.notify(doc)
	}
}

// contentToEmbed appends image markers so figures near a chunk influence
// its embedding.
func contentToEmbed(c Chunk) string {
	if len(c.ImageIDs) == 0 {
		return c.Content
	}
	var sb strings.Builder
	sb.WriteString(c.Content)
	sb.WriteString("\n\n")
	for i, id := range c.ImageIDs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("[Image: " + id + "]")
	}
	return sb.String()
}
