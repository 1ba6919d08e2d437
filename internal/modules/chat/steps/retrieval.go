package steps

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
	"github.com/yungbote/notebook-backend/internal/search"
)

// Retriever is the session-scoped hybrid retriever: dense and lexical
// legs in parallel, fused by reciprocal rank fusion, optionally anchored
// to the documents behind the previous answer, then reranked.
type Retriever struct {
	log    *logger.Logger
	model  Model
	chunks ChunkSearcher
	rerank *RerankStack
	cfg    RetrievalConfig
}

func NewRetriever(log *logger.Logger, model Model, chunks ChunkSearcher, rerank *RerankStack, cfg RetrievalConfig) *Retriever {
	return &Retriever{
		log:    log.With("service", "Retriever"),
		model:  model,
		chunks: chunks,
		rerank: rerank,
		cfg:    cfg.withDefaults(),
	}
}

// Search runs the full retrieval for one query. Embedding failures
// degrade to keyword-only; a single failed leg degrades to the other. An
// error is returned only when no leg produced anything usable.
func (r *Retriever) Search(ctx context.Context, sessionID string, query string, mode domain.Mode, anchorDocIDs []string) (*SearchResult, error) {
	if sessionID == "" {
		panic("retriever: search without session id")
	}
	topK := mode.TopK()
	poolSize := topK * r.cfg.CandidatesMultiplier

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		observability.Current().ObserveSeconds(
			"retrieval_duration_seconds", "Hybrid retrieval latency", time.Since(start).Seconds())
	}()

	queryVector, embedErr := r.model.EmbedQuery(ctx, query)
	if embedErr != nil || len(queryVector) == 0 {
		if embedErr != nil {
			r.log.Warn("query embedding failed, keyword-only retrieval",
				"session_id", sessionID, "error", embedErr)
		}
		observability.Current().IncCounter(
			"retrieval_degraded_total", "Retrievals that lost a leg", "reason", "embedding")
		return r.keywordOnly(ctx, sessionID, query, topK)
	}

	var (
		wg          sync.WaitGroup
		vectorHits  []search.Hit[search.ChunkDoc]
		vectorErr   error
		keywordHits []search.Hit[search.ChunkDoc]
		keywordErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorHits, vectorErr = r.chunks.VectorSearch(ctx, search.VectorQuery{
			SessionID: sessionID,
			Field:     "contentEmbedding",
			Vector:    queryVector,
			TopK:      poolSize,
		})
	}()
	go func() {
		defer wg.Done()
		keywordHits, keywordErr = r.chunks.KeywordSearch(ctx, search.KeywordQuery{
			SessionID: sessionID,
			Query:     query,
			Fields:    search.ChunkKeywordFields,
			TopK:      poolSize,
		})
	}()
	wg.Wait()

	if vectorErr != nil && keywordErr != nil {
		return nil, fmt.Errorf("both retrieval legs failed: vector: %v; keyword: %w", vectorErr, keywordErr)
	}
	if vectorErr != nil {
		r.log.Warn("vector leg failed, degrading", "session_id", sessionID, "error", vectorErr)
		observability.Current().IncCounter(
			"retrieval_degraded_total", "Retrievals that lost a leg", "reason", "vector")
		vectorHits = nil
	}
	if keywordErr != nil {
		r.log.Warn("keyword leg failed, degrading", "session_id", sessionID, "error", keywordErr)
		observability.Current().IncCounter(
			"retrieval_degraded_total", "Retrievals that lost a leg", "reason", "keyword")
		keywordHits = nil
	}
	r.countDroppedIDs(vectorHits, keywordHits)

	fusedByID := fuseRRF(vectorHits, keywordHits, r.cfg.RRFK)

	if r.cfg.AnchoringEnabled && len(anchorDocIDs) > 0 {
		anchored := map[string]bool{}
		for _, id := range anchorDocIDs {
			anchored[id] = true
		}
		boosted := 0
		for _, f := range fusedByID {
			if anchored[f.doc.DocumentID] {
				f.score += r.cfg.AnchorBoost
				boosted++
			}
		}
		if boosted > 0 {
			r.log.Debug("anchor boost applied", "session_id", sessionID, "chunks", boosted)
		}
	}

	ranked := rankFused(fusedByID)
	if len(ranked) > topK*2 {
		ranked = ranked[:topK*2]
	}
	candidates := make([]RetrievedChunk, 0, len(ranked))
	for _, f := range ranked {
		candidates = append(candidates, RetrievedChunk{Chunk: f.doc, RRFScore: f.score, RelevanceScore: f.score})
	}

	final := r.rerank.Rerank(ctx, query, candidates, topK)

	return &SearchResult{
		Query:          query,
		VectorResults:  vectorHits,
		KeywordResults: keywordHits,
		FinalResults:   final,
	}, nil
}

// keywordOnly is the embedding-failure fallback: the lexical result list
// is the final list, scored by backend relevance.
func (r *Retriever) keywordOnly(ctx context.Context, sessionID, query string, topK int) (*SearchResult, error) {
	hits, err := r.chunks.KeywordSearch(ctx, search.KeywordQuery{
		SessionID: sessionID,
		Query:     query,
		Fields:    search.ChunkKeywordFields,
		TopK:      topK,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword-only retrieval: %w", err)
	}
	final := make([]RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		final = append(final, RetrievedChunk{Chunk: h.Doc, RRFScore: h.Score, RelevanceScore: h.Score})
	}
	return &SearchResult{
		Query:          query,
		KeywordResults: hits,
		FinalResults:   final,
	}, nil
}

// countDroppedIDs records hits arriving without an id; indexed chunks
// always carry one, so any occurrence points at an indexing bug.
func (r *Retriever) countDroppedIDs(lists ...[]search.Hit[search.ChunkDoc]) {
	for _, hits := range lists {
		for _, h := range hits {
			if h.ID == "" {
				r.log.Warn("dropping retrieval hit without id")
				observability.Current().IncCounter(
					"retrieval_null_id_dropped_total", "Hits dropped for missing ids")
			}
		}
	}
}
