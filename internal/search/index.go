package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/notebook-backend/internal/platform/elastic"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// Doc is any document type storable in an index.
type Doc interface {
	DocID() string
}

// Hit pairs a decoded document with its backend score.
type Hit[T any] struct {
	ID    string
	Score float64
	Doc   T
}

// Backend is the subset of the Elasticsearch client an index uses.
// *elastic.Client satisfies it; tests substitute fakes.
type Backend interface {
	CreateIndex(ctx context.Context, index string, body map[string]any) error
	Bulk(ctx context.Context, index string, ops []elastic.BulkOp) (*elastic.BulkResult, error)
	Search(ctx context.Context, index string, body map[string]any) ([]elastic.Hit, error)
	DeleteByQuery(ctx context.Context, index string, query map[string]any) (int64, error)
	Refresh(ctx context.Context, index string) error
}

// Index is a typed view over one Elasticsearch index. Every query is
// filtered by sessionId; an empty session id is a programmer error and
// panics.
type Index[T Doc] struct {
	log            *logger.Logger
	es             Backend
	name           string
	schema         map[string]any
	sourceExcludes []string
}

func newIndex[T Doc](log *logger.Logger, es Backend, name string, schema map[string]any, sourceExcludes []string) *Index[T] {
	return &Index[T]{
		log:            log.With("index", name),
		es:             es,
		name:           name,
		schema:         schema,
		sourceExcludes: sourceExcludes,
	}
}

func (ix *Index[T]) Name() string { return ix.name }

// Init idempotently creates the index with its schema.
func (ix *Index[T]) Init(ctx context.Context) error {
	return ix.es.CreateIndex(ctx, ix.name, ix.schema)
}

// BulkIndex writes docs in one bulk request. Per-item failures are
// tolerated and returned as a count, unless more than 10% of a batch of
// at least 10 docs fail, which is fatal.
func (ix *Index[T]) BulkIndex(ctx context.Context, docs []T) (failed int, err error) {
	if len(docs) == 0 {
		return 0, nil
	}
	ops := make([]elastic.BulkOp, 0, len(docs))
	for _, d := range docs {
		ops = append(ops, elastic.BulkOp{ID: d.DocID(), Doc: d})
	}
	res, err := ix.es.Bulk(ctx, ix.name, ops)
	if err != nil {
		return 0, err
	}
	failed = len(res.Failures)
	if failed == 0 {
		return 0, nil
	}
	for _, f := range res.Failures {
		ix.log.Warn("bulk item failed", "doc_id", f.ID, "status", f.Status, "reason", f.Reason)
	}
	if len(docs) >= 10 && failed*10 > len(docs) {
		return failed, &elastic.OperationError{
			Code:      elastic.CodePartialFailure,
			Operation: "bulk",
			Message:   fmt.Sprintf("%d/%d docs failed", failed, len(docs)),
		}
	}
	return failed, nil
}

// VectorQuery is a session-scoped kNN query over one embedding field.
type VectorQuery struct {
	SessionID string
	Field     string
	Vector    []float32
	TopK      int
}

func (ix *Index[T]) VectorSearch(ctx context.Context, q VectorQuery) ([]Hit[T], error) {
	requireSession(q.SessionID)
	if len(q.Vector) == 0 {
		return nil, &elastic.OperationError{Code: elastic.CodeValidationFailed, Operation: "vector_search", Message: "empty query vector"}
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}
	numCandidates := topK * 2
	if numCandidates < 50 {
		numCandidates = 50
	}
	body := map[string]any{
		"knn": map[string]any{
			"field":          q.Field,
			"query_vector":   q.Vector,
			"k":              topK,
			"num_candidates": numCandidates,
			"filter":         sessionFilter(q.SessionID),
		},
		"size": topK,
	}
	ix.applySourceExcludes(body)
	return ix.search(ctx, body)
}

// KeywordQuery is a session-scoped BM25 multi_match query.
type KeywordQuery struct {
	SessionID string
	Query     string
	Fields    []string // with boost suffixes, e.g. "documentTitle^3"
	TopK      int
}

func (ix *Index[T]) KeywordSearch(ctx context.Context, q KeywordQuery) ([]Hit[T], error) {
	requireSession(q.SessionID)
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":  q.Query,
						"fields": q.Fields,
					},
				},
				"filter": sessionFilter(q.SessionID),
			},
		},
		"size": topK,
	}
	ix.applySourceExcludes(body)
	return ix.search(ctx, body)
}

// HybridQuery drives the backend's native RRF retriever: a fast path
// that fuses the kNN and BM25 legs server-side.
type HybridQuery struct {
	SessionID    string
	Query        string
	Fields       []string
	Field        string
	Vector       []float32
	TopK         int
	RankConstant int
}

func (ix *Index[T]) HybridSearchRRF(ctx context.Context, q HybridQuery) ([]Hit[T], error) {
	requireSession(q.SessionID)
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}
	rankConstant := q.RankConstant
	if rankConstant <= 0 {
		rankConstant = 60
	}
	numCandidates := topK * 2
	if numCandidates < 50 {
		numCandidates = 50
	}
	body := map[string]any{
		"retriever": map[string]any{
			"rrf": map[string]any{
				"rank_constant":    rankConstant,
				"rank_window_size": numCandidates,
				"retrievers": []map[string]any{
					{
						"standard": map[string]any{
							"query": map[string]any{
								"bool": map[string]any{
									"must": map[string]any{
										"multi_match": map[string]any{
											"query":  q.Query,
											"fields": q.Fields,
										},
									},
									"filter": sessionFilter(q.SessionID),
								},
							},
						},
					},
					{
						"knn": map[string]any{
							"field":          q.Field,
							"query_vector":   q.Vector,
							"k":              topK,
							"num_candidates": numCandidates,
							"filter":         sessionFilter(q.SessionID),
						},
					},
				},
			},
		},
		"size": topK,
	}
	ix.applySourceExcludes(body)
	return ix.search(ctx, body)
}

// DeleteBySession purges every doc of the session. Callers that need
// the delete immediately visible follow up with Refresh.
func (ix *Index[T]) DeleteBySession(ctx context.Context, sessionID string) error {
	requireSession(sessionID)
	if _, err := ix.es.DeleteByQuery(ctx, ix.name, map[string]any{
		"term": map[string]any{"sessionId": sessionID},
	}); err != nil {
		return err
	}
	return nil
}

// DeleteByDocument removes one document's chunks ahead of re-ingestion.
func (ix *Index[T]) DeleteByDocument(ctx context.Context, sessionID, documentID string) error {
	requireSession(sessionID)
	_, err := ix.es.DeleteByQuery(ctx, ix.name, map[string]any{
		"bool": map[string]any{
			"filter": []map[string]any{
				{"term": map[string]any{"sessionId": sessionID}},
				{"term": map[string]any{"documentId": documentID}},
			},
		},
	})
	return err
}

// DeleteByIDs removes specific docs of a session, used when evicting
// memories past the per-session cap.
func (ix *Index[T]) DeleteByIDs(ctx context.Context, sessionID string, ids []string) error {
	requireSession(sessionID)
	if len(ids) == 0 {
		return nil
	}
	_, err := ix.es.DeleteByQuery(ctx, ix.name, map[string]any{
		"bool": map[string]any{
			"filter": []map[string]any{
				{"term": map[string]any{"sessionId": sessionID}},
				{"ids": map[string]any{"values": ids}},
			},
		},
	})
	return err
}

func (ix *Index[T]) Refresh(ctx context.Context) error {
	return ix.es.Refresh(ctx, ix.name)
}

func (ix *Index[T]) search(ctx context.Context, body map[string]any) ([]Hit[T], error) {
	raw, err := ix.es.Search(ctx, ix.name, body)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit[T], 0, len(raw))
	for _, h := range raw {
		var doc T
		if len(h.Source) > 0 {
			if err := json.Unmarshal(h.Source, &doc); err != nil {
				ix.log.Warn("skipping undecodable hit", "doc_id", h.ID, "error", err)
				continue
			}
		}
		hits = append(hits, Hit[T]{ID: h.ID, Score: h.Score, Doc: doc})
	}
	return hits, nil
}

func (ix *Index[T]) applySourceExcludes(body map[string]any) {
	if len(ix.sourceExcludes) > 0 {
		body["_source"] = map[string]any{"excludes": ix.sourceExcludes}
	}
}

func sessionFilter(sessionID string) map[string]any {
	return map[string]any{"term": map[string]any{"sessionId": sessionID}}
}

// requireSession enforces the isolation invariant: a query without a
// session filter is a programmer error, not a runtime condition.
func requireSession(sessionID string) {
	if sessionID == "" {
		panic("search: query without sessionId filter")
	}
}
