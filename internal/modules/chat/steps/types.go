package steps

import (
	"context"

	"github.com/yungbote/notebook-backend/internal/platform/elastic"
	"github.com/yungbote/notebook-backend/internal/platform/openai"
	"github.com/yungbote/notebook-backend/internal/search"
)

// Model is the slice of the LLM gateway the chat steps use. Satisfied by
// *openai.Client and by the resilience wrapper around it.
type Model interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	GenerateText(ctx context.Context, system, user string) (string, error)
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error)
	StreamChat(ctx context.Context, turns []openai.Turn, onDelta func(string)) (string, error)
}

// ChunkSearcher is the read side of the chunk index.
// *search.Index[search.ChunkDoc] satisfies it.
type ChunkSearcher interface {
	VectorSearch(ctx context.Context, q search.VectorQuery) ([]search.Hit[search.ChunkDoc], error)
	KeywordSearch(ctx context.Context, q search.KeywordQuery) ([]search.Hit[search.ChunkDoc], error)
}

// MessageSearcher is the read side of the chat-message index.
type MessageSearcher interface {
	VectorSearch(ctx context.Context, q search.VectorQuery) ([]search.Hit[search.MessageDoc], error)
	KeywordSearch(ctx context.Context, q search.KeywordQuery) ([]search.Hit[search.MessageDoc], error)
}

// MemorySearcher is the read side of the memory index.
type MemorySearcher interface {
	VectorSearch(ctx context.Context, q search.VectorQuery) ([]search.Hit[search.MemoryDoc], error)
	KeywordSearch(ctx context.Context, q search.KeywordQuery) ([]search.Hit[search.MemoryDoc], error)
}

// MemoryIndexer is the write side of the memory index.
type MemoryIndexer interface {
	MemorySearcher
	BulkIndex(ctx context.Context, docs []search.MemoryDoc) (int, error)
}

// CrossEncoder scores candidate texts against a query. Satisfied by
// *elastic.Client through its inference API.
type CrossEncoder interface {
	Rerank(ctx context.Context, modelID, query string, texts []string) ([]elastic.RankedText, error)
}

// RetrievedChunk is one final search result. RRFScore is the fused
// retrieval score; RelevanceScore is the score of the last reranking
// stage that ran (cross-encoder when enabled, otherwise the RRF score).
type RetrievedChunk struct {
	Chunk          search.ChunkDoc
	RRFScore       float64
	RelevanceScore float64
}

// SearchResult carries both raw retriever legs and the fused, reranked
// final list. The raw legs feed confidence scoring.
type SearchResult struct {
	Query          string
	VectorResults  []search.Hit[search.ChunkDoc]
	KeywordResults []search.Hit[search.ChunkDoc]
	FinalResults   []RetrievedChunk
}

// DocumentIDs returns the distinct document ids of the final results in
// first-appearance order. This is the anchor lineage persisted on the
// assistant message.
func (r *SearchResult) DocumentIDs() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range r.FinalResults {
		if id := c.Chunk.DocumentID; id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// ReformulatedQuery is the outcome of query reformulation. On any
// internal failure it degrades to the original query with no anchors.
type ReformulatedQuery struct {
	Query             string
	IsFollowUp        bool
	AnchorDocumentIDs []string
}
