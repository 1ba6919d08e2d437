package steps

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
	"github.com/yungbote/notebook-backend/internal/search"
)

func newTestRetriever(chunks *fakeChunkSearcher, model Model, cfg RetrievalConfig) *Retriever {
	log := logger.NewNop()
	stack := NewRerankStack(log, nil, RerankConfig{DiversityEnabled: true})
	return NewRetriever(log, model, chunks, stack, cfg)
}

func TestSearchEmbeddingFallbackIsKeywordOnly(t *testing.T) {
	chunks := &fakeChunkSearcher{
		keywordHits: []search.Hit[search.ChunkDoc]{
			chunkHit("s1", "d1", 0, "alpha"),
			chunkHit("s1", "d2", 0, "beta"),
		},
	}
	model := &fakeModel{embedQueryFn: func(string) ([]float32, error) { return nil, nil }}
	r := newTestRetriever(chunks, model, RetrievalConfig{})

	res, err := r.Search(context.Background(), "s1", "alpha", domain.ModeResearch, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.VectorResults) != 0 {
		t.Fatalf("vector results must be empty on embedding fallback")
	}
	if len(res.FinalResults) != 2 {
		t.Fatalf("expected keyword hits as final results, got %d", len(res.FinalResults))
	}
	if len(chunks.vectorQueries) != 0 {
		t.Fatalf("vector leg must not run without an embedding")
	}
	if chunks.keywordQueries[0].TopK != domain.ModeResearch.TopK() {
		t.Fatalf("keyword-only fallback uses topK, got %d", chunks.keywordQueries[0].TopK)
	}
}

func TestSearchAnchorBoostIsAdditive(t *testing.T) {
	// Identical ranks in both legs, so d1 and d3 tie on pure RRF.
	d1 := chunkHit("s1", "d1", 0, "anchored")
	d3 := chunkHit("s1", "d3", 0, "unanchored")
	chunks := &fakeChunkSearcher{
		vectorHits:  []search.Hit[search.ChunkDoc]{d1, d3},
		keywordHits: []search.Hit[search.ChunkDoc]{d3, d1},
	}
	r := newTestRetriever(chunks, &fakeModel{}, RetrievalConfig{AnchoringEnabled: true})

	base, err := r.Search(context.Background(), "s1", "q", domain.ModeResearch, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	anchored, err := r.Search(context.Background(), "s1", "q", domain.ModeResearch, []string{"d1"})
	if err != nil {
		t.Fatalf("anchored search: %v", err)
	}

	scoreOf := func(res *SearchResult, doc string) float64 {
		for _, c := range res.FinalResults {
			if c.Chunk.DocumentID == doc {
				return c.RRFScore
			}
		}
		t.Fatalf("doc %s missing from results", doc)
		return 0
	}

	if got := scoreOf(anchored, "d1") - scoreOf(base, "d1"); math.Abs(got-0.3) > 1e-12 {
		t.Fatalf("anchored chunk must gain exactly the boost, gained %f", got)
	}
	if got := scoreOf(anchored, "d3") - scoreOf(base, "d3"); got != 0 {
		t.Fatalf("unanchored chunk must be untouched, gained %f", got)
	}
	if anchored.FinalResults[0].Chunk.DocumentID != "d1" {
		t.Fatalf("anchored doc must rank first, got %s", anchored.FinalResults[0].Chunk.DocumentID)
	}
}

func TestSearchDegradesWhenOneLegFails(t *testing.T) {
	chunks := &fakeChunkSearcher{
		vectorErr: fmt.Errorf("index unavailable"),
		keywordHits: []search.Hit[search.ChunkDoc]{
			chunkHit("s1", "d1", 0, "alpha"),
		},
	}
	r := newTestRetriever(chunks, &fakeModel{}, RetrievalConfig{})

	res, err := r.Search(context.Background(), "s1", "alpha", domain.ModeLearning, nil)
	if err != nil {
		t.Fatalf("search must degrade, not fail: %v", err)
	}
	if len(res.FinalResults) != 1 {
		t.Fatalf("expected surviving leg's result, got %d", len(res.FinalResults))
	}
}

func TestSearchFailsWhenBothLegsFail(t *testing.T) {
	chunks := &fakeChunkSearcher{
		vectorErr:  fmt.Errorf("down"),
		keywordErr: fmt.Errorf("down"),
	}
	r := newTestRetriever(chunks, &fakeModel{}, RetrievalConfig{})

	if _, err := r.Search(context.Background(), "s1", "q", domain.ModeLearning, nil); err == nil {
		t.Fatalf("expected error when both legs fail")
	}
}

func TestSearchPanicsWithoutSession(t *testing.T) {
	r := newTestRetriever(&fakeChunkSearcher{}, &fakeModel{}, RetrievalConfig{})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on empty session id")
		}
	}()
	_, _ = r.Search(context.Background(), "", "q", domain.ModeLearning, nil)
}

func TestSearchCandidatePoolSize(t *testing.T) {
	chunks := &fakeChunkSearcher{}
	r := newTestRetriever(chunks, &fakeModel{}, RetrievalConfig{})

	_, err := r.Search(context.Background(), "s1", "q", domain.ModeExploring, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := domain.ModeExploring.TopK() * 2
	if got := chunks.vectorQueries[0].TopK; got != want {
		t.Fatalf("vector pool: expected %d, got %d", want, got)
	}
	if got := chunks.keywordQueries[0].TopK; got != want {
		t.Fatalf("keyword pool: expected %d, got %d", want, got)
	}
}
