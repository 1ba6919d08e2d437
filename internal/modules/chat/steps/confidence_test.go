package steps

import (
	"math"
	"testing"

	"github.com/yungbote/notebook-backend/internal/search"
)

func TestScoreConfidenceWeights(t *testing.T) {
	top := candidate("d1", 0, rank1RRF) // maxRrf normalizes to 1.0
	top.Chunk.Content = "Artificial intelligence revolutionizes industries."

	hits := []search.Hit[search.ChunkDoc]{
		chunkHit("s", "d1", 0, ""),
		chunkHit("s", "d2", 0, ""),
	}
	// Identical legs give agreement = 1.
	result := &SearchResult{
		Query:          "artificial intelligence",
		VectorResults:  hits,
		KeywordResults: hits,
		FinalResults:   []RetrievedChunk{top, candidate("d2", 0, 0.01)},
	}

	c := ScoreConfidence(result, VerificationConfig{})
	if c.MaxRRF != 1.0 {
		t.Fatalf("maxRrf: expected 1.0, got %f", c.MaxRRF)
	}
	if c.Agreement != 1.0 {
		t.Fatalf("agreement: expected 1.0, got %f", c.Agreement)
	}
	if c.Coverage != 1.0 {
		t.Fatalf("coverage: expected 1.0 (both terms present), got %f", c.Coverage)
	}
	wantDiversity := 2.0 / 5.0
	if math.Abs(c.Diversity-wantDiversity) > 1e-12 {
		t.Fatalf("diversity: expected %f, got %f", wantDiversity, c.Diversity)
	}
	want := 0.4*1 + 0.3*1 + 0.2*1 + 0.1*wantDiversity
	if math.Abs(c.Score-want) > 1e-12 {
		t.Fatalf("score: expected %f, got %f", want, c.Score)
	}
	if c.Level != ConfidenceHigh {
		t.Fatalf("level: expected high, got %s", c.Level)
	}
}

func TestScoreConfidenceEmptyResultIsLow(t *testing.T) {
	c := ScoreConfidence(&SearchResult{Query: "q"}, VerificationConfig{})
	if c.Score != 0 || c.Level != ConfidenceLow {
		t.Fatalf("empty result: expected 0/low, got %f/%s", c.Score, c.Level)
	}
}

func TestScoreConfidenceDisjointLegs(t *testing.T) {
	result := &SearchResult{
		Query:          "quantum superposition",
		VectorResults:  []search.Hit[search.ChunkDoc]{chunkHit("s", "d1", 0, "")},
		KeywordResults: []search.Hit[search.ChunkDoc]{chunkHit("s", "d2", 0, "")},
		FinalResults:   []RetrievedChunk{candidate("d1", 0, 0.005)},
	}
	result.FinalResults[0].Chunk.Content = "completely unrelated text"

	c := ScoreConfidence(result, VerificationConfig{})
	if c.Agreement != 0 {
		t.Fatalf("disjoint legs: agreement must be 0, got %f", c.Agreement)
	}
	if c.Coverage != 0 {
		t.Fatalf("no term overlap: coverage must be 0, got %f", c.Coverage)
	}
	if c.Level != ConfidenceLow {
		t.Fatalf("expected low, got %s (score %f)", c.Level, c.Score)
	}
}

func TestQueryCoverageFiltersShortAndStopwords(t *testing.T) {
	got := queryCoverage("what is the AI plan", "the plan mentions ai twice")
	// Terms after filtering: "plan". ("what"/"the" are stopwords, "is"
	// and "ai" are too short.)
	if got != 1.0 {
		t.Fatalf("expected 1.0, got %f", got)
	}
}
