package steps

import (
	"strings"

	"github.com/yungbote/notebook-backend/internal/search"
)

// ConfidenceLevel buckets the numeric confidence score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Confidence is the retrieval quality estimate for one search.
type Confidence struct {
	Score     float64         `json:"score"`
	Level     ConfidenceLevel `json:"level"`
	MaxRRF    float64         `json:"maxRrf"`
	Agreement float64         `json:"agreement"`
	Coverage  float64         `json:"coverage"`
	Diversity float64         `json:"diversity"`
}

// rank1RRF is the fused score of a chunk ranked first by exactly one
// retriever with k=60; it normalizes MaxRRF so a single-list top hit
// scores 1.0.
const rank1RRF = 1.0 / 61.0

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "has": true,
	"have": true, "what": true, "when": true, "where": true, "which": true,
	"with": true, "this": true, "that": true, "from": true, "they": true,
	"will": true, "would": true, "there": true, "their": true, "about": true,
	"does": true, "how": true, "why": true, "who": true,
}

// ScoreConfidence combines four signals into a weighted confidence
// estimate: strength of the top fused score, agreement between the two
// retriever legs, lexical coverage of the query in the top hit, and
// document diversity of the final list.
func ScoreConfidence(result *SearchResult, cfg VerificationConfig) Confidence {
	cfg = cfg.withDefaults()
	if result == nil || len(result.FinalResults) == 0 {
		return Confidence{Score: 0, Level: ConfidenceLow}
	}

	maxRRF := result.FinalResults[0].RRFScore / rank1RRF
	if maxRRF > 1 {
		maxRRF = 1
	}
	if maxRRF < 0 {
		maxRRF = 0
	}

	agreement := jaccardTop10(result.VectorResults, result.KeywordResults)
	coverage := queryCoverage(result.Query, result.FinalResults[0].Chunk.Content)

	docs := map[string]bool{}
	for _, c := range result.FinalResults {
		docs[c.Chunk.DocumentID] = true
	}
	diversity := float64(len(docs)) / 5.0
	if diversity > 1 {
		diversity = 1
	}

	score := cfg.WeightMaxRRF*maxRRF +
		cfg.WeightAgreement*agreement +
		cfg.WeightCoverage*coverage +
		cfg.WeightDiversity*diversity

	level := ConfidenceLow
	switch {
	case score >= cfg.HighThreshold:
		level = ConfidenceHigh
	case score >= cfg.MediumThreshold:
		level = ConfidenceMedium
	}
	return Confidence{
		Score:     score,
		Level:     level,
		MaxRRF:    maxRRF,
		Agreement: agreement,
		Coverage:  coverage,
		Diversity: diversity,
	}
}

// jaccardTop10 compares the top-10 chunk-id sets of the two legs.
func jaccardTop10(vector, keyword []search.Hit[search.ChunkDoc]) float64 {
	a := idSet(vector, 10)
	b := idSet(keyword, 10)
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for id := range a {
		if b[id] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func idSet(hits []search.Hit[search.ChunkDoc], limit int) map[string]bool {
	out := map[string]bool{}
	for i, h := range hits {
		if i >= limit {
			break
		}
		if h.ID != "" {
			out[h.ID] = true
		}
	}
	return out
}

// queryCoverage is the fraction of meaningful query terms found in the
// content, case-insensitive.
func queryCoverage(query, content string) float64 {
	lowered := strings.ToLower(content)
	seen := map[string]bool{}
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		t = strings.Trim(t, ".,!?;:\"'()[]")
		if len(t) <= 2 || stopwords[t] || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	if len(terms) == 0 {
		return 0
	}
	found := 0
	for _, t := range terms {
		if strings.Contains(lowered, t) {
			found++
		}
	}
	return float64(found) / float64(len(terms))
}
