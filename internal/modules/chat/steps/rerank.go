package steps

import (
	"context"
	"sort"

	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// RerankStack chains the cross-encoder and diversity stages. Every
// failure degrades to a pass-through of the fused order; the stack never
// returns an error.
type RerankStack struct {
	log     *logger.Logger
	encoder CrossEncoder
	cfg     RerankConfig
}

func NewRerankStack(log *logger.Logger, encoder CrossEncoder, cfg RerankConfig) *RerankStack {
	return &RerankStack{
		log:     log.With("service", "RerankStack"),
		encoder: encoder,
		cfg:     cfg.withDefaults(),
	}
}

// Rerank takes fused candidates sorted by RRF score and returns the
// final topK in diversity order.
func (s *RerankStack) Rerank(ctx context.Context, query string, candidates []RetrievedChunk, topK int) []RetrievedChunk {
	if len(candidates) == 0 || topK <= 0 {
		return nil
	}
	scored := s.crossEncode(ctx, query, candidates)
	if !s.cfg.DiversityEnabled {
		if len(scored) > topK {
			scored = scored[:topK]
		}
		return scored
	}
	result := diversify(scored, topK, s.cfg.MinChunksPerDocument)
	observability.Current().SetGauge(
		"rerank_diversity_ratio", "Unique documents over result size", diversityRatio(result))
	return result
}

// crossEncode rescores candidates with the external reranker. On any
// failure the fused order passes through unchanged.
func (s *RerankStack) crossEncode(ctx context.Context, query string, candidates []RetrievedChunk) []RetrievedChunk {
	if !s.cfg.CrossEncoderEnabled || s.encoder == nil {
		return candidates
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		text := c.Chunk.Content
		if runes := []rune(text); len(runes) > s.cfg.MaxTextChars {
			text = string(runes[:s.cfg.MaxTextChars])
		}
		texts[i] = text
	}

	ranked, err := s.encoder.Rerank(ctx, s.cfg.CrossEncoderModelID, query, texts)
	if err != nil {
		s.log.Warn("cross-encoder failed, passing fused order through", "error", err)
		observability.Current().IncCounter(
			"rerank_fallback_total", "Cross-encoder calls that fell back to fused order")
		return candidates
	}

	out := make([]RetrievedChunk, 0, len(candidates))
	seen := make([]bool, len(candidates))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(candidates) || seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		c := candidates[r.Index]
		c.RelevanceScore = r.Score
		out = append(out, c)
	}
	// Candidates the endpoint did not score keep their fused score and
	// sort behind the scored ones.
	for i, c := range candidates {
		if !seen[i] {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RelevanceScore != out[j].RelevanceScore {
			return out[i].RelevanceScore > out[j].RelevanceScore
		}
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		return out[i].Chunk.DocID() < out[j].Chunk.DocID()
	})
	return out
}

// diversify round-robins over per-document groups so a single document
// cannot monopolize the result. A group leaves the rotation only once it
// is exhausted and has contributed at least minPerDoc chunks.
func diversify(candidates []RetrievedChunk, topK, minPerDoc int) []RetrievedChunk {
	if len(candidates) <= 1 {
		return candidates
	}

	type group struct {
		chunks []RetrievedChunk
		next   int
	}
	var order []string
	groups := map[string]*group{}
	for _, c := range candidates {
		id := c.Chunk.DocumentID
		g, ok := groups[id]
		if !ok {
			g = &group{}
			groups[id] = g
			order = append(order, id)
		}
		g.chunks = append(g.chunks, c)
	}
	for _, id := range order {
		g := groups[id]
		sort.SliceStable(g.chunks, func(i, j int) bool {
			return g.chunks[i].RelevanceScore > g.chunks[j].RelevanceScore
		})
	}

	var result []RetrievedChunk
	active := append([]string(nil), order...)
	for rounds := 0; len(result) < topK && len(active) > 0 && rounds < len(candidates); rounds++ {
		var still []string
		for _, id := range active {
			if len(result) >= topK {
				break
			}
			g := groups[id]
			if g.next < len(g.chunks) {
				result = append(result, g.chunks[g.next])
				g.next++
			}
			if g.next < len(g.chunks) || g.next < minPerDoc {
				still = append(still, id)
			}
		}
		active = still
	}
	return result
}

func diversityRatio(result []RetrievedChunk) float64 {
	if len(result) == 0 {
		return 0
	}
	docs := map[string]bool{}
	for _, c := range result {
		docs[c.Chunk.DocumentID] = true
	}
	return float64(len(docs)) / float64(len(result))
}
