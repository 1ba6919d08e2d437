package steps

import (
	"sort"

	"github.com/yungbote/notebook-backend/internal/search"
)

// fused is one chunk with its reciprocal-rank-fusion score.
type fused struct {
	id    string
	doc   search.ChunkDoc
	score float64
}

// fuseRRF combines the two rank lists: each list contributes
// 1/(k + rank) per chunk, ranks 1-based, and a chunk present in both
// lists sums its contributions. Hits without an id are dropped.
func fuseRRF(vector, keyword []search.Hit[search.ChunkDoc], k int) map[string]*fused {
	out := map[string]*fused{}
	accumulate := func(hits []search.Hit[search.ChunkDoc]) {
		for rank, h := range hits {
			if h.ID == "" {
				continue
			}
			f, ok := out[h.ID]
			if !ok {
				f = &fused{id: h.ID, doc: h.Doc}
				out[h.ID] = f
			}
			f.score += 1.0 / float64(k+rank+1)
		}
	}
	accumulate(vector)
	accumulate(keyword)
	return out
}

// rankFused orders fused chunks by score descending, ties by id
// ascending so the ordering is deterministic.
func rankFused(m map[string]*fused) []*fused {
	out := make([]*fused, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id < out[j].id
	})
	return out
}
