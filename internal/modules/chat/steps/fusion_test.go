package steps

import (
	"math"
	"testing"

	"github.com/yungbote/notebook-backend/internal/search"
)

func TestFuseRRFScoresAndOrder(t *testing.T) {
	v1 := chunkHit("s", "v1", 0, "")
	v2 := chunkHit("s", "v2", 0, "")
	k1 := chunkHit("s", "k1", 0, "")

	vector := []search.Hit[search.ChunkDoc]{v1, v2}
	keyword := []search.Hit[search.ChunkDoc]{v2, k1}

	fused := fuseRRF(vector, keyword, 60)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused chunks, got %d", len(fused))
	}

	approx := func(id string, want float64) {
		t.Helper()
		f, ok := fused[id]
		if !ok {
			t.Fatalf("missing %q", id)
		}
		if math.Abs(f.score-want) > 1e-12 {
			t.Fatalf("%s: expected %.15f, got %.15f", id, want, f.score)
		}
	}
	approx(v1.ID, 1.0/61)
	approx(v2.ID, 1.0/62+1.0/61)
	approx(k1.ID, 1.0/62)

	ranked := rankFused(fused)
	order := []string{v2.ID, v1.ID, k1.ID}
	for i, want := range order {
		if ranked[i].id != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, ranked[i].id)
		}
	}
}

func TestFuseRRFMonotonicity(t *testing.T) {
	// c ranks above c' in both lists, so its fused score must be higher.
	c := chunkHit("s", "a", 0, "")
	cp := chunkHit("s", "b", 0, "")
	filler := chunkHit("s", "f", 0, "")

	fused := fuseRRF(
		[]search.Hit[search.ChunkDoc]{c, filler, cp},
		[]search.Hit[search.ChunkDoc]{filler, c, cp},
		60,
	)
	if fused[c.ID].score <= fused[cp.ID].score {
		t.Fatalf("monotonicity violated: %f <= %f", fused[c.ID].score, fused[cp.ID].score)
	}
}

func TestFuseRRFDropsEmptyIDs(t *testing.T) {
	anon := search.Hit[search.ChunkDoc]{ID: "", Score: 9}
	fused := fuseRRF([]search.Hit[search.ChunkDoc]{anon}, nil, 60)
	if len(fused) != 0 {
		t.Fatalf("hit without id must be dropped, got %d entries", len(fused))
	}
}
