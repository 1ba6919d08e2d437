package app

import (
	"testing"
)

// Defaults of the knobs that change retrieval and answer quality are
// pinned here so an env refactor cannot silently flip them.
func TestLoadConfigQualityDefaults(t *testing.T) {
	// Empty values take the default path regardless of the outer env.
	for _, key := range []string{
		"CHUNK_OVERLAP_TOKENS", "CROSS_ENCODER_ENABLED", "VERIFICATION_ENABLED",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	if cfg.Chunk.ChunkTokens != 512 || cfg.Chunk.OverlapTokens != 50 || cfg.Chunk.MaxChunkChars != 3500 {
		t.Fatalf("chunking defaults: %+v", cfg.Chunk)
	}
	if !cfg.Rerank.CrossEncoderEnabled {
		t.Fatalf("cross-encoder reranking must default on")
	}
	if !cfg.Verification.Enabled {
		t.Fatalf("verification must default on")
	}
	if cfg.Verification.SupportThreshold != 0.7 {
		t.Fatalf("support threshold default: %f", cfg.Verification.SupportThreshold)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CHUNK_OVERLAP_TOKENS", "80")
	t.Setenv("VERIFICATION_ENABLED", "false")

	cfg := LoadConfig()
	if cfg.Chunk.OverlapTokens != 80 {
		t.Fatalf("overlap override not applied: %d", cfg.Chunk.OverlapTokens)
	}
	if cfg.Verification.Enabled {
		t.Fatalf("verification override not applied")
	}
}
