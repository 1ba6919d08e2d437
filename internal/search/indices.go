package search

import (
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// Config carries the index naming and schema knobs shared by all three
// indices.
type Config struct {
	Prefix         string // index name prefix, default "notebooklm"
	Dims           int    // embedding dimensionality
	Analyzer       string // index-time analyzer, default ik_max_word
	SearchAnalyzer string // query-time analyzer, default ik_smart
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = "notebooklm"
	}
	if c.Dims <= 0 {
		c.Dims = 3072
	}
	if c.Analyzer == "" {
		c.Analyzer = "ik_max_word"
	}
	if c.SearchAnalyzer == "" {
		c.SearchAnalyzer = "ik_smart"
	}
	return c
}

// ChunkKeywordFields is the boosted field list for chunk BM25 queries.
var ChunkKeywordFields = []string{"documentTitle^3", "sectionTitle^2", "fileName^1.5", "content"}

func (c Config) textField() map[string]any {
	return map[string]any{
		"type":            "text",
		"analyzer":        c.Analyzer,
		"search_analyzer": c.SearchAnalyzer,
	}
}

func (c Config) vectorField() map[string]any {
	return map[string]any{
		"type":       "dense_vector",
		"dims":       c.Dims,
		"index":      true,
		"similarity": "cosine",
	}
}

// NewChunkIndex builds the "<prefix>-chunks" index.
func NewChunkIndex(log *logger.Logger, es Backend, cfg Config) *Index[ChunkDoc] {
	cfg = cfg.withDefaults()
	schema := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"sessionId":          map[string]any{"type": "keyword"},
				"documentId":         map[string]any{"type": "keyword"},
				"fileName":           cfg.textField(),
				"chunkIndex":         map[string]any{"type": "integer"},
				"content":            cfg.textField(),
				"documentTitle":      cfg.textField(),
				"sectionTitle":       cfg.textField(),
				"sectionBreadcrumb":  map[string]any{"type": "keyword"},
				"associatedImageIds": map[string]any{"type": "keyword"},
				"tokenCount":         map[string]any{"type": "integer"},
				"titleEmbedding":     cfg.vectorField(),
				"contentEmbedding":   cfg.vectorField(),
			},
		},
	}
	excludes := []string{"titleEmbedding", "contentEmbedding"}
	return newIndex[ChunkDoc](log, es, cfg.Prefix+"-chunks", schema, excludes)
}

// NewMessageIndex builds the "<prefix>-chat-messages" index.
func NewMessageIndex(log *logger.Logger, es Backend, cfg Config) *Index[MessageDoc] {
	cfg = cfg.withDefaults()
	schema := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"sessionId": map[string]any{"type": "keyword"},
				"messageId": map[string]any{"type": "keyword"},
				"role":      map[string]any{"type": "keyword"},
				"content":   cfg.textField(),
				"timestamp": map[string]any{"type": "long"},
				"embedding": cfg.vectorField(),
			},
		},
	}
	return newIndex[MessageDoc](log, es, cfg.Prefix+"-chat-messages", schema, []string{"embedding"})
}

// NewMemoryIndex builds the "<prefix>-memories" index.
func NewMemoryIndex(log *logger.Logger, es Backend, cfg Config) *Index[MemoryDoc] {
	cfg = cfg.withDefaults()
	schema := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"sessionId":  map[string]any{"type": "keyword"},
				"memoryId":   map[string]any{"type": "keyword"},
				"memoryType": map[string]any{"type": "keyword"},
				"content":    cfg.textField(),
				"importance": map[string]any{"type": "float"},
				"embedding":  cfg.vectorField(),
			},
		},
	}
	return newIndex[MemoryDoc](log, es, cfg.Prefix+"-memories", schema, []string{"embedding"})
}
