package ingest

import (
	"strings"
)

// SourceDoc is the raw upload handed to a chunking strategy.
type SourceDoc struct {
	FileName string
	MimeType string
	Data     []byte
}

// Chunk is one extraction unit before embedding.
type Chunk struct {
	Index      int
	Content    string
	Breadcrumb []string // heading path, root first
	ImageIDs   []string
	PageNumber int
	TokenCount int
}

// Result is the full output of one strategy run.
type Result struct {
	Chunks []Chunk
	Title  string // document title candidate; may be empty
}

// Strategy turns a source document into chunks. Implementations are pure
// and framework-free so they can be tested on bytes alone.
type Strategy interface {
	Name() string
	Supports(mimeType string) bool
	Chunk(doc SourceDoc) (*Result, error)
}

// Router picks the highest-priority strategy that supports the MIME
// type. The plain-text strategy sits last and supports everything, so
// Pick never fails.
type Router struct {
	strategies []Strategy
}

func NewRouter(opts ChunkOptions) *Router {
	return &Router{
		strategies: []Strategy{
			NewPDFStrategy(opts),
			NewMarkdownStrategy(opts),
			NewTextStrategy(opts),
		},
	}
}

func (r *Router) Pick(mimeType string) Strategy {
	mt := normalizeMime(mimeType)
	for _, s := range r.strategies {
		if s.Supports(mt) {
			return s
		}
	}
	// Unreachable while the text strategy is registered last.
	return r.strategies[len(r.strategies)-1]
}

func normalizeMime(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
