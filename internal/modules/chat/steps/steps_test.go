package steps

import (
	"context"
	"fmt"

	"github.com/yungbote/notebook-backend/internal/platform/elastic"
	"github.com/yungbote/notebook-backend/internal/platform/openai"
	"github.com/yungbote/notebook-backend/internal/search"
)

// fakeModel implements Model with overridable hooks; unset hooks return
// benign defaults.
type fakeModel struct {
	embedQueryFn   func(text string) ([]float32, error)
	embedFn        func(texts []string) ([][]float32, error)
	generateTextFn func(system, user string) (string, error)
	generateJSONFn func(system, user, schemaName string) (map[string]any, error)
	streamChatFn   func(turns []openai.Turn, onDelta func(string)) (string, error)
}

func (f *fakeModel) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.embedQueryFn != nil {
		return f.embedQueryFn(text)
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func (f *fakeModel) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.embedFn != nil {
		return f.embedFn(texts)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return out, nil
}

func (f *fakeModel) GenerateText(_ context.Context, system, user string) (string, error) {
	if f.generateTextFn != nil {
		return f.generateTextFn(system, user)
	}
	return "ok", nil
}

func (f *fakeModel) GenerateJSON(_ context.Context, system, user, schemaName string, _ map[string]any) (map[string]any, error) {
	if f.generateJSONFn != nil {
		return f.generateJSONFn(system, user, schemaName)
	}
	return map[string]any{}, nil
}

func (f *fakeModel) StreamChat(_ context.Context, turns []openai.Turn, onDelta func(string)) (string, error) {
	if f.streamChatFn != nil {
		return f.streamChatFn(turns, onDelta)
	}
	return "", nil
}

// fakeChunkSearcher serves canned hits and records queries.
type fakeChunkSearcher struct {
	vectorHits  []search.Hit[search.ChunkDoc]
	keywordHits []search.Hit[search.ChunkDoc]
	vectorErr   error
	keywordErr  error

	vectorQueries  []search.VectorQuery
	keywordQueries []search.KeywordQuery
}

func (f *fakeChunkSearcher) VectorSearch(_ context.Context, q search.VectorQuery) ([]search.Hit[search.ChunkDoc], error) {
	f.vectorQueries = append(f.vectorQueries, q)
	return f.vectorHits, f.vectorErr
}

func (f *fakeChunkSearcher) KeywordSearch(_ context.Context, q search.KeywordQuery) ([]search.Hit[search.ChunkDoc], error) {
	f.keywordQueries = append(f.keywordQueries, q)
	return f.keywordHits, f.keywordErr
}

// fakeCrossEncoder scores texts by a fixed map of index -> score.
type fakeCrossEncoder struct {
	scores map[int]float64
	err    error
	calls  int
}

func (f *fakeCrossEncoder) Rerank(_ context.Context, _, _ string, texts []string) ([]elastic.RankedText, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]elastic.RankedText, 0, len(texts))
	for i := range texts {
		if s, ok := f.scores[i]; ok {
			out = append(out, elastic.RankedText{Index: i, Score: s})
		}
	}
	return out, nil
}

func chunkHit(session, doc string, idx int, content string) search.Hit[search.ChunkDoc] {
	c := search.ChunkDoc{
		SessionID:  session,
		DocumentID: doc,
		FileName:   doc + ".md",
		ChunkIndex: idx,
		Content:    content,
	}
	return search.Hit[search.ChunkDoc]{ID: c.DocID(), Score: 1, Doc: c}
}

func candidate(doc string, idx int, rrf float64) RetrievedChunk {
	return RetrievedChunk{
		Chunk: search.ChunkDoc{
			DocumentID: doc,
			FileName:   doc + ".md",
			ChunkIndex: idx,
			Content:    fmt.Sprintf("content %s %d", doc, idx),
		},
		RRFScore:       rrf,
		RelevanceScore: rrf,
	}
}
