package app

import (
	"context"

	"github.com/yungbote/notebook-backend/internal/modules/chat/steps"
	"github.com/yungbote/notebook-backend/internal/platform/breaker"
	"github.com/yungbote/notebook-backend/internal/platform/elastic"
	"github.com/yungbote/notebook-backend/internal/platform/openai"
	"github.com/yungbote/notebook-backend/internal/search"
)

// guardedModel runs every LLM call under a circuit breaker so a dead
// upstream fails fast instead of stacking blocked requests.
type guardedModel struct {
	inner steps.Model
	br    *breaker.Breaker
}

func newGuardedModel(inner steps.Model, br *breaker.Breaker) steps.Model {
	return &guardedModel{inner: inner, br: br}
}

func (g *guardedModel) EmbedQuery(ctx context.Context, text string) (vec []float32, err error) {
	err = g.br.Do(func() error {
		vec, err = g.inner.EmbedQuery(ctx, text)
		return err
	})
	return vec, err
}

func (g *guardedModel) Embed(ctx context.Context, texts []string) (vecs [][]float32, err error) {
	err = g.br.Do(func() error {
		vecs, err = g.inner.Embed(ctx, texts)
		return err
	})
	return vecs, err
}

func (g *guardedModel) GenerateText(ctx context.Context, system, user string) (out string, err error) {
	err = g.br.Do(func() error {
		out, err = g.inner.GenerateText(ctx, system, user)
		return err
	})
	return out, err
}

func (g *guardedModel) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (out map[string]any, err error) {
	err = g.br.Do(func() error {
		out, err = g.inner.GenerateJSON(ctx, system, user, schemaName, schema)
		return err
	})
	return out, err
}

func (g *guardedModel) StreamChat(ctx context.Context, turns []openai.Turn, onDelta func(string)) (full string, err error) {
	err = g.br.Do(func() error {
		full, err = g.inner.StreamChat(ctx, turns, onDelta)
		return err
	})
	return full, err
}

// guardedBackend puts the search backend behind a breaker shared by all
// three indices.
type guardedBackend struct {
	inner search.Backend
	br    *breaker.Breaker
}

func newGuardedBackend(inner search.Backend, br *breaker.Breaker) search.Backend {
	return &guardedBackend{inner: inner, br: br}
}

func (g *guardedBackend) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	return g.br.Do(func() error { return g.inner.CreateIndex(ctx, index, body) })
}

func (g *guardedBackend) Bulk(ctx context.Context, index string, ops []elastic.BulkOp) (res *elastic.BulkResult, err error) {
	err = g.br.Do(func() error {
		res, err = g.inner.Bulk(ctx, index, ops)
		return err
	})
	return res, err
}

func (g *guardedBackend) Search(ctx context.Context, index string, body map[string]any) (hits []elastic.Hit, err error) {
	err = g.br.Do(func() error {
		hits, err = g.inner.Search(ctx, index, body)
		return err
	})
	return hits, err
}

func (g *guardedBackend) DeleteByQuery(ctx context.Context, index string, query map[string]any) (deleted int64, err error) {
	err = g.br.Do(func() error {
		deleted, err = g.inner.DeleteByQuery(ctx, index, query)
		return err
	})
	return deleted, err
}

func (g *guardedBackend) Refresh(ctx context.Context, index string) error {
	return g.br.Do(func() error { return g.inner.Refresh(ctx, index) })
}

// guardedEncoder shares the index breaker: the inference API lives in
// the same cluster as the indices.
type guardedEncoder struct {
	inner steps.CrossEncoder
	br    *breaker.Breaker
}

func newGuardedEncoder(inner steps.CrossEncoder, br *breaker.Breaker) steps.CrossEncoder {
	return &guardedEncoder{inner: inner, br: br}
}

func (g *guardedEncoder) Rerank(ctx context.Context, modelID, query string, texts []string) (ranked []elastic.RankedText, err error) {
	err = g.br.Do(func() error {
		ranked, err = g.inner.Rerank(ctx, modelID, query, texts)
		return err
	})
	return ranked, err
}
