package steps

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/notebook-backend/internal/data/repos"
	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
	"github.com/yungbote/notebook-backend/internal/search"
)

// MemoryStore is the write-capable view of the memory index.
type MemoryStore interface {
	MemorySearcher
	BulkIndex(ctx context.Context, docs []search.MemoryDoc) (int, error)
	DeleteByIDs(ctx context.Context, sessionID string, ids []string) error
}

// Memories extracts long-lived facts from each exchange, serves the
// relevant ones back into the prompt context, and keeps the per-session
// store under its cap.
type Memories struct {
	log      *logger.Logger
	model    Model
	memories repos.MemoryRepo
	index    MemoryStore
	cfg      MemoryConfig
}

func NewMemories(log *logger.Logger, model Model, memories repos.MemoryRepo, index MemoryStore, cfg MemoryConfig) *Memories {
	return &Memories{
		log:      log.With("service", "Memories"),
		model:    model,
		memories: memories,
		index:    index,
		cfg:      cfg.withDefaults(),
	}
}

// Extract prompts the model with one exchange and stores the qualifying
// memories. Runs in the background after a response; errors are logged,
// never propagated.
func (m *Memories) Extract(ctx context.Context, sessionID uuid.UUID, userMessage, assistantResponse string) {
	if !m.cfg.Enabled {
		return
	}
	dbc := dbctx.Context{Ctx: ctx}

	out, err := m.model.GenerateJSON(ctx,
		memoryExtractionSystemPrompt,
		"User: "+userMessage+"\n\nAssistant: "+assistantResponse,
		"memory_extraction", memoryExtractionSchema)
	if err != nil {
		m.log.Warn("memory extraction failed", "session_id", sessionID, "error", err)
		observability.Current().IncCounter(
			"memory_extraction_failed_total", "Memory extraction calls that errored")
		return
	}

	items, _ := out["items"].([]any)
	if len(items) == 0 {
		return
	}

	existing, err := m.memories.ListBySession(dbc, sessionID)
	if err != nil {
		m.log.Warn("listing memories failed", "session_id", sessionID, "error", err)
		return
	}

	var toIndex []domain.Memory
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		content, _ := item["content"].(string)
		content = strings.TrimSpace(content)
		importance, _ := item["importance"].(float64)
		if content == "" || importance < m.cfg.ExtractionThreshold {
			continue
		}
		memType := parseMemoryType(item["type"])

		if dup, exact := findDuplicate(existing, content); dup != nil {
			if exact {
				continue
			}
			if importance > dup.Importance {
				if err := m.memories.UpdateImportance(dbc, dup.ID, importance); err != nil {
					m.log.Warn("importance update failed", "memory_id", dup.ID, "error", err)
					continue
				}
				dup.Importance = importance
				toIndex = append(toIndex, *dup)
				continue
			}
			// The fact resurfaced; keep it warm for eviction even when
			// the importance stays.
			if err := m.memories.TouchAccessed(dbc, []uuid.UUID{dup.ID}); err != nil {
				m.log.Warn("memory touch failed", "memory_id", dup.ID, "error", err)
			}
			continue
		}

		mem := domain.Memory{
			SessionID:     sessionID,
			MemoryContent: content,
			MemoryType:    memType,
			Importance:    importance,
		}
		if err := repos.WithLockRetry(ctx, 3, func() error {
			return m.memories.Create(dbc, &mem)
		}); err != nil {
			m.log.Warn("memory insert failed", "session_id", sessionID, "error", err)
			continue
		}
		existing = append(existing, mem)
		toIndex = append(toIndex, mem)
	}

	if err := m.enforceCap(dbc, sessionID); err != nil {
		m.log.Warn("memory cap enforcement failed", "session_id", sessionID, "error", err)
	}
	if len(toIndex) > 0 {
		m.indexMemories(ctx, toIndex)
	}
}

// GetRelevant runs hybrid search over the memory index and blends the
// semantic score with stored importance. Returned memories get their
// lastAccessedAt touched.
func (m *Memories) GetRelevant(ctx context.Context, sessionID uuid.UUID, query string, limit int) []search.MemoryDoc {
	if !m.cfg.Enabled || limit <= 0 {
		return nil
	}
	sid := sessionID.String()
	pool := limit * 4

	var vectorHits []search.Hit[search.MemoryDoc]
	if vec, err := m.model.EmbedQuery(ctx, query); err == nil && len(vec) > 0 {
		vectorHits, err = m.index.VectorSearch(ctx, search.VectorQuery{
			SessionID: sid,
			Field:     "embedding",
			Vector:    vec,
			TopK:      pool,
		})
		if err != nil {
			m.log.Warn("memory vector search failed", "error", err)
			vectorHits = nil
		}
	}
	keywordHits, err := m.index.KeywordSearch(ctx, search.KeywordQuery{
		SessionID: sid,
		Query:     query,
		Fields:    []string{"content"},
		TopK:      pool,
	})
	if err != nil {
		m.log.Warn("memory keyword search failed", "error", err)
		keywordHits = nil
	}

	type scored struct {
		doc   search.MemoryDoc
		fused float64
	}
	byID := map[string]*scored{}
	accumulate := func(hits []search.Hit[search.MemoryDoc]) {
		for rank, h := range hits {
			if h.ID == "" {
				continue
			}
			s, ok := byID[h.ID]
			if !ok {
				s = &scored{doc: h.Doc}
				byID[h.ID] = s
			}
			s.fused += 1.0 / float64(60+rank+1)
		}
	}
	accumulate(vectorHits)
	accumulate(keywordHits)
	if len(byID) == 0 {
		return nil
	}

	type ranked struct {
		doc   search.MemoryDoc
		score float64
	}
	out := make([]ranked, 0, len(byID))
	for _, s := range byID {
		semantic := s.fused * 61.0
		if semantic > 1 {
			semantic = 1
		}
		final := m.cfg.SemanticWeight*semantic + (1-m.cfg.SemanticWeight)*s.doc.Importance
		out = append(out, ranked{doc: s.doc, score: final})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].doc.MemoryID < out[j].doc.MemoryID
	})
	if len(out) > limit {
		out = out[:limit]
	}

	docs := make([]search.MemoryDoc, 0, len(out))
	ids := make([]uuid.UUID, 0, len(out))
	for _, r := range out {
		docs = append(docs, r.doc)
		if id, err := uuid.Parse(r.doc.MemoryID); err == nil {
			ids = append(ids, id)
		}
	}
	if err := m.memories.TouchAccessed(dbctx.Context{Ctx: ctx}, ids); err != nil {
		m.log.Warn("touching memories failed", "error", err)
	}
	return docs
}

// enforceCap evicts lowest-importance-then-oldest memories above the
// per-session cap, from the index first, then the store.
func (m *Memories) enforceCap(dbc dbctx.Context, sessionID uuid.UUID) error {
	count, err := m.memories.Count(dbc, sessionID)
	if err != nil {
		return err
	}
	excess := int(count) - m.cfg.MaxPerSession
	if excess <= 0 {
		return nil
	}
	victims, err := m.memories.ListEvictable(dbc, sessionID, excess)
	if err != nil {
		return err
	}
	ids := make([]uuid.UUID, 0, len(victims))
	strIDs := make([]string, 0, len(victims))
	for _, v := range victims {
		ids = append(ids, v.ID)
		strIDs = append(strIDs, v.ID.String())
	}
	if err := m.index.DeleteByIDs(dbc.Ctx, sessionID.String(), strIDs); err != nil {
		m.log.Warn("index eviction failed", "session_id", sessionID, "error", err)
	}
	if err := m.memories.DeleteByIDs(dbc, ids); err != nil {
		return err
	}
	observability.Current().AddCounter(
		"memories_evicted_total", "Memories evicted over the session cap", float64(len(ids)))
	return nil
}

func (m *Memories) indexMemories(ctx context.Context, mems []domain.Memory) {
	texts := make([]string, len(mems))
	for i, mem := range mems {
		texts[i] = mem.MemoryContent
	}
	vecs, err := m.model.Embed(ctx, texts)
	if err != nil {
		m.log.Warn("memory embedding failed", "error", err)
		vecs = make([][]float32, len(mems))
	}
	docs := make([]search.MemoryDoc, 0, len(mems))
	for i, mem := range mems {
		var vec []float32
		if i < len(vecs) {
			vec = vecs[i]
		}
		docs = append(docs, search.MemoryDoc{
			SessionID:  mem.SessionID.String(),
			MemoryID:   mem.ID.String(),
			MemoryType: string(mem.MemoryType),
			Content:    mem.MemoryContent,
			Importance: mem.Importance,
			Embedding:  vec,
		})
	}
	if _, err := m.index.BulkIndex(ctx, docs); err != nil {
		m.log.Warn("memory indexing failed", "error", err)
	}
}

// findDuplicate matches exact content (skipped outright) or substring
// containment either way (importance merged).
func findDuplicate(existing []domain.Memory, content string) (*domain.Memory, bool) {
	lowered := strings.ToLower(content)
	for i := range existing {
		have := strings.ToLower(existing[i].MemoryContent)
		if have == lowered {
			return &existing[i], true
		}
		if strings.Contains(have, lowered) || strings.Contains(lowered, have) {
			return &existing[i], false
		}
	}
	return nil, false
}

func parseMemoryType(v any) domain.MemoryType {
	s, _ := v.(string)
	switch domain.MemoryType(s) {
	case domain.MemoryTypeFact, domain.MemoryTypePreference, domain.MemoryTypeInsight:
		return domain.MemoryType(s)
	}
	return domain.MemoryTypeFact
}
