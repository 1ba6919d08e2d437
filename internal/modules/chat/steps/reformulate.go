package steps

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/notebook-backend/internal/data/repos"
	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
	"github.com/yungbote/notebook-backend/internal/search"
)

// Reformulator rewrites a user question into a self-contained search
// query using the conversation so far, and classifies whether it is a
// follow-up that should anchor to the previous answer's documents.
//
// It never fails: every internal error degrades to the original query.
type Reformulator struct {
	log      *logger.Logger
	model    Model
	messages repos.ChatMessageRepo
	index    MessageSearcher
	cfg      ReformulationConfig
}

func NewReformulator(log *logger.Logger, model Model, messages repos.ChatMessageRepo, index MessageSearcher, cfg ReformulationConfig) *Reformulator {
	return &Reformulator{
		log:      log.With("service", "Reformulator"),
		model:    model,
		messages: messages,
		index:    index,
		cfg:      cfg.withDefaults(),
	}
}

// historyEntry is one merged transcript line, from either the
// authoritative store or the message index.
type historyEntry struct {
	id      string
	role    string
	content string
	tsMilli int64
}

func (r *Reformulator) Reformulate(ctx context.Context, sessionID uuid.UUID, originalQuery string) ReformulatedQuery {
	passthrough := ReformulatedQuery{Query: originalQuery}
	if !r.cfg.Enabled {
		return passthrough
	}
	dbc := dbctx.Context{Ctx: ctx}

	// The last exchange is always included, whatever semantic search
	// thinks: follow-ups usually refer to it.
	recentMsgs, err := r.messages.ListRecent(dbc, sessionID, r.cfg.MinRecentMessages)
	if err != nil {
		r.log.Warn("loading recent messages failed", "session_id", sessionID, "error", err)
		return r.fallback(passthrough)
	}
	recent := make([]historyEntry, 0, len(recentMsgs))
	for _, m := range recentMsgs {
		recent = append(recent, historyEntry{
			id:      m.ID.String(),
			role:    string(m.Role),
			content: m.Content,
			tsMilli: m.CreatedAt.UnixMilli(),
		})
	}
	if len(recent) == 0 {
		// Nothing to disambiguate against on the first turn.
		return passthrough
	}

	semantic := r.semanticHistory(ctx, sessionID.String(), originalQuery)

	merged := recent
	seen := map[string]bool{}
	for _, e := range recent {
		seen[e.id] = true
	}
	for _, e := range semantic {
		if len(merged) >= r.cfg.HistoryWindow {
			break
		}
		if seen[e.id] {
			continue
		}
		seen[e.id] = true
		merged = append(merged, e)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].tsMilli < merged[j].tsMilli })

	recentChrono := append([]historyEntry(nil), recent...)
	sort.SliceStable(recentChrono, func(i, j int) bool { return recentChrono[i].tsMilli < recentChrono[j].tsMilli })

	anchors := r.anchorDocumentIDs(dbc, sessionID)

	out, err := r.model.GenerateJSON(ctx,
		reformulationSystemPrompt,
		reformulationUserPrompt(transcript(recentChrono), transcript(merged), originalQuery),
		"query_reformulation", reformulationSchema)
	if err != nil {
		r.log.Warn("reformulation call failed", "session_id", sessionID, "error", err)
		return r.fallback(passthrough)
	}

	query, _ := out["query"].(string)
	needs, _ := out["needsReformulation"].(bool)
	isFollowUp, _ := out["isFollowUp"].(bool)

	query = strings.TrimSpace(query)
	if query == "" || !needs {
		query = originalQuery
	}
	if runes := []rune(query); len(runes) > r.cfg.MaxQueryLength {
		query = string(runes[:r.cfg.MaxQueryLength])
	}

	result := ReformulatedQuery{Query: query, IsFollowUp: isFollowUp}
	if isFollowUp {
		result.AnchorDocumentIDs = anchors
	}
	if query != originalQuery {
		r.log.Debug("query reformulated", "session_id", sessionID, "is_follow_up", isFollowUp)
	}
	return result
}

// semanticHistory runs hybrid search over the chat-message index and
// returns the fused top HistoryWindow entries. Best-effort: any failure
// yields an empty list.
func (r *Reformulator) semanticHistory(ctx context.Context, sessionID, query string) []historyEntry {
	pool := r.cfg.HistoryWindow * r.cfg.CandidatePoolMultiplier

	var vectorHits []search.Hit[search.MessageDoc]
	if vec, err := r.model.EmbedQuery(ctx, query); err == nil && len(vec) > 0 {
		vectorHits, err = r.index.VectorSearch(ctx, search.VectorQuery{
			SessionID: sessionID,
			Field:     "embedding",
			Vector:    vec,
			TopK:      pool,
		})
		if err != nil {
			r.log.Warn("message vector search failed", "error", err)
			vectorHits = nil
		}
	}
	keywordHits, err := r.index.KeywordSearch(ctx, search.KeywordQuery{
		SessionID: sessionID,
		Query:     query,
		Fields:    []string{"content"},
		TopK:      pool,
	})
	if err != nil {
		r.log.Warn("message keyword search failed", "error", err)
		keywordHits = nil
	}

	type fusedMsg struct {
		doc   search.MessageDoc
		score float64
	}
	byID := map[string]*fusedMsg{}
	accumulate := func(hits []search.Hit[search.MessageDoc]) {
		for rank, h := range hits {
			if h.ID == "" {
				continue
			}
			f, ok := byID[h.ID]
			if !ok {
				f = &fusedMsg{doc: h.Doc}
				byID[h.ID] = f
			}
			f.score += 1.0 / float64(60+rank+1)
		}
	}
	accumulate(vectorHits)
	accumulate(keywordHits)

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if byID[ids[i]].score != byID[ids[j]].score {
			return byID[ids[i]].score > byID[ids[j]].score
		}
		return ids[i] < ids[j]
	})
	if len(ids) > r.cfg.HistoryWindow {
		ids = ids[:r.cfg.HistoryWindow]
	}

	out := make([]historyEntry, 0, len(ids))
	for _, id := range ids {
		d := byID[id].doc
		out = append(out, historyEntry{
			id:      d.MessageID,
			role:    d.Role,
			content: d.Content,
			tsMilli: d.Timestamp,
		})
	}
	return out
}

// anchorDocumentIDs reads the document lineage off the latest assistant
// message.
func (r *Reformulator) anchorDocumentIDs(dbc dbctx.Context, sessionID uuid.UUID) []string {
	last, err := r.messages.LatestAssistant(dbc, sessionID)
	if err != nil || last == nil || len(last.RetrievedContext) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(last.RetrievedContext, &ids); err != nil {
		r.log.Warn("unparsable retrieved context", "message_id", last.ID, "error", err)
		return nil
	}
	return ids
}

func (r *Reformulator) fallback(q ReformulatedQuery) ReformulatedQuery {
	observability.Current().IncCounter(
		"reformulation_fallback_total", "Reformulations degraded to the original query")
	return q
}

// transcript renders entries chronologically as "Role: content" lines.
func transcript(entries []historyEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		role := e.role
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(e.content)
		sb.WriteByte('\n')
	}
	return sb.String()
}
