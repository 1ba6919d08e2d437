package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/notebook-backend/internal/data/repos"
	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/ingest"
	"github.com/yungbote/notebook-backend/internal/jobs/worker"
	"github.com/yungbote/notebook-backend/internal/modules/chat/steps"
	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
	"github.com/yungbote/notebook-backend/internal/platform/openai"
	"github.com/yungbote/notebook-backend/internal/search"
)

// ErrSessionNotFound is surfaced as 404 by the transport layer.
var ErrSessionNotFound = fmt.Errorf("session not found")

// MessageIndexWriter is the write side of the chat-message index.
type MessageIndexWriter interface {
	BulkIndex(ctx context.Context, docs []search.MessageDoc) (int, error)
}

// ChatConfig tunes the conversation core.
type ChatConfig struct {
	SlidingWindowSize  int
	MemoryContextLimit int
	StreamTimeout      time.Duration
}

func (c ChatConfig) withDefaults() ChatConfig {
	if c.SlidingWindowSize <= 0 {
		c.SlidingWindowSize = 10
	}
	if c.MemoryContextLimit < 0 {
		c.MemoryContextLimit = 5
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = 60 * time.Second
	}
	return c
}

// ChatService is the streaming conversation core: persist, reformulate,
// retrieve, generate, cite, persist, index, then maintain in the
// background.
type ChatService struct {
	log          *logger.Logger
	sessions     repos.SessionRepo
	messages     repos.ChatMessageRepo
	summaries    repos.SummaryRepo
	model        steps.Model
	reformulator *steps.Reformulator
	retriever    *steps.Retriever
	memories     *steps.Memories
	compactor    *steps.Compactor
	verifier     *steps.Verifier
	messageIndex MessageIndexWriter
	pool         *worker.Pool
	cfg          ChatConfig
	verifyCfg    steps.VerificationConfig
}

func NewChatService(
	log *logger.Logger,
	sessions repos.SessionRepo,
	messages repos.ChatMessageRepo,
	summaries repos.SummaryRepo,
	model steps.Model,
	reformulator *steps.Reformulator,
	retriever *steps.Retriever,
	memories *steps.Memories,
	compactor *steps.Compactor,
	verifier *steps.Verifier,
	messageIndex MessageIndexWriter,
	pool *worker.Pool,
	cfg ChatConfig,
	verifyCfg steps.VerificationConfig,
) *ChatService {
	return &ChatService{
		log:          log.With("service", "ChatService"),
		sessions:     sessions,
		messages:     messages,
		summaries:    summaries,
		model:        model,
		reformulator: reformulator,
		retriever:    retriever,
		memories:     memories,
		compactor:    compactor,
		verifier:     verifier,
		messageIndex: messageIndex,
		pool:         pool,
		cfg:          cfg.withDefaults(),
		verifyCfg:    verifyCfg,
	}
}

// ListMessages returns the newest messages of a session in
// chronological order.
func (s *ChatService) ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.ChatMessage, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.sessions.GetByID(dbc, sessionID); err != nil {
		if err == repos.ErrNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	msgs, err := s.messages.ListRecent(dbc, sessionID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// StreamChat runs one conversation turn. The returned channel carries
// Token/Citation/Done/Error events and is closed when the turn ends.
// Cancelling ctx terminates generation; persisted messages remain.
func (s *ChatService) StreamChat(ctx context.Context, sessionID uuid.UUID, userMessage string) (<-chan steps.Event, error) {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return nil, fmt.Errorf("empty message")
	}
	dbc := dbctx.Context{Ctx: ctx}

	session, err := s.sessions.GetByID(dbc, sessionID)
	if err != nil {
		if err == repos.ErrNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	userMsg := &domain.ChatMessage{
		SessionID:  sessionID,
		Role:       domain.RoleUser,
		Content:    userMessage,
		TokenCount: ingest.EstimateTokens(userMessage),
	}
	if err := repos.WithLockRetry(ctx, 3, func() error {
		return s.messages.Create(dbc, userMsg)
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	events := make(chan steps.Event, 64)
	go s.run(ctx, session, userMsg, events)
	return events, nil
}

func (s *ChatService) run(ctx context.Context, session *domain.Session, userMsg *domain.ChatMessage, events chan<- steps.Event) {
	defer close(events)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StreamTimeout)
	defer cancel()

	sessionID := session.ID
	log := s.log.With("session_id", sessionID)
	start := time.Now()

	q := s.reformulator.Reformulate(ctx, sessionID, userMsg.Content)

	result, err := s.retriever.Search(ctx, sessionID.String(), q.Query, session.Mode, q.AnchorDocumentIDs)
	if err != nil {
		// Retrieval failures never abort the stream; the generator runs
		// without document grounding.
		log.Warn("retrieval failed, answering without context", "error", err)
		result = &steps.SearchResult{Query: q.Query}
	}
	confidence := steps.ScoreConfidence(result, s.verifyCfg)
	observability.Current().IncCounter(
		"chat_confidence_total", "Retrieval confidence levels", "level", string(confidence.Level))

	turns, err := s.buildTurns(ctx, session, userMsg, q.Query, result)
	if err != nil {
		log.Error("context assembly failed", "error", err)
		s.emitError(events, log, err)
		return
	}

	answer, err := s.model.StreamChat(ctx, turns, func(delta string) {
		events <- steps.TokenEvent(delta)
	})
	if err != nil {
		s.emitError(events, log, err)
		return
	}

	for _, c := range result.FinalResults {
		events <- steps.CitationEvent(steps.Citation{
			SourceFileName: c.Chunk.FileName,
			Snippet:        snippet(c.Chunk.Content, 100),
		})
	}

	assistantMsg := &domain.ChatMessage{
		SessionID:  sessionID,
		Role:       domain.RoleAssistant,
		Content:    answer,
		TokenCount: ingest.EstimateTokens(answer),
	}
	if ids := result.DocumentIDs(); len(ids) > 0 {
		if raw, err := json.Marshal(ids); err == nil {
			assistantMsg.RetrievedContext = datatypes.JSON(raw)
		}
	}
	// Persistence must survive client disconnects mid-stream.
	persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer persistCancel()
	if err := repos.WithLockRetry(persistCtx, 3, func() error {
		return s.messages.Create(dbctx.Context{Ctx: persistCtx}, assistantMsg)
	}); err != nil {
		log.Error("persisting assistant message failed", "error", err)
		s.emitError(events, log, err)
		return
	}

	s.scheduleMaintenance(sessionID, userMsg, assistantMsg, answer, result)

	events <- steps.DoneEvent(steps.Done{
		MessageID:  assistantMsg.ID,
		TokenCount: assistantMsg.TokenCount,
	})
	observability.Current().ObserveSeconds(
		"chat_stream_duration_seconds", "Full StreamChat latency", time.Since(start).Seconds())
}

// buildTurns assembles the ordered prompt: mode system prompt with the
// document block, the latest summary, relevant memories, then the
// sliding window ending in the current user message.
func (s *ChatService) buildTurns(ctx context.Context, session *domain.Session, userMsg *domain.ChatMessage, query string, result *steps.SearchResult) ([]openai.Turn, error) {
	dbc := dbctx.Context{Ctx: ctx}

	docContext := steps.BuildDocumentContext(result.FinalResults)
	turns := []openai.Turn{{
		Role:    openai.RoleSystem,
		Content: steps.SystemPromptWithContext(session.Mode, docContext),
	}}

	latest, err := s.summaries.Latest(dbc, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load summary: %w", err)
	}
	if latest != nil {
		turns = append(turns, openai.Turn{
			Role:    openai.RoleSystem,
			Content: "Summary of the earlier conversation:\n" + latest.SummaryContent,
		})
	}

	if s.cfg.MemoryContextLimit > 0 {
		if mems := s.memories.GetRelevant(ctx, session.ID, query, s.cfg.MemoryContextLimit); len(mems) > 0 {
			var sb strings.Builder
			sb.WriteString("Relevant session memories:\n")
			for _, m := range mems {
				sb.WriteString("- ")
				sb.WriteString(m.Content)
				sb.WriteByte('\n')
			}
			turns = append(turns, openai.Turn{Role: openai.RoleSystem, Content: sb.String()})
		}
	}

	window, err := s.messages.ListWindow(dbc, session.ID, s.cfg.SlidingWindowSize)
	if err != nil {
		return nil, fmt.Errorf("load window: %w", err)
	}
	sawUser := false
	for _, m := range window {
		turns = append(turns, openai.Turn{Role: string(m.Role), Content: m.Content})
		if m.ID == userMsg.ID {
			sawUser = true
		}
	}
	// The just-persisted user message is normally the window's tail; a
	// tiny window can push it out.
	if !sawUser {
		turns = append(turns, openai.Turn{Role: openai.RoleUser, Content: userMsg.Content})
	}
	return turns, nil
}

// scheduleMaintenance runs indexing, memory extraction, compaction and
// verification off the request path. Failures are logged only.
func (s *ChatService) scheduleMaintenance(sessionID uuid.UUID, userMsg, assistantMsg *domain.ChatMessage, answer string, result *steps.SearchResult) {
	log := s.log.With("session_id", sessionID)
	finals := result.FinalResults

	s.pool.Submit(func(ctx context.Context) {
		s.indexMessages(ctx, sessionID, userMsg, assistantMsg)
	})
	s.pool.Submit(func(ctx context.Context) {
		s.memories.Extract(ctx, sessionID, userMsg.Content, answer)
	})
	s.pool.Submit(func(ctx context.Context) {
		if err := s.compactor.MaybeCompact(ctx, sessionID); err != nil {
			log.Warn("compaction failed", "error", err)
		}
	})
	if s.verifier != nil {
		s.pool.Submit(func(ctx context.Context) {
			if v := s.verifier.Verify(ctx, answer, finals); v != nil && v.Flagged > 0 {
				log.Info("answer verification flagged claims",
					"message_id", assistantMsg.ID, "flagged", v.Flagged, "claims", len(v.Claims))
			}
		})
	}
}

func (s *ChatService) indexMessages(ctx context.Context, sessionID uuid.UUID, msgs ...*domain.ChatMessage) {
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Content
	}
	vecs, err := s.model.Embed(ctx, texts)
	if err != nil {
		s.log.Warn("message embedding failed", "session_id", sessionID, "error", err)
		vecs = make([][]float32, len(msgs))
	}
	docs := make([]search.MessageDoc, 0, len(msgs))
	for i, m := range msgs {
		var vec []float32
		if i < len(vecs) {
			vec = vecs[i]
		}
		docs = append(docs, search.MessageDoc{
			SessionID: sessionID.String(),
			MessageID: m.ID.String(),
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.CreatedAt.UnixMilli(),
			Embedding: vec,
		})
	}
	if _, err := s.messageIndex.BulkIndex(ctx, docs); err != nil {
		s.log.Warn("message indexing failed", "session_id", sessionID, "error", err)
	}
}

func (s *ChatService) emitError(events chan<- steps.Event, log *logger.Logger, err error) {
	errorID := uuid.NewString()
	log.Error("chat stream failed", "error_id", errorID, "error", err)
	observability.Current().IncCounter(
		"chat_stream_errors_total", "Streams that ended with an Error event")
	events <- steps.ErrorEvent(steps.Error{
		ErrorID: errorID,
		Message: "Something went wrong while generating the response. Please try again.",
	})
}

func snippet(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) > maxChars {
		runes = runes[:maxChars]
	}
	return string(runes) + "..."
}
