package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/notebook-backend/internal/data/repos"
	"github.com/yungbote/notebook-backend/internal/domain"
	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/dbctx"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// Compactor replaces old transcript batches with LLM summaries so prompt
// context stays bounded. The sliding window of newest messages is never
// compacted.
type Compactor struct {
	log       *logger.Logger
	db        *gorm.DB
	model     Model
	messages  repos.ChatMessageRepo
	summaries repos.SummaryRepo
	cfg       CompactionConfig
}

func NewCompactor(log *logger.Logger, db *gorm.DB, model Model, messages repos.ChatMessageRepo, summaries repos.SummaryRepo, cfg CompactionConfig) *Compactor {
	return &Compactor{
		log:       log.With("service", "Compactor"),
		db:        db,
		model:     model,
		messages:  messages,
		summaries: summaries,
		cfg:       cfg.withDefaults(),
	}
}

// MaybeCompact checks the thresholds and, when due, compacts the oldest
// batch of messages beyond the sliding window into one summary. The
// summary insert and the isCompacted flip are a single transaction.
func (c *Compactor) MaybeCompact(ctx context.Context, sessionID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}

	n, err := c.messages.CountNonCompacted(dbc, sessionID)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	if int(n) <= c.cfg.SlidingWindowSize {
		return nil
	}
	tokens, err := c.messages.SumNonCompactedTokens(dbc, sessionID)
	if err != nil {
		return fmt.Errorf("sum tokens: %w", err)
	}
	if int(n) <= c.cfg.MessageThreshold && int(tokens) <= c.cfg.TokenThreshold {
		return nil
	}

	msgs, err := c.messages.ListNonCompactedAsc(dbc, sessionID)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	beyondWindow := len(msgs) - c.cfg.SlidingWindowSize
	if beyondWindow <= 0 {
		return nil
	}
	if beyondWindow > c.cfg.BatchSize {
		beyondWindow = c.cfg.BatchSize
	}
	batch := msgs[:beyondWindow]

	summaryText := c.summarize(ctx, batch)

	originalTokens := 0
	ids := make([]uuid.UUID, 0, len(batch))
	for _, m := range batch {
		originalTokens += m.TokenCount
		ids = append(ids, m.ID)
	}

	summary := domain.ChatSummary{
		SessionID:          sessionID,
		SummaryContent:     summaryText,
		FromTimestamp:      batch[0].CreatedAt,
		ToTimestamp:        batch[len(batch)-1].CreatedAt,
		MessageCount:       len(batch),
		OriginalTokenCount: originalTokens,
		TokenCount:         estimateTokens(summaryText),
	}

	err = repos.WithLockRetry(ctx, 3, func() error {
		return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			txc := dbctx.Context{Ctx: ctx, Tx: tx}
			if err := c.summaries.Create(txc, &summary); err != nil {
				return err
			}
			return c.messages.MarkCompacted(txc, ids, summary.ID)
		})
	})
	if err != nil {
		return fmt.Errorf("persist compaction: %w", err)
	}

	c.log.Info("transcript compacted",
		"session_id", sessionID,
		"messages", len(batch),
		"original_tokens", originalTokens)
	observability.Current().IncCounter(
		"compactions_total", "Transcript batches compacted into summaries")
	return nil
}

// summarize asks the model for a summary; on failure it degrades to
// concatenated first sentences.
func (c *Compactor) summarize(ctx context.Context, batch []domain.ChatMessage) string {
	var sb strings.Builder
	for _, m := range batch {
		role := string(m.Role)
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteByte('\n')
	}

	text, err := c.model.GenerateText(ctx, summarySystemPrompt, sb.String())
	if err == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}
	if err != nil {
		c.log.Warn("summary generation failed, using first-sentence fallback", "error", err)
		observability.Current().IncCounter(
			"compaction_fallback_total", "Compactions that used the first-sentence fallback")
	}

	parts := make([]string, 0, len(batch))
	for _, m := range batch {
		parts = append(parts, firstSentence(m.Content, 100))
	}
	return strings.Join(parts, " ")
}

// firstSentence returns the first sentence of text, hard-truncated at
// maxChars runes.
func firstSentence(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？' {
			text = text[:i+len(string(r))]
			break
		}
	}
	runes := []rune(text)
	if len(runes) > maxChars {
		return string(runes[:maxChars])
	}
	return text
}

// estimateTokens is the ceil(len/4) heuristic used for budgeting
// throughout the service.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
