package steps

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// ClaimCheck is the verification verdict for one cited sentence.
type ClaimCheck struct {
	Sentence    string  `json:"sentence"`
	SourceIndex int     `json:"sourceIndex"` // 1-based, as cited
	Score       float64 `json:"score"`
	Flagged     bool    `json:"flagged"`
}

// VerificationResult is advisory metadata attached to a response; it
// never blocks delivery.
type VerificationResult struct {
	Claims  []ClaimCheck `json:"claims"`
	Flagged int          `json:"flagged"`
}

// Verifier scores each cited claim in a generated answer against the
// chunk it cites.
type Verifier struct {
	log   *logger.Logger
	model Model
	cfg   VerificationConfig
}

func NewVerifier(log *logger.Logger, model Model, cfg VerificationConfig) *Verifier {
	return &Verifier{
		log:   log.With("service", "Verifier"),
		model: model,
		cfg:   cfg.withDefaults(),
	}
}

var citationRe = regexp.MustCompile(`[\[(](?:Source\s+)?(\d+)[\])]`)

// Verify extracts cited sentences from the answer and scores each
// against its source chunk. Returns nil when verification is disabled or
// nothing is cited.
func (v *Verifier) Verify(ctx context.Context, answer string, sources []RetrievedChunk) *VerificationResult {
	if !v.cfg.Enabled || len(sources) == 0 {
		return nil
	}

	var result VerificationResult
	for _, sentence := range splitAnswerSentences(answer) {
		matches := citationRe.FindAllStringSubmatch(sentence, -1)
		if len(matches) == 0 {
			continue
		}
		cited := map[int]bool{}
		for _, m := range matches {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 || n > len(sources) || cited[n] {
				continue
			}
			cited[n] = true

			score := v.scoreClaim(ctx, sentence, sources[n-1].Chunk.Content)
			check := ClaimCheck{
				Sentence:    sentence,
				SourceIndex: n,
				Score:       score,
				Flagged:     score < v.cfg.SupportThreshold,
			}
			if check.Flagged {
				result.Flagged++
			}
			result.Claims = append(result.Claims, check)
		}
	}
	if len(result.Claims) == 0 {
		return nil
	}
	if result.Flagged > 0 {
		v.log.Info("verification flagged claims",
			"flagged", result.Flagged, "total", len(result.Claims))
		observability.Current().AddCounter(
			"verification_flagged_total", "Claims scored under the support threshold", float64(result.Flagged))
	}
	return &result
}

// scoreClaim asks the model for a 0..1 support score. Unparsable
// responses score 0.5; everything is clamped into [0,1].
func (v *Verifier) scoreClaim(ctx context.Context, claim, source string) float64 {
	if runes := []rune(source); len(runes) > 1000 {
		source = string(runes[:1000])
	}
	text, err := v.model.GenerateText(ctx, verificationSystemPrompt, verificationUserPrompt(claim, source))
	if err != nil {
		v.log.Warn("claim scoring failed", "error", err)
		return 0.5
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0.5
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// splitAnswerSentences is a light sentence split tolerant of citation
// markers trailing the terminator.
func splitAnswerSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' && r != '。' && r != '！' && r != '？' && r != '\n' {
			continue
		}
		// Keep a citation that immediately follows the terminator with
		// the sentence it closes.
		end := i + 1
		for end < len(runes) && runes[end] == ' ' {
			end++
		}
		if end < len(runes) && (runes[end] == '[' || runes[end] == '(') {
			for end < len(runes) && runes[end] != ']' && runes[end] != ')' {
				end++
			}
			if end < len(runes) {
				end++
			}
			i = end - 1
		} else {
			end = i + 1
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}
