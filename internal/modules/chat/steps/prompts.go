package steps

import (
	"fmt"
	"strings"

	"github.com/yungbote/notebook-backend/internal/domain"
)

const systemPreamble = "You are a helpful AI assistant for document Q&A. "

const (
	promptExploring = "In EXPLORING mode, encourage broad discovery. Suggest related topics and connections. Help the user discover new insights from their documents."
	promptResearch  = "In RESEARCH mode, focus on precision and citations. Always cite specific sources. Provide fact-focused, accurate responses with clear references."
	promptLearning  = "In LEARNING mode, use the Socratic method. Ask clarifying questions. Build understanding progressively. Explain concepts step by step."
	promptDefault   = "Provide helpful, accurate responses based on the available information."
)

const contextInstruction = "\n\nProvide helpful, accurate responses based on the available information. If you don't know something or it's not in the provided context, say so clearly."

// ModeSystemPrompt is the base system prompt for the session's mode,
// before any document context is appended.
func ModeSystemPrompt(mode domain.Mode) string {
	switch mode {
	case domain.ModeExploring:
		return systemPreamble + promptExploring
	case domain.ModeResearch:
		return systemPreamble + promptResearch
	case domain.ModeLearning:
		return systemPreamble + promptLearning
	}
	return systemPreamble + promptDefault
}

// BuildDocumentContext renders the retrieved chunks as the numbered
// source block handed to the generator. Returns "" when there is nothing
// to ground on.
func BuildDocumentContext(chunks []RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("=== DOCUMENT CONTEXT ===\n")
	for i, c := range chunks {
		label := c.Chunk.FileName
		if t := strings.TrimSpace(c.Chunk.DocumentTitle); t != "" && t != c.Chunk.FileName {
			label += " - " + t
		}
		if s := strings.TrimSpace(c.Chunk.SectionTitle); s != "" {
			label += " > Section: " + s
		}
		fmt.Fprintf(&sb, "[Source %d: %s]\n%s\n\n", i+1, label, c.Chunk.Content)
	}
	sb.WriteString("=== DOCUMENT CONTEXT END ===")
	return sb.String()
}

// SystemPromptWithContext appends the document block and the grounding
// instruction when any context was assembled.
func SystemPromptWithContext(mode domain.Mode, documentContext string) string {
	base := ModeSystemPrompt(mode)
	if documentContext == "" {
		return base
	}
	return base + "\n\n" + documentContext + contextInstruction
}

const reformulationSystemPrompt = `You rewrite user questions for document retrieval in a multi-turn conversation.

Given the recent exchange, the broader conversation history and the user's latest question, decide whether the question depends on conversation context (pronouns, ellipsis, "it", "that", "the second one", ...). If so, rewrite it as a fully self-contained search query. If the question already stands alone, keep it unchanged.

Also decide whether the question is a follow-up to the previous answer, meaning it asks for more detail about the same subject rather than opening a new topic.

Respond with JSON only.`

var reformulationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"needsReformulation": map[string]any{"type": "boolean"},
		"isFollowUp":         map[string]any{"type": "boolean"},
		"query":              map[string]any{"type": "string"},
		"reasoning":          map[string]any{"type": "string"},
	},
	"required":             []string{"needsReformulation", "isFollowUp", "query", "reasoning"},
	"additionalProperties": false,
}

func reformulationUserPrompt(recentExchange, fullHistory, originalQuery string) string {
	var sb strings.Builder
	sb.WriteString("Recent exchange:\n")
	if recentExchange == "" {
		sb.WriteString("(none)\n")
	} else {
		sb.WriteString(recentExchange)
	}
	sb.WriteString("\nConversation history:\n")
	if fullHistory == "" {
		sb.WriteString("(none)\n")
	} else {
		sb.WriteString(fullHistory)
	}
	sb.WriteString("\nLatest question: ")
	sb.WriteString(originalQuery)
	return sb.String()
}

const summarySystemPrompt = `You summarize a batch of chat messages from a document Q&A conversation.

Preserve facts, decisions, user preferences and document references. Keep the summary concise and written in the third person. Do not add information that is not in the messages.`

const memoryExtractionSystemPrompt = `You extract long-lived session memories from one question/answer exchange in a document Q&A conversation.

Return a JSON object with an "items" array. Each item has:
- "type": one of "fact", "preference", "insight"
- "content": a single self-contained sentence
- "importance": a number in [0,1]

Extract only information worth remembering across the whole session: stable facts about the user's documents or goals, explicit preferences, notable conclusions. Return an empty array when nothing qualifies.`

var memoryExtractionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type":       map[string]any{"type": "string", "enum": []string{"fact", "preference", "insight"}},
					"content":    map[string]any{"type": "string"},
					"importance": map[string]any{"type": "number"},
				},
				"required":             []string{"type", "content", "importance"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"items"},
	"additionalProperties": false,
}

const verificationSystemPrompt = `You judge whether a claim is supported by a source passage.

Respond with a single number between 0 and 1: 1 means the passage fully supports the claim, 0 means it contradicts or does not mention it. Respond with the number only.`

func verificationUserPrompt(claim, source string) string {
	return "Claim: " + claim + "\n\nSource passage:\n" + source
}
