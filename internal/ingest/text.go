package ingest

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkOptions bounds chunk sizes. ChunkTokens is a soft sliding budget;
// MaxChunkChars is the hard limit no chunk may exceed.
type ChunkOptions struct {
	ChunkTokens   int
	OverlapTokens int
	MaxChunkChars int
}

func (o ChunkOptions) withDefaults() ChunkOptions {
	if o.ChunkTokens <= 0 {
		o.ChunkTokens = 512
	}
	if o.OverlapTokens < 0 {
		o.OverlapTokens = 0
	}
	if o.MaxChunkChars <= 0 {
		o.MaxChunkChars = 3500
	}
	return o
}

// EstimateTokens is the ceil(len/4) heuristic. ASCII-biased; only ever
// used for budgeting, never as a hard limit.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TextStrategy is the catch-all: paragraph splitting with sentence and
// hard-character fallbacks for oversize spans.
type TextStrategy struct {
	opts ChunkOptions
}

func NewTextStrategy(opts ChunkOptions) *TextStrategy {
	return &TextStrategy{opts: opts.withDefaults()}
}

func (s *TextStrategy) Name() string { return "text" }

func (s *TextStrategy) Supports(string) bool { return true }

func (s *TextStrategy) Chunk(doc SourceDoc) (*Result, error) {
	parts := splitText(string(doc.Data), s.opts)
	chunks := make([]Chunk, 0, len(parts))
	for i, content := range parts {
		chunks = append(chunks, Chunk{
			Index:      i,
			Content:    content,
			TokenCount: EstimateTokens(content),
		})
	}
	return &Result{Chunks: chunks}, nil
}

var paragraphRe = regexp.MustCompile(`\n[ \t]*\n+`)

// splitText packs paragraphs into chunks under both budgets, carrying an
// overlap tail across chunk boundaries.
func splitText(text string, opts ChunkOptions) []string {
	opts = opts.withDefaults()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var pieces []string
	for _, para := range paragraphRe.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= opts.MaxChunkChars {
			pieces = append(pieces, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if utf8.RuneCountInString(sent) <= opts.MaxChunkChars {
				pieces = append(pieces, sent)
				continue
			}
			pieces = append(pieces, hardSplit(sent, opts.MaxChunkChars-100)...)
		}
	}

	overlapChars := opts.OverlapTokens * 4

	var out []string
	var cur strings.Builder
	curRunes := 0

	flush := func() string {
		if cur.Len() == 0 {
			return ""
		}
		chunk := strings.TrimSpace(cur.String())
		cur.Reset()
		curRunes = 0
		if chunk != "" {
			out = append(out, chunk)
		}
		return chunk
	}

	for _, piece := range pieces {
		pieceRunes := utf8.RuneCountInString(piece)

		overBudget := cur.Len() > 0 &&
			(EstimateTokens(cur.String())+EstimateTokens(piece) > opts.ChunkTokens ||
				curRunes+pieceRunes+2 > opts.MaxChunkChars)
		if overBudget {
			prev := flush()
			if overlapChars > 0 && prev != "" {
				tail := overlapTail(prev, overlapChars)
				// The tail must never push the next chunk past the
				// hard budget.
				if room := opts.MaxChunkChars - pieceRunes - 2; room < utf8.RuneCountInString(tail) {
					if room > 0 {
						tail = overlapTail(tail, room)
					} else {
						tail = ""
					}
				}
				if tail != "" {
					cur.WriteString(tail)
					curRunes = utf8.RuneCountInString(tail)
				}
			}
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
			curRunes += 2
		}
		cur.WriteString(piece)
		curRunes += pieceRunes
	}
	flush()
	return out
}

// sentence terminators; CJK stops break without trailing whitespace.
func splitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		cjkStop := r == '。' || r == '！' || r == '？'
		asciiStop := (r == '.' || r == '!' || r == '?') &&
			(i+1 >= len(runes) || unicode.IsSpace(runes[i+1]))
		if !cjkStop && !asciiStop {
			continue
		}
		sent := strings.TrimSpace(string(runes[start : i+1]))
		if sent != "" {
			out = append(out, sent)
		}
		start = i + 1
	}
	if start < len(runes) {
		if sent := strings.TrimSpace(string(runes[start:])); sent != "" {
			out = append(out, sent)
		}
	}
	return out
}

// hardSplit cuts at rune boundaries so multi-byte sequences stay intact.
func hardSplit(text string, size int) []string {
	if size < 200 {
		size = 200
	}
	runes := []rune(text)
	out := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if p := strings.TrimSpace(string(runes[start:end])); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// overlapTail returns the last maxChars runes of text, advanced to a
// word boundary when one exists.
func overlapTail(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	tail := runes[len(runes)-maxChars:]
	for i, r := range tail {
		if unicode.IsSpace(r) {
			return strings.TrimSpace(string(tail[i:]))
		}
	}
	return string(tail)
}
