package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// MarkdownStrategy walks the markdown AST: headings build the section
// hierarchy, block content accumulates into the current section, and
// oversize sections fall back to the plain-text splitter.
type MarkdownStrategy struct {
	opts ChunkOptions
	md   goldmark.Markdown
}

func NewMarkdownStrategy(opts ChunkOptions) *MarkdownStrategy {
	return &MarkdownStrategy{
		opts: opts.withDefaults(),
		md:   goldmark.New(),
	}
}

func (s *MarkdownStrategy) Name() string { return "markdown" }

var markdownMimes = map[string]struct{}{
	"text/markdown":   {},
	"text/x-markdown": {},
}

func (s *MarkdownStrategy) Supports(mimeType string) bool {
	_, ok := markdownMimes[mimeType]
	return ok
}

type mdSection struct {
	breadcrumb []string
	blocks     []string
}

func (s *MarkdownStrategy) Chunk(doc SourceDoc) (*Result, error) {
	src := doc.Data
	root := s.md.Parser().Parse(gmtext.NewReader(src))

	var sections []mdSection
	var stack []string
	cur := mdSection{}
	var title string

	flush := func() {
		if len(cur.blocks) > 0 {
			sections = append(sections, cur)
		}
		cur = mdSection{breadcrumb: append([]string(nil), stack...)}
	}

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			flush()
			text := inlineText(h, src)
			level := h.Level
			if level < 1 {
				level = 1
			}
			if level-1 < len(stack) {
				stack = stack[:level-1]
			}
			for len(stack) < level-1 {
				stack = append(stack, "")
			}
			stack = append(stack, text)
			if title == "" && h.Level == 1 {
				title = text
			}
			cur = mdSection{breadcrumb: append([]string(nil), stack...)}
			continue
		}
		if text := blockText(n, src); text != "" {
			cur.blocks = append(cur.blocks, text)
		}
	}
	flush()

	var chunks []Chunk
	for _, sec := range sections {
		content := strings.Join(sec.blocks, "\n\n")
		for _, part := range splitText(content, s.opts) {
			chunks = append(chunks, Chunk{
				Index:      len(chunks),
				Content:    part,
				Breadcrumb: sec.breadcrumb,
				TokenCount: EstimateTokens(part),
			})
		}
	}
	return &Result{Chunks: chunks, Title: title}, nil
}

// blockText renders one top-level block as plain text. Code blocks keep
// their raw lines; external image references are skipped.
func blockText(n ast.Node, src []byte) string {
	switch t := n.(type) {
	case *ast.FencedCodeBlock:
		return rawLines(t, src)
	case *ast.CodeBlock:
		return rawLines(t, src)
	case *ast.ThematicBreak:
		return ""
	}
	return inlineText(n, src)
}

func rawLines(n interface{ Lines() *gmtext.Segments }, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch c.(type) {
			case *ast.Paragraph, *ast.ListItem:
				sb.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch tc := c.(type) {
		case *ast.Image:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			sb.Write(tc.Segment.Value(src))
			if tc.SoftLineBreak() || tc.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.AutoLink:
			sb.Write(tc.URL(src))
		case *ast.CodeSpan:
			sb.Write(tc.Text(src))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
