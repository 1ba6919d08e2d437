package ingest

import (
	"strings"
	"testing"
)

const sampleMarkdown = `# User Guide

Intro paragraph about the product.

## Installation

Run the installer and follow the prompts.

### Linux

Use the tarball release.

## Configuration

Edit the config file.

` + "```yaml\nserver:\n  port: 8080\n```" + `

![diagram](images/arch.png)
`

func TestMarkdownBreadcrumbs(t *testing.T) {
	s := NewMarkdownStrategy(ChunkOptions{})
	res, err := s.Chunk(SourceDoc{FileName: "guide.md", MimeType: "text/markdown", Data: []byte(sampleMarkdown)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "User Guide" {
		t.Fatalf("expected title from H1, got %q", res.Title)
	}

	byContent := func(substr string) *Chunk {
		for i := range res.Chunks {
			if strings.Contains(res.Chunks[i].Content, substr) {
				return &res.Chunks[i]
			}
		}
		t.Fatalf("no chunk containing %q", substr)
		return nil
	}

	intro := byContent("Intro paragraph")
	if got := strings.Join(intro.Breadcrumb, " > "); got != "User Guide" {
		t.Fatalf("intro breadcrumb: %q", got)
	}

	linux := byContent("tarball")
	if got := strings.Join(linux.Breadcrumb, " > "); got != "User Guide > Installation > Linux" {
		t.Fatalf("nested breadcrumb: %q", got)
	}

	config := byContent("config file")
	if got := strings.Join(config.Breadcrumb, " > "); got != "User Guide > Configuration" {
		t.Fatalf("sibling section breadcrumb: %q", got)
	}
}

func TestMarkdownKeepsCodeBlocksSkipsImages(t *testing.T) {
	s := NewMarkdownStrategy(ChunkOptions{})
	res, err := s.Chunk(SourceDoc{FileName: "guide.md", MimeType: "text/markdown", Data: []byte(sampleMarkdown)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all := ""
	for _, c := range res.Chunks {
		all += c.Content + "\n"
	}
	if !strings.Contains(all, "port: 8080") {
		t.Fatalf("code block content lost")
	}
	if strings.Contains(all, "arch.png") || strings.Contains(all, "diagram") {
		t.Fatalf("image reference leaked into chunk text")
	}
}

func TestMarkdownSkippedHeadingLevels(t *testing.T) {
	src := "# Top\n\n### Deep\n\nBody text here.\n"
	s := NewMarkdownStrategy(ChunkOptions{})
	res, err := s.Chunk(SourceDoc{FileName: "x.md", MimeType: "text/markdown", Data: []byte(src)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(res.Chunks))
	}
	// An H3 directly under an H1 pads the missing level.
	got := res.Chunks[0].Breadcrumb
	if len(got) != 3 || got[0] != "Top" || got[1] != "" || got[2] != "Deep" {
		t.Fatalf("breadcrumb with skipped level: %q", got)
	}
}

func TestRouterPicksStrategyByMime(t *testing.T) {
	r := NewRouter(ChunkOptions{})

	cases := []struct {
		mime string
		want string
	}{
		{"application/pdf", "pdf"},
		{"application/x-pdf", "pdf"},
		{"text/markdown", "markdown"},
		{"text/markdown; charset=utf-8", "markdown"},
		{"TEXT/X-MARKDOWN", "markdown"},
		{"text/plain", "text"},
		{"application/octet-stream", "text"},
		{"", "text"},
	}
	for _, tc := range cases {
		if got := r.Pick(tc.mime).Name(); got != tc.want {
			t.Fatalf("mime %q: expected %q, got %q", tc.mime, tc.want, got)
		}
	}
}

func TestDocumentTitleFallbacks(t *testing.T) {
	res := &Result{Chunks: []Chunk{{Breadcrumb: []string{"Quarterly Report"}}}}
	if got := DocumentTitle(res, "q3.pdf"); got != "Quarterly Report" {
		t.Fatalf("breadcrumb root: got %q", got)
	}

	res = &Result{Title: "Explicit", Chunks: []Chunk{{}}}
	if got := DocumentTitle(res, "q3.pdf"); got != "Explicit" {
		t.Fatalf("strategy title: got %q", got)
	}

	res = &Result{Chunks: []Chunk{{}}}
	if got := DocumentTitle(res, "annual_report-2024.pdf"); got != "Annual report 2024" {
		t.Fatalf("cleaned filename: got %q", got)
	}
}
