package ingest

import (
	"strings"
	"testing"
)

func TestImageGroupIDGroupsByPage(t *testing.T) {
	if got := imageGroupID(1, 0, "Im1"); got != "img-1000-im1" {
		t.Fatalf("page 1 first image: %q", got)
	}
	if got := imageGroupID(1, 1, "Im2"); got != "img-1001-im2" {
		t.Fatalf("page 1 second image: %q", got)
	}
	// The offset component keeps same-page figures adjacent and pages
	// a thousand apart.
	if got := imageGroupID(3, 0, "Fig"); got != "img-3000-fig" {
		t.Fatalf("page 3 image: %q", got)
	}
}

func TestBuildPDFChunksAssociatesPageImages(t *testing.T) {
	sections := []mdSection{
		{breadcrumb: []string{"Intro"}, blocks: []string{"Opening text."}},
		{breadcrumb: []string{"Results"}, blocks: []string{"Figure discussion."}},
	}
	pages := map[int]int{0: 1, 1: 2}
	pageImages := map[int][]string{
		2: {imageGroupID(2, 0, "Im1"), imageGroupID(2, 1, "Im2")},
	}

	chunks := buildPDFChunks(sections, pages, pageImages, ChunkOptions{}.withDefaults())
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0].ImageIDs) != 0 {
		t.Fatalf("page without images must yield none: %v", chunks[0].ImageIDs)
	}
	if len(chunks[1].ImageIDs) != 2 || chunks[1].ImageIDs[0] != "img-2000-im1" {
		t.Fatalf("page images not associated: %v", chunks[1].ImageIDs)
	}
	if chunks[1].PageNumber != 2 {
		t.Fatalf("page number: %d", chunks[1].PageNumber)
	}
}

func TestContentToEmbedAppendsImageMarkers(t *testing.T) {
	plain := Chunk{Content: "No figures here."}
	if got := contentToEmbed(plain); got != plain.Content {
		t.Fatalf("chunk without images must embed verbatim: %q", got)
	}

	withImages := Chunk{
		Content:  "See the chart.",
		ImageIDs: []string{"img-2000-im1", "img-2001-im2"},
	}
	got := contentToEmbed(withImages)
	if !strings.HasPrefix(got, "See the chart.\n\n") {
		t.Fatalf("content must lead: %q", got)
	}
	if !strings.Contains(got, "[Image: img-2000-im1]") || !strings.Contains(got, "[Image: img-2001-im2]") {
		t.Fatalf("image markers missing: %q", got)
	}
}
