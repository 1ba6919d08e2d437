package ingest

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFStrategy extracts page text with per-fragment font metadata and
// classifies headings by font size against the document-wide median:
// H1 > 1.3x, H2 > 1.15x, H3 when bold at body size.
type PDFStrategy struct {
	opts ChunkOptions
}

func NewPDFStrategy(opts ChunkOptions) *PDFStrategy {
	return &PDFStrategy{opts: opts.withDefaults()}
}

func (s *PDFStrategy) Name() string { return "pdf" }

func (s *PDFStrategy) Supports(mimeType string) bool {
	return mimeType == "application/pdf" || mimeType == "application/x-pdf"
}

// pdfLine is one reconstructed text row.
type pdfLine struct {
	page     int
	y        float64
	text     string
	fontSize float64
	bold     bool
}

func (s *PDFStrategy) Chunk(doc SourceDoc) (res *Result, err error) {
	// The parser is known to panic on exotic font tables; a broken PDF
	// must fail the document, not the process.
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("pdf parse: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		return nil, fmt.Errorf("pdf open: %w", err)
	}

	var lines []pdfLine
	pageImages := map[int][]string{}
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		lines = append(lines, collectLines(page, pageNum)...)
		if ids := collectImageIDs(page, pageNum); len(ids) > 0 {
			pageImages[pageNum] = ids
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("pdf contains no extractable text")
	}

	median := medianFontSize(lines)

	var sections []mdSection
	var stack []string
	var title string
	cur := mdSection{}
	var para []string
	pages := map[int]int{} // section index -> first page

	flushPara := func() {
		if len(para) > 0 {
			cur.blocks = append(cur.blocks, strings.Join(para, " "))
			para = nil
		}
	}
	flushSection := func() {
		flushPara()
		if len(cur.blocks) > 0 {
			sections = append(sections, cur)
		}
		cur = mdSection{breadcrumb: append([]string(nil), stack...)}
	}

	lastPage := 0
	for _, line := range lines {
		level := headingLevel(line, median)
		if level == 0 {
			if line.page != lastPage {
				flushPara()
			}
			para = append(para, line.text)
			if _, ok := pages[len(sections)]; !ok {
				pages[len(sections)] = line.page
			}
			lastPage = line.page
			continue
		}

		flushSection()
		if level-1 < len(stack) {
			stack = stack[:level-1]
		}
		for len(stack) < level-1 {
			stack = append(stack, "")
		}
		stack = append(stack, line.text)
		if title == "" && level == 1 {
			title = line.text
		}
		cur = mdSection{breadcrumb: append([]string(nil), stack...)}
		lastPage = line.page
	}
	flushSection()

	chunks := buildPDFChunks(sections, pages, pageImages, s.opts)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("pdf yielded no chunks")
	}
	return &Result{Chunks: chunks, Title: title}, nil
}

// buildPDFChunks splits each section under the token budget and
// associates every chunk with the images of its page.
func buildPDFChunks(sections []mdSection, pages map[int]int, pageImages map[int][]string, opts ChunkOptions) []Chunk {
	var chunks []Chunk
	for i, sec := range sections {
		content := strings.Join(sec.blocks, "\n\n")
		for _, part := range splitText(content, opts) {
			chunks = append(chunks, Chunk{
				Index:      len(chunks),
				Content:    part,
				Breadcrumb: sec.breadcrumb,
				ImageIDs:   pageImages[pages[i]],
				PageNumber: pages[i],
				TokenCount: EstimateTokens(part),
			})
		}
	}
	return chunks
}

// collectImageIDs lists the page's image XObjects. The parser exposes
// their names but neither payloads nor placement, so spatial grouping
// collapses to the page; every chunk of the page associates the page's
// images.
func collectImageIDs(page pdf.Page, pageNum int) []string {
	xobj := page.Resources().Key("XObject")
	if xobj.IsNull() {
		return nil
	}
	var ids []string
	for _, name := range xobj.Keys() {
		if xobj.Key(name).Key("Subtype").Name() != "Image" {
			continue
		}
		ids = append(ids, imageGroupID(pageNum, len(ids), name))
	}
	return ids
}

// imageGroupID builds the opaque grouping id for the n-th image found on
// a page. The pageNumber*1000 offset keeps same-page figures adjacent
// when ids sort, without pretending to be a byte offset.
func imageGroupID(pageNum, ordinal int, name string) string {
	return fmt.Sprintf("img-%d-%s", pageNum*1000+ordinal, strings.ToLower(name))
}

// collectLines groups a page's text fragments into rows by Y position.
func collectLines(page pdf.Page, pageNum int) []pdfLine {
	content := page.Content()
	if len(content.Text) == 0 {
		return nil
	}

	const yTolerance = 2.0
	byRow := map[float64][]pdf.Text{}
	var ys []float64
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		key := snapY(ys, t.Y, yTolerance)
		if _, ok := byRow[key]; !ok {
			ys = append(ys, key)
		}
		byRow[key] = append(byRow[key], t)
	}

	// Top of page first: PDF Y grows upward.
	sort.Sort(sort.Reverse(sort.Float64Slice(ys)))

	lines := make([]pdfLine, 0, len(ys))
	for _, y := range ys {
		frags := byRow[y]
		sort.Slice(frags, func(i, j int) bool { return frags[i].X < frags[j].X })

		var sb strings.Builder
		size := 0.0
		bold := false
		for _, f := range frags {
			sb.WriteString(f.S)
			if f.FontSize > size {
				size = f.FontSize
			}
			if strings.Contains(strings.ToLower(f.Font), "bold") {
				bold = true
			}
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			continue
		}
		lines = append(lines, pdfLine{page: pageNum, y: y, text: text, fontSize: size, bold: bold})
	}
	return lines
}

func snapY(ys []float64, y, tolerance float64) float64 {
	for _, existing := range ys {
		if y >= existing-tolerance && y <= existing+tolerance {
			return existing
		}
	}
	return y
}

func medianFontSize(lines []pdfLine) float64 {
	sizes := make([]float64, 0, len(lines))
	for _, l := range lines {
		if l.fontSize > 0 {
			sizes = append(sizes, l.fontSize)
		}
	}
	if len(sizes) == 0 {
		return 0
	}
	sort.Float64s(sizes)
	return sizes[len(sizes)/2]
}

// headingLevel classifies a line; 0 means body text. Long lines never
// count as headings regardless of font size.
func headingLevel(line pdfLine, median float64) int {
	if median <= 0 || len(line.text) > 120 {
		return 0
	}
	switch {
	case line.fontSize > median*1.3:
		return 1
	case line.fontSize > median*1.15:
		return 2
	case line.bold && line.fontSize > median:
		return 3
	}
	return 0
}
