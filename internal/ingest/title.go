package ingest

import (
	"path/filepath"
	"strings"
	"unicode"
)

// CleanFileName turns "annual_report-2024.pdf" into "Annual report 2024":
// extension stripped, separators spaced, first rune capitalized.
func CleanFileName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return name
	}
	runes := []rune(base)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// DocumentTitle resolves the title for an ingested document: the first
// non-empty breadcrumb root wins, else the explicit strategy title, else
// the cleaned filename.
func DocumentTitle(res *Result, fileName string) string {
	for _, c := range res.Chunks {
		if len(c.Breadcrumb) > 0 && strings.TrimSpace(c.Breadcrumb[0]) != "" {
			return strings.TrimSpace(c.Breadcrumb[0])
		}
	}
	if strings.TrimSpace(res.Title) != "" {
		return strings.TrimSpace(res.Title)
	}
	return CleanFileName(fileName)
}
