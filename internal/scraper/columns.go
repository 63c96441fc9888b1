package scraper

import (
	"sort"
	"strings"

	"github.com/thatssosanya/kimovil-scraper/internal/models"
	"github.com/thatssosanya/kimovil-scraper/internal/parser"
)

// ReconcileColumns matches requested slugs against the page's column links.
// Slugs are tried longest-first and each consumes the first unconsumed link
// naming it exactly, or failing that the first one containing it. Slugs
// without a link are left out. The result is ordered by link position.
func ReconcileColumns(slugs []string, hrefs []string) []parser.Column {
	wanted := uniqueSlugs(slugs)
	sort.SliceStable(wanted, func(i, j int) bool {
		return len(wanted[i]) > len(wanted[j])
	})

	linkSlugs := make([]string, len(hrefs))
	lowered := make([]string, len(hrefs))
	for i, href := range hrefs {
		linkSlugs[i] = models.CanonicalSlug(href)
		lowered[i] = strings.ToLower(href)
	}

	consumed := make([]bool, len(hrefs))
	columns := []parser.Column{}

	for _, slug := range wanted {
		idx := -1
		for i := range hrefs {
			if !consumed[i] && linkSlugs[i] == slug {
				idx = i
				break
			}
		}
		if idx < 0 {
			for i := range hrefs {
				if !consumed[i] && strings.Contains(lowered[i], slug) {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			continue
		}
		consumed[idx] = true
		columns = append(columns, parser.Column{Slug: slug, Index: idx})
	}

	sort.Slice(columns, func(i, j int) bool {
		return columns[i].Index < columns[j].Index
	})
	return columns
}

// uniqueSlugs canonicalizes slugs and drops blanks and repeats, keeping order
func uniqueSlugs(slugs []string) []string {
	out := make([]string, 0, len(slugs))
	seen := map[string]bool{}
	for _, s := range slugs {
		s = models.CanonicalSlug(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
