package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

const autocompleteResultSelector = ".kc-autocomplete .results a[href]"

// ParseAutocomplete reads the options of the site's search autocomplete panel.
// Options are unique by slug and keep panel order.
func (p *ComparisonParser) ParseAutocomplete(html string) ([]models.AutocompleteOption, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	options := []models.AutocompleteOption{}
	seen := map[string]bool{}
	doc.Find(autocompleteResultSelector).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		slug := models.CanonicalSlug(href)
		name := cellText(a.Find(".name").First())
		if name == "" {
			name = cellText(a)
		}
		if slug == "" || name == "" || seen[slug] {
			return
		}
		seen[slug] = true
		options = append(options, models.AutocompleteOption{Name: name, Slug: slug})
	})

	return options, nil
}
