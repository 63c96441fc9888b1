package resolver

import (
	"context"
	"fmt"

	"github.com/thatssosanya/kimovil-scraper/internal/models"
	"github.com/thatssosanya/kimovil-scraper/internal/ratelimit"
)

// PanelLoader types a query into the site's search widget and returns the
// suggestion panel HTML.
type PanelLoader interface {
	Autocomplete(ctx context.Context, searchURL, query string) (string, error)
}

// PanelParser reads options from a suggestion panel.
type PanelParser interface {
	ParseAutocomplete(html string) ([]models.AutocompleteOption, error)
}

// SiteAutocomplete is the comparison site's search widget.
type SiteAutocomplete struct {
	loader    PanelLoader
	parser    PanelParser
	limiter   ratelimit.RateLimiter
	searchURL string
}

func NewSiteAutocomplete(loader PanelLoader, parser PanelParser, limiter ratelimit.RateLimiter, searchURL string) *SiteAutocomplete {
	return &SiteAutocomplete{
		loader:    loader,
		parser:    parser,
		limiter:   limiter,
		searchURL: searchURL,
	}
}

func (s *SiteAutocomplete) Autocomplete(ctx context.Context, query string) ([]models.AutocompleteOption, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	html, err := s.loader.Autocomplete(ctx, s.searchURL, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load autocomplete panel: %w", err)
	}

	options, err := s.parser.ParseAutocomplete(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse autocomplete panel: %w", err)
	}
	return options, nil
}
