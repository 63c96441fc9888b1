package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

var (
	ErrEmptyName    = errors.New("device name is empty")
	ErrNoCandidates = errors.New("no candidates found")
)

// MatchFinder searches the local catalogue for devices close to a name.
type MatchFinder interface {
	FindExistingMatches(ctx context.Context, name, deviceType string) ([]models.DeviceSummary, error)
}

// Autocompleter returns the comparison site's suggestions for a query.
type Autocompleter interface {
	Autocomplete(ctx context.Context, query string) ([]models.AutocompleteOption, error)
}

// SlugPicker chooses one option for a device name.
type SlugPicker interface {
	PickSlug(ctx context.Context, name string, options []models.AutocompleteOption) (string, error)
}

type Options struct {
	// SearchSite queries the comparison site in addition to the catalogue.
	SearchSite bool
	// Pick asks the model to choose when the site offers several options.
	Pick       bool
	DeviceType string
}

// Resolution is what is known about a device name. Slug is set when the site
// offered a single option or a pick was requested and succeeded.
type Resolution struct {
	FastMatches []models.DeviceSummary      `json:"fast_matches"`
	Options     []models.AutocompleteOption `json:"options"`
	Slug        string                      `json:"slug,omitempty"`
}

type Resolver struct {
	catalogue MatchFinder
	site      Autocompleter
	picker    SlugPicker
	logger    *slog.Logger
}

func New(catalogue MatchFinder, site Autocompleter, picker SlugPicker, logger *slog.Logger) *Resolver {
	return &Resolver{
		catalogue: catalogue,
		site:      site,
		picker:    picker,
		logger:    logger.With("component", "resolver"),
	}
}

// Resolve runs the catalogue lookup and, when requested, the site search.
func (r *Resolver) Resolve(ctx context.Context, name string, opts Options) (*Resolution, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewPipelineError(models.ErrKindResolution, "cannot resolve device", ErrEmptyName)
	}

	res := &Resolution{
		FastMatches: []models.DeviceSummary{},
		Options:     []models.AutocompleteOption{},
	}

	matches, err := r.FastMatches(ctx, name, opts.DeviceType)
	if err != nil {
		return nil, err
	}
	res.FastMatches = matches

	if !opts.SearchSite {
		return res, nil
	}

	options, err := r.Search(ctx, name)
	if err != nil {
		return nil, err
	}
	res.Options = options

	switch {
	case len(options) == 1:
		res.Slug = options[0].Slug
		r.logger.Info("single option auto-selected", "name", name, "slug", res.Slug)
	case len(options) > 1 && opts.Pick:
		slug, err := r.PickSlug(ctx, name, options)
		if err != nil {
			return nil, err
		}
		res.Slug = slug
	case len(options) == 0 && len(matches) == 0:
		return nil, models.NewPipelineError(models.ErrKindResolution, fmt.Sprintf("nothing matches %q", name), ErrNoCandidates)
	}

	return res, nil
}

// FastMatches looks the name up in the local catalogue only.
func (r *Resolver) FastMatches(ctx context.Context, name, deviceType string) ([]models.DeviceSummary, error) {
	if r.catalogue == nil {
		return []models.DeviceSummary{}, nil
	}

	matches, err := r.catalogue.FindExistingMatches(ctx, name, deviceType)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrKindCatalogue, "catalogue lookup failed", err)
	}
	if matches == nil {
		matches = []models.DeviceSummary{}
	}

	r.logger.Debug("catalogue lookup", "name", name, "matches", len(matches))
	return matches, nil
}

// Search queries the comparison site's autocomplete for name. Failures to
// load or read the site are scrape failures.
func (r *Resolver) Search(ctx context.Context, name string) ([]models.AutocompleteOption, error) {
	options, err := r.site.Autocomplete(ctx, name)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrKindScrape, "comparison site search failed", err)
	}
	if options == nil {
		options = []models.AutocompleteOption{}
	}

	r.logger.Info("comparison site search", "name", name, "options", len(options))
	return options, nil
}

// PickSlug disambiguates options. Failures, including a reply outside the
// option set, are resolution failures.
func (r *Resolver) PickSlug(ctx context.Context, name string, options []models.AutocompleteOption) (string, error) {
	if len(options) == 0 {
		return "", models.NewPipelineError(models.ErrKindResolution, fmt.Sprintf("nothing matches %q", name), ErrNoCandidates)
	}
	if len(options) == 1 {
		return options[0].Slug, nil
	}

	slug, err := r.picker.PickSlug(ctx, name, options)
	if err != nil {
		return "", models.NewPipelineError(models.ErrKindResolution, "could not choose between options", err)
	}
	return slug, nil
}
