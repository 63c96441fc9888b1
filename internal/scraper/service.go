package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/thatssosanya/kimovil-scraper/internal/models"
	"github.com/thatssosanya/kimovil-scraper/internal/observability"
	"github.com/thatssosanya/kimovil-scraper/internal/parser"
	"github.com/thatssosanya/kimovil-scraper/internal/ratelimit"
)

// Result is the outcome of one comparison page load. Records follow the page's
// column order; Missing lists requested slugs the page did not show.
type Result struct {
	Records []*models.RawDeviceRecord `json:"records"`
	Missing []string                  `json:"missing"`
}

type Service struct {
	loader  PageLoader
	parser  parser.Parser
	limiter ratelimit.RateLimiter
	baseURL string
	logger  *slog.Logger
}

func NewService(loader PageLoader, p parser.Parser, limiter ratelimit.RateLimiter, baseURL string, logger *slog.Logger) *Service {
	return &Service{
		loader:  loader,
		parser:  p,
		limiter: limiter,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "scraper"),
	}
}

// ComparisonURL addresses the comparison page for slugs.
func (s *Service) ComparisonURL(slugs []string) string {
	escaped := make([]string, len(slugs))
	for i, slug := range slugs {
		escaped[i] = url.PathEscape(slug)
	}
	return fmt.Sprintf("%s/en/compare/%s", s.baseURL, strings.Join(escaped, ","))
}

// ScrapeComparison loads one comparison page for up to four slugs and returns
// a raw record for every slug that produced a column.
func (s *Service) ScrapeComparison(ctx context.Context, slugs []string) (*Result, error) {
	wanted := uniqueSlugs(slugs)
	switch {
	case len(wanted) == 0:
		return nil, ErrNoSlugs
	case len(wanted) > MaxComparisonSlugs:
		return nil, fmt.Errorf("%w: got %d, max %d", ErrTooManySlugs, len(wanted), MaxComparisonSlugs)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	pageURL := s.ComparisonURL(wanted)
	s.logger.Info("loading comparison page", "slugs", wanted, "url", pageURL)

	html, err := s.loader.FetchHTML(ctx, pageURL)
	s.recordOutcome(err)
	if err != nil {
		observability.ComparisonPagesTotal.WithLabelValues("load_failed").Inc()
		return nil, models.NewPipelineError(models.ErrKindScrape, "failed to load comparison page", err)
	}

	hrefs, err := s.parser.ColumnLinks(html)
	if err != nil {
		observability.ComparisonPagesTotal.WithLabelValues("parse_failed").Inc()
		return nil, models.NewPipelineError(models.ErrKindScrape, "failed to parse comparison page", err)
	}
	if len(hrefs) == 0 {
		observability.ComparisonPagesTotal.WithLabelValues("no_columns").Inc()
		return nil, models.NewPipelineError(models.ErrKindScrape, "page structure mismatch", ErrNoColumns)
	}

	columns := ReconcileColumns(wanted, hrefs)
	records, err := s.parser.ParseComparison(html, columns)
	if err != nil {
		observability.ComparisonPagesTotal.WithLabelValues("parse_failed").Inc()
		return nil, models.NewPipelineError(models.ErrKindScrape, "failed to extract comparison fields", err)
	}

	matched := make(map[string]bool, len(columns))
	for _, col := range columns {
		matched[col.Slug] = true
	}
	missing := []string{}
	for _, slug := range wanted {
		if !matched[slug] {
			missing = append(missing, slug)
		}
	}

	observability.ComparisonPagesTotal.WithLabelValues("ok").Inc()
	observability.ComparisonColumnsTotal.WithLabelValues("matched").Add(float64(len(columns)))
	observability.ComparisonColumnsTotal.WithLabelValues("missing").Add(float64(len(missing)))

	if len(missing) > 0 {
		s.logger.Warn("comparison page omitted devices", "missing", missing, "columns", len(hrefs))
	}
	s.logger.Info("comparison scraped", "records", len(records), "missing", len(missing))

	return &Result{Records: records, Missing: missing}, nil
}

// recordOutcome reports a page load to an adaptive limiter. Cancelled loads
// say nothing about the site and are not reported.
func (s *Service) recordOutcome(err error) {
	fb, ok := s.limiter.(ratelimit.Feedback)
	if !ok || errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		fb.RecordError()
		return
	}
	fb.RecordSuccess()
}

// ScrapeDevice scrapes a single device through the comparison page.
func (s *Service) ScrapeDevice(ctx context.Context, slug string) (*models.RawDeviceRecord, error) {
	result, err := s.ScrapeComparison(ctx, []string{slug})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, models.NewPipelineError(models.ErrKindScrape, fmt.Sprintf("no column for %s", slug), ErrDeviceNotOnPage)
	}
	return result.Records[0], nil
}
