package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/thatssosanya/kimovil-scraper/internal/models"
	"github.com/thatssosanya/kimovil-scraper/internal/parser"
)

type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) FetchHTML(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// page renders a comparison page with one column per slug and a brand row
func page(slugs ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="compare-header">`)
	for _, slug := range slugs {
		fmt.Fprintf(&b, `<div class="device-column"><span class="device-name">%s</span><a class="more-info" href="/en/where-to-buy-%s">More</a></div>`, strings.ToUpper(slug), slug)
	}
	b.WriteString(`</div><section class="kc-section" data-section="general"><table><tr><th>Brand</th>`)
	for _, slug := range slugs {
		fmt.Fprintf(&b, `<td>brand-%s</td>`, slug)
	}
	b.WriteString(`</tr></table></section></body></html>`)
	return b.String()
}

func newTestService(loader PageLoader) *Service {
	return NewService(loader, parser.NewComparisonParser(), nil, "https://www.kimovil.com/", testLogger())
}

func TestService_ComparisonURL(t *testing.T) {
	s := newTestService(&MockLoader{})
	assert.Equal(t, "https://www.kimovil.com/en/compare/pixel-8,galaxy-s24", s.ComparisonURL([]string{"pixel-8", "galaxy-s24"}))
}

func TestService_ScrapeComparison(t *testing.T) {
	ctx := context.Background()

	t.Run("partial page yields matched records in page order", func(t *testing.T) {
		loader := &MockLoader{}
		loader.On("FetchHTML", ctx, "https://www.kimovil.com/en/compare/a,b,c").Return(page("b", "c"), nil)

		result, err := newTestService(loader).ScrapeComparison(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, result.Records, 2)

		assert.Equal(t, "b", result.Records[0].Slug)
		assert.Equal(t, "brand-b", result.Records[0].Brand)
		assert.Equal(t, "c", result.Records[1].Slug)
		assert.Equal(t, "brand-c", result.Records[1].Brand)
		assert.Equal(t, []string{"a"}, result.Missing)
		loader.AssertExpectations(t)
	})

	t.Run("reordered columns keep field values with their device", func(t *testing.T) {
		loader := &MockLoader{}
		loader.On("FetchHTML", ctx, mock.Anything).Return(page("galaxy-s24-ultra", "pixel-8", "galaxy-s24"), nil)

		result, err := newTestService(loader).ScrapeComparison(ctx, []string{"galaxy-s24", "pixel-8", "galaxy-s24-ultra"})
		require.NoError(t, err)
		require.Len(t, result.Records, 3)

		for _, rec := range result.Records {
			assert.Equal(t, "brand-"+rec.Slug, rec.Brand)
		}
		assert.Equal(t, "galaxy-s24-ultra", result.Records[0].Slug)
		assert.Empty(t, result.Missing)
	})

	t.Run("more than four slugs", func(t *testing.T) {
		loader := &MockLoader{}
		_, err := newTestService(loader).ScrapeComparison(ctx, []string{"a", "b", "c", "d", "e"})
		assert.ErrorIs(t, err, ErrTooManySlugs)
		loader.AssertNotCalled(t, "FetchHTML", mock.Anything, mock.Anything)
	})

	t.Run("no slugs", func(t *testing.T) {
		_, err := newTestService(&MockLoader{}).ScrapeComparison(ctx, nil)
		assert.ErrorIs(t, err, ErrNoSlugs)
	})

	t.Run("load failure is a scrape failure", func(t *testing.T) {
		loader := &MockLoader{}
		timeout := errors.New("navigation timeout")
		loader.On("FetchHTML", ctx, mock.Anything).Return("", timeout)

		_, err := newTestService(loader).ScrapeComparison(ctx, []string{"pixel-8"})
		require.Error(t, err)
		assert.ErrorIs(t, err, timeout)
		assert.Equal(t, models.ErrKindScrape, models.ErrorKind(err))
	})

	t.Run("page without columns", func(t *testing.T) {
		loader := &MockLoader{}
		loader.On("FetchHTML", ctx, mock.Anything).Return("<html><body><p>maintenance</p></body></html>", nil)

		_, err := newTestService(loader).ScrapeComparison(ctx, []string{"pixel-8"})
		assert.ErrorIs(t, err, ErrNoColumns)
		assert.Equal(t, models.ErrKindScrape, models.ErrorKind(err))
	})
}

func TestService_ScrapeDevice(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		loader := &MockLoader{}
		loader.On("FetchHTML", ctx, mock.Anything).Return(page("pixel-8"), nil)

		rec, err := newTestService(loader).ScrapeDevice(ctx, "pixel-8")
		require.NoError(t, err)
		assert.Equal(t, "pixel-8", rec.Slug)
		assert.Equal(t, "PIXEL-8", rec.Name)
	})

	t.Run("not on page", func(t *testing.T) {
		loader := &MockLoader{}
		loader.On("FetchHTML", ctx, mock.Anything).Return(page("pixel-7"), nil)

		_, err := newTestService(loader).ScrapeDevice(ctx, "pixel-8")
		assert.ErrorIs(t, err, ErrDeviceNotOnPage)
	})
}

// recordingLimiter counts outcome reports
type recordingLimiter struct {
	successes, failures int
}

func (r *recordingLimiter) Wait(ctx context.Context) error  { return ctx.Err() }
func (r *recordingLimiter) SetDelay(min, max time.Duration) {}
func (r *recordingLimiter) RecordSuccess()                  { r.successes++ }
func (r *recordingLimiter) RecordError()                    { r.failures++ }

func TestService_ReportsOutcomeToLimiter(t *testing.T) {
	ctx := context.Background()
	limiter := &recordingLimiter{}

	loader := &MockLoader{}
	loader.On("FetchHTML", ctx, "https://www.kimovil.com/en/compare/pixel-8").Return(page("pixel-8"), nil)
	loader.On("FetchHTML", ctx, "https://www.kimovil.com/en/compare/pixel-9").Return("", errors.New("challenge"))

	s := NewService(loader, parser.NewComparisonParser(), limiter, "https://www.kimovil.com", testLogger())

	_, err := s.ScrapeDevice(ctx, "pixel-8")
	require.NoError(t, err)
	_, err = s.ScrapeDevice(ctx, "pixel-9")
	require.Error(t, err)

	assert.Equal(t, 1, limiter.successes)
	assert.Equal(t, 1, limiter.failures)
}
