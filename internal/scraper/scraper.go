package scraper

import (
	"context"
	"errors"
)

// MaxComparisonSlugs is the number of devices one comparison page can hold.
const MaxComparisonSlugs = 4

var (
	ErrNoSlugs         = errors.New("no slugs requested")
	ErrTooManySlugs    = errors.New("too many slugs for one comparison page")
	ErrNoColumns       = errors.New("comparison page has no device columns")
	ErrDeviceNotOnPage = errors.New("device missing from comparison page")
)

// PageLoader fetches a rendered document.
type PageLoader interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}
