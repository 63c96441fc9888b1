package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

var (
	ErrChallenge     = errors.New("comparison site served a bot challenge")
	ErrEmptyDocument = errors.New("empty document")
)

// Selectors of the site's search widget.
const (
	SearchInputSelector  = "input.kc-search-input"
	AutocompleteSelector = ".kc-autocomplete"
	autocompleteResults  = ".kc-autocomplete .results"
)

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless bool
	// Timeout bounds navigation and selector waits. Zero disables it, which is
	// useful when stepping through pages interactively.
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
	// TypingDelay is the pause between keystrokes in the search widget.
	TypingDelay time.Duration
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "Europe/Madrid",
		Locale:         "en-US",
		TypingDelay:    60 * time.Millisecond,
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := map[string]string{"Accept-Language": opts.AcceptLanguage}
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}

	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: context,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

// timeoutMillis converts the configured timeout for playwright, where zero
// means no timeout.
func (o *Options) timeoutMillis() float64 {
	if o.Timeout <= 0 {
		return 0
	}
	return float64(o.Timeout.Milliseconds())
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(b.opts.timeoutMillis())
	page.SetDefaultNavigationTimeout(b.opts.timeoutMillis())

	return page, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

// FetchHTML navigates a fresh page to url and returns the rendered document.
func (b *Browser) FetchHTML(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	page, err := b.NewPage()
	if err != nil {
		return "", err
	}
	defer page.Close()

	stop := closeOnCancel(ctx, page)
	defer stop()

	b.logger.Debug("navigating", "url", url)
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(b.opts.timeoutMillis()),
	}); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}

	if err := CheckDocument(content); err != nil {
		return "", fmt.Errorf("%s: %w", url, err)
	}

	return content, nil
}

// Autocomplete types query into the site's search widget on searchURL, waits
// for the suggestion panel and returns its HTML.
func (b *Browser) Autocomplete(ctx context.Context, searchURL, query string) (string, error) {
	page, err := b.NewPage()
	if err != nil {
		return "", err
	}
	defer page.Close()

	stop := closeOnCancel(ctx, page)
	defer stop()

	if _, err := page.Goto(searchURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to navigate to %s: %w", searchURL, err)
	}

	input := page.Locator(SearchInputSelector).First()
	if err := input.Click(); err != nil {
		return "", fmt.Errorf("failed to focus search input: %w", err)
	}
	if err := input.PressSequentially(query, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(float64(b.opts.TypingDelay.Milliseconds())),
	}); err != nil {
		return "", fmt.Errorf("failed to type search query: %w", err)
	}

	if err := page.Locator(autocompleteResults).First().WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	}); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("autocomplete panel did not appear: %w", err)
	}

	panel, err := page.Locator(AutocompleteSelector).First().Evaluate("el => el.outerHTML", nil)
	if err != nil {
		return "", fmt.Errorf("failed to read autocomplete panel: %w", err)
	}

	html, _ := panel.(string)
	b.logger.Debug("autocomplete panel read", "query", query, "bytes", len(html))
	return html, nil
}

// CheckDocument rejects empty documents and bot challenge interstitials.
func CheckDocument(content string) error {
	if strings.TrimSpace(content) == "" || strings.TrimSpace(content) == "<html><head></head><body></body></html>" {
		return ErrEmptyDocument
	}

	lower := strings.ToLower(content)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return ErrChallenge
		}
	}

	return nil
}

var challengeMarkers = []string{
	"<title>just a moment...</title>",
	"cf-challenge",
	"challenge-platform",
	"attention required! | cloudflare",
}

// closeOnCancel closes page when ctx is cancelled so blocking playwright calls
// return. The returned func releases the watcher.
func closeOnCancel(ctx context.Context, page playwright.Page) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			page.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
