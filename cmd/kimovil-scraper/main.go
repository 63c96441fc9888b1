package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thatssosanya/kimovil-scraper/internal/api"
	"github.com/thatssosanya/kimovil-scraper/internal/browser"
	"github.com/thatssosanya/kimovil-scraper/internal/config"
	"github.com/thatssosanya/kimovil-scraper/internal/database"
	"github.com/thatssosanya/kimovil-scraper/internal/events"
	"github.com/thatssosanya/kimovil-scraper/internal/jobs"
	"github.com/thatssosanya/kimovil-scraper/internal/llm"
	"github.com/thatssosanya/kimovil-scraper/internal/normalizer"
	"github.com/thatssosanya/kimovil-scraper/internal/observability"
	"github.com/thatssosanya/kimovil-scraper/internal/parser"
	"github.com/thatssosanya/kimovil-scraper/internal/ratelimit"
	"github.com/thatssosanya/kimovil-scraper/internal/resolver"
	"github.com/thatssosanya/kimovil-scraper/internal/scraper"
)

func main() {
	var (
		mode       = flag.String("mode", "serve", "Mode: serve, compare or resolve")
		slugs      = flag.String("slugs", "", "Comma separated slugs (compare mode, at most 4)")
		name       = flag.String("name", "", "Device name to resolve (resolve mode)")
		deviceType = flag.String("type", "", "Device type filter for catalogue matches (resolve mode)")
		pick       = flag.Bool("pick", false, "Let the model pick among several site options (resolve mode)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "compare":
		err = compare(ctx, cfg, logger, *slugs)
	case "resolve":
		err = resolve(ctx, cfg, logger, *name, *deviceType, *pick)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newBrowser(cfg config.BrowserConfig) (*browser.Browser, error) {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Headless
	opts.Timeout = cfg.Timeout
	opts.UserAgent = cfg.UserAgent
	opts.ViewportWidth = cfg.ViewportWidth
	opts.ViewportHeight = cfg.ViewportHeight
	opts.AcceptLanguage = cfg.AcceptLanguage
	opts.TimezoneID = cfg.TimezoneID
	opts.Locale = cfg.Locale
	opts.ProxyServer = cfg.Proxy
	opts.TypingDelay = cfg.TypingDelay

	b, err := browser.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	return b, nil
}

func newNormalizer(cfg *config.Config, logger *slog.Logger) *normalizer.Normalizer {
	if !cfg.LLMConfigured() {
		logger.Warn("no LLM endpoint configured, normalization and slug picks will fail")
	}
	gen := llm.NewOpenAIGenerator(llm.OpenAIOptions{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	}, logger)
	return normalizer.New(gen, normalizer.Options{
		Language:    cfg.Normalizer.Language,
		Temperature: cfg.Normalizer.Temperature,
	}, logger)
}

func newDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.New(ctx, database.Config{
		URL:         cfg.URL,
		MaxConns:    cfg.MaxConns,
		MinConns:    cfg.MinConns,
		MaxConnLife: cfg.MaxConnLife,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	observability.Register()

	db, err := newDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{
		PollInterval: cfg.Relay.PollInterval,
		BatchSize:    cfg.Relay.BatchSize,
	})
	go func() {
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	b, err := newBrowser(cfg.Browser)
	if err != nil {
		return err
	}
	defer b.Close()

	p := parser.NewComparisonParser()
	limiter := ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax)
	scraperService := scraper.NewService(b, p, limiter, cfg.Scraper.BaseURL, logger)
	site := resolver.NewSiteAutocomplete(b, p, limiter, cfg.Scraper.BaseURL)
	norm := newNormalizer(cfg, logger)
	catalogue := database.NewCatalogueRepository(db, logger)

	manager := jobs.NewManager(jobs.Deps{
		Store:      database.NewJobStore(db),
		Resolver:   resolver.New(catalogue, site, norm, logger),
		Scraper:    scraperService,
		Normalizer: norm,
		Catalogue:  catalogue,
		Notifier:   events.NewPublisher(redisClient, logger),
	}, jobs.Config{
		StepTimeout: cfg.Jobs.StepTimeout,
		AutoPick:    cfg.Jobs.AutoPick,
	}, logger)

	recovered, err := manager.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}
	if recovered > 0 {
		logger.Warn("marked jobs interrupted by previous shutdown", "count", recovered)
	}

	handlers := api.NewHandlers(manager, scraperService, catalogue, logger)
	server := &http.Server{
		Addr: cfg.ServerAddr(),
		Handler: api.NewRouter(handlers, api.RouterOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RequestTimeout: cfg.Server.RequestTimeout,
			Database:       db,
			Outbox:         relay,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("job manager shutdown failed", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

// compare scrapes one comparison page and prints the records as JSON.
func compare(ctx context.Context, cfg *config.Config, logger *slog.Logger, slugList string) error {
	var slugs []string
	for _, s := range strings.Split(slugList, ",") {
		if s = strings.TrimSpace(s); s != "" {
			slugs = append(slugs, s)
		}
	}
	if len(slugs) == 0 {
		return errors.New("-slugs is required in compare mode")
	}

	b, err := newBrowser(cfg.Browser)
	if err != nil {
		return err
	}
	defer b.Close()

	service := scraper.NewService(b, parser.NewComparisonParser(), nil, cfg.Scraper.BaseURL, logger)
	result, err := service.ScrapeComparison(ctx, slugs)
	if err != nil {
		return err
	}

	return printJSON(result)
}

// resolve runs slug resolution for one name against the catalogue and the
// comparison site.
func resolve(ctx context.Context, cfg *config.Config, logger *slog.Logger, name, deviceType string, pick bool) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("-name is required in resolve mode")
	}

	db, err := newDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	b, err := newBrowser(cfg.Browser)
	if err != nil {
		return err
	}
	defer b.Close()

	site := resolver.NewSiteAutocomplete(b, parser.NewComparisonParser(), nil, cfg.Scraper.BaseURL)
	r := resolver.New(database.NewCatalogueRepository(db, logger), site, newNormalizer(cfg, logger), logger)

	res, err := r.Resolve(ctx, name, resolver.Options{
		SearchSite: true,
		Pick:       pick,
		DeviceType: deviceType,
	})
	if err != nil {
		return err
	}

	return printJSON(res)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
