package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/thatssosanya/kimovil-scraper/internal/database"
	"github.com/thatssosanya/kimovil-scraper/internal/observability"
)

const (
	outboxPendingWarn    = 1000
	outboxDeadLetterFail = 100
)

// Pinger checks a backing service
type Pinger interface {
	Ping(ctx context.Context) error
}

// OutboxMonitor reports undelivered outbox events
type OutboxMonitor interface {
	Stats(ctx context.Context) (database.OutboxStats, error)
}

type RouterOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	Database       Pinger
	Outbox         OutboxMonitor
}

// NewRouter mounts the job API under /api/v1/scraper next to /health and
// /metrics.
func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.health(opts.Database, opts.Outbox))
	r.Handle("/metrics", observability.Handler())

	r.Route("/api/v1/scraper", func(r chi.Router) {
		r.Use(middleware.Timeout(opts.RequestTimeout))

		r.Post("/jobs", h.StartJob)
		r.Get("/jobs", h.ListJobs)
		r.Route("/jobs/{deviceID}", func(r chi.Router) {
			r.Get("/", h.GetJob)
			r.Delete("/", h.CancelJob)
			r.Post("/retry", h.RetryJob)
			r.Post("/confirm-slug", h.ConfirmSlug)
			r.Post("/import-existing", h.ImportExisting)
			r.Post("/search", h.SearchSite)
			r.Post("/resolve-conflict", h.ResolveConflict)
		})

		r.Post("/compare", h.Compare)
		r.Get("/device-types", h.DeviceTypes)
	})

	return r
}

// health reports database reachability and outbox backlog
func (h *Handlers) health(db Pinger, outbox OutboxMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]any{"status": "ok"}

		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				h.logger.Error("database health check failed", "error", err)
				body["status"] = "error"
				body["message"] = "database unreachable"
				status = http.StatusServiceUnavailable
			}
		}

		if outbox != nil && status == http.StatusOK {
			stats, err := outbox.Stats(r.Context())
			if err != nil {
				h.logger.Warn("failed to read outbox stats", "error", err)
			} else {
				body["outbox"] = stats
				if stats.Pending > outboxPendingWarn {
					body["status"] = "warning"
					body["message"] = "high number of pending outbox events"
				}
				if stats.DeadLetter > outboxDeadLetterFail {
					body["status"] = "error"
					body["message"] = "high number of dead letter events"
					status = http.StatusServiceUnavailable
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			h.logger.Error("failed to encode response", "error", err)
		}
	}
}
