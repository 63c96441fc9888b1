package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/thatssosanya/kimovil-scraper/internal/jobs"
	"github.com/thatssosanya/kimovil-scraper/internal/scraper"
)

// JobService is the command and query surface of the job manager
type JobService interface {
	Start(ctx context.Context, deviceID, name, deviceType string, searchSite bool) (*jobs.Job, error)
	Retry(ctx context.Context, deviceID, searchString string) (*jobs.Job, error)
	Cancel(ctx context.Context, deviceID string) error
	ConfirmSlug(ctx context.Context, deviceID, slug string) (*jobs.Job, error)
	ImportExisting(ctx context.Context, deviceID, slug string) (*jobs.Job, error)
	SearchComparisonSite(ctx context.Context, deviceID string) (*jobs.Job, error)
	ResolveConflict(ctx context.Context, deviceID string, resolution jobs.ConflictResolution) (*jobs.Job, error)
	Get(ctx context.Context, deviceID string) (*jobs.Job, error)
	List(ctx context.Context) ([]*jobs.Job, error)
}

// ComparisonScraper scrapes a comparison page directly
type ComparisonScraper interface {
	ScrapeComparison(ctx context.Context, slugs []string) (*scraper.Result, error)
}

// DeviceTypeLister lists the catalogue's device types
type DeviceTypeLister interface {
	GetDeviceTypes(ctx context.Context) ([]string, error)
}

type Handlers struct {
	jobs     JobService
	scraper  ComparisonScraper
	types    DeviceTypeLister
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandlers(jobService JobService, comparison ComparisonScraper, types DeviceTypeLister, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:     jobService,
		scraper:  comparison,
		types:    types,
		validate: newValidator(),
		logger:   logger.With("component", "api"),
	}
}

// StartJobRequest starts the job of a device
type StartJobRequest struct {
	DeviceID   string `json:"device_id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	DeviceType string `json:"device_type"`
	SearchSite bool   `json:"search_site"`
}

type RetryRequest struct {
	SearchString string `json:"search_string"`
}

type SlugRequest struct {
	Slug string `json:"slug" validate:"required"`
}

type ResolveConflictRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=merge unique"`
}

type CompareRequest struct {
	Slugs []string `json:"slugs" validate:"required,min=1,max=4,dive,required"`
}

// StartJob handles job creation
func (h *Handlers) StartJob(w http.ResponseWriter, r *http.Request) {
	var req StartJobRequest
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.jobs.Start(r.Context(), req.DeviceID, req.Name, req.DeviceType, req.SearchSite)
	if err != nil {
		h.respondJobError(w, err, "failed to start job", req.DeviceID)
		return
	}

	h.respondJSON(w, http.StatusAccepted, job)
}

// ListJobs returns every job, newest first
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	job, err := h.jobs.Get(r.Context(), deviceID)
	if err != nil {
		h.respondJobError(w, err, "failed to get job", deviceID)
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) RetryJob(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req RetryRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	job, err := h.jobs.Retry(r.Context(), deviceID, req.SearchString)
	if err != nil {
		h.respondJobError(w, err, "failed to retry job", deviceID)
		return
	}

	h.respondJSON(w, http.StatusAccepted, job)
}

func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	if err := h.jobs.Cancel(r.Context(), deviceID); err != nil {
		h.respondJobError(w, err, "failed to cancel job", deviceID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ConfirmSlug(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req SlugRequest
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.jobs.ConfirmSlug(r.Context(), deviceID, req.Slug)
	if err != nil {
		h.respondJobError(w, err, "failed to confirm slug", deviceID)
		return
	}

	h.respondJSON(w, http.StatusAccepted, job)
}

func (h *Handlers) ImportExisting(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req SlugRequest
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.jobs.ImportExisting(r.Context(), deviceID, req.Slug)
	if err != nil {
		h.respondJobError(w, err, "failed to import existing device", deviceID)
		return
	}

	h.respondJSON(w, http.StatusAccepted, job)
}

func (h *Handlers) SearchSite(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	job, err := h.jobs.SearchComparisonSite(r.Context(), deviceID)
	if err != nil {
		h.respondJobError(w, err, "failed to search comparison site", deviceID)
		return
	}

	h.respondJSON(w, http.StatusAccepted, job)
}

func (h *Handlers) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	var req ResolveConflictRequest
	if !h.decode(w, r, &req) {
		return
	}

	job, err := h.jobs.ResolveConflict(r.Context(), deviceID, jobs.ConflictResolution(req.Resolution))
	if err != nil {
		h.respondJobError(w, err, "failed to resolve conflict", deviceID)
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// Compare scrapes a comparison page without touching any job. Debug only.
func (h *Handlers) Compare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.scraper.ScrapeComparison(r.Context(), req.Slugs)
	switch {
	case errors.Is(err, scraper.ErrNoSlugs), errors.Is(err, scraper.ErrTooManySlugs):
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("comparison scrape failed", "slugs", req.Slugs, "error", err)
		h.respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) DeviceTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.types.GetDeviceTypes(r.Context())
	if err != nil {
		h.logger.Error("failed to list device types", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list device types")
		return
	}

	h.respondJSON(w, http.StatusOK, types)
}

// decode reads and validates a JSON body. It writes the error response and
// returns false when the body is unusable.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return v
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" fails "+fe.Tag())
	}
	return "invalid request: " + strings.Join(fields, ", ")
}

// respondJobError maps job manager errors onto status codes
func (h *Handlers) respondJobError(w http.ResponseWriter, err error, message, deviceID string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, jobs.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, jobs.ErrJobExists), errors.Is(err, jobs.ErrJobBusy), errors.Is(err, jobs.ErrInvalidTransition):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(message, "device_id", deviceID, "error", err)
		h.respondError(w, status, message)
		return
	}
	h.respondError(w, status, err.Error())
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
