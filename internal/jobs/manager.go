package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/thatssosanya/kimovil-scraper/internal/models"
	"github.com/thatssosanya/kimovil-scraper/internal/observability"
)

var (
	ErrJobExists         = errors.New("job already exists for device")
	ErrJobBusy           = errors.New("job has a step in progress")
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrInvalidRequest    = errors.New("invalid job request")
)

// Resolver finds candidate slugs for a device name.
type Resolver interface {
	FastMatches(ctx context.Context, name, deviceType string) ([]models.DeviceSummary, error)
	Search(ctx context.Context, name string) ([]models.AutocompleteOption, error)
	PickSlug(ctx context.Context, name string, options []models.AutocompleteOption) (string, error)
}

// Scraper fetches the raw record of one slug.
type Scraper interface {
	ScrapeDevice(ctx context.Context, slug string) (*models.RawDeviceRecord, error)
}

// Normalizer turns a raw record into a canonical one.
type Normalizer interface {
	Normalize(ctx context.Context, raw *models.RawDeviceRecord) (*models.CanonicalDeviceRecord, error)
}

// Catalogue is the write side of the device catalogue.
type Catalogue interface {
	// CreateOrImportDevice fails with *models.SlugConflictError when the slug
	// is owned and opts.Unique is unset.
	CreateOrImportDevice(ctx context.Context, rec *models.CanonicalDeviceRecord, opts models.ImportOptions) (*models.Device, error)
	ImportExisting(ctx context.Context, slug string) (*models.Device, error)
	// DeviceBySlug returns nil without error when no device owns slug.
	DeviceBySlug(ctx context.Context, slug string) (*models.DeviceSummary, error)
	GetDeviceTypes(ctx context.Context) ([]string, error)
}

// Notifier is told about every job change so subscribers need not poll.
type Notifier interface {
	JobChanged(ctx context.Context, job *Job) error
	JobClosed(ctx context.Context, deviceID string) error
}

// ConflictResolution is the human decision on a slug conflict.
type ConflictResolution string

const (
	ResolveMerge  ConflictResolution = "merge"
	ResolveUnique ConflictResolution = "unique"
)

// Progress stages of the scraping step.
const (
	StageQueued      = "queued"
	StageScraping    = "scraping"
	StageNormalizing = "normalizing"
	StageImporting   = "importing"
)

type Deps struct {
	Store      Store
	Resolver   Resolver
	Scraper    Scraper
	Normalizer Normalizer
	Catalogue  Catalogue
	Notifier   Notifier
}

type Config struct {
	// StepTimeout bounds one pipeline run. Zero disables it.
	StepTimeout time.Duration
	// AutoPick lets the model choose among several site options instead of
	// asking a human.
	AutoPick bool
}

// Manager owns every scrape job. Pipeline work for a device runs in one
// goroutine at a time; commands for a busy device fail with ErrJobBusy.
type Manager struct {
	store      Store
	resolver   Resolver
	scraper    Scraper
	normalizer Normalizer
	catalogue  Catalogue
	notifier   Notifier
	cfg        Config

	mu   sync.Mutex
	busy map[string]bool
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
	logger *slog.Logger
}

func NewManager(deps Deps, cfg Config, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:      deps.Store,
		resolver:   deps.Resolver,
		scraper:    deps.Scraper,
		normalizer: deps.Normalizer,
		catalogue:  deps.Catalogue,
		notifier:   deps.Notifier,
		cfg:        cfg,
		busy:       map[string]bool{},
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
		logger:     logger.With("component", "job_manager"),
	}
}

// Start creates the job of a device and begins searching for it.
func (m *Manager) Start(ctx context.Context, deviceID, name, deviceType string, searchSite bool) (*Job, error) {
	deviceID = strings.TrimSpace(deviceID)
	name = strings.TrimSpace(name)
	if deviceID == "" || name == "" {
		return nil, fmt.Errorf("%w: device id and name are required", ErrInvalidRequest)
	}
	deviceType = strings.TrimSpace(deviceType)
	if err := m.checkDeviceType(ctx, deviceType); err != nil {
		return nil, err
	}

	if !m.acquire(deviceID) {
		return nil, ErrJobBusy
	}

	now := m.now()
	job := &Job{
		DeviceID:   deviceID,
		Name:       name,
		DeviceType: deviceType,
		State:      Searching{SearchSite: searchSite, FastMatches: []models.DeviceSummary{}},
		LastLog:    "searching catalogue",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		m.release(deviceID)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	observability.JobTransitionsTotal.WithLabelValues("new", string(StepSearching)).Inc()
	m.notify(ctx, job)
	m.logger.Info("job started", "device_id", deviceID, "name", name, "search_site", searchSite)

	snapshot := job.Clone()
	m.run(job, m.search)
	return snapshot, nil
}

// Retry re-enters searching from error or interrupted, optionally with a new
// search string. The attempt count carries over.
func (m *Manager) Retry(ctx context.Context, deviceID, searchString string) (*Job, error) {
	job, err := m.begin(ctx, deviceID, StepError, StepInterrupted)
	if err != nil {
		return nil, err
	}

	if s := strings.TrimSpace(searchString); s != "" {
		job.Name = s
	}
	if err := m.apply(ctx, job, Searching{SearchSite: true, FastMatches: []models.DeviceSummary{}}, fmt.Sprintf("retrying search for %q", job.Name)); err != nil {
		m.release(deviceID)
		return nil, err
	}

	snapshot := job.Clone()
	m.run(job, m.search)
	return snapshot, nil
}

// Cancel dismisses a job in a terminal or halted step and removes it.
func (m *Manager) Cancel(ctx context.Context, deviceID string) error {
	job, err := m.begin(ctx, deviceID, StepError, StepSlugConflict, StepDone, StepInterrupted)
	if err != nil {
		return err
	}
	defer m.release(deviceID)

	if err := m.store.Delete(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	observability.JobTransitionsTotal.WithLabelValues(string(job.Step()), string(StepClosed)).Inc()
	if m.notifier != nil {
		if err := m.notifier.JobClosed(ctx, deviceID); err != nil {
			m.logger.Warn("failed to publish job close", "device_id", deviceID, "error", err)
		}
	}
	m.logger.Info("job closed", "device_id", deviceID, "from", job.Step())
	return nil
}

// ConfirmSlug starts scraping a human-chosen slug.
func (m *Manager) ConfirmSlug(ctx context.Context, deviceID, slug string) (*Job, error) {
	slug = models.CanonicalSlug(slug)
	if slug == "" {
		return nil, fmt.Errorf("%w: slug is required", ErrInvalidRequest)
	}

	job, err := m.begin(ctx, deviceID, StepSelecting)
	if err != nil {
		return nil, err
	}

	if err := m.apply(ctx, job, Scraping{Slug: slug, Stage: StageQueued}, fmt.Sprintf("slug %s confirmed", slug)); err != nil {
		m.release(deviceID)
		return nil, err
	}

	snapshot := job.Clone()
	m.run(job, m.scrape)
	return snapshot, nil
}

// ImportExisting links the device to an existing catalogue entry without
// scraping.
func (m *Manager) ImportExisting(ctx context.Context, deviceID, slug string) (*Job, error) {
	slug = models.CanonicalSlug(slug)
	if slug == "" {
		return nil, fmt.Errorf("%w: slug is required", ErrInvalidRequest)
	}

	job, err := m.begin(ctx, deviceID, StepSelecting)
	if err != nil {
		return nil, err
	}

	snapshot := job.Clone()
	m.run(job, func(ctx context.Context, job *Job) {
		dev, err := m.catalogue.ImportExisting(ctx, slug)
		if err != nil {
			m.fail(ctx, job, err, models.ErrKindCatalogue)
			return
		}
		m.apply(ctx, job, Done{Slug: slug, CatalogID: dev.ID, CatalogName: dev.Name, Linked: true},
			fmt.Sprintf("imported existing device %s", dev.Name))
	})
	return snapshot, nil
}

// SearchComparisonSite runs the site search for a job waiting in selecting
// and adds the options to it.
func (m *Manager) SearchComparisonSite(ctx context.Context, deviceID string) (*Job, error) {
	job, err := m.begin(ctx, deviceID, StepSelecting)
	if err != nil {
		return nil, err
	}

	snapshot := job.Clone()
	m.run(job, func(ctx context.Context, job *Job) {
		options, err := m.resolver.Search(ctx, job.Name)
		if err != nil {
			m.fail(ctx, job, err, models.ErrKindScrape)
			return
		}
		st := job.State.(Selecting)
		st.Options = options
		st.SiteSearched = true
		m.apply(ctx, job, st, fmt.Sprintf("comparison site offered %d options", len(options)))
	})
	return snapshot, nil
}

// ResolveConflict settles a slug conflict. Merge links the job to the
// existing device; unique scrapes the slug anyway.
func (m *Manager) ResolveConflict(ctx context.Context, deviceID string, resolution ConflictResolution) (*Job, error) {
	if resolution != ResolveMerge && resolution != ResolveUnique {
		return nil, fmt.Errorf("%w: unknown conflict resolution %q", ErrInvalidRequest, resolution)
	}

	job, err := m.begin(ctx, deviceID, StepSlugConflict)
	if err != nil {
		return nil, err
	}
	conflict := job.State.(SlugConflict)

	if resolution == ResolveMerge {
		defer m.release(deviceID)
		err := m.apply(ctx, job, Done{Slug: conflict.Slug, CatalogID: conflict.ExistingID, CatalogName: conflict.ExistingName, Linked: true},
			fmt.Sprintf("merged into existing device %s", conflict.ExistingName))
		if err != nil {
			return nil, err
		}
		return job.Clone(), nil
	}

	if err := m.apply(ctx, job, Scraping{Slug: conflict.Slug, AllowConflict: true, Stage: StageQueued}, "treating slug as unique"); err != nil {
		m.release(deviceID)
		return nil, err
	}
	snapshot := job.Clone()
	m.run(job, m.scrape)
	return snapshot, nil
}

// checkDeviceType accepts an empty type or one the catalogue knows.
func (m *Manager) checkDeviceType(ctx context.Context, deviceType string) error {
	if deviceType == "" {
		return nil
	}
	types, err := m.catalogue.GetDeviceTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list device types: %w", err)
	}
	if !slices.Contains(types, deviceType) {
		return fmt.Errorf("%w: unknown device type %q", ErrInvalidRequest, deviceType)
	}
	return nil
}

func (m *Manager) Get(ctx context.Context, deviceID string) (*Job, error) {
	return m.store.Get(ctx, deviceID)
}

func (m *Manager) List(ctx context.Context) ([]*Job, error) {
	return m.store.List(ctx)
}

// RecoverInterrupted marks jobs left searching or scraping by a previous
// process as interrupted. It returns how many were marked.
func (m *Manager) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	count := 0
	for _, job := range jobs {
		if !job.Step().Active() || !m.acquire(job.DeviceID) {
			continue
		}
		slug := ""
		if st, ok := job.State.(Scraping); ok {
			slug = st.Slug
		}
		err := m.apply(ctx, job, Interrupted{During: job.Step(), Slug: slug}, "interrupted by restart")
		m.release(job.DeviceID)
		if err != nil {
			return count, err
		}
		count++
	}

	if count > 0 {
		m.logger.Warn("jobs interrupted by restart", "count", count)
	}
	return count, nil
}

// Wait blocks until no pipeline work is running.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels running pipeline work, which leaves those jobs
// interrupted, and waits for it to stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) acquire(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy[deviceID] {
		return false
	}
	m.busy[deviceID] = true
	return true
}

func (m *Manager) release(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.busy, deviceID)
}

// begin claims the device and loads its job, which must be in one of allowed.
// On error the claim is released.
func (m *Manager) begin(ctx context.Context, deviceID string, allowed ...Step) (*Job, error) {
	if !m.acquire(deviceID) {
		return nil, ErrJobBusy
	}

	job, err := m.store.Get(ctx, deviceID)
	if err != nil {
		m.release(deviceID)
		return nil, err
	}
	if !slices.Contains(allowed, job.Step()) {
		m.release(deviceID)
		return nil, fmt.Errorf("%w: job is %s", ErrInvalidTransition, job.Step())
	}
	return job, nil
}

// run executes fn for a claimed job in its own goroutine and releases the
// claim when fn returns.
func (m *Manager) run(job *Job, fn func(ctx context.Context, job *Job)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(job.DeviceID)

		ctx, cancel := m.ctx, context.CancelFunc(func() {})
		if m.cfg.StepTimeout > 0 {
			ctx, cancel = context.WithTimeout(m.ctx, m.cfg.StepTimeout)
		}
		defer cancel()

		fn(ctx, job)
	}()
}

// apply moves job to next and persists it. A next state of the same step is an
// in-step update. Entering error counts a failed attempt.
func (m *Manager) apply(ctx context.Context, job *Job, next State, log string) error {
	from, to := job.Step(), next.Step()
	if from != to && !CanTransition(from, to) {
		m.logger.Error("rejected job transition", "device_id", job.DeviceID, "from", from, "to", to)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	if to == StepError && from != StepError {
		job.Attempts++
	}
	job.State = next
	if log != "" {
		job.LastLog = log
	}
	job.UpdatedAt = m.now()

	// the step may have been cancelled; the write must still land
	ctx = context.WithoutCancel(ctx)
	if err := m.store.Put(ctx, job); err != nil {
		m.logger.Error("failed to persist job", "device_id", job.DeviceID, "step", to, "error", err)
		return fmt.Errorf("failed to persist job: %w", err)
	}

	if from != to {
		observability.JobTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
		m.logger.Info("job transition", "device_id", job.DeviceID, "from", from, "to", to, "log", job.LastLog)
	}
	m.notify(ctx, job)
	return nil
}

func (m *Manager) notify(ctx context.Context, job *Job) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.JobChanged(ctx, job.Clone()); err != nil {
		m.logger.Warn("failed to publish job change", "device_id", job.DeviceID, "error", err)
	}
}
