package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/thatssosanya/kimovil-scraper/internal/models"
	"github.com/thatssosanya/kimovil-scraper/internal/resolver"
)

// search runs the searching step: catalogue first, then the comparison site
// when asked or when the catalogue has nothing.
func (m *Manager) search(ctx context.Context, job *Job) {
	st, ok := job.State.(Searching)
	if !ok {
		return
	}

	matches, err := m.resolver.FastMatches(ctx, job.Name, job.DeviceType)
	if err != nil {
		m.fail(ctx, job, err, models.ErrKindCatalogue)
		return
	}

	searchSite := st.SearchSite || len(matches) == 0
	if len(matches) > 0 {
		st.FastMatches = matches
		st.SearchSite = searchSite
		if err := m.apply(ctx, job, st, fmt.Sprintf("found %d catalogue matches", len(matches))); err != nil {
			return
		}
	}

	if !searchSite {
		m.apply(ctx, job, Selecting{FastMatches: matches, Options: []models.AutocompleteOption{}},
			"waiting for confirmation of a catalogue match")
		return
	}

	options, err := m.resolver.Search(ctx, job.Name)
	if err != nil {
		m.fail(ctx, job, err, models.ErrKindScrape)
		return
	}

	switch {
	case len(options) == 0 && len(matches) == 0:
		m.fail(ctx, job, models.NewPipelineError(models.ErrKindResolution,
			fmt.Sprintf("nothing matches %q", job.Name), resolver.ErrNoCandidates), models.ErrKindResolution)
		return

	case len(matches) == 0 && len(options) == 1:
		slug := options[0].Slug
		if err := m.apply(ctx, job, Scraping{Slug: slug, Stage: StageQueued},
			fmt.Sprintf("single option %s selected", slug)); err != nil {
			return
		}
		m.scrape(ctx, job)
		return

	case len(matches) == 0 && len(options) > 1 && m.cfg.AutoPick:
		slug, err := m.resolver.PickSlug(ctx, job.Name, options)
		if err != nil {
			m.fail(ctx, job, err, models.ErrKindResolution)
			return
		}
		if err := m.apply(ctx, job, Scraping{Slug: slug, Stage: StageQueued},
			fmt.Sprintf("model picked %s from %d options", slug, len(options))); err != nil {
			return
		}
		m.scrape(ctx, job)
		return
	}

	m.apply(ctx, job, Selecting{FastMatches: matches, Options: options, SiteSearched: true},
		fmt.Sprintf("waiting for a choice among %d options", len(options)+len(matches)))
}

// scrape runs the scraping step for the job's slug: conflict check, page
// scrape, normalization and catalogue import.
func (m *Manager) scrape(ctx context.Context, job *Job) {
	st, ok := job.State.(Scraping)
	if !ok {
		return
	}
	slug := models.CanonicalSlug(st.Slug)

	if !st.AllowConflict {
		existing, err := m.catalogue.DeviceBySlug(ctx, slug)
		if err != nil {
			m.fail(ctx, job, err, models.ErrKindCatalogue)
			return
		}
		if existing != nil {
			m.apply(ctx, job, SlugConflict{Slug: slug, ExistingID: existing.ID, ExistingName: existing.Name},
				fmt.Sprintf("slug %s already belongs to %s", slug, existing.Name))
			return
		}
	}

	m.progress(ctx, job, StageScraping, 20, fmt.Sprintf("scraping %s", slug))
	raw, err := m.scraper.ScrapeDevice(ctx, slug)
	if err != nil {
		m.fail(ctx, job, err, models.ErrKindScrape)
		return
	}

	m.progress(ctx, job, StageNormalizing, 55, fmt.Sprintf("normalizing %s", raw.Name))
	record, err := m.normalizer.Normalize(ctx, raw)
	if err != nil {
		m.fail(ctx, job, err, models.ErrKindNormalization)
		return
	}

	m.progress(ctx, job, StageImporting, 85, fmt.Sprintf("importing %s", record.Name))
	dev, err := m.catalogue.CreateOrImportDevice(ctx, record, models.ImportOptions{
		DeviceType: job.DeviceType,
		Unique:     st.AllowConflict,
	})
	var conflict *models.SlugConflictError
	if errors.As(err, &conflict) {
		m.apply(ctx, job, SlugConflict{Slug: slug, ExistingID: conflict.ExistingID, ExistingName: conflict.ExistingName},
			fmt.Sprintf("slug %s was taken by %s during import", slug, conflict.ExistingName))
		return
	}
	if err != nil {
		m.fail(ctx, job, err, models.ErrKindCatalogue)
		return
	}

	m.apply(ctx, job, Done{Slug: dev.Slug, CatalogID: dev.ID, CatalogName: dev.Name},
		fmt.Sprintf("imported %s", dev.Name))
}

func (m *Manager) progress(ctx context.Context, job *Job, stage string, percent int, log string) {
	st, ok := job.State.(Scraping)
	if !ok {
		return
	}
	st.Stage = stage
	st.Percent = percent
	m.apply(ctx, job, st, log)
}

// fail records err on the job. Work cut short by shutdown leaves the job
// interrupted where that edge exists; everything else enters error with the
// error's kind, or fallback when it carries none.
func (m *Manager) fail(ctx context.Context, job *Job, err error, fallback string) {
	from := job.Step()

	if m.ctx.Err() != nil && CanTransition(from, StepInterrupted) {
		slug := ""
		if st, ok := job.State.(Scraping); ok {
			slug = st.Slug
		}
		m.apply(ctx, job, Interrupted{During: from, Slug: slug}, "interrupted by shutdown")
		return
	}

	kind := fallback
	var pe *models.PipelineError
	if errors.As(err, &pe) {
		kind = pe.Kind
	}

	message := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		message = fmt.Sprintf("timed out while %s: %v", from, err)
	}

	failed := Failed{Kind: kind, Message: message}
	if st, ok := job.State.(Scraping); ok {
		failed.Slug = st.Slug
	}

	m.logger.Error("job step failed", "device_id", job.DeviceID, "step", from, "kind", kind, "error", err)
	m.apply(ctx, job, failed, message)
}
