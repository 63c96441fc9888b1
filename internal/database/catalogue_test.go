package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatssosanya/kimovil-scraper/internal/jobs"
	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

func canonicalRecord(slug, name string) *models.CanonicalDeviceRecord {
	return &models.CanonicalDeviceRecord{
		Slug:       slug,
		Name:       name,
		Brand:      "Samsung",
		Aliases:    []string{"SM-S921B", "S24"},
		Materials:  []string{},
		Colors:     []string{"Onyx Black", "Marble Grey"},
		SKUs:       []models.SKU{{RAMGB: 8, StorageGB: 128, Markets: []string{"Global", "Europe"}}},
		Cameras:    []models.CameraRecord{},
		Benchmarks: []models.Benchmark{},
	}
}

func TestCatalogueRepository_Integration(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewCatalogueRepository(db, discardLogger())

	created, err := repo.CreateOrImportDevice(ctx, canonicalRecord("galaxy-s24", "Samsung Galaxy S24"), models.ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, "galaxy-s24", created.Slug)

	t.Run("import writes one outbox event", func(t *testing.T) {
		pending, err := repo.outbox.GetPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, EventDeviceImported, pending[0].EventType)
		assert.Equal(t, created.ID, pending[0].AggregateID)
		assert.Equal(t, CatalogueStream, pending[0].TargetStream)
	})

	t.Run("owned slug conflicts without overwriting", func(t *testing.T) {
		_, err := repo.CreateOrImportDevice(ctx, canonicalRecord("galaxy-s24", "Galaxy S24 (copy)"), models.ImportOptions{})

		var conflict *models.SlugConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, created.ID, conflict.ExistingID)
		assert.Equal(t, "Samsung Galaxy S24", conflict.ExistingName)

		owner, err := repo.DeviceBySlug(ctx, "galaxy-s24")
		require.NoError(t, err)
		assert.Equal(t, "Samsung Galaxy S24", owner.Name)

		pending, err := repo.outbox.GetPending(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 1, "a refused write queues no event")
	})

	t.Run("stored record is flattened", func(t *testing.T) {
		var aliases, colors string
		require.NoError(t, db.pool.QueryRow(ctx,
			`SELECT aliases, record->>'colors' FROM device WHERE slug = $1`, "galaxy-s24",
		).Scan(&aliases, &colors))
		assert.Equal(t, "SM-S921B|S24", aliases)
		assert.Equal(t, "Onyx Black|Marble Grey", colors)
	})

	t.Run("fast matches search names and aliases", func(t *testing.T) {
		matches, err := repo.FindExistingMatches(ctx, "galaxy s24", "")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, created.ID, matches[0].ID)

		matches, err = repo.FindExistingMatches(ctx, "SM-S921", "")
		require.NoError(t, err)
		assert.Len(t, matches, 1)

		matches, err = repo.FindExistingMatches(ctx, "galaxy s24", "tablet")
		require.NoError(t, err)
		assert.Empty(t, matches)

		matches, err = repo.FindExistingMatches(ctx, "100%", "")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("device by slug", func(t *testing.T) {
		dev, err := repo.DeviceBySlug(ctx, "galaxy-s24")
		require.NoError(t, err)
		require.NotNil(t, dev)
		assert.Equal(t, created.ID, dev.ID)

		dev, err = repo.DeviceBySlug(ctx, "pixel-8")
		require.NoError(t, err)
		assert.Nil(t, dev)
	})

	t.Run("import existing", func(t *testing.T) {
		dev, err := repo.ImportExisting(ctx, "galaxy-s24")
		require.NoError(t, err)
		assert.Equal(t, created.ID, dev.ID)

		_, err = repo.ImportExisting(ctx, "pixel-8")
		assert.ErrorIs(t, err, ErrDeviceNotFound)
		assert.Equal(t, models.ErrKindCatalogue, models.ErrorKind(err))
	})

	t.Run("unique import takes a free slug variant", func(t *testing.T) {
		second, err := repo.CreateOrImportDevice(ctx, canonicalRecord("galaxy-s24", "Galaxy S24 Exynos"),
			models.ImportOptions{Unique: true, DeviceType: "smartphone"})
		require.NoError(t, err)
		assert.Equal(t, "galaxy-s24-2", second.Slug)
		assert.NotEqual(t, created.ID, second.ID)

		third, err := repo.CreateOrImportDevice(ctx, canonicalRecord("galaxy-s24", "Galaxy S24 Snapdragon"),
			models.ImportOptions{Unique: true})
		require.NoError(t, err)
		assert.Equal(t, "galaxy-s24-3", third.Slug)

		owner, err := repo.DeviceBySlug(ctx, "galaxy-s24")
		require.NoError(t, err)
		assert.Equal(t, created.ID, owner.ID)
		assert.Equal(t, "Samsung Galaxy S24", owner.Name)
	})

	t.Run("device type is stored", func(t *testing.T) {
		tab, err := repo.CreateOrImportDevice(ctx, canonicalRecord("galaxy-tab-s9", "Galaxy Tab S9"),
			models.ImportOptions{DeviceType: "tablet"})
		require.NoError(t, err)

		dev, err := repo.DeviceBySlug(ctx, "galaxy-tab-s9")
		require.NoError(t, err)
		assert.Equal(t, tab.ID, dev.ID)
		assert.Equal(t, "tablet", dev.Type)

		phone, err := repo.DeviceBySlug(ctx, "galaxy-s24")
		require.NoError(t, err)
		assert.Equal(t, "smartphone", phone.Type)

		_, err = repo.CreateOrImportDevice(ctx, canonicalRecord("mystery", "Mystery"), models.ImportOptions{DeviceType: "toaster"})
		assert.Error(t, err)
		assert.Equal(t, models.ErrKindCatalogue, models.ErrorKind(err))
	})

	t.Run("device types", func(t *testing.T) {
		types, err := repo.GetDeviceTypes(ctx)
		require.NoError(t, err)
		assert.Contains(t, types, "smartphone")
	})
}

func TestJobStore_Integration(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewJobStore(db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	job := &jobs.Job{
		DeviceID:  "dev-1",
		Name:      "Galaxy S24",
		State:     jobs.Selecting{Options: []models.AutocompleteOption{{Name: "Galaxy S24", Slug: "galaxy-s24"}}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	require.NoError(t, store.Create(ctx, job))
	assert.ErrorIs(t, store.Create(ctx, job), jobs.ErrJobExists)

	got, err := store.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.StepSelecting, got.Step())
	assert.Equal(t, job.State, got.State)

	job.State = jobs.Failed{Kind: models.ErrKindScrape, Message: "timed out", Slug: "galaxy-s24"}
	job.Attempts = 1
	require.NoError(t, store.Put(ctx, job))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Attempts)
	assert.Equal(t, job.State, list[0].State)

	require.NoError(t, store.Delete(ctx, "dev-1"))
	_, err = store.Get(ctx, "dev-1")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "dev-1"), jobs.ErrJobNotFound)
}
