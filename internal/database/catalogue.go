package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/thatssosanya/kimovil-scraper/internal/models"
)

const (
	CatalogueStream     = "stream:device_catalogue"
	EventDeviceImported = "DEVICE_IMPORTED"

	maxFastMatches  = 10
	maxSlugVariants = 20
)

var ErrDeviceNotFound = errors.New("device not found")

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// DeviceImportedEvent is the outbox payload of a catalogue write
type DeviceImportedEvent struct {
	DeviceID   string    `json:"device_id"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	Brand      string    `json:"brand"`
	DeviceType string    `json:"device_type,omitempty"`
	ImportedAt time.Time `json:"imported_at"`
}

// CatalogueRepository is the device catalogue backed by Postgres
type CatalogueRepository struct {
	db     *DB
	outbox *OutboxRepository
	logger *slog.Logger
}

func NewCatalogueRepository(db *DB, logger *slog.Logger) *CatalogueRepository {
	return &CatalogueRepository{
		db:     db,
		outbox: NewOutboxRepository(db),
		logger: logger.With("component", "catalogue"),
	}
}

// FindExistingMatches returns catalogue devices whose name or aliases contain
// name, exact names first. An empty deviceType matches every type.
func (r *CatalogueRepository) FindExistingMatches(ctx context.Context, name, deviceType string) ([]models.DeviceSummary, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return []models.DeviceSummary{}, nil
	}
	pattern := "%" + likeEscaper.Replace(name) + "%"

	query := `
		SELECT id, name, slug, device_type
		FROM device
		WHERE (name ILIKE $1 OR aliases ILIKE $1 OR slug = $2)
			AND ($3::text = '' OR device_type = $3::text)
		ORDER BY (lower(name) = lower($4::text)) DESC, length(name) ASC, name ASC
		LIMIT $5`

	rows, err := r.db.pool.Query(ctx, query, pattern, models.CanonicalSlug(name), deviceType, name, maxFastMatches)
	if err != nil {
		return nil, fmt.Errorf("failed to find matches: %w", err)
	}
	defer rows.Close()

	matches := []models.DeviceSummary{}
	for rows.Next() {
		var (
			m  models.DeviceSummary
			id uuid.UUID
		)
		if err := rows.Scan(&id, &m.Name, &m.Slug, &m.Type); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		m.ID = id.String()
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return matches, nil
}

// DeviceBySlug returns the device owning slug, or nil when there is none.
func (r *CatalogueRepository) DeviceBySlug(ctx context.Context, slug string) (*models.DeviceSummary, error) {
	var (
		dev models.DeviceSummary
		id  uuid.UUID
	)
	err := r.db.pool.QueryRow(ctx,
		`SELECT id, name, slug, device_type FROM device WHERE slug = $1`, slug,
	).Scan(&id, &dev.Name, &dev.Slug, &dev.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device by slug: %w", err)
	}
	dev.ID = id.String()
	return &dev, nil
}

// ImportExisting links to the catalogue device that owns slug.
func (r *CatalogueRepository) ImportExisting(ctx context.Context, slug string) (*models.Device, error) {
	dev, err := r.DeviceBySlug(ctx, slug)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrKindCatalogue, "failed to look up existing device", err)
	}
	if dev == nil {
		return nil, models.NewPipelineError(models.ErrKindCatalogue,
			fmt.Sprintf("no catalogue device owns slug %s", slug), ErrDeviceNotFound)
	}
	return &models.Device{ID: dev.ID, Name: dev.Name, Slug: dev.Slug}, nil
}

// CreateOrImportDevice inserts the storage form of rec as a new device and
// queues a DEVICE_IMPORTED event in the same transaction. A device that
// already owns the slug is never overwritten: the write fails with a
// *models.SlugConflictError, or with opts.Unique the record is stored under
// the first free slug of the form slug-2, slug-3 and so on.
func (r *CatalogueRepository) CreateOrImportDevice(ctx context.Context, rec *models.CanonicalDeviceRecord, opts models.ImportOptions) (*models.Device, error) {
	stored := rec.Flatten()
	record, err := json.Marshal(stored)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrKindCatalogue, "failed to encode device record", err)
	}

	variants := 1
	if opts.Unique {
		variants = maxSlugVariants
	}

	var dev models.Device
	err = r.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO device (id, slug, name, brand, aliases, record, device_type)
			VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7::text, ''), 'smartphone'))
			ON CONFLICT (slug) DO NOTHING
			RETURNING id, name, slug`

		inserted := false
		for n := 1; n <= variants && !inserted; n++ {
			slug := slugVariant(stored.Slug, n)

			var id uuid.UUID
			err := tx.QueryRow(ctx, query,
				uuid.New(), slug, stored.Name, stored.Brand, stored.Aliases, record, opts.DeviceType,
			).Scan(&id, &dev.Name, &dev.Slug)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to insert device: %w", err)
			}
			dev.ID = id.String()
			inserted = true
		}

		if !inserted {
			if opts.Unique {
				return fmt.Errorf("no free slug among %d variants of %s", variants, stored.Slug)
			}
			return r.conflictWithTx(ctx, tx, stored.Slug)
		}

		payload, err := json.Marshal(DeviceImportedEvent{
			DeviceID:   dev.ID,
			Slug:       dev.Slug,
			Name:       dev.Name,
			Brand:      stored.Brand,
			DeviceType: opts.DeviceType,
			ImportedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}

		return r.outbox.InsertWithTx(ctx, tx, &OutboxEvent{
			AggregateType: "device",
			AggregateID:   dev.ID,
			EventType:     EventDeviceImported,
			Payload:       payload,
			TargetStream:  CatalogueStream,
		})
	})
	if err != nil {
		return nil, models.NewPipelineError(models.ErrKindCatalogue, fmt.Sprintf("failed to import %s", rec.Slug), err)
	}

	r.logger.Info("device imported", "device_id", dev.ID, "slug", dev.Slug, "unique", opts.Unique)
	return &dev, nil
}

func (r *CatalogueRepository) conflictWithTx(ctx context.Context, tx pgx.Tx, slug string) error {
	var (
		id   uuid.UUID
		name string
	)
	err := tx.QueryRow(ctx, `SELECT id, name FROM device WHERE slug = $1`, slug).Scan(&id, &name)
	if err != nil {
		return fmt.Errorf("failed to look up owner of %s: %w", slug, err)
	}
	return &models.SlugConflictError{Slug: slug, ExistingID: id.String(), ExistingName: name}
}

func slugVariant(slug string, n int) string {
	if n == 1 {
		return slug
	}
	return fmt.Sprintf("%s-%d", slug, n)
}

// GetDeviceTypes lists the device types the catalogue accepts.
func (r *CatalogueRepository) GetDeviceTypes(ctx context.Context) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT name FROM device_type ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list device types: %w", err)
	}
	defer rows.Close()

	types, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan device types: %w", err)
	}
	return types, nil
}
