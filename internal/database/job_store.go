package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/thatssosanya/kimovil-scraper/internal/jobs"
)

// JobStore persists scrape jobs as JSONB documents keyed by device id.
type JobStore struct {
	db *DB
}

func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Get(ctx context.Context, deviceID string) (*jobs.Job, error) {
	var data []byte
	err := s.db.pool.QueryRow(ctx, `SELECT job FROM scrape_job WHERE device_id = $1`, deviceID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, jobs.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return decodeJob(data)
}

func (s *JobStore) Create(ctx context.Context, job *jobs.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	query := `
		INSERT INTO scrape_job (device_id, step, job, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id) DO NOTHING`

	result, err := s.db.pool.Exec(ctx, query, job.DeviceID, string(job.Step()), data, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return jobs.ErrJobExists
	}
	return nil
}

func (s *JobStore) Put(ctx context.Context, job *jobs.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	query := `
		INSERT INTO scrape_job (device_id, step, job, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (device_id) DO UPDATE
		SET step = EXCLUDED.step, job = EXCLUDED.job, updated_at = EXCLUDED.updated_at`

	if _, err := s.db.pool.Exec(ctx, query, job.DeviceID, string(job.Step()), data, job.CreatedAt, job.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStore) Delete(ctx context.Context, deviceID string) error {
	result, err := s.db.pool.Exec(ctx, `DELETE FROM scrape_job WHERE device_id = $1`, deviceID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return jobs.ErrJobNotFound
	}
	return nil
}

// List returns jobs newest first.
func (s *JobStore) List(ctx context.Context) ([]*jobs.Job, error) {
	rows, err := s.db.pool.Query(ctx, `SELECT job FROM scrape_job ORDER BY created_at DESC, device_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	list := []*jobs.Job{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		job, err := decodeJob(data)
		if err != nil {
			return nil, err
		}
		list = append(list, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return list, nil
}

func decodeJob(data []byte) (*jobs.Job, error) {
	job := &jobs.Job{}
	if err := json.Unmarshal(data, job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return job, nil
}
