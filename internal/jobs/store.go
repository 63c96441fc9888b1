package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrJobNotFound = errors.New("job not found")

// Store persists jobs keyed by device id. Implementations return copies.
type Store interface {
	Get(ctx context.Context, deviceID string) (*Job, error)
	// Create stores a new job and fails with ErrJobExists when the device
	// already has one.
	Create(ctx context.Context, job *Job) error
	Put(ctx context.Context, job *Job) error
	Delete(ctx context.Context, deviceID string) error
	List(ctx context.Context) ([]*Job, error)
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: map[string]*Job{}}
}

func (s *MemoryStore) Get(_ context.Context, deviceID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[deviceID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.DeviceID]; ok {
		return ErrJobExists
	}
	s.jobs[job.DeviceID] = job.Clone()
	return nil
}

func (s *MemoryStore) Put(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.DeviceID] = job.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[deviceID]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, deviceID)
	return nil
}

// List returns jobs newest first.
func (s *MemoryStore) List(_ context.Context) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.Clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].DeviceID < jobs[j].DeviceID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}
