package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/thatssosanya/kimovil-scraper/internal/jobs"
)

// EventType names a job event on the stream
type EventType string

const (
	EventTypeJobChanged EventType = "SCRAPE_JOB_CHANGED"
	EventTypeJobClosed  EventType = "SCRAPE_JOB_CLOSED"

	JobStream = "stream:scrape_jobs"

	// defaultMaxLen is the approximate number of entries kept on the stream
	defaultMaxLen = 10000
)

// RedisClient is the subset of the Redis client the publisher uses
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// JobEvent is the envelope written to the job stream
type JobEvent struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Job       *jobs.Job `json:"job,omitempty"`
	Source    string    `json:"source"`
}

// Publisher writes job snapshots to a Redis stream so the dashboard can
// follow jobs without polling
type Publisher struct {
	redis  RedisClient
	stream string
	maxLen int64
	now    func() time.Time
	logger *slog.Logger
}

func NewPublisher(client RedisClient, logger *slog.Logger) *Publisher {
	return &Publisher{
		redis:  client,
		stream: JobStream,
		maxLen: defaultMaxLen,
		now:    time.Now,
		logger: logger.With("component", "event_publisher"),
	}
}

// JobChanged publishes the current snapshot of job
func (p *Publisher) JobChanged(ctx context.Context, job *jobs.Job) error {
	return p.publish(ctx, &JobEvent{
		EventType: EventTypeJobChanged,
		DeviceID:  job.DeviceID,
		Job:       job,
	})
}

// JobClosed publishes the removal of a device's job
func (p *Publisher) JobClosed(ctx context.Context, deviceID string) error {
	return p.publish(ctx, &JobEvent{
		EventType: EventTypeJobClosed,
		DeviceID:  deviceID,
	})
}

func (p *Publisher) publish(ctx context.Context, event *JobEvent) error {
	event.EventID = uuid.New().String()
	event.Timestamp = p.now().UTC()
	event.Source = "kimovil-scraper"

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	step := ""
	if event.Job != nil {
		step = string(event.Job.Step())
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"data":      string(data),
			"type":      string(event.EventType),
			"event_id":  event.EventID,
			"device_id": event.DeviceID,
			"step":      step,
			"timestamp": strconv.FormatInt(event.Timestamp.UnixNano(), 10),
		},
	}

	id, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("job event published",
		"type", event.EventType,
		"device_id", event.DeviceID,
		"step", step,
		"stream_id", id)
	return nil
}
