package database

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if err := mockArgs.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("1700000000000-0")
	}
	return cmd
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func streamValues(args *redis.XAddArgs) map[string]any {
	values, _ := args.Values.(map[string]any)
	return values
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func importedEvent(slug string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "device",
		AggregateID:   "dev-" + slug,
		EventType:     EventDeviceImported,
		Payload:       json.RawMessage(`{"slug":"` + slug + `","name":"Test Device"}`),
		TargetStream:  CatalogueStream,
		CreatedAt:     time.Now(),
	}
}

func TestRelay_ProcessEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes every event and marks it processed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := &Relay{redis: mockRedis, outbox: mockOutbox, logger: discardLogger(), batchSize: 10}

		events := []*OutboxEvent{importedEvent("pixel-8"), importedEvent("galaxy-s24")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		for _, event := range events {
			event := event
			mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
				return args.Stream == CatalogueStream &&
					streamValues(args)["event_type"] == EventDeviceImported &&
					streamValues(args)["aggregate_id"] == event.AggregateID
			})).Return(nil)
			mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)
		}

		require.NoError(t, relay.processEvents(ctx))

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("marks event failed when redis rejects it", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := &Relay{redis: mockRedis, outbox: mockOutbox, logger: discardLogger(), batchSize: 10}

		event := importedEvent("pixel-8")
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("redis connection failed"))
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.MatchedBy(func(err error) bool {
			return err.Error() == "failed to publish to redis: redis connection failed"
		})).Return(nil)

		assert.NoError(t, relay.processEvents(ctx))

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("empty batch publishes nothing", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := &Relay{redis: mockRedis, outbox: mockOutbox, logger: discardLogger(), batchSize: 10}

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		require.NoError(t, relay.processEvents(ctx))
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("one failure does not stop the batch", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := &Relay{redis: mockRedis, outbox: mockOutbox, logger: discardLogger(), batchSize: 10}

		events := []*OutboxEvent{importedEvent("pixel-8"), importedEvent("galaxy-s24")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return streamValues(args)["aggregate_id"] == "dev-pixel-8"
		})).Return(errors.New("redis error"))
		mockOutbox.On("MarkFailed", ctx, events[0].ID, mock.Anything).Return(nil)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return streamValues(args)["aggregate_id"] == "dev-galaxy-s24"
		})).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, events[1].ID).Return(nil)

		require.NoError(t, relay.processEvents(ctx))

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("outbox read failure is returned", func(t *testing.T) {
		mockOutbox := new(MockOutboxRepository)
		relay := &Relay{redis: new(MockRedisClient), outbox: mockOutbox, logger: discardLogger(), batchSize: 10}

		mockOutbox.On("GetPending", ctx, 10).Return(nil, errors.New("connection reset"))

		err := relay.processEvents(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestRelay_Publish(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	relay := &Relay{redis: mockRedis, outbox: new(MockOutboxRepository), logger: discardLogger()}

	event := importedEvent("pixel-8")

	var published map[string]any
	mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
		val, ok := streamValues(args)["data"].(string)
		if !ok {
			return false
		}
		return json.Unmarshal([]byte(val), &published) == nil
	})).Return(nil)

	require.NoError(t, relay.publish(ctx, event))
	mockRedis.AssertExpectations(t)

	assert.Equal(t, event.ID.String(), published["id"])
	assert.Equal(t, EventDeviceImported, published["type"])
	assert.Equal(t, "device", published["aggregate_type"])
	assert.Equal(t, "dev-pixel-8", published["aggregate_id"])
	assert.Equal(t, map[string]any{"slug": "pixel-8", "name": "Test Device"}, published["payload"])

	metadata, ok := published["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "kimovil-scraper", metadata["source"])
	assert.Equal(t, CatalogueStream, metadata["target_stream"])
}

func TestRelay_PublishRejectsInvalidPayload(t *testing.T) {
	mockRedis := new(MockRedisClient)
	relay := &Relay{redis: mockRedis, outbox: new(MockOutboxRepository), logger: discardLogger()}

	event := importedEvent("pixel-8")
	event.Payload = json.RawMessage(`not json`)

	err := relay.publish(context.Background(), event)
	require.Error(t, err)
	mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
}

func TestRelay_Start(t *testing.T) {
	mockOutbox := new(MockOutboxRepository)
	relay := &Relay{
		redis:     new(MockRedisClient),
		outbox:    mockOutbox,
		logger:    discardLogger(),
		interval:  20 * time.Millisecond,
		batchSize: 10,
	}

	mockOutbox.On("GetPending", mock.Anything, 10).Return([]*OutboxEvent{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- relay.Start(ctx)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancellation")
	}
}
