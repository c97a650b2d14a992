// Package queue consumes external business events from a Redis list and
// feeds them to the rule engine. Events carry arbitrary JSON payloads that
// become the evaluation context.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Callback receives each decoded event payload.
type Callback func(ctx context.Context, eventData map[string]any) error

type Trigger struct {
	Connection map[string]string
	Queue      string

	client   redis.UniversalClient
	callback Callback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewTrigger(queue string, connection map[string]string, logger *slog.Logger) (*Trigger, error) {
	if queue == "" {
		return nil, errors.New("event trigger queue name is required")
	}

	if connection == nil {
		connection = make(map[string]string)
	}

	return &Trigger{
		Connection: connection,
		Queue:      queue,
		stopCh:     make(chan struct{}),
		logger: logger.With(
			"module", "event_trigger",
			"queue", queue,
		),
	}, nil
}

func (t *Trigger) Start(ctx context.Context, callback Callback) error {
	t.logger.InfoContext(ctx, "Starting event trigger")
	t.callback = callback

	if err := t.initializeClient(ctx); err != nil {
		return fmt.Errorf("failed to initialize event queue client: %w", err)
	}

	t.wg.Add(1)

	go t.consume(ctx)

	return nil
}

func (t *Trigger) initializeClient(ctx context.Context) error {
	addr := t.Connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	password := t.Connection["password"]
	db := 0

	if dbStr := t.Connection["db"]; dbStr != "" {
		if _, err := fmt.Sscanf(dbStr, "%d", &db); err != nil {
			return fmt.Errorf("invalid db value: %w", err)
		}
	}

	t.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	t.logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	t.logger.InfoContext(ctx, "Starting event consumer")

	for {
		select {
		case <-t.stopCh:
			t.logger.InfoContext(ctx, "Event consumer stopped")

			return
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "Context cancelled, stopping event consumer")

			return
		default:
			if err := t.processMessage(ctx); err != nil {
				t.logger.ErrorContext(ctx, "Error processing event", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (t *Trigger) processMessage(ctx context.Context) error {
	result, err := t.client.BLPop(ctx, 1*time.Second, t.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop event from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	raw := result[1]
	t.logger.InfoContext(ctx, "Received event from queue")

	eventData := decodePayload(raw)

	go func() {
		if err := t.callback(ctx, eventData); err != nil {
			t.logger.ErrorContext(ctx, "Error evaluating rules for event", "error", err)
		}
	}()

	return nil
}

// decodePayload turns one raw queue entry into an evaluation context.
// Non-JSON payloads and JSON null still trigger rules, as an opaque message.
func decodePayload(raw string) map[string]any {
	var eventData map[string]any
	if err := json.Unmarshal([]byte(raw), &eventData); err != nil || eventData == nil {
		eventData = map[string]any{
			"message": raw,
		}
	}

	if eventData["timestamp"] == nil {
		eventData["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}

	return eventData
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping event trigger")

	close(t.stopCh)
	t.wg.Wait()

	if t.client != nil {
		if err := t.client.Close(); err != nil {
			t.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
