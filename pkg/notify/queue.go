// Package notify queues best-effort internal alerts (workflow failures,
// terminal delivery failures, engine faults) and delivers them to system
// recipients over the configured channel fallback chain.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

const (
	// DefaultTopic is the pubsub topic alerts travel on.
	DefaultTopic = "system_notifications"

	// DefaultMaxAttempts bounds full delivery passes per notification.
	DefaultMaxAttempts = 3

	// DefaultBackoffUnit is the linear requeue backoff unit:
	// delay = attempts * unit.
	DefaultBackoffUnit = 30 * time.Second
)

// Queue is the internal notification queue. Alerts are best effort: a
// notification that exhausts its attempts is dropped with a logged error,
// it never blocks or fails the operation that raised it.
type Queue struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	sender     protocol.Sender
	clock      clock.Clock
	logger     *slog.Logger

	topic       string
	backoffUnit time.Duration

	defaultChannels   []models.ChannelType
	defaultRecipients []string
}

func NewQueue(
	publisher message.Publisher,
	subscriber message.Subscriber,
	sender protocol.Sender,
	clk clock.Clock,
	channels []models.ChannelType,
	recipients []string,
	logger *slog.Logger,
) *Queue {
	if clk == nil {
		clk = clock.New()
	}

	if len(channels) == 0 {
		channels = []models.ChannelType{models.ChannelEmail}
	}

	return &Queue{
		publisher:         publisher,
		subscriber:        subscriber,
		sender:            sender,
		clock:             clk,
		logger:            logger.With("module", "notification_queue"),
		topic:             DefaultTopic,
		backoffUnit:       DefaultBackoffUnit,
		defaultChannels:   channels,
		defaultRecipients: recipients,
	}
}

// WithBackoffUnit overrides the linear requeue backoff unit.
func (q *Queue) WithBackoffUnit(unit time.Duration) *Queue {
	q.backoffUnit = unit

	return q
}

// Notify enqueues an alert, filling queue-level defaults for unset fields.
// Implements the engine's notifier contract.
func (q *Queue) Notify(ctx context.Context, notification models.Notification) error {
	if notification.ID == "" {
		notification.ID = "ntf-" + uuid.New().String()[:8]
	}

	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = q.clock.Now().UTC()
	}

	if notification.MaxAttempts <= 0 {
		notification.MaxAttempts = DefaultMaxAttempts
	}

	if len(notification.Channels) == 0 {
		notification.Channels = q.defaultChannels
	}

	if len(notification.Recipients) == 0 {
		notification.Recipients = q.defaultRecipients
	}

	return q.publish(ctx, notification)
}

func (q *Queue) publish(ctx context.Context, notification models.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification %s: %w", notification.ID, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := q.publisher.Publish(q.topic, msg); err != nil {
		return fmt.Errorf("failed to publish notification %s: %w", notification.ID, err)
	}

	q.logger.InfoContext(ctx, "Notification enqueued",
		"notification_id", notification.ID, "type", notification.Type, "attempts", notification.Attempts)

	return nil
}

// Run drains the queue until ctx is cancelled. Messages are always acked;
// a failed delivery pass is requeued as a fresh message after its backoff
// instead of being redelivered by the broker.
func (q *Queue) Run(ctx context.Context) error {
	messages, err := q.subscriber.Subscribe(ctx, q.topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", q.topic, err)
	}

	q.logger.InfoContext(ctx, "Notification queue consuming", "topic", q.topic)

	for msg := range messages {
		q.handle(ctx, msg)
		msg.Ack()
	}

	return nil
}

func (q *Queue) handle(ctx context.Context, msg *message.Message) {
	var notification models.Notification
	if err := json.Unmarshal(msg.Payload, &notification); err != nil {
		q.logger.ErrorContext(ctx, "Dropping undecodable notification", "message_uuid", msg.UUID, "error", err)

		return
	}

	if q.deliver(ctx, &notification) {
		return
	}

	notification.Attempts++

	if notification.Attempts >= notification.MaxAttempts {
		q.logger.ErrorContext(ctx, "Dropping notification after exhausting attempts",
			"notification_id", notification.ID,
			"type", notification.Type,
			"attempts", notification.Attempts,
			"subject", notification.Subject)

		return
	}

	delay := time.Duration(notification.Attempts) * q.backoffUnit
	q.logger.WarnContext(ctx, "Requeueing notification",
		"notification_id", notification.ID, "attempts", notification.Attempts, "delay", delay)

	q.clock.AfterFunc(delay, func() {
		if err := q.publish(ctx, notification); err != nil {
			q.logger.ErrorContext(ctx, "Failed to requeue notification",
				"notification_id", notification.ID, "error", err)
		}
	})
}

// deliver tries channels in configured order. The first channel that
// reaches every recipient completes the notification; partial reach counts
// as a channel failure and falls through to the next channel.
func (q *Queue) deliver(ctx context.Context, notification *models.Notification) bool {
	if len(notification.Recipients) == 0 {
		q.logger.WarnContext(ctx, "Notification has no recipients, dropping",
			"notification_id", notification.ID)

		return true
	}

	content := notification.Subject
	if notification.Body != "" {
		content = notification.Subject + "\n" + notification.Body
	}

	for _, channel := range notification.Channels {
		if q.deliverOn(ctx, notification, channel, content) {
			q.logger.InfoContext(ctx, "Notification delivered",
				"notification_id", notification.ID, "channel", channel)

			return true
		}
	}

	return false
}

func (q *Queue) deliverOn(ctx context.Context, notification *models.Notification, channel models.ChannelType, content string) bool {
	for _, recipient := range notification.Recipients {
		if _, err := q.sender.Send(ctx, channel, recipient, content); err != nil {
			q.logger.WarnContext(ctx, "Notification channel failed",
				"notification_id", notification.ID,
				"channel", channel,
				"recipient", recipient,
				"error", err)

			return false
		}
	}

	return true
}
