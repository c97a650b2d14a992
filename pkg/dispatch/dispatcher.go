// Package dispatch resolves scheduled message recipients, sends through the
// channel collaborator and tracks one delivery record per recipient with
// its own retry state.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/pulseops/automation/pkg/engine"
	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/persistence"
	"github.com/pulseops/automation/pkg/protocol"
	"github.com/pulseops/automation/pkg/template"
)

// DefaultBackoffUnit is the linear retry backoff unit between delivery
// attempts: nextRetry = now + attemptCount * unit.
const DefaultBackoffUnit = time.Minute

type Dispatcher struct {
	persistence persistence.Persistence
	sender      protocol.Sender
	resolver    protocol.DirectoryResolver
	clock       clock.Clock
	notifier    engine.Notifier
	backoffUnit time.Duration
	logger      *slog.Logger
}

func NewDispatcher(
	store persistence.Persistence,
	sender protocol.Sender,
	resolver protocol.DirectoryResolver,
	clk clock.Clock,
	notifier engine.Notifier,
	logger *slog.Logger,
) *Dispatcher {
	if clk == nil {
		clk = clock.New()
	}

	return &Dispatcher{
		persistence: store,
		sender:      sender,
		resolver:    resolver,
		clock:       clk,
		notifier:    notifier,
		backoffUnit: DefaultBackoffUnit,
		logger:      logger.With("module", "message_dispatcher"),
	}
}

// WithBackoffUnit overrides the linear backoff unit.
func (d *Dispatcher) WithBackoffUnit(unit time.Duration) *Dispatcher {
	d.backoffUnit = unit

	return d
}

// Dispatch resolves the message's recipient specification, lazily creates
// one pending delivery per recipient and attempts the first send. A failure
// for one recipient never aborts the siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, message *models.ScheduledMessage) ([]*models.MessageDelivery, error) {
	logger := d.logger.With("message_id", message.ID, "channel", message.Channel)

	recipients, err := d.resolveRecipients(ctx, message)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Dispatching message", "recipients", len(recipients))

	existing, err := d.persistence.DeliveriesByMessage(ctx, message.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deliveries for message %s: %w", message.ID, err)
	}

	byRecipient := make(map[string]*models.MessageDelivery, len(existing))
	for _, delivery := range existing {
		byRecipient[delivery.Recipient] = delivery
	}

	content := template.Substitute(message.Content, message.Variables)
	now := d.clock.Now().UTC()

	deliveries := make([]*models.MessageDelivery, 0, len(recipients))

	for _, recipient := range recipients {
		delivery, seen := byRecipient[recipient]
		if seen && delivery.Terminal() {
			// One delivery per (message, recipient) pair; a closed record
			// is not reopened by a re-dispatch.
			deliveries = append(deliveries, delivery)

			continue
		}

		if !seen {
			delivery = models.NewDelivery(
				"dlv-"+uuid.New().String()[:8],
				message.ID,
				recipient,
				message.Channel,
				message.DeliveryAttempts(),
				now,
			)
		}

		d.attempt(ctx, delivery, content, logger)
		deliveries = append(deliveries, delivery)
	}

	return deliveries, nil
}

// RetryDue re-attempts pending deliveries whose retry time has elapsed.
// Called from the scheduler tick.
func (d *Dispatcher) RetryDue(ctx context.Context, now time.Time) error {
	due, err := d.persistence.DueDeliveries(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to fetch due deliveries: %w", err)
	}

	for _, delivery := range due {
		message, err := d.persistence.MessageByID(ctx, delivery.MessageID)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to fetch message for delivery retry",
				"delivery_id", delivery.ID, "message_id", delivery.MessageID, "error", err)

			continue
		}

		content := template.Substitute(message.Content, message.Variables)
		logger := d.logger.With("message_id", message.ID, "delivery_id", delivery.ID)
		logger.InfoContext(ctx, "Retrying delivery", "attempt_count", delivery.AttemptCount)

		d.attempt(ctx, delivery, content, logger)
	}

	return nil
}

// attempt performs one send and updates the delivery's retry state.
func (d *Dispatcher) attempt(ctx context.Context, delivery *models.MessageDelivery, content string, logger *slog.Logger) {
	now := d.clock.Now().UTC()

	result, err := d.sender.Send(ctx, delivery.Channel, delivery.Recipient, content)
	if err != nil {
		delivery.RecordFailure(now, d.backoffUnit, err.Error())
		logger.WarnContext(ctx, "Delivery attempt failed",
			"recipient", delivery.Recipient,
			"attempt_count", delivery.AttemptCount,
			"status", delivery.Status,
			"error", err)

		if delivery.Status == models.DeliveryFailed {
			d.alert(ctx, delivery)
		}
	} else {
		providerID := ""
		if result != nil {
			providerID = result.ProviderMessageID
		}

		delivery.RecordSent(now, providerID)
		logger.InfoContext(ctx, "Delivery sent",
			"recipient", delivery.Recipient, "attempt_count", delivery.AttemptCount)
	}

	if err := d.persistence.SaveDelivery(ctx, delivery); err != nil {
		logger.ErrorContext(ctx, "Failed to persist delivery", "delivery_id", delivery.ID, "error", err)
	}
}

// resolveRecipients expands the specification into a deduplicated address
// list, preserving first-seen order.
func (d *Dispatcher) resolveRecipients(ctx context.Context, message *models.ScheduledMessage) ([]string, error) {
	seen := make(map[string]struct{})
	recipients := make([]string, 0, len(message.Recipients))

	add := func(address string) {
		if address == "" {
			return
		}

		if _, dup := seen[address]; dup {
			return
		}

		seen[address] = struct{}{}
		recipients = append(recipients, address)
	}

	for _, spec := range message.Recipients {
		switch spec.Type {
		case models.RecipientContact:
			add(spec.Value)
		case models.RecipientGroup:
			contacts, err := d.resolver.ResolveGroup(ctx, spec.Value)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve group %q: %w", spec.Value, err)
			}

			for _, contact := range contacts {
				add(contact.Address)
			}
		case models.RecipientFilter:
			contacts, err := d.resolver.ResolveFilter(ctx, spec.Value)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve filter %q: %w", spec.Value, err)
			}

			for _, contact := range contacts {
				add(contact.Address)
			}
		default:
			return nil, fmt.Errorf("unknown recipient type %q", spec.Type)
		}
	}

	return recipients, nil
}

func (d *Dispatcher) alert(ctx context.Context, delivery *models.MessageDelivery) {
	if d.notifier == nil {
		return
	}

	notification := models.Notification{
		Type:     models.NotificationDeliveryFailed,
		Priority: 2,
		Subject:  fmt.Sprintf("delivery %s to %s failed terminally", delivery.ID, delivery.Recipient),
		Body:     delivery.LastError,
	}

	if err := d.notifier.Notify(ctx, notification); err != nil {
		d.logger.WarnContext(ctx, "Failed to enqueue delivery alert", "error", err)
	}
}
