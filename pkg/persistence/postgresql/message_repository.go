package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/persistence"
)

// MessageRepository handles scheduled message and delivery database
// operations.
type MessageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewMessageRepository(db *sql.DB, logger *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, logger: logger}
}

const messageColumns = `
	id
  , name
  , content
  , channel
  , recipients
  , schedule_type
  , recurrence
  , condition
  , variables
  , next_send
  , last_sent
  , status
  , sent_count
  , max_sends
  , max_attempts
  , expires_at
  , created_at
  , updated_at
`

func (r *MessageRepository) scanMessage(row rowScanner) (*models.ScheduledMessage, error) {
	var (
		message        models.ScheduledMessage
		recipientsJSON []byte
		conditionJSON  []byte
		variablesJSON  []byte
		nextSend       sql.NullTime
		lastSent       sql.NullTime
		expiresAt      sql.NullTime
	)

	err := row.Scan(
		&message.ID,
		&message.Name,
		&message.Content,
		&message.Channel,
		&recipientsJSON,
		&message.ScheduleType,
		&message.Recurrence,
		&conditionJSON,
		&variablesJSON,
		&nextSend,
		&lastSent,
		&message.Status,
		&message.SentCount,
		&message.MaxSends,
		&message.MaxAttempts,
		&expiresAt,
		&message.CreatedAt,
		&message.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(recipientsJSON, &message.Recipients); err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(conditionJSON, &message.Condition); err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(variablesJSON, &message.Variables); err != nil {
		return nil, err
	}

	if nextSend.Valid {
		message.NextSend = &nextSend.Time
	}

	if lastSent.Valid {
		message.LastSent = &lastSent.Time
	}

	if expiresAt.Valid {
		message.ExpiresAt = &expiresAt.Time
	}

	return &message, nil
}

func (r *MessageRepository) queryMessages(ctx context.Context, query string, args ...any) ([]*models.ScheduledMessage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	messages := make([]*models.ScheduledMessage, 0)

	for rows.Next() {
		message, err := r.scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

func (r *MessageRepository) GetAll(ctx context.Context) ([]*models.ScheduledMessage, error) {
	return r.queryMessages(ctx, "SELECT "+messageColumns+" FROM scheduled_messages ORDER BY created_at DESC")
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*models.ScheduledMessage, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM scheduled_messages WHERE id = $1", id)

	message, err := r.scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("MessageByID", "message", id, persistence.ErrMessageNotFound)
		}

		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	return message, nil
}

// Due returns pending messages whose send time has elapsed.
func (r *MessageRepository) Due(ctx context.Context, now time.Time) ([]*models.ScheduledMessage, error) {
	query := "SELECT " + messageColumns + `
		FROM scheduled_messages
		WHERE status = $1 AND next_send IS NOT NULL AND next_send <= $2
		ORDER BY next_send
	`

	return r.queryMessages(ctx, query, models.MessagePending, now)
}

func (r *MessageRepository) Save(ctx context.Context, message *models.ScheduledMessage) error {
	recipientsJSON, err := marshalJSONB(message.Recipients)
	if err != nil {
		return fmt.Errorf("failed to encode recipients: %w", err)
	}

	conditionJSON, err := marshalJSONB(message.Condition)
	if err != nil {
		return fmt.Errorf("failed to encode message condition: %w", err)
	}

	variablesJSON, err := marshalJSONB(message.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode message variables: %w", err)
	}

	query := `
		INSERT INTO scheduled_messages (
			id, name, content, channel, recipients, schedule_type, recurrence,
			condition, variables, next_send, last_sent, status, sent_count,
			max_sends, max_attempts, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			content = EXCLUDED.content,
			channel = EXCLUDED.channel,
			recipients = EXCLUDED.recipients,
			schedule_type = EXCLUDED.schedule_type,
			recurrence = EXCLUDED.recurrence,
			condition = EXCLUDED.condition,
			variables = EXCLUDED.variables,
			next_send = EXCLUDED.next_send,
			last_sent = EXCLUDED.last_sent,
			status = EXCLUDED.status,
			sent_count = EXCLUDED.sent_count,
			max_sends = EXCLUDED.max_sends,
			max_attempts = EXCLUDED.max_attempts,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		message.ID,
		message.Name,
		message.Content,
		message.Channel,
		recipientsJSON,
		message.ScheduleType,
		message.Recurrence,
		conditionJSON,
		variablesJSON,
		message.NextSend,
		message.LastSent,
		message.Status,
		message.SentCount,
		message.MaxSends,
		message.MaxAttempts,
		message.ExpiresAt,
		message.CreatedAt,
		message.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEntityError("SaveMessage", "message", message.ID, err)
	}

	return nil
}

func (r *MessageRepository) queryDeliveries(ctx context.Context, query string, args ...any) ([]*models.MessageDelivery, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	deliveries := make([]*models.MessageDelivery, 0)

	for rows.Next() {
		var (
			delivery  models.MessageDelivery
			nextRetry sql.NullTime
		)

		err := rows.Scan(
			&delivery.ID,
			&delivery.MessageID,
			&delivery.Recipient,
			&delivery.Channel,
			&delivery.Status,
			&delivery.AttemptCount,
			&delivery.MaxAttempts,
			&nextRetry,
			&delivery.LastError,
			&delivery.ProviderMessageID,
			&delivery.CreatedAt,
			&delivery.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}

		if nextRetry.Valid {
			delivery.NextRetry = &nextRetry.Time
		}

		deliveries = append(deliveries, &delivery)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deliveries: %w", err)
	}

	return deliveries, nil
}

const deliveryColumns = `
	id
  , message_id
  , recipient
  , channel
  , status
  , attempt_count
  , max_attempts
  , next_retry
  , last_error
  , provider_message_id
  , created_at
  , updated_at
`

func (r *MessageRepository) DeliveriesByMessage(ctx context.Context, messageID string) ([]*models.MessageDelivery, error) {
	query := "SELECT " + deliveryColumns + " FROM message_deliveries WHERE message_id = $1 ORDER BY created_at"

	return r.queryDeliveries(ctx, query, messageID)
}

// DueDeliveries returns pending deliveries whose retry time has elapsed.
func (r *MessageRepository) DueDeliveries(ctx context.Context, now time.Time) ([]*models.MessageDelivery, error) {
	query := "SELECT " + deliveryColumns + `
		FROM message_deliveries
		WHERE status = $1 AND next_retry IS NOT NULL AND next_retry <= $2
		ORDER BY next_retry
	`

	return r.queryDeliveries(ctx, query, models.DeliveryPending, now)
}

func (r *MessageRepository) SaveDelivery(ctx context.Context, delivery *models.MessageDelivery) error {
	query := `
		INSERT INTO message_deliveries (
			id, message_id, recipient, channel, status, attempt_count,
			max_attempts, next_retry, last_error, provider_message_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempt_count = EXCLUDED.attempt_count,
			max_attempts = EXCLUDED.max_attempts,
			next_retry = EXCLUDED.next_retry,
			last_error = EXCLUDED.last_error,
			provider_message_id = EXCLUDED.provider_message_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		delivery.ID,
		delivery.MessageID,
		delivery.Recipient,
		delivery.Channel,
		delivery.Status,
		delivery.AttemptCount,
		delivery.MaxAttempts,
		delivery.NextRetry,
		delivery.LastError,
		delivery.ProviderMessageID,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEntityError("SaveDelivery", "delivery", delivery.ID, err)
	}

	return nil
}
