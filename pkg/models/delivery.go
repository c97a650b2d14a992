package models

import "time"

// DeliveryStatus is the state of one recipient's delivery.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// MessageDelivery is the per-recipient record of one scheduled message's
// send attempts. Created lazily at dispatch time, owned by its message,
// never shared. AttemptCount never exceeds MaxAttempts; once the budget is
// exhausted the status is terminally failed and no retry is scheduled.
type MessageDelivery struct {
	ID                string         `json:"id"`
	MessageID         string         `json:"message_id"`
	Recipient         string         `json:"recipient"`
	Channel           ChannelType    `json:"channel"`
	Status            DeliveryStatus `json:"status"`
	AttemptCount      int            `json:"attempt_count"`
	MaxAttempts       int            `json:"max_attempts"`
	NextRetry         *time.Time     `json:"next_retry,omitempty"`
	LastError         string         `json:"last_error,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NewDelivery creates a pending delivery for one recipient.
func NewDelivery(id, messageID, recipient string, channel ChannelType, maxAttempts int, now time.Time) *MessageDelivery {
	return &MessageDelivery{
		ID:          id,
		MessageID:   messageID,
		Recipient:   recipient,
		Channel:     channel,
		Status:      DeliveryPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RecordSent closes the delivery after a successful send.
func (d *MessageDelivery) RecordSent(now time.Time, providerMessageID string) {
	d.AttemptCount++
	d.Status = DeliverySent
	d.ProviderMessageID = providerMessageID
	d.NextRetry = nil
	d.LastError = ""
	d.UpdatedAt = now
}

// RecordFailure records a failed attempt. While the attempt budget lasts the
// delivery stays pending with a linear next-retry backoff
// (attemptCount * backoffUnit); afterwards it fails terminally.
func (d *MessageDelivery) RecordFailure(now time.Time, backoffUnit time.Duration, message string) {
	d.AttemptCount++
	d.LastError = message
	d.UpdatedAt = now

	if d.AttemptCount < d.MaxAttempts {
		retry := now.Add(time.Duration(d.AttemptCount) * backoffUnit)
		d.NextRetry = &retry
		d.Status = DeliveryPending

		return
	}

	d.Status = DeliveryFailed
	d.NextRetry = nil
}

// Terminal reports whether no further attempt may be made.
func (d *MessageDelivery) Terminal() bool {
	return d.Status == DeliveryFailed || d.Status == DeliverySent || d.Status == DeliveryDelivered
}
