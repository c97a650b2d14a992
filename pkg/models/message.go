package models

import "time"

// ChannelType is an abstract delivery medium behind the uniform send contract.
type ChannelType string

const (
	ChannelSMS      ChannelType = "sms"
	ChannelEmail    ChannelType = "email"
	ChannelWhatsApp ChannelType = "whatsapp"
	ChannelPush     ChannelType = "push"
	ChannelVoice    ChannelType = "voice"
)

// ScheduleType says when a message is sent.
type ScheduleType string

const (
	ScheduleImmediate   ScheduleType = "immediate"
	ScheduleScheduled   ScheduleType = "scheduled"
	ScheduleRecurring   ScheduleType = "recurring"
	ScheduleConditional ScheduleType = "conditional"
	ScheduleTriggered   ScheduleType = "triggered"
)

// MessageStatus is the lifecycle state of a scheduled message.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageExpired   MessageStatus = "expired"
	MessageCancelled MessageStatus = "cancelled"
)

// RecipientType discriminates entries of a recipient specification.
type RecipientType string

const (
	RecipientContact RecipientType = "contact" // direct address, passes through
	RecipientGroup   RecipientType = "group"   // named group, resolved via directory
	RecipientFilter  RecipientType = "filter"  // dynamic filter, resolved via directory
)

// RecipientSpec is one entry of a message's recipient specification.
type RecipientSpec struct {
	Type  RecipientType `json:"type"  validate:"required"`
	Value string        `json:"value" validate:"required"`
}

// ScheduledMessage is a message definition with a delivery schedule and a
// recipient specification. NextSend/SentCount are mutated only by the
// scheduler tick.
type ScheduledMessage struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"    validate:"required"`
	Content     string            `json:"content" validate:"required"`
	Channel     ChannelType       `json:"channel" validate:"required"`
	Recipients  []RecipientSpec   `json:"recipients" validate:"required,min=1,dive"`
	ScheduleType ScheduleType     `json:"schedule_type" validate:"required"`
	Recurrence  RecurrencePattern `json:"recurrence,omitempty"`
	Condition   *ConditionNode    `json:"condition,omitempty"` // conditional schedule gate
	Variables   map[string]any    `json:"variables,omitempty"` // substitution context for content
	NextSend    *time.Time        `json:"next_send,omitempty"`
	LastSent    *time.Time        `json:"last_sent,omitempty"`
	Status      MessageStatus     `json:"status"`
	SentCount   int               `json:"sent_count"`
	MaxSends    int               `json:"max_sends"`    // 0 means unlimited
	MaxAttempts int               `json:"max_attempts"` // per-recipient delivery attempt budget
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Expired reports whether the message may no longer be sent.
func (m *ScheduledMessage) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}

// Exhausted reports whether the send budget is used up.
func (m *ScheduledMessage) Exhausted() bool {
	return m.MaxSends > 0 && m.SentCount >= m.MaxSends
}

// DeliveryAttempts returns the per-recipient attempt budget, defaulting to 3.
func (m *ScheduledMessage) DeliveryAttempts() int {
	if m.MaxAttempts <= 0 {
		return 3
	}

	return m.MaxAttempts
}

// RecordSend updates the bookkeeping after a dispatch and computes the
// message's next state from its schedule type.
func (m *ScheduledMessage) RecordSend(now time.Time) error {
	m.SentCount++
	m.LastSent = &now
	m.UpdatedAt = now

	if m.ScheduleType == ScheduleRecurring && !m.Exhausted() {
		next, err := m.Recurrence.NextAfter(now)
		if err != nil {
			return err
		}

		if next != nil {
			m.NextSend = next

			return nil
		}
	}

	m.Status = MessageSent
	m.NextSend = nil

	return nil
}
