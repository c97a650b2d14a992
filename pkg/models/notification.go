package models

import "time"

// NotificationType classifies internally generated system alerts.
type NotificationType string

const (
	NotificationWorkflowFailed NotificationType = "workflow_failed"
	NotificationDeliveryFailed NotificationType = "delivery_failed"
	NotificationEngineFault    NotificationType = "engine_fault"
)

// Notification is one best-effort system alert queued for internal
// delivery. Channels are tried in order; the first success wins.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Priority    int              `json:"priority"`
	Subject     string           `json:"subject"`
	Body        string           `json:"body"`
	Channels    []ChannelType    `json:"channels"`
	Recipients  []string         `json:"recipients"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"max_attempts"`
	CreatedAt   time.Time        `json:"created_at"`
}
