package protocol

import (
	"context"

	"github.com/pulseops/automation/pkg/models"
)

// SendResult is the provider acknowledgement for one accepted send.
type SendResult struct {
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// Sender is the uniform channel-send contract. Implementations live outside
// the core (SMS/email/whatsapp/push/voice providers); a failed send returns
// a transient *Failure so callers drive retries from their own budgets.
type Sender interface {
	Send(ctx context.Context, channel models.ChannelType, recipient, content string) (*SendResult, error)
}
