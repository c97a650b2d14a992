// Package sendmessage implements the message-send action variants on top
// of the uniform channel-send contract.
package sendmessage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

// Action sends one message through the bound channel. A collaborator
// failure is surfaced as a transient failure and never retried here; the
// engine drives retries from the action's own budget.
type Action struct {
	channel   models.ChannelType
	recipient string
	content   string
	sender    protocol.Sender
}

func (a *Action) Execute(ctx context.Context, execution *models.Execution, logger *slog.Logger) (any, error) {
	logger = logger.With("action_type", "send_message", "channel", a.channel, "recipient", a.recipient)
	logger.InfoContext(ctx, "Sending message")

	result, err := a.sender.Send(ctx, a.channel, a.recipient, a.content)
	if err != nil {
		var failure *protocol.Failure
		if errors.As(err, &failure) {
			return nil, err
		}

		return nil, protocol.Transient("channel send failed", err)
	}

	out := map[string]any{
		"channel":   string(a.channel),
		"recipient": a.recipient,
	}
	if result != nil && result.ProviderMessageID != "" {
		out["provider_message_id"] = result.ProviderMessageID
	}

	logger.InfoContext(ctx, "Message accepted by channel")

	return out, nil
}
