package sendmessage

import (
	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

// Factory builds send handlers for one delivery channel. The same factory
// implementation serves send_sms, send_email, send_whatsapp, send_push and
// send_voice; only the bound channel differs.
type Factory struct {
	actionType models.ActionType
	sender     protocol.Sender
}

// NewFactories returns one factory per message-send action type, all backed
// by the same channel sender.
func NewFactories(sender protocol.Sender) []protocol.ActionFactory {
	types := []models.ActionType{
		models.ActionSendSMS,
		models.ActionSendEmail,
		models.ActionSendWhatsApp,
		models.ActionSendPush,
		models.ActionSendVoice,
	}

	factories := make([]protocol.ActionFactory, 0, len(types))
	for _, t := range types {
		factories = append(factories, &Factory{actionType: t, sender: sender})
	}

	return factories
}

func NewFactory(actionType models.ActionType, sender protocol.Sender) *Factory {
	return &Factory{actionType: actionType, sender: sender}
}

func (f *Factory) Type() models.ActionType {
	return f.actionType
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recipient": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Destination address for the bound channel",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Message body, after variable substitution",
			},
		},
		"required": []any{"recipient", "content"},
	}
}

func (f *Factory) Create(params models.Params) (protocol.ActionHandler, error) {
	return &Action{
		channel:   f.actionType.Channel(),
		recipient: params.String("recipient", ""),
		content:   params.String("content", ""),
		sender:    f.sender,
	}, nil
}
