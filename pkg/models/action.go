package models

// ActionType identifies one executable step kind. The set is closed so
// the executor dispatch is exhaustive.
type ActionType string

const (
	ActionSendSMS      ActionType = "send_sms"
	ActionSendEmail    ActionType = "send_email"
	ActionSendWhatsApp ActionType = "send_whatsapp"
	ActionSendPush     ActionType = "send_push"
	ActionSendVoice    ActionType = "send_voice"
	ActionWait         ActionType = "wait"
	ActionCondition    ActionType = "condition"
	ActionCreateRecord ActionType = "create_record"
	ActionUpdateRecord ActionType = "update_record"
	ActionSyncSystem   ActionType = "sync_system"
	ActionAPICall      ActionType = "api_call"
)

// Action is one executable step within a workflow. A workflow exclusively
// owns its actions; SequenceOrder values are unique within a workflow and
// fully determine execution order.
type Action struct {
	ID            string     `json:"id"`
	WorkflowID    string     `json:"workflow_id"    validate:"required"`
	Name          string     `json:"name"           validate:"required"`
	SequenceOrder int        `json:"sequence_order"`
	Type          ActionType `json:"type"           validate:"required"`
	Params        Params     `json:"params"`
	IsRequired    bool       `json:"is_required"`
	MaxRetries    int        `json:"max_retries"`
	RetryDelaySec int        `json:"retry_delay_seconds"` // fixed inter-attempt delay, 0 retries in-line
	TimeoutSec    int        `json:"timeout_seconds"`
}

// MaxAttempts is the total attempt budget: one initial try plus retries.
func (a *Action) MaxAttempts() int {
	if a.MaxRetries < 0 {
		return 1
	}

	return a.MaxRetries + 1
}

// IsSend reports whether the action delivers a message through a channel.
func (t ActionType) IsSend() bool {
	switch t {
	case ActionSendSMS, ActionSendEmail, ActionSendWhatsApp, ActionSendPush, ActionSendVoice:
		return true
	default:
		return false
	}
}

// Channel maps a send action type onto its delivery channel.
func (t ActionType) Channel() ChannelType {
	switch t {
	case ActionSendSMS:
		return ChannelSMS
	case ActionSendEmail:
		return ChannelEmail
	case ActionSendWhatsApp:
		return ChannelWhatsApp
	case ActionSendPush:
		return ChannelPush
	case ActionSendVoice:
		return ChannelVoice
	default:
		return ""
	}
}
