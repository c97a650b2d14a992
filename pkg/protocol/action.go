// Package protocol defines the contracts between the automation core and
// its collaborators: action handlers, channel senders, the directory
// resolver and the record store.
package protocol

import (
	"context"
	"log/slog"

	"github.com/pulseops/automation/pkg/models"
)

// ActionHandler executes one configured action against an execution.
// Handlers read the already-substituted parameters captured at Create time,
// may write output variables into the execution, and report failures as
// typed *Failure errors.
type ActionHandler interface {
	Execute(ctx context.Context, execution *models.Execution, logger *slog.Logger) (any, error)
}

// ActionFactory builds handlers for one action type.
type ActionFactory interface {
	// Type is the action type this factory serves.
	Type() models.ActionType

	// Schema returns the JSON schema the action's parameters must satisfy.
	Schema() map[string]any

	// Create builds a handler bound to the given (substituted) parameters.
	Create(params models.Params) (ActionHandler, error)
}
