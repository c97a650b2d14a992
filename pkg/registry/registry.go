// Package registry holds the action handler factories and validates action
// parameters against each factory's JSON schema before execution.
package registry

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

// Registry maps action types onto their handler factories.
type Registry struct {
	logger    *slog.Logger
	factories map[models.ActionType]protocol.ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		factories: make(map[models.ActionType]protocol.ActionFactory),
	}
}

// Register adds a factory; a later registration for the same type wins.
func (r *Registry) Register(factory protocol.ActionFactory) {
	r.factories[factory.Type()] = factory
}

// Types lists the registered action types.
func (r *Registry) Types() []models.ActionType {
	types := make([]models.ActionType, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}

	return types
}

// Create validates params against the factory's schema and builds a
// handler. Unknown types and schema violations are validation failures,
// rejected before execution and never retried.
func (r *Registry) Create(actionType models.ActionType, params models.Params) (protocol.ActionHandler, error) {
	factory, ok := r.factories[actionType]
	if !ok {
		return nil, protocol.Validation(fmt.Sprintf("action type %q not registered", actionType), nil)
	}

	if err := r.validateParams(factory, params); err != nil {
		return nil, err
	}

	handler, err := factory.Create(params)
	if err != nil {
		return nil, err
	}

	return handler, nil
}

func (r *Registry) validateParams(factory protocol.ActionFactory, params models.Params) error {
	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(params.Any()),
	)
	if err != nil {
		return protocol.Validation(fmt.Sprintf("invalid schema for action type %q", factory.Type()), err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return protocol.Validation(
		fmt.Sprintf("invalid parameters for action type %q: %s", factory.Type(), strings.Join(details, "; ")),
		nil,
	)
}
