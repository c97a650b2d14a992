// Package conditioncheck implements the condition action: it evaluates a
// nested condition tree and exposes the boolean as a named context variable
// for subsequent actions. It never alters control flow; the sequence always
// continues with the next action.
package conditioncheck

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pulseops/automation/pkg/condition"
	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

const defaultOutput = "condition_result"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Type() models.ActionType {
	return models.ActionCondition
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "object",
				"description": "Condition tree to evaluate against the execution context",
			},
			"output": map[string]any{
				"type":        "string",
				"description": "Context variable receiving the boolean outcome",
				"default":     defaultOutput,
			},
		},
		"required": []any{"condition"},
	}
}

func (f *Factory) Create(params models.Params) (protocol.ActionHandler, error) {
	tree, err := decodeTree(params["condition"])
	if err != nil {
		return nil, err
	}

	output := params.String("output", defaultOutput)

	return &Action{tree: tree, output: output}, nil
}

func decodeTree(v models.Value) (*models.ConditionNode, error) {
	raw, err := json.Marshal(v.Any())
	if err != nil {
		return nil, protocol.Validation("condition is not encodable", err)
	}

	var tree models.ConditionNode
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, protocol.Validation("condition is not a condition tree", err)
	}

	if err := tree.Validate(); err != nil {
		return nil, protocol.Validation("malformed condition tree", err)
	}

	return &tree, nil
}

// Action evaluates the configured tree and stores the outcome.
type Action struct {
	tree   *models.ConditionNode
	output string
}

func (a *Action) Execute(ctx context.Context, execution *models.Execution, logger *slog.Logger) (any, error) {
	matched, err := condition.Evaluate(a.tree, execution.EvalContext())
	if err != nil {
		return nil, protocol.Validation("condition evaluation rejected", err)
	}

	if execution.Variables == nil {
		execution.Variables = make(map[string]any)
	}

	execution.Variables[a.output] = matched

	logger.InfoContext(ctx, "Condition evaluated", "output", a.output, "matched", matched)

	return map[string]any{a.output: matched}, nil
}
