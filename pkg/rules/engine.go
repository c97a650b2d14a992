// Package rules evaluates standalone rules against runtime context and
// requests workflow fires on match. A rule is purely a trigger: evaluation
// never mutates workflow state directly.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/pulseops/automation/pkg/condition"
	"github.com/pulseops/automation/pkg/engine"
	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/persistence"
)

// Firer is the slice of the workflow engine the rule engine needs.
type Firer interface {
	Fire(ctx context.Context, workflowID string, triggerData map[string]any) (*models.Execution, error)
}

// Result reports the outcome of one rule evaluation.
type Result struct {
	RuleID      string
	Matched     bool
	Fired       bool
	ExecutionID string
}

type Engine struct {
	persistence persistence.Persistence
	firer       Firer
	clock       clock.Clock
	logger      *slog.Logger
}

func NewEngine(store persistence.Persistence, firer Firer, clk clock.Clock, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.New()
	}

	return &Engine{
		persistence: store,
		firer:       firer,
		clock:       clk,
		logger:      logger.With("module", "rule_engine"),
	}
}

// EvaluateRule evaluates one rule against the context. An inactive rule or
// one outside its validity window returns matched=false without touching
// the condition tree. On match with a configured target workflow, a fire is
// requested and the nested outcome returned.
func (e *Engine) EvaluateRule(ctx context.Context, ruleID string, evalContext map[string]any) (Result, error) {
	rule, err := e.persistence.RuleByID(ctx, ruleID)
	if err != nil {
		return Result{RuleID: ruleID}, err
	}

	return e.evaluate(ctx, rule, evalContext)
}

// EvaluateAll evaluates every active rule in descending priority order.
// Rules are independent: one rule's fire or failure never prevents
// evaluation of the next.
func (e *Engine) EvaluateAll(ctx context.Context, evalContext map[string]any) ([]Result, error) {
	rules, err := e.persistence.ActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active rules: %w", err)
	}

	results := make([]Result, 0, len(rules))

	for _, rule := range rules {
		result, err := e.evaluate(ctx, rule, evalContext)
		if err != nil {
			e.logger.ErrorContext(ctx, "Rule evaluation failed", "rule_id", rule.ID, "error", err)
		}

		results = append(results, result)
	}

	return results, nil
}

func (e *Engine) evaluate(ctx context.Context, rule *models.Rule, evalContext map[string]any) (Result, error) {
	result := Result{RuleID: rule.ID}

	if !rule.Effective(e.clock.Now().UTC()) {
		return result, nil
	}

	matched, err := condition.Evaluate(rule.Condition, evalContext)
	if err != nil {
		return result, fmt.Errorf("rule %s condition rejected: %w", rule.ID, err)
	}

	result.Matched = matched

	if !matched || rule.WorkflowID == "" {
		return result, nil
	}

	execution, err := e.firer.Fire(ctx, rule.WorkflowID, evalContext)
	if err != nil {
		if errors.Is(err, engine.ErrWorkflowNotFireable) {
			e.logger.DebugContext(ctx, "Rule matched but workflow not fireable",
				"rule_id", rule.ID, "workflow_id", rule.WorkflowID)

			return result, nil
		}

		return result, fmt.Errorf("rule %s fire failed: %w", rule.ID, err)
	}

	result.Fired = true
	if execution != nil {
		result.ExecutionID = execution.ID
	}

	rule.ExecutionCount++
	rule.UpdatedAt = e.clock.Now().UTC()

	if err := e.persistence.SaveRule(ctx, rule); err != nil {
		return result, fmt.Errorf("failed to persist rule bookkeeping: %w", err)
	}

	e.logger.InfoContext(ctx, "Rule fired workflow",
		"rule_id", rule.ID, "workflow_id", rule.WorkflowID, "execution_id", result.ExecutionID)

	return result, nil
}
