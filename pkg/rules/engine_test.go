package rules_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseops/automation/pkg/engine"
	"github.com/pulseops/automation/pkg/log"
	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/persistence/file"
	"github.com/pulseops/automation/pkg/rules"
)

type fakeFirer struct {
	fired []string
	err   error
}

func (f *fakeFirer) Fire(ctx context.Context, workflowID string, triggerData map[string]any) (*models.Execution, error) {
	f.fired = append(f.fired, workflowID)
	if f.err != nil {
		return nil, f.err
	}

	return &models.Execution{ID: "exec-" + workflowID, WorkflowID: workflowID}, nil
}

func newRuleEngine(t *testing.T, firer rules.Firer) (*rules.Engine, *file.Persistence, *clock.Mock) {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))

	return rules.NewEngine(store, firer, mockClock, log.WithModule("test")), store, mockClock
}

func overdueRule(id string, priority int) *models.Rule {
	return &models.Rule{
		ID:       id,
		Name:     "overdue check " + id,
		Active:   true,
		Priority: priority,
		Condition: &models.ConditionNode{
			Field:    "days_overdue",
			Operator: models.OpGreaterThan,
			Value:    models.ValueOf(float64(30)),
		},
		WorkflowID: "wf-" + id,
	}
}

func TestEvaluateRuleMatchFiresWorkflow(t *testing.T) {
	t.Parallel()

	firer := &fakeFirer{}
	ruleEngine, store, mockClock := newRuleEngine(t, firer)
	ctx := context.Background()

	require.NoError(t, store.SaveRule(ctx, overdueRule("r1", 10)))

	result, err := ruleEngine.EvaluateRule(ctx, "r1", map[string]any{"days_overdue": float64(45)})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.True(t, result.Fired)
	assert.Equal(t, "exec-wf-r1", result.ExecutionID)
	assert.Equal(t, []string{"wf-r1"}, firer.fired)

	// Fire bumped the rule's execution bookkeeping.
	stored, err := store.RuleByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ExecutionCount)
	assert.Equal(t, mockClock.Now().UTC(), stored.UpdatedAt)
}

func TestEvaluateRuleNoMatch(t *testing.T) {
	t.Parallel()

	firer := &fakeFirer{}
	ruleEngine, store, _ := newRuleEngine(t, firer)
	ctx := context.Background()

	require.NoError(t, store.SaveRule(ctx, overdueRule("r1", 10)))

	result, err := ruleEngine.EvaluateRule(ctx, "r1", map[string]any{"days_overdue": float64(5)})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.False(t, result.Fired)
	assert.Empty(t, firer.fired)
}

func TestEvaluateRuleOutsideValidityWindow(t *testing.T) {
	t.Parallel()

	firer := &fakeFirer{}
	ruleEngine, store, mockClock := newRuleEngine(t, firer)
	ctx := context.Background()

	expired := mockClock.Now().UTC().Add(-time.Hour)
	rule := overdueRule("r1", 10)
	rule.ValidUntil = &expired
	require.NoError(t, store.SaveRule(ctx, rule))

	result, err := ruleEngine.EvaluateRule(ctx, "r1", map[string]any{"days_overdue": float64(45)})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Empty(t, firer.fired)
}

func TestEvaluateRuleMatchedWithoutTarget(t *testing.T) {
	t.Parallel()

	firer := &fakeFirer{}
	ruleEngine, store, _ := newRuleEngine(t, firer)
	ctx := context.Background()

	rule := overdueRule("r1", 10)
	rule.WorkflowID = ""
	require.NoError(t, store.SaveRule(ctx, rule))

	result, err := ruleEngine.EvaluateRule(ctx, "r1", map[string]any{"days_overdue": float64(45)})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.False(t, result.Fired)
	assert.Empty(t, firer.fired)
}

func TestEvaluateRuleToleratesNonFireableWorkflow(t *testing.T) {
	t.Parallel()

	firer := &fakeFirer{err: engine.ErrWorkflowNotFireable}
	ruleEngine, store, _ := newRuleEngine(t, firer)
	ctx := context.Background()

	require.NoError(t, store.SaveRule(ctx, overdueRule("r1", 10)))

	result, err := ruleEngine.EvaluateRule(ctx, "r1", map[string]any{"days_overdue": float64(45)})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.False(t, result.Fired)

	// No bookkeeping bump when nothing fired.
	stored, err := store.RuleByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ExecutionCount)
}

func TestEvaluateAllPriorityOrderAndIndependence(t *testing.T) {
	t.Parallel()

	firer := &fakeFirer{}
	ruleEngine, store, _ := newRuleEngine(t, firer)
	ctx := context.Background()

	require.NoError(t, store.SaveRule(ctx, overdueRule("low", 1)))
	require.NoError(t, store.SaveRule(ctx, overdueRule("high", 100)))

	// A rule with a malformed condition fails alone, without stopping
	// evaluation of the rest.
	broken := overdueRule("broken", 50)
	broken.Condition = &models.ConditionNode{Field: "x", Operator: "approximately", Value: models.ValueOf(1)}
	require.NoError(t, store.SaveRule(ctx, broken))

	inactive := overdueRule("off", 200)
	inactive.Active = false
	require.NoError(t, store.SaveRule(ctx, inactive))

	results, err := ruleEngine.EvaluateAll(ctx, map[string]any{"days_overdue": float64(45)})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "high", results[0].RuleID)
	assert.True(t, results[0].Fired)
	assert.Equal(t, "broken", results[1].RuleID)
	assert.False(t, results[1].Matched)
	assert.Equal(t, "low", results[2].RuleID)
	assert.True(t, results[2].Fired)

	assert.Equal(t, []string{"wf-high", "wf-low"}, firer.fired)
}
