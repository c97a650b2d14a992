package conditioncheck_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseops/automation/pkg/actions/conditioncheck"
	"github.com/pulseops/automation/pkg/log"
	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/protocol"
)

func TestExecuteStoresOutcomeUnderOutputName(t *testing.T) {
	t.Parallel()

	handler, err := conditioncheck.NewFactory().Create(models.ParamsOf(map[string]any{
		"condition": map[string]any{
			"operator": models.OpGreaterThan,
			"field":    "days_overdue",
			"value":    float64(30),
		},
		"output": "is_overdue",
	}))
	require.NoError(t, err)

	execution := models.NewExecution("exec-1", "wf-1", map[string]any{"days_overdue": float64(45)}, time.Now().UTC())

	result, err := handler.Execute(context.Background(), execution, log.WithModule("test"))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"is_overdue": true}, result)
	assert.Equal(t, true, execution.Variables["is_overdue"])
}

func TestExecuteDefaultOutputName(t *testing.T) {
	t.Parallel()

	handler, err := conditioncheck.NewFactory().Create(models.ParamsOf(map[string]any{
		"condition": map[string]any{
			"operator": models.OpEquals,
			"field":    "status",
			"value":    "active",
		},
	}))
	require.NoError(t, err)

	execution := models.NewExecution("exec-1", "wf-1", map[string]any{"status": "cancelled"}, time.Now().UTC())

	_, err = handler.Execute(context.Background(), execution, log.WithModule("test"))
	require.NoError(t, err)

	assert.Equal(t, false, execution.Variables["condition_result"])
}

func TestCreateRejectsMalformedTree(t *testing.T) {
	t.Parallel()

	t.Run("unknown operator", func(t *testing.T) {
		t.Parallel()

		_, err := conditioncheck.NewFactory().Create(models.ParamsOf(map[string]any{
			"condition": map[string]any{
				"operator": "approximately",
				"field":    "x",
				"value":    float64(1),
			},
		}))
		require.Error(t, err)
		assert.Equal(t, protocol.FailureValidation, protocol.KindOf(err))
	})

	t.Run("not a tree at all", func(t *testing.T) {
		t.Parallel()

		_, err := conditioncheck.NewFactory().Create(models.ParamsOf(map[string]any{
			"condition": "days_overdue > 30",
		}))
		require.Error(t, err)
		assert.Equal(t, protocol.FailureValidation, protocol.KindOf(err))
	})
}

func TestExecuteEvaluatesNestedGroups(t *testing.T) {
	t.Parallel()

	handler, err := conditioncheck.NewFactory().Create(models.ParamsOf(map[string]any{
		"condition": map[string]any{
			"operator": models.GroupOr,
			"children": []any{
				map[string]any{"operator": models.OpEquals, "field": "tier", "value": "vip"},
				map[string]any{"operator": models.OpGreaterThan, "field": "balance", "value": float64(1000)},
			},
		},
		"output": "eligible",
	}))
	require.NoError(t, err)

	execution := models.NewExecution("exec-1", "wf-1", map[string]any{
		"tier":    "standard",
		"balance": float64(2500),
	}, time.Now().UTC())

	_, err = handler.Execute(context.Background(), execution, log.WithModule("test"))
	require.NoError(t, err)

	assert.Equal(t, true, execution.Variables["eligible"])
}
