package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseops/automation/pkg/models"
)

func TestRecurrenceNextAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

	t.Run("once does not recur", func(t *testing.T) {
		t.Parallel()

		next, err := models.RecurrenceOnce.NextAfter(now)
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("fixed intervals add to the current time", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			pattern models.RecurrencePattern
			want    time.Time
		}{
			{models.RecurrenceHourly, now.Add(time.Hour)},
			{models.RecurrenceDaily, now.Add(24 * time.Hour)},
			{models.RecurrenceWeekly, now.Add(7 * 24 * time.Hour)},
			{models.RecurrenceMonthly, now.AddDate(0, 1, 0)},
		}

		for _, tt := range tests {
			next, err := tt.pattern.NextAfter(now)
			require.NoError(t, err)
			require.NotNil(t, next)
			assert.Equal(t, tt.want, *next)
		}
	})

	t.Run("daily is exactly 24 hours, not next midnight", func(t *testing.T) {
		t.Parallel()

		next, err := models.RecurrenceDaily.NextAfter(now)
		require.NoError(t, err)
		assert.Equal(t, 14, next.Hour())
		assert.Equal(t, 30, next.Minute())
	})

	t.Run("cron expression", func(t *testing.T) {
		t.Parallel()

		next, err := models.RecurrencePattern("cron:0 9 * * *").NextAfter(now)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC), *next)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		t.Parallel()

		_, err := models.RecurrencePattern("fortnightly").NextAfter(now)
		require.ErrorIs(t, err, models.ErrInvalidRecurrence)

		_, err = models.RecurrencePattern("cron:not a cron").NextAfter(now)
		require.ErrorIs(t, err, models.ErrInvalidRecurrence)
	})
}

func TestWorkflowCanFire(t *testing.T) {
	t.Parallel()

	workflow := &models.Workflow{Status: models.WorkflowStatusActive}
	assert.True(t, workflow.CanFire())

	workflow.Status = models.WorkflowStatusPaused
	assert.False(t, workflow.CanFire())

	workflow.Status = models.WorkflowStatusActive
	workflow.MaxExecutions = 2
	workflow.ExecutionCount = 2
	assert.False(t, workflow.CanFire())

	workflow.ExecutionCount = 1
	assert.True(t, workflow.CanFire())
}

func TestExecutionLifecycle(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	t.Run("new execution snapshots trigger data", func(t *testing.T) {
		t.Parallel()

		trigger := map[string]any{"source": "test"}
		execution := models.NewExecution("exec-1", "wf-1", trigger, now)

		trigger["source"] = "mutated"

		assert.Equal(t, models.ExecutionRunning, execution.Status)
		assert.Equal(t, "test", execution.TriggerData["source"])
	})

	t.Run("completed at set only on terminal states", func(t *testing.T) {
		t.Parallel()

		execution := models.NewExecution("exec-2", "wf-1", nil, now)
		assert.Nil(t, execution.CompletedAt)

		execution.Defer(now.Add(time.Minute), 2)
		assert.Equal(t, models.ExecutionPending, execution.Status)
		assert.Nil(t, execution.CompletedAt)
		assert.Equal(t, 2, execution.NextActionIndex)

		execution.Complete(now)
		assert.Equal(t, models.ExecutionCompleted, execution.Status)
		require.NotNil(t, execution.CompletedAt)
		assert.Nil(t, execution.ResumeAt)
	})

	t.Run("variables shadow trigger data in eval context", func(t *testing.T) {
		t.Parallel()

		execution := models.NewExecution("exec-3", "wf-1", map[string]any{"a": 1, "b": 2}, now)
		execution.Variables["b"] = 3

		ctx := execution.EvalContext()
		assert.Equal(t, 1, ctx["a"])
		assert.Equal(t, 3, ctx["b"])
	})
}

func TestActionExecutionAttempts(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	record := &models.ActionExecution{ID: "aexec-1", Status: models.ActionExecutionPending}

	record.BeginAttempt()
	assert.Equal(t, 1, record.AttemptNumber)
	assert.Equal(t, 0, record.RetryCount)

	record.FailAttempt("boom")
	record.BeginAttempt()
	record.BeginAttempt()
	assert.Equal(t, 3, record.AttemptNumber)
	assert.Equal(t, 2, record.RetryCount)

	record.FailTerminal(now, "exhausted")
	assert.Equal(t, models.ActionExecutionFailed, record.Status)
	require.NotNil(t, record.CompletedAt)
}

func TestActionMaxAttempts(t *testing.T) {
	t.Parallel()

	action := &models.Action{MaxRetries: 2}
	assert.Equal(t, 3, action.MaxAttempts())

	action.MaxRetries = 0
	assert.Equal(t, 1, action.MaxAttempts())

	action.MaxRetries = -1
	assert.Equal(t, 1, action.MaxAttempts())
}

func TestDeliveryRetryBackoff(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	delivery := models.NewDelivery("dlv-1", "msg-1", "+5511999", models.ChannelSMS, 3, now)

	delivery.RecordFailure(now, time.Minute, "timeout")
	assert.Equal(t, models.DeliveryPending, delivery.Status)
	require.NotNil(t, delivery.NextRetry)
	assert.Equal(t, now.Add(1*time.Minute), *delivery.NextRetry)

	delivery.RecordFailure(now, time.Minute, "timeout")
	require.NotNil(t, delivery.NextRetry)
	assert.Equal(t, now.Add(2*time.Minute), *delivery.NextRetry)

	// Third failure exhausts the budget: terminal, no retry scheduled.
	delivery.RecordFailure(now, time.Minute, "timeout")
	assert.Equal(t, models.DeliveryFailed, delivery.Status)
	assert.Nil(t, delivery.NextRetry)
	assert.Equal(t, 3, delivery.AttemptCount)
	assert.True(t, delivery.Terminal())
}

func TestDeliverySuccessAfterFailures(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	delivery := models.NewDelivery("dlv-2", "msg-1", "user@example.com", models.ChannelEmail, 3, now)

	delivery.RecordFailure(now, time.Minute, "bounce")
	delivery.RecordFailure(now, time.Minute, "bounce")
	delivery.RecordSent(now, "provider-123")

	assert.Equal(t, models.DeliverySent, delivery.Status)
	assert.Equal(t, 3, delivery.AttemptCount)
	assert.Equal(t, "provider-123", delivery.ProviderMessageID)
	assert.Nil(t, delivery.NextRetry)
	assert.Empty(t, delivery.LastError)
}

func TestScheduledMessageRecordSend(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	t.Run("one-shot message closes after send", func(t *testing.T) {
		t.Parallel()

		message := &models.ScheduledMessage{
			ScheduleType: models.ScheduleScheduled,
			Status:       models.MessagePending,
			NextSend:     &now,
		}

		require.NoError(t, message.RecordSend(now))
		assert.Equal(t, models.MessageSent, message.Status)
		assert.Nil(t, message.NextSend)
		assert.Equal(t, 1, message.SentCount)
	})

	t.Run("recurring message recomputes next send", func(t *testing.T) {
		t.Parallel()

		message := &models.ScheduledMessage{
			ScheduleType: models.ScheduleRecurring,
			Recurrence:   models.RecurrenceDaily,
			Status:       models.MessagePending,
			NextSend:     &now,
		}

		require.NoError(t, message.RecordSend(now))
		assert.Equal(t, models.MessagePending, message.Status)
		require.NotNil(t, message.NextSend)
		assert.Equal(t, now.Add(24*time.Hour), *message.NextSend)
	})

	t.Run("recurring message with exhausted budget closes", func(t *testing.T) {
		t.Parallel()

		message := &models.ScheduledMessage{
			ScheduleType: models.ScheduleRecurring,
			Recurrence:   models.RecurrenceDaily,
			Status:       models.MessagePending,
			MaxSends:     1,
		}

		require.NoError(t, message.RecordSend(now))
		assert.Equal(t, models.MessageSent, message.Status)
		assert.Nil(t, message.NextSend)
	})
}

func TestRuleEffective(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	rule := &models.Rule{Active: true}
	assert.True(t, rule.Effective(now))

	rule.Active = false
	assert.False(t, rule.Effective(now))

	rule.Active = true
	rule.ValidFrom = &after
	assert.False(t, rule.Effective(now))

	rule.ValidFrom = &before
	rule.ValidUntil = &before
	assert.False(t, rule.Effective(now))

	rule.ValidUntil = &after
	assert.True(t, rule.Effective(now))

	rule.ExecutionLimit = 5
	rule.ExecutionCount = 5
	assert.False(t, rule.Effective(now))
}
