package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pulseops/automation/pkg/actions/sendmessage"
	"github.com/pulseops/automation/pkg/dispatch"
	"github.com/pulseops/automation/pkg/engine"
	"github.com/pulseops/automation/pkg/log"
	"github.com/pulseops/automation/pkg/mocks"
	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/persistence/file"
	"github.com/pulseops/automation/pkg/protocol"
	"github.com/pulseops/automation/pkg/registry"
	"github.com/pulseops/automation/pkg/scheduler"
)

type fixture struct {
	store     *file.Persistence
	sender    *mocks.MockSender
	resolver  *mocks.MockDirectoryResolver
	clock     *clock.Mock
	scheduler *scheduler.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	sender := &mocks.MockSender{}
	resolver := &mocks.MockDirectoryResolver{}
	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))

	logger := log.WithModule("test")

	reg := registry.NewRegistry(logger)
	for _, factory := range sendmessage.NewFactories(sender) {
		reg.Register(factory)
	}

	eng := engine.NewEngine(store, reg, mockClock, nil, logger)
	dispatcher := dispatch.NewDispatcher(store, sender, resolver, mockClock, nil, logger)

	return &fixture{
		store:     store,
		sender:    sender,
		resolver:  resolver,
		clock:     mockClock,
		scheduler: scheduler.NewScheduler(store, eng, dispatcher, mockClock, time.Minute, logger),
	}
}

func (f *fixture) seedScheduledWorkflow(t *testing.T, workflow *models.Workflow) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, f.store.SaveWorkflow(ctx, workflow))
	require.NoError(t, f.store.SaveAction(ctx, &models.Action{
		ID: "act-" + workflow.ID, WorkflowID: workflow.ID, Name: "notify", SequenceOrder: 1,
		Type: models.ActionSendSMS, IsRequired: true,
		Params: models.ParamsOf(map[string]any{"recipient": "+5511999", "content": "ping"}),
	}))
}

func dailyWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		Name:        "daily digest",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTime,
		Recurrence:  models.RecurrenceDaily,
	}
}

func TestTickFiresDueWorkflowAndRecomputesSchedule(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.seedScheduledWorkflow(t, dailyWorkflow("wf-daily"))
	f.sender.On("Send", mock.Anything, models.ChannelSMS, "+5511999", "ping").
		Return(&protocol.SendResult{}, nil).Once()

	f.scheduler.Tick(ctx)

	workflow, err := f.store.WorkflowByID(ctx, "wf-daily")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusActive, workflow.Status)
	assert.Equal(t, 1, workflow.ExecutionCount)
	require.NotNil(t, workflow.NextExecution)
	assert.Equal(t, f.clock.Now().UTC().Add(24*time.Hour), *workflow.NextExecution)

	// Not due again until the recomputed time passes.
	f.scheduler.Tick(ctx)
	f.sender.AssertExpectations(t)

	executions, err := f.store.ExecutionsByWorkflow(ctx, "wf-daily")
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionCompleted, executions[0].Status)
}

func TestTickOneShotWorkflowCompletes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	workflow := dailyWorkflow("wf-once")
	workflow.Recurrence = models.RecurrenceOnce
	f.seedScheduledWorkflow(t, workflow)

	f.sender.On("Send", mock.Anything, models.ChannelSMS, "+5511999", "ping").
		Return(&protocol.SendResult{}, nil).Once()

	f.scheduler.Tick(ctx)

	stored, err := f.store.WorkflowByID(ctx, "wf-once")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCompleted, stored.Status)
	assert.Nil(t, stored.NextExecution)

	f.sender.AssertExpectations(t)
}

func TestTickExecutionBudgetCompletesWorkflow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	workflow := dailyWorkflow("wf-capped")
	workflow.MaxExecutions = 1
	f.seedScheduledWorkflow(t, workflow)

	f.sender.On("Send", mock.Anything, models.ChannelSMS, "+5511999", "ping").
		Return(&protocol.SendResult{}, nil).Once()

	f.scheduler.Tick(ctx)

	stored, err := f.store.WorkflowByID(ctx, "wf-capped")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCompleted, stored.Status)
	assert.Nil(t, stored.NextExecution)
	assert.Equal(t, 1, stored.ExecutionCount)
}

func TestTickTriggerConditionGatesFiring(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	workflow := dailyWorkflow("wf-gated")
	workflow.TriggerCondition = &models.ConditionNode{
		Field:    "source",
		Operator: models.OpEquals,
		Value:    models.ValueOf("manual"),
	}
	f.seedScheduledWorkflow(t, workflow)

	f.scheduler.Tick(ctx)

	// The fire was skipped but the schedule still advanced; the workflow is
	// not re-examined every tick until the next recurrence.
	stored, err := f.store.WorkflowByID(ctx, "wf-gated")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ExecutionCount)
	require.NotNil(t, stored.NextExecution)

	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTickResumesDueExecutions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	workflow := dailyWorkflow("wf-deferred")
	workflow.TriggerType = models.TriggerEvent
	workflow.Recurrence = ""
	f.seedScheduledWorkflow(t, workflow)

	// An execution parked by a wait action, now due.
	execution := models.NewExecution("exec-1", "wf-deferred", nil, f.clock.Now().UTC().Add(-time.Hour))
	execution.Defer(f.clock.Now().UTC().Add(-time.Minute), 0)
	require.NoError(t, f.store.SaveExecution(ctx, execution))

	f.sender.On("Send", mock.Anything, models.ChannelSMS, "+5511999", "ping").
		Return(&protocol.SendResult{}, nil).Once()

	f.scheduler.Tick(ctx)

	stored, err := f.store.ExecutionByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, stored.Status)

	f.sender.AssertExpectations(t)
}

func seedMessage(t *testing.T, f *fixture, message *models.ScheduledMessage) {
	t.Helper()

	require.NoError(t, f.store.SaveMessage(context.Background(), message))
}

func dueMessage(id string, now time.Time) *models.ScheduledMessage {
	return &models.ScheduledMessage{
		ID:           id,
		Name:         "invoice reminder",
		Content:      "invoice due",
		Channel:      models.ChannelEmail,
		Recipients:   []models.RecipientSpec{{Type: models.RecipientContact, Value: "user@example.com"}},
		ScheduleType: models.ScheduleScheduled,
		Status:       models.MessagePending,
		NextSend:     &now,
	}
}

func TestTickDispatchesDueMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now().UTC()

	seedMessage(t, f, dueMessage("msg-1", now))

	f.sender.On("Send", mock.Anything, models.ChannelEmail, "user@example.com", "invoice due").
		Return(&protocol.SendResult{}, nil).Once()

	f.scheduler.Tick(ctx)

	stored, err := f.store.MessageByID(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, models.MessageSent, stored.Status)
	assert.Nil(t, stored.NextSend)
	assert.Equal(t, 1, stored.SentCount)

	f.sender.AssertExpectations(t)
}

func TestTickHoldsConditionalMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now().UTC()

	message := dueMessage("msg-cond", now)
	message.ScheduleType = models.ScheduleConditional
	message.Variables = map[string]any{"balance": float64(0)}
	message.Condition = &models.ConditionNode{
		Field:    "balance",
		Operator: models.OpGreaterThan,
		Value:    models.ValueOf(float64(100)),
	}
	seedMessage(t, f, message)

	f.scheduler.Tick(ctx)

	// Held, still pending and still due next tick.
	stored, err := f.store.MessageByID(ctx, "msg-cond")
	require.NoError(t, err)
	assert.Equal(t, models.MessagePending, stored.Status)
	require.NotNil(t, stored.NextSend)

	// Once the condition holds, the next tick sends it.
	stored.Variables["balance"] = float64(250)
	require.NoError(t, f.store.SaveMessage(ctx, stored))

	f.sender.On("Send", mock.Anything, models.ChannelEmail, "user@example.com", "invoice due").
		Return(&protocol.SendResult{}, nil).Once()

	f.clock.Add(time.Minute)
	f.scheduler.Tick(ctx)

	stored, err = f.store.MessageByID(ctx, "msg-cond")
	require.NoError(t, err)
	assert.Equal(t, models.MessageSent, stored.Status)

	f.sender.AssertExpectations(t)
}

func TestTickExpiresMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now().UTC()

	expiry := now.Add(-time.Hour)
	message := dueMessage("msg-old", now)
	message.ExpiresAt = &expiry
	seedMessage(t, f, message)

	f.scheduler.Tick(ctx)

	stored, err := f.store.MessageByID(ctx, "msg-old")
	require.NoError(t, err)
	assert.Equal(t, models.MessageExpired, stored.Status)
	assert.Nil(t, stored.NextSend)

	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTickRetriesDueDeliveries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now().UTC()

	message := dueMessage("msg-retry", now)
	message.NextSend = nil
	message.Status = models.MessageSent
	seedMessage(t, f, message)

	delivery := models.NewDelivery("dlv-1", "msg-retry", "user@example.com", models.ChannelEmail, 3, now.Add(-time.Hour))
	delivery.RecordFailure(now.Add(-time.Hour), time.Minute, "bounce")
	require.NoError(t, f.store.SaveDelivery(ctx, delivery))

	f.sender.On("Send", mock.Anything, models.ChannelEmail, "user@example.com", "invoice due").
		Return(&protocol.SendResult{ProviderMessageID: "prov-7"}, nil).Once()

	f.scheduler.Tick(ctx)

	stored, err := f.store.DeliveriesByMessage(ctx, "msg-retry")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.DeliverySent, stored[0].Status)
	assert.Equal(t, "prov-7", stored[0].ProviderMessageID)

	f.sender.AssertExpectations(t)
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.scheduler.Start(ctx))
	require.NoError(t, f.scheduler.Start(ctx))
	require.NoError(t, f.scheduler.Stop(ctx))
	require.NoError(t, f.scheduler.Stop(ctx))
}
