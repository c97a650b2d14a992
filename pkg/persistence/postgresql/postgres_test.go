package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/persistence"
	"github.com/pulseops/automation/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{
		"message_deliveries", "scheduled_messages", "rules",
		"action_executions", "executions", "actions", "workflows",
		"schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("automation_test"),
			postgres.WithUsername("automation"),
			postgres.WithPassword("automation"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	for _, table := range []string{
		"workflows", "actions", "executions", "action_executions",
		"rules", "scheduled_messages", "message_deliveries", "schema_migrations",
	} {
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table+" table should exist")
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestNewPersistence_WorkflowRoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	next := now.Add(24 * time.Hour)

	workflow := &models.Workflow{
		ID:          "wf-pg1",
		Name:        "daily digest",
		Description: "sends the daily digest",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTime,
		TriggerCondition: &models.ConditionNode{
			Field:    "source",
			Operator: models.OpEquals,
			Value:    models.ValueOf("scheduler"),
		},
		Recurrence:    models.RecurrenceDaily,
		Priority:      5,
		NextExecution: &next,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, p.SaveWorkflow(ctx, workflow))

	stored, err := p.WorkflowByID(ctx, "wf-pg1")
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, stored.Name)
	assert.Equal(t, workflow.Status, stored.Status)
	assert.Equal(t, workflow.Recurrence, stored.Recurrence)
	require.NotNil(t, stored.TriggerCondition)
	assert.Equal(t, models.OpEquals, stored.TriggerCondition.Operator)
	require.NotNil(t, stored.NextExecution)
	assert.WithinDuration(t, next, *stored.NextExecution, time.Millisecond)

	// Upsert updates in place.
	workflow.Status = models.WorkflowStatusPaused
	require.NoError(t, p.SaveWorkflow(ctx, workflow))

	stored, err = p.WorkflowByID(ctx, "wf-pg1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPaused, stored.Status)

	_, err = p.WorkflowByID(ctx, "wf-missing")
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))
}

func TestNewPersistence_DueWorkflows(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	save := func(id string, mutate func(w *models.Workflow)) {
		workflow := &models.Workflow{
			ID: id, Name: id, Status: models.WorkflowStatusActive,
			TriggerType: models.TriggerTime, Recurrence: models.RecurrenceDaily,
			NextExecution: &past, CreatedAt: now, UpdatedAt: now,
		}
		mutate(workflow)
		require.NoError(t, p.SaveWorkflow(ctx, workflow))
	}

	save("wf-due", func(w *models.Workflow) { w.Priority = 1 })
	save("wf-due-first", func(w *models.Workflow) { w.Priority = 10 })
	save("wf-future", func(w *models.Workflow) { w.NextExecution = &future })
	save("wf-event", func(w *models.Workflow) { w.TriggerType = models.TriggerEvent })

	due, err := p.DueWorkflows(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "wf-due-first", due[0].ID) // highest priority first
	assert.Equal(t, "wf-due", due[1].ID)
}

func TestNewPersistence_ActionsAndCascade(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	now := time.Now().UTC()

	require.NoError(t, p.SaveWorkflow(ctx, &models.Workflow{
		ID: "wf-1", Name: "with actions", Status: models.WorkflowStatusDraft,
		TriggerType: models.TriggerEvent, CreatedAt: now, UpdatedAt: now,
	}))

	for i, name := range []string{"first", "second"} {
		require.NoError(t, p.SaveAction(ctx, &models.Action{
			ID: "act-" + name, WorkflowID: "wf-1", Name: name,
			SequenceOrder: i + 1, Type: models.ActionSendSMS,
			Params: models.ParamsOf(map[string]any{"recipient": "+55", "content": "hi"}),
		}))
	}

	actions, err := p.ActionsByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "first", actions[0].Name)
	assert.Equal(t, "+55", actions[0].Params.String("recipient", ""))

	require.NoError(t, p.DeleteWorkflow(ctx, "wf-1"))

	actions, err = p.ActionsByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Empty(t, actions)

	err = p.DeleteWorkflow(ctx, "wf-1")
	require.Error(t, err)
	assert.True(t, persistence.IsNotFound(err))
}

func TestNewPersistence_ExecutionsAndDue(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	now := time.Now().UTC()

	require.NoError(t, p.SaveWorkflow(ctx, &models.Workflow{
		ID: "wf-1", Name: "host", Status: models.WorkflowStatusActive,
		TriggerType: models.TriggerEvent, CreatedAt: now, UpdatedAt: now,
	}))

	execution := models.NewExecution("exec-1", "wf-1", map[string]any{"source": "test"}, now)
	execution.Defer(now.Add(-time.Minute), 2)
	require.NoError(t, p.SaveExecution(ctx, execution))

	due, err := p.DueExecutions(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "exec-1", due[0].ID)
	assert.Equal(t, 2, due[0].NextActionIndex)
	assert.Equal(t, "test", due[0].TriggerData["source"])

	record := &models.ActionExecution{
		ID: "aexec-1", ExecutionID: "exec-1", ActionID: "act-1",
		Status: models.ActionExecutionPending, StartedAt: now,
	}
	record.BeginAttempt()
	require.NoError(t, p.SaveActionExecution(ctx, record))

	records, err := p.ActionExecutionsByExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].AttemptNumber)
}

func TestNewPersistence_ActiveRules(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	now := time.Now().UTC()

	for _, rule := range []*models.Rule{
		{ID: "rule-low", Name: "low", Active: true, Priority: 1, CreatedAt: now, UpdatedAt: now},
		{ID: "rule-high", Name: "high", Active: true, Priority: 100, CreatedAt: now, UpdatedAt: now},
		{ID: "rule-off", Name: "off", Active: false, Priority: 500, CreatedAt: now, UpdatedAt: now},
	} {
		rule.Condition = &models.ConditionNode{
			Field: "x", Operator: models.OpEquals, Value: models.ValueOf("y"),
		}
		require.NoError(t, p.SaveRule(ctx, rule))
	}

	rules, err := p.ActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "rule-high", rules[0].ID)
	assert.Equal(t, "rule-low", rules[1].ID)
}

func TestNewPersistence_MessagesAndDeliveries(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	now := time.Now().UTC()
	past := now.Add(-time.Minute)

	message := &models.ScheduledMessage{
		ID:      "msg-1",
		Name:    "reminder",
		Content: "Hi {name}",
		Channel: models.ChannelEmail,
		Recipients: []models.RecipientSpec{
			{Type: models.RecipientContact, Value: "user@example.com"},
			{Type: models.RecipientGroup, Value: "finance"},
		},
		ScheduleType: models.ScheduleScheduled,
		Status:       models.MessagePending,
		Variables:    map[string]any{"name": "Maria"},
		NextSend:     &past,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, p.SaveMessage(ctx, message))

	due, err := p.DueMessages(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Len(t, due[0].Recipients, 2)
	assert.Equal(t, "Maria", due[0].Variables["name"])

	delivery := models.NewDelivery("dlv-1", "msg-1", "user@example.com", models.ChannelEmail, 3, now)
	delivery.RecordFailure(past, time.Second, "bounce")
	require.NoError(t, p.SaveDelivery(ctx, delivery))

	dueDeliveries, err := p.DueDeliveries(ctx, now)
	require.NoError(t, err)
	require.Len(t, dueDeliveries, 1)
	assert.Equal(t, "dlv-1", dueDeliveries[0].ID)
	assert.Equal(t, 1, dueDeliveries[0].AttemptCount)
	assert.Equal(t, "bounce", dueDeliveries[0].LastError)

	delivery.RecordSent(now, "prov-1")
	require.NoError(t, p.SaveDelivery(ctx, delivery))

	stored, err := p.DeliveriesByMessage(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.DeliverySent, stored[0].Status)
	assert.Equal(t, "prov-1", stored[0].ProviderMessageID)
}
