// Package persistence provides the data storage abstraction for the
// automation core: workflows, actions, executions, rules, scheduled
// messages and deliveries, including the "find due" queries the scheduler
// polls.
package persistence

import (
	"context"
	"time"

	"github.com/pulseops/automation/pkg/models"
)

type Persistence interface {
	// Workflows
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	// DeleteWorkflow removes the workflow and, because a workflow
	// exclusively owns its actions, every action belonging to it.
	DeleteWorkflow(ctx context.Context, id string) error
	// DueWorkflows returns active, scheduled workflows whose next
	// execution time has elapsed or was never set.
	DueWorkflows(ctx context.Context, now time.Time) ([]*models.Workflow, error)

	// Actions
	ActionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Action, error)
	SaveAction(ctx context.Context, action *models.Action) error
	DeleteAction(ctx context.Context, id string) error

	// Executions
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	SaveExecution(ctx context.Context, execution *models.Execution) error
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)
	// DueExecutions returns pending executions whose resume time has
	// elapsed (deferred wait actions and retry backoffs).
	DueExecutions(ctx context.Context, now time.Time) ([]*models.Execution, error)

	// Action executions
	ActionExecutionsByExecution(ctx context.Context, executionID string) ([]*models.ActionExecution, error)
	SaveActionExecution(ctx context.Context, actionExecution *models.ActionExecution) error

	// Rules
	Rules(ctx context.Context) ([]*models.Rule, error)
	RuleByID(ctx context.Context, id string) (*models.Rule, error)
	SaveRule(ctx context.Context, rule *models.Rule) error
	// ActiveRules returns active rules ordered by descending priority.
	ActiveRules(ctx context.Context) ([]*models.Rule, error)

	// Scheduled messages
	Messages(ctx context.Context) ([]*models.ScheduledMessage, error)
	MessageByID(ctx context.Context, id string) (*models.ScheduledMessage, error)
	SaveMessage(ctx context.Context, message *models.ScheduledMessage) error
	// DueMessages returns pending messages whose next send time has elapsed.
	DueMessages(ctx context.Context, now time.Time) ([]*models.ScheduledMessage, error)

	// Deliveries
	DeliveriesByMessage(ctx context.Context, messageID string) ([]*models.MessageDelivery, error)
	SaveDelivery(ctx context.Context, delivery *models.MessageDelivery) error
	// DueDeliveries returns pending deliveries with an elapsed retry time.
	DueDeliveries(ctx context.Context, now time.Time) ([]*models.MessageDelivery, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
