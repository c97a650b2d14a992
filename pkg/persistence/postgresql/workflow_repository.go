package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/persistence"
)

// WorkflowRepository handles workflow and action database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , name
  , description
  , status
  , trigger_type
  , trigger_condition
  , recurrence
  , priority
  , max_executions
  , execution_count
  , last_execution
  , next_execution
  , created_at
  , updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow      models.Workflow
		conditionJSON []byte
		lastExecution sql.NullTime
		nextExecution sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Status,
		&workflow.TriggerType,
		&conditionJSON,
		&workflow.Recurrence,
		&workflow.Priority,
		&workflow.MaxExecutions,
		&workflow.ExecutionCount,
		&lastExecution,
		&nextExecution,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(conditionJSON, &workflow.TriggerCondition); err != nil {
		return nil, err
	}

	if lastExecution.Valid {
		workflow.LastExecution = &lastExecution.Time
	}

	if nextExecution.Valid {
		workflow.NextExecution = &nextExecution.Time
	}

	return &workflow, nil
}

func (r *WorkflowRepository) queryWorkflows(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	return r.queryWorkflows(ctx, "SELECT "+workflowColumns+" FROM workflows ORDER BY created_at DESC")
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE id = $1", id)

	workflow, err := r.scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("WorkflowByID", "workflow", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// Due returns active, time-triggered workflows whose next execution has
// elapsed or was never computed.
func (r *WorkflowRepository) Due(ctx context.Context, now time.Time) ([]*models.Workflow, error) {
	query := "SELECT " + workflowColumns + `
		FROM workflows
		WHERE status = $1
		  AND trigger_type = $2
		  AND recurrence <> ''
		  AND (next_execution IS NULL OR next_execution <= $3)
		ORDER BY priority DESC, created_at
	`

	return r.queryWorkflows(ctx, query, models.WorkflowStatusActive, models.TriggerTime, now)
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	conditionJSON, err := marshalJSONB(workflow.TriggerCondition)
	if err != nil {
		return fmt.Errorf("failed to encode trigger condition: %w", err)
	}

	query := `
		INSERT INTO workflows (
			id, name, description, status, trigger_type, trigger_condition,
			recurrence, priority, max_executions, execution_count,
			last_execution, next_execution, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			trigger_type = EXCLUDED.trigger_type,
			trigger_condition = EXCLUDED.trigger_condition,
			recurrence = EXCLUDED.recurrence,
			priority = EXCLUDED.priority,
			max_executions = EXCLUDED.max_executions,
			execution_count = EXCLUDED.execution_count,
			last_execution = EXCLUDED.last_execution,
			next_execution = EXCLUDED.next_execution,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.Status,
		workflow.TriggerType,
		conditionJSON,
		workflow.Recurrence,
		workflow.Priority,
		workflow.MaxExecutions,
		workflow.ExecutionCount,
		workflow.LastExecution,
		workflow.NextExecution,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewEntityError("SaveWorkflow", "workflow", workflow.ID, err)
	}

	return nil
}

// Delete removes the workflow; owned actions go with it via the cascade.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return persistence.NewEntityError("DeleteWorkflow", "workflow", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError("DeleteWorkflow", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) ActionsByWorkflow(ctx context.Context, workflowID string) ([]*models.Action, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , name
		  , sequence_order
		  , type
		  , params
		  , is_required
		  , max_retries
		  , retry_delay_seconds
		  , timeout_seconds
		FROM actions
		WHERE workflow_id = $1
		ORDER BY sequence_order
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	actions := make([]*models.Action, 0)

	for rows.Next() {
		var (
			action     models.Action
			paramsJSON []byte
		)

		err := rows.Scan(
			&action.ID,
			&action.WorkflowID,
			&action.Name,
			&action.SequenceOrder,
			&action.Type,
			&paramsJSON,
			&action.IsRequired,
			&action.MaxRetries,
			&action.RetryDelaySec,
			&action.TimeoutSec,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}

		if err := unmarshalJSONB(paramsJSON, &action.Params); err != nil {
			return nil, err
		}

		actions = append(actions, &action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}

func (r *WorkflowRepository) SaveAction(ctx context.Context, action *models.Action) error {
	paramsJSON, err := marshalJSONB(action.Params)
	if err != nil {
		return fmt.Errorf("failed to encode action params: %w", err)
	}

	query := `
		INSERT INTO actions (
			id, workflow_id, name, sequence_order, type, params,
			is_required, max_retries, retry_delay_seconds, timeout_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			name = EXCLUDED.name,
			sequence_order = EXCLUDED.sequence_order,
			type = EXCLUDED.type,
			params = EXCLUDED.params,
			is_required = EXCLUDED.is_required,
			max_retries = EXCLUDED.max_retries,
			retry_delay_seconds = EXCLUDED.retry_delay_seconds,
			timeout_seconds = EXCLUDED.timeout_seconds
	`

	_, err = r.db.ExecContext(ctx, query,
		action.ID,
		action.WorkflowID,
		action.Name,
		action.SequenceOrder,
		action.Type,
		paramsJSON,
		action.IsRequired,
		action.MaxRetries,
		action.RetryDelaySec,
		action.TimeoutSec,
	)
	if err != nil {
		return persistence.NewEntityError("SaveAction", "action", action.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) DeleteAction(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM actions WHERE id = $1", id)
	if err != nil {
		return persistence.NewEntityError("DeleteAction", "action", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError("DeleteAction", "action", id, persistence.ErrActionNotFound)
	}

	return nil
}
