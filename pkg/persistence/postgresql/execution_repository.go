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

// ExecutionRepository handles execution and action execution database
// operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , workflow_id
  , status
  , trigger_data
  , variables
  , next_action_index
  , resume_at
  , actions_completed
  , actions_failed
  , error_message
  , started_at
  , completed_at
`

func (r *ExecutionRepository) scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution       models.Execution
		triggerDataJSON []byte
		variablesJSON   []byte
		resumeAt        sql.NullTime
		completedAt     sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.Status,
		&triggerDataJSON,
		&variablesJSON,
		&execution.NextActionIndex,
		&resumeAt,
		&execution.ActionsCompleted,
		&execution.ActionsFailed,
		&execution.ErrorMessage,
		&execution.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(triggerDataJSON, &execution.TriggerData); err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(variablesJSON, &execution.Variables); err != nil {
		return nil, err
	}

	if resumeAt.Valid {
		execution.ResumeAt = &resumeAt.Time
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	return &execution, nil
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+executionColumns+" FROM executions WHERE id = $1", id)

	execution, err := r.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("ExecutionByID", "execution", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := "SELECT " + executionColumns + " FROM executions WHERE workflow_id = $1 ORDER BY started_at DESC"

	return r.queryExecutions(ctx, query, workflowID)
}

// Due returns deferred executions whose resume time has elapsed.
func (r *ExecutionRepository) Due(ctx context.Context, now time.Time) ([]*models.Execution, error) {
	query := "SELECT " + executionColumns + `
		FROM executions
		WHERE status = $1 AND resume_at IS NOT NULL AND resume_at <= $2
		ORDER BY resume_at
	`

	return r.queryExecutions(ctx, query, models.ExecutionPending, now)
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	triggerDataJSON, err := marshalJSONB(execution.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to encode trigger data: %w", err)
	}

	variablesJSON, err := marshalJSONB(execution.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode variables: %w", err)
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, status, trigger_data, variables,
			next_action_index, resume_at, actions_completed, actions_failed,
			error_message, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			trigger_data = EXCLUDED.trigger_data,
			variables = EXCLUDED.variables,
			next_action_index = EXCLUDED.next_action_index,
			resume_at = EXCLUDED.resume_at,
			actions_completed = EXCLUDED.actions_completed,
			actions_failed = EXCLUDED.actions_failed,
			error_message = EXCLUDED.error_message,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.Status,
		triggerDataJSON,
		variablesJSON,
		execution.NextActionIndex,
		execution.ResumeAt,
		execution.ActionsCompleted,
		execution.ActionsFailed,
		execution.ErrorMessage,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewEntityError("SaveExecution", "execution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) ActionExecutionsByExecution(ctx context.Context, executionID string) ([]*models.ActionExecution, error) {
	query := `
		SELECT
			id
		  , execution_id
		  , action_id
		  , status
		  , attempt_number
		  , retry_count
		  , result
		  , error_message
		  , started_at
		  , completed_at
		FROM action_executions
		WHERE execution_id = $1
		ORDER BY started_at
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query action executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	actionExecutions := make([]*models.ActionExecution, 0)

	for rows.Next() {
		var (
			actionExecution models.ActionExecution
			resultJSON      []byte
			completedAt     sql.NullTime
		)

		err := rows.Scan(
			&actionExecution.ID,
			&actionExecution.ExecutionID,
			&actionExecution.ActionID,
			&actionExecution.Status,
			&actionExecution.AttemptNumber,
			&actionExecution.RetryCount,
			&resultJSON,
			&actionExecution.ErrorMessage,
			&actionExecution.StartedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action execution: %w", err)
		}

		if err := unmarshalJSONB(resultJSON, &actionExecution.Result); err != nil {
			return nil, err
		}

		if completedAt.Valid {
			actionExecution.CompletedAt = &completedAt.Time
		}

		actionExecutions = append(actionExecutions, &actionExecution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action executions: %w", err)
	}

	return actionExecutions, nil
}

func (r *ExecutionRepository) SaveActionExecution(ctx context.Context, actionExecution *models.ActionExecution) error {
	resultJSON, err := marshalJSONB(actionExecution.Result)
	if err != nil {
		return fmt.Errorf("failed to encode action result: %w", err)
	}

	query := `
		INSERT INTO action_executions (
			id, execution_id, action_id, status, attempt_number,
			retry_count, result, error_message, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempt_number = EXCLUDED.attempt_number,
			retry_count = EXCLUDED.retry_count,
			result = EXCLUDED.result,
			error_message = EXCLUDED.error_message,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		actionExecution.ID,
		actionExecution.ExecutionID,
		actionExecution.ActionID,
		actionExecution.Status,
		actionExecution.AttemptNumber,
		actionExecution.RetryCount,
		resultJSON,
		actionExecution.ErrorMessage,
		actionExecution.StartedAt,
		actionExecution.CompletedAt,
	)
	if err != nil {
		return persistence.NewEntityError("SaveActionExecution", "action_execution", actionExecution.ID, err)
	}

	return nil
}
