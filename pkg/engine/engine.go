// Package engine orchestrates workflow firings end to end: it creates the
// execution record, runs the actions in sequence order with per-action
// retry budgets, aggregates the outcome and exposes pause/resume/cancel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/otelhelper"
	"github.com/pulseops/automation/pkg/persistence"
	"github.com/pulseops/automation/pkg/protocol"
	"github.com/pulseops/automation/pkg/registry"
	"github.com/pulseops/automation/pkg/template"
)

var (
	// ErrWorkflowNotFireable is returned when a fire request is a no-op:
	// the workflow is not active or its execution budget is used up.
	ErrWorkflowNotFireable = errors.New("workflow not fireable")

	// ErrInvalidTransition is returned for pause/resume/cancel requests
	// that do not apply to the execution's current status.
	ErrInvalidTransition = errors.New("invalid execution state transition")
)

// Notifier receives best-effort system alerts about terminal failures.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// Engine runs workflow executions. Actions within one execution run
// strictly sequentially; different workflows may fire concurrently, but
// executions of the same workflow are serialized by a per-workflow lock.
type Engine struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	clock       clock.Clock
	notifier    Notifier
	tracer      trace.Tracer
	logger      *slog.Logger

	locks sync.Map // workflow ID -> *sync.Mutex
}

func NewEngine(
	store persistence.Persistence,
	reg *registry.Registry,
	clk clock.Clock,
	notifier Notifier,
	logger *slog.Logger,
) *Engine {
	if clk == nil {
		clk = clock.New()
	}

	return &Engine{
		persistence: store,
		registry:    reg,
		clock:       clk,
		notifier:    notifier,
		tracer:      otel.Tracer("automation/engine"),
		logger:      logger.With("module", "workflow_engine"),
	}
}

// Fire starts one execution of the workflow. Firing a workflow that is not
// active, or whose execution budget is exhausted, is rejected with
// ErrWorkflowNotFireable and creates no execution.
func (e *Engine) Fire(ctx context.Context, workflowID string, triggerData map[string]any) (*models.Execution, error) {
	unlock := e.lockWorkflow(workflowID)
	defer unlock()

	workflow, err := e.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	if !workflow.CanFire() {
		return nil, fmt.Errorf("%w: %s (status=%s, executions=%d)",
			ErrWorkflowNotFireable, workflowID, workflow.Status, workflow.ExecutionCount)
	}

	execution := models.NewExecution(
		"exec-"+uuid.New().String()[:8],
		workflowID,
		triggerData,
		e.clock.Now().UTC(),
	)

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to persist execution: %w", err)
	}

	logger := e.logger.With("workflow_id", workflowID, "execution_id", execution.ID)
	logger.InfoContext(ctx, "Starting execution of workflow")

	if err := e.run(ctx, workflow, execution, logger); err != nil {
		return execution, err
	}

	return execution, nil
}

// Continue resumes a deferred execution (wait action or retry backoff) or
// one re-enqueued by Resume. The scheduler calls this for due executions.
func (e *Engine) Continue(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, err := e.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionPending {
		return nil, fmt.Errorf("%w: continue from %s", ErrInvalidTransition, execution.Status)
	}

	unlock := e.lockWorkflow(execution.WorkflowID)
	defer unlock()

	workflow, err := e.persistence.WorkflowByID(ctx, execution.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", execution.WorkflowID, err)
	}

	execution.Status = models.ExecutionRunning
	execution.ResumeAt = nil

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to persist execution: %w", err)
	}

	logger := e.logger.With("workflow_id", workflow.ID, "execution_id", execution.ID)
	logger.InfoContext(ctx, "Resuming execution", "next_action_index", execution.NextActionIndex)

	if err := e.run(ctx, workflow, execution, logger); err != nil {
		return execution, err
	}

	return execution, nil
}

// Pause suspends a running execution before its next action.
func (e *Engine) Pause(ctx context.Context, executionID string) error {
	execution, err := e.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionRunning {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, execution.Status)
	}

	execution.Status = models.ExecutionPaused

	return e.persistence.SaveExecution(ctx, execution)
}

// Resume re-enqueues a paused execution; it restarts from the next
// unexecuted action index recorded at pause time.
func (e *Engine) Resume(ctx context.Context, executionID string) error {
	execution, err := e.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status != models.ExecutionPaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, execution.Status)
	}

	execution.Defer(e.clock.Now().UTC(), execution.NextActionIndex)

	return e.persistence.SaveExecution(ctx, execution)
}

// Cancel marks the execution cancelled. Cancellation is cooperative: an
// in-flight action finishes, the engine stops before starting the next.
func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	execution, err := e.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}

	if execution.Status.Terminal() {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, execution.Status)
	}

	execution.Cancel(e.clock.Now().UTC())

	return e.persistence.SaveExecution(ctx, execution)
}

// run executes actions from execution.NextActionIndex onward. It returns a
// nil error for every regular outcome (completed, failed, deferred,
// cancelled, paused); errors mean the engine itself could not proceed.
func (e *Engine) run(ctx context.Context, workflow *models.Workflow, execution *models.Execution, logger *slog.Logger) error {
	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
	))
	defer span.End()

	actions, err := e.persistence.ActionsByWorkflow(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch actions for workflow %s: %w", workflow.ID, err)
	}

	for i := execution.NextActionIndex; i < len(actions); i++ {
		proceed, err := e.checkInterrupted(ctx, execution, i, logger)
		if err != nil {
			return err
		}

		if !proceed {
			return nil
		}

		action := actions[i]
		logger := logger.With("action_id", action.ID, "action_type", action.Type, "sequence_order", action.SequenceOrder)

		if action.Type == models.ActionWait {
			return e.deferWait(ctx, execution, action, i, logger)
		}

		outcome, err := e.executeAction(ctx, execution, action, i, logger)
		if err != nil {
			return err
		}

		switch outcome {
		case outcomeDeferred:
			return nil
		case outcomeFailedRequired:
			return nil
		case outcomeCompleted, outcomeFailedOptional:
			execution.NextActionIndex = i + 1
			if err := e.advance(ctx, execution); err != nil {
				return err
			}

			if execution.Status != models.ExecutionRunning {
				return nil
			}
		}
	}

	return e.complete(ctx, workflow, execution, logger)
}

// checkInterrupted re-reads the stored execution status before each action
// and honors cooperative cancel/pause requests.
func (e *Engine) checkInterrupted(ctx context.Context, execution *models.Execution, index int, logger *slog.Logger) (bool, error) {
	stored, err := e.persistence.ExecutionByID(ctx, execution.ID)
	if err != nil {
		return false, fmt.Errorf("failed to refresh execution: %w", err)
	}

	switch stored.Status {
	case models.ExecutionCancelled:
		logger.InfoContext(ctx, "Execution cancelled, stopping before next action", "action_index", index)

		return false, nil
	case models.ExecutionPaused:
		stored.NextActionIndex = index
		if err := e.persistence.SaveExecution(ctx, stored); err != nil {
			return false, fmt.Errorf("failed to persist paused execution: %w", err)
		}

		logger.InfoContext(ctx, "Execution paused", "action_index", index)

		return false, nil
	default:
		return true, nil
	}
}

// advance persists progress after an action. A cancel or pause request
// that landed while the action was in flight wins over the stale in-memory
// status; writing the snapshot back unchanged would undo the interrupt.
func (e *Engine) advance(ctx context.Context, execution *models.Execution) error {
	stored, err := e.persistence.ExecutionByID(ctx, execution.ID)
	if err != nil {
		return fmt.Errorf("failed to refresh execution: %w", err)
	}

	if stored.Status == models.ExecutionCancelled || stored.Status == models.ExecutionPaused {
		execution.Status = stored.Status
		execution.CompletedAt = stored.CompletedAt
		execution.ResumeAt = stored.ResumeAt

		e.logger.InfoContext(ctx, "Execution interrupted mid-run",
			"execution_id", execution.ID, "status", stored.Status)
	}

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to persist execution: %w", err)
	}

	return nil
}

// deferWait parks the execution instead of sleeping so one slow workflow
// never starves the scheduler loop.
func (e *Engine) deferWait(ctx context.Context, execution *models.Execution, action *models.Action, index int, logger *slog.Logger) error {
	now := e.clock.Now().UTC()
	seconds := action.Params.Number("duration_seconds", 0)
	resumeAt := now.Add(time.Duration(seconds * float64(time.Second)))

	record := e.newActionExecution(execution.ID, action.ID, now)
	record.BeginAttempt()
	record.Succeed(now, map[string]any{"resume_at": resumeAt.Format(time.RFC3339)})

	if err := e.persistence.SaveActionExecution(ctx, record); err != nil {
		return fmt.Errorf("failed to persist action execution: %w", err)
	}

	execution.ActionsCompleted++
	execution.Defer(resumeAt, index+1)

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to persist deferred execution: %w", err)
	}

	logger.InfoContext(ctx, "Execution deferred by wait action", "resume_at", resumeAt)

	return nil
}

type actionOutcome int

const (
	outcomeCompleted actionOutcome = iota
	outcomeFailedOptional
	outcomeFailedRequired
	outcomeDeferred
)

// executeAction drives one action through its attempt budget. Inter-attempt
// delays are deferred re-enqueues, not sleeps; a zero delay retries in-line.
func (e *Engine) executeAction(ctx context.Context, execution *models.Execution, action *models.Action, index int, logger *slog.Logger) (actionOutcome, error) {
	record, err := e.findOrCreateActionExecution(ctx, execution, action)
	if err != nil {
		return outcomeFailedRequired, err
	}

	for record.AttemptNumber < action.MaxAttempts() {
		record.BeginAttempt()

		if err := e.persistence.SaveActionExecution(ctx, record); err != nil {
			return outcomeFailedRequired, fmt.Errorf("failed to persist action execution: %w", err)
		}

		result, attemptErr := e.executeAttempt(ctx, execution, action, logger)
		if attemptErr == nil {
			return e.recordSuccess(ctx, execution, action, record, result, logger)
		}

		record.FailAttempt(attemptErr.Error())
		logger.WarnContext(ctx, "Action attempt failed",
			"attempt", record.AttemptNumber,
			"max_attempts", action.MaxAttempts(),
			"failure_kind", protocol.KindOf(attemptErr),
			"error", attemptErr)

		if err := e.persistence.SaveActionExecution(ctx, record); err != nil {
			return outcomeFailedRequired, fmt.Errorf("failed to persist action execution: %w", err)
		}

		if !protocol.Retryable(attemptErr) || record.AttemptNumber >= action.MaxAttempts() {
			return e.recordFailure(ctx, execution, action, record, attemptErr, logger)
		}

		if action.RetryDelaySec > 0 {
			resumeAt := e.clock.Now().UTC().Add(time.Duration(action.RetryDelaySec) * time.Second)
			execution.Defer(resumeAt, index)

			if err := e.persistence.SaveExecution(ctx, execution); err != nil {
				return outcomeFailedRequired, fmt.Errorf("failed to persist deferred execution: %w", err)
			}

			logger.InfoContext(ctx, "Retry deferred", "resume_at", resumeAt)

			return outcomeDeferred, nil
		}
	}

	return e.recordFailure(ctx, execution, action, record, errors.New("attempt budget exhausted"), logger)
}

// executeAttempt performs a single attempt: substitute parameters, build
// the handler, execute with the action's timeout. Panics are converted into
// typed faults; the executor never throws across its boundary.
func (e *Engine) executeAttempt(ctx context.Context, execution *models.Execution, action *models.Action, logger *slog.Logger) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = protocol.Fault(fmt.Sprintf("action handler panicked: %v", r), nil)
		}
	}()

	ctx, span := e.tracer.Start(ctx, "action.execute", trace.WithAttributes(
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.ActionTypeKey, string(action.Type)),
	))
	defer span.End()

	params := template.SubstituteParams(action.Params, execution.EvalContext())

	handler, err := e.registry.Create(action.Type, params)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if action.TimeoutSec > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, time.Duration(action.TimeoutSec)*time.Second)
		defer cancel()
	}

	result, err = handler.Execute(ctx, execution, logger)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return result, nil
}

func (e *Engine) recordSuccess(ctx context.Context, execution *models.Execution, action *models.Action, record *models.ActionExecution, result any, logger *slog.Logger) (actionOutcome, error) {
	record.Succeed(e.clock.Now().UTC(), result)

	if err := e.persistence.SaveActionExecution(ctx, record); err != nil {
		return outcomeFailedRequired, fmt.Errorf("failed to persist action execution: %w", err)
	}

	if execution.Variables == nil {
		execution.Variables = make(map[string]any)
	}

	execution.Variables[action.Name] = result
	execution.ActionsCompleted++

	logger.InfoContext(ctx, "Action completed", "attempts", record.AttemptNumber)

	return outcomeCompleted, nil
}

// recordFailure closes the action record; a required action's failure
// aborts the remaining sequence and fails the execution.
func (e *Engine) recordFailure(ctx context.Context, execution *models.Execution, action *models.Action, record *models.ActionExecution, cause error, logger *slog.Logger) (actionOutcome, error) {
	now := e.clock.Now().UTC()

	record.FailTerminal(now, cause.Error())

	if err := e.persistence.SaveActionExecution(ctx, record); err != nil {
		return outcomeFailedRequired, fmt.Errorf("failed to persist action execution: %w", err)
	}

	execution.ActionsFailed++

	if !action.IsRequired {
		logger.WarnContext(ctx, "Optional action failed, continuing", "error", cause)

		return outcomeFailedOptional, nil
	}

	execution.Fail(now, fmt.Sprintf("required action %s failed: %v", action.Name, cause))

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		return outcomeFailedRequired, fmt.Errorf("failed to persist failed execution: %w", err)
	}

	logger.ErrorContext(ctx, "Required action failed, execution aborted", "error", cause)

	e.alert(ctx, models.Notification{
		Type:     models.NotificationWorkflowFailed,
		Priority: 1,
		Subject:  fmt.Sprintf("workflow %s execution %s failed", execution.WorkflowID, execution.ID),
		Body:     execution.ErrorMessage,
	})

	return outcomeFailedRequired, nil
}

func (e *Engine) complete(ctx context.Context, workflow *models.Workflow, execution *models.Execution, logger *slog.Logger) error {
	now := e.clock.Now().UTC()

	execution.Complete(now)

	if err := e.persistence.SaveExecution(ctx, execution); err != nil {
		return fmt.Errorf("failed to persist completed execution: %w", err)
	}

	stored, err := e.persistence.WorkflowByID(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to refresh workflow %s: %w", workflow.ID, err)
	}

	stored.RecordExecution(now)

	if err := e.persistence.SaveWorkflow(ctx, stored); err != nil {
		return fmt.Errorf("failed to persist workflow bookkeeping: %w", err)
	}

	logger.InfoContext(ctx, "Execution completed",
		"actions_completed", execution.ActionsCompleted,
		"actions_failed", execution.ActionsFailed)

	return nil
}

func (e *Engine) findOrCreateActionExecution(ctx context.Context, execution *models.Execution, action *models.Action) (*models.ActionExecution, error) {
	records, err := e.persistence.ActionExecutionsByExecution(ctx, execution.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch action executions: %w", err)
	}

	for _, record := range records {
		if record.ActionID == action.ID && !statusClosed(record.Status) {
			return record, nil
		}
	}

	return e.newActionExecution(execution.ID, action.ID, e.clock.Now().UTC()), nil
}

func statusClosed(status models.ActionExecutionStatus) bool {
	return status == models.ActionExecutionCompleted || status == models.ActionExecutionFailed
}

func (e *Engine) newActionExecution(executionID, actionID string, now time.Time) *models.ActionExecution {
	return &models.ActionExecution{
		ID:          "aexec-" + uuid.New().String()[:8],
		ExecutionID: executionID,
		ActionID:    actionID,
		Status:      models.ActionExecutionPending,
		StartedAt:   now,
	}
}

func (e *Engine) alert(ctx context.Context, notification models.Notification) {
	if e.notifier == nil {
		return
	}

	if err := e.notifier.Notify(ctx, notification); err != nil {
		e.logger.WarnContext(ctx, "Failed to enqueue system alert", "error", err)
	}
}

func (e *Engine) lockWorkflow(workflowID string) func() {
	v, _ := e.locks.LoadOrStore(workflowID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()

	return mu.Unlock
}
