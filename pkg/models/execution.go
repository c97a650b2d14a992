package models

import "time"

// ExecutionStatus is the lifecycle state of one workflow firing.
//
//	pending -> running -> {completed | failed | cancelled}
//	running <-> paused
//
// A deferred execution (waiting on a wait action or a retry backoff) goes
// back to pending with ResumeAt set and is picked up by the scheduler.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// Execution is one concrete firing of a workflow. CompletedAt is set if and
// only if the status is terminal.
type Execution struct {
	ID               string          `json:"id"`
	WorkflowID       string          `json:"workflow_id"`
	Status           ExecutionStatus `json:"status"`
	TriggerData      map[string]any  `json:"trigger_data,omitempty"`
	Variables        map[string]any  `json:"variables,omitempty"`
	NextActionIndex  int             `json:"next_action_index"`
	ResumeAt         *time.Time      `json:"resume_at,omitempty"`
	ActionsCompleted int             `json:"actions_completed"`
	ActionsFailed    int             `json:"actions_failed"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// NewExecution creates a running execution with a snapshot of the trigger data.
func NewExecution(id, workflowID string, triggerData map[string]any, now time.Time) *Execution {
	snapshot := make(map[string]any, len(triggerData))
	for k, v := range triggerData {
		snapshot[k] = v
	}

	return &Execution{
		ID:          id,
		WorkflowID:  workflowID,
		Status:      ExecutionRunning,
		TriggerData: snapshot,
		Variables:   make(map[string]any),
		StartedAt:   now,
	}
}

// Complete marks the execution successfully finished.
func (e *Execution) Complete(now time.Time) {
	e.Status = ExecutionCompleted
	e.ResumeAt = nil
	e.CompletedAt = &now
}

// Fail marks the execution terminally failed with the aggregated error.
func (e *Execution) Fail(now time.Time, message string) {
	e.Status = ExecutionFailed
	e.ErrorMessage = message
	e.ResumeAt = nil
	e.CompletedAt = &now
}

// Cancel marks the execution cancelled. Cancellation is cooperative: an
// in-flight action is allowed to finish, the engine stops before the next.
func (e *Execution) Cancel(now time.Time) {
	e.Status = ExecutionCancelled
	e.ResumeAt = nil
	e.CompletedAt = &now
}

// Defer parks the execution until resumeAt, continuing at action index next.
func (e *Execution) Defer(resumeAt time.Time, next int) {
	e.Status = ExecutionPending
	e.ResumeAt = &resumeAt
	e.NextActionIndex = next
}

// EvalContext flattens trigger data and runtime variables into the map that
// condition evaluation and template substitution read. Variables shadow
// trigger data on key collision.
func (e *Execution) EvalContext() map[string]any {
	ctx := make(map[string]any, len(e.TriggerData)+len(e.Variables))
	for k, v := range e.TriggerData {
		ctx[k] = v
	}

	for k, v := range e.Variables {
		ctx[k] = v
	}

	return ctx
}

// ActionExecutionStatus is the state of one action within one execution.
type ActionExecutionStatus string

const (
	ActionExecutionPending   ActionExecutionStatus = "pending"
	ActionExecutionRunning   ActionExecutionStatus = "running"
	ActionExecutionCompleted ActionExecutionStatus = "completed"
	ActionExecutionFailed    ActionExecutionStatus = "failed"
)

// ActionExecution records the attempts of one action within one execution.
// It is a child of the execution and never outlives it. AttemptNumber is
// monotonically increasing and capped at Action.MaxRetries+1.
type ActionExecution struct {
	ID            string                `json:"id"`
	ExecutionID   string                `json:"execution_id"`
	ActionID      string                `json:"action_id"`
	Status        ActionExecutionStatus `json:"status"`
	AttemptNumber int                   `json:"attempt_number"`
	RetryCount    int                   `json:"retry_count"`
	Result        any                   `json:"result,omitempty"`
	ErrorMessage  string                `json:"error_message,omitempty"`
	StartedAt     time.Time             `json:"started_at"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
}

// BeginAttempt bumps the attempt counters and marks the record running.
func (ae *ActionExecution) BeginAttempt() {
	ae.AttemptNumber++
	if ae.AttemptNumber > 1 {
		ae.RetryCount = ae.AttemptNumber - 1
	}

	ae.Status = ActionExecutionRunning
}

// Succeed records a successful attempt with its result.
func (ae *ActionExecution) Succeed(now time.Time, result any) {
	ae.Status = ActionExecutionCompleted
	ae.Result = result
	ae.ErrorMessage = ""
	ae.CompletedAt = &now
}

// FailAttempt records a failed attempt without closing the record.
func (ae *ActionExecution) FailAttempt(message string) {
	ae.ErrorMessage = message
}

// FailTerminal closes the record after the attempt budget is exhausted.
func (ae *ActionExecution) FailTerminal(now time.Time, message string) {
	ae.Status = ActionExecutionFailed
	ae.ErrorMessage = message
	ae.CompletedAt = &now
}
