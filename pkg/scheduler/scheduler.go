// Package scheduler runs the single background polling loop that fires due
// workflows, resumes deferred executions, dispatches due scheduled messages
// and retries due deliveries. Firing precision is bounded by the poll
// interval, an explicit latency trade-off for minutes-scale business events.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pulseops/automation/pkg/condition"
	"github.com/pulseops/automation/pkg/dispatch"
	"github.com/pulseops/automation/pkg/engine"
	"github.com/pulseops/automation/pkg/models"
	"github.com/pulseops/automation/pkg/persistence"
)

// DefaultInterval is the poll interval between ticks.
const DefaultInterval = time.Minute

type Scheduler struct {
	persistence persistence.Persistence
	engine      *engine.Engine
	dispatcher  *dispatch.Dispatcher
	clock       clock.Clock
	interval    time.Duration
	logger      *slog.Logger

	ticker  *clock.Ticker
	done    chan struct{}
	started bool
	mu      sync.Mutex
}

func NewScheduler(
	store persistence.Persistence,
	eng *engine.Engine,
	dispatcher *dispatch.Dispatcher,
	clk clock.Clock,
	interval time.Duration,
	logger *slog.Logger,
) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}

	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Scheduler{
		persistence: store,
		engine:      eng,
		dispatcher:  dispatcher,
		clock:       clk,
		interval:    interval,
		logger:      logger.With("module", "task_scheduler"),
	}
}

// Start begins the polling loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.InfoContext(ctx, "Starting task scheduler", "interval", s.interval)

	s.ticker = s.clock.Ticker(s.interval)
	s.done = make(chan struct{})
	s.started = true

	go s.poll(ctx)

	return nil
}

// Stop gracefully shuts down the polling loop.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.InfoContext(ctx, "Stopping task scheduler")
	s.ticker.Stop()
	close(s.done)
	s.started = false

	return nil
}

func (s *Scheduler) poll(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass. Each phase is isolated: an engine fault
// aborts that phase and is logged, the scheduler proceeds rather than
// halting permanently.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now().UTC()

	if err := s.resumeDueExecutions(ctx, now); err != nil {
		s.logger.ErrorContext(ctx, "Continuation pass aborted", "error", err)
	}

	if err := s.fireDueWorkflows(ctx, now); err != nil {
		s.logger.ErrorContext(ctx, "Workflow pass aborted", "error", err)
	}

	if err := s.dispatchDueMessages(ctx, now); err != nil {
		s.logger.ErrorContext(ctx, "Message pass aborted", "error", err)
	}

	if err := s.dispatcher.RetryDue(ctx, now); err != nil {
		s.logger.ErrorContext(ctx, "Delivery retry pass aborted", "error", err)
	}
}

// resumeDueExecutions continues executions deferred by wait actions and
// retry backoffs.
func (s *Scheduler) resumeDueExecutions(ctx context.Context, now time.Time) error {
	due, err := s.persistence.DueExecutions(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to fetch due executions: %w", err)
	}

	for _, execution := range due {
		if _, err := s.engine.Continue(ctx, execution.ID); err != nil {
			s.logger.ErrorContext(ctx, "Failed to continue execution",
				"execution_id", execution.ID, "error", err)
		}
	}

	return nil
}

func (s *Scheduler) fireDueWorkflows(ctx context.Context, now time.Time) error {
	due, err := s.persistence.DueWorkflows(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to fetch due workflows: %w", err)
	}

	for _, workflow := range due {
		s.fireWorkflow(ctx, workflow, now)
	}

	return nil
}

// fireWorkflow fires one due workflow and recomputes its next execution
// time from the recurrence pattern. A failure in one workflow's firing
// never aborts sibling firings.
func (s *Scheduler) fireWorkflow(ctx context.Context, workflow *models.Workflow, now time.Time) {
	logger := s.logger.With("workflow_id", workflow.ID, "recurrence", workflow.Recurrence)

	triggerData := map[string]any{
		"source":       "scheduler",
		"workflow_id":  workflow.ID,
		"scheduled_at": now.Format(time.RFC3339),
	}

	matched, err := condition.Evaluate(workflow.TriggerCondition, triggerData)
	if err != nil {
		logger.ErrorContext(ctx, "Trigger condition rejected", "error", err)

		matched = false
	}

	if matched {
		if _, err := s.engine.Fire(ctx, workflow.ID, triggerData); err != nil {
			if errors.Is(err, engine.ErrWorkflowNotFireable) {
				logger.DebugContext(ctx, "Workflow no longer fireable", "error", err)
			} else {
				logger.ErrorContext(ctx, "Failed to fire workflow", "error", err)
			}
		}
	} else {
		logger.InfoContext(ctx, "Trigger condition not met, skipping fire")
	}

	// Re-read before updating scheduling fields; the engine bumped the
	// execution bookkeeping during the fire.
	stored, err := s.persistence.WorkflowByID(ctx, workflow.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to refresh workflow", "error", err)

		return
	}

	next, err := stored.Recurrence.NextAfter(now)
	if err != nil {
		logger.ErrorContext(ctx, "Invalid recurrence pattern", "error", err)

		return
	}

	if next == nil {
		// A one-shot schedule deactivates after its firing.
		stored.Status = models.WorkflowStatusCompleted
		stored.NextExecution = nil
	} else if stored.MaxExecutions > 0 && stored.ExecutionCount >= stored.MaxExecutions {
		stored.Status = models.WorkflowStatusCompleted
		stored.NextExecution = nil
	} else {
		stored.NextExecution = next
	}

	stored.UpdatedAt = now

	if err := s.persistence.SaveWorkflow(ctx, stored); err != nil {
		logger.ErrorContext(ctx, "Failed to persist workflow schedule", "error", err)

		return
	}

	logger.InfoContext(ctx, "Workflow schedule updated", "next_execution", stored.NextExecution)
}

func (s *Scheduler) dispatchDueMessages(ctx context.Context, now time.Time) error {
	due, err := s.persistence.DueMessages(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to fetch due messages: %w", err)
	}

	for _, message := range due {
		s.dispatchMessage(ctx, message, now)
	}

	return nil
}

// dispatchMessage sends one due message and recomputes its next send time.
// A failure for one message never aborts sibling messages.
func (s *Scheduler) dispatchMessage(ctx context.Context, message *models.ScheduledMessage, now time.Time) {
	logger := s.logger.With("message_id", message.ID, "schedule_type", message.ScheduleType)

	if message.Expired(now) {
		message.Status = models.MessageExpired
		message.NextSend = nil
		message.UpdatedAt = now

		if err := s.persistence.SaveMessage(ctx, message); err != nil {
			logger.ErrorContext(ctx, "Failed to persist expired message", "error", err)
		}

		logger.InfoContext(ctx, "Message expired")

		return
	}

	if message.ScheduleType == models.ScheduleConditional {
		matched, err := condition.Evaluate(message.Condition, message.Variables)
		if err != nil {
			logger.ErrorContext(ctx, "Message condition rejected", "error", err)

			return
		}

		if !matched {
			// Re-evaluated on the next tick; the send time stays due.
			logger.InfoContext(ctx, "Message condition not met, holding")

			return
		}
	}

	if _, err := s.dispatcher.Dispatch(ctx, message); err != nil {
		logger.ErrorContext(ctx, "Failed to dispatch message", "error", err)

		return
	}

	if err := message.RecordSend(now); err != nil {
		logger.ErrorContext(ctx, "Failed to compute next send", "error", err)

		return
	}

	if err := s.persistence.SaveMessage(ctx, message); err != nil {
		logger.ErrorContext(ctx, "Failed to persist message schedule", "error", err)

		return
	}

	logger.InfoContext(ctx, "Message dispatched",
		"sent_count", message.SentCount, "next_send", message.NextSend, "status", message.Status)
}
