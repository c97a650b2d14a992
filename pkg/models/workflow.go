// Package models defines the core domain models for trigger-driven workflow automation.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerType says what causes a workflow to fire.
type TriggerType string

const (
	TriggerTime        TriggerType = "time"
	TriggerEvent       TriggerType = "event"
	TriggerCondition   TriggerType = "condition"
	TriggerUserAction  TriggerType = "user_action"
	TriggerSystemEvent TriggerType = "system_event"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"
	WorkflowStatusActive    WorkflowStatus = "active"
	WorkflowStatusPaused    WorkflowStatus = "paused"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
)

// RecurrencePattern describes when a time-triggered workflow or recurring
// message fires again. Fixed interval patterns add the interval to the
// current tick time; "cron:<expr>" patterns use a standard 5-field cron
// expression. All computation is in UTC.
type RecurrencePattern string

const (
	RecurrenceOnce    RecurrencePattern = "once"
	RecurrenceHourly  RecurrencePattern = "hourly"
	RecurrenceDaily   RecurrencePattern = "daily"
	RecurrenceWeekly  RecurrencePattern = "weekly"
	RecurrenceMonthly RecurrencePattern = "monthly"

	cronPrefix = "cron:"
)

var ErrInvalidRecurrence = errors.New("invalid recurrence pattern")

// NextAfter computes the next fire time strictly after now. A nil result
// means the pattern does not recur ("once").
func (p RecurrencePattern) NextAfter(now time.Time) (*time.Time, error) {
	now = now.UTC()

	var next time.Time

	switch p {
	case RecurrenceOnce:
		return nil, nil
	case RecurrenceHourly:
		next = now.Add(time.Hour)
	case RecurrenceDaily:
		next = now.Add(24 * time.Hour)
	case RecurrenceWeekly:
		next = now.Add(7 * 24 * time.Hour)
	case RecurrenceMonthly:
		next = now.AddDate(0, 1, 0)
	default:
		expr, ok := strings.CutPrefix(string(p), cronPrefix)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRecurrence, p)
		}

		schedule, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidRecurrence, p, err)
		}

		next = schedule.Next(now)
	}

	return &next, nil
}

// Validate checks the pattern without computing a time.
func (p RecurrencePattern) Validate() error {
	if p == "" {
		return nil
	}

	_, err := p.NextAfter(time.Now())

	return err
}

// Workflow is a named, triggerable unit composed of an ordered list of
// actions. Scheduling fields (ExecutionCount, LastExecution, NextExecution)
// are mutated only by the engine and the scheduler.
type Workflow struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"        validate:"required,min=3"`
	Description      string            `json:"description"`
	Status           WorkflowStatus    `json:"status"      validate:"required"`
	TriggerType      TriggerType       `json:"trigger_type" validate:"required"`
	TriggerCondition *ConditionNode    `json:"trigger_condition,omitempty"`
	Recurrence       RecurrencePattern `json:"recurrence,omitempty"`
	Priority         int               `json:"priority"`
	MaxExecutions    int               `json:"max_executions"` // 0 means unlimited
	ExecutionCount   int               `json:"execution_count"`
	LastExecution    *time.Time        `json:"last_execution,omitempty"`
	NextExecution    *time.Time        `json:"next_execution,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// CanFire reports whether a firing may create a new execution.
func (w *Workflow) CanFire() bool {
	if w.Status != WorkflowStatusActive {
		return false
	}

	if w.MaxExecutions > 0 && w.ExecutionCount >= w.MaxExecutions {
		return false
	}

	return true
}

// Scheduled reports whether the scheduler owns this workflow's firings.
func (w *Workflow) Scheduled() bool {
	return w.TriggerType == TriggerTime && w.Recurrence != ""
}

// RecordExecution updates the bookkeeping after a completed execution.
func (w *Workflow) RecordExecution(now time.Time) {
	w.ExecutionCount++
	w.LastExecution = &now
	w.UpdatedAt = now
}
