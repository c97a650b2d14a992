// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrActionNotFound    = errors.New("action not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrRuleNotFound      = errors.New("rule not found")
	ErrMessageNotFound   = errors.New("scheduled message not found")
	ErrDeliveryNotFound  = errors.New("message delivery not found")
)

// EntityError wraps persistence errors with operation context.
type EntityError struct {
	Op     string // Operation being performed (e.g., "WorkflowByID", "SaveDelivery")
	Entity string // Entity kind
	ID     string // Entity ID if applicable
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Entity, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a wrapped persistence error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound checks whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrActionNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrMessageNotFound) ||
		errors.Is(err, ErrDeliveryNotFound)
}
