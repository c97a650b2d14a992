package protocol

import (
	"errors"
	"fmt"
)

// FailureKind classifies a failure so retry policy can dispatch on the
// declared kind instead of inspecting messages.
type FailureKind string

const (
	// FailureValidation marks malformed input rejected before execution.
	// Never retried.
	FailureValidation FailureKind = "validation"

	// FailureTransient marks an external hiccup worth retrying within the
	// entity's configured attempt budget.
	FailureTransient FailureKind = "transient"

	// FailureTerminal marks an exhausted or unrecoverable failure. Recorded
	// and surfaced, never retried.
	FailureTerminal FailureKind = "terminal"

	// FailureFault marks an unexpected internal error. The current tick or
	// dispatch is aborted; the scheduler proceeds to the next tick.
	FailureFault FailureKind = "fault"
)

// Failure is the typed error crossing every executor boundary. Handlers
// never panic or throw across it; faults are converted into a Failure
// carrying a human-readable message.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}

	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func Validation(message string, err error) *Failure {
	return &Failure{Kind: FailureValidation, Message: message, Err: err}
}

func Transient(message string, err error) *Failure {
	return &Failure{Kind: FailureTransient, Message: message, Err: err}
}

func Terminal(message string, err error) *Failure {
	return &Failure{Kind: FailureTerminal, Message: message, Err: err}
}

func Fault(message string, err error) *Failure {
	return &Failure{Kind: FailureFault, Message: message, Err: err}
}

// KindOf extracts the failure kind; untyped errors count as terminal.
func KindOf(err error) FailureKind {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}

	return FailureTerminal
}

// Retryable reports whether the caller's retry budget applies to err.
func Retryable(err error) bool {
	return KindOf(err) == FailureTransient
}
