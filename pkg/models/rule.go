package models

import "time"

// Rule is a standalone condition tree bound to a target workflow. Evaluating
// a rule never mutates workflow state directly; on match it only requests a
// fire from the engine.
type Rule struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"      validate:"required"`
	Condition      *ConditionNode `json:"condition" validate:"required"`
	WorkflowID     string         `json:"workflow_id,omitempty"` // target; empty means evaluate-only
	Priority       int            `json:"priority"`
	Active         bool           `json:"active"`
	ValidFrom      *time.Time     `json:"valid_from,omitempty"`
	ValidUntil     *time.Time     `json:"valid_until,omitempty"`
	ExecutionCount int            `json:"execution_count"`
	ExecutionLimit int            `json:"execution_limit"` // 0 means unlimited
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Effective reports whether the rule may be evaluated at the given time.
func (r *Rule) Effective(now time.Time) bool {
	if !r.Active {
		return false
	}

	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return false
	}

	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return false
	}

	if r.ExecutionLimit > 0 && r.ExecutionCount >= r.ExecutionLimit {
		return false
	}

	return true
}
