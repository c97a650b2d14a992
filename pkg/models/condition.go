package models

import (
	"errors"
	"fmt"
)

// Group operators joining child nodes.
const (
	GroupAnd = "and"
	GroupOr  = "or"
)

// Leaf comparison operators.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpContains    = "contains"
	OpNotContains = "not_contains"
	OpIn          = "in"
	OpNotIn       = "not_in"
	OpIsNull      = "is_null"
	OpIsNotNull   = "is_not_null"
)

var ErrInvalidCondition = errors.New("invalid condition tree")

// ConditionNode is one node of a boolean condition tree. A node with
// children is a group joined by Operator (and/or); a node without children
// is a leaf comparing the context field against Value.
type ConditionNode struct {
	Operator string           `json:"operator"`
	Children []*ConditionNode `json:"children,omitempty"`
	Field    string           `json:"field,omitempty"`
	Value    Value            `json:"value,omitempty"`
}

// IsGroup reports whether the node joins child conditions.
func (n *ConditionNode) IsGroup() bool {
	return len(n.Children) > 0 || n.Operator == GroupAnd || n.Operator == GroupOr
}

// Validate checks the tree shape before evaluation. Malformed trees are
// rejected up front and never retried.
func (n *ConditionNode) Validate() error {
	if n == nil {
		return nil
	}

	if n.IsGroup() {
		if n.Operator != GroupAnd && n.Operator != GroupOr {
			return fmt.Errorf("%w: unknown group operator %q", ErrInvalidCondition, n.Operator)
		}

		if len(n.Children) == 0 {
			return fmt.Errorf("%w: group %q has no children", ErrInvalidCondition, n.Operator)
		}

		for _, child := range n.Children {
			if err := child.Validate(); err != nil {
				return err
			}
		}

		return nil
	}

	if n.Field == "" {
		return fmt.Errorf("%w: leaf is missing field", ErrInvalidCondition)
	}

	switch n.Operator {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpContains, OpNotContains, OpIn, OpNotIn, OpIsNull, OpIsNotNull:
		return nil
	default:
		return fmt.Errorf("%w: unknown leaf operator %q", ErrInvalidCondition, n.Operator)
	}
}
