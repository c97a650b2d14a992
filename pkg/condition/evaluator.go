// Package condition evaluates boolean condition trees against a runtime
// context. Evaluation is pure: no side effects, no I/O, deterministic for
// identical inputs.
package condition

import (
	"fmt"
	"strings"

	"github.com/pulseops/automation/pkg/models"
)

// Evaluate walks the tree and returns its boolean outcome. A nil tree is
// vacuously true. Group evaluation short-circuits: "and" stops at the first
// false child, "or" at the first true one. A malformed tree is the only
// error case.
func Evaluate(node *models.ConditionNode, context map[string]any) (bool, error) {
	if node == nil {
		return true, nil
	}

	if err := node.Validate(); err != nil {
		return false, err
	}

	return evaluate(node, context), nil
}

func evaluate(node *models.ConditionNode, context map[string]any) bool {
	if node.IsGroup() {
		return evaluateGroup(node, context)
	}

	return evaluateLeaf(node, context)
}

func evaluateGroup(node *models.ConditionNode, context map[string]any) bool {
	if node.Operator == models.GroupAnd {
		for _, child := range node.Children {
			if !evaluate(child, context) {
				return false
			}
		}

		return true
	}

	for _, child := range node.Children {
		if evaluate(child, context) {
			return true
		}
	}

	return false
}

// evaluateLeaf resolves the field from the context (missing means null) and
// applies the operator. Null checks short-circuit type questions entirely;
// for the comparison operators a type mismatch evaluates to false rather
// than failing the whole tree.
func evaluateLeaf(node *models.ConditionNode, context map[string]any) bool {
	actual, present := context[node.Field]
	if !present {
		actual = nil
	}

	expected := node.Value.Any()

	switch node.Operator {
	case models.OpIsNull:
		return actual == nil
	case models.OpIsNotNull:
		return actual != nil
	case models.OpEquals:
		return equal(actual, expected)
	case models.OpNotEquals:
		return !equal(actual, expected)
	case models.OpGreaterThan:
		return compareNumbers(actual, expected, func(a, b float64) bool { return a > b })
	case models.OpLessThan:
		return compareNumbers(actual, expected, func(a, b float64) bool { return a < b })
	case models.OpContains:
		return contains(actual, expected)
	case models.OpNotContains:
		return !contains(actual, expected)
	case models.OpIn:
		return member(actual, expected)
	case models.OpNotIn:
		return !member(actual, expected)
	default:
		return false
	}
}

func equal(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	if a, ok := toNumber(actual); ok {
		if b, ok := toNumber(expected); ok {
			return a == b
		}

		return false
	}

	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

func compareNumbers(actual, expected any, cmp func(a, b float64) bool) bool {
	a, okA := toNumber(actual)
	b, okB := toNumber(expected)

	if !okA || !okB {
		return false
	}

	return cmp(a, b)
}

// contains matches substrings for strings and membership for lists.
func contains(actual, expected any) bool {
	switch haystack := actual.(type) {
	case string:
		needle, ok := expected.(string)
		if !ok {
			return false
		}

		return strings.Contains(haystack, needle)
	case []any:
		for _, item := range haystack {
			if equal(item, expected) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// member checks whether the context value appears in the expected list.
func member(actual, expected any) bool {
	list, ok := expected.([]any)
	if !ok {
		return false
	}

	for _, item := range list {
		if equal(actual, item) {
			return true
		}
	}

	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
