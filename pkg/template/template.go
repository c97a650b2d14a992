// Package template substitutes {key} tokens in action parameters and
// message content from the execution context.
package template

import (
	"strings"

	"github.com/pulseops/automation/pkg/models"
)

// Substitute replaces every {key} token in input with the context value for
// key. Unresolved tokens are left verbatim; substitution never fails.
func Substitute(input string, context map[string]any) string {
	if !strings.Contains(input, "{") {
		return input
	}

	var out strings.Builder

	out.Grow(len(input))

	for {
		open := strings.IndexByte(input, '{')
		if open < 0 {
			out.WriteString(input)

			break
		}

		closing := strings.IndexByte(input[open:], '}')
		if closing < 0 {
			out.WriteString(input)

			break
		}

		closing += open
		key := input[open+1 : closing]

		out.WriteString(input[:open])

		if value, ok := context[key]; ok && key != "" {
			out.WriteString(models.ValueOf(value).Text())
		} else {
			out.WriteString(input[open : closing+1])
		}

		input = input[closing+1:]
	}

	return out.String()
}

// SubstituteParams applies Substitute to every string-valued parameter,
// recursing into lists and maps. Non-string values pass through untouched.
func SubstituteParams(params models.Params, context map[string]any) models.Params {
	out := make(models.Params, len(params))
	for k, v := range params {
		out[k] = substituteValue(v, context)
	}

	return out
}

func substituteValue(v models.Value, context map[string]any) models.Value {
	switch v.Kind {
	case models.KindString:
		return models.StringValue(Substitute(v.Str, context))
	case models.KindList:
		items := make([]models.Value, 0, len(v.List))
		for _, item := range v.List {
			items = append(items, substituteValue(item, context))
		}

		return models.Value{Kind: models.KindList, List: items}
	case models.KindMap:
		m := make(map[string]models.Value, len(v.Map))
		for k, item := range v.Map {
			m[k] = substituteValue(item, context)
		}

		return models.Value{Kind: models.KindMap, Map: m}
	default:
		return v
	}
}
