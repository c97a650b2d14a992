package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind discriminates the dynamic parameter value union.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is a tagged union for action and rule parameters. Configuration
// arrives as already-parsed JSON; keeping the kind explicit gives the
// execution dispatch compile-time exhaustiveness instead of type switches
// over interface{} scattered through the handlers.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []Value
	Map  map[string]Value
}

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }

func ListValue(items ...Value) Value {
	return Value{Kind: KindList, List: items}
}

func MapValue(m map[string]Value) Value {
	return Value{Kind: KindMap, Map: m}
}

// ValueOf converts an arbitrary decoded JSON value into a tagged Value.
// Unsupported types degrade to their string representation.
func ValueOf(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case Value:
		return t
	case string:
		return StringValue(t)
	case bool:
		return BoolValue(t)
	case float64:
		return NumberValue(t)
	case float32:
		return NumberValue(float64(t))
	case int:
		return NumberValue(float64(t))
	case int64:
		return NumberValue(float64(t))
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, ValueOf(item))
		}

		return Value{Kind: KindList, List: items}
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = ValueOf(item)
		}

		return Value{Kind: KindMap, Map: m}
	default:
		return StringValue(fmt.Sprintf("%v", t))
	}
}

// Any returns the plain Go representation, suitable for JSON encoding
// and schema validation.
func (v Value) Any() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindList:
		items := make([]any, 0, len(v.List))
		for _, item := range v.List {
			items = append(items, item.Any())
		}

		return items
	case KindMap:
		m := make(map[string]any, len(v.Map))
		for k, item := range v.Map {
			m[k] = item.Any()
		}

		return m
	default:
		return nil
	}
}

// Text renders the value the way it should appear after template
// substitution into a string parameter.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNull:
		return ""
	default:
		b, err := json.Marshal(v.Any())
		if err != nil {
			return ""
		}

		return string(b)
	}
}

func (v Value) IsNull() bool { return v.Kind == KindNull }

// MarshalJSON encodes the underlying value, not the union wrapper.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes any JSON value into the union.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*v = ValueOf(raw)

	return nil
}

// Params is the opaque configuration map attached to actions and messages.
type Params map[string]Value

// ParamsOf converts a plain map into tagged params.
func ParamsOf(m map[string]any) Params {
	params := make(Params, len(m))
	for k, v := range m {
		params[k] = ValueOf(v)
	}

	return params
}

// Any returns the plain representation of the whole map.
func (p Params) Any() map[string]any {
	m := make(map[string]any, len(p))
	for k, v := range p {
		m[k] = v.Any()
	}

	return m
}

// String returns the string value for key, or def when absent or not a string.
func (p Params) String(key, def string) string {
	v, ok := p[key]
	if !ok || v.Kind != KindString {
		return def
	}

	return v.Str
}

// Number returns the numeric value for key, or def when absent or not a number.
func (p Params) Number(key string, def float64) float64 {
	v, ok := p[key]
	if !ok || v.Kind != KindNumber {
		return def
	}

	return v.Num
}

// BoolOr returns the boolean value for key, or def when absent or not a bool.
func (p Params) BoolOr(key string, def bool) bool {
	v, ok := p[key]
	if !ok || v.Kind != KindBool {
		return def
	}

	return v.Bool
}
