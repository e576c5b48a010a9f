package triggers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Evaluate reports whether every condition of def holds for entity. An
// empty condition list always matches. Malformed comparisons evaluate to
// false rather than failing.
func Evaluate(def *Definition, entity map[string]any) bool {
	for _, c := range def.Conditions {
		if !evaluateCondition(c, entity) {
			return false
		}
	}
	return true
}

func evaluateCondition(c Condition, entity map[string]any) bool {
	field, present := entity[c.Field]

	switch c.Operator {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	case OpEquals:
		return present && equalCoerced(field, c.Value)
	case OpNotEquals:
		return !present || !equalCoerced(field, c.Value)
	case OpGreaterThan, OpLessThan:
		if !present {
			return false
		}
		// Ordering coerces numeric strings on both sides.
		a, ok := coerceNumber(field)
		if !ok {
			return false
		}
		b, ok := coerceNumber(c.Value)
		if !ok {
			return false
		}
		if c.Operator == OpGreaterThan {
			return a > b
		}
		return a < b
	default:
		return false
	}
}

// equalCoerced compares want against stored after converting want to the
// stored value's type.
func equalCoerced(stored, want any) bool {
	if stored == nil || want == nil {
		return stored == nil && want == nil
	}

	if a, ok := toNumber(stored); ok {
		b, ok := coerceNumber(want)
		return ok && a == b
	}

	switch s := stored.(type) {
	case bool:
		b, ok := coerceBool(want)
		return ok && s == b
	case string:
		return s == coerceString(want)
	}

	return structuralEqual(stored, want)
}

func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func coerceNumber(v any) (float64, bool) {
	if f, ok := toNumber(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func coerceBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	if f, ok := toNumber(v); ok {
		return f != 0, true
	}
	return false, false
}

func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	if f, ok := toNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// structuralEqual compares composite values by their JSON encoding, so a
// []string and an equivalent []any compare equal.
func structuralEqual(a, b any) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
