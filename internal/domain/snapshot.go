package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Snapshot maps field names to normalised values.
//
// A normalised value is one of string, int64, float64, bool or nil.
// Timestamps are ISO-8601 strings and references hold the referenced primary key.
type Snapshot map[string]any

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	out := make(Snapshot, len(s))
	for key, value := range s {
		out[key] = value
	}
	return out
}

// Keys returns the field names in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both snapshots hold the same fields with equal values.
// Field order never matters.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for key, value := range s {
		otherValue, ok := other[key]
		if !ok || !ValuesEqual(value, otherValue) {
			return false
		}
	}
	return true
}

// ValueDiff holds the two sides of a differing field between versions.
type ValueDiff struct {
	A any `json:"a"`
	B any `json:"b"`
}

// FieldChange holds stringified before/after values of a mutated field.
type FieldChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// CompareSnapshots returns the fields whose values differ between a and b.
// A field missing on one side compares as nil.
func CompareSnapshots(a, b Snapshot) map[string]ValueDiff {
	diff := map[string]ValueDiff{}
	for key, valueA := range a {
		valueB := b[key]
		if !ValuesEqual(valueA, valueB) {
			diff[key] = ValueDiff{A: valueA, B: valueB}
		}
	}
	for key, valueB := range b {
		if _, seen := a[key]; seen {
			continue
		}
		if valueB != nil {
			diff[key] = ValueDiff{A: nil, B: valueB}
		}
	}
	return diff
}

// ChangesBetween stringifies the differing fields of two snapshots.
func ChangesBetween(before, after Snapshot) map[string]FieldChange {
	changes := map[string]FieldChange{}
	for key, diff := range CompareSnapshots(before, after) {
		changes[key] = FieldChange{Old: FormatValue(diff.A), New: FormatValue(diff.B)}
	}
	return changes
}

// ValuesEqual compares normalised values, treating numeric types by value.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	intA, okA := integer(a)
	intB, okB := integer(b)
	if okA && okB {
		return intA == intB
	}
	numA, okA := numeric(a)
	numB, okB := numeric(b)
	if okA || okB {
		return okA && okB && numA == numB
	}
	return a == b
}

// integer reports integral values exactly; float64 loses precision above 2^53.
func integer(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// FormatValue renders a normalised value for display. Nil renders as "null".
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
