// Package snapshot converts entity field state to and from the normalised
// representation stored in the version table.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rpattn/rentalvc/internal/domain"
)

// FormatVersion tags every stored snapshot so later layout changes can be detected.
const FormatVersion = 1

// DateLayout is the ISO-8601 calendar date layout used for date fields.
const DateLayout = "2006-01-02"

// ErrUnsupportedFormat is returned when a stored snapshot carries a format tag this build cannot read.
var ErrUnsupportedFormat = errors.New("unsupported snapshot format")

// SkippedField records a snapshot field that could not be restored.
type SkippedField struct {
	Name   string
	Reason string
}

func (s SkippedField) String() string {
	return s.Name + ": " + s.Reason
}

// Serialize captures the entity's versioned fields. Bookkeeping fields are omitted.
// The result is deterministic for a given entity state.
func Serialize(entity domain.Entity) (domain.Snapshot, error) {
	if entity == nil {
		return nil, errors.New("cannot serialize nil entity")
	}
	out := domain.Snapshot{}
	for _, spec := range entity.FieldSpecs() {
		if !spec.Versioned() {
			continue
		}
		raw, ok := entity.FieldValue(spec.Name)
		if !ok {
			return nil, fmt.Errorf("entity %s does not expose declared field %q", entity.EntityType(), spec.Name)
		}
		value, err := Normalize(spec, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize %s.%s: %w", entity.EntityType(), spec.Name, err)
		}
		out[spec.Name] = value
	}
	return out, nil
}

// Normalize converts a live field value into its snapshot form.
func Normalize(spec domain.FieldSpec, value any) (any, error) {
	if isNil(value) {
		return nil, nil
	}
	switch spec.Kind {
	case domain.FieldKindString:
		switch v := value.(type) {
		case string:
			return v, nil
		case *string:
			return *v, nil
		}
	case domain.FieldKindInteger, domain.FieldKindReference:
		if n, ok := toInt64(value); ok {
			return n, nil
		}
	case domain.FieldKindFloat:
		if f, ok := toFloat64(value); ok {
			return f, nil
		}
	case domain.FieldKindBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case *bool:
			return *v, nil
		}
	case domain.FieldKindDecimal:
		switch v := value.(type) {
		case decimal.Decimal:
			return v.InexactFloat64(), nil
		case *decimal.Decimal:
			return v.InexactFloat64(), nil
		case decimal.NullDecimal:
			if !v.Valid {
				return nil, nil
			}
			return v.Decimal.InexactFloat64(), nil
		}
		if f, ok := toFloat64(value); ok {
			return f, nil
		}
	case domain.FieldKindTimestamp:
		switch v := value.(type) {
		case time.Time:
			return v.UTC().Format(time.RFC3339Nano), nil
		case *time.Time:
			return v.UTC().Format(time.RFC3339Nano), nil
		}
	case domain.FieldKindDate:
		switch v := value.(type) {
		case time.Time:
			return v.Format(DateLayout), nil
		case *time.Time:
			return v.Format(DateLayout), nil
		}
	default:
		return nil, fmt.Errorf("unknown field kind %q", spec.Kind)
	}
	return nil, fmt.Errorf("unsupported %s value of type %T", spec.Kind, value)
}

// Deserialize maps snapshot values back to typed field values for specs.
//
// Fields unknown to specs are ignored. Fields missing from the snapshot are
// left out so the target keeps its default. A field whose value cannot be
// converted is skipped and reported; the remaining fields still convert.
func Deserialize(snap domain.Snapshot, specs []domain.FieldSpec) (map[string]any, []SkippedField) {
	values := map[string]any{}
	var skipped []SkippedField
	for _, spec := range specs {
		if !spec.Versioned() {
			continue
		}
		raw, ok := snap[spec.Name]
		if !ok {
			continue
		}
		value, err := Denormalize(spec, raw)
		if err != nil {
			skipped = append(skipped, SkippedField{Name: spec.Name, Reason: err.Error()})
			continue
		}
		values[spec.Name] = value
	}
	return values, skipped
}

// Denormalize converts one snapshot value into the Go type of the field kind.
func Denormalize(spec domain.FieldSpec, raw any) (any, error) {
	if raw == nil {
		if !spec.Nullable && !spec.PrimaryKey {
			return nil, errors.New("null for non-nullable field")
		}
		return nil, nil
	}
	switch spec.Kind {
	case domain.FieldKindString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	case domain.FieldKindInteger, domain.FieldKindReference:
		if n, ok := toInt64(raw); ok {
			return n, nil
		}
	case domain.FieldKindFloat:
		if f, ok := toFloat64(raw); ok {
			return f, nil
		}
	case domain.FieldKindBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case domain.FieldKindDecimal:
		switch v := raw.(type) {
		case string:
			return decimal.NewFromString(v)
		case json.Number:
			return decimal.NewFromString(v.String())
		}
		if f, ok := toFloat64(raw); ok {
			return decimal.NewFromFloat(f), nil
		}
	case domain.FieldKindTimestamp:
		if s, ok := raw.(string); ok {
			return parseTimestamp(s)
		}
	case domain.FieldKindDate:
		if s, ok := raw.(string); ok {
			if t, err := time.Parse(DateLayout, s); err == nil {
				return t, nil
			}
			return parseTimestamp(s)
		}
	default:
		return nil, fmt.Errorf("unknown field kind %q", spec.Kind)
	}
	return nil, fmt.Errorf("cannot read %T as %s", raw, spec.Kind)
}

// Apply writes the snapshot's restorable fields onto entity. The primary key
// and bookkeeping fields are never touched. Fields the entity refuses are
// skipped and reported alongside conversion failures.
func Apply(entity domain.Entity, snap domain.Snapshot) []SkippedField {
	specs := entity.FieldSpecs()
	restorable := make([]domain.FieldSpec, 0, len(specs))
	for _, spec := range specs {
		if spec.Restorable() {
			restorable = append(restorable, spec)
		}
	}
	values, skipped := Deserialize(snap, restorable)
	for _, spec := range restorable {
		value, ok := values[spec.Name]
		if !ok {
			continue
		}
		if err := entity.SetFieldValue(spec.Name, value); err != nil {
			skipped = append(skipped, SkippedField{Name: spec.Name, Reason: err.Error()})
		}
	}
	return skipped
}

// Encode renders a snapshot for storage. Keys are emitted in sorted order.
func Encode(snap domain.Snapshot) ([]byte, error) {
	if snap == nil {
		snap = domain.Snapshot{}
	}
	encoded, err := json.Marshal(map[string]any(snap))
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return encoded, nil
}

// Decode parses a stored snapshot written with the given format tag.
// Format 0 marks rows written before tagging and is read like format 1.
func Decode(data []byte, format int) (domain.Snapshot, error) {
	if format < 0 || format > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, format)
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	out := make(domain.Snapshot, len(raw))
	for key, value := range raw {
		normalized, err := normalizeDecoded(value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode snapshot field %q: %w", key, err)
		}
		out[key] = normalized
	}
	return out, nil
}

func normalizeDecoded(value any) (any, error) {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	case string, bool, nil:
		return v, nil
	default:
		// Nested structures are never produced by Serialize.
		return nil, fmt.Errorf("unexpected nested value of type %T", value)
	}
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case *int64:
		return *v, true
	case float64:
		if v == math.Trunc(v) {
			return int64(v), true
		}
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case *float64:
		return *v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func isNil(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case *string:
		return v == nil
	case *int64:
		return v == nil
	case *float64:
		return v == nil
	case *bool:
		return v == nil
	case *time.Time:
		return v == nil
	case *decimal.Decimal:
		return v == nil
	}
	return false
}
