package rental

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func asString(field string, value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("%s: expected string, got %T", field, value)
}

func asInt64(field string, value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	}
	return 0, fmt.Errorf("%s: expected integer, got %T", field, value)
}

func asDecimal(field string, value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	}
	return decimal.Zero, fmt.Errorf("%s: expected decimal, got %T", field, value)
}

func asTime(field string, value any) (time.Time, error) {
	if t, ok := value.(time.Time); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%s: expected time, got %T", field, value)
}

func asOptionalTime(field string, value any) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	t, err := asTime(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// dateOnly truncates t to its calendar date in UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func errUnknownField(entityType, field string) error {
	return fmt.Errorf("%s has no field %q", entityType, field)
}

func errReadOnlyField(entityType, field string) error {
	return fmt.Errorf("%s field %q is read-only", entityType, field)
}
