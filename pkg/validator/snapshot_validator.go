package validator

import (
	"fmt"
	"sort"
	"time"

	"github.com/rpattn/rentalvc/internal/domain"
)

// SnapshotValidator checks stored snapshots against the live field set of an
// entity type. It never rejects a snapshot outright; drift is reported so
// callers can decide what to surface.
type SnapshotValidator struct{}

// NewSnapshotValidator creates a new snapshot validator
func NewSnapshotValidator() *SnapshotValidator {
	return &SnapshotValidator{}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e ValidationError) String() string {
	return e.Field + ": " + e.Message
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
}

// Validate compares snap with specs.
//
// Errors are values that cannot be restored into the declared kind. Warnings
// are fields the snapshot lacks or fields the entity no longer declares.
func (sv *SnapshotValidator) Validate(snap domain.Snapshot, specs []domain.FieldSpec) ValidationResult {
	result := ValidationResult{
		IsValid:  true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	declared := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if !spec.Versioned() {
			continue
		}
		declared[spec.Name] = struct{}{}

		value, exists := snap[spec.Name]
		if !exists {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   spec.Name,
				Message: "field missing from snapshot; current value is kept",
			})
			continue
		}
		if value == nil {
			if !spec.Nullable && !spec.PrimaryKey {
				result.IsValid = false
				result.Errors = append(result.Errors, ValidationError{
					Field:   spec.Name,
					Message: "null value for non-nullable field",
				})
			}
			continue
		}
		if err := sv.validateKind(spec.Kind, value); err != nil {
			result.IsValid = false
			result.Errors = append(result.Errors, ValidationError{
				Field:   spec.Name,
				Message: err.Error(),
				Value:   value,
			})
		}
	}

	unknown := make([]string, 0)
	for name := range snap {
		if _, ok := declared[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   name,
			Message: "field no longer declared; value is ignored",
			Value:   snap[name],
		})
	}

	return result
}

func (sv *SnapshotValidator) validateKind(kind domain.FieldKind, value any) error {
	switch kind {
	case domain.FieldKindString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case domain.FieldKindInteger, domain.FieldKindReference:
		switch v := value.(type) {
		case int64, int:
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("expected integer, got %v", v)
			}
		default:
			return fmt.Errorf("expected integer, got %T", value)
		}
	case domain.FieldKindFloat, domain.FieldKindDecimal:
		switch value.(type) {
		case float64, int64, int:
		case string:
			if kind == domain.FieldKindFloat {
				return fmt.Errorf("expected number, got string")
			}
		default:
			return fmt.Errorf("expected number, got %T", value)
		}
	case domain.FieldKindBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case domain.FieldKindTimestamp:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected timestamp string, got %T", value)
		}
		if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
			return fmt.Errorf("invalid timestamp format: %s", s)
		}
	case domain.FieldKindDate:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected date string, got %T", value)
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
				return fmt.Errorf("invalid date format: %s", s)
			}
		}
	default:
		return fmt.Errorf("unknown field kind %q", kind)
	}
	return nil
}
