package validator

import (
	"fmt"
	"strings"

	"github.com/rpattn/rentalvc/internal/domain"
)

// FieldSet is the validated field layout of one entity type.
type FieldSet struct {
	PrimaryKey string
	// References lists REFERENCE fields in declaration order.
	References []string
	Restorable []string
}

// ValidateFields checks the field declarations of a versionable entity type.
// Exactly one primary key is required, names must be unique and every kind must
// be one the snapshot codec understands.
func ValidateFields(fields []domain.FieldSpec) (FieldSet, error) {
	var set FieldSet
	seen := make(map[string]struct{}, len(fields))

	for _, field := range fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return FieldSet{}, fmt.Errorf("field name cannot be empty")
		}
		if name != field.Name {
			return FieldSet{}, fmt.Errorf("field %q has surrounding whitespace", field.Name)
		}
		if _, dup := seen[name]; dup {
			return FieldSet{}, fmt.Errorf("field %s declared twice", name)
		}
		seen[name] = struct{}{}

		if !field.Kind.IsValid() {
			return FieldSet{}, fmt.Errorf("field %s has unknown kind %q", name, field.Kind)
		}

		if field.PrimaryKey {
			if set.PrimaryKey != "" {
				return FieldSet{}, fmt.Errorf("field %s cannot be a second primary key, %s already is", name, set.PrimaryKey)
			}
			if field.Nullable || field.Bookkeeping {
				return FieldSet{}, fmt.Errorf("primary key %s cannot be nullable or bookkeeping", name)
			}
			if field.Kind != domain.FieldKindInteger {
				return FieldSet{}, fmt.Errorf("primary key %s must be an integer, got %s", name, field.Kind)
			}
			set.PrimaryKey = name
			continue
		}

		if field.Kind == domain.FieldKindReference {
			if field.Bookkeeping {
				return FieldSet{}, fmt.Errorf("reference field %s cannot be bookkeeping", name)
			}
			set.References = append(set.References, name)
		}
		if field.Restorable() {
			set.Restorable = append(set.Restorable, name)
		}
	}

	if set.PrimaryKey == "" {
		return FieldSet{}, fmt.Errorf("no primary key declared")
	}
	return set, nil
}
