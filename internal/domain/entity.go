package domain

// FieldKind describes how a field value is normalised into a snapshot.
type FieldKind string

const (
	FieldKindString    FieldKind = "string"
	FieldKindInteger   FieldKind = "integer"
	FieldKindFloat     FieldKind = "float"
	FieldKindBoolean   FieldKind = "boolean"
	FieldKindDecimal   FieldKind = "decimal"
	FieldKindTimestamp FieldKind = "timestamp"
	FieldKindDate      FieldKind = "date"
	FieldKindReference FieldKind = "reference"
)

// IsValid reports whether the kind is one the snapshot codec understands.
func (k FieldKind) IsValid() bool {
	switch k {
	case FieldKindString, FieldKindInteger, FieldKindFloat, FieldKindBoolean,
		FieldKindDecimal, FieldKindTimestamp, FieldKindDate, FieldKindReference:
		return true
	default:
		return false
	}
}

// FieldSpec declares one persisted column of a versionable entity.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Nullable bool
	// PrimaryKey marks the identifier column. It is snapshotted but never restored.
	PrimaryKey bool
	// Bookkeeping marks server-managed columns (created_at, updated_at). They are never snapshotted.
	Bookkeeping bool
}

// Versioned reports whether the field belongs in a snapshot.
func (f FieldSpec) Versioned() bool {
	return !f.Bookkeeping
}

// Restorable reports whether rollback may write the field back.
func (f FieldSpec) Restorable() bool {
	return !f.Bookkeeping && !f.PrimaryKey
}

// Entity is a primary-table row of a versionable type.
//
// Implementations expose their columns through FieldSpecs and the typed
// accessors below instead of reflection. Values use the Go type matching the
// field kind: string, int64, float64, bool, decimal.Decimal, time.Time, or
// int64 for references. A nil value means SQL NULL.
type Entity interface {
	EntityType() string
	EntityID() int64
	FieldSpecs() []FieldSpec
	FieldValue(name string) (any, bool)
	SetFieldValue(name string, value any) error
}

// FieldSpecByName finds the named field in specs.
func FieldSpecByName(specs []FieldSpec, name string) (FieldSpec, bool) {
	for _, spec := range specs {
		if spec.Name == name {
			return spec, true
		}
	}
	return FieldSpec{}, false
}
