package rental

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/snapshot"
	"github.com/rpattn/rentalvc/internal/versioning"
)

// ErrInvalidFields marks caller-supplied field values that cannot be written.
var ErrInvalidFields = errors.New("invalid fields")

// Records performs entity writes through the versioning hooks. Each row write
// shares a transaction with the version it records.
type Records struct {
	q      db.DBTX
	tables map[string]Table
	hooks  *versioning.Hooks
}

func NewRecords(q db.DBTX, tables []Table, hooks *versioning.Hooks) *Records {
	byType := make(map[string]Table, len(tables))
	for _, table := range tables {
		byType[table.EntityType()] = table
	}
	return &Records{q: q, tables: byType, hooks: hooks}
}

func (r *Records) table(entityType string) (Table, error) {
	table, ok := r.tables[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", versioning.ErrUnknownEntityType, entityType)
	}
	return table, nil
}

// Get loads one row.
func (r *Records) Get(ctx context.Context, entityType string, id int64) (domain.Entity, error) {
	table, err := r.table(entityType)
	if err != nil {
		return nil, err
	}
	return table.Load(ctx, r.q, id)
}

// Create inserts a row built from fields and commits its first version.
func (r *Records) Create(ctx context.Context, entityType string, fields map[string]any, author string) (domain.Entity, *domain.Version, error) {
	table, err := r.table(entityType)
	if err != nil {
		return nil, nil, err
	}
	entity := table.New(0)
	if err := applyFields(entity, fields); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidFields, err)
	}
	insert := func(ctx context.Context, q db.DBTX) error {
		return table.Insert(ctx, q, entity)
	}
	version, err := r.hooks.AfterCreate(ctx, entity, author, insert)
	if err != nil {
		return nil, nil, err
	}
	return entity, version, nil
}

// Update changes fields of an existing row and commits the new state with a
// message listing the changed fields.
func (r *Records) Update(ctx context.Context, entityType string, id int64, fields map[string]any, author string) (domain.Entity, *domain.Version, error) {
	table, err := r.table(entityType)
	if err != nil {
		return nil, nil, err
	}
	entity, err := table.Load(ctx, r.q, id)
	if err != nil {
		return nil, nil, err
	}
	if err := r.hooks.BeforeUpdate(ctx, r.q, entity); err != nil {
		return nil, nil, err
	}
	if err := applyFields(entity, fields); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidFields, err)
	}
	save := func(ctx context.Context, q db.DBTX) error {
		return table.Save(ctx, q, entity)
	}
	version, err := r.hooks.AfterUpdate(ctx, entity, author, save)
	if err != nil {
		return nil, nil, err
	}
	return entity, version, nil
}

// Delete commits the final state of a row and removes it.
func (r *Records) Delete(ctx context.Context, entityType string, id int64, author string) (*domain.Version, error) {
	table, err := r.table(entityType)
	if err != nil {
		return nil, err
	}
	entity, err := table.Load(ctx, r.q, id)
	if err != nil {
		return nil, err
	}
	remove := func(ctx context.Context, q db.DBTX) error {
		return table.Delete(ctx, q, id)
	}
	return r.hooks.BeforeDelete(ctx, entity, author, remove)
}

// applyFields writes caller-supplied values, given in snapshot form, onto
// entity. Unlike rollback it rejects unknown or invalid fields.
func applyFields(entity domain.Entity, fields map[string]any) error {
	specs := entity.FieldSpecs()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		spec, ok := domain.FieldSpecByName(specs, name)
		if !ok {
			return fmt.Errorf("%s has no field %q", entity.EntityType(), name)
		}
		if !spec.Restorable() {
			return fmt.Errorf("%s field %q is read-only", entity.EntityType(), name)
		}
		value, err := snapshot.Denormalize(spec, fields[name])
		if err != nil {
			return fmt.Errorf("invalid %s.%s: %w", entity.EntityType(), name, err)
		}
		if err := entity.SetFieldValue(name, value); err != nil {
			return err
		}
	}
	return nil
}
