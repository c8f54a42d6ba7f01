package rental

import (
	"context"
	"time"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/versioning"
)

// record is implemented by every entity of this package. The table layer
// uses it for the columns rollback never writes.
type record interface {
	domain.Entity
	setID(id int64)
	setTimestamps(created, updated time.Time)
}

// Table is a primary table of one entity type. Besides the registration
// contract it offers the plain writes CRUD callers need.
type Table interface {
	versioning.Adapter
	// Insert stores a new row and assigns its primary key.
	Insert(ctx context.Context, q db.DBTX, entity domain.Entity) error
	// Delete removes a row; it returns repository.ErrNotFound when nothing was deleted.
	Delete(ctx context.Context, q db.DBTX, id int64) error
}

type tableDef struct {
	entityType string
	table      string
	fields     []domain.FieldSpec
	newRecord  func() record
}

var tableDefs = []tableDef{
	{entityType: TypeVehicle, table: "vehicles", fields: vehicleFields, newRecord: func() record { return &Vehicle{} }},
	{entityType: TypeCustomer, table: "customers", fields: customerFields, newRecord: func() record { return &Customer{} }},
	{entityType: TypeRental, table: "rentals", fields: rentalFields, newRecord: func() record { return &Rental{} }},
	{entityType: TypePayment, table: "payments", fields: paymentFields, newRecord: func() record { return &Payment{} }},
}

func (d tableDef) New(id int64) domain.Entity {
	r := d.newRecord()
	r.setID(id)
	return r
}

// dataColumns lists the columns written from field values: everything but
// the primary key and bookkeeping timestamps.
func (d tableDef) dataColumns() []domain.FieldSpec {
	cols := make([]domain.FieldSpec, 0, len(d.fields))
	for _, f := range d.fields {
		if f.Restorable() {
			cols = append(cols, f)
		}
	}
	return cols
}

func asRecord(def tableDef, entity domain.Entity) (record, error) {
	r, ok := entity.(record)
	if !ok || entity.EntityType() != def.entityType {
		return nil, &entityTypeError{want: def.entityType, got: entity}
	}
	return r, nil
}

type entityTypeError struct {
	want string
	got  domain.Entity
}

func (e *entityTypeError) Error() string {
	if e.got == nil {
		return "expected " + e.want + " entity, got nil"
	}
	return "expected " + e.want + " entity, got " + e.got.EntityType()
}

// PostgresTables returns pgx-backed tables for every entity type.
func PostgresTables() []Table {
	tables := make([]Table, 0, len(tableDefs))
	for _, def := range tableDefs {
		tables = append(tables, newPostgresTable(def))
	}
	return tables
}

// MemoryTables returns in-memory tables for every entity type.
func MemoryTables() []Table {
	tables := make([]Table, 0, len(tableDefs))
	for _, def := range tableDefs {
		tables = append(tables, newMemoryTable(def))
	}
	return tables
}

// Register adds tables to the versioning registry.
func Register(registry *versioning.Registry, tables []Table) error {
	for _, table := range tables {
		if err := registry.Register(table); err != nil {
			return err
		}
	}
	return nil
}
