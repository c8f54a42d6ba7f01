package rental

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/repository"
	"github.com/rpattn/rentalvc/internal/snapshot"
	"github.com/rpattn/rentalvc/internal/versioning"
)

func sampleRental() *Rental {
	returned := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	return &Rental{
		ID:         3,
		Code:       "RNT-20240501-001",
		CustomerID: 12,
		VehicleID:  4,
		RentalDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		ReturnDate: time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC),
		ReturnedAt: &returned,
		TotalDays:  3,
		TotalCost:  decimal.RequireFromString("1050000.00"),
		Fine:       decimal.RequireFromString("350000.00"),
		Status:     "completed",
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestRentalSnapshotRoundTrip(t *testing.T) {
	original := sampleRental()
	snap, err := snapshot.Serialize(original)
	require.NoError(t, err)

	assert.Equal(t, "2024-05-01", snap["rental_date"])
	assert.Equal(t, "2024-05-06", snap["returned_at"])
	assert.Equal(t, int64(12), snap["customer_id"])
	assert.Equal(t, float64(1050000), snap["total_cost"])
	assert.NotContains(t, snap, "created_at")
	assert.NotContains(t, snap, "updated_at")

	encoded, err := snapshot.Encode(snap)
	require.NoError(t, err)
	decoded, err := snapshot.Decode(encoded, snapshot.FormatVersion)
	require.NoError(t, err)

	restored := &Rental{ID: original.ID}
	require.Empty(t, snapshot.Apply(restored, decoded))
	assert.Equal(t, original.Code, restored.Code)
	assert.True(t, original.TotalCost.Equal(restored.TotalCost))
	assert.True(t, original.Fine.Equal(restored.Fine))
	assert.True(t, original.RentalDate.Equal(restored.RentalDate))
	require.NotNil(t, restored.ReturnedAt)
	assert.True(t, original.ReturnedAt.Equal(*restored.ReturnedAt))
	assert.True(t, restored.CreatedAt.IsZero())
}

func TestEntitiesRejectWrongTypes(t *testing.T) {
	v := &Vehicle{}
	assert.Error(t, v.SetFieldValue("year", "2020"))
	assert.Error(t, v.SetFieldValue("id", int64(5)))
	assert.Error(t, v.SetFieldValue("color", "red"))
	assert.NoError(t, v.SetFieldValue("daily_rate", decimal.NewFromInt(300000)))

	c := &Customer{}
	assert.Error(t, c.SetFieldValue("updated_at", time.Now()))
	p := &Payment{}
	assert.Error(t, p.SetFieldValue("amount", "lots"))
}

func TestEveryFieldIsExposed(t *testing.T) {
	for _, def := range tableDefs {
		entity := def.New(1)
		for _, spec := range entity.FieldSpecs() {
			_, ok := entity.FieldValue(spec.Name)
			assert.True(t, ok, "%s.%s", def.entityType, spec.Name)
		}
	}
}

func TestMemoryTableUndoLog(t *testing.T) {
	repo := repository.NewMemoryVersionRepository()
	table := newMemoryTable(tableDefs[0])
	ctx := context.Background()

	vehicle := &Vehicle{Brand: "Toyota", Model: "Avanza", Year: 2021, PlateNumber: "B 1234 XYZ", DailyRate: decimal.NewFromInt(350000), Status: "available"}
	require.NoError(t, table.Insert(ctx, nil, vehicle))
	assert.Equal(t, int64(1), vehicle.ID)

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx repository.VersionTx) error {
		vehicle.Status = "rented"
		if err := table.Save(ctx, tx.Querier(), vehicle); err != nil {
			return err
		}
		if err := table.Delete(ctx, tx.Querier(), vehicle.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	loaded, err := table.Load(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "available", loaded.(*Vehicle).Status)

	require.NoError(t, table.Delete(ctx, nil, 1))
	_, err = table.Load(ctx, nil, 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, table.Delete(ctx, nil, 1), repository.ErrNotFound)
}

func TestTablesRejectForeignEntities(t *testing.T) {
	table := newMemoryTable(tableDefs[0])
	err := table.Save(context.Background(), nil, &Customer{ID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected vehicle entity")
}

func TestPostgresStatements(t *testing.T) {
	table := newPostgresTable(tableDefs[3])
	assert.Equal(t, "SELECT id, rental_id, amount, method, status, proof, created_at, updated_at FROM payments WHERE id = $1", table.selectSQL)
	assert.Contains(t, table.upsertSQL, "INSERT INTO payments (id, rental_id, amount, method, status, proof) VALUES ($1, $2, $3, $4, $5, $6)")
	assert.Contains(t, table.upsertSQL, "ON CONFLICT (id) DO UPDATE SET rental_id = EXCLUDED.rental_id")
	assert.Contains(t, table.upsertSQL, "updated_at = now()")
	assert.Equal(t, "INSERT INTO payments (rental_id, amount, method, status, proof) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at", table.insertSQL)
	assert.False(t, strings.Contains(table.upsertSQL, "created_at ="))
}

func TestEncodeArg(t *testing.T) {
	arg, err := encodeArg(domain.FieldKindDecimal, decimal.RequireFromString("1250.75"))
	require.NoError(t, err)
	numeric, ok := arg.(pgtype.Numeric)
	require.True(t, ok, "decimal must encode as numeric, got %T", arg)
	assert.True(t, numeric.Valid)
	assert.Equal(t, int64(125075), numeric.Int.Int64())
	assert.Equal(t, int32(-2), numeric.Exp)

	arg, err = encodeArg(domain.FieldKindDate, time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	date, ok := arg.(pgtype.Date)
	require.True(t, ok)
	assert.Equal(t, "2024-05-01", date.Time.Format("2006-01-02"))

	arg, err = encodeArg(domain.FieldKindDate, nil)
	require.NoError(t, err)
	assert.Nil(t, arg)

	_, err = encodeArg(domain.FieldKindDecimal, "12")
	assert.Error(t, err)
}

func newVersionedRecords(t *testing.T) (*Records, *versioning.Service) {
	t.Helper()
	tables := MemoryTables()
	registry, err := versioning.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, Register(registry, tables))
	service := versioning.NewService(repository.NewMemoryVersionRepository(), registry,
		versioning.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	hooks := versioning.NewHooks(service, versioning.NewTracker(registry))
	return NewRecords(nil, tables, hooks), service
}

func decodeFields(t *testing.T, body string) map[string]any {
	t.Helper()
	decoder := json.NewDecoder(strings.NewReader(body))
	decoder.UseNumber()
	var fields map[string]any
	require.NoError(t, decoder.Decode(&fields))
	return fields
}

func TestRecordsLifecycleAndRollback(t *testing.T) {
	records, service := newVersionedRecords(t)
	ctx := context.Background()

	entity, created, err := records.Create(ctx, TypeRental, decodeFields(t, `{
		"code": "RNT-001", "customer_id": 1, "vehicle_id": 2,
		"rental_date": "2024-05-01", "return_date": "2024-05-04",
		"total_days": 3, "total_cost": "1050000.00", "status": "active"
	}`), "cashier")
	require.NoError(t, err)
	id := entity.EntityID()
	assert.Equal(t, domain.ActionCreate, created.Action)
	assert.Equal(t, "cashier", created.Author)

	_, updated, err := records.Update(ctx, TypeRental, id, decodeFields(t, `{
		"returned_at": "2024-05-06", "fine": 350000, "status": "completed"
	}`), "cashier")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.VersionNumber)
	assert.Contains(t, updated.Message, "status: active -> completed")
	assert.Contains(t, updated.Message, "returned_at: null -> 2024-05-06")

	deleted, err := records.Delete(ctx, TypeRental, id, "manager")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted.VersionNumber)
	_, err = records.Get(ctx, TypeRental, id)
	require.ErrorIs(t, err, repository.ErrNotFound)

	one := int64(1)
	result, err := service.Rollback(ctx, versioning.RollbackRequest{EntityType: TypeRental, EntityID: id, Version: &one, Author: "manager"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Recreated)
	assert.Equal(t, int64(4), result.Version.VersionNumber)

	restored, err := records.Get(ctx, TypeRental, id)
	require.NoError(t, err)
	r := restored.(*Rental)
	assert.Equal(t, "active", r.Status)
	assert.Nil(t, r.ReturnedAt)
	assert.True(t, r.Fine.IsZero())
	assert.True(t, r.TotalCost.Equal(decimal.NewFromInt(1050000)))
	assert.Equal(t, "2024-05-04", r.ReturnDate.Format("2006-01-02"))
}

func TestRecordsRejectInvalidFields(t *testing.T) {
	records, _ := newVersionedRecords(t)
	ctx := context.Background()

	_, _, err := records.Create(ctx, TypeVehicle, map[string]any{"colour": "red"}, "admin")
	assert.ErrorIs(t, err, ErrInvalidFields)
	_, _, err = records.Create(ctx, TypeVehicle, map[string]any{"id": json.Number("9")}, "admin")
	assert.Error(t, err)
	_, _, err = records.Create(ctx, TypeVehicle, map[string]any{"year": "soon"}, "admin")
	assert.Error(t, err)
	_, _, err = records.Create(ctx, "boat", map[string]any{}, "admin")
	assert.ErrorIs(t, err, versioning.ErrUnknownEntityType)
}

// flakyVersions fails version inserts while failing is set.
type flakyVersions struct {
	*repository.MemoryVersionRepository
	failing bool
}

func (r *flakyVersions) WithTx(ctx context.Context, fn func(tx repository.VersionTx) error) error {
	return r.MemoryVersionRepository.WithTx(ctx, func(tx repository.VersionTx) error {
		return fn(&flakyVersionTx{VersionTx: tx, failing: r.failing})
	})
}

type flakyVersionTx struct {
	repository.VersionTx
	failing bool
}

func (t *flakyVersionTx) Insert(ctx context.Context, version domain.Version) (domain.Version, error) {
	if t.failing {
		return domain.Version{}, errors.New("version table unavailable")
	}
	return t.VersionTx.Insert(ctx, version)
}

func TestRecordsWriteRowAndVersionTogether(t *testing.T) {
	tables := MemoryTables()
	registry, err := versioning.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, Register(registry, tables))
	repo := &flakyVersions{MemoryVersionRepository: repository.NewMemoryVersionRepository()}
	service := versioning.NewService(repo, registry,
		versioning.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	records := NewRecords(nil, tables, versioning.NewHooks(service, versioning.NewTracker(registry)))
	ctx := context.Background()

	repo.failing = true
	_, _, err = records.Create(ctx, TypeCustomer, map[string]any{
		"nik": "3171", "name": "Budi", "address": "Jakarta", "phone": "0812", "email": "budi@example.com",
	}, "admin")
	require.Error(t, err)
	_, err = records.Get(ctx, TypeCustomer, 1)
	require.ErrorIs(t, err, repository.ErrNotFound, "no row without its first version")

	repo.failing = false
	entity, _, err := records.Create(ctx, TypeCustomer, map[string]any{
		"nik": "3172", "name": "Sari", "address": "Bandung", "phone": "0813", "email": "sari@example.com",
	}, "admin")
	require.NoError(t, err)
	id := entity.EntityID()

	repo.failing = true
	_, _, err = records.Update(ctx, TypeCustomer, id, map[string]any{"name": "Sari Dewi"}, "admin")
	require.Error(t, err)
	_, err = records.Delete(ctx, TypeCustomer, id, "admin")
	require.Error(t, err)

	row, err := records.Get(ctx, TypeCustomer, id)
	require.NoError(t, err, "a failed delete keeps the row")
	assert.Equal(t, "Sari", row.(*Customer).Name, "a failed update keeps the stored values")

	repo.failing = false
	current, err := service.CurrentVersion(ctx, TypeCustomer, id, "")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, int64(1), current.VersionNumber)
	assert.Equal(t, domain.ActionCreate, current.Action)
}
