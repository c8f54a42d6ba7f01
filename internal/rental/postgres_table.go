package rental

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/repository"
)

type postgresTable struct {
	tableDef
	selectSQL string
	upsertSQL string
	insertSQL string
	deleteSQL string
}

func newPostgresTable(def tableDef) *postgresTable {
	t := &postgresTable{tableDef: def}
	t.buildStatements()
	return t
}

func (t *postgresTable) EntityType() string { return t.entityType }

func (t *postgresTable) buildStatements() {
	cols := t.dataColumns()
	names := make([]string, len(cols))
	params := make([]string, len(cols))
	updates := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
		params[i] = fmt.Sprintf("$%d", i+2)
		updates[i] = fmt.Sprintf("%s = EXCLUDED.%s", col.Name, col.Name)
	}
	nameList := strings.Join(names, ", ")

	t.selectSQL = fmt.Sprintf(`SELECT id, %s, created_at, updated_at FROM %s WHERE id = $1`, nameList, t.table)
	// The upsert keeps the original primary key so deleted rows come back
	// under the same id.
	t.upsertSQL = fmt.Sprintf(
		`INSERT INTO %s (id, %s) VALUES ($1, %s)
		 ON CONFLICT (id) DO UPDATE SET %s, updated_at = now()
		 RETURNING created_at, updated_at`,
		t.table, nameList, strings.Join(params, ", "), strings.Join(updates, ", "),
	)
	insertParams := make([]string, len(cols))
	for i := range cols {
		insertParams[i] = fmt.Sprintf("$%d", i+1)
	}
	t.insertSQL = fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) RETURNING id, created_at, updated_at`,
		t.table, nameList, strings.Join(insertParams, ", "),
	)
	t.deleteSQL = fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.table)
}

func (t *postgresTable) Load(ctx context.Context, q db.DBTX, id int64) (domain.Entity, error) {
	cols := t.dataColumns()
	var (
		rowID            int64
		created, updated time.Time
	)
	holders := make([]any, 0, len(cols)+3)
	holders = append(holders, &rowID)
	values := make([]scanHolder, len(cols))
	for i, col := range cols {
		values[i] = newScanHolder(col.Kind)
		holders = append(holders, values[i].target())
	}
	holders = append(holders, &created, &updated)

	if err := q.QueryRow(ctx, t.selectSQL, id).Scan(holders...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s %d: %w", t.entityType, id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load %s %d: %w", t.entityType, id, err)
	}

	r := t.newRecord()
	r.setID(rowID)
	r.setTimestamps(created, updated)
	for i, col := range cols {
		if err := r.SetFieldValue(col.Name, values[i].value()); err != nil {
			return nil, fmt.Errorf("failed to load %s %d: %w", t.entityType, id, err)
		}
	}
	return r, nil
}

func (t *postgresTable) Save(ctx context.Context, q db.DBTX, entity domain.Entity) error {
	r, err := asRecord(t.tableDef, entity)
	if err != nil {
		return err
	}
	args, err := t.args(r)
	if err != nil {
		return err
	}
	var created, updated time.Time
	if err := q.QueryRow(ctx, t.upsertSQL, append([]any{r.EntityID()}, args...)...).Scan(&created, &updated); err != nil {
		return fmt.Errorf("failed to save %s %d: %w", t.entityType, r.EntityID(), err)
	}
	r.setTimestamps(created, updated)
	return nil
}

func (t *postgresTable) Insert(ctx context.Context, q db.DBTX, entity domain.Entity) error {
	r, err := asRecord(t.tableDef, entity)
	if err != nil {
		return err
	}
	args, err := t.args(r)
	if err != nil {
		return err
	}
	var (
		id               int64
		created, updated time.Time
	)
	if err := q.QueryRow(ctx, t.insertSQL, args...).Scan(&id, &created, &updated); err != nil {
		return fmt.Errorf("failed to insert %s: %w", t.entityType, err)
	}
	r.setID(id)
	r.setTimestamps(created, updated)
	return nil
}

func (t *postgresTable) Delete(ctx context.Context, q db.DBTX, id int64) error {
	tag, err := q.Exec(ctx, t.deleteSQL, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", t.entityType, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", t.entityType, id, repository.ErrNotFound)
	}
	return nil
}

func (t *postgresTable) args(r record) ([]any, error) {
	cols := t.dataColumns()
	args := make([]any, len(cols))
	for i, col := range cols {
		value, ok := r.FieldValue(col.Name)
		if !ok {
			return nil, fmt.Errorf("%s does not expose field %q", t.entityType, col.Name)
		}
		arg, err := encodeArg(col.Kind, value)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.entityType, col.Name, err)
		}
		args[i] = arg
	}
	return args, nil
}

func encodeArg(kind domain.FieldKind, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch kind {
	case domain.FieldKindDecimal:
		d, ok := value.(decimal.Decimal)
		if !ok {
			return nil, fmt.Errorf("expected decimal, got %T", value)
		}
		return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}, nil
	case domain.FieldKindDate:
		tm, ok := value.(time.Time)
		if !ok {
			return nil, fmt.Errorf("expected time, got %T", value)
		}
		return pgtype.Date{Time: dateOnly(tm), Valid: true}, nil
	}
	return value, nil
}

// scanHolder scans one column into the pgtype matching a field kind and
// yields the Go value the entity setters accept.
type scanHolder interface {
	target() any
	value() any
}

func newScanHolder(kind domain.FieldKind) scanHolder {
	switch kind {
	case domain.FieldKindInteger, domain.FieldKindReference:
		return &int8Holder{}
	case domain.FieldKindFloat:
		return &float8Holder{}
	case domain.FieldKindBoolean:
		return &boolHolder{}
	case domain.FieldKindDecimal:
		return &numericHolder{}
	case domain.FieldKindTimestamp:
		return &timestampHolder{}
	case domain.FieldKindDate:
		return &dateHolder{}
	default:
		return &textHolder{}
	}
}

type textHolder struct{ v pgtype.Text }

func (h *textHolder) target() any { return &h.v }
func (h *textHolder) value() any {
	if !h.v.Valid {
		return nil
	}
	return h.v.String
}

type int8Holder struct{ v pgtype.Int8 }

func (h *int8Holder) target() any { return &h.v }
func (h *int8Holder) value() any {
	if !h.v.Valid {
		return nil
	}
	return h.v.Int64
}

type float8Holder struct{ v pgtype.Float8 }

func (h *float8Holder) target() any { return &h.v }
func (h *float8Holder) value() any {
	if !h.v.Valid {
		return nil
	}
	return h.v.Float64
}

type boolHolder struct{ v pgtype.Bool }

func (h *boolHolder) target() any { return &h.v }
func (h *boolHolder) value() any {
	if !h.v.Valid {
		return nil
	}
	return h.v.Bool
}

type numericHolder struct{ v pgtype.Numeric }

func (h *numericHolder) target() any { return &h.v }
func (h *numericHolder) value() any {
	if !h.v.Valid || h.v.NaN || h.v.Int == nil {
		return nil
	}
	return decimal.NewFromBigInt(h.v.Int, h.v.Exp)
}

type timestampHolder struct{ v pgtype.Timestamptz }

func (h *timestampHolder) target() any { return &h.v }
func (h *timestampHolder) value() any {
	if !h.v.Valid {
		return nil
	}
	return h.v.Time
}

type dateHolder struct{ v pgtype.Date }

func (h *dateHolder) target() any { return &h.v }
func (h *dateHolder) value() any {
	if !h.v.Valid {
		return nil
	}
	return h.v.Time
}
