package rental

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/repository"
)

type memoryRow struct {
	values           map[string]any
	created, updated time.Time
}

// memoryTable keeps rows in process memory. Writes made through a querier
// that carries an undo log are reverted when that transaction fails.
type memoryTable struct {
	tableDef
	mu     sync.Mutex
	rows   map[int64]memoryRow
	nextID int64
	now    func() time.Time
}

func newMemoryTable(def tableDef) *memoryTable {
	return &memoryTable{tableDef: def, rows: map[int64]memoryRow{}, now: time.Now}
}

func (t *memoryTable) EntityType() string { return t.entityType }

func (t *memoryTable) Load(ctx context.Context, q db.DBTX, id int64) (domain.Entity, error) {
	t.mu.Lock()
	row, ok := t.rows[id]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s %d: %w", t.entityType, id, repository.ErrNotFound)
	}

	r := t.newRecord()
	r.setID(id)
	r.setTimestamps(row.created, row.updated)
	for _, col := range t.dataColumns() {
		value, ok := row.values[col.Name]
		if !ok {
			continue
		}
		if err := r.SetFieldValue(col.Name, value); err != nil {
			return nil, fmt.Errorf("failed to load %s %d: %w", t.entityType, id, err)
		}
	}
	return r, nil
}

func (t *memoryTable) Save(ctx context.Context, q db.DBTX, entity domain.Entity) error {
	r, err := asRecord(t.tableDef, entity)
	if err != nil {
		return err
	}
	values, err := t.capture(r)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	id := r.EntityID()
	previous, existed := t.rows[id]
	now := t.now().UTC()
	created := now
	if existed {
		created = previous.created
	}
	t.rows[id] = memoryRow{values: values, created: created, updated: now}
	if id > t.nextID {
		t.nextID = id
	}
	t.addUndo(q, func() {
		if existed {
			t.rows[id] = previous
		} else {
			delete(t.rows, id)
		}
	})
	r.setTimestamps(created, now)
	return nil
}

func (t *memoryTable) Insert(ctx context.Context, q db.DBTX, entity domain.Entity) error {
	r, err := asRecord(t.tableDef, entity)
	if err != nil {
		return err
	}
	values, err := t.capture(r)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	now := t.now().UTC()
	t.rows[id] = memoryRow{values: values, created: now, updated: now}
	t.addUndo(q, func() { delete(t.rows, id) })
	r.setID(id)
	r.setTimestamps(now, now)
	return nil
}

func (t *memoryTable) Delete(ctx context.Context, q db.DBTX, id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	previous, ok := t.rows[id]
	if !ok {
		return fmt.Errorf("%s %d: %w", t.entityType, id, repository.ErrNotFound)
	}
	delete(t.rows, id)
	t.addUndo(q, func() { t.rows[id] = previous })
	return nil
}

func (t *memoryTable) capture(r record) (map[string]any, error) {
	values := map[string]any{}
	for _, col := range t.dataColumns() {
		value, ok := r.FieldValue(col.Name)
		if !ok {
			return nil, fmt.Errorf("%s does not expose field %q", t.entityType, col.Name)
		}
		values[col.Name] = value
	}
	return values, nil
}

// addUndo registers fn with the transaction behind q. fn runs with t.mu held.
func (t *memoryTable) addUndo(q db.DBTX, fn func()) {
	undo, ok := q.(repository.UndoLog)
	if !ok {
		return
	}
	undo.AddUndo(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		fn()
	})
}
