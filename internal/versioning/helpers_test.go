package versioning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/repository"
)

type car struct {
	id        int64
	brand     string
	dailyRate decimal.Decimal
	status    string
	ownerID   *int64
	updatedAt time.Time
}

func (c *car) EntityType() string { return "car" }
func (c *car) EntityID() int64    { return c.id }

func (c *car) FieldSpecs() []domain.FieldSpec {
	return []domain.FieldSpec{
		{Name: "id", Kind: domain.FieldKindInteger, PrimaryKey: true},
		{Name: "brand", Kind: domain.FieldKindString},
		{Name: "daily_rate", Kind: domain.FieldKindDecimal},
		{Name: "status", Kind: domain.FieldKindString},
		{Name: "owner_id", Kind: domain.FieldKindReference, Nullable: true},
		{Name: "updated_at", Kind: domain.FieldKindTimestamp, Bookkeeping: true},
	}
}

func (c *car) FieldValue(name string) (any, bool) {
	switch name {
	case "id":
		return c.id, true
	case "brand":
		return c.brand, true
	case "daily_rate":
		return c.dailyRate, true
	case "status":
		return c.status, true
	case "owner_id":
		if c.ownerID == nil {
			return nil, true
		}
		return *c.ownerID, true
	case "updated_at":
		return c.updatedAt, true
	}
	return nil, false
}

func (c *car) SetFieldValue(name string, value any) error {
	switch name {
	case "brand":
		c.brand = value.(string)
	case "daily_rate":
		c.dailyRate = value.(decimal.Decimal)
	case "status":
		c.status = value.(string)
	case "owner_id":
		if value == nil {
			c.ownerID = nil
			return nil
		}
		id := value.(int64)
		c.ownerID = &id
	default:
		return fmt.Errorf("unknown field %q", name)
	}
	return nil
}

func (c *car) clone() *car {
	out := *c
	if c.ownerID != nil {
		id := *c.ownerID
		out.ownerID = &id
	}
	return &out
}

// carTable is a memory-backed primary table that joins version transactions
// through the undo log.
type carTable struct {
	mu        sync.Mutex
	rows      map[int64]*car
	failSaves bool
}

func newCarTable() *carTable {
	return &carTable{rows: map[int64]*car{}}
}

func (t *carTable) EntityType() string { return "car" }

func (t *carTable) New(id int64) domain.Entity { return &car{id: id} }

func (t *carTable) Load(ctx context.Context, q db.DBTX, id int64) (domain.Entity, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[id]
	if !ok {
		return nil, fmt.Errorf("car %d: %w", id, repository.ErrNotFound)
	}
	return row.clone(), nil
}

func (t *carTable) Save(ctx context.Context, q db.DBTX, entity domain.Entity) error {
	c, ok := entity.(*car)
	if !ok {
		return fmt.Errorf("unexpected entity %T", entity)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSaves {
		return errors.New("disk full")
	}
	previous, existed := t.rows[c.id]
	if undo, ok := q.(repository.UndoLog); ok {
		undo.AddUndo(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if existed {
				t.rows[c.id] = previous
			} else {
				delete(t.rows, c.id)
			}
		})
	}
	stored := c.clone()
	stored.updatedAt = time.Now()
	t.rows[c.id] = stored
	return nil
}

// put writes a row outside any version transaction, as CRUD code would.
func (t *carTable) put(c *car) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[c.id] = c.clone()
}

func (t *carTable) remove(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, id)
}

func (t *carTable) get(id int64) (*car, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return row.clone(), true
}

type fixture struct {
	service *Service
	repo    *repository.MemoryVersionRepository
	table   *carTable
	logs    *test.Hook
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	table := newCarTable()
	registry, err := NewRegistry(table)
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	repo := repository.NewMemoryVersionRepository()
	base := []Option{
		WithLogger(logrus.NewEntry(logger)),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	}
	return &fixture{
		service: NewService(repo, registry, append(base, opts...)...),
		repo:    repo,
		table:   table,
		logs:    hook,
	}
}

func newCar(id int64, brand string, rate string) *car {
	return &car{id: id, brand: brand, dailyRate: decimal.RequireFromString(rate), status: "available"}
}

func versionNumber(n int64) *int64 {
	return &n
}
