package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/snapshot"
)

var errNoSQL = errors.New("memory store does not execute SQL")

// MemoryVersionRepository keeps versions in process memory. Transactions are
// serialised by one lock; failed transactions restore the previous state and
// replay the undo log of memory-backed tables.
type MemoryVersionRepository struct {
	mu       sync.Mutex
	versions []domain.Version
	now      func() time.Time
}

// NewMemoryVersionRepository creates an empty in-memory repository.
func NewMemoryVersionRepository() *MemoryVersionRepository {
	return &MemoryVersionRepository{now: time.Now}
}

var _ VersionRepository = (*MemoryVersionRepository)(nil)

func (r *MemoryVersionRepository) WithTx(ctx context.Context, fn func(tx VersionTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	saved := cloneVersions(r.versions)
	tx := &memoryVersionTx{repo: r}
	if err := fn(tx); err != nil {
		r.versions = saved
		tx.undo()
		return err
	}
	return nil
}

func (r *MemoryVersionRepository) ListHistory(ctx context.Context, key domain.VersionKey, limit int) ([]domain.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	chain := r.chainLocked(key)
	sort.Slice(chain, func(i, j int) bool { return chain[i].VersionNumber > chain[j].VersionNumber })
	if len(chain) > limit {
		chain = chain[:limit]
	}
	return chain, nil
}

func (r *MemoryVersionRepository) GetCurrent(ctx context.Context, key domain.VersionKey) (domain.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentLocked(key)
}

func (r *MemoryVersionRepository) GetByNumber(ctx context.Context, key domain.VersionKey, number int64) (domain.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byNumberLocked(key, number)
}

func (r *MemoryVersionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byIDLocked(id)
}

func (r *MemoryVersionRepository) GetCurrentBatch(ctx context.Context, keys []domain.VersionKey) (map[domain.VersionKey]domain.Version, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[domain.VersionKey]domain.Version, len(keys))
	for _, key := range keys {
		if version, err := r.currentLocked(key); err == nil {
			result[key] = version
		}
	}
	return result, nil
}

func (r *MemoryVersionRepository) ListBranches(ctx context.Context, entityType string, entityID int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]struct{}{}
	for _, version := range r.versions {
		if version.EntityType == entityType && version.EntityID == entityID {
			seen[version.Branch] = struct{}{}
		}
	}
	branches := make([]string, 0, len(seen))
	for branch := range seen {
		branches = append(branches, branch)
	}
	sort.Strings(branches)
	return branches, nil
}

func (r *MemoryVersionRepository) ListChains(ctx context.Context) ([]domain.VersionKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[domain.VersionKey]struct{}{}
	keys := []domain.VersionKey{}
	for _, version := range r.versions {
		key := version.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func (r *MemoryVersionRepository) PruneChain(ctx context.Context, key domain.VersionKey, keepLast int) (int64, error) {
	if keepLast < 1 {
		return 0, fmt.Errorf("keepLast must be at least 1, got %d", keepLast)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	chain := r.chainLocked(key)
	sort.Slice(chain, func(i, j int) bool { return chain[i].VersionNumber > chain[j].VersionNumber })
	if len(chain) <= keepLast {
		return 0, nil
	}
	drop := map[uuid.UUID]struct{}{}
	for _, version := range chain[keepLast:] {
		if !version.IsCurrent {
			drop[version.ID] = struct{}{}
		}
	}
	kept := r.versions[:0]
	for _, version := range r.versions {
		if _, ok := drop[version.ID]; !ok {
			kept = append(kept, version)
		}
	}
	r.versions = kept
	return int64(len(drop)), nil
}

func (r *MemoryVersionRepository) Stats(ctx context.Context) (domain.VersionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := domain.VersionStats{
		ByEntityType: map[string]int64{},
		ByAction:     map[domain.Action]int64{},
	}
	for _, version := range r.versions {
		stats.Total++
		stats.ByEntityType[version.EntityType]++
		stats.ByAction[version.Action]++
	}
	return stats, nil
}

func (r *MemoryVersionRepository) chainLocked(key domain.VersionKey) []domain.Version {
	var chain []domain.Version
	for _, version := range r.versions {
		if version.Key() == key {
			chain = append(chain, cloneVersion(version))
		}
	}
	return chain
}

func (r *MemoryVersionRepository) currentLocked(key domain.VersionKey) (domain.Version, error) {
	for _, version := range r.versions {
		if version.IsCurrent && version.Key() == key {
			return cloneVersion(version), nil
		}
	}
	return domain.Version{}, fmt.Errorf("current version of %s: %w", key, ErrNotFound)
}

func (r *MemoryVersionRepository) byNumberLocked(key domain.VersionKey, number int64) (domain.Version, error) {
	for _, version := range r.versions {
		if version.VersionNumber == number && version.Key() == key {
			return cloneVersion(version), nil
		}
	}
	return domain.Version{}, fmt.Errorf("version %d of %s: %w", number, key, ErrNotFound)
}

func (r *MemoryVersionRepository) byIDLocked(id uuid.UUID) (domain.Version, error) {
	for _, version := range r.versions {
		if version.ID == id {
			return cloneVersion(version), nil
		}
	}
	return domain.Version{}, fmt.Errorf("version %s: %w", id, ErrNotFound)
}

// memoryVersionTx runs with the repository lock held.
type memoryVersionTx struct {
	repo  *MemoryVersionRepository
	undos []func()
}

func (t *memoryVersionTx) Querier() db.DBTX {
	return memoryQuerier{tx: t}
}

func (t *memoryVersionTx) LockChain(ctx context.Context, key domain.VersionKey) error {
	return ctx.Err()
}

func (t *memoryVersionTx) GetCurrent(ctx context.Context, key domain.VersionKey) (domain.Version, error) {
	return t.repo.currentLocked(key)
}

func (t *memoryVersionTx) GetByNumber(ctx context.Context, key domain.VersionKey, number int64) (domain.Version, error) {
	return t.repo.byNumberLocked(key, number)
}

func (t *memoryVersionTx) GetByID(ctx context.Context, id uuid.UUID) (domain.Version, error) {
	return t.repo.byIDLocked(id)
}

func (t *memoryVersionTx) MaxVersionNumber(ctx context.Context, key domain.VersionKey) (int64, error) {
	var max int64
	for _, version := range t.repo.versions {
		if version.Key() == key && version.VersionNumber > max {
			max = version.VersionNumber
		}
	}
	return max, nil
}

func (t *memoryVersionTx) ClearCurrent(ctx context.Context, id uuid.UUID) error {
	for i := range t.repo.versions {
		if t.repo.versions[i].ID == id {
			t.repo.versions[i].IsCurrent = false
		}
	}
	return nil
}

func (t *memoryVersionTx) Insert(ctx context.Context, version domain.Version) (domain.Version, error) {
	for _, existing := range t.repo.versions {
		if existing.Key() != version.Key() {
			continue
		}
		if existing.VersionNumber == version.VersionNumber {
			return domain.Version{}, fmt.Errorf("%w: version %d of %s already exists", ErrConcurrentModification, version.VersionNumber, version.Key())
		}
		if existing.IsCurrent && version.IsCurrent {
			return domain.Version{}, fmt.Errorf("%w: %s already has a current version", ErrConcurrentModification, version.Key())
		}
	}
	if version.SnapshotFormat == 0 {
		version.SnapshotFormat = snapshot.FormatVersion
	}
	version.CreatedAt = t.repo.now().UTC()
	stored := cloneVersion(version)
	t.repo.versions = append(t.repo.versions, stored)
	return cloneVersion(stored), nil
}

func (t *memoryVersionTx) undo() {
	for i := len(t.undos) - 1; i >= 0; i-- {
		t.undos[i]()
	}
	t.undos = nil
}

// memoryQuerier hands memory-backed tables the undo log of the transaction.
type memoryQuerier struct {
	tx *memoryVersionTx
}

var _ UndoLog = memoryQuerier{}

func (q memoryQuerier) AddUndo(fn func()) {
	q.tx.undos = append(q.tx.undos, fn)
}

func (memoryQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errNoSQL
}

func (memoryQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errNoSQL
}

func (memoryQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

type errRow struct{}

func (errRow) Scan(...any) error { return errNoSQL }

func cloneVersions(in []domain.Version) []domain.Version {
	out := make([]domain.Version, len(in))
	for i, version := range in {
		out[i] = cloneVersion(version)
	}
	return out
}

func cloneVersion(version domain.Version) domain.Version {
	version.Snapshot = version.Snapshot.Clone()
	if version.ParentID != nil {
		id := *version.ParentID
		version.ParentID = &id
	}
	if version.RestoredFrom != nil {
		id := *version.RestoredFrom
		version.RestoredFrom = &id
	}
	return version
}
