package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
)

var (
	// ErrNotFound is returned when a requested version or entity row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentModification marks a lost race on a version chain. The
	// whole operation may be retried.
	ErrConcurrentModification = errors.New("concurrent modification of version chain")
)

// VersionRepository persists the append-only version table.
type VersionRepository interface {
	// WithTx runs fn inside a single transaction. The VersionTx must not be
	// used after fn returns.
	WithTx(ctx context.Context, fn func(tx VersionTx) error) error

	// ListHistory returns versions of one chain, newest first.
	ListHistory(ctx context.Context, key domain.VersionKey, limit int) ([]domain.Version, error)
	GetCurrent(ctx context.Context, key domain.VersionKey) (domain.Version, error)
	GetByNumber(ctx context.Context, key domain.VersionKey, number int64) (domain.Version, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Version, error)
	// GetCurrentBatch resolves the current version of many chains at once.
	// Chains without versions are absent from the result.
	GetCurrentBatch(ctx context.Context, keys []domain.VersionKey) (map[domain.VersionKey]domain.Version, error)
	ListBranches(ctx context.Context, entityType string, entityID int64) ([]string, error)
	// ListChains enumerates every (entity type, entity id, branch) with versions.
	ListChains(ctx context.Context) ([]domain.VersionKey, error)
	// PruneChain deletes all but the keepLast newest versions of a chain in
	// one atomic step and never deletes the current version.
	PruneChain(ctx context.Context, key domain.VersionKey, keepLast int) (int64, error)
	Stats(ctx context.Context) (domain.VersionStats, error)
}

// VersionTx is the transactional view used by commit, rollback and branch creation.
type VersionTx interface {
	// Querier exposes the transaction to primary-table adapters so entity
	// writes commit or roll back together with version rows.
	Querier() db.DBTX
	// LockChain serialises writers of one chain until the transaction ends.
	LockChain(ctx context.Context, key domain.VersionKey) error
	GetCurrent(ctx context.Context, key domain.VersionKey) (domain.Version, error)
	GetByNumber(ctx context.Context, key domain.VersionKey, number int64) (domain.Version, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Version, error)
	MaxVersionNumber(ctx context.Context, key domain.VersionKey) (int64, error)
	ClearCurrent(ctx context.Context, id uuid.UUID) error
	Insert(ctx context.Context, version domain.Version) (domain.Version, error)
}

// UndoLog is implemented by querier handles of stores that cannot roll back
// primary-table writes themselves. Registered functions run in reverse order
// when the transaction fails.
type UndoLog interface {
	AddUndo(fn func())
}
