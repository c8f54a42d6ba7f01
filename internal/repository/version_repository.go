package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/snapshot"
)

const versionColumns = `id, entity_type, entity_id, branch, version_number, snapshot, snapshot_format,
	action, author, message, parent_id, restored_from, undo, is_current, created_at`

const chainFilter = `entity_type = $1 AND entity_id = $2 AND branch = $3`

// versionRepository implements VersionRepository on Postgres.
type versionRepository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewVersionRepository creates a Postgres-backed version repository.
// lockTimeout bounds how long a writer waits for a busy chain; zero keeps the server default.
func NewVersionRepository(pool *pgxpool.Pool, lockTimeout time.Duration) VersionRepository {
	return &versionRepository{pool: pool, lockTimeout: lockTimeout}
}

func (r *versionRepository) WithTx(ctx context.Context, fn func(tx VersionTx) error) error {
	err := db.RunInTx(ctx, r.pool, func(tx pgx.Tx) error {
		if r.lockTimeout > 0 {
			// SET does not accept bind parameters.
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to set lock timeout: %w", err)
			}
		}
		return fn(&pgVersionTx{tx: tx})
	})
	return mapError(err)
}

func (r *versionRepository) ListHistory(ctx context.Context, key domain.VersionKey, limit int) ([]domain.Version, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+versionColumns+` FROM entity_versions WHERE `+chainFilter+`
		 ORDER BY version_number DESC LIMIT $4`,
		key.EntityType, key.EntityID, key.Branch, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list version history: %w", mapError(err))
	}
	return collectVersions(rows)
}

func (r *versionRepository) GetCurrent(ctx context.Context, key domain.VersionKey) (domain.Version, error) {
	return getCurrent(ctx, r.pool, key, false)
}

func (r *versionRepository) GetByNumber(ctx context.Context, key domain.VersionKey, number int64) (domain.Version, error) {
	return getByNumber(ctx, r.pool, key, number)
}

func (r *versionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Version, error) {
	return getByID(ctx, r.pool, id)
}

func (r *versionRepository) GetCurrentBatch(ctx context.Context, keys []domain.VersionKey) (map[domain.VersionKey]domain.Version, error) {
	result := make(map[domain.VersionKey]domain.Version, len(keys))
	if len(keys) == 0 {
		return result, nil
	}
	types := make([]string, len(keys))
	ids := make([]int64, len(keys))
	branches := make([]string, len(keys))
	for i, key := range keys {
		types[i], ids[i], branches[i] = key.EntityType, key.EntityID, key.Branch
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+versionColumns+` FROM entity_versions
		 WHERE is_current AND (entity_type, entity_id, branch) IN (
		   SELECT * FROM unnest($1::text[], $2::bigint[], $3::text[])
		 )`,
		types, ids, branches,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load current versions: %w", mapError(err))
	}
	versions, err := collectVersions(rows)
	if err != nil {
		return nil, err
	}
	for _, version := range versions {
		result[version.Key()] = version
	}
	return result, nil
}

func (r *versionRepository) ListBranches(ctx context.Context, entityType string, entityID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT branch FROM entity_versions
		 WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY branch`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", mapError(err))
	}
	branches, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan branches: %w", err)
	}
	return branches, nil
}

func (r *versionRepository) ListChains(ctx context.Context) ([]domain.VersionKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT entity_type, entity_id, branch FROM entity_versions
		 ORDER BY entity_type, entity_id, branch`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list version chains: %w", mapError(err))
	}
	keys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.VersionKey, error) {
		var key domain.VersionKey
		err := row.Scan(&key.EntityType, &key.EntityID, &key.Branch)
		return key, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan version chains: %w", err)
	}
	return keys, nil
}

func (r *versionRepository) PruneChain(ctx context.Context, key domain.VersionKey, keepLast int) (int64, error) {
	if keepLast < 1 {
		return 0, fmt.Errorf("keepLast must be at least 1, got %d", keepLast)
	}
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM entity_versions
		 WHERE `+chainFilter+`
		   AND NOT is_current
		   AND version_number NOT IN (
		     SELECT version_number FROM entity_versions
		     WHERE `+chainFilter+`
		     ORDER BY version_number DESC
		     LIMIT $4
		   )`,
		key.EntityType, key.EntityID, key.Branch, keepLast,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", key, mapError(err))
	}
	return tag.RowsAffected(), nil
}

func (r *versionRepository) Stats(ctx context.Context) (domain.VersionStats, error) {
	stats := domain.VersionStats{
		ByEntityType: map[string]int64{},
		ByAction:     map[domain.Action]int64{},
	}
	rows, err := r.pool.Query(ctx,
		`SELECT entity_type, action, COUNT(*) FROM entity_versions GROUP BY entity_type, action`,
	)
	if err != nil {
		return stats, fmt.Errorf("failed to load version stats: %w", mapError(err))
	}
	defer rows.Close()
	for rows.Next() {
		var (
			entityType string
			action     string
			count      int64
		)
		if err := rows.Scan(&entityType, &action, &count); err != nil {
			return stats, fmt.Errorf("failed to scan version stats: %w", err)
		}
		stats.Total += count
		stats.ByEntityType[entityType] += count
		stats.ByAction[domain.Action(action)] += count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("failed to read version stats: %w", err)
	}
	return stats, nil
}

// pgVersionTx implements VersionTx on a pgx transaction.
type pgVersionTx struct {
	tx pgx.Tx
}

func (t *pgVersionTx) Querier() db.DBTX {
	return t.tx
}

func (t *pgVersionTx) LockChain(ctx context.Context, key domain.VersionKey) error {
	// Advisory locks also cover chains that have no row to lock yet.
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.String()); err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, mapError(err))
	}
	return nil
}

func (t *pgVersionTx) GetCurrent(ctx context.Context, key domain.VersionKey) (domain.Version, error) {
	return getCurrent(ctx, t.tx, key, true)
}

func (t *pgVersionTx) GetByNumber(ctx context.Context, key domain.VersionKey, number int64) (domain.Version, error) {
	return getByNumber(ctx, t.tx, key, number)
}

func (t *pgVersionTx) GetByID(ctx context.Context, id uuid.UUID) (domain.Version, error) {
	return getByID(ctx, t.tx, id)
}

func (t *pgVersionTx) MaxVersionNumber(ctx context.Context, key domain.VersionKey) (int64, error) {
	var max int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version_number), 0) FROM entity_versions WHERE `+chainFilter,
		key.EntityType, key.EntityID, key.Branch,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest version number: %w", mapError(err))
	}
	return max, nil
}

func (t *pgVersionTx) ClearCurrent(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `UPDATE entity_versions SET is_current = FALSE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear current flag: %w", mapError(err))
	}
	return nil
}

func (t *pgVersionTx) Insert(ctx context.Context, version domain.Version) (domain.Version, error) {
	encoded, err := snapshot.Encode(version.Snapshot)
	if err != nil {
		return domain.Version{}, err
	}
	if version.SnapshotFormat == 0 {
		version.SnapshotFormat = snapshot.FormatVersion
	}
	row := t.tx.QueryRow(ctx,
		`INSERT INTO entity_versions (id, entity_type, entity_id, branch, version_number, snapshot, snapshot_format,
		                              action, author, message, parent_id, restored_from, undo, is_current)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING `+versionColumns,
		version.ID, version.EntityType, version.EntityID, version.Branch, version.VersionNumber,
		encoded, version.SnapshotFormat, string(version.Action), version.Author, version.Message,
		version.ParentID, version.RestoredFrom, version.Undo, version.IsCurrent,
	)
	created, err := scanVersion(row)
	if err != nil {
		return domain.Version{}, fmt.Errorf("failed to insert version: %w", mapError(err))
	}
	return created, nil
}

func getCurrent(ctx context.Context, q db.DBTX, key domain.VersionKey, forUpdate bool) (domain.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM entity_versions WHERE ` + chainFilter + ` AND is_current`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	version, err := scanVersion(q.QueryRow(ctx, query, key.EntityType, key.EntityID, key.Branch))
	if err != nil {
		return domain.Version{}, fmt.Errorf("failed to get current version of %s: %w", key, mapError(err))
	}
	return version, nil
}

func getByNumber(ctx context.Context, q db.DBTX, key domain.VersionKey, number int64) (domain.Version, error) {
	version, err := scanVersion(q.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM entity_versions WHERE `+chainFilter+` AND version_number = $4`,
		key.EntityType, key.EntityID, key.Branch, number,
	))
	if err != nil {
		return domain.Version{}, fmt.Errorf("failed to get version %d of %s: %w", number, key, mapError(err))
	}
	return version, nil
}

func getByID(ctx context.Context, q db.DBTX, id uuid.UUID) (domain.Version, error) {
	version, err := scanVersion(q.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM entity_versions WHERE id = $1`, id,
	))
	if err != nil {
		return domain.Version{}, fmt.Errorf("failed to get version %s: %w", id, mapError(err))
	}
	return version, nil
}

func collectVersions(rows pgx.Rows) ([]domain.Version, error) {
	versions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Version, error) {
		return scanVersion(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan versions: %w", err)
	}
	return versions, nil
}

func scanVersion(row pgx.Row) (domain.Version, error) {
	var (
		version  domain.Version
		raw      []byte
		format   int16
		action   string
		parentID *uuid.UUID
		restored *uuid.UUID
	)
	err := row.Scan(
		&version.ID,
		&version.EntityType,
		&version.EntityID,
		&version.Branch,
		&version.VersionNumber,
		&raw,
		&format,
		&action,
		&version.Author,
		&version.Message,
		&parentID,
		&restored,
		&version.Undo,
		&version.IsCurrent,
		&version.CreatedAt,
	)
	if err != nil {
		return domain.Version{}, err
	}
	snap, err := snapshot.Decode(raw, int(format))
	if err != nil {
		return domain.Version{}, fmt.Errorf("version %s: %w", version.ID, err)
	}
	version.Snapshot = snap
	version.SnapshotFormat = int(format)
	version.Action = domain.Action(action)
	version.ParentID = parentID
	version.RestoredFrom = restored
	return version, nil
}

// SQLSTATE codes that indicate a lost race rather than a bug.
const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
)

// mapError converts driver errors into repository sentinels while keeping the cause.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConcurrentModification) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
			return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
		case sqlStateUniqueViolation:
			if pgErr.ConstraintName == "entity_versions_number_key" || pgErr.ConstraintName == "entity_versions_current_idx" {
				return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
			}
		}
	}
	return err
}
