// Package versioning records entity snapshots as branchable version chains and
// restores entities from them.
package versioning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/repository"
	"github.com/rpattn/rentalvc/internal/snapshot"
	"github.com/rpattn/rentalvc/pkg/validator"
)

var (
	// ErrBranchExists is returned by CreateBranch when the target branch already has versions.
	ErrBranchExists = errors.New("branch already exists")
	// ErrInvalidKeepLast is returned by Cleanup when fewer than one version would be kept.
	ErrInvalidKeepLast = errors.New("keepLast must be at least 1")

	errNoTarget = errors.New("no version to restore")
)

// IsTransient reports whether err is a lost race on a version chain that the
// caller may retry as a whole.
func IsTransient(err error) bool {
	return errors.Is(err, repository.ErrConcurrentModification)
}

// Write changes a primary-table row through the querier of a commit transaction.
type Write func(ctx context.Context, q db.DBTX) error

// CommitRequest describes one commit.
type CommitRequest struct {
	Action  domain.Action
	Author  string
	Message string
	// Branch defaults to the service's default branch.
	Branch string
	// Write, when set, runs in the same transaction as the commit. Deletes
	// run it after the version is recorded so the snapshot sees the live
	// row; every other action runs it first and snapshots the result.
	Write Write
}

// RollbackRequest identifies the entity to restore. A nil Version restores
// the parent of the current version.
type RollbackRequest struct {
	EntityType string
	EntityID   int64
	Version    *int64
	Author     string
	Branch     string
}

// RollbackResult describes a successful rollback.
type RollbackResult struct {
	Entity domain.Entity
	// Version is the rollback version committed on top of the chain.
	Version *domain.Version
	// Target is the version whose snapshot was restored.
	Target *domain.Version
	// Recreated is set when the primary-table row had been deleted.
	Recreated bool
	Skipped   []snapshot.SkippedField
}

// BranchRequest describes a branch to create from another branch's current version.
type BranchRequest struct {
	EntityType string
	EntityID   int64
	Name       string
	From       string
	Author     string
}

// CleanupResult summarises a retention run.
type CleanupResult struct {
	Chains  int   `json:"chains"`
	Deleted int64 `json:"deleted"`
}

// Service owns the version chain invariants: one current version per chain
// and strictly increasing version numbers.
type Service struct {
	repo      repository.VersionRepository
	registry  *Registry
	validator *validator.SnapshotValidator
	logger    *logrus.Entry

	defaultBranch string
	historyLimit  int
	maxRetries    int
	newBackOff    func() backoff.BackOff
}

type Option func(*Service)

func WithLogger(logger *logrus.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithDefaultBranch(branch string) Option {
	return func(s *Service) {
		if strings.TrimSpace(branch) != "" {
			s.defaultBranch = branch
		}
	}
}

// WithHistoryLimit bounds History when the caller passes no limit.
func WithHistoryLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// WithMaxRetries sets how often a transient commit or rollback failure is
// retried. Zero disables retries.
func WithMaxRetries(retries int) Option {
	return func(s *Service) {
		if retries >= 0 {
			s.maxRetries = retries
		}
	}
}

// WithBackOff replaces the retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Service) {
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

func NewService(repo repository.VersionRepository, registry *Registry, opts ...Option) *Service {
	service := &Service{
		repo:          repo,
		registry:      registry,
		validator:     validator.NewSnapshotValidator(),
		logger:        logrus.NewEntry(logrus.StandardLogger()),
		defaultBranch: domain.DefaultBranch,
		historyLimit:  50,
		maxRetries:    3,
		newBackOff:    defaultBackOff,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.registry == nil {
		service.registry = &Registry{}
	}
	return service
}

func defaultBackOff() backoff.BackOff {
	params := backoff.NewExponentialBackOff()
	params.InitialInterval = 20 * time.Millisecond
	params.MaxInterval = 500 * time.Millisecond
	params.MaxElapsedTime = 5 * time.Second
	return params
}

// Registry returns the adapters the service restores through.
func (s *Service) Registry() *Registry {
	return s.registry
}

// DefaultBranch returns the branch used when a request names none.
func (s *Service) DefaultBranch() string {
	return s.defaultBranch
}

// Commit snapshots entity and appends it to its chain as the new current version.
func (s *Service) Commit(ctx context.Context, entity domain.Entity, req CommitRequest) (*domain.Version, error) {
	if entity == nil {
		return nil, errors.New("cannot commit nil entity")
	}
	action := req.Action
	if action == "" {
		action = domain.ActionCommit
	}
	if !action.IsValid() {
		return nil, fmt.Errorf("invalid action %q", action)
	}
	branch, err := s.branchOrDefault(req.Branch)
	if err != nil {
		return nil, err
	}

	writeFirst := req.Write != nil && action != domain.ActionDelete
	var snap domain.Snapshot
	if !writeFirst {
		if snap, err = snapshot.Serialize(entity); err != nil {
			return nil, err
		}
	}

	key := domain.VersionKey{EntityType: entity.EntityType(), EntityID: entity.EntityID(), Branch: branch}
	author := authorOrSystem(req.Author)

	var created domain.Version
	err = s.retry(ctx, key, func() error {
		return s.repo.WithTx(ctx, func(tx repository.VersionTx) error {
			chainKey, chainSnap := key, snap
			if writeFirst {
				if err := req.Write(ctx, tx.Querier()); err != nil {
					return err
				}
				written, err := snapshot.Serialize(entity)
				if err != nil {
					return err
				}
				chainSnap = written
				chainKey.EntityID = entity.EntityID()
			}
			version, err := s.commitTx(ctx, tx, chainKey, chainSnap, action, author, req.Message, rollbackOrigin{})
			if err != nil {
				return err
			}
			if req.Write != nil && !writeFirst {
				if err := req.Write(ctx, tx.Querier()); err != nil {
					return err
				}
			}
			created = version
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", key, err)
	}

	s.versionLogger(created).Info("version committed")
	return &created, nil
}

// CommitCreate records the first state of a newly created entity.
func (s *Service) CommitCreate(ctx context.Context, entity domain.Entity, author, message string) (*domain.Version, error) {
	return s.Commit(ctx, entity, CommitRequest{Action: domain.ActionCreate, Author: author, Message: messageOr(message, "record created")})
}

// CommitUpdate records the state of an entity after an update.
func (s *Service) CommitUpdate(ctx context.Context, entity domain.Entity, author, message string) (*domain.Version, error) {
	return s.Commit(ctx, entity, CommitRequest{Action: domain.ActionUpdate, Author: author, Message: messageOr(message, "record updated")})
}

// CommitDelete records the last state of an entity. It must run before the
// row is removed from its table.
func (s *Service) CommitDelete(ctx context.Context, entity domain.Entity, author, message string) (*domain.Version, error) {
	return s.Commit(ctx, entity, CommitRequest{Action: domain.ActionDelete, Author: author, Message: messageOr(message, "record deleted")})
}

// commitTx appends a version inside tx. The chain lock is taken before the
// current version is read so concurrent writers of one chain serialise.
func (s *Service) commitTx(
	ctx context.Context,
	tx repository.VersionTx,
	key domain.VersionKey,
	snap domain.Snapshot,
	action domain.Action,
	author, message string,
	origin rollbackOrigin,
) (domain.Version, error) {
	if err := tx.LockChain(ctx, key); err != nil {
		return domain.Version{}, err
	}

	var parentID *uuid.UUID
	prev, err := tx.GetCurrent(ctx, key)
	switch {
	case err == nil:
		if err := tx.ClearCurrent(ctx, prev.ID); err != nil {
			return domain.Version{}, err
		}
		id := prev.ID
		parentID = &id
	case errors.Is(err, repository.ErrNotFound):
	default:
		return domain.Version{}, err
	}

	latest, err := tx.MaxVersionNumber(ctx, key)
	if err != nil {
		return domain.Version{}, err
	}

	return tx.Insert(ctx, domain.Version{
		ID:             uuid.New(),
		EntityType:     key.EntityType,
		EntityID:       key.EntityID,
		Branch:         key.Branch,
		VersionNumber:  latest + 1,
		Snapshot:       snap,
		SnapshotFormat: snapshot.FormatVersion,
		Action:         action,
		Author:         author,
		Message:        message,
		ParentID:       parentID,
		RestoredFrom:   origin.restoredFrom,
		Undo:           origin.undo,
		IsCurrent:      true,
	})
}

// rollbackOrigin links a rollback version to the version it restored.
type rollbackOrigin struct {
	restoredFrom *uuid.UUID
	undo         bool
}

// Rollback restores an entity's row from a previous version on the same
// branch and commits the restored state as a new rollback version. Without
// an explicit version it restores the parent of the current version. Undoing
// an undo steps back from the version that undo restored, so repeated undos
// walk back through the chain instead of toggling between two states.
//
// It returns nil without error when the entity type is not registered or no
// target version resolves. The row write and the rollback commit share one
// transaction.
func (s *Service) Rollback(ctx context.Context, req RollbackRequest) (*RollbackResult, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"entity_type": req.EntityType,
		"entity_id":   req.EntityID,
		"action":      domain.ActionRollback,
	})

	adapter, err := s.registry.Lookup(req.EntityType)
	if err != nil {
		logger.WithError(err).Warn("rollback skipped")
		return nil, nil
	}
	branch, err := s.branchOrDefault(req.Branch)
	if err != nil {
		return nil, err
	}
	key := domain.VersionKey{EntityType: req.EntityType, EntityID: req.EntityID, Branch: branch}
	author := authorOrSystem(req.Author)
	logger = logger.WithFields(logrus.Fields{"branch": branch, "author": author})

	var result *RollbackResult
	err = s.retry(ctx, key, func() error {
		result = nil
		return s.repo.WithTx(ctx, func(tx repository.VersionTx) error {
			if err := tx.LockChain(ctx, key); err != nil {
				return err
			}
			target, err := s.resolveTarget(ctx, tx, key, req.Version)
			if err != nil {
				return err
			}

			recreated := false
			entity, err := adapter.Load(ctx, tx.Querier(), req.EntityID)
			switch {
			case err == nil:
			case errors.Is(err, repository.ErrNotFound):
				entity = adapter.New(req.EntityID)
				recreated = true
			default:
				return fmt.Errorf("failed to load %s %d: %w", req.EntityType, req.EntityID, err)
			}

			check := s.validator.Validate(target.Snapshot, entity.FieldSpecs())
			for _, warning := range check.Warnings {
				logger.WithField("field", warning.Field).Debug(warning.Message)
			}

			skipped := snapshot.Apply(entity, target.Snapshot)
			for _, field := range skipped {
				logger.WithField("field", field.Name).Debugf("field not restored: %s", field.Reason)
			}

			if err := adapter.Save(ctx, tx.Querier(), entity); err != nil {
				return fmt.Errorf("failed to save %s %d: %w", req.EntityType, req.EntityID, err)
			}

			snap, err := snapshot.Serialize(entity)
			if err != nil {
				return err
			}
			message := fmt.Sprintf("rollback to version %d", target.VersionNumber)
			restoredFrom := target.ID
			origin := rollbackOrigin{restoredFrom: &restoredFrom, undo: req.Version == nil}
			version, err := s.commitTx(ctx, tx, key, snap, domain.ActionRollback, author, message, origin)
			if err != nil {
				return err
			}

			result = &RollbackResult{
				Entity:    entity,
				Version:   &version,
				Target:    &target,
				Recreated: recreated,
				Skipped:   skipped,
			}
			return nil
		})
	})
	if errors.Is(err, errNoTarget) {
		logger.Warn("no version to roll back to")
		return nil, nil
	}
	if err != nil {
		logger.WithError(err).Error("rollback failed")
		return nil, fmt.Errorf("failed to roll back %s: %w", key, err)
	}

	s.versionLogger(*result.Version).
		WithField("target_version", result.Target.VersionNumber).
		WithField("recreated", result.Recreated).
		Info("entity rolled back")
	return result, nil
}

func (s *Service) resolveTarget(ctx context.Context, tx repository.VersionTx, key domain.VersionKey, number *int64) (domain.Version, error) {
	if number != nil {
		target, err := tx.GetByNumber(ctx, key, *number)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Version{}, errNoTarget
		}
		return target, err
	}

	current, err := tx.GetCurrent(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Version{}, errNoTarget
	}
	if err != nil {
		return domain.Version{}, err
	}

	// An undo version holds the state of the version it restored, so one step
	// back from it is that version's parent. Explicit rollbacks are undone
	// like any other version.
	base := current
	if current.Undo && current.RestoredFrom != nil {
		restored, err := tx.GetByID(ctx, *current.RestoredFrom)
		switch {
		case err == nil && restored.Branch == key.Branch:
			base = restored
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return domain.Version{}, err
		}
	}
	if !base.HasParent() {
		return domain.Version{}, errNoTarget
	}
	parent, err := tx.GetByID(ctx, *base.ParentID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Version{}, errNoTarget
	}
	if err != nil {
		return domain.Version{}, err
	}
	// The first version of a branch points at its source branch. Undo never
	// crosses branches.
	if parent.Branch != key.Branch {
		return domain.Version{}, errNoTarget
	}
	return parent, nil
}

// History returns versions of one chain, newest first. A limit of zero uses
// the configured default.
func (s *Service) History(ctx context.Context, entityType string, entityID int64, branch string, limit int) ([]domain.Version, error) {
	branch, err := s.branchOrDefault(branch)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	key := domain.VersionKey{EntityType: entityType, EntityID: entityID, Branch: branch}
	versions, err := s.repo.ListHistory(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history of %s: %w", key, err)
	}
	return versions, nil
}

// CurrentVersion returns the current version of a chain or nil when the
// chain is empty.
func (s *Service) CurrentVersion(ctx context.Context, entityType string, entityID int64, branch string) (*domain.Version, error) {
	branch, err := s.branchOrDefault(branch)
	if err != nil {
		return nil, err
	}
	version, err := s.repo.GetCurrent(ctx, domain.VersionKey{EntityType: entityType, EntityID: entityID, Branch: branch})
	return optional(version, err)
}

// GetVersion returns one version by number or nil when it does not exist.
func (s *Service) GetVersion(ctx context.Context, entityType string, entityID int64, number int64, branch string) (*domain.Version, error) {
	branch, err := s.branchOrDefault(branch)
	if err != nil {
		return nil, err
	}
	version, err := s.repo.GetByNumber(ctx, domain.VersionKey{EntityType: entityType, EntityID: entityID, Branch: branch}, number)
	return optional(version, err)
}

// CompareVersions returns the fields whose values differ between a and b.
func (s *Service) CompareVersions(a, b domain.Version) map[string]domain.ValueDiff {
	return domain.CompareSnapshots(a.Snapshot, b.Snapshot)
}

// CompareVersionNumbers loads two versions of one chain and compares them.
// It returns repository.ErrNotFound when either version is missing.
func (s *Service) CompareVersionNumbers(ctx context.Context, entityType string, entityID int64, branch string, a, b int64) (map[string]domain.ValueDiff, error) {
	branch, err := s.branchOrDefault(branch)
	if err != nil {
		return nil, err
	}
	key := domain.VersionKey{EntityType: entityType, EntityID: entityID, Branch: branch}
	first, err := s.repo.GetByNumber(ctx, key, a)
	if err != nil {
		return nil, err
	}
	second, err := s.repo.GetByNumber(ctx, key, b)
	if err != nil {
		return nil, err
	}
	return s.CompareVersions(first, second), nil
}

// ChangesFromParent returns the field changes a version introduced relative
// to its parent. Versions without a parent report no changes.
func (s *Service) ChangesFromParent(ctx context.Context, version domain.Version) (map[string]domain.FieldChange, error) {
	if !version.HasParent() {
		return map[string]domain.FieldChange{}, nil
	}
	parent, err := s.repo.GetByID(ctx, *version.ParentID)
	if errors.Is(err, repository.ErrNotFound) {
		// The parent was pruned by retention.
		return map[string]domain.FieldChange{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load parent of version %s: %w", version.ID, err)
	}
	return domain.ChangesBetween(parent.Snapshot, version.Snapshot), nil
}

// CreateBranch starts a new branch from the current version of another branch.
// It returns nil without error when the source branch has no current version.
func (s *Service) CreateBranch(ctx context.Context, req BranchRequest) (*domain.Version, error) {
	if err := validator.ValidateBranchName(req.Name); err != nil {
		return nil, err
	}
	from, err := s.branchOrDefault(req.From)
	if err != nil {
		return nil, err
	}
	if from == req.Name {
		return nil, fmt.Errorf("%w: %q", ErrBranchExists, req.Name)
	}

	sourceKey := domain.VersionKey{EntityType: req.EntityType, EntityID: req.EntityID, Branch: from}
	targetKey := domain.VersionKey{EntityType: req.EntityType, EntityID: req.EntityID, Branch: req.Name}
	author := authorOrSystem(req.Author)

	var created *domain.Version
	err = s.retry(ctx, targetKey, func() error {
		created = nil
		return s.repo.WithTx(ctx, func(tx repository.VersionTx) error {
			if err := tx.LockChain(ctx, targetKey); err != nil {
				return err
			}
			source, err := tx.GetCurrent(ctx, sourceKey)
			if errors.Is(err, repository.ErrNotFound) {
				return errNoTarget
			}
			if err != nil {
				return err
			}
			latest, err := tx.MaxVersionNumber(ctx, targetKey)
			if err != nil {
				return err
			}
			if latest > 0 {
				return fmt.Errorf("%w: %q", ErrBranchExists, req.Name)
			}

			parentID := source.ID
			version, err := tx.Insert(ctx, domain.Version{
				ID:             uuid.New(),
				EntityType:     req.EntityType,
				EntityID:       req.EntityID,
				Branch:         req.Name,
				VersionNumber:  1,
				Snapshot:       source.Snapshot.Clone(),
				SnapshotFormat: snapshot.FormatVersion,
				Action:         domain.ActionCommit,
				Author:         author,
				Message:        fmt.Sprintf("branch created from %s v%d", from, source.VersionNumber),
				ParentID:       &parentID,
				IsCurrent:      true,
			})
			if err != nil {
				return err
			}
			created = &version
			return nil
		})
	})
	if errors.Is(err, errNoTarget) {
		s.logger.WithFields(logrus.Fields{
			"entity_type": req.EntityType,
			"entity_id":   req.EntityID,
			"branch":      from,
		}).Warn("cannot branch from a chain without versions")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create branch %s: %w", targetKey, err)
	}

	s.versionLogger(*created).WithField("from_branch", from).Info("branch created")
	return created, nil
}

// ListBranches returns the branches an entity has versions on, the default
// branch first.
func (s *Service) ListBranches(ctx context.Context, entityType string, entityID int64) ([]string, error) {
	branches, err := s.repo.ListBranches(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches of %s %d: %w", entityType, entityID, err)
	}
	sort.SliceStable(branches, func(i, j int) bool {
		if branches[i] == s.defaultBranch || branches[j] == s.defaultBranch {
			return branches[i] == s.defaultBranch && branches[j] != s.defaultBranch
		}
		return branches[i] < branches[j]
	})
	return branches, nil
}

// Cleanup deletes all but the keepLast newest versions of every chain. Each
// chain is pruned atomically; chains are processed independently.
func (s *Service) Cleanup(ctx context.Context, keepLast int) (CleanupResult, error) {
	if keepLast < 1 {
		return CleanupResult{}, fmt.Errorf("%w, got %d", ErrInvalidKeepLast, keepLast)
	}
	chains, err := s.repo.ListChains(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("failed to list version chains: %w", err)
	}

	result := CleanupResult{Chains: len(chains)}
	for _, key := range chains {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		deleted, err := s.repo.PruneChain(ctx, key, keepLast)
		if err != nil {
			return result, fmt.Errorf("failed to prune %s: %w", key, err)
		}
		if deleted > 0 {
			s.logger.WithFields(logrus.Fields{
				"entity_type": key.EntityType,
				"entity_id":   key.EntityID,
				"branch":      key.Branch,
				"deleted":     deleted,
			}).Debug("pruned version chain")
		}
		result.Deleted += deleted
	}

	s.logger.WithFields(logrus.Fields{
		"keep_last": keepLast,
		"chains":    result.Chains,
		"deleted":   result.Deleted,
	}).Info("version cleanup finished")
	return result, nil
}

// Stats aggregates the version table.
func (s *Service) Stats(ctx context.Context) (domain.VersionStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return domain.VersionStats{}, fmt.Errorf("failed to collect version stats: %w", err)
	}
	return stats, nil
}

// FormatHistory renders a chain's history as text, newest first.
func (s *Service) FormatHistory(ctx context.Context, entityType string, entityID int64, branch string) (string, error) {
	versions, err := s.History(ctx, entityType, entityID, branch, 0)
	if err != nil {
		return "", err
	}
	if branch == "" {
		branch = s.defaultBranch
	}
	if len(versions) == 0 {
		return fmt.Sprintf("No version history for %s #%d on %s", entityType, entityID, branch), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Version history for %s #%d (%s)\n", entityType, entityID, branch)
	for _, version := range versions {
		marker := ""
		if version.IsCurrent {
			marker = " [CURRENT]"
		}
		fmt.Fprintf(&b, "\nv%d%s %s by %s at %s\n",
			version.VersionNumber, marker, strings.ToUpper(string(version.Action)),
			version.Author, version.CreatedAt.Format("2006-01-02 15:04:05"))
		if version.Message != "" {
			fmt.Fprintf(&b, "  %s\n", version.Message)
		}
		changes, err := s.ChangesFromParent(ctx, version)
		if err != nil {
			return "", err
		}
		if text := FormatChanges(changes); text != "" {
			fmt.Fprintf(&b, "  changes: %s\n", text)
		}
	}
	return b.String(), nil
}

func (s *Service) retry(ctx context.Context, key domain.VersionKey, op func() error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := op()
		if err == nil || !IsTransient(err) {
			if err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.logger.WithFields(logrus.Fields{
			"entity_type": key.EntityType,
			"entity_id":   key.EntityID,
			"branch":      key.Branch,
			"attempt":     attempt,
		}).WithError(err).Warnf("retrying after %s", wait)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxRetries)), ctx)
	return backoff.RetryNotify(operation, policy, notify)
}

func (s *Service) branchOrDefault(branch string) (string, error) {
	if strings.TrimSpace(branch) == "" {
		return s.defaultBranch, nil
	}
	if err := validator.ValidateBranchName(branch); err != nil {
		return "", err
	}
	return branch, nil
}

func (s *Service) versionLogger(version domain.Version) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"entity_type": version.EntityType,
		"entity_id":   version.EntityID,
		"branch":      version.Branch,
		"version":     version.VersionNumber,
		"action":      version.Action,
		"author":      version.Author,
	})
}

func optional(version domain.Version, err error) (*domain.Version, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func authorOrSystem(author string) string {
	if strings.TrimSpace(author) == "" {
		return domain.SystemAuthor
	}
	return author
}

func messageOr(message, fallback string) string {
	if strings.TrimSpace(message) == "" {
		return fallback
	}
	return message
}
