package versionloader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/repository"
)

type countingRepo struct {
	*repository.MemoryVersionRepository
	mu      sync.Mutex
	batches [][]domain.VersionKey
	err     error
}

func (r *countingRepo) GetCurrentBatch(ctx context.Context, keys []domain.VersionKey) (map[domain.VersionKey]domain.Version, error) {
	r.mu.Lock()
	r.batches = append(r.batches, keys)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.MemoryVersionRepository.GetCurrentBatch(ctx, keys)
}

func seed(t *testing.T, repo *repository.MemoryVersionRepository, key domain.VersionKey) {
	t.Helper()
	err := repo.WithTx(context.Background(), func(tx repository.VersionTx) error {
		_, err := tx.Insert(context.Background(), domain.Version{
			ID: uuid.New(), EntityType: key.EntityType, EntityID: key.EntityID, Branch: key.Branch,
			VersionNumber: 1, Action: domain.ActionCreate, Author: "system", IsCurrent: true,
			Snapshot: domain.Snapshot{"id": key.EntityID},
		})
		return err
	})
	if err != nil {
		t.Fatalf("failed to seed version: %v", err)
	}
}

func TestLoadCurrentBatchesLookups(t *testing.T) {
	repo := &countingRepo{MemoryVersionRepository: repository.NewMemoryVersionRepository()}
	first := domain.VersionKey{EntityType: "vehicle", EntityID: 1, Branch: "main"}
	second := domain.VersionKey{EntityType: "vehicle", EntityID: 2, Branch: "main"}
	missing := domain.VersionKey{EntityType: "vehicle", EntityID: 3, Branch: "main"}
	seed(t, repo.MemoryVersionRepository, first)
	seed(t, repo.MemoryVersionRepository, second)

	loader := NewVersionLoader(repo)
	versions, err := LoadCurrent(context.Background(), loader.Loader, []domain.VersionKey{second, missing, first})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(versions) != 3 {
		t.Fatalf("expected 3 results, got %d", len(versions))
	}
	if versions[0] == nil || versions[0].EntityID != 2 {
		t.Fatalf("expected entity 2 first, got %+v", versions[0])
	}
	if versions[1] != nil {
		t.Fatalf("expected nil for chain without versions, got %+v", versions[1])
	}
	if versions[2] == nil || versions[2].EntityID != 1 {
		t.Fatalf("expected entity 1 last, got %+v", versions[2])
	}
	if len(repo.batches) != 1 || len(repo.batches[0]) != 3 {
		t.Fatalf("expected a single batch of 3 keys, got %v", repo.batches)
	}
}

func TestLoadCurrentPropagatesErrors(t *testing.T) {
	repo := &countingRepo{MemoryVersionRepository: repository.NewMemoryVersionRepository(), err: errors.New("db down")}
	loader := NewVersionLoader(repo)
	_, err := LoadCurrent(context.Background(), loader.Loader, []domain.VersionKey{{EntityType: "vehicle", EntityID: 1, Branch: "main"}})
	if err == nil {
		t.Fatalf("expected error")
	}
}
