// Package versionloader batches current-version lookups issued while serving
// one request.
package versionloader

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/repository"
)

// chainKey adapts a version chain key to the dataloader key interface.
type chainKey domain.VersionKey

func (k chainKey) String() string   { return domain.VersionKey(k).String() }
func (k chainKey) Raw() interface{} { return domain.VersionKey(k) }

type VersionLoader struct {
	Loader *dataloader.Loader
}

func NewVersionLoader(repo repository.VersionRepository) *VersionLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		chains := make([]domain.VersionKey, len(keys))
		for i, k := range keys {
			key, ok := k.Raw().(domain.VersionKey)
			if !ok {
				return []*dataloader.Result{{Error: fmt.Errorf("invalid version key %q", k.String())}}
			}
			chains[i] = key
		}

		current, err := repo.GetCurrentBatch(ctx, chains)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Build results in the same order as keys
		results := make([]*dataloader.Result, len(keys))
		for i, key := range chains {
			if version, ok := current[key]; ok {
				v := version
				results[i] = &dataloader.Result{Data: &v}
			} else {
				results[i] = &dataloader.Result{Data: (*domain.Version)(nil)}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &VersionLoader{Loader: loader}
}

// LoadCurrent returns the current version of each chain, nil for chains
// without versions. Lookups are batched into one repository call.
func LoadCurrent(ctx context.Context, loader *dataloader.Loader, keys []domain.VersionKey) ([]*domain.Version, error) {
	dlKeys := make(dataloader.Keys, len(keys))
	for i, key := range keys {
		dlKeys[i] = chainKey(key)
	}
	data, errs := loader.LoadMany(ctx, dlKeys)()
	out := make([]*domain.Version, len(keys))
	for i := range keys {
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		if i < len(data) {
			version, _ := data[i].(*domain.Version)
			out[i] = version
		}
	}
	return out, nil
}
