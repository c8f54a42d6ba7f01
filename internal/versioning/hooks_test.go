package versioning

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/rentalvc/internal/db"
	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/repository"
)

func TestHooksFollowMutationLifecycle(t *testing.T) {
	f := newFixture(t)
	hooks := NewHooks(f.service, NewTracker(f.service.Registry()))
	ctx := context.Background()

	e := newCar(7, "Toyota Avanza", "350000")
	f.table.put(e)
	created, err := hooks.AfterCreate(ctx, e, "admin", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCreate, created.Action)

	require.NoError(t, hooks.BeforeUpdate(ctx, nil, e))
	e.status = "rented"
	f.table.put(e)
	updated, err := hooks.AfterUpdate(ctx, e, "admin", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionUpdate, updated.Action)
	assert.Equal(t, "updated status: available -> rented", updated.Message)

	// An update without a cached state still commits with the default message.
	e.brand = "Toyota Avanza Veloz"
	plain, err := hooks.AfterUpdate(ctx, e, "admin", nil)
	require.NoError(t, err)
	assert.Equal(t, "record updated", plain.Message)

	deleted, err := hooks.BeforeDelete(ctx, e, "admin", nil)
	require.NoError(t, err)
	f.table.remove(e.id)
	assert.Equal(t, domain.ActionDelete, deleted.Action)
	assert.Equal(t, int64(4), deleted.VersionNumber)
	assert.Equal(t, "Toyota Avanza Veloz", deleted.Snapshot["brand"])
}

func TestHooksWriteRowsInsideCommit(t *testing.T) {
	f := newFixture(t)
	hooks := NewHooks(f.service, NewTracker(f.service.Registry()))
	ctx := context.Background()

	e := newCar(5, "Mitsubishi Xpander", "400000")
	save := func(ctx context.Context, q db.DBTX) error { return f.table.Save(ctx, q, e) }
	created, err := hooks.AfterCreate(ctx, e, "admin", save)
	require.NoError(t, err)
	assert.Equal(t, int64(5), created.EntityID)
	_, ok := f.table.get(5)
	assert.True(t, ok, "insert runs before the first version")

	remove := func(ctx context.Context, q db.DBTX) error {
		f.table.remove(5)
		return nil
	}
	deleted, err := hooks.BeforeDelete(ctx, e, "admin", remove)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionDelete, deleted.Action)
	assert.Equal(t, "Mitsubishi Xpander", deleted.Snapshot["brand"], "the snapshot is taken before the row is removed")
	_, ok = f.table.get(5)
	assert.False(t, ok)
}

func TestHooksKeepChainAndTableInStep(t *testing.T) {
	table := newCarTable()
	registry, err := NewRegistry(table)
	require.NoError(t, err)
	repo := &failingCommitRepo{MemoryVersionRepository: repository.NewMemoryVersionRepository()}
	service := NewService(repo, registry)
	hooks := NewHooks(service, NewTracker(registry))
	ctx := context.Background()

	e := newCar(8, "Toyota Rush", "450000")
	save := func(ctx context.Context, q db.DBTX) error { return table.Save(ctx, q, e) }

	repo.failInserts = true
	_, err = hooks.AfterCreate(ctx, e, "admin", save)
	require.Error(t, err)
	_, ok := table.get(8)
	assert.False(t, ok, "a create whose version is not recorded leaves no row")

	repo.failInserts = false
	_, err = hooks.AfterCreate(ctx, e, "admin", save)
	require.NoError(t, err)

	_, err = hooks.BeforeDelete(ctx, e, "admin", func(context.Context, db.DBTX) error {
		return errors.New("row is referenced")
	})
	require.Error(t, err)
	current, err := service.CurrentVersion(ctx, "car", 8, "")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, domain.ActionCreate, current.Action, "a failed delete records no delete version")
	_, ok = table.get(8)
	assert.True(t, ok)
}
