package versioning

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/rentalvc/internal/domain"
	"github.com/rpattn/rentalvc/internal/repository"
)

func assertSingleCurrent(t *testing.T, versions []domain.Version) {
	t.Helper()
	current := 0
	for _, v := range versions {
		if v.IsCurrent {
			current++
		}
	}
	assert.Equal(t, 1, current, "exactly one version must be current")
}

func assertLinearChain(t *testing.T, versions []domain.Version) {
	t.Helper()
	byID := map[uuid.UUID]domain.Version{}
	for _, v := range versions {
		byID[v.ID] = v
	}
	for _, v := range versions {
		if !v.HasParent() {
			continue
		}
		parent, ok := byID[*v.ParentID]
		if !ok || parent.Branch != v.Branch {
			continue
		}
		assert.Equal(t, parent.VersionNumber+1, v.VersionNumber, "child of v%d", parent.VersionNumber)
	}
}

// scenarioA commits a create and an update for car 7.
func scenarioA(t *testing.T, f *fixture) *car {
	t.Helper()
	ctx := context.Background()
	e := newCar(7, "Toyota Avanza", "350000")
	f.table.put(e)
	_, err := f.service.CommitCreate(ctx, e, "admin", "")
	require.NoError(t, err)

	e.status = "rented"
	f.table.put(e)
	_, err = f.service.CommitUpdate(ctx, e, "admin", "")
	require.NoError(t, err)
	return e
}

func TestCommitCreatesLinkedChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := newCar(7, "Toyota Avanza", "350000")

	first, err := f.service.CommitCreate(ctx, e, "admin", "")
	require.NoError(t, err)
	history, err := f.service.History(ctx, "car", 7, "", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1), first.VersionNumber)
	assert.True(t, history[0].IsCurrent)
	assert.Nil(t, history[0].ParentID)
	assert.Equal(t, domain.ActionCreate, first.Action)
	assert.Equal(t, "record created", first.Message)
	assert.Equal(t, domain.DefaultBranch, first.Branch)

	e.status = "rented"
	second, err := f.service.CommitUpdate(ctx, e, "admin", "")
	require.NoError(t, err)

	history, err = f.service.History(ctx, "car", 7, "", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(2), history[0].VersionNumber)
	assert.True(t, history[0].IsCurrent)
	assert.False(t, history[1].IsCurrent)
	require.NotNil(t, second.ParentID)
	assert.Equal(t, first.ID, *second.ParentID)
	assert.Equal(t, "rented", history[0].Snapshot["status"])
	assert.Equal(t, float64(350000), history[0].Snapshot["daily_rate"])
	assertSingleCurrent(t, history)
	assertLinearChain(t, history)
}

func TestCommitDefaultsAuthorAndAction(t *testing.T) {
	f := newFixture(t)
	version, err := f.service.Commit(context.Background(), newCar(1, "Honda Brio", "250000"), CommitRequest{})
	require.NoError(t, err)
	assert.Equal(t, domain.SystemAuthor, version.Author)
	assert.Equal(t, domain.ActionCommit, version.Action)
}

func TestCommitRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Commit(ctx, newCar(1, "Honda Brio", "250000"), CommitRequest{Action: "merge"})
	assert.Error(t, err)

	_, err = f.service.Commit(ctx, newCar(1, "Honda Brio", "250000"), CommitRequest{Branch: "bad branch"})
	assert.Error(t, err)

	_, err = f.service.Commit(ctx, nil, CommitRequest{})
	assert.Error(t, err)
}

func TestDeleteKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := scenarioA(t, f)

	deleted, err := f.service.CommitDelete(ctx, e, "admin", "")
	require.NoError(t, err)
	f.table.remove(e.id)

	assert.Equal(t, int64(3), deleted.VersionNumber)
	assert.Equal(t, domain.ActionDelete, deleted.Action)
	_, ok := f.table.get(7)
	assert.False(t, ok)

	history, err := f.service.History(ctx, "car", 7, "", 0)
	require.NoError(t, err)
	assert.Len(t, history, 3)
	assert.True(t, history[0].IsCurrent)
}

func TestRollbackRecreatesDeletedRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := scenarioA(t, f)
	deleted, err := f.service.CommitDelete(ctx, e, "admin", "")
	require.NoError(t, err)
	f.table.remove(e.id)

	result, err := f.service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 7, Version: versionNumber(1), Author: "supervisor"})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Recreated)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, int64(1), result.Target.VersionNumber)
	assert.Equal(t, int64(4), result.Version.VersionNumber)
	assert.Equal(t, domain.ActionRollback, result.Version.Action)
	assert.Equal(t, "rollback to version 1", result.Version.Message)
	assert.Equal(t, "supervisor", result.Version.Author)
	require.NotNil(t, result.Version.ParentID)
	assert.Equal(t, deleted.ID, *result.Version.ParentID)
	require.NotNil(t, result.Version.RestoredFrom)
	assert.Equal(t, result.Target.ID, *result.Version.RestoredFrom)

	row, ok := f.table.get(7)
	require.True(t, ok, "row must be recreated")
	assert.Equal(t, "available", row.status)
	assert.Equal(t, "Toyota Avanza", row.brand)
	assert.True(t, row.dailyRate.Equal(decimal.RequireFromString("350000")))

	history, err := f.service.History(ctx, "car", 7, "", 0)
	require.NoError(t, err)
	assert.Len(t, history, 4)
	assert.True(t, history[0].IsCurrent)
	assertSingleCurrent(t, history)
	assertLinearChain(t, history)
}

func TestRollbackOverwritesLiveRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scenarioA(t, f)

	result, err := f.service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 7})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Recreated)
	assert.Equal(t, int64(1), result.Target.VersionNumber)
	assert.Equal(t, domain.SystemAuthor, result.Version.Author)

	row, _ := f.table.get(7)
	assert.Equal(t, "available", row.status)
	assert.False(t, row.updatedAt.IsZero())
}

func TestRollbackToMissingVersionHasNoEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scenarioA(t, f)
	before, _ := f.table.get(7)

	result, err := f.service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 7, Version: versionNumber(999)})
	require.NoError(t, err)
	assert.Nil(t, result)

	history, err := f.service.History(ctx, "car", 7, "", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	after, _ := f.table.get(7)
	assert.Equal(t, before, after)
	assert.Equal(t, logrus.WarnLevel, f.logs.LastEntry().Level)
}

func TestRollbackWithoutParentReturnsNil(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := newCar(3, "Suzuki Ertiga", "300000")
	f.table.put(e)
	_, err := f.service.CommitCreate(ctx, e, "admin", "")
	require.NoError(t, err)

	result, err := f.service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 3})
	require.NoError(t, err)
	assert.Nil(t, result)

	result, err = f.service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 404})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRollbackUnknownTypeReturnsNil(t *testing.T) {
	f := newFixture(t)
	result, err := f.service.Rollback(context.Background(), RollbackRequest{EntityType: "boat", EntityID: 1, Version: versionNumber(1)})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRollbackFailureLeavesNoPartialState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scenarioA(t, f)
	f.table.failSaves = true

	result, err := f.service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 7, Version: versionNumber(1)})
	require.Error(t, err)
	assert.Nil(t, result)

	history, err := f.service.History(ctx, "car", 7, "", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	row, _ := f.table.get(7)
	assert.Equal(t, "rented", row.status)
}

// failingCommitRepo fails every insert so a rollback's row write must be undone.
type failingCommitRepo struct {
	*repository.MemoryVersionRepository
	failInserts bool
}

func (r *failingCommitRepo) WithTx(ctx context.Context, fn func(tx repository.VersionTx) error) error {
	return r.MemoryVersionRepository.WithTx(ctx, func(tx repository.VersionTx) error {
		return fn(&failingInsertTx{VersionTx: tx, fail: r.failInserts})
	})
}

type failingInsertTx struct {
	repository.VersionTx
	fail bool
}

func (t *failingInsertTx) Insert(ctx context.Context, version domain.Version) (domain.Version, error) {
	if t.fail {
		return domain.Version{}, errors.New("insert failed")
	}
	return t.VersionTx.Insert(ctx, version)
}

func TestRollbackUndoesRowWriteWhenCommitFails(t *testing.T) {
	table := newCarTable()
	registry, err := NewRegistry(table)
	require.NoError(t, err)
	repo := &failingCommitRepo{MemoryVersionRepository: repository.NewMemoryVersionRepository()}
	service := NewService(repo, registry)
	ctx := context.Background()

	e := newCar(7, "Toyota Avanza", "350000")
	table.put(e)
	_, err = service.CommitCreate(ctx, e, "admin", "")
	require.NoError(t, err)
	_, err = service.CommitDelete(ctx, e, "admin", "")
	require.NoError(t, err)
	table.remove(7)

	repo.failInserts = true
	_, err = service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 7, Version: versionNumber(1)})
	require.Error(t, err)

	_, ok := table.get(7)
	assert.False(t, ok, "recreated row must be removed when the commit fails")
	current, err := service.CurrentVersion(ctx, "car", 7, "")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, int64(2), current.VersionNumber)
}

func TestRepeatedUndoReachesFirstCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := newCar(9, "Daihatsu Xenia", "300000")
	statuses := []string{"available", "rented", "maintenance", "rented", "retired"}
	for i, status := range statuses {
		e.status = status
		f.table.put(e)
		action := domain.ActionUpdate
		if i == 0 {
			action = domain.ActionCreate
		}
		_, err := f.service.Commit(ctx, e, CommitRequest{Action: action, Author: "admin"})
		require.NoError(t, err)
	}

	for i := len(statuses) - 2; i >= 0; i-- {
		result, err := f.service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 9})
		require.NoError(t, err)
		require.NotNil(t, result, "undo to %s", statuses[i])
		row, _ := f.table.get(9)
		assert.Equal(t, statuses[i], row.status)
	}

	first, err := f.service.GetVersion(ctx, "car", 9, 1, "")
	require.NoError(t, err)
	current, err := f.service.CurrentVersion(ctx, "car", 9, "")
	require.NoError(t, err)
	assert.Empty(t, f.service.CompareVersions(*first, *current))

	result, err := f.service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 9})
	require.NoError(t, err)
	assert.Nil(t, result, "nothing precedes the first commit")
}

func TestUndoAfterExplicitRollbackRestoresPriorState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := newCar(11, "Honda Brio", "250000")
	for i, status := range []string{"available", "rented", "maintenance"} {
		e.status = status
		f.table.put(e)
		action := domain.ActionUpdate
		if i == 0 {
			action = domain.ActionCreate
		}
		_, err := f.service.Commit(ctx, e, CommitRequest{Action: action, Author: "admin"})
		require.NoError(t, err)
	}

	explicit, err := f.service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 11, Version: versionNumber(1)})
	require.NoError(t, err)
	require.NotNil(t, explicit)
	assert.Equal(t, int64(4), explicit.Version.VersionNumber)
	assert.False(t, explicit.Version.Undo)
	row, _ := f.table.get(11)
	assert.Equal(t, "available", row.status)

	undo, err := f.service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 11})
	require.NoError(t, err)
	require.NotNil(t, undo, "an explicit rollback can be undone")
	assert.Equal(t, int64(3), undo.Target.VersionNumber)
	assert.True(t, undo.Version.Undo)
	require.NotNil(t, undo.Version.RestoredFrom)
	assert.Equal(t, undo.Target.ID, *undo.Version.RestoredFrom)
	row, _ = f.table.get(11)
	assert.Equal(t, "maintenance", row.status)

	again, err := f.service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 11})
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, int64(2), again.Target.VersionNumber)
	row, _ = f.table.get(11)
	assert.Equal(t, "rented", row.status)
}

func TestHistoryIsIdempotentAndBounded(t *testing.T) {
	f := newFixture(t, WithHistoryLimit(3))
	ctx := context.Background()
	e := newCar(2, "Mitsubishi Xpander", "400000")
	for i := 0; i < 5; i++ {
		e.status = []string{"a", "b", "c", "d", "e"}[i]
		_, err := f.service.CommitUpdate(ctx, e, "admin", "")
		require.NoError(t, err)
	}

	first, err := f.service.History(ctx, "car", 2, "", 0)
	require.NoError(t, err)
	second, err := f.service.History(ctx, "car", 2, "", 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)

	limited, err := f.service.History(ctx, "car", 2, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, int64(5), limited[0].VersionNumber)
}

func TestCompareVersionNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scenarioA(t, f)

	diff, err := f.service.CompareVersionNumbers(ctx, "car", 7, "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.ValueDiff{"status": {A: "available", B: "rented"}}, diff)

	_, err = f.service.CompareVersionNumbers(ctx, "car", 7, "", 1, 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestChangesFromParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scenarioA(t, f)

	history, err := f.service.History(ctx, "car", 7, "", 0)
	require.NoError(t, err)

	changes, err := f.service.ChangesFromParent(ctx, history[0])
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.FieldChange{"status": {Old: "available", New: "rented"}}, changes)

	changes, err = f.service.ChangesFromParent(ctx, history[1])
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestCleanupKeepsNewestVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := newCar(5, "Toyota Innova", "500000")
	for i := 0; i < 5; i++ {
		e.status = []string{"a", "b", "c", "d", "e"}[i]
		_, err := f.service.CommitUpdate(ctx, e, "admin", "")
		require.NoError(t, err)
	}
	other := newCar(6, "Honda Jazz", "280000")
	_, err := f.service.CommitCreate(ctx, other, "admin", "")
	require.NoError(t, err)

	result, err := f.service.Cleanup(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Deleted)
	assert.Equal(t, 2, result.Chains)

	history, err := f.service.History(ctx, "car", 5, "", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(5), history[0].VersionNumber)
	assert.Equal(t, int64(4), history[1].VersionNumber)
	assert.True(t, history[0].IsCurrent)

	changes, err := f.service.ChangesFromParent(ctx, history[1])
	require.NoError(t, err)
	assert.Empty(t, changes, "pruned parents yield no changes")

	_, err = f.service.Cleanup(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidKeepLast)
}

func TestCreateBranchCopiesCurrentVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := newCar(7, "Toyota Avanza", "350000")
	for i := 0; i < 5; i++ {
		e.status = []string{"a", "b", "c", "d", "e"}[i]
		_, err := f.service.CommitUpdate(ctx, e, "admin", "")
		require.NoError(t, err)
	}
	mainCurrent, err := f.service.CurrentVersion(ctx, "car", 7, "main")
	require.NoError(t, err)

	branched, err := f.service.CreateBranch(ctx, BranchRequest{EntityType: "car", EntityID: 7, Name: "experiment", Author: "analyst"})
	require.NoError(t, err)
	require.NotNil(t, branched)
	assert.Equal(t, int64(1), branched.VersionNumber)
	assert.Equal(t, "experiment", branched.Branch)
	assert.True(t, branched.IsCurrent)
	assert.Equal(t, domain.ActionCommit, branched.Action)
	assert.Equal(t, "branch created from main v5", branched.Message)
	require.NotNil(t, branched.ParentID)
	assert.Equal(t, mainCurrent.ID, *branched.ParentID)
	assert.True(t, mainCurrent.Snapshot.Equal(branched.Snapshot))

	experiment, err := f.service.History(ctx, "car", 7, "experiment", 0)
	require.NoError(t, err)
	assert.Len(t, experiment, 1)

	mainHistory, err := f.service.History(ctx, "car", 7, "main", 0)
	require.NoError(t, err)
	assert.Len(t, mainHistory, 5)
	assert.True(t, mainHistory[0].IsCurrent)

	branches, err := f.service.ListBranches(ctx, "car", 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "experiment"}, branches)

	_, err = f.service.CreateBranch(ctx, BranchRequest{EntityType: "car", EntityID: 7, Name: "experiment"})
	assert.ErrorIs(t, err, ErrBranchExists)

	missing, err := f.service.CreateBranch(ctx, BranchRequest{EntityType: "car", EntityID: 404, Name: "experiment"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	result, err := f.service.Rollback(ctx, RollbackRequest{EntityType: "car", EntityID: 7, Branch: "experiment"})
	require.NoError(t, err)
	assert.Nil(t, result, "undo does not cross into the source branch")
}

func TestConcurrentCommitsKeepChainConsistent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := newCar(11, "Nissan Livina", "320000")
			e.status = string(rune('a' + i))
			_, err := f.service.CommitUpdate(ctx, e, "admin", "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := f.service.History(ctx, "car", 11, "", 100)
	require.NoError(t, err)
	require.Len(t, history, 20)
	for i, v := range history {
		assert.Equal(t, int64(20-i), v.VersionNumber)
	}
	assertSingleCurrent(t, history)
	assertLinearChain(t, history)
}

// flakyRepo fails the first transactions with a lost race.
type flakyRepo struct {
	*repository.MemoryVersionRepository
	failures int
	attempts int
}

func (r *flakyRepo) WithTx(ctx context.Context, fn func(tx repository.VersionTx) error) error {
	r.attempts++
	if r.attempts <= r.failures {
		return repository.ErrConcurrentModification
	}
	return r.MemoryVersionRepository.WithTx(ctx, fn)
}

func TestCommitRetriesTransientFailures(t *testing.T) {
	repo := &flakyRepo{MemoryVersionRepository: repository.NewMemoryVersionRepository(), failures: 2}
	f := newFixture(t)
	service := NewService(repo, f.service.Registry(), WithBackOff(f.service.newBackOff), WithMaxRetries(3))

	version, err := service.CommitCreate(context.Background(), newCar(1, "Honda Brio", "250000"), "admin", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version.VersionNumber)
	assert.Equal(t, 3, repo.attempts)
}

func TestCommitSurfacesExhaustedRetries(t *testing.T) {
	repo := &flakyRepo{MemoryVersionRepository: repository.NewMemoryVersionRepository(), failures: 10}
	f := newFixture(t)
	service := NewService(repo, f.service.Registry(), WithBackOff(f.service.newBackOff), WithMaxRetries(2))

	_, err := service.CommitCreate(context.Background(), newCar(1, "Honda Brio", "250000"), "admin", "")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, repo.attempts)
}

func TestFormatHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	text, err := f.service.FormatHistory(ctx, "car", 7, "")
	require.NoError(t, err)
	assert.Equal(t, "No version history for car #7 on main", text)

	scenarioA(t, f)
	text, err = f.service.FormatHistory(ctx, "car", 7, "")
	require.NoError(t, err)
	assert.Contains(t, text, "Version history for car #7 (main)")
	assert.Contains(t, text, "v2 [CURRENT] UPDATE by admin")
	assert.Contains(t, text, "changes: status: available -> rented")
	assert.Contains(t, text, "v1 CREATE by admin")
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scenarioA(t, f)

	stats, err := f.service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.ByEntityType["car"])
	assert.Equal(t, int64(1), stats.ByAction[domain.ActionCreate])
	assert.Equal(t, int64(1), stats.ByAction[domain.ActionUpdate])
}
