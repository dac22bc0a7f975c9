package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etlrepo/internal/domain"
)

func TestCreateDirectoryRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	paths := []string{"/etl", "/etl/daily", "/etl/weekly/archive", "/staging"}
	for _, p := range paths {
		node := mustMkdir(t, repo, p)
		assert.Equal(t, p, node.Path())

		found, err := repo.FindDirectorySegments(domain.SplitPath(node.Path()))
		require.NoError(t, err)
		assert.Same(t, node, found)
	}

	root, err := repo.FindDirectory("/")
	require.NoError(t, err)
	assert.True(t, root.IsRoot())

	// Intermediate segments were created once and are reused.
	assert.Equal(t, 5, countRows(t, repo, "SELECT COUNT(*) FROM r_directory"))
}

func TestCreateDirectoryReusesExistingSegments(t *testing.T) {
	repo := newTestRepo(t)

	daily := mustMkdir(t, repo, "/etl/daily")
	again := mustMkdir(t, repo, "/ETL/Daily")
	assert.Same(t, daily, again)

	etl, err := repo.FindDirectory("/etl")
	require.NoError(t, err)
	sub, err := repo.CreateDirectory(context.Background(), etl, "hourly")
	require.NoError(t, err)
	assert.Equal(t, "/etl/hourly", sub.Path())
}

func TestCreateDirectoryPersistsParents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := newTestSession(t, store, "a")
	mustMkdir(t, a, "/etl/daily/orders")

	b := newTestSession(t, store, "b")
	node, err := b.FindDirectory("/etl/daily/orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", node.Name)
	assert.Equal(t, "daily", node.Parent().Name)
	require.NoError(t, b.Refresh(ctx))
}

func TestCreateDirectoryWithStaleTree(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := newTestSession(t, store, "a")
	b := newTestSession(t, store, "b")

	etl := mustMkdir(t, a, "/etl")
	_, err := b.FindDirectory("/etl")
	require.ErrorIs(t, err, domain.ErrNotFound)

	daily, err := b.CreateDirectory(ctx, nil, "/ETL/daily")
	require.NoError(t, err)
	assert.Equal(t, etl.ID, daily.Parent().ID)
	assert.Equal(t, "/etl/daily", daily.Path())
	assert.Equal(t, 1, countRows(t, a, "SELECT COUNT(*) FROM r_directory WHERE LOWER(directory_name) = 'etl'"))

	// b's new directory hangs below a's row, so a sees it after a refresh.
	_, err = b.Save(ctx, domain.NewTransformation("load_orders", "/etl/daily"), "")
	require.NoError(t, err)
	require.NoError(t, a.Refresh(ctx))
	ok, err := a.Exists(ctx, domain.KindTransformation, "load_orders", "/etl/daily")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFindDirectoryNeverReturnsPartialMatch(t *testing.T) {
	repo := newTestRepo(t)
	mustMkdir(t, repo, "/etl/daily")

	_, err := repo.FindDirectory("/etl/daily/missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.FindDirectory("/missing/daily")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteDirectoryNotEmpty(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	etl := mustMkdir(t, repo, "/etl")
	mustMkdir(t, repo, "/etl/daily")

	_, err := repo.Save(ctx, sampleTransformation("load_orders", "/etl/daily"), "")
	require.NoError(t, err)

	tables := []string{"r_directory", "r_transformation", "r_step", "r_step_attribute", "r_trans_hop", "r_note"}
	before := make(map[string]int)
	for _, table := range tables {
		before[table] = countRows(t, repo, "SELECT COUNT(*) FROM "+table)
	}

	err = repo.DeleteDirectory(ctx, etl, false)
	assert.ErrorIs(t, err, domain.ErrNotEmpty)

	for _, table := range tables {
		assert.Equal(t, before[table], countRows(t, repo, "SELECT COUNT(*) FROM "+table), table)
	}
	_, err = repo.FindDirectory("/etl/daily")
	assert.NoError(t, err, "the cached tree is unchanged")
}

func TestDeleteDirectoryCascade(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	etl := mustMkdir(t, repo, "/etl")
	mustMkdir(t, repo, "/etl/daily/deep")
	mustMkdir(t, repo, "/keep")

	_, err := repo.Save(ctx, sampleTransformation("t1", "/etl/daily"), "")
	require.NoError(t, err)
	_, err = repo.Save(ctx, sampleJob("j1", "/etl/daily/deep"), "")
	require.NoError(t, err)
	_, err = repo.Save(ctx, domain.NewTransformation("t2", "/keep"), "")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteDirectory(ctx, etl, true))

	_, err = repo.FindDirectory("/etl")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, countRows(t, repo, "SELECT COUNT(*) FROM r_directory"))
	assert.Equal(t, 1, countRows(t, repo, "SELECT COUNT(*) FROM r_transformation"))
	assert.Equal(t, 0, countRows(t, repo, "SELECT COUNT(*) FROM r_job"))
	assert.Equal(t, 0, countRows(t, repo, "SELECT COUNT(*) FROM r_step WHERE id_transformation NOT IN (SELECT id_transformation FROM r_transformation)"))
}

func TestDeleteEmptyDirectory(t *testing.T) {
	repo := newTestRepo(t)
	daily := mustMkdir(t, repo, "/etl/daily")

	require.NoError(t, repo.DeleteDirectory(context.Background(), daily, false))
	_, err := repo.FindDirectory("/etl/daily")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.FindDirectory("/etl")
	assert.NoError(t, err)
}

func TestDeleteDirectoryWithLockedObject(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	owner := newTestSession(t, store, "owner")
	other := newTestSession(t, store, "other")

	mustMkdir(t, owner, "/etl")
	id, err := owner.Save(ctx, domain.NewTransformation("t", "/etl"), "")
	require.NoError(t, err)
	_, err = owner.LockObject(ctx, domain.KindTransformation, id, "editing")
	require.NoError(t, err)

	require.NoError(t, other.Refresh(ctx))
	etl, err := other.FindDirectory("/etl")
	require.NoError(t, err)
	err = other.DeleteDirectory(ctx, etl, true)
	assert.ErrorIs(t, err, domain.ErrAlreadyLocked)
	assert.Equal(t, 1, countRows(t, other, "SELECT COUNT(*) FROM r_transformation"))
}

func TestDeleteRootDirectory(t *testing.T) {
	repo := newTestRepo(t)
	assert.Error(t, repo.DeleteDirectory(context.Background(), repo.Root(), true))
}

func TestRenameDirectory(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	daily := mustMkdir(t, repo, "/etl/daily")
	mustMkdir(t, repo, "/etl/weekly")

	require.NoError(t, repo.RenameDirectory(ctx, daily, "nightly"))
	assert.Equal(t, "/etl/nightly", daily.Path())

	found, err := repo.FindDirectory("/etl/nightly")
	require.NoError(t, err)
	assert.Same(t, daily, found)

	err = repo.RenameDirectory(ctx, daily, "Weekly")
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	assert.Error(t, repo.RenameDirectory(ctx, daily, "a/b"))
	assert.Error(t, repo.RenameDirectory(ctx, repo.Root(), "x"))
}
