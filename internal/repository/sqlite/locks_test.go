package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"etlrepo/internal/domain"
)

func TestLockRegistryExclusion(t *testing.T) {
	reg := NewLockRegistry()
	key := domain.LockKey{Kind: domain.KindTransformation, ID: 1}

	_, err := reg.Lock(key, "a", "editing")
	require.NoError(t, err)

	_, err = reg.Lock(key, "b", "me too")
	require.ErrorIs(t, err, domain.ErrAlreadyLocked)
	var locked *domain.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, "a", locked.Lock.Owner)

	// Re-entrant for the same owner.
	lock, err := reg.Lock(key, "a", "still editing")
	require.NoError(t, err)
	assert.Equal(t, "still editing", lock.Message)

	reg.Unlock(key)
	_, ok := reg.IsLocked(key)
	assert.False(t, ok)
	reg.Unlock(key)

	_, err = reg.Lock(key, "b", "my turn")
	assert.NoError(t, err)
}

func TestLockRegistryConcurrentLock(t *testing.T) {
	reg := NewLockRegistry()
	key := domain.LockKey{Kind: domain.KindJob, ID: 9}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			if _, err := reg.Lock(key, owner, ""); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestLockRegistryReleaseOwner(t *testing.T) {
	reg := NewLockRegistry()
	for i := 1; i <= 3; i++ {
		_, err := reg.Lock(domain.LockKey{Kind: domain.KindTransformation, ID: domain.ObjectID(i)}, "a", "")
		require.NoError(t, err)
	}
	_, err := reg.Lock(domain.LockKey{Kind: domain.KindJob, ID: 1}, "b", "")
	require.NoError(t, err)

	assert.Equal(t, 3, reg.ReleaseOwner("a"))
	locks := reg.List()
	require.Len(t, locks, 1)
	assert.Equal(t, "b", locks[0].Owner)
}

func TestRepositoryLockBlocksUntilReleased(t *testing.T) {
	reg := NewLockRegistry()
	require.NoError(t, reg.LockRepository(context.Background(), "a"))
	owner, held := reg.RepositoryLockOwner()
	assert.True(t, held)
	assert.Equal(t, "a", owner)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, reg.LockRepository(ctx, "b"), context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		if err := reg.LockRepository(context.Background(), "b"); err == nil {
			close(acquired)
		}
	}()
	assert.ErrorIs(t, reg.UnlockRepository("b"), domain.ErrAlreadyLocked)
	require.NoError(t, reg.UnlockRepository("a"))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("repository lock was not handed over")
	}
	owner, _ = reg.RepositoryLockOwner()
	assert.Equal(t, "b", owner)
	require.NoError(t, reg.UnlockRepository("b"))
	require.NoError(t, reg.UnlockRepository("b"))
	_, held = reg.RepositoryLockOwner()
	assert.False(t, held)
}

func TestSessionLocks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a := newTestSession(t, store, "a")
	b := newTestSession(t, store, "b")

	id, err := a.Save(ctx, domain.NewTransformation("t", "/"), "")
	require.NoError(t, err)

	_, err = a.LockObject(ctx, domain.KindTransformation, id, "editing")
	require.NoError(t, err)

	_, err = b.LockObject(ctx, domain.KindTransformation, id, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyLocked)

	lock, ok := b.IsLocked(domain.KindTransformation, id)
	require.True(t, ok)
	assert.Equal(t, "a", lock.Owner)
	assert.Len(t, b.ListLocks(), 1)

	t.Run("other session cannot save, delete, rename or unlock", func(t *testing.T) {
		obj, err := b.Load(ctx, domain.KindTransformation, id)
		require.NoError(t, err)
		_, err = b.Save(ctx, obj, "")
		assert.ErrorIs(t, err, domain.ErrAlreadyLocked)
		assert.ErrorIs(t, b.DelAll(ctx, domain.KindTransformation, id), domain.ErrAlreadyLocked)
		assert.ErrorIs(t, b.RenameObject(ctx, domain.KindTransformation, id, "x", ""), domain.ErrAlreadyLocked)
		assert.ErrorIs(t, b.UnlockObject(ctx, domain.KindTransformation, id), domain.ErrAlreadyLocked)
	})

	t.Run("owner can save", func(t *testing.T) {
		obj, err := a.Load(ctx, domain.KindTransformation, id)
		require.NoError(t, err)
		_, err = a.Save(ctx, obj, "")
		assert.NoError(t, err)
	})

	require.NoError(t, a.UnlockObject(ctx, domain.KindTransformation, id))
	require.NoError(t, a.UnlockObject(ctx, domain.KindTransformation, id))
	_, err = b.LockObject(ctx, domain.KindTransformation, id, "")
	assert.NoError(t, err)
}

func TestLockMissingObject(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.LockObject(context.Background(), domain.KindJob, 42, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDisconnectReleasesLocks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	a, err := store.Connect(ctx, "a", "")
	require.NoError(t, err)
	b := newTestSession(t, store, "b")

	id, err := a.Save(ctx, domain.NewJob("j", "/"), "")
	require.NoError(t, err)
	_, err = a.LockObject(ctx, domain.KindJob, id, "")
	require.NoError(t, err)

	require.NoError(t, a.Disconnect())
	require.NoError(t, a.Disconnect())
	_, ok := b.IsLocked(domain.KindJob, id)
	assert.False(t, ok)
}

func TestSaveWaitsForRepositoryLock(t *testing.T) {
	store := newTestStore(t)
	repo := newTestSession(t, store, "a")

	require.NoError(t, store.Locks().LockRepository(context.Background(), "maintenance"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := repo.Save(ctx, domain.NewTransformation("t", "/"), "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, store.Locks().UnlockRepository("maintenance"))

	_, err = repo.Save(context.Background(), domain.NewTransformation("t", "/"), "")
	assert.NoError(t, err)
}
