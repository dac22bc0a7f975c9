package sqlite

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"etlrepo/internal/domain"
)

// LockRegistry holds the object locks and the repository-wide lock of one
// process. It is shared by every session of a Store and does not survive a
// restart.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[domain.LockKey]domain.Lock

	// repo is a one-slot semaphore; holding the token means holding the
	// repository lock.
	repo      chan struct{}
	repoOwner string

	now func() time.Time
}

// NewLockRegistry creates an empty registry
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{
		locks: make(map[domain.LockKey]domain.Lock),
		repo:  make(chan struct{}, 1),
		now:   time.Now,
	}
}

// Lock takes the lock on key for owner. It is re-entrant for the same owner
// (the message is updated) and fails with a *domain.LockedError when another
// owner holds it.
func (l *LockRegistry) Lock(key domain.LockKey, owner, message string) (domain.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.locks[key]; ok && existing.Owner != owner {
		return domain.Lock{}, &domain.LockedError{Lock: existing}
	}
	lock := domain.Lock{
		Kind:     key.Kind,
		ObjectID: key.ID,
		Owner:    owner,
		Message:  message,
		LockedAt: l.now(),
	}
	l.locks[key] = lock
	return lock, nil
}

// Unlock releases the lock on key; it is a no-op when key is not locked.
func (l *LockRegistry) Unlock(key domain.LockKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, key)
}

// IsLocked returns the live lock on key
func (l *LockRegistry) IsLocked(key domain.LockKey) (domain.Lock, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	return lock, ok
}

// List returns all live locks ordered by acquisition time
func (l *LockRegistry) List() []domain.Lock {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Lock, 0, len(l.locks))
	for _, lock := range l.locks {
		out = append(out, lock)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LockedAt.Equal(out[j].LockedAt) {
			return out[i].ObjectID < out[j].ObjectID
		}
		return out[i].LockedAt.Before(out[j].LockedAt)
	})
	return out
}

// ReleaseOwner drops every object lock held by owner and returns how many
// were released.
func (l *LockRegistry) ReleaseOwner(owner string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, lock := range l.locks {
		if lock.Owner == owner {
			delete(l.locks, key)
			n++
		}
	}
	return n
}

// checkWritable fails when key is locked by someone other than owner
func (l *LockRegistry) checkWritable(key domain.LockKey, owner string) error {
	if lock, ok := l.IsLocked(key); ok && lock.Owner != owner {
		return &domain.LockedError{Lock: lock}
	}
	return nil
}

// LockRepository blocks until the repository lock is acquired or ctx is
// done. The lock is not re-entrant: a holder calling it again waits on
// itself until ctx expires.
func (l *LockRegistry) LockRepository(ctx context.Context, owner string) error {
	select {
	case l.repo <- struct{}{}:
		l.mu.Lock()
		l.repoOwner = owner
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UnlockRepository releases the repository lock held by owner. It is a
// no-op when the lock is free and fails with ErrAlreadyLocked when another
// owner holds it.
func (l *LockRegistry) UnlockRepository(owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.repo) == 0 {
		return nil
	}
	if l.repoOwner != owner {
		return fmt.Errorf("repository lock is held by %q: %w", l.repoOwner, domain.ErrAlreadyLocked)
	}
	l.repoOwner = ""
	<-l.repo
	return nil
}

// RepositoryLockOwner returns the current holder of the repository lock
func (l *LockRegistry) RepositoryLockOwner() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.repoOwner, len(l.repo) > 0
}
