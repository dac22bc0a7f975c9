package domain

import "time"

// LockKey identifies a lockable object
type LockKey struct {
	Kind Kind
	ID   ObjectID
}

// Lock is a live advisory lock on one object
type Lock struct {
	Kind     Kind      `json:"kind"`
	ObjectID ObjectID  `json:"object_id"`
	Owner    string    `json:"owner"`
	Message  string    `json:"message,omitempty"`
	LockedAt time.Time `json:"locked_at"`
}

// Key returns the key the lock is held under
func (l Lock) Key() LockKey {
	return LockKey{Kind: l.Kind, ID: l.ObjectID}
}

// LogEntry is one row of the repository change log
type LogEntry struct {
	ID          ObjectID  `json:"id"`
	Version     string    `json:"version"`
	Date        time.Time `json:"date"`
	User        string    `json:"user"`
	Description string    `json:"description"`
}
