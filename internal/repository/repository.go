package repository

import (
	"context"

	"etlrepo/internal/domain"
)

// Repository is one connected session on the metadata repository
type Repository interface {
	// Session
	LockSource() string
	UserLogin() string
	Refresh(ctx context.Context) error
	Disconnect() error

	// Directory namespace
	Root() *domain.DirectoryNode
	FindDirectory(path string) (*domain.DirectoryNode, error)
	CreateDirectory(ctx context.Context, parent *domain.DirectoryNode, path string) (*domain.DirectoryNode, error)
	DeleteDirectory(ctx context.Context, dir *domain.DirectoryNode, cascade bool) error
	RenameDirectory(ctx context.Context, dir *domain.DirectoryNode, newName string) error

	// Objects
	ListObjects(ctx context.Context, kind domain.Kind, dir *domain.DirectoryNode) ([]domain.ObjectInfo, error)
	Exists(ctx context.Context, kind domain.Kind, name, directory string) (bool, error)
	LookupID(ctx context.Context, kind domain.Kind, name, directory string) (domain.ObjectID, error)
	Save(ctx context.Context, obj domain.RepositoryObject, comment string) (domain.ObjectID, error)
	Load(ctx context.Context, kind domain.Kind, id domain.ObjectID) (domain.RepositoryObject, error)
	DelAll(ctx context.Context, kind domain.Kind, id domain.ObjectID) error
	RenameObject(ctx context.Context, kind domain.Kind, id domain.ObjectID, newName, newDirectory string) error

	// Shared objects
	SharedObjects() *domain.SharedObjectSet
	RefreshSharedObjects(ctx context.Context) error

	// Locks
	LockObject(ctx context.Context, kind domain.Kind, id domain.ObjectID, message string) (domain.Lock, error)
	UnlockObject(ctx context.Context, kind domain.Kind, id domain.ObjectID) error
	IsLocked(kind domain.Kind, id domain.ObjectID) (domain.Lock, bool)
	ListLocks() []domain.Lock

	// Change log
	ListLog(ctx context.Context, limit int) ([]domain.LogEntry, error)
}
