package sqlite

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"etlrepo/internal/dialect"
	"etlrepo/internal/domain"
)

// Store owns the database handle, the schema and the lock registry shared
// by all sessions opened on it.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
	locks   *LockRegistry
	logger  *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used by the store and its sessions
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLockRegistry shares a registry between stores of one process
func WithLockRegistry(locks *LockRegistry) Option {
	return func(s *Store) {
		if locks != nil {
			s.locks = locks
		}
	}
}

// Open opens (and if needed creates) the repository in the SQLite file at
// path. ":memory:" opens a private in-memory repository.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	d := dialect.SQLiteDialect{}
	dsn, err := d.BuildURL(dialect.ConnectionSpec{
		Database: path,
		Options: map[string]string{
			"_pragma": "busy_timeout(5000)",
			"_txlock": "immediate",
		},
	})
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database lives in its connection, and
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:      db,
		dialect: d,
		locks:   NewLockRegistry(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s.logger.Debug("repository store opened", zap.String("path", path))
	return s, nil
}

// migrate creates every missing table and index
func (s *Store) migrate(ctx context.Context) error {
	for _, table := range schemaTables() {
		for _, stmt := range s.dialect.CreateTable(table) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", table.Name, err)
			}
		}
	}
	return nil
}

// SchemaDDL returns the DDL statements of the repository schema
func (s *Store) SchemaDDL() []string {
	var out []string
	for _, table := range schemaTables() {
		out = append(out, s.dialect.CreateTable(table)...)
	}
	return out
}

// Locks returns the store's lock registry
func (s *Store) Locks() *LockRegistry {
	return s.locks
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Repository is one session on a Store. It caches the directory tree and the
// shared objects; Refresh reloads them from the backing store.
type Repository struct {
	store  *Store
	db     *sqlx.DB
	locks  *LockRegistry
	logger *zap.Logger

	lockSource string
	user       string

	mu     sync.RWMutex
	tree   *domain.DirectoryNode
	shared *domain.SharedObjectSet
	closed bool
}

// Connect opens a session. An empty lockSource gets a generated identity;
// a non-empty login binds the session to an existing, enabled user.
func (s *Store) Connect(ctx context.Context, lockSource, login string) (*Repository, error) {
	if strings.TrimSpace(lockSource) == "" {
		lockSource = uuid.NewString()
	}
	r := &Repository{
		store:      s,
		db:         s.db,
		locks:      s.locks,
		logger:     s.logger.With(zap.String("lock_source", lockSource)),
		lockSource: lockSource,
	}

	if login != "" {
		u, err := r.LoadUser(ctx, login)
		if err != nil {
			return nil, fmt.Errorf("connect as %s: %w", login, err)
		}
		if !u.Enabled {
			return nil, fmt.Errorf("connect as %s: user is disabled", login)
		}
		r.user = u.Login
	}

	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	r.logger.Info("session connected", zap.String("user", r.user))
	return r, nil
}

// LockSource returns the identity the session takes locks under
func (r *Repository) LockSource() string {
	return r.lockSource
}

// UserLogin returns the login of the bound user, or the lock source when
// the session is anonymous.
func (r *Repository) UserLogin() string {
	if r.user != "" {
		return r.user
	}
	return r.lockSource
}

// Refresh reloads the directory tree and the shared object cache
func (r *Repository) Refresh(ctx context.Context) error {
	tree, err := loadDirectoryTree(ctx, r.db, r.logger)
	if err != nil {
		return err
	}
	shared, err := loadSharedObjects(ctx, r.db)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.tree = tree
	r.shared = shared
	r.mu.Unlock()
	return nil
}

// Disconnect releases the session's object locks. The store stays open.
func (r *Repository) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if n := r.locks.ReleaseOwner(r.lockSource); n > 0 {
		r.logger.Info("released object locks on disconnect", zap.Int("count", n))
	}
	return nil
}

// withRepositoryLock runs fn while holding the repository-wide lock and
// releases it on every exit path.
func (r *Repository) withRepositoryLock(ctx context.Context, fn func() error) error {
	if err := r.locks.LockRepository(ctx, r.lockSource); err != nil {
		return fmt.Errorf("acquire repository lock: %w", err)
	}
	defer func() {
		if err := r.locks.UnlockRepository(r.lockSource); err != nil {
			r.logger.Error("failed to release repository lock", zap.Error(err))
		}
	}()
	return fn()
}
