package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"etlrepo/internal/domain"
)

// objectTable describes the row table of a saveable kind
type objectTable struct {
	name       string
	idColumn   string
	nameColumn string
	directory  bool
}

func objectTableFor(kind domain.Kind) (objectTable, error) {
	switch kind {
	case domain.KindTransformation:
		return objectTable{name: "r_transformation", idColumn: "id_transformation", nameColumn: "name", directory: true}, nil
	case domain.KindJob:
		return objectTable{name: "r_job", idColumn: "id_job", nameColumn: "name", directory: true}, nil
	case domain.KindDatabase:
		return objectTable{name: "r_database", idColumn: "id_database", nameColumn: "name"}, nil
	case domain.KindSlaveServer:
		return objectTable{name: "r_slave", idColumn: "id_slave", nameColumn: "name"}, nil
	case domain.KindClusterSchema:
		return objectTable{name: "r_cluster", idColumn: "id_cluster", nameColumn: "name"}, nil
	case domain.KindPartitionSchema:
		return objectTable{name: "r_partition_schema", idColumn: "id_partition_schema", nameColumn: "name"}, nil
	case domain.KindUser:
		return objectTable{name: "r_user", idColumn: "id_user", nameColumn: "login"}, nil
	}
	return objectTable{}, fmt.Errorf("%s objects are not stored on their own", kind)
}

// lookupID finds an object by name (and directory for top-level kinds).
// It returns the zero id when there is no such object.
func lookupID(ctx context.Context, q execer, table objectTable, name string, dirID domain.ObjectID) (domain.ObjectID, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE LOWER(%s) = LOWER(?)", table.idColumn, table.name, table.nameColumn)
	args := []interface{}{name}
	if table.directory {
		query += " AND id_directory = ?"
		args = append(args, dirID)
	}
	ids, err := selectIDs(ctx, q, query+" ORDER BY "+table.idColumn, args...)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	return ids[0], nil
}

// rowExists reports whether the row of kind with id is stored
func rowExists(ctx context.Context, q execer, kind domain.Kind, id domain.ObjectID) (bool, error) {
	table, err := objectTableFor(kind)
	if err != nil {
		return false, err
	}
	ids, err := selectIDs(ctx, q, fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", table.idColumn, table.name, table.idColumn), id)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// resolveDirectory maps a directory path to its id for top-level kinds;
// shared kinds and users have no directory.
func (r *Repository) resolveDirectory(kind domain.Kind, directory string) (domain.ObjectID, error) {
	if !kind.IsTopLevel() {
		return 0, nil
	}
	return r.directoryID(directory)
}

// Exists reports whether an object of kind named name is stored in
// directory. A missing directory means the object does not exist.
func (r *Repository) Exists(ctx context.Context, kind domain.Kind, name, directory string) (bool, error) {
	id, err := r.LookupID(ctx, kind, name, directory)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !id.IsZero(), nil
}

// LookupID returns the id of the named object or ErrNotFound
func (r *Repository) LookupID(ctx context.Context, kind domain.Kind, name, directory string) (domain.ObjectID, error) {
	table, err := objectTableFor(kind)
	if err != nil {
		return 0, err
	}
	dirID, err := r.resolveDirectory(kind, directory)
	if err != nil {
		return 0, err
	}
	id, err := lookupID(ctx, r.db, table, name, dirID)
	if err != nil {
		return 0, err
	}
	if id.IsZero() {
		return 0, fmt.Errorf("%s %q in %s: %w", kind, name, domain.CleanPath(directory), domain.ErrNotFound)
	}
	return id, nil
}

// checkWritable fails with AlreadyLocked when another session holds the
// lock on the object.
func (r *Repository) checkWritable(kind domain.Kind, id domain.ObjectID) error {
	if id.IsZero() {
		return nil
	}
	return r.locks.checkWritable(domain.LockKey{Kind: kind, ID: id}, r.lockSource)
}

// ============================================================================
// Save
// ============================================================================

// saver carries the state of one Save. Ids are assigned to the caller's
// objects as rows are inserted; when the transaction fails they are put
// back so the caller never sees an id without a row.
type saver struct {
	r    *Repository
	q    execer
	user string
	now  time.Time

	undo   []func()
	shared []domain.SharedObject
	seen   map[domain.SharedObject]bool
}

func (r *Repository) newSaver(q execer) *saver {
	return &saver{
		r:    r,
		q:    q,
		user: r.UserLogin(),
		now:  time.Now().UTC().Truncate(time.Millisecond),
		seen: make(map[domain.SharedObject]bool),
	}
}

// assign sets *field to id and records the previous value
func (s *saver) assign(field *domain.ObjectID, id domain.ObjectID) {
	old := *field
	*field = id
	s.undo = append(s.undo, func() { *field = old })
}

// touch stamps the audit fields of obj and records their previous values
func (s *saver) touch(obj domain.DirectoryObject) {
	audit := obj.AuditInfo()
	old := *audit
	s.undo = append(s.undo, func() { *audit = old })
	audit.Touch(s.user, s.now)
}

// rollback restores every id and audit field set during the failed save
func (s *saver) rollback() {
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.undo = nil
}

// Save persists obj as one unit and returns its id. An object without an id
// is matched by kind, name and directory; when no stored object matches a
// new row is inserted, otherwise the stored object is replaced. Owned
// children and attributes are always rewritten in full. Shared objects a
// transformation or job carries are inserted when no object of that name is
// stored; otherwise the stored one is linked by id and left unchanged.
func (r *Repository) Save(ctx context.Context, obj domain.RepositoryObject, comment string) (domain.ObjectID, error) {
	if obj == nil {
		return 0, fmt.Errorf("save: nil object")
	}
	if strings.TrimSpace(obj.ObjectName()) == "" {
		return 0, fmt.Errorf("save %s: name is required", obj.Kind())
	}

	var s *saver
	err := r.withRepositoryLock(ctx, func() error {
		err := transact(ctx, r.db, func(tx *sqlx.Tx) error {
			s = r.newSaver(tx)
			if err := insertLogEntry(ctx, tx, s.user, s.now, logDescription("save", obj, comment)); err != nil {
				return err
			}
			switch o := obj.(type) {
			case *domain.Transformation:
				return s.saveTransformation(ctx, o)
			case *domain.Job:
				return s.saveJob(ctx, o)
			case *domain.DatabaseConnection, *domain.SlaveServer, *domain.ClusterSchema, *domain.PartitionSchema:
				return s.saveShared(ctx, o)
			case *domain.User:
				return s.saveUser(ctx, o)
			}
			return fmt.Errorf("save: %s objects cannot be saved", obj.Kind())
		})
		if err != nil {
			if s != nil {
				s.rollback()
			}
			return err
		}
		r.mu.RLock()
		for _, so := range s.shared {
			r.shared.Put(so)
			r.logger.Debug("shared object saved", zap.String("object", sharedLabel(so)), zap.Int64("id", int64(so.ObjectID())))
		}
		r.mu.RUnlock()
		return nil
	})
	if err != nil {
		r.logger.Warn("save failed", zap.Stringer("kind", obj.Kind()), zap.String("name", obj.ObjectName()), zap.Error(err))
		return 0, err
	}
	r.logger.Info("object saved",
		zap.Stringer("kind", obj.Kind()), zap.String("name", obj.ObjectName()), zap.Int64("id", int64(obj.ObjectID())))
	return obj.ObjectID(), nil
}

func logDescription(op string, obj domain.RepositoryObject, comment string) string {
	if strings.TrimSpace(comment) != "" {
		return comment
	}
	desc := fmt.Sprintf("%s %s %s", op, obj.Kind(), obj.ObjectName())
	if do, ok := obj.(domain.DirectoryObject); ok {
		desc += " in " + do.Directory()
	}
	return desc
}

// resolveTopLevel finds the directory and the id of a transformation or
// job being saved, and checks that no other session has it locked.
func (s *saver) resolveTopLevel(ctx context.Context, obj domain.DirectoryObject, field *domain.ObjectID) (domain.ObjectID, bool, error) {
	dirID, err := s.r.directoryID(obj.Directory())
	if err != nil {
		return 0, false, err
	}
	table, _ := objectTableFor(obj.Kind())

	id := *field
	if id.IsZero() {
		if id, err = lookupID(ctx, s.q, table, obj.ObjectName(), dirID); err != nil {
			return 0, false, err
		}
	} else {
		// The name may have changed; it still has to be unique.
		other, err := lookupID(ctx, s.q, table, obj.ObjectName(), dirID)
		if err != nil {
			return 0, false, err
		}
		if !other.IsZero() && other != id {
			return 0, false, fmt.Errorf("%s %q in %s: %w", obj.Kind(), obj.ObjectName(), obj.Directory(), domain.ErrAlreadyExists)
		}
		ok, err := rowExists(ctx, s.q, obj.Kind(), id)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			id = 0
		}
	}

	if err := s.r.checkWritable(obj.Kind(), id); err != nil {
		return 0, false, err
	}
	existing := !id.IsZero()
	if !existing {
		if id, err = nextID(ctx, s.q, table.name, table.idColumn); err != nil {
			return 0, false, err
		}
	}
	s.assign(field, id)
	s.touch(obj)
	return dirID, existing, nil
}

// ============================================================================
// Load / Delete
// ============================================================================

// Load reads the object of kind with id, including its owned children and
// the shared objects it references.
func (r *Repository) Load(ctx context.Context, kind domain.Kind, id domain.ObjectID) (domain.RepositoryObject, error) {
	switch kind {
	case domain.KindTransformation:
		return r.loadTransformation(ctx, r.db, id)
	case domain.KindJob:
		return r.loadJob(ctx, r.db, id)
	case domain.KindDatabase:
		return loadDatabase(ctx, r.db, id)
	case domain.KindSlaveServer:
		return loadSlave(ctx, r.db, id)
	case domain.KindClusterSchema:
		return loadCluster(ctx, r.db, id)
	case domain.KindPartitionSchema:
		return loadPartitionSchema(ctx, r.db, id)
	case domain.KindUser:
		return loadUserByID(ctx, r.db, id)
	}
	return nil, fmt.Errorf("load: %s objects cannot be loaded", kind)
}

// DelAll deletes the object of kind with id and everything it owns. Shared
// objects that are still referenced are not deleted (DependencyViolation).
// The whole cascade runs in one transaction.
func (r *Repository) DelAll(ctx context.Context, kind domain.Kind, id domain.ObjectID) error {
	table, err := objectTableFor(kind)
	if err != nil {
		return err
	}

	var name string
	err = r.withRepositoryLock(ctx, func() error {
		if err := r.checkWritable(kind, id); err != nil {
			return err
		}
		err := transact(ctx, r.db, func(tx *sqlx.Tx) error {
			query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", table.nameColumn, table.name, table.idColumn)
			if err := tx.GetContext(ctx, &name, query, id); err != nil {
				return notFoundOr(err, fmt.Sprintf("%s %d", kind, id))
			}
			if err := insertLogEntry(ctx, tx, r.UserLogin(), time.Now().UTC(), fmt.Sprintf("delete %s %s", kind, name)); err != nil {
				return err
			}
			switch kind {
			case domain.KindTransformation:
				return delAllTransformation(ctx, tx, id)
			case domain.KindJob:
				return delAllJob(ctx, tx, id)
			case domain.KindUser:
				return exec(ctx, tx, "delete user", "DELETE FROM r_user WHERE id_user = ?", id)
			}
			return delShared(ctx, tx, kind, id, name)
		})
		if err != nil {
			return err
		}
		if kind.IsShared() {
			r.mu.RLock()
			r.shared.Remove(kind, name)
			r.mu.RUnlock()
		}
		r.locks.Unlock(domain.LockKey{Kind: kind, ID: id})
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("object deleted", zap.Stringer("kind", kind), zap.String("name", name), zap.Int64("id", int64(id)))
	return nil
}

// RenameObject renames and optionally moves a stored object. newDirectory
// is ignored for shared objects and users; an empty value keeps the current
// directory.
func (r *Repository) RenameObject(ctx context.Context, kind domain.Kind, id domain.ObjectID, newName, newDirectory string) error {
	table, err := objectTableFor(kind)
	if err != nil {
		return err
	}
	if strings.TrimSpace(newName) == "" {
		return fmt.Errorf("rename %s %d: name is required", kind, id)
	}

	return r.withRepositoryLock(ctx, func() error {
		if err := r.checkWritable(kind, id); err != nil {
			return err
		}

		var oldName string
		var dirID domain.ObjectID
		if table.directory {
			var row struct {
				Name        string `db:"name"`
				DirectoryID int64  `db:"id_directory"`
			}
			query := fmt.Sprintf("SELECT name, id_directory FROM %s WHERE %s = ?", table.name, table.idColumn)
			if err := r.db.GetContext(ctx, &row, query, id); err != nil {
				return notFoundOr(err, fmt.Sprintf("%s %d", kind, id))
			}
			oldName, dirID = row.Name, domain.ObjectID(row.DirectoryID)
			if newDirectory != "" {
				if dirID, err = r.directoryID(newDirectory); err != nil {
					return err
				}
			}
		} else {
			query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", table.nameColumn, table.name, table.idColumn)
			if err := r.db.GetContext(ctx, &oldName, query, id); err != nil {
				return notFoundOr(err, fmt.Sprintf("%s %d", kind, id))
			}
		}

		other, err := lookupID(ctx, r.db, table, newName, dirID)
		if err != nil {
			return err
		}
		if !other.IsZero() && other != id {
			return fmt.Errorf("%s %q: %w", kind, newName, domain.ErrAlreadyExists)
		}

		if table.directory {
			err = exec(ctx, r.db, "rename "+kind.String(),
				fmt.Sprintf("UPDATE %s SET name = ?, id_directory = ? WHERE %s = ?", table.name, table.idColumn),
				newName, dirID, id)
		} else {
			err = exec(ctx, r.db, "rename "+kind.String(),
				fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", table.name, table.nameColumn, table.idColumn),
				newName, id)
		}
		if err != nil {
			return err
		}

		if kind.IsShared() {
			r.mu.RLock()
			if obj, ok := r.shared.Get(kind, oldName); ok {
				r.shared.Remove(kind, oldName)
				renameShared(obj, newName)
				r.shared.Put(obj)
			}
			r.mu.RUnlock()
		}
		r.logger.Info("object renamed", zap.Stringer("kind", kind), zap.String("from", oldName), zap.String("to", newName))
		return nil
	})
}

func renameShared(obj domain.SharedObject, name string) {
	switch o := obj.(type) {
	case *domain.DatabaseConnection:
		o.Name = name
	case *domain.SlaveServer:
		o.Name = name
	case *domain.ClusterSchema:
		o.Name = name
	case *domain.PartitionSchema:
		o.Name = name
	}
}

// ============================================================================
// Listing
// ============================================================================

type objectInfoRow struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	DirectoryID  int64          `db:"id_directory"`
	Description  sql.NullString `db:"description"`
	ModifiedUser sql.NullString `db:"modified_user"`
	ModifiedDate sql.NullTime   `db:"modified_date"`
}

// ListObjects lists the stored objects of kind. For transformations and
// jobs dir restricts the listing to one directory; nil lists them all.
func (r *Repository) ListObjects(ctx context.Context, kind domain.Kind, dir *domain.DirectoryNode) ([]domain.ObjectInfo, error) {
	table, err := objectTableFor(kind)
	if err != nil {
		return nil, err
	}

	if !table.directory {
		var rows []struct {
			ID   int64  `db:"id"`
			Name string `db:"name"`
		}
		query := fmt.Sprintf("SELECT %s AS id, %s AS name FROM %s ORDER BY %s", table.idColumn, table.nameColumn, table.name, table.nameColumn)
		if err := r.db.SelectContext(ctx, &rows, query); err != nil {
			return nil, domain.NewBackingStoreError("list "+kind.String(), err)
		}
		out := make([]domain.ObjectInfo, 0, len(rows))
		for _, row := range rows {
			out = append(out, domain.ObjectInfo{Kind: kind, ID: domain.ObjectID(row.ID), Name: row.Name})
		}
		return out, nil
	}

	query := fmt.Sprintf(`SELECT %s AS id, name, id_directory, description, modified_user, modified_date
		FROM %s`, table.idColumn, table.name)
	var args []interface{}
	if dir != nil {
		query += " WHERE id_directory = ?"
		args = append(args, dir.ID)
	}
	var rows []objectInfoRow
	if err := r.db.SelectContext(ctx, &rows, query+" ORDER BY id_directory, name", args...); err != nil {
		return nil, domain.NewBackingStoreError("list "+kind.String(), err)
	}

	out := make([]domain.ObjectInfo, 0, len(rows))
	for _, row := range rows {
		path, err := r.directoryPath(domain.ObjectID(row.DirectoryID))
		if err != nil {
			r.logger.Warn("object in unknown directory", zap.Stringer("kind", kind), zap.String("name", row.Name), zap.Error(err))
			continue
		}
		out = append(out, domain.ObjectInfo{
			Kind:         kind,
			ID:           domain.ObjectID(row.ID),
			Name:         row.Name,
			Directory:    path,
			Description:  nullToString(row.Description),
			ModifiedUser: nullToString(row.ModifiedUser),
			ModifiedDate: nullToTime(row.ModifiedDate),
		})
	}
	return out, nil
}

// DirectoryContents lists the transformations and then the jobs of dir
func (r *Repository) DirectoryContents(ctx context.Context, dir *domain.DirectoryNode) ([]domain.ObjectInfo, error) {
	if dir == nil {
		dir = r.Root()
	}
	var out []domain.ObjectInfo
	for _, kind := range []domain.Kind{domain.KindTransformation, domain.KindJob} {
		infos, err := r.ListObjects(ctx, kind, dir)
		if err != nil {
			return nil, err
		}
		out = append(out, infos...)
	}
	return out, nil
}

// ============================================================================
// Locks
// ============================================================================

// LockObject locks a stored object for this session
func (r *Repository) LockObject(ctx context.Context, kind domain.Kind, id domain.ObjectID, message string) (domain.Lock, error) {
	ok, err := rowExists(ctx, r.db, kind, id)
	if err != nil {
		return domain.Lock{}, err
	}
	if !ok {
		return domain.Lock{}, fmt.Errorf("lock %s %d: %w", kind, id, domain.ErrNotFound)
	}
	lock, err := r.locks.Lock(domain.LockKey{Kind: kind, ID: id}, r.lockSource, message)
	if err != nil {
		return domain.Lock{}, err
	}
	r.logger.Debug("object locked", zap.Stringer("kind", kind), zap.Int64("id", int64(id)), zap.String("message", message))
	return lock, nil
}

// UnlockObject releases a lock held by this session. Unlocking an object
// that is not locked does nothing; a lock held by another session is left
// in place and reported as AlreadyLocked.
func (r *Repository) UnlockObject(ctx context.Context, kind domain.Kind, id domain.ObjectID) error {
	key := domain.LockKey{Kind: kind, ID: id}
	if err := r.locks.checkWritable(key, r.lockSource); err != nil {
		return err
	}
	r.locks.Unlock(key)
	return nil
}

// IsLocked returns the live lock on an object
func (r *Repository) IsLocked(kind domain.Kind, id domain.ObjectID) (domain.Lock, bool) {
	return r.locks.IsLocked(domain.LockKey{Kind: kind, ID: id})
}

// ListLocks returns every live lock of the process
func (r *Repository) ListLocks() []domain.Lock {
	return r.locks.List()
}

// ============================================================================
// Shared objects
// ============================================================================

// SharedObjects returns the session's shared object cache
func (r *Repository) SharedObjects() *domain.SharedObjectSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.shared
}

// RefreshSharedObjects reloads the shared object cache
func (r *Repository) RefreshSharedObjects(ctx context.Context) error {
	shared, err := loadSharedObjects(ctx, r.db)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.shared = shared
	r.mu.Unlock()
	return nil
}
