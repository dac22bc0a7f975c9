package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"etlrepo/internal/domain"
)

// loadDirectoryTree reads r_directory into a fresh tree. Rows whose parent
// is missing are attached to the root.
func loadDirectoryTree(ctx context.Context, q execer, logger *zap.Logger) (*domain.DirectoryNode, error) {
	var rows []directoryRow
	if err := q.SelectContext(ctx, &rows, "SELECT "+directoryColumns+" FROM r_directory ORDER BY id_directory"); err != nil {
		return nil, domain.NewBackingStoreError("load directories", err)
	}

	root := domain.NewRootDirectory()
	nodes := map[domain.ObjectID]*domain.DirectoryNode{domain.RootDirectoryID: root}
	for _, row := range rows {
		nodes[domain.ObjectID(row.ID)] = &domain.DirectoryNode{ID: domain.ObjectID(row.ID), Name: row.Name}
	}
	for _, row := range rows {
		node := nodes[domain.ObjectID(row.ID)]
		parent, ok := nodes[nullToID(row.ParentID)]
		if !ok {
			logger.Warn("directory has no parent, attaching to root",
				zap.Int64("id", row.ID), zap.Int64("parent", row.ParentID.Int64))
			parent = root
		}
		if !parent.AddChild(node) {
			logger.Warn("duplicate directory name", zap.String("path", parent.Path()), zap.String("name", row.Name))
		}
	}
	return root, nil
}

// Root returns the cached directory tree
func (r *Repository) Root() *domain.DirectoryNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree
}

// FindDirectory resolves a slash-separated path in the cached tree
func (r *Repository) FindDirectory(path string) (*domain.DirectoryNode, error) {
	return r.FindDirectorySegments(domain.SplitPath(path))
}

// FindDirectorySegments resolves path segments in the cached tree. Every
// segment has to match; there are no partial results.
func (r *Repository) FindDirectorySegments(segments []string) (*domain.DirectoryNode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if node := r.tree.Find(segments); node != nil {
		return node, nil
	}
	return nil, fmt.Errorf("directory %s: %w", domain.CleanPath(strings.Join(segments, "/")), domain.ErrNotFound)
}

// CreateDirectory creates path below parent, inserting every missing
// segment, and returns the deepest directory. Existing segments are reused.
func (r *Repository) CreateDirectory(ctx context.Context, parent *domain.DirectoryNode, path string) (*domain.DirectoryNode, error) {
	if parent == nil {
		parent = r.Root()
	}
	var result *domain.DirectoryNode
	err := r.withRepositoryLock(ctx, func() error {
		var plan *directoryPlan
		err := transact(ctx, r.db, func(tx *sqlx.Tx) error {
			var err error
			plan, err = r.insertDirectoryPath(ctx, tx, parent, path)
			return err
		})
		if err != nil {
			return err
		}
		result = r.attachDirectories(plan)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// directoryPlan is the result of inserting a path: the deepest cached
// directory and the chain below it. The chain holds new directories and
// directories another session committed since this tree was loaded.
type directoryPlan struct {
	base    *domain.DirectoryNode
	created []*domain.DirectoryNode
}

// insertDirectoryPath writes the missing segments of path inside tx. The
// cached tree only shortens the walk; every segment it does not know is
// looked up in r_directory before it is inserted. The nodes are attached to
// the cached tree by attachDirectories once the transaction committed.
func (r *Repository) insertDirectoryPath(ctx context.Context, tx execer, parent *domain.DirectoryNode, path string) (*directoryPlan, error) {
	segments := domain.SplitPath(path)
	plan := &directoryPlan{base: parent}
	if len(segments) == 1 && segments[0] == domain.PathSeparator {
		return plan, nil
	}

	r.mu.RLock()
	i := 0
	for ; i < len(segments); i++ {
		child := plan.base.Child(segments[i])
		if child == nil {
			break
		}
		plan.base = child
	}
	r.mu.RUnlock()

	parentID := plan.base.ID
	for _, name := range segments[i:] {
		if err := validateDirectoryName(name); err != nil {
			return nil, err
		}
		var row directoryRow
		err := tx.GetContext(ctx, &row, "SELECT "+directoryColumns+
			" FROM r_directory WHERE id_directory_parent = ? AND LOWER(directory_name) = LOWER(?)", parentID, name)
		switch {
		case err == nil:
			plan.created = append(plan.created, &domain.DirectoryNode{ID: domain.ObjectID(row.ID), Name: row.Name})
			parentID = domain.ObjectID(row.ID)
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return nil, domain.NewBackingStoreError("find directory "+name, err)
		}

		id, err := nextID(ctx, tx, "r_directory", "id_directory")
		if err != nil {
			return nil, err
		}
		err = exec(ctx, tx, "insert directory "+name,
			"INSERT INTO r_directory (id_directory, id_directory_parent, directory_name) VALUES (?, ?, ?)",
			id, parentID, name)
		if err != nil {
			return nil, err
		}
		plan.created = append(plan.created, &domain.DirectoryNode{ID: id, Name: name})
		parentID = id
	}
	return plan, nil
}

// attachDirectories links a committed plan into the cached tree and returns
// the deepest directory. Nodes the tree gained meanwhile are reused.
func (r *Repository) attachDirectories(plan *directoryPlan) *domain.DirectoryNode {
	r.mu.Lock()
	defer r.mu.Unlock()
	node := plan.base
	for _, n := range plan.created {
		if existing := node.Child(n.Name); existing != nil {
			node = existing
			continue
		}
		node.AddChild(n)
		node = n
	}
	if len(plan.created) > 0 {
		r.logger.Debug("directory created", zap.String("path", node.Path()), zap.Int64("id", int64(node.ID)))
	}
	return node
}

func validateDirectoryName(name string) error {
	if strings.TrimSpace(name) == "" || strings.Contains(name, domain.PathSeparator) {
		return fmt.Errorf("invalid directory name %q", name)
	}
	return nil
}

// DeleteDirectory removes dir. Without cascade it fails with ErrNotEmpty
// when dir holds objects or subdirectories; with cascade every contained
// transformation and job is deleted and subdirectories are removed depth
// first before dir itself.
func (r *Repository) DeleteDirectory(ctx context.Context, dir *domain.DirectoryNode, cascade bool) error {
	if dir == nil || dir.IsRoot() {
		return fmt.Errorf("the root directory cannot be deleted")
	}
	return r.withRepositoryLock(ctx, func() error {
		err := transact(ctx, r.db, func(tx *sqlx.Tx) error {
			return r.deleteDirectory(ctx, tx, dir, cascade)
		})
		if err != nil {
			return err
		}
		r.mu.Lock()
		path := dir.Path()
		if parent := dir.Parent(); parent != nil {
			parent.RemoveChild(dir)
		}
		r.mu.Unlock()
		r.logger.Info("directory deleted", zap.String("path", path), zap.Bool("cascade", cascade))
		return nil
	})
}

func (r *Repository) deleteDirectory(ctx context.Context, tx execer, dir *domain.DirectoryNode, cascade bool) error {
	r.mu.RLock()
	children := dir.Children()
	path := dir.Path()
	r.mu.RUnlock()

	transIDs, err := selectIDs(ctx, tx, "SELECT id_transformation FROM r_transformation WHERE id_directory = ?", dir.ID)
	if err != nil {
		return err
	}
	jobIDs, err := selectIDs(ctx, tx, "SELECT id_job FROM r_job WHERE id_directory = ?", dir.ID)
	if err != nil {
		return err
	}

	if !cascade && (len(children) > 0 || len(transIDs) > 0 || len(jobIDs) > 0) {
		return fmt.Errorf("directory %s holds %d transformations, %d jobs and %d subdirectories: %w",
			path, len(transIDs), len(jobIDs), len(children), domain.ErrNotEmpty)
	}

	for _, child := range children {
		if err := r.deleteDirectory(ctx, tx, child, cascade); err != nil {
			return err
		}
	}
	for _, id := range transIDs {
		if err := r.checkWritable(domain.KindTransformation, id); err != nil {
			return err
		}
		if err := delAllTransformation(ctx, tx, id); err != nil {
			return err
		}
	}
	for _, id := range jobIDs {
		if err := r.checkWritable(domain.KindJob, id); err != nil {
			return err
		}
		if err := delAllJob(ctx, tx, id); err != nil {
			return err
		}
	}
	return exec(ctx, tx, "delete directory "+path, "DELETE FROM r_directory WHERE id_directory = ?", dir.ID)
}

// RenameDirectory renames dir in place. The new name must be unique among
// its siblings.
func (r *Repository) RenameDirectory(ctx context.Context, dir *domain.DirectoryNode, newName string) error {
	if dir == nil || dir.IsRoot() {
		return fmt.Errorf("the root directory cannot be renamed")
	}
	if err := validateDirectoryName(newName); err != nil {
		return err
	}
	return r.withRepositoryLock(ctx, func() error {
		r.mu.RLock()
		sibling := dir.Parent().Child(newName)
		r.mu.RUnlock()
		if sibling != nil && sibling != dir {
			return fmt.Errorf("directory %s/%s: %w", strings.TrimSuffix(dir.Parent().Path(), "/"), newName, domain.ErrAlreadyExists)
		}

		err := exec(ctx, r.db, "rename directory",
			"UPDATE r_directory SET directory_name = ? WHERE id_directory = ?", newName, dir.ID)
		if err != nil {
			return err
		}
		r.mu.Lock()
		dir.Name = newName
		r.mu.Unlock()
		return nil
	})
}

// directoryPath maps a stored directory id to its path in the cached tree
func (r *Repository) directoryPath(id domain.ObjectID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node := r.tree.FindByID(id)
	if node == nil {
		return "", fmt.Errorf("directory id %d: %w", id, domain.ErrNotFound)
	}
	return node.Path(), nil
}

// directoryID maps a path to the id of a directory in the cached tree
func (r *Repository) directoryID(path string) (domain.ObjectID, error) {
	node, err := r.FindDirectory(path)
	if err != nil {
		return 0, err
	}
	return node.ID, nil
}
