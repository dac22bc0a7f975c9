package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"etlrepo/internal/codec"
	"etlrepo/internal/domain"
	"etlrepo/internal/repository"
)

// RepositoryService provides the mutations and queries of one repository
// session and publishes an event for every change.
type RepositoryService struct {
	repo     repository.Repository
	eventBus *EventBus
	logger   *zap.Logger
}

// NewRepositoryService creates a new repository service
func NewRepositoryService(repo repository.Repository, eventBus *EventBus, logger *zap.Logger) *RepositoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepositoryService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Repository returns the underlying session
func (s *RepositoryService) Repository() repository.Repository {
	return s.repo
}

// Tree returns the cached directory tree
func (s *RepositoryService) Tree() *domain.DirectoryNode {
	return s.repo.Root()
}

// CreateDirectory creates path and any missing parents
func (s *RepositoryService) CreateDirectory(ctx context.Context, path string) (*domain.DirectoryNode, error) {
	dir, err := s.repo.CreateDirectory(ctx, s.repo.Root(), path)
	if err != nil {
		return nil, err
	}

	s.eventBus.Publish(Event{
		Type:    EventDirectoryCreated,
		Payload: map[string]any{"path": dir.Path(), "id": dir.ID},
	})

	return dir, nil
}

// DeleteDirectory removes the directory at path. Without cascade the
// directory must be empty.
func (s *RepositoryService) DeleteDirectory(ctx context.Context, path string, cascade bool) error {
	dir, err := s.repo.FindDirectory(path)
	if err != nil {
		return err
	}
	path = dir.Path()
	if err := s.repo.DeleteDirectory(ctx, dir, cascade); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventDirectoryDeleted,
		Payload: map[string]any{"path": path, "cascade": cascade},
	})

	return nil
}

// RenameDirectory gives the directory at path a new name
func (s *RepositoryService) RenameDirectory(ctx context.Context, path, newName string) error {
	dir, err := s.repo.FindDirectory(path)
	if err != nil {
		return err
	}
	oldPath := dir.Path()
	if err := s.repo.RenameDirectory(ctx, dir, newName); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventDirectoryRenamed,
		Payload: map[string]string{"from": oldPath, "to": dir.Path()},
	})

	return nil
}

// ListDirectory returns the transformations and jobs stored directly in
// the directory at path.
func (s *RepositoryService) ListDirectory(ctx context.Context, path string) ([]domain.ObjectInfo, error) {
	dir, err := s.repo.FindDirectory(path)
	if err != nil {
		return nil, err
	}
	var out []domain.ObjectInfo
	for _, kind := range []domain.Kind{domain.KindTransformation, domain.KindJob} {
		infos, err := s.repo.ListObjects(ctx, kind, dir)
		if err != nil {
			return nil, err
		}
		out = append(out, infos...)
	}
	return out, nil
}

// ListObjects returns every object of kind
func (s *RepositoryService) ListObjects(ctx context.Context, kind domain.Kind) ([]domain.ObjectInfo, error) {
	return s.repo.ListObjects(ctx, kind, nil)
}

// Inventory lists every transformation and job grouped by directory
func (s *RepositoryService) Inventory(ctx context.Context) (*codec.Inventory, error) {
	var infos []domain.ObjectInfo
	for _, kind := range []domain.Kind{domain.KindTransformation, domain.KindJob} {
		list, err := s.repo.ListObjects(ctx, kind, nil)
		if err != nil {
			return nil, err
		}
		infos = append(infos, list...)
	}
	return codec.NewInventory(infos), nil
}

// Get loads an object by kind, name and directory. The directory is
// ignored for shared objects and users.
func (s *RepositoryService) Get(ctx context.Context, kind domain.Kind, name, directory string) (domain.RepositoryObject, error) {
	id, err := s.repo.LookupID(ctx, kind, name, directory)
	if err != nil {
		return nil, err
	}
	return s.repo.Load(ctx, kind, id)
}

// Save validates and stores obj
func (s *RepositoryService) Save(ctx context.Context, obj domain.RepositoryObject, comment string) (domain.ObjectID, error) {
	if err := s.validate(obj); err != nil {
		return 0, err
	}

	id, err := s.repo.Save(ctx, obj, comment)
	if err != nil {
		return 0, err
	}

	s.eventBus.Publish(Event{
		Type:    EventObjectSaved,
		Payload: payloadOf(obj),
	})

	return id, nil
}

// Delete removes an object and everything it owns
func (s *RepositoryService) Delete(ctx context.Context, kind domain.Kind, name, directory string) error {
	id, err := s.repo.LookupID(ctx, kind, name, directory)
	if err != nil {
		return err
	}
	if err := s.repo.DelAll(ctx, kind, id); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventObjectDeleted,
		Payload: ObjectPayload{Kind: kind.String(), ID: int64(id), Name: name, Directory: directory},
	})

	return nil
}

// Rename renames an object and, for transformations and jobs, moves it to
// newDirectory when that is not empty.
func (s *RepositoryService) Rename(ctx context.Context, kind domain.Kind, name, directory, newName, newDirectory string) error {
	id, err := s.repo.LookupID(ctx, kind, name, directory)
	if err != nil {
		return err
	}
	if err := s.repo.RenameObject(ctx, kind, id, newName, newDirectory); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type: EventObjectRenamed,
		Payload: map[string]any{
			"from": ObjectPayload{Kind: kind.String(), ID: int64(id), Name: name, Directory: directory},
			"to":   ObjectPayload{Kind: kind.String(), ID: int64(id), Name: newName, Directory: newDirectory},
		},
	})

	return nil
}

// Lock takes an advisory lock on an object for this session
func (s *RepositoryService) Lock(ctx context.Context, kind domain.Kind, name, directory, message string) (domain.Lock, error) {
	id, err := s.repo.LookupID(ctx, kind, name, directory)
	if err != nil {
		return domain.Lock{}, err
	}
	lock, err := s.repo.LockObject(ctx, kind, id, message)
	if err != nil {
		return domain.Lock{}, err
	}

	s.eventBus.Publish(Event{
		Type:    EventObjectLocked,
		Payload: lock,
	})

	return lock, nil
}

// Unlock releases a lock held by this session
func (s *RepositoryService) Unlock(ctx context.Context, kind domain.Kind, name, directory string) error {
	id, err := s.repo.LookupID(ctx, kind, name, directory)
	if err != nil {
		return err
	}
	if err := s.repo.UnlockObject(ctx, kind, id); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventObjectUnlocked,
		Payload: ObjectPayload{Kind: kind.String(), ID: int64(id), Name: name, Directory: directory},
	})

	return nil
}

// Locks returns every live lock
func (s *RepositoryService) Locks() []domain.Lock {
	return s.repo.ListLocks()
}

// Log returns the newest change log entries
func (s *RepositoryService) Log(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	return s.repo.ListLog(ctx, limit)
}

// SharedObjects returns the cached shared objects of kind
func (s *RepositoryService) SharedObjects(kind domain.Kind) ([]domain.SharedObject, error) {
	if !kind.IsShared() {
		return nil, fmt.Errorf("%s is not a shared object kind", kind)
	}
	return s.repo.SharedObjects().List(kind), nil
}

func payloadOf(obj domain.RepositoryObject) ObjectPayload {
	p := ObjectPayload{Kind: obj.Kind().String(), ID: int64(obj.ObjectID()), Name: obj.ObjectName()}
	if d, ok := obj.(domain.DirectoryObject); ok {
		p.Directory = d.Directory()
	}
	return p
}

// Validation helpers

func (s *RepositoryService) validate(obj domain.RepositoryObject) error {
	if strings.TrimSpace(obj.ObjectName()) == "" {
		return fmt.Errorf("%s name required", obj.Kind())
	}
	switch o := obj.(type) {
	case *domain.Transformation:
		return validateTransformation(o)
	case *domain.Job:
		return validateJob(o)
	}
	return nil
}

func validateTransformation(t *domain.Transformation) error {
	steps := make(map[string]bool, len(t.Steps))
	for _, step := range t.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return fmt.Errorf("transformation %s: step name required", t.Name)
		}
		key := strings.ToLower(step.Name)
		if steps[key] {
			return fmt.Errorf("transformation %s: duplicate step %q", t.Name, step.Name)
		}
		steps[key] = true
		if step.Copies < 1 {
			return fmt.Errorf("transformation %s: step %s needs at least one copy", t.Name, step.Name)
		}
	}
	for _, hop := range t.Hops {
		if err := validateHop(t.Name, hop.From, hop.To, steps); err != nil {
			return err
		}
	}
	return nil
}

func validateJob(j *domain.Job) error {
	entries := make(map[string]bool, len(j.Entries))
	for _, entry := range j.Entries {
		if strings.TrimSpace(entry.Name) == "" {
			return fmt.Errorf("job %s: entry name required", j.Name)
		}
		key := strings.ToLower(entry.Name)
		if entries[key] {
			return fmt.Errorf("job %s: duplicate entry %q", j.Name, entry.Name)
		}
		entries[key] = true
	}
	for _, hop := range j.Hops {
		if err := validateHop(j.Name, hop.From, hop.To, entries); err != nil {
			return err
		}
	}
	return nil
}

func validateHop(owner, from, to string, names map[string]bool) error {
	if !names[strings.ToLower(from)] {
		return fmt.Errorf("%s: hop from unknown %q", owner, from)
	}
	if !names[strings.ToLower(to)] {
		return fmt.Errorf("%s: hop to unknown %q", owner, to)
	}
	if strings.EqualFold(from, to) {
		return fmt.Errorf("%s: hop from %q to itself", owner, from)
	}
	return nil
}
