package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"etlrepo/internal/domain"
)

// DirectoryView is the JSON form of a directory tree
type DirectoryView struct {
	ID       domain.ObjectID  `json:"id"`
	Name     string           `json:"name"`
	Path     string           `json:"path"`
	Children []*DirectoryView `json:"children,omitempty"`
}

func newDirectoryView(d *domain.DirectoryNode) *DirectoryView {
	v := &DirectoryView{ID: d.ID, Name: d.Name, Path: d.Path()}
	for _, child := range d.Children() {
		v.Children = append(v.Children, newDirectoryView(child))
	}
	return v
}

// DirectoryRequest is the body of directory mutations
type DirectoryRequest struct {
	Path    string `json:"path"`
	NewName string `json:"new_name,omitempty"`
}

// RenameRequest is the body of an object rename
type RenameRequest struct {
	NewName      string `json:"new_name"`
	NewDirectory string `json:"new_directory,omitempty"`
}

// LockRequest is the optional body of a lock request
type LockRequest struct {
	Message string `json:"message"`
}

// SaveResponse is returned after an object is stored
type SaveResponse struct {
	ID        domain.ObjectID `json:"id"`
	Kind      domain.Kind     `json:"kind"`
	Name      string          `json:"name"`
	Directory string          `json:"directory,omitempty"`
}

// GetTree returns the whole directory tree
func (h *RepositoryHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, newDirectoryView(h.svc.Tree()), http.StatusOK)
}

// ListDirectory returns the transformations and jobs of ?path=
func (h *RepositoryHandler) ListDirectory(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = domain.PathSeparator
	}

	infos, err := h.svc.ListDirectory(r.Context(), path)
	if err != nil {
		h.fail(w, "Failed to list directory", err, http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []domain.ObjectInfo{}
	}

	h.writeJSON(w, infos, http.StatusOK)
}

// CreateDirectory creates a directory and its missing parents
func (h *RepositoryHandler) CreateDirectory(w http.ResponseWriter, r *http.Request) {
	var req DirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		h.writeError(w, "Invalid directory", "path is required", http.StatusBadRequest)
		return
	}

	dir, err := h.svc.CreateDirectory(r.Context(), req.Path)
	if err != nil {
		h.fail(w, "Failed to create directory", err, http.StatusBadRequest)
		return
	}

	h.writeJSON(w, newDirectoryView(dir), http.StatusCreated)
}

// DeleteDirectory removes ?path=, recursively when ?cascade=true
func (h *RepositoryHandler) DeleteDirectory(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.writeError(w, "Invalid directory", "path is required", http.StatusBadRequest)
		return
	}

	if err := h.svc.DeleteDirectory(r.Context(), path, boolParam(r, "cascade")); err != nil {
		h.fail(w, "Failed to delete directory", err, http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RenameDirectory renames the directory at path
func (h *RepositoryHandler) RenameDirectory(w http.ResponseWriter, r *http.Request) {
	var req DirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Path == "" || req.NewName == "" {
		h.writeError(w, "Invalid rename", "path and new_name are required", http.StatusBadRequest)
		return
	}

	if err := h.svc.RenameDirectory(r.Context(), req.Path, req.NewName); err != nil {
		h.fail(w, "Failed to rename directory", err, http.StatusBadRequest)
		return
	}

	h.writeJSON(w, newDirectoryView(h.svc.Tree()), http.StatusOK)
}

// ListObjects returns every object of {kind}
func (h *RepositoryHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	infos, err := h.svc.ListObjects(r.Context(), kind)
	if err != nil {
		h.fail(w, "Failed to list objects", err, http.StatusBadRequest)
		return
	}
	if infos == nil {
		infos = []domain.ObjectInfo{}
	}

	h.writeJSON(w, infos, http.StatusOK)
}

// GetObject loads one object
func (h *RepositoryHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	obj, err := h.svc.Get(r.Context(), kind, r.PathValue("name"), directoryParam(r))
	if err != nil {
		h.fail(w, "Failed to get object", err, http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, obj, http.StatusOK)
}

// SaveObject stores the JSON body as {kind}/{name}. For transformations
// and jobs ?dir= names the directory, ?comment= the change log entry.
func (h *RepositoryHandler) SaveObject(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	obj, err := newObject(kind)
	if err != nil {
		h.writeError(w, "Invalid object kind", err.Error(), http.StatusBadRequest)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(obj); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	name := r.PathValue("name")
	setName(obj, name)
	resp := SaveResponse{Kind: kind, Name: name}
	if dobj, ok := obj.(domain.DirectoryObject); ok {
		dobj.SetDirectory(directoryParam(r))
		resp.Directory = dobj.Directory()
	}

	id, err := h.svc.Save(r.Context(), obj, r.URL.Query().Get("comment"))
	if err != nil {
		h.fail(w, "Failed to save object", err, http.StatusBadRequest)
		return
	}
	resp.ID = id

	h.writeJSON(w, resp, http.StatusOK)
}

// DeleteObject removes an object
func (h *RepositoryHandler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), kind, r.PathValue("name"), directoryParam(r)); err != nil {
		h.fail(w, "Failed to delete object", err, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RenameObject renames an object and optionally moves it
func (h *RepositoryHandler) RenameObject(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.NewName == "" {
		req.NewName = r.PathValue("name")
	}

	err := h.svc.Rename(r.Context(), kind, r.PathValue("name"), directoryParam(r), req.NewName, req.NewDirectory)
	if err != nil {
		h.fail(w, "Failed to rename object", err, http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LockObject takes a lock on an object for this session
func (h *RepositoryHandler) LockObject(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	var req LockRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
	}

	lock, err := h.svc.Lock(r.Context(), kind, r.PathValue("name"), directoryParam(r), req.Message)
	if err != nil {
		h.fail(w, "Failed to lock object", err, http.StatusBadRequest)
		return
	}

	h.writeJSON(w, lock, http.StatusOK)
}

// UnlockObject releases a lock held by this session
func (h *RepositoryHandler) UnlockObject(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.Unlock(r.Context(), kind, r.PathValue("name"), directoryParam(r)); err != nil {
		h.fail(w, "Failed to unlock object", err, http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListShared returns the cached shared objects of {kind}
func (h *RepositoryHandler) ListShared(w http.ResponseWriter, r *http.Request) {
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	objs, err := h.svc.SharedObjects(kind)
	if err != nil {
		h.fail(w, "Failed to list shared objects", err, http.StatusBadRequest)
		return
	}
	if objs == nil {
		objs = []domain.SharedObject{}
	}

	h.writeJSON(w, objs, http.StatusOK)
}

// ListLocks returns every live lock
func (h *RepositoryHandler) ListLocks(w http.ResponseWriter, r *http.Request) {
	locks := h.svc.Locks()
	if locks == nil {
		locks = []domain.Lock{}
	}
	h.writeJSON(w, locks, http.StatusOK)
}

// ListLog returns the newest ?limit= change log entries
func (h *RepositoryHandler) ListLog(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil || limit < 0 {
		h.writeError(w, "Invalid limit", "limit must be a non-negative number", http.StatusBadRequest)
		return
	}

	entries, err := h.svc.Log(r.Context(), limit)
	if err != nil {
		h.fail(w, "Failed to read change log", err, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []domain.LogEntry{}
	}

	h.writeJSON(w, entries, http.StatusOK)
}

// newObject returns an empty object of a kind that can be saved through
// the object endpoints.
func newObject(kind domain.Kind) (domain.RepositoryObject, error) {
	switch kind {
	case domain.KindTransformation:
		return &domain.Transformation{}, nil
	case domain.KindJob:
		return &domain.Job{}, nil
	case domain.KindDatabase:
		return &domain.DatabaseConnection{}, nil
	case domain.KindSlaveServer:
		return &domain.SlaveServer{}, nil
	case domain.KindClusterSchema:
		return &domain.ClusterSchema{}, nil
	case domain.KindPartitionSchema:
		return &domain.PartitionSchema{}, nil
	}
	return nil, fmt.Errorf("%s objects cannot be saved here", kind)
}

func setName(obj domain.RepositoryObject, name string) {
	switch o := obj.(type) {
	case *domain.Transformation:
		o.Name = name
	case *domain.Job:
		o.Name = name
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
