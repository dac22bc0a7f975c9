package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"etlrepo/internal/domain"
	"etlrepo/internal/service"
)

// RepositoryHandler handles repository API requests
type RepositoryHandler struct {
	svc      *service.RepositoryService
	transfer *service.TransferService
	users    *service.UserService
	logger   *zap.Logger
}

// NewRepositoryHandler creates a new repository handler
func NewRepositoryHandler(svc *service.RepositoryService, transfer *service.TransferService, users *service.UserService, logger *zap.Logger) *RepositoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepositoryHandler{svc: svc, transfer: transfer, users: users, logger: logger}
}

// Routes registers every endpoint on mux
func (h *RepositoryHandler) Routes(mux *http.ServeMux) {
	// Directories
	mux.HandleFunc("GET /api/tree", h.GetTree)
	mux.HandleFunc("GET /api/directories", h.ListDirectory)
	mux.HandleFunc("POST /api/directories", h.CreateDirectory)
	mux.HandleFunc("DELETE /api/directories", h.DeleteDirectory)
	mux.HandleFunc("POST /api/directories/rename", h.RenameDirectory)

	// Objects
	mux.HandleFunc("GET /api/objects/{kind}", h.ListObjects)
	mux.HandleFunc("GET /api/objects/{kind}/{name}", h.GetObject)
	mux.HandleFunc("PUT /api/objects/{kind}/{name}", h.SaveObject)
	mux.HandleFunc("DELETE /api/objects/{kind}/{name}", h.DeleteObject)
	mux.HandleFunc("POST /api/objects/{kind}/{name}/rename", h.RenameObject)
	mux.HandleFunc("POST /api/objects/{kind}/{name}/lock", h.LockObject)
	mux.HandleFunc("DELETE /api/objects/{kind}/{name}/lock", h.UnlockObject)
	mux.HandleFunc("GET /api/shared/{kind}", h.ListShared)

	// Session
	mux.HandleFunc("GET /api/locks", h.ListLocks)
	mux.HandleFunc("GET /api/log", h.ListLog)

	// Transfer
	mux.HandleFunc("GET /api/inventory", h.GetInventory)
	mux.HandleFunc("GET /api/export", h.Export)
	mux.HandleFunc("POST /api/import", h.Import)

	// Users
	if h.users != nil {
		mux.HandleFunc("GET /api/users", h.ListUsers)
		mux.HandleFunc("PUT /api/users", h.SaveUser)
		mux.HandleFunc("DELETE /api/users/{login}", h.DeleteUser)
		mux.HandleFunc("POST /api/login", h.Login)
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusFor maps a repository error to an HTTP status. Errors the
// repository does not classify get fallback.
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrNotEmpty),
		errors.Is(err, domain.ErrDependencyViolation):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAlreadyLocked):
		return http.StatusLocked
	case errors.Is(err, domain.ErrMalformedFragment):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBackingStore):
		return http.StatusInternalServerError
	}
	return fallback
}

// fail writes err with the status statusFor picks and logs server errors
func (h *RepositoryHandler) fail(w http.ResponseWriter, msg string, err error, fallback int) {
	status := statusFor(err, fallback)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
	}
	h.writeError(w, msg, err.Error(), status)
}

func (h *RepositoryHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode JSON", zap.Error(err))
	}
}

func (h *RepositoryHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		h.logger.Warn("failed to encode error response", zap.Error(err))
	}
}

// kindParam parses the {kind} path segment
func (h *RepositoryHandler) kindParam(w http.ResponseWriter, r *http.Request) (domain.Kind, bool) {
	kind, err := domain.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.writeError(w, "Invalid object kind", err.Error(), http.StatusBadRequest)
		return domain.KindUnknown, false
	}
	return kind, true
}

// directoryParam returns the dir query parameter, "/" when missing
func directoryParam(r *http.Request) string {
	dir := r.URL.Query().Get("dir")
	if dir == "" {
		return domain.PathSeparator
	}
	return domain.CleanPath(dir)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
