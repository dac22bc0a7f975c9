package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"etlrepo/internal/domain"
)

// UserRequest is the body of a user save. Password is only needed for a
// new account or to change it.
type UserRequest struct {
	Login       string `json:"login"`
	Password    string `json:"password,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// LoginRequest is the body of a login check
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// ListUsers returns every account
func (h *RepositoryHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.fail(w, "Failed to list users", err, http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []*domain.User{}
	}

	h.writeJSON(w, users, http.StatusOK)
}

// SaveUser creates or updates an account
func (h *RepositoryHandler) SaveUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	u := &domain.User{
		Login:       req.Login,
		Password:    req.Password,
		Name:        req.Name,
		Description: req.Description,
		Enabled:     req.Enabled,
	}
	if err := h.users.Save(r.Context(), u); err != nil {
		h.fail(w, "Failed to save user", err, http.StatusBadRequest)
		return
	}

	h.writeJSON(w, u, http.StatusOK)
}

// DeleteUser removes the account {login}
func (h *RepositoryHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), r.PathValue("login")); err != nil {
		h.fail(w, "Failed to delete user", err, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Login checks a login and password and returns the account
func (h *RepositoryHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrBackingStore) {
			h.fail(w, "Login failed", err, http.StatusInternalServerError)
			return
		}
		h.writeError(w, "Invalid credentials", "", http.StatusUnauthorized)
		return
	}

	h.writeJSON(w, u, http.StatusOK)
}
