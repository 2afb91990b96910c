// Package api provides HTTP handlers for the codeoracle API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/codeoracle/internal/config"
	"github.com/ashureev/codeoracle/internal/identity"
	"github.com/ashureev/codeoracle/internal/store"
	"github.com/ashureev/codeoracle/internal/workspace"
)

// Handler provides common handler utilities.
type Handler struct {
	repo store.Repository
	mgr  *workspace.Manager
	cfg  *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, mgr *workspace.Manager, cfg *config.Config) *Handler {
	return &Handler{
		repo: repo,
		mgr:  mgr,
		cfg:  cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// workspaceKey returns the workspace key of the calling tab.
func workspaceKey(r *http.Request) (workspace.Key, bool) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		return workspace.Key{}, false
	}
	return workspace.Key{UserID: userID, SessionID: identity.SessionIDFromContext(r.Context())}, true
}
