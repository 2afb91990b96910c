package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/codeoracle/internal/chat"
	"github.com/ashureev/codeoracle/internal/domain"
	"github.com/ashureev/codeoracle/internal/ingest"
	"github.com/ashureev/codeoracle/internal/oracle"
	"github.com/ashureev/codeoracle/internal/workspace"
)

// Form fields accepted from the browser. They match the fields the remote
// service expects.
const (
	ingestField = oracle.IngestField
	chatField   = oracle.AskField
)

// maxFormBytes bounds the size of a form submission.
const maxFormBytes = 64 << 10

// WorkspaceHandler serves the ingestion form and chat panel endpoints.
type WorkspaceHandler struct {
	*Handler
}

// NewWorkspaceHandler creates a new workspace handler.
func NewWorkspaceHandler(base *Handler) *WorkspaceHandler {
	return &WorkspaceHandler{Handler: base}
}

// RegisterRoutes registers the workspace routes. Middleware applied to the
// group covers every /api route, including health.
func (h *WorkspaceHandler) RegisterRoutes(r chi.Router, middlewares ...func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Use(middlewares...)
		r.Get("/config", h.GetConfig)
		r.Get("/workspace", h.GetWorkspace)
		r.Post("/ingest", h.Ingest)
		r.Post("/chat", h.Chat)
		r.Post("/clear", h.Clear)
		r.Get("/health", h.Health)
	})
}

// chatResponse is returned by POST /api/chat.
type chatResponse struct {
	Message  domain.Message     `json:"message"`
	Snapshot workspace.Snapshot `json:"snapshot"`
}

// GetConfig returns the client configuration.
func (h *WorkspaceHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"base_url_configured": h.cfg.Oracle.BaseURL != "",
		"greeting":            h.cfg.Greeting,
	})
}

// GetWorkspace returns the snapshot of the calling tab.
func (h *WorkspaceHandler) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, ws.Snapshot())
}

// Ingest submits the repository URL. The response is 200 whenever the form
// accepted the submission, whatever the remote service answered.
func (h *WorkspaceHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	value, ok := formValue(w, r, ingestField)
	if !ok {
		return
	}

	if err := ws.Ingest(r.Context(), value); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	JSON(w, http.StatusOK, ws.Snapshot())
}

// Chat submits one chat message and returns the bot reply.
func (h *WorkspaceHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	value, ok := formValue(w, r, chatField)
	if !ok {
		return
	}

	res, err := ws.Send(r.Context(), value)
	if err != nil {
		writeWorkspaceError(w, err)
		return
	}
	JSON(w, http.StatusOK, chatResponse{Message: res.Reply, Snapshot: ws.Snapshot()})
}

// Clear unmounts the chat panel.
func (h *WorkspaceHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	if err := ws.Clear(); err != nil {
		writeWorkspaceError(w, err)
		return
	}
	JSON(w, http.StatusOK, ws.Snapshot())
}

func (h *WorkspaceHandler) workspace(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, bool) {
	key, ok := workspaceKey(r)
	if !ok {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	ws, err := h.mgr.Get(r.Context(), key)
	if err != nil {
		slog.Error("Failed to load workspace", "error", err, "user_id", key.UserID, "session_id", key.SessionID)
		Error(w, http.StatusInternalServerError, "failed to load workspace")
		return nil, false
	}
	return ws, true
}

func formValue(w http.ResponseWriter, r *http.Request, field string) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		Error(w, http.StatusBadRequest, "invalid form body")
		return "", false
	}
	return r.PostFormValue(field), true
}

func writeWorkspaceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workspace.ErrNoRepository):
		Error(w, http.StatusConflict, "no_repository")
	case errors.Is(err, chat.ErrBusy):
		Error(w, http.StatusConflict, "sending_in_progress")
	case errors.Is(err, ingest.ErrBusy):
		Error(w, http.StatusConflict, "ingestion_in_progress")
	case errors.Is(err, chat.ErrEmptyMessage):
		Error(w, http.StatusBadRequest, "empty_message")
	case errors.Is(err, ingest.ErrEmptyURL):
		Error(w, http.StatusBadRequest, "empty_url")
	case errors.Is(err, ingest.ErrInvalidURL):
		Error(w, http.StatusBadRequest, "invalid_url")
	default:
		slog.Error("Workspace request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
