package domain

import (
	"time"
)

// Workspace is the persisted state of one browser tab: the repository that
// was ingested (if any) and the transcript of the mounted chat panel.
type Workspace struct {
	ID           string
	UserID       string
	SessionID    string
	RepoURL      string
	MessagesJSON string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRepository returns true once an ingestion has settled for the tab.
func (w *Workspace) HasRepository() bool {
	return w.RepoURL != ""
}

// Expired reports whether the workspace has been idle longer than ttl.
func (w *Workspace) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(w.UpdatedAt) > ttl
}
