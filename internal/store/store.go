// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/codeoracle/internal/domain"
)

// Repository defines the interface for persisting users and workspaces.
type Repository interface {
	// GetUser retrieves a user by their user ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetWorkspace retrieves the workspace of one browser tab.
	GetWorkspace(ctx context.Context, userID, sessionID string) (*domain.Workspace, error)

	// UpsertWorkspace creates or updates a workspace.
	UpsertWorkspace(ctx context.Context, ws *domain.Workspace) error

	// DeleteWorkspace removes a workspace.
	DeleteWorkspace(ctx context.Context, userID, sessionID string) error

	// GetExpiredWorkspaces retrieves workspaces idle longer than ttl.
	GetExpiredWorkspaces(ctx context.Context, ttl time.Duration) ([]*domain.Workspace, error)

	// CleanupExpiredWorkspaces removes workspaces idle longer than ttl.
	CleanupExpiredWorkspaces(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
