package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/codeoracle/internal/domain"
	"github.com/ashureev/codeoracle/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db          *sql.DB
	workspaceMu sync.Mutex // serializes workspace writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every new connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		repo_url TEXT,
		messages_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_workspaces_updated ON workspaces(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, user.LastSeenAt.Unix(),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

const workspaceColumns = `id, user_id, session_id, repo_url, messages_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row rowScanner) (*domain.Workspace, error) {
	var ws domain.Workspace
	var repoURL sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(
		&ws.ID, &ws.UserID, &ws.SessionID, &repoURL,
		&ws.MessagesJSON, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	ws.RepoURL = repoURL.String
	ws.CreatedAt = time.Unix(createdAt, 0)
	ws.UpdatedAt = time.Unix(updatedAt, 0)
	return &ws, nil
}

// GetWorkspace retrieves the workspace of one browser tab.
func (s *SQLiteStore) GetWorkspace(ctx context.Context, userID, sessionID string) (*domain.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE user_id = ? AND session_id = ?`

	ws, err := scanWorkspace(s.db.QueryRowContext(ctx, query, userID, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	return ws, nil
}

// UpsertWorkspace creates or updates a workspace. UpdatedAt is set to now.
func (s *SQLiteStore) UpsertWorkspace(ctx context.Context, ws *domain.Workspace) error {
	s.workspaceMu.Lock()
	defer s.workspaceMu.Unlock()

	query := `
		INSERT INTO workspaces (` + workspaceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_id) DO UPDATE SET
			repo_url = excluded.repo_url,
			messages_json = excluded.messages_json,
			updated_at = excluded.updated_at`

	var repoURL any
	if ws.RepoURL != "" {
		repoURL = ws.RepoURL
	}
	messages := ws.MessagesJSON
	if messages == "" {
		messages = "[]"
	}

	return shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "upsert workspace", func() error {
		_, err := s.db.ExecContext(ctx, query,
			ws.ID, ws.UserID, ws.SessionID, repoURL, messages,
			ws.CreatedAt.Unix(), time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert workspace: %w", err)
		}
		return nil
	})
}

// DeleteWorkspace removes a workspace, retrying on SQLITE_BUSY.
func (s *SQLiteStore) DeleteWorkspace(ctx context.Context, userID, sessionID string) error {
	return shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "delete workspace", func() error {
		s.workspaceMu.Lock()
		defer s.workspaceMu.Unlock()

		_, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE user_id = ? AND session_id = ?`, userID, sessionID)
		if err != nil {
			return fmt.Errorf("delete workspace: %w", err)
		}
		return nil
	})
}

// GetExpiredWorkspaces retrieves workspaces idle longer than ttl.
func (s *SQLiteStore) GetExpiredWorkspaces(ctx context.Context, ttl time.Duration) ([]*domain.Workspace, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE updated_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query expired workspaces: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close expired workspaces rows", "error", closeErr)
		}
	}()

	var out []*domain.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired workspace row: %w", err)
		}
		out = append(out, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired workspaces: %w", err)
	}
	return out, nil
}

// CleanupExpiredWorkspaces removes workspaces idle longer than ttl.
func (s *SQLiteStore) CleanupExpiredWorkspaces(ctx context.Context, ttl time.Duration) (int64, error) {
	s.workspaceMu.Lock()
	defer s.workspaceMu.Unlock()

	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired workspaces: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
