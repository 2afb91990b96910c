package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/codeoracle/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestUserRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	missing, err := repo.GetUser(ctx, "anon_nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	now := time.Unix(time.Now().Unix(), 0)
	require.NoError(t, repo.UpsertUser(ctx, &domain.User{
		UserID: "anon_1", Username: "anon-1", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}))

	later := now.Add(time.Minute)
	require.NoError(t, repo.UpdateLastSeen(ctx, "anon_1", later))

	got, err := repo.GetUser(ctx, "anon_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "anon-1", got.Username)
	assert.Equal(t, later.Unix(), got.LastSeenAt.Unix())
}

func TestWorkspaceUpsertAndGet(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	ws := &domain.Workspace{
		ID:        "ws-1",
		UserID:    "anon_1",
		SessionID: "tab-1",
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.UpsertWorkspace(ctx, ws))

	got, err := repo.GetWorkspace(ctx, "anon_1", "tab-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.HasRepository())
	assert.Equal(t, "[]", got.MessagesJSON)

	ws.RepoURL = "https://github.com/acme/widgets"
	ws.MessagesJSON = `[{"sender":"bot","text":"hi"}]`
	require.NoError(t, repo.UpsertWorkspace(ctx, ws))

	got, err = repo.GetWorkspace(ctx, "anon_1", "tab-1")
	require.NoError(t, err)
	assert.Equal(t, "ws-1", got.ID)
	assert.Equal(t, "https://github.com/acme/widgets", got.RepoURL)
	assert.JSONEq(t, `[{"sender":"bot","text":"hi"}]`, got.MessagesJSON)

	other, err := repo.GetWorkspace(ctx, "anon_1", "tab-2")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestWorkspaceDeleteAndExpiry(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	for _, sid := range []string{"tab-1", "tab-2"} {
		require.NoError(t, repo.UpsertWorkspace(ctx, &domain.Workspace{
			ID: "ws-" + sid, UserID: "anon_1", SessionID: sid, CreatedAt: time.Now(),
		}))
	}

	require.NoError(t, repo.DeleteWorkspace(ctx, "anon_1", "tab-1"))
	gone, err := repo.GetWorkspace(ctx, "anon_1", "tab-1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	fresh, err := repo.GetExpiredWorkspaces(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	// A negative ttl puts the threshold in the future.
	expired, err := repo.GetExpiredWorkspaces(ctx, -time.Hour)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "tab-2", expired[0].SessionID)

	n, err := repo.CleanupExpiredWorkspaces(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPing(t *testing.T) {
	repo := newTestStore(t)
	assert.NoError(t, repo.Ping(context.Background()))
}
