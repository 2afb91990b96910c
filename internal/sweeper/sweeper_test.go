package sweeper

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ashureev/codeoracle/internal/domain"
	"github.com/ashureev/codeoracle/internal/store"
	"github.com/ashureev/codeoracle/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeEvicter struct {
	mu      sync.Mutex
	swept   []workspace.Key
	pinned  map[workspace.Key]bool
	evicted []workspace.Key
}

func (f *fakeEvicter) Sweep(time.Duration) []workspace.Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.swept
	f.swept = nil
	return out
}

func (f *fakeEvicter) Evict(key workspace.Key, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pinned[key] {
		return false
	}
	f.evicted = append(f.evicted, key)
	return true
}

type countingPruner struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPruner) Prune() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 0
}

func (p *countingPruner) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "sweep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seed(t *testing.T, repo store.Repository, sessionIDs ...string) {
	t.Helper()
	for _, sid := range sessionIDs {
		require.NoError(t, repo.UpsertWorkspace(context.Background(), &domain.Workspace{
			ID: "ws-" + sid, UserID: "anon_1", SessionID: sid, CreatedAt: time.Now(),
		}))
	}
}

func TestSweepRemovesExpiredAndSkipsBusy(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, "tab-1", "tab-2")

	busy := workspace.Key{UserID: "anon_1", SessionID: "tab-2"}
	memOnly := workspace.Key{UserID: "anon_1", SessionID: "tab-3"}
	mgr := &fakeEvicter{
		swept:  []workspace.Key{memOnly},
		pinned: map[workspace.Key]bool{busy: true},
	}

	var cleaned []workspace.Key
	removed := Sweep(context.Background(), repo, mgr, -time.Second, func(k workspace.Key) {
		cleaned = append(cleaned, k)
	})

	want := []workspace.Key{memOnly, {UserID: "anon_1", SessionID: "tab-1"}}
	assert.Equal(t, want, removed)
	assert.Equal(t, want, cleaned)

	gone, err := repo.GetWorkspace(context.Background(), "anon_1", "tab-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSweepKeepsFreshWorkspaces(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, "tab-1")

	removed := Sweep(context.Background(), repo, &fakeEvicter{}, time.Hour, nil)
	assert.Empty(t, removed)

	still, err := repo.GetWorkspace(context.Background(), "anon_1", "tab-1")
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func TestStartRunsUntilCancelled(t *testing.T) {
	repo := newRepo(t)
	pruner := &countingPruner{}

	ctx, cancel := context.WithCancel(context.Background())
	done := Start(ctx, repo, &fakeEvicter{}, Config{TTL: time.Hour, Interval: 5 * time.Millisecond}, nil, pruner)

	require.Eventually(t, func() bool { return pruner.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
