// Package sweeper removes idle workspaces from memory and the store.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/codeoracle/internal/store"
	"github.com/ashureev/codeoracle/internal/workspace"
)

// orphanFactor scales the ttl after which stored rows are removed even when
// no live workspace claims them.
const orphanFactor = 7

// Evicter drops idle workspaces held in memory.
type Evicter interface {
	Sweep(ttl time.Duration) []workspace.Key
	Evict(key workspace.Key, ttl time.Duration) bool
}

// Pruner is any in-memory table that can forget stale entries.
type Pruner interface {
	Prune() int
}

// CleanupCallback is called once for every workspace removed by a sweep.
type CleanupCallback func(key workspace.Key)

// Config controls the sweep schedule.
type Config struct {
	TTL      time.Duration
	Interval time.Duration
}

// Start runs a background goroutine that sweeps every cfg.Interval until ctx
// is done. The returned channel is closed when the goroutine exits.
func Start(ctx context.Context, repo store.Repository, mgr Evicter, cfg Config, onCleanup CleanupCallback, pruners ...Pruner) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Sweeper started", "interval", cfg.Interval, "ttl", cfg.TTL)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, repo, mgr, cfg.TTL, onCleanup)
				for _, p := range pruners {
					if n := p.Prune(); n > 0 {
						slog.Debug("Sweeper pruned entries", "count", n)
					}
				}
			case <-ctx.Done():
				slog.Info("Sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

// Sweep performs one pass and returns the keys it removed. Workspaces with a
// request in flight are left alone until a later pass.
func Sweep(ctx context.Context, repo store.Repository, mgr Evicter, ttl time.Duration, onCleanup CleanupCallback) []workspace.Key {
	removed := make(map[workspace.Key]struct{})
	var order []workspace.Key
	mark := func(key workspace.Key) {
		if _, seen := removed[key]; seen {
			return
		}
		removed[key] = struct{}{}
		order = append(order, key)
		if onCleanup != nil {
			onCleanup(key)
		}
	}

	for _, key := range mgr.Sweep(ttl) {
		mark(key)
	}

	expired, err := repo.GetExpiredWorkspaces(ctx, ttl)
	if err != nil {
		slog.Error("Sweeper failed to get expired workspaces", "error", err)
		return order
	}

	for _, ws := range expired {
		key := workspace.Key{UserID: ws.UserID, SessionID: ws.SessionID}
		if !mgr.Evict(key, ttl) {
			continue
		}
		if err := repo.DeleteWorkspace(ctx, ws.UserID, ws.SessionID); err != nil {
			slog.Warn("Sweeper failed to delete workspace",
				"error", err,
				"user_id", ws.UserID,
				"session_id", ws.SessionID)
			continue
		}
		mark(key)
	}

	if len(order) > 0 {
		slog.Info("Sweeper cleanup completed", "cleaned", len(order))
	}

	if deleted, err := repo.CleanupExpiredWorkspaces(ctx, orphanFactor*ttl); err != nil {
		slog.Error("Sweeper failed to cleanup orphaned workspaces", "error", err)
	} else if deleted > 0 {
		slog.Info("Sweeper cleaned up orphaned workspaces", "count", deleted)
	}
	return order
}
