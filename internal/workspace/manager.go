package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/codeoracle/internal/domain"
	"github.com/ashureev/codeoracle/internal/store"
)

const persistTimeout = 5 * time.Second

// Publisher pushes live updates to the views of a tab.
type Publisher interface {
	Publish(key string, v any)
}

// Recorder receives every appended transcript message.
type Recorder interface {
	RecordMessage(userID, sessionID string, msg domain.Message)
}

// Manager owns the live workspaces, one per browser tab, and keeps them in
// sync with the store.
type Manager struct {
	repo      store.Repository
	oracle    Oracle
	greeting  string
	publisher Publisher
	recorder  Recorder
	logger    *slog.Logger

	mu     sync.Mutex
	active map[Key]*Workspace
}

// Option configures a Manager.
type Option func(*Manager)

// WithGreeting sets the bot greeting of new chat panels.
func WithGreeting(text string) Option {
	return func(m *Manager) { m.greeting = text }
}

// WithPublisher sets the live update sink.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithRecorder sets the conversation recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a workspace manager.
func NewManager(repo store.Repository, oracle Oracle, opts ...Option) *Manager {
	m := &Manager{
		repo:   repo,
		oracle: oracle,
		logger: slog.Default(),
		active: make(map[Key]*Workspace),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the workspace for key, loading it from the store or creating
// an empty one on first use.
func (m *Manager) Get(ctx context.Context, key Key) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.active[key]; ok {
		return w, nil
	}

	rec, err := m.repo.GetWorkspace(ctx, key.UserID, key.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load workspace: %w", err)
	}

	var w *Workspace
	if rec != nil {
		w, err = m.restore(key, rec)
		if err != nil {
			m.logger.Warn("Discarding unreadable workspace", "user_id", key.UserID, "session_id", key.SessionID, "error", err)
			w = nil
		}
	}
	if w == nil {
		w = newWorkspace(key, uuid.NewString(), time.Now(), m.oracle, m.greeting, m.logger, m.hooks())
	}

	m.active[key] = w
	return w, nil
}

func (m *Manager) restore(key Key, rec *domain.Workspace) (*Workspace, error) {
	msgs, err := decodeMessages(rec.MessagesJSON)
	if err != nil {
		return nil, err
	}

	w := newWorkspace(key, rec.ID, rec.CreatedAt, m.oracle, m.greeting, m.logger, m.hooks())
	if rec.HasRepository() {
		w.repoURL = rec.RepoURL
		w.panel = w.newPanel(msgs)
		if err := w.form.SetURL(rec.RepoURL); err != nil {
			return nil, err
		}
	}
	w.lastActive = rec.UpdatedAt
	return w, nil
}

// SnapshotFor returns the snapshot event sent to a newly connected view.
func (m *Manager) SnapshotFor(ctx context.Context, userID, sessionID string) (any, error) {
	w, err := m.Get(ctx, Key{UserID: userID, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return Event{Kind: EventSnapshot, Snapshot: w.snapshotPtr()}, nil
}

// Evict drops the in-memory workspace for key if it has been idle longer
// than ttl and has no request in flight. It reports whether key is no
// longer held in memory.
func (m *Manager) Evict(key Key, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.active[key]
	if !ok {
		return true
	}
	if w.Busy() || w.IdleFor(time.Now()) <= ttl {
		return false
	}
	delete(m.active, key)
	return true
}

// Sweep evicts every in-memory workspace idle longer than ttl and returns
// their keys.
func (m *Manager) Sweep(ttl time.Duration) []Key {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var evicted []Key
	for key, w := range m.active {
		if w.Busy() || w.IdleFor(now) <= ttl {
			continue
		}
		delete(m.active, key)
		evicted = append(evicted, key)
	}
	return evicted
}

// Len returns the number of workspaces held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) hooks() hooks {
	h := hooks{persist: m.persist}
	if m.publisher != nil {
		h.publish = func(k Key, ev Event) { m.publisher.Publish(k.String(), ev) }
	}
	if m.recorder != nil {
		h.record = func(k Key, msg domain.Message) { m.recorder.RecordMessage(k.UserID, k.SessionID, msg) }
	}
	return h
}

func (m *Manager) persist(w *Workspace) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := m.repo.UpsertWorkspace(ctx, w.record()); err != nil {
		m.logger.Error("Failed to persist workspace",
			"user_id", w.key.UserID,
			"session_id", w.key.SessionID,
			"error", err,
		)
	}
}

func encodeMessages(msgs []domain.Message, logger *slog.Logger) string {
	data, err := json.Marshal(msgs)
	if err != nil {
		logger.Error("Failed to encode transcript", "error", err)
		return "[]"
	}
	return string(data)
}

func decodeMessages(raw string) ([]domain.Message, error) {
	if raw == "" {
		return nil, nil
	}
	var msgs []domain.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	if err := domain.ValidateMessages(msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
