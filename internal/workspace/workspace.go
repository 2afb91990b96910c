// Package workspace implements the root view of one browser tab: the
// ingestion form, the repository reference it produces and the chat panel
// that is mounted once an ingestion has settled.
package workspace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/codeoracle/internal/chat"
	"github.com/ashureev/codeoracle/internal/domain"
	"github.com/ashureev/codeoracle/internal/ingest"
)

// ErrNoRepository is returned by chat operations before any ingestion has
// settled for the tab.
var ErrNoRepository = errors.New("workspace: no repository ingested")

// Oracle is the remote service as seen by a workspace.
type Oracle interface {
	ingest.Ingester
	chat.Asker
}

// Key identifies the workspace of one browser tab.
type Key struct {
	UserID    string
	SessionID string
}

func (k Key) String() string {
	return k.UserID + ":" + k.SessionID
}

// Snapshot is the renderable state of a workspace.
type Snapshot struct {
	RepoURL     string         `json:"repo_url,omitempty"`
	Ingesting   bool           `json:"ingesting"`
	IngestLabel string         `json:"ingest_label"`
	ChatMounted bool           `json:"chat_mounted"`
	Chat        *chat.Snapshot `json:"chat,omitempty"`
}

// hooks connect a workspace to its manager.
type hooks struct {
	publish func(Key, Event)
	persist func(*Workspace)
	record  func(Key, domain.Message)
}

// Workspace is the root view of one tab. The only state shared between the
// form and the chat panel is whether a repository is active.
type Workspace struct {
	key       Key
	id        string
	createdAt time.Time
	oracle    Oracle
	greeting  string
	logger    *slog.Logger
	hooks     hooks
	form      *ingest.Form

	mu         sync.RWMutex
	repoURL    string
	panel      *chat.Panel
	lastActive time.Time
}

func newWorkspace(key Key, id string, createdAt time.Time, oracle Oracle, greeting string, logger *slog.Logger, h hooks) *Workspace {
	w := &Workspace{
		key:        key,
		id:         id,
		createdAt:  createdAt,
		oracle:     oracle,
		greeting:   greeting,
		logger:     logger.With("user_id", key.UserID, "session_id", key.SessionID),
		hooks:      h,
		lastActive: time.Now(),
	}
	w.form = ingest.NewForm(oracle, w.onIngest, w.logger)
	w.form.OnBusyChange(w.onFormBusy)
	return w
}

// Key returns the tab key of the workspace.
func (w *Workspace) Key() Key {
	return w.key
}

// RepoURL returns the active repository reference, or "" if none.
func (w *Workspace) RepoURL() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.repoURL
}

// Ingest submits repoURL through the ingestion form. The chat panel is
// mounted once the request settles, whatever its outcome. The request is
// not cancelled when ctx is.
func (w *Workspace) Ingest(ctx context.Context, repoURL string) error {
	w.touch()
	if err := w.form.Submit(context.WithoutCancel(ctx), repoURL); err != nil {
		return err
	}
	w.publish(Event{Kind: EventMounted, Snapshot: w.snapshotPtr()})
	return nil
}

func (w *Workspace) onFormBusy(busy bool) {
	if busy {
		w.publish(Event{Kind: EventIngesting, Snapshot: w.snapshotPtr()})
	}
}

func (w *Workspace) onIngest(repoURL string) {
	w.mu.Lock()
	w.repoURL = repoURL
	mounted := w.panel == nil
	if mounted {
		w.panel = w.newPanel(nil)
	}
	w.mu.Unlock()

	w.logger.Info("Repository active", "repo_url", repoURL, "mounted", mounted)
	w.persist()
}

// newPanel builds a panel wired to this workspace. A panel is only ever
// replaced by unmounting it first, so its transcript lives until Clear.
func (w *Workspace) newPanel(restored []domain.Message) *chat.Panel {
	return chat.NewPanel(w.oracle,
		chat.WithTranscript(restored),
		chat.WithGreeting(w.greeting),
		chat.WithLogger(w.logger),
		chat.WithObserver(w.onPanelEvent),
	)
}

func (w *Workspace) onPanelEvent(ev chat.Event) {
	if ev.Kind == chat.EventMessage {
		w.persist()
		if w.hooks.record != nil && ev.Message != nil {
			w.hooks.record(w.key, *ev.Message)
		}
	}
	w.publish(Event{Kind: EventKind(ev.Kind), Index: ev.Index, Message: ev.Message, Sending: ev.Sending})
}

// Chat returns the mounted chat panel.
func (w *Workspace) Chat() (*chat.Panel, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.panel == nil {
		return nil, ErrNoRepository
	}
	return w.panel, nil
}

// Send submits text to the mounted chat panel. The request is not
// cancelled when ctx is.
func (w *Workspace) Send(ctx context.Context, text string) (chat.Result, error) {
	w.touch()
	panel, err := w.Chat()
	if err != nil {
		return chat.Result{}, err
	}
	res, err := panel.Submit(context.WithoutCancel(ctx), text)
	if errors.Is(err, chat.ErrClosed) {
		return chat.Result{}, ErrNoRepository
	}
	return res, err
}

// Clear drops the repository reference and unmounts the chat panel. A later
// ingestion mounts a fresh panel with an empty transcript. A panel obtained
// from Chat before the clear refuses further submissions.
func (w *Workspace) Clear() error {
	w.touch()
	w.mu.Lock()
	if w.panel != nil && !w.panel.Close() {
		w.mu.Unlock()
		return chat.ErrBusy
	}
	w.repoURL = ""
	w.panel = nil
	w.mu.Unlock()

	w.logger.Info("Repository cleared")
	w.persist()
	w.publish(Event{Kind: EventCleared, Snapshot: w.snapshotPtr()})
	return nil
}

// Busy reports whether an ingestion or chat request is in flight.
func (w *Workspace) Busy() bool {
	if w.form.Busy() {
		return true
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.panel != nil && w.panel.Sending()
}

// Snapshot returns the renderable state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Snapshot{
		RepoURL:     w.repoURL,
		Ingesting:   w.form.Busy(),
		IngestLabel: w.form.Label(),
		ChatMounted: w.panel != nil,
	}
	if w.panel != nil {
		cs := w.panel.Snapshot()
		s.Chat = &cs
	}
	return s
}

func (w *Workspace) snapshotPtr() *Snapshot {
	s := w.Snapshot()
	return &s
}

func (w *Workspace) record() *domain.Workspace {
	w.mu.RLock()
	defer w.mu.RUnlock()

	rec := &domain.Workspace{
		ID:           w.id,
		UserID:       w.key.UserID,
		SessionID:    w.key.SessionID,
		RepoURL:      w.repoURL,
		MessagesJSON: "[]",
		CreatedAt:    w.createdAt,
	}
	if w.panel != nil {
		rec.MessagesJSON = encodeMessages(w.panel.Messages(), w.logger)
	}
	return rec
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastActive = time.Now()
	w.mu.Unlock()
}

// IdleFor returns the time since the last user action.
func (w *Workspace) IdleFor(now time.Time) time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return now.Sub(w.lastActive)
}

func (w *Workspace) persist() {
	if w.hooks.persist != nil {
		w.hooks.persist(w)
	}
}

func (w *Workspace) publish(ev Event) {
	if w.hooks.publish != nil {
		w.hooks.publish(w.key, ev)
	}
}
