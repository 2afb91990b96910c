// Package ingest implements the repository ingestion form.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
)

const (
	labelIdle = "Ingest Repo"
	labelBusy = "Ingesting..."
)

var (
	// ErrEmptyURL is returned when the form is submitted without a URL.
	ErrEmptyURL = errors.New("ingest: repository url is required")
	// ErrInvalidURL is returned when the input is not URL-shaped.
	ErrInvalidURL = errors.New("ingest: repository url is not a valid url")
	// ErrBusy is returned while an ingestion request is in flight.
	ErrBusy = errors.New("ingest: ingestion already in progress")
)

var validate = validator.New()

type submission struct {
	URL string `validate:"required,url"`
}

// Ingester registers a repository reference with the oracle.
type Ingester interface {
	Ingest(ctx context.Context, repoURL string) error
}

// OnIngest is called with the submitted URL once the request settles.
type OnIngest func(repoURL string)

// Form submits repository URLs for ingestion. The outcome of the request is
// never surfaced: once it settles, successfully or not, the parent is told
// the repository is active.
type Form struct {
	ingester Ingester
	onIngest OnIngest
	onBusy   func(busy bool)
	logger   *slog.Logger

	busy atomic.Bool

	mu    sync.RWMutex
	draft string
}

// NewForm creates a form that notifies onIngest after each settled request.
func NewForm(ingester Ingester, onIngest OnIngest, logger *slog.Logger) *Form {
	if logger == nil {
		logger = slog.Default()
	}
	return &Form{
		ingester: ingester,
		onIngest: onIngest,
		logger:   logger,
	}
}

// OnBusyChange registers fn to be called when the form enters and leaves
// the busy state. It must be set before the first Submit.
func (f *Form) OnBusyChange(fn func(busy bool)) {
	f.onBusy = fn
}

// Validate checks that raw is a non-empty, URL-shaped string.
func Validate(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrEmptyURL
	}
	if err := validate.Struct(submission{URL: raw}); err != nil {
		return ErrInvalidURL
	}
	return nil
}

// SetURL replaces the URL draft. The input is disabled while busy.
func (f *Form) SetURL(raw string) error {
	if f.busy.Load() {
		return ErrBusy
	}
	f.mu.Lock()
	f.draft = raw
	f.mu.Unlock()
	return nil
}

// URL returns the current draft.
func (f *Form) URL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.draft
}

// Busy reports whether an ingestion request is in flight.
func (f *Form) Busy() bool {
	return f.busy.Load()
}

// Label is the submit control caption.
func (f *Form) Label() string {
	if f.busy.Load() {
		return labelBusy
	}
	return labelIdle
}

// Submit validates repoURL, posts it for ingestion and notifies the parent
// once the request settles. Only validation and ErrBusy are returned;
// request failures are logged and otherwise ignored.
func (f *Form) Submit(ctx context.Context, repoURL string) error {
	if err := Validate(repoURL); err != nil {
		return err
	}
	if !f.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer f.setIdle()
	if f.onBusy != nil {
		f.onBusy(true)
	}

	f.mu.Lock()
	f.draft = repoURL
	f.mu.Unlock()

	if err := f.ingester.Ingest(ctx, repoURL); err != nil {
		f.logger.Warn("ingest: request failed, treating repository as accepted",
			"repo_url", repoURL,
			"error", err,
		)
	}

	if f.onIngest != nil {
		f.onIngest(repoURL)
	}
	return nil
}

func (f *Form) setIdle() {
	f.busy.Store(false)
	if f.onBusy != nil {
		f.onBusy(false)
	}
}
