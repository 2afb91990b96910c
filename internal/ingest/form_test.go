package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	mu      sync.Mutex
	calls   []string
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeIngester) Ingest(_ context.Context, repoURL string) error {
	f.mu.Lock()
	f.calls = append(f.calls, repoURL)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	return f.err
}

func (f *fakeIngester) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSubmitNotifiesParent(t *testing.T) {
	ing := &fakeIngester{}
	var got []string
	form := NewForm(ing, func(u string) { got = append(got, u) }, nil)

	require.NoError(t, form.Submit(context.Background(), "https://github.com/acme/widgets"))

	assert.Equal(t, []string{"https://github.com/acme/widgets"}, got)
	assert.Equal(t, 1, ing.callCount())
	assert.Equal(t, "https://github.com/acme/widgets", form.URL())
	assert.False(t, form.Busy())
	assert.Equal(t, "Ingest Repo", form.Label())
}

func TestSubmitNotifiesParentEvenOnFailure(t *testing.T) {
	ing := &fakeIngester{err: errors.New("connection reset")}
	notified := ""
	form := NewForm(ing, func(u string) { notified = u }, nil)

	err := form.Submit(context.Background(), "https://github.com/acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets", notified)
}

func TestSubmitRejectsEmptyAndMalformed(t *testing.T) {
	ing := &fakeIngester{}
	notified := false
	form := NewForm(ing, func(string) { notified = true }, nil)

	assert.ErrorIs(t, form.Submit(context.Background(), ""), ErrEmptyURL)
	assert.ErrorIs(t, form.Submit(context.Background(), "   "), ErrEmptyURL)
	assert.ErrorIs(t, form.Submit(context.Background(), "not a url"), ErrInvalidURL)

	assert.Zero(t, ing.callCount())
	assert.False(t, notified)
}

func TestSubmitWhileBusy(t *testing.T) {
	ing := &fakeIngester{started: make(chan struct{}, 1), release: make(chan struct{})}
	var notified atomic.Int32
	form := NewForm(ing, func(string) { notified.Add(1) }, nil)

	done := make(chan error, 1)
	go func() {
		done <- form.Submit(context.Background(), "https://github.com/acme/one")
	}()
	<-ing.started

	assert.True(t, form.Busy())
	assert.Equal(t, "Ingesting...", form.Label())
	assert.ErrorIs(t, form.Submit(context.Background(), "https://github.com/acme/two"), ErrBusy)
	assert.ErrorIs(t, form.SetURL("https://github.com/acme/three"), ErrBusy)
	assert.Zero(t, notified.Load(), "parent must not hear about the repository before the request settles")

	close(ing.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, ing.callCount())
	assert.Equal(t, int32(1), notified.Load())
	assert.False(t, form.Busy())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("https://github.com/acme/widgets"))
	assert.NoError(t, Validate("git://example.com/repo.git"))
	assert.ErrorIs(t, Validate("github.com acme"), ErrInvalidURL)
}
