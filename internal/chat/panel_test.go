package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/codeoracle/internal/domain"
)

type askerFunc func(ctx context.Context, text string) (string, error)

func (f askerFunc) Ask(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

func echo(answer string) Asker {
	return askerFunc(func(context.Context, string) (string, error) {
		return answer, nil
	})
}

// blockingAsker holds every Ask until release is closed.
type blockingAsker struct {
	started chan struct{}
	release chan struct{}
	answer  string
}

func newBlockingAsker(answer string) *blockingAsker {
	return &blockingAsker{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		answer:  answer,
	}
}

func (b *blockingAsker) Ask(context.Context, string) (string, error) {
	b.started <- struct{}{}
	<-b.release
	return b.answer, nil
}

func TestSubmitAppendsUserThenBot(t *testing.T) {
	p := NewPanel(echo("42"))

	res, err := p.Submit(context.Background(), "what is the answer?")
	require.NoError(t, err)
	assert.False(t, res.Failed())

	want := []domain.Message{
		domain.UserMessage("what is the answer?"),
		domain.BotMessage("42"),
	}
	assert.Equal(t, want, p.Messages())
	assert.Equal(t, domain.BotMessage("42"), res.Reply)
}

func TestSubmitEmptyIsNoop(t *testing.T) {
	calls := 0
	p := NewPanel(askerFunc(func(context.Context, string) (string, error) {
		calls++
		return "x", nil
	}), WithGreeting("hello"))

	for _, in := range []string{"", " ", "\t\n  "} {
		_, err := p.Submit(context.Background(), in)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Equal(t, []domain.Message{domain.BotMessage("hello")}, p.Messages())
	assert.Zero(t, calls)
}

func TestSubmitTransportFailureAppendsFallback(t *testing.T) {
	boom := errors.New("connection refused")
	p := NewPanel(askerFunc(func(context.Context, string) (string, error) {
		return "", boom
	}))

	res, err := p.Submit(context.Background(), "hi")
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.ErrorIs(t, res.TransportErr, boom)

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.BotMessage("Error: Could not get response."), msgs[1])
}

func TestResponseInsertedVerbatim(t *testing.T) {
	raw := "<script>alert(1)</script>\n**bold**"
	p := NewPanel(echo(raw))

	_, err := p.Submit(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, raw, p.Messages()[1].Text)
}

func TestInputClearedAndIdleAfterSubmit(t *testing.T) {
	for name, asker := range map[string]Asker{
		"success": echo("ok"),
		"failure": askerFunc(func(context.Context, string) (string, error) { return "", errors.New("down") }),
	} {
		t.Run(name, func(t *testing.T) {
			p := NewPanel(asker)
			require.NoError(t, p.SetInput("hello"))
			assert.True(t, p.Snapshot().CanSend)

			_, err := p.Send(context.Background())
			require.NoError(t, err)

			snap := p.Snapshot()
			assert.Empty(t, snap.Input)
			assert.False(t, snap.Sending)
			assert.Equal(t, "Send", snap.SendLabel)
			assert.False(t, snap.CanSend, "empty draft cannot be sent")
		})
	}
}

func TestSecondSubmitWhileSendingIsRejected(t *testing.T) {
	asker := newBlockingAsker("done")
	p := NewPanel(asker)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.Submit(context.Background(), "first")
		assert.NoError(t, err)
	}()
	<-asker.started

	snap := p.Snapshot()
	assert.True(t, snap.Sending)
	assert.Equal(t, "Sending...", snap.SendLabel)
	assert.False(t, snap.CanSend)
	assert.Equal(t, []domain.Message{domain.UserMessage("first")}, snap.Messages)

	_, err := p.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, p.SetInput("typing"), ErrBusy)

	close(asker.release)
	wg.Wait()

	assert.Equal(t, []domain.Message{
		domain.UserMessage("first"),
		domain.BotMessage("done"),
	}, p.Messages())
	assert.False(t, p.Sending())
}

func TestTranscriptKeepsInsertionOrder(t *testing.T) {
	n := 0
	p := NewPanel(askerFunc(func(_ context.Context, text string) (string, error) {
		n++
		return "re:" + text, nil
	}), WithGreeting("hi"))

	inputs := []string{"a", "b", "a", "c"}
	for _, in := range inputs {
		_, err := p.Submit(context.Background(), in)
		require.NoError(t, err)
	}

	msgs := p.Messages()
	require.Len(t, msgs, 1+2*len(inputs))
	assert.Equal(t, domain.BotMessage("hi"), msgs[0])
	for i, in := range inputs {
		assert.Equal(t, domain.UserMessage(in), msgs[1+2*i])
		assert.Equal(t, domain.BotMessage("re:"+in), msgs[2+2*i])
	}
	assert.Equal(t, len(inputs), n)
}

func TestObserverSeesEveryMutationInOrder(t *testing.T) {
	var events []Event
	p := NewPanel(echo("pong"), WithObserver(func(ev Event) {
		events = append(events, ev)
	}))

	_, err := p.Submit(context.Background(), "ping")
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, EventMessage, events[0].Kind)
	assert.Equal(t, 0, events[0].Index)
	assert.Equal(t, domain.UserMessage("ping"), *events[0].Message)
	assert.Equal(t, Event{Kind: EventState, Sending: true}, events[1])
	assert.Equal(t, EventMessage, events[2].Kind)
	assert.Equal(t, 1, events[2].Index)
	assert.Equal(t, domain.BotMessage("pong"), *events[2].Message)
	assert.Equal(t, Event{Kind: EventState, Sending: false}, events[3])
}

func TestRestoredTranscriptSkipsGreeting(t *testing.T) {
	prior := []domain.Message{domain.BotMessage("hi"), domain.UserMessage("q"), domain.BotMessage("a")}
	p := NewPanel(echo("x"), WithTranscript(prior), WithGreeting("hi"))

	assert.Equal(t, prior, p.Messages())
	assert.Equal(t, 3, p.Len())
}

func TestClosedPanelRefusesSubmissions(t *testing.T) {
	var events []Event
	p := NewPanel(echo("42"), WithObserver(func(ev Event) { events = append(events, ev) }))

	require.True(t, p.Close())
	assert.True(t, p.Closed())
	assert.False(t, p.Sending())

	_, err := p.Submit(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.SetInput("hi"), ErrClosed)
	assert.Empty(t, p.Messages())
	assert.Empty(t, events)
	assert.True(t, p.Close())
}

func TestCloseFailsWhileSending(t *testing.T) {
	asker := newBlockingAsker("late")
	p := NewPanel(asker)

	done := make(chan error, 1)
	go func() {
		_, err := p.Submit(context.Background(), "q")
		done <- err
	}()
	<-asker.started

	assert.False(t, p.Close())
	assert.False(t, p.Closed())

	close(asker.release)
	require.NoError(t, <-done)
	assert.True(t, p.Close())
}
