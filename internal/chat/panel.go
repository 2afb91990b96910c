// Package chat implements the chat panel: an append-only transcript and the
// submit cycle that sends one message to the oracle and appends its answer.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ashureev/codeoracle/internal/domain"
)

// FallbackText is appended as the bot reply when the oracle cannot be reached.
const FallbackText = "Error: Could not get response."

const (
	sendLabelIdle    = "Send"
	sendLabelSending = "Sending..."
)

var (
	// ErrEmptyMessage is returned for empty or whitespace-only input.
	// The transcript is not touched.
	ErrEmptyMessage = errors.New("chat: message is empty")
	// ErrBusy is returned while a previous submission is still in flight.
	ErrBusy = errors.New("chat: a message is already being sent")
	// ErrClosed is returned by a panel that has been unmounted.
	ErrClosed = errors.New("chat: panel is closed")
)

// Asker obtains an answer for a chat message.
type Asker interface {
	Ask(ctx context.Context, text string) (string, error)
}

// Result describes a settled submission.
type Result struct {
	User  domain.Message
	Reply domain.Message
	// TransportErr is the oracle failure that produced the fallback reply.
	TransportErr error
}

// Failed reports whether the reply is the fallback message.
func (r Result) Failed() bool {
	return r.TransportErr != nil
}

// Snapshot is a point-in-time copy of the panel state for rendering.
type Snapshot struct {
	Messages  []domain.Message `json:"messages"`
	Input     string           `json:"input"`
	Sending   bool             `json:"sending"`
	CanSend   bool             `json:"can_send"`
	SendLabel string           `json:"send_label"`
}

// Panel owns one transcript. At most one submission is in flight at a time;
// the guard is held by the panel itself, not by any view element.
type Panel struct {
	asker  Asker
	logger *slog.Logger

	inFlight atomic.Bool
	closed   atomic.Bool

	mu         sync.RWMutex
	transcript []domain.Message
	input      string
	observer   Observer
}

// Option configures a Panel.
type Option func(*Panel)

// WithGreeting seeds an empty transcript with a bot message.
func WithGreeting(text string) Option {
	return func(p *Panel) {
		if text != "" && len(p.transcript) == 0 {
			p.transcript = append(p.transcript, domain.BotMessage(text))
		}
	}
}

// WithTranscript restores a previously persisted transcript.
func WithTranscript(msgs []domain.Message) Option {
	return func(p *Panel) {
		p.transcript = append(p.transcript[:0], msgs...)
	}
}

// WithObserver registers a callback for every panel change.
func WithObserver(o Observer) Option {
	return func(p *Panel) {
		p.observer = o
	}
}

// WithLogger sets the logger used for transport failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Panel) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPanel creates a panel that sends messages through asker.
// Options apply in order, so WithTranscript should precede WithGreeting.
func NewPanel(asker Asker, opts ...Option) *Panel {
	p := &Panel{
		asker:  asker,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetInput replaces the input draft. The draft is read-only while sending.
func (p *Panel) SetInput(text string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if p.inFlight.Load() {
		return ErrBusy
	}
	p.mu.Lock()
	p.input = text
	p.mu.Unlock()
	return nil
}

// Send submits the current input draft.
func (p *Panel) Send(ctx context.Context) (Result, error) {
	p.mu.RLock()
	text := p.input
	p.mu.RUnlock()
	return p.Submit(ctx, text)
}

// Submit appends text as a user message, asks the oracle and appends the
// answer, or FallbackText if the request failed. The input draft is cleared
// and the panel returns to idle whatever the outcome.
func (p *Panel) Submit(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyMessage
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		if p.closed.Load() {
			return Result{}, ErrClosed
		}
		return Result{}, ErrBusy
	}

	p.mu.Lock()
	p.input = text
	p.mu.Unlock()

	res := Result{User: domain.UserMessage(text)}
	p.append(res.User)
	p.emit(Event{Kind: EventState, Sending: true})

	answer, err := p.asker.Ask(ctx, text)
	if err != nil {
		p.logger.Warn("chat: oracle request failed", "error", err)
		res.TransportErr = err
		res.Reply = domain.BotMessage(FallbackText)
	} else {
		res.Reply = domain.BotMessage(answer)
	}
	p.append(res.Reply)

	p.mu.Lock()
	p.input = ""
	p.mu.Unlock()
	p.inFlight.Store(false)
	p.emit(Event{Kind: EventState, Sending: false})

	return res, nil
}

// Close unmounts the panel. It fails while a submission is in flight; once
// it succeeds every later submission returns ErrClosed.
func (p *Panel) Close() bool {
	if p.closed.Load() {
		return true
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return false
	}
	p.closed.Store(true)
	return true
}

// Closed reports whether the panel has been unmounted.
func (p *Panel) Closed() bool {
	return p.closed.Load()
}

// Sending reports whether a submission is in flight.
func (p *Panel) Sending() bool {
	return !p.closed.Load() && p.inFlight.Load()
}

// Messages returns a copy of the transcript in display order.
func (p *Panel) Messages() []domain.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Message, len(p.transcript))
	copy(out, p.transcript)
	return out
}

// Len returns the number of messages in the transcript.
func (p *Panel) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.transcript)
}

// Snapshot returns the current state for rendering.
func (p *Panel) Snapshot() Snapshot {
	sending := p.inFlight.Load()

	p.mu.RLock()
	defer p.mu.RUnlock()

	msgs := make([]domain.Message, len(p.transcript))
	copy(msgs, p.transcript)

	label := sendLabelIdle
	if sending {
		label = sendLabelSending
	}
	return Snapshot{
		Messages:  msgs,
		Input:     p.input,
		Sending:   sending,
		CanSend:   !sending && strings.TrimSpace(p.input) != "",
		SendLabel: label,
	}
}

func (p *Panel) append(m domain.Message) {
	p.mu.Lock()
	p.transcript = append(p.transcript, m)
	idx := len(p.transcript) - 1
	p.mu.Unlock()

	msg := m
	p.emit(Event{Kind: EventMessage, Index: idx, Message: &msg, Sending: p.inFlight.Load()})
}

func (p *Panel) emit(ev Event) {
	p.mu.RLock()
	o := p.observer
	p.mu.RUnlock()
	if o != nil {
		o(ev)
	}
}
