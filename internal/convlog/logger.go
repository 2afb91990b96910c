// Package convlog writes conversations as NDJSON, one file per tab session
// and optionally one global file, through a bounded asynchronous queue.
package convlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/codeoracle/internal/domain"
)

// Config controls conversation logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Event is one logged conversation line.
type Event struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Logger accepts conversation events.
type Logger interface {
	Log(ev Event)
	RecordMessage(userID, sessionID string, msg domain.Message)
	Close() error
}

// New returns a file-backed logger, or a no-op logger when disabled.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return Noop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation log dir: %w", err)
		}
	}

	fl := &fileLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		fl.global = f
	}

	go fl.run()
	return fl, nil
}

// Noop discards every event.
type Noop struct{}

func (Noop) Log(Event)                                   {}
func (Noop) RecordMessage(string, string, domain.Message) {}
func (Noop) Close() error                                { return nil }

type fileLogger struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}
	global *os.File

	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// Log enqueues ev. When the queue is full the event is dropped.
func (l *fileLogger) Log(ev Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.Content == "" {
		ev.Content = cleanForReadability(ev.ContentRaw)
	}

	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("conversation log queue full, dropping event",
			"user_id", ev.UserID,
			"session_id", ev.SessionID,
			"event_type", ev.EventType,
		)
	}
}

// RecordMessage logs a transcript message.
func (l *fileLogger) RecordMessage(userID, sessionID string, msg domain.Message) {
	ev := Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		ContentRaw: msg.Text,
	}
	switch msg.Sender {
	case domain.SenderUser:
		ev.Direction = "outbound"
		ev.EventType = "chat_user_message"
	default:
		ev.Direction = "inbound"
		ev.EventType = "chat_bot_message"
	}
	l.Log(ev)
}

// Close drains the queue and closes open files.
func (l *fileLogger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	<-l.done

	if l.global != nil {
		if err := l.global.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			return fmt.Errorf("close global conversation log: %w", err)
		}
	}
	return nil
}

func (l *fileLogger) run() {
	defer close(l.done)
	for ev := range l.queue {
		line, err := json.Marshal(ev)
		if err != nil {
			l.logger.Warn("failed to encode conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if l.cfg.Enabled {
			if err := l.appendSession(ev, line); err != nil {
				l.logger.Warn("failed to write conversation log", "error", err, "user_id", ev.UserID)
			}
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileLogger) appendSession(ev Event, line []byte) error {
	dir := filepath.Join(l.cfg.Dir, safeName(ev.UserID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, safeName(ev.SessionID)+".ndjson"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var (
	ansiPattern   = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	unsafePattern = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

func safeName(s string) string {
	s = unsafePattern.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// cleanForReadability strips terminal escapes and control characters.
func cleanForReadability(raw string) string {
	s := ansiPattern.ReplaceAllString(raw, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
