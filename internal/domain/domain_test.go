package domain

import (
	"testing"
	"time"
)

func TestValidateMessages(t *testing.T) {
	ok := []Message{BotMessage("hi"), UserMessage("q"), BotMessage("a")}
	if err := ValidateMessages(ok); err != nil {
		t.Fatalf("expected valid transcript, got %v", err)
	}

	bad := []Message{UserMessage("q"), {Sender: "system", Text: "x"}}
	if err := ValidateMessages(bad); err == nil {
		t.Fatal("expected error for unknown sender")
	}
}

func TestWorkspaceExpired(t *testing.T) {
	now := time.Now()
	w := &Workspace{UpdatedAt: now.Add(-2 * time.Hour)}

	if !w.Expired(now, time.Hour) {
		t.Error("expected workspace idle for 2h to be expired with 1h ttl")
	}
	if w.Expired(now, 3*time.Hour) {
		t.Error("expected workspace idle for 2h to be live with 3h ttl")
	}
	if w.HasRepository() {
		t.Error("expected no repository on empty workspace")
	}
}

func TestUserIdleFor(t *testing.T) {
	now := time.Now()
	u := &User{LastSeenAt: now.Add(time.Minute)}
	if got := u.IdleFor(now); got != 0 {
		t.Errorf("expected 0 for future last-seen, got %v", got)
	}
}
