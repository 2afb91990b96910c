package domain

import "fmt"

// Sender identifies who authored a chat message.
type Sender string

const (
	// SenderUser marks messages typed by the person in the browser.
	SenderUser Sender = "user"
	// SenderBot marks messages produced by the question-answering service.
	SenderBot Sender = "bot"
)

// Valid reports whether s is one of the known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderBot
}

// Message is a single transcript entry. Messages are values and are never
// modified after they are appended.
type Message struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}

// UserMessage returns a message authored by the user.
func UserMessage(text string) Message {
	return Message{Sender: SenderUser, Text: text}
}

// BotMessage returns a message authored by the bot.
func BotMessage(text string) Message {
	return Message{Sender: SenderBot, Text: text}
}

// ValidateMessages checks that every message carries a known sender.
func ValidateMessages(msgs []Message) error {
	for i, m := range msgs {
		if !m.Sender.Valid() {
			return fmt.Errorf("message %d: unknown sender %q", i, m.Sender)
		}
	}
	return nil
}
