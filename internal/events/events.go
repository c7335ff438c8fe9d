// Package events publishes domain events produced by the backend, so other
// systems (push delivery, analytics) can react to chat activity without
// coupling to the request path.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// TypeMessageSent is the event type emitted after a message is stored.
const TypeMessageSent = "message.sent"

// MessageSent is published once per stored message. Replayed idempotent
// sends do not publish again.
type MessageSent struct {
	Type           string    `json:"type"`
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Key partitions events by conversation so a conversation's events stay
// ordered.
func (e MessageSent) Key() string { return e.ConversationID }

// Encode returns the JSON wire form.
func (e MessageSent) Encode() ([]byte, error) {
	if e.Type == "" {
		e.Type = TypeMessageSent
	}
	return json.Marshal(e)
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishMessageSent(ctx context.Context, e MessageSent) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishMessageSent(context.Context, MessageSent) error { return nil }
func (Nop) Close() error { return nil }
