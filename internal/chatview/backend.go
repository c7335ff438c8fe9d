package chatview

import (
	"context"

	"github.com/tbourn/taalmeet/internal/domain"
)

// SendRequest is one send attempt. TempID identifies the optimistic message
// and doubles as the idempotency key.
type SendRequest struct {
	ConversationID string
	Text           string
	TempID         string
}

// ConversationSummary is the conversation list entry used to resolve the
// chat partner's display identity.
type ConversationSummary struct {
	ID          string
	PartnerID   string
	PartnerName string
	UnreadCount int64
	LastMessage *domain.Message
	// Blocked reports a block in either direction.
	Blocked bool
}

// Backend is the remote collaborator the pipeline calls. Implementations
// must be safe for concurrent use.
type Backend interface {
	// FetchMessages returns the confirmed messages of a conversation in any
	// order.
	FetchMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	// SendMessage stores a message and returns the confirmed copy.
	SendMessage(ctx context.Context, req SendRequest) (*domain.Message, error)
	// MarkConversationRead marks incoming messages as read.
	MarkConversationRead(ctx context.Context, conversationID string) error
	// FetchConversations lists the caller's conversations.
	FetchConversations(ctx context.Context) ([]ConversationSummary, error)
}
