// Package services – ConversationService
//
// This file implements the ConversationService, which serves the inbox view
// and the read-receipt use case. It enforces participant scoping (a user only
// ever sees conversations they are part of) and decorates each conversation
// with the partner profile, the last message and the unread count.
//
// Service-level errors (e.g., ErrConversationNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/taalmeet/internal/domain"
	"github.com/tbourn/taalmeet/internal/observability"
	"github.com/tbourn/taalmeet/internal/repo"
)

// ConversationRepo defines the repository contract required by
// ConversationService.
type ConversationRepo interface {
	// GetOrCreate returns the conversation for the unordered pair (a, b).
	GetOrCreate(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error)

	// GetForUser fetches a conversation by id scoped to a participant.
	GetForUser(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Conversation, error)

	// List returns the user's conversations, most recently active first.
	List(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error)

	// LastMessage returns the newest message or gorm.ErrRecordNotFound.
	LastMessage(ctx context.Context, db *gorm.DB, conversationID string) (*domain.Message, error)

	// CountUnread counts messages not sent by readerID and not yet read.
	CountUnread(ctx context.Context, db *gorm.DB, conversationID, readerID string) (int64, error)

	// MarkRead flags messages addressed to readerID as read.
	MarkRead(ctx context.Context, db *gorm.DB, conversationID, readerID string, at time.Time) (int64, error)

	// Partners loads profiles by id.
	Partners(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.Partner, error)

	// IsBlocked reports whether either user blocked the other.
	IsBlocked(ctx context.Context, db *gorm.DB, a, b string) (bool, error)
}

// GormConversationRepo implements ConversationRepo on top of package repo.
type GormConversationRepo struct{}

func (GormConversationRepo) GetOrCreate(ctx context.Context, db *gorm.DB, a, b string) (*domain.Conversation, error) {
	return repo.GetOrCreateConversation(ctx, db, a, b)
}

func (GormConversationRepo) GetForUser(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Conversation, error) {
	return repo.GetConversationForUser(ctx, db, id, userID)
}

func (GormConversationRepo) List(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	return repo.ListConversations(ctx, db, userID)
}

func (GormConversationRepo) LastMessage(ctx context.Context, db *gorm.DB, conversationID string) (*domain.Message, error) {
	return repo.LastMessage(ctx, db, conversationID)
}

func (GormConversationRepo) CountUnread(ctx context.Context, db *gorm.DB, conversationID, readerID string) (int64, error) {
	return repo.CountUnread(ctx, db, conversationID, readerID)
}

func (GormConversationRepo) MarkRead(ctx context.Context, db *gorm.DB, conversationID, readerID string, at time.Time) (int64, error) {
	return repo.MarkRead(ctx, db, conversationID, readerID, at)
}

func (GormConversationRepo) Partners(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.Partner, error) {
	return repo.GetPartners(ctx, db, ids)
}

func (GormConversationRepo) IsBlocked(ctx context.Context, db *gorm.DB, a, b string) (bool, error) {
	return repo.IsBlocked(ctx, db, a, b)
}

// ConversationSummary is one inbox row as seen by a participant.
type ConversationSummary struct {
	Conversation domain.Conversation
	PartnerID    string
	Partner      *domain.Partner
	LastMessage  *domain.Message
	UnreadCount  int64
	// Blocked is true when either participant blocked the other; sends in
	// the conversation are refused.
	Blocked bool
}

// ConversationService provides inbox listing, conversation lookup and
// read receipts.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the conversation repository used by this service.
	Repo ConversationRepo
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewConversationService constructs a ConversationService backed by GORM.
func NewConversationService(db *gorm.DB, r ConversationRepo) *ConversationService {
	if r == nil {
		r = GormConversationRepo{}
	}
	return &ConversationService{DB: db, Repo: r}
}

func (s *ConversationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Start opens (or returns the existing) conversation between userID and
// partnerID. Starting a conversation with a blocked user is refused.
func (s *ConversationService) Start(ctx context.Context, userID, partnerID string) (*domain.Conversation, error) {
	ctx, span := observability.Tracer("services/ConversationService").Start(ctx, "Start",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.String("partner.id", partnerID)),
	)
	defer span.End()

	partnerID = strings.TrimSpace(partnerID)
	if partnerID == "" {
		return nil, ErrPartnerNotFound
	}
	if partnerID == userID {
		return nil, ErrSelfAction
	}
	profiles, err := s.Repo.Partners(ctx, s.DB, []string{partnerID})
	if err != nil {
		return nil, err
	}
	if _, ok := profiles[partnerID]; !ok {
		return nil, ErrPartnerNotFound
	}
	blocked, err := s.Repo.IsBlocked(ctx, s.DB, userID, partnerID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrBlocked
	}
	return s.Repo.GetOrCreate(ctx, s.DB, userID, partnerID)
}

// Get returns a conversation the user participates in.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*domain.Conversation, error) {
	c, err := s.Repo.GetForUser(ctx, s.DB, conversationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns the user's inbox, most recently active first.
func (s *ConversationService) List(ctx context.Context, userID string) ([]ConversationSummary, error) {
	ctx, span := observability.Tracer("services/ConversationService").Start(ctx, "List",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	convs, err := s.Repo.List(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return []ConversationSummary{}, nil
	}

	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.PartnerOf(userID))
	}
	profiles, err := s.Repo.Partners(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		sum := ConversationSummary{Conversation: c, PartnerID: c.PartnerOf(userID)}
		if p, ok := profiles[sum.PartnerID]; ok {
			p := p
			sum.Partner = &p
		}
		last, err := s.Repo.LastMessage(ctx, s.DB, c.ID)
		switch {
		case err == nil:
			sum.LastMessage = last
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
		if sum.UnreadCount, err = s.Repo.CountUnread(ctx, s.DB, c.ID, userID); err != nil {
			return nil, err
		}
		if sum.Blocked, err = s.Repo.IsBlocked(ctx, s.DB, userID, sum.PartnerID); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	span.SetAttributes(attribute.Int("conversations", len(out)))
	return out, nil
}

// MarkRead marks every message addressed to userID in the conversation as
// read and returns how many changed. Repeated calls are harmless.
func (s *ConversationService) MarkRead(ctx context.Context, userID, conversationID string) (int64, error) {
	ctx, span := observability.Tracer("services/ConversationService").Start(ctx, "MarkRead",
		trace.WithAttributes(attribute.String("conversation.id", conversationID), attribute.String("user.id", userID)),
	)
	defer span.End()

	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	return s.Repo.MarkRead(ctx, s.DB, conversationID, userID, s.now())
}
