// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of chat messages. It normalizes and validates content,
// checks participant scoping and blocks, stores the message, and publishes a
// message.sent event.
//
// Sends are idempotent per (user, conversation, key): clients pass the
// temporary id of their optimistic message as the key, and a retried send
// returns the message stored by the first attempt without storing or
// publishing again.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include conversation/user identifiers and pagination parameters where
// applicable. Every send attempt is counted by outcome.
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/taalmeet/internal/domain"
	"github.com/tbourn/taalmeet/internal/events"
	"github.com/tbourn/taalmeet/internal/observability"
	"github.com/tbourn/taalmeet/internal/repo"
)

// errReplay aborts the send transaction when a concurrent attempt with the
// same idempotency key committed first.
var errReplay = errors.New("idempotent replay")

// MessageService coordinates message persistence and event publication.
type MessageService struct {
	DB        *gorm.DB
	Publisher events.Publisher

	// Optional guards
	MaxMessageRunes int
	IdempotencyTTL  time.Duration
}

// SendResult is the outcome of a successful Send.
type SendResult struct {
	Message *domain.Message
	// Replayed is true when the message was stored by an earlier attempt
	// with the same idempotency key.
	Replayed bool
}

// Send validates content, verifies the conversation and block state, and
// stores a new message from userID. idemKey may be empty.
func (s *MessageService) Send(ctx context.Context, userID, conversationID, content, idemKey string) (*SendResult, error) {
	ctx, span := observability.Tracer("services/MessageService").Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("user.id", userID),
			attribute.Bool("idempotent", idemKey != ""),
		),
	)
	defer span.End()

	res, err := s.send(ctx, userID, conversationID, content, idemKey)
	switch {
	case err == nil && res.Replayed:
		observability.RecordMessageSent(observability.OutcomeReplayed)
	case err == nil:
		observability.RecordMessageSent(observability.OutcomeStored)
	case isRejection(err):
		observability.RecordMessageSent(observability.OutcomeRejected)
	default:
		observability.RecordMessageSent(observability.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
	}
	return res, err
}

func (s *MessageService) send(ctx context.Context, userID, conversationID, content, idemKey string) (*SendResult, error) {
	content = NormalizeContent(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(content) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}

	conv, err := repo.GetConversationForUser(ctx, s.DB, conversationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	// A retry of an attempt that was already stored is answered from the
	// record even if a block was created in between.
	if idemKey != "" {
		if prev, err := s.replay(ctx, userID, conversationID, idemKey); err != nil || prev != nil {
			return prev, err
		}
	}

	recipient := conv.PartnerOf(userID)
	blocked, err := repo.IsBlocked(ctx, s.DB, userID, recipient)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrBlocked
	}

	var msg *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(tx, conversationID, userID, content)
		if err != nil {
			return err
		}
		if err := repo.TouchConversation(ctx, tx, conversationID, m.CreatedAt); err != nil {
			return err
		}
		if idemKey != "" {
			if _, err := repo.CreateIdempotency(ctx, tx, userID, conversationID, idemKey, m.ID, http.StatusCreated, s.ttl()); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return errReplay
				}
				return err
			}
		}
		msg = m
		return nil
	})
	if errors.Is(err, errReplay) {
		prev, rerr := s.replay(ctx, userID, conversationID, idemKey)
		if rerr != nil {
			return nil, rerr
		}
		if prev != nil {
			return prev, nil
		}
		// The competing record expired before it could be read back.
		return nil, ErrIdempotencyConflict
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.MessageSent{
		Type:           events.TypeMessageSent,
		MessageID:      msg.ID,
		ConversationID: conversationID,
		SenderID:       userID,
		RecipientID:    recipient,
		CreatedAt:      msg.CreatedAt,
	})
	return &SendResult{Message: msg}, nil
}

// replay returns the stored result for idemKey, or (nil, nil) when there is none.
func (s *MessageService) replay(ctx context.Context, userID, conversationID, idemKey string) (*SendResult, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, conversationID, idemKey, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m, err := repo.GetMessage(s.DB.WithContext(ctx), rec.MessageID)
	if err != nil {
		return nil, err
	}
	return &SendResult{Message: m, Replayed: true}, nil
}

// publish hands the event to the publisher. Delivery failures are logged and
// counted; the message is already stored and the send succeeds regardless.
func (s *MessageService) publish(ctx context.Context, e events.MessageSent) {
	if s.Publisher == nil {
		return
	}
	err := s.Publisher.PublishMessageSent(ctx, e)
	observability.RecordEventPublished(events.TypeMessageSent, err)
	if err != nil {
		log.Warn().Err(err).
			Str("message_id", e.MessageID).
			Str("conversation_id", e.ConversationID).
			Msg("publish message.sent failed")
	}
}

func (s *MessageService) ttl() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return 24 * time.Hour
}

// ListPage returns paginated messages for a conversation the user belongs to.
func (s *MessageService) ListPage(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := observability.Tracer("services/MessageService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	if err := s.ensureParticipant(ctx, userID, conversationID); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), conversationID, offset, pageSize)
	return items, total, err
}

// ListLatest returns the newest limit messages in display order. This is the
// query a chat screen polls.
func (s *MessageService) ListLatest(ctx context.Context, userID, conversationID string, limit int) ([]domain.Message, error) {
	ctx, span := observability.Tracer("services/MessageService").Start(ctx, "ListLatest",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	if err := s.ensureParticipant(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return repo.ListLatestMessages(ctx, s.DB, conversationID, limit)
}

func (s *MessageService) ensureParticipant(ctx context.Context, userID, conversationID string) error {
	if _, err := repo.GetConversationForUser(ctx, s.DB, conversationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	return nil
}

// NormalizeContent trims surrounding whitespace and composes the text to
// Unicode NFC so visually identical messages compare and count equally.
func NormalizeContent(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func isRejection(err error) bool {
	return errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrTooLong) ||
		errors.Is(err, ErrConversationNotFound) ||
		errors.Is(err, ErrBlocked)
}
