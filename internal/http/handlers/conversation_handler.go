// Conversation HTTP handlers.
//
// This file wires the handler set and exposes REST endpoints for the inbox:
//   - GET  /conversations           (list with partner, last message, unread count)
//   - POST /conversations           (open or reuse the conversation with a partner)
//   - POST /conversations/{id}/read (mark the partner's messages as read)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/taalmeet/internal/domain"
	"github.com/tbourn/taalmeet/internal/http/middleware"
	"github.com/tbourn/taalmeet/internal/services"
)

//
// Service contracts (context-aware)
//

// ConversationService defines inbox operations consumed by HTTP handlers.
type ConversationService interface {
	Start(ctx context.Context, userID, partnerID string) (*domain.Conversation, error)
	Get(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)
	List(ctx context.Context, userID string) ([]services.ConversationSummary, error)
	MarkRead(ctx context.Context, userID, conversationID string) (int64, error)
}

// MessageService defines message send and retrieval operations.
type MessageService interface {
	Send(ctx context.Context, userID, conversationID, content, idemKey string) (*services.SendResult, error)
	ListPage(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
	ListLatest(ctx context.Context, userID, conversationID string, limit int) ([]domain.Message, error)
}

// BlockService defines block management operations.
type BlockService interface {
	Block(ctx context.Context, userID, partnerID string) error
	Unblock(ctx context.Context, userID, partnerID string) error
}

// DiscoveryService ranks partner candidates.
type DiscoveryService interface {
	Find(ctx context.Context, userID string, loc *services.Location, limit int) ([]services.PartnerMatch, error)
}

// MessageStatsFunc returns the message count and newest change time of a
// conversation. It backs the weak ETag on message listings; nil disables it.
type MessageStatsFunc func(ctx context.Context, conversationID string) (int64, *time.Time, error)

//
// Handler wiring
//

// Deps bundles the services a Handlers instance needs.
type Deps struct {
	Conversations ConversationService
	Messages      MessageService
	Blocks        BlockService
	Discovery     DiscoveryService
	MessageStats  MessageStatsFunc
}

// Handlers groups HTTP endpoints for conversations, messages and partners.
type Handlers struct {
	convSvc  ConversationService
	msgSvc   MessageService
	blockSvc BlockService
	discSvc  DiscoveryService
	stats    MessageStatsFunc
}

// New constructs a Handlers instance bound to the given services.
func New(d Deps) *Handlers {
	return &Handlers{
		convSvc:  d.Conversations,
		msgSvc:   d.Messages,
		blockSvc: d.Blocks,
		discSvc:  d.Discovery,
		stats:    d.MessageStats,
	}
}

// userID returns the caller id resolved by middleware.Identity.
func userID(c *gin.Context) string {
	return middleware.UserID(c)
}

//
// DTOs
//

// StartConversationRequest is the JSON payload for opening a conversation.
type StartConversationRequest struct {
	PartnerID string `json:"partner_id" binding:"required" example:"bram"`
}

// ConversationResponse is one inbox row as seen by the caller.
type ConversationResponse struct {
	ID          string           `json:"id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	PartnerID   string           `json:"partner_id" example:"bram"`
	Partner     *PartnerResponse `json:"partner,omitempty"`
	LastMessage *domain.Message  `json:"last_message,omitempty"`
	UnreadCount int64            `json:"unread_count" example:"2"`
	Blocked     bool             `json:"blocked" example:"false"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// ListConversationsResponse wraps the caller's inbox, most recent first.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// MarkReadResponse reports how many messages were marked as read.
type MarkReadResponse struct {
	Updated int64 `json:"updated" example:"3"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func toConversationResponse(s services.ConversationSummary) ConversationResponse {
	out := ConversationResponse{
		ID:          s.Conversation.ID,
		PartnerID:   s.PartnerID,
		LastMessage: s.LastMessage,
		UnreadCount: s.UnreadCount,
		Blocked:     s.Blocked,
		UpdatedAt:   s.Conversation.UpdatedAt,
	}
	if s.Partner != nil {
		p := toPartnerResponse(services.PartnerMatch{Partner: *s.Partner, Languages: s.Partner.LanguageList()})
		out.Partner = &p
	}
	return out
}

//
// Handlers
//

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations
// @Description Returns the caller's conversations, most recently active first, each with partner profile, last message and unread count.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller user id"  example(anna)
//
// @Success     200  {object} handlers.ListConversationsResponse
// @Failure     401  {object} handlers.ErrorResponse "Missing identity"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	items, err := h.convSvc.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	resp := ListConversationsResponse{Conversations: make([]ConversationResponse, 0, len(items))}
	for _, s := range items {
		resp.Conversations = append(resp.Conversations, toConversationResponse(s))
	}
	ok(c, http.StatusOK, resp)
}

// StartConversation godoc
// @ID          startConversation
// @Summary     Open a conversation
// @Description Returns the conversation between the caller and partner_id, creating it on first contact.
// @Tags        Conversations
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller user id"  example(anna)
// @Param       body       body    handlers.StartConversationRequest  true  "Partner to talk to"
//
// @Success     200  {object}  domain.Conversation
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Blocked"
// @Failure     404  {object}  handlers.ErrorResponse  "Partner not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations [post]
func (h *Handlers) StartConversation(c *gin.Context) {
	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PartnerID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "partner_id required")
		return
	}
	conv, err := h.convSvc.Start(c.Request.Context(), userID(c), strings.TrimSpace(req.PartnerID))
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, conv)
}

// MarkConversationRead godoc
// @ID          markConversationRead
// @Summary     Mark conversation as read
// @Description Marks every unread message the partner sent in this conversation as read by the caller.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Caller user id"     example(anna)
// @Param       id         path    string  true  "Conversation ID"    format(uuid)
//
// @Success     200  {object} handlers.MarkReadResponse
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/read [post]
func (h *Handlers) MarkConversationRead(c *gin.Context) {
	convID, okID := conversationID(c)
	if !okID {
		return
	}
	n, err := h.convSvc.MarkRead(c.Request.Context(), userID(c), convID)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Updated: n})
}
