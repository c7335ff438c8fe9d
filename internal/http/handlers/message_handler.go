// Message HTTP handlers.
//
// This file exposes REST endpoints for conversation messages:
//   - POST /conversations/{id}/messages   (send a message)
//   - GET  /conversations/{id}/messages   (list; paginated or newest N)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (line endings, blank-line runs, length)
//   - delegate to MessageService
//   - implement conditional responses (ETag)
//
// Idempotency:
// Clients send the temporary id of their optimistic message as the
// Idempotency-Key. When a previous attempt with the same key already stored
// the message, the stored message is returned with 200 and
// `Idempotency-Replayed: true` instead of 201.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/taalmeet/internal/domain"
	"github.com/tbourn/taalmeet/internal/http/middleware"
	"github.com/tbourn/taalmeet/internal/services"
	"github.com/tbourn/taalmeet/internal/utils"
)

// HeaderIdempotencyReplayed marks responses served from a stored result.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a message.
type PostMessageRequest struct {
	// Content is the message text. It must be non-empty after trimming.
	Content string `json:"content" binding:"required,min=1" example:"Hoi! Zullen we morgen oefenen?"`
}

// PostMessageResponse is the JSON envelope for a stored message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains messages in display order. Pagination is
// omitted for "latest" queries.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination *Pagination      `json:"pagination,omitempty"`
}

//
// Helpers
//

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxLatest       = 200
	// fallbackMaxRunes applies when the service does not expose its limit.
	fallbackMaxRunes = 2000
)

// clampMsgPagination parses page/page_size with defaults and caps.
func clampMsgPagination(c *gin.Context) (page, pageSize int) {
	page = utils.AtoiDefault(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent converts CRLF/CR to LF, collapses runs of blank lines and
// trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// maxMessageRunes inspects the concrete MessageService for its configured
// limit.
func maxMessageRunes(msgSvc MessageService) int {
	if ms, ok := msgSvc.(*services.MessageService); ok && ms.MaxMessageRunes > 0 {
		return ms.MaxMessageRunes
	}
	return fallbackMaxRunes
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Appends a message from the caller to the conversation.
// @Description Supports idempotency via the Idempotency-Key header (same key → same stored message).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "Caller user id"  example(anna)
// @Param       Idempotency-Key  header  string  false "Temporary id of the optimistic message"  example(temp-lx3k9a2b-8f3c1d)
// @Param       id               path    string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.PostMessageResponse  "Stored message"
// @Success     200  {object}  handlers.PostMessageResponse  "Replay of an earlier attempt"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse        "Blocked"
// @Failure     404  {object}  handlers.ErrorResponse        "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /conversations/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	convID, okID := conversationID(c)
	if !okID {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	// Fail fast at the edge; the service re-checks after normalization.
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	maxRunes := maxMessageRunes(h.msgSvc)
	if utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)
	res, err := h.msgSvc.Send(c.Request.Context(), userID(c), convID, content, idemKey)
	if err != nil {
		failService(c, err, ErrCodeSendFailed)
		return
	}

	if res.Replayed {
		c.Header(HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusOK, PostMessageResponse{Message: res.Message})
		return
	}
	ok(c, http.StatusCreated, PostMessageResponse{Message: res.Message})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a conversation
// @Description Returns messages ordered by created_at then id. With `latest=N` returns the newest N messages (what a chat screen polls);
// @Description otherwise returns the requested page. Supports a weak ETag via If-None-Match.
// @Tags        Messages
// @Produce     json
//
// @Param       X-User-ID      header string  true  "Caller user id"  example(anna)
// @Param       If-None-Match  header string  false "Return 304 if ETag matches"
// @Param       id             path   string  true  "Conversation ID (UUID)"  format(uuid)
// @Param       latest         query  int     false "Newest N messages"  minimum(1) maximum(200)
// @Param       page           query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	convID, okID := conversationID(c)
	if !okID {
		return
	}
	uid := userID(c)

	// Authorize before revealing anything about the conversation.
	if _, err := h.convSvc.Get(ctx, uid, convID); err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}

	latest := 0
	if raw := c.Query("latest"); raw != "" {
		latest = utils.AtoiDefault(raw, -1)
		if latest < 1 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "latest must be a positive integer")
			return
		}
		if latest > maxLatest {
			latest = maxLatest
		}
	}
	page, pageSize := clampMsgPagination(c)

	// ETag pre-check (best effort).
	if h.stats != nil {
		if count, maxTS, err := h.stats(ctx, convID); err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			view := fmt.Sprintf("p%d.%d", page, pageSize)
			if latest > 0 {
				view = fmt.Sprintf("l%d", latest)
			}
			etag := fmt.Sprintf(`W/"messages:%s:%s:%d:%d"`, convID, view, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	if latest > 0 {
		items, err := h.msgSvc.ListLatest(ctx, uid, convID, latest)
		if err != nil {
			failService(c, err, ErrCodeListFailed)
			return
		}
		ok(c, http.StatusOK, ListMessagesResponse{Messages: nonNil(items)})
		return
	}

	items, total, err := h.msgSvc.ListPage(ctx, uid, convID, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: nonNil(items),
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

func nonNil(ms []domain.Message) []domain.Message {
	if ms == nil {
		return []domain.Message{}
	}
	return ms
}
