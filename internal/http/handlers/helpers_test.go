package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/taalmeet/internal/domain"
	"github.com/tbourn/taalmeet/internal/http/middleware"
	"github.com/tbourn/taalmeet/internal/services"
)

// ---------- stub services ----------

type stubConvSvc struct {
	start    func(ctx context.Context, userID, partnerID string) (*domain.Conversation, error)
	get      func(ctx context.Context, userID, id string) (*domain.Conversation, error)
	list     func(ctx context.Context, userID string) ([]services.ConversationSummary, error)
	markRead func(ctx context.Context, userID, id string) (int64, error)
}

func (s stubConvSvc) Start(ctx context.Context, u, p string) (*domain.Conversation, error) {
	return s.start(ctx, u, p)
}

func (s stubConvSvc) Get(ctx context.Context, u, id string) (*domain.Conversation, error) {
	if s.get == nil {
		return &domain.Conversation{ID: id}, nil
	}
	return s.get(ctx, u, id)
}

func (s stubConvSvc) List(ctx context.Context, u string) ([]services.ConversationSummary, error) {
	return s.list(ctx, u)
}

func (s stubConvSvc) MarkRead(ctx context.Context, u, id string) (int64, error) {
	return s.markRead(ctx, u, id)
}

type stubMsgSvc struct {
	send   func(ctx context.Context, userID, convID, content, key string) (*services.SendResult, error)
	page   func(ctx context.Context, userID, convID string, page, pageSize int) ([]domain.Message, int64, error)
	latest func(ctx context.Context, userID, convID string, limit int) ([]domain.Message, error)
}

func (s stubMsgSvc) Send(ctx context.Context, u, c, content, key string) (*services.SendResult, error) {
	return s.send(ctx, u, c, content, key)
}

func (s stubMsgSvc) ListPage(ctx context.Context, u, c string, p, ps int) ([]domain.Message, int64, error) {
	return s.page(ctx, u, c, p, ps)
}

func (s stubMsgSvc) ListLatest(ctx context.Context, u, c string, n int) ([]domain.Message, error) {
	return s.latest(ctx, u, c, n)
}

type stubBlockSvc struct {
	block   func(ctx context.Context, userID, partnerID string) error
	unblock func(ctx context.Context, userID, partnerID string) error
}

func (s stubBlockSvc) Block(ctx context.Context, u, p string) error   { return s.block(ctx, u, p) }
func (s stubBlockSvc) Unblock(ctx context.Context, u, p string) error { return s.unblock(ctx, u, p) }

type stubDiscSvc struct {
	find func(ctx context.Context, userID string, loc *services.Location, limit int) ([]services.PartnerMatch, error)
}

func (s stubDiscSvc) Find(ctx context.Context, u string, loc *services.Location, limit int) ([]services.PartnerMatch, error) {
	return s.find(ctx, u, loc, limit)
}

// ---------- router plumbing ----------

const testConvID = "141add05-4415-4938-b5a1-17e0d3171aff"

func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Identity())
	r.GET("/conversations", h.ListConversations)
	r.POST("/conversations", h.StartConversation)
	r.POST("/conversations/:id/read", h.MarkConversationRead)
	r.GET("/conversations/:id/messages", h.ListMessages)
	r.POST("/conversations/:id/messages", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil), h.PostMessage)
	r.GET("/partners", h.ListPartners)
	r.POST("/partners/:id/block", h.BlockPartner)
	r.DELETE("/partners/:id/block", h.UnblockPartner)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "anna")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %T: %v (body=%s)", out, err, w.Body.String())
	}
	return out
}

func msg(id, sender, content string, at time.Time) domain.Message {
	return domain.Message{ID: id, ConversationID: testConvID, SenderID: sender, Content: content, CreatedAt: at}
}
