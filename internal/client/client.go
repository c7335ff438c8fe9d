// Package client is the HTTP client of the TaalMeet backend used by the
// terminal chat and discovery screens. It implements chatview.Backend and
// the discovery calls behind the card stack.
//
// Identity is sent as X-User-ID. Sends carry the optimistic message's
// temporary id as Idempotency-Key, so a retried attempt never stores the
// message twice. Every non-2xx answer becomes an *APIError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbourn/taalmeet/internal/cardstack"
	"github.com/tbourn/taalmeet/internal/chatview"
	"github.com/tbourn/taalmeet/internal/config"
	"github.com/tbourn/taalmeet/internal/domain"
)

const (
	headerUserID         = "X-User-ID"
	headerIdempotencyKey = "Idempotency-Key"

	// latestWindow is how many recent messages a chat screen loads.
	latestWindow = 200
)

// APIError is a non-2xx response.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to one backend as one user.
type Client struct {
	BaseURL string
	UserID  string
	HTTP    *http.Client
	Log     zerolog.Logger
}

// New builds a client from the terminal client configuration.
func New(cfg *config.ClientConfig) *Client {
	return &Client{
		BaseURL: cfg.BaseURL,
		UserID:  cfg.UserID,
		HTTP:    &http.Client{Timeout: cfg.RequestTimeout, Transport: NewTransport(nil)},
		Log:     zerolog.Nop(),
	}
}

// NewTransport wraps base (http.DefaultTransport when nil) so every request
// runs in an OpenTelemetry client span and carries the caller's trace
// context.
func NewTransport(base http.RoundTripper, opts ...otelhttp.Option) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	opts = append([]otelhttp.Option{otelhttp.WithSpanNameFormatter(spanName)}, opts...)
	return otelhttp.NewTransport(base, opts...)
}

func spanName(_ string, r *http.Request) string {
	return "taalmeet " + r.Method + " " + r.URL.Path
}

// defaultHTTP serves clients built without New.
var defaultHTTP = &http.Client{Transport: NewTransport(nil)}

var _ chatview.Backend = (*Client)(nil)

// ---------- wire shapes ----------

type messageEnvelope struct {
	Message *domain.Message `json:"message"`
}

type messagesEnvelope struct {
	Messages []domain.Message `json:"messages"`
}

type partnerWire struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	AvatarURL  string   `json:"avatar_url"`
	Languages  []string `json:"languages"`
	Interests  string   `json:"interests"`
	DistanceKM *float64 `json:"distance_km"`
	MatchScore float64  `json:"match_score"`
	Online     bool     `json:"online"`
	Available  bool     `json:"available"`
}

type conversationsEnvelope struct {
	Conversations []struct {
		ID          string          `json:"id"`
		PartnerID   string          `json:"partner_id"`
		Partner     *partnerWire    `json:"partner"`
		LastMessage *domain.Message `json:"last_message"`
		UnreadCount int64           `json:"unread_count"`
		Blocked     bool            `json:"blocked"`
	} `json:"conversations"`
}

type partnersEnvelope struct {
	Partners []partnerWire `json:"partners"`
}

type errorEnvelope struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// ---------- chatview.Backend ----------

// FetchMessages loads the most recent messages of a conversation.
func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var out messagesEnvelope
	q := url.Values{"latest": {strconv.Itoa(latestWindow)}}
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/messages", q, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendMessage posts req.Text with req.TempID as idempotency key.
func (c *Client) SendMessage(ctx context.Context, req chatview.SendRequest) (*domain.Message, error) {
	var out messageEnvelope
	hdr := http.Header{}
	if req.TempID != "" {
		hdr.Set(headerIdempotencyKey, req.TempID)
	}
	body := map[string]string{"content": req.Text}
	if err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(req.ConversationID)+"/messages", nil, hdr, body, &out); err != nil {
		return nil, err
	}
	if out.Message == nil {
		return nil, fmt.Errorf("send message: empty response")
	}
	return out.Message, nil
}

// MarkConversationRead marks incoming messages as read.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/read", nil, nil, nil, nil)
}

// FetchConversations lists the user's conversations.
func (c *Client) FetchConversations(ctx context.Context) ([]chatview.ConversationSummary, error) {
	var out conversationsEnvelope
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, nil, nil, &out); err != nil {
		return nil, err
	}
	list := make([]chatview.ConversationSummary, 0, len(out.Conversations))
	for _, cv := range out.Conversations {
		s := chatview.ConversationSummary{
			ID:          cv.ID,
			PartnerID:   cv.PartnerID,
			UnreadCount: cv.UnreadCount,
			LastMessage: cv.LastMessage,
			Blocked:     cv.Blocked,
		}
		if cv.Partner != nil {
			s.PartnerName = cv.Partner.Name
		}
		list = append(list, s)
	}
	return list, nil
}

// ---------- discovery ----------

// Location is an optional position for discovery.
type Location struct {
	Lat, Lon float64
}

// FetchPartners returns partner cards, best match first. loc may be nil and
// limit <= 0 selects the server default.
func (c *Client) FetchPartners(ctx context.Context, loc *Location, limit int) ([]cardstack.PartnerCard, error) {
	q := url.Values{}
	if loc != nil {
		q.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
		q.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out partnersEnvelope
	if err := c.do(ctx, http.MethodGet, "/partners", q, nil, nil, &out); err != nil {
		return nil, err
	}
	cards := make([]cardstack.PartnerCard, 0, len(out.Partners))
	for _, p := range out.Partners {
		cards = append(cards, cardstack.PartnerCard{
			ID:         p.ID,
			Name:       p.Name,
			AvatarURL:  p.AvatarURL,
			Languages:  p.Languages,
			DistanceKM: p.DistanceKM,
			MatchScore: p.MatchScore,
			Online:     p.Online,
			Available:  p.Available,
		})
	}
	return cards, nil
}

// StartConversation opens (or returns) the conversation with partnerID.
func (c *Client) StartConversation(ctx context.Context, partnerID string) (*domain.Conversation, error) {
	var out domain.Conversation
	body := map[string]string{"partner_id": partnerID}
	if err := c.do(ctx, http.MethodPost, "/conversations", nil, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Block blocks partnerID.
func (c *Client) Block(ctx context.Context, partnerID string) error {
	return c.do(ctx, http.MethodPost, "/partners/"+url.PathEscape(partnerID)+"/block", nil, nil, nil, nil)
}

// Unblock lifts a block on partnerID.
func (c *Client) Unblock(ctx context.Context, partnerID string) error {
	return c.do(ctx, http.MethodDelete, "/partners/"+url.PathEscape(partnerID)+"/block", nil, nil, nil, nil)
}

// ---------- transport ----------

func (c *Client) do(ctx context.Context, method, path string, q url.Values, hdr http.Header, in, out any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(headerUserID, c.UserID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.Log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var env errorEnvelope
		if raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); json.Unmarshal(raw, &env) == nil {
			apiErr.Code, apiErr.Message, apiErr.RequestID = env.Code, env.Message, env.RequestID
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return defaultHTTP
}
