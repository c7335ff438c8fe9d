package chatview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/taalmeet/internal/domain"
)

// markReadTimeout bounds the fire-and-forget mark-as-read call.
const markReadTimeout = 10 * time.Second

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("chatview: session closed")

// SendError describes a failed send. The text has already been restored into
// the input when a SendError becomes visible.
type SendError struct {
	TempID string
	Text   string
	Err    error
}

func (e *SendError) Error() string { return fmt.Sprintf("send %s: %v", e.TempID, e.Err) }

func (e *SendError) Unwrap() error { return e.Err }

// UpdateReason names the state change behind an Update.
type UpdateReason string

const (
	UpdateConfirmed  UpdateReason = "confirmed"
	UpdateSending    UpdateReason = "sending"
	UpdateSent       UpdateReason = "sent"
	UpdateSendFailed UpdateReason = "send_failed"
	UpdatePartner    UpdateReason = "partner"
	UpdateSwitched   UpdateReason = "switched"
)

// Update is delivered to the Listener after every state change.
type Update struct {
	Reason UpdateReason
	Scroll ScrollAction
}

// Listener observes a Session. It is called outside the Session lock, so it
// may call View.
type Listener func(Update)

// View is a consistent snapshot of a Session.
type View struct {
	ConversationID string
	PartnerName    string
	Messages       []domain.Message
	Input          string
	Focused        bool
	Blocked        bool
	Pending        int
	Scroll         ScrollState
	LastSendError  error
}

// SendTicket tracks one in-flight send.
type SendTicket struct {
	TempID string
	done   chan struct{}
	err    error
}

// Done is closed once the send settled (or was dropped by Close/Switch).
func (t *SendTicket) Done() <-chan struct{} { return t.done }

// Err returns the backend error after Done is closed; nil on success.
func (t *SendTicket) Err() error {
	<-t.done
	return t.err
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Session) { s.log = l } }

// WithListener registers the update listener.
func WithListener(fn Listener) Option { return func(s *Session) { s.listener = fn } }

// WithNearBottomThreshold overrides the near-bottom distance.
func WithNearBottomThreshold(v float64) Option {
	return func(s *Session) { s.scroll = NewScrollState(v) }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// Session is the state of one open chat screen.
type Session struct {
	backend Backend
	selfID  string

	log      zerolog.Logger
	listener Listener
	now      func() time.Time

	// ctx scopes background calls (mark-as-read); cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	// refresh carries "a send succeeded" hints to the Poller.
	refresh chan struct{}

	mu          sync.Mutex
	convID      string
	gen         uint64
	closed      bool
	confirmed   []domain.Message
	pending     *PendingSet
	merged      []domain.Message
	input       string
	focused     bool
	blocked     bool
	partnerName string
	scroll      ScrollState
	lastSendErr error
	readArmed   bool
	inflight    sync.WaitGroup

	// sendSeq numbers sends in the order the user made them. restored holds
	// the failed texts currently at the head of the input, in that order.
	sendSeq  uint64
	restored []restoredText
}

type restoredText struct {
	seq  uint64
	text string
}

// NewSession opens conversationID for selfID.
func NewSession(backend Backend, conversationID, selfID string, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		backend:   backend,
		selfID:    selfID,
		log:       zerolog.Nop(),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		refresh:   make(chan struct{}, 1),
		convID:    conversationID,
		pending:   NewPendingSet(),
		scroll:    NewScrollState(0),
		readArmed: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ConversationID returns the open conversation.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convID
}

// Refreshes yields a value after each successful send so a poller can fetch
// the confirmed copy without waiting for its next tick.
func (s *Session) Refreshes() <-chan struct{} { return s.refresh }

// SetInput replaces the composer text.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.restored = nil
	s.mu.Unlock()
}

// Input returns the composer text.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetFocused records whether the composer has focus.
func (s *Session) SetFocused(v bool) {
	s.mu.Lock()
	s.focused = v
	s.mu.Unlock()
}

// SetBlocked records whether the partner is blocked. Sends are refused while
// blocked.
func (s *Session) SetBlocked(v bool) {
	s.mu.Lock()
	s.blocked = v
	s.mu.Unlock()
}

// OnScroll feeds viewport geometry into the scroll policy.
func (s *Session) OnScroll(offset, viewport, content float64) {
	s.mu.Lock()
	s.scroll.OnScroll(offset, viewport, content)
	s.mu.Unlock()
}

// SetConfirmed replaces the confirmed list with a fresh server result,
// recomputes the merged view and evaluates the scroll and mark-as-read rules.
func (s *Session) SetConfirmed(list []domain.Message) ScrollAction {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ScrollNone
	}
	s.confirmed = append([]domain.Message(nil), list...)
	s.mergeLocked()
	// Only a load with confirmed messages counts as the initial load.
	action := s.scroll.OnLocalChange(s.merged)
	if len(s.confirmed) > 0 {
		action = s.scroll.OnMessages(s.merged)
	}
	markRead := s.takeReadLocked()
	conv := s.convID
	s.mu.Unlock()

	if markRead {
		s.markRead(conv)
	}
	s.notify(Update{Reason: UpdateConfirmed, Scroll: action})
	return action
}

// Reopen re-arms mark-as-read, as when the user navigates back to the chat.
// If messages are already loaded the conversation is marked read right away.
func (s *Session) Reopen() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.readArmed = true
	markRead := s.takeReadLocked()
	conv := s.convID
	s.mu.Unlock()

	if markRead {
		s.markRead(conv)
	}
}

// Switch moves the session to another conversation. Scroll state, the
// confirmed list and pending messages are reset; in-flight sends of the old
// conversation no longer affect the session.
func (s *Session) Switch(conversationID string) {
	s.mu.Lock()
	if s.closed || conversationID == s.convID {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.convID = conversationID
	s.confirmed = nil
	s.merged = nil
	s.pending.Clear()
	s.scroll.Reset()
	s.partnerName = ""
	s.blocked = false
	s.restored = nil
	s.lastSendErr = nil
	s.readArmed = true
	s.mu.Unlock()

	s.notify(Update{Reason: UpdateSwitched})
}

// ResolvePartner looks the open conversation up in the conversation list and
// records the partner's display name and block state. Sends are refused
// while the list reports a block.
func (s *Session) ResolvePartner(ctx context.Context) (ConversationSummary, error) {
	conv := s.ConversationID()
	list, err := s.backend.FetchConversations(ctx)
	if err != nil {
		return ConversationSummary{}, err
	}
	for _, c := range list {
		if c.ID != conv {
			continue
		}
		name := c.PartnerName
		if name == "" {
			name = c.PartnerID
		}
		s.mu.Lock()
		if s.convID == conv {
			s.partnerName = name
			s.blocked = c.Blocked
		}
		s.mu.Unlock()
		s.notify(Update{Reason: UpdatePartner})
		return c, nil
	}
	return ConversationSummary{}, fmt.Errorf("conversation %s not found", conv)
}

// Send posts the composer text. It returns false without side effects when
// the trimmed text is empty, no conversation is open, the partner is blocked
// or the session is closed.
//
// Before returning, Send appends an optimistic message, clears the input and
// pins the view to the bottom. The backend call runs on its own goroutine:
// on success the optimistic message is dropped (the confirmed copy arrives
// with the next refresh); on failure it is dropped and its text restored
// into the input.
func (s *Session) Send(ctx context.Context) (*SendTicket, bool) {
	s.mu.Lock()
	original := s.input
	text := strings.TrimSpace(original)
	if text == "" || s.convID == "" || s.blocked || s.closed {
		s.mu.Unlock()
		return nil, false
	}

	now := s.now().UTC()
	msg := domain.Message{
		ID:             NewTempID(now),
		ConversationID: s.convID,
		SenderID:       s.selfID,
		Content:        text,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.pending.Add(msg)
	s.input = ""
	s.restored = nil
	s.sendSeq++
	seq := s.sendSeq
	s.scroll.ForceNearBottom()
	s.mergeLocked()
	action := s.scroll.OnLocalChange(s.merged)
	if action == ScrollNone {
		action = ScrollAnimate
	}

	t := &SendTicket{TempID: msg.ID, done: make(chan struct{})}
	req := SendRequest{ConversationID: s.convID, Text: text, TempID: msg.ID}
	gen := s.gen
	s.inflight.Add(1)
	s.mu.Unlock()

	s.notify(Update{Reason: UpdateSending, Scroll: action})

	go func() {
		defer s.inflight.Done()
		defer close(t.done)
		_, err := s.backend.SendMessage(ctx, req)
		t.err = err
		s.settle(gen, seq, msg.ID, original, err)
	}()
	return t, true
}

// settle applies the outcome of one send. The optimistic message leaves the
// list without a scroll request; the confirmed copy brings its own.
func (s *Session) settle(gen, seq uint64, tempID, original string, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		s.log.Debug().Str("temp_id", tempID).Msg("dropping late send completion")
		return
	}
	s.pending.Remove(tempID)

	reason := UpdateSent
	if err != nil {
		reason = UpdateSendFailed
		s.restoreLocked(seq, original)
		s.focused = true
		s.lastSendErr = &SendError{TempID: tempID, Text: original, Err: err}
	} else {
		s.lastSendErr = nil
	}
	s.mergeLocked()
	s.scroll.Track(s.merged)
	s.mu.Unlock()

	if err != nil {
		s.log.Warn().Err(err).Str("temp_id", tempID).Msg("send failed, text restored")
	} else {
		select {
		case s.refresh <- struct{}{}:
		default:
		}
	}
	s.notify(Update{Reason: reason, Scroll: ScrollNone})
}

// restoreLocked puts a failed text back in front of the input. Failed texts
// keep the order they were sent in, whatever order they fail in, and anything
// typed since stays after them.
func (s *Session) restoreLocked(seq uint64, text string) {
	rest := s.input
	if prefix := joinRestored(s.restored); prefix != "" && strings.HasPrefix(rest, prefix) {
		rest = strings.TrimPrefix(rest[len(prefix):], " ")
	} else {
		s.restored = nil
	}

	i := sort.Search(len(s.restored), func(i int) bool { return s.restored[i].seq > seq })
	s.restored = append(s.restored, restoredText{})
	copy(s.restored[i+1:], s.restored[i:])
	s.restored[i] = restoredText{seq: seq, text: text}

	s.input = joinRestored(s.restored)
	if rest != "" {
		s.input += " " + rest
	}
}

func joinRestored(list []restoredText) string {
	parts := make([]string, len(list))
	for i, r := range list {
		parts[i] = r.text
	}
	return strings.Join(parts, " ")
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ConversationID: s.convID,
		PartnerName:    s.partnerName,
		Messages:       append([]domain.Message(nil), s.merged...),
		Input:          s.input,
		Focused:        s.focused,
		Blocked:        s.blocked,
		Pending:        s.pending.Len(),
		Scroll:         s.scroll,
		LastSendError:  s.lastSendErr,
	}
}

// LastSendError returns the most recent send failure, cleared by a later
// successful send.
func (s *Session) LastSendError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSendErr
}

// Wait blocks until every in-flight send settled.
func (s *Session) Wait() { s.inflight.Wait() }

// Close detaches the session. Completions that arrive afterwards are
// dropped.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) mergeLocked() {
	s.merged = Merge(s.confirmed, s.pending.List())
}

// takeReadLocked consumes the mark-as-read arm when there is something to
// mark.
func (s *Session) takeReadLocked() bool {
	if !s.readArmed || len(s.confirmed) == 0 {
		return false
	}
	s.readArmed = false
	return true
}

func (s *Session) markRead(conv string) {
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, markReadTimeout)
		defer cancel()
		if err := s.backend.MarkConversationRead(ctx, conv); err != nil {
			s.log.Debug().Err(err).Str("conversation_id", conv).Msg("mark read failed")
		}
	}()
}

func (s *Session) notify(u Update) {
	if s.listener != nil {
		s.listener(u)
	}
}
