package chatview

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/taalmeet/internal/domain"
)

var base = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

func m(id string, sec int) domain.Message {
	return domain.Message{ID: id, ConversationID: "c1", SenderID: "bram", Content: id, CreatedAt: at(sec)}
}

func ids(list []domain.Message) []string {
	out := make([]string, 0, len(list))
	for _, x := range list {
		out = append(out, x.ID)
	}
	return out
}

func TestMerge_OrdersAndDropsConfirmedPending(t *testing.T) {
	confirmed := []domain.Message{m("m3", 30), m("m1", 10)}
	pending := []domain.Message{m("temp-b", 20), m("m3", 30), m("temp-a", 5)}

	got := Merge(confirmed, pending)
	assert.Equal(t, []string{"temp-a", "m1", "temp-b", "m3"}, ids(got))

	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].CreatedAt.Before(got[i-1].CreatedAt), "out of order at %d", i)
	}
	assert.Equal(t, got, Merge(confirmed, pending), "merge must be deterministic")
	assert.Equal(t, []string{"m3", "m1"}, ids(confirmed), "inputs must not be mutated")
}

func TestMerge_TiesKeepConfirmedFirst(t *testing.T) {
	got := Merge([]domain.Message{m("m2", 5)}, []domain.Message{m("temp-x", 5)})
	assert.Equal(t, []string{"m2", "temp-x"}, ids(got))
	assert.Empty(t, Merge(nil, nil))
}

func TestPendingSet(t *testing.T) {
	p := NewPendingSet()
	p.Add(m("a", 1))
	p.Add(m("b", 2))
	p.Add(m("c", 3))
	p.Add(domain.Message{ID: "b", Content: "edited"})

	require.Equal(t, 3, p.Len())
	assert.Equal(t, []string{"a", "b", "c"}, ids(p.List()))
	assert.Equal(t, "edited", p.List()[1].Content)

	assert.True(t, p.Remove("b"))
	assert.False(t, p.Remove("b"))
	assert.False(t, p.Has("b"))
	assert.Equal(t, []string{"a", "c"}, ids(p.List()))

	p.Clear()
	assert.Zero(t, p.Len())
}

func TestNewTempID(t *testing.T) {
	key := regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewTempID(base)
		require.True(t, IsTempID(id))
		require.Regexp(t, key, id)
		require.False(t, seen[id], "duplicate temp id %s", id)
		seen[id] = true
	}
	assert.False(t, IsTempID("141add05-4415-4938-b5a1-17e0d3171aff"))
}

func TestScrollState(t *testing.T) {
	s := NewScrollState(0)
	require.Equal(t, float64(DefaultNearBottomThreshold), s.Threshold)
	require.True(t, s.NearBottom)

	assert.Equal(t, ScrollNone, s.OnMessages(nil))
	assert.False(t, s.HasScrolledToBottom)

	assert.Equal(t, ScrollJump, s.OnMessages([]domain.Message{m("m1", 1)}))
	assert.True(t, s.HasScrolledToBottom)
	assert.Equal(t, ScrollNone, s.OnMessages([]domain.Message{m("m1", 1)}), "same last id")
	assert.Equal(t, ScrollAnimate, s.OnMessages([]domain.Message{m("m1", 1), m("m2", 2)}))

	// Scrolled up into history: 1000 - (300 + 400) = 300 >= 200.
	s.OnScroll(300, 400, 1000)
	assert.False(t, s.NearBottom)
	assert.Equal(t, ScrollNone, s.OnMessages([]domain.Message{m("m1", 1), m("m2", 2), m("m3", 3)}))
	assert.Equal(t, "m3", s.LastMessageID)

	s.OnScroll(450, 400, 1000)
	assert.True(t, s.NearBottom)

	s.OnScroll(0, 100, 1000)
	s.ForceNearBottom()
	assert.True(t, s.NearBottom)

	s.Reset()
	assert.Equal(t, NewScrollState(DefaultNearBottomThreshold), s)

	// Local changes animate near the bottom but leave the initial jump alone.
	assert.Equal(t, ScrollAnimate, s.OnLocalChange([]domain.Message{m("tmp-1", 1)}))
	assert.False(t, s.HasScrolledToBottom)
	assert.Equal(t, ScrollNone, s.OnLocalChange([]domain.Message{m("tmp-1", 1)}))
	s.Track(nil)
	assert.Equal(t, "", s.LastMessageID)
	s.Track([]domain.Message{m("m9", 9)})
	assert.Equal(t, "m9", s.LastMessageID)
	assert.False(t, s.HasScrolledToBottom)
	assert.Equal(t, ScrollJump, s.OnMessages([]domain.Message{m("m9", 9)}))

	assert.Equal(t, "animate", ScrollAnimate.String())
}

// ---------- session ----------

type fakeBackend struct {
	mu       sync.Mutex
	sends    []SendRequest
	sendFn   func(SendRequest) (*domain.Message, error)
	fetchFn  func(string) ([]domain.Message, error)
	reads    chan string
	readErr  error
	convs    []ConversationSummary
	convsErr error
}

func newFake() *fakeBackend { return &fakeBackend{reads: make(chan string, 16)} }

func (f *fakeBackend) FetchMessages(_ context.Context, conv string) ([]domain.Message, error) {
	return f.fetchFn(conv)
}

func (f *fakeBackend) SendMessage(_ context.Context, req SendRequest) (*domain.Message, error) {
	f.mu.Lock()
	f.sends = append(f.sends, req)
	fn := f.sendFn
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeBackend) MarkConversationRead(_ context.Context, conv string) error {
	f.reads <- conv
	return f.readErr
}

func (f *fakeBackend) FetchConversations(context.Context) ([]ConversationSummary, error) {
	return f.convs, f.convsErr
}

// gate makes SendMessage block until a result is pushed.
type gate chan error

func (g gate) send(req SendRequest) (*domain.Message, error) {
	if err := <-g; err != nil {
		return nil, err
	}
	return &domain.Message{ID: "srv-" + req.TempID, Content: req.Text}, nil
}

func fixedClock(ts time.Time) func() time.Time { return func() time.Time { return ts } }

func TestSession_SendHappyPath(t *testing.T) {
	fb := newFake()
	g := make(gate, 1)
	fb.sendFn = g.send

	var updates []Update
	var umu sync.Mutex
	s := NewSession(fb, "c1", "anna", WithClock(fixedClock(at(5))), WithListener(func(u Update) {
		umu.Lock()
		updates = append(updates, u)
		umu.Unlock()
	}))

	require.Equal(t, ScrollJump, s.SetConfirmed([]domain.Message{m("m1", 0)}))
	s.SetInput("hi")

	ticket, ok := s.Send(context.Background())
	require.True(t, ok)

	v := s.View()
	require.Equal(t, []string{"m1", ticket.TempID}, ids(v.Messages))
	assert.Equal(t, "hi", v.Messages[1].Content)
	assert.Equal(t, "anna", v.Messages[1].SenderID)
	assert.Equal(t, at(5), v.Messages[1].CreatedAt)
	assert.Equal(t, "", v.Input)
	assert.True(t, v.Scroll.NearBottom)
	assert.Equal(t, 1, v.Pending)

	g <- nil
	<-ticket.Done()
	require.NoError(t, ticket.Err())

	v = s.View()
	assert.Equal(t, []string{"m1"}, ids(v.Messages), "placeholder removed after success")
	assert.NoError(t, v.LastSendError)

	confirmed := m("m2", 5)
	s.SetConfirmed([]domain.Message{m("m1", 0), confirmed})
	assert.Equal(t, []string{"m1", "m2"}, ids(s.View().Messages))

	require.Len(t, fb.sends, 1)
	assert.Equal(t, SendRequest{ConversationID: "c1", Text: "hi", TempID: ticket.TempID}, fb.sends[0])

	umu.Lock()
	defer umu.Unlock()
	require.GreaterOrEqual(t, len(updates), 3)
	assert.Equal(t, UpdateSending, updates[1].Reason)
	assert.Equal(t, ScrollAnimate, updates[1].Scroll)
	assert.Equal(t, UpdateSent, updates[2].Reason)
	assert.Equal(t, ScrollNone, updates[2].Scroll, "removing the placeholder does not scroll")

	select {
	case <-s.Refreshes():
	default:
		t.Fatal("expected a refresh hint after a successful send")
	}
}

func TestSession_SendFailureRestoresText(t *testing.T) {
	fb := newFake()
	g := make(gate, 1)
	fb.sendFn = g.send
	s := NewSession(fb, "c1", "anna")

	s.SetInput("  hello ")
	ticket, ok := s.Send(context.Background())
	require.True(t, ok)

	boom := errors.New("network down")
	g <- boom
	require.ErrorIs(t, ticket.Err(), boom)
	s.Wait()

	v := s.View()
	assert.Equal(t, "  hello ", v.Input)
	assert.True(t, v.Focused)
	assert.Zero(t, v.Pending)
	assert.Empty(t, v.Messages)

	var se *SendError
	require.ErrorAs(t, s.LastSendError(), &se)
	assert.Equal(t, ticket.TempID, se.TempID)
	assert.ErrorIs(t, se, boom)
}

func TestSession_SendFailureKeepsNewerTyping(t *testing.T) {
	fb := newFake()
	g := make(gate, 1)
	fb.sendFn = g.send
	s := NewSession(fb, "c1", "anna")

	s.SetInput("first")
	ticket, ok := s.Send(context.Background())
	require.True(t, ok)
	s.SetInput("second")

	g <- errors.New("503")
	<-ticket.Done()
	s.Wait()
	assert.Equal(t, "first second", s.Input())
}

func TestSession_SendBeforeFirstLoadKeepsInitialJump(t *testing.T) {
	fb := newFake()
	g := make(gate, 1)
	fb.sendFn = g.send
	s := NewSession(fb, "c1", "anna")

	s.SetInput("hoi")
	ticket, ok := s.Send(context.Background())
	require.True(t, ok)
	g <- nil
	<-ticket.Done()
	s.Wait()

	// Scrolled away before history arrived: the first load still jumps.
	s.OnScroll(0, 100, 5000)
	assert.Equal(t, ScrollJump, s.SetConfirmed([]domain.Message{m("m1", 1), m("m2", 2)}))
	assert.True(t, s.View().Scroll.HasScrolledToBottom)
}

func TestSession_SettleFailureDoesNotScroll(t *testing.T) {
	fb := newFake()
	g := make(gate, 1)
	fb.sendFn = g.send

	var last Update
	var umu sync.Mutex
	s := NewSession(fb, "c1", "anna", WithListener(func(u Update) {
		umu.Lock()
		last = u
		umu.Unlock()
	}))
	s.SetConfirmed([]domain.Message{m("m1", 1)})

	s.SetInput("hoi")
	ticket, _ := s.Send(context.Background())
	g <- errors.New("503")
	<-ticket.Done()
	s.Wait()

	umu.Lock()
	defer umu.Unlock()
	assert.Equal(t, UpdateSendFailed, last.Reason)
	assert.Equal(t, ScrollNone, last.Scroll)
	assert.Equal(t, "m1", s.View().Scroll.LastMessageID)
}

func TestSession_FailedSendsRestoreInSendOrder(t *testing.T) {
	fb := newFake()
	gates := map[string]gate{"a": make(gate, 1), "b": make(gate, 1)}
	fb.sendFn = func(req SendRequest) (*domain.Message, error) { return gates[req.Text].send(req) }
	s := NewSession(fb, "c1", "anna")

	s.SetInput("a")
	ta, _ := s.Send(context.Background())
	s.SetInput("b")
	tb, _ := s.Send(context.Background())
	s.SetInput("c")

	gates["b"] <- errors.New("503")
	<-tb.Done()
	s.Wait()
	assert.Equal(t, "b c", s.Input())

	gates["a"] <- errors.New("503")
	<-ta.Done()
	s.Wait()
	assert.Equal(t, "a b c", s.Input())
}

func TestSession_SendRejections(t *testing.T) {
	fb := newFake()
	fb.sendFn = func(SendRequest) (*domain.Message, error) {
		t.Fatal("backend must not be called")
		return nil, nil
	}

	s := NewSession(fb, "c1", "anna")
	for _, in := range []string{"", "   ", "\n\t"} {
		s.SetInput(in)
		_, ok := s.Send(context.Background())
		assert.False(t, ok, "input %q", in)
		assert.Equal(t, in, s.Input(), "rejected send leaves input untouched")
	}

	s.SetInput("hoi")
	s.SetBlocked(true)
	_, ok := s.Send(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "hoi", s.Input())

	noConv := NewSession(fb, "", "anna")
	noConv.SetInput("hoi")
	_, ok = noConv.Send(context.Background())
	assert.False(t, ok)

	closed := NewSession(fb, "c1", "anna")
	closed.Close()
	closed.SetInput("hoi")
	_, ok = closed.Send(context.Background())
	assert.False(t, ok)
}

func TestSession_ConcurrentSendsSettleIndependently(t *testing.T) {
	fb := newFake()
	results := map[string]error{}
	var rmu sync.Mutex
	release := make(chan struct{})
	fb.sendFn = func(req SendRequest) (*domain.Message, error) {
		<-release
		rmu.Lock()
		defer rmu.Unlock()
		return &domain.Message{ID: "srv"}, results[req.Text]
	}
	s := NewSession(fb, "c1", "anna")

	s.SetInput("one")
	t1, _ := s.Send(context.Background())
	s.SetInput("two")
	t2, _ := s.Send(context.Background())
	s.SetInput("three")
	t3, _ := s.Send(context.Background())
	require.NotEqual(t, t1.TempID, t2.TempID)
	require.Equal(t, 3, s.View().Pending)

	rmu.Lock()
	results["two"] = errors.New("rejected")
	rmu.Unlock()
	close(release)
	s.Wait()

	v := s.View()
	assert.Zero(t, v.Pending)
	assert.Equal(t, "two", v.Input)
	assert.NoError(t, t1.Err())
	assert.Error(t, t2.Err())
	assert.NoError(t, t3.Err())
}

func TestSession_MarkReadOncePerLoad(t *testing.T) {
	fb := newFake()
	fb.readErr = errors.New("ignored")
	s := NewSession(fb, "c1", "anna")

	s.SetConfirmed(nil)
	s.SetConfirmed([]domain.Message{m("m1", 1)})
	s.SetConfirmed([]domain.Message{m("m1", 1), m("m2", 2)})

	select {
	case conv := <-fb.reads:
		assert.Equal(t, "c1", conv)
	case <-time.After(time.Second):
		t.Fatal("mark read was not called")
	}
	select {
	case <-fb.reads:
		t.Fatal("mark read must fire once per load")
	case <-time.After(50 * time.Millisecond):
	}

	s.Reopen()
	select {
	case <-fb.reads:
	case <-time.After(time.Second):
		t.Fatal("reopen must mark read again")
	}
}

func TestSession_SwitchResetsAndDropsLateCompletions(t *testing.T) {
	fb := newFake()
	g := make(gate, 1)
	fb.sendFn = g.send
	s := NewSession(fb, "c1", "anna")

	s.SetConfirmed([]domain.Message{m("m1", 1)})
	s.OnScroll(0, 100, 1000)
	s.SetInput("lost")
	ticket, ok := s.Send(context.Background())
	require.True(t, ok)

	s.Switch("c2")
	v := s.View()
	assert.Equal(t, "c2", v.ConversationID)
	assert.Empty(t, v.Messages)
	assert.Equal(t, NewScrollState(0), v.Scroll)

	g <- errors.New("late failure")
	<-ticket.Done()
	s.Wait()
	assert.Equal(t, "", s.Input(), "failure from the old conversation must not restore text")
	assert.NoError(t, s.LastSendError())

	assert.Equal(t, ScrollJump, s.SetConfirmed([]domain.Message{m("x1", 1)}))
}

func TestSession_CloseDropsCompletions(t *testing.T) {
	fb := newFake()
	g := make(gate, 1)
	fb.sendFn = g.send
	s := NewSession(fb, "c1", "anna")

	s.SetInput("bye")
	ticket, _ := s.Send(context.Background())
	s.Close()
	g <- errors.New("too late")
	<-ticket.Done()
	s.Wait()

	assert.Equal(t, "", s.Input())
	assert.Equal(t, ScrollNone, s.SetConfirmed([]domain.Message{m("m1", 1)}))
}

func TestSession_ResolvePartner(t *testing.T) {
	fb := newFake()
	fb.convs = []ConversationSummary{
		{ID: "c0", PartnerID: "chloe", PartnerName: "Chloé"},
		{ID: "c1", PartnerID: "bram"},
	}
	s := NewSession(fb, "c1", "anna")

	got, err := s.ResolvePartner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bram", got.PartnerID)
	assert.Equal(t, "bram", s.View().PartnerName, "falls back to the id")

	s.Switch("c9")
	_, err = s.ResolvePartner(context.Background())
	assert.Error(t, err)

	fb.convsErr = errors.New("offline")
	_, err = s.ResolvePartner(context.Background())
	assert.ErrorIs(t, err, fb.convsErr)
}

func TestSession_ResolvePartnerAppliesBlock(t *testing.T) {
	fb := newFake()
	fb.sendFn = func(SendRequest) (*domain.Message, error) {
		t.Fatal("backend must not be called")
		return nil, nil
	}
	fb.convs = []ConversationSummary{{ID: "c1", PartnerID: "bram", PartnerName: "Bram", Blocked: true}}
	s := NewSession(fb, "c1", "anna")

	_, err := s.ResolvePartner(context.Background())
	require.NoError(t, err)
	assert.True(t, s.View().Blocked)

	s.SetInput("hoi")
	_, ok := s.Send(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "hoi", s.Input())

	fb.convs[0].Blocked = false
	_, err = s.ResolvePartner(context.Background())
	require.NoError(t, err)
	assert.False(t, s.View().Blocked)
}

func TestPoller_FeedsSessionAndRefreshesAfterSend(t *testing.T) {
	fb := newFake()
	var fmu sync.Mutex
	server := []domain.Message{m("m1", 1)}
	fails := 0
	fb.fetchFn = func(conv string) ([]domain.Message, error) {
		fmu.Lock()
		defer fmu.Unlock()
		if fails > 0 {
			fails--
			return nil, errors.New("flaky")
		}
		return append([]domain.Message(nil), server...), nil
	}
	fb.sendFn = func(req SendRequest) (*domain.Message, error) {
		fmu.Lock()
		defer fmu.Unlock()
		msg := domain.Message{ID: "m2", ConversationID: "c1", SenderID: "anna", Content: req.Text, CreatedAt: at(2)}
		server = append(server, msg)
		fails = 1
		return &msg, nil
	}

	s := NewSession(fb, "c1", "anna")
	p := &Poller{Session: s, Backend: fb, Interval: 20 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(s.View().Messages) == 1 }, time.Second, 5*time.Millisecond)

	s.SetInput("tot zo")
	_, ok := s.Send(context.Background())
	require.True(t, ok)

	require.Eventually(t, func() bool {
		v := s.View()
		return len(v.Messages) == 2 && v.Messages[1].ID == "m2" && v.Pending == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
