package cardstack

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	evs []Event
}

func (r *recorder) Dispatch(e Event) {
	r.mu.Lock()
	r.evs = append(r.evs, e)
	r.mu.Unlock()
}

func (r *recorder) take() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.evs
	r.evs = nil
	return out
}

// manualClock collects scheduled callbacks so tests fire them explicitly.
type manualClock struct {
	mu    sync.Mutex
	fns   []func()
	delay []time.Duration
}

func (c *manualClock) after(d time.Duration, f func()) {
	c.mu.Lock()
	c.fns = append(c.fns, f)
	c.delay = append(c.delay, d)
	c.mu.Unlock()
}

func (c *manualClock) fireAll() {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

func cards(ids ...string) []PartnerCard {
	out := make([]PartnerCard, 0, len(ids))
	for _, id := range ids {
		out = append(out, PartnerCard{ID: id, Name: id})
	}
	return out
}

func newStack(t *testing.T, ids ...string) (*Stack, *recorder, *manualClock) {
	t.Helper()
	rec := &recorder{}
	clk := &manualClock{}
	s := New(cards(ids...), WithDispatcher(rec), WithAfterFunc(clk.after))
	return s, rec, clk
}

func TestNew_EmitsInitialActive(t *testing.T) {
	_, rec, _ := newStack(t, "a", "b")
	assert.Equal(t, []Event{ActiveChanged{ID: "a"}}, rec.take())

	empty, rec2, _ := newStack(t)
	assert.Equal(t, []Event{ActiveChanged{ID: ""}}, rec2.take())
	assert.Equal(t, StateNoPartners, empty.State())
}

func TestSwipeLeft_AdvancesAndStopsAtEnd(t *testing.T) {
	s, rec, clk := newStack(t, "a", "b", "c")
	rec.take()

	require.True(t, s.SwipeLeft())
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, 0, snap.PrevIndex)
	assert.True(t, snap.Transitioning)
	assert.Equal(t, []Event{NavigatedForward{ID: "b"}, ActiveChanged{ID: "b"}}, rec.take())

	require.True(t, s.SwipeLeft())
	assert.Equal(t, 2, s.Snapshot().Index)
	rec.take()

	assert.False(t, s.SwipeLeft(), "no advance past the last card")
	assert.Equal(t, 2, s.Snapshot().Index)
	assert.Empty(t, rec.take(), "no event with an out-of-range id")

	clk.fireAll()
	assert.False(t, s.Snapshot().Transitioning)
	assert.Equal(t, []time.Duration{DefaultSettleDelay, DefaultSettleDelay}, clk.delay)
}

func TestSwipeRight_BackOrInterested(t *testing.T) {
	s, rec, _ := newStack(t, "a", "b", "c")
	rec.take()

	assert.False(t, s.SwipeRight())
	assert.Equal(t, 0, s.Snapshot().Index)
	assert.Equal(t, []Event{MarkedInterested{ID: "a"}}, rec.take())

	s.SwipeLeft()
	s.SwipeLeft()
	rec.take()
	require.True(t, s.SwipeRight())
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, 2, snap.PrevIndex)
	assert.Equal(t, []Event{NavigatedBackward{ID: "b"}, ActiveChanged{ID: "b"}}, rec.take())
}

func TestCompleteTransition_IgnoresStaleSignals(t *testing.T) {
	s, _, _ := newStack(t, "a", "b", "c")
	s.SwipeLeft()
	first := s.Snapshot().Seq
	s.SwipeLeft()
	second := s.Snapshot().Seq
	require.NotEqual(t, first, second)

	assert.False(t, s.CompleteTransition(first), "stale completion")
	assert.True(t, s.Snapshot().Transitioning)
	assert.True(t, s.CompleteTransition(second))
	assert.False(t, s.Snapshot().Transitioning)
	assert.False(t, s.CompleteTransition(second), "already complete")
}

func TestSettleDelay_Negative_DisablesAutoCompletion(t *testing.T) {
	clk := &manualClock{}
	s := New(cards("a", "b"), WithAfterFunc(clk.after), WithConfig(Config{SettleDelay: -1}))
	s.SwipeLeft()
	assert.Empty(t, clk.fns)
	assert.True(t, s.Snapshot().Transitioning)
}

func TestSelect_ExternalJump(t *testing.T) {
	s, rec, _ := newStack(t, "a", "b", "c")
	rec.take()

	require.True(t, s.Select("c"))
	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Index)
	assert.False(t, snap.Transitioning)
	assert.Equal(t, []Event{ActiveChanged{ID: "c"}}, rec.take())

	assert.False(t, s.Select("c"), "already active")
	assert.False(t, s.Select("zz"), "unknown id")
	assert.Empty(t, rec.take())
}

func TestStates_EmptyVsExhausted(t *testing.T) {
	empty, _, _ := newStack(t)
	assert.Equal(t, StateNoPartners, empty.State())
	assert.Empty(t, empty.Visible())
	assert.False(t, empty.SwipeLeft())
	assert.False(t, empty.SwipeRight())

	s, rec, _ := newStack(t, "a", "b")
	rec.take()
	s.SetIndex(2)
	assert.Equal(t, StateExhausted, s.State())
	assert.NotEqual(t, empty.State(), s.State())
	assert.Equal(t, []Event{ActiveChanged{ID: ""}}, rec.take())
	_, ok := s.Current()
	assert.False(t, ok)

	s.SetIndex(99)
	assert.Equal(t, 2, s.Snapshot().Index, "clamped to len")
	s.SetIndex(-4)
	assert.Equal(t, 0, s.Snapshot().Index)
	assert.Equal(t, "exhausted", StateExhausted.String())
}

func TestVisible_TopTwoOnlyTopInteractive(t *testing.T) {
	s, _, clk := newStack(t, "a", "b", "c", "d")
	v := s.Visible()
	require.Len(t, v, 2)
	assert.Equal(t, "a", v[0].Card.ID)
	assert.True(t, v[0].Interactive)
	assert.False(t, v[1].Interactive)
	assert.False(t, v[0].Entering)

	s.SwipeLeft()
	v = s.Visible()
	assert.Equal(t, []string{"b", "c"}, []string{v[0].Card.ID, v[1].Card.ID})
	assert.True(t, v[0].Entering)
	clk.fireAll()
	assert.False(t, s.Visible()[0].Entering)

	s.Select("d")
	require.Len(t, s.Visible(), 1)
}

func TestSetPartners_PreserveOrReset(t *testing.T) {
	s, rec, _ := newStack(t, "a", "b", "c")
	s.SwipeLeft()
	rec.take()

	updated := cards("a", "b", "c")
	updated[1].Online = true
	s.SetPartners(updated)
	assert.Equal(t, 1, s.Snapshot().Index, "same ids keep position")
	cur, _ := s.Current()
	assert.True(t, cur.Online)
	assert.Empty(t, rec.take())

	s.SetPartners(cards("x", "b"))
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.Index)
	assert.False(t, snap.Transitioning)
	assert.Equal(t, []Event{ActiveChanged{ID: "x"}}, rec.take())

	s.SetPartners(nil)
	assert.Equal(t, StateNoPartners, s.State())
	assert.Equal(t, []Event{ActiveChanged{ID: ""}}, rec.take())
}

func TestGestures(t *testing.T) {
	s, rec, clk := newStack(t, "a", "b")
	rec.take()

	assert.Equal(t, OutcomeNone, s.Release(-500, 0), "no drag in progress")

	require.True(t, s.BeginDrag())
	s.Drag(-60)
	assert.Equal(t, PhaseDragging, s.Snapshot().Phase)
	assert.Equal(t, -60.0, s.Snapshot().DragX)
	assert.Equal(t, OutcomeSnapBack, s.Release(-60, -100))
	assert.Equal(t, PhaseSettling, s.Snapshot().Phase)
	assert.Equal(t, 0, s.Snapshot().Index)

	// Fast flick below the distance threshold still swipes.
	s.BeginDrag()
	assert.Equal(t, OutcomeForward, s.Release(-40, -1200))
	assert.Equal(t, 1, s.Snapshot().Index)

	// Last card resists.
	s.BeginDrag()
	assert.Equal(t, OutcomeSnapBack, s.Release(-300, 0))
	assert.Equal(t, 1, s.Snapshot().Index)

	s.BeginDrag()
	assert.Equal(t, OutcomeBackward, s.Release(200, 0))
	s.BeginDrag()
	assert.Equal(t, OutcomeInterested, s.Release(200, 0))
	assert.Contains(t, rec.take(), Event(MarkedInterested{ID: "a"}))

	clk.fireAll()
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "interested", OutcomeInterested.String())

	s.SetIndex(2)
	assert.False(t, s.BeginDrag(), "nothing to drag when exhausted")
}

func TestDispatcherFunc(t *testing.T) {
	var got []Event
	New(cards("a"), WithDispatcher(DispatcherFunc(func(e Event) { got = append(got, e) })))
	assert.Equal(t, []Event{ActiveChanged{ID: "a"}}, got)
}
