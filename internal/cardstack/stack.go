// Package cardstack implements the swipeable partner card stack used for
// partner discovery: a state machine over an ordered list of partner cards
// with gesture-driven navigation, external selection and typed events.
package cardstack

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Defaults for Config zero values.
const (
	DefaultSwipeThreshold = 120
	DefaultFlickVelocity  = 800
	DefaultSettleDelay    = 300 * time.Millisecond

	// visibleCards is how many cards are mounted at once.
	visibleCards = 2
)

// PartnerCard is the display data of one partner. The stack never mutates
// it; it only tracks which index is active.
type PartnerCard struct {
	ID         string
	Name       string
	AvatarURL  string
	Languages  []string
	DistanceKM *float64
	MatchScore float64
	Online     bool
	Available  bool
}

// StackState distinguishes the render paths of the stack.
type StackState int

const (
	// StateActive means a card is on top.
	StateActive StackState = iota
	// StateNoPartners means the partner list is empty.
	StateNoPartners
	// StateExhausted means every card was seen.
	StateExhausted
)

func (s StackState) String() string {
	switch s {
	case StateNoPartners:
		return "no_partners"
	case StateExhausted:
		return "exhausted"
	default:
		return "active"
	}
}

// Config tunes gesture classification and settling.
type Config struct {
	// SwipeThreshold is the drag distance past which a release navigates.
	SwipeThreshold float64
	// FlickVelocity is the release velocity past which a release navigates
	// regardless of distance.
	FlickVelocity float64
	// SettleDelay schedules CompleteTransition and Settled automatically
	// for hosts without an animation driver. Negative disables it.
	SettleDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.SwipeThreshold <= 0 {
		c.SwipeThreshold = DefaultSwipeThreshold
	}
	if c.FlickVelocity <= 0 {
		c.FlickVelocity = DefaultFlickVelocity
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	return c
}

// AfterFunc schedules f after d. It matches time.AfterFunc minus the timer.
type AfterFunc func(d time.Duration, f func())

// Option configures a Stack.
type Option func(*Stack)

// WithConfig sets gesture and settle tuning.
func WithConfig(c Config) Option { return func(s *Stack) { s.cfg = c.withDefaults() } }

// WithDispatcher sets the event consumer.
func WithDispatcher(d Dispatcher) Option { return func(s *Stack) { s.dispatch = d } }

// WithLogger sets the stack logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Stack) { s.log = l } }

// WithAfterFunc replaces the scheduler used for automatic settling.
func WithAfterFunc(fn AfterFunc) Option { return func(s *Stack) { s.after = fn } }

// Stack is the card stack state machine. It is safe for concurrent use.
type Stack struct {
	cfg      Config
	dispatch Dispatcher
	log      zerolog.Logger
	after    AfterFunc

	mu            sync.Mutex
	partners      []PartnerCard
	index         int
	prevIndex     int
	transitioning bool
	seq           uint64
	phase         Phase
	dragX         float64
	active        string
	reported      bool
}

// New returns a stack positioned on the first card and emits the initial
// ActiveChanged.
func New(partners []PartnerCard, opts ...Option) *Stack {
	s := &Stack{
		cfg:      Config{}.withDefaults(),
		dispatch: nopDispatcher{},
		log:      zerolog.Nop(),
		after:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		partners: append([]PartnerCard(nil), partners...),
	}
	for _, o := range opts {
		o(s)
	}
	s.mu.Lock()
	evs := s.activeChangedLocked(nil)
	s.mu.Unlock()
	s.emit(evs)
	return s
}

// Snapshot is a read-only copy of the stack state.
type Snapshot struct {
	Index         int
	PrevIndex     int
	Len           int
	Transitioning bool
	Seq           uint64
	Phase         Phase
	DragX         float64
	State         StackState
}

// Snapshot returns the current state.
func (s *Stack) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Index:         s.index,
		PrevIndex:     s.prevIndex,
		Len:           len(s.partners),
		Transitioning: s.transitioning,
		Seq:           s.seq,
		Phase:         s.phase,
		DragX:         s.dragX,
		State:         s.stateLocked(),
	}
}

// State returns which render path applies.
func (s *Stack) State() StackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Stack) stateLocked() StackState {
	switch {
	case len(s.partners) == 0:
		return StateNoPartners
	case s.index >= len(s.partners):
		return StateExhausted
	default:
		return StateActive
	}
}

// Current returns the active card.
func (s *Stack) Current() (PartnerCard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= len(s.partners) {
		return PartnerCard{}, false
	}
	return s.partners[s.index], true
}

// VisibleCard is a mounted card.
type VisibleCard struct {
	Card PartnerCard
	// Interactive is true only for the top card.
	Interactive bool
	// Entering asks the renderer to play the entry animation.
	Entering bool
}

// Visible returns at most the top two remaining cards, top first.
func (s *Stack) Visible() []VisibleCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []VisibleCard
	for i := s.index; i < len(s.partners) && len(out) < visibleCards; i++ {
		top := i == s.index
		out = append(out, VisibleCard{
			Card:        s.partners[i],
			Interactive: top,
			Entering:    top && s.transitioning && s.prevIndex != s.index,
		})
	}
	return out
}

// SwipeLeft advances to the next card. At the last card it does nothing and
// returns false.
func (s *Stack) SwipeLeft() bool {
	s.mu.Lock()
	next := min(s.index+1, len(s.partners)-1)
	if len(s.partners) == 0 || next <= s.index {
		s.mu.Unlock()
		return false
	}
	evs := s.transitionLocked(next, func(id string) Event { return NavigatedForward{ID: id} })
	seq := s.seq
	s.mu.Unlock()

	s.emit(evs)
	s.scheduleCompletion(seq)
	return true
}

// SwipeRight goes back one card. On the first card it emits MarkedInterested
// for that card instead and returns false.
func (s *Stack) SwipeRight() bool {
	s.mu.Lock()
	if len(s.partners) == 0 {
		s.mu.Unlock()
		return false
	}
	if s.index == 0 {
		id := s.partners[0].ID
		s.mu.Unlock()
		s.log.Debug().Str("partner_id", id).Msg("marked interested")
		s.emit([]Event{MarkedInterested{ID: id}})
		return false
	}
	prev := min(s.index-1, len(s.partners)-1)
	evs := s.transitionLocked(prev, func(id string) Event { return NavigatedBackward{ID: id} })
	seq := s.seq
	s.mu.Unlock()

	s.emit(evs)
	s.scheduleCompletion(seq)
	return true
}

// transitionLocked moves to idx and opens a new transition.
func (s *Stack) transitionLocked(idx int, nav func(string) Event) []Event {
	s.prevIndex = s.index
	s.index = idx
	s.transitioning = true
	s.seq++
	s.log.Debug().Int("from", s.prevIndex).Int("to", idx).Uint64("seq", s.seq).Msg("card transition")
	return s.activeChangedLocked([]Event{nav(s.partners[idx].ID)})
}

// CompleteTransition ends transition seq. Completions for superseded
// transitions are ignored and return false.
func (s *Stack) CompleteTransition(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transitioning || seq != s.seq {
		return false
	}
	s.transitioning = false
	return true
}

func (s *Stack) scheduleCompletion(seq uint64) {
	if s.cfg.SettleDelay < 0 {
		return
	}
	s.after(s.cfg.SettleDelay, func() { s.CompleteTransition(seq) })
}

// Select jumps to the card with id, as when a map marker is tapped. It
// returns false when id is unknown or already active.
func (s *Stack) Select(id string) bool {
	s.mu.Lock()
	idx := s.indexOfLocked(id)
	if idx < 0 || idx == s.index {
		s.mu.Unlock()
		return false
	}
	s.prevIndex = s.index
	s.index = idx
	evs := s.activeChangedLocked(nil)
	s.mu.Unlock()

	s.emit(evs)
	return true
}

// SetIndex positions the stack, clamped to [0, len]. An index equal to the
// list length shows the exhausted state.
func (s *Stack) SetIndex(i int) {
	s.mu.Lock()
	i = max(0, min(i, len(s.partners)))
	if i == s.index {
		s.mu.Unlock()
		return
	}
	s.prevIndex = s.index
	s.index = i
	s.transitioning = false
	s.seq++
	evs := s.activeChangedLocked(nil)
	s.mu.Unlock()

	s.emit(evs)
}

// SetPartners replaces the partner list. When the new list has the same ids
// in the same order the position is kept (card data may still change);
// otherwise the stack resets to the first card.
func (s *Stack) SetPartners(list []PartnerCard) {
	s.mu.Lock()
	same := sameIDs(s.partners, list)
	s.partners = append([]PartnerCard(nil), list...)
	if !same {
		s.index, s.prevIndex = 0, 0
		s.transitioning = false
		s.seq++
		s.phase, s.dragX = PhaseIdle, 0
	}
	evs := s.activeChangedLocked(nil)
	s.mu.Unlock()

	s.emit(evs)
}

func sameIDs(a, b []PartnerCard) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func (s *Stack) indexOfLocked(id string) int {
	for i, p := range s.partners {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// activeChangedLocked appends ActiveChanged when the top card differs from
// the last one reported.
func (s *Stack) activeChangedLocked(evs []Event) []Event {
	id := ""
	if s.index < len(s.partners) {
		id = s.partners[s.index].ID
	}
	if s.reported && id == s.active {
		return evs
	}
	s.reported, s.active = true, id
	evs = append(evs, ActiveChanged{ID: id})
	return evs
}

func (s *Stack) emit(evs []Event) {
	for _, e := range evs {
		s.dispatch.Dispatch(e)
	}
}
