package cardstack

// Event is emitted by a Stack. The concrete types are NavigatedForward,
// NavigatedBackward, MarkedInterested and ActiveChanged.
type Event interface {
	event()
}

// NavigatedForward reports a swipe left to the next card. ID is the new
// active partner.
type NavigatedForward struct{ ID string }

// NavigatedBackward reports a swipe right to the previous card. ID is the new
// active partner.
type NavigatedBackward struct{ ID string }

// MarkedInterested reports a swipe right on the first card, which expresses
// interest in that partner instead of navigating.
type MarkedInterested struct{ ID string }

// ActiveChanged reports a new top-of-stack card. ID is empty when no card is
// active (empty or exhausted stack).
type ActiveChanged struct{ ID string }

func (NavigatedForward) event()  {}
func (NavigatedBackward) event() {}
func (MarkedInterested) event()  {}
func (ActiveChanged) event()     {}

// Dispatcher consumes stack events. Dispatch is called outside the stack
// lock, in emission order.
type Dispatcher interface {
	Dispatch(Event)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(Event)

// Dispatch calls f(e).
func (f DispatcherFunc) Dispatch(e Event) { f(e) }

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(Event) {}
