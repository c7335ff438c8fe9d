package chatview

import "github.com/tbourn/taalmeet/internal/domain"

// DefaultNearBottomThreshold is the distance from the end of the content
// under which the view counts as "near the bottom".
const DefaultNearBottomThreshold = 200

// ScrollAction tells the renderer what to do after a list change.
type ScrollAction int

const (
	// ScrollNone leaves the viewport where it is.
	ScrollNone ScrollAction = iota
	// ScrollJump scrolls to the end without animation (initial load).
	ScrollJump
	// ScrollAnimate scrolls to the end with animation.
	ScrollAnimate
)

func (a ScrollAction) String() string {
	switch a {
	case ScrollJump:
		return "jump"
	case ScrollAnimate:
		return "animate"
	default:
		return "none"
	}
}

// ScrollState is the auto-scroll bookkeeping of one conversation view.
type ScrollState struct {
	NearBottom          bool
	HasScrolledToBottom bool
	LastMessageID       string
	Threshold           float64
}

// NewScrollState returns the state of a freshly opened conversation. A
// threshold <= 0 selects DefaultNearBottomThreshold.
func NewScrollState(threshold float64) ScrollState {
	if threshold <= 0 {
		threshold = DefaultNearBottomThreshold
	}
	return ScrollState{NearBottom: true, Threshold: threshold}
}

// OnScroll updates NearBottom from the viewport geometry: offset is the
// scroll position, viewport the visible height and content the full height.
func (s *ScrollState) OnScroll(offset, viewport, content float64) {
	s.NearBottom = content-(offset+viewport) < s.Threshold
}

// OnMessages records the last id of list and decides whether to scroll.
func (s *ScrollState) OnMessages(list []domain.Message) ScrollAction {
	if len(list) == 0 {
		s.LastMessageID = ""
		return ScrollNone
	}
	last := list[len(list)-1].ID
	changed := last != s.LastMessageID
	s.LastMessageID = last

	if !s.HasScrolledToBottom {
		s.HasScrolledToBottom = true
		return ScrollJump
	}
	if changed && s.NearBottom {
		return ScrollAnimate
	}
	return ScrollNone
}

// OnLocalChange is OnMessages for changes made on this device, such as an
// optimistic send. It never performs the initial jump, which belongs to the
// first server load.
func (s *ScrollState) OnLocalChange(list []domain.Message) ScrollAction {
	if len(list) == 0 {
		s.LastMessageID = ""
		return ScrollNone
	}
	last := list[len(list)-1].ID
	changed := last != s.LastMessageID
	s.LastMessageID = last
	if changed && s.NearBottom {
		return ScrollAnimate
	}
	return ScrollNone
}

// Track records the last id of list without asking for a scroll.
func (s *ScrollState) Track(list []domain.Message) {
	if len(list) == 0 {
		s.LastMessageID = ""
		return
	}
	s.LastMessageID = list[len(list)-1].ID
}

// ForceNearBottom pins the view to the bottom, as after an outgoing send.
func (s *ScrollState) ForceNearBottom() { s.NearBottom = true }

// Reset returns to the state of a freshly opened conversation, keeping the
// threshold.
func (s *ScrollState) Reset() { *s = NewScrollState(s.Threshold) }
