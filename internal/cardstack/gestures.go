package cardstack

// Phase is the gesture phase of the top card.
type Phase int

const (
	// PhaseIdle means no gesture is in progress.
	PhaseIdle Phase = iota
	// PhaseDragging means the card follows the pointer.
	PhaseDragging
	// PhaseSettling means the release animation is running.
	PhaseSettling
)

func (p Phase) String() string {
	switch p {
	case PhaseDragging:
		return "dragging"
	case PhaseSettling:
		return "settling"
	default:
		return "idle"
	}
}

// Outcome is how a release was resolved.
type Outcome int

const (
	// OutcomeNone means there was no drag to release.
	OutcomeNone Outcome = iota
	// OutcomeSnapBack returns the card to the center.
	OutcomeSnapBack
	// OutcomeForward flies the card off to the left.
	OutcomeForward
	// OutcomeBackward brings the previous card back.
	OutcomeBackward
	// OutcomeInterested signals interest in the first card.
	OutcomeInterested
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSnapBack:
		return "snap_back"
	case OutcomeForward:
		return "forward"
	case OutcomeBackward:
		return "backward"
	case OutcomeInterested:
		return "interested"
	default:
		return "none"
	}
}

// BeginDrag captures the pointer on the top card. Lower cards are not
// interactive, so there is nothing to drag on an empty or exhausted stack.
func (s *Stack) BeginDrag() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateLocked() != StateActive {
		return false
	}
	s.phase = PhaseDragging
	s.dragX = 0
	return true
}

// Drag moves the top card to horizontal offset dx.
func (s *Stack) Drag(dx float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseDragging {
		s.dragX = dx
	}
}

// Release ends a drag at offset dx with horizontal velocity vx. Negative
// values point left. A release past the swipe threshold or faster than the
// flick velocity swipes; anything else snaps back.
func (s *Stack) Release(dx, vx float64) Outcome {
	s.mu.Lock()
	if s.phase != PhaseDragging {
		s.mu.Unlock()
		return OutcomeNone
	}
	s.phase = PhaseSettling
	s.dragX = 0
	left := dx < -s.cfg.SwipeThreshold || vx < -s.cfg.FlickVelocity
	right := dx > s.cfg.SwipeThreshold || vx > s.cfg.FlickVelocity
	s.mu.Unlock()

	out := OutcomeSnapBack
	switch {
	case left:
		if s.SwipeLeft() {
			out = OutcomeForward
		}
	case right:
		if s.SwipeRight() {
			out = OutcomeBackward
		} else if s.State() == StateActive {
			out = OutcomeInterested
		}
	}
	s.scheduleSettled()
	return out
}

// Settled ends the release animation.
func (s *Stack) Settled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseSettling {
		s.phase = PhaseIdle
	}
}

func (s *Stack) scheduleSettled() {
	if s.cfg.SettleDelay < 0 {
		return
	}
	s.after(s.cfg.SettleDelay, s.Settled)
}
