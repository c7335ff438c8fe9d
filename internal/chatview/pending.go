package chatview

import "github.com/tbourn/taalmeet/internal/domain"

// PendingSet holds optimistic messages keyed by temporary id, in insertion
// order. It is not safe for concurrent use; Session guards it.
type PendingSet struct {
	order []string
	byID  map[string]domain.Message
}

// NewPendingSet returns an empty set.
func NewPendingSet() *PendingSet {
	return &PendingSet{byID: make(map[string]domain.Message)}
}

// Add inserts m. Adding an id that is already present replaces the entry in
// place.
func (p *PendingSet) Add(m domain.Message) {
	if _, ok := p.byID[m.ID]; !ok {
		p.order = append(p.order, m.ID)
	}
	p.byID[m.ID] = m
}

// Remove deletes id and reports whether it was present.
func (p *PendingSet) Remove(id string) bool {
	if _, ok := p.byID[id]; !ok {
		return false
	}
	delete(p.byID, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether id is pending.
func (p *PendingSet) Has(id string) bool {
	_, ok := p.byID[id]
	return ok
}

// Len returns the number of pending messages.
func (p *PendingSet) Len() int { return len(p.order) }

// List returns the pending messages in insertion order.
func (p *PendingSet) List() []domain.Message {
	out := make([]domain.Message, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.byID[id])
	}
	return out
}

// Clear drops every entry.
func (p *PendingSet) Clear() {
	p.order = nil
	p.byID = make(map[string]domain.Message)
}
