// Package chatview implements the client-side optimistic message pipeline of
// the chat screen: merging server-confirmed messages with locally pending
// ones, the optimistic send lifecycle, mark-as-read and the auto-scroll
// policy.
//
// All state for one open conversation lives in a Session. Backend calls
// complete on their own goroutines; the Session serializes every state change
// behind a mutex so a renderer can read consistent snapshots at any time.
package chatview

import (
	"sort"

	"github.com/tbourn/taalmeet/internal/domain"
)

// Merge combines confirmed and pending into a single display list sorted
// ascending by CreatedAt. Pending entries whose id already appears in
// confirmed are dropped. Equal timestamps keep confirmed entries first and
// otherwise preserve input order.
//
// Merge never mutates its inputs and always returns a fresh slice.
func Merge(confirmed, pending []domain.Message) []domain.Message {
	seen := make(map[string]struct{}, len(confirmed))
	for _, m := range confirmed {
		seen[m.ID] = struct{}{}
	}

	out := make([]domain.Message, 0, len(confirmed)+len(pending))
	out = append(out, confirmed...)
	for _, m := range pending {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
