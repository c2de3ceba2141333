// Package dedup implements the novelty detection engine for channel feeds.
package dedup

import (
	"sort"

	"tubewatch/internal/model"
)

// RecentIDCap bounds the per-channel window of item ids sharing the newest
// publish timestamp. When a burst exceeds the cap the oldest entries are
// evicted first.
const RecentIDCap = 32

// Filter splits a fetched batch into the items not yet covered by prev and
// the state that covers the whole batch. It performs no I/O and never
// mutates prev.
//
// An item counts as new when it was published strictly after
// prev.LastPublished, or at exactly that time with an id outside
// prev.RecentIDs. With prev == nil (first contact with a channel) nothing
// is reported new and the returned state fingerprints the batch, so a
// freshly added channel never floods its subscribers with the backlog.
//
// fresh is ordered oldest first so callers can deliver chronologically.
// Items sharing a timestamp keep their relative feed order.
func Filter(items []model.Item, prev *model.DedupState) (fresh []model.Item, next model.DedupState) {
	// Batches arrive newest first. Reverse before the stable sort so
	// same-timestamp items end up oldest first without reordering
	// among themselves.
	ordered := make([]model.Item, len(items))
	for i, it := range items {
		ordered[len(items)-1-i] = it
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Published.Before(ordered[j].Published)
	})

	if prev != nil {
		next.LastPublished = prev.LastPublished
	}
	for _, it := range ordered {
		if it.Published.After(next.LastPublished) {
			next.LastPublished = it.Published
		}
	}

	// The watermark did not advance, so ids already recorded at that
	// timestamp stay in the window.
	if prev != nil && prev.LastPublished.Equal(next.LastPublished) {
		next.RecentIDs = append(next.RecentIDs, prev.RecentIDs...)
	}

	seenInBatch := make(map[string]struct{}, len(ordered))
	for _, it := range ordered {
		if _, dup := seenInBatch[it.ID]; dup {
			continue
		}
		seenInBatch[it.ID] = struct{}{}

		if prev != nil && isNew(it, prev) {
			fresh = append(fresh, it)
		}
		if it.Published.Equal(next.LastPublished) && !next.Seen(it.ID) {
			next.RecentIDs = append(next.RecentIDs, it.ID)
		}
	}

	if over := len(next.RecentIDs) - RecentIDCap; over > 0 {
		next.RecentIDs = next.RecentIDs[over:]
	}
	return fresh, next
}

func isNew(it model.Item, prev *model.DedupState) bool {
	if it.Published.After(prev.LastPublished) {
		return true
	}
	return it.Published.Equal(prev.LastPublished) && !prev.Seen(it.ID)
}
