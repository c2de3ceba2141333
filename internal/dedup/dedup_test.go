package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"tubewatch/internal/model"
)

func ts(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func item(id string, sec int64) model.Item {
	return model.Item{
		ID:        id,
		Title:     "upload " + id,
		Link:      "https://videos.example/watch?v=" + id,
		Published: ts(sec),
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name      string
		items     []model.Item // newest first, as fetched
		prev      *model.DedupState
		wantFresh []model.Item // oldest first
		wantNext  model.DedupState
	}{
		{
			name:      "no state seeds from batch without reporting anything",
			items:     []model.Item{item("c", 300), item("b", 200), item("a", 100)},
			prev:      nil,
			wantFresh: nil,
			wantNext:  model.DedupState{LastPublished: ts(300), RecentIDs: []string{"c"}},
		},
		{
			name:      "no state and empty batch yields zero state",
			items:     nil,
			prev:      nil,
			wantFresh: nil,
			wantNext:  model.DedupState{},
		},
		{
			name:      "everything already covered",
			items:     []model.Item{item("a", 100), item("z", 50)},
			prev:      &model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a"}},
			wantFresh: nil,
			wantNext:  model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a"}},
		},
		{
			name:      "strictly newer item is fresh and replaces the window",
			items:     []model.Item{item("b", 200), item("a", 100)},
			prev:      &model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a"}},
			wantFresh: []model.Item{item("b", 200)},
			wantNext:  model.DedupState{LastPublished: ts(200), RecentIDs: []string{"b"}},
		},
		{
			name:      "equal timestamp with unknown id is fresh and joins the window",
			items:     []model.Item{item("b", 100), item("a", 100), item("c", 99)},
			prev:      &model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a"}},
			wantFresh: []model.Item{item("b", 100)},
			wantNext:  model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a", "b"}},
		},
		{
			name:  "fresh items come out oldest first",
			items: []model.Item{item("d", 400), item("c", 300), item("b", 200), item("a", 100)},
			prev:  &model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a"}},
			wantFresh: []model.Item{
				item("b", 200),
				item("c", 300),
				item("d", 400),
			},
			wantNext: model.DedupState{LastPublished: ts(400), RecentIDs: []string{"d"}},
		},
		{
			name:  "same timestamp burst keeps feed order",
			items: []model.Item{item("y", 200), item("x", 200), item("a", 100)},
			prev:  &model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a"}},
			wantFresh: []model.Item{
				item("x", 200),
				item("y", 200),
			},
			wantNext: model.DedupState{LastPublished: ts(200), RecentIDs: []string{"x", "y"}},
		},
		{
			name:      "duplicate id inside one batch counts once",
			items:     []model.Item{item("b", 200), item("b", 200), item("a", 100)},
			prev:      &model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a"}},
			wantFresh: []model.Item{item("b", 200)},
			wantNext:  model.DedupState{LastPublished: ts(200), RecentIDs: []string{"b"}},
		},
		{
			name:      "empty batch preserves state",
			items:     nil,
			prev:      &model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a", "b"}},
			wantFresh: nil,
			wantNext:  model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a", "b"}},
		},
		{
			name:      "watermark never regresses when feed rolls back",
			items:     []model.Item{item("old2", 80), item("old1", 70)},
			prev:      &model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a"}},
			wantFresh: nil,
			wantNext:  model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a"}},
		},
		{
			name:      "zero-time state reports the whole batch",
			items:     []model.Item{item("b", 200), item("a", 100)},
			prev:      &model.DedupState{},
			wantFresh: []model.Item{item("a", 100), item("b", 200)},
			wantNext:  model.DedupState{LastPublished: ts(200), RecentIDs: []string{"b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fresh, next := Filter(tt.items, tt.prev)
			if diff := cmp.Diff(tt.wantFresh, fresh, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("fresh mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantNext, next, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("next state mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilterWindowEviction(t *testing.T) {
	// A burst wider than the cap keeps only the newest cap ids, evicting
	// from the oldest end.
	items := make([]model.Item, 0, RecentIDCap+8)
	for i := RecentIDCap + 7; i >= 0; i-- {
		items = append(items, item(fmt.Sprintf("v%03d", i), 500))
	}

	_, next := Filter(items, nil)

	if got := len(next.RecentIDs); got != RecentIDCap {
		t.Fatalf("window size = %d, want %d", got, RecentIDCap)
	}
	if got, want := next.RecentIDs[0], fmt.Sprintf("v%03d", 8); got != want {
		t.Errorf("oldest surviving id = %q, want %q", got, want)
	}
	if got, want := next.RecentIDs[len(next.RecentIDs)-1], fmt.Sprintf("v%03d", RecentIDCap+7); got != want {
		t.Errorf("newest id = %q, want %q", got, want)
	}
}

func TestFilterDoesNotMutatePrev(t *testing.T) {
	prev := &model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a"}}
	Filter([]model.Item{item("b", 100), item("c", 100)}, prev)

	want := &model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a"}}
	if diff := cmp.Diff(want, prev); diff != "" {
		t.Errorf("prev mutated (-want +got):\n%s", diff)
	}
}

func TestFilterIsIdempotent(t *testing.T) {
	items := []model.Item{item("c", 300), item("b", 300), item("a", 100)}

	first, state := Filter(items, &model.DedupState{LastPublished: ts(100), RecentIDs: []string{"a"}})
	if len(first) != 2 {
		t.Fatalf("first pass reported %d items, want 2", len(first))
	}

	again, state2 := Filter(items, &state)
	if len(again) != 0 {
		t.Errorf("second pass reported %d items, want 0", len(again))
	}
	if diff := cmp.Diff(state, state2); diff != "" {
		t.Errorf("state changed on replay (-want +got):\n%s", diff)
	}
}
