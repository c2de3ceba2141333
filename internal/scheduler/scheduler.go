// Package scheduler drives the periodic poll cycle over all watched channels.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tubewatch/internal/dedup"
	"tubewatch/internal/feed"
	"tubewatch/internal/model"
	"tubewatch/internal/notify"
	"tubewatch/internal/storage"
)

// Scheduler polls every watched channel on a fixed interval. Each channel
// runs one fetch-filter-commit-notify cycle per pass, at most concurrency
// cycles in flight at once and never two cycles for the same channel.
type Scheduler struct {
	store    storage.Store
	feeds    *feed.Client
	notifier *notify.Notifier
	log      *slog.Logger

	interval     time.Duration
	concurrency  int
	cycleTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a Scheduler with the default pacing: a pass every 5 minutes,
// 4 concurrent cycles, 45 seconds per cycle.
func New(store storage.Store, feeds *feed.Client, notifier *notify.Notifier, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        store,
		feeds:        feeds,
		notifier:     notifier,
		log:          log,
		interval:     5 * time.Minute,
		concurrency:  4,
		cycleTimeout: 45 * time.Second,
		inflight:     make(map[string]struct{}),
	}
}

// SetInterval overrides the poll interval. Call before Run.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// SetConcurrency overrides the cycle concurrency cap. Call before Run.
func (s *Scheduler) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// SetCycleTimeout overrides the per-channel cycle deadline. Call before Run.
func (s *Scheduler) SetCycleTimeout(d time.Duration) {
	if d > 0 {
		s.cycleTimeout = d
	}
}

// Run polls once immediately and then on every tick, blocking until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.PollAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PollAll(ctx)
		}
	}
}

// ForceUpdate triggers one immediate pass outside the tick cadence.
// Channels whose periodic cycle is still in flight are skipped by the
// per-channel guard, so overlapping passes cannot double-notify.
func (s *Scheduler) ForceUpdate(ctx context.Context) {
	s.log.Info("forced poll requested")
	s.PollAll(ctx)
}

// PollAll runs one pass over every watched channel and waits for the
// cycles it started. Per-channel failures are contained; they never abort
// the pass.
func (s *Scheduler) PollAll(ctx context.Context) {
	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		s.log.Error("list channels", "error", err)
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, ch := range channels {
		if ctx.Err() != nil {
			break
		}
		ch := ch
		g.Go(func() error {
			s.pollChannel(ctx, ch)
			return nil
		})
	}
	_ = g.Wait()
}

// pollChannel runs one cycle for a single channel. The stage order is
// fixed: fetch, filter, commit, notify. State is committed before the first
// notification goes out, so a crash mid-cycle can repeat a delivery but
// never lose one silently and never re-deliver on the next pass.
func (s *Scheduler) pollChannel(ctx context.Context, ch model.Channel) {
	if !s.acquire(ch.ID) {
		s.log.Debug("cycle still in flight, skipping", "channel_id", ch.ID)
		return
	}
	defer s.release(ch.ID)

	ctx, cancel := context.WithTimeout(ctx, s.cycleTimeout)
	defer cancel()

	res, err := s.feeds.Fetch(ctx, ch.ID)
	if err != nil {
		if feed.IsNotFound(err) {
			s.log.Warn("upstream channel missing, flagged for attention", "channel_id", ch.ID)
			if err := s.store.SetChannelGone(ctx, ch.ID, true); err != nil && !errors.Is(err, storage.ErrNotFound) {
				s.log.Error("flag missing channel", "channel_id", ch.ID, "error", err)
			}
			return
		}
		s.log.Error("fetch feed", "channel_id", ch.ID, "error", err)
		return
	}

	prev, err := s.store.LoadDedupState(ctx, ch.ID)
	if err != nil {
		s.log.Error("load dedup state", "channel_id", ch.ID, "error", err)
		return
	}

	fresh, next := dedup.Filter(res.Items, prev)

	if err := s.store.CommitDedupState(ctx, ch.ID, next); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Debug("channel unsubscribed mid-cycle", "channel_id", ch.ID)
		} else {
			s.log.Error("commit dedup state", "channel_id", ch.ID, "error", err)
		}
		return
	}

	s.refreshMetadata(ctx, ch, res.Title)

	if len(fresh) == 0 {
		return
	}

	targets, err := s.store.ListTargets(ctx, ch.ID)
	if err != nil {
		s.log.Error("list targets", "channel_id", ch.ID, "error", err)
		return
	}
	if len(targets) == 0 {
		return
	}

	title := res.Title
	if title == "" {
		title = ch.Title
	}

	sent, failed := 0, 0
	for _, item := range fresh {
		for _, d := range s.notifier.Notify(ctx, title, item, targets) {
			if d.Err != nil {
				failed++
			} else {
				sent++
			}
		}
	}
	s.log.Info("notified new uploads",
		"channel_id", ch.ID,
		"items", len(fresh),
		"sent", sent,
		"failed", failed,
	)
}

// refreshMetadata clears the missing-upstream flag and refreshes the cached
// title after a successful fetch. Both are cosmetic, so failures are logged
// and the cycle moves on.
func (s *Scheduler) refreshMetadata(ctx context.Context, ch model.Channel, title string) {
	if ch.Gone() {
		s.log.Info("upstream channel is back", "channel_id", ch.ID)
		if err := s.store.SetChannelGone(ctx, ch.ID, false); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("clear missing flag", "channel_id", ch.ID, "error", err)
		}
	}
	if title != "" && title != ch.Title {
		if err := s.store.UpdateChannelTitle(ctx, ch.ID, title); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("refresh channel title", "channel_id", ch.ID, "error", err)
		}
	}
}

func (s *Scheduler) acquire(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[channelID]; busy {
		return false
	}
	s.inflight[channelID] = struct{}{}
	return true
}

func (s *Scheduler) release(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, channelID)
}
