package live

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"annfeed/internal/domain"
	"annfeed/internal/feed"
	"annfeed/internal/util"
)

// Replay pushes archived records into a Sink oldest first at a fixed pace,
// standing in for a live channel when replaying a past day.
type Replay struct {
	recs   []domain.Announcement
	pace   time.Duration
	sink   Sink
	status StatusFunc
	log    *slog.Logger
}

// NewReplay creates a Replay over a copy of recs.
func NewReplay(recs []domain.Announcement, pace time.Duration, sink Sink, status StatusFunc, log *slog.Logger) *Replay {
	if log == nil {
		log = util.Discard()
	}
	ordered := append([]domain.Announcement(nil), recs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, oki := ordered[i].Time()
		tj, okj := ordered[j].Time()
		if oki != okj {
			return !oki
		}
		return ti.Before(tj)
	})
	return &Replay{recs: ordered, pace: pace, sink: sink, status: status, log: log}
}

// Run delivers every record and returns, or returns ctx.Err() if cancelled
// first. It reports merged counts when done.
func (r *Replay) Run(ctx context.Context) error {
	r.status.report(feed.LiveConnected)
	defer r.status.report(feed.LiveDisconnected)

	merged := 0
	for i, rec := range r.recs {
		if i > 0 && r.pace > 0 {
			if err := util.Sleep(ctx, r.pace); err != nil {
				return err
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.sink.Merge(rec) {
			merged++
		}
	}
	r.log.Info("replay finished", "records", len(r.recs), "merged", merged)
	return nil
}
