package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"annfeed/internal/util"
)

// Poller refreshes a Feed periodically. It polls faster while the exchange
// session is open, and a tick that fires during a refresh is skipped.
type Poller struct {
	feed     *Feed
	cal      *util.MarketCalendar
	open     time.Duration
	closed   time.Duration
	log      *slog.Logger
	now      func() time.Time
	repeater *util.Repeater
	session  atomic.Int32 // 0 unknown, 1 open, 2 closed
}

// NewPoller creates a Poller. open is the interval during market hours and
// closed the interval otherwise.
func NewPoller(f *Feed, open, closed time.Duration, log *slog.Logger) *Poller {
	if log == nil {
		log = util.Discard()
	}
	p := &Poller{
		feed:   f,
		cal:    util.NewMarketCalendar(),
		open:   open,
		closed: closed,
		log:    log,
		now:    time.Now,
	}
	p.repeater = util.NewRepeater(p.interval, p.poll)
	return p
}

func (p *Poller) interval() time.Duration {
	now := p.now()
	state := int32(2)
	if p.cal.IsMarketOpen(now) {
		state = 1
	}
	if prev := p.session.Swap(state); prev != state {
		if state == 1 {
			p.log.Info("market open, polling faster", "interval", p.open)
		} else {
			p.log.Info("market closed", "interval", p.closed, "next_open", p.cal.NextOpen(now))
		}
	}
	return p.cal.PollInterval(now, p.open, p.closed)
}

func (p *Poller) poll(ctx context.Context) {
	err := p.feed.Refresh(ctx)
	switch {
	case err == nil:
		p.log.Debug("poll refreshed feed", "total", p.feed.Total())
	case errors.Is(err, ErrStale), errors.Is(err, context.Canceled):
	default:
		p.log.Warn("poll failed", "error", err)
	}
}

// Start begins polling until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.repeater.Start(ctx)
}

// Stop ends polling.
func (p *Poller) Stop() {
	p.repeater.Stop()
}

// Skipped reports how many ticks were dropped because a refresh was still
// running.
func (p *Poller) Skipped() int64 {
	return p.repeater.Skipped()
}
