package util

import (
	"time"

	"annfeed/internal/domain"
)

// MarketCalendar knows the NSE/BSE cash-market session (09:15-15:30 IST,
// Monday to Friday). Exchange holidays are not modelled; on a holiday the
// session is reported open and pollers simply run at the faster cadence.
type MarketCalendar struct {
	open  time.Duration // offset from midnight IST
	close time.Duration
}

// NewMarketCalendar creates a calendar for the Indian cash session.
func NewMarketCalendar() *MarketCalendar {
	return &MarketCalendar{
		open:  9*time.Hour + 15*time.Minute,
		close: 15*time.Hour + 30*time.Minute,
	}
}

// IsMarketOpen returns whether the session is open at time t.
func (mc *MarketCalendar) IsMarketOpen(t time.Time) bool {
	t = t.In(domain.IST)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, domain.IST)
	since := t.Sub(midnight)
	return since >= mc.open && since < mc.close
}

// NextOpen returns the next session open at or after t.
func (mc *MarketCalendar) NextOpen(t time.Time) time.Time {
	t = t.In(domain.IST)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, domain.IST)
	for i := 0; i < 8; i++ {
		d := day.AddDate(0, 0, i)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		open := d.Add(mc.open)
		if !open.Before(t) {
			return open
		}
	}
	return time.Time{}
}

// PollInterval picks the faster interval while the session is open.
func (mc *MarketCalendar) PollInterval(t time.Time, open, closed time.Duration) time.Duration {
	if mc.IsMarketOpen(t) && open > 0 {
		return open
	}
	return closed
}
