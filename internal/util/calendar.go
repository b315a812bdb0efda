package util

import (
	"sort"
	"time"

	"quantback/internal/domain"
)

// TradingCalendar is the ordered list of trading days a simulation walks.
// It is derived from observed bar data rather than an exchange holiday
// table: a day is a trading day if any instrument in the universe has a bar
// on it.
type TradingCalendar struct {
	days []time.Time
}

// NewTradingCalendar builds a calendar from the union of bar dates across
// all series, clipped to [start, end] inclusive. Dates are normalized to
// midnight UTC and deduplicated.
func NewTradingCalendar(series map[string]domain.PriceSeries, start, end time.Time) *TradingCalendar {
	seen := make(map[time.Time]struct{})
	for _, s := range series {
		for _, b := range s {
			d := Midnight(b.Timestamp)
			if d.Before(start) || d.After(end) {
				continue
			}
			seen[d] = struct{}{}
		}
	}

	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	return &TradingCalendar{days: days}
}

// Days returns the trading days in ascending order. Callers must not mutate
// the returned slice.
func (tc *TradingCalendar) Days() []time.Time {
	return tc.days
}

// Len returns the number of trading days in the calendar.
func (tc *TradingCalendar) Len() int {
	return len(tc.days)
}

// Midnight truncates t to midnight UTC, the canonical representation of a
// trading date throughout the platform.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
