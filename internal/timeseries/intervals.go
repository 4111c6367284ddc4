package timeseries

import (
	"fmt"
	"time"

	"github.com/corvex/exchange-core/internal/types"
)

var intervalDurations = map[types.Interval]time.Duration{
	types.Interval15s:   15 * time.Second,
	types.Interval30s:   30 * time.Second,
	types.Interval45s:   45 * time.Second,
	types.Interval1Min:  time.Minute,
	types.Interval5Min:  5 * time.Minute,
	types.Interval15Min: 15 * time.Minute,
	types.Interval30Min: 30 * time.Minute,
	types.Interval1Hr:   time.Hour,
	types.Interval4Hr:   4 * time.Hour,
	types.Interval1Day:  24 * time.Hour,
	types.Interval1Week: 7 * 24 * time.Hour,
}

// ParseInterval validates an interval token.
func ParseInterval(s string) (types.Interval, error) {
	interval := types.Interval(s)
	if _, ok := intervalDurations[interval]; !ok {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return interval, nil
}

// IntervalDuration returns the wall-clock width of an interval.
func IntervalDuration(interval types.Interval) time.Duration {
	return intervalDurations[interval]
}

// Intervals lists every supported interval token, shortest first.
func Intervals() []types.Interval {
	return []types.Interval{
		types.Interval15s, types.Interval30s, types.Interval45s,
		types.Interval1Min, types.Interval5Min, types.Interval15Min,
		types.Interval30Min, types.Interval1Hr, types.Interval4Hr,
		types.Interval1Day, types.Interval1Week,
	}
}

// AlignStart floors t to the interval boundary, measured in whole intervals
// since the Unix epoch so every run of the aggregator agrees on window
// edges.
func AlignStart(t time.Time, interval types.Interval) time.Time {
	d := int64(IntervalDuration(interval) / time.Second)
	sec := t.Unix()
	return time.Unix(sec-((sec%d)+d)%d, 0).UTC()
}
