package filter

import "time"

// DefaultHorizon is the lookback used when none is configured.
const DefaultHorizon = 24 * time.Hour

// Cutoff returns the oldest timestamp still inside the window.
func Cutoff(now time.Time, horizon time.Duration) time.Time {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return now.Add(-horizon)
}

// WithinWindow reports whether ts >= now - horizon. The boundary is inclusive.
func WithinWindow(ts, now time.Time, horizon time.Duration) bool {
	return !ts.Before(Cutoff(now, horizon))
}
