package models

import (
	"fmt"
	"time"
)

// TimeWindow is the lookback window of one investigation. Start and end are
// always timezone-aware UTC; naive inputs are coerced.
type TimeWindow struct {
	// Window is the human-readable duration string, e.g. "15m".
	Window    string    `json:"window"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// DefaultWindow is the lookback used when the caller does not specify one.
const DefaultWindow = "15m"

// NewTimeWindow builds a window ending at end with the given human duration.
// An unparseable window string falls back to DefaultWindow.
func NewTimeWindow(window string, end time.Time) TimeWindow {
	if window == "" {
		window = DefaultWindow
	}
	d, err := time.ParseDuration(window)
	if err != nil || d <= 0 {
		window = DefaultWindow
		d, _ = time.ParseDuration(DefaultWindow)
	}
	end = end.UTC()
	return TimeWindow{
		Window:    window,
		StartTime: end.Add(-d),
		EndTime:   end,
	}
}

// WithBounds returns a window with explicit bounds, keeping a human-readable
// label derived from the span. Used by playbooks that re-anchor the window to
// a resource lifetime (e.g. Job start/completion).
func WithBounds(start, end time.Time) TimeWindow {
	start = start.UTC()
	end = end.UTC()
	if !end.After(start) {
		end = start.Add(time.Minute)
	}
	span := end.Sub(start).Round(time.Minute)
	if span < time.Minute {
		span = time.Minute
	}
	return TimeWindow{
		Window:    span.String(),
		StartTime: start,
		EndTime:   end,
	}
}

// Duration returns the window span.
func (w TimeWindow) Duration() time.Duration {
	return w.EndTime.Sub(w.StartTime)
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("%s (%s → %s)", w.Window,
		w.StartTime.Format(time.RFC3339), w.EndTime.Format(time.RFC3339))
}
