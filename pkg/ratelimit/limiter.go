package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"igdownloader/pkg/models"
)

// Clock returns the current time
type Clock func() time.Time

// Decision is the outcome of a CheckAndReserve call
type Decision struct {
	Allowed bool
	// Window names the limiting window when denied ("minute" or "hour")
	Window string
	// Limit is the configured maximum of the limiting window
	Limit int
	// Reason is a human-readable explanation when denied
	Reason string
	// RetryAt is when the limiting window rotates
	RetryAt time.Time
}

type window struct {
	label  string
	length time.Duration
	limit  int
	count  int
	start  time.Time
}

// rotate lazily resets the counter once the window has elapsed
func (w *window) rotate(now time.Time) {
	if now.Sub(w.start) >= w.length {
		w.count = 0
		w.start = now
	}
}

// FixedWindow enforces independent per-minute and per-hour ceilings.
// Check and increment happen under one lock so concurrent callers cannot overrun a window.
type FixedWindow struct {
	mu     sync.Mutex
	now    Clock
	minute window
	hour   window
}

// Option configures a FixedWindow
type Option func(*FixedWindow)

// WithClock replaces time.Now, mainly for tests
func WithClock(c Clock) Option {
	return func(fw *FixedWindow) {
		fw.now = c
	}
}

// NewFixedWindow creates a limiter allowing perMinute requests per 60s and perHour per 3600s
func NewFixedWindow(perMinute, perHour int, opts ...Option) *FixedWindow {
	fw := &FixedWindow{now: time.Now}
	for _, opt := range opts {
		opt(fw)
	}

	start := fw.now()
	fw.minute = window{label: "Minute", length: time.Minute, limit: perMinute, start: start}
	fw.hour = window{label: "Hour", length: time.Hour, limit: perHour, start: start}
	return fw
}

// CheckAndReserve rotates expired windows, then either denies or counts the request in both windows
func (fw *FixedWindow) CheckAndReserve() Decision {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := fw.now()
	fw.minute.rotate(now)
	fw.hour.rotate(now)

	for _, w := range []*window{&fw.minute, &fw.hour} {
		if w.count >= w.limit {
			return Decision{
				Allowed: false,
				Window:  windowName(w),
				Limit:   w.limit,
				Reason:  fmt.Sprintf("%s limit of %d requests exceeded", w.label, w.limit),
				RetryAt: w.start.Add(w.length),
			}
		}
	}

	fw.minute.count++
	fw.hour.count++
	return Decision{Allowed: true}
}

func windowName(w *window) string {
	if w.length == time.Hour {
		return "hour"
	}
	return "minute"
}

// Snapshot returns the current counters without reserving anything
func (fw *FixedWindow) Snapshot() models.RateLimitInfo {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	now := fw.now()
	fw.minute.rotate(now)
	fw.hour.rotate(now)

	return models.RateLimitInfo{
		RequestsThisMinute: fw.minute.count,
		RequestsThisHour:   fw.hour.count,
		LimitPerMinute:     fw.minute.limit,
		LimitPerHour:       fw.hour.limit,
		MinuteResetsAt:     fw.minute.start.Add(fw.minute.length),
		HourResetsAt:       fw.hour.start.Add(fw.hour.length),
	}
}
