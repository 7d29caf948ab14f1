// Package clock implements the per-player countdown clock (spec.md §3's
// Timer and ClockSettings), adapted from the teacher's
// internal/game/timer.go and internal/game/timecontrol.go: same
// saturating-at-zero elapse semantics, but owned and ticked by the Engine
// rather than by a per-session background goroutine, since there is exactly
// one event loop driving every game here (spec.md §4.1's main cycle, step 1).
package clock

import "fmt"

// Timer holds the milliseconds remaining for one player.
type Timer struct {
	RemainingMs int64
}

// NewTimer creates a Timer starting at the given number of milliseconds.
func NewTimer(initialMs int64) Timer {
	if initialMs < 0 {
		initialMs = 0
	}
	return Timer{RemainingMs: initialMs}
}

// Elapse subtracts ms from the remaining time, saturating at zero (spec.md
// P7: "Timer::elapse(d) saturates at zero and is monotone non-increasing").
func (t *Timer) Elapse(ms int64) {
	t.RemainingMs -= ms
	if t.RemainingMs < 0 {
		t.RemainingMs = 0
	}
}

// Expired reports whether the timer has run out.
func (t Timer) Expired() bool {
	return t.RemainingMs <= 0
}

// String renders the timer as minutes:seconds, per spec.md §3.
func (t Timer) String() string {
	totalSeconds := t.RemainingMs / 1000
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// Settings is a game's clock configuration: initial time and increment,
// derived from the authoritative clock record (spec.md §3's ClockSettings).
type Settings struct {
	LimitMinutes     int
	IncrementSeconds int
}

// SettingsFromMillis derives ClockSettings from a Lichess-style clock
// record (initial/increment both in milliseconds).
func SettingsFromMillis(initialMs, incrementMs int64) Settings {
	return Settings{
		LimitMinutes:     int(initialMs / 60000),
		IncrementSeconds: int(incrementMs / 1000),
	}
}
