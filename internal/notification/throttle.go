// File: internal/notification/throttle.go
package notification

import (
	"fmt"
	"sync"
	"time"
)

// ThrottleState is the mutable suppression state owned by the Manager.
// Snapshots of it are exposed through Statistics.
type ThrottleState struct {
	LastSentAt        time.Time `json:"last_sent_at"`
	HourWindowStart   time.Time `json:"hour_window_start"`
	SentInCurrentHour int       `json:"sent_in_current_hour"`
}

// ThrottleSettings holds the configured suppression policy
type ThrottleSettings struct {
	CooldownPeriod time.Duration `json:"cooldown_period"`
	MaxPerHour     int           `json:"max_per_hour"`
}

// throttle applies the cooldown and hourly-cap policy. The check and the
// state update happen under one lock so near-simultaneous callers cannot
// both pass the cooldown check.
type throttle struct {
	mu       sync.Mutex
	settings ThrottleSettings
	state    ThrottleState
}

func newThrottle(cooldown time.Duration, maxPerHour int) *throttle {
	return &throttle{
		settings: ThrottleSettings{
			CooldownPeriod: cooldown,
			MaxPerHour:     maxPerHour,
		},
	}
}

// Admit decides whether a send may proceed and, when it may, commits the
// state update in the same critical section. A bypassed send (critical
// priority or force) is admitted unconditionally but still counts as the
// most recent send. Returns the suppression reason when denied.
func (t *throttle) Admit(now time.Time, bypass bool) (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Roll the hourly window when the anchor is more than an hour old
	if now.Sub(t.state.HourWindowStart) > time.Hour {
		t.state.HourWindowStart = now
		t.state.SentInCurrentHour = 0
	}

	if !bypass {
		if !t.state.LastSentAt.IsZero() {
			elapsed := now.Sub(t.state.LastSentAt)
			if elapsed < t.settings.CooldownPeriod {
				remaining := t.settings.CooldownPeriod - elapsed
				return false, fmt.Sprintf("cooldown active (%.1fs remaining)", remaining.Seconds())
			}
		}

		if t.state.SentInCurrentHour >= t.settings.MaxPerHour {
			return false, fmt.Sprintf("hourly limit reached (%d/%d)",
				t.state.SentInCurrentHour, t.settings.MaxPerHour)
		}
	}

	t.state.LastSentAt = now
	t.state.SentInCurrentHour++
	return true, ""
}

// Reset clears the throttle state to its initial values
func (t *throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = ThrottleState{}
}

// UpdateSettings replaces the cooldown and/or hourly cap. Counters
// accumulated under the old settings are kept.
func (t *throttle) UpdateSettings(cooldown *time.Duration, maxPerHour *int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cooldown != nil {
		t.settings.CooldownPeriod = *cooldown
	}
	if maxPerHour != nil {
		t.settings.MaxPerHour = *maxPerHour
	}
}

// Snapshot returns copies of the current settings and state
func (t *throttle) Snapshot() (ThrottleSettings, ThrottleState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings, t.state
}
