// File: internal/notification/throttle_test.go
package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleCooldown(t *testing.T) {
	th := newThrottle(5*time.Minute, 10)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	admitted, reason := th.Admit(base, false)
	require.True(t, admitted, "first send must be admitted")
	require.Empty(t, reason)

	// Within the cooldown window
	admitted, reason = th.Admit(base.Add(90*time.Second), false)
	assert.False(t, admitted, "send inside cooldown must be suppressed")
	assert.Contains(t, reason, "cooldown active")

	// Exactly at the boundary the cooldown has elapsed
	admitted, _ = th.Admit(base.Add(5*time.Minute), false)
	assert.True(t, admitted, "send at cooldown boundary must be admitted")

	t.Logf("✓ Cooldown suppression behaves correctly")
}

func TestThrottleSuppressedSendKeepsState(t *testing.T) {
	th := newThrottle(5*time.Minute, 10)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	admitted, _ := th.Admit(base, false)
	require.True(t, admitted)

	// A suppressed attempt must not push the cooldown forward
	admitted, _ = th.Admit(base.Add(time.Minute), false)
	require.False(t, admitted)

	admitted, _ = th.Admit(base.Add(5*time.Minute), false)
	assert.True(t, admitted, "suppressed attempt must not reset the cooldown anchor")
}

func TestThrottleHourlyCap(t *testing.T) {
	th := newThrottle(0, 3)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		admitted, _ := th.Admit(base.Add(time.Duration(i)*time.Minute), false)
		require.True(t, admitted, "send %d within the cap must be admitted", i+1)
	}

	admitted, reason := th.Admit(base.Add(10*time.Minute), false)
	assert.False(t, admitted, "send over the hourly cap must be suppressed")
	assert.Contains(t, reason, "hourly limit reached (3/3)")

	// A fresh window admits again
	admitted, _ = th.Admit(base.Add(61*time.Minute), false)
	assert.True(t, admitted, "send after the window rolls must be admitted")

	_, state := th.Snapshot()
	assert.Equal(t, 1, state.SentInCurrentHour, "rolled window must restart the counter")

	t.Logf("✓ Hourly cap and window roll behave correctly")
}

func TestThrottleBypassStillCounts(t *testing.T) {
	th := newThrottle(5*time.Minute, 2)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	admitted, _ := th.Admit(base, false)
	require.True(t, admitted)

	// Bypass is admitted inside the cooldown
	admitted, _ = th.Admit(base.Add(time.Minute), true)
	require.True(t, admitted, "bypassed send must be admitted unconditionally")

	// But it counted as the most recent send and against the cap
	_, state := th.Snapshot()
	assert.Equal(t, base.Add(time.Minute), state.LastSentAt)
	assert.Equal(t, 2, state.SentInCurrentHour)

	admitted, reason := th.Admit(base.Add(10*time.Minute), false)
	assert.False(t, admitted)
	assert.Contains(t, reason, "hourly limit reached")

	// Bypass is still admitted past the cap
	admitted, _ = th.Admit(base.Add(11*time.Minute), true)
	assert.True(t, admitted, "bypassed send must ignore the hourly cap")
}

func TestThrottleReset(t *testing.T) {
	th := newThrottle(5*time.Minute, 1)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	admitted, _ := th.Admit(base, false)
	require.True(t, admitted)
	admitted, _ = th.Admit(base.Add(time.Second), false)
	require.False(t, admitted)

	th.Reset()

	admitted, _ = th.Admit(base.Add(2*time.Second), false)
	assert.True(t, admitted, "reset must clear cooldown and counters")

	th.Reset()
	_, state := th.Snapshot()
	assert.Equal(t, ThrottleState{}, state, "reset must be idempotent")
}

func TestThrottleUpdateSettings(t *testing.T) {
	th := newThrottle(5*time.Minute, 10)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	admitted, _ := th.Admit(base, false)
	require.True(t, admitted)

	// Shrinking the cooldown applies immediately
	cooldown := 30 * time.Second
	th.UpdateSettings(&cooldown, nil)

	admitted, _ = th.Admit(base.Add(time.Minute), false)
	assert.True(t, admitted, "shortened cooldown must apply to the next attempt")

	// Lowering the cap below the accumulated count suppresses
	maxPerHour := 1
	th.UpdateSettings(nil, &maxPerHour)
	admitted, reason := th.Admit(base.Add(2*time.Minute), false)
	assert.False(t, admitted)
	assert.Contains(t, reason, "hourly limit reached (2/1)")

	settings, _ := th.Snapshot()
	assert.Equal(t, 30*time.Second, settings.CooldownPeriod)
	assert.Equal(t, 1, settings.MaxPerHour)
}

func TestThrottleConcurrentAdmit(t *testing.T) {
	th := newThrottle(time.Hour, 100)
	now := time.Now()

	const attempts = 50
	var wg sync.WaitGroup
	results := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, _ := th.Admit(now, false)
			results <- admitted
		}()
	}
	wg.Wait()
	close(results)

	admittedCount := 0
	for admitted := range results {
		if admitted {
			admittedCount++
		}
	}

	assert.Equal(t, 1, admittedCount, "exactly one concurrent caller may pass the cooldown check")
	t.Logf("✓ Concurrent admission is atomic")
}
