// File: internal/notification/manager_test.go
package notification

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homesentry/notifier/internal/config"
	"github.com/homesentry/notifier/internal/models"
)

// mockSender is an in-memory Sender used to observe manager behavior
type mockSender struct {
	name  string
	fail  bool
	delay time.Duration
	stats *channelStats

	mu   sync.Mutex
	sent []*models.DetectionEvent
}

func newMockSender(name string) *mockSender {
	return &mockSender{
		name:  name,
		stats: newChannelStats(name),
	}
}

func (ms *mockSender) Name() string      { return ms.name }
func (ms *mockSender) Initialize() error { return nil }

func (ms *mockSender) Send(ctx context.Context, event *models.DetectionEvent) *models.DeliveryResult {
	started := time.Now()
	if ms.delay > 0 {
		time.Sleep(ms.delay)
	}

	ms.mu.Lock()
	ms.sent = append(ms.sent, event)
	ms.mu.Unlock()

	if ms.fail {
		return ms.stats.failureResult(ms.name, "simulated failure", started)
	}
	return ms.stats.successResult(ms.name, "delivered", started)
}

func (ms *mockSender) TestConnection(ctx context.Context) bool { return !ms.fail }

func (ms *mockSender) Statistics() models.ChannelStatistics { return ms.stats.snapshot() }

func (ms *mockSender) Shutdown() {}

func (ms *mockSender) sentEvents() []*models.DetectionEvent {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]*models.DetectionEvent, len(ms.sent))
	copy(out, ms.sent)
	return out
}

func testConfig(cooldown time.Duration, maxPerHour, queueSize int) *config.NotificationConfig {
	return &config.NotificationConfig{
		Enabled:             true,
		CooldownPeriod:      cooldown,
		MaxPerHour:          maxPerHour,
		QueueSize:           queueSize,
		NotificationTimeout: 5 * time.Second,
	}
}

// newTestManager builds a manager with mock senders in place of the
// real channels. All real channels stay unconfigured and drop out at
// registration; they are cleared so statistics only cover the mocks.
func newTestManager(cfg *config.NotificationConfig, senders ...Sender) *Manager {
	m := NewManager(cfg, nil, nil)
	m.senders = senders
	m.disabled = nil
	return m
}

func testEvent(priority models.Priority) *models.DetectionEvent {
	return &models.DetectionEvent{
		EventType:       "motion_detected",
		Timestamp:       time.Now(),
		Priority:        priority,
		DetectedObjects: []string{"person"},
		ZoneName:        "Front Door",
	}
}

func TestNotifySyncDeliversToAllChannels(t *testing.T) {
	email := newMockSender(ChannelEmail)
	sms := newMockSender(ChannelSMS)
	m := newTestManager(testConfig(0, 100, 10), email, sms)

	results, err := m.Notify(context.Background(), testEvent(models.PriorityMedium), &NotifyOptions{Sync: true})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[ChannelEmail].Success)
	assert.Equal(t, models.StatusSent, results[ChannelEmail].Status)
	assert.True(t, results[ChannelSMS].Success)

	assert.Len(t, email.sentEvents(), 1)
	assert.Len(t, sms.sentEvents(), 1)

	t.Logf("✓ Sync delivery reached both channels")
}

func TestNotifyChannelFailureIsIsolated(t *testing.T) {
	email := newMockSender(ChannelEmail)
	email.fail = true
	sms := newMockSender(ChannelSMS)
	push := newMockSender(ChannelPush)
	m := newTestManager(testConfig(0, 100, 10), email, sms, push)

	results, err := m.Notify(context.Background(), testEvent(models.PriorityMedium), &NotifyOptions{Sync: true})
	require.NoError(t, err, "channel failures must not surface as errors")

	assert.False(t, results[ChannelEmail].Success)
	assert.Equal(t, models.StatusFailed, results[ChannelEmail].Status)
	assert.Equal(t, "simulated failure", results[ChannelEmail].ErrorMessage)

	assert.True(t, results[ChannelSMS].Success, "later channels must still be attempted")
	assert.True(t, results[ChannelPush].Success)

	t.Logf("✓ Failing channel did not block the others")
}

func TestNotifyThrottled(t *testing.T) {
	email := newMockSender(ChannelEmail)
	m := newTestManager(testConfig(5*time.Minute, 100, 10), email)

	_, err := m.Notify(context.Background(), testEvent(models.PriorityMedium), &NotifyOptions{Sync: true})
	require.NoError(t, err)
	require.Len(t, m.History(), 1)

	results, err := m.Notify(context.Background(), testEvent(models.PriorityMedium), &NotifyOptions{Sync: true})
	require.NoError(t, err)

	require.Contains(t, results, ChannelEmail)
	assert.False(t, results[ChannelEmail].Success)
	assert.Equal(t, models.StatusThrottled, results[ChannelEmail].Status)
	assert.Contains(t, results[ChannelEmail].Message, "cooldown active")

	assert.Len(t, email.sentEvents(), 1, "throttled call must not reach the sender")
	assert.Len(t, m.History(), 1, "throttled call must not be recorded in history")
}

func TestNotifyCriticalBypassesThrottle(t *testing.T) {
	email := newMockSender(ChannelEmail)
	m := newTestManager(testConfig(time.Hour, 1, 10), email)

	_, err := m.Notify(context.Background(), testEvent(models.PriorityMedium), &NotifyOptions{Sync: true})
	require.NoError(t, err)

	results, err := m.Notify(context.Background(), testEvent(models.PriorityCritical), &NotifyOptions{Sync: true})
	require.NoError(t, err)
	assert.True(t, results[ChannelEmail].Success, "critical events must bypass throttling")

	assert.Len(t, email.sentEvents(), 2)
}

func TestNotifyForceBypassesThrottle(t *testing.T) {
	email := newMockSender(ChannelEmail)
	m := newTestManager(testConfig(time.Hour, 1, 10), email)

	_, err := m.Notify(context.Background(), testEvent(models.PriorityLow), &NotifyOptions{Sync: true})
	require.NoError(t, err)

	results, err := m.Notify(context.Background(), testEvent(models.PriorityLow), &NotifyOptions{Sync: true, Force: true})
	require.NoError(t, err)
	assert.True(t, results[ChannelEmail].Success, "forced sends must bypass throttling")
}

func TestNotifyInvalidEvent(t *testing.T) {
	m := newTestManager(testConfig(0, 100, 10), newMockSender(ChannelEmail))

	_, err := m.Notify(context.Background(), &models.DetectionEvent{}, nil)
	require.Error(t, err, "an event without a type must be rejected")
}

func TestNotifyDisabled(t *testing.T) {
	cfg := testConfig(0, 100, 10)
	cfg.Enabled = false
	email := newMockSender(ChannelEmail)
	m := newTestManager(cfg, email)

	results, err := m.Notify(context.Background(), testEvent(models.PriorityHigh), &NotifyOptions{Sync: true})
	require.NoError(t, err)

	require.Contains(t, results, "manager")
	assert.False(t, results["manager"].Success)
	assert.Empty(t, email.sentEvents())
}

func TestNotifyChannelSubset(t *testing.T) {
	email := newMockSender(ChannelEmail)
	sms := newMockSender(ChannelSMS)
	push := newMockSender(ChannelPush)
	m := newTestManager(testConfig(0, 100, 10), email, sms, push)

	results, err := m.Notify(context.Background(), testEvent(models.PriorityMedium), &NotifyOptions{
		Sync:     true,
		Channels: []string{ChannelPush, ChannelEmail, "pager"},
	})
	require.NoError(t, err)

	assert.Len(t, results, 2, "unknown channels are ignored")
	assert.Contains(t, results, ChannelEmail)
	assert.Contains(t, results, ChannelPush)
	assert.Empty(t, sms.sentEvents(), "unselected channel must not be attempted")
}

func TestHistoryBounded(t *testing.T) {
	email := newMockSender(ChannelEmail)
	m := newTestManager(testConfig(0, 1000, 10), email)

	for i := 0; i < historySize+20; i++ {
		event := testEvent(models.PriorityLow)
		event.EventType = fmt.Sprintf("event_%d", i)
		_, err := m.Notify(context.Background(), event, &NotifyOptions{Sync: true})
		require.NoError(t, err)
	}

	history := m.History()
	require.Len(t, history, historySize, "history must stay bounded")

	// Oldest entries are evicted first
	assert.Equal(t, "event_20", history[0].Event.EventType)
	assert.Equal(t, fmt.Sprintf("event_%d", historySize+19), history[historySize-1].Event.EventType)

	t.Logf("✓ History bounded at %d entries with oldest-first eviction", historySize)
}

func TestAsyncEnqueueDropsOldest(t *testing.T) {
	m := newTestManager(testConfig(0, 1000, 3), newMockSender(ChannelEmail))
	// Worker not started, so jobs pile up in the queue

	for i := 0; i < 5; i++ {
		event := testEvent(models.PriorityLow)
		event.EventType = fmt.Sprintf("event_%d", i)
		results, err := m.Notify(context.Background(), event, nil)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, results[ChannelEmail].Status)
		assert.False(t, results[ChannelEmail].Success, "a queued job is not a delivery")
	}

	require.Len(t, m.queue, 3, "queue must stay bounded")

	// The two oldest jobs were shed
	first := <-m.queue
	assert.Equal(t, "event_2", first.event.EventType)
	second := <-m.queue
	assert.Equal(t, "event_3", second.event.EventType)
	third := <-m.queue
	assert.Equal(t, "event_4", third.event.EventType)

	t.Logf("✓ Queue overflow sheds oldest pending jobs")
}

func TestWorkerDrainsQueueInOrder(t *testing.T) {
	email := newMockSender(ChannelEmail)
	m := newTestManager(testConfig(0, 1000, 10), email)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	for i := 0; i < 5; i++ {
		event := testEvent(models.PriorityLow)
		event.EventType = fmt.Sprintf("event_%d", i)
		_, err := m.Notify(context.Background(), event, nil)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(email.sentEvents()) == 5
	}, 2*time.Second, 10*time.Millisecond, "worker must drain all queued jobs")

	sent := email.sentEvents()
	for i, event := range sent {
		assert.Equal(t, fmt.Sprintf("event_%d", i), event.EventType, "jobs must be delivered FIFO")
	}
}

func TestStartStop(t *testing.T) {
	m := newTestManager(testConfig(0, 100, 10), newMockSender(ChannelEmail))

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.IsHealthy())

	err := m.Start(context.Background())
	require.Error(t, err, "second start must be rejected")

	require.NoError(t, m.Stop())
	assert.False(t, m.IsHealthy())

	require.NoError(t, m.Stop(), "stop must be idempotent")
}

func TestStatisticsSnapshot(t *testing.T) {
	email := newMockSender(ChannelEmail)
	sms := newMockSender(ChannelSMS)
	sms.fail = true
	m := newTestManager(testConfig(0, 100, 10), email, sms)

	for i := 0; i < 3; i++ {
		_, err := m.Notify(context.Background(), testEvent(models.PriorityHigh), &NotifyOptions{Sync: true})
		require.NoError(t, err)
	}

	stats := m.Statistics()
	assert.True(t, stats.Enabled)
	assert.Equal(t, 0, stats.QueueDepth)
	assert.Equal(t, 3, stats.Throttle.SentInCurrentHour)

	require.Contains(t, stats.Channels, ChannelEmail)
	assert.Equal(t, uint64(3), stats.Channels[ChannelEmail].AttemptedCount)
	assert.Equal(t, uint64(3), stats.Channels[ChannelEmail].SucceededCount)
	assert.Equal(t, 1.0, stats.Channels[ChannelEmail].SuccessRate)
	assert.Equal(t, uint64(3), stats.Channels[ChannelSMS].FailedCount)
	assert.Equal(t, 0.0, stats.Channels[ChannelSMS].SuccessRate)

	assert.Equal(t, 3, stats.History.Total)
	assert.Equal(t, 3, stats.History.Sent, "a cycle with any success counts as sent")
	assert.Equal(t, 3, stats.History.PriorityDistribution["high"])
	require.NotNil(t, stats.History.LastNotification)

	t.Logf("✓ Statistics snapshot is consistent")
}

func TestStatisticsIncludesFailedInitializeChannel(t *testing.T) {
	cfg := testConfig(0, 100, 10)
	cfg.Email.Enabled = true // credentials left empty, so initialization fails
	m := NewManager(cfg, nil, nil)

	assert.NotContains(t, m.EnabledChannels(), ChannelEmail, "failed channel must not be dispatched to")

	results, err := m.Notify(context.Background(), testEvent(models.PriorityMedium), &NotifyOptions{Sync: true})
	require.NoError(t, err)
	assert.NotContains(t, results, ChannelEmail)

	stats := m.Statistics()
	require.Contains(t, stats.Channels, ChannelEmail, "failed channel must still appear in statistics")
	assert.Equal(t, uint64(0), stats.Channels[ChannelEmail].AttemptedCount)
	assert.Equal(t, 0.0, stats.Channels[ChannelEmail].SuccessRate)

	t.Logf("✓ Channel with failed initialization reported with zero attempts")
}

func TestSendTestNotification(t *testing.T) {
	email := newMockSender(ChannelEmail)
	sms := newMockSender(ChannelSMS)
	m := newTestManager(testConfig(time.Hour, 1, 10), email, sms)

	// Exhaust the throttle first; the test send must not be affected
	_, err := m.Notify(context.Background(), testEvent(models.PriorityLow), &NotifyOptions{Sync: true})
	require.NoError(t, err)

	results := m.SendTestNotification(context.Background(), "")
	require.Len(t, results, 2)
	assert.True(t, results[ChannelEmail].Success)
	assert.True(t, results[ChannelSMS].Success)

	sent := email.sentEvents()
	require.Len(t, sent, 2)
	assert.Equal(t, "system_test", sent[1].EventType)
	assert.Equal(t, models.PriorityLow, sent[1].Priority)

	results = m.SendTestNotification(context.Background(), ChannelSMS)
	require.Len(t, results, 1)
	assert.Contains(t, results, ChannelSMS)
}

func TestUpdateSettings(t *testing.T) {
	m := newTestManager(testConfig(time.Hour, 10, 10), newMockSender(ChannelEmail))

	_, err := m.Notify(context.Background(), testEvent(models.PriorityLow), &NotifyOptions{Sync: true})
	require.NoError(t, err)

	cooldown := time.Duration(0)
	m.UpdateSettings(&cooldown, nil)

	results, err := m.Notify(context.Background(), testEvent(models.PriorityLow), &NotifyOptions{Sync: true})
	require.NoError(t, err)
	assert.True(t, results[ChannelEmail].Success, "zero cooldown must admit immediately")

	stats := m.Statistics()
	assert.Equal(t, time.Duration(0), stats.Settings.CooldownPeriod)
	assert.Equal(t, 10, stats.Settings.MaxPerHour)
}

func TestResetThrottling(t *testing.T) {
	email := newMockSender(ChannelEmail)
	m := newTestManager(testConfig(time.Hour, 1, 10), email)

	_, err := m.Notify(context.Background(), testEvent(models.PriorityLow), &NotifyOptions{Sync: true})
	require.NoError(t, err)

	results, err := m.Notify(context.Background(), testEvent(models.PriorityLow), &NotifyOptions{Sync: true})
	require.NoError(t, err)
	require.Equal(t, models.StatusThrottled, results[ChannelEmail].Status)

	m.ResetThrottling()

	results, err = m.Notify(context.Background(), testEvent(models.PriorityLow), &NotifyOptions{Sync: true})
	require.NoError(t, err)
	assert.True(t, results[ChannelEmail].Success, "reset must clear the suppression state")
}
