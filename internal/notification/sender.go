// File: internal/notification/sender.go
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/homesentry/notifier/internal/models"
)

// Channel names in fixed registration order
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
	ChannelVoice = "voice"
)

// Sender defines the contract every notification channel implements.
// Send must not return a nil result and must not propagate transport
// errors; failures are reported through the result.
type Sender interface {
	// Name returns the channel name
	Name() string

	// Initialize performs one-time setup. It is idempotent; a failure
	// excludes the channel from dispatch for the process lifetime.
	Initialize() error

	// Send formats and dispatches one notification
	Send(ctx context.Context, event *models.DetectionEvent) *models.DeliveryResult

	// TestConnection performs a lightweight reachability check
	TestConnection(ctx context.Context) bool

	// Statistics returns the channel's accumulated counters
	Statistics() models.ChannelStatistics

	// Shutdown releases channel resources
	Shutdown()
}

// channelStats wraps per-channel statistics with its own lock. Each
// sender records into its own instance, so there is no cross-channel
// contention.
type channelStats struct {
	mu    sync.Mutex
	stats *models.ChannelStatistics
}

func newChannelStats(channel string) *channelStats {
	return &channelStats{stats: models.NewChannelStatistics(channel)}
}

func (cs *channelStats) record(result models.DeliveryResult) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.stats.Record(result)
}

func (cs *channelStats) snapshot() models.ChannelStatistics {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.stats.Snapshot()
}

// successResult builds a successful delivery result and records it
func (cs *channelStats) successResult(channel, message string, started time.Time) *models.DeliveryResult {
	result := models.DeliveryResult{
		Channel:   channel,
		Success:   true,
		Status:    models.StatusSent,
		Timestamp: time.Now(),
		Message:   message,
		Latency:   time.Since(started),
	}
	cs.record(result)
	return &result
}

// failureResult builds a failed delivery result and records it
func (cs *channelStats) failureResult(channel, errMsg string, started time.Time) *models.DeliveryResult {
	result := models.DeliveryResult{
		Channel:      channel,
		Success:      false,
		Status:       models.StatusFailed,
		Timestamp:    time.Now(),
		ErrorMessage: errMsg,
		Latency:      time.Since(started),
	}
	cs.record(result)
	return &result
}
