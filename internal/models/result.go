package models

import (
	"time"
)

// DeliveryStatus defines the outcome class of a delivery attempt
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"
	StatusFailed    DeliveryStatus = "failed"
	StatusThrottled DeliveryStatus = "throttled"
)

// DeliveryResult records the outcome of one channel delivery attempt.
// Success is true only for a completed delivery; pending and throttled
// results always carry false.
type DeliveryResult struct {
	Channel      string         `json:"channel" db:"channel"`
	Success      bool           `json:"success" db:"success"`
	Status       DeliveryStatus `json:"status" db:"status"`
	Timestamp    time.Time      `json:"timestamp" db:"timestamp"`
	Message      string         `json:"message,omitempty"`
	ErrorMessage string         `json:"error,omitempty" db:"error"`
	Latency      time.Duration  `json:"latency" db:"latency"`
}

// recentHistorySize bounds the per-channel result history
const recentHistorySize = 100

// ChannelStatistics tracks delivery counters for a single channel.
// It is not safe for concurrent use; callers hold their own lock.
type ChannelStatistics struct {
	Channel        string           `json:"channel"`
	AttemptedCount uint64           `json:"attempted_count"`
	SucceededCount uint64           `json:"succeeded_count"`
	FailedCount    uint64           `json:"failed_count"`
	SuccessRate    float64          `json:"success_rate"`
	RecentHistory  []DeliveryResult `json:"-"`
}

// NewChannelStatistics creates statistics for the named channel
func NewChannelStatistics(channel string) *ChannelStatistics {
	return &ChannelStatistics{
		Channel:       channel,
		RecentHistory: make([]DeliveryResult, 0, recentHistorySize),
	}
}

// Record adds a delivery result to the counters and bounded history
func (s *ChannelStatistics) Record(result DeliveryResult) {
	s.AttemptedCount++
	if result.Success {
		s.SucceededCount++
	} else {
		s.FailedCount++
	}
	s.SuccessRate = float64(s.SucceededCount) / float64(s.AttemptedCount)

	if len(s.RecentHistory) >= recentHistorySize {
		copy(s.RecentHistory, s.RecentHistory[1:])
		s.RecentHistory = s.RecentHistory[:recentHistorySize-1]
	}
	s.RecentHistory = append(s.RecentHistory, result)
}

// Snapshot returns a copy safe to hand out to callers. SuccessRate
// stays zero until something has been attempted, never NaN.
func (s *ChannelStatistics) Snapshot() ChannelStatistics {
	snap := ChannelStatistics{
		Channel:        s.Channel,
		AttemptedCount: s.AttemptedCount,
		SucceededCount: s.SucceededCount,
		FailedCount:    s.FailedCount,
		SuccessRate:    s.SuccessRate,
	}
	snap.RecentHistory = make([]DeliveryResult, len(s.RecentHistory))
	copy(snap.RecentHistory, s.RecentHistory)
	return snap
}

// DeliveryRecord is a persisted delivery attempt, linked to its event
type DeliveryRecord struct {
	ID        string         `json:"id" db:"id"`
	EventID   string         `json:"event_id" db:"event_id"`
	Channel   string         `json:"channel" db:"channel"`
	Status    DeliveryStatus `json:"status" db:"status"`
	Error     *string        `json:"error,omitempty" db:"error"`
	LatencyMS int64          `json:"latency_ms" db:"latency_ms"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
