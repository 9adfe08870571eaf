// File: internal/notification/manager.go
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/homesentry/notifier/internal/config"
	"github.com/homesentry/notifier/internal/metrics"
	"github.com/homesentry/notifier/internal/models"
	"github.com/homesentry/notifier/internal/storage"
	"github.com/homesentry/notifier/pkg/utils"
)

// historySize bounds the global notification history
const historySize = 100

// NotifyOptions controls a single Notify call
type NotifyOptions struct {
	// Channels restricts delivery to a subset of the enabled senders.
	// Empty means all enabled senders.
	Channels []string

	// Force bypasses throttling for this call
	Force bool

	// Sync delivers in the calling goroutine instead of queueing
	Sync bool
}

// deliveryJob is one queued (event, channels) pair awaiting the worker
type deliveryJob struct {
	event    *models.DetectionEvent
	channels []string
}

// HistoryEntry is one recorded notification cycle
type HistoryEntry struct {
	Event     *models.DetectionEvent            `json:"event"`
	Results   map[string]*models.DeliveryResult `json:"results"`
	Timestamp time.Time                         `json:"timestamp"`
}

// Statistics is a point-in-time snapshot of the manager state
type Statistics struct {
	Enabled    bool                                `json:"enabled"`
	Channels   map[string]models.ChannelStatistics `json:"channels"`
	Settings   ThrottleSettings                    `json:"settings"`
	Throttle   ThrottleState                       `json:"throttle"`
	QueueDepth int                                 `json:"queue_depth"`
	History    HistoryStats                        `json:"history"`
}

// HistoryStats summarizes the bounded notification history
type HistoryStats struct {
	Total                int            `json:"total"`
	Sent                 int            `json:"sent"`
	Failed               int            `json:"failed"`
	LastNotification     *time.Time     `json:"last_notification,omitempty"`
	PriorityDistribution map[string]int `json:"priority_distribution"`
}

// Manager coordinates throttling, fan-out, and asynchronous delivery
// across the registered channel senders. It is the only component that
// mutates the throttle state and the global history.
type Manager struct {
	config   *config.NotificationConfig
	logger   *Logger
	metrics  *metrics.Manager
	store    storage.Storage
	throttle *throttle

	mu       sync.Mutex
	history  []HistoryEntry
	senders  []Sender // enabled senders, fixed registration order
	disabled []Sender // senders whose initialization failed; never dispatched, still reported
	running  bool

	queue  chan deliveryJob
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a notification manager and initializes the channel
// senders in fixed order. A sender that fails to initialize is excluded
// from dispatch for the process lifetime. Metrics manager and storage
// are optional; pass nil to disable them.
func NewManager(cfg *config.NotificationConfig, metricsManager *metrics.Manager, store storage.Storage) *Manager {
	m := &Manager{
		config:   cfg,
		logger:   NewLogger("info"),
		metrics:  metricsManager,
		store:    store,
		throttle: newThrottle(cfg.CooldownPeriod, cfg.MaxPerHour),
		history:  make([]HistoryEntry, 0, historySize),
		queue:    make(chan deliveryJob, queueSize(cfg)),
		stopCh:   make(chan struct{}),
	}

	m.registerSenders()

	m.logger.Info("Notification manager initialized", map[string]interface{}{
		"enabled":      cfg.Enabled,
		"channels":     m.EnabledChannels(),
		"cooldown":     cfg.CooldownPeriod.String(),
		"max_per_hour": cfg.MaxPerHour,
	})

	return m
}

func queueSize(cfg *config.NotificationConfig) int {
	if cfg.QueueSize > 0 {
		return cfg.QueueSize
	}
	return 100
}

// registerSenders initializes all channel senders in fixed order
func (m *Manager) registerSenders() {
	candidates := []Sender{
		NewEmailSender(&m.config.Email, m.config.NotificationTimeout, m.logger),
		NewSMSSender(&m.config.SMS, m.config.NotificationTimeout, m.logger),
		NewPushSender(&m.config.Push, m.config.NotificationTimeout, m.logger),
		NewVoiceSender(&m.config.Voice, m.config.NotificationTimeout, m.logger),
	}

	for _, sender := range candidates {
		if err := sender.Initialize(); err != nil {
			m.logger.Warn("Channel disabled, initialization failed", map[string]interface{}{
				"channel": sender.Name(),
				"error":   err.Error(),
			})
			m.disabled = append(m.disabled, sender)
			continue
		}
		m.senders = append(m.senders, sender)
		m.logger.Info("Channel registered", map[string]interface{}{
			"channel": sender.Name(),
		})
	}
}

// Start launches the background delivery worker
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notification manager already running", "")
	}

	m.running = true
	m.wg.Add(1)
	go m.worker(ctx)

	m.logger.Info("Notification manager started")
	return nil
}

// Stop stops the worker and shuts down all senders
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	for _, sender := range m.senders {
		sender.Shutdown()
	}

	m.logger.Info("Notification manager stopped")
	return nil
}

// IsHealthy reports whether the manager is running
func (m *Manager) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// EnabledChannels returns the names of the registered senders in order
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.senders))
	for _, sender := range m.senders {
		names = append(names, sender.Name())
	}
	return names
}

// Notify runs one event through the throttle and, when admitted, fans it
// out to the resolved channels. It returns a result per channel; channel
// failures never surface as errors, only a malformed event does.
func (m *Manager) Notify(ctx context.Context, event *models.DetectionEvent, opts *NotifyOptions) (map[string]*models.DeliveryResult, error) {
	if opts == nil {
		opts = &NotifyOptions{}
	}

	if err := event.Validate(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid detection event", err.Error())
	}

	if event.ID == "" {
		event.ID = utils.GenerateUUID()
	}

	if m.metrics != nil {
		m.metrics.Prometheus().RecordEventReceived(event.EventType, event.Priority.String())
	}

	if !m.config.Enabled {
		m.logger.Info("Notifications disabled")
		return map[string]*models.DeliveryResult{
			"manager": {
				Channel:      "manager",
				Success:      false,
				Status:       models.StatusFailed,
				Timestamp:    time.Now(),
				ErrorMessage: "notifications disabled",
			},
		}, nil
	}

	channels := m.resolveChannels(opts.Channels)

	// The throttle check and state update are one atomic step
	bypass := event.Priority == models.PriorityCritical || opts.Force
	admitted, reason := m.throttle.Admit(time.Now(), bypass)
	if !admitted {
		m.logger.Info("Notification throttled", map[string]interface{}{
			"reason":     reason,
			"event_type": event.EventType,
			"priority":   event.Priority.String(),
		})
		if m.metrics != nil {
			m.metrics.Prometheus().RecordThrottled(event.Priority.String())
		}
		return m.throttledResults(channels, reason), nil
	}

	if bypass && event.Priority == models.PriorityCritical {
		m.logger.Warn("Critical alert, throttle bypassed", map[string]interface{}{
			"event_type": event.EventType,
		})
	}

	if !opts.Sync {
		m.enqueue(deliveryJob{event: event, channels: channels})
		results := make(map[string]*models.DeliveryResult, len(channels))
		for _, name := range channels {
			// Success only ever reports a completed delivery, so a
			// queued job stays false until the worker gets to it
			results[name] = &models.DeliveryResult{
				Channel:   name,
				Success:   false,
				Status:    models.StatusPending,
				Timestamp: time.Now(),
				Message:   "queued for delivery",
			}
		}
		return results, nil
	}

	return m.deliver(ctx, event, channels), nil
}

// resolveChannels intersects the requested channels with the enabled
// senders, preserving registration order
func (m *Manager) resolveChannels(requested []string) []string {
	enabled := m.EnabledChannels()
	if len(requested) == 0 {
		return enabled
	}

	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[name] = true
	}

	resolved := make([]string, 0, len(enabled))
	for _, name := range enabled {
		if want[name] {
			resolved = append(resolved, name)
		}
	}
	return resolved
}

// throttledResults builds the synthetic result map for a suppressed call
func (m *Manager) throttledResults(channels []string, reason string) map[string]*models.DeliveryResult {
	now := time.Now()
	results := make(map[string]*models.DeliveryResult, len(channels))
	for _, name := range channels {
		results[name] = &models.DeliveryResult{
			Channel:   name,
			Success:   false,
			Status:    models.StatusThrottled,
			Timestamp: now,
			Message:   reason,
		}
	}
	if len(results) == 0 {
		results["manager"] = &models.DeliveryResult{
			Channel:   "manager",
			Success:   false,
			Status:    models.StatusThrottled,
			Timestamp: now,
			Message:   reason,
		}
	}
	return results
}

// enqueue pushes a job onto the bounded queue. When the queue is full
// the oldest pending job is shed so the producer never blocks.
func (m *Manager) enqueue(job deliveryJob) {
	for {
		select {
		case m.queue <- job:
			if m.metrics != nil {
				m.metrics.Prometheus().UpdateQueueDepth(len(m.queue))
			}
			return
		default:
		}

		select {
		case dropped := <-m.queue:
			m.logger.Warn("Delivery queue full, dropping oldest pending job", map[string]interface{}{
				"dropped_event_type": dropped.event.EventType,
			})
			if m.metrics != nil {
				m.metrics.Prometheus().RecordQueueDrop()
			}
		default:
		}
	}
}

// worker drains the queue sequentially. It is the only invoker of
// channel sends in async mode.
func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	m.logger.Info("Notification worker started")

	for {
		select {
		case <-m.stopCh:
			m.logger.Info("Notification worker stopped")
			return
		case <-ctx.Done():
			m.logger.Info("Notification worker context cancelled")
			return
		case job := <-m.queue:
			m.deliver(ctx, job.event, job.channels)
			if m.metrics != nil {
				m.metrics.Prometheus().UpdateQueueDepth(len(m.queue))
			}
		}
	}
}

// deliver attempts each channel in registration order. A failing channel
// never prevents the remaining channels from being attempted.
func (m *Manager) deliver(ctx context.Context, event *models.DetectionEvent, channels []string) map[string]*models.DeliveryResult {
	results := make(map[string]*models.DeliveryResult, len(channels))

	for _, name := range channels {
		sender := m.senderByName(name)
		if sender == nil {
			results[name] = &models.DeliveryResult{
				Channel:      name,
				Success:      false,
				Status:       models.StatusFailed,
				Timestamp:    time.Now(),
				ErrorMessage: "channel not available",
			}
			continue
		}

		m.logger.LogSendAttempt(name, event.EventType, event.Priority.String())
		result := sender.Send(ctx, event)
		if result == nil {
			result = &models.DeliveryResult{
				Channel:      name,
				Success:      false,
				Status:       models.StatusFailed,
				Timestamp:    time.Now(),
				ErrorMessage: "sender returned no result",
			}
		}
		results[name] = result

		if m.metrics != nil {
			if result.Success {
				m.metrics.Prometheus().RecordNotificationSent(name, event.Priority.String(), result.Latency)
			} else {
				m.metrics.Prometheus().RecordNotificationFailure(name, event.Priority.String())
			}
		}

		m.persistResult(ctx, event, result)
	}

	m.recordHistory(event, results)

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	m.logger.Info("Notification delivery complete", map[string]interface{}{
		"successful": successful,
		"total":      len(results),
		"priority":   event.Priority.String(),
	})

	return results
}

func (m *Manager) senderByName(name string) Sender {
	for _, sender := range m.senders {
		if sender.Name() == name {
			return sender
		}
	}
	return nil
}

// persistResult writes the delivery attempt through the optional store
func (m *Manager) persistResult(ctx context.Context, event *models.DetectionEvent, result *models.DeliveryResult) {
	if m.store == nil {
		return
	}

	record := &models.DeliveryRecord{
		ID:        utils.GenerateUUID(),
		EventID:   event.ID,
		Channel:   result.Channel,
		Status:    result.Status,
		LatencyMS: result.Latency.Milliseconds(),
		CreatedAt: result.Timestamp,
	}
	if result.ErrorMessage != "" {
		errMsg := result.ErrorMessage
		record.Error = &errMsg
	}

	if err := m.store.SaveDeliveryRecord(ctx, record); err != nil {
		m.logger.Warn("Failed to persist delivery record", map[string]interface{}{
			"channel": result.Channel,
			"error":   err.Error(),
		})
	}
}

// recordHistory appends to the bounded global history
func (m *Manager) recordHistory(event *models.DetectionEvent, results map[string]*models.DeliveryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) >= historySize {
		copy(m.history, m.history[1:])
		m.history = m.history[:historySize-1]
	}
	m.history = append(m.history, HistoryEntry{
		Event:     event,
		Results:   results,
		Timestamp: time.Now(),
	})
}

// History returns a copy of the bounded notification history, oldest first
func (m *Manager) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

// ResetThrottling clears the throttle state. Idempotent.
func (m *Manager) ResetThrottling() {
	m.throttle.Reset()
	m.logger.Info("Throttling counters reset")
}

// UpdateSettings replaces the cooldown and/or hourly cap atomically.
// Nil arguments leave the corresponding setting unchanged.
func (m *Manager) UpdateSettings(cooldownPeriod *time.Duration, maxPerHour *int) {
	m.throttle.UpdateSettings(cooldownPeriod, maxPerHour)

	fields := map[string]interface{}{}
	if cooldownPeriod != nil {
		fields["cooldown_period"] = cooldownPeriod.String()
	}
	if maxPerHour != nil {
		fields["max_per_hour"] = *maxPerHour
	}
	m.logger.Info("Notification settings updated", fields)
}

// Statistics returns a snapshot of channel counters, throttle state,
// queue depth, and history summary. It has no side effects.
func (m *Manager) Statistics() Statistics {
	settings, state := m.throttle.Snapshot()

	stats := Statistics{
		Enabled:    m.config.Enabled,
		Channels:   make(map[string]models.ChannelStatistics, len(m.senders)+len(m.disabled)),
		Settings:   settings,
		Throttle:   state,
		QueueDepth: len(m.queue),
	}

	// Disabled channels still show up, with zero attempts
	for _, sender := range m.disabled {
		stats.Channels[sender.Name()] = sender.Statistics()
	}
	for _, sender := range m.senders {
		stats.Channels[sender.Name()] = sender.Statistics()
	}

	stats.History = m.historyStats()
	return stats
}

func (m *Manager) historyStats() HistoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	hs := HistoryStats{
		Total:                len(m.history),
		PriorityDistribution: make(map[string]int),
	}

	for _, entry := range m.history {
		anySuccess := false
		for _, r := range entry.Results {
			if r.Success {
				anySuccess = true
				break
			}
		}
		if anySuccess {
			hs.Sent++
		} else {
			hs.Failed++
		}
		hs.PriorityDistribution[entry.Event.Priority.String()]++
	}

	if n := len(m.history); n > 0 {
		ts := m.history[n-1].Timestamp
		hs.LastNotification = &ts
	}

	return hs
}

// SendTestNotification delivers a low-priority test event synchronously,
// bypassing the throttle. Empty channel means all enabled channels.
func (m *Manager) SendTestNotification(ctx context.Context, channel string) map[string]*models.DeliveryResult {
	event := &models.DetectionEvent{
		ID:              utils.GenerateUUID(),
		EventType:       "system_test",
		Timestamp:       time.Now(),
		Priority:        models.PriorityLow,
		Subject:         "Security System Test",
		Message:         "This is a test notification from your home security system.",
		DetectedObjects: []string{"Test"},
		ZoneName:        "System",
	}

	channels := m.EnabledChannels()
	if channel != "" {
		channels = m.resolveChannels([]string{channel})
	}

	return m.deliver(ctx, event, channels)
}
