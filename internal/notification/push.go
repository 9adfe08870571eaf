// File: internal/notification/push.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/homesentry/notifier/internal/config"
	"github.com/homesentry/notifier/internal/models"
	"github.com/homesentry/notifier/pkg/utils"
)

// PushSender delivers notifications through Firebase Cloud Messaging
type PushSender struct {
	config      *config.PushConfig
	logger      *Logger
	httpClient  *http.Client
	stats       *channelStats
	initialized bool
}

// fcmMessage is the FCM HTTP v1 request payload
type fcmMessage struct {
	Message struct {
		Token        string            `json:"token"`
		Notification fcmNotification   `json:"notification"`
		Data         map[string]string `json:"data,omitempty"`
		Android      *fcmAndroid       `json:"android,omitempty"`
	} `json:"message"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image,omitempty"`
}

type fcmAndroid struct {
	Priority string `json:"priority"`
}

// NewPushSender creates the push channel sender
func NewPushSender(cfg *config.PushConfig, timeout time.Duration, logger *Logger) *PushSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PushSender{
		config: cfg,
		logger: logger.WithField("channel", ChannelPush),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		stats: newChannelStats(ChannelPush),
	}
}

// Name returns the channel name
func (ps *PushSender) Name() string { return ChannelPush }

// Initialize validates the FCM configuration
func (ps *PushSender) Initialize() error {
	if ps.initialized {
		return nil
	}

	if !ps.config.Enabled {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Push notifications disabled in configuration", "")
	}

	if ps.config.ProjectID == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Firebase project ID not configured", "")
	}

	if ps.config.AccessToken == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Firebase access token not configured", "")
	}

	if len(ps.config.DeviceTokens) == 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "No device tokens configured", "")
	}

	ps.initialized = true
	ps.logger.Info("Push sender initialized", map[string]interface{}{
		"devices": len(ps.config.DeviceTokens),
	})
	return nil
}

// Send dispatches one push notification to all registered devices.
// The send succeeds when at least one device accepts it.
func (ps *PushSender) Send(ctx context.Context, event *models.DetectionEvent) *models.DeliveryResult {
	started := time.Now()

	if !ps.initialized {
		return ps.stats.failureResult(ChannelPush, "service not initialized", started)
	}

	successful := 0
	var errs []string

	for _, token := range ps.config.DeviceTokens {
		payload := ps.buildPayload(event, token)
		if err := ps.sendOne(ctx, payload); err != nil {
			errs = append(errs, err.Error())
			ps.logger.Error("Push send failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		successful++
	}

	if successful == 0 {
		errMsg := "failed to send push to any device: " + strings.Join(errs, "; ")
		ps.logger.LogSendResult(ChannelPush, false, time.Since(started), fmt.Errorf("%s", errMsg))
		return ps.stats.failureResult(ChannelPush, errMsg, started)
	}

	ps.logger.LogSendResult(ChannelPush, true, time.Since(started), nil)
	return ps.stats.successResult(ChannelPush,
		fmt.Sprintf("push sent to %d/%d device(s)", successful, len(ps.config.DeviceTokens)), started)
}

// buildPayload constructs the FCM message for one device token
func (ps *PushSender) buildPayload(event *models.DetectionEvent, token string) *fcmMessage {
	msg := &fcmMessage{}
	msg.Message.Token = token
	msg.Message.Notification = fcmNotification{
		Title: event.FormattedSubject(),
		Body:  event.FormattedMessage(),
	}

	if strings.HasPrefix(event.ImagePath, "http") {
		msg.Message.Notification.Image = event.ImagePath
	}

	data := map[string]string{
		"event_type": event.EventType,
		"timestamp":  event.Timestamp.Format(time.RFC3339),
		"priority":   event.Priority.String(),
	}
	if event.ZoneName != "" {
		data["zone"] = event.ZoneName
	}
	if len(event.DetectedObjects) > 0 {
		data["objects"] = strings.Join(event.DetectedObjects, ",")
	}
	if event.ThreatLevel != "" {
		data["threat_level"] = event.ThreatLevel
	}
	for k, v := range event.Metadata {
		data[k] = v
	}
	msg.Message.Data = data

	androidPriority := "normal"
	if event.Priority >= models.PriorityHigh {
		androidPriority = "high"
	}
	msg.Message.Android = &fcmAndroid{Priority: androidPriority}

	return msg
}

// sendOne posts one message to the FCM HTTP v1 endpoint
func (ps *PushSender) sendOne(ctx context.Context, payload *fcmMessage) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/projects/%s/messages:send",
		strings.TrimRight(ps.config.APIBaseURL, "/"), ps.config.ProjectID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ps.config.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("fcm returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// TestConnection checks that the FCM endpoint is reachable
func (ps *PushSender) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ps.config.APIBaseURL, nil)
	if err != nil {
		return false
	}

	resp, err := ps.httpClient.Do(req)
	if err != nil {
		ps.logger.Error("FCM connection test failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	resp.Body.Close()
	return true
}

// Statistics returns this sender's accumulated counters
func (ps *PushSender) Statistics() models.ChannelStatistics {
	return ps.stats.snapshot()
}

// Shutdown releases resources
func (ps *PushSender) Shutdown() {
	ps.initialized = false
	ps.httpClient.CloseIdleConnections()
	ps.logger.Info("Push sender shut down")
}
