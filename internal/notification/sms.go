// File: internal/notification/sms.go
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/homesentry/notifier/internal/config"
	"github.com/homesentry/notifier/internal/models"
	"github.com/homesentry/notifier/pkg/utils"
)

// smsMaxLength keeps messages inside a single SMS segment
const smsMaxLength = 160

// SMSSender delivers notifications through the Twilio Messages API
type SMSSender struct {
	config      *config.SMSConfig
	logger      *Logger
	httpClient  *http.Client
	stats       *channelStats
	initialized bool
}

// NewSMSSender creates the SMS channel sender
func NewSMSSender(cfg *config.SMSConfig, timeout time.Duration, logger *Logger) *SMSSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMSSender{
		config: cfg,
		logger: logger.WithField("channel", ChannelSMS),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		stats: newChannelStats(ChannelSMS),
	}
}

// Name returns the channel name
func (ss *SMSSender) Name() string { return ChannelSMS }

// Initialize validates the Twilio configuration
func (ss *SMSSender) Initialize() error {
	if ss.initialized {
		return nil
	}

	if !ss.config.Enabled {
		return utils.NewAppError(utils.ErrCodeConfiguration, "SMS notifications disabled in configuration", "")
	}

	if ss.config.AccountSID == "" || ss.config.AuthToken == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Twilio credentials not configured", "")
	}

	if ss.config.FromNumber == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Twilio from_number not configured", "")
	}

	if len(ss.config.ToNumbers) == 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "No recipient phone numbers configured", "")
	}

	ss.initialized = true
	ss.logger.Info("SMS sender initialized", map[string]interface{}{
		"recipients": len(ss.config.ToNumbers),
	})
	return nil
}

// Send builds and dispatches one SMS notification to all recipients.
// The send succeeds when at least one recipient is reached.
func (ss *SMSSender) Send(ctx context.Context, event *models.DetectionEvent) *models.DeliveryResult {
	started := time.Now()

	if !ss.initialized {
		return ss.stats.failureResult(ChannelSMS, "service not initialized", started)
	}

	body := buildSMSMessage(event)

	successful := 0
	var errs []string

	for _, toNumber := range ss.config.ToNumbers {
		if err := ss.sendOne(ctx, toNumber, body, event.ImagePath); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", toNumber, err))
			ss.logger.Error("SMS send failed", map[string]interface{}{
				"to":    toNumber,
				"error": err.Error(),
			})
			continue
		}
		successful++
	}

	if successful == 0 {
		errMsg := "failed to send SMS to any recipient: " + strings.Join(errs, "; ")
		ss.logger.LogSendResult(ChannelSMS, false, time.Since(started), fmt.Errorf("%s", errMsg))
		return ss.stats.failureResult(ChannelSMS, errMsg, started)
	}

	ss.logger.LogSendResult(ChannelSMS, true, time.Since(started), nil)
	return ss.stats.successResult(ChannelSMS,
		fmt.Sprintf("SMS sent to %d/%d recipient(s)", successful, len(ss.config.ToNumbers)), started)
}

// sendOne posts a single message to the Twilio REST API
func (ss *SMSSender) sendOne(ctx context.Context, toNumber, body, imagePath string) error {
	form := url.Values{}
	form.Set("From", ss.config.FromNumber)
	form.Set("To", toNumber)
	form.Set("Body", body)

	// MMS only when the image is addressable by the carrier
	if strings.HasPrefix(imagePath, "http") {
		form.Set("MediaUrl", imagePath)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(ss.config.APIBaseURL, "/"), ss.config.AccountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(ss.config.AccountSID, ss.config.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ss.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("twilio returned status %d: %s", resp.StatusCode, string(payload))
	}

	var parsed struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil && parsed.SID != "" {
		ss.logger.Debug("SMS accepted", map[string]interface{}{"to": toNumber, "sid": parsed.SID})
	}

	return nil
}

// TestConnection verifies the Twilio credentials by fetching the account
func (ss *SMSSender) TestConnection(ctx context.Context) bool {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s.json",
		strings.TrimRight(ss.config.APIBaseURL, "/"), ss.config.AccountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	req.SetBasicAuth(ss.config.AccountSID, ss.config.AuthToken)

	resp, err := ss.httpClient.Do(req)
	if err != nil {
		ss.logger.Error("Twilio connection test failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Statistics returns this sender's accumulated counters
func (ss *SMSSender) Statistics() models.ChannelStatistics {
	return ss.stats.snapshot()
}

// Shutdown releases resources
func (ss *SMSSender) Shutdown() {
	ss.initialized = false
	ss.httpClient.CloseIdleConnections()
	ss.logger.Info("SMS sender shut down")
}

// buildSMSMessage renders a concise message that fits one SMS segment.
// Non-essential lines are dropped before essential ones when over budget.
func buildSMSMessage(event *models.DetectionEvent) string {
	header := "Security Alert"

	var detected string
	if len(event.DetectedObjects) > 0 {
		objects := event.DetectedObjects
		if len(objects) > 2 {
			detected = fmt.Sprintf("Detected: %s +%d", strings.Join(objects[:2], ", "), len(objects)-2)
		} else {
			detected = "Detected: " + strings.Join(objects, ", ")
		}
	} else {
		detected = strings.ReplaceAll(event.EventType, "_", " ")
	}

	zone := ""
	if event.ZoneName != "" {
		zone = "Zone: " + event.ZoneName
	}

	timeLine := "Time: " + event.Timestamp.Format("15:04")

	// Assemble, trimming optional lines until the message fits
	lines := []string{header, detected, zone, timeLine}
	for {
		var parts []string
		for _, l := range lines {
			if l != "" {
				parts = append(parts, l)
			}
		}
		msg := strings.Join(parts, "\n")
		if len(msg) <= smsMaxLength {
			return msg
		}

		switch {
		case lines[3] != "":
			lines[3] = ""
		case lines[2] != "":
			lines[2] = ""
		default:
			return msg[:smsMaxLength]
		}
	}
}
