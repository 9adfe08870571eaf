// File: internal/notification/email.go
package notification

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/homesentry/notifier/internal/config"
	"github.com/homesentry/notifier/internal/models"
	"github.com/homesentry/notifier/pkg/utils"
)

// EmailSender delivers notifications over SMTP as HTML mail with an
// optional inline image attachment
type EmailSender struct {
	config      *config.EmailConfig
	timeout     time.Duration
	logger      *Logger
	auth        smtp.Auth
	stats       *channelStats
	initialized bool
}

// NewEmailSender creates the email channel sender
func NewEmailSender(cfg *config.EmailConfig, timeout time.Duration, logger *Logger) *EmailSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EmailSender{
		config:  cfg,
		timeout: timeout,
		logger:  logger.WithField("channel", ChannelEmail),
		stats:   newChannelStats(ChannelEmail),
	}
}

// Name returns the channel name
func (es *EmailSender) Name() string { return ChannelEmail }

// Initialize validates the SMTP configuration and prepares authentication
func (es *EmailSender) Initialize() error {
	if es.initialized {
		return nil
	}

	if !es.config.Enabled {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Email notifications disabled in configuration", "")
	}

	if es.config.Username == "" || es.config.Password == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "SMTP credentials not configured", "")
	}

	if len(es.config.ToAddresses) == 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "No recipient email addresses configured", "")
	}

	for _, addr := range es.config.ToAddresses {
		if !isValidEmail(addr) {
			return utils.NewAppError(utils.ErrCodeConfiguration, "Invalid recipient email address", addr)
		}
	}

	es.auth = smtp.PlainAuth("", es.config.Username, es.config.Password, es.config.SMTPHost)
	es.initialized = true

	es.logger.Info("Email sender initialized", map[string]interface{}{
		"smtp_host":  es.config.SMTPHost,
		"smtp_port":  es.config.SMTPPort,
		"recipients": len(es.config.ToAddresses),
	})
	return nil
}

// Send builds and dispatches one email notification
func (es *EmailSender) Send(ctx context.Context, event *models.DetectionEvent) *models.DeliveryResult {
	started := time.Now()

	if !es.initialized {
		return es.stats.failureResult(ChannelEmail, "service not initialized", started)
	}

	subject := es.subjectLine(event)
	message := es.buildMessage(event, subject)

	if err := es.sendMail(ctx, es.config.ToAddresses, message); err != nil {
		es.logger.LogSendResult(ChannelEmail, false, time.Since(started), err)
		return es.stats.failureResult(ChannelEmail, err.Error(), started)
	}

	es.logger.LogSendResult(ChannelEmail, true, time.Since(started), nil)
	return es.stats.successResult(ChannelEmail,
		fmt.Sprintf("email sent to %d recipient(s)", len(es.config.ToAddresses)), started)
}

// TestConnection verifies SMTP reachability and credentials
func (es *EmailSender) TestConnection(ctx context.Context) bool {
	client, err := es.dial(ctx)
	if err != nil {
		es.logger.Error("SMTP connection test failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	defer client.Close()

	if es.auth != nil {
		if err := client.Auth(es.auth); err != nil {
			es.logger.Error("SMTP authentication test failed", map[string]interface{}{"error": err.Error()})
			return false
		}
	}
	return true
}

// Statistics returns this sender's accumulated counters
func (es *EmailSender) Statistics() models.ChannelStatistics {
	return es.stats.snapshot()
}

// Shutdown releases resources
func (es *EmailSender) Shutdown() {
	es.initialized = false
	es.logger.Info("Email sender shut down")
}

// dial opens an SMTP client, upgrading to TLS when configured
func (es *EmailSender) dial(ctx context.Context) (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", es.config.SMTPHost, es.config.SMTPPort)

	dialer := &net.Dialer{Timeout: es.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	client, err := smtp.NewClient(conn, es.config.SMTPHost)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if es.config.UseTLS {
		tlsConfig := &tls.Config{ServerName: es.config.SMTPHost}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	return client, nil
}

// sendMail performs one SMTP transaction
func (es *EmailSender) sendMail(ctx context.Context, to []string, message string) error {
	client, err := es.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if es.auth != nil {
		if err := client.Auth(es.auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(es.config.FromAddress); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", recipient, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}

	if _, err := writer.Write([]byte(message)); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}

	return writer.Close()
}

// subjectLine renders the templated subject for an event
func (es *EmailSender) subjectLine(event *models.DetectionEvent) string {
	if es.config.SubjectTemplate != "" {
		subject := strings.ReplaceAll(es.config.SubjectTemplate, "{event_type}", event.EventType)
		subject = strings.ReplaceAll(subject, "{priority}", event.Priority.String())
		return subject
	}
	return event.FormattedSubject()
}

const emailBoundary = "homesentry-mime-boundary"

// buildMessage builds the full MIME message, embedding the event image
// when one is referenced
func (es *EmailSender) buildMessage(event *models.DetectionEvent, subject string) string {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", es.config.FromName, es.config.FromAddress))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(es.config.ToAddresses, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if event.Priority >= models.PriorityHigh {
		msg.WriteString("X-Priority: 1\r\n")
		msg.WriteString("Importance: high\r\n")
	}

	imageData := es.loadImage(event.ImagePath)

	if imageData == nil {
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		msg.WriteString(es.buildHTMLBody(event, false))
		return msg.String()
	}

	msg.WriteString(fmt.Sprintf("Content-Type: multipart/related; boundary=%s\r\n\r\n", emailBoundary))

	msg.WriteString(fmt.Sprintf("--%s\r\n", emailBoundary))
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.WriteString(es.buildHTMLBody(event, true))
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s\r\n", emailBoundary))
	msg.WriteString("Content-Type: image/jpeg\r\n")
	msg.WriteString("Content-Transfer-Encoding: base64\r\n")
	msg.WriteString("Content-ID: <event_image>\r\n")
	msg.WriteString(fmt.Sprintf("Content-Disposition: inline; filename=%q\r\n\r\n", filepath.Base(event.ImagePath)))
	msg.WriteString(base64.StdEncoding.EncodeToString(imageData))
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s--\r\n", emailBoundary))
	return msg.String()
}

// loadImage reads the referenced image file; a missing or unreadable
// image downgrades the mail to text-only instead of failing the send
func (es *EmailSender) loadImage(path string) []byte {
	if path == "" || strings.HasPrefix(path, "http") {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		es.logger.Warn("Failed to attach event image", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return nil
	}
	return data
}

var priorityColors = map[models.Priority]string{
	models.PriorityLow:      "#4CAF50",
	models.PriorityMedium:   "#FF9800",
	models.PriorityHigh:     "#FF5722",
	models.PriorityCritical: "#D32F2F",
}

// buildHTMLBody renders the alert body with priority-based color coding
func (es *EmailSender) buildHTMLBody(event *models.DetectionEvent, withImage bool) string {
	color, ok := priorityColors[event.Priority]
	if !ok {
		color = "#FF9800"
	}

	var body strings.Builder
	body.WriteString("<html><body style='font-family: Arial, sans-serif;'>")
	body.WriteString(fmt.Sprintf(
		"<div style='background-color: %s; color: white; padding: 16px; border-radius: 6px 6px 0 0;'><h2 style='margin: 0;'>Security Alert</h2></div>",
		color))
	body.WriteString("<table border='0' cellpadding='6' cellspacing='0' style='margin: 16px 0;'>")

	row := func(label, value string) {
		body.WriteString(fmt.Sprintf("<tr><td><strong>%s</strong></td><td>%s</td></tr>", label, value))
	}

	row("Event", event.EventType)
	row("Priority", strings.ToUpper(event.Priority.String()))
	row("Time", event.Timestamp.Format("2006-01-02 15:04:05"))

	if event.ZoneName != "" {
		row("Zone", event.ZoneName)
	}
	if len(event.DetectedObjects) > 0 {
		row("Detected", strings.Join(event.DetectedObjects, ", "))
	}
	if event.MotionPercentage != nil {
		row("Motion", fmt.Sprintf("%.1f%%", *event.MotionPercentage))
	}
	if event.ThreatLevel != "" {
		row("Threat Level", strings.ToUpper(event.ThreatLevel))
	}

	body.WriteString("</table>")

	if withImage {
		body.WriteString("<div><img src='cid:event_image' style='max-width: 100%;' alt='event capture'/></div>")
	}

	body.WriteString(fmt.Sprintf("<p style='color: #999; font-size: 12px;'>Sent at %s</p>",
		time.Now().Format(time.RFC3339)))
	body.WriteString("</body></html>")
	return body.String()
}

// isValidEmail performs basic email validation
func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}

	local, domain := parts[0], parts[1]
	if len(local) == 0 || len(local) > 64 {
		return false
	}
	if len(domain) == 0 || len(domain) > 253 {
		return false
	}

	return true
}
