// File: internal/notification/email_test.go
package notification

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homesentry/notifier/internal/config"
	"github.com/homesentry/notifier/internal/models"
)

func emailConfig() *config.EmailConfig {
	return &config.EmailConfig{
		Enabled:         true,
		SMTPHost:        "smtp.example.com",
		SMTPPort:        587,
		Username:        "alerts@example.com",
		Password:        "secret",
		FromAddress:     "alerts@example.com",
		FromName:        "Home Security",
		ToAddresses:     []string{"owner@example.com"},
		UseTLS:          true,
		SubjectTemplate: "Security Alert: {event_type} [{priority}]",
	}
}

func emailEvent() *models.DetectionEvent {
	return &models.DetectionEvent{
		EventType:       "door_opened",
		Timestamp:       time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC),
		Priority:        models.PriorityHigh,
		DetectedObjects: []string{"person"},
		ZoneName:        "Front Door",
		ThreatLevel:     "high",
	}
}

func TestEmailSubjectLine(t *testing.T) {
	sender := NewEmailSender(emailConfig(), time.Second, NewLogger("error"))

	subject := sender.subjectLine(emailEvent())
	assert.Equal(t, "Security Alert: door_opened [high]", subject)
}

func TestEmailSubjectLineFallback(t *testing.T) {
	cfg := emailConfig()
	cfg.SubjectTemplate = ""
	sender := NewEmailSender(cfg, time.Second, NewLogger("error"))

	subject := sender.subjectLine(emailEvent())
	assert.Equal(t, "Security Alert - person in Front Door", subject)
}

func TestEmailBuildMessagePlain(t *testing.T) {
	sender := NewEmailSender(emailConfig(), time.Second, NewLogger("error"))

	msg := sender.buildMessage(emailEvent(), "Test Subject")

	assert.Contains(t, msg, "From: Home Security <alerts@example.com>\r\n")
	assert.Contains(t, msg, "To: owner@example.com\r\n")
	assert.Contains(t, msg, "Subject: Test Subject\r\n")
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8")
	assert.NotContains(t, msg, "multipart/related", "no image means a single-part message")

	// High priority sets the urgency headers
	assert.Contains(t, msg, "X-Priority: 1\r\n")
	assert.Contains(t, msg, "Importance: high\r\n")
}

func TestEmailBuildMessageNoUrgencyHeadersForLow(t *testing.T) {
	sender := NewEmailSender(emailConfig(), time.Second, NewLogger("error"))

	event := emailEvent()
	event.Priority = models.PriorityLow

	msg := sender.buildMessage(event, "Test Subject")
	assert.NotContains(t, msg, "X-Priority")
}

func TestEmailBuildMessageWithInlineImage(t *testing.T) {
	sender := NewEmailSender(emailConfig(), time.Second, NewLogger("error"))

	imagePath := filepath.Join(t.TempDir(), "capture.jpg")
	require.NoError(t, os.WriteFile(imagePath, []byte("fake-jpeg-bytes"), 0644))

	event := emailEvent()
	event.ImagePath = imagePath

	msg := sender.buildMessage(event, "Test Subject")

	assert.Contains(t, msg, "Content-Type: multipart/related; boundary="+emailBoundary)
	assert.Contains(t, msg, "Content-ID: <event_image>")
	assert.Contains(t, msg, "Content-Transfer-Encoding: base64")
	assert.Contains(t, msg, "cid:event_image", "HTML body references the inline image")
	assert.Contains(t, msg, "--"+emailBoundary+"--\r\n", "message is terminated")
}

func TestEmailBuildMessageMissingImageDegrades(t *testing.T) {
	sender := NewEmailSender(emailConfig(), time.Second, NewLogger("error"))

	event := emailEvent()
	event.ImagePath = "/nonexistent/capture.jpg"

	msg := sender.buildMessage(event, "Test Subject")
	assert.NotContains(t, msg, "multipart/related", "unreadable image falls back to text-only")
}

func TestEmailBuildHTMLBody(t *testing.T) {
	sender := NewEmailSender(emailConfig(), time.Second, NewLogger("error"))

	motion := 17.3
	event := emailEvent()
	event.MotionPercentage = &motion

	body := sender.buildHTMLBody(event, false)

	assert.Contains(t, body, "#FF5722", "high priority uses the high color")
	assert.Contains(t, body, "door_opened")
	assert.Contains(t, body, "HIGH")
	assert.Contains(t, body, "Front Door")
	assert.Contains(t, body, "person")
	assert.Contains(t, body, "17.3%")
	assert.NotContains(t, body, "cid:event_image")
}

func TestEmailHTMLBodyColorPerPriority(t *testing.T) {
	sender := NewEmailSender(emailConfig(), time.Second, NewLogger("error"))

	cases := map[models.Priority]string{
		models.PriorityLow:      "#4CAF50",
		models.PriorityMedium:   "#FF9800",
		models.PriorityHigh:     "#FF5722",
		models.PriorityCritical: "#D32F2F",
	}

	for priority, color := range cases {
		event := emailEvent()
		event.Priority = priority
		assert.Contains(t, sender.buildHTMLBody(event, false), color, "priority %s", priority)
	}
}

func TestEmailInitializeValidation(t *testing.T) {
	logger := NewLogger("error")

	disabled := NewEmailSender(&config.EmailConfig{}, time.Second, logger)
	assert.Error(t, disabled.Initialize())

	cfg := emailConfig()
	cfg.Password = ""
	noCreds := NewEmailSender(cfg, time.Second, logger)
	assert.Error(t, noCreds.Initialize())

	cfg = emailConfig()
	cfg.ToAddresses = []string{"not-an-email"}
	badRecipient := NewEmailSender(cfg, time.Second, logger)
	assert.Error(t, badRecipient.Initialize())

	valid := NewEmailSender(emailConfig(), time.Second, logger)
	assert.NoError(t, valid.Initialize())
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, isValidEmail("user@example.com"))
	assert.False(t, isValidEmail("user"))
	assert.False(t, isValidEmail("@example.com"))
	assert.False(t, isValidEmail("user@"))
	assert.False(t, isValidEmail("a@b@c"))
}
