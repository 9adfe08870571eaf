// File: internal/notification/voice.go
package notification

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/homesentry/notifier/internal/config"
	"github.com/homesentry/notifier/internal/models"
	"github.com/homesentry/notifier/pkg/utils"
)

// VoiceSender announces notifications through a local text-to-speech
// engine. The engine is selected once at Initialize by probing the
// configured engines in preference order.
type VoiceSender struct {
	config      *config.VoiceConfig
	timeout     time.Duration
	logger      *Logger
	engine      string
	stats       *channelStats
	initialized bool
}

// NewVoiceSender creates the voice channel sender
func NewVoiceSender(cfg *config.VoiceConfig, timeout time.Duration, logger *Logger) *VoiceSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VoiceSender{
		config:  cfg,
		timeout: timeout,
		logger:  logger.WithField("channel", ChannelVoice),
		stats:   newChannelStats(ChannelVoice),
	}
}

// Name returns the channel name
func (vs *VoiceSender) Name() string { return ChannelVoice }

// Initialize probes the configured TTS engines and picks the first
// available one
func (vs *VoiceSender) Initialize() error {
	if vs.initialized {
		return nil
	}

	if !vs.config.Enabled {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Voice notifications disabled in configuration", "")
	}

	engines := vs.config.Engines
	if len(engines) == 0 {
		engines = []string{"espeak", "festival", "say"}
	}

	for _, engine := range engines {
		if _, err := exec.LookPath(engine); err == nil {
			vs.engine = engine
			vs.initialized = true
			vs.logger.Info("Voice sender initialized", map[string]interface{}{
				"engine": engine,
			})
			return nil
		}
	}

	return utils.NewAppError(utils.ErrCodeConfiguration,
		"No TTS engine available", "tried: "+strings.Join(engines, ", "))
}

// Send speaks the alert through the selected TTS engine
func (vs *VoiceSender) Send(ctx context.Context, event *models.DetectionEvent) *models.DeliveryResult {
	started := time.Now()

	if !vs.initialized {
		return vs.stats.failureResult(ChannelVoice, "service not initialized", started)
	}

	message := buildVoiceMessage(event)

	if err := vs.speak(ctx, message); err != nil {
		vs.logger.LogSendResult(ChannelVoice, false, time.Since(started), err)
		return vs.stats.failureResult(ChannelVoice, err.Error(), started)
	}

	vs.logger.LogSendResult(ChannelVoice, true, time.Since(started), nil)
	return vs.stats.successResult(ChannelVoice, "announcement played via "+vs.engine, started)
}

// speak drives the selected engine; playback is bounded by the
// configured timeout
func (vs *VoiceSender) speak(ctx context.Context, message string) error {
	ctx, cancel := context.WithTimeout(ctx, vs.timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch vs.engine {
	case "espeak":
		amplitude := int(vs.config.Volume * 200)
		cmd = exec.CommandContext(ctx, "espeak",
			"-s", strconv.Itoa(vs.config.Rate),
			"-a", strconv.Itoa(amplitude),
			message)
	case "festival":
		cmd = exec.CommandContext(ctx, "festival", "--tts")
		cmd.Stdin = strings.NewReader(message)
	case "say":
		cmd = exec.CommandContext(ctx, "say",
			"-r", strconv.Itoa(vs.config.Rate),
			message)
	default:
		return fmt.Errorf("unsupported TTS engine: %s", vs.engine)
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w (%s)", vs.engine, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// TestConnection probes the engine with a silent no-op invocation
func (vs *VoiceSender) TestConnection(ctx context.Context) bool {
	if vs.engine == "" {
		return false
	}
	_, err := exec.LookPath(vs.engine)
	return err == nil
}

// Statistics returns this sender's accumulated counters
func (vs *VoiceSender) Statistics() models.ChannelStatistics {
	return vs.stats.snapshot()
}

// Shutdown releases resources
func (vs *VoiceSender) Shutdown() {
	vs.initialized = false
	vs.logger.Info("Voice sender shut down")
}

// buildVoiceMessage composes a natural-language announcement
func buildVoiceMessage(event *models.DetectionEvent) string {
	var parts []string

	if event.Priority >= models.PriorityHigh {
		parts = append(parts, "Alert! Security alert!")
	} else {
		parts = append(parts, "Security notification")
	}

	parts = append(parts, strings.ReplaceAll(event.EventType, "_", " ")+" detected")

	switch n := len(event.DetectedObjects); {
	case n == 1:
		parts = append(parts, event.DetectedObjects[0]+" detected")
	case n == 2:
		parts = append(parts, event.DetectedObjects[0]+" and "+event.DetectedObjects[1]+" detected")
	case n > 2:
		parts = append(parts, fmt.Sprintf("%s, %s, and %d other objects detected",
			event.DetectedObjects[0], event.DetectedObjects[1], n-2))
	}

	if event.ZoneName != "" {
		parts = append(parts, "in "+event.ZoneName)
	}

	if event.ThreatLevel == "high" || event.ThreatLevel == "critical" {
		parts = append(parts, "Threat level "+event.ThreatLevel)
	}

	parts = append(parts, "at "+event.Timestamp.Format("3 04 PM"))

	return strings.Join(parts, ". ") + "."
}
