package models

import (
	"fmt"
	"strings"
	"time"
)

// Priority defines notification priority levels, ordered from lowest to highest
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether the priority is one of the defined levels
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriority parses a priority name ("low", "medium", "high", "critical")
func ParsePriority(s string) (Priority, error) {
	for p, name := range priorityNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return PriorityLow, fmt.Errorf("unknown priority: %q", s)
}

// MarshalJSON encodes the priority as its lowercase name
func (p Priority) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON decodes a priority from its lowercase name
func (p *Priority) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DetectionEvent carries the context of one detection cycle through the
// notification pipeline. It is immutable after construction.
type DetectionEvent struct {
	ID               string            `json:"id" db:"id"`
	EventType        string            `json:"event_type" db:"event_type"`
	Timestamp        time.Time         `json:"timestamp" db:"timestamp"`
	Priority         Priority          `json:"priority" db:"priority"`
	Subject          string            `json:"subject,omitempty"`
	Message          string            `json:"message,omitempty"`
	DetectedObjects  []string          `json:"detected_objects,omitempty" db:"detected_objects"`
	MotionPercentage *float64          `json:"motion_percentage,omitempty" db:"motion_percentage"`
	ThreatLevel      string            `json:"threat_level,omitempty" db:"threat_level"`
	ZoneName         string            `json:"zone_name,omitempty" db:"zone_name"`
	ImagePath        string            `json:"image_path,omitempty" db:"image_path"`
	VideoPath        string            `json:"video_path,omitempty" db:"video_path"`
	Metadata         map[string]string `json:"metadata,omitempty" db:"metadata"`
}

// Validate checks that the event carries the fields the pipeline requires
func (e *DetectionEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if !e.Priority.Valid() {
		return fmt.Errorf("invalid priority: %d", e.Priority)
	}
	return nil
}

// FormattedSubject returns the explicit subject, or one generated from the
// event context when none was provided
func (e *DetectionEvent) FormattedSubject() string {
	if e.Subject != "" {
		return e.Subject
	}

	parts := []string{"Security Alert"}

	if len(e.DetectedObjects) > 0 {
		parts = append(parts, "- "+e.DetectedObjects[0])
	}

	if e.ZoneName != "" {
		parts = append(parts, "in "+e.ZoneName)
	}

	return strings.Join(parts, " ")
}

// FormattedMessage returns the explicit message, or one generated from the
// event context when none was provided
func (e *DetectionEvent) FormattedMessage() string {
	if e.Message != "" {
		return e.Message
	}

	parts := []string{
		"Security Alert: " + titleCase(e.EventType),
		"Time: " + e.Timestamp.Format("2006-01-02 15:04:05"),
	}

	if e.ZoneName != "" {
		parts = append(parts, "Zone: "+e.ZoneName)
	}

	if len(e.DetectedObjects) > 0 {
		objects := strings.Join(truncateList(e.DetectedObjects, 3), ", ")
		if extra := len(e.DetectedObjects) - 3; extra > 0 {
			objects += fmt.Sprintf(" (+%d more)", extra)
		}
		parts = append(parts, "Detected: "+objects)
	}

	if e.MotionPercentage != nil {
		parts = append(parts, fmt.Sprintf("Motion: %.1f%%", *e.MotionPercentage))
	}

	if e.ThreatLevel != "" {
		parts = append(parts, "Threat Level: "+strings.ToUpper(e.ThreatLevel))
	}

	return strings.Join(parts, "\n")
}

// titleCase converts an event type tag like "motion_detected" to "Motion Detected"
func titleCase(s string) string {
	words := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func truncateList(items []string, max int) []string {
	if len(items) <= max {
		return items
	}
	return items[:max]
}

// EventFilter for querying stored detection events
type EventFilter struct {
	EventType *string    `json:"event_type,omitempty"`
	Priority  *Priority  `json:"priority,omitempty"`
	ZoneName  *string    `json:"zone_name,omitempty"`
	FromTime  *time.Time `json:"from_time,omitempty"`
	ToTime    *time.Time `json:"to_time,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}
