package model

import (
	"time"

	"github.com/google/uuid"
)

// Violation event types reported by the exam client.
const (
	ViolationTabSwitch  = "tab_switch"
	ViolationWindowBlur = "window_blur"
	ViolationBlockedKey = "blocked_key"
	ViolationFullscreen = "fullscreen_exit"
)

// IsStrikeEvent reports whether the event type counts against the strike
// limit. Leaving fullscreen is audited but never a strike.
func IsStrikeEvent(eventType string) bool {
	switch eventType {
	case ViolationTabSwitch, ViolationWindowBlur, ViolationBlockedKey:
		return true
	}
	return false
}

// SecurityEvent is one recorded proctoring violation, kept for audit even
// after the attempt ends.
type SecurityEvent struct {
	ID         int64     `json:"id"`
	AttemptID  uuid.UUID `json:"attempt_id"`
	ExamID     uuid.UUID `json:"exam_id"`
	StudentID  int       `json:"student_id"`
	EventType  string    `json:"event_type"`
	Detail     string    `json:"detail"`
	RecordedAt time.Time `json:"recorded_at"`
}
