package session

import (
	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/google/uuid"
)

// SignalKind identifies an environment signal reported by the exam client.
// Values double as the event_type stored on the audit trail.
type SignalKind string

const (
	SignalTabSwitch      SignalKind = model.ViolationTabSwitch
	SignalWindowBlur     SignalKind = model.ViolationWindowBlur
	SignalBlockedKey     SignalKind = model.ViolationBlockedKey
	SignalFullscreenExit SignalKind = model.ViolationFullscreen
)

// IsViolation reports whether the signal counts against the two-strike
// limit. Leaving fullscreen only triggers a re-enter directive.
func (k SignalKind) IsViolation() bool {
	return model.IsStrikeEvent(string(k))
}

// Known reports whether the kind is one the controller understands.
// Unknown kinds from the client are dropped, not counted.
func (k SignalKind) Known() bool {
	return k.IsViolation() || k == SignalFullscreenExit
}

// NoticeType identifies a server-push notification to the exam client.
type NoticeType string

const (
	// NoticeEnterFullscreen directs the client into fullscreen. Pushed on
	// session activation and again whenever a fullscreen exit is reported.
	NoticeEnterFullscreen NoticeType = "enter_fullscreen"
	// NoticeExitFullscreen releases the client from fullscreen. Pushed on
	// every terminal transition.
	NoticeExitFullscreen NoticeType = "exit_fullscreen"
	// NoticeTick carries the countdown, once per second.
	NoticeTick NoticeType = "tick"
	// NoticeTimeWarning fires once per attempt when the countdown first
	// reaches the warning threshold.
	NoticeTimeWarning NoticeType = "time_warning"
	// NoticeViolationWarning is the first-strike warning.
	NoticeViolationWarning NoticeType = "violation_warning"
	// NoticePosition acknowledges a navigation with the clamped index.
	NoticePosition NoticeType = "position"
	// NoticeFinished reports the terminal status; the notice channel is
	// closed right after it.
	NoticeFinished NoticeType = "finished"
)

// Notice is one server-push notification. Only the fields relevant to its
// type are set.
type Notice struct {
	Type             NoticeType          `json:"type"`
	RemainingSeconds int                 `json:"remaining_seconds,omitempty"`
	ViolationCount   int                 `json:"violation_count,omitempty"`
	Position         int                 `json:"position,omitempty"`
	MaxViolations    int                 `json:"max_violations,omitempty"`
	Status           model.AttemptStatus `json:"status,omitempty"`
	Reason           string              `json:"reason,omitempty"`
}

// event is the internal union delivered to the controller loop. Exactly one
// of the kind-specific payloads is meaningful per kind.
type event struct {
	kind eventKind

	// answer
	questionID uuid.UUID
	optionID   *uuid.UUID

	// signal
	signal SignalKind
	detail string

	// navigate
	index int
}

type eventKind int

const (
	eventAnswer eventKind = iota
	eventSignal
	eventNavigate
	eventSubmit
)
