package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states. An attempt is terminal once its
// status leaves AttemptStatusInProgress.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusCompleted  AttemptStatus = "completed"
	AttemptStatusTimedOut   AttemptStatus = "timed_out"
	AttemptStatusTerminated AttemptStatus = "terminated"
)

// Termination reasons recorded on forced terminal transitions.
const (
	ReasonTimeUp            = "time_up"
	ReasonSecurityViolation = "security_violation"
)

// IsTerminal reports whether the status is one of the three terminal states.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusTimedOut || s == AttemptStatusTerminated
}

// Attempt represents a student's run at an exam. At most one in_progress
// attempt exists per (exam, student) pair; the partial unique index in the
// schema enforces it.
type Attempt struct {
	ID                uuid.UUID     `json:"id"`
	ExamID            uuid.UUID     `json:"exam_id"`
	StudentID         int           `json:"student_id"`
	StartedAt         time.Time     `json:"started_at"`
	EndedAt           *time.Time    `json:"ended_at,omitempty"`
	Status            AttemptStatus `json:"status"`
	TerminationReason string        `json:"termination_reason,omitempty"`
}

// Answer records a student's selected option for one question of an attempt.
// At most one row exists per (attempt, question); later selections update it.
type Answer struct {
	AttemptID        uuid.UUID  `json:"attempt_id"`
	QuestionID       uuid.UUID  `json:"question_id"`
	SelectedOptionID *uuid.UUID `json:"selected_option_id,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// SaveAnswerRequest is the REST payload for saving one answer. An empty
// OptionID clears the stored selection.
type SaveAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,uuid"`
	OptionID   string `json:"option_id" binding:"omitempty,uuid"`
}

// AttemptState is what a (re)joining client needs to rebuild its view:
// remaining wall-clock time and the answers saved so far.
type AttemptState struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	Status           AttemptStatus     `json:"status"`
	RemainingSeconds int               `json:"remaining_seconds"`
	Answers          map[string]string `json:"answers"` // question_id → selected option_id
}
