package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the lifecycle states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "draft"
	ExamStatusScheduled ExamStatus = "scheduled"
	ExamStatusActive    ExamStatus = "active"
	ExamStatusCompleted ExamStatus = "completed"
)

// Exam represents an exam entity. Immutable while attempts are running.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Code            string     `json:"code"`
	Description     string     `json:"description,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	PassingScore    int        `json:"passing_score"`
	Status          ExamStatus `json:"status"`
	CreatedBy       int        `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string `json:"title" binding:"required,min=3,max=255"`
	Code            string `json:"code" binding:"required,min=3,max=20"`
	Description     string `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1,max=480"`
	PassingScore    int    `json:"passing_score" binding:"required,min=0,max=100"`
}

// UpdateExamRequest is the payload for updating a draft exam.
type UpdateExamRequest struct {
	Title           string `json:"title" binding:"omitempty,min=3,max=255"`
	Code            string `json:"code" binding:"omitempty,min=3,max=20"`
	Description     string `json:"description" binding:"omitempty,max=2000"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	PassingScore    *int   `json:"passing_score" binding:"omitempty,min=0,max=100"`
}

// ExamPayload is the Redis-cached paper sent to students (no correctness flags).
type ExamPayload struct {
	ExamID          uuid.UUID            `json:"exam_id"`
	Title           string               `json:"title"`
	Code            string               `json:"code"`
	DurationMinutes int                  `json:"duration_minutes"`
	PassingScore    int                  `json:"passing_score"`
	Questions       []QuestionForStudent `json:"questions"`
}
