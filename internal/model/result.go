package model

import (
	"time"

	"github.com/google/uuid"
)

// Result is the write-once grading outcome of a terminal attempt.
type Result struct {
	ID             uuid.UUID `json:"id"`
	AttemptID      uuid.UUID `json:"attempt_id"`
	ExamID         uuid.UUID `json:"exam_id"`
	StudentID      int       `json:"student_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CorrectAnswers int       `json:"correct_answers"`
	Passed         bool      `json:"passed"`
	CreatedAt      time.Time `json:"created_at"`
}

// ExamAnalytics is the per-exam running aggregate, folded incrementally on
// every result. pass_count is stored directly so the fold never reconstructs
// it from a rounded percentage.
type ExamAnalytics struct {
	ExamID               uuid.UUID `json:"exam_id"`
	TotalAttempts        int       `json:"total_attempts"`
	PassCount            int       `json:"pass_count"`
	AvgScore             float64   `json:"avg_score"`
	PassRate             float64   `json:"pass_rate"`
	AvgCompletionSeconds float64   `json:"avg_completion_seconds"`
	UpdatedAt            time.Time `json:"updated_at"`
}
