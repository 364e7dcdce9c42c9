package model

import (
	"github.com/google/uuid"
)

// OptionLabels is the fixed label set every question carries, in order.
var OptionLabels = []string{"a", "b", "c", "d"}

// Question represents a single exam question with its fixed option set.
// Exactly one option is marked correct.
type Question struct {
	ID            uuid.UUID `json:"id"`
	ExamID        uuid.UUID `json:"exam_id"`
	QuestionText  string    `json:"question_text"`
	QuestionOrder int       `json:"question_order"`
	Options       []Option  `json:"options,omitempty"`
}

// Option is one of the four labeled choices of a question.
type Option struct {
	ID          uuid.UUID `json:"id"`
	QuestionID  uuid.UUID `json:"question_id"`
	OptionLabel string    `json:"option_label"`
	OptionText  string    `json:"option_text"`
	IsCorrect   bool      `json:"is_correct,omitempty"`
}

// QuestionForStudent is a question without correctness flags, sent to students.
type QuestionForStudent struct {
	ID            uuid.UUID          `json:"id"`
	QuestionText  string             `json:"question_text"`
	QuestionOrder int                `json:"question_order"`
	Options       []OptionForStudent `json:"options"`
}

// OptionForStudent hides the is_correct flag.
type OptionForStudent struct {
	ID          uuid.UUID `json:"id"`
	OptionLabel string    `json:"option_label"`
	OptionText  string    `json:"option_text"`
}

// AddOptionRequest is one labeled option in an authoring payload.
type AddOptionRequest struct {
	OptionLabel string `json:"option_label" binding:"required,oneof=a b c d"`
	OptionText  string `json:"option_text" binding:"required,min=1,max=1000"`
	IsCorrect   bool   `json:"is_correct"`
}

// AddQuestionRequest is the payload for adding a question to an exam.
// The service layer additionally enforces exactly one correct option.
type AddQuestionRequest struct {
	QuestionText  string             `json:"question_text" binding:"required,min=1,max=2000"`
	QuestionOrder int                `json:"question_order" binding:"min=0"`
	Options       []AddOptionRequest `json:"options" binding:"required,len=4,dive"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing a draft exam's questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"dive"`
}
