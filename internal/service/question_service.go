package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/dyaksa-edu/cbt-portal/internal/repository"
	"github.com/google/uuid"
)

// ErrQuestionSetInvalid is returned when an authored question does not carry
// the four labels a–d exactly once, or does not mark exactly one option correct.
var ErrQuestionSetInvalid = errors.New("question must have options a-d with exactly one correct")

// QuestionService handles question authoring.
type QuestionService struct {
	questionRepo *repository.QuestionRepository
	examRepo     *repository.ExamRepository
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questionRepo *repository.QuestionRepository, examRepo *repository.ExamRepository) *QuestionService {
	return &QuestionService{questionRepo: questionRepo, examRepo: examRepo}
}

// ListByExam retrieves an exam's questions with options, in order.
func (s *QuestionService) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return s.questionRepo.ListByExam(ctx, examID)
}

// Add appends a question to a draft exam.
func (s *QuestionService) Add(ctx context.Context, examID uuid.UUID, req *model.AddQuestionRequest) (*model.Question, error) {
	if err := s.requireDraft(ctx, examID); err != nil {
		return nil, err
	}

	q, err := buildQuestion(examID, req)
	if err != nil {
		return nil, err
	}

	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// ReplaceAll swaps the whole question set of a draft exam.
func (s *QuestionService) ReplaceAll(ctx context.Context, examID uuid.UUID, req *model.ReplaceQuestionsRequest) error {
	if err := s.requireDraft(ctx, examID); err != nil {
		return err
	}

	questions := make([]model.Question, 0, len(req.Questions))
	for i := range req.Questions {
		q, err := buildQuestion(examID, &req.Questions[i])
		if err != nil {
			return err
		}
		if q.QuestionOrder == 0 {
			q.QuestionOrder = i + 1
		}
		questions = append(questions, *q)
	}

	return s.questionRepo.ReplaceByExam(ctx, examID, questions)
}

func (s *QuestionService) requireDraft(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return nil
}

// buildQuestion validates the authoring payload: labels a-d each exactly once
// and exactly one option marked correct.
func buildQuestion(examID uuid.UUID, req *model.AddQuestionRequest) (*model.Question, error) {
	if len(req.Options) != len(model.OptionLabels) {
		return nil, ErrQuestionSetInvalid
	}

	seen := make(map[string]bool, len(model.OptionLabels))
	correct := 0
	options := make([]model.Option, len(req.Options))
	for i, o := range req.Options {
		if seen[o.OptionLabel] {
			return nil, ErrQuestionSetInvalid
		}
		seen[o.OptionLabel] = true
		if o.IsCorrect {
			correct++
		}
		options[i] = model.Option{
			OptionLabel: o.OptionLabel,
			OptionText:  o.OptionText,
			IsCorrect:   o.IsCorrect,
		}
	}

	for _, label := range model.OptionLabels {
		if !seen[label] {
			return nil, ErrQuestionSetInvalid
		}
	}
	if correct != 1 {
		return nil, ErrQuestionSetInvalid
	}

	return &model.Question{
		ExamID:        examID,
		QuestionText:  req.QuestionText,
		QuestionOrder: req.QuestionOrder,
		Options:       options,
	}, nil
}
