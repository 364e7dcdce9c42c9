package service

import (
	"errors"
	"testing"

	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/google/uuid"
)

func optionSet(correct string) []model.AddOptionRequest {
	opts := make([]model.AddOptionRequest, 0, 4)
	for _, label := range model.OptionLabels {
		opts = append(opts, model.AddOptionRequest{
			OptionLabel: label,
			OptionText:  "option " + label,
			IsCorrect:   label == correct,
		})
	}
	return opts
}

func TestBuildQuestionValid(t *testing.T) {
	examID := uuid.New()
	q, err := buildQuestion(examID, &model.AddQuestionRequest{
		QuestionText:  "What is 2+2?",
		QuestionOrder: 3,
		Options:       optionSet("b"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.ExamID != examID {
		t.Errorf("exam ID not carried over")
	}
	if q.QuestionOrder != 3 {
		t.Errorf("expected order 3, got %d", q.QuestionOrder)
	}
	if len(q.Options) != 4 {
		t.Fatalf("expected 4 options, got %d", len(q.Options))
	}

	correct := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			correct++
			if o.OptionLabel != "b" {
				t.Errorf("wrong option marked correct: %s", o.OptionLabel)
			}
		}
	}
	if correct != 1 {
		t.Errorf("expected exactly 1 correct option, got %d", correct)
	}
}

func TestBuildQuestionRejectsBadSets(t *testing.T) {
	cases := []struct {
		name   string
		mutate func([]model.AddOptionRequest) []model.AddOptionRequest
	}{
		{"no correct option", func(o []model.AddOptionRequest) []model.AddOptionRequest {
			o[1].IsCorrect = false
			return o
		}},
		{"two correct options", func(o []model.AddOptionRequest) []model.AddOptionRequest {
			o[2].IsCorrect = true
			return o
		}},
		{"duplicate label", func(o []model.AddOptionRequest) []model.AddOptionRequest {
			o[3].OptionLabel = "a"
			return o
		}},
		{"missing option", func(o []model.AddOptionRequest) []model.AddOptionRequest {
			return o[:3]
		}},
		{"extra option", func(o []model.AddOptionRequest) []model.AddOptionRequest {
			return append(o, model.AddOptionRequest{OptionLabel: "d", OptionText: "again"})
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &model.AddQuestionRequest{
				QuestionText: "broken",
				Options:      tc.mutate(optionSet("b")),
			}
			if _, err := buildQuestion(uuid.New(), req); !errors.Is(err, ErrQuestionSetInvalid) {
				t.Errorf("expected ErrQuestionSetInvalid, got %v", err)
			}
		})
	}
}
