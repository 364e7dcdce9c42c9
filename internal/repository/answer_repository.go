package repository

import (
	"context"
	"time"

	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnswerRepository handles attempt answer data access.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert creates or updates an answer for (attempt, question). savedAt is
// the moment the save was issued, not processed; the conditional update
// keeps the latest-issued selection even when a requeued retry delivers an
// older one after it.
func (r *AnswerRepository) Upsert(ctx context.Context, attemptID, questionID uuid.UUID, selectedOptionID *uuid.UUID, savedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO answers (attempt_id, question_id, selected_option_id, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET selected_option_id = EXCLUDED.selected_option_id, updated_at = EXCLUDED.updated_at
		 WHERE answers.updated_at <= EXCLUDED.updated_at`,
		attemptID, questionID, selectedOptionID, savedAt,
	)
	return err
}

// ListByAttempt retrieves all answers saved for an attempt.
func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, question_id, selected_option_id, updated_at
		 FROM answers WHERE attempt_id = $1`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.AttemptID, &a.QuestionID, &a.SelectedOptionID, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// MapByAttempt returns the answers as question_id → selected option_id,
// skipping cleared selections.
func (r *AnswerRepository) MapByAttempt(ctx context.Context, attemptID uuid.UUID) (map[string]string, error) {
	answers, err := r.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(answers))
	for _, a := range answers {
		if a.SelectedOptionID != nil {
			m[a.QuestionID.String()] = a.SelectedOptionID.String()
		}
	}
	return m, nil
}
