package repository

import (
	"context"
	"fmt"

	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuestionRepository handles question and option data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for an exam with their options,
// ordered by question_order then option_label.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_text, question_order
		 FROM questions WHERE exam_id = $1
		 ORDER BY question_order`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	byID := make(map[uuid.UUID]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.QuestionOrder); err != nil {
			return nil, err
		}
		byID[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, nil
	}

	optRows, err := r.pool.Query(ctx,
		`SELECT o.id, o.question_id, o.option_label, o.option_text, o.is_correct
		 FROM options o
		 JOIN questions q ON o.question_id = q.id
		 WHERE q.exam_id = $1
		 ORDER BY o.option_label`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer optRows.Close()

	for optRows.Next() {
		var o model.Option
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.OptionLabel, &o.OptionText, &o.IsCorrect); err != nil {
			return nil, err
		}
		if idx, ok := byID[o.QuestionID]; ok {
			questions[idx].Options = append(questions[idx].Options, o)
		}
	}
	return questions, optRows.Err()
}

// Create inserts a question and its four options in one transaction.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO questions (exam_id, question_text, question_order)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		q.ExamID, q.QuestionText, q.QuestionOrder,
	).Scan(&q.ID)
	if err != nil {
		return err
	}

	for i := range q.Options {
		o := &q.Options[i]
		o.QuestionID = q.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO options (question_id, option_label, option_text, is_correct)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			o.QuestionID, o.OptionLabel, o.OptionText, o.IsCorrect,
		).Scan(&o.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ReplaceByExam deletes an exam's question set and inserts the new one
// atomically. Option rows cascade with their questions.
func (r *QuestionRepository) ReplaceByExam(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, examID); err != nil {
		return fmt.Errorf("delete old questions: %w", err)
	}

	for i := range questions {
		q := &questions[i]
		q.ExamID = examID
		err = tx.QueryRow(ctx,
			`INSERT INTO questions (exam_id, question_text, question_order)
			 VALUES ($1, $2, $3)
			 RETURNING id`,
			q.ExamID, q.QuestionText, q.QuestionOrder,
		).Scan(&q.ID)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}

		for j := range q.Options {
			o := &q.Options[j]
			o.QuestionID = q.ID
			err = tx.QueryRow(ctx,
				`INSERT INTO options (question_id, option_label, option_text, is_correct)
				 VALUES ($1, $2, $3, $4)
				 RETURNING id`,
				o.QuestionID, o.OptionLabel, o.OptionText, o.IsCorrect,
			).Scan(&o.ID)
			if err != nil {
				return fmt.Errorf("insert option %s of question %d: %w", o.OptionLabel, i, err)
			}
		}
	}

	return tx.Commit(ctx)
}

// AnswerKey returns question_id → correct option_id for an exam.
// Fallback path when the Redis answer key cache is cold.
func (r *QuestionRepository) AnswerKey(ctx context.Context, examID uuid.UUID) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.question_id, o.id
		 FROM options o
		 JOIN questions q ON o.question_id = q.id
		 WHERE q.exam_id = $1 AND o.is_correct`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	key := make(map[string]string)
	for rows.Next() {
		var questionID, optionID uuid.UUID
		if err := rows.Scan(&questionID, &optionID); err != nil {
			return nil, err
		}
		key[questionID.String()] = optionID.String()
	}
	return key, rows.Err()
}
