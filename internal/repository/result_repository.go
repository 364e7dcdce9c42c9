package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/dyaksa-edu/cbt-portal/internal/scoring"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StudentResult combines a result row with student identity, for the
// admin results view.
type StudentResult struct {
	StudentID      int       `json:"student_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Score          int       `json:"score"`
	CorrectAnswers int       `json:"correct_answers"`
	TotalQuestions int       `json:"total_questions"`
	Passed         bool      `json:"passed"`
	CreatedAt      time.Time `json:"created_at"`
}

// ResultRepository handles result and analytics data access.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Create inserts a result. The unique index on attempt_id makes the row
// write-once: a second insert for the same attempt is a no-op and Create
// reports false so the caller skips the analytics fold.
func (r *ResultRepository) Create(ctx context.Context, res *model.Result) (bool, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO results (attempt_id, exam_id, student_id, score, total_questions, correct_answers, passed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (attempt_id) DO NOTHING
		 RETURNING id, created_at`,
		res.AttemptID, res.ExamID, res.StudentID, res.Score, res.TotalQuestions, res.CorrectAnswers, res.Passed,
	).Scan(&res.ID, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByAttempt retrieves the result for an attempt.
func (r *ResultRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	res := &model.Result{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, attempt_id, exam_id, student_id, score, total_questions, correct_answers, passed, created_at
		 FROM results WHERE attempt_id = $1`, attemptID,
	).Scan(&res.ID, &res.AttemptID, &res.ExamID, &res.StudentID, &res.Score,
		&res.TotalQuestions, &res.CorrectAnswers, &res.Passed, &res.CreatedAt)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListByExam retrieves student results for an exam with pagination.
func (r *ResultRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]StudentResult, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM results WHERE exam_id = $1`, examID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name, s.email, r.score, r.correct_answers, r.total_questions, r.passed, r.created_at
		 FROM results r
		 JOIN students s ON r.student_id = s.id
		 WHERE r.exam_id = $1
		 ORDER BY r.score DESC, s.name ASC
		 LIMIT $2 OFFSET $3`, examID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []StudentResult
	for rows.Next() {
		var sr StudentResult
		if err := rows.Scan(&sr.StudentID, &sr.Name, &sr.Email, &sr.Score,
			&sr.CorrectAnswers, &sr.TotalQuestions, &sr.Passed, &sr.CreatedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, sr)
	}
	return results, total, rows.Err()
}

// GetAnalytics retrieves the running aggregate for an exam.
func (r *ResultRepository) GetAnalytics(ctx context.Context, examID uuid.UUID) (*model.ExamAnalytics, error) {
	a := &model.ExamAnalytics{}
	err := r.pool.QueryRow(ctx,
		`SELECT exam_id, total_attempts, pass_count, avg_score, pass_rate, avg_completion_seconds, updated_at
		 FROM exam_analytics WHERE exam_id = $1`, examID,
	).Scan(&a.ExamID, &a.TotalAttempts, &a.PassCount, &a.AvgScore, &a.PassRate, &a.AvgCompletionSeconds, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ApplySample folds one graded attempt into the exam's aggregate inside a
// transaction. The row lock on exam_analytics serializes concurrent folds
// for the same exam; the results worker is single-consumer anyway, so the
// lock only matters if a second instance ever runs.
func (r *ResultRepository) ApplySample(ctx context.Context, examID uuid.UUID, s scoring.Sample) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var agg scoring.Aggregate
	err = tx.QueryRow(ctx,
		`SELECT total_attempts, pass_count, avg_score, pass_rate, avg_completion_seconds
		 FROM exam_analytics WHERE exam_id = $1
		 FOR UPDATE`, examID,
	).Scan(&agg.TotalAttempts, &agg.PassCount, &agg.AvgScore, &agg.PassRate, &agg.AvgCompletionSeconds)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	next := scoring.Fold(agg, s)

	_, err = tx.Exec(ctx,
		`INSERT INTO exam_analytics (exam_id, total_attempts, pass_count, avg_score, pass_rate, avg_completion_seconds, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (exam_id) DO UPDATE
		 SET total_attempts = EXCLUDED.total_attempts,
		     pass_count = EXCLUDED.pass_count,
		     avg_score = EXCLUDED.avg_score,
		     pass_rate = EXCLUDED.pass_rate,
		     avg_completion_seconds = EXCLUDED.avg_completion_seconds,
		     updated_at = NOW()`,
		examID, next.TotalAttempts, next.PassCount, next.AvgScore, next.PassRate, next.AvgCompletionSeconds,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
