package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = "id, exam_id, student_id, started_at, ended_at, status, termination_reason"

func scanAttempt(row interface{ Scan(...any) error }) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StartedAt, &a.EndedAt, &a.Status, &a.TerminationReason)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an attempt by its id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// FindActive retrieves the in-progress attempt for an exam-student pair,
// if one exists.
func (r *AttemptRepository) FindActive(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE exam_id = $1 AND student_id = $2 AND status = $3`,
		examID, studentID, model.AttemptStatusInProgress))
}

// Create inserts a new in-progress attempt. The partial unique index on
// (exam_id, student_id) WHERE status = 'in_progress' makes this a no-op
// when the student already has an open attempt; the caller detects
// pgx.ErrNoRows and falls back to FindActive.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, student_id) WHERE status = 'in_progress' DO NOTHING
		 RETURNING id, started_at`,
		a.ExamID, a.StudentID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt)
}

// Finish moves an attempt to a terminal status. The WHERE clause only
// matches while the attempt is still in progress, so concurrent
// finalizers race on the row and exactly one caller wins. Returns the
// updated attempt and true for the winner; (nil, false) for losers.
func (r *AttemptRepository) Finish(ctx context.Context, id uuid.UUID, status model.AttemptStatus, reason string) (*model.Attempt, bool, error) {
	var reasonArg *string
	if reason != "" {
		reasonArg = &reason
	}
	row := r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET status = $2, ended_at = $3, termination_reason = $4
		 WHERE id = $1 AND status = $5
		 RETURNING `+attemptColumns,
		id, status, time.Now(), reasonArg, model.AttemptStatusInProgress)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// ListOverdue retrieves in-progress attempts whose deadline has passed,
// batched per exam duration. Used by the sweeper to time out attempts
// abandoned without a live connection.
func (r *AttemptRepository) ListOverdue(ctx context.Context, now time.Time) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.exam_id, a.student_id, a.started_at, a.ended_at, a.status, a.termination_reason
		 FROM attempts a
		 JOIN exams e ON a.exam_id = e.id
		 WHERE a.status = $1
		   AND a.started_at + (e.duration_minutes || ' minutes')::interval < $2`,
		model.AttemptStatusInProgress, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StartedAt, &a.EndedAt, &a.Status, &a.TerminationReason); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListByStudent retrieves all attempts for a student, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StartedAt, &a.EndedAt, &a.Status, &a.TerminationReason); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
