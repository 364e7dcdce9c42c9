package repository

import (
	"context"

	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SecurityEventRepository reads the proctoring audit trail. Writes go
// through the violation worker, which batches inserts off a Redis queue.
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityEventRepository creates a new SecurityEventRepository.
func NewSecurityEventRepository(pool *pgxpool.Pool) *SecurityEventRepository {
	return &SecurityEventRepository{pool: pool}
}

// ListByAttempt retrieves all events recorded for an attempt, oldest first.
func (r *SecurityEventRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.SecurityEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, exam_id, student_id, event_type, detail, recorded_at
		 FROM security_events
		 WHERE attempt_id = $1
		 ORDER BY recorded_at`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.SecurityEvent
	for rows.Next() {
		var e model.SecurityEvent
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.ExamID, &e.StudentID, &e.EventType, &e.Detail, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountStrikes returns how many strike-counting events an attempt has
// accumulated. Fullscreen exits are audited but never count.
func (r *SecurityEventRepository) CountStrikes(ctx context.Context, attemptID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM security_events
		 WHERE attempt_id = $1 AND event_type <> $2`,
		attemptID, model.ViolationFullscreen,
	).Scan(&count)
	return count, err
}

// CountsByExam returns the number of events recorded per student for an exam.
func (r *SecurityEventRepository) CountsByExam(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM security_events
		 WHERE exam_id = $1
		 GROUP BY student_id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}
