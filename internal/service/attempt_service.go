package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dyaksa-edu/cbt-portal/internal/config"
	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/dyaksa-edu/cbt-portal/internal/repository"
	"github.com/dyaksa-edu/cbt-portal/internal/scoring"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain errors.
var (
	ErrExamNotAvailable = errors.New("exam is not available for taking")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptFinished  = errors.New("attempt already finished")
	ErrResultNotReady   = errors.New("result not ready yet")
)

// AttemptService owns the attempt lifecycle: start/resume, answer autosave,
// the terminal transition with in-RAM grading, and result retrieval. It is
// the production session.Backend.
type AttemptService struct {
	attemptRepo *repository.AttemptRepository
	answerRepo  *repository.AnswerRepository
	resultRepo  *repository.ResultRepository
	eventRepo   *repository.SecurityEventRepository
	examSvc     *ExamService
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	answerRepo *repository.AnswerRepository,
	resultRepo *repository.ResultRepository,
	eventRepo *repository.SecurityEventRepository,
	examSvc *ExamService,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attemptRepo: attemptRepo,
		answerRepo:  answerRepo,
		resultRepo:  resultRepo,
		eventRepo:   eventRepo,
		examSvc:     examSvc,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start opens or resumes an attempt. The exam must be active; this is checked
// on resume too, since an exam can close while a student is away. Concurrent
// starts from two tabs converge on the same attempt row.
func (s *AttemptService) Start(ctx context.Context, examID uuid.UUID, studentID int) (*model.Attempt, error) {
	exam, err := s.examSvc.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotAvailable
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusActive {
		return nil, ErrExamNotAvailable
	}

	existing, err := s.attemptRepo.FindActive(ctx, examID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}
	if existing != nil {
		// Make sure the hot path has the start time even after a cache flush.
		s.cacheStartTime(ctx, existing)
		return existing, nil
	}

	attempt := &model.Attempt{
		ExamID:    examID,
		StudentID: studentID,
		Status:    model.AttemptStatusInProgress,
	}

	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start won the insert; adopt its attempt.
			existing, fetchErr := s.attemptRepo.FindActive(ctx, examID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			s.cacheStartTime(ctx, existing)
			return existing, nil
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.cacheStartTime(ctx, attempt)

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Attempt started")
	return attempt, nil
}

func (s *AttemptService) cacheStartTime(ctx context.Context, attempt *model.Attempt) {
	key := config.CacheKey.AttemptStartKey(attempt.ExamID.String(), attempt.StudentID)
	if err := s.rdb.Set(ctx, key, attempt.StartedAt.Unix(), 0).Err(); err != nil {
		// The remaining-time fallback reads PostgreSQL, so this is not fatal.
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to cache start time")
	}
}

// GetOwnedAttempt retrieves an attempt and verifies the student owns it.
func (s *AttemptService) GetOwnedAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

// RemainingSeconds computes the wall-clock countdown for an attempt:
// duration minus elapsed since start, clamped at zero. Start time and
// duration come from Redis with a PostgreSQL fallback that self-heals the
// cache.
func (s *AttemptService) RemainingSeconds(ctx context.Context, attempt *model.Attempt) (int, error) {
	if attempt.Status.IsTerminal() {
		return 0, nil
	}

	examID := attempt.ExamID.String()

	var durationMinutes int
	durationStr, err := s.rdb.Get(ctx, config.CacheKey.ExamDurationKey(examID)).Result()
	if errors.Is(err, redis.Nil) {
		exam, dbErr := s.examSvc.GetByID(ctx, attempt.ExamID)
		if dbErr != nil {
			return 0, fmt.Errorf("duration not in cache or db: %w", dbErr)
		}
		durationMinutes = exam.DurationMinutes
		_ = s.rdb.Set(ctx, config.CacheKey.ExamDurationKey(examID), durationMinutes, 0)
	} else if err != nil {
		return 0, fmt.Errorf("get duration: %w", err)
	} else {
		durationMinutes, err = strconv.Atoi(durationStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration format in cache: %w", err)
		}
	}

	startKey := config.CacheKey.AttemptStartKey(examID, attempt.StudentID)
	startUnix := attempt.StartedAt.Unix()
	val, err := s.rdb.Get(ctx, startKey).Result()
	if errors.Is(err, redis.Nil) {
		_ = s.rdb.Set(ctx, startKey, startUnix, 0)
	} else if err != nil {
		return 0, fmt.Errorf("get start time: %w", err)
	} else {
		startUnix, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid start time format in cache: %w", err)
		}
	}

	endTime := time.Unix(startUnix, 0).Add(time.Duration(durationMinutes) * time.Minute)
	remaining := time.Until(endTime)
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining.Seconds()), nil
}

// State rebuilds what a (re)joining client needs: the countdown and every
// answer saved so far.
func (s *AttemptService) State(ctx context.Context, attempt *model.Attempt) (*model.AttemptState, error) {
	answers, err := s.savedAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.RemainingSeconds(ctx, attempt)
	if err != nil {
		return nil, err
	}

	return &model.AttemptState{
		AttemptID:        attempt.ID,
		ExamID:           attempt.ExamID,
		Status:           attempt.Status,
		RemainingSeconds: remaining,
		Answers:          answers,
	}, nil
}

// savedAnswers reads the autosave hash, falling back to PostgreSQL (and
// re-warming the hash) when Redis lost it.
func (s *AttemptService) savedAnswers(ctx context.Context, attemptID uuid.UUID) (map[string]string, error) {
	key := config.CacheKey.AttemptAnswersKey(attemptID.String())
	answers, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get saved answers: %w", err)
	}
	if len(answers) > 0 {
		return answers, nil
	}

	answers, err = s.answerRepo.MapByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("saved answers fallback: %w", err)
	}
	if len(answers) > 0 {
		heal := make(map[string]interface{}, len(answers))
		for qid, oid := range answers {
			heal[qid] = oid
		}
		_ = s.rdb.HSet(ctx, key, heal).Err()
	}
	return answers, nil
}

// CountStrikes returns the strikes an attempt accumulated before this
// session attached, so a reconnect cannot reset the two-strike policy.
// CountStrikes seeds a reconnecting session's strike counter. The audit
// table lags behind the batched writer, so the Redis counter incremented at
// record time is consulted too and the larger value wins.
func (s *AttemptService) CountStrikes(ctx context.Context, attemptID uuid.UUID) (int, error) {
	landed, err := s.eventRepo.CountStrikes(ctx, attemptID)
	if err != nil {
		return 0, err
	}

	cached, err := s.rdb.Get(ctx, config.CacheKey.AttemptStrikesKey(attemptID.String())).Int()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Strike counter read failed")
		}
		return landed, nil
	}
	if cached > landed {
		return cached, nil
	}
	return landed, nil
}

// QuestionCount reports how many questions the exam carries, read from the
// cached answer key.
func (s *AttemptService) QuestionCount(ctx context.Context, examID uuid.UUID) (int, error) {
	key, err := s.examSvc.GetAnswerKey(ctx, examID)
	if err != nil {
		return 0, err
	}
	return len(key), nil
}

// SaveAnswer writes the selection to the autosave hash and queues the
// durable upsert. Implements session.Backend. A nil optionID clears the
// selection.
func (s *AttemptService) SaveAnswer(ctx context.Context, attemptID, questionID uuid.UUID, optionID *uuid.UUID) error {
	key := config.CacheKey.AttemptAnswersKey(attemptID.String())

	if optionID == nil {
		if err := s.rdb.HDel(ctx, key, questionID.String()).Err(); err != nil {
			return fmt.Errorf("clear answer: %w", err)
		}
	} else {
		if err := s.rdb.HSet(ctx, key, questionID.String(), optionID.String()).Err(); err != nil {
			return fmt.Errorf("autosave answer: %w", err)
		}
	}

	var optionStr *string
	if optionID != nil {
		v := optionID.String()
		optionStr = &v
	}
	// queued_at orders replays: a requeued old save must not overwrite a
	// newer selection for the same question.
	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id":  attemptID.String(),
		"question_id": questionID.String(),
		"option_id":   optionStr,
		"queued_at":   time.Now().UnixNano(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		return fmt.Errorf("queue answer: %w", err)
	}
	return nil
}

// SaveAnswerChecked is the REST save path: it rejects writes against a
// finished attempt before delegating to SaveAnswer.
func (s *AttemptService) SaveAnswerChecked(ctx context.Context, attempt *model.Attempt, questionID uuid.UUID, optionID *uuid.UUID) error {
	if attempt.Status.IsTerminal() {
		return ErrAttemptFinished
	}
	return s.SaveAnswer(ctx, attempt.ID, questionID, optionID)
}

// RecordViolation queues one proctoring event for the batched audit writer.
// Implements session.Backend.
func (s *AttemptService) RecordViolation(ctx context.Context, e model.SecurityEvent) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id": e.AttemptID.String(),
		"exam_id":    e.ExamID.String(),
		"student_id": e.StudentID,
		"event_type": e.EventType,
		"detail":     e.Detail,
		"timestamp":  time.Now().Unix(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		return fmt.Errorf("queue violation: %w", err)
	}

	// The audit row lands with the batch writer's delay; count the strike
	// now so a reconnect inside that window still sees it.
	if model.IsStrikeEvent(e.EventType) {
		key := config.CacheKey.AttemptStrikesKey(e.AttemptID.String())
		if err := s.rdb.Incr(ctx, key).Err(); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", e.AttemptID.String()).Msg("Strike counter increment failed")
		}
	}
	return nil
}

// Finalize runs the terminal transition. The UPDATE is a CAS on
// status='in_progress', so exactly one of any concurrent finalizers (submit,
// countdown, sweeper, duplicate submit after reconnect) wins and grades; the
// losers get the attempt's actual terminal state back and must not re-score.
// Implements session.Backend.
func (s *AttemptService) Finalize(ctx context.Context, attemptID uuid.UUID, status model.AttemptStatus, reason string) (*model.Attempt, error) {
	final, won, err := s.attemptRepo.Finish(ctx, attemptID, status, reason)
	if err != nil {
		return nil, fmt.Errorf("finish attempt: %w", err)
	}
	if !won {
		current, err := s.attemptRepo.GetByID(ctx, attemptID)
		if err != nil {
			return nil, fmt.Errorf("attempt finished elsewhere, fetch failed: %w", err)
		}
		return current, nil
	}

	if err := s.grade(ctx, final); err != nil {
		// The attempt is already terminal; grading failure must not undo it.
		s.log.Error().Err(err).
			Str("attempt_id", attemptID.String()).
			Msg("CRITICAL: grading failed, result missing for finished attempt")
		return final, err
	}
	return final, nil
}

// grade scores the attempt in RAM and queues the write-once result together
// with the analytics fold.
func (s *AttemptService) grade(ctx context.Context, attempt *model.Attempt) error {
	exam, err := s.examSvc.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}

	answerKey, err := s.examSvc.GetAnswerKey(ctx, attempt.ExamID)
	if err != nil {
		return fmt.Errorf("get answer key: %w", err)
	}

	answers, err := s.savedAnswers(ctx, attempt.ID)
	if err != nil {
		return err
	}

	outcome := scoring.Grade(answerKey, answers, exam.PassingScore)

	completionSeconds := 0.0
	if attempt.EndedAt != nil {
		completionSeconds = attempt.EndedAt.Sub(attempt.StartedAt).Seconds()
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"attempt_id":         attempt.ID.String(),
		"exam_id":            attempt.ExamID.String(),
		"student_id":         attempt.StudentID,
		"score":              outcome.Score,
		"total_questions":    outcome.TotalQuestions,
		"correct_answers":    outcome.CorrectAnswers,
		"passed":             outcome.Passed,
		"completion_seconds": completionSeconds,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, payload).Err(); err != nil {
		// Queue down: persist directly so the result is not lost, keeping the
		// fold on the same code path the worker uses.
		s.log.Error().Err(err).
			Str("attempt_id", attempt.ID.String()).
			Msg("Result queue unavailable, persisting directly")
		return s.persistResultNow(ctx, attempt, outcome, completionSeconds)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("score", outcome.Score).
		Int("correct", outcome.CorrectAnswers).
		Int("total", outcome.TotalQuestions).
		Bool("passed", outcome.Passed).
		Msg("Attempt graded")
	return nil
}

func (s *AttemptService) persistResultNow(ctx context.Context, attempt *model.Attempt, outcome scoring.Outcome, completionSeconds float64) error {
	res := &model.Result{
		AttemptID:      attempt.ID,
		ExamID:         attempt.ExamID,
		StudentID:      attempt.StudentID,
		Score:          outcome.Score,
		TotalQuestions: outcome.TotalQuestions,
		CorrectAnswers: outcome.CorrectAnswers,
		Passed:         outcome.Passed,
	}
	created, err := s.resultRepo.Create(ctx, res)
	if err != nil {
		return fmt.Errorf("persist result: %w", err)
	}
	if !created {
		return nil
	}
	return s.resultRepo.ApplySample(ctx, attempt.ExamID, scoring.Sample{
		Score:             outcome.Score,
		Passed:            outcome.Passed,
		CompletionSeconds: completionSeconds,
	})
}

// ResultByAttempt retrieves the student's result for a finished attempt.
func (s *AttemptService) ResultByAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Result, error) {
	attempt, err := s.GetOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if !attempt.Status.IsTerminal() {
		return nil, ErrResultNotReady
	}

	res, err := s.resultRepo.GetByAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Finished but the results worker has not landed it yet.
			return nil, ErrResultNotReady
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	return res, nil
}

// DashboardExam is an active exam with the student's own attempt overlay.
type DashboardExam struct {
	model.Exam
	AttemptID     *uuid.UUID           `json:"attempt_id,omitempty"`
	AttemptStatus *model.AttemptStatus `json:"attempt_status,omitempty"`
	Score         *int                 `json:"score,omitempty"`
}

// Dashboard lists active exams with the student's attempt status and score.
func (s *AttemptService) Dashboard(ctx context.Context, studentID int) ([]DashboardExam, error) {
	exams, err := s.examSvc.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active exams: %w", err)
	}

	attempts, err := s.attemptRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	// Newest attempt per exam wins the overlay.
	attemptMap := make(map[uuid.UUID]*model.Attempt, len(attempts))
	for i := range attempts {
		if _, ok := attemptMap[attempts[i].ExamID]; !ok {
			attemptMap[attempts[i].ExamID] = &attempts[i]
		}
	}

	dashboard := make([]DashboardExam, 0, len(exams))
	for _, exam := range exams {
		entry := DashboardExam{Exam: exam}
		if attempt, ok := attemptMap[exam.ID]; ok {
			entry.AttemptID = &attempt.ID
			entry.AttemptStatus = &attempt.Status
			if attempt.Status.IsTerminal() {
				if res, err := s.resultRepo.GetByAttempt(ctx, attempt.ID); err == nil {
					entry.Score = &res.Score
				}
			}
		}
		dashboard = append(dashboard, entry)
	}
	return dashboard, nil
}
