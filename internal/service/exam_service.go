package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dyaksa-edu/cbt-portal/internal/config"
	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/dyaksa-edu/cbt-portal/internal/repository"
	"github.com/dyaksa-edu/cbt-portal/internal/response"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain errors.
var (
	ErrExamNotDraft  = errors.New("exam status is not draft")
	ErrExamNotActive = errors.New("exam is not active")
	ErrNoQuestions   = errors.New("exam has no questions, cannot activate")
)

// ExamService handles exam lifecycle and the Redis fast lane: the student
// paper and the answer key are cached on activation so the hot exam path
// never touches PostgreSQL.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// List retrieves exams with pagination.
func (s *ExamService) List(ctx context.Context, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	limit := perPage
	offset := (page - 1) * perPage

	exams, total, err := s.examRepo.ListPaginated(ctx, limit, offset)
	if err != nil {
		return nil, nil, err
	}

	if exams == nil {
		exams = []model.Exam{}
	}

	totalPages := (total + perPage - 1) / perPage

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}

	return exams, pagination, nil
}

// ListActive retrieves all active exams, for the student dashboard.
func (s *ExamService) ListActive(ctx context.Context) ([]model.Exam, error) {
	return s.examRepo.ListByStatus(ctx, model.ExamStatusActive)
}

// Create inserts a new exam as draft.
func (s *ExamService) Create(ctx context.Context, exam *model.Exam) error {
	exam.Status = model.ExamStatusDraft
	return s.examRepo.Create(ctx, exam)
}

// Update modifies an existing draft exam.
func (s *ExamService) Update(ctx context.Context, exam *model.Exam) error {
	existing, err := s.examRepo.GetByID(ctx, exam.ID)
	if err != nil {
		return err
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Update(ctx, exam)
}

// Schedule moves a draft exam to scheduled. It must already have questions.
func (s *ExamService) Schedule(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	return s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusScheduled)
}

// Activate opens an exam to students and warms the Redis caches. This is the
// critical path that populates the fast lane.
func (s *ExamService) Activate(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}

	if exam.Status != model.ExamStatusDraft && exam.Status != model.ExamStatusScheduled {
		return ErrExamNotActive
	}

	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}

	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusActive); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam activated")
	return nil
}

// Complete closes an active exam. Running attempts keep their wall-clock
// budget; no new attempts can start.
func (s *ExamService) Complete(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusActive {
		return ErrExamNotActive
	}
	return s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusCompleted)
}

// Delete removes a draft exam.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Delete(ctx, id)
}

// WarmExamCache loads an exam's payload, duration and answer key from
// PostgreSQL into Redis. Used by Activate, PrewarmAllCaches and the cache-miss
// self-heal paths.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	// Build the student-facing payload (no correctness flags).
	studentQuestions := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		opts := make([]model.OptionForStudent, len(q.Options))
		for j, o := range q.Options {
			opts[j] = model.OptionForStudent{
				ID:          o.ID,
				OptionLabel: o.OptionLabel,
				OptionText:  o.OptionText,
			}
		}
		studentQuestions[i] = model.QuestionForStudent{
			ID:            q.ID,
			QuestionText:  q.QuestionText,
			QuestionOrder: q.QuestionOrder,
			Options:       opts,
		}
	}

	payload := model.ExamPayload{
		ExamID:          exam.ID,
		Title:           exam.Title,
		Code:            exam.Code,
		DurationMinutes: exam.DurationMinutes,
		PassingScore:    exam.PassingScore,
		Questions:       studentQuestions,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Build the answer key map for RAM grading.
	answerKey := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		for _, o := range q.Options {
			if o.IsCorrect {
				answerKey[q.ID.String()] = o.ID.String()
			}
		}
	}

	examID := exam.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(examID), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.ExamDurationKey(examID), exam.DurationMinutes, 0)
	pipe.Del(ctx, config.CacheKey.ExamAnswerKey(examID))
	pipe.HSet(ctx, config.CacheKey.ExamAnswerKey(examID), answerKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", examID).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all active exams into Redis on application startup.
// This prevents lazy-loading races under thundering herd traffic.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListByStatus(ctx, model.ExamStatusActive)
	if err != nil {
		return fmt.Errorf("list active exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No active exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(exams)).Msg("Prewarming active exams...")

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// GetExamPayload retrieves the cached student paper. On a cache miss for an
// active exam it rebuilds the cache from PostgreSQL.
func (s *ExamService) GetExamPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		exam, dbErr := s.examRepo.GetByID(ctx, examID)
		if dbErr != nil {
			return nil, fmt.Errorf("payload not cached and exam not found: %w", dbErr)
		}
		if exam.Status != model.ExamStatusActive {
			return nil, ErrExamNotActive
		}
		if err := s.WarmExamCache(ctx, exam); err != nil {
			return nil, err
		}
		data, err = s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			return nil, fmt.Errorf("get payload after self-heal: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload model.ExamPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

// GetAnswerKey retrieves the answer key for RAM grading, falling back to
// PostgreSQL (and self-healing the cache) on a miss.
func (s *ExamService) GetAnswerKey(ctx context.Context, examID uuid.UUID) (map[string]string, error) {
	key := config.CacheKey.ExamAnswerKey(examID.String())
	result, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(result) > 0 {
		return result, nil
	}

	answerKey, err := s.questionRepo.AnswerKey(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("answer key fallback: %w", err)
	}
	if len(answerKey) == 0 {
		return nil, ErrNoQuestions
	}

	heal := make(map[string]interface{}, len(answerKey))
	for qid, oid := range answerKey {
		heal[qid] = oid
	}
	if err := s.rdb.HSet(ctx, key, heal).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Answer key self-heal failed")
	}

	return answerKey, nil
}
