package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/dyaksa-edu/cbt-portal/internal/repository"
	"github.com/dyaksa-edu/cbt-portal/internal/response"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ResultService serves the admin-facing result and analytics readouts.
type ResultService struct {
	resultRepo *repository.ResultRepository
	eventRepo  *repository.SecurityEventRepository
}

// NewResultService creates a new ResultService.
func NewResultService(resultRepo *repository.ResultRepository, eventRepo *repository.SecurityEventRepository) *ResultService {
	return &ResultService{resultRepo: resultRepo, eventRepo: eventRepo}
}

// ListByExam retrieves paginated per-student results for an exam.
func (s *ResultService) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.StudentResult, *response.Pagination, error) {
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

	results, total, err := s.resultRepo.ListByExam(ctx, examID, limit, offset)
	if err != nil {
		return nil, nil, err
	}
	if results == nil {
		results = []repository.StudentResult{}
	}

	totalPages := (total + perPage - 1) / perPage
	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}
	return results, pagination, nil
}

// Analytics returns the running aggregate for an exam. An exam with no
// graded attempts yet yields a zero aggregate, not an error.
func (s *ResultService) Analytics(ctx context.Context, examID uuid.UUID) (*model.ExamAnalytics, error) {
	analytics, err := s.resultRepo.GetAnalytics(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.ExamAnalytics{ExamID: examID}, nil
		}
		return nil, fmt.Errorf("get analytics: %w", err)
	}
	return analytics, nil
}

// SecurityEvents returns the audit trail of one attempt.
func (s *ResultService) SecurityEvents(ctx context.Context, attemptID uuid.UUID) ([]model.SecurityEvent, error) {
	events, err := s.eventRepo.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.SecurityEvent{}
	}
	return events, nil
}

// SecurityCounts returns per-student violation counts for an exam.
func (s *ResultService) SecurityCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	return s.eventRepo.CountsByExam(ctx, examID)
}
