package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/dyaksa-edu/cbt-portal/internal/middleware"
	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/dyaksa-edu/cbt-portal/internal/response"
	"github.com/dyaksa-edu/cbt-portal/internal/service"
	"github.com/dyaksa-edu/cbt-portal/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ExamHandler handles admin exam lifecycle, results and analytics endpoints.
type ExamHandler struct {
	examService   *service.ExamService
	resultService *service.ResultService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, resultService *service.ResultService) *ExamHandler {
	return &ExamHandler{examService: examService, resultService: resultService}
}

// List godoc
// GET /api/v1/admin/exams
func (h *ExamHandler) List(c *gin.Context) {
	page, perPage := pageParams(c)

	exams, pagination, err := h.examService.List(c.Request.Context(), page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// Get godoc
// GET /api/v1/admin/exams/:exam_id
func (h *ExamHandler) Get(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Create godoc
// POST /api/v1/admin/exams
func (h *ExamHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam := &model.Exam{
		Title:           req.Title,
		Code:            req.Code,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		PassingScore:    req.PassingScore,
		CreatedBy:       claims.UserID,
	}

	if err := h.examService.Create(c.Request.Context(), exam); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// Update godoc
// PUT /api/v1/admin/exams/:exam_id
func (h *ExamHandler) Update(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.UpdateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	if req.Title != "" {
		exam.Title = req.Title
	}
	if req.Code != "" {
		exam.Code = req.Code
	}
	if req.Description != "" {
		exam.Description = req.Description
	}
	if req.DurationMinutes > 0 {
		exam.DurationMinutes = req.DurationMinutes
	}
	if req.PassingScore != nil {
		exam.PassingScore = *req.PassingScore
	}

	if err := h.examService.Update(c.Request.Context(), exam); err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// Schedule godoc
// POST /api/v1/admin/exams/:exam_id/schedule
func (h *ExamHandler) Schedule(c *gin.Context) {
	h.transition(c, h.examService.Schedule)
}

// Activate godoc
// POST /api/v1/admin/exams/:exam_id/activate
// Opens the exam to students and warms the Redis payload + answer key caches.
func (h *ExamHandler) Activate(c *gin.Context) {
	h.transition(c, h.examService.Activate)
}

// Complete godoc
// POST /api/v1/admin/exams/:exam_id/complete
func (h *ExamHandler) Complete(c *gin.Context) {
	h.transition(c, h.examService.Complete)
}

// Delete godoc
// DELETE /api/v1/admin/exams/:exam_id
func (h *ExamHandler) Delete(c *gin.Context) {
	h.transition(c, h.examService.Delete)
}

// ListResults godoc
// GET /api/v1/admin/exams/:exam_id/results
func (h *ExamHandler) ListResults(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}
	page, perPage := pageParams(c)

	results, pagination, err := h.resultService.ListByExam(c.Request.Context(), examID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}

// GetAnalytics godoc
// GET /api/v1/admin/exams/:exam_id/analytics
func (h *ExamHandler) GetAnalytics(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	analytics, err := h.resultService.Analytics(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"analytics": analytics})
}

// GetSecurityCounts godoc
// GET /api/v1/admin/exams/:exam_id/security-counts
// Per-student violation counts for an exam.
func (h *ExamHandler) GetSecurityCounts(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	counts, err := h.resultService.SecurityCounts(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"counts": counts})
}

// GetSecurityEvents godoc
// GET /api/v1/admin/attempts/:attempt_id/security-events
// Full proctoring audit trail of one attempt.
func (h *ExamHandler) GetSecurityEvents(c *gin.Context) {
	attemptID, ok := parseUUIDParam(c, "attempt_id")
	if !ok {
		return
	}

	events, err := h.resultService.SecurityEvents(c.Request.Context(), attemptID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// transition runs a status transition and maps domain errors to API codes.
func (h *ExamHandler) transition(c *gin.Context, fn func(context.Context, uuid.UUID) error) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	if err := fn(c.Request.Context(), examID); err != nil {
		h.failLifecycle(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

func (h *ExamHandler) failLifecycle(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrExamNotDraft)
	case errors.Is(err, service.ErrExamNotActive):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusConflict, response.ErrNoQuestions)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
