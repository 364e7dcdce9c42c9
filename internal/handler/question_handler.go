package handler

import (
	"errors"
	"net/http"

	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/dyaksa-edu/cbt-portal/internal/response"
	"github.com/dyaksa-edu/cbt-portal/internal/service"
	"github.com/dyaksa-edu/cbt-portal/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

type QuestionHandler struct {
	questionService *service.QuestionService
}

func NewQuestionHandler(questionService *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService}
}

// ListByExam returns the full question set of an exam, correct answers included.
// Admin surface only; students receive the sanitized paper from the exam cache.
func (h *QuestionHandler) ListByExam(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	questions, err := h.questionService.ListByExam(c.Request.Context(), examID)
	if err != nil {
		response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, questions)
}

func (h *QuestionHandler) Add(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.questionService.Add(c.Request.Context(), examID, &req)
	if err != nil {
		h.failQuestionWrite(c, err)
		return
	}

	response.Success(c, http.StatusCreated, question)
}

func (h *QuestionHandler) ReplaceAll(c *gin.Context) {
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.questionService.ReplaceAll(c.Request.Context(), examID, &req); err != nil {
		h.failQuestionWrite(c, err)
		return
	}

	questions, err := h.questionService.ListByExam(c.Request.Context(), examID)
	if err != nil {
		response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, questions)
}

func (h *QuestionHandler) failQuestionWrite(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrExamNotDraft)
	case errors.Is(err, service.ErrQuestionSetInvalid):
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionSetInvalid)
	default:
		response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
