package handler

import (
	"errors"
	"net/http"

	"github.com/dyaksa-edu/cbt-portal/internal/middleware"
	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/dyaksa-edu/cbt-portal/internal/response"
	"github.com/dyaksa-edu/cbt-portal/internal/service"
	"github.com/dyaksa-edu/cbt-portal/internal/session"
	"github.com/dyaksa-edu/cbt-portal/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StudentPortalHandler serves the student-facing exam surface: dashboard,
// attempt lifecycle, answer saves and result retrieval. The WebSocket stream
// in WSHandler covers the live session; these REST endpoints are the fallback
// path and the pre/post-session surface.
type StudentPortalHandler struct {
	attemptService *service.AttemptService
	examService    *service.ExamService
	sessions       *session.Manager
}

func NewStudentPortalHandler(
	attemptService *service.AttemptService,
	examService *service.ExamService,
	sessions *session.Manager,
) *StudentPortalHandler {
	return &StudentPortalHandler{
		attemptService: attemptService,
		examService:    examService,
		sessions:       sessions,
	}
}

// Dashboard lists active exams overlaid with the student's newest attempt on
// each, plus the score for finished ones.
func (h *StudentPortalHandler) Dashboard(c *gin.Context) {
	claims := middleware.GetClaims(c)

	exams, err := h.attemptService.Dashboard(c.Request.Context(), claims.UserID)
	if err != nil {
		response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, exams)
}

// StartAttempt opens (or resumes) the student's attempt on an exam. Resuming
// returns the same attempt; concurrent starts collapse onto one row.
func (h *StudentPortalHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	examID, ok := parseUUIDParam(c, "exam_id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotAvailable) {
			response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
			return
		}
		response.Fail(c, http.StatusServiceUnavailable, response.ErrStartFailedRetry)
		return
	}

	remaining, err := h.attemptService.RemainingSeconds(c.Request.Context(), attempt)
	if err != nil {
		response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"attempt":           attempt,
		"remaining_seconds": remaining,
	})
}

// GetExamPaper returns the sanitized question payload for the attempt's exam.
// Only the owner of a running attempt may fetch it.
func (h *StudentPortalHandler) GetExamPaper(c *gin.Context) {
	attempt, ok := h.ownedAttempt(c)
	if !ok {
		return
	}
	if attempt.Status != model.AttemptStatusInProgress {
		response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
		return
	}

	payload, err := h.examService.GetExamPayload(c.Request.Context(), attempt.ExamID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotActive) {
			response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
			return
		}
		response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// GetState returns remaining time and saved answers so a client can rebuild
// its view after a reload or reconnect.
func (h *StudentPortalHandler) GetState(c *gin.Context) {
	attempt, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	state, err := h.attemptService.State(c.Request.Context(), attempt)
	if err != nil {
		response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// SaveAnswer is the REST fallback for answer saves when the WebSocket stream
// is unavailable. An empty option_id clears the selection.
func (h *StudentPortalHandler) SaveAnswer(c *gin.Context) {
	attempt, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	var optionID *uuid.UUID
	if req.OptionID != "" {
		parsed, err := uuid.Parse(req.OptionID)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		optionID = &parsed
	}

	if err := h.attemptService.SaveAnswerChecked(c.Request.Context(), attempt, questionID, optionID); err != nil {
		if errors.Is(err, service.ErrAttemptFinished) {
			response.Fail(c, http.StatusConflict, response.ErrAttemptFinished)
			return
		}
		response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question_id": req.QuestionID})
}

// Submit finalizes the attempt as completed. The status transition is
// first-writer-wins, so a concurrent time-up or termination simply makes this
// return the attempt's actual terminal state.
func (h *StudentPortalHandler) Submit(c *gin.Context) {
	attempt, ok := h.ownedAttempt(c)
	if !ok {
		return
	}

	final, err := h.attemptService.Finalize(c.Request.Context(), attempt.ID, model.AttemptStatusCompleted, "")
	if err != nil {
		response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	// Wind down any live session; its own finalize will observe the
	// terminal row and notify the socket.
	if ctrl, attached := h.sessions.Get(attempt.ID); attached {
		ctrl.Submit()
	}

	response.Success(c, http.StatusOK, final)
}

// GetResult returns the student's result for a finished attempt.
func (h *StudentPortalHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseUUIDParam(c, "attempt_id")
	if !ok {
		return
	}

	result, err := h.attemptService.ResultByAttempt(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		case errors.Is(err, service.ErrResultNotReady):
			response.Fail(c, http.StatusConflict, response.ErrResultNotReady)
		default:
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

func (h *StudentPortalHandler) ownedAttempt(c *gin.Context) (*model.Attempt, bool) {
	claims := middleware.GetClaims(c)
	attemptID, ok := parseUUIDParam(c, "attempt_id")
	if !ok {
		return nil, false
	}

	attempt, err := h.attemptService.GetOwnedAttempt(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrAttemptNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		} else {
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return nil, false
	}
	return attempt, true
}
