package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dyaksa-edu/cbt-portal/internal/config"
	"github.com/dyaksa-edu/cbt-portal/internal/middleware"
	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/dyaksa-edu/cbt-portal/internal/response"
	"github.com/dyaksa-edu/cbt-portal/internal/service"
	"github.com/dyaksa-edu/cbt-portal/internal/session"
	ws "github.com/dyaksa-edu/cbt-portal/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs the live attempt stream: one socket per attempt, bridged to
// a session.Controller that owns the countdown and the strike counter.
type WSHandler struct {
	cfg            *config.Config
	attemptService *service.AttemptService
	sessions       *session.Manager
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(cfg *config.Config, attemptService *service.AttemptService, sessions *session.Manager, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		cfg:            cfg,
		attemptService: attemptService,
		sessions:       sessions,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(cfg.AllowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
// Upgrades to WebSocket, attaches a session controller to the attempt and
// streams countdown ticks, warnings and the terminal notice while accepting
// answer saves, security signals and the submit action.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(rawConn)
	defer conn.Close()

	attempt, err := h.attemptService.GetOwnedAttempt(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		conn.WriteError("attempt not found")
		return
	}
	if attempt.Status != model.AttemptStatusInProgress {
		conn.WriteError("attempt is already finished")
		return
	}

	remaining, err := h.attemptService.RemainingSeconds(c.Request.Context(), attempt)
	if err != nil {
		h.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Remaining time lookup failed")
		conn.WriteError("failed to resolve remaining time")
		return
	}
	strikes, err := h.attemptService.CountStrikes(c.Request.Context(), attempt.ID)
	if err != nil {
		h.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Strike count lookup failed")
		conn.WriteError("failed to resolve session state")
		return
	}
	questionCount, err := h.attemptService.QuestionCount(c.Request.Context(), attempt.ExamID)
	if err != nil {
		// Navigation acks degrade; everything else still works.
		h.log.Warn().Err(err).Str("exam_id", attempt.ExamID.String()).Msg("Question count lookup failed")
	}

	ctrl := session.NewController(session.Options{
		Attempt:            attempt,
		RemainingSeconds:   remaining,
		Violations:         strikes,
		TimeWarningSeconds: h.cfg.TimeWarningSeconds,
		MaxViolations:      h.cfg.MaxViolations,
		QuestionCount:      questionCount,
		Backend:            h.attemptService,
		Log:                h.log,
	})
	if err := h.sessions.Attach(ctrl); err != nil {
		conn.WriteError(response.GetMessage(response.ErrSessionAttached))
		return
	}

	// The controller outlives the request context on purpose: a dropped
	// socket detaches the session but leaves the countdown to the sweeper.
	runCtx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.sessions.Detach(ctrl)
	}()
	go ctrl.Run(runCtx)

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("attempt_id", attempt.ID.String()).
		Logger()
	wsLog.Info().Int("remaining_seconds", remaining).Int("violations", strikes).Msg("Student connected")

	state, err := h.attemptService.State(c.Request.Context(), attempt)
	if err != nil {
		wsLog.Error().Err(err).Msg("State snapshot failed")
		conn.WriteError("failed to load attempt state")
		return
	}
	conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: state})

	// Forward controller notices until its loop exits or the socket dies.
	go func() {
		for notice := range ctrl.Notices() {
			if err := conn.WriteTyped(ws.NoticeResponse{Event: ws.EventNotice, Notice: notice}); err != nil {
				return
			}
		}
	}()

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		select {
		case <-ctrl.Done():
			// Terminal notice already went out; nothing left to accept.
			return
		default:
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, ctrl, &msg)
		case ws.ActionSignal:
			ctrl.ReportSignal(session.SignalKind(msg.Kind), msg.Detail)
		case ws.ActionNavigate:
			ctrl.Navigate(msg.Index)
		case ws.ActionSubmit:
			ctrl.Submit()
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

// handleAnswer validates the frame and hands the selection to the controller.
func (h *WSHandler) handleAnswer(conn *ws.Conn, ctrl *session.Controller, msg *ws.RequestPayload) {
	if msg.QID == "" {
		conn.WriteError("q_id is required")
		return
	}
	questionID, err := uuid.Parse(msg.QID)
	if err != nil {
		conn.WriteError("invalid q_id format")
		return
	}

	var optionID *uuid.UUID
	if msg.OptionID != "" {
		parsed, err := uuid.Parse(msg.OptionID)
		if err != nil {
			conn.WriteError("invalid option_id format")
			return
		}
		optionID = &parsed
	}

	ctrl.SaveAnswer(questionID, optionID)
	conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, QID: msg.QID})
}
