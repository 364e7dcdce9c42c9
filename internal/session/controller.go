package session

import (
	"context"
	"time"

	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Backend is what the controller needs from the rest of the system. The
// attempt service implements it in production; tests inject a fake.
type Backend interface {
	// SaveAnswer persists one answer selection. Must be idempotent per
	// (attempt, question); a nil optionID clears the selection.
	SaveAnswer(ctx context.Context, attemptID, questionID uuid.UUID, optionID *uuid.UUID) error
	// RecordViolation appends one event to the audit trail.
	RecordViolation(ctx context.Context, e model.SecurityEvent) error
	// Finalize moves the attempt to a terminal status. Only the first
	// terminal transition wins; on a lost race Finalize returns the
	// attempt in its actual terminal state and no error.
	Finalize(ctx context.Context, attemptID uuid.UUID, status model.AttemptStatus, reason string) (*model.Attempt, error)
}

// Options configures a Controller for one live attempt.
type Options struct {
	Attempt *model.Attempt
	// RemainingSeconds seeds the countdown from wall clock, computed by the
	// caller as duration minus elapsed, clamped at zero.
	RemainingSeconds int
	// Violations seeds the strike counter with events recorded before this
	// session attached. The count never decays within an attempt.
	Violations         int
	TimeWarningSeconds int
	MaxViolations      int
	// QuestionCount bounds navigation. Zero disables position tracking.
	QuestionCount int
	Backend            Backend
	// Ticks overrides the internal 1 Hz ticker. Tests drive the countdown
	// through it; production leaves it nil.
	Ticks <-chan time.Time
	Log   zerolog.Logger
}

// Controller owns the live state of one attempt: countdown, strike counter
// and the one-shot time warning. Everything flows through a single event
// loop, so no state here needs a lock.
type Controller struct {
	attempt *model.Attempt
	backend Backend
	ticks   <-chan time.Time
	log     zerolog.Logger

	remaining     int
	violations    int
	warnAt        int
	maxViolations int
	questionCount int
	position      int
	timeWarned    bool
	finished      bool

	inbox   chan event
	notices chan Notice
	done    chan struct{}
}

// NewController creates a controller. Call Run in a goroutine to start it.
func NewController(opts Options) *Controller {
	return &Controller{
		attempt: opts.Attempt,
		backend: opts.Backend,
		ticks:   opts.Ticks,
		log: opts.Log.With().
			Str("component", "session_controller").
			Str("attempt_id", opts.Attempt.ID.String()).
			Logger(),
		remaining:     opts.RemainingSeconds,
		violations:    opts.Violations,
		warnAt:        opts.TimeWarningSeconds,
		maxViolations: opts.MaxViolations,
		questionCount: opts.QuestionCount,
		inbox:         make(chan event, 64),
		notices:       make(chan Notice, 64),
		done:          make(chan struct{}),
	}
}

// Notices returns the server-push stream. It is closed after the terminal
// notice, or when Run exits because its context was cancelled.
func (c *Controller) Notices() <-chan Notice { return c.notices }

// Done is closed when the event loop has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// SaveAnswer queues an answer selection. Safe to call after the loop has
// exited; the event is then dropped.
func (c *Controller) SaveAnswer(questionID uuid.UUID, optionID *uuid.UUID) {
	c.send(event{kind: eventAnswer, questionID: questionID, optionID: optionID})
}

// ReportSignal queues an environment signal.
func (c *Controller) ReportSignal(kind SignalKind, detail string) {
	c.send(event{kind: eventSignal, signal: kind, detail: detail})
}

// Navigate queues a move to the given question index. Out-of-range values
// are clamped, never rejected.
func (c *Controller) Navigate(index int) {
	c.send(event{kind: eventNavigate, index: index})
}

// Submit queues a voluntary submission.
func (c *Controller) Submit() {
	c.send(event{kind: eventSubmit})
}

func (c *Controller) send(ev event) {
	select {
	case c.inbox <- ev:
	case <-c.done:
	}
}

// Run executes the event loop until the attempt reaches a terminal state or
// ctx is cancelled. Cancellation detaches the session without finalizing:
// the attempt keeps running on wall clock and the sweeper times it out if
// the student never returns.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	defer close(c.notices)

	ticks := c.ticks
	if ticks == nil {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		ticks = t.C
	}

	c.push(Notice{Type: NoticeEnterFullscreen, RemainingSeconds: c.remaining})

	if c.remaining <= 0 {
		c.finalize(ctx, model.AttemptStatusTimedOut, model.ReasonTimeUp)
		return
	}
	if c.remaining <= c.warnAt {
		c.timeWarned = true
		c.push(Notice{Type: NoticeTimeWarning, RemainingSeconds: c.remaining})
	}

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Int("remaining", c.remaining).Msg("Session detached")
			return
		case <-ticks:
			c.onTick(ctx)
		case ev := <-c.inbox:
			c.handle(ctx, ev)
		}
		if c.finished {
			return
		}
	}
}

func (c *Controller) onTick(ctx context.Context) {
	if c.remaining > 0 {
		c.remaining--
	}

	if c.remaining <= 0 {
		c.finalize(ctx, model.AttemptStatusTimedOut, model.ReasonTimeUp)
		return
	}

	if !c.timeWarned && c.remaining <= c.warnAt {
		c.timeWarned = true
		// The warning carries the countdown; it replaces this second's tick.
		c.push(Notice{Type: NoticeTimeWarning, RemainingSeconds: c.remaining})
		return
	}

	c.push(Notice{Type: NoticeTick, RemainingSeconds: c.remaining})
}

func (c *Controller) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventAnswer:
		if err := c.backend.SaveAnswer(ctx, c.attempt.ID, ev.questionID, ev.optionID); err != nil {
			// The save path is queue-backed and retried there; the timer
			// must keep running regardless.
			c.log.Error().Err(err).Str("question_id", ev.questionID.String()).Msg("Persist answer failed")
		}
	case eventSignal:
		c.onSignal(ctx, ev)
	case eventNavigate:
		c.onNavigate(ev.index)
	case eventSubmit:
		c.finalize(ctx, model.AttemptStatusCompleted, "")
	}
}

// onNavigate clamps the requested index into [0, questionCount-1] and
// acknowledges the resulting position. Navigation is session-local state;
// nothing is persisted.
func (c *Controller) onNavigate(index int) {
	if c.questionCount <= 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index > c.questionCount-1 {
		index = c.questionCount - 1
	}
	c.position = index
	c.push(Notice{Type: NoticePosition, Position: c.position})
}

func (c *Controller) onSignal(ctx context.Context, ev event) {
	if !ev.signal.Known() {
		c.log.Warn().Str("kind", string(ev.signal)).Msg("Dropping unknown signal")
		return
	}

	if err := c.backend.RecordViolation(ctx, model.SecurityEvent{
		AttemptID: c.attempt.ID,
		ExamID:    c.attempt.ExamID,
		StudentID: c.attempt.StudentID,
		EventType: string(ev.signal),
		Detail:    ev.detail,
	}); err != nil {
		c.log.Error().Err(err).Str("kind", string(ev.signal)).Msg("Record violation failed")
	}

	if !ev.signal.IsViolation() {
		// Leaving fullscreen is not a strike; push the client back in.
		c.push(Notice{Type: NoticeEnterFullscreen, RemainingSeconds: c.remaining})
		return
	}

	c.violations++
	if c.violations >= c.maxViolations {
		c.finalize(ctx, model.AttemptStatusTerminated, model.ReasonSecurityViolation)
		return
	}
	c.push(Notice{
		Type:           NoticeViolationWarning,
		ViolationCount: c.violations,
		MaxViolations:  c.maxViolations,
	})
}

// finalize runs the terminal transition exactly once per controller. The
// database CAS in Backend.Finalize guards against other finalizers (a
// concurrent sweep, a duplicate submit after reconnect).
func (c *Controller) finalize(ctx context.Context, status model.AttemptStatus, reason string) {
	if c.finished {
		return
	}
	c.finished = true

	final, err := c.backend.Finalize(ctx, c.attempt.ID, status, reason)
	if err != nil {
		c.log.Error().Err(err).Str("status", string(status)).Msg("Finalize failed")
	} else {
		status = final.Status
		reason = final.TerminationReason
	}

	c.push(Notice{Type: NoticeExitFullscreen})
	c.push(Notice{Type: NoticeFinished, Status: status, Reason: reason})
	c.log.Info().Str("status", string(status)).Str("reason", reason).Msg("Attempt finished")
}

// push never blocks the loop. A slow or gone consumer loses notices; the
// client rebuilds from attempt state on reconnect.
func (c *Controller) push(n Notice) {
	select {
	case c.notices <- n:
	default:
		c.log.Warn().Str("type", string(n.Type)).Msg("Notice dropped, consumer too slow")
	}
}
