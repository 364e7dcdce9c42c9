package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dyaksa-edu/cbt-portal/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type savedAnswer struct {
	attemptID  uuid.UUID
	questionID uuid.UUID
	optionID   *uuid.UUID
}

type finalizeCall struct {
	status model.AttemptStatus
	reason string
}

// fakeBackend records every call so tests can assert on what the controller
// asked the rest of the system to do.
type fakeBackend struct {
	mu         sync.Mutex
	saves      []savedAnswer
	violations []model.SecurityEvent
	finalizes  []finalizeCall

	// finalAttempt, when set, simulates a lost finalize race: the backend
	// reports the attempt's actual terminal state instead of the requested one.
	finalAttempt *model.Attempt
}

func (f *fakeBackend) SaveAnswer(_ context.Context, attemptID, questionID uuid.UUID, optionID *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, savedAnswer{attemptID, questionID, optionID})
	return nil
}

func (f *fakeBackend) RecordViolation(_ context.Context, e model.SecurityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.violations = append(f.violations, e)
	return nil
}

func (f *fakeBackend) Finalize(_ context.Context, attemptID uuid.UUID, status model.AttemptStatus, reason string) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizes = append(f.finalizes, finalizeCall{status, reason})
	if f.finalAttempt != nil {
		return f.finalAttempt, nil
	}
	return &model.Attempt{ID: attemptID, Status: status, TerminationReason: reason}, nil
}

func (f *fakeBackend) finalizeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.finalizes)
}

type harness struct {
	ctrl    *Controller
	backend *fakeBackend
	ticks   chan time.Time
	cancel  context.CancelFunc
}

func newHarness(t *testing.T, remaining, violations int) *harness {
	t.Helper()
	backend := &fakeBackend{}
	ticks := make(chan time.Time)
	ctrl := NewController(Options{
		Attempt: &model.Attempt{
			ID:        uuid.New(),
			ExamID:    uuid.New(),
			StudentID: 7,
			Status:    model.AttemptStatusInProgress,
		},
		RemainingSeconds:   remaining,
		Violations:         violations,
		TimeWarningSeconds: 300,
		MaxViolations:      2,
		QuestionCount:      10,
		Backend:            backend,
		Ticks:              ticks,
		Log:                zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(ctx)
	t.Cleanup(cancel)

	return &harness{ctrl: ctrl, backend: backend, ticks: ticks, cancel: cancel}
}

// tick drives one countdown second.
func (h *harness) tick(t *testing.T) {
	t.Helper()
	select {
	case h.ticks <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("controller did not accept tick")
	}
}

// next reads one notice or fails.
func (h *harness) next(t *testing.T) Notice {
	t.Helper()
	select {
	case n, ok := <-h.ctrl.Notices():
		if !ok {
			t.Fatal("notice channel closed")
		}
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notice")
	}
	return Notice{}
}

// expect reads notices, skipping ticks, until one of the wanted type arrives.
func (h *harness) expect(t *testing.T, want NoticeType) Notice {
	t.Helper()
	for i := 0; i < 100; i++ {
		n := h.next(t)
		if n.Type == want {
			return n
		}
		if n.Type != NoticeTick {
			t.Fatalf("got notice %q while waiting for %q", n.Type, want)
		}
	}
	t.Fatalf("notice %q never arrived", want)
	return Notice{}
}

func (h *harness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-h.ctrl.Done():
	case <-time.After(time.Second):
		t.Fatal("controller did not stop")
	}
}

func TestControllerPushesFullscreenOnStart(t *testing.T) {
	h := newHarness(t, 600, 0)

	n := h.next(t)
	if n.Type != NoticeEnterFullscreen {
		t.Fatalf("first notice = %q, want %q", n.Type, NoticeEnterFullscreen)
	}
	if n.RemainingSeconds != 600 {
		t.Errorf("remaining = %d, want 600", n.RemainingSeconds)
	}
}

func TestControllerTwoStrikeTermination(t *testing.T) {
	h := newHarness(t, 600, 0)
	h.expect(t, NoticeEnterFullscreen)

	h.ctrl.ReportSignal(SignalTabSwitch, "visibilitychange")
	warn := h.expect(t, NoticeViolationWarning)
	if warn.ViolationCount != 1 || warn.MaxViolations != 2 {
		t.Errorf("warning = %d/%d, want 1/2", warn.ViolationCount, warn.MaxViolations)
	}

	h.ctrl.ReportSignal(SignalWindowBlur, "blur")
	h.expect(t, NoticeExitFullscreen)
	fin := h.expect(t, NoticeFinished)
	if fin.Status != model.AttemptStatusTerminated {
		t.Errorf("status = %q, want terminated", fin.Status)
	}
	if fin.Reason != model.ReasonSecurityViolation {
		t.Errorf("reason = %q, want %q", fin.Reason, model.ReasonSecurityViolation)
	}

	h.waitDone(t)
	if got := h.backend.finalizeCount(); got != 1 {
		t.Errorf("finalize calls = %d, want 1", got)
	}
	if len(h.backend.violations) != 2 {
		t.Errorf("recorded events = %d, want 2", len(h.backend.violations))
	}
}

func TestControllerSeededViolationsCarryOver(t *testing.T) {
	// One strike recorded before a reconnect: the next violation terminates.
	h := newHarness(t, 600, 1)
	h.expect(t, NoticeEnterFullscreen)

	h.ctrl.ReportSignal(SignalBlockedKey, "F12")
	h.expect(t, NoticeExitFullscreen)
	fin := h.expect(t, NoticeFinished)
	if fin.Status != model.AttemptStatusTerminated {
		t.Errorf("status = %q, want terminated", fin.Status)
	}
}

func TestControllerFullscreenExitIsNotAStrike(t *testing.T) {
	h := newHarness(t, 600, 0)
	h.expect(t, NoticeEnterFullscreen)

	h.ctrl.ReportSignal(SignalFullscreenExit, "")
	n := h.expect(t, NoticeEnterFullscreen)
	if n.Type != NoticeEnterFullscreen {
		t.Fatalf("got %q, want re-enter directive", n.Type)
	}

	// Still audited, but no strike and no termination.
	h.ctrl.ReportSignal(SignalTabSwitch, "")
	warn := h.expect(t, NoticeViolationWarning)
	if warn.ViolationCount != 1 {
		t.Errorf("count = %d, want 1 (fullscreen exit must not count)", warn.ViolationCount)
	}

	h.backend.mu.Lock()
	recorded := len(h.backend.violations)
	h.backend.mu.Unlock()
	if recorded != 2 {
		t.Errorf("audit events = %d, want 2", recorded)
	}
}

func TestControllerDropsUnknownSignal(t *testing.T) {
	h := newHarness(t, 600, 0)
	h.expect(t, NoticeEnterFullscreen)

	h.ctrl.ReportSignal(SignalKind("telepathy"), "")
	h.ctrl.ReportSignal(SignalTabSwitch, "")
	warn := h.expect(t, NoticeViolationWarning)
	if warn.ViolationCount != 1 {
		t.Errorf("count = %d, want 1 (unknown signal must not count)", warn.ViolationCount)
	}
}

func TestControllerTimeWarningFiresOnce(t *testing.T) {
	h := newHarness(t, 302, 0)
	h.expect(t, NoticeEnterFullscreen)

	h.tick(t) // 301
	h.tick(t) // 300: the warning replaces this second's tick
	warn := h.expect(t, NoticeTimeWarning)
	if warn.RemainingSeconds != 300 {
		t.Errorf("warning at %d, want 300", warn.RemainingSeconds)
	}

	// The seconds after the threshold are plain ticks again, read strictly
	// so a duplicate warning or a stray tick from the warning second fails.
	h.tick(t) // 299
	n := h.next(t)
	if n.Type != NoticeTick || n.RemainingSeconds != 299 {
		t.Errorf("notice = %q/%d, want tick 299", n.Type, n.RemainingSeconds)
	}
	h.tick(t) // 298
	n = h.next(t)
	if n.Type != NoticeTick || n.RemainingSeconds != 298 {
		t.Errorf("notice = %q/%d, want tick 298", n.Type, n.RemainingSeconds)
	}
}

func TestControllerResumeBelowThresholdWarnsImmediately(t *testing.T) {
	h := newHarness(t, 100, 0)
	h.expect(t, NoticeEnterFullscreen)

	warn := h.expect(t, NoticeTimeWarning)
	if warn.RemainingSeconds != 100 {
		t.Errorf("warning at %d, want 100", warn.RemainingSeconds)
	}
}

func TestControllerTimesOutAtZero(t *testing.T) {
	h := newHarness(t, 2, 0)
	h.expect(t, NoticeEnterFullscreen)
	h.expect(t, NoticeTimeWarning)

	h.tick(t) // 1
	h.expect(t, NoticeTick)
	h.tick(t) // 0
	h.expect(t, NoticeExitFullscreen)
	fin := h.expect(t, NoticeFinished)
	if fin.Status != model.AttemptStatusTimedOut {
		t.Errorf("status = %q, want timed_out", fin.Status)
	}
	if fin.Reason != model.ReasonTimeUp {
		t.Errorf("reason = %q, want %q", fin.Reason, model.ReasonTimeUp)
	}

	h.waitDone(t)
	if got := h.backend.finalizeCount(); got != 1 {
		t.Errorf("finalize calls = %d, want 1", got)
	}
}

func TestControllerResumeExpiredFinalizesImmediately(t *testing.T) {
	h := newHarness(t, 0, 0)
	h.expect(t, NoticeEnterFullscreen)
	h.expect(t, NoticeExitFullscreen)
	fin := h.expect(t, NoticeFinished)
	if fin.Status != model.AttemptStatusTimedOut {
		t.Errorf("status = %q, want timed_out", fin.Status)
	}
	h.waitDone(t)
}

func TestControllerSubmitCompletes(t *testing.T) {
	h := newHarness(t, 600, 0)
	h.expect(t, NoticeEnterFullscreen)

	h.ctrl.Submit()
	h.expect(t, NoticeExitFullscreen)
	fin := h.expect(t, NoticeFinished)
	if fin.Status != model.AttemptStatusCompleted {
		t.Errorf("status = %q, want completed", fin.Status)
	}
	if fin.Reason != "" {
		t.Errorf("reason = %q, want empty", fin.Reason)
	}
}

func TestControllerSubmitReportsLostRace(t *testing.T) {
	h := newHarness(t, 600, 0)
	h.backend.mu.Lock()
	h.backend.finalAttempt = &model.Attempt{
		Status:            model.AttemptStatusTimedOut,
		TerminationReason: model.ReasonTimeUp,
	}
	h.backend.mu.Unlock()
	h.expect(t, NoticeEnterFullscreen)

	h.ctrl.Submit()
	h.expect(t, NoticeExitFullscreen)
	fin := h.expect(t, NoticeFinished)
	if fin.Status != model.AttemptStatusTimedOut {
		t.Errorf("status = %q, want the attempt's actual terminal state", fin.Status)
	}
}

func TestControllerForwardsAnswerSaves(t *testing.T) {
	h := newHarness(t, 600, 0)
	h.expect(t, NoticeEnterFullscreen)

	questionID := uuid.New()
	optionID := uuid.New()
	h.ctrl.SaveAnswer(questionID, &optionID)

	deadline := time.Now().Add(time.Second)
	for {
		h.backend.mu.Lock()
		saves := len(h.backend.saves)
		h.backend.mu.Unlock()
		if saves == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("answer save never reached the backend")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.backend.mu.Lock()
	got := h.backend.saves[0]
	h.backend.mu.Unlock()
	if got.questionID != questionID || got.optionID == nil || *got.optionID != optionID {
		t.Errorf("save = %+v, want question %s option %s", got, questionID, optionID)
	}
}

func TestControllerNavigateClamps(t *testing.T) {
	h := newHarness(t, 600, 0)
	h.expect(t, NoticeEnterFullscreen)

	cases := []struct {
		name  string
		index int
		want  int
	}{
		{"in range", 4, 4},
		{"negative", -3, 0},
		{"past end", 42, 9},
		{"last", 9, 9},
	}
	for _, tc := range cases {
		h.ctrl.Navigate(tc.index)
		n := h.expect(t, NoticePosition)
		if n.Position != tc.want {
			t.Errorf("%s: position = %d, want %d", tc.name, n.Position, tc.want)
		}
	}
}

func TestControllerDetachLeavesAttemptRunning(t *testing.T) {
	h := newHarness(t, 600, 0)
	h.expect(t, NoticeEnterFullscreen)

	h.cancel()
	h.waitDone(t)
	if got := h.backend.finalizeCount(); got != 0 {
		t.Errorf("finalize calls = %d, want 0 on detach", got)
	}
}

func TestManagerSingleSessionPerAttempt(t *testing.T) {
	m := NewManager()
	attempt := &model.Attempt{ID: uuid.New(), Status: model.AttemptStatusInProgress}
	mk := func() *Controller {
		return NewController(Options{
			Attempt:            attempt,
			RemainingSeconds:   60,
			TimeWarningSeconds: 300,
			MaxViolations:      2,
			Backend:            &fakeBackend{},
			Log:                zerolog.Nop(),
		})
	}

	first := mk()
	if err := m.Attach(first); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	if err := m.Attach(mk()); err != ErrAlreadyAttached {
		t.Fatalf("second attach err = %v, want ErrAlreadyAttached", err)
	}

	got, ok := m.Get(attempt.ID)
	if !ok || got != first {
		t.Fatal("Get did not return the attached controller")
	}

	m.Detach(first)
	if m.Count() != 0 {
		t.Errorf("count = %d after detach, want 0", m.Count())
	}

	// Detach of a stale controller after a reattach must not evict the new one.
	second := mk()
	if err := m.Attach(second); err != nil {
		t.Fatalf("reattach: %v", err)
	}
	m.Detach(first)
	if _, ok := m.Get(attempt.ID); !ok {
		t.Error("stale detach evicted the live session")
	}
}
