package response

import "testing"

var allCodes = []ErrCode{
	ErrInvalidCredentials,
	ErrSessionActive,
	ErrSessionInvalidated,
	ErrTokenRequired,
	ErrTokenInvalid,
	ErrStudentAccessOnly,
	ErrAdminAccessOnly,
	ErrValidation,
	ErrInvalidID,
	ErrNotFound,
	ErrConflict,
	ErrExamNotAvailable,
	ErrExamNotDraft,
	ErrNoQuestions,
	ErrAttemptFinished,
	ErrAttemptNotFound,
	ErrSessionAttached,
	ErrResultNotReady,
	ErrQuestionSetInvalid,
	ErrStartFailedRetry,
	ErrRateLimitExceeded,
	ErrInternal,
}

func TestEveryCodeHasAMessage(t *testing.T) {
	fallback := GetMessage(ErrCode("NO_SUCH_CODE"))
	seen := make(map[string]ErrCode, len(allCodes))

	for _, code := range allCodes {
		msg := GetMessage(code)
		if msg == fallback {
			t.Errorf("code %q resolves to the fallback message", code)
		}
		if prev, dup := seen[msg]; dup {
			t.Errorf("codes %q and %q share the message %q", prev, code, msg)
		}
		seen[msg] = code
	}
}

func TestSessionAttachedMessage(t *testing.T) {
	want := "An exam session is already open elsewhere for this attempt."
	if got := GetMessage(ErrSessionAttached); got != want {
		t.Errorf("GetMessage(ErrSessionAttached) = %q, want %q", got, want)
	}
}
