package worker

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAnswerPayloadSavedAt(t *testing.T) {
	issued := time.Now().Add(-2 * time.Minute)

	raw, _ := json.Marshal(map[string]interface{}{
		"attempt_id":  "a",
		"question_id": "q",
		"option_id":   nil,
		"queued_at":   issued.UnixNano(),
	})
	var p answerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.savedAt().Equal(time.Unix(0, issued.UnixNano())) {
		t.Errorf("savedAt = %v, want the enqueue time %v", p.savedAt(), issued)
	}

	// Payloads without a timestamp fall back to processing time so they
	// still land instead of losing to every existing row.
	var legacy answerPayload
	if err := json.Unmarshal([]byte(`{"attempt_id":"a","question_id":"q"}`), &legacy); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := legacy.savedAt(); time.Since(got) > time.Minute {
		t.Errorf("savedAt fallback = %v, want roughly now", got)
	}
}
