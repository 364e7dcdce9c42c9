package websocket

import "github.com/dyaksa-edu/cbt-portal/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionSignal   Action = "signal"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is the single client frame shape; the action determines
// which fields are meaningful.
type RequestPayload struct {
	Action Action `json:"action"`

	// answer
	QID      string `json:"q_id,omitempty"`
	OptionID string `json:"option_id,omitempty"` // empty clears the selection

	// signal
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`

	// navigate
	Index int `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventSaved  Event = "saved"
	EventState  Event = "state"
	EventNotice Event = "notice"
	EventPong   Event = "pong"
)

// StateResponse carries the full attempt state on (re)connect.
type StateResponse struct {
	Event Event               `json:"event"`
	State *model.AttemptState `json:"state"`
}

// SavedResponse acknowledges one autosaved answer.
type SavedResponse struct {
	Event Event  `json:"event"`
	QID   string `json:"q_id"`
}

// NoticeResponse forwards one server-push notification (countdown ticks,
// warnings, fullscreen directives, the terminal notice).
type NoticeResponse struct {
	Event  Event       `json:"event"`
	Notice interface{} `json:"notice"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
