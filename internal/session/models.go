package session

import "time"

// Call is the platform-side record of one inbound phone call, keyed by the
// room the SIP participant landed in.
type Call struct {
	CallID   string `json:"call_id" db:"call_id"`
	RoomName string `json:"room_name" db:"room_name"`

	Direction string `json:"direction" db:"direction"`
	From      string `json:"from" db:"from_number"`
	To        string `json:"to" db:"to_number"`

	Status CallStatus `json:"status" db:"status"`

	// AgentDispatched is monotonic false->true; the transition is a
	// compare-and-set at the store so dispatch happens at most once.
	AgentDispatched bool   `json:"agent_dispatched" db:"agent_dispatched"`
	SessionID       string `json:"session_id,omitempty" db:"session_id"`

	// Participant is the snapshot of the SIP leg that opened the call.
	Participant *Participant `json:"participant,omitempty" db:"participant"`

	EndReason string `json:"end_reason,omitempty" db:"end_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusCreated   CallStatus = "created"
	CallStatusSIPJoined CallStatus = "sip_participant_joined"
	CallStatusEnded     CallStatus = "ended"
	CallStatusFailed    CallStatus = "failed"
)

// Participant is the normalized webhook participant shape.
type Participant struct {
	ParticipantID string            `json:"participant_id,omitempty"`
	Identity      string            `json:"identity,omitempty"`
	Kind          string            `json:"kind,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// Event is the canonical webhook event consumed by the service. CreatedAt
// is unix seconds, zero when the platform sent none.
type Event struct {
	EventID        string       `json:"event_id"`
	EventIDDerived bool         `json:"event_id_derived,omitempty"`
	Event          string       `json:"event"`
	CreatedAt      int64        `json:"created_at,omitempty"`
	RoomName       string       `json:"room_name,omitempty"`
	Participant    *Participant `json:"participant,omitempty"`
}

const (
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
)

// Result is what a Handle call reports back for observability. The service
// never writes HTTP responses itself.
type Result struct {
	FirstSeen         bool   `json:"first_seen"`
	IgnoredReason     string `json:"ignored_reason,omitempty"`
	DispatchAttempted bool   `json:"dispatch_attempted"`
	DispatchSucceeded bool   `json:"dispatch_succeeded"`
	CallID            string `json:"call_id,omitempty"`
}

const (
	IgnoredDuplicate         = "duplicate"
	IgnoredMissingRoom       = "missing_room"
	IgnoredNonSIPParticipant = "non_sip_participant"
	IgnoredNoCall            = "no_call"
	IgnoredUnsupportedEvent  = "unsupported_event"
)
