package audit

import "time"

// Event is an immutable, append-only record of an onboarding or
// provisioning action.
//
// Invariants:
// - Events are never updated or deleted.
// - Secrets never appear here; credentials are referenced by fingerprint only.
// - Capture is best-effort; critical flows must not block on audit failures.

type Event struct {
	ID      string    `json:"id" db:"id"`
	Type    EventType `json:"type" db:"type"`
	Carrier string    `json:"carrier,omitempty" db:"carrier"`

	IntegrationID string `json:"integration_id,omitempty" db:"integration_id"`
	BindingID     string `json:"binding_id,omitempty" db:"binding_id"`
	E164          string `json:"e164,omitempty" db:"e164"`

	// Fingerprint correlates to the integration credential without
	// exposing it.
	Fingerprint string `json:"fingerprint,omitempty" db:"fingerprint"`

	// Actions lists the reconciliation sub-steps taken (from sipbridge
	// reports and cascade counters).
	Actions []string `json:"actions,omitempty" db:"actions"`

	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeIntegrationCreated EventType = "integration.created"
	EventTypeIntegrationDeleted EventType = "integration.deleted"
	EventTypeNumberConnected    EventType = "number.connected"
	EventTypeNumberDisconnected EventType = "number.disconnected"
	EventTypeSIPEnsured         EventType = "sip.ensured"
	EventTypeSIPRemoved         EventType = "sip.removed"
	EventTypeAgentDispatched    EventType = "call.agent_dispatched"
)
