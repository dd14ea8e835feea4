package session

import "context"

// CallStore persists Call records keyed by room name.
type CallStore interface {
	GetCallByRoom(ctx context.Context, roomName string) (Call, bool, error)

	// UpsertCallByRoom creates the call if the room is new (capturing
	// from/to and the participant snapshot) or refreshes status and
	// diagnostic fields of the existing record. Identity fields of an
	// existing call are never overwritten.
	UpsertCallByRoom(ctx context.Context, c Call) (Call, error)

	// MarkAgentDispatched is the compare-and-set guarding dispatch: it
	// returns true only for the caller that performed the false->true
	// transition.
	MarkAgentDispatched(ctx context.Context, roomName, sessionID string) (bool, error)

	// ClearAgentDispatched rolls the flag back after a failed dispatch so
	// a later event may try again.
	ClearAgentDispatched(ctx context.Context, roomName string) error

	MarkEnded(ctx context.Context, callID, reason string) error

	// ListCalls supports the observability surface; roomName empty lists all.
	ListCalls(ctx context.Context, roomName string) ([]Call, error)
}

// EventStore is the idempotency guard. RecordEventSeen must be an atomic
// check-and-set at the storage layer; a read-then-write implementation
// reintroduces duplicate processing under concurrent redelivery.
type EventStore interface {
	RecordEventSeen(ctx context.Context, eventID string) (firstSeen bool, err error)
}

// RouteRequest carries what the routing capability needs to pick an agent.
type RouteRequest struct {
	RoomName    string       `json:"room_name"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Participant *Participant `json:"participant,omitempty"`
}

// AgentConfig is the resolved agent configuration for a call.
type AgentConfig struct {
	AgentID  string            `json:"agent_id"`
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CallRouting resolves which agent should take a call.
type CallRouting interface {
	ResolveRouting(ctx context.Context, req RouteRequest) (AgentConfig, error)
}

// AgentDispatcher starts the realtime agent for a room.
type AgentDispatcher interface {
	DispatchAgent(ctx context.Context, roomName, sessionID string, cfg AgentConfig) error
}

// Notifier is the optional post-dispatch hook (session metadata
// persistence, analytics). It is one-directional: failures are logged by
// the service and never affect call handling.
type Notifier interface {
	AgentDispatched(ctx context.Context, call Call, cfg AgentConfig) error
}
