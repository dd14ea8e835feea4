package audit

import (
	"context"

	"telephony-orchestrator/internal/session"
)

// CallNotifier is the post-dispatch hook: it records the dispatch in the
// audit trail. The session service treats it as fire-and-forget, which
// matches this trail's best-effort contract.
type CallNotifier struct {
	trail *Service
}

func NewCallNotifier(trail *Service) *CallNotifier {
	return &CallNotifier{trail: trail}
}

func (n *CallNotifier) AgentDispatched(ctx context.Context, call session.Call, cfg session.AgentConfig) error {
	return n.trail.Append(ctx, Event{
		Type:    EventTypeAgentDispatched,
		E164:    call.To,
		Message: "agent " + cfg.AgentID + " dispatched to " + call.RoomName,
	})
}
