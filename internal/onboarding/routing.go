package onboarding

import (
	"context"

	"telephony-orchestrator/internal/session"
	"telephony-orchestrator/internal/sipbridge"
)

// Router resolves call routing from the binding table: the dialed DID's
// enabled binding names the agent that takes the call.
type Router struct {
	store Store

	// DefaultAgentID takes calls whose DID has no binding (numbers pointed
	// at the platform outside the onboarding flow). Empty means such calls
	// fail routing.
	DefaultAgentID string
}

func NewRouter(store Store, defaultAgentID string) *Router {
	return &Router{store: store, DefaultAgentID: defaultAgentID}
}

func (r *Router) ResolveRouting(ctx context.Context, req session.RouteRequest) (session.AgentConfig, error) {
	if to, err := sipbridge.NormalizeE164(req.To); err == nil {
		b, ok, err := r.store.GetEnabledBindingByE164(ctx, to)
		if err != nil {
			return session.AgentConfig{}, err
		}
		if ok {
			return session.AgentConfig{
				AgentID: b.AgentID,
				Metadata: map[string]string{
					"binding_id":     b.ID,
					"integration_id": b.IntegrationID,
					"carrier":        b.Carrier,
					"e164":           b.E164,
				},
			}, nil
		}
	}
	if r.DefaultAgentID == "" {
		return session.AgentConfig{}, ErrBindingNotFound
	}
	return session.AgentConfig{AgentID: r.DefaultAgentID}, nil
}
