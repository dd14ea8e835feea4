package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"telephony-orchestrator/internal/audit"
	"telephony-orchestrator/internal/carrier"
	"telephony-orchestrator/internal/secrets"
	"telephony-orchestrator/internal/sipbridge"
	"telephony-orchestrator/pkg/logger"

	"github.com/google/uuid"
)

// SIPProvisioner is the platform-side half of number onboarding. Satisfied
// by sipbridge.Service.
type SIPProvisioner interface {
	EnsureInbound(ctx context.Context, e164 string) (sipbridge.EnsureReport, error)
	RemoveInbound(ctx context.Context, e164 string) (sipbridge.RemoveReport, error)
}

// Engine is the one onboarding state machine shared by every carrier. The
// carrier differences live entirely behind carrier.Client; the engine only
// sequences verify, seal, provision, attach and the compensating teardown.
type Engine struct {
	clients map[string]carrier.Client
	store   Store
	box     *secrets.Box
	sip     SIPProvisioner
	trail   *audit.Service

	// trunkName names the carrier-side trunk-like resource this platform
	// owns inside the customer's carrier account.
	trunkName string
	// inboundURI is the platform SIP ingress carriers send calls to.
	inboundURI string

	clock func() time.Time
}

func NewEngine(clients []carrier.Client, store Store, box *secrets.Box, sip SIPProvisioner, trail *audit.Service, trunkName, inboundURI string) *Engine {
	byName := make(map[string]carrier.Client, len(clients))
	for _, c := range clients {
		byName[c.Name()] = c
	}
	return &Engine{
		clients:    byName,
		store:      store,
		box:        box,
		sip:        sip,
		trail:      trail,
		trunkName:  trunkName,
		inboundURI: inboundURI,
		clock:      time.Now,
	}
}

// Carriers lists the configured carrier names, sorted.
func (e *Engine) Carriers() []string {
	out := make([]string, 0, len(e.clients))
	for name := range e.clients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) client(name string) (carrier.Client, error) {
	c, ok := e.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCarrier, name)
	}
	return c, nil
}

// VerifyCredentials runs the carrier's read-only probe without persisting
// anything.
func (e *Engine) VerifyCredentials(ctx context.Context, carrierName string, creds carrier.Credentials) error {
	client, err := e.client(carrierName)
	if err != nil {
		return err
	}
	return client.Verify(ctx, creds)
}

// CreateIntegration verifies, seals and persists the credentials, then makes
// a best-effort attempt at the carrier-side trunk bootstrap. Bootstrap
// failure is logged and deferred; ConnectNumber retries it lazily.
func (e *Engine) CreateIntegration(ctx context.Context, carrierName string, creds carrier.Credentials, name string) (Integration, error) {
	client, err := e.client(carrierName)
	if err != nil {
		return Integration{}, err
	}
	if err := client.Verify(ctx, creds); err != nil {
		return Integration{}, err
	}

	plain, err := json.Marshal(creds)
	if err != nil {
		return Integration{}, err
	}
	sealed, err := e.box.Seal(plain)
	if err != nil {
		return Integration{}, err
	}

	now := e.clock().UTC()
	in := Integration{
		ID:                uuid.NewString(),
		Carrier:           carrierName,
		Name:              name,
		SealedCredentials: sealed,
		Fingerprint:       secrets.Fingerprint(carrierName, creds.Primary()),
		Status:            IntegrationActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.store.CreateIntegration(ctx, in); err != nil {
		return Integration{}, err
	}

	log := logger.From(ctx).With("carrier", carrierName, "integration_id", in.ID)
	if trunk, err := client.EnsureTrunk(ctx, creds, e.trunkName, e.inboundURI); err != nil {
		// Non-fatal: the integration exists, the trunk gets another
		// chance on first connect.
		log.Warn("trunk bootstrap deferred", "err", err)
	} else {
		in.TrunkID = trunk.ID
		if err := e.store.UpdateIntegration(ctx, in); err != nil {
			log.Warn("could not record trunk id", "err", err)
		}
	}

	e.record(ctx, audit.Event{
		Type:          audit.EventTypeIntegrationCreated,
		Carrier:       carrierName,
		IntegrationID: in.ID,
		Fingerprint:   in.Fingerprint,
	})
	return in, nil
}

// ListIntegrations returns the integrations for one carrier (all when empty).
func (e *Engine) ListIntegrations(ctx context.Context, carrierName string) ([]Integration, error) {
	if carrierName != "" {
		if _, err := e.client(carrierName); err != nil {
			return nil, err
		}
	}
	return e.store.ListIntegrations(ctx, carrierName)
}

// ListNumbers lists the DIDs owned by the integration's carrier account.
func (e *Engine) ListNumbers(ctx context.Context, integrationID string) ([]carrier.Number, error) {
	_, client, creds, err := e.open(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	return client.ListNumbers(ctx, creds)
}

// ConnectNumber binds a carrier DID to the platform. Ordering is the
// invariant: the platform SIP setup is ensured before carrier-side routing
// is touched, so a mid-sequence failure leaves the platform ready but
// unused, never receiving traffic it cannot route.
func (e *Engine) ConnectNumber(ctx context.Context, integrationID, providerNumberID, e164, agentID string) (Binding, error) {
	in, client, creds, err := e.open(ctx, integrationID)
	if err != nil {
		return Binding{}, err
	}

	num, err := client.GetNumber(ctx, creds, providerNumberID)
	if err != nil {
		return Binding{}, err
	}
	want, err := sipbridge.NormalizeE164(e164)
	if err != nil {
		return Binding{}, err
	}
	have, err := sipbridge.NormalizeE164(num.E164)
	if err != nil || have != want {
		return Binding{}, fmt.Errorf("%w: requested %s, carrier has %s", ErrNumberMismatch, want, num.E164)
	}

	ensure, err := e.sip.EnsureInbound(ctx, want)
	if err != nil {
		return Binding{}, err
	}
	e.record(ctx, audit.Event{
		Type:          audit.EventTypeSIPEnsured,
		Carrier:       in.Carrier,
		IntegrationID: in.ID,
		E164:          want,
		Actions:       actionStrings(ensure.Actions),
	})

	trunkID, err := e.ensureCarrierTrunk(ctx, &in, client, creds)
	if err != nil {
		return Binding{}, err
	}
	if err := client.AttachNumber(ctx, creds, trunkID, providerNumberID); err != nil {
		return Binding{}, err
	}

	now := e.clock().UTC()
	b, err := e.store.UpsertBinding(ctx, Binding{
		ID:               uuid.NewString(),
		IntegrationID:    in.ID,
		Carrier:          in.Carrier,
		ProviderNumberID: providerNumberID,
		E164:             want,
		AgentID:          agentID,
		Enabled:          true,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return Binding{}, err
	}

	e.record(ctx, audit.Event{
		Type:          audit.EventTypeNumberConnected,
		Carrier:       in.Carrier,
		IntegrationID: in.ID,
		BindingID:     b.ID,
		E164:          want,
		Fingerprint:   in.Fingerprint,
	})
	return b, nil
}

// DisconnectNumber is the inverse of ConnectNumber in the inverse order:
// carrier detach first, platform teardown second, binding delete last. A
// failure mid-sequence can leave platform SIP setup behind, never carrier
// traffic pointed at a torn-down platform.
func (e *Engine) DisconnectNumber(ctx context.Context, bindingID string) error {
	b, ok, err := e.store.GetBinding(ctx, bindingID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBindingNotFound
	}
	return e.disconnect(ctx, b)
}

func (e *Engine) disconnect(ctx context.Context, b Binding) error {
	in, ok, err := e.store.GetIntegration(ctx, b.IntegrationID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrIntegrationNotFound
	}
	client, creds, err := e.unseal(in)
	if err != nil {
		return err
	}

	if in.TrunkID != "" {
		if err := client.DetachNumber(ctx, creds, in.TrunkID, b.ProviderNumberID); err != nil && !carrier.IsGone(err) {
			return err
		}
	}

	remove, err := e.sip.RemoveInbound(ctx, b.E164)
	if err != nil {
		return err
	}
	e.record(ctx, audit.Event{
		Type:          audit.EventTypeSIPRemoved,
		Carrier:       in.Carrier,
		IntegrationID: in.ID,
		BindingID:     b.ID,
		E164:          b.E164,
		Actions:       actionStrings(remove.Actions),
	})

	if err := e.store.DeleteBinding(ctx, b.ID); err != nil {
		return err
	}
	e.record(ctx, audit.Event{
		Type:          audit.EventTypeNumberDisconnected,
		Carrier:       in.Carrier,
		IntegrationID: in.ID,
		BindingID:     b.ID,
		E164:          b.E164,
		Fingerprint:   in.Fingerprint,
	})
	return nil
}

// DeleteIntegration disconnects every binding, removes the carrier-side
// trunk (tolerating already-gone) and deletes the integration.
func (e *Engine) DeleteIntegration(ctx context.Context, integrationID string) (DeleteReport, error) {
	in, ok, err := e.store.GetIntegration(ctx, integrationID)
	if err != nil {
		return DeleteReport{}, err
	}
	if !ok {
		return DeleteReport{}, ErrIntegrationNotFound
	}
	client, creds, err := e.unseal(in)
	if err != nil {
		return DeleteReport{}, err
	}

	report := DeleteReport{IntegrationID: in.ID}

	bindings, err := e.store.ListBindings(ctx, in.ID)
	if err != nil {
		return report, err
	}
	for _, b := range bindings {
		if err := e.disconnect(ctx, b); err != nil {
			return report, err
		}
		report.DeletedBindings++
	}

	if in.TrunkID != "" {
		err := client.DeleteTrunk(ctx, creds, in.TrunkID)
		switch {
		case err == nil:
			report.TrunkDeleted = true
		case carrier.IsGone(err):
			// Already absent; fine.
		default:
			return report, err
		}
	}

	if err := e.store.DeleteIntegration(ctx, in.ID); err != nil {
		return report, err
	}
	e.record(ctx, audit.Event{
		Type:          audit.EventTypeIntegrationDeleted,
		Carrier:       in.Carrier,
		IntegrationID: in.ID,
		Fingerprint:   in.Fingerprint,
		Message:       fmt.Sprintf("deleted %d bindings", report.DeletedBindings),
	})
	return report, nil
}

// ListAllBindings is the carrier-agnostic binding listing.
func (e *Engine) ListAllBindings(ctx context.Context) ([]Binding, error) {
	return e.store.ListAllBindings(ctx)
}

// open loads an active integration and its usable credentials.
func (e *Engine) open(ctx context.Context, integrationID string) (Integration, carrier.Client, carrier.Credentials, error) {
	in, ok, err := e.store.GetIntegration(ctx, integrationID)
	if err != nil {
		return Integration{}, nil, carrier.Credentials{}, err
	}
	if !ok {
		return Integration{}, nil, carrier.Credentials{}, ErrIntegrationNotFound
	}
	if in.Status == IntegrationDisabled {
		return Integration{}, nil, carrier.Credentials{}, ErrIntegrationDisabled
	}
	client, creds, err := e.unseal(in)
	if err != nil {
		return Integration{}, nil, carrier.Credentials{}, err
	}
	return in, client, creds, nil
}

func (e *Engine) unseal(in Integration) (carrier.Client, carrier.Credentials, error) {
	client, err := e.client(in.Carrier)
	if err != nil {
		return nil, carrier.Credentials{}, err
	}
	plain, err := e.box.Open(in.SealedCredentials)
	if err != nil {
		return nil, carrier.Credentials{}, fmt.Errorf("%w: %v", ErrCredentialsUnreadable, err)
	}
	var creds carrier.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, carrier.Credentials{}, fmt.Errorf("%w: %v", ErrCredentialsUnreadable, err)
	}
	return client, creds, nil
}

// ensureCarrierTrunk returns the integration's trunk id, creating the trunk
// lazily when the create-time bootstrap was deferred.
func (e *Engine) ensureCarrierTrunk(ctx context.Context, in *Integration, client carrier.Client, creds carrier.Credentials) (string, error) {
	if in.TrunkID != "" {
		return in.TrunkID, nil
	}
	trunk, err := client.EnsureTrunk(ctx, creds, e.trunkName, e.inboundURI)
	if err != nil {
		return "", err
	}
	in.TrunkID = trunk.ID
	if err := e.store.UpdateIntegration(ctx, *in); err != nil {
		return "", err
	}
	return trunk.ID, nil
}

// record appends to the audit trail best-effort.
func (e *Engine) record(ctx context.Context, ev audit.Event) {
	if e.trail == nil {
		return
	}
	if err := e.trail.Append(ctx, ev); err != nil {
		logger.From(ctx).Warn("audit append failed", "err", err, "type", ev.Type)
	}
}

func actionStrings(actions []sipbridge.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}
