package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"telephony-orchestrator/pkg/logger"

	"github.com/google/uuid"
)

// Options tune SIP-leg classification.
type Options struct {
	// IdentityPrefix marks SIP participants by identity (e.g. "sip_").
	IdentityPrefix string
	// AcceptAllJoins treats every participant_joined as a SIP leg.
	AcceptAllJoins bool
}

// Service is the call-admission state machine: idempotency guard, SIP
// participant classification, call lifecycle, dispatch trigger.
type Service struct {
	calls    CallStore
	events   EventStore
	routing  CallRouting
	dispatch AgentDispatcher
	notifier Notifier

	opts  Options
	clock func() time.Time
}

func NewService(calls CallStore, events EventStore, routing CallRouting, dispatch AgentDispatcher, notifier Notifier, opts Options) *Service {
	return &Service{
		calls:    calls,
		events:   events,
		routing:  routing,
		dispatch: dispatch,
		notifier: notifier,
		opts:     opts,
		clock:    time.Now,
	}
}

var ErrNotConfigured = errors.New("session: service not fully configured")

// Handle processes one canonical webhook event. The returned Result is for
// caller-side observability; the HTTP response has usually been written
// before Handle runs.
func (s *Service) Handle(ctx context.Context, ev Event) (Result, error) {
	if s.calls == nil || s.events == nil {
		return Result{}, ErrNotConfigured
	}
	log := logger.From(ctx).With("event_id", ev.EventID, "event", ev.Event, "room", ev.RoomName)

	firstSeen, err := s.events.RecordEventSeen(ctx, ev.EventID)
	if err != nil {
		return Result{}, err
	}
	if !firstSeen {
		return Result{FirstSeen: false, IgnoredReason: IgnoredDuplicate}, nil
	}
	res := Result{FirstSeen: true}

	if strings.TrimSpace(ev.RoomName) == "" {
		res.IgnoredReason = IgnoredMissingRoom
		return res, nil
	}

	switch ev.Event {
	case EventParticipantJoined:
		return s.handleJoined(ctx, log, ev, res)
	case EventParticipantLeft:
		return s.handleLeft(ctx, ev, res)
	default:
		res.IgnoredReason = IgnoredUnsupportedEvent
		return res, nil
	}
}

func (s *Service) handleJoined(ctx context.Context, log *slog.Logger, ev Event, res Result) (Result, error) {
	if !s.isSIPParticipant(ev.Participant) {
		res.IgnoredReason = IgnoredNonSIPParticipant
		return res, nil
	}

	from, to := sipNumbers(ev.Participant)
	now := s.clock().UTC()
	call, err := s.calls.UpsertCallByRoom(ctx, Call{
		CallID:      uuid.NewString(),
		RoomName:    ev.RoomName,
		Direction:   "inbound",
		From:        from,
		To:          to,
		Status:      CallStatusSIPJoined,
		Participant: ev.Participant,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return res, err
	}
	res.CallID = call.CallID

	if call.AgentDispatched {
		return res, nil
	}

	// The CAS is the dispatch gate: of N concurrent deliveries for the
	// same room only one wins the false->true transition and dispatches.
	sessionID := uuid.NewString()
	won, err := s.calls.MarkAgentDispatched(ctx, ev.RoomName, sessionID)
	if err != nil {
		return res, err
	}
	if !won {
		return res, nil
	}
	res.DispatchAttempted = true

	cfg, err := s.resolveAndDispatch(ctx, call, sessionID)
	if err != nil {
		// Dispatch failure never fails the webhook: log, roll the flag
		// back so a later event can retry, and report via Result only.
		log.Warn("agent dispatch failed", "err", err, "call_id", call.CallID)
		if clearErr := s.calls.ClearAgentDispatched(ctx, ev.RoomName); clearErr != nil {
			log.Warn("could not clear dispatch flag", "err", clearErr, "call_id", call.CallID)
		}
		return res, nil
	}
	res.DispatchSucceeded = true
	call.AgentDispatched = true
	call.SessionID = sessionID
	log.Info("agent dispatched", "call_id", call.CallID, "session_id", sessionID, "agent_id", cfg.AgentID)

	if s.notifier != nil {
		// One-directional: a notifier failure is logged and dropped.
		if err := s.notifier.AgentDispatched(ctx, call, cfg); err != nil {
			log.Warn("post-dispatch notify failed", "err", err, "call_id", call.CallID)
		}
	}
	return res, nil
}

func (s *Service) resolveAndDispatch(ctx context.Context, call Call, sessionID string) (AgentConfig, error) {
	if s.routing == nil || s.dispatch == nil {
		return AgentConfig{}, ErrNotConfigured
	}
	cfg, err := s.routing.ResolveRouting(ctx, RouteRequest{
		RoomName:    call.RoomName,
		From:        call.From,
		To:          call.To,
		Participant: call.Participant,
	})
	if err != nil {
		return AgentConfig{}, err
	}
	if err := s.dispatch.DispatchAgent(ctx, call.RoomName, sessionID, cfg); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

func (s *Service) handleLeft(ctx context.Context, ev Event, res Result) (Result, error) {
	if !s.isSIPParticipant(ev.Participant) {
		res.IgnoredReason = IgnoredNonSIPParticipant
		return res, nil
	}

	call, ok, err := s.calls.GetCallByRoom(ctx, ev.RoomName)
	if err != nil {
		return res, err
	}
	if !ok {
		res.IgnoredReason = IgnoredNoCall
		return res, nil
	}
	res.CallID = call.CallID

	// Only the leg that opened the call ends it; when no identity was
	// recorded, any SIP leave counts.
	if call.Participant != nil && call.Participant.Identity != "" &&
		ev.Participant != nil && ev.Participant.Identity != call.Participant.Identity {
		return res, nil
	}

	if err := s.calls.MarkEnded(ctx, call.CallID, "participant_left"); err != nil {
		return res, err
	}
	return res, nil
}

// isSIPParticipant classifies the webhook participant. Any of: kind
// contains "sip" (case-insensitive), identity carries the configured
// prefix, any attribute key starts with "sip.", or the force flag.
func (s *Service) isSIPParticipant(p *Participant) bool {
	if s.opts.AcceptAllJoins {
		return true
	}
	if p == nil {
		return false
	}
	if strings.Contains(strings.ToLower(p.Kind), "sip") {
		return true
	}
	if s.opts.IdentityPrefix != "" && strings.HasPrefix(p.Identity, s.opts.IdentityPrefix) {
		return true
	}
	for k := range p.Attributes {
		if strings.HasPrefix(k, "sip.") {
			return true
		}
	}
	return false
}

// sipNumbers extracts from/to out of SIP participant attributes.
func sipNumbers(p *Participant) (from, to string) {
	if p == nil {
		return "", ""
	}
	from = p.Attributes["sip.phoneNumber"]
	if from == "" {
		from = p.Attributes["sip.from"]
	}
	to = p.Attributes["sip.trunkPhoneNumber"]
	if to == "" {
		to = p.Attributes["sip.to"]
	}
	return from, to
}
