package sipbridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrNotFound = errors.New("sipbridge: not found")

	// ErrProvisioning wraps every carrier/platform failure leaving this
	// package. Callers map it to a 502-class response.
	ErrProvisioning = errors.New("sipbridge: provisioning failed")

	ErrBadNumber = errors.New("sipbridge: not a valid E.164 number")
)

// Service reconciles the platform's single named inbound trunk and dispatch
// rule against the set of bound DIDs. Every step is a find-or-create /
// find-or-remove, so repeated (even concurrent) invocation converges.
type Service struct {
	control SIPControl

	trunkName  string
	ruleName   string
	roomPrefix string
}

func NewService(control SIPControl, trunkName, ruleName, roomPrefix string) *Service {
	return &Service{
		control:    control,
		trunkName:  trunkName,
		ruleName:   ruleName,
		roomPrefix: roomPrefix,
	}
}

// Action names one reconciliation sub-step, reported for auditability.
type Action string

const (
	ActionTrunkCreated    Action = "trunk.created"
	ActionTrunkNumber     Action = "trunk.number_added"
	ActionTrunkNoop       Action = "trunk.noop"
	ActionRuleCreated     Action = "rule.created"
	ActionRuleLinked      Action = "rule.trunk_linked"
	ActionRuleNoop        Action = "rule.noop"
	ActionNumberRemoved   Action = "trunk.number_removed"
	ActionTrunkDeleted    Action = "trunk.deleted"
	ActionRuleUnlinked    Action = "rule.trunk_unlinked"
	ActionRuleDeleted     Action = "rule.deleted"
	ActionNothingToRemove Action = "noop.absent"
)

type EnsureReport struct {
	E164    string   `json:"e164"`
	TrunkID string   `json:"trunkId"`
	RuleID  string   `json:"ruleId"`
	Actions []Action `json:"actions"`
}

type RemoveReport struct {
	E164         string   `json:"e164"`
	TrunkDeleted bool     `json:"trunkDeleted"`
	RuleDeleted  bool     `json:"ruleDeleted"`
	Actions      []Action `json:"actions"`
}

// EnsureInbound makes the platform ready to accept calls for e164:
// the named inbound trunk carries the DID and the named dispatch rule
// references the trunk. Safe to re-invoke.
func (s *Service) EnsureInbound(ctx context.Context, e164 string) (EnsureReport, error) {
	did, err := NormalizeE164(e164)
	if err != nil {
		return EnsureReport{}, err
	}
	report := EnsureReport{E164: did}

	trunk, found, err := s.findTrunk(ctx)
	if err != nil {
		return report, provisioningErr("list trunks", err)
	}
	switch {
	case !found:
		created, err := s.control.CreateTrunk(ctx, Trunk{Name: s.trunkName, Numbers: []string{did}})
		if err != nil {
			return report, provisioningErr("create trunk", err)
		}
		trunk = created
		report.Actions = append(report.Actions, ActionTrunkCreated)
	case !slices.Contains(trunk.Numbers, did):
		trunk.Numbers = append(trunk.Numbers, did)
		updated, err := s.control.UpdateTrunk(ctx, trunk)
		if err != nil {
			return report, provisioningErr("update trunk", err)
		}
		trunk = updated
		report.Actions = append(report.Actions, ActionTrunkNumber)
	default:
		report.Actions = append(report.Actions, ActionTrunkNoop)
	}
	report.TrunkID = trunk.ID

	rule, found, err := s.findRule(ctx)
	if err != nil {
		return report, provisioningErr("list dispatch rules", err)
	}
	switch {
	case !found:
		created, err := s.control.CreateDispatchRule(ctx, DispatchRule{
			Name:       s.ruleName,
			TrunkIDs:   []string{trunk.ID},
			RoomPrefix: s.roomPrefix,
		})
		if err != nil {
			return report, provisioningErr("create dispatch rule", err)
		}
		rule = created
		report.Actions = append(report.Actions, ActionRuleCreated)
	case !slices.Contains(rule.TrunkIDs, trunk.ID):
		rule.TrunkIDs = append(rule.TrunkIDs, trunk.ID)
		updated, err := s.control.UpdateDispatchRule(ctx, rule)
		if err != nil {
			return report, provisioningErr("update dispatch rule", err)
		}
		rule = updated
		report.Actions = append(report.Actions, ActionRuleLinked)
	default:
		report.Actions = append(report.Actions, ActionRuleNoop)
	}
	report.RuleID = rule.ID

	return report, nil
}

// RemoveInbound tears down the platform setup for e164. Removing the
// trunk's last DID deletes the trunk and unlinks it from the dispatch rule;
// an empty rule is deleted too. No-op when the DID is not provisioned.
func (s *Service) RemoveInbound(ctx context.Context, e164 string) (RemoveReport, error) {
	did, err := NormalizeE164(e164)
	if err != nil {
		return RemoveReport{}, err
	}
	report := RemoveReport{E164: did}

	trunk, found, err := s.findTrunk(ctx)
	if err != nil {
		return report, provisioningErr("list trunks", err)
	}
	if !found || !slices.Contains(trunk.Numbers, did) {
		report.Actions = append(report.Actions, ActionNothingToRemove)
		return report, nil
	}

	remaining := slices.DeleteFunc(slices.Clone(trunk.Numbers), func(n string) bool { return n == did })
	if len(remaining) > 0 {
		trunk.Numbers = remaining
		if _, err := s.control.UpdateTrunk(ctx, trunk); err != nil {
			return report, provisioningErr("update trunk", err)
		}
		report.Actions = append(report.Actions, ActionNumberRemoved)
		return report, nil
	}

	// Last DID on the trunk: delete it and drop the rule reference.
	if err := s.control.DeleteTrunk(ctx, trunk.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return report, provisioningErr("delete trunk", err)
	}
	report.TrunkDeleted = true
	report.Actions = append(report.Actions, ActionNumberRemoved, ActionTrunkDeleted)

	rule, found, err := s.findRule(ctx)
	if err != nil {
		return report, provisioningErr("list dispatch rules", err)
	}
	if !found || !slices.Contains(rule.TrunkIDs, trunk.ID) {
		return report, nil
	}

	rule.TrunkIDs = slices.DeleteFunc(slices.Clone(rule.TrunkIDs), func(id string) bool { return id == trunk.ID })
	if len(rule.TrunkIDs) == 0 {
		if err := s.control.DeleteDispatchRule(ctx, rule.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return report, provisioningErr("delete dispatch rule", err)
		}
		report.RuleDeleted = true
		report.Actions = append(report.Actions, ActionRuleUnlinked, ActionRuleDeleted)
		return report, nil
	}

	if _, err := s.control.UpdateDispatchRule(ctx, rule); err != nil {
		return report, provisioningErr("update dispatch rule", err)
	}
	report.Actions = append(report.Actions, ActionRuleUnlinked)
	return report, nil
}

func (s *Service) findTrunk(ctx context.Context) (Trunk, bool, error) {
	trunks, err := s.control.ListTrunks(ctx)
	if err != nil {
		return Trunk{}, false, err
	}
	for _, t := range trunks {
		if t.Name == s.trunkName {
			return t, true, nil
		}
	}
	return Trunk{}, false, nil
}

func (s *Service) findRule(ctx context.Context) (DispatchRule, bool, error) {
	rules, err := s.control.ListDispatchRules(ctx)
	if err != nil {
		return DispatchRule{}, false, err
	}
	for _, r := range rules {
		if r.Name == s.ruleName {
			return r, true, nil
		}
	}
	return DispatchRule{}, false, nil
}

func provisioningErr(step string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProvisioning, step, err)
}

// NormalizeE164 canonicalizes a dialable number: separators stripped,
// leading + enforced, 7-15 digits.
func NormalizeE164(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separators and the plus are dropped; plus is re-added below
		default:
			return "", fmt.Errorf("%w: %q", ErrBadNumber, raw)
		}
	}
	digits := b.String()
	if len(digits) < 7 || len(digits) > 15 {
		return "", fmt.Errorf("%w: %q", ErrBadNumber, raw)
	}
	return "+" + digits, nil
}
