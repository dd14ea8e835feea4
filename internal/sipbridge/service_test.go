package sipbridge

import (
	"context"
	"errors"
	"testing"
)

func newTestService() (*Service, *MemoryControl) {
	ctl := NewMemoryControl()
	return NewService(ctl, "byoc-inbound", "byoc-dispatch", "call-"), ctl
}

func TestEnsureInbound_CreatesTrunkAndRule(t *testing.T) {
	svc, ctl := newTestService()

	report, err := svc.EnsureInbound(context.Background(), "+1 (555) 000-0001")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if report.E164 != "+15550000001" {
		t.Fatalf("expected normalized e164, got %q", report.E164)
	}
	if report.TrunkID == "" || report.RuleID == "" {
		t.Fatalf("expected trunk and rule ids in report: %+v", report)
	}

	trunks, _ := ctl.ListTrunks(context.Background())
	if len(trunks) != 1 || len(trunks[0].Numbers) != 1 {
		t.Fatalf("unexpected trunks: %+v", trunks)
	}
	rules, _ := ctl.ListDispatchRules(context.Background())
	if len(rules) != 1 || len(rules[0].TrunkIDs) != 1 || rules[0].TrunkIDs[0] != trunks[0].ID {
		t.Fatalf("rule must reference the trunk: %+v", rules)
	}
	if rules[0].RoomPrefix != "call-" {
		t.Fatalf("expected room prefix on rule")
	}
}

func TestEnsureInbound_Converges(t *testing.T) {
	svc, ctl := newTestService()

	first, err := svc.EnsureInbound(context.Background(), "+15550000001")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	second, err := svc.EnsureInbound(context.Background(), "+15550000001")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if first.TrunkID != second.TrunkID || first.RuleID != second.RuleID {
		t.Fatalf("re-invocation must yield identical resource ids: %+v vs %+v", first, second)
	}
	trunks, _ := ctl.ListTrunks(context.Background())
	rules, _ := ctl.ListDispatchRules(context.Background())
	if len(trunks) != 1 || len(rules) != 1 {
		t.Fatalf("no duplicates may be created: %d trunks, %d rules", len(trunks), len(rules))
	}
	if len(second.Actions) != 2 || second.Actions[0] != ActionTrunkNoop || second.Actions[1] != ActionRuleNoop {
		t.Fatalf("second run should be a noop, got %v", second.Actions)
	}
}

func TestEnsureInbound_AddsDidToExistingTrunk(t *testing.T) {
	svc, ctl := newTestService()

	if _, err := svc.EnsureInbound(context.Background(), "+15550000001"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := svc.EnsureInbound(context.Background(), "+15550000002"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	trunks, _ := ctl.ListTrunks(context.Background())
	if len(trunks) != 1 || len(trunks[0].Numbers) != 2 {
		t.Fatalf("expected one trunk carrying both DIDs: %+v", trunks)
	}
}

func TestRemoveInbound_LastDidDeletesTrunkAndRule(t *testing.T) {
	svc, ctl := newTestService()
	if _, err := svc.EnsureInbound(context.Background(), "+15550000001"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	report, err := svc.RemoveInbound(context.Background(), "+15550000001")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !report.TrunkDeleted || !report.RuleDeleted {
		t.Fatalf("expected trunk and rule deleted: %+v", report)
	}

	trunks, _ := ctl.ListTrunks(context.Background())
	rules, _ := ctl.ListDispatchRules(context.Background())
	if len(trunks) != 0 || len(rules) != 0 {
		t.Fatalf("expected full teardown, got %d trunks %d rules", len(trunks), len(rules))
	}
}

func TestRemoveInbound_KeepsTrunkWhileDidsRemain(t *testing.T) {
	svc, ctl := newTestService()
	_, _ = svc.EnsureInbound(context.Background(), "+15550000001")
	_, _ = svc.EnsureInbound(context.Background(), "+15550000002")

	report, err := svc.RemoveInbound(context.Background(), "+15550000001")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if report.TrunkDeleted || report.RuleDeleted {
		t.Fatalf("trunk must survive while DIDs remain: %+v", report)
	}

	trunks, _ := ctl.ListTrunks(context.Background())
	if len(trunks) != 1 || len(trunks[0].Numbers) != 1 || trunks[0].Numbers[0] != "+15550000002" {
		t.Fatalf("unexpected trunk state: %+v", trunks)
	}
}

func TestRemoveInbound_AbsentIsNoop(t *testing.T) {
	svc, _ := newTestService()

	report, err := svc.RemoveInbound(context.Background(), "+15550000009")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(report.Actions) != 1 || report.Actions[0] != ActionNothingToRemove {
		t.Fatalf("expected absent noop, got %+v", report)
	}
}

func TestEnsureInbound_WrapsControlErrors(t *testing.T) {
	svc := NewService(failingControl{}, "byoc-inbound", "byoc-dispatch", "call-")

	_, err := svc.EnsureInbound(context.Background(), "+15550000001")
	if !errors.Is(err, ErrProvisioning) {
		t.Fatalf("expected ErrProvisioning, got %v", err)
	}
}

func TestNormalizeE164(t *testing.T) {
	cases := map[string]string{
		"+1 (555) 000-0001": "+15550000001",
		"15550000001":       "+15550000001",
		"+44.20.7946.0958":  "+442079460958",
	}
	for in, want := range cases {
		got, err := NormalizeE164(in)
		if err != nil {
			t.Fatalf("%q: unexpected err: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}

	for _, bad := range []string{"", "abc", "+1-call-me", "123"} {
		if _, err := NormalizeE164(bad); !errors.Is(err, ErrBadNumber) {
			t.Fatalf("%q: expected ErrBadNumber, got %v", bad, err)
		}
	}
}

type failingControl struct{}

func (failingControl) ListTrunks(ctx context.Context) ([]Trunk, error) {
	return nil, errors.New("boom")
}
func (failingControl) CreateTrunk(ctx context.Context, t Trunk) (Trunk, error) {
	return Trunk{}, errors.New("boom")
}
func (failingControl) UpdateTrunk(ctx context.Context, t Trunk) (Trunk, error) {
	return Trunk{}, errors.New("boom")
}
func (failingControl) DeleteTrunk(ctx context.Context, id string) error { return errors.New("boom") }
func (failingControl) ListDispatchRules(ctx context.Context) ([]DispatchRule, error) {
	return nil, errors.New("boom")
}
func (failingControl) CreateDispatchRule(ctx context.Context, r DispatchRule) (DispatchRule, error) {
	return DispatchRule{}, errors.New("boom")
}
func (failingControl) UpdateDispatchRule(ctx context.Context, r DispatchRule) (DispatchRule, error) {
	return DispatchRule{}, errors.New("boom")
}
func (failingControl) DeleteDispatchRule(ctx context.Context, id string) error {
	return errors.New("boom")
}
