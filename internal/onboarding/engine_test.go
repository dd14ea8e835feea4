package onboarding

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"telephony-orchestrator/internal/audit"
	"telephony-orchestrator/internal/carrier"
	"telephony-orchestrator/internal/secrets"
	"telephony-orchestrator/internal/sipbridge"
)

// fakeCarrier implements carrier.Client with scripted numbers and counters.
type fakeCarrier struct {
	name    string
	numbers map[string]carrier.Number

	verifyErr error
	trunkErr  error

	trunkCreates int
	attached     map[string]string // provider number id -> trunk id
	detached     []string
	trunkDeleted bool
	deleteErr    error
}

func newFakeCarrier(name string) *fakeCarrier {
	return &fakeCarrier{
		name:     name,
		numbers:  make(map[string]carrier.Number),
		attached: make(map[string]string),
	}
}

func (f *fakeCarrier) Name() string { return f.name }

func (f *fakeCarrier) Verify(ctx context.Context, creds carrier.Credentials) error {
	return f.verifyErr
}

func (f *fakeCarrier) ListNumbers(ctx context.Context, creds carrier.Credentials) ([]carrier.Number, error) {
	out := make([]carrier.Number, 0, len(f.numbers))
	for _, n := range f.numbers {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeCarrier) GetNumber(ctx context.Context, creds carrier.Credentials, id string) (carrier.Number, error) {
	n, ok := f.numbers[id]
	if !ok {
		return carrier.Number{}, &carrier.Error{Carrier: f.name, Code: carrier.CodeValidationError, HTTPStatus: 404, Message: "no such number"}
	}
	return n, nil
}

func (f *fakeCarrier) EnsureTrunk(ctx context.Context, creds carrier.Credentials, name, uri string) (carrier.Trunk, error) {
	if f.trunkErr != nil {
		return carrier.Trunk{}, f.trunkErr
	}
	f.trunkCreates++
	return carrier.Trunk{ID: "trunk-1", Name: name}, nil
}

func (f *fakeCarrier) DeleteTrunk(ctx context.Context, creds carrier.Credentials, trunkID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.trunkDeleted = true
	return nil
}

func (f *fakeCarrier) AttachNumber(ctx context.Context, creds carrier.Credentials, trunkID, numberID string) error {
	f.attached[numberID] = trunkID
	return nil
}

func (f *fakeCarrier) DetachNumber(ctx context.Context, creds carrier.Credentials, trunkID, numberID string) error {
	delete(f.attached, numberID)
	f.detached = append(f.detached, numberID)
	return nil
}

// fakeSIP counts provisioning invocations per DID.
type fakeSIP struct {
	ensured []string
	removed []string
	err     error
}

func (f *fakeSIP) EnsureInbound(ctx context.Context, e164 string) (sipbridge.EnsureReport, error) {
	if f.err != nil {
		return sipbridge.EnsureReport{}, f.err
	}
	f.ensured = append(f.ensured, e164)
	return sipbridge.EnsureReport{E164: e164, TrunkID: "pt-1", RuleID: "pr-1"}, nil
}

func (f *fakeSIP) RemoveInbound(ctx context.Context, e164 string) (sipbridge.RemoveReport, error) {
	if f.err != nil {
		return sipbridge.RemoveReport{}, f.err
	}
	f.removed = append(f.removed, e164)
	return sipbridge.RemoveReport{E164: e164}, nil
}

func newTestEngine(t *testing.T, fc *fakeCarrier) (*Engine, *fakeSIP, *audit.MemoryRepo) {
	t.Helper()
	box, err := secrets.NewBox(make([]byte, 32))
	if err != nil {
		t.Fatalf("box: %v", err)
	}
	sip := &fakeSIP{}
	repo := audit.NewMemoryRepo()
	eng := NewEngine(
		[]carrier.Client{fc},
		NewMemoryStore(),
		box,
		sip,
		audit.NewService(repo),
		"platform-byoc",
		"sip.example.com:5060",
	)
	return eng, sip, repo
}

var testCreds = carrier.Credentials{AccountID: "AC123", APISecret: "token"}

func TestCreateIntegration_SealsAndBootstraps(t *testing.T) {
	fc := newFakeCarrier("twilio")
	eng, _, repo := newTestEngine(t, fc)

	in, err := eng.CreateIntegration(context.Background(), "twilio", testCreds, "prod account")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if in.TrunkID != "trunk-1" {
		t.Fatalf("expected eager trunk bootstrap, got %+v", in)
	}
	if in.SealedCredentials == "" || in.Fingerprint == "" {
		t.Fatalf("credentials must be sealed and fingerprinted: %+v", in)
	}
	if in.Fingerprint != secrets.Fingerprint("twilio", "AC123") {
		t.Fatalf("fingerprint must be carrier-qualified")
	}

	events := repo.Events()
	if len(events) != 1 || events[0].Type != audit.EventTypeIntegrationCreated {
		t.Fatalf("expected integration.created audit event, got %+v", events)
	}
}

func TestCreateIntegration_TrunkBootstrapDeferred(t *testing.T) {
	fc := newFakeCarrier("twilio")
	fc.trunkErr = &carrier.Error{Carrier: "twilio", Code: carrier.CodeProviderError, HTTPStatus: 500, Message: "boom"}
	eng, _, _ := newTestEngine(t, fc)

	in, err := eng.CreateIntegration(context.Background(), "twilio", testCreds, "")
	if err != nil {
		t.Fatalf("bootstrap failure must not fail creation: %v", err)
	}
	if in.TrunkID != "" {
		t.Fatalf("trunk id must stay empty when bootstrap fails")
	}

	// First connect retries the bootstrap lazily.
	fc.trunkErr = nil
	fc.numbers["PN1"] = carrier.Number{ID: "PN1", E164: "+15550001111"}
	if _, err := eng.ConnectNumber(context.Background(), in.ID, "PN1", "+15550001111", ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if fc.trunkCreates != 1 {
		t.Fatalf("expected one lazy trunk create, got %d", fc.trunkCreates)
	}
}

func TestCreateIntegration_BadCredentials(t *testing.T) {
	fc := newFakeCarrier("twilio")
	fc.verifyErr = &carrier.Error{Carrier: "twilio", Code: carrier.CodeAuthInvalid, HTTPStatus: 401, Message: "denied"}
	eng, _, _ := newTestEngine(t, fc)

	_, err := eng.CreateIntegration(context.Background(), "twilio", testCreds, "")
	if carrier.CodeOf(err) != carrier.CodeAuthInvalid {
		t.Fatalf("expected AUTH_INVALID, got %v", err)
	}
	if HTTPStatus(err) != http.StatusUnauthorized {
		t.Fatalf("AUTH_INVALID must map to 401")
	}
}

func TestConnectNumber_Lifecycle(t *testing.T) {
	fc := newFakeCarrier("twilio")
	fc.numbers["PN1"] = carrier.Number{ID: "PN1", E164: "+15550001111"}
	eng, sip, _ := newTestEngine(t, fc)

	in, err := eng.CreateIntegration(context.Background(), "twilio", testCreds, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	nums, err := eng.ListNumbers(context.Background(), in.ID)
	if err != nil || len(nums) != 1 {
		t.Fatalf("expected one number, got %v / %v", nums, err)
	}

	b, err := eng.ConnectNumber(context.Background(), in.ID, "PN1", "+1 (555) 000-1111", "agent-7")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !b.Enabled || b.E164 != "+15550001111" || b.AgentID != "agent-7" {
		t.Fatalf("unexpected binding: %+v", b)
	}
	if len(sip.ensured) != 1 || sip.ensured[0] != "+15550001111" {
		t.Fatalf("EnsureInbound must run exactly once for the DID, got %v", sip.ensured)
	}
	if fc.attached["PN1"] != "trunk-1" {
		t.Fatalf("number must be attached to the carrier trunk")
	}

	if err := eng.DisconnectNumber(context.Background(), b.ID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, ok, _ := eng.store.GetBinding(context.Background(), b.ID); ok {
		t.Fatalf("binding must be gone after disconnect")
	}
	if len(sip.removed) != 1 || sip.removed[0] != "+15550001111" {
		t.Fatalf("RemoveInbound must run exactly once, got %v", sip.removed)
	}
	if len(fc.detached) != 1 {
		t.Fatalf("number must be detached carrier-side, got %v", fc.detached)
	}
}

func TestConnectNumber_E164MismatchMutatesNothing(t *testing.T) {
	fc := newFakeCarrier("twilio")
	fc.numbers["PN1"] = carrier.Number{ID: "PN1", E164: "+15550001111"}
	eng, sip, _ := newTestEngine(t, fc)

	in, _ := eng.CreateIntegration(context.Background(), "twilio", testCreds, "")

	_, err := eng.ConnectNumber(context.Background(), in.ID, "PN1", "+15559999999", "")
	if !errors.Is(err, ErrNumberMismatch) {
		t.Fatalf("expected ErrNumberMismatch, got %v", err)
	}
	if HTTPStatus(err) != http.StatusUnprocessableEntity {
		t.Fatalf("mismatch must map to 422")
	}
	if len(sip.ensured) != 0 || len(fc.attached) != 0 {
		t.Fatalf("mismatch must perform zero mutation: sip=%v attached=%v", sip.ensured, fc.attached)
	}
	if bindings, _ := eng.ListAllBindings(context.Background()); len(bindings) != 0 {
		t.Fatalf("no binding may exist after a rejected connect")
	}
}

func TestConnectNumber_PlatformFirstOrdering(t *testing.T) {
	fc := newFakeCarrier("twilio")
	fc.numbers["PN1"] = carrier.Number{ID: "PN1", E164: "+15550001111"}
	eng, sip, _ := newTestEngine(t, fc)
	in, _ := eng.CreateIntegration(context.Background(), "twilio", testCreds, "")

	// Platform provisioning fails: carrier routing must stay untouched.
	sip.err = sipbridge.ErrProvisioning
	_, err := eng.ConnectNumber(context.Background(), in.ID, "PN1", "+15550001111", "")
	if !errors.Is(err, sipbridge.ErrProvisioning) {
		t.Fatalf("expected provisioning error, got %v", err)
	}
	if len(fc.attached) != 0 {
		t.Fatalf("carrier attach must not run when platform setup failed")
	}
}

func TestConnectNumber_EnabledBindingUniquePerDID(t *testing.T) {
	fc := newFakeCarrier("twilio")
	fc.numbers["PN1"] = carrier.Number{ID: "PN1", E164: "+15550001111"}
	fc.numbers["PN2"] = carrier.Number{ID: "PN2", E164: "+15550001111"}
	eng, _, _ := newTestEngine(t, fc)
	in, _ := eng.CreateIntegration(context.Background(), "twilio", testCreds, "")

	if _, err := eng.ConnectNumber(context.Background(), in.ID, "PN1", "+15550001111", ""); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	_, err := eng.ConnectNumber(context.Background(), in.ID, "PN2", "+15550001111", "")
	if !errors.Is(err, ErrNumberAlreadyBound) {
		t.Fatalf("expected ErrNumberAlreadyBound, got %v", err)
	}
}

func TestDisabledIntegrationRejected(t *testing.T) {
	fc := newFakeCarrier("twilio")
	eng, _, _ := newTestEngine(t, fc)
	in, _ := eng.CreateIntegration(context.Background(), "twilio", testCreds, "")

	in.Status = IntegrationDisabled
	if err := eng.store.UpdateIntegration(context.Background(), in); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := eng.ListNumbers(context.Background(), in.ID); !errors.Is(err, ErrIntegrationDisabled) {
		t.Fatalf("expected ErrIntegrationDisabled, got %v", err)
	}
	if HTTPStatus(ErrIntegrationDisabled) != http.StatusUnprocessableEntity {
		t.Fatalf("disabled must map to 422")
	}
}

func TestDeleteIntegration_Cascades(t *testing.T) {
	fc := newFakeCarrier("twilio")
	fc.numbers["PN1"] = carrier.Number{ID: "PN1", E164: "+15550001111"}
	fc.numbers["PN2"] = carrier.Number{ID: "PN2", E164: "+15550002222"}
	eng, sip, _ := newTestEngine(t, fc)
	in, _ := eng.CreateIntegration(context.Background(), "twilio", testCreds, "")

	if _, err := eng.ConnectNumber(context.Background(), in.ID, "PN1", "+15550001111", ""); err != nil {
		t.Fatalf("connect 1: %v", err)
	}
	if _, err := eng.ConnectNumber(context.Background(), in.ID, "PN2", "+15550002222", ""); err != nil {
		t.Fatalf("connect 2: %v", err)
	}

	report, err := eng.DeleteIntegration(context.Background(), in.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if report.DeletedBindings != 2 {
		t.Fatalf("expected deletedBindings=2, got %d", report.DeletedBindings)
	}
	if !report.TrunkDeleted || !fc.trunkDeleted {
		t.Fatalf("carrier trunk must be deleted")
	}
	if bindings, _ := eng.ListAllBindings(context.Background()); len(bindings) != 0 {
		t.Fatalf("bindings must be gone, got %v", bindings)
	}
	if _, ok, _ := eng.store.GetIntegration(context.Background(), in.ID); ok {
		t.Fatalf("integration must be gone")
	}
	if len(sip.removed) != 2 {
		t.Fatalf("platform teardown must run per binding, got %v", sip.removed)
	}
}

func TestDeleteIntegration_ToleratesGoneTrunk(t *testing.T) {
	fc := newFakeCarrier("twilio")
	fc.deleteErr = &carrier.Error{Carrier: "twilio", Code: carrier.CodeValidationError, HTTPStatus: 404, Message: "gone"}
	eng, _, _ := newTestEngine(t, fc)
	in, _ := eng.CreateIntegration(context.Background(), "twilio", testCreds, "")

	report, err := eng.DeleteIntegration(context.Background(), in.ID)
	if err != nil {
		t.Fatalf("already-gone trunk must not fail delete: %v", err)
	}
	if report.TrunkDeleted {
		t.Fatalf("a gone trunk was not deleted by us")
	}
}

func TestCredentialDecryptFailureIsConflict(t *testing.T) {
	fc := newFakeCarrier("twilio")
	eng, _, _ := newTestEngine(t, fc)
	in, _ := eng.CreateIntegration(context.Background(), "twilio", testCreds, "")

	// Simulate a key rotation underneath the stored blob.
	rotated, err := secrets.NewBox(append(make([]byte, 31), 1))
	if err != nil {
		t.Fatalf("box: %v", err)
	}
	eng.box = rotated

	_, err = eng.ListNumbers(context.Background(), in.ID)
	if !errors.Is(err, ErrCredentialsUnreadable) {
		t.Fatalf("expected ErrCredentialsUnreadable, got %v", err)
	}
	if HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("decrypt failure must map to 409")
	}
}

func TestUnknownCarrier(t *testing.T) {
	eng, _, _ := newTestEngine(t, newFakeCarrier("twilio"))

	if err := eng.VerifyCredentials(context.Background(), "ghostcom", testCreds); !errors.Is(err, ErrUnknownCarrier) {
		t.Fatalf("expected ErrUnknownCarrier, got %v", err)
	}
	if HTTPStatus(ErrUnknownCarrier) != http.StatusNotFound {
		t.Fatalf("unknown carrier must map to 404")
	}
}
