package carrier

import "context"

// Client is the provider-agnostic capability set every carrier adapter
// implements. Onboarding logic is written once against this interface;
// nothing outside this package may speak a carrier's REST dialect.
//
// All calls are credential-scoped: credentials arrive per call because one
// process serves many integrations.
type Client interface {
	Name() string

	// Verify performs a read-only probe that fails on bad credentials.
	Verify(ctx context.Context, creds Credentials) error

	ListNumbers(ctx context.Context, creds Credentials) ([]Number, error)
	GetNumber(ctx context.Context, creds Credentials, providerNumberID string) (Number, error)

	// EnsureTrunk finds or creates the carrier-side trunk-like resource
	// (trunk, connection, application - the shape differs per carrier)
	// that sends SIP for attached numbers to originationURI.
	EnsureTrunk(ctx context.Context, creds Credentials, name, originationURI string) (Trunk, error)
	DeleteTrunk(ctx context.Context, creds Credentials, trunkID string) error

	AttachNumber(ctx context.Context, creds Credentials, trunkID, providerNumberID string) error
	DetachNumber(ctx context.Context, creds Credentials, trunkID, providerNumberID string) error
}

// Credentials is the normalized credential shape stored (sealed) per
// integration. Field usage per carrier:
//   - twilio: AccountID = Account SID, APISecret = auth token
//   - telnyx: APIKey = API key (bearer)
//   - plivo:  AccountID = auth ID, APISecret = auth token
type Credentials struct {
	AccountID string `json:"accountId,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	APISecret string `json:"apiSecret,omitempty"`
}

// Primary returns the carrier-facing identifier used for fingerprinting.
func (c Credentials) Primary() string {
	if c.AccountID != "" {
		return c.AccountID
	}
	return c.APIKey
}

// Number is a carrier-owned DID normalized across providers.
type Number struct {
	ID    string `json:"id"`
	E164  string `json:"e164"`
	Label string `json:"label,omitempty"`
}

// Trunk is the carrier-side trunk-like resource.
type Trunk struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
