package onboarding

import "time"

// Integration is one onboarded carrier account. The credentials are stored
// sealed; only the one-way fingerprint is ever logged or returned.
type Integration struct {
	ID      string `json:"id" db:"id"`
	Carrier string `json:"carrier" db:"carrier"`
	Name    string `json:"name,omitempty" db:"name"`

	SealedCredentials string `json:"-" db:"sealed_credentials"`
	Fingerprint       string `json:"fingerprint" db:"fingerprint"`

	Status IntegrationStatus `json:"status" db:"status"`

	// TrunkID is the carrier-side trunk-like resource, empty until the
	// bootstrap succeeds (it is best-effort at create time and retried
	// lazily on first connect).
	TrunkID string `json:"trunk_id,omitempty" db:"trunk_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type IntegrationStatus string

const (
	IntegrationActive   IntegrationStatus = "active"
	IntegrationDisabled IntegrationStatus = "disabled"
)

// Binding connects one DID to an agent configuration through an integration.
// At most one enabled binding may exist per E.164 number.
type Binding struct {
	ID            string `json:"id" db:"id"`
	IntegrationID string `json:"integration_id" db:"integration_id"`
	Carrier       string `json:"carrier" db:"carrier"`

	ProviderNumberID string `json:"provider_number_id" db:"provider_number_id"`
	E164             string `json:"e164" db:"e164"`
	AgentID          string `json:"agent_id,omitempty" db:"agent_id"`

	Enabled bool `json:"enabled" db:"enabled"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DeleteReport summarizes a cascading integration delete.
type DeleteReport struct {
	IntegrationID   string `json:"integration_id"`
	DeletedBindings int    `json:"deleted_bindings"`
	TrunkDeleted    bool   `json:"trunk_deleted"`
}
