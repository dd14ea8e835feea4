package onboarding

import "context"

// Store persists integrations and bindings. Implementations enforce the
// one-enabled-binding-per-E.164 invariant at write time.
type Store interface {
	CreateIntegration(ctx context.Context, in Integration) error
	GetIntegration(ctx context.Context, id string) (Integration, bool, error)
	ListIntegrations(ctx context.Context, carrierName string) ([]Integration, error)
	UpdateIntegration(ctx context.Context, in Integration) error
	DeleteIntegration(ctx context.Context, id string) error

	// UpsertBinding inserts or refreshes the binding for (integration,
	// provider number). It fails with ErrNumberAlreadyBound when a
	// different enabled binding already claims the same E.164.
	UpsertBinding(ctx context.Context, b Binding) (Binding, error)
	GetBinding(ctx context.Context, id string) (Binding, bool, error)
	GetEnabledBindingByE164(ctx context.Context, e164 string) (Binding, bool, error)
	ListBindings(ctx context.Context, integrationID string) ([]Binding, error)
	ListAllBindings(ctx context.Context) ([]Binding, error)
	DeleteBinding(ctx context.Context, id string) error
}
