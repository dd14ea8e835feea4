package onboarding

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore backs tests and local runs; production uses Postgres.
type MemoryStore struct {
	mu           sync.Mutex
	integrations map[string]Integration
	bindings     map[string]Binding
	clock        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		integrations: make(map[string]Integration),
		bindings:     make(map[string]Binding),
		clock:        time.Now,
	}
}

func (m *MemoryStore) CreateIntegration(ctx context.Context, in Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.integrations[in.ID] = in
	return nil
}

func (m *MemoryStore) GetIntegration(ctx context.Context, id string) (Integration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.integrations[id]
	return in, ok, nil
}

func (m *MemoryStore) ListIntegrations(ctx context.Context, carrierName string) ([]Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Integration
	for _, in := range m.integrations {
		if carrierName == "" || in.Carrier == carrierName {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateIntegration(ctx context.Context, in Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.integrations[in.ID]; !ok {
		return ErrIntegrationNotFound
	}
	in.UpdatedAt = m.clock().UTC()
	m.integrations[in.ID] = in
	return nil
}

func (m *MemoryStore) DeleteIntegration(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.integrations, id)
	return nil
}

func (m *MemoryStore) UpsertBinding(ctx context.Context, b Binding) (Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, other := range m.bindings {
		if other.Enabled && b.Enabled && other.E164 == b.E164 &&
			!(other.IntegrationID == b.IntegrationID && other.ProviderNumberID == b.ProviderNumberID) {
			return Binding{}, ErrNumberAlreadyBound
		}
	}

	// Same (integration, provider number) pair refreshes in place.
	for id, other := range m.bindings {
		if other.IntegrationID == b.IntegrationID && other.ProviderNumberID == b.ProviderNumberID {
			b.ID = id
			b.CreatedAt = other.CreatedAt
			b.UpdatedAt = m.clock().UTC()
			m.bindings[id] = b
			return b, nil
		}
	}

	m.bindings[b.ID] = b
	return b, nil
}

func (m *MemoryStore) GetBinding(ctx context.Context, id string) (Binding, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[id]
	return b, ok, nil
}

func (m *MemoryStore) GetEnabledBindingByE164(ctx context.Context, e164 string) (Binding, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bindings {
		if b.Enabled && b.E164 == e164 {
			return b, true, nil
		}
	}
	return Binding{}, false, nil
}

func (m *MemoryStore) ListBindings(ctx context.Context, integrationID string) ([]Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Binding
	for _, b := range m.bindings {
		if b.IntegrationID == integrationID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListAllBindings(ctx context.Context) ([]Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Binding, 0, len(m.bindings))
	for _, b := range m.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteBinding(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bindings, id)
	return nil
}
