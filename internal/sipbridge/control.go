package sipbridge

import (
	"context"
	"sync"
)

// Trunk is the platform-side inbound SIP trunk: it accepts calls for a set
// of DIDs.
type Trunk struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Numbers []string `json:"numbers"`
}

// DispatchRule maps inbound trunk traffic to the room-naming scheme.
type DispatchRule struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	TrunkIDs   []string `json:"trunkIds"`
	RoomPrefix string   `json:"roomPrefix"`
}

// SIPControl is the platform SIP control API this service reconciles
// against. Implementations: HTTPControl (real platform), MemoryControl
// (tests and local mode).
type SIPControl interface {
	ListTrunks(ctx context.Context) ([]Trunk, error)
	CreateTrunk(ctx context.Context, t Trunk) (Trunk, error)
	UpdateTrunk(ctx context.Context, t Trunk) (Trunk, error)
	DeleteTrunk(ctx context.Context, id string) error

	ListDispatchRules(ctx context.Context) ([]DispatchRule, error)
	CreateDispatchRule(ctx context.Context, r DispatchRule) (DispatchRule, error)
	UpdateDispatchRule(ctx context.Context, r DispatchRule) (DispatchRule, error)
	DeleteDispatchRule(ctx context.Context, id string) error
}

// MemoryControl is an in-memory SIPControl for tests. Not for production.
type MemoryControl struct {
	mu     sync.Mutex
	nextID int
	trunks map[string]Trunk
	rules  map[string]DispatchRule
}

func NewMemoryControl() *MemoryControl {
	return &MemoryControl{
		trunks: make(map[string]Trunk),
		rules:  make(map[string]DispatchRule),
	}
}

func (m *MemoryControl) id(prefix string) string {
	m.nextID++
	return prefix + "_" + itoa(m.nextID)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func (m *MemoryControl) ListTrunks(ctx context.Context) ([]Trunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Trunk, 0, len(m.trunks))
	for _, t := range m.trunks {
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryControl) CreateTrunk(ctx context.Context, t Trunk) (Trunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.id("trunk")
	m.trunks[t.ID] = t
	return t, nil
}

func (m *MemoryControl) UpdateTrunk(ctx context.Context, t Trunk) (Trunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trunks[t.ID]; !ok {
		return Trunk{}, ErrNotFound
	}
	m.trunks[t.ID] = t
	return t, nil
}

func (m *MemoryControl) DeleteTrunk(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trunks[id]; !ok {
		return ErrNotFound
	}
	delete(m.trunks, id)
	return nil
}

func (m *MemoryControl) ListDispatchRules(ctx context.Context) ([]DispatchRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DispatchRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryControl) CreateDispatchRule(ctx context.Context, r DispatchRule) (DispatchRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.id("rule")
	m.rules[r.ID] = r
	return r, nil
}

func (m *MemoryControl) UpdateDispatchRule(ctx context.Context, r DispatchRule) (DispatchRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[r.ID]; !ok {
		return DispatchRule{}, ErrNotFound
	}
	m.rules[r.ID] = r
	return r, nil
}

func (m *MemoryControl) DeleteDispatchRule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return ErrNotFound
	}
	delete(m.rules, id)
	return nil
}
