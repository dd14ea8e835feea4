package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements CallStore and EventStore in memory. It backs tests
// and single-node local runs; production uses Postgres + Redis.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call // by room name
	seen  map[string]struct{}
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls: make(map[string]Call),
		seen:  make(map[string]struct{}),
		clock: time.Now,
	}
}

func (m *MemoryStore) RecordEventSeen(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = struct{}{}
	return true, nil
}

func (m *MemoryStore) GetCallByRoom(ctx context.Context, roomName string) (Call, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[roomName]
	return c, ok, nil
}

func (m *MemoryStore) UpsertCallByRoom(ctx context.Context, c Call) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.calls[c.RoomName]
	if !ok {
		m.calls[c.RoomName] = c
		return c, nil
	}

	// Identity fields stay; only status and diagnostics refresh.
	existing.Status = c.Status
	existing.UpdatedAt = m.clock().UTC()
	m.calls[c.RoomName] = existing
	return existing, nil
}

func (m *MemoryStore) MarkAgentDispatched(ctx context.Context, roomName, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[roomName]
	if !ok || c.AgentDispatched {
		return false, nil
	}
	c.AgentDispatched = true
	c.SessionID = sessionID
	c.UpdatedAt = m.clock().UTC()
	m.calls[roomName] = c
	return true, nil
}

func (m *MemoryStore) ClearAgentDispatched(ctx context.Context, roomName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.calls[roomName]
	if !ok {
		return nil
	}
	c.AgentDispatched = false
	c.SessionID = ""
	c.UpdatedAt = m.clock().UTC()
	m.calls[roomName] = c
	return nil
}

func (m *MemoryStore) MarkEnded(ctx context.Context, callID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for room, c := range m.calls {
		if c.CallID == callID {
			c.Status = CallStatusEnded
			c.EndReason = reason
			c.UpdatedAt = m.clock().UTC()
			m.calls[room] = c
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) ListCalls(ctx context.Context, roomName string) ([]Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Call
	for _, c := range m.calls {
		if roomName == "" || c.RoomName == roomName {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
