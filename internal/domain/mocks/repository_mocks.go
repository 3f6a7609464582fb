package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/StevenCC12/server-side-capi/internal/domain"
)

// MockPendingEventCache is a mock implementation of domain.PendingEventCache
// for testing.
type MockPendingEventCache struct {
	mu      sync.Mutex
	Entries map[string]string
	PutErr  error
	TakeErr error
}

func (m *MockPendingEventCache) Put(ctx context.Context, email, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return m.PutErr
	}
	if m.Entries == nil {
		m.Entries = make(map[string]string)
	}
	m.Entries[email] = eventID
	return nil
}

func (m *MockPendingEventCache) Take(ctx context.Context, email string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TakeErr != nil {
		return "", false, m.TakeErr
	}
	id, ok := m.Entries[email]
	if ok {
		delete(m.Entries, email)
	}
	return id, ok, nil
}

// MockEventDispatcher is a mock implementation of domain.EventDispatcher for
// testing. It records every envelope it is handed.
type MockEventDispatcher struct {
	mu        sync.Mutex
	Envelopes []*domain.Envelope
	Response  json.RawMessage
	SendErr   error
	SendFunc  func(ctx context.Context, envelope *domain.Envelope) (json.RawMessage, error)
}

func (m *MockEventDispatcher) Send(ctx context.Context, envelope *domain.Envelope) (json.RawMessage, error) {
	m.mu.Lock()
	m.Envelopes = append(m.Envelopes, envelope)
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, envelope)
	}
	if m.SendErr != nil {
		return nil, m.SendErr
	}
	if m.Response != nil {
		return m.Response, nil
	}
	return json.RawMessage(`{"events_received":1}`), nil
}

// Sent returns a snapshot of the recorded envelopes.
func (m *MockEventDispatcher) Sent() []*domain.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Envelope, len(m.Envelopes))
	copy(out, m.Envelopes)
	return out
}
