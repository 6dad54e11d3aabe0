package repository

import (
	"context"
	"sync"

	"github.com/ricirt/adpromo/internal/domain"
)

// MockEntryRepository is a hand-written, in-memory EntryRepository used in
// unit tests.
type MockEntryRepository struct {
	mu      sync.RWMutex
	entries []*domain.Entry

	// Optional error overrides, set in tests to simulate failure paths.
	LoadErr           error
	AppendErr         error
	UpdatePromotedErr error
	RemoveHeadErr     error
	LockErr           error

	// Call counters for assertions.
	AppendCalls int
	UpdateCalls int

	locks memLocks
}

func NewMockEntryRepository(seed ...*domain.Entry) *MockEntryRepository {
	m := &MockEntryRepository{}
	for _, e := range seed {
		clone := *e
		m.entries = append(m.entries, &clone)
	}
	return m
}

func (m *MockEntryRepository) Load(_ context.Context) ([]*domain.Entry, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MockEntryRepository) FindByTitle(_ context.Context, title string) (*domain.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.Title == title {
			clone := *e
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockEntryRepository) Append(_ context.Context, e *domain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++
	if m.AppendErr != nil {
		return m.AppendErr
	}
	for _, existing := range m.entries {
		if existing.Title == e.Title {
			return domain.ErrDuplicateEntry
		}
	}
	clone := *e
	m.entries = append(m.entries, &clone)
	return nil
}

func (m *MockEntryRepository) UpdatePromoted(_ context.Context, title string, promoted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdatePromotedErr != nil {
		return m.UpdatePromotedErr
	}
	for _, e := range m.entries {
		if e.Title == title {
			if e.Promoted && !promoted {
				return domain.ErrPromotedMonotonic
			}
			e.Promoted = promoted
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockEntryRepository) RemoveHead(_ context.Context, expectedTitle string) error {
	if m.RemoveHeadErr != nil {
		return m.RemoveHeadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return domain.ErrNotFound
	}
	if m.entries[0].Title != expectedTitle {
		return domain.ErrStaleHead
	}
	m.entries = m.entries[1:]
	return nil
}

func (m *MockEntryRepository) Lock(ctx context.Context, scope LockScope) (func(), error) {
	if m.LockErr != nil {
		return nil, m.LockErr
	}
	return m.locks.lock(ctx, scope)
}

// compile-time check that MockEntryRepository implements EntryRepository
var _ EntryRepository = (*MockEntryRepository)(nil)
