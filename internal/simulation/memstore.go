package simulation

import (
	"context"
	"sort"
	"sync"

	"github.com/felixgeelhaar/phishdrill/internal/domain"
)

// MemoryStore is a Store kept in process memory. Records are copied on the
// way in and out.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	items       map[string]*ContentItem
	slots       map[slotKey]string
	responses   map[string][]*Response
	assignments map[string]*Assignment
}

type slotKey struct {
	session string
	slot    int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*Session),
		items:       make(map[string]*ContentItem),
		slots:       make(map[slotKey]string),
		responses:   make(map[string][]*Response),
		assignments: make(map[string]*Assignment),
	}
}

func (m *MemoryStore) Commit(_ context.Context, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mut.Item != nil && mut.Item.SourceSessionID != "" {
		key := slotKey{mut.Item.SourceSessionID, mut.Item.Slot}
		if existing, ok := m.slots[key]; ok && existing != mut.Item.ID {
			return domain.ErrPersistence
		}
	}

	for _, s := range mut.Sessions {
		m.sessions[s.ID] = s.Clone()
	}
	if mut.Item != nil {
		item := *mut.Item
		m.items[item.ID] = &item
		if item.SourceSessionID != "" {
			m.slots[slotKey{item.SourceSessionID, item.Slot}] = item.ID
		}
	}
	if mut.Response != nil {
		r := *mut.Response
		m.responses[r.SessionID] = append(m.responses[r.SessionID], &r)
	}
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ListResponses(_ context.Context, sessionID string) ([]*Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Response, 0, len(m.responses[sessionID]))
	for _, r := range m.responses[sessionID] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) SaveContentItem(_ context.Context, item *ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *item
	m.items[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) GetContentItem(_ context.Context, id string) (*ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrContentItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *MemoryStore) FindPhase2Item(_ context.Context, sessionID string, slot int) (*ContentItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.slots[slotKey{sessionID, slot}]
	if !ok {
		return nil, domain.ErrContentItemNotFound
	}
	cp := *m.items[id]
	return &cp, nil
}

func (m *MemoryStore) SaveAssignment(_ context.Context, a *Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.assignments[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) ListAssignments(_ context.Context, userID string) ([]*Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Assignment
	for _, a := range m.assignments {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) ListSessionsByState(_ context.Context, states ...State) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[State]bool, len(states))
	for _, s := range states {
		want[s] = true
	}

	var out []*Session
	for _, s := range m.sessions {
		if want[s.State] {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// Counts returns the number of stored items and responses, for tests and
// diagnostics.
func (m *MemoryStore) Counts() (items, responses int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rs := range m.responses {
		responses += len(rs)
	}
	return len(m.items), responses
}
