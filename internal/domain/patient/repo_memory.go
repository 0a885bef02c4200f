package patient

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepo keeps patients in process memory. It backs the registry's
// development mode and end-to-end tests.
type memoryRepo struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]Patient
	order    []uuid.UUID
	access   map[uuid.UUID]map[string]bool
}

func NewMemoryRepo() Repository {
	return &memoryRepo{
		patients: make(map[uuid.UUID]Patient),
		access:   make(map[uuid.UUID]map[string]bool),
	}
}

func (m *memoryRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	m.patients[p.ID] = *p
	m.order = append(m.order, p.ID)
	m.access[p.ID] = map[string]bool{p.CreatedBy: true}
	return nil
}

func (m *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memoryRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.patients[p.ID]
	if !ok {
		return ErrNotFound
	}
	p.CreatedBy, p.CreatedAt = cur.CreatedBy, cur.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	m.patients[p.ID] = *p
	return nil
}

func (m *memoryRepo) FindCandidates(_ context.Context, q CandidateQuery, limit int) ([]*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Patient
	for _, id := range m.order {
		p := m.patients[id]
		if p.BirthDate == q.BirthDate || p.CNS == q.CNS || p.Fingerprint == q.Fingerprint {
			out = append(out, &p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memoryRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*Patient, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*Patient
	for _, id := range m.order {
		if m.access[id][userID] {
			p := m.patients[id]
			all = append(all, &p)
		}
	}
	slices.SortStableFunc(all, func(a, b *Patient) int { return strings.Compare(a.Name, b.Name) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	return all[offset:min(offset+limit, total)], total, nil
}

func (m *memoryRepo) Grant(_ context.Context, id uuid.UUID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[id]; !ok {
		return false, ErrNotFound
	}
	if m.access[id][userID] {
		return false, nil
	}
	m.access[id][userID] = true
	return true, nil
}

func (m *memoryRepo) HasAccess(_ context.Context, id uuid.UUID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access[id][userID], nil
}
