package surgery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepo is the in-process store behind the registry's development mode.
type memoryRepo struct {
	mu        sync.RWMutex
	surgeries map[uuid.UUID]Surgery
	order     []uuid.UUID
	access    map[uuid.UUID]map[string]bool
}

func NewMemoryRepo() Repository {
	return &memoryRepo{
		surgeries: make(map[uuid.UUID]Surgery),
		access:    make(map[uuid.UUID]map[string]bool),
	}
}

func (m *memoryRepo) Create(_ context.Context, s *Surgery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	m.surgeries[s.ID] = *s
	m.order = append(m.order, s.ID)
	m.access[s.ID] = map[string]bool{s.CreatedBy: true}
	return nil
}

func (m *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Surgery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.surgeries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memoryRepo) Update(_ context.Context, s *Surgery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.surgeries[s.ID]
	if !ok {
		return ErrNotFound
	}
	s.CreatedBy, s.CreatedAt = cur.CreatedBy, cur.CreatedAt
	s.UpdatedAt = time.Now().UTC()
	m.surgeries[s.ID] = *s
	return nil
}

func (m *memoryRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit int) ([]*Surgery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Surgery
	for _, id := range m.order {
		s := m.surgeries[id]
		if s.PatientID == patientID {
			out = append(out, &s)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memoryRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*Surgery, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*Surgery
	for _, id := range m.order {
		if m.access[id][userID] {
			s := m.surgeries[id]
			all = append(all, &s)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	return all[offset:min(offset+limit, total)], total, nil
}

func (m *memoryRepo) Grant(_ context.Context, id uuid.UUID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.surgeries[id]; !ok {
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
