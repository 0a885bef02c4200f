package entitycache

import (
	"context"
	"slices"
	"sync"
)

// Memory is a process-local Cache.
type Memory struct {
	mu    sync.Mutex
	limit int
	lists map[string][]Entry
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Memory{limit: limit, lists: make(map[string][]Entry)}
}

func (m *Memory) Add(_ context.Context, caller, kind string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(caller, kind)
	list := slices.DeleteFunc(m.lists[k], func(x Entry) bool { return x.ID == e.ID })
	list = slices.Insert(list, 0, e)
	if len(list) > m.limit {
		list = list[:m.limit]
	}
	m.lists[k] = list
	return nil
}

func (m *Memory) List(_ context.Context, caller, kind string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.lists[key(caller, kind)]), nil
}

func key(caller, kind string) string {
	return "entities:" + kind + ":" + caller
}
