package presence

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a cell-bucketed in-memory store for tests and single-node
// runs. Locks are held only around map access, never across I/O.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]DriverLocation
	byCell map[string]map[string]struct{} // cell -> driver ids
	ttl    time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]DriverLocation),
		byCell: make(map[string]map[string]struct{}),
		ttl:    ttl,
	}
}

func (m *MemoryStore) Upsert(_ context.Context, loc DriverLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byID[loc.DriverID]; ok && prev.Cell != loc.Cell {
		m.removeFromCell(prev.Cell, loc.DriverID)
	}
	m.byID[loc.DriverID] = loc
	if m.byCell[loc.Cell] == nil {
		m.byCell[loc.Cell] = make(map[string]struct{})
	}
	m.byCell[loc.Cell][loc.DriverID] = struct{}{}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, driverID string) (DriverLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.byID[driverID]
	if !ok {
		return DriverLocation{}, ErrDriverNotFound
	}
	return loc, nil
}

func (m *MemoryStore) InCells(_ context.Context, cells []string) ([]DriverLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Time{}
	if m.ttl > 0 {
		cutoff = time.Now().Add(-m.ttl)
	}
	var out []DriverLocation
	for _, cell := range cells {
		for id := range m.byCell[cell] {
			loc := m.byID[id]
			if !loc.Dispatchable() {
				continue
			}
			if !cutoff.IsZero() && loc.Updated.Before(cutoff) {
				continue
			}
			out = append(out, loc)
		}
	}
	return out, nil
}

func (m *MemoryStore) SetOnline(_ context.Context, driverID string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.byID[driverID]
	if !ok {
		return ErrDriverNotFound
	}
	loc.Online = online
	loc.Updated = time.Now()
	m.byID[driverID] = loc
	return nil
}

func (m *MemoryStore) removeFromCell(cell, driverID string) {
	if ids := m.byCell[cell]; ids != nil {
		delete(ids, driverID)
		if len(ids) == 0 {
			delete(m.byCell, cell)
		}
	}
}
