package repository

import (
	"context"
	"errors"
	"sync"

	"RiskPulse/internal/domain/models"
)

var errStoreClosed = errors.New("memory store closed")

// MemoryStore serves a snapshot held in memory. StoreSnapshot swaps it
// atomically; readers keep whatever snapshot they already obtained.
type MemoryStore struct {
	mu     sync.RWMutex
	snap   *models.Snapshot
	closed bool
}

func NewMemoryStore(snap *models.Snapshot) *MemoryStore {
	if snap == nil {
		snap = &models.Snapshot{}
	}
	return &MemoryStore{snap: snap}
}

// NewSampleStore returns a store seeded with a synthetic portfolio.
func NewSampleStore(cfg SampleConfig) *MemoryStore {
	return NewMemoryStore(GenerateSample(cfg))
}

func (m *MemoryStore) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errStoreClosed
	}
	return m.snap, nil
}

func (m *MemoryStore) StoreSnapshot(_ context.Context, snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errStoreClosed
	}
	m.snap = snap
	return nil
}

func (m *MemoryStore) Health(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errStoreClosed
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
