package snapshots

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/isdelr/records-be/internal/models"
)

// MemoryStore keeps snapshots in a process-local table. Contents are lost on
// restart. Every instance is independent.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]models.Snapshot
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]models.Snapshot),
		now:   time.Now,
	}
}

// Write stores a copy of snap under a freshly generated id. Any id set by
// the caller is ignored.
func (m *MemoryStore) Write(_ context.Context, snap models.Snapshot) (models.WriteResult, error) {
	stored := snap.Clone()
	if stored.Timestamp.IsZero() {
		stored.Timestamp = m.now().UTC()
	}
	stored.ID = newID(stored.Timestamp)

	m.mu.Lock()
	m.items[stored.ID] = stored
	m.mu.Unlock()

	return models.WriteResult{ID: stored.ID, Timestamp: stored.Timestamp}, nil
}

// List returns the stored snapshots newest first.
func (m *MemoryStore) List(_ context.Context) ([]models.SnapshotInfo, error) {
	m.mu.RLock()
	infos := make([]models.SnapshotInfo, 0, len(m.items))
	for _, s := range m.items {
		infos = append(infos, infoOf(s, 0))
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Timestamp.Equal(infos[j].Timestamp) {
			return infos[i].ID > infos[j].ID
		}
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})
	return infos, nil
}

// Read returns a copy of the snapshot so the stored value stays immutable.
func (m *MemoryStore) Read(_ context.Context, id string) (models.Snapshot, bool, error) {
	m.mu.RLock()
	s, ok := m.items[id]
	m.mu.RUnlock()
	if !ok {
		return models.Snapshot{}, false, nil
	}
	return s.Clone(), true, nil
}
