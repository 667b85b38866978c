package repositories

import (
	"sync"

	"smartdoor-relay/cache"
	"smartdoor-relay/entities"
)

type memLogStore struct {
	mu     sync.RWMutex
	ring   *cache.Ring[entities.LogEntry]
	lastID int64
}

func NewMemLogStore(capacity int) LogStore {
	return &memLogStore{ring: cache.NewRing[entities.LogEntry](capacity)}
}

func (r *memLogStore) Append(entry entities.LogEntry) (entities.LogEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	entry.ID = r.lastID
	_, evicted := r.ring.Push(entry)
	return entry, evicted
}

func (r *memLogStore) AttachStorageKey(id int64, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ring.Update(
		func(e entities.LogEntry) bool { return e.ID == id },
		func(e *entities.LogEntry) {
			e.Media = entities.Media{StorageKey: key}
		},
	)
}

func (r *memLogStore) History() []entities.LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ring.Items()
}

func (r *memLogStore) Since(lastID int64) []entities.LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []entities.LogEntry
	for _, e := range r.ring.Items() {
		if e.ID > lastID {
			out = append(out, e)
		}
	}
	return out
}

func (r *memLogStore) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ring.Len()
}
