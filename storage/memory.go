package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"smartdoor-relay/cache"
)

type memObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps the most recent objects in process. Used when no bucket
// is configured and in tests; links it signs are only meaningful locally.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
	order   *cache.Ring[string]
	now     func() time.Time
}

func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memObject),
		order:   cache.NewRing[string](capacity),
		now:     time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, data []byte, contentType string) (string, error) {
	key := NewKey(m.now(), contentType)
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: buf, contentType: contentType}
	if old, evicted := m.order.Push(key); evicted {
		delete(m.objects, old)
	}
	return key, nil
}

func (m *MemoryStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	exp := m.now().Add(ttl).Unix()
	return fmt.Sprintf("memory://objects/%s?expires=%d", url.PathEscape(key), exp), nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	return o.data, o.contentType, ok
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
