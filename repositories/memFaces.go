package repositories

import (
	"sync"

	"smartdoor-relay/cache"
	"smartdoor-relay/entities"
)

type memFaceStore struct {
	mu    sync.RWMutex
	faces map[string]entities.Face
	order *cache.Ring[string] // registration order, oldest first
}

func NewMemFaceStore(capacity int) FaceStore {
	return &memFaceStore{
		faces: make(map[string]entities.Face),
		order: cache.NewRing[string](capacity),
	}
}

// Put registers or replaces a face. A replaced face counts as newest.
func (r *memFaceStore) Put(face entities.Face) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.faces[face.PersonName]; ok {
		r.order.RemoveFunc(func(n string) bool { return n == face.PersonName })
	}
	r.faces[face.PersonName] = face
	old, evicted := r.order.Push(face.PersonName)
	if evicted {
		delete(r.faces, old)
	}
	return evicted
}

func (r *memFaceStore) Get(name string) (entities.Face, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.faces[name]
	return f, ok
}

func (r *memFaceStore) List() []entities.Face {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.order.Items()
	out := make([]entities.Face, 0, len(names))
	for _, n := range names {
		out = append(out, r.faces[n])
	}
	return out
}

func (r *memFaceStore) Delete(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.faces[name]; !ok {
		return false
	}
	delete(r.faces, name)
	r.order.RemoveFunc(func(n string) bool { return n == name })
	return true
}

func (r *memFaceStore) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.faces)
}
