package repositories

import (
	"sync"

	"smartdoor-relay/cache"
	"smartdoor-relay/entities"
)

type memResultStore struct {
	mu      sync.Mutex
	pending *cache.Ring[entities.CommandResult]

	// seen remembers recently recorded command ids so a command never gets
	// a second result. Bounded like everything else.
	seen      map[string]struct{}
	seenOrder *cache.Ring[string]

	subs   map[int]chan entities.CommandResult
	nextID int
}

// NewMemResultStore keeps up to capacity unread results and remembers
// seenCapacity command ids for duplicate suppression.
func NewMemResultStore(capacity, seenCapacity int) ResultStore {
	if seenCapacity < capacity {
		seenCapacity = capacity
	}
	return &memResultStore{
		pending:   cache.NewRing[entities.CommandResult](capacity),
		seen:      make(map[string]struct{}, seenCapacity),
		seenOrder: cache.NewRing[string](seenCapacity),
		subs:      make(map[int]chan entities.CommandResult),
	}
}

func (r *memResultStore) Record(res entities.CommandResult) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.seen[res.CommandID]; dup {
		return false, false
	}
	r.seen[res.CommandID] = struct{}{}
	if old, ok := r.seenOrder.Push(res.CommandID); ok {
		delete(r.seen, old)
	}

	_, evicted := r.pending.Push(res)

	for _, ch := range r.subs {
		select {
		case ch <- res:
		default:
		}
	}
	return true, evicted
}

func (r *memResultStore) DrainPending() []entities.CommandResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.Drain()
}

func (r *memResultStore) Subscribe(buffer int) (<-chan entities.CommandResult, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan entities.CommandResult, buffer)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (r *memResultStore) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.Len()
}
