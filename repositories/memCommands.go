package repositories

import (
	"sort"
	"sync"
	"time"

	"smartdoor-relay/clock"
	"smartdoor-relay/entities"
)

type deviceQueue struct {
	mu    sync.Mutex
	items []*entities.Command
	// dead is set when the sweep unlinks the queue from the map; writers
	// that raced the unlink retry on a fresh queue.
	dead bool
}

type memCommandQueue struct {
	mu       sync.RWMutex
	queues   map[string]*deviceQueue
	capacity int
}

func NewMemCommandQueue(capacity int) CommandQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &memCommandQueue{queues: make(map[string]*deviceQueue), capacity: capacity}
}

func (r *memCommandQueue) queueFor(deviceID string) *deviceQueue {
	r.mu.RLock()
	q, ok := r.queues[deviceID]
	r.mu.RUnlock()
	if ok {
		return q
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok = r.queues[deviceID]; ok {
		return q
	}
	q = &deviceQueue{}
	r.queues[deviceID] = q
	return q
}

func (r *memCommandQueue) lookup(deviceID string) *deviceQueue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.queues[deviceID]
}

func (r *memCommandQueue) Enqueue(cmd *entities.Command) *entities.Command {
	for {
		q := r.queueFor(cmd.TargetDevice)
		q.mu.Lock()
		if q.dead {
			q.mu.Unlock()
			continue
		}
		var evicted *entities.Command
		if len(q.items) >= r.capacity {
			evicted = q.items[0]
			q.items = append(q.items[:0], q.items[1:]...)
		}
		q.items = append(q.items, cmd)
		q.mu.Unlock()
		return evicted
	}
}

func (r *memCommandQueue) DequeueNext(deviceID string, now time.Time) (*entities.Command, []*entities.Command) {
	q := r.lookup(deviceID)
	if q == nil {
		return nil, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var expired []*entities.Command
	for len(q.items) > 0 && clock.Expired(q.items[0].ExpiresAt, now) {
		expired = append(expired, q.items[0])
		q.items = q.items[1:]
	}
	if len(q.items) == 0 {
		return nil, expired
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, expired
}

func (r *memCommandQueue) Sweep(now time.Time) ([]*entities.Command, int) {
	// copy-then-filter: the map lock is never held across the scan
	r.mu.RLock()
	snapshot := make(map[string]*deviceQueue, len(r.queues))
	for id, q := range r.queues {
		snapshot[id] = q
	}
	r.mu.RUnlock()

	var expired []*entities.Command
	var empty []string
	for id, q := range snapshot {
		q.mu.Lock()
		kept := q.items[:0]
		for _, c := range q.items {
			if clock.Expired(c.ExpiresAt, now) {
				expired = append(expired, c)
				continue
			}
			kept = append(kept, c)
		}
		for i := len(kept); i < len(q.items); i++ {
			q.items[i] = nil
		}
		q.items = kept
		if len(q.items) == 0 {
			empty = append(empty, id)
		}
		q.mu.Unlock()
	}

	dropped := 0
	if len(empty) > 0 {
		r.mu.Lock()
		for _, id := range empty {
			q, ok := r.queues[id]
			if !ok || q != snapshot[id] {
				continue
			}
			q.mu.Lock()
			if len(q.items) == 0 {
				q.dead = true
				delete(r.queues, id)
				dropped++
			}
			q.mu.Unlock()
		}
		r.mu.Unlock()
	}

	sort.Slice(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })
	return expired, dropped
}

func (r *memCommandQueue) Pending(deviceID string) []entities.Command {
	q := r.lookup(deviceID)
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]entities.Command, 0, len(q.items))
	for _, c := range q.items {
		out = append(out, *c)
	}
	return out
}

func (r *memCommandQueue) Len(deviceID string) int {
	q := r.lookup(deviceID)
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (r *memCommandQueue) Devices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.queues))
	for id := range r.queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
