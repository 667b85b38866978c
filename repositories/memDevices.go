package repositories

import (
	"sort"
	"sync"
	"time"

	"smartdoor-relay/clock"
	"smartdoor-relay/entities"
)

type deviceRecord struct {
	lastSeen  time.Time
	auxiliary map[string]interface{}
}

type memDeviceTracker struct {
	mu               sync.RWMutex
	devices          map[string]*deviceRecord
	clock            clock.Clock
	offlineThreshold time.Duration
}

func NewMemDeviceTracker(clk clock.Clock, offlineThreshold time.Duration) DeviceTracker {
	return &memDeviceTracker{
		devices:          make(map[string]*deviceRecord),
		clock:            clk,
		offlineThreshold: offlineThreshold,
	}
}

// Touch creates the device on first contact.
func (r *memDeviceTracker) Touch(deviceID string) {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked(deviceID, now)
}

func (r *memDeviceTracker) touchLocked(deviceID string, now time.Time) *deviceRecord {
	rec, ok := r.devices[deviceID]
	if !ok {
		rec = &deviceRecord{auxiliary: map[string]interface{}{}}
		r.devices[deviceID] = rec
	}
	rec.lastSeen = now
	return rec
}

func (r *memDeviceTracker) MergeAuxiliary(deviceID string, aux map[string]interface{}) {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.touchLocked(deviceID, now)
	for k, v := range aux {
		rec.auxiliary[k] = v
	}
}

func (r *memDeviceTracker) IsOnline(deviceID string) bool {
	now := r.clock.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.devices[deviceID]
	return ok && r.online(rec, now)
}

func (r *memDeviceTracker) online(rec *deviceRecord, now time.Time) bool {
	return now.Sub(rec.lastSeen) < r.offlineThreshold
}

func (r *memDeviceTracker) status(id string, rec *deviceRecord, now time.Time) entities.DeviceStatus {
	aux := make(map[string]interface{}, len(rec.auxiliary))
	for k, v := range rec.auxiliary {
		aux[k] = v
	}
	return entities.DeviceStatus{
		DeviceID:  id,
		Online:    r.online(rec, now),
		LastSeen:  rec.lastSeen,
		Auxiliary: aux,
	}
}

func (r *memDeviceTracker) Get(deviceID string) (entities.DeviceStatus, bool) {
	now := r.clock.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.devices[deviceID]
	if !ok {
		return entities.DeviceStatus{}, false
	}
	return r.status(deviceID, rec, now), true
}

func (r *memDeviceTracker) Snapshot() []entities.DeviceStatus {
	now := r.clock.Now()
	r.mu.RLock()
	out := make([]entities.DeviceStatus, 0, len(r.devices))
	for id, rec := range r.devices {
		out = append(out, r.status(id, rec, now))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (r *memDeviceTracker) EvictStale(now time.Time, staleAfter time.Duration) []string {
	r.mu.RLock()
	var stale []string
	for id, rec := range r.devices {
		if now.Sub(rec.lastSeen) >= staleAfter {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()
	if len(stale) == 0 {
		return nil
	}

	// re-check under the write lock: a device touched since the scan stays
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := stale[:0]
	for _, id := range stale {
		rec, ok := r.devices[id]
		if ok && now.Sub(rec.lastSeen) >= staleAfter {
			delete(r.devices, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}
