package repositories

import (
	"time"

	"smartdoor-relay/entities"
)

// CommandQueue holds one bounded FIFO of pending commands per device.
type CommandQueue interface {
	// Enqueue appends cmd to its device queue. If the queue was full the
	// oldest command is dropped and returned.
	Enqueue(cmd *entities.Command) (evicted *entities.Command)
	// DequeueNext discards expired head entries, returning them in expired,
	// then pops the head. cmd is nil when nothing is pending.
	DequeueNext(deviceID string, now time.Time) (cmd *entities.Command, expired []*entities.Command)
	// Sweep removes every expired command and deletes queues left empty.
	Sweep(now time.Time) (expired []*entities.Command, droppedQueues int)
	Pending(deviceID string) []entities.Command
	Len(deviceID string) int
	Devices() []string
}

// ResultStore buffers command results for pollers and subscribers.
type ResultStore interface {
	// Record stores res unless a result for the same command was already
	// recorded. evicted reports that the oldest unread result was dropped.
	Record(res entities.CommandResult) (accepted, evicted bool)
	// DrainPending returns unread results oldest first and clears them.
	DrainPending() []entities.CommandResult
	// Subscribe returns a stream of results recorded from now on and a
	// cancel func. Slow subscribers miss results rather than block Record.
	Subscribe(buffer int) (<-chan entities.CommandResult, func())
	Len() int
}

// DeviceTracker records device contact and derives liveness.
type DeviceTracker interface {
	Touch(deviceID string)
	MergeAuxiliary(deviceID string, aux map[string]interface{})
	IsOnline(deviceID string) bool
	Get(deviceID string) (entities.DeviceStatus, bool)
	Snapshot() []entities.DeviceStatus
	// EvictStale drops devices unseen for at least staleAfter at now.
	EvictStale(now time.Time, staleAfter time.Duration) []string
}

// LogStore is the bounded event history.
type LogStore interface {
	// Append assigns the next id and stores entry, evicting the oldest
	// entry when full.
	Append(entry entities.LogEntry) (stored entities.LogEntry, evicted bool)
	// AttachStorageKey replaces inline media of entry id with key.
	AttachStorageKey(id int64, key string) bool
	History() []entities.LogEntry
	Since(lastID int64) []entities.LogEntry
	Len() int
}

// FaceStore is the bounded face registry.
type FaceStore interface {
	Put(face entities.Face) (evicted bool)
	Get(name string) (entities.Face, bool)
	List() []entities.Face
	Delete(name string) bool
	Len() int
}
