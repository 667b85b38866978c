package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"smartdoor-relay/clock"
	"smartdoor-relay/entities"
	"smartdoor-relay/metrics"
	"smartdoor-relay/repositories"
)

// SweepStats summarizes one reclaimer pass.
type SweepStats struct {
	Expired        int
	DroppedQueues  int
	EvictedDevices []string
}

// Reclaimer periodically expires undelivered commands, drops empty queues
// and forgets devices that stopped calling in.
type Reclaimer struct {
	queue      repositories.CommandQueue
	results    repositories.ResultStore
	devices    repositories.DeviceTracker
	clock      clock.Clock
	interval   time.Duration
	staleAfter time.Duration
	log        *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReclaimer evicts devices unseen for 2x offlineThreshold.
func NewReclaimer(queue repositories.CommandQueue, results repositories.ResultStore, devices repositories.DeviceTracker,
	clk clock.Clock, interval, offlineThreshold time.Duration, log *zap.Logger) *Reclaimer {
	return &Reclaimer{
		queue:      queue,
		results:    results,
		devices:    devices,
		clock:      clk,
		interval:   interval,
		staleAfter: 2 * offlineThreshold,
		log:        log,
	}
}

// Start runs the sweep loop until ctx is done or Stop is called.
func (r *Reclaimer) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	ticker := time.NewTicker(r.interval)
	go func(done chan struct{}) {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce()
			}
		}
	}(r.done)
	r.log.Info("reclaimer started", zap.Duration("interval", r.interval), zap.Duration("stale_after", r.staleAfter))
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (r *Reclaimer) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce performs a single pass. It is idempotent and safe to run
// alongside enqueue and dequeue.
func (r *Reclaimer) RunOnce() SweepStats {
	start := time.Now()
	now := r.clock.Now()

	expired, dropped := r.queue.Sweep(now)
	RecordTimeouts(r.results, expired, now)
	evicted := r.devices.EvictStale(now, r.staleAfter)

	stats := SweepStats{Expired: len(expired), DroppedQueues: dropped, EvictedDevices: evicted}
	metrics.Sweep(time.Since(start), len(evicted))
	if stats.Expired > 0 || stats.DroppedQueues > 0 || len(evicted) > 0 {
		r.log.Info("reclaimer pass",
			zap.Int("expired_commands", stats.Expired),
			zap.Int("dropped_queues", stats.DroppedQueues),
			zap.Strings("evicted_devices", evicted))
	}
	return stats
}

// RecordTimeouts stores a synthetic failed result for every expired command.
func RecordTimeouts(results repositories.ResultStore, expired []*entities.Command, now time.Time) {
	for _, cmd := range expired {
		accepted, evicted := results.Record(entities.TimeoutResult(cmd, now))
		if accepted {
			metrics.ResultRecorded(metrics.ResultTimeout, evicted)
		}
	}
}
