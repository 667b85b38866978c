package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartdoor-relay/clock"
	"smartdoor-relay/entities"
	"smartdoor-relay/repositories"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type reclaimerFixture struct {
	clk     *clock.Fake
	queue   repositories.CommandQueue
	results repositories.ResultStore
	devices repositories.DeviceTracker
	r       *Reclaimer
}

func newReclaimerFixture() *reclaimerFixture {
	clk := clock.NewFake(t0)
	f := &reclaimerFixture{
		clk:     clk,
		queue:   repositories.NewMemCommandQueue(50),
		results: repositories.NewMemResultStore(500, 2000),
		devices: repositories.NewMemDeviceTracker(clk, 30*time.Second),
	}
	f.r = NewReclaimer(f.queue, f.results, f.devices, clk, 10*time.Second, 30*time.Second, zap.NewNop())
	return f
}

func TestReclaimer_ExpiresUndeliveredCommand(t *testing.T) {
	f := newReclaimerFixture()
	cmd := entities.NewCommand("door", "OPEN", nil, "", t0, 60*time.Second)
	f.queue.Enqueue(cmd)

	f.clk.Advance(60 * time.Second)
	stats := f.r.RunOnce()
	require.Equal(t, 0, stats.Expired)
	require.Equal(t, 1, f.queue.Len("door"))

	f.clk.Advance(time.Second)
	stats = f.r.RunOnce()
	require.Equal(t, 1, stats.Expired)
	require.Equal(t, 1, stats.DroppedQueues)
	require.Equal(t, 0, f.queue.Len("door"))

	results := f.results.DrainPending()
	require.Len(t, results, 1)
	require.Equal(t, cmd.ID, results[0].CommandID)
	require.False(t, results[0].Success)
	require.True(t, results[0].IsTimeout())
	require.Equal(t, "OPEN", results[0].Payload["command"])
}

func TestReclaimer_Idempotent(t *testing.T) {
	f := newReclaimerFixture()
	f.queue.Enqueue(entities.NewCommand("door", "OPEN", nil, "", t0, time.Second))
	f.clk.Advance(2 * time.Second)

	require.Equal(t, 1, f.r.RunOnce().Expired)
	require.Equal(t, SweepStats{}.Expired, f.r.RunOnce().Expired)
	require.Len(t, f.results.DrainPending(), 1)
}

func TestReclaimer_EvictsStaleDevices(t *testing.T) {
	f := newReclaimerFixture()
	f.devices.Touch("door")
	f.clk.Advance(30 * time.Second)
	f.devices.Touch("garage")

	f.clk.Advance(31 * time.Second)
	stats := f.r.RunOnce()
	require.Equal(t, []string{"door"}, stats.EvictedDevices)

	_, ok := f.devices.Get("door")
	require.False(t, ok)
	_, ok = f.devices.Get("garage")
	require.True(t, ok)
}

func TestReclaimer_StartStop(t *testing.T) {
	f := newReclaimerFixture()
	f.r.interval = 5 * time.Millisecond
	f.queue.Enqueue(entities.NewCommand("door", "OPEN", nil, "", t0, time.Second))
	f.clk.Advance(2 * time.Second)

	f.r.Start(context.Background())
	f.r.Start(context.Background())
	require.Eventually(t, func() bool { return f.results.Len() == 1 }, time.Second, 5*time.Millisecond)
	f.r.Stop()
	f.r.Stop()
}
