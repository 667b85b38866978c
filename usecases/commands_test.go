package usecases

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartdoor-relay/clock"
	"smartdoor-relay/entities"
	"smartdoor-relay/repositories"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakePusher struct {
	mu        sync.Mutex
	connected map[string]bool
	fail      bool
	pushed    []*entities.Command
}

func (p *fakePusher) DeviceConnected(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected[id]
}

func (p *fakePusher) PushCommand(cmd *entities.Command) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return false
	}
	p.pushed = append(p.pushed, cmd)
	return true
}

type commandsFixture struct {
	clk     *clock.Fake
	queue   repositories.CommandQueue
	results repositories.ResultStore
	devices repositories.DeviceTracker
	uc      *CommandsUseCase
}

func newCommandsFixture(queueCap int) *commandsFixture {
	clk := clock.NewFake(t0)
	f := &commandsFixture{
		clk:     clk,
		queue:   repositories.NewMemCommandQueue(queueCap),
		results: repositories.NewMemResultStore(500, 2000),
		devices: repositories.NewMemDeviceTracker(clk, 30*time.Second),
	}
	f.uc = NewCommandsUseCase(f.queue, f.results, f.devices, clk, 60*time.Second, zap.NewNop())
	return f
}

func TestSubmit_Validation(t *testing.T) {
	f := newCommandsFixture(50)

	_, err := f.uc.Submit("", "OPEN", nil, "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.uc.Submit("dev1", "", nil, "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.uc.Submit("dev1", "OPEN", nil, "urgent")
	require.ErrorIs(t, err, ErrValidation)

	require.Equal(t, 0, f.queue.Len("dev1"))
}

func TestSubmitThenPoll(t *testing.T) {
	f := newCommandsFixture(50)
	cmd, err := f.uc.Submit("dev1", "OPEN", map[string]interface{}{"duration": 3}, "")
	require.NoError(t, err)
	require.Equal(t, entities.PriorityNormal, cmd.Priority)
	require.Equal(t, t0.Add(60*time.Second), cmd.ExpiresAt)

	got, err := f.uc.Poll("dev1")
	require.NoError(t, err)
	require.Equal(t, cmd.ID, got.ID)
	require.True(t, f.devices.IsOnline("dev1"))

	got, err = f.uc.Poll("dev1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPoll_ExpiredCommandYieldsTimeoutResult(t *testing.T) {
	f := newCommandsFixture(50)
	stale, _ := f.uc.Submit("dev1", "OPEN", nil, "")
	f.clk.Advance(61 * time.Second)
	fresh, _ := f.uc.Submit("dev1", "CLOSE", nil, "high")

	got, err := f.uc.Poll("dev1")
	require.NoError(t, err)
	require.Equal(t, fresh.ID, got.ID)

	results := f.uc.DrainResults()
	require.Len(t, results, 1)
	require.Equal(t, stale.ID, results[0].CommandID)
	require.True(t, results[0].IsTimeout())
	require.Empty(t, f.uc.DrainResults())
}

func TestReportResult_AtMostOnce(t *testing.T) {
	f := newCommandsFixture(50)
	cmd, _ := f.uc.Submit("dev1", "OPEN", nil, "")

	_, err := f.uc.ReportResult("dev1", entities.ResultPayload{})
	require.ErrorIs(t, err, ErrValidation)

	ok, err := f.uc.ReportResult("dev1", entities.ResultPayload{CommandID: cmd.ID, Success: true})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.uc.ReportResult("dev1", entities.ResultPayload{CommandID: cmd.ID, Success: false})
	require.NoError(t, err)
	require.False(t, ok)

	results := f.uc.DrainResults()
	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	require.NotNil(t, results[0].Payload)
}

func TestSubmit_PushesToConnectedDevice(t *testing.T) {
	f := newCommandsFixture(50)
	p := &fakePusher{connected: map[string]bool{"door": true}}
	f.uc.SetPusher(p)

	c1, _ := f.uc.Submit("door", "OPEN", nil, "")
	c2, _ := f.uc.Submit("door", "CLOSE", nil, "")
	_, _ = f.uc.Submit("garage", "OPEN", nil, "")

	require.Len(t, p.pushed, 2)
	require.Equal(t, c1.ID, p.pushed[0].ID)
	require.Equal(t, c2.ID, p.pushed[1].ID)
	require.Equal(t, 0, f.queue.Len("door"))
	require.Equal(t, 1, f.queue.Len("garage"))
}

func TestFlush_DeliversQueuedOnConnect(t *testing.T) {
	f := newCommandsFixture(50)
	p := &fakePusher{connected: map[string]bool{}}
	f.uc.SetPusher(p)

	_, _ = f.uc.Submit("door", "OPEN", nil, "")
	_, _ = f.uc.Submit("door", "REFRESH", nil, "")
	require.Empty(t, p.pushed)

	p.connected["door"] = true
	require.Equal(t, 2, f.uc.Flush("door"))
	require.Equal(t, 0, f.uc.Flush("door"))
}

func TestFlush_FailedPushRecordsUndelivered(t *testing.T) {
	f := newCommandsFixture(50)
	p := &fakePusher{connected: map[string]bool{}, fail: true}
	f.uc.SetPusher(p)
	cmd, _ := f.uc.Submit("door", "OPEN", nil, "")

	p.connected["door"] = true
	require.Equal(t, 0, f.uc.Flush("door"))

	results := f.uc.DrainResults()
	require.Len(t, results, 1)
	require.Equal(t, cmd.ID, results[0].CommandID)
	require.Equal(t, entities.ReasonUndelivered, results[0].Payload["reason"])
}

func TestPending(t *testing.T) {
	f := newCommandsFixture(2)
	_, _ = f.uc.Submit("dev1", "A", nil, "")
	b, _ := f.uc.Submit("dev1", "B", nil, "")
	c, _ := f.uc.Submit("dev1", "C", nil, "")

	pending, err := f.uc.Pending("dev1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, b.ID, pending[0].ID)
	require.Equal(t, c.ID, pending[1].ID)
	require.Empty(t, f.uc.DrainResults())

	empty, err := f.uc.Pending("nobody")
	require.NoError(t, err)
	require.NotNil(t, empty)
}
