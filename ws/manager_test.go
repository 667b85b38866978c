package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartdoor-relay/clock"
	"smartdoor-relay/entities"
	"smartdoor-relay/repositories"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager() (*Manager, repositories.DeviceTracker) {
	tracker := repositories.NewMemDeviceTracker(clock.NewFake(t0), 30*time.Second)
	return NewManager(tracker, "door", zap.NewNop()), tracker
}

func drain(t *testing.T, c *Client) []entities.Envelope {
	t.Helper()
	var out []entities.Envelope
	for {
		select {
		case frame, ok := <-c.Send:
			if !ok {
				return out
			}
			var env entities.Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func logView(id int64, msg string) (entities.LogEntry, entities.LogView) {
	e := entities.LogEntry{ID: id, Kind: entities.KindSuccess, Message: msg, Time: t0}
	return e, e.View("")
}

func decodeLog(t *testing.T, env entities.Envelope) entities.LogView {
	t.Helper()
	require.Equal(t, entities.MsgLog, env.Type)
	var v entities.LogView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestManager_DeviceConnectBroadcastsStatus(t *testing.T) {
	m, tracker := newTestManager()
	op := NewClient(nil, RoleOperator, "", 16)
	m.AttachOperator(op, func() []entities.LogView { return nil })
	drain(t, op)

	dev := NewClient(nil, RoleDevice, "door", 16)
	m.AttachDevice(dev)
	require.True(t, m.DeviceConnected("door"))
	require.False(t, m.DeviceConnected("garage"))

	msgs := drain(t, op)
	require.Len(t, msgs, 1)
	require.Equal(t, entities.MsgStatus, msgs[0].Type)
	var st entities.RelayStatus
	require.NoError(t, json.Unmarshal(msgs[0].Data, &st))
	require.True(t, st.Connected)
	require.True(t, st.Camera)
	require.Equal(t, entities.DoorUnknown, st.Door)

	m.DetachDevice(dev)
	msgs = drain(t, op)
	require.Len(t, msgs, 1)
	require.NoError(t, json.Unmarshal(msgs[0].Data, &st))
	require.False(t, st.Connected)
	require.False(t, st.Camera)

	_, ok := tracker.Get("door")
	require.True(t, ok)
}

func TestManager_ReplacedDeviceIsClosed(t *testing.T) {
	m, _ := newTestManager()
	first := NewClient(nil, RoleDevice, "door", 4)
	second := NewClient(nil, RoleDevice, "door", 4)
	m.AttachDevice(first)
	m.AttachDevice(second)

	_, ok := <-first.Send
	require.False(t, ok)

	// the stale connection going away must not mark the device disconnected
	m.DetachDevice(first)
	require.True(t, m.Status().Connected)
}

func TestManager_ReplayHistoryThenLive(t *testing.T) {
	m, _ := newTestManager()
	history := []entities.LogView{}
	for i := int64(1); i <= 3; i++ {
		_, v := logView(i, "h")
		history = append(history, v)
	}

	op := NewClient(nil, RoleOperator, "", 64)
	m.AttachOperator(op, func() []entities.LogView {
		// entry 3 is in the snapshot and broadcast while the replay runs;
		// entry 4 is newer than the snapshot
		e3, v3 := logView(3, "h")
		m.BroadcastLog(e3, v3)
		e4, v4 := logView(4, "live")
		m.BroadcastLog(e4, v4)
		return history
	})

	msgs := drain(t, op)
	require.Len(t, msgs, 5)
	require.Equal(t, entities.MsgStatus, msgs[0].Type)
	for i, want := range []int64{1, 2, 3, 4} {
		require.Equal(t, want, decodeLog(t, msgs[i+1]).ID)
	}

	e5, v5 := logView(5, "after")
	m.BroadcastLog(e5, v5)
	msgs = drain(t, op)
	require.Len(t, msgs, 1)
	require.Equal(t, int64(5), decodeLog(t, msgs[0]).ID)
}

func TestManager_SlowOperatorDropped(t *testing.T) {
	m, _ := newTestManager()
	slow := NewClient(nil, RoleOperator, "", 2)
	fast := NewClient(nil, RoleOperator, "", 64)
	m.AttachOperator(slow, func() []entities.LogView { return nil })
	m.AttachOperator(fast, func() []entities.LogView { return nil })
	require.Equal(t, 2, m.OperatorCount())

	for i := int64(1); i <= 3; i++ {
		e, v := logView(i, "x")
		m.BroadcastLog(e, v)
	}
	require.Equal(t, 1, m.OperatorCount())
	require.Len(t, drain(t, fast), 4)

	m.DetachOperator(slow)
	require.Equal(t, 1, m.OperatorCount())
}

func TestManager_OperatorCommandWithoutDeviceIsDropped(t *testing.T) {
	m, _ := newTestManager()
	require.False(t, m.SendToDevice(entities.CommandPayload{Cmd: "OPEN"}))

	dev := NewClient(nil, RoleDevice, "door", 4)
	m.AttachDevice(dev)
	require.True(t, m.SendToDevice(entities.CommandPayload{Cmd: "OPEN"}))

	msgs := drain(t, dev)
	require.Len(t, msgs, 1)
	require.Equal(t, entities.MsgCommand, msgs[0].Type)
	var p entities.CommandPayload
	require.NoError(t, json.Unmarshal(msgs[0].Data, &p))
	require.Equal(t, "OPEN", p.Cmd)
}

func TestManager_ForwardKeepsOperatorFields(t *testing.T) {
	m, _ := newTestManager()
	dev := NewClient(nil, RoleDevice, "door", 4)
	m.AttachDevice(dev)

	raw := json.RawMessage(`{"cmd":"OPEN","params":{"hold":5},"requested_by":"desk","ttl":3}`)
	require.True(t, m.ForwardToDevice(raw))

	msgs := drain(t, dev)
	require.Len(t, msgs, 1)
	require.Equal(t, entities.MsgCommand, msgs[0].Type)
	require.JSONEq(t, string(raw), string(msgs[0].Data))
}

func TestManager_PushCommandTargetsDevice(t *testing.T) {
	m, _ := newTestManager()
	dev := NewClient(nil, RoleDevice, "door", 4)
	m.AttachDevice(dev)

	cmd := entities.NewCommand("door", "REFRESH", nil, "", t0, time.Minute)
	require.True(t, m.PushCommand(cmd))
	require.False(t, m.PushCommand(entities.NewCommand("garage", "OPEN", nil, "", t0, time.Minute)))

	msgs := drain(t, dev)
	require.Len(t, msgs, 1)
	var p entities.CommandPayload
	require.NoError(t, json.Unmarshal(msgs[0].Data, &p))
	require.Equal(t, cmd.ID, p.CommandID)
}

func TestManager_StreamResults(t *testing.T) {
	m, _ := newTestManager()
	results := repositories.NewMemResultStore(10, 40)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StreamResults(ctx, results)

	op := NewClient(nil, RoleOperator, "", 16)
	m.AttachOperator(op, func() []entities.LogView { return nil })
	drain(t, op)

	results.Record(entities.CommandResult{CommandID: "cmd_1", Success: true})
	require.Eventually(t, func() bool { return len(op.Send) == 1 }, time.Second, 5*time.Millisecond)
	msgs := drain(t, op)
	require.Equal(t, entities.MsgResult, msgs[0].Type)
}

func TestManager_Close(t *testing.T) {
	m, _ := newTestManager()
	op := NewClient(nil, RoleOperator, "", 4)
	m.AttachOperator(op, func() []entities.LogView { return nil })
	m.Close()
	require.Equal(t, 0, m.OperatorCount())
	drain(t, op)
	_, ok := <-op.Send
	require.False(t, ok)
}

func TestManager_ConnectedDeviceStaysOnline(t *testing.T) {
	clk := clock.NewFake(t0)
	tracker := repositories.NewMemDeviceTracker(clk, 30*time.Second)
	m := NewManager(tracker, "door", zap.NewNop())

	dev := NewClient(nil, RoleDevice, "door", 4)
	m.AttachDevice(dev)

	// no pong yet, lastSeen is past the offline threshold
	clk.Advance(45 * time.Second)
	require.False(t, tracker.IsOnline("door"))
	st := m.Status()
	require.True(t, st.Connected)
	require.True(t, st.Online)

	m.DetachDevice(dev)
	st = m.Status()
	require.False(t, st.Connected)
	require.False(t, st.Online)
}
