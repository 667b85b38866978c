package main

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"smartdoor-relay/entities"
)

func envelope(t *testing.T, msgType string, data interface{}) envelopeMsg {
	t.Helper()
	frame, err := entities.Encode(msgType, data)
	require.NoError(t, err)
	var env entities.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return envelopeMsg(env)
}

func TestApplyStatusAndLogs(t *testing.T) {
	m := initialModel("ws://relay/ws", "tok")
	m.sess = &session{}

	m = m.apply(entities.Envelope(envelope(t, entities.MsgStatus, entities.RelayStatus{DeviceID: "door", Connected: true, Door: "OPEN"})))
	require.True(t, m.status.Connected)
	require.Equal(t, "OPEN", m.status.Door)

	for i := 0; i < maxLogLines+3; i++ {
		m = m.apply(entities.Envelope(envelope(t, entities.MsgLog, entities.LogView{ID: int64(i + 1), Kind: "success", Time: time.Now()})))
	}
	require.Len(t, m.logs, maxLogLines)
	require.Equal(t, int64(4), m.logs[0].ID)

	m = m.apply(entities.Envelope(envelope(t, entities.MsgResult, entities.CommandResult{CommandID: "cmd_1", Success: true})))
	require.Equal(t, "cmd_1", m.lastRes.CommandID)
	require.Contains(t, m.View(), "door")
}

func TestCursorAndErrors(t *testing.T) {
	var tm tea.Model = initialModel("ws://relay/ws", "tok")
	tm, _ = tm.Update(tea.KeyMsg{Type: tea.KeyDown})
	tm, _ = tm.Update(tea.KeyMsg{Type: tea.KeyDown})
	require.Equal(t, 2, tm.(model).cursor)

	tm, cmd := tm.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.True(t, tm.(model).failed)

	tm, _ = tm.Update(errMsg{errors.New("connection lost")})
	require.Contains(t, tm.(model).message, "press r")
}
