package ws

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"smartdoor-relay/entities"
	"smartdoor-relay/metrics"
	"smartdoor-relay/repositories"
)

// live messages held per operator while its history replay is in flight
const maxHeld = 1024

// Manager is the connection registry of the relay channel: at most one
// active device connection and any number of operator connections.
type Manager struct {
	mu        sync.Mutex
	device    *Client
	operators map[*Client]struct{}

	statusMu      sync.Mutex
	devices       repositories.DeviceTracker
	defaultDevice string
	log           *zap.Logger
}

func NewManager(devices repositories.DeviceTracker, defaultDevice string, log *zap.Logger) *Manager {
	return &Manager{
		operators:     make(map[*Client]struct{}),
		devices:       devices,
		defaultDevice: defaultDevice,
		log:           log,
	}
}

// AttachDevice makes c the active device connection, replacing any
// existing one, and announces it to operators.
func (m *Manager) AttachDevice(c *Client) {
	m.mu.Lock()
	old := m.device
	m.device = c
	if old != nil && old != c {
		m.closeLocked(old)
	}
	m.mu.Unlock()

	if old != nil && old != c {
		m.log.Info("device connection replaced", zap.String("old", old.ID), zap.String("new", c.ID))
		metrics.ConnectionClosed(RoleDevice)
	}
	metrics.ConnectionOpened(RoleDevice)
	m.devices.MergeAuxiliary(c.DeviceID, map[string]interface{}{entities.AuxCamera: true})
	m.log.Info("device connected", zap.String("client_id", c.ID), zap.String("device_id", c.DeviceID))
	m.BroadcastStatus()
}

// DetachDevice removes c. Status is broadcast only if c was still the
// active device connection.
func (m *Manager) DetachDevice(c *Client) {
	m.mu.Lock()
	active := m.device == c
	if active {
		m.device = nil
	}
	m.closeLocked(c)
	m.mu.Unlock()

	if !active {
		return
	}
	metrics.ConnectionClosed(RoleDevice)
	m.devices.MergeAuxiliary(c.DeviceID, map[string]interface{}{entities.AuxCamera: false})
	m.log.Info("device disconnected", zap.String("client_id", c.ID), zap.String("device_id", c.DeviceID))
	m.BroadcastStatus()
}

// AttachOperator registers c and replays the current status followed by
// history, oldest first. Live messages published during the replay are
// held and delivered afterwards, skipping log entries the replay covered.
func (m *Manager) AttachOperator(c *Client, history func() []entities.LogView) {
	m.mu.Lock()
	c.replaying = true
	m.operators[c] = struct{}{}
	m.mu.Unlock()
	metrics.ConnectionOpened(RoleOperator)

	status, err := entities.Encode(entities.MsgStatus, m.Status())
	if err != nil {
		m.log.Error("encode status", zap.Error(err))
	}
	views := history()
	frames := make([][]byte, 0, len(views)+1)
	if status != nil {
		frames = append(frames, status)
	}
	var lastID int64
	for _, v := range views {
		frame, err := entities.Encode(entities.MsgLog, v)
		if err != nil {
			m.log.Error("encode log", zap.Int64("log_id", v.ID), zap.Error(err))
			continue
		}
		frames = append(frames, frame)
		lastID = v.ID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c.closed {
		return
	}
	for _, f := range frames {
		if !m.sendLocked(c, f) {
			return
		}
	}
	held := c.held
	c.held = nil
	c.replaying = false
	for _, h := range held {
		if h.logID != 0 && h.logID <= lastID {
			continue
		}
		if !m.sendLocked(c, h.data) {
			return
		}
	}
	m.log.Debug("operator replay done", zap.String("client_id", c.ID),
		zap.Int("history", len(views)), zap.Int("held", len(held)))
}

func (m *Manager) DetachOperator(c *Client) {
	m.mu.Lock()
	_, ok := m.operators[c]
	delete(m.operators, c)
	m.closeLocked(c)
	m.mu.Unlock()
	if ok {
		metrics.ConnectionClosed(RoleOperator)
	}
}

// Status is the view operators get of the active device, or of the
// default device id when none is connected.
func (m *Manager) Status() entities.RelayStatus {
	m.mu.Lock()
	id, connected := m.defaultDevice, false
	if m.device != nil {
		id, connected = m.device.DeviceID, true
	}
	m.mu.Unlock()

	st, ok := m.devices.Get(id)
	if !ok {
		return entities.NewRelayStatus(id, connected, nil)
	}
	return entities.NewRelayStatus(id, connected, &st)
}

func (m *Manager) BroadcastStatus() {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	frame, err := entities.Encode(entities.MsgStatus, m.Status())
	if err != nil {
		m.log.Error("encode status", zap.Error(err))
		return
	}
	m.broadcast(frame, 0)
}

func (m *Manager) BroadcastLog(entry entities.LogEntry, view entities.LogView) {
	frame, err := entities.Encode(entities.MsgLog, view)
	if err != nil {
		m.log.Error("encode log", zap.Int64("log_id", entry.ID), zap.Error(err))
		return
	}
	m.broadcast(frame, entry.ID)
}

func (m *Manager) BroadcastResult(res entities.CommandResult) {
	frame, err := entities.Encode(entities.MsgResult, res)
	if err != nil {
		m.log.Error("encode result", zap.String("command_id", res.CommandID), zap.Error(err))
		return
	}
	m.broadcast(frame, 0)
}

func (m *Manager) broadcast(frame []byte, logID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.operators {
		if c.replaying {
			if len(c.held) >= maxHeld {
				m.log.Warn("operator replay backlog full, dropping", zap.String("client_id", c.ID))
				m.dropLocked(c)
				continue
			}
			c.held = append(c.held, heldFrame{logID: logID, data: frame})
			continue
		}
		m.sendLocked(c, frame)
	}
}

// StreamResults forwards every newly recorded result to operators until
// ctx is done.
func (m *Manager) StreamResults(ctx context.Context, results repositories.ResultStore) {
	sub, cancel := results.Subscribe(64)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-sub:
				if !ok {
					return
				}
				m.BroadcastResult(res)
			}
		}
	}()
}

// DeviceConnected reports whether deviceID holds the active device
// connection.
func (m *Manager) DeviceConnected(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device != nil && m.device.DeviceID == deviceID
}

// PushCommand sends a queued command to its device if that device is the
// active connection.
func (m *Manager) PushCommand(cmd *entities.Command) bool {
	frame, err := entities.Encode(entities.MsgCommand, entities.CommandPayload{
		Cmd:       cmd.Verb,
		CommandID: cmd.ID,
		Params:    cmd.Params,
	})
	if err != nil {
		m.log.Error("encode command", zap.String("command_id", cmd.ID), zap.Error(err))
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil || m.device.DeviceID != cmd.TargetDevice {
		return false
	}
	return m.trySendLocked(m.device, frame)
}

// SendToDevice forwards an operator command to whichever device is
// connected. With no device the command is dropped.
func (m *Manager) SendToDevice(cmd entities.CommandPayload) bool {
	raw, err := json.Marshal(cmd)
	if err != nil {
		m.log.Error("encode command", zap.Error(err))
		return false
	}
	return m.ForwardToDevice(raw)
}

// ForwardToDevice relays a command payload as received, unknown fields
// included.
func (m *Manager) ForwardToDevice(data json.RawMessage) bool {
	frame, err := json.Marshal(entities.Envelope{Type: entities.MsgCommand, Data: data})
	if err != nil {
		m.log.Error("encode command", zap.Error(err))
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil || !m.trySendLocked(m.device, frame) {
		metrics.ChannelCommandDropped()
		m.log.Debug("no device connected, command dropped")
		return false
	}
	return true
}

// Send queues a frame for c alone.
func (m *Manager) Send(c *Client, frame []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trySendLocked(c, frame)
}

func (m *Manager) OperatorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.operators)
}

// Close disconnects everyone.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		m.closeLocked(m.device)
		m.device = nil
	}
	for c := range m.operators {
		m.closeLocked(c)
		delete(m.operators, c)
	}
}

func (m *Manager) trySendLocked(c *Client, frame []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// sendLocked delivers to an operator, dropping it when its queue is full.
func (m *Manager) sendLocked(c *Client, frame []byte) bool {
	if m.trySendLocked(c, frame) {
		return true
	}
	if !c.closed {
		m.log.Warn("operator too slow, dropping", zap.String("client_id", c.ID))
		m.dropLocked(c)
	}
	return false
}

func (m *Manager) dropLocked(c *Client) {
	if _, ok := m.operators[c]; ok {
		delete(m.operators, c)
		metrics.ConnectionClosed(RoleOperator)
	}
	m.closeLocked(c)
}

func (m *Manager) closeLocked(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	c.held = nil
	close(c.Send)
}
