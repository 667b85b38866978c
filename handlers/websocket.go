package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"smartdoor-relay/entities"
	"smartdoor-relay/usecases"
	"smartdoor-relay/ws"
)

const (
	deviceSendBuffer = 256
	replayTimeout    = 10 * time.Second
)

// WSHandler groups dependencies for the realtime channel.
type WSHandler struct {
	mgr           *ws.Manager
	commands      *usecases.CommandsUseCase
	devices       *usecases.DeviceUseCase
	tokens        Tokens
	defaultDevice string
	historySize   int
	log           *zap.Logger
}

func NewWSHandler(mgr *ws.Manager, commands *usecases.CommandsUseCase, devices *usecases.DeviceUseCase,
	tokens Tokens, defaultDevice string, historySize int, log *zap.Logger) *WSHandler {
	return &WSHandler{
		mgr:           mgr,
		commands:      commands,
		devices:       devices,
		tokens:        tokens,
		defaultDevice: defaultDevice,
		historySize:   historySize,
		log:           log,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// HandleChannel authenticates and upgrades a channel connection.
// GET /ws?role=device|operator&token=...&device_id=...
func (h *WSHandler) HandleChannel(c *gin.Context) {
	role := c.Query("role")
	if role == "" {
		role = c.GetHeader("X-Relay-Role")
	}
	role = NormalizeRole(role)
	if role == "" || !h.tokens.Allows(role, ExtractToken(c)) {
		h.log.Info("channel handshake rejected", zap.String("remote", c.ClientIP()), zap.String("role", c.Query("role")))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	deviceID := c.Query("device_id")
	if deviceID == "" {
		deviceID = h.defaultDevice
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	if role == RoleDevice {
		h.serveDevice(ws.NewClient(conn, ws.RoleDevice, deviceID, deviceSendBuffer))
		return
	}
	h.serveOperator(ws.NewClient(conn, ws.RoleOperator, "", h.historySize+deviceSendBuffer))
}

func (h *WSHandler) serveDevice(client *ws.Client) {
	h.mgr.AttachDevice(client)
	defer h.mgr.DetachDevice(client)

	go client.WritePump()
	go h.commands.Flush(client.DeviceID)

	client.ReadPump(h.log, func(msg []byte) {
		h.handleDevice(client, msg)
	}, func() {
		_, _ = h.devices.Heartbeat(client.DeviceID)
	})
}

func (h *WSHandler) serveOperator(client *ws.Client) {
	go client.WritePump()
	h.mgr.AttachOperator(client, func() []entities.LogView {
		ctx, cancel := context.WithTimeout(context.Background(), replayTimeout)
		defer cancel()
		return h.devices.History(ctx)
	})
	defer h.mgr.DetachOperator(client)

	client.ReadPump(h.log, func(msg []byte) {
		h.handleOperator(client, msg)
	}, nil)
}

func (h *WSHandler) handleDevice(client *ws.Client, msg []byte) {
	var env entities.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.reject(client, errors.New("invalid json"))
		return
	}

	var err error
	switch env.Type {
	case entities.MsgReport:
		var p entities.ReportPayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			_, err = h.devices.ReportEvent(client.DeviceID, p.Type, p.Msg, p.Image, nil)
		}
	case entities.MsgDoorStatus:
		err = h.devices.SetDoor(client.DeviceID, doorState(env.Data))
	case entities.MsgAuxiliary:
		var aux map[string]interface{}
		if err = json.Unmarshal(env.Data, &aux); err == nil {
			err = h.devices.MergeAuxiliary(client.DeviceID, aux)
		}
	case entities.MsgResult:
		var p entities.ResultPayload
		if err = json.Unmarshal(env.Data, &p); err == nil {
			_, err = h.commands.ReportResult(client.DeviceID, p)
		}
	case entities.MsgHeartbeat:
		var now time.Time
		if now, err = h.devices.Heartbeat(client.DeviceID); err == nil {
			if frame, encErr := entities.Encode(entities.MsgHeartbeat, gin.H{"server_time": now.Unix()}); encErr == nil {
				h.mgr.Send(client, frame)
			}
		}
	default:
		h.log.Debug("unknown device message", zap.String("type", env.Type))
		return
	}
	if err != nil {
		h.reject(client, err)
	}
}

func (h *WSHandler) handleOperator(client *ws.Client, msg []byte) {
	var env entities.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.reject(client, errors.New("invalid json"))
		return
	}
	if env.Type != entities.MsgCommand {
		h.log.Debug("unknown operator message", zap.String("type", env.Type))
		return
	}
	var p entities.CommandPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.Cmd == "" {
		h.reject(client, errors.New("cmd required"))
		return
	}
	// fire and forget; a missing device is not reported back
	h.mgr.ForwardToDevice(env.Data)
}

func (h *WSHandler) reject(client *ws.Client, err error) {
	h.log.Debug("channel message rejected", zap.String("client_id", client.ID), zap.Error(err))
	if frame, encErr := entities.Encode(entities.MsgError, gin.H{"error": err.Error()}); encErr == nil {
		h.mgr.Send(client, frame)
	}
}

// doorState accepts "OPEN" or {"door":"OPEN"} / {"status":"OPEN"}.
func doorState(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Door   string `json:"door"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Door != "" {
			return obj.Door
		}
		return obj.Status
	}
	return ""
}
