package httpHandler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartdoor-relay/entities"
	"smartdoor-relay/usecases"
	"smartdoor-relay/ws"
)

// CommandHandler serves the operator API.
type CommandHandler struct {
	wsMgr   *ws.Manager
	cmdUC   *usecases.CommandsUseCase
	devices *usecases.DeviceUseCase
	log     *zap.Logger
}

func NewCommandHandler(mgr *ws.Manager, uc *usecases.CommandsUseCase, devices *usecases.DeviceUseCase, log *zap.Logger) *CommandHandler {
	return &CommandHandler{wsMgr: mgr, cmdUC: uc, devices: devices, log: log}
}

type enqueueReq struct {
	DeviceID string                 `json:"device_id"`
	Command  string                 `json:"command"`
	Params   map[string]interface{} `json:"params"`
	Priority string                 `json:"priority"`
}

// POST /api/command
// Queues a command; a connected target device gets it pushed at once.
func (h *CommandHandler) Enqueue(c *gin.Context) {
	var req enqueueReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	cmd, err := h.cmdUC.Submit(req.DeviceID, req.Command, req.Params, req.Priority)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "queued", "command_id": cmd.ID, "command": cmd})
}

// GET /api/results
// Drains unread results, oldest first.
func (h *CommandHandler) Results(c *gin.Context) {
	results := h.cmdUC.DrainResults()
	c.JSON(http.StatusOK, gin.H{"data": results, "count": len(results)})
}

// GET /api/devices
func (h *CommandHandler) Devices(c *gin.Context) {
	statuses := h.devices.Statuses()
	for i := range statuses {
		if h.wsMgr.DeviceConnected(statuses[i].DeviceID) {
			statuses[i].Online = true
		}
	}
	c.JSON(http.StatusOK, gin.H{"devices": statuses, "count": len(statuses)})
}

// GET /api/devices/:id/commands
func (h *CommandHandler) GetDeviceCommands(c *gin.Context) {
	cmds, err := h.cmdUC.Pending(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cmds, "count": len(cmds)})
}

// GET /api/status
func (h *CommandHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.wsMgr.Status())
}

// GET /api/sender/poll?last_id=N
func (h *CommandHandler) SenderPoll(c *gin.Context) {
	var lastID int64
	if v := c.Query("last_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "last_id must be a non-negative integer"})
			return
		}
		lastID = parsed
	}
	views, latest := h.devices.Since(c.Request.Context(), lastID)
	c.JSON(http.StatusOK, gin.H{"data": views, "count": len(views), "latest_id": latest})
}

type relayReq struct {
	Cmd    string                 `json:"cmd"`
	Params map[string]interface{} `json:"params"`
}

// POST /api/relay/command
// Forwards to the connected device. Accepted even when no device is
// connected; delivered tells the caller which happened.
func (h *CommandHandler) RelayCommand(c *gin.Context) {
	var req relayReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Cmd == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cmd required"})
		return
	}
	delivered := h.wsMgr.SendToDevice(entities.CommandPayload{Cmd: req.Cmd, Params: req.Params})
	entry := h.devices.SystemEvent("remote command: " + req.Cmd)
	h.log.Info("relay command", zap.String("cmd", req.Cmd), zap.Bool("delivered", delivered))
	c.JSON(http.StatusOK, gin.H{"status": "accepted", "delivered": delivered, "log_id": entry.ID})
}
