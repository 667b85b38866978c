package httpHandler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"smartdoor-relay/entities"
	"smartdoor-relay/usecases"
)

const (
	maxUploadSize   = 20 << 20
	unknownDeviceID = "unknown"
	configVersion   = "1.0.0"
)

// DeviceHandler serves the device pull API.
type DeviceHandler struct {
	commands *usecases.CommandsUseCase
	devices  *usecases.DeviceUseCase
	log      *zap.Logger
}

func NewDeviceHandler(commands *usecases.CommandsUseCase, devices *usecases.DeviceUseCase, log *zap.Logger) *DeviceHandler {
	return &DeviceHandler{commands: commands, devices: devices, log: log}
}

func deviceIDFrom(c *gin.Context) string {
	if id := c.Query("device_id"); id != "" {
		return id
	}
	if id := c.GetHeader("X-Device-ID"); id != "" {
		return id
	}
	return unknownDeviceID
}

// GET /api/time
func (h *DeviceHandler) Time(c *gin.Context) {
	now := time.Now()
	c.JSON(http.StatusOK, gin.H{
		"timestamp": now.Unix(),
		"datetime":  now.UTC().Format("2006-01-02 15:04:05"),
	})
}

// GET /api/heartbeat?device_id=...
func (h *DeviceHandler) Heartbeat(c *gin.Context) {
	now, err := h.devices.Heartbeat(deviceIDFrom(c))
	if err != nil {
		deviceError(c, statusFor(err), err.Error())
		return
	}
	deviceOK(c, "OK", gin.H{
		"server_time":      now.Unix(),
		"config_version":   configVersion,
		"update_available": false,
	})
}

// GET /api/device/poll?device_id=...
// Returns at most one command; data is null when nothing is pending.
func (h *DeviceHandler) Poll(c *gin.Context) {
	cmd, err := h.commands.Poll(deviceIDFrom(c))
	if err != nil {
		deviceError(c, statusFor(err), err.Error())
		return
	}
	if cmd == nil {
		deviceOK(c, "No pending commands", nil)
		return
	}
	deviceOK(c, "Command pending", cmd)
}

type eventReq struct {
	DeviceID   string                 `json:"device_id"`
	Type       string                 `json:"type"`
	EventType  string                 `json:"event_type"`
	Message    string                 `json:"msg"`
	PersonName string                 `json:"person_name"`
	Image      string                 `json:"image"`
	Extra      map[string]interface{} `json:"extra"`
}

// POST /api/event
func (h *DeviceHandler) Event(c *gin.Context) {
	var req eventReq
	if err := c.ShouldBindJSON(&req); err != nil {
		deviceError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = deviceIDFrom(c)
	}
	kind := req.Type
	if kind == "" {
		kind = req.EventType
	}
	msg := req.Message
	if msg == "" {
		msg = req.PersonName
	}

	entry, err := h.devices.ReportEvent(req.DeviceID, kind, msg, req.Image, req.Extra)
	if err != nil {
		deviceError(c, statusFor(err), err.Error())
		return
	}
	deviceOK(c, "Event received", gin.H{
		"event_id":    entry.ID,
		"received_at": entry.Time.Unix(),
	})
}

// POST /api/device/result
func (h *DeviceHandler) Result(c *gin.Context) {
	var req entities.ResultPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		deviceError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	accepted, err := h.commands.ReportResult(deviceIDFrom(c), req)
	if err != nil {
		deviceError(c, statusFor(err), err.Error())
		return
	}
	deviceOK(c, "Result recorded", gin.H{"command_id": req.CommandID, "accepted": accepted})
}

// POST /api/upload/:kind  (multipart field "file")
func (h *DeviceHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	fh, err := c.FormFile("file")
	if err != nil {
		deviceError(c, http.StatusBadRequest, "file required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		deviceError(c, http.StatusBadRequest, "unreadable file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		deviceError(c, http.StatusBadRequest, "unreadable file")
		return
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	key, url, err := h.devices.Upload(c.Request.Context(), c.Param("kind"), data, contentType)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error("upload failed", zap.Error(err))
			status = http.StatusBadGateway
		}
		deviceError(c, status, err.Error())
		return
	}
	deviceOK(c, "Upload stored", gin.H{"file_id": key, "url": url})
}
