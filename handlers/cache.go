package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartdoor-relay/repositories"
	"smartdoor-relay/services"
	"smartdoor-relay/ws"
)

// CacheHandler exposes the relay's in-memory buffers to operators.
type CacheHandler struct {
	reclaimer *services.Reclaimer
	queue     repositories.CommandQueue
	results   repositories.ResultStore
	logs      repositories.LogStore
	faces     repositories.FaceStore
	mgr       *ws.Manager
}

func NewCacheHandler(reclaimer *services.Reclaimer, queue repositories.CommandQueue, results repositories.ResultStore,
	logs repositories.LogStore, faces repositories.FaceStore, mgr *ws.Manager) *CacheHandler {
	return &CacheHandler{
		reclaimer: reclaimer,
		queue:     queue,
		results:   results,
		logs:      logs,
		faces:     faces,
		mgr:       mgr,
	}
}

// POST /api/cache/sweep
// Runs a reclaimer pass now instead of waiting for the next tick.
func (h *CacheHandler) Sweep(c *gin.Context) {
	stats := h.reclaimer.RunOnce()
	c.JSON(http.StatusOK, gin.H{
		"status":          "processed",
		"expired":         stats.Expired,
		"dropped_queues":  stats.DroppedQueues,
		"evicted_devices": stats.EvictedDevices,
	})
}

// GET /api/cache/queues
func (h *CacheHandler) GetQueues(c *gin.Context) {
	result := make(map[string]interface{})
	total := 0
	for _, id := range h.queue.Devices() {
		pending := h.queue.Pending(id)
		result[id] = pending
		total += len(pending)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"total_devices":  len(result),
		"total_commands": total,
		"queues":         result,
	})
}

// GET /api/cache/stats
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	queued := 0
	devices := h.queue.Devices()
	for _, id := range devices {
		queued += h.queue.Len(id)
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"stats": gin.H{
			"queues":          len(devices),
			"queued_commands": queued,
			"unread_results":  h.results.Len(),
			"log_entries":     h.logs.Len(),
			"faces":           h.faces.Len(),
			"operators":       h.mgr.OperatorCount(),
			"device":          h.mgr.Status(),
		},
	})
}
