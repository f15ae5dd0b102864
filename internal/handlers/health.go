package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/internal/vocab"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the database, the queue and the live
// scans. It also serves the metrics endpoint.
type HealthHandler struct {
	db    *gorm.DB
	hub   *services.SSEHub
	queue services.TaskQueue
	orch  *services.ScanOrchestrator
}

func NewHealthHandler(db *gorm.DB, hub *services.SSEHub, queue services.TaskQueue, orch *services.ScanOrchestrator) *HealthHandler {
	return &HealthHandler{db: db, hub: hub, queue: queue, orch: orch}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}
	if overall != "healthy" {
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	var scanning int64
	h.db.Model(&models.ScanRecord{}).Where("status = ?", vocab.ScanScanning).Count(&scanning)

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "scanboard",
		"components": gin.H{
			"database":       dbStatus,
			"queue_mode":     queueMode,
			"sse_clients":    h.hub.ClientCount(),
			"live_scans":     h.orch.LiveCount(),
			"scanning_total": scanning,
		},
	})
}
