package handlers

import (
	"io"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/pkg/logger"
)

const heartbeatInterval = 15 * time.Second

// SSEHandler handles Server-Sent Events for real-time updates
type SSEHandler struct {
	hub       *services.SSEHub
	heartbeat time.Duration
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(hub *services.SSEHub) *SSEHandler {
	return &SSEHandler{hub: hub, heartbeat: heartbeatInterval}
}

// StreamScanEvents pushes scan, issue and dashboard updates to the browser.
// Authentication runs in StreamAuthRequired so EventSource can pass ?token=.
// GET /api/events/scans
func (h *SSEHandler) StreamScanEvents(c *gin.Context) {
	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	events := h.hub.Subscribe(clientID)
	defer h.hub.Unsubscribe(clientID)

	log := logger.Component("sse")
	log.Info().Str("client_id", clientID).Int("total", h.hub.ClientCount()).Msg("SSE client connected")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	var seq uint64
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			seq++
			if err := sse.Encode(w, sse.Event{
				Id:    strconv.FormatUint(seq, 10),
				Event: event.Type,
				Data:  event.Data,
			}); err != nil {
				log.Error().Err(err).Str("client_id", clientID).Msg("SSE encode error")
			}
			return true
		case <-ticker.C:
			if err := sse.Encode(w, sse.Event{Event: "heartbeat", Data: time.Now().Unix()}); err != nil {
				return false
			}
			return true
		case <-c.Request.Context().Done():
			log.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
