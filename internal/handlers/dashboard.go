package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/pkg/response"
)

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(svc *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: svc}
}

// GetSummary returns the dashboard snapshot
// GET /api/dashboard/summary
func (h *DashboardHandler) GetSummary(c *gin.Context) {
	var req services.DashboardRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	snap, err := h.dashboardService.Snapshot(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, snap)
}
