package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/pkg/response"
)

type SystemLogHandler struct {
	systemLogService *services.SystemLogService
}

func NewSystemLogHandler(svc *services.SystemLogService) *SystemLogHandler {
	return &SystemLogHandler{systemLogService: svc}
}

// List
// GET /api/system-logs
func (h *SystemLogHandler) List(c *gin.Context) {
	var req services.SystemLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.systemLogService.List(&req)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, resp)
}

// Trail returns the audit entries for one target
// GET /api/system-logs/trail?target=scan:<id>
func (h *SystemLogHandler) Trail(c *gin.Context) {
	target := strings.TrimSpace(c.Query("target"))
	if target == "" {
		response.BadRequest(c, "target is required")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	logs, err := h.systemLogService.Trail(c.Request.Context(), target, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, logs)
}

// GET /api/system-logs/modules
func (h *SystemLogHandler) GetModules(c *gin.Context) {
	modules, err := h.systemLogService.GetModules()
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"modules": modules})
}
