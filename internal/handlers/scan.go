package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/scanboard/internal/middleware"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/pkg/response"
)

type ScanHandler struct {
	orch *services.ScanOrchestrator
}

func NewScanHandler(orch *services.ScanOrchestrator) *ScanHandler {
	return &ScanHandler{orch: orch}
}

type StartScanRequest struct {
	ProjectID   uint                      `json:"project_id" binding:"required"`
	Credentials *services.ScanCredentials `json:"credentials"`
	Wait        bool                      `json:"wait"`
}

// Start launches a scan. Without wait the response is 202 with the live
// record; with wait it blocks until the scan finishes.
// POST /api/scans
func (h *ScanHandler) Start(c *gin.Context) {
	var req StartScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID := middleware.GetUserID(c)
	handle, err := h.orch.StartScan(c.Request.Context(), req.ProjectID, req.Credentials, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	rec := handle.Record()
	middleware.SetAuditTarget(c, "scan:"+rec.ScanID)

	if !req.Wait {
		response.Accepted(c, rec)
		return
	}

	final, err := handle.Wait(c.Request.Context())
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// client went away; the scan keeps running
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, final)
}

// List
// GET /api/scans
func (h *ScanHandler) List(c *gin.Context) {
	var req services.ScanListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.orch.List(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, resp)
}

// Get
// GET /api/scans/:id
func (h *ScanHandler) Get(c *gin.Context) {
	rec, err := h.orch.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, rec)
}

// Progress
// GET /api/scans/:id/progress
func (h *ScanHandler) Progress(c *gin.Context) {
	scanID := c.Param("id")
	progress, status, err := h.orch.Progress(c.Request.Context(), scanID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"scan_id":  scanID,
		"progress": progress,
		"status":   status,
	})
}

// Cancel
// POST /api/scans/:id/cancel
func (h *ScanHandler) Cancel(c *gin.Context) {
	rec, err := h.orch.CancelScan(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	middleware.SetAuditTarget(c, "scan:"+rec.ScanID)
	response.Success(c, rec)
}

// Log proxies the backend log of a scan
// GET /api/scans/:id/log
func (h *ScanHandler) Log(c *gin.Context) {
	log, err := h.orch.ScanLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("format") == "text" {
		c.String(http.StatusOK, strings.Join(log.Lines, "\n"))
		return
	}
	response.Success(c, log)
}
