package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/scanboard/internal/analysis"
	"github.com/huangang/scanboard/internal/middleware"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/internal/vocab"
	"github.com/huangang/scanboard/pkg/response"
)

type IssueHandler struct {
	workflow *services.IssueWorkflow
}

func NewIssueHandler(wf *services.IssueWorkflow) *IssueHandler {
	return &IssueHandler{workflow: wf}
}

func actorFrom(c *gin.Context) services.Actor {
	return services.Actor{ID: middleware.GetUserID(c), Role: middleware.GetRole(c)}
}

// List
// GET /api/issues
func (h *IssueHandler) List(c *gin.Context) {
	var req services.IssueListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.workflow.List(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, resp)
}

// Get returns an issue with its history
// GET /api/issues/:id
func (h *IssueHandler) Get(c *gin.Context) {
	issueID := c.Param("id")
	issue, err := h.workflow.Get(c.Request.Context(), issueID)
	if err != nil {
		writeError(c, err)
		return
	}
	history, err := h.workflow.IssueHistory(c.Request.Context(), issueID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"issue": issue, "history": history})
}

type ImportIssuesRequest struct {
	ProjectID uint             `json:"project_id" binding:"required"`
	ScanID    string           `json:"scan_id"`
	Issues    []analysis.Issue `json:"issues" binding:"required"`
}

// Import mirrors backend issues into the local store
// POST /api/issues/import
func (h *IssueHandler) Import(c *gin.Context) {
	var req ImportIssuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	n, err := h.workflow.ImportIssues(c.Request.Context(), req.ProjectID, req.ScanID, req.Issues)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"imported": n})
}

type AssignIssueRequest struct {
	UserID     uint   `json:"user_id" binding:"required"`
	DueDate    string `json:"due_date"`
	Annotation string `json:"annotation"`
}

// Assign
// PUT /api/issues/:id/assign
func (h *IssueHandler) Assign(c *gin.Context) {
	var req AssignIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	assign := services.AssignRequest{UserID: req.UserID, Annotation: req.Annotation}
	if req.DueDate != "" {
		due, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			response.BadRequest(c, "due_date must be YYYY-MM-DD")
			return
		}
		assign.DueDate = &due
	}

	issue, err := h.workflow.Assign(c.Request.Context(), c.Param("id"), actorFrom(c), assign)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, issue)
}

type IssueStatusRequest struct {
	Status     string `json:"status" binding:"required"`
	Annotation string `json:"annotation"`
}

// ChangeStatus moves an issue to the requested state
// PUT /api/issues/:id/status
func (h *IssueHandler) ChangeStatus(c *gin.Context) {
	var req IssueStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	target, ok := vocab.ParseIssueStatus(req.Status)
	if !ok {
		response.BadRequest(c, "unknown status "+req.Status)
		return
	}

	issue, err := h.workflow.ChangeStatus(c.Request.Context(), c.Param("id"), actorFrom(c), target, req.Annotation)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, issue)
}

type annotationRequest struct {
	Annotation string `json:"annotation"`
}

// Reject
// POST /api/issues/:id/reject
func (h *IssueHandler) Reject(c *gin.Context) {
	var req annotationRequest
	_ = c.ShouldBindJSON(&req)

	issue, err := h.workflow.Reject(c.Request.Context(), c.Param("id"), actorFrom(c), req.Annotation)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, issue)
}

// Reopen
// POST /api/issues/:id/reopen
func (h *IssueHandler) Reopen(c *gin.Context) {
	var req annotationRequest
	_ = c.ShouldBindJSON(&req)

	issue, err := h.workflow.Reopen(c.Request.Context(), c.Param("id"), actorFrom(c), req.Annotation)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, issue)
}

// MyAssignments returns the caller's local assignment history
// GET /api/assignments
func (h *IssueHandler) MyAssignments(c *gin.Context) {
	items, err := h.workflow.History(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, items)
}

// UserAssignments returns a user's history; ?source=remote asks the backend
// GET /api/assignments/:userId
func (h *IssueHandler) UserAssignments(c *gin.Context) {
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}

	if c.Query("source") == "remote" {
		items, err := h.workflow.RemoteHistory(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err)
			return
		}
		response.Success(c, items)
		return
	}

	items, err := h.workflow.History(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, items)
}
