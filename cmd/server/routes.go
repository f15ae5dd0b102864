package main

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/scanboard/internal/handlers"
	"github.com/huangang/scanboard/internal/middleware"
	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	db := models.GetDB()

	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Server.CORSOrigins...))

	healthHandler := handlers.NewHealthHandler(db, svc.hub, svc.taskQueue, svc.orchestrator)
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", healthHandler.Metrics)

	api := r.Group("/api")
	{
		// Auth routes (public)
		api.POST("/auth/login", svc.authHandler.Login)

		// SSE accepts ?token= because EventSource cannot set headers
		sseHandler := handlers.NewSSEHandler(svc.hub)
		api.GET("/events/scans", middleware.StreamAuthRequired(), sseHandler.StreamScanEvents)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.AuditLog())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Dashboard
			dashboardHandler := handlers.NewDashboardHandler(svc.dashboard)
			protected.GET("/dashboard/summary", dashboardHandler.GetSummary)

			// Projects
			projectHandler := handlers.NewProjectHandler(db)
			protected.GET("/projects", projectHandler.List)
			protected.GET("/projects/:id", projectHandler.GetByID)
			protected.GET("/projects/:id/overview", projectHandler.Overview)
			protected.POST("/projects", projectHandler.Create)
			protected.PUT("/projects/:id", projectHandler.Update)
			protected.DELETE("/projects/:id", projectHandler.Delete)

			// Scans
			scanHandler := handlers.NewScanHandler(svc.orchestrator)
			protected.POST("/scans", svc.scanLimiter.Middleware(), scanHandler.Start)
			protected.GET("/scans", scanHandler.List)
			protected.GET("/scans/:id", scanHandler.Get)
			protected.GET("/scans/:id/progress", scanHandler.Progress)
			protected.POST("/scans/:id/cancel", scanHandler.Cancel)
			protected.GET("/scans/:id/log", scanHandler.Log)

			// Issues
			issueHandler := handlers.NewIssueHandler(svc.workflow)
			protected.GET("/issues", issueHandler.List)
			protected.GET("/issues/:id", issueHandler.Get)
			protected.PUT("/issues/:id/assign", issueHandler.Assign)
			protected.PUT("/issues/:id/status", issueHandler.ChangeStatus)
			protected.POST("/issues/:id/reject", issueHandler.Reject)
			protected.POST("/issues/:id/reopen", issueHandler.Reopen)
			protected.GET("/assignments", issueHandler.MyAssignments)
			protected.GET("/assignments/:userId", issueHandler.UserAssignments)

			// Users (read for assignment pickers)
			userHandler := handlers.NewUserHandler(db)
			protected.GET("/users", userHandler.List)
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			issueHandler := handlers.NewIssueHandler(svc.workflow)
			admin.POST("/issues/import", issueHandler.Import)

			userHandler := handlers.NewUserHandler(db)
			admin.POST("/users", userHandler.Create)
			admin.PUT("/users/:id", userHandler.Update)
			admin.DELETE("/users/:id", userHandler.Delete)

			systemLogHandler := handlers.NewSystemLogHandler(svc.systemLogs)
			admin.GET("/system-logs", systemLogHandler.List)
			admin.GET("/system-logs/modules", systemLogHandler.GetModules)
			admin.GET("/system-logs/trail", systemLogHandler.Trail)
		}
	}
}
