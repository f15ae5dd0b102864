package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/scanboard/internal/analysis"
	"github.com/huangang/scanboard/internal/config"
	"github.com/huangang/scanboard/internal/middleware"
	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/internal/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-handler-testing")
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	backend  *http.ServeMux
	orch     *services.ScanOrchestrator
	workflow *services.IssueWorkflow
	hub      *services.SSEHub
	admin    *models.User
	member   *models.User
}

// newTestEnv wires the handlers against an in-memory database and a fake
// analysis backend. Routes are registered on env.backend by each test.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.Migrate(db))

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := analysis.NewClient(srv.URL)
	orch := services.NewScanOrchestrator(db, client, nil, config.ScanConfig{
		ProgressStep:     25,
		ProgressInterval: 10 * time.Millisecond,
	})
	t.Cleanup(orch.Shutdown)
	workflow := services.NewIssueWorkflow(db, client)
	hub := services.NewSSEHub()

	env := &testEnv{db: db, backend: mux, orch: orch, workflow: workflow, hub: hub}
	env.admin = env.seedUser(t, "root", "admin")
	env.member = env.seedUser(t, "ana", "user")

	cfg := config.DefaultConfig()
	authHandler := NewAuthHandler(db, cfg)
	scanHandler := NewScanHandler(orch)
	issueHandler := NewIssueHandler(workflow)
	projectHandler := NewProjectHandler(db)
	userHandler := NewUserHandler(db)
	dashboardHandler := NewDashboardHandler(services.NewDashboardService(db))
	healthHandler := NewHealthHandler(db, hub, services.NewSyncQueue(), orch)

	r := gin.New()
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", healthHandler.Metrics)

	api := r.Group("/api")
	api.POST("/auth/login", authHandler.Login)

	auth := api.Group("")
	auth.Use(middleware.AuthRequired())
	auth.GET("/auth/me", authHandler.GetCurrentUser)
	auth.GET("/projects/:id", projectHandler.GetByID)
	auth.GET("/projects/:id/overview", projectHandler.Overview)
	auth.POST("/projects", projectHandler.Create)
	auth.DELETE("/projects/:id", projectHandler.Delete)
	auth.POST("/scans", scanHandler.Start)
	auth.GET("/scans", scanHandler.List)
	auth.GET("/scans/:id", scanHandler.Get)
	auth.GET("/scans/:id/progress", scanHandler.Progress)
	auth.POST("/scans/:id/cancel", scanHandler.Cancel)
	auth.GET("/scans/:id/log", scanHandler.Log)
	auth.GET("/issues", issueHandler.List)
	auth.GET("/issues/:id", issueHandler.Get)
	auth.PUT("/issues/:id/assign", issueHandler.Assign)
	auth.PUT("/issues/:id/status", issueHandler.ChangeStatus)
	auth.POST("/issues/:id/reject", issueHandler.Reject)
	auth.POST("/issues/:id/reopen", issueHandler.Reopen)
	auth.GET("/assignments", issueHandler.MyAssignments)
	auth.GET("/assignments/:userId", issueHandler.UserAssignments)
	auth.GET("/dashboard/summary", dashboardHandler.GetSummary)

	admin := auth.Group("")
	admin.Use(middleware.AdminRequired())
	admin.POST("/issues/import", issueHandler.Import)
	admin.GET("/users", userHandler.List)
	admin.POST("/users", userHandler.Create)
	admin.DELETE("/users/:id", userHandler.Delete)
	systemLogHandler := NewSystemLogHandler(services.NewSystemLogService(db, 30))
	admin.GET("/system-logs", systemLogHandler.List)
	admin.GET("/system-logs/trail", systemLogHandler.Trail)

	env.router = r
	return env
}

func (e *testEnv) seedUser(t *testing.T, username, role string) *models.User {
	t.Helper()
	hash, err := utils.HashPassword("secret-" + username)
	require.NoError(t, err)
	u := &models.User{Username: username, Password: hash, Nickname: username, Role: role, IsActive: true}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *testEnv) seedProject(t *testing.T, key, token string) *models.Project {
	t.Helper()
	p := &models.Project{
		Name:        key,
		RepoURL:     "https://git.example.com/" + key,
		ProjectKey:  key,
		Branch:      "main",
		ProjectType: "Go",
		ScanToken:   token,
	}
	require.NoError(t, e.db.Create(p).Error)
	return p
}

func (e *testEnv) do(t *testing.T, as *models.User, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		token, err := utils.GenerateToken(as.ID, as.Username, as.Role, 1)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
