package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/internal/vocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthHandler_Login(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, nil, http.MethodPost, "/api/auth/login", jsonBody{"username": "ana", "password": "secret-ana"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp services.LoginResponse
	decode(t, w, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "ana", resp.User.Username)

	w = env.do(t, nil, http.MethodPost, "/api/auth/login", jsonBody{"username": "ana", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, nil, http.MethodPost, "/api/auth/login", jsonBody{"username": "ana"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, env.member, http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me models.User
	decode(t, w, &me)
	assert.Equal(t, env.member.ID, me.ID)
}

func TestUserHandler_AdminOnly(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, env.member, http.MethodGet, "/api/users", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, env.admin, http.MethodPost, "/api/users", jsonBody{"username": "ben", "password": "longpass"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ben models.User
	decode(t, w, &ben)
	assert.Equal(t, "user", ben.Role)

	w = env.do(t, env.admin, http.MethodPost, "/api/users", jsonBody{"username": "ben", "password": "longpass"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, env.admin, http.MethodPost, "/api/users", jsonBody{"username": "cat", "password": "longpass", "role": "root"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, env.admin, http.MethodDelete, "/api/users/"+strconv.Itoa(int(env.admin.ID)), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, env.admin, http.MethodDelete, "/api/users/"+strconv.Itoa(int(ben.ID)), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, env.admin, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Total int64 `json:"total"`
	}
	decode(t, w, &page)
	assert.EqualValues(t, 2, page.Total)
}

func TestProjectHandler_CreateHidesCredentials(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, env.admin, http.MethodPost, "/api/projects", jsonBody{
		"name": "Billing", "repo_url": "https://git.example.com/billing.git", "project_key": "billing", "scan_token": "s3cret",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "s3cret")

	var p models.Project
	decode(t, w, &p)
	assert.True(t, p.HasScanAuth)

	w = env.do(t, env.admin, http.MethodGet, "/api/projects/"+strconv.Itoa(int(p.ID)), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, env.admin, http.MethodGet, "/api/projects/4242", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, env.admin, http.MethodGet, "/api/projects/x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProjectHandler_Overview(t *testing.T) {
	env := newTestEnv(t)
	project := env.seedProject(t, "ledger", "tok")
	path := "/api/projects/" + strconv.Itoa(int(project.ID)) + "/overview"

	w := env.do(t, env.member, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var empty services.ProjectOverview
	decode(t, w, &empty)
	assert.Nil(t, empty.LatestScan)
	assert.Zero(t, empty.OpenIssues)

	now := time.Now()
	older := now.Add(-time.Hour)
	for _, rec := range []models.ScanRecord{
		{ScanID: "old", ProjectID: project.ID, Status: vocab.ScanError, StartedAt: older, CompletedAt: &older},
		{ScanID: "new", ProjectID: project.ID, Status: vocab.ScanActive, StartedAt: now, CompletedAt: &now},
	} {
		require.NoError(t, env.db.Create(&rec).Error)
	}
	for i, st := range []vocab.IssueStatus{vocab.IssueOpen, vocab.IssuePending, vocab.IssueDone} {
		issue := models.IssueRecord{IssueID: "OV-" + strconv.Itoa(i), ProjectID: project.ID, Status: st}
		require.NoError(t, env.db.Create(&issue).Error)
	}

	w = env.do(t, env.member, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var overview services.ProjectOverview
	decode(t, w, &overview)
	require.NotNil(t, overview.LatestScan)
	assert.Equal(t, "new", overview.LatestScan.ScanID)
	assert.EqualValues(t, 2, overview.OpenIssues)
	assert.EqualValues(t, 1, overview.Issues[vocab.IssueDone])

	w = env.do(t, env.member, http.MethodGet, "/api/projects/4242/overview", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProjectHandler_DeleteRefusedWhileScanning(t *testing.T) {
	env := newTestEnv(t)
	project := env.seedProject(t, "busy", "tok")
	path := "/api/projects/" + strconv.Itoa(int(project.ID))
	live := models.ScanRecord{ScanID: "live", ProjectID: project.ID, Status: vocab.ScanScanning, StartedAt: time.Now()}
	require.NoError(t, env.db.Create(&live).Error)

	w := env.do(t, env.admin, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, env.db.Model(&live).Update("status", vocab.ScanCancelled).Error)
	w = env.do(t, env.admin, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, env.admin, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var kept int64
	env.db.Model(&models.ScanRecord{}).Where("project_id = ?", project.ID).Count(&kept)
	assert.EqualValues(t, 1, kept)
}

func TestDashboardHandler_Summary(t *testing.T) {
	env := newTestEnv(t)
	web := env.seedProject(t, "web", "tok")
	api := env.seedProject(t, "api", "tok")

	now := time.Now()
	for _, rec := range []models.ScanRecord{
		{ScanID: "a", ProjectID: web.ID, ProjectType: "Go", Status: vocab.ScanActive, GateStatus: "OK", StartedAt: now, CompletedAt: &now},
		{ScanID: "b", ProjectID: api.ID, ProjectType: "Go", Status: vocab.ScanActive, GateStatus: "ERROR", StartedAt: now, CompletedAt: &now},
	} {
		require.NoError(t, env.db.Create(&rec).Error)
	}

	w := env.do(t, env.member, http.MethodGet, "/api/dashboard/summary", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap services.DashboardSnapshot
	decode(t, w, &snap)
	assert.Equal(t, 1, snap.PassedCount)
	assert.Equal(t, 1, snap.FailedCount)
	assert.Equal(t, vocab.GradeD, snap.Grade)
	assert.Equal(t, 50, snap.GradePercent)
	require.Len(t, snap.ProjectDistribution, 1)
	assert.Equal(t, 100, snap.ProjectDistribution[0].Percent)
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, nil, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
	assert.Contains(t, w.Body.String(), `"queue_mode":"sync"`)

	w = env.do(t, nil, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "scanboard_scans_scanning 0"), body)
	assert.Contains(t, body, "scanboard_issues_in_progress 0")
	assert.Contains(t, body, "scanboard_users_active 2")
}
