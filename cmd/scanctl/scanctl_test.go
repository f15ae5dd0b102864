package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/internal/vocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var backendScans = []map[string]any{
	{"scan_id": "w-1", "project_key": "web", "type": "Go", "status": "FAILED", "gate_status": "ERROR", "completed_at": "2026-03-01T10:00:00Z"},
	{"scan_id": "w-2", "project_key": "web", "type": "Go", "status": "SUCCESS", "gate_status": "OK", "quality_gate": "A", "completed_at": "2026-03-02T10:00:00Z", "metrics": map[string]any{"bugs": 2, "coverage": 81.5}},
	{"scan_id": "a-1", "project_key": "api", "type": "Java", "status": "SUCCESS", "gate_status": "ERROR", "quality_gate": "D", "completed_at": "2026-03-01T12:00:00Z"},
	{"scan_id": "a-2", "project_key": "api", "type": "Java", "status": "SCANNING", "started_at": "2026-03-03T09:00:00Z"},
}

func newBackend(t *testing.T, gotAuth *string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /scans", func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			*gotAuth = r.Header.Get("Authorization")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "message": "ok", "data": backendScans})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestScansCommand_Table(t *testing.T) {
	var auth string
	srv := newBackend(t, &auth)
	t.Setenv("SCANCTL_TOKEN", "env-token")

	out, err := runCLI(t, "scans", "--base-url", srv.URL, "--no-color")
	require.NoError(t, err, out)
	assert.Equal(t, "Bearer env-token", auth)

	for _, want := range []string{"w-2", "a-1", "Active", "Scanning", "81.5%"} {
		assert.Contains(t, out, want)
	}
	// newest first
	assert.Less(t, strings.Index(out, "a-2"), strings.Index(out, "w-2"))
	assert.Less(t, strings.Index(out, "w-2"), strings.Index(out, "w-1"))
}

func TestScansCommand_FiltersAndJSON(t *testing.T) {
	srv := newBackend(t, nil)

	out, err := runCLI(t, "scans", "--base-url", srv.URL, "--project", "web", "--status", "success", "--json")
	require.NoError(t, err, out)

	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "w-2", records[0]["scan_id"])
	assert.Equal(t, "Active", records[0]["status"])

	out, err = runCLI(t, "scans", "--base-url", srv.URL, "--project", "nope", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "No scans found.")
}

func TestSummaryCommand(t *testing.T) {
	srv := newBackend(t, nil)

	out, err := runCLI(t, "summary", "--base-url", srv.URL, "--json")
	require.NoError(t, err, out)

	var snap services.DashboardSnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	// latest web scan passed, latest api scan is still running without a gate
	assert.Equal(t, 2, snap.ProjectCount)
	assert.Equal(t, 1, snap.PassedCount)
	assert.Equal(t, 0, snap.FailedCount)
	assert.Equal(t, vocab.GradeA, snap.Grade)
	assert.Equal(t, 100, snap.GradePercent)

	out, err = runCLI(t, "summary", "--base-url", srv.URL, "--no-color")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Grade:    A (100%)")
	assert.Contains(t, out, "Java")
}

func TestRootCommand_BackendErrorAndVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := runCLI(t, "scans", "--base-url", srv.URL, "--no-color")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	_, err = runCLI(t, "scans", "--base-url", " ")
	require.Error(t, err)

	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
}
