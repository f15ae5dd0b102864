package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

func newBackend(t *testing.T, status int, respBody string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := capturedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Auth: r.Header.Get("Authorization")}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &req.Body)
		}
		captured = append(captured, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, respBody)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestStartScan_TokenDialect(t *testing.T) {
	srv, captured := newBackend(t, http.StatusOK, `{"scans_id":"r-9","project_id":"7","status":"SCANNING","started_at":"2025-01-01T10:00:00Z"}`)
	c := NewClient(srv.URL, WithToken("api-token"))

	scan, err := c.StartScan(context.Background(), StartScanRequest{
		RepoURL:    "https://git.example.com/web.git",
		ProjectKey: "web",
		BranchName: "main",
		Token:      "scan-token",
	})
	require.NoError(t, err)

	assert.Equal(t, "r-9", scan.ID)
	assert.Equal(t, "7", scan.ProjectID)
	assert.Equal(t, "SCANNING", scan.Status)
	require.NotNil(t, scan.StartedAt)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/scans", req.Path)
	assert.Equal(t, "Bearer api-token", req.Auth)
	assert.Equal(t, "web", req.Body["projectKey"])
	assert.Equal(t, "scan-token", req.Body["token"])
	assert.NotContains(t, req.Body, "username")
}

func TestStartScan_PasswordDialect(t *testing.T) {
	srv, captured := newBackend(t, http.StatusOK, `{"scanId":"r-1"}`)
	c := NewClient(srv.URL)

	_, err := c.StartScan(context.Background(), StartScanRequest{ProjectID: "7", Username: "bot", Password: "pw"})
	require.NoError(t, err)

	body := (*captured)[0].Body
	assert.Equal(t, "7", body["projectId"])
	assert.Equal(t, "bot", body["username"])
	assert.NotContains(t, body, "repoUrl")
	assert.Empty(t, (*captured)[0].Auth)
}

func TestStartScan_HTTPErrorIsRequestError(t *testing.T) {
	srv, _ := newBackend(t, http.StatusInternalServerError, `boom`)
	c := NewClient(srv.URL)

	_, err := c.StartScan(context.Background(), StartScanRequest{ProjectKey: "web", Token: "t"})
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusInternalServerError, reqErr.StatusCode)
	assert.Equal(t, "boom", reqErr.Body)
	assert.True(t, IsRequestError(err))
}

func TestStartScan_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url)
	_, err := c.StartScan(context.Background(), StartScanRequest{ProjectKey: "web", Token: "t"})

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Zero(t, reqErr.StatusCode)
	assert.Error(t, reqErr.Err)
}

func TestListScans_UnwrapsEnvelope(t *testing.T) {
	body := `{"code":0,"message":"ok","data":[
		{"scans_id":"a","project_id":"1","status":"Active","quality_gate":"OK","metrics":{"bugs":3,"codeSmells":12,"coverage":"81.5%"}},
		{"scanId":"b","projectId":"2","status":"ERROR","qualityGate":"B","gateStatus":"ERROR","reliability_gate":"Y","security_gate":"N"}
	]}`
	srv, _ := newBackend(t, http.StatusOK, body)
	c := NewClient(srv.URL)

	scans, err := c.ListScans(context.Background())
	require.NoError(t, err)
	require.Len(t, scans, 2)

	assert.Equal(t, "a", scans[0].ID)
	assert.Equal(t, "OK", scans[0].GateStatus)
	assert.Empty(t, scans[0].QualityGate)
	assert.Equal(t, 3, scans[0].Metrics.Bugs)
	assert.Equal(t, 12, scans[0].Metrics.CodeSmells)
	assert.InDelta(t, 81.5, scans[0].Metrics.Coverage, 0.001)

	assert.Equal(t, "b", scans[1].ID)
	assert.Equal(t, "B", scans[1].QualityGate)
	assert.Equal(t, "ERROR", scans[1].GateStatus)
	assert.True(t, scans[1].ReliabilityGate)
	assert.False(t, scans[1].SecurityGate)
}

func TestGetScanAndCancel(t *testing.T) {
	srv, captured := newBackend(t, http.StatusOK, `{"id":"r-2","status":"CANCELLED","completedAt":1735725600000}`)
	c := NewClient(srv.URL + "/")

	scan, err := c.GetScan(context.Background(), "r-2")
	require.NoError(t, err)
	assert.Equal(t, "CANCELLED", scan.Status)
	require.NotNil(t, scan.CompletedAt)
	assert.Equal(t, int64(1735725600000), scan.CompletedAt.UnixMilli())

	_, err = c.CancelScan(context.Background(), "r-2")
	require.NoError(t, err)

	assert.Equal(t, "/scans/r-2", (*captured)[0].Path)
	assert.Equal(t, "/scans/r-2/cancel", (*captured)[1].Path)
	assert.Equal(t, http.MethodPost, (*captured)[1].Method)
}

func TestCancelScan_EmptyBody(t *testing.T) {
	srv, _ := newBackend(t, http.StatusNoContent, ``)
	c := NewClient(srv.URL)

	scan, err := c.CancelScan(context.Background(), "r-2")
	require.NoError(t, err)
	assert.Nil(t, scan)
}

func TestScanLog(t *testing.T) {
	srv, _ := newBackend(t, http.StatusOK, `{"scanId":"r-3","line":["cloning","analyzing","done"]}`)
	c := NewClient(srv.URL)

	log, err := c.ScanLog(context.Background(), "r-3")
	require.NoError(t, err)
	assert.Equal(t, "r-3", log.ScanID)
	assert.Equal(t, []string{"cloning", "analyzing", "done"}, log.Lines)
}

func TestAssignIssue_Dialects(t *testing.T) {
	due := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("path", func(t *testing.T) {
		srv, captured := newBackend(t, http.StatusOK, `{"id":"I1","status":"PENDING","assignedTo":42}`)
		c := NewClient(srv.URL, WithAssignDialect(AssignDialectPath))

		issue, err := c.AssignIssue(context.Background(), "I1", "42", &due)
		require.NoError(t, err)
		assert.Equal(t, "42", issue.AssignedTo)
		assert.Equal(t, "PENDING", issue.Status)

		req := (*captured)[0]
		assert.Equal(t, http.MethodPut, req.Method)
		assert.Equal(t, "/issues/assign/I1", req.Path)
		assert.Equal(t, "42", req.Body["assignTo"])
		assert.Equal(t, "2025-01-01", req.Body["dueDate"])
	})

	t.Run("query", func(t *testing.T) {
		srv, captured := newBackend(t, http.StatusOK, ``)
		c := NewClient(srv.URL, WithAssignDialect(AssignDialectQuery))

		issue, err := c.AssignIssue(context.Background(), "I1", "42", nil)
		require.NoError(t, err)
		assert.Nil(t, issue)

		req := (*captured)[0]
		assert.Equal(t, "/issues/I1/assign", req.Path)
		assert.Equal(t, "userId=42", req.Query)
	})
}

func TestChangeIssueStatus_Dialects(t *testing.T) {
	t.Run("assign update", func(t *testing.T) {
		srv, captured := newBackend(t, http.StatusOK, `{}`)
		c := NewClient(srv.URL, WithStatusDialect(StatusDialectAssign))

		_, err := c.ChangeIssueStatus(context.Background(), "I1", "42", AssignmentUpdate{Status: "IN PROGRESS", Annotation: "on it"})
		require.NoError(t, err)

		req := (*captured)[0]
		assert.Equal(t, "/assign/update/42/I1", req.Path)
		assert.Equal(t, "IN PROGRESS", req.Body["status"])
		assert.Equal(t, "on it", req.Body["annotation"])
	})

	t.Run("issue status", func(t *testing.T) {
		srv, captured := newBackend(t, http.StatusOK, `{}`)
		c := NewClient(srv.URL, WithStatusDialect(StatusDialectIssue))

		_, err := c.ChangeIssueStatus(context.Background(), "I1", "42", AssignmentUpdate{Status: "REJECT"})
		require.NoError(t, err)

		req := (*captured)[0]
		assert.Equal(t, "/issues/I1/status", req.Path)
		assert.Equal(t, map[string]any{"status": "REJECT"}, req.Body)
	})
}

func TestAssignmentHistory(t *testing.T) {
	body := `[{"assignedTo":42,"assignedToName":"Ana","issueId":"I1","severity":"MAJOR","message":"Null deref","status":"Pending","dueDate":"2025-01-01","annotation":""}]`
	srv, captured := newBackend(t, http.StatusOK, body)
	c := NewClient(srv.URL)

	items, err := c.AssignmentHistory(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "42", items[0].AssignedTo)
	assert.Equal(t, "Ana", items[0].AssignedToName)
	assert.Equal(t, "I1", items[0].IssueID)
	assert.Equal(t, "/assign/42", (*captured)[0].Path)
}
