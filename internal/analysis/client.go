// Package analysis talks to the static-analysis backend: its REST endpoints
// for scans, issues and assignments, and its server-sent completion stream.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/huangang/scanboard/internal/config"
	"github.com/huangang/scanboard/pkg/logger"
)

// Endpoint dialects observed on different backend versions.
const (
	AssignDialectPath  = "path"  // PUT /issues/assign/{id} {assignTo, dueDate}
	AssignDialectQuery = "query" // PUT /issues/{id}/assign?userId=

	StatusDialectAssign = "assign" // PUT /assign/update/{userId}/{issueId}
	StatusDialectIssue  = "issue"  // PUT /issues/{id}/status
)

const dueDateLayout = "2006-01-02"

// RequestError describes a failed call to the backend: either a transport
// error (Err set) or a non-2xx response (StatusCode set).
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: backend returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Client is safe for concurrent use.
type Client struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	streamClient  *http.Client
	handshake     time.Duration
	assignDialect string
	statusDialect string
}

type Option func(*Client)

// WithHTTPClient replaces the client used for REST calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sends the token as a bearer credential on every call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHandshakeTimeout bounds how long Subscribe waits for the push stream's
// response headers. The stream itself has no deadline.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.handshake = d }
}

func WithAssignDialect(dialect string) Option {
	return func(c *Client) { c.assignDialect = dialect }
}

func WithStatusDialect(dialect string) Option {
	return func(c *Client) { c.statusDialect = dialect }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		streamClient:  &http.Client{},
		handshake:     10 * time.Second,
		assignDialect: AssignDialectPath,
		statusDialect: StatusDialectAssign,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig builds a client from the analysis section of the config.
func NewClientFromConfig(cfg *config.AnalysisConfig) *Client {
	return NewClient(cfg.BaseURL,
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithToken(cfg.Token),
		WithHandshakeTimeout(cfg.Timeout),
		WithAssignDialect(cfg.AssignDialect),
		WithStatusDialect(cfg.StatusDialect),
	)
}

// StartScan issues POST /scans. The body dialect follows from the populated fields.
func (c *Client) StartScan(ctx context.Context, req StartScanRequest) (*Scan, error) {
	var scan Scan
	if err := c.do(ctx, http.MethodPost, "/scans", nil, req, &scan); err != nil {
		return nil, err
	}
	return &scan, nil
}

// ListScans issues GET /scans.
func (c *Client) ListScans(ctx context.Context) ([]Scan, error) {
	var scans []Scan
	if err := c.do(ctx, http.MethodGet, "/scans", nil, nil, &scans); err != nil {
		return nil, err
	}
	return scans, nil
}

// GetScan issues GET /scans/{id}.
func (c *Client) GetScan(ctx context.Context, id string) (*Scan, error) {
	var scan Scan
	if err := c.do(ctx, http.MethodGet, "/scans/"+url.PathEscape(id), nil, nil, &scan); err != nil {
		return nil, err
	}
	return &scan, nil
}

// CancelScan issues POST /scans/{id}/cancel. The backend may answer with an
// empty body, in which case the returned scan is nil.
func (c *Client) CancelScan(ctx context.Context, id string) (*Scan, error) {
	var scan *Scan
	if err := c.do(ctx, http.MethodPost, "/scans/"+url.PathEscape(id)+"/cancel", nil, nil, &scan); err != nil {
		return nil, err
	}
	return scan, nil
}

// ScanLog issues GET /scans/{id}/log.
func (c *Client) ScanLog(ctx context.Context, id string) (*ScanLog, error) {
	var log ScanLog
	if err := c.do(ctx, http.MethodGet, "/scans/"+url.PathEscape(id)+"/log", nil, nil, &log); err != nil {
		return nil, err
	}
	if log.ScanID == "" {
		log.ScanID = id
	}
	return &log, nil
}

// AssignIssue assigns an issue using the configured assign dialect.
func (c *Client) AssignIssue(ctx context.Context, issueID, userID string, dueDate *time.Time) (*Issue, error) {
	var issue *Issue
	switch c.assignDialect {
	case AssignDialectQuery:
		q := url.Values{"userId": {userID}}
		var body any
		if dueDate != nil {
			body = map[string]string{"dueDate": dueDate.Format(dueDateLayout)}
		}
		if err := c.do(ctx, http.MethodPut, "/issues/"+url.PathEscape(issueID)+"/assign", q, body, &issue); err != nil {
			return nil, err
		}
	default:
		body := assignBody{AssignTo: userID}
		if dueDate != nil {
			body.DueDate = dueDate.Format(dueDateLayout)
		}
		if err := c.do(ctx, http.MethodPut, "/issues/assign/"+url.PathEscape(issueID), nil, body, &issue); err != nil {
			return nil, err
		}
	}
	return issue, nil
}

// UpdateIssueStatus issues PUT /issues/{id}/status.
func (c *Client) UpdateIssueStatus(ctx context.Context, issueID, status string) (*Issue, error) {
	var issue *Issue
	body := map[string]string{"status": status}
	if err := c.do(ctx, http.MethodPut, "/issues/"+url.PathEscape(issueID)+"/status", nil, body, &issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// UpdateAssignment issues PUT /assign/update/{userId}/{issueId}, the combined
// status and assignment update.
func (c *Client) UpdateAssignment(ctx context.Context, userID, issueID string, upd AssignmentUpdate) (*Issue, error) {
	var issue *Issue
	path := "/assign/update/" + url.PathEscape(userID) + "/" + url.PathEscape(issueID)
	if err := c.do(ctx, http.MethodPut, path, nil, upd, &issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// ChangeIssueStatus updates an issue status through the configured status
// dialect. userID is only used by the assign dialect.
func (c *Client) ChangeIssueStatus(ctx context.Context, issueID, userID string, upd AssignmentUpdate) (*Issue, error) {
	if c.statusDialect == StatusDialectIssue || userID == "" {
		return c.UpdateIssueStatus(ctx, issueID, upd.Status)
	}
	return c.UpdateAssignment(ctx, userID, issueID, upd)
}

// AssignmentHistory issues GET /assign/{userId}.
func (c *Client) AssignmentHistory(ctx context.Context, userID string) ([]Assignment, error) {
	var items []Assignment
	if err := c.do(ctx, http.MethodGet, "/assign/"+url.PathEscape(userID), nil, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("analysis request failed")
		return &RequestError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: err}
	}

	logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("analysis request")

	if resp.StatusCode >= 400 {
		return &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: truncate(string(respBody), 500)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapEnvelope(respBody), out); err != nil {
		return &RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// unwrapEnvelope strips a {code, message, data} style wrapper when present.
func unwrapEnvelope(body []byte) []byte {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return body
	}
	data, ok := env["data"]
	if !ok {
		if items, ok := env["items"]; ok {
			return items
		}
		return body
	}
	_, hasCode := env["code"]
	_, hasMessage := env["message"]
	_, hasSuccess := env["success"]
	if hasCode || hasMessage || hasSuccess || len(env) == 1 {
		if inner := unwrapEnvelope(data); len(inner) > 0 {
			return inner
		}
	}
	return body
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsRequestError reports whether err came from a backend call.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}
