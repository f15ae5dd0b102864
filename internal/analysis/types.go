package analysis

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// StartScanRequest is the POST /scans body. Two dialects exist: token based
// {repoUrl, projectKey, branchName?, token} and password based
// {projectId, username, password}.
type StartScanRequest struct {
	RepoURL    string `json:"repoUrl,omitempty"`
	ProjectKey string `json:"projectKey,omitempty"`
	BranchName string `json:"branchName,omitempty"`
	Token      string `json:"token,omitempty"`

	ProjectID string `json:"projectId,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
}

type assignBody struct {
	AssignTo string `json:"assignTo"`
	DueDate  string `json:"dueDate,omitempty"`
}

// AssignmentUpdate is the body of PUT /assign/update/{userId}/{issueId}.
type AssignmentUpdate struct {
	Status     string `json:"status"`
	Annotation string `json:"annotation"`
	AssignedTo string `json:"assignedTo,omitempty"`
	DueDate    string `json:"dueDate,omitempty"`
}

// FormatDueDate renders a due date the way the backend expects it.
func FormatDueDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dueDateLayout)
}

// Metrics holds the measures attached to a scan.
type Metrics struct {
	Bugs            int     `json:"bugs"`
	Vulnerabilities int     `json:"vulnerabilities"`
	CodeSmells      int     `json:"code_smells"`
	Coverage        float64 `json:"coverage"`
	Duplications    float64 `json:"duplications"`
}

// Scan is the backend's view of a scan run. Field names are accepted in both
// snake_case and camelCase.
type Scan struct {
	ID                  string     `json:"scan_id"`
	ProjectID           string     `json:"project_id"`
	ProjectKey          string     `json:"project_key"`
	ProjectType         string     `json:"project_type"`
	Branch              string     `json:"branch"`
	Status              string     `json:"status"`
	QualityGate         string     `json:"quality_gate"` // letter A-F when known
	GateStatus          string     `json:"gate_status"`  // OK, ERROR, ...
	ReliabilityGate     bool       `json:"reliability_gate"`
	SecurityGate        bool       `json:"security_gate"`
	MaintainabilityGate bool       `json:"maintainability_gate"`
	SecurityReviewGate  bool       `json:"security_review_gate"`
	StartedAt           *time.Time `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at"`
	Metrics             Metrics    `json:"metrics"`
	LogFilePath         string     `json:"log_file_path"`
	ErrorMessage        string     `json:"error_message"`
}

func (s *Scan) UnmarshalJSON(data []byte) error {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*s = scanFromFields(f)
	return nil
}

func scanFromFields(f fields) Scan {
	s := Scan{
		ID:                  f.str("scans_id", "scan_id", "scanId", "id"),
		ProjectID:           f.str("project_id", "projectId"),
		ProjectKey:          f.str("project_key", "projectKey", "repoId", "repo_id"),
		ProjectType:         f.str("project_type", "projectType", "typeproject", "type"),
		Branch:              f.str("branch", "branchName", "branch_name"),
		Status:              f.str("status", "scanStatus", "scan_status"),
		GateStatus:          f.str("gate_status", "gateStatus", "quality_gate_status", "qualityGateStatus"),
		ReliabilityGate:     f.flag("reliability_gate", "reliabilityGate"),
		SecurityGate:        f.flag("security_gate", "securityGate"),
		MaintainabilityGate: f.flag("maintainability_gate", "maintainabilityGate"),
		SecurityReviewGate:  f.flag("security_review_gate", "securityReviewGate"),
		StartedAt:           f.timestamp("started_at", "startedAt", "start_time"),
		CompletedAt:         f.timestamp("completed_at", "completedAt", "end_time"),
		LogFilePath:         f.str("log_file_path", "logFilePath"),
		ErrorMessage:        f.str("error_message", "errorMessage", "error"),
	}

	gate := f.str("quality_gate", "qualityGate", "grade")
	if isLetter(gate) {
		s.QualityGate = strings.ToUpper(gate)
	} else if s.GateStatus == "" {
		s.GateStatus = gate
	}

	m := f
	if nested := f.object("metrics"); nested != nil {
		m = nested
	}
	s.Metrics = Metrics{
		Bugs:            int(m.num("bugs")),
		Vulnerabilities: int(m.num("vulnerabilities")),
		CodeSmells:      int(m.num("code_smells", "codeSmells", "code_smell")),
		Coverage:        m.num("coverage"),
		Duplications:    m.num("duplications", "duplicated_lines_density", "duplicatedLinesDensity"),
	}
	return s
}

func isLetter(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'F'
}

// ScanLog is the response of GET /scans/{id}/log.
type ScanLog struct {
	ScanID string   `json:"scanId"`
	Lines  []string `json:"line"`
}

func (l *ScanLog) UnmarshalJSON(data []byte) error {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	l.ScanID = f.str("scanId", "scan_id", "scans_id")
	for _, key := range []string{"line", "lines", "log"} {
		raw, ok := f[key]
		if !ok {
			continue
		}
		var lines []string
		if err := json.Unmarshal(raw, &lines); err == nil {
			l.Lines = lines
			break
		}
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			l.Lines = strings.Split(text, "\n")
			break
		}
	}
	return nil
}

// Issue is the backend's view of an issue, as returned by the workflow endpoints.
type Issue struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	AssignedTo string `json:"assignedTo"`
	DueDate    string `json:"dueDate"`
	Severity   string `json:"severity"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	Component  string `json:"component"`
	Line       int    `json:"line"`
	ProjectID  string `json:"projectId"`
	ScanID     string `json:"scanId"`
	Key        string `json:"key"`
}

func (i *Issue) UnmarshalJSON(data []byte) error {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*i = Issue{
		ID:         f.str("id", "issueId", "issue_id", "issues_id"),
		Status:     f.str("status"),
		AssignedTo: f.str("assignedTo", "assigned_to", "assignTo", "assignee"),
		DueDate:    f.str("dueDate", "due_date"),
		Severity:   f.str("severity"),
		Type:       f.str("type", "issueType", "issue_type"),
		Message:    f.str("message"),
		Component:  f.str("component", "file"),
		Line:       int(f.num("line")),
		ProjectID:  f.str("projectId", "project_id"),
		ScanID:     f.str("scanId", "scan_id", "scans_id"),
		Key:        f.str("key", "issueKey", "issue_key"),
	}
	return nil
}

// Assignment is one entry of GET /assign/{userId}.
type Assignment struct {
	AssignedTo     string `json:"assignedTo"`
	AssignedToName string `json:"assignedToName"`
	IssueID        string `json:"issueId"`
	Severity       string `json:"severity"`
	Message        string `json:"message"`
	Status         string `json:"status"`
	DueDate        string `json:"dueDate"`
	Annotation     string `json:"annotation"`
}

func (a *Assignment) UnmarshalJSON(data []byte) error {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = Assignment{
		AssignedTo:     f.str("assignedTo", "assigned_to"),
		AssignedToName: f.str("assignedToName", "assigned_to_name"),
		IssueID:        f.str("issueId", "issue_id"),
		Severity:       f.str("severity"),
		Message:        f.str("message"),
		Status:         f.str("status"),
		DueDate:        f.str("dueDate", "due_date"),
		Annotation:     f.str("annotation"),
	}
	return nil
}

// fields is a raw JSON object read with fallbacks across naming dialects.
type fields map[string]json.RawMessage

// str returns the first key holding a string or number, rendered as a string.
func (f fields) str(keys ...string) string {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		if v, ok := rawString(raw); ok && v != "" {
			return v
		}
	}
	return ""
}

func (f fields) num(keys ...string) float64 {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		var n float64
		if err := json.Unmarshal(raw, &n); err == nil {
			if n < 0 {
				return 0
			}
			return n
		}
		if v, ok := rawString(raw); ok {
			if n, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64); err == nil && n >= 0 {
				return n
			}
		}
	}
	return 0
}

func (f fields) flag(keys ...string) bool {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b
		}
		if v, ok := rawString(raw); ok {
			switch strings.ToUpper(strings.TrimSpace(v)) {
			case "Y", "YES", "TRUE", "OK", "PASSED":
				return true
			}
			return false
		}
	}
	return false
}

func (f fields) timestamp(keys ...string) *time.Time {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		if t, ok := parseTime(raw); ok {
			return &t
		}
	}
	return nil
}

func (f fields) object(key string) fields {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	var nested fields
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil
	}
	return nested
}

func rawString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	dueDateLayout,
}

func parseTime(raw json.RawMessage) (time.Time, bool) {
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(int64(ms)), true
	}
	s, ok := rawString(raw)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
