// Package vocab normalizes the status, outcome and grade strings reported by
// the analysis backend into a small closed set of canonical values.
//
// Every function is total: unknown input maps to a safe default and nothing
// here returns an error or panics.
package vocab

import (
	"math"
	"strings"
)

// ScanStatus is the canonical lifecycle state of a scan.
type ScanStatus string

const (
	ScanActive    ScanStatus = "Active"
	ScanScanning  ScanStatus = "Scanning"
	ScanError     ScanStatus = "Error"
	ScanCancelled ScanStatus = "Cancelled"
)

// IsTerminal reports whether no further transition can leave s.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanActive || s == ScanError || s == ScanCancelled
}

// QualityOutcome is the pass/fail verdict of a quality gate.
type QualityOutcome string

const (
	Passed QualityOutcome = "Passed"
	Failed QualityOutcome = "Failed"
)

// Grade is a letter from A (best) to F.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeE Grade = "E"
	GradeF Grade = "F"
)

// Rank orders grades so that A > B > ... > F. Unknown letters rank lowest.
func (g Grade) Rank() int {
	switch g {
	case GradeA:
		return 5
	case GradeB:
		return 4
	case GradeC:
		return 3
	case GradeD:
		return 2
	case GradeE:
		return 1
	default:
		return 0
	}
}

// IssueStatus is the canonical workflow state of an issue.
type IssueStatus string

const (
	IssueOpen       IssueStatus = "open"
	IssuePending    IssueStatus = "pending"
	IssueInProgress IssueStatus = "in-progress"
	IssueDone       IssueStatus = "done"
	IssueReject     IssueStatus = "reject"
)

// Severity is the canonical issue severity.
type Severity string

const (
	SeverityBlocker  Severity = "Blocker"
	SeverityCritical Severity = "Critical"
	SeverityMajor    Severity = "Major"
	SeverityMinor    Severity = "Minor"
)

var scanStatuses = map[string]ScanStatus{
	"ACTIVE":      ScanActive,
	"OK":          ScanActive,
	"SUCCESS":     ScanActive,
	"PASSED":      ScanActive,
	"COMPLETED":   ScanActive,
	"COMPLETE":    ScanActive,
	"DONE":        ScanActive,
	"FINISHED":    ScanActive,
	"SCANNING":    ScanScanning,
	"RUNNING":     ScanScanning,
	"IN PROGRESS": ScanScanning,
	"IN_PROGRESS": ScanScanning,
	"PENDING":     ScanScanning,
	"QUEUED":      ScanScanning,
	"STARTED":     ScanScanning,
	"CANCELLED":   ScanCancelled,
	"CANCELED":    ScanCancelled,
	"ABORTED":     ScanCancelled,
	"STOPPED":     ScanCancelled,
}

var issueStatuses = map[string]IssueStatus{
	"OPEN":        IssueOpen,
	"REOPENED":    IssueOpen,
	"PENDING":     IssuePending,
	"IN PROGRESS": IssueInProgress,
	"IN-PROGRESS": IssueInProgress,
	"IN_PROGRESS": IssueInProgress,
	"DONE":        IssueDone,
	"RESOLVED":    IssueDone,
	"REJECT":      IssueReject,
	"REJECTED":    IssueReject,
	"CLOSED":      IssueReject,
}

var backendIssueStatuses = map[IssueStatus]string{
	IssueOpen:       "OPEN",
	IssuePending:    "PENDING",
	IssueInProgress: "IN PROGRESS",
	IssueDone:       "DONE",
	IssueReject:     "REJECT",
}

func canon(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NormalizeScanStatus maps a backend scan status to its canonical value.
// Unrecognized input, including "ERROR", "FAILED" and the empty string, is ScanError.
func NormalizeScanStatus(raw string) ScanStatus {
	if s, ok := scanStatuses[canon(raw)]; ok {
		return s
	}
	return ScanError
}

// NormalizeQualityOutcome treats OK, SUCCESS and PASSED as passing and
// everything else as failing.
func NormalizeQualityOutcome(raw string) QualityOutcome {
	switch canon(raw) {
	case "OK", "SUCCESS", "PASSED":
		return Passed
	default:
		return Failed
	}
}

// LetterFromRatio converts a pass ratio into a letter grade.
func LetterFromRatio(ratio float64) Grade {
	switch {
	case math.IsNaN(ratio):
		return GradeF
	case ratio >= 0.8:
		return GradeA
	case ratio >= 0.7:
		return GradeB
	case ratio >= 0.6:
		return GradeC
	case ratio >= 0.5:
		return GradeD
	case ratio >= 0.4:
		return GradeE
	default:
		return GradeF
	}
}

// NormalizeIssueStatus maps a backend issue status to its canonical value.
// Unrecognized input is treated as open.
func NormalizeIssueStatus(raw string) IssueStatus {
	if s, ok := issueStatuses[canon(raw)]; ok {
		return s
	}
	return IssueOpen
}

// ParseIssueStatus is the strict variant of NormalizeIssueStatus used for
// client input.
func ParseIssueStatus(raw string) (IssueStatus, bool) {
	s, ok := issueStatuses[canon(raw)]
	return s, ok
}

// BackendIssueStatus is the spelling the workflow endpoints accept.
func BackendIssueStatus(s IssueStatus) string {
	if v, ok := backendIssueStatuses[s]; ok {
		return v
	}
	return "OPEN"
}

// NormalizeSeverity maps a backend severity to its canonical value. The
// dashboard labels (critical, high, medium, low) are accepted too. Unknown
// input is Minor.
func NormalizeSeverity(raw string) Severity {
	switch canon(raw) {
	case "BLOCKER":
		return SeverityBlocker
	case "CRITICAL", "HIGH":
		return SeverityCritical
	case "MAJOR", "MEDIUM":
		return SeverityMajor
	default:
		return SeverityMinor
	}
}

// NormalizeIssueType maps a backend issue type to Bug, Vulnerability or Code Smell.
func NormalizeIssueType(raw string) string {
	switch canon(raw) {
	case "BUG":
		return "Bug"
	case "VULNERABILITY", "SECURITY", "SECURITY_HOTSPOT":
		return "Vulnerability"
	case "CODE SMELL", "CODE_SMELL", "CODE-SMELL", "SMELL":
		return "Code Smell"
	default:
		return strings.TrimSpace(raw)
	}
}

// GateFlag reads a per-gate Y/N marker.
func GateFlag(raw string) bool {
	switch canon(raw) {
	case "Y", "YES", "TRUE", "OK", "PASSED":
		return true
	default:
		return false
	}
}
