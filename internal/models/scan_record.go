package models

import (
	"time"

	"github.com/huangang/scanboard/internal/vocab"
)

// Sources that can finalize a scan.
const (
	FinalizedByStartResponse = "start-response"
	FinalizedByPush          = "push"
	FinalizedByCancel        = "cancel"
	FinalizedByReconcile     = "reconcile"
	FinalizedByStartFailure  = "start-failure"
)

// ScanRecord is one scan run of a project. Records are never deleted; a newer
// record for the same project supersedes older ones.
type ScanRecord struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	ScanID       string           `gorm:"uniqueIndex;size:64;not null" json:"scan_id"`
	RemoteScanID string           `gorm:"size:100;index" json:"remote_scan_id"`
	ProjectID    uint             `gorm:"index;not null" json:"project_id"`
	Project      *Project         `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	ProjectType  string           `gorm:"size:100" json:"project_type"`
	Branch       string           `gorm:"size:200" json:"branch"`
	Status       vocab.ScanStatus `gorm:"size:20;index" json:"status"`
	Progress     int              `gorm:"default:0" json:"progress"`
	StartedAt    time.Time        `gorm:"index" json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at"`

	// Quality gate: letter grade, raw outcome (OK/ERROR/...) and per-dimension verdicts.
	QualityGate         *vocab.Grade `gorm:"size:2" json:"quality_gate"`
	GateStatus          string       `gorm:"size:50" json:"gate_status"`
	ReliabilityGate     bool         `json:"reliability_gate"`
	SecurityGate        bool         `json:"security_gate"`
	MaintainabilityGate bool         `json:"maintainability_gate"`
	SecurityReviewGate  bool         `json:"security_review_gate"`

	Bugs            int     `json:"bugs"`
	Vulnerabilities int     `json:"vulnerabilities"`
	CodeSmells      int     `json:"code_smells"`
	Coverage        float64 `json:"coverage"`
	Duplications    float64 `json:"duplications"`

	LogFilePath  string    `gorm:"size:500" json:"log_file_path"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	FinalizedBy  string    `gorm:"size:20" json:"finalized_by"`
	CreatedBy    uint      `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (ScanRecord) TableName() string { return "scan_records" }

// IsTerminal reports whether the scan reached Active, Error or Cancelled.
func (r *ScanRecord) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// Timestamp is CompletedAt when set, StartedAt otherwise.
func (r *ScanRecord) Timestamp() time.Time {
	if r.CompletedAt != nil {
		return *r.CompletedAt
	}
	return r.StartedAt
}
