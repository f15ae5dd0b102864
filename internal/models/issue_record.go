package models

import (
	"time"

	"github.com/huangang/scanboard/internal/vocab"
)

// IssueRecord mirrors an issue produced by a scan on the analysis backend
type IssueRecord struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	IssueID    string            `gorm:"uniqueIndex;size:100;not null" json:"issue_id"`
	ProjectID  uint              `gorm:"index;not null" json:"project_id"`
	ScanID     string            `gorm:"size:100;index" json:"scan_id"`
	IssueKey   string            `gorm:"size:200" json:"issue_key"`
	Type       string            `gorm:"size:50;index" json:"type"` // Bug, Vulnerability, Code Smell
	Severity   vocab.Severity    `gorm:"size:20;index" json:"severity"`
	Component  string            `gorm:"size:500" json:"component"`
	Line       int               `json:"line"`
	Message    string            `gorm:"type:text" json:"message"`
	Status     vocab.IssueStatus `gorm:"size:20;index" json:"status"`
	AssignedTo *uint             `gorm:"index" json:"assigned_to"`
	DueDate    *time.Time        `json:"due_date"`
	Annotation string            `gorm:"type:text" json:"annotation"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (IssueRecord) TableName() string { return "issue_records" }
