package models

import (
	"time"

	"github.com/huangang/scanboard/internal/vocab"
)

// AssignmentRecord is an append-only history entry written on every successful
// assignment or status change. It refers to its issue by IssueID only.
type AssignmentRecord struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	IssueID        string            `gorm:"size:100;index;not null" json:"issue_id"`
	Action         string            `gorm:"size:20" json:"action"` // assign, confirm, complete, reject, reopen
	AssignedTo     *uint             `gorm:"index" json:"assigned_to"`
	AssignedToName string            `gorm:"size:100" json:"assigned_to_name"`
	DueDate        *time.Time        `json:"due_date"`
	Annotation     string            `gorm:"type:text" json:"annotation"`
	Status         vocab.IssueStatus `gorm:"size:20" json:"status"`
	Severity       vocab.Severity    `gorm:"size:20" json:"severity"`
	Message        string            `gorm:"type:text" json:"message"`
	ActorID        uint              `json:"actor_id"`
	CreatedAt      time.Time         `gorm:"index" json:"created_at"`
}

func (AssignmentRecord) TableName() string { return "assignment_records" }
