package models

import (
	"time"

	"gorm.io/gorm"
)

// Project represents a repository registered for static analysis
type Project struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:200;not null" json:"name"`
	RepoURL     string `gorm:"size:500;not null" json:"repo_url"`
	ProjectKey  string `gorm:"uniqueIndex;size:200;not null" json:"project_key"` // repository key on the analysis backend
	Branch      string `gorm:"size:200" json:"branch"`
	ProjectType string `gorm:"size:100;index" json:"project_type"` // Angular, Spring Boot, ...
	Language    string `gorm:"size:50" json:"language"`
	// Stored scan credentials. Either a token or a username/password pair.
	ScanToken    string         `gorm:"size:500" json:"-"`
	ScanUsername string         `gorm:"size:200" json:"-"`
	ScanPassword string         `gorm:"size:500" json:"-"`
	HasScanAuth  bool           `gorm:"-" json:"has_scan_auth"`
	CreatedBy    uint           `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Project) TableName() string { return "projects" }

// HasCredentials reports whether scans can start without asking for credentials.
func (p *Project) HasCredentials() bool {
	return p.ScanToken != "" || (p.ScanUsername != "" && p.ScanPassword != "")
}

func (p *Project) AfterFind(tx *gorm.DB) error {
	p.HasScanAuth = p.HasCredentials()
	return nil
}
