package services

import (
	"context"
	"errors"
	"strings"

	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/vocab"
	"gorm.io/gorm"
)

type ProjectService struct {
	db *gorm.DB
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{db: db}
}

type ProjectListRequest struct {
	Page        int    `form:"page" binding:"omitempty,min=1"`
	PageSize    int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Name        string `form:"name"`
	ProjectType string `form:"project_type"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type CreateProjectRequest struct {
	Name         string `json:"name" binding:"required"`
	RepoURL      string `json:"repo_url" binding:"required"`
	ProjectKey   string `json:"project_key" binding:"required"`
	Branch       string `json:"branch"`
	ProjectType  string `json:"project_type"`
	Language     string `json:"language"`
	ScanToken    string `json:"scan_token"`
	ScanUsername string `json:"scan_username"`
	ScanPassword string `json:"scan_password"`
}

// UpdateProjectRequest leaves empty fields untouched. ClearCredentials wipes
// the stored scan credentials before any new ones are applied.
type UpdateProjectRequest struct {
	Name             string `json:"name"`
	RepoURL          string `json:"repo_url"`
	Branch           string `json:"branch"`
	ProjectType      string `json:"project_type"`
	Language         string `json:"language"`
	ScanToken        string `json:"scan_token"`
	ScanUsername     string `json:"scan_username"`
	ScanPassword     string `json:"scan_password"`
	ClearCredentials bool   `json:"clear_credentials"`
}

// List returns paginated projects
func (s *ProjectService) List(req *ProjectListRequest) (*ProjectListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 10
	}

	var projects []models.Project
	var total int64

	query := s.db.Model(&models.Project{})

	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}
	if req.ProjectType != "" {
		query = query.Where("project_type = ?", req.ProjectType)
	}

	query.Count(&total)

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&projects).Error; err != nil {
		return nil, err
	}

	return &ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    projects,
	}, nil
}

// GetByID returns a project by ID
func (s *ProjectService) GetByID(id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (s *ProjectService) Create(req *CreateProjectRequest, userID uint) (*models.Project, error) {
	project := models.Project{
		Name:         req.Name,
		RepoURL:      strings.TrimSuffix(strings.TrimSpace(req.RepoURL), ".git"),
		ProjectKey:   strings.TrimSpace(req.ProjectKey),
		Branch:       req.Branch,
		ProjectType:  strings.TrimSpace(req.ProjectType),
		Language:     req.Language,
		ScanToken:    req.ScanToken,
		ScanUsername: req.ScanUsername,
		ScanPassword: req.ScanPassword,
		CreatedBy:    userID,
	}

	if err := s.db.Create(&project).Error; err != nil {
		return nil, err
	}
	project.HasScanAuth = project.HasCredentials()
	return &project, nil
}

func (s *ProjectService) Update(id uint, req *UpdateProjectRequest) (*models.Project, error) {
	project, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)

	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.RepoURL != "" {
		updates["repo_url"] = strings.TrimSuffix(strings.TrimSpace(req.RepoURL), ".git")
	}
	if req.Branch != "" {
		updates["branch"] = req.Branch
	}
	if req.ProjectType != "" {
		updates["project_type"] = strings.TrimSpace(req.ProjectType)
	}
	if req.Language != "" {
		updates["language"] = req.Language
	}
	if req.ClearCredentials {
		updates["scan_token"] = ""
		updates["scan_username"] = ""
		updates["scan_password"] = ""
	}
	if req.ScanToken != "" {
		updates["scan_token"] = req.ScanToken
	}
	if req.ScanUsername != "" {
		updates["scan_username"] = req.ScanUsername
	}
	if req.ScanPassword != "" {
		updates["scan_password"] = req.ScanPassword
	}

	if len(updates) > 0 {
		if err := s.db.Model(project).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.GetByID(id)
}

// Delete soft-deletes a project. Its scan and issue records are kept; a
// project with a scan still running cannot be deleted.
func (s *ProjectService) Delete(id uint) error {
	var live int64
	if err := s.db.Model(&models.ScanRecord{}).
		Where("project_id = ? AND status = ?", id, vocab.ScanScanning).
		Count(&live).Error; err != nil {
		return err
	}
	if live > 0 {
		return ErrScanInProgress
	}

	result := s.db.Delete(&models.Project{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// ProjectOverview is a project with its latest scan and issue counts by status.
type ProjectOverview struct {
	Project    *models.Project             `json:"project"`
	LatestScan *models.ScanRecord          `json:"latest_scan"`
	Issues     map[vocab.IssueStatus]int64 `json:"issues"`
	OpenIssues int64                       `json:"open_issues"`
}

// Overview gathers what the project page shows above the fold.
func (s *ProjectService) Overview(ctx context.Context, id uint) (*ProjectOverview, error) {
	project, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	out := &ProjectOverview{Project: project, Issues: map[vocab.IssueStatus]int64{}}

	var scan models.ScanRecord
	err = db.Where("project_id = ?", id).Order("started_at DESC, id DESC").First(&scan).Error
	switch {
	case err == nil:
		out.LatestScan = &scan
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	var rows []struct {
		Status vocab.IssueStatus
		Count  int64
	}
	if err := db.Model(&models.IssueRecord{}).
		Select("status, COUNT(*) AS count").
		Where("project_id = ?", id).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out.Issues[r.Status] = r.Count
		if r.Status != vocab.IssueDone && r.Status != vocab.IssueReject {
			out.OpenIssues += r.Count
		}
	}
	return out, nil
}
