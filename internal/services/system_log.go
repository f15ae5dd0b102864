package services

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/pkg/logger"
	"gorm.io/gorm"
)

var globalDB *gorm.DB

func InitSystemLogger(db *gorm.DB) {
	globalDB = db
}

const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// LogEntry is what WriteLog persists. Extra is marshalled to JSON.
type LogEntry struct {
	Level     string
	Module    string
	Action    string
	Target    string
	Message   string
	Status    int
	UserID    *uint
	IP        string
	UserAgent string
	Extra     any
}

func LogInfo(module, action, message string, userID *uint, ip, userAgent string, extra any) {
	WriteLog(LogEntry{Level: LevelInfo, Module: module, Action: action, Message: message, UserID: userID, IP: ip, UserAgent: userAgent, Extra: extra})
}

func LogWarning(module, action, message string, userID *uint, ip, userAgent string, extra any) {
	WriteLog(LogEntry{Level: LevelWarning, Module: module, Action: action, Message: message, UserID: userID, IP: ip, UserAgent: userAgent, Extra: extra})
}

func LogError(module, action, message string, userID *uint, ip, userAgent string, extra any) {
	WriteLog(LogEntry{Level: LevelError, Module: module, Action: action, Message: message, UserID: userID, IP: ip, UserAgent: userAgent, Extra: extra})
}

// WriteLog stores e in system_logs. It is a no-op until InitSystemLogger ran;
// storage failures are logged and swallowed.
func WriteLog(e LogEntry) {
	if globalDB == nil {
		return
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}

	var extra string
	if e.Extra != nil {
		if b, err := json.Marshal(e.Extra); err == nil {
			extra = string(b)
		}
	}

	row := &models.SystemLog{
		Level:     e.Level,
		Module:    e.Module,
		Action:    e.Action,
		Target:    e.Target,
		Message:   e.Message,
		Status:    e.Status,
		UserID:    e.UserID,
		IP:        e.IP,
		UserAgent: e.UserAgent,
		Extra:     extra,
		CreatedAt: time.Now(),
	}
	if err := globalDB.Create(row).Error; err != nil {
		logger.Warn().Err(err).Str("module", e.Module).Str("action", e.Action).Msg("failed to write system log")
	}
}

type SystemLogService struct {
	db            *gorm.DB
	retentionDays int
}

func NewSystemLogService(db *gorm.DB, retentionDays int) *SystemLogService {
	return &SystemLogService{db: db, retentionDays: retentionDays}
}

type SystemLogListRequest struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Level     string `form:"level"`
	Module    string `form:"module"`
	Action    string `form:"action"`
	Target    string `form:"target"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	Search    string `form:"search"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

func (s *SystemLogService) List(req *SystemLogListRequest) (*SystemLogListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	var logs []models.SystemLog
	var total int64

	query := s.db.Model(&models.SystemLog{})

	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.Target != "" {
		query = query.Where("target = ?", req.Target)
	}
	if req.StartDate != "" {
		if start, err := time.Parse("2006-01-02", req.StartDate); err == nil {
			query = query.Where("created_at >= ?", start)
		}
	}
	if req.EndDate != "" {
		if end, err := time.Parse("2006-01-02", req.EndDate); err == nil {
			query = query.Where("created_at < ?", end.Add(24*time.Hour))
		}
	}
	if req.Search != "" {
		query = query.Where("message LIKE ?", "%"+req.Search+"%")
	}

	query.Count(&total)

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return &SystemLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

// Trail returns the newest entries recorded against one target such as
// "scan:<id>" or "issue:<id>", oldest first.
func (s *SystemLogService) Trail(ctx context.Context, target string, limit int) ([]models.SystemLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var logs []models.SystemLog
	if err := s.db.WithContext(ctx).
		Where("target = ?", target).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error; err != nil {
		return nil, err
	}
	slices.Reverse(logs)
	return logs, nil
}

func (s *SystemLogService) GetModules() ([]string, error) {
	var modules []string
	if err := s.db.Model(&models.SystemLog{}).Distinct("module").Pluck("module", &modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

// CleanupOldLogs deletes logs older than the configured retention and returns
// how many rows went. Non-positive retention keeps everything.
func (s *SystemLogService) CleanupOldLogs() (int64, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ScheduleCleanup registers the daily cleanup job.
func (s *SystemLogService) ScheduleCleanup(sched *Scheduler) error {
	if s.retentionDays <= 0 {
		logger.Info().Msg("[SystemLog] log cleanup disabled (retention_days <= 0)")
		return nil
	}
	return sched.Add("system-log-cleanup", "@daily", time.Hour, func() {
		deleted, err := s.CleanupOldLogs()
		if err != nil {
			logger.Errorf("[SystemLog] failed to clean up old logs: %v", err)
			return
		}
		if deleted > 0 {
			logger.Infof("[SystemLog] cleaned up %d logs older than %d days", deleted, s.retentionDays)
		}
	})
}
