package services

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/vocab"
	"gorm.io/gorm"
)

const (
	topIssueLimit    = 5
	recentScansLimit = 5
)

type DistributionEntry struct {
	Type    string `json:"type"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

type IssueCounts struct {
	Total      int                       `json:"total"`
	Unassigned int                       `json:"unassigned"`
	ByStatus   map[vocab.IssueStatus]int `json:"by_status"`
	BySeverity map[vocab.Severity]int    `json:"by_severity"`
}

type MessageCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// DashboardSnapshot is derived from scan and issue records and never stored.
type DashboardSnapshot struct {
	PassedCount         int                 `json:"passed_count"`
	FailedCount         int                 `json:"failed_count"`
	Grade               vocab.Grade         `json:"grade"`
	GradePercent        int                 `json:"grade_percent"`
	ProjectCount        int                 `json:"project_count"`
	ProjectDistribution []DistributionEntry `json:"project_distribution"`
	IssueCounts         IssueCounts         `json:"issue_counts"`
	TopIssues           []MessageCount      `json:"top_issues"`
	RecentScans         []models.ScanRecord `json:"recent_scans"`
}

// LatestPerProject keeps the newest record of every project, compared on
// CompletedAt falling back to StartedAt. On equal timestamps the record that
// comes later in scans wins. Records without a project are skipped and the
// result is ordered by first appearance of each project.
func LatestPerProject(scans []models.ScanRecord) []models.ScanRecord {
	index := make(map[uint]int)
	var latest []models.ScanRecord
	for _, s := range scans {
		if s.ProjectID == 0 {
			continue
		}
		i, seen := index[s.ProjectID]
		if !seen {
			index[s.ProjectID] = len(latest)
			latest = append(latest, s)
			continue
		}
		if !s.Timestamp().Before(latest[i].Timestamp()) {
			latest[i] = s
		}
	}
	return latest
}

// Summarize computes the dashboard from scan and issue records. It has no
// side effects and never fails; empty input yields a zero snapshot graded F.
func Summarize(scans []models.ScanRecord, issues []models.IssueRecord) DashboardSnapshot {
	latest := LatestPerProject(scans)

	snap := DashboardSnapshot{ProjectCount: len(latest)}
	for _, s := range latest {
		if strings.TrimSpace(s.GateStatus) == "" {
			continue
		}
		if vocab.NormalizeQualityOutcome(s.GateStatus) == vocab.Passed {
			snap.PassedCount++
		} else {
			snap.FailedCount++
		}
	}

	ratio := 0.0
	if n := snap.PassedCount + snap.FailedCount; n > 0 {
		ratio = float64(snap.PassedCount) / float64(n)
	}
	snap.Grade = vocab.LetterFromRatio(ratio)
	snap.GradePercent = int(math.Round(ratio * 100))

	snap.ProjectDistribution = distribution(latest)
	snap.IssueCounts, snap.TopIssues = issueViews(issues)
	snap.RecentScans = recentScans(scans)
	return snap
}

func distribution(latest []models.ScanRecord) []DistributionEntry {
	counts := make(map[string]int)
	for _, s := range latest {
		t := strings.TrimSpace(s.ProjectType)
		if t == "" {
			t = "Unknown"
		}
		counts[t]++
	}

	entries := make([]DistributionEntry, 0, len(counts))
	for t, c := range counts {
		entries = append(entries, DistributionEntry{
			Type:    t,
			Count:   c,
			Percent: int(math.Round(float64(c) / float64(len(latest)) * 100)),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Type < entries[j].Type
	})
	return entries
}

func issueViews(issues []models.IssueRecord) (IssueCounts, []MessageCount) {
	counts := IssueCounts{
		ByStatus:   make(map[vocab.IssueStatus]int),
		BySeverity: make(map[vocab.Severity]int),
	}
	messages := make(map[string]int)
	for _, i := range issues {
		counts.Total++
		counts.ByStatus[vocab.NormalizeIssueStatus(string(i.Status))]++
		counts.BySeverity[vocab.NormalizeSeverity(string(i.Severity))]++
		if i.AssignedTo == nil {
			counts.Unassigned++
		}
		if msg := strings.TrimSpace(i.Message); msg != "" {
			messages[msg]++
		}
	}

	top := make([]MessageCount, 0, len(messages))
	for msg, c := range messages {
		top = append(top, MessageCount{Message: msg, Count: c})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Message < top[j].Message
	})
	if len(top) > topIssueLimit {
		top = top[:topIssueLimit]
	}
	return counts, top
}

func recentScans(scans []models.ScanRecord) []models.ScanRecord {
	var done []models.ScanRecord
	for _, s := range scans {
		if s.CompletedAt != nil {
			done = append(done, s)
		}
	}
	sort.SliceStable(done, func(i, j int) bool {
		return done[i].CompletedAt.After(*done[j].CompletedAt)
	})
	if len(done) > recentScansLimit {
		done = done[:recentScansLimit]
	}
	return done
}

type DashboardService struct {
	db *gorm.DB
}

func NewDashboardService(db *gorm.DB) *DashboardService {
	return &DashboardService{db: db}
}

type DashboardRequest struct {
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
	ProjectID  uint   `form:"project_id"`
	AssignedTo *uint  `form:"assigned_to"`
}

// Snapshot loads the records matching req and summarizes them. Scans are read
// in start order so ties resolve to the most recently created record.
func (s *DashboardService) Snapshot(ctx context.Context, req *DashboardRequest) (*DashboardSnapshot, error) {
	scanQuery := s.db.WithContext(ctx).Model(&models.ScanRecord{})
	issueQuery := s.db.WithContext(ctx).Model(&models.IssueRecord{})

	if req.StartDate != "" {
		if start, err := time.Parse("2006-01-02", req.StartDate); err == nil {
			scanQuery = scanQuery.Where("started_at >= ?", start)
		}
	}
	if req.EndDate != "" {
		if end, err := time.Parse("2006-01-02", req.EndDate); err == nil {
			scanQuery = scanQuery.Where("started_at < ?", end.Add(24*time.Hour))
		}
	}
	if req.ProjectID > 0 {
		scanQuery = scanQuery.Where("project_id = ?", req.ProjectID)
		issueQuery = issueQuery.Where("project_id = ?", req.ProjectID)
	}
	if req.AssignedTo != nil {
		issueQuery = issueQuery.Where("assigned_to = ?", *req.AssignedTo)
	}

	var scans []models.ScanRecord
	if err := scanQuery.Order("started_at ASC, id ASC").Find(&scans).Error; err != nil {
		return nil, err
	}
	var issues []models.IssueRecord
	if err := issueQuery.Find(&issues).Error; err != nil {
		return nil, err
	}

	snap := Summarize(scans, issues)
	return &snap, nil
}
