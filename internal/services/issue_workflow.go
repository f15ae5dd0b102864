package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/huangang/scanboard/internal/analysis"
	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/vocab"
	"github.com/huangang/scanboard/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IssueBackend is the part of the analysis API the workflow drives.
type IssueBackend interface {
	AssignIssue(ctx context.Context, issueID, userID string, dueDate *time.Time) (*analysis.Issue, error)
	ChangeIssueStatus(ctx context.Context, issueID, userID string, upd analysis.AssignmentUpdate) (*analysis.Issue, error)
	AssignmentHistory(ctx context.Context, userID string) ([]analysis.Assignment, error)
}

// Workflow actions, recorded on every AssignmentRecord.
const (
	ActionAssign   = "assign"
	ActionConfirm  = "confirm"
	ActionComplete = "complete"
	ActionReject   = "reject"
	ActionReopen   = "reopen"
)

// Actor is the user performing a workflow action.
type Actor struct {
	ID   uint
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

type AssignRequest struct {
	UserID     uint       `json:"user_id"`
	DueDate    *time.Time `json:"due_date"`
	Annotation string     `json:"annotation"`
}

// issueFields is the part of an issue a workflow action may change.
type issueFields struct {
	Status     vocab.IssueStatus
	AssignedTo *uint
	DueDate    *time.Time
	Annotation string
}

func captureFields(i *models.IssueRecord) issueFields {
	f := issueFields{Status: i.Status, Annotation: i.Annotation}
	if i.AssignedTo != nil {
		v := *i.AssignedTo
		f.AssignedTo = &v
	}
	if i.DueDate != nil {
		v := *i.DueDate
		f.DueDate = &v
	}
	return f
}

func (f issueFields) restore(i *models.IssueRecord) {
	i.Status = f.Status
	i.AssignedTo = f.AssignedTo
	i.DueDate = f.DueDate
	i.Annotation = f.Annotation
}

// IssueWorkflow moves issues through open, pending, in-progress, done and
// reject. Every change is applied locally first, confirmed with the backend
// and rolled back if the backend call fails.
type IssueWorkflow struct {
	db      *gorm.DB
	backend IssueBackend

	locks sync.Map // issue id -> *sync.Mutex

	listenMu sync.RWMutex
	onChange []func(models.IssueRecord)
}

func NewIssueWorkflow(db *gorm.DB, backend IssueBackend) *IssueWorkflow {
	return &IssueWorkflow{db: db, backend: backend}
}

// OnChange registers fn for every successful issue mutation.
func (w *IssueWorkflow) OnChange(fn func(models.IssueRecord)) {
	w.listenMu.Lock()
	defer w.listenMu.Unlock()
	w.onChange = append(w.onChange, fn)
}

func (w *IssueWorkflow) lock(issueID string) *sync.Mutex {
	mu, _ := w.locks.LoadOrStore(issueID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Get returns one issue.
func (w *IssueWorkflow) Get(ctx context.Context, issueID string) (*models.IssueRecord, error) {
	var issue models.IssueRecord
	err := w.db.WithContext(ctx).Where("issue_id = ?", issueID).First(&issue).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIssueNotFound
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

type IssueListRequest struct {
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
	ProjectID  uint   `form:"project_id"`
	ScanID     string `form:"scan_id"`
	Status     string `form:"status"`
	Severity   string `form:"severity"`
	AssignedTo *uint  `form:"assigned_to"`
}

type IssueListResponse struct {
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Items    []models.IssueRecord `json:"items"`
}

func (w *IssueWorkflow) List(ctx context.Context, req *IssueListRequest) (*IssueListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := w.db.WithContext(ctx).Model(&models.IssueRecord{})
	if req.ProjectID > 0 {
		query = query.Where("project_id = ?", req.ProjectID)
	}
	if req.ScanID != "" {
		query = query.Where("scan_id = ?", req.ScanID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", vocab.NormalizeIssueStatus(req.Status))
	}
	if req.Severity != "" {
		query = query.Where("severity = ?", vocab.NormalizeSeverity(req.Severity))
	}
	if req.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *req.AssignedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []models.IssueRecord
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("updated_at DESC").Offset(offset).Limit(req.PageSize).Find(&items).Error; err != nil {
		return nil, err
	}
	return &IssueListResponse{Total: total, Page: req.Page, PageSize: req.PageSize, Items: items}, nil
}

// Assign assigns an open issue, which moves it to pending. Pending and
// in-progress issues are reassigned without a status change.
func (w *IssueWorkflow) Assign(ctx context.Context, issueID string, actor Actor, req AssignRequest) (*models.IssueRecord, error) {
	var assignee *models.User
	return w.mutate(ctx, issueID, actor, ActionAssign, mutation{
		guard: func(i *models.IssueRecord) error {
			if req.UserID == 0 {
				return guardf("an assignee is required")
			}
			switch i.Status {
			case vocab.IssueOpen, vocab.IssuePending, vocab.IssueInProgress:
			default:
				return guardf("cannot assign an issue that is %s", i.Status)
			}
			u, err := w.user(ctx, req.UserID)
			if err != nil {
				return err
			}
			assignee = u
			return nil
		},
		apply: func(i *models.IssueRecord) {
			uid := req.UserID
			i.AssignedTo = &uid
			i.DueDate = req.DueDate
			if req.Annotation != "" {
				i.Annotation = req.Annotation
			}
			if i.Status == vocab.IssueOpen {
				i.Status = vocab.IssuePending
			}
		},
		remote: func(ctx context.Context, i models.IssueRecord) (*analysis.Issue, error) {
			return w.backend.AssignIssue(ctx, i.IssueID, userKey(i.AssignedTo), i.DueDate)
		},
		assigneeName: func() string { return assignee.DisplayName() },
	})
}

// Confirm moves a pending issue to in-progress.
func (w *IssueWorkflow) Confirm(ctx context.Context, issueID string, actor Actor, annotation string) (*models.IssueRecord, error) {
	return w.transition(ctx, issueID, actor, ActionConfirm, vocab.IssueInProgress, annotation,
		func(i *models.IssueRecord) error {
			if i.AssignedTo == nil {
				return guardf("must assign before progressing")
			}
			if i.Status != vocab.IssuePending {
				return guardf("only a pending issue can be confirmed, issue is %s", i.Status)
			}
			return nil
		})
}

// Complete moves an in-progress issue to done.
func (w *IssueWorkflow) Complete(ctx context.Context, issueID string, actor Actor, annotation string) (*models.IssueRecord, error) {
	return w.transition(ctx, issueID, actor, ActionComplete, vocab.IssueDone, annotation,
		func(i *models.IssueRecord) error {
			if i.AssignedTo == nil {
				return guardf("must assign before progressing")
			}
			if i.Status != vocab.IssueInProgress {
				return guardf("only an in-progress issue can be completed, issue is %s", i.Status)
			}
			return nil
		})
}

// Reject closes an open, pending or in-progress issue.
func (w *IssueWorkflow) Reject(ctx context.Context, issueID string, actor Actor, annotation string) (*models.IssueRecord, error) {
	return w.transition(ctx, issueID, actor, ActionReject, vocab.IssueReject, annotation,
		func(i *models.IssueRecord) error {
			switch i.Status {
			case vocab.IssueOpen, vocab.IssuePending, vocab.IssueInProgress:
				return nil
			}
			return guardf("cannot reject an issue that is %s", i.Status)
		})
}

// Reopen moves a rejected issue back to open. Reopening a done issue is an
// override reserved for admins. The assignee is kept.
func (w *IssueWorkflow) Reopen(ctx context.Context, issueID string, actor Actor, annotation string) (*models.IssueRecord, error) {
	return w.transition(ctx, issueID, actor, ActionReopen, vocab.IssueOpen, annotation,
		func(i *models.IssueRecord) error {
			switch i.Status {
			case vocab.IssueReject:
				return nil
			case vocab.IssueDone:
				if actor.IsAdmin() {
					return nil
				}
				return guardf("only an admin can reopen a done issue")
			}
			return guardf("cannot reopen an issue that is %s", i.Status)
		})
}

// ChangeStatus moves an issue to target through the matching action.
func (w *IssueWorkflow) ChangeStatus(ctx context.Context, issueID string, actor Actor, target vocab.IssueStatus, annotation string) (*models.IssueRecord, error) {
	switch target {
	case vocab.IssueInProgress:
		return w.Confirm(ctx, issueID, actor, annotation)
	case vocab.IssueDone:
		return w.Complete(ctx, issueID, actor, annotation)
	case vocab.IssueReject:
		return w.Reject(ctx, issueID, actor, annotation)
	case vocab.IssueOpen:
		return w.Reopen(ctx, issueID, actor, annotation)
	case vocab.IssuePending:
		issue, err := w.Get(ctx, issueID)
		if err != nil {
			return nil, err
		}
		if issue.AssignedTo == nil || issue.Status != vocab.IssueOpen {
			return nil, guardf("an issue becomes pending by assigning it")
		}
		return w.Assign(ctx, issueID, actor, AssignRequest{UserID: *issue.AssignedTo, DueDate: issue.DueDate, Annotation: annotation})
	}
	return nil, guardf("unknown status %q", target)
}

func (w *IssueWorkflow) transition(ctx context.Context, issueID string, actor Actor, action string, target vocab.IssueStatus, annotation string, guard func(*models.IssueRecord) error) (*models.IssueRecord, error) {
	return w.mutate(ctx, issueID, actor, action, mutation{
		guard: guard,
		apply: func(i *models.IssueRecord) {
			i.Status = target
			if annotation != "" {
				i.Annotation = annotation
			}
		},
		remote: func(ctx context.Context, i models.IssueRecord) (*analysis.Issue, error) {
			return w.backend.ChangeIssueStatus(ctx, i.IssueID, userKey(i.AssignedTo), analysis.AssignmentUpdate{
				Status:     vocab.BackendIssueStatus(target),
				Annotation: i.Annotation,
				AssignedTo: userKey(i.AssignedTo),
				DueDate:    analysis.FormatDueDate(i.DueDate),
			})
		},
	})
}

type mutation struct {
	guard        func(*models.IssueRecord) error
	apply        func(*models.IssueRecord)
	remote       func(context.Context, models.IssueRecord) (*analysis.Issue, error)
	assigneeName func() string
}

func (w *IssueWorkflow) mutate(ctx context.Context, issueID string, actor Actor, action string, m mutation) (*models.IssueRecord, error) {
	mu := w.lock(issueID)
	mu.Lock()
	defer mu.Unlock()

	issue, err := w.Get(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if err := m.guard(issue); err != nil {
		return nil, err
	}

	// Rollback must land even when the caller's context is gone.
	persistCtx := context.WithoutCancel(ctx)

	_, err = WithOptimisticUpdate(ctx, Optimistic[issueFields, *analysis.Issue]{
		Capture: func() issueFields { return captureFields(issue) },
		Apply: func() error {
			m.apply(issue)
			return w.saveFields(persistCtx, issue)
		},
		Remote: func(ctx context.Context) (*analysis.Issue, error) {
			remote, err := m.remote(ctx, *issue)
			if err != nil {
				return nil, networkFailure(err)
			}
			return remote, nil
		},
		Restore: func(prev issueFields) error {
			prev.restore(issue)
			return w.saveFields(persistCtx, issue)
		},
		Reconcile: func(remote *analysis.Issue) error {
			if applyAuthoritative(issue, remote) {
				return w.saveFields(persistCtx, issue)
			}
			return nil
		},
	})
	if err != nil {
		logger.Component("workflow").Warn().Err(err).Str("issue_id", issueID).Str("action", action).Msg("issue update failed")
		return nil, err
	}

	name := ""
	if m.assigneeName != nil {
		name = m.assigneeName()
	} else if issue.AssignedTo != nil {
		if u, err := w.user(persistCtx, *issue.AssignedTo); err == nil {
			name = u.DisplayName()
		}
	}
	entry := models.AssignmentRecord{
		IssueID:        issue.IssueID,
		Action:         action,
		AssignedTo:     issue.AssignedTo,
		AssignedToName: name,
		DueDate:        issue.DueDate,
		Annotation:     issue.Annotation,
		Status:         issue.Status,
		Severity:       issue.Severity,
		Message:        issue.Message,
		ActorID:        actor.ID,
	}
	if err := w.db.WithContext(persistCtx).Create(&entry).Error; err != nil {
		logger.Component("workflow").Error().Err(err).Str("issue_id", issueID).Msg("failed to append assignment history")
	}

	actorID := actor.ID
	WriteLog(LogEntry{
		Module:  "issue",
		Action:  action,
		Target:  "issue:" + issue.IssueID,
		Message: fmt.Sprintf("issue %s is now %s", issue.IssueID, issue.Status),
		UserID:  &actorID,
		Extra:   entry,
	})

	w.listenMu.RLock()
	for _, fn := range w.onChange {
		fn(*issue)
	}
	w.listenMu.RUnlock()

	return issue, nil
}

func (w *IssueWorkflow) saveFields(ctx context.Context, issue *models.IssueRecord) error {
	return w.db.WithContext(ctx).Model(issue).
		Select("status", "assigned_to", "due_date", "annotation", "updated_at").
		Updates(issue).Error
}

// applyAuthoritative lets values from the backend response replace the local
// guess. It reports whether anything changed.
func applyAuthoritative(issue *models.IssueRecord, remote *analysis.Issue) bool {
	if remote == nil {
		return false
	}
	changed := false
	// Unrecognized backend statuses keep the local value.
	if s, ok := vocab.ParseIssueStatus(remote.Status); ok {
		if s != issue.Status {
			issue.Status = s
			changed = true
		}
	}
	if remote.AssignedTo != "" {
		if id, err := strconv.ParseUint(remote.AssignedTo, 10, 64); err == nil {
			uid := uint(id)
			if issue.AssignedTo == nil || *issue.AssignedTo != uid {
				issue.AssignedTo = &uid
				changed = true
			}
		}
	}
	if remote.DueDate != "" {
		if due, err := time.Parse("2006-01-02", remote.DueDate); err == nil {
			if issue.DueDate == nil || issue.DueDate.Format("2006-01-02") != remote.DueDate {
				issue.DueDate = &due
				changed = true
			}
		}
	}
	return changed
}

func (w *IssueWorkflow) user(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := w.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, guardf("user %d does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func userKey(id *uint) string {
	if id == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*id), 10)
}

// History returns the local assignment history of a user, newest first.
func (w *IssueWorkflow) History(ctx context.Context, userID uint) ([]models.AssignmentRecord, error) {
	var items []models.AssignmentRecord
	err := w.db.WithContext(ctx).Where("assigned_to = ?", userID).Order("created_at DESC, id DESC").Find(&items).Error
	return items, err
}

// IssueHistory returns every history entry of one issue, oldest first.
func (w *IssueWorkflow) IssueHistory(ctx context.Context, issueID string) ([]models.AssignmentRecord, error) {
	var items []models.AssignmentRecord
	err := w.db.WithContext(ctx).Where("issue_id = ?", issueID).Order("created_at ASC, id ASC").Find(&items).Error
	return items, err
}

// RemoteHistory reads a user's assignment history from the backend.
func (w *IssueWorkflow) RemoteHistory(ctx context.Context, userID uint) ([]analysis.Assignment, error) {
	items, err := w.backend.AssignmentHistory(ctx, userKey(&userID))
	if err != nil {
		return nil, networkFailure(err)
	}
	return items, nil
}

// ImportIssues mirrors backend issues locally. New issues take the backend's
// status and assignee; existing issues only refresh their descriptive fields
// so local workflow state is kept.
func (w *IssueWorkflow) ImportIssues(ctx context.Context, projectID uint, scanID string, issues []analysis.Issue) (int, error) {
	records := make([]models.IssueRecord, 0, len(issues))
	for _, in := range issues {
		if in.ID == "" {
			continue
		}
		rec := models.IssueRecord{
			IssueID:   in.ID,
			ProjectID: projectID,
			ScanID:    scanID,
			IssueKey:  in.Key,
			Type:      vocab.NormalizeIssueType(in.Type),
			Severity:  vocab.NormalizeSeverity(in.Severity),
			Component: in.Component,
			Line:      in.Line,
			Message:   in.Message,
			Status:    vocab.NormalizeIssueStatus(in.Status),
		}
		if in.ScanID != "" {
			rec.ScanID = in.ScanID
		}
		if id, err := strconv.ParseUint(in.AssignedTo, 10, 64); err == nil && id > 0 {
			uid := uint(id)
			rec.AssignedTo = &uid
		}
		if due, err := time.Parse("2006-01-02", in.DueDate); err == nil {
			rec.DueDate = &due
		}
		// A backend issue claiming progress without an assignee is mirrored as pending.
		if rec.AssignedTo == nil && (rec.Status == vocab.IssueInProgress || rec.Status == vocab.IssueDone) {
			rec.Status = vocab.IssuePending
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return 0, nil
	}

	err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "issue_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"scan_id", "issue_key", "type", "severity", "component", "line", "message", "updated_at"}),
	}).Create(&records).Error
	if err != nil {
		return 0, err
	}

	logger.Component("workflow").Info().Uint("project_id", projectID).Int("count", len(records)).Msg("issues imported")
	return len(records), nil
}
