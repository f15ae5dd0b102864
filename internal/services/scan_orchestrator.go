package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/scanboard/internal/analysis"
	"github.com/huangang/scanboard/internal/config"
	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/vocab"
	"github.com/huangang/scanboard/pkg/logger"
	"gorm.io/gorm"
)

// ScanBackend is the part of the analysis API the orchestrator drives.
type ScanBackend interface {
	StartScan(ctx context.Context, req analysis.StartScanRequest) (*analysis.Scan, error)
	GetScan(ctx context.Context, id string) (*analysis.Scan, error)
	CancelScan(ctx context.Context, id string) (*analysis.Scan, error)
	ScanLog(ctx context.Context, id string) (*analysis.ScanLog, error)
}

// PushStream is an open completion-event subscription.
type PushStream interface {
	Events() <-chan analysis.CompletionEvent
	Err() error
	Close()
}

// PushSource opens one PushStream per repository key.
type PushSource interface {
	Subscribe(ctx context.Context, repositoryKey string) (PushStream, error)
}

type clientPushSource struct {
	client *analysis.Client
}

// NewPushSource adapts the analysis client's SSE subscription.
func NewPushSource(client *analysis.Client) PushSource {
	return clientPushSource{client: client}
}

func (s clientPushSource) Subscribe(ctx context.Context, key string) (PushStream, error) {
	return s.client.Subscribe(ctx, key)
}

// ScanCredentials are supplied by the caller when the project has none stored.
type ScanCredentials struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *ScanCredentials) usable() bool {
	return c != nil && (c.Token != "" || (c.Username != "" && c.Password != ""))
}

// ScanTransition is emitted on every status change of a scan.
type ScanTransition struct {
	Record   models.ScanRecord
	Previous vocab.ScanStatus
	Source   string
	Err      error
}

// ScanProgress is emitted on every estimator tick.
type ScanProgress struct {
	ScanID    string
	ProjectID uint
	Progress  int
}

// ScanOrchestrator runs at most one scan per project and reconciles the
// progress estimator, the start response and push notifications into one
// terminal status.
type ScanOrchestrator struct {
	db       *gorm.DB
	backend  ScanBackend
	push     PushSource
	step     int
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	byProject map[uint]*ScanHandle
	byScan    map[string]*ScanHandle

	listenMu   sync.RWMutex
	onTransit  []func(ScanTransition)
	onProgress []func(ScanProgress)
}

func NewScanOrchestrator(db *gorm.DB, backend ScanBackend, push PushSource, cfg config.ScanConfig) *ScanOrchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	step, interval := cfg.ProgressStep, cfg.ProgressInterval
	if step <= 0 {
		step = 20
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &ScanOrchestrator{
		db:        db,
		backend:   backend,
		push:      push,
		step:      step,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
		byProject: make(map[uint]*ScanHandle),
		byScan:    make(map[string]*ScanHandle),
	}
}

// OnTransition registers fn for every status change. fn runs on the goroutine
// that made the change and must not block.
func (o *ScanOrchestrator) OnTransition(fn func(ScanTransition)) {
	o.listenMu.Lock()
	defer o.listenMu.Unlock()
	o.onTransit = append(o.onTransit, fn)
}

// OnProgress registers fn for estimator ticks. fn must not block.
func (o *ScanOrchestrator) OnProgress(fn func(ScanProgress)) {
	o.listenMu.Lock()
	defer o.listenMu.Unlock()
	o.onProgress = append(o.onProgress, fn)
}

func (o *ScanOrchestrator) emitTransition(t ScanTransition) {
	o.listenMu.RLock()
	defer o.listenMu.RUnlock()
	for _, fn := range o.onTransit {
		fn(t)
	}
}

func (o *ScanOrchestrator) emitProgress(p ScanProgress) {
	o.listenMu.RLock()
	defer o.listenMu.RUnlock()
	for _, fn := range o.onProgress {
		fn(p)
	}
}

// StartScan starts a scan of projectID. creds may be nil when the project has
// stored credentials. The returned handle is live; use Wait for the outcome.
func (o *ScanOrchestrator) StartScan(ctx context.Context, projectID uint, creds *ScanCredentials, actorID uint) (*ScanHandle, error) {
	var project models.Project
	if err := o.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	req, ok := buildStartRequest(&project, creds)
	if !ok {
		return nil, ErrMissingCredentials
	}

	o.mu.Lock()
	if _, live := o.byProject[projectID]; live {
		o.mu.Unlock()
		return nil, ErrScanInProgress
	}

	record := models.ScanRecord{
		ScanID:      uuid.New().String(),
		ProjectID:   project.ID,
		ProjectType: project.ProjectType,
		Branch:      project.Branch,
		Status:      vocab.ScanScanning,
		Progress:    0,
		StartedAt:   time.Now(),
		CreatedBy:   actorID,
	}
	if err := o.db.Create(&record).Error; err != nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("create scan record: %w", err)
	}

	hctx, cancel := context.WithCancel(o.ctx)
	h := &ScanHandle{
		orch:   o,
		ctx:    hctx,
		cancel: cancel,
		record: record,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	o.byProject[projectID] = h
	o.byScan[record.ScanID] = h
	o.mu.Unlock()

	log := logger.Component("scan")
	log.Info().Str("scan_id", record.ScanID).Uint("project_id", projectID).Msg("scan started")
	o.emitTransition(ScanTransition{Record: record, Previous: "", Source: "start"})

	// The start request goes out once the push channel is open or has
	// failed, so a fast completion event is not missed.
	pushReady := make(chan struct{})
	if o.push != nil && project.ProjectKey != "" {
		go h.openPush(project.ProjectKey, pushReady)
	} else {
		close(pushReady)
	}

	go h.runEstimator(o.step, o.interval)
	go h.sendStart(req, pushReady)

	return h, nil
}

func buildStartRequest(p *models.Project, creds *ScanCredentials) (analysis.StartScanRequest, bool) {
	token, username, password := p.ScanToken, p.ScanUsername, p.ScanPassword
	if creds.usable() {
		token, username, password = creds.Token, creds.Username, creds.Password
	} else if !p.HasCredentials() {
		return analysis.StartScanRequest{}, false
	}

	if token != "" {
		return analysis.StartScanRequest{
			RepoURL:    p.RepoURL,
			ProjectKey: p.ProjectKey,
			BranchName: p.Branch,
			Token:      token,
		}, true
	}
	return analysis.StartScanRequest{
		ProjectID: p.ProjectKey,
		Username:  username,
		Password:  password,
	}, true
}

// Handle returns the live handle of a project, if any.
func (o *ScanOrchestrator) Handle(projectID uint) (*ScanHandle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.byProject[projectID]
	return h, ok
}

// LiveCount is the number of scans currently running on this instance.
func (o *ScanOrchestrator) LiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.byScan)
}

func (o *ScanOrchestrator) handleByScan(scanID string) (*ScanHandle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.byScan[scanID]
	return h, ok
}

func (o *ScanOrchestrator) detach(h *ScanHandle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.byProject[h.record.ProjectID] == h {
		delete(o.byProject, h.record.ProjectID)
	}
	delete(o.byScan, h.record.ScanID)
}

// Progress reports the estimator value of a scan. Finished scans report the
// value they ended with.
func (o *ScanOrchestrator) Progress(ctx context.Context, scanID string) (int, vocab.ScanStatus, error) {
	if h, ok := o.handleByScan(scanID); ok {
		rec := h.Record()
		return rec.Progress, rec.Status, nil
	}
	rec, err := o.findRecord(ctx, scanID)
	if err != nil {
		return 0, "", err
	}
	return rec.Progress, rec.Status, nil
}

// Get returns the live record of a scan or, once finished, the stored one.
func (o *ScanOrchestrator) Get(ctx context.Context, scanID string) (*models.ScanRecord, error) {
	if h, ok := o.handleByScan(scanID); ok {
		rec := h.Record()
		return &rec, nil
	}
	return o.findRecord(ctx, scanID)
}

type ScanListRequest struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	ProjectID uint   `form:"project_id"`
	Status    string `form:"status"`
}

type ScanListResponse struct {
	Total int64               `json:"total"`
	Items []models.ScanRecord `json:"items"`
}

// List pages through stored scans, newest first. Live scans show the
// estimator progress rather than the stored value.
func (o *ScanOrchestrator) List(ctx context.Context, req *ScanListRequest) (*ScanListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 10
	}

	query := o.db.WithContext(ctx).Model(&models.ScanRecord{})
	if req.ProjectID > 0 {
		query = query.Where("project_id = ?", req.ProjectID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", vocab.NormalizeScanStatus(req.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []models.ScanRecord
	err := query.Preload("Project").
		Order("started_at DESC, id DESC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	for i := range items {
		if h, ok := o.handleByScan(items[i].ScanID); ok {
			live := h.Record()
			items[i].Progress = live.Progress
			items[i].RemoteScanID = live.RemoteScanID
		}
	}
	return &ScanListResponse{Total: total, Items: items}, nil
}

func (o *ScanOrchestrator) findRecord(ctx context.Context, scanID string) (*models.ScanRecord, error) {
	var rec models.ScanRecord
	err := o.db.WithContext(ctx).Where("scan_id = ? OR remote_scan_id = ?", scanID, scanID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CancelScan asks the backend to cancel a live scan and finalizes it as
// Cancelled. A scan that already finished is returned unchanged.
func (o *ScanOrchestrator) CancelScan(ctx context.Context, scanID string) (*models.ScanRecord, error) {
	h, ok := o.handleByScan(scanID)
	if !ok {
		return o.findRecord(ctx, scanID)
	}

	rec := h.Record()
	var remote *analysis.Scan
	if rec.RemoteScanID != "" {
		var err error
		remote, err = o.backend.CancelScan(ctx, rec.RemoteScanID)
		if err != nil {
			return nil, networkFailure(err)
		}
	} else {
		logger.Component("scan").Warn().Str("scan_id", scanID).Msg("cancelling scan before the backend acknowledged it")
	}

	h.finalize(models.FinalizedByCancel, nil, func(r *models.ScanRecord) {
		applyRemote(r, remote)
		r.Status = vocab.ScanCancelled
	})
	final := h.Record()
	return &final, nil
}

// ScanLog proxies the backend log of a scan.
func (o *ScanOrchestrator) ScanLog(ctx context.Context, scanID string) (*analysis.ScanLog, error) {
	rec, err := o.findRecord(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if rec.RemoteScanID == "" {
		return &analysis.ScanLog{ScanID: rec.ScanID}, nil
	}
	log, err := o.backend.ScanLog(ctx, rec.RemoteScanID)
	if err != nil {
		return nil, networkFailure(err)
	}
	return log, nil
}

// Reconcile asks the backend for the status of a scan still marked Scanning
// and finalizes it when the backend reports a terminal state. It covers scans
// whose push event was lost and scans orphaned by a restart.
func (o *ScanOrchestrator) Reconcile(ctx context.Context, scanID string) error {
	rec, err := o.findRecord(ctx, scanID)
	if err != nil {
		return err
	}
	if rec.IsTerminal() {
		return nil
	}
	if rec.RemoteScanID == "" {
		if _, live := o.handleByScan(rec.ScanID); live {
			return nil
		}
		return o.finalizeOrphan(ctx, rec, nil, vocab.ScanError, "scan was never acknowledged by the analysis backend")
	}

	remote, err := o.backend.GetScan(ctx, rec.RemoteScanID)
	if err != nil {
		return networkFailure(err)
	}
	status := vocab.NormalizeScanStatus(remote.Status)
	if remote.Status == "" || !status.IsTerminal() {
		return nil
	}

	if h, ok := o.handleByScan(rec.ScanID); ok {
		h.finalize(models.FinalizedByReconcile, nil, func(r *models.ScanRecord) {
			applyRemote(r, remote)
			r.Status = status
			r.Progress = 100
		})
		return nil
	}
	return o.finalizeOrphan(ctx, rec, remote, status, "")
}

// finalizeOrphan closes a Scanning record that has no live handle. The
// status guard in the update keeps it exactly-once across instances.
func (o *ScanOrchestrator) finalizeOrphan(ctx context.Context, rec *models.ScanRecord, remote *analysis.Scan, status vocab.ScanStatus, message string) error {
	prev := rec.Status
	now := time.Now()
	applyRemote(rec, remote)
	rec.Status = status
	rec.CompletedAt = &now
	rec.FinalizedBy = models.FinalizedByReconcile
	if message != "" {
		rec.ErrorMessage = message
	}
	if status == vocab.ScanActive {
		rec.Progress = 100
	}

	res := o.db.WithContext(ctx).Model(&models.ScanRecord{}).
		Where("id = ? AND status = ?", rec.ID, vocab.ScanScanning).
		Select("*").Omit("id", "created_at").
		Updates(rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	logger.Component("scan").Info().Str("scan_id", rec.ScanID).Str("status", string(status)).Msg("orphaned scan reconciled")
	o.emitTransition(ScanTransition{Record: *rec, Previous: prev, Source: models.FinalizedByReconcile})
	return nil
}

// Shutdown stops every live handle without finalizing it. The records stay
// Scanning and are picked up by Reconcile later.
func (o *ScanOrchestrator) Shutdown() {
	o.mu.Lock()
	handles := make([]*ScanHandle, 0, len(o.byScan))
	for _, h := range o.byScan {
		handles = append(handles, h)
	}
	o.mu.Unlock()

	for _, h := range handles {
		h.abandon()
	}
	o.cancel()
}

// ScanHandle is one live scan.
type ScanHandle struct {
	orch   *ScanOrchestrator
	ctx    context.Context
	cancel context.CancelFunc

	// finalized is set exactly once by whichever path ends the scan first.
	finalized atomic.Bool

	mu          sync.Mutex
	record      models.ScanRecord
	startResult *analysis.Scan
	sub         PushStream
	err         error

	stop chan struct{}
	done chan struct{}
}

// Record returns a copy of the current record.
func (h *ScanHandle) Record() models.ScanRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record
}

// Done is closed once the scan reached a terminal state.
func (h *ScanHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the scan is finished and returns the final record and
// the start error, if the start request failed.
func (h *ScanHandle) Wait(ctx context.Context) (models.ScanRecord, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.record, h.err
	case <-ctx.Done():
		return h.Record(), ctx.Err()
	}
}

// openPush subscribes to completion events for key and watches them until
// the scan ends. ready is closed once the subscription is attached or failed.
func (h *ScanHandle) openPush(key string, ready chan<- struct{}) {
	sub, err := h.orch.push.Subscribe(h.ctx, key)
	if err != nil {
		close(ready)
		if !h.finalized.Load() {
			logger.Component("scan").Warn().Err(err).Str("scan_id", h.Record().ScanID).Msg("push channel unavailable, relying on estimator")
		}
		return
	}

	h.mu.Lock()
	if h.finalized.Load() {
		h.mu.Unlock()
		close(ready)
		sub.Close()
		return
	}
	h.sub = sub
	h.mu.Unlock()
	close(ready)

	h.watchPush(sub)
}

func (h *ScanHandle) runEstimator(step int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}

		h.mu.Lock()
		if h.finalized.Load() {
			h.mu.Unlock()
			return
		}
		h.record.Progress = min(h.record.Progress+step, 100)
		h.orch.emitProgress(ScanProgress{ScanID: h.record.ScanID, ProjectID: h.record.ProjectID, Progress: h.record.Progress})
		full := h.record.Progress >= 100
		ready := full && h.startResult != nil
		h.mu.Unlock()

		if ready {
			h.finalizeFromStart()
			return
		}
		if full {
			return
		}
	}
}

func (h *ScanHandle) sendStart(req analysis.StartScanRequest, pushReady <-chan struct{}) {
	select {
	case <-pushReady:
	case <-h.stop:
		return
	}
	if h.finalized.Load() {
		return
	}

	scan, err := h.orch.backend.StartScan(h.ctx, req)
	if err != nil {
		failure := networkFailure(err)
		if h.finalize(models.FinalizedByStartFailure, failure, func(r *models.ScanRecord) {
			r.Status = vocab.ScanError
			r.Progress = 0
			r.ErrorMessage = err.Error()
		}) {
			logger.Component("scan").Error().Err(err).Str("scan_id", h.record.ScanID).Msg("scan start failed")
		}
		return
	}

	h.mu.Lock()
	if h.finalized.Load() {
		h.mu.Unlock()
		return
	}
	if scan.ID != "" {
		h.record.RemoteScanID = scan.ID
	}
	rec := h.record
	if scan.Status != "" && vocab.NormalizeScanStatus(scan.Status).IsTerminal() {
		h.startResult = scan
	}
	ready := h.startResult != nil && h.record.Progress >= 100
	h.mu.Unlock()

	if rec.RemoteScanID != "" {
		if err := h.orch.db.Model(&models.ScanRecord{}).Where("id = ?", rec.ID).
			Update("remote_scan_id", rec.RemoteScanID).Error; err != nil {
			logger.Component("scan").Warn().Err(err).Str("scan_id", rec.ScanID).Msg("failed to store remote scan id")
		}
	}
	if ready {
		h.finalizeFromStart()
	}
}

func (h *ScanHandle) finalizeFromStart() {
	h.mu.Lock()
	scan := h.startResult
	h.mu.Unlock()
	h.finalize(models.FinalizedByStartResponse, nil, func(r *models.ScanRecord) {
		applyRemote(r, scan)
		r.Status = vocab.NormalizeScanStatus(scan.Status)
		r.Progress = 100
	})
}

func (h *ScanHandle) watchPush(sub PushStream) {
	for ev := range sub.Events() {
		if h.finalized.Load() {
			return
		}
		status, ok := h.matchPush(ev)
		if !ok {
			continue
		}
		scan, _ := ev.Scan()
		h.finalize(models.FinalizedByPush, nil, func(r *models.ScanRecord) {
			applyRemote(r, scan)
			r.Status = status
			r.Progress = 100
		})
		return
	}
	if err := sub.Err(); err != nil && !h.finalized.Load() {
		logger.Component("scan").Warn().Err(err).Str("scan_id", h.Record().ScanID).Msg("push channel dropped, relying on estimator")
	}
}

// matchPush decides whether ev completes this scan and with which status.
// A bare string is the status itself. An object completes the scan unless it
// names another scan; without a status it means Active. Other JSON values
// (numbers, booleans, arrays, null) carry no status and are ignored.
func (h *ScanHandle) matchPush(ev analysis.CompletionEvent) (vocab.ScanStatus, bool) {
	var status vocab.ScanStatus
	if text, ok := ev.Text(); ok {
		status = vocab.NormalizeScanStatus(text)
	} else if _, ok := ev.Object(); ok {
		id := ev.Field("scans_id", "scan_id", "scanId", "id")
		if id != "" {
			rec := h.Record()
			if id != rec.ScanID && id != rec.RemoteScanID {
				return "", false
			}
		}
		raw := ev.Field("status", "scanStatus", "scan_status")
		if raw == "" {
			status = vocab.ScanActive
		} else {
			status = vocab.NormalizeScanStatus(raw)
		}
	} else {
		return "", false
	}
	if status == vocab.ScanScanning {
		return "", false
	}
	return status, true
}

// finalize ends the scan if no other path has. It reports whether this call
// won.
func (h *ScanHandle) finalize(source string, startErr error, mutate func(*models.ScanRecord)) bool {
	h.mu.Lock()
	if !h.finalized.CompareAndSwap(false, true) {
		h.mu.Unlock()
		return false
	}
	prev := h.record.Status
	mutate(&h.record)
	if !h.record.Status.IsTerminal() {
		h.record.Status = vocab.ScanError
	}
	now := time.Now()
	h.record.CompletedAt = &now
	h.record.FinalizedBy = source
	h.err = startErr
	rec := h.record
	sub := h.sub
	close(h.stop)
	h.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	h.cancel()
	h.orch.detach(h)

	if err := h.orch.db.Save(&rec).Error; err != nil {
		logger.Component("scan").Error().Err(err).Str("scan_id", rec.ScanID).Msg("failed to persist scan result")
	}

	logger.Component("scan").Info().
		Str("scan_id", rec.ScanID).
		Uint("project_id", rec.ProjectID).
		Str("status", string(rec.Status)).
		Str("source", source).
		Msg("scan finished")
	h.orch.emitTransition(ScanTransition{Record: rec, Previous: prev, Source: source, Err: startErr})

	close(h.done)
	return true
}

var errOrchestratorStopped = errors.New("scan orchestrator stopped")

func (h *ScanHandle) abandon() {
	h.mu.Lock()
	if !h.finalized.CompareAndSwap(false, true) {
		h.mu.Unlock()
		return
	}
	h.err = errOrchestratorStopped
	sub := h.sub
	close(h.stop)
	h.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	h.cancel()
	h.orch.detach(h)
	close(h.done)
}

// applyRemote copies gate results and metrics from a backend payload.
func applyRemote(r *models.ScanRecord, s *analysis.Scan) {
	if s == nil {
		return
	}
	if r.RemoteScanID == "" && s.ID != "" && s.ID != r.ScanID {
		r.RemoteScanID = s.ID
	}
	if s.QualityGate != "" {
		g := vocab.Grade(s.QualityGate)
		r.QualityGate = &g
	}
	if s.GateStatus != "" {
		r.GateStatus = s.GateStatus
	}
	r.ReliabilityGate = s.ReliabilityGate
	r.SecurityGate = s.SecurityGate
	r.MaintainabilityGate = s.MaintainabilityGate
	r.SecurityReviewGate = s.SecurityReviewGate
	r.Bugs = s.Metrics.Bugs
	r.Vulnerabilities = s.Metrics.Vulnerabilities
	r.CodeSmells = s.Metrics.CodeSmells
	r.Coverage = s.Metrics.Coverage
	r.Duplications = s.Metrics.Duplications
	if s.ProjectType != "" && r.ProjectType == "" {
		r.ProjectType = s.ProjectType
	}
	if s.LogFilePath != "" {
		r.LogFilePath = s.LogFilePath
	}
	if s.ErrorMessage != "" {
		r.ErrorMessage = s.ErrorMessage
	}
}

// RecordFromRemote builds a detached record from a backend scan. projectID
// identifies the project the scan belongs to for per-project grouping.
func RecordFromRemote(s analysis.Scan, projectID uint) models.ScanRecord {
	r := models.ScanRecord{
		ScanID:      s.ID,
		ProjectID:   projectID,
		Branch:      s.Branch,
		Status:      vocab.NormalizeScanStatus(s.Status),
		CompletedAt: s.CompletedAt,
	}
	if s.StartedAt != nil {
		r.StartedAt = *s.StartedAt
	}
	applyRemote(&r, &s)
	return r
}
