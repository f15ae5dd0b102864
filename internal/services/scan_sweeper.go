package services

import (
	"context"
	"time"

	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/vocab"
	"github.com/huangang/scanboard/pkg/logger"
	"gorm.io/gorm"
)

// ScanSweeper finds scans stuck in Scanning and queues them for
// reconciliation against the backend.
type ScanSweeper struct {
	db         *gorm.DB
	queue      TaskQueue
	staleAfter time.Duration
}

func NewScanSweeper(db *gorm.DB, queue TaskQueue, staleAfter time.Duration) *ScanSweeper {
	return &ScanSweeper{db: db, queue: queue, staleAfter: staleAfter}
}

// Sweep enqueues every scan that started more than staleAfter ago and is
// still Scanning. It returns how many tasks were queued.
func (s *ScanSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.staleAfter)

	var stale []models.ScanRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", vocab.ScanScanning, cutoff).
		Order("started_at ASC").
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, rec := range stale {
		task := &ReconcileTask{ScanID: rec.ScanID, ProjectID: rec.ProjectID, RequestedAt: time.Now()}
		if err := s.queue.Enqueue(task); err != nil {
			logger.Warn().Err(err).Str("scan_id", rec.ScanID).Msg("failed to queue reconcile task")
			continue
		}
		queued++
	}
	if queued > 0 {
		logger.Info().Int("count", queued).Msg("stale scans queued for reconciliation")
	}
	return queued, nil
}

// ReconcileProcessor adapts the orchestrator to the task queue.
func ReconcileProcessor(orch *ScanOrchestrator) ReconcileFunc {
	return func(ctx context.Context, task *ReconcileTask) error {
		return orch.Reconcile(ctx, task.ScanID)
	}
}
