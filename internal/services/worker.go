package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/huangang/scanboard/internal/config"
	"github.com/huangang/scanboard/pkg/logger"
)

// Worker consumes scan:reconcile tasks from Redis.
type Worker struct {
	server  *asynq.Server
	process ReconcileFunc

	mu      sync.Mutex
	running bool
}

// NewWorker returns nil when Redis is disabled.
func NewWorker(cfg *config.RedisConfig, process ReconcileFunc) *Worker {
	if !cfg.Enabled {
		return nil
	}

	log := logger.Component("worker")
	server := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{QueueReconcile: 1},
		// Backend outages usually last longer than a few seconds.
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return time.Duration(n+1) * 30 * time.Second
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			log.Warn().Err(err).Str("task_type", task.Type()).Int("retry", retried).Msg("reconcile task failed")
		}),
	})

	return &Worker{server: server, process: process}
}

func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeReconcile, w.handleReconcile)
	if err := w.server.Start(mux); err != nil {
		return fmt.Errorf("start reconcile worker: %w", err)
	}

	w.running = true
	logger.Component("worker").Info().Str("queue", QueueReconcile).Msg("reconcile worker started")
	return nil
}

// Stop waits for in-flight tasks and then returns.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.server.Shutdown()
	w.running = false
	logger.Component("worker").Info().Msg("reconcile worker stopped")
}

// handleReconcile decodes the payload and runs the reconcile function. Tasks
// that can never succeed are not retried.
func (w *Worker) handleReconcile(ctx context.Context, t *asynq.Task) error {
	var task ReconcileTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("decode reconcile task: %v: %w", err, asynq.SkipRetry)
	}
	if w.process == nil {
		return fmt.Errorf("no reconcile function: %w", asynq.SkipRetry)
	}

	err := w.process(ctx, &task)
	if errors.Is(err, ErrScanNotFound) {
		logger.Component("worker").Debug().Str("scan_id", task.ScanID).Msg("scan vanished before reconcile")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}
