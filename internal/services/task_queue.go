package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/huangang/scanboard/internal/config"
	"github.com/huangang/scanboard/pkg/logger"
)

const (
	TaskTypeReconcile = "scan:reconcile"
	QueueReconcile    = "reconcile"
)

// ReconcileFunc settles the scan named by a task.
type ReconcileFunc func(context.Context, *ReconcileTask) error

// ReconcileTask asks a worker to settle one scan stuck in Scanning.
type ReconcileTask struct {
	ScanID      string    `json:"scan_id"`
	ProjectID   uint      `json:"project_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// TaskQueue defines the interface for reconcile task processing
type TaskQueue interface {
	// Enqueue adds a task to the queue
	Enqueue(task *ReconcileTask) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// NewTaskQueue picks the Redis-backed queue when enabled and reachable, and
// the in-process queue otherwise.
func NewTaskQueue(cfg *config.RedisConfig) TaskQueue {
	if !cfg.Enabled {
		logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
		return NewSyncQueue()
	}
	queue, err := NewAsyncQueue(cfg)
	if err != nil {
		logger.Infof("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
		return NewSyncQueue()
	}
	logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Addr)
	return queue
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client *asynq.Client
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	// Verify the connection before committing to async mode
	inspector := asynq.NewInspector(opt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

// Enqueue adds a reconcile task to the async queue. One task per scan is kept
// in flight; duplicates are dropped by asynq.
func (q *AsyncQueue) Enqueue(task *ReconcileTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	t := asynq.NewTask(TaskTypeReconcile, payload)
	info, err := q.client.Enqueue(t,
		asynq.Queue(QueueReconcile),
		asynq.MaxRetry(3),
		asynq.TaskID("reconcile:"+task.ScanID),
		asynq.Retention(time.Minute),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Str("scan_id", task.ScanID).Msg("reconcile task enqueued")
	return nil
}

// IsAsync returns true for async queue
func (q *AsyncQueue) IsAsync() bool {
	return true
}

// Close closes the async queue client
func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue implements TaskQueue in-process (no Redis)
type SyncQueue struct {
	mu        sync.RWMutex
	processor ReconcileFunc
	wg        sync.WaitGroup
}

// NewSyncQueue creates a new synchronous queue
func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

// SetProcessor sets the function to process tasks
func (q *SyncQueue) SetProcessor(processor ReconcileFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processor = processor
}

// Enqueue runs the task on its own goroutine
func (q *SyncQueue) Enqueue(task *ReconcileTask) error {
	q.mu.RLock()
	processor := q.processor
	q.mu.RUnlock()

	if processor == nil {
		logger.Warnf("[SyncQueue] no processor set, task for scan %s dropped", task.ScanID)
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := processor(context.Background(), task); err != nil {
			logger.Warn().Err(err).Str("scan_id", task.ScanID).Msg("reconcile task failed")
		}
	}()

	return nil
}

// IsAsync returns false for sync queue
func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close waits for running tasks
func (q *SyncQueue) Close() error {
	q.wg.Wait()
	return nil
}
