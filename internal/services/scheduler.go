package services

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Scheduler runs cron jobs that must fire on one instance only. Each run
// claims a JobLock row for its period before doing any work.
type Scheduler struct {
	db         *gorm.DB
	cron       *cron.Cron
	instanceID string

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewScheduler(db *gorm.DB) *Scheduler {
	host, _ := os.Hostname()
	return &Scheduler{
		db:         db,
		cron:       cron.New(),
		instanceID: fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		entries:    make(map[string]cron.EntryID),
	}
}

// Add registers fn under name. ttl is how long a claimed period stays locked
// and should be shorter than the cron interval.
func (s *Scheduler) Add(name, spec string, ttl time.Duration, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
	}
	id, err := s.cron.AddFunc(spec, func() {
		if !s.TryLock(name, time.Now(), ttl) {
			logger.Debug().Str("job", name).Msg("job claimed by another instance")
			return
		}
		fn()
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%s): %w", name, spec, err)
	}
	s.entries[name] = id
	logger.Infof("[Scheduler] %s scheduled (cron: %s)", name, spec)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Infof("[Scheduler] started as %s", s.instanceID)
}

// Stop waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// TryLock claims the period of name that contains at. It returns false when
// another instance already holds it.
func (s *Scheduler) TryLock(name string, at time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = time.Minute
	}
	now := time.Now()
	s.db.Where("job = ? AND expires_at < ?", name, now).Delete(&models.JobLock{})

	lock := models.JobLock{
		Job:       name,
		Period:    at.UTC().Truncate(ttl).Format(time.RFC3339),
		Holder:    s.instanceID,
		ClaimedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return s.db.Create(&lock).Error == nil
}
