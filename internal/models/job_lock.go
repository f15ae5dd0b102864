package models

import "time"

// JobLock claims one period of a cron job, such as the stale-scan sweep, for
// a single server instance. (Job, Period) is unique.
type JobLock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Job       string    `gorm:"uniqueIndex:idx_job_period;size:100;not null" json:"job"`
	Period    string    `gorm:"uniqueIndex:idx_job_period;size:40;not null" json:"period"`
	Holder    string    `gorm:"size:100" json:"holder"`
	ClaimedAt time.Time `json:"claimed_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

func (JobLock) TableName() string { return "job_locks" }
