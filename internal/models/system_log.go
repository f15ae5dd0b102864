package models

import "time"

// SystemLog is one audit or operational entry. Target names the scan, issue
// or project an entry is about, e.g. "scan:3f2c..." or "issue:AX-12".
type SystemLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Level     string    `gorm:"size:20;index" json:"level"`
	Module    string    `gorm:"size:100;index" json:"module"`
	Action    string    `gorm:"size:200;index" json:"action"`
	Target    string    `gorm:"size:150;index" json:"target"`
	Message   string    `gorm:"type:text" json:"message"`
	Status    int       `json:"status,omitempty"`
	UserID    *uint     `gorm:"index" json:"user_id"`
	IP        string    `gorm:"size:50" json:"ip"`
	UserAgent string    `gorm:"size:500" json:"user_agent"`
	Extra     string    `gorm:"type:text" json:"extra"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SystemLog) TableName() string { return "system_logs" }
