package handlers

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/vocab"
)

var startTime = time.Now()

// Metrics returns Prometheus-compatible text format metrics.
// GET /metrics
func (h *HealthHandler) Metrics(c *gin.Context) {
	var b strings.Builder

	// -- Runtime metrics --
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeGauge(&b, "scanboard_uptime_seconds", "Time since server start in seconds", time.Since(startTime).Seconds())
	writeGauge(&b, "scanboard_goroutines", "Number of active goroutines", float64(runtime.NumGoroutine()))
	writeGauge(&b, "scanboard_memory_alloc_bytes", "Current heap allocation in bytes", float64(m.Alloc))
	writeGauge(&b, "scanboard_memory_sys_bytes", "Total memory obtained from OS in bytes", float64(m.Sys))
	writeGauge(&b, "scanboard_gc_runs_total", "Total number of GC runs", float64(m.NumGC))

	// -- Database metrics --
	if sqlDB, err := h.db.DB(); err == nil {
		stats := sqlDB.Stats()
		writeGauge(&b, "scanboard_db_open_connections", "Number of open DB connections", float64(stats.OpenConnections))
		writeGauge(&b, "scanboard_db_in_use_connections", "Number of in-use DB connections", float64(stats.InUse))
		writeGauge(&b, "scanboard_db_idle_connections", "Number of idle DB connections", float64(stats.Idle))
	}

	writeGauge(&b, "scanboard_sse_active_clients", "Number of active SSE connections", float64(h.hub.ClientCount()))
	writeGauge(&b, "scanboard_scans_live", "Scans running on this instance", float64(h.orch.LiveCount()))

	queueAsync := 0.0
	if h.queue != nil && h.queue.IsAsync() {
		queueAsync = 1.0
	}
	writeGauge(&b, "scanboard_queue_async_enabled", "Whether async queue (Redis) is enabled (1=yes, 0=no)", queueAsync)

	// -- Scan metrics --
	for _, status := range []vocab.ScanStatus{vocab.ScanScanning, vocab.ScanActive, vocab.ScanError, vocab.ScanCancelled} {
		var n int64
		h.db.Model(&models.ScanRecord{}).Where("status = ?", status).Count(&n)
		writeGauge(&b, "scanboard_scans_"+strings.ToLower(string(status)), "Number of scans with status "+string(status), float64(n))
	}

	// -- Issue metrics --
	for _, status := range []vocab.IssueStatus{vocab.IssueOpen, vocab.IssuePending, vocab.IssueInProgress, vocab.IssueDone, vocab.IssueReject} {
		var n int64
		h.db.Model(&models.IssueRecord{}).Where("status = ?", status).Count(&n)
		name := strings.ReplaceAll(string(status), "-", "_")
		writeGauge(&b, "scanboard_issues_"+name, "Number of issues in state "+string(status), float64(n))
	}

	var projectCount, userCount int64
	h.db.Model(&models.Project{}).Count(&projectCount)
	h.db.Model(&models.User{}).Where("is_active = ?", true).Count(&userCount)
	writeGauge(&b, "scanboard_projects_total", "Total number of active projects", float64(projectCount))
	writeGauge(&b, "scanboard_users_active", "Number of active users", float64(userCount))

	c.Data(200, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
}

func writeGauge(b *strings.Builder, name, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s gauge\n", name)
	fmt.Fprintf(b, "%s %g\n\n", name, value)
}
