package models

import (
	"testing"
	"time"

	"github.com/huangang/scanboard/internal/vocab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func TestScanRecord_Timestamp(t *testing.T) {
	started := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	r := ScanRecord{StartedAt: started, Status: vocab.ScanScanning}
	assert.Equal(t, started, r.Timestamp())
	assert.False(t, r.IsTerminal())

	done := started.Add(time.Minute)
	r.CompletedAt = &done
	r.Status = vocab.ScanActive
	assert.Equal(t, done, r.Timestamp())
	assert.True(t, r.IsTerminal())
}

func TestProject_HasCredentials(t *testing.T) {
	assert.False(t, (&Project{}).HasCredentials())
	assert.True(t, (&Project{ScanToken: "t"}).HasCredentials())
	assert.False(t, (&Project{ScanUsername: "u"}).HasCredentials())
	assert.True(t, (&Project{ScanUsername: "u", ScanPassword: "p"}).HasCredentials())
}

func TestMigrate_PersistsRecords(t *testing.T) {
	db := openTestDB(t)

	project := Project{Name: "web", RepoURL: "https://git/web", ProjectKey: "web", ScanToken: "tok"}
	require.NoError(t, db.Create(&project).Error)

	grade := vocab.GradeB
	scan := ScanRecord{
		ScanID:      "s-1",
		ProjectID:   project.ID,
		Status:      vocab.ScanActive,
		StartedAt:   time.Now(),
		QualityGate: &grade,
		GateStatus:  "OK",
	}
	require.NoError(t, db.Create(&scan).Error)

	var loaded ScanRecord
	require.NoError(t, db.Preload("Project").Where("scan_id = ?", "s-1").First(&loaded).Error)
	assert.Equal(t, vocab.ScanActive, loaded.Status)
	require.NotNil(t, loaded.QualityGate)
	assert.Equal(t, vocab.GradeB, *loaded.QualityGate)
	require.NotNil(t, loaded.Project)
	assert.True(t, loaded.Project.HasScanAuth)
}
