package models

import (
	"path/filepath"
	"testing"

	"github.com/huangang/scanboard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "data.db?_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("data.db"))
	assert.Equal(t, "data.db?cache=shared", sqliteDSN("data.db?cache=shared"))
	assert.Equal(t, ":memory:", sqliteDSN(":memory:"))
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN("file::memory:?cache=shared"))
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, logLevel("SILENT"))
	assert.Equal(t, logger.Info, logLevel("info"))
	assert.Equal(t, logger.Warn, logLevel(""))
}

func TestOpen(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")

	db, err := Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "scanboard.db"),
		MaxOpenConns: 4,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	assert.Equal(t, 4, sqlDB.Stats().MaxOpenConnections)

	var mode string
	require.NoError(t, db.Raw("PRAGMA journal_mode").Scan(&mode).Error)
	assert.Equal(t, "wal", mode)

	require.NoError(t, db.Create(&User{Username: "ana", Password: "x", Role: RoleUser}).Error)
	var n int64
	require.NoError(t, db.Model(&User{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}
