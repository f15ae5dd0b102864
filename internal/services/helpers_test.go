package services

import (
	"testing"

	"github.com/huangang/scanboard/internal/models"
	"github.com/huangang/scanboard/internal/utils"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB returns a migrated in-memory database. A single connection keeps
// every goroutine on the same memory database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username, role string) *models.User {
	t.Helper()
	hash, err := utils.HashPassword("secret-" + username)
	require.NoError(t, err)
	u := &models.User{Username: username, Password: hash, Nickname: username + " N.", Role: role, IsActive: true}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedProject(t *testing.T, db *gorm.DB, key, token string) *models.Project {
	t.Helper()
	p := &models.Project{
		Name:        key,
		RepoURL:     "https://git.example.com/" + key + ".git",
		ProjectKey:  key,
		Branch:      "main",
		ProjectType: "Spring Boot",
		ScanToken:   token,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}
