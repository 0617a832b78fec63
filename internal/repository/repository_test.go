package repository

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mediavault/mediavault/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database with the schema applied.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.EncryptionKey{},
		&models.QueueJob{},
		&models.MediaFile{},
	)
	require.NoError(t, err)

	return db
}
