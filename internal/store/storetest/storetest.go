// Package storetest opens migrated SQLite stores for service tests.
package storetest

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attendance-backend/internal/db"
	"attendance-backend/internal/model"
	"attendance-backend/internal/store"
)

// NewSQLite returns a store backed by a private in-memory database named after the test.
// It holds a single connection, so statements from concurrent callers run one at a time.
func NewSQLite(t testing.TB) (store.Store, *gorm.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	return open(t, "file:"+name+"?mode=memory&cache=shared", 1)
}

// NewSQLiteFile returns a store backed by a WAL database file in the test's temp dir, with
// conns connections so concurrent callers race inside SQLite. Writers wait on the busy
// timeout and transactions take the write lock up front.
func NewSQLiteFile(t testing.TB, conns int) (store.Store, *gorm.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attendance.db")
	return open(t, "file:"+path+"?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate", conns)
}

func open(t testing.TB, dsn string, conns int) (store.Store, *gorm.DB) {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return store.NewGormStore(gormDB), gormDB
}

// SeedUsers inserts users into the directory tables.
func SeedUsers(t testing.TB, gormDB *gorm.DB, users ...model.User) {
	t.Helper()
	if len(users) == 0 {
		return
	}
	require.NoError(t, gormDB.Create(&users).Error)
}
