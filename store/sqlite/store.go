// Package sqlite opens a subledger store on SQLite using the pure-Go
// glebarez driver.
package sqlite

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xraph/subledger/store/gormstore"
)

// MemoryDSN is a private in-memory database.
const MemoryDSN = "file::memory:"

// Open opens the SQLite database at dsn. SQLite allows one writer at a time,
// so the pool is limited to a single connection.
func Open(dsn string) (*gormstore.Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("subledger/sqlite: open %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("subledger/sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return gormstore.New(db), nil
}
