package gormstore

import (
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// dryRun opens a gorm handle that renders SQL without touching a database.
func dryRun(t *testing.T, dialector gorm.Dialector) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(dialector, &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func renderedSelect(s *Store) string {
	stmt := s.lockRows(s.db).Where("id = ?", "acct_x").Take(&accountModel{}).Statement
	return stmt.SQL.String()
}

func TestLockRowsPostgres(t *testing.T) {
	db := dryRun(t, postgres.New(postgres.Config{DSN: "host=localhost user=subledger dbname=subledger sslmode=disable"}))

	inTx := &Store{db: db, inTx: true, closed: new(atomic.Bool)}
	assert.Contains(t, renderedSelect(inTx), "FOR UPDATE")

	outside := &Store{db: db, closed: new(atomic.Bool)}
	assert.NotContains(t, renderedSelect(outside), "FOR UPDATE")
}

func TestLockRowsSQLite(t *testing.T) {
	db := dryRun(t, sqlite.Open(":memory:"))

	inTx := &Store{db: db, inTx: true, closed: new(atomic.Bool)}
	assert.NotContains(t, renderedSelect(inTx), "FOR UPDATE")
}
