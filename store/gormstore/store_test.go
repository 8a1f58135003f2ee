package gormstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/subledger/store"
	"github.com/xraph/subledger/store/sqlite"
	"github.com/xraph/subledger/store/storetest"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := sqlite.Open(sqlite.MemoryDSN)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(context.Background()))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStoreFile(t *testing.T) {
	dsn := t.TempDir() + "/subledger.db"

	s, err := sqlite.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	// Migrating twice is a no-op.
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
}
