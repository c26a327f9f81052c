package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Path: MemoryPath}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	require.NoError(t, Migrate(ctx, db, testLogger()))
	require.NoError(t, Migrate(ctx, db, testLogger()))

	for _, table := range []string{"tracks", "track_points", "track_segments", "loop_runs"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
	}

	var applied int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&applied))
	require.Equal(t, 1, applied)
}

func TestLoadMigrationsOrdersAndSkips(t *testing.T) {
	source := fstest.MapFS{
		"m/002_second.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"m/001_first.sql":  {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"m/readme.md":      {Data: []byte("ignored")},
		"m/bad.sql":        {Data: []byte("ignored")},
	}

	mm := NewMigrationManagerFS(openMemory(t), source, "m", testLogger())
	migrations, err := mm.LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, 1, migrations[0].Version)
	require.Equal(t, "002_second", migrations[1].Name)

	require.NoError(t, mm.RunMigrations(context.Background()))
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	_, err := db.ExecContext(ctx, "CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = Transaction(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n))
	require.Zero(t, n)

	require.NoError(t, Transaction(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (2)")
		return err
	}))
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n))
	require.Equal(t, 1, n)
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tracks.db")
	db, err := Open(context.Background(), Config{Path: path}, testLogger())
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)
}
