package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSQLiteDBCreatesSchema(t *testing.T) {
	dir := t.TempDir()
	database, err := NewSQLiteDB(dir)
	require.NoError(t, err)
	defer database.Close()

	var version string
	err = database.Conn().QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, "2", version)

	for _, table := range []string{"plans", "daily_schedules", "sessions", "reflections"} {
		var name string
		err := database.Conn().QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	database, err := NewSQLiteDB(dir)
	require.NoError(t, err)
	_, err = database.Conn().Exec(
		`INSERT INTO reflections (owner_id, day, completion_score, updated_at) VALUES ('u1', '2026-03-15', 80, 0)`)
	require.NoError(t, err)
	require.NoError(t, database.Close())

	reopened, err := NewSQLiteDB(dir)
	require.NoError(t, err)
	defer reopened.Close()

	var score int
	err = reopened.Conn().QueryRow(
		`SELECT completion_score FROM reflections WHERE owner_id = 'u1' AND day = '2026-03-15'`).Scan(&score)
	require.NoError(t, err)
	require.Equal(t, 80, score)

	require.Equal(t, filepath.Join(dir, "timecoach.db"), reopened.path)
}

func TestRejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()

	database, err := NewSQLiteDB(dir)
	require.NoError(t, err)
	_, err = database.Conn().Exec(`UPDATE schema_meta SET value = '99' WHERE key = 'schema_version'`)
	require.NoError(t, err)
	require.NoError(t, database.Close())

	_, err = NewSQLiteDB(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "newer than runtime version")
}
