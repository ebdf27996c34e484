package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_CreatesSchema(t *testing.T) {
	database, err := Init(t.TempDir())
	require.NoError(t, err)
	defer database.Close()

	version, err := GetUserVersion(database)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	for _, table := range []string{"runs", "usage_records", "call_dumps"} {
		var name string
		err := database.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestInit_Idempotent(t *testing.T) {
	dir := t.TempDir()

	first, err := Init(dir)
	require.NoError(t, err)
	first.Close()

	second, err := Init(dir)
	require.NoError(t, err)
	defer second.Close()

	version, err := GetUserVersion(second)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}
