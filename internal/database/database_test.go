package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angple/kb-engine/internal/config"
	"github.com/angple/kb-engine/internal/migration"
)

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "kb.sqlite3"),
	}, false)
	require.NoError(t, err)
	defer func() { assert.NoError(t, Close(db)) }()

	require.NoError(t, migration.Run(db))
	for _, model := range migration.Models() {
		assert.True(t, db.Migrator().HasTable(model), "%T", model)
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}
