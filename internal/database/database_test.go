package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestOpen_CreatesSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "graph.db")
	db, err := Open(dbPath)
	require.NoError(t, err)
	defer Close(db)

	assert.True(t, db.Migrator().HasTable(&EdgeRow{}))
	assert.True(t, db.Migrator().HasTable(&NodeMeta{}))
	assert.True(t, db.Migrator().HasColumn(&NodeMeta{}, "session_id"))
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")

	db, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Create(&NodeMeta{
		NodeID: "FILE:abc", NodeType: "FILE", Label: "a.py",
		Properties: "{}", SessionID: "pr-1", CreatedAt: "2026-01-10T12:00:00Z",
	}).Error)
	require.NoError(t, Close(db))

	db, err = Open(dbPath)
	require.NoError(t, err)
	defer Close(db)

	var count int64
	require.NoError(t, db.Model(&NodeMeta{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestMigrateNodeMetaSessionID_LegacySchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")

	driver := &SQLiteDriver{}
	dialector, err := driver.Open(dbPath)
	require.NoError(t, err)
	legacy, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, legacy.Exec(`CREATE TABLE node_meta (
		node_id TEXT PRIMARY KEY,
		node_type TEXT NOT NULL,
		label TEXT NOT NULL,
		properties TEXT NOT NULL DEFAULT '{}',
		review_id TEXT,
		created_at TEXT NOT NULL
	)`).Error)
	require.NoError(t, legacy.Exec(
		"INSERT INTO node_meta (node_id, node_type, label, created_at) VALUES ('FILE:old', 'FILE', 'old.py', 'ts')",
	).Error)
	require.NoError(t, Close(legacy))

	db, err := Open(dbPath)
	require.NoError(t, err)
	defer Close(db)

	var row NodeMeta
	require.NoError(t, db.First(&row, "node_id = ?", "FILE:old").Error)
	assert.Equal(t, "old.py", row.Label)
	assert.Empty(t, row.SessionID)
}
