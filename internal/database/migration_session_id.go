package database

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/grippy/grippy/pkg/logger"
)

// migrateNodeMetaSessionID adds the session_id column to node_meta for
// databases created before sessions scoped prior-finding lookups.
//
// The migration is idempotent - it checks the current schema first and
// treats a duplicate-column error as success.
func migrateNodeMetaSessionID(db *gorm.DB) error {
	var tableExists bool
	err := db.Raw("SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name='node_meta'").Scan(&tableExists).Error
	if err != nil {
		return fmt.Errorf("failed to check table existence: %w", err)
	}
	if !tableExists {
		// Fresh database, auto-migration creates the full schema
		return nil
	}

	var columnInfo []struct {
		Name string
	}
	if err := db.Raw("PRAGMA table_info(node_meta)").Scan(&columnInfo).Error; err != nil {
		return fmt.Errorf("failed to get table schema: %w", err)
	}
	for _, col := range columnInfo {
		if col.Name == "session_id" {
			return nil
		}
	}

	logger.Info("Adding session_id column to node_meta")
	if err := db.Exec("ALTER TABLE node_meta ADD COLUMN session_id TEXT DEFAULT ''").Error; err != nil {
		if strings.Contains(err.Error(), "duplicate column") {
			return nil
		}
		return fmt.Errorf("failed to add session_id column: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_node_meta_session ON node_meta(session_id)").Error; err != nil {
		logger.Warn("Failed to create session index", zap.Error(err))
	}
	return nil
}
