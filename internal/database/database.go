package database

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/grippy/grippy/pkg/errors"
	"github.com/grippy/grippy/pkg/logger"
)

// DefaultDBFile is the graph database filename inside the data directory
const DefaultDBFile = "grippy-graph.db"

// Open opens the edge store at dbPath and runs migrations. Each review run
// opens its own handle; the data directory is created if missing.
func Open(dbPath string) (*gorm.DB, error) {
	logger.Info("Opening graph database", zap.String("path", dbPath))

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBConnection, "failed to create database directory", err)
	}

	driver := &SQLiteDriver{}
	dialector, err := driver.Open(dbPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBConnection, "failed to open database", err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBConnection, "failed to connect to database", err)
	}

	if err := driver.PreMigrationConfig(db); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBConnection, "failed to apply pre-migration config", err)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	if err := driver.PostMigrationConfig(db); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDBConnection, "failed to apply post-migration config", err)
	}

	return db, nil
}

// migrate runs custom migrations followed by GORM auto-migration
func migrate(db *gorm.DB) error {
	// Session column predates auto-migration for old databases, so the
	// custom step runs first to keep existing rows intact.
	if err := migrateNodeMetaSessionID(db); err != nil {
		return errors.Wrap(errors.ErrCodeDBMigration, "failed to migrate node_meta table", err)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return errors.Wrap(errors.ErrCodeDBMigration, "failed to run database migrations", err)
	}
	return nil
}

// Close closes the underlying connection
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
