// Package database provides connection management for the review graph
// store. It uses GORM with SQLite for embedded storage, with driver
// abstraction for future extensibility to other relational databases.
package database

import "gorm.io/gorm"

// Driver defines the database driver interface for supporting multiple databases
type Driver interface {
	// Name returns the driver name (e.g., "sqlite", "postgres")
	Name() string

	// Open opens a database connection and returns a GORM dialector
	Open(dsn string) (gorm.Dialector, error)

	// PreMigrationConfig applies database configurations before migration
	// (connection pool, WAL mode, etc.)
	PreMigrationConfig(db *gorm.DB) error

	// PostMigrationConfig applies database configurations after migration
	// (foreign key constraints, etc.)
	PostMigrationConfig(db *gorm.DB) error
}
