// Package repo implements the persistence layer backed by GORM. The only
// stored entity is the submission key used to make application submissions
// safe to retry; applications themselves live in the spreadsheet.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/club-apply-backend/internal/domain"
)

// ErrNotFound is returned when a record does not exist or has expired.
var ErrNotFound = gorm.ErrRecordNotFound

var pragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA busy_timeout=5000;",
}

// OpenSQLite opens (or creates) the submission-key database at path, applies
// the PRAGMAs and installs the OpenTelemetry tracing plugin. ":memory:" and
// "file:" DSNs are passed through untouched.
func OpenSQLite(path string) (*gorm.DB, error) {
	inMemory := path == ":memory:" || strings.HasPrefix(path, "file:")
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); !inMemory && dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}

	if !inMemory {
		for _, p := range pragmas {
			if err := db.Exec(p).Error; err != nil {
				return nil, fmt.Errorf("repo: %s: %w", strings.TrimSuffix(p, ";"), err)
			}
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates the schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.SubmissionKey{})
}
