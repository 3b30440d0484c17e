package repository

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dayplanner/internal/model"
)

// NewDB opens a SQLite database and migrates the user and schedule tables.
// File databases get WAL mode and a busy timeout because several writers share them.
func NewDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "dayplanner.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}
	dsn = withPragmas(dsn)

	dbLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: dbLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Schedule{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	log.Printf("[info] database ready dsn=%s", strings.Split(dsn, "?")[0])

	return db, nil
}

// withPragmas appends go-sqlite3 connection options unless the DSN already sets them.
func withPragmas(dsn string) string {
	if isMemoryDSN(dsn) {
		return dsn
	}
	var opts []string
	if !strings.Contains(dsn, "_busy_timeout") {
		opts = append(opts, "_busy_timeout=5000")
	}
	if !strings.Contains(dsn, "_journal_mode") {
		opts = append(opts, "_journal_mode=WAL")
	}
	if len(opts) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(opts, "&")
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if isMemoryDSN(dsn) {
		return nil
	}
	// Strip file: prefix if present.
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
