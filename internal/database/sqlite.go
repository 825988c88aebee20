package database

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sqliteMemoryDSN = "file::memory:?cache=shared&_foreign_keys=1"

func openSQLite(cfg Config) (*gorm.DB, error) {
	dsn, err := sqliteDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(cfg))
	if err != nil {
		return nil, err
	}

	// The DSN flag only covers connections opened by the driver itself.
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// sqliteDSN resolves the connection string for cfg. An explicit DSN wins;
// otherwise a file path gets WAL journaling and a busy timeout, with
// cfg.Options appended as extra driver parameters.
func sqliteDSN(cfg Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		return dsn, nil
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" || strings.EqualFold(path, ":memory:") {
		return sqliteMemoryDSN, nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	params := []string{"_foreign_keys=1", "_journal_mode=WAL", "_busy_timeout=5000"}
	for _, key := range sortedKeys(cfg.Options) {
		params = append(params, url.QueryEscape(key)+"="+url.QueryEscape(cfg.Options[key]))
	}

	return "file:" + filepath.ToSlash(path) + "?" + strings.Join(params, "&"), nil
}
