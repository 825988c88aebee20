package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/models"
)

func TestRunMigrateOnly(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "groupchoice.db")

	config := "database:\n" +
		"  driver: sqlite\n" +
		"  path: " + filepath.ToSlash(dbPath) + "\n" +
		"auth:\n" +
		"  jwt:\n" +
		"    secret: migrate-only-secret\n" +
		"  admin:\n" +
		"    username: root\n" +
		"    password: changeme\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0o600))

	require.NoError(t, run(context.Background(), []string{"-config", dir, "-migrate-only"}))
	require.FileExists(t, dbPath)

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	var admin models.User
	require.NoError(t, db.Where("username = ?", "root").Take(&admin).Error)
	require.Equal(t, models.PermissionSuper, admin.PermissionLevel)
}

func TestRunRejectsMissingConfigPath(t *testing.T) {
	err := run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "absent")})
	require.ErrorContains(t, err, "does not exist")
}

func TestRunHelp(t *testing.T) {
	require.ErrorIs(t, run(context.Background(), []string{"-h"}), flag.ErrHelp)
}
