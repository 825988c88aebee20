package database

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.DistributionGroup{},
		&models.GroupMember{},
		&models.Survey{},
		&models.Choice{},
		&models.Invitation{},
		&models.Participation{},
		&models.Response{},
		&models.RankedAnswer{},
		&models.StonesAnswer{},
		&models.AuditLog{},
	)
}

// SeedOptions describe the bootstrap super user created on first start.
type SeedOptions struct {
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

// SeedData creates the bootstrap super user when configured and no account
// with that username exists yet.
func SeedData(db *gorm.DB, opts SeedOptions) error {
	username := strings.TrimSpace(opts.AdminUsername)
	if username == "" || opts.AdminPassword == "" {
		return nil
	}

	var existing models.User
	err := db.Where("username = ?", username).Take(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := crypto.HashPassword(opts.AdminPassword)
	if err != nil {
		return err
	}

	email := opts.AdminEmail
	if strings.TrimSpace(email) == "" {
		email = username + "@localhost"
	}

	return db.Create(&models.User{
		Username:        username,
		Email:           email,
		Password:        hash,
		PermissionLevel: models.PermissionSuper,
		IsActive:        true,
	}).Error
}
