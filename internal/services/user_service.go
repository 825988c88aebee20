package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/pkg/crypto"
	apperrors "github.com/charlesng35/groupchoice/pkg/errors"
)

const minPasswordLength = 8

// RegisterUserInput describes the fields accepted when creating an account.
type RegisterUserInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// UserService manages accounts and serves as the directory for email lookups.
type UserService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, auditService *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{
		db:           db,
		auditService: auditService,
	}, nil
}

// Register provisions a new user with a hashed password and the base permission level.
// Group memberships already recorded under the same email are linked to the new account.
func (s *UserService) Register(ctx context.Context, input RegisterUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	email := models.NormalizeEmail(input.Email)
	if username == "" {
		return nil, apperrors.NewBadRequest("username is required")
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Username:        username,
		Email:           email,
		Password:        hashed,
		FirstName:       strings.TrimSpace(input.FirstName),
		LastName:        strings.TrimSpace(input.LastName),
		PermissionLevel: models.PermissionUser,
		IsActive:        true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Model(&models.GroupMember{}).
			Where("email = ? AND user_id IS NULL", email).
			Update("user_id", user.ID).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &user.ID,
		Username: user.Username,
		Action:   AuditUserRegister,
		Resource: user.ID,
		Result:   "success",
	})

	return user, nil
}

// GetByID loads a user by identifier.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", strings.TrimSpace(id)).Error
	if isNotFound(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// FindByEmail returns the active user registered under email, or nil when none is.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return lookupUserByEmail(ensureContext(ctx), s.db, email)
}

// lookupUserByEmail is the directory lookup used when linking group members
// and invitations to accounts.
func lookupUserByEmail(ctx context.Context, db *gorm.DB, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}

	var user models.User
	err := db.WithContext(ctx).
		Where("email = ? AND is_active = ?", email, true).
		Take(&user).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	return &user, nil
}

// loadRequester resolves an authenticated caller. An empty id means anonymous
// and yields nil; an unknown or deactivated account is treated the same way.
func loadRequester(ctx context.Context, db *gorm.DB, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}

	var user models.User
	err := db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load requester: %w", err)
	}
	if !user.IsActive {
		return nil, nil
	}
	return &user, nil
}
