package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/pkg/crypto"
	apperrors "github.com/charlesng35/groupchoice/pkg/errors"
)

var (
	// ErrInvalidCredentials is returned when the supplied identity/password pair is invalid.
	ErrInvalidCredentials = apperrors.ErrInvalidCredentials
	// ErrAccountLocked signals that the user has exceeded the permitted failed attempts.
	ErrAccountLocked = apperrors.New("ACCOUNT_LOCKED", "Too many failed attempts, try again later", http.StatusLocked)
	// ErrAccountDisabled signals that the user has been deactivated.
	ErrAccountDisabled = apperrors.New("ACCOUNT_DISABLED", "Account is disabled", http.StatusForbidden)
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
)

// LocalConfig defines tunable behaviour for password authentication.
type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// Credentials contains what a caller presents to sign in.
type Credentials struct {
	Identifier string
	Password   string
	IPAddress  string
}

// LocalAuthenticator implements username or email plus password sign-in with
// account lockout controls.
type LocalAuthenticator struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

// NewLocalAuthenticator builds an authenticator with defaults for unset limits.
func NewLocalAuthenticator(db *gorm.DB, cfg LocalConfig) (*LocalAuthenticator, error) {
	if db == nil {
		return nil, errors.New("local auth: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LocalAuthenticator{
		db:        db,
		clock:     clock,
		threshold: threshold,
		duration:  duration,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the matching user.
func (a *LocalAuthenticator) Authenticate(ctx context.Context, input Credentials) (*models.User, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	db := a.db.WithContext(ctx)

	identity := strings.ToLower(strings.TrimSpace(input.Identifier))
	if identity == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err := db.Where("LOWER(username) = ? OR email = ?", identity, identity).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("local auth: query user: %w", err)
	}

	now := a.clock()

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	}

	// An expired lock starts a fresh attempt window.
	if user.LockedUntil != nil {
		user.LockedUntil = nil
		user.FailedAttempts = 0
		if err := db.Model(&user).Updates(map[string]any{
			"locked_until":    nil,
			"failed_attempts": 0,
		}).Error; err != nil {
			return nil, fmt.Errorf("local auth: reset lock state: %w", err)
		}
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		return nil, a.handleFailedAttempt(db, &user, now)
	}

	user.FailedAttempts = 0
	user.LastLoginAt = &now
	user.LastLoginIP = strings.TrimSpace(input.IPAddress)

	if err := db.Model(&user).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   user.LastLoginIP,
	}).Error; err != nil {
		return nil, fmt.Errorf("local auth: update user: %w", err)
	}

	return &user, nil
}

func (a *LocalAuthenticator) handleFailedAttempt(db *gorm.DB, user *models.User, now time.Time) error {
	user.FailedAttempts++
	updates := map[string]any{"failed_attempts": user.FailedAttempts}

	locked := user.FailedAttempts >= a.threshold
	if locked {
		lockUntil := now.Add(a.duration)
		user.LockedUntil = &lockUntil
		updates["locked_until"] = lockUntil
	}

	if err := db.Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("local auth: update failed attempts: %w", err)
	}

	if locked {
		return ErrAccountLocked
	}
	return ErrInvalidCredentials
}
