package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/groupchoice/pkg/errors"
)

var (
	// ErrSurveyNotFound indicates the requested survey does not exist.
	ErrSurveyNotFound = apperrors.New("SURVEY_NOT_FOUND", "Survey not found", http.StatusNotFound)
	// ErrSurveyClosed rejects votes on inactive or expired surveys.
	ErrSurveyClosed = apperrors.New("SURVEY_CLOSED", "Survey is not accepting responses", http.StatusConflict)
	// ErrInvalidToken covers unknown and expired invitation tokens alike.
	ErrInvalidToken = apperrors.New("INVALID_TOKEN", "Invalid or expired invitation token", http.StatusBadRequest)
	// ErrTokenAlreadyUsed rejects a second vote with the same invitation.
	ErrTokenAlreadyUsed = apperrors.New("TOKEN_ALREADY_USED", "This invitation has already been used", http.StatusConflict)
	// ErrAlreadyResponded rejects a second vote by the same identity.
	ErrAlreadyResponded = apperrors.New("ALREADY_RESPONDED", "You have already responded to this survey", http.StatusConflict)
	// ErrAuthenticationRequired is returned when neither a session nor a token identifies the voter.
	ErrAuthenticationRequired = apperrors.New("AUTHENTICATION_REQUIRED", "Sign in or use your invitation link to respond", http.StatusUnauthorized)
	// ErrPermissionDenied guards survey management and private results.
	ErrPermissionDenied = apperrors.New("PERMISSION_DENIED", "You do not have permission to access this survey", http.StatusForbidden)
	// ErrAnonymousSurvey refuses individual response listings on anonymous surveys.
	ErrAnonymousSurvey = apperrors.New("ANONYMOUS_SURVEY", "Individual responses are not available for anonymous surveys", http.StatusBadRequest)
	// ErrMethodImmutable refuses changing the voting method after creation.
	ErrMethodImmutable = apperrors.New("METHOD_IMMUTABLE", "The voting method cannot be changed", http.StatusBadRequest)
	// ErrChoicesLocked refuses replacing choices once ballots reference them.
	ErrChoicesLocked = apperrors.New("CHOICES_LOCKED", "Choices cannot be replaced after responses have been recorded", http.StatusConflict)

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrUserExists signals a username or email collision on registration.
	ErrUserExists = apperrors.New("USER_EXISTS", "Username or email already exists", http.StatusConflict)

	// ErrGroupNotFound indicates the requested distribution group does not exist.
	ErrGroupNotFound = apperrors.New("GROUP_NOT_FOUND", "Distribution group not found", http.StatusNotFound)
	// ErrGroupNameTaken signals a duplicate group name for the same owner.
	ErrGroupNameTaken = apperrors.New("GROUP_NAME_TAKEN", "You already have a group with this name", http.StatusConflict)
	// ErrGroupMemberExists signals the email is already in the group.
	ErrGroupMemberExists = apperrors.New("GROUP_MEMBER_EXISTS", "Email is already a member of this group", http.StatusConflict)
	// ErrGroupMemberNotFound indicates the requested membership does not exist.
	ErrGroupMemberNotFound = apperrors.New("GROUP_MEMBER_NOT_FOUND", "Email is not a member of this group", http.StatusNotFound)

	// ErrInvitationNotFound indicates the requested invitation does not exist.
	ErrInvitationNotFound = apperrors.New("INVITATION_NOT_FOUND", "Invitation not found", http.StatusNotFound)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "duplicate entry")
}
