package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/pkg/crypto"
	apperrors "github.com/charlesng35/groupchoice/pkg/errors"
)

// Voting channels.
const (
	ChannelUser  = "user"
	ChannelToken = "token"
)

// VotingIdentity is who casts a ballot and which invitations the vote retires.
type VotingIdentity struct {
	// User is the authenticated caller, set on both channels when signed in.
	User *models.User
	// Invitation is the credential presented on the token channel.
	Invitation *models.Invitation
	// Email is the identity the one-vote rule is enforced on.
	Email string
	// CrossChannel holds unused invitations for the user's own email that the
	// vote consumes even though they were not presented.
	CrossChannel []models.Invitation
}

// Channel reports how the identity was established.
func (v *VotingIdentity) Channel() string {
	if v.Invitation != nil {
		return ChannelToken
	}
	return ChannelUser
}

// Eligibility is the outcome of a pre-submission check.
type Eligibility struct {
	CanRespond bool
	Reason     *apperrors.AppError
}

// EligibilityResolver decides who may cast exactly one vote on a survey.
type EligibilityResolver struct {
	db          *gorm.DB
	invitations *InvitationService
	now         func() time.Time
}

// NewEligibilityResolver constructs a resolver backed by the invitation store.
func NewEligibilityResolver(db *gorm.DB, invitations *InvitationService, clock func() time.Time) (*EligibilityResolver, error) {
	if db == nil {
		return nil, errors.New("eligibility resolver: db is required")
	}
	if invitations == nil {
		return nil, errors.New("eligibility resolver: invitation service is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &EligibilityResolver{db: db, invitations: invitations, now: clock}, nil
}

// CheckEligibility reports whether the requester (or token holder) could vote now.
func (r *EligibilityResolver) CheckEligibility(ctx context.Context, survey *models.Survey, requester *models.User, token string) (Eligibility, error) {
	_, err := r.ResolveVotingIdentity(ctx, r.db, survey, requester, token)
	if err == nil {
		return Eligibility{CanRespond: true}, nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return Eligibility{CanRespond: false, Reason: appErr}, nil
	}
	return Eligibility{}, err
}

// ResolveVotingIdentity applies the eligibility rules in order: the survey must be
// open, a presented token must be a live invitation, otherwise the caller must
// be signed in and not have voted yet. Run it on the submission transaction.
func (r *EligibilityResolver) ResolveVotingIdentity(ctx context.Context, tx *gorm.DB, survey *models.Survey, requester *models.User, token string) (*VotingIdentity, error) {
	ctx = ensureContext(ctx)
	if tx == nil {
		tx = r.db
	}

	now := r.now()
	if !survey.IsOpen(now) {
		return nil, ErrSurveyClosed
	}

	token = strings.TrimSpace(token)
	if token != "" {
		inv, err := r.invitations.Lookup(ctx, tx, survey.ID, token)
		if err != nil {
			return nil, err
		}
		if inv == nil {
			return nil, ErrInvalidToken
		}
		if inv.IsUsed {
			return nil, ErrTokenAlreadyUsed
		}
		if !now.Before(inv.ExpiresAt) {
			return nil, ErrInvalidToken
		}
		return &VotingIdentity{User: requester, Invitation: inv, Email: models.NormalizeEmail(inv.Email)}, nil
	}

	if requester == nil {
		return nil, ErrAuthenticationRequired
	}

	email := models.NormalizeEmail(requester.Email)
	responded, err := hasResponse(ctx, tx, survey.ID, email, requester.ID)
	if err != nil {
		return nil, err
	}
	if responded {
		return nil, ErrAlreadyResponded
	}

	var pending []models.Invitation
	if err := tx.WithContext(ctx).
		Where("survey_id = ? AND email = ? AND is_used = ?", survey.ID, email, false).
		Find(&pending).Error; err != nil {
		return nil, fmt.Errorf("eligibility: load invitations: %w", err)
	}

	return &VotingIdentity{User: requester, Email: email, CrossChannel: pending}, nil
}

// voterKey is the participation key of an email identity within a survey.
// It lives only on participations, never on responses.
func voterKey(surveyID, email string) string {
	return crypto.HashToken("voter:" + surveyID + ":" + models.NormalizeEmail(email))
}

// hasResponse matches participations on the email identity and the account id
// so an address change does not reopen voting.
func hasResponse(ctx context.Context, db *gorm.DB, surveyID, email, userID string) (bool, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Participation{}).
		Where("survey_id = ? AND (voter_key = ? OR user_id = ?)", surveyID, voterKey(surveyID, email), userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("eligibility: check response: %w", err)
	}
	return count > 0, nil
}
