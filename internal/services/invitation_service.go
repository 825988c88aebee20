package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/pkg/crypto"
	"github.com/charlesng35/groupchoice/pkg/metrics"
)

const (
	defaultInvitationTTL        = 30 * 24 * time.Hour
	defaultInvitationTokenBytes = 48
)

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationBaseURL configures the frontend URL used to build survey links.
func WithInvitationBaseURL(base string) InvitationOption {
	return func(s *InvitationService) {
		s.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithInvitationTTL sets the lifetime of invitations to surveys without a deadline.
func WithInvitationTTL(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithInvitationTokenSize adjusts the random token length in bytes.
func WithInvitationTokenSize(size int) InvitationOption {
	return func(s *InvitationService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// IssuedInvitation pairs a freshly created invitation with its raw token.
// The token is never stored and cannot be recovered later.
type IssuedInvitation struct {
	Invitation models.Invitation
	Token      string
	User       *models.User
}

// InvitationView is the owner-facing description of an invitation.
type InvitationView struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	IsUsed    bool       `json:"is_used"`
	IsValid   bool       `json:"is_valid"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
	Linked    bool       `json:"linked_user"`
}

// InvitationService issues, looks up and rotates one-time survey invitations.
type InvitationService struct {
	db           *gorm.DB
	auditService *AuditService
	baseURL      string
	ttl          time.Duration
	tokenLength  int
	now          func() time.Time
}

// NewInvitationService constructs an InvitationService with the provided dependencies.
func NewInvitationService(db *gorm.DB, auditService *AuditService, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}

	service := &InvitationService{
		db:           db,
		auditService: auditService,
		ttl:          defaultInvitationTTL,
		tokenLength:  defaultInvitationTokenBytes,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// IssueForSurvey creates an invitation for every member of the survey's group
// that does not have one yet, registered or not. It runs on the caller's
// transaction and returns only the invitations it created.
func (s *InvitationService) IssueForSurvey(ctx context.Context, tx *gorm.DB, survey *models.Survey) ([]IssuedInvitation, error) {
	ctx = ensureContext(ctx)
	if tx == nil {
		tx = s.db
	}
	if survey == nil || survey.GroupID == nil || *survey.GroupID == "" {
		return nil, nil
	}

	recipients, err := groupMembers(ctx, tx, *survey.GroupID)
	if err != nil {
		return nil, fmt.Errorf("invitation service: %w", err)
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	var existing []string
	if err := tx.WithContext(ctx).Model(&models.Invitation{}).
		Where("survey_id = ?", survey.ID).
		Pluck("email", &existing).Error; err != nil {
		return nil, fmt.Errorf("invitation service: load existing: %w", err)
	}
	invited := make(map[string]struct{}, len(existing))
	for _, email := range existing {
		invited[models.NormalizeEmail(email)] = struct{}{}
	}

	expiresAt := s.expiryFor(survey)
	var issued []IssuedInvitation
	for _, r := range recipients {
		email := models.NormalizeEmail(r.Email)
		if _, ok := invited[email]; ok {
			continue
		}

		token, err := crypto.GenerateToken(s.tokenLength)
		if err != nil {
			return nil, fmt.Errorf("invitation service: generate token: %w", err)
		}

		inv := models.Invitation{
			SurveyID:  survey.ID,
			Email:     email,
			TokenHash: crypto.HashToken(token),
			ExpiresAt: expiresAt,
		}
		if r.User != nil {
			inv.UserID = &r.User.ID
		}

		// A concurrent issuer may have inserted the same (survey, email) pair.
		result := tx.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "survey_id"}, {Name: "email"}}, DoNothing: true}).
			Create(&inv)
		if result.Error != nil {
			return nil, fmt.Errorf("invitation service: create invitation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}

		invited[email] = struct{}{}
		issued = append(issued, IssuedInvitation{Invitation: inv, Token: token, User: r.User})
	}

	if len(issued) > 0 {
		metrics.InvitationsIssued.WithLabelValues(string(survey.Method)).Add(float64(len(issued)))
	}
	return issued, nil
}

// SyncExpiry aligns unused invitations with the survey's current deadline.
// Clearing the deadline restarts the default lifetime.
func (s *InvitationService) SyncExpiry(ctx context.Context, tx *gorm.DB, survey *models.Survey) error {
	ctx = ensureContext(ctx)
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).Model(&models.Invitation{}).
		Where("survey_id = ? AND is_used = ?", survey.ID, false).
		Update("expires_at", s.expiryFor(survey)).Error
}

// Lookup finds the invitation for a raw token within a survey. It returns nil
// without error when the token is unknown.
func (s *InvitationService) Lookup(ctx context.Context, db *gorm.DB, surveyID, token string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)
	if db == nil {
		db = s.db
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	var inv models.Invitation
	err := db.WithContext(ctx).
		Where("survey_id = ? AND token_hash = ?", surveyID, crypto.HashToken(token)).
		Take(&inv).Error
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: lookup: %w", err)
	}
	return &inv, nil
}

// ListForSurvey returns every invitation of a survey ordered by email.
func (s *InvitationService) ListForSurvey(ctx context.Context, surveyID string) ([]InvitationView, error) {
	ctx = ensureContext(ctx)

	var invitations []models.Invitation
	if err := s.db.WithContext(ctx).
		Where("survey_id = ?", surveyID).
		Order("email ASC").
		Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("invitation service: list: %w", err)
	}

	now := s.now()
	views := make([]InvitationView, 0, len(invitations))
	for i := range invitations {
		inv := invitations[i]
		views = append(views, InvitationView{
			ID:        inv.ID,
			Email:     inv.Email,
			IsUsed:    inv.IsUsed,
			IsValid:   inv.IsValid(now),
			UsedAt:    inv.UsedAt,
			ExpiresAt: inv.ExpiresAt,
			Linked:    inv.UserID != nil,
		})
	}
	return views, nil
}

// Reissue rotates the token of an unused invitation so a lost email can be resent.
func (s *InvitationService) Reissue(ctx context.Context, survey *models.Survey, invitationID string) (*IssuedInvitation, error) {
	ctx = ensureContext(ctx)

	var inv models.Invitation
	err := s.db.WithContext(ctx).
		Where("id = ? AND survey_id = ?", invitationID, survey.ID).
		Take(&inv).Error
	if isNotFound(err) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: load invitation: %w", err)
	}
	if inv.IsUsed {
		return nil, ErrTokenAlreadyUsed
	}

	token, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, fmt.Errorf("invitation service: generate token: %w", err)
	}

	updates := map[string]any{
		"token_hash": crypto.HashToken(token),
		"expires_at": s.expiryFor(survey),
	}
	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND is_used = ?", inv.ID, false).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("invitation service: rotate token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrTokenAlreadyUsed
	}

	inv.TokenHash = updates["token_hash"].(string)
	inv.ExpiresAt = updates["expires_at"].(time.Time)
	return &IssuedInvitation{Invitation: inv, Token: token}, nil
}

// SurveyURL is the public link to a survey.
func (s *InvitationService) SurveyURL(surveyID string) string {
	return fmt.Sprintf("%s/survey/%s", s.baseURL, surveyID)
}

// InvitationURL is the survey link carrying a one-time token.
func (s *InvitationService) InvitationURL(surveyID, token string) string {
	return s.SurveyURL(surveyID) + "?token=" + url.QueryEscape(token)
}

func (s *InvitationService) expiryFor(survey *models.Survey) time.Time {
	if survey != nil && survey.Deadline != nil {
		return survey.Deadline.UTC()
	}
	return s.now().UTC().Add(s.ttl)
}
