package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/internal/voting"
	apperrors "github.com/charlesng35/groupchoice/pkg/errors"
)

// ChoiceInput describes one survey choice in creation order.
type ChoiceInput struct {
	Text string
	URL  string
}

// CreateSurveyInput captures the fields of a new survey.
type CreateSurveyInput struct {
	Title         string
	Question      string
	Description   string
	Method        string
	GroupID       *string
	IsAnonymous   bool
	ResultsPublic bool
	IsActive      *bool
	Deadline      *time.Time
	Choices       []ChoiceInput
}

// UpdateSurveyInput describes mutable survey fields. Nil leaves a field
// untouched; an empty GroupID detaches the group. A non-nil Choices replaces
// the whole choice set.
type UpdateSurveyInput struct {
	Title         *string
	Question      *string
	Description   *string
	Method        *string
	GroupID       *string
	IsAnonymous   *bool
	ResultsPublic *bool
	IsActive      *bool
	Deadline      *time.Time
	ClearDeadline bool
	Choices       []ChoiceInput
}

// SurveyDetail is a survey as seen by one caller.
type SurveyDetail struct {
	Survey    *models.Survey `json:"survey"`
	ShareURL  string         `json:"share_url"`
	CanManage bool           `json:"can_manage"`
	ResponseStatus
}

// SurveyOption customises SurveyService behaviour.
type SurveyOption func(*SurveyService)

// WithSurveyNotifier attaches the notifier used after commits.
func WithSurveyNotifier(n *Notifier) SurveyOption {
	return func(s *SurveyService) {
		s.notifier = n
	}
}

// WithSurveyClock injects a custom clock primarily for testing.
func WithSurveyClock(clock func() time.Time) SurveyOption {
	return func(s *SurveyService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// SurveyService owns the survey lifecycle and the voting flow built on the
// eligibility resolver, the ballot schemes and the vote recorder.
type SurveyService struct {
	db           *gorm.DB
	auditService *AuditService
	invitations  *InvitationService
	eligibility  *EligibilityResolver
	recorder     *VoteRecorder
	notifier     *Notifier
	now          func() time.Time
}

// NewSurveyService constructs a SurveyService with the provided dependencies.
func NewSurveyService(db *gorm.DB, auditService *AuditService, invitations *InvitationService, opts ...SurveyOption) (*SurveyService, error) {
	if db == nil {
		return nil, errors.New("survey service: db is required")
	}
	if invitations == nil {
		return nil, errors.New("survey service: invitation service is required")
	}

	svc := &SurveyService{
		db:           db,
		auditService: auditService,
		invitations:  invitations,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}

	eligibility, err := NewEligibilityResolver(db, invitations, svc.now)
	if err != nil {
		return nil, err
	}
	svc.eligibility = eligibility
	svc.recorder = NewVoteRecorder(svc.now)
	return svc, nil
}

// Create stores a survey with its choices and invites the target group.
func (s *SurveyService) Create(ctx context.Context, requesterID string, input CreateSurveyInput) (*models.Survey, error) {
	ctx = ensureContext(ctx)

	owner, err := loadRequester(ctx, s.db, requesterID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrAuthenticationRequired
	}

	title := strings.TrimSpace(input.Title)
	question := strings.TrimSpace(input.Question)
	if title == "" {
		return nil, apperrors.NewBadRequest("survey title is required")
	}
	if question == "" {
		return nil, apperrors.NewBadRequest("survey question is required")
	}

	method := voting.Method(strings.TrimSpace(input.Method))
	choices, err := buildChoices(method, input.Choices)
	if err != nil {
		return nil, err
	}

	if err := s.checkDeadline(input.Deadline); err != nil {
		return nil, err
	}

	survey := &models.Survey{
		Title:         title,
		Question:      question,
		Description:   strings.TrimSpace(input.Description),
		Method:        models.SurveyMethod(method),
		OwnerID:       owner.ID,
		IsAnonymous:   input.IsAnonymous,
		ResultsPublic: input.ResultsPublic,
		IsActive:      true,
	}
	if input.IsActive != nil {
		survey.IsActive = *input.IsActive
	}
	if input.Deadline != nil {
		deadline := input.Deadline.UTC()
		survey.Deadline = &deadline
	}
	if groupID := trimmedPtr(input.GroupID); groupID != nil && *groupID != "" {
		if err := s.checkGroupAccess(ctx, owner, *groupID); err != nil {
			return nil, err
		}
		survey.GroupID = groupID
	}

	var issued []IssuedInvitation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(survey).Error; err != nil {
			return fmt.Errorf("create survey: %w", err)
		}
		for i := range choices {
			choices[i].SurveyID = survey.ID
		}
		if err := tx.Create(&choices).Error; err != nil {
			return fmt.Errorf("create choices: %w", err)
		}
		survey.Choices = choices

		var err error
		issued, err = s.invitations.IssueForSurvey(ctx, tx, survey)
		return err
	})
	if err != nil {
		return nil, s.wrapStorage(err, "survey service: create survey")
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &owner.ID,
		Username: owner.Username,
		Action:   AuditSurveyCreate,
		Resource: survey.ID,
		Result:   "success",
		Metadata: map[string]any{
			"method":      survey.Method,
			"choices":     len(choices),
			"invitations": len(issued),
		},
	})

	s.notifier.SurveyPublished(survey, owner, issued)
	return survey, nil
}

// checkDeadline rejects a deadline that is not strictly in the future.
func (s *SurveyService) checkDeadline(deadline *time.Time) error {
	if deadline != nil && !deadline.After(s.now()) {
		return apperrors.NewBadRequest("deadline must be in the future")
	}
	return nil
}

// Update modifies a survey. The voting method is fixed; choices can only be
// replaced while no response references them. Group members without an
// invitation receive one.
func (s *SurveyService) Update(ctx context.Context, requesterID, id string, input UpdateSurveyInput) (*models.Survey, error) {
	ctx = ensureContext(ctx)

	requester, survey, err := s.loadManaged(ctx, requesterID, id)
	if err != nil {
		return nil, err
	}

	if input.Method != nil && strings.TrimSpace(*input.Method) != string(survey.Method) {
		return nil, ErrMethodImmutable
	}
	if !input.ClearDeadline {
		if err := s.checkDeadline(input.Deadline); err != nil {
			return nil, err
		}
	}

	if v := trimmedPtr(input.Title); v != nil {
		if *v == "" {
			return nil, apperrors.NewBadRequest("survey title is required")
		}
		survey.Title = *v
	}
	if v := trimmedPtr(input.Question); v != nil {
		if *v == "" {
			return nil, apperrors.NewBadRequest("survey question is required")
		}
		survey.Question = *v
	}
	if v := trimmedPtr(input.Description); v != nil {
		survey.Description = *v
	}
	if input.IsAnonymous != nil {
		survey.IsAnonymous = *input.IsAnonymous
	}
	if input.ResultsPublic != nil {
		survey.ResultsPublic = *input.ResultsPublic
	}
	if input.IsActive != nil {
		survey.IsActive = *input.IsActive
	}

	deadlineChanged := false
	switch {
	case input.ClearDeadline:
		deadlineChanged = survey.Deadline != nil
		survey.Deadline = nil
	case input.Deadline != nil:
		deadline := input.Deadline.UTC()
		deadlineChanged = survey.Deadline == nil || !survey.Deadline.Equal(deadline)
		survey.Deadline = &deadline
	}

	if groupID := trimmedPtr(input.GroupID); groupID != nil {
		if *groupID == "" {
			survey.GroupID = nil
		} else {
			if err := s.checkGroupAccess(ctx, requester, *groupID); err != nil {
				return nil, err
			}
			survey.GroupID = groupID
		}
		survey.Group = nil
	}

	var replacement []models.Choice
	if input.Choices != nil {
		replacement, err = buildChoices(voting.Method(survey.Method), input.Choices)
		if err != nil {
			return nil, err
		}
	}

	var issued []IssuedInvitation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(survey).Error; err != nil {
			return fmt.Errorf("save survey: %w", err)
		}

		if replacement != nil {
			var responses int64
			if err := tx.Model(&models.Response{}).Where("survey_id = ?", survey.ID).Count(&responses).Error; err != nil {
				return fmt.Errorf("count responses: %w", err)
			}
			if responses > 0 {
				return ErrChoicesLocked
			}
			if err := tx.Where("survey_id = ?", survey.ID).Delete(&models.Choice{}).Error; err != nil {
				return fmt.Errorf("delete choices: %w", err)
			}
			for i := range replacement {
				replacement[i].SurveyID = survey.ID
			}
			if err := tx.Create(&replacement).Error; err != nil {
				return fmt.Errorf("create choices: %w", err)
			}
			survey.Choices = replacement
		}

		if deadlineChanged {
			if err := s.invitations.SyncExpiry(ctx, tx, survey); err != nil {
				return fmt.Errorf("sync invitation expiry: %w", err)
			}
		}

		var err error
		issued, err = s.invitations.IssueForSurvey(ctx, tx, survey)
		return err
	})
	if err != nil {
		return nil, s.wrapStorage(err, "survey service: update survey")
	}

	var pending []string
	if err := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("survey_id = ? AND is_used = ?", survey.ID, false).
		Pluck("email", &pending).Error; err != nil {
		return nil, fmt.Errorf("survey service: load pending invitations: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &requester.ID,
		Username: requester.Username,
		Action:   AuditSurveyUpdate,
		Resource: survey.ID,
		Result:   "success",
		Metadata: map[string]any{
			"choices_replaced": replacement != nil,
			"invitations":      len(issued),
		},
	})

	s.notifier.SurveyUpdated(survey, requester, pending, issued)
	return survey, nil
}

// Get returns a survey with the caller's response status. Callers who cannot
// manage the survey only see it while it is open.
func (s *SurveyService) Get(ctx context.Context, requesterID, token, id string) (*SurveyDetail, error) {
	ctx = ensureContext(ctx)

	requester, err := loadRequester(ctx, s.db, requesterID)
	if err != nil {
		return nil, err
	}
	survey, err := loadSurvey(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	canManage := canManageSurvey(requester, survey)
	if !canManage && !survey.IsOpen(s.now()) {
		return nil, ErrSurveyClosed
	}

	status, err := s.responseStatus(ctx, survey, requester, token)
	if err != nil && !errors.Is(err, ErrInvalidToken) {
		return nil, err
	}

	return &SurveyDetail{
		Survey:         survey,
		ShareURL:       s.invitations.SurveyURL(survey.ID),
		CanManage:      canManage,
		ResponseStatus: status,
	}, nil
}

// ListForUser returns the surveys a user authored or was invited to, newest
// first. Privileged operators see every survey.
func (s *SurveyService) ListForUser(ctx context.Context, requesterID string) ([]models.Survey, error) {
	ctx = ensureContext(ctx)

	requester, err := loadRequester(ctx, s.db, requesterID)
	if err != nil {
		return nil, err
	}
	if requester == nil {
		return nil, ErrAuthenticationRequired
	}

	query := s.db.WithContext(ctx).Model(&models.Survey{}).
		Preload("Choices", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") })

	if !requester.IsPrivileged() {
		email := models.NormalizeEmail(requester.Email)
		memberOf := s.db.Model(&models.GroupMember{}).
			Select("group_id").
			Where("email = ? OR user_id = ?", email, requester.ID)
		invitedTo := s.db.Model(&models.Invitation{}).
			Select("survey_id").
			Where("email = ? OR user_id = ?", email, requester.ID)
		query = query.Where("owner_id = ? OR group_id IN (?) OR id IN (?)", requester.ID, memberOf, invitedTo)
	}

	var surveys []models.Survey
	if err := query.Order("created_at DESC").Find(&surveys).Error; err != nil {
		return nil, fmt.Errorf("survey service: list surveys: %w", err)
	}
	return surveys, nil
}

// Delete removes a survey with its choices, invitations and responses. Only
// the owner or a super user may delete.
func (s *SurveyService) Delete(ctx context.Context, requesterID, id string) error {
	ctx = ensureContext(ctx)

	requester, err := loadRequester(ctx, s.db, requesterID)
	if err != nil {
		return err
	}
	if requester == nil {
		return ErrAuthenticationRequired
	}
	survey, err := loadSurvey(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !survey.IsOwnedBy(requester.ID) && !requester.IsSuper() {
		return ErrPermissionDenied
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		responseIDs := tx.Model(&models.Response{}).Select("id").Where("survey_id = ?", survey.ID)
		if err := tx.Where("response_id IN (?)", responseIDs).Delete(&models.RankedAnswer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("response_id IN (?)", responseIDs).Delete(&models.StonesAnswer{}).Error; err != nil {
			return err
		}
		for _, model := range []any{&models.Response{}, &models.Participation{}, &models.Invitation{}, &models.Choice{}} {
			if err := tx.Where("survey_id = ?", survey.ID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Survey{}, "id = ?", survey.ID).Error
	})
	if err != nil {
		return fmt.Errorf("survey service: delete survey: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &requester.ID,
		Username: requester.Username,
		Action:   AuditSurveyDelete,
		Resource: survey.ID,
		Result:   "success",
		Metadata: map[string]any{"title": survey.Title},
	})
	return nil
}

// ToggleResultsVisibility flips whether anyone may read the survey results.
func (s *SurveyService) ToggleResultsVisibility(ctx context.Context, requesterID, id string) (*models.Survey, error) {
	ctx = ensureContext(ctx)

	requester, survey, err := s.loadManaged(ctx, requesterID, id)
	if err != nil {
		return nil, err
	}

	survey.ResultsPublic = !survey.ResultsPublic
	if err := s.db.WithContext(ctx).Model(&models.Survey{}).
		Where("id = ?", survey.ID).
		Update("results_public", survey.ResultsPublic).Error; err != nil {
		return nil, fmt.Errorf("survey service: toggle results: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &requester.ID,
		Username: requester.Username,
		Action:   AuditSurveyVisibility,
		Resource: survey.ID,
		Result:   "success",
		Metadata: map[string]any{"results_public": survey.ResultsPublic},
	})
	return survey, nil
}

func (s *SurveyService) loadManaged(ctx context.Context, requesterID, id string) (*models.User, *models.Survey, error) {
	requester, err := loadRequester(ctx, s.db, requesterID)
	if err != nil {
		return nil, nil, err
	}
	if requester == nil {
		return nil, nil, ErrAuthenticationRequired
	}
	survey, err := loadSurvey(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	if !canManageSurvey(requester, survey) {
		return nil, nil, ErrPermissionDenied
	}
	return requester, survey, nil
}

func (s *SurveyService) checkGroupAccess(ctx context.Context, requester *models.User, groupID string) error {
	var group models.DistributionGroup
	err := s.db.WithContext(ctx).Take(&group, "id = ?", groupID).Error
	if isNotFound(err) {
		return ErrGroupNotFound
	}
	if err != nil {
		return fmt.Errorf("survey service: load group: %w", err)
	}
	if group.OwnerID != requester.ID && !requester.IsPrivileged() {
		return ErrPermissionDenied
	}
	return nil
}

func (s *SurveyService) wrapStorage(err error, message string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return fmt.Errorf("%s: %w", message, err)
}

func canManageSurvey(user *models.User, survey *models.Survey) bool {
	if user == nil || survey == nil {
		return false
	}
	return survey.IsOwnedBy(user.ID) || user.IsPrivileged()
}

// loadSurvey fetches a survey with its choices in presentation order.
func loadSurvey(ctx context.Context, db *gorm.DB, id string) (*models.Survey, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSurveyNotFound
	}

	var survey models.Survey
	err := db.WithContext(ctx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Take(&survey, "id = ?", id).Error
	if isNotFound(err) {
		return nil, ErrSurveyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load survey: %w", err)
	}
	return &survey, nil
}

// buildChoices validates the choice set against the method and numbers it 1..N.
func buildChoices(method voting.Method, inputs []ChoiceInput) ([]models.Choice, error) {
	if _, err := voting.SchemeFor(method); err != nil {
		return nil, err
	}
	if err := voting.CheckChoiceCount(method, len(inputs)); err != nil {
		return nil, err
	}

	choices := make([]models.Choice, 0, len(inputs))
	for i, in := range inputs {
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("choice %d text is required", i+1))
		}
		choices = append(choices, models.Choice{
			Text:     text,
			URL:      strings.TrimSpace(in.URL),
			Position: i + 1,
		})
	}
	return choices, nil
}

// choiceRefs projects stored choices for the voting engine, ordered by position.
func choiceRefs(choices []models.Choice) []voting.ChoiceRef {
	refs := make([]voting.ChoiceRef, 0, len(choices))
	for _, c := range choices {
		refs = append(refs, voting.ChoiceRef{ID: c.ID, Text: c.Text, Position: c.Position})
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Position < refs[j].Position })
	return refs
}
