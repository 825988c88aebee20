package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/internal/voting"
	apperrors "github.com/charlesng35/groupchoice/pkg/errors"
	"github.com/charlesng35/groupchoice/pkg/metrics"
)

// RespondInput is one ballot submission. A nil or blank Token means the
// caller votes as the signed-in user.
type RespondInput struct {
	SurveyID    string
	RequesterID string
	Token       *string
	Ranked      []voting.RankedAnswer
	Stones      []voting.StonesAnswer
	ClientIP    string
	UserAgent   string
}

// ResponseStatus tells a caller whether they may still vote.
type ResponseStatus struct {
	CanRespond   bool   `json:"can_respond"`
	HasResponded bool   `json:"has_responded"`
	Reason       string `json:"reason,omitempty"`
}

// AnswerView is one answer of a listed response.
type AnswerView struct {
	ChoiceID   string `json:"choice_id"`
	ChoiceText string `json:"choice_text"`
	Rank       *int   `json:"rank,omitempty"`
	Stones     *int   `json:"stones,omitempty"`
}

// ResponseView is one response of a non-anonymous survey.
type ResponseView struct {
	ID          string       `json:"id"`
	SubmittedAt time.Time    `json:"submitted_at"`
	UserID      *string      `json:"user_id,omitempty"`
	Username    string       `json:"username,omitempty"`
	Email       string       `json:"email,omitempty"`
	IPAddress   *string      `json:"ip_address,omitempty"`
	Answers     []AnswerView `json:"answers"`
}

// InvitationList is the owner view of a survey's invitations.
type InvitationList struct {
	SurveyURL   string           `json:"survey_url"`
	Invitations []InvitationView `json:"invitations"`
}

// ReissuedInvitation carries the rotated link back to the survey manager.
type ReissuedInvitation struct {
	InvitationView
	URL string `json:"url"`
}

// Respond runs eligibility, ballot validation and recording in one
// transaction. Nothing is persisted unless every step succeeds.
func (s *SurveyService) Respond(ctx context.Context, input RespondInput) (*models.Response, error) {
	ctx = ensureContext(ctx)

	response, survey, identity, err := s.respond(ctx, input)
	if err != nil {
		metrics.BallotsRejected.WithLabelValues(apperrors.FromError(err).Code).Inc()
		return nil, err
	}

	metrics.BallotsRecorded.WithLabelValues(string(survey.Method), identity.Channel()).Inc()

	entry := AuditEntry{
		Action:   AuditVoteRecorded,
		Resource: survey.ID,
		Result:   "success",
		Metadata: map[string]any{"channel": identity.Channel()},
	}
	if !survey.IsAnonymous {
		entry.Metadata["response_id"] = response.ID
		if identity.User != nil {
			entry.UserID = &identity.User.ID
			entry.Username = identity.User.Username
		}
		entry.IPAddress = input.ClientIP
		entry.UserAgent = input.UserAgent
	}
	recordAudit(s.auditService, ctx, entry)

	if s.notifier != nil {
		s.notifyOwner(ctx, survey)
	}
	return response, nil
}

func (s *SurveyService) respond(ctx context.Context, input RespondInput) (*models.Response, *models.Survey, *VotingIdentity, error) {
	requester, err := loadRequester(ctx, s.db, input.RequesterID)
	if err != nil {
		return nil, nil, nil, err
	}

	token := ""
	if input.Token != nil {
		token = strings.TrimSpace(*input.Token)
	}

	var (
		survey   *models.Survey
		identity *VotingIdentity
		response *models.Response
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		survey, err = loadSurvey(ctx, tx, input.SurveyID)
		if err != nil {
			return err
		}

		identity, err = s.eligibility.ResolveVotingIdentity(ctx, tx, survey, requester, token)
		if err != nil {
			return err
		}

		scheme, err := voting.SchemeFor(voting.Method(survey.Method))
		if err != nil {
			return err
		}
		ballot := voting.Ballot{Ranked: input.Ranked, Stones: input.Stones}
		if err := scheme.Validate(choiceRefs(survey.Choices), ballot); err != nil {
			return err
		}

		response, err = s.recorder.Record(ctx, tx, survey, identity, ballot, input.ClientIP)
		return err
	})
	if err != nil {
		return nil, nil, nil, s.wrapStorage(err, "survey service: respond")
	}
	return response, survey, identity, nil
}

func (s *SurveyService) notifyOwner(ctx context.Context, survey *models.Survey) {
	var owner models.User
	if err := s.db.WithContext(ctx).Take(&owner, "id = ?", survey.OwnerID).Error; err != nil {
		return
	}
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Response{}).
		Where("survey_id = ?", survey.ID).
		Count(&total).Error; err != nil {
		return
	}
	s.notifier.ResponseRecorded(survey, &owner, total)
}

// Results aggregates every recorded ballot. The owner and privileged
// operators may always read them; everyone else only when they are public.
func (s *SurveyService) Results(ctx context.Context, surveyID, requesterID string) (*voting.Results, error) {
	ctx = ensureContext(ctx)

	requester, err := loadRequester(ctx, s.db, requesterID)
	if err != nil {
		return nil, err
	}
	survey, err := loadSurvey(ctx, s.db, surveyID)
	if err != nil {
		return nil, err
	}
	if !survey.ResultsPublic && !canManageSurvey(requester, survey) {
		return nil, ErrPermissionDenied
	}

	scheme, err := voting.SchemeFor(voting.Method(survey.Method))
	if err != nil {
		return nil, err
	}

	ballots, err := s.loadBallots(ctx, survey)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	results := scheme.Tally(choiceRefs(survey.Choices), ballots)
	metrics.TallyDuration.WithLabelValues(string(survey.Method)).Observe(time.Since(started).Seconds())
	return &results, nil
}

// loadBallots rebuilds one ballot per stored response, including responses
// whose answers are missing so they still count toward the totals.
func (s *SurveyService) loadBallots(ctx context.Context, survey *models.Survey) ([]voting.Ballot, error) {
	var responses []models.Response
	query := s.db.WithContext(ctx).Where("survey_id = ?", survey.ID).Order("submitted_at ASC")
	switch survey.Method {
	case models.MethodRankedChoice:
		query = query.Preload("RankedAnswers")
	case models.MethodFiveStones:
		query = query.Preload("StonesAnswers")
	}
	if err := query.Find(&responses).Error; err != nil {
		return nil, fmt.Errorf("survey service: load responses: %w", err)
	}

	ballots := make([]voting.Ballot, 0, len(responses))
	for _, r := range responses {
		var b voting.Ballot
		for _, a := range r.RankedAnswers {
			b.Ranked = append(b.Ranked, voting.RankedAnswer{ChoiceID: a.ChoiceID, Rank: a.Rank})
		}
		for _, a := range r.StonesAnswers {
			b.Stones = append(b.Stones, voting.StonesAnswer{ChoiceID: a.ChoiceID, Stones: a.Stones})
		}
		ballots = append(ballots, b)
	}
	return ballots, nil
}

// CheckResponseStatus reports whether the caller, identified by token or
// session, can respond and whether they already have.
func (s *SurveyService) CheckResponseStatus(ctx context.Context, surveyID, requesterID, token string) (ResponseStatus, error) {
	ctx = ensureContext(ctx)

	requester, err := loadRequester(ctx, s.db, requesterID)
	if err != nil {
		return ResponseStatus{}, err
	}
	survey, err := loadSurvey(ctx, s.db, surveyID)
	if err != nil {
		return ResponseStatus{}, err
	}
	return s.responseStatus(ctx, survey, requester, token)
}

func (s *SurveyService) responseStatus(ctx context.Context, survey *models.Survey, requester *models.User, token string) (ResponseStatus, error) {
	var status ResponseStatus

	token = strings.TrimSpace(token)
	switch {
	case token != "":
		inv, err := s.invitations.Lookup(ctx, s.db, survey.ID, token)
		if err != nil {
			return ResponseStatus{}, err
		}
		if inv == nil {
			return ResponseStatus{}, ErrInvalidToken
		}
		status.HasResponded = inv.IsUsed
	case requester == nil:
		return status, nil
	default:
		responded, err := hasResponse(ctx, s.db, survey.ID, requester.Email, requester.ID)
		if err != nil {
			return ResponseStatus{}, err
		}
		status.HasResponded = responded
	}

	eligibility, err := s.eligibility.CheckEligibility(ctx, survey, requester, token)
	if err != nil {
		return ResponseStatus{}, err
	}
	status.CanRespond = eligibility.CanRespond
	if eligibility.Reason != nil {
		status.Reason = eligibility.Reason.Code
	}
	return status, nil
}

// ListResponses returns individual ballots of a non-anonymous survey.
func (s *SurveyService) ListResponses(ctx context.Context, surveyID, requesterID string) ([]ResponseView, error) {
	ctx = ensureContext(ctx)

	_, survey, err := s.loadManaged(ctx, requesterID, surveyID)
	if err != nil {
		return nil, err
	}
	if survey.IsAnonymous {
		return nil, ErrAnonymousSurvey
	}

	var responses []models.Response
	if err := s.db.WithContext(ctx).
		Where("survey_id = ?", survey.ID).
		Preload("User").
		Preload("RankedAnswers").
		Preload("RankedAnswers.Choice").
		Preload("StonesAnswers").
		Preload("StonesAnswers.Choice").
		Order("submitted_at ASC").
		Find(&responses).Error; err != nil {
		return nil, fmt.Errorf("survey service: list responses: %w", err)
	}

	views := make([]ResponseView, 0, len(responses))
	for _, r := range responses {
		view := ResponseView{
			ID:          r.ID,
			SubmittedAt: r.SubmittedAt,
			UserID:      r.UserID,
			Email:       r.AnonymousEmail,
			IPAddress:   r.IPAddress,
			Answers:     make([]AnswerView, 0, len(r.RankedAnswers)+len(r.StonesAnswers)),
		}
		if r.User != nil {
			view.Username = r.User.Username
			view.Email = r.User.Email
		}
		sort.SliceStable(r.RankedAnswers, func(i, j int) bool { return r.RankedAnswers[i].Rank < r.RankedAnswers[j].Rank })
		for _, a := range r.RankedAnswers {
			rank := a.Rank
			view.Answers = append(view.Answers, AnswerView{ChoiceID: a.ChoiceID, ChoiceText: choiceText(a.Choice), Rank: &rank})
		}
		for _, a := range r.StonesAnswers {
			stones := a.Stones
			view.Answers = append(view.Answers, AnswerView{ChoiceID: a.ChoiceID, ChoiceText: choiceText(a.Choice), Stones: &stones})
		}
		views = append(views, view)
	}
	return views, nil
}

// ListInvitations returns the invitation ledger of a survey without tokens.
func (s *SurveyService) ListInvitations(ctx context.Context, surveyID, requesterID string) (*InvitationList, error) {
	ctx = ensureContext(ctx)

	_, survey, err := s.loadManaged(ctx, requesterID, surveyID)
	if err != nil {
		return nil, err
	}

	views, err := s.invitations.ListForSurvey(ctx, survey.ID)
	if err != nil {
		return nil, err
	}
	return &InvitationList{SurveyURL: s.invitations.SurveyURL(survey.ID), Invitations: views}, nil
}

// ReissueInvitation rotates an unused invitation and mails the new link.
func (s *SurveyService) ReissueInvitation(ctx context.Context, surveyID, requesterID, invitationID string) (*ReissuedInvitation, error) {
	ctx = ensureContext(ctx)

	requester, survey, err := s.loadManaged(ctx, requesterID, surveyID)
	if err != nil {
		return nil, err
	}

	issued, err := s.invitations.Reissue(ctx, survey, invitationID)
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &requester.ID,
		Username: requester.Username,
		Action:   AuditInvitationReissue,
		Resource: survey.ID,
		Result:   "success",
		Metadata: map[string]any{"invitation_id": issued.Invitation.ID},
	})

	s.notifier.InvitationReissued(survey, requester, *issued)

	inv := issued.Invitation
	return &ReissuedInvitation{
		InvitationView: InvitationView{
			ID:        inv.ID,
			Email:     inv.Email,
			IsUsed:    inv.IsUsed,
			IsValid:   inv.IsValid(s.now()),
			UsedAt:    inv.UsedAt,
			ExpiresAt: inv.ExpiresAt,
			Linked:    inv.UserID != nil,
		},
		URL: s.invitations.InvitationURL(survey.ID, issued.Token),
	}, nil
}

func choiceText(c *models.Choice) string {
	if c == nil {
		return ""
	}
	return c.Text
}

// Activity returns the survey's audit trail, newest first. Only managers may
// read it; entries for votes on anonymous surveys never carry an identity.
func (s *SurveyService) Activity(ctx context.Context, surveyID, requesterID string, limit int) ([]models.AuditLog, error) {
	ctx = ensureContext(ctx)

	if _, _, err := s.loadManaged(ctx, requesterID, surveyID); err != nil {
		return nil, err
	}
	if s.auditService == nil {
		return []models.AuditLog{}, nil
	}
	return s.auditService.List(ctx, AuditFilters{Resource: surveyID, Limit: limit})
}
