package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/internal/voting"
)

// VoteRecorder persists a validated ballot and retires the invitations it consumes.
type VoteRecorder struct {
	now func() time.Time
}

// NewVoteRecorder constructs a VoteRecorder using clock for timestamps.
func NewVoteRecorder(clock func() time.Time) *VoteRecorder {
	if clock == nil {
		clock = time.Now
	}
	return &VoteRecorder{now: clock}
}

// Record writes the participation marker, the response, one answer row per
// validated answer and the invitation updates on tx. The caller owns the
// transaction, so any error leaves nothing behind. A uniqueness violation from
// a racing submission is reported as ErrAlreadyResponded or ErrTokenAlreadyUsed
// depending on the channel.
func (r *VoteRecorder) Record(ctx context.Context, tx *gorm.DB, survey *models.Survey, identity *VotingIdentity, ballot voting.Ballot, clientIP string) (*models.Response, error) {
	ctx = ensureContext(ctx)
	db := tx.WithContext(ctx)
	now := r.now().UTC()

	participation := models.Participation{
		SurveyID: survey.ID,
		VoterKey: voterKey(survey.ID, identity.Email),
	}
	if identity.User != nil {
		participation.UserID = &identity.User.ID
	}
	if err := db.Create(&participation).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, r.duplicateError(identity)
		}
		return nil, fmt.Errorf("vote recorder: create participation: %w", err)
	}

	response := models.Response{
		SurveyID:    survey.ID,
		SubmittedAt: now,
	}
	if survey.IsAnonymous {
		// Random id and day-granular times: nothing on the ballot lines up
		// with the participation or the consumed invitation.
		response.BaseModel = detachedBase(now)
		response.SubmittedAt = response.CreatedAt
	} else {
		if identity.User != nil {
			response.UserID = &identity.User.ID
		}
		if identity.Invitation != nil {
			response.AnonymousEmail = identity.Invitation.Email
		}
		if ip := strings.TrimSpace(clientIP); ip != "" {
			response.IPAddress = &ip
		}
	}

	if err := db.Create(&response).Error; err != nil {
		return nil, fmt.Errorf("vote recorder: create response: %w", err)
	}

	if err := r.createAnswers(db, &response, ballot, survey.IsAnonymous, now); err != nil {
		return nil, err
	}

	if inv := identity.Invitation; inv != nil {
		result := db.Model(&models.Invitation{}).
			Where("id = ? AND is_used = ?", inv.ID, false).
			Updates(map[string]any{"is_used": true, "used_at": now})
		if result.Error != nil {
			return nil, fmt.Errorf("vote recorder: consume invitation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, ErrTokenAlreadyUsed
		}
		inv.IsUsed = true
		inv.UsedAt = &now
		return &response, nil
	}

	// Signed-in vote: retire every unused invitation sent to the voter's own email.
	if err := db.Model(&models.Invitation{}).
		Where("survey_id = ? AND email = ? AND is_used = ?", survey.ID, identity.Email, false).
		Updates(map[string]any{"is_used": true, "used_at": now}).Error; err != nil {
		return nil, fmt.Errorf("vote recorder: retire invitations: %w", err)
	}
	for i := range identity.CrossChannel {
		identity.CrossChannel[i].IsUsed = true
		identity.CrossChannel[i].UsedAt = &now
	}

	return &response, nil
}

func (r *VoteRecorder) createAnswers(db *gorm.DB, response *models.Response, ballot voting.Ballot, detached bool, now time.Time) error {
	base := func() models.BaseModel {
		if detached {
			return detachedBase(now)
		}
		return models.BaseModel{}
	}
	switch {
	case len(ballot.Ranked) > 0:
		rows := make([]models.RankedAnswer, 0, len(ballot.Ranked))
		for _, a := range ballot.Ranked {
			rows = append(rows, models.RankedAnswer{BaseModel: base(), ResponseID: response.ID, ChoiceID: a.ChoiceID, Rank: a.Rank})
		}
		if err := db.Create(&rows).Error; err != nil {
			return fmt.Errorf("vote recorder: create ranked answers: %w", err)
		}
		response.RankedAnswers = rows
	case len(ballot.Stones) > 0:
		rows := make([]models.StonesAnswer, 0, len(ballot.Stones))
		for _, a := range ballot.Stones {
			rows = append(rows, models.StonesAnswer{BaseModel: base(), ResponseID: response.ID, ChoiceID: a.ChoiceID, Stones: a.Stones})
		}
		if err := db.Create(&rows).Error; err != nil {
			return fmt.Errorf("vote recorder: create stone answers: %w", err)
		}
		response.StonesAnswers = rows
	}
	return nil
}

func (r *VoteRecorder) duplicateError(identity *VotingIdentity) error {
	if identity.Channel() == ChannelToken {
		return ErrTokenAlreadyUsed
	}
	return ErrAlreadyResponded
}

// detachedBase returns a random v4 id and midnight UTC of now's day for rows
// that must not be ordered or timed against the voter's other records.
func detachedBase(now time.Time) models.BaseModel {
	day := now.UTC().Truncate(24 * time.Hour)
	return models.BaseModel{ID: uuid.NewString(), CreatedAt: day, UpdatedAt: day}
}
