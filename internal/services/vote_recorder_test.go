package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/internal/voting"
)

func TestVoteRecorderMapsRacingDuplicateToAlreadyResponded(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	owner := f.createUser(t, "owner", models.PermissionUser)
	bob := f.createUser(t, "bob", models.PermissionUser)
	survey := f.createSurvey(t, owner, voting.RankedChoice, "")
	recorder := NewVoteRecorder(func() time.Time { return f.now })

	// Both submissions passed eligibility before either committed.
	identity := &VotingIdentity{User: bob, Email: bob.Email}
	ballot := voting.Ballot{Ranked: rankBallot(survey, 1, 2, 3)}

	_, err := recorder.Record(ctx, f.db, survey, identity, ballot, "")
	require.NoError(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := recorder.Record(ctx, tx, survey, identity, ballot, "")
		return err
	})
	require.ErrorIs(t, err, ErrAlreadyResponded)
	require.EqualValues(t, 1, f.countResponses(t, survey))
}

func TestVoteRecorderLosesTokenRace(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	owner := f.createUser(t, "owner", models.PermissionUser)
	group := f.createGroup(t, owner, "carol@example.com")
	survey := f.createSurvey(t, owner, voting.FiveStones, group.ID)
	recorder := NewVoteRecorder(func() time.Time { return f.now })

	inv := f.invitation(t, survey, "carol@example.com")
	stale := inv

	// Another request consumed the invitation after this one read it.
	require.NoError(t, f.db.Model(&models.Invitation{}).Where("id = ?", inv.ID).Update("is_used", true).Error)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := recorder.Record(ctx, tx, survey, &VotingIdentity{Invitation: &stale, Email: stale.Email},
			voting.Ballot{Stones: stoneBallot(survey, 5, 0, 0)}, "")
		return err
	})
	require.ErrorIs(t, err, ErrTokenAlreadyUsed)
	require.Zero(t, f.countResponses(t, survey))

	var answers int64
	require.NoError(t, f.db.Model(&models.StonesAnswer{}).Count(&answers).Error)
	require.Zero(t, answers)
}

func TestVoteRecorderTokenDuplicateReportsTokenUsed(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	owner := f.createUser(t, "owner", models.PermissionUser)
	group := f.createGroup(t, owner, "carol@example.com")
	survey := f.createSurvey(t, owner, voting.FiveStones, group.ID)
	recorder := NewVoteRecorder(nil)

	inv := f.invitation(t, survey, "carol@example.com")
	require.NoError(t, f.db.Create(&models.Participation{
		SurveyID: survey.ID,
		VoterKey: voterKey(survey.ID, inv.Email),
	}).Error)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := recorder.Record(ctx, tx, survey, &VotingIdentity{Invitation: &inv, Email: inv.Email},
			voting.Ballot{Stones: stoneBallot(survey, 2, 2, 1)}, "")
		return err
	})
	require.ErrorIs(t, err, ErrTokenAlreadyUsed)
	require.False(t, f.invitation(t, survey, "carol@example.com").IsUsed)
}

func TestEligibilityResolverOrder(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	owner := f.createUser(t, "owner", models.PermissionUser)
	bob := f.createUser(t, "bob", models.PermissionUser)
	group := f.createGroup(t, owner, bob.Email)
	survey := f.createSurvey(t, owner, voting.RankedChoice, group.ID)
	token := f.tokenFor(t, survey, bob.Email)

	resolver, err := NewEligibilityResolver(f.db, f.invitations, func() time.Time { return f.now })
	require.NoError(t, err)

	identity, err := resolver.ResolveVotingIdentity(ctx, nil, survey, bob, "")
	require.NoError(t, err)
	require.Equal(t, ChannelUser, identity.Channel())
	require.Equal(t, bob.Email, identity.Email)
	require.Len(t, identity.CrossChannel, 1)

	identity, err = resolver.ResolveVotingIdentity(ctx, nil, survey, nil, "  "+token+"  ")
	require.NoError(t, err)
	require.Equal(t, ChannelToken, identity.Channel())
	require.Equal(t, bob.Email, identity.Email)

	_, err = resolver.ResolveVotingIdentity(ctx, nil, survey, nil, "")
	require.ErrorIs(t, err, ErrAuthenticationRequired)

	closed := *survey
	closed.IsActive = false
	_, err = resolver.ResolveVotingIdentity(ctx, nil, &closed, bob, "bogus")
	require.ErrorIs(t, err, ErrSurveyClosed)

	eligibility, err := resolver.CheckEligibility(ctx, &closed, bob, "")
	require.NoError(t, err)
	require.False(t, eligibility.CanRespond)
	require.ErrorIs(t, eligibility.Reason, ErrSurveyClosed)

	eligibility, err = resolver.CheckEligibility(ctx, survey, bob, "")
	require.NoError(t, err)
	require.True(t, eligibility.CanRespond)
	require.Nil(t, eligibility.Reason)
}
