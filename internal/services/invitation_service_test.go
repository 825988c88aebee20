package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/internal/voting"
	"github.com/charlesng35/groupchoice/pkg/crypto"
)

func TestInvitationIssueForSurveyIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	owner := f.createUser(t, "owner", models.PermissionUser)
	group := f.createGroup(t, owner, "a@example.com", "b@example.com")
	survey := f.createSurvey(t, owner, voting.RankedChoice, group.ID)

	issued, err := f.invitations.IssueForSurvey(ctx, nil, survey)
	require.NoError(t, err)
	require.Empty(t, issued)

	_, err = f.groups.AddMember(ctx, owner.ID, group.ID, "c@example.com")
	require.NoError(t, err)

	issued, err = f.invitations.IssueForSurvey(ctx, nil, survey)
	require.NoError(t, err)
	require.Len(t, issued, 1)
	require.Equal(t, "c@example.com", issued[0].Invitation.Email)
	require.Equal(t, crypto.HashToken(issued[0].Token), issued[0].Invitation.TokenHash)
	require.NotContains(t, issued[0].Token, "=")

	var count int64
	require.NoError(t, f.db.Model(&models.Invitation{}).Where("survey_id = ?", survey.ID).Count(&count).Error)
	require.EqualValues(t, 3, count)

	none, err := f.invitations.IssueForSurvey(ctx, nil, &models.Survey{})
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestInvitationExpiryFollowsDeadline(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	owner := f.createUser(t, "owner", models.PermissionUser)
	group := f.createGroup(t, owner, "a@example.com")
	deadline := f.now.Add(72 * time.Hour)
	survey := f.createSurvey(t, owner, voting.RankedChoice, group.ID, func(in *CreateSurveyInput) { in.Deadline = &deadline })

	inv := f.invitation(t, survey, "a@example.com")
	require.WithinDuration(t, deadline, inv.ExpiresAt, time.Second)

	_, err := f.surveys.Update(ctx, owner.ID, survey.ID, UpdateSurveyInput{ClearDeadline: true})
	require.NoError(t, err)

	inv = f.invitation(t, survey, "a@example.com")
	require.WithinDuration(t, f.now.Add(defaultInvitationTTL), inv.ExpiresAt, time.Second)
}

func TestInvitationLookupAndURLs(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	owner := f.createUser(t, "owner", models.PermissionUser)
	group := f.createGroup(t, owner, "a@example.com")
	survey := f.createSurvey(t, owner, voting.FiveStones, group.ID)
	token := f.tokenFor(t, survey, "a@example.com")

	inv, err := f.invitations.Lookup(ctx, nil, survey.ID, token)
	require.NoError(t, err)
	require.NotNil(t, inv)
	require.Equal(t, "a@example.com", inv.Email)

	inv, err = f.invitations.Lookup(ctx, nil, survey.ID, "")
	require.NoError(t, err)
	require.Nil(t, inv)

	inv, err = f.invitations.Lookup(ctx, nil, "other-survey", token)
	require.NoError(t, err)
	require.Nil(t, inv)

	require.Equal(t, "https://vote.example.com/survey/"+survey.ID, f.invitations.SurveyURL(survey.ID))
	link := f.invitations.InvitationURL(survey.ID, "a+b")
	require.True(t, strings.HasSuffix(link, "?token=a%2Bb"))
}

func TestInvitationTokenSizeOption(t *testing.T) {
	f := newServiceFixture(t)
	svc, err := NewInvitationService(f.db, nil, WithInvitationTokenSize(16), WithInvitationTTL(time.Hour))
	require.NoError(t, err)

	owner := f.createUser(t, "owner", models.PermissionUser)
	group := f.createGroup(t, owner, "a@example.com")
	survey := f.createSurvey(t, owner, voting.RankedChoice, "")
	survey.GroupID = &group.ID

	issued, err := svc.IssueForSurvey(context.Background(), nil, survey)
	require.NoError(t, err)
	require.Len(t, issued, 1)
	require.Len(t, issued[0].Token, 22)
	require.WithinDuration(t, time.Now().Add(time.Hour), issued[0].Invitation.ExpiresAt, time.Minute)

	_, err = NewInvitationService(nil, nil)
	require.Error(t, err)
}
