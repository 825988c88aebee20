package services

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/database/testutil"
	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/internal/voting"
	"github.com/charlesng35/groupchoice/pkg/crypto"
	"github.com/charlesng35/groupchoice/pkg/mail"
)

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

// tokenFrom extracts the invitation token from a mailed survey link.
func tokenFrom(t *testing.T, body string) string {
	t.Helper()
	idx := strings.Index(body, "?token=")
	require.GreaterOrEqual(t, idx, 0, "body carries no token link")
	raw := body[idx+len("?token="):]
	if end := strings.IndexAny(raw, " \r\n"); end >= 0 {
		raw = raw[:end]
	}
	token, err := url.QueryUnescape(raw)
	require.NoError(t, err)
	return token
}

type serviceFixture struct {
	db          *gorm.DB
	now         time.Time
	audit       *AuditService
	users       *UserService
	groups      *GroupService
	invitations *InvitationService
	surveys     *SurveyService
	notifier    *Notifier
	mailer      *recordingMailer
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		db:     testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()),
		now:    time.Now().UTC().Truncate(time.Second),
		mailer: &recordingMailer{},
	}
	clock := func() time.Time { return f.now }

	var err error
	f.audit, err = NewAuditService(f.db)
	require.NoError(t, err)
	f.users, err = NewUserService(f.db, f.audit)
	require.NoError(t, err)
	f.groups, err = NewGroupService(f.db, f.audit)
	require.NoError(t, err)
	f.invitations, err = NewInvitationService(f.db, f.audit,
		WithInvitationBaseURL("https://vote.example.com/"),
		WithInvitationClock(clock),
	)
	require.NoError(t, err)

	f.notifier = NewNotifier(f.mailer, f.invitations, WithNotifySender("surveys@example.com"))
	f.surveys, err = NewSurveyService(f.db, f.audit, f.invitations,
		WithSurveyNotifier(f.notifier),
		WithSurveyClock(clock),
	)
	require.NoError(t, err)

	t.Cleanup(f.notifier.Wait)
	return f
}

func (f *serviceFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *serviceFixture) createUser(t *testing.T, username string, level models.PermissionLevel) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("p@ssW0rd!")
	require.NoError(t, err)

	user := &models.User{
		Username:        username,
		Email:           username + "@example.com",
		Password:        hashed,
		PermissionLevel: level,
		IsActive:        true,
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *serviceFixture) createGroup(t *testing.T, owner *models.User, emails ...string) *models.DistributionGroup {
	t.Helper()

	group, err := f.groups.Create(context.Background(), owner.ID, CreateGroupInput{
		Name:   "Team " + owner.Username,
		Emails: emails,
	})
	require.NoError(t, err)
	return group
}

func (f *serviceFixture) createSurvey(t *testing.T, owner *models.User, method voting.Method, groupID string, mutate ...func(*CreateSurveyInput)) *models.Survey {
	t.Helper()

	input := CreateSurveyInput{
		Title:    "Lunch",
		Question: "Where should we eat?",
		Method:   string(method),
		Choices:  []ChoiceInput{{Text: "Pizza"}, {Text: "Sushi"}, {Text: "Tacos"}},
	}
	if groupID != "" {
		input.GroupID = &groupID
	}
	for _, fn := range mutate {
		fn(&input)
	}

	survey, err := f.surveys.Create(context.Background(), owner.ID, input)
	require.NoError(t, err)
	return survey
}

// tokenFor rotates the invitation of email and returns the fresh raw token.
func (f *serviceFixture) tokenFor(t *testing.T, survey *models.Survey, email string) string {
	t.Helper()

	var inv models.Invitation
	require.NoError(t, f.db.Where("survey_id = ? AND email = ?", survey.ID, email).Take(&inv).Error)

	issued, err := f.invitations.Reissue(context.Background(), survey, inv.ID)
	require.NoError(t, err)
	return issued.Token
}

func (f *serviceFixture) invitation(t *testing.T, survey *models.Survey, email string) models.Invitation {
	t.Helper()

	var inv models.Invitation
	require.NoError(t, f.db.Where("survey_id = ? AND email = ?", survey.ID, email).Take(&inv).Error)
	return inv
}

func (f *serviceFixture) countResponses(t *testing.T, survey *models.Survey) int64 {
	t.Helper()

	var count int64
	require.NoError(t, f.db.Model(&models.Response{}).Where("survey_id = ?", survey.ID).Count(&count).Error)
	return count
}

// rankBallot ranks the survey's choices in the given position order, so
// rankBallot(s, 3, 1, 2) puts the third choice first.
func rankBallot(survey *models.Survey, positions ...int) []voting.RankedAnswer {
	byPosition := make(map[int]string, len(survey.Choices))
	for _, c := range survey.Choices {
		byPosition[c.Position] = c.ID
	}
	out := make([]voting.RankedAnswer, 0, len(positions))
	for rank, pos := range positions {
		out = append(out, voting.RankedAnswer{ChoiceID: byPosition[pos], Rank: rank + 1})
	}
	return out
}

// stoneBallot allocates stones to the survey's choices in position order.
func stoneBallot(survey *models.Survey, stones ...int) []voting.StonesAnswer {
	byPosition := make(map[int]string, len(survey.Choices))
	for _, c := range survey.Choices {
		byPosition[c.Position] = c.ID
	}
	out := make([]voting.StonesAnswer, 0, len(stones))
	for i, n := range stones {
		out = append(out, voting.StonesAnswer{ChoiceID: byPosition[i+1], Stones: n})
	}
	return out
}
