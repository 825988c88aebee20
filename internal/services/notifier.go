package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/pkg/logger"
	"github.com/charlesng35/groupchoice/pkg/mail"
	"github.com/charlesng35/groupchoice/pkg/metrics"
)

const defaultNotifyTimeout = 30 * time.Second

// Notification kinds, used as metric labels.
const (
	NotifySurveyPublished = "survey_published"
	NotifySurveyUpdated   = "survey_updated"
	NotifyResponse        = "response_recorded"
	NotifyInvitation      = "invitation_reissued"
)

// NotifierOption customises Notifier behaviour.
type NotifierOption func(*Notifier)

// WithNotifyTimeout bounds how long one dispatch batch may take.
func WithNotifyTimeout(d time.Duration) NotifierOption {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithNotifySender overrides the From address of outgoing mail.
func WithNotifySender(from string) NotifierOption {
	return func(n *Notifier) {
		n.from = strings.TrimSpace(from)
	}
}

// Notifier sends survey emails after the triggering transaction has committed.
// Delivery is best effort: failures are logged and never reach the caller.
type Notifier struct {
	mailer      mail.Mailer
	invitations *InvitationService
	timeout     time.Duration
	from        string
	log         *zap.Logger
	wg          sync.WaitGroup
}

// NewNotifier constructs a Notifier. A nil mailer disables delivery.
func NewNotifier(mailer mail.Mailer, invitations *InvitationService, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		mailer:      mailer,
		invitations: invitations,
		timeout:     defaultNotifyTimeout,
		log:         logger.WithModule("notifier"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SurveyPublished invites every newly issued recipient with their personal link.
func (n *Notifier) SurveyPublished(survey *models.Survey, author *models.User, issued []IssuedInvitation) {
	if n == nil || len(issued) == 0 {
		return
	}
	messages := make([]mail.Message, 0, len(issued))
	for _, inv := range issued {
		messages = append(messages, mail.Message{
			From:    n.from,
			To:      []string{inv.Invitation.Email},
			Subject: fmt.Sprintf("New survey: %s", survey.Title),
			Body:    n.invitationBody(survey, author, inv),
		})
	}
	n.dispatch(NotifySurveyPublished, survey.ID, messages)
}

// SurveyUpdated tells recipients who have not voted yet that the survey changed.
// Newly added group members receive a fresh invitation instead.
func (n *Notifier) SurveyUpdated(survey *models.Survey, author *models.User, pendingEmails []string, issued []IssuedInvitation) {
	if n == nil {
		return
	}
	n.SurveyPublished(survey, author, issued)

	fresh := make(map[string]struct{}, len(issued))
	for _, inv := range issued {
		fresh[inv.Invitation.Email] = struct{}{}
	}

	var messages []mail.Message
	for _, email := range normaliseEmails(pendingEmails) {
		if _, ok := fresh[email]; ok {
			continue
		}
		messages = append(messages, mail.Message{
			From:    n.from,
			To:      []string{email},
			Subject: fmt.Sprintf("Survey updated: %s", survey.Title),
			Body: fmt.Sprintf("Hello,\n\nThe survey %q has been updated.\n\n%s\n\nUse the link from your original invitation to respond:\n%s\n%s",
				survey.Title, survey.Question, n.surveyURL(survey.ID), deadlineLine(survey)),
		})
	}
	n.dispatch(NotifySurveyUpdated, survey.ID, messages)
}

// ResponseRecorded informs the survey owner that a ballot arrived.
func (n *Notifier) ResponseRecorded(survey *models.Survey, owner *models.User, totalResponses int64) {
	if n == nil || owner == nil || owner.Email == "" {
		return
	}
	n.dispatch(NotifyResponse, survey.ID, []mail.Message{{
		From:    n.from,
		To:      []string{owner.Email},
		Subject: fmt.Sprintf("New response to %s", survey.Title),
		Body: fmt.Sprintf("Hello %s,\n\nYour survey %q now has %d response(s).\n\nResults: %s/results\n",
			owner.DisplayName(), survey.Title, totalResponses, n.surveyURL(survey.ID)),
	}})
}

// InvitationReissued sends a rotated link to its recipient.
func (n *Notifier) InvitationReissued(survey *models.Survey, author *models.User, inv IssuedInvitation) {
	if n == nil {
		return
	}
	n.dispatch(NotifyInvitation, survey.ID, []mail.Message{{
		From:    n.from,
		To:      []string{inv.Invitation.Email},
		Subject: fmt.Sprintf("Your link for %s", survey.Title),
		Body:    n.invitationBody(survey, author, inv),
	}})
}

// Wait blocks until in-flight deliveries finish. Used on shutdown and in tests.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) dispatch(kind, surveyID string, messages []mail.Message) {
	if n == nil || n.mailer == nil || len(messages) == 0 {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		for _, msg := range messages {
			err := n.mailer.Send(ctx, msg)
			switch {
			case err == nil:
				metrics.NotificationsSent.WithLabelValues(kind, "sent").Inc()
			case errors.Is(err, mail.ErrSMTPDisabled):
				metrics.NotificationsSent.WithLabelValues(kind, "disabled").Inc()
				n.log.Debug("notification skipped, smtp disabled",
					zap.String("kind", kind),
					zap.String("survey_id", surveyID),
				)
				return
			default:
				metrics.NotificationsSent.WithLabelValues(kind, "failed").Inc()
				n.log.Warn("notification delivery failed",
					zap.String("kind", kind),
					zap.String("survey_id", surveyID),
					zap.Strings("to", msg.To),
					zap.Error(err),
				)
			}
		}
	}()
}

func (n *Notifier) invitationBody(survey *models.Survey, author *models.User, inv IssuedInvitation) string {
	var b strings.Builder
	greeting := "Hello"
	if inv.User != nil {
		greeting = "Hello " + inv.User.DisplayName()
	}
	fmt.Fprintf(&b, "%s,\n\n", greeting)
	if author != nil {
		fmt.Fprintf(&b, "%s invited you to answer %q.\n\n", author.DisplayName(), survey.Title)
	} else {
		fmt.Fprintf(&b, "You are invited to answer %q.\n\n", survey.Title)
	}
	fmt.Fprintf(&b, "%s\n\n", survey.Question)
	if survey.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", survey.Description)
	}
	fmt.Fprintf(&b, "Respond here (this link works once):\n%s\n", n.invitationURL(survey.ID, inv.Token))
	b.WriteString(deadlineLine(survey))
	return b.String()
}

func (n *Notifier) surveyURL(surveyID string) string {
	if n.invitations == nil {
		return "/survey/" + surveyID
	}
	return n.invitations.SurveyURL(surveyID)
}

func (n *Notifier) invitationURL(surveyID, token string) string {
	if n.invitations == nil {
		return "/survey/" + surveyID + "?token=" + token
	}
	return n.invitations.InvitationURL(surveyID, token)
}

func deadlineLine(survey *models.Survey) string {
	if survey.Deadline == nil {
		return ""
	}
	return fmt.Sprintf("\nThe survey closes on %s.\n", survey.Deadline.UTC().Format("2006-01-02 15:04 MST"))
}
