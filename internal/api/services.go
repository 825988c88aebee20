package api

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/app"
	iauth "github.com/charlesng35/groupchoice/internal/auth"
	"github.com/charlesng35/groupchoice/internal/services"
	"github.com/charlesng35/groupchoice/pkg/mail"
)

// Services bundles the long-lived domain services behind the HTTP API.
type Services struct {
	Audit       *services.AuditService
	Users       *services.UserService
	Groups      *services.GroupService
	Invitations *services.InvitationService
	Surveys     *services.SurveyService
	Notifier    *services.Notifier
	Auth        *iauth.LocalAuthenticator
}

// ServicesOption customises service construction.
type ServicesOption func(*servicesConfig)

type servicesConfig struct {
	clock func() time.Time
}

// WithClock pins the time source of services that compare against deadlines.
func WithClock(clock func() time.Time) ServicesOption {
	return func(cfg *servicesConfig) {
		cfg.clock = clock
	}
}

// NewServices wires the domain services from configuration. mailer may be
// nil, in which case notifications are skipped.
func NewServices(db *gorm.DB, cfg *app.Config, mailer mail.Mailer, opts ...ServicesOption) (*Services, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	options := servicesConfig{}
	for _, opt := range opts {
		opt(&options)
	}

	var (
		out Services
		err error
	)

	if out.Audit, err = services.NewAuditService(db); err != nil {
		return nil, err
	}
	if out.Users, err = services.NewUserService(db, out.Audit); err != nil {
		return nil, err
	}
	if out.Groups, err = services.NewGroupService(db, out.Audit); err != nil {
		return nil, err
	}

	invitationOpts := cfg.Surveys.InvitationOptions()
	if options.clock != nil {
		invitationOpts = append(invitationOpts, services.WithInvitationClock(options.clock))
	}
	if out.Invitations, err = services.NewInvitationService(db, out.Audit, invitationOpts...); err != nil {
		return nil, err
	}

	if mailer != nil {
		out.Notifier = services.NewNotifier(mailer, out.Invitations, cfg.NotifierOptions()...)
	}

	surveyOpts := []services.SurveyOption{services.WithSurveyNotifier(out.Notifier)}
	if options.clock != nil {
		surveyOpts = append(surveyOpts, services.WithSurveyClock(options.clock))
	}
	if out.Surveys, err = services.NewSurveyService(db, out.Audit, out.Invitations, surveyOpts...); err != nil {
		return nil, err
	}

	localCfg := cfg.Auth.LocalAuthConfig()
	localCfg.Clock = options.clock
	if out.Auth, err = iauth.NewLocalAuthenticator(db, localCfg); err != nil {
		return nil, err
	}

	return &out, nil
}
