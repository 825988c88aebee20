package app

import (
	"github.com/charlesng35/groupchoice/internal/services"
)

// InvitationOptions converts the survey settings into invitation service options.
func (c SurveysConfig) InvitationOptions() []services.InvitationOption {
	opts := []services.InvitationOption{services.WithInvitationBaseURL(c.FrontendURL)}
	if c.InvitationTTL > 0 {
		opts = append(opts, services.WithInvitationTTL(c.InvitationTTL))
	}
	if c.InvitationTokenBytes > 0 {
		opts = append(opts, services.WithInvitationTokenSize(c.InvitationTokenBytes))
	}
	return opts
}

// NotifierOptions converts the survey and email settings into notifier options.
func (c *Config) NotifierOptions() []services.NotifierOption {
	opts := []services.NotifierOption{services.WithNotifySender(c.Email.SMTP.From)}
	if c.Surveys.NotifyTimeout > 0 {
		opts = append(opts, services.WithNotifyTimeout(c.Surveys.NotifyTimeout))
	}
	return opts
}
