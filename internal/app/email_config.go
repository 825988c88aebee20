package app

import (
	"errors"
	"net/mail"
	"strings"

	mailer "github.com/charlesng35/groupchoice/pkg/mail"
)

// Validate reports SMTP settings that would make every send fail. A disabled
// transport is always valid.
func (c EmailConfig) Validate() error {
	smtp := c.SMTP
	if !smtp.Enabled {
		return nil
	}
	if strings.TrimSpace(smtp.Host) == "" {
		return errors.New("email.smtp.host must be configured when smtp is enabled")
	}
	if smtp.Port < 0 || smtp.Port > 65535 {
		return errors.New("email.smtp.port is out of range")
	}
	if _, err := mail.ParseAddress(smtp.From); err != nil {
		return errors.New("email.smtp.from must be a valid address")
	}
	return nil
}

// SMTPSettings hands the transport part of the config to the mail package.
func (c EmailConfig) SMTPSettings() mailer.SMTPSettings {
	s := c.SMTP
	return mailer.SMTPSettings{
		Enabled:  s.Enabled,
		Host:     strings.TrimSpace(s.Host),
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		From:     strings.TrimSpace(s.From),
		UseTLS:   s.UseTLS,
		Timeout:  s.Timeout,
		PoolSize: s.PoolSize,
	}
}
