package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/knadh/smtppool"
)

type poolSender interface {
	Send(smtppool.Email) error
	Close()
}

type pooledMailer struct {
	cfg  SMTPSettings
	pool poolSender
}

// NewPooledMailer keeps up to cfg.PoolSize SMTP connections open and reuses
// them across messages.
func NewPooledMailer(cfg SMTPSettings) (Mailer, error) {
	if err := validateSMTPConfig(cfg); err != nil {
		return nil, err
	}
	cfg = applyDefaults(cfg)
	if !cfg.Enabled {
		return &pooledMailer{cfg: cfg}, nil
	}

	var auth smtp.Auth
	if strings.TrimSpace(cfg.Username) != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	maxConns := cfg.PoolSize
	if maxConns <= 0 {
		maxConns = 1
	}

	opt := smtppool.Opt{
		Host:            cfg.Host,
		Port:            cfg.Port,
		MaxConns:        maxConns,
		IdleTimeout:     cfg.Timeout,
		PoolWaitTimeout: cfg.Timeout,
		Auth:            auth,
	}
	if cfg.UseTLS {
		opt.TLSConfig = &tls.Config{ServerName: cfg.Host}
	}

	pool, err := smtppool.New(opt)
	if err != nil {
		return nil, fmt.Errorf("smtp: create pool: %w", err)
	}
	return &pooledMailer{cfg: cfg, pool: pool}, nil
}

func (m *pooledMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled || m.pool == nil {
		return ErrSMTPDisabled
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	env, err := prepareEnvelope(m.cfg, msg)
	if err != nil {
		return err
	}

	email := smtppool.Email{
		From:    env.from,
		To:      env.recipients,
		Subject: escapeHeader(msg.Subject),
		Text:    []byte(msg.Body),
	}
	if err := m.pool.Send(email); err != nil {
		return fmt.Errorf("smtp: pooled send: %w", err)
	}
	return nil
}

// Close releases pooled connections.
func (m *pooledMailer) Close() error {
	if m.pool != nil {
		m.pool.Close()
	}
	return nil
}
