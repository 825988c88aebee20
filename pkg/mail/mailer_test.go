package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/knadh/smtppool"
	"github.com/stretchr/testify/require"
)

func enabledSettings() SMTPSettings {
	return SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "surveys@example.com",
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(SMTPSettings{Enabled: true})
	require.ErrorContains(t, err, "host is required")

	_, err = New(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	require.ErrorContains(t, err, "port is required")

	mailer, err := New(SMTPSettings{})
	require.NoError(t, err)
	require.ErrorIs(t, mailer.Send(context.Background(), Message{To: []string{"a@example.com"}}), ErrSMTPDisabled)
}

func TestNewSelectsDirectMailerWithDefaultTimeout(t *testing.T) {
	mailer, err := New(enabledSettings())
	require.NoError(t, err)

	sm, ok := mailer.(*smtpMailer)
	require.True(t, ok)
	require.Equal(t, 10*time.Second, sm.cfg.Timeout)
}

func TestPrepareEnvelope(t *testing.T) {
	cfg := enabledSettings()

	_, err := prepareEnvelope(cfg, Message{To: []string{"  ", "\t"}})
	require.ErrorContains(t, err, "at least one recipient")

	_, err = prepareEnvelope(cfg, Message{From: "invalid-from", To: []string{"user@example.com"}})
	require.ErrorContains(t, err, "invalid from address")

	_, err = prepareEnvelope(cfg, Message{To: []string{"user@example.com", "bad-address"}})
	require.ErrorContains(t, err, "invalid recipient address")

	env, err := prepareEnvelope(cfg, Message{To: []string{"User@example.com", "user@example.com"}})
	require.NoError(t, err)
	require.Equal(t, "surveys@example.com", env.from)
	require.Equal(t, []string{"User@example.com"}, env.recipients)
}

func TestFormatMessage(t *testing.T) {
	content := formatMessage("from@example.com", []string{"to@example.com"}, "Subject\r\nBreak", "Body")
	require.Contains(t, content, "From: from@example.com")
	require.Contains(t, content, "Subject: Subject  Break")
	require.True(t, strings.HasSuffix(content, "Body"))
}

type recordingClient struct {
	from   string
	rcpts  []string
	body   bytes.Buffer
	quit   bool
	closed bool
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (c *recordingClient) Mail(from string) error { c.from = from; return nil }
func (c *recordingClient) Rcpt(to string) error   { c.rcpts = append(c.rcpts, to); return nil }
func (c *recordingClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&c.body}, nil
}
func (c *recordingClient) Quit() error                     { c.quit = true; return nil }
func (c *recordingClient) Close() error                    { c.closed = true; return nil }
func (c *recordingClient) StartTLS(*tls.Config) error      { return nil }
func (c *recordingClient) Auth(smtp.Auth) error            { return nil }
func (c *recordingClient) Extension(string) (bool, string) { return false, "" }

func TestSMTPMailerSendsThroughClient(t *testing.T) {
	client := &recordingClient{}
	server, peer := net.Pipe()
	t.Cleanup(func() { _ = peer.Close() })

	mailer := &smtpMailer{
		cfg: applyDefaults(enabledSettings()),
		dialFn: func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
			return server, client, nil
		},
		authFn: func(smtpClient, SMTPSettings) error { return nil },
	}

	err := mailer.Send(context.Background(), Message{
		To:      []string{"voter@example.com"},
		Subject: "New survey: Lunch",
		Body:    "Vote here",
	})
	require.NoError(t, err)
	require.Equal(t, "surveys@example.com", client.from)
	require.Equal(t, []string{"voter@example.com"}, client.rcpts)
	require.Contains(t, client.body.String(), "Subject: New survey: Lunch")
	require.True(t, client.quit)
	require.True(t, client.closed)
}

type fakePool struct {
	sent   []smtppool.Email
	err    error
	closed bool
}

func (p *fakePool) Send(e smtppool.Email) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, e)
	return nil
}

func (p *fakePool) Close() { p.closed = true }

func TestPooledMailerSend(t *testing.T) {
	pool := &fakePool{}
	mailer := &pooledMailer{cfg: applyDefaults(enabledSettings()), pool: pool}

	err := mailer.Send(context.Background(), Message{
		To:      []string{"voter@example.com"},
		Subject: "Survey updated",
		Body:    "Choices changed",
	})
	require.NoError(t, err)
	require.Len(t, pool.sent, 1)
	require.Equal(t, "surveys@example.com", pool.sent[0].From)
	require.Equal(t, []byte("Choices changed"), pool.sent[0].Text)

	pool.err = errors.New("421 service unavailable")
	err = mailer.Send(context.Background(), Message{To: []string{"voter@example.com"}})
	require.ErrorContains(t, err, "pooled send")

	require.NoError(t, mailer.Close())
	require.True(t, pool.closed)
}

func TestPooledMailerHonoursCancelledContext(t *testing.T) {
	pool := &fakePool{}
	mailer := &pooledMailer{cfg: applyDefaults(enabledSettings()), pool: pool}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mailer.Send(ctx, Message{To: []string{"voter@example.com"}})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, pool.sent)
}

func TestPooledMailerDisabled(t *testing.T) {
	mailer, err := NewPooledMailer(SMTPSettings{PoolSize: 4})
	require.NoError(t, err)
	require.ErrorIs(t, mailer.Send(context.Background(), Message{To: []string{"a@example.com"}}), ErrSMTPDisabled)
}
