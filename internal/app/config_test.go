package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/groupchoice/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, []string{"https://vote.example.com"}, cfg.Server.CORSOrigins)
	require.Equal(t, "/var/log/groupchoice/server.log", cfg.Server.LogFile.Path)
	require.Equal(t, 3, cfg.Server.LogFile.MaxBackups)
	require.Equal(t, 50, cfg.Server.LogFile.MaxSizeMB)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 7, cfg.Auth.Local.LockoutThreshold)
	require.Equal(t, 20*time.Minute, cfg.Auth.Local.LockoutDuration)
	require.Equal(t, "root", cfg.Auth.Admin.Username)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)
	require.Equal(t, 4, cfg.Email.SMTP.PoolSize)

	require.Equal(t, "https://vote.example.com", cfg.Surveys.FrontendURL)
	require.Equal(t, 168*time.Hour, cfg.Surveys.InvitationTTL)
	require.Equal(t, 24, cfg.Surveys.InvitationTokenBytes)
	require.Equal(t, 5*time.Second, cfg.Surveys.NotifyTimeout)

	require.Equal(t, 30, cfg.Maintenance.AuditRetentionDays)
	require.Equal(t, "@hourly", cfg.Maintenance.AuditSchedule)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 12*time.Hour, cfg.Auth.JWT.TTL)
	require.Equal(t, 720*time.Hour, cfg.Surveys.InvitationTTL)
	require.Equal(t, 32, cfg.Surveys.InvitationTokenBytes)
	require.Equal(t, 90, cfg.Maintenance.AuditRetentionDays)
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("GROUPCHOICE_SERVER_PORT", "7070")
	t.Setenv("GROUPCHOICE_SURVEYS_FRONTEND_URL", "https://env.example.com")
	t.Setenv("GROUPCHOICE_EMAIL_SMTP_ENABLED", "true")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "https://env.example.com", cfg.Surveys.FrontendURL)
	require.True(t, cfg.Email.SMTP.Enabled)
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("GROUPCHOICE_TEST_DOTENV=from-file\nGROUPCHOICE_TEST_PRESET=from-file\n"), 0o600))

	t.Setenv("GROUPCHOICE_TEST_PRESET", "from-env")
	t.Setenv("GROUPCHOICE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("GROUPCHOICE_TEST_DOTENV"))

	require.NoError(t, loadDotEnv(path))
	require.Equal(t, "from-file", os.Getenv("GROUPCHOICE_TEST_DOTENV"))
	require.Equal(t, "from-env", os.Getenv("GROUPCHOICE_TEST_PRESET"))

	require.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := Config{
		Auth: AuthConfig{
			JWT: JWTSettings{
				Secret: "secret",
				Issuer: "issuer",
				TTL:    30 * time.Minute,
			},
			Local: LocalAuthSettings{
				LockoutThreshold: 4,
				LockoutDuration:  10 * time.Minute,
			},
			Admin: AdminSettings{Username: "root", Password: "pw"},
		},
	}

	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, cfg.Auth.JWTServiceConfig())

	require.Equal(t, auth.LocalConfig{
		LockoutThreshold: 4,
		LockoutDuration:  10 * time.Minute,
	}, cfg.Auth.LocalAuthConfig())

	seed := cfg.Auth.SeedOptions()
	require.Equal(t, "root", seed.AdminUsername)
	require.Equal(t, "pw", seed.AdminPassword)
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig
	require.Equal(t, auth.DefaultAccessTokenTTL, cfg.JWTServiceConfig().AccessTokenTTL)
}

func TestEmailConfigAdapter(t *testing.T) {
	cfg := EmailConfig{
		SMTP: SMTPConfig{
			Enabled:  true,
			Host:     "smtp.example.com",
			Port:     2525,
			Username: "user",
			Password: "pass",
			From:     "no-reply@example.com",
			UseTLS:   true,
			Timeout:  10 * time.Second,
			PoolSize: 2,
		},
	}

	settings := cfg.SMTPSettings()
	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.com", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "user", settings.Username)
	require.Equal(t, "pass", settings.Password)
	require.Equal(t, "no-reply@example.com", settings.From)
	require.True(t, settings.UseTLS)
	require.Equal(t, 10*time.Second, settings.Timeout)
	require.Equal(t, 2, settings.PoolSize)
}

func TestEmailConfigValidate(t *testing.T) {
	valid := SMTPConfig{Enabled: true, Host: "smtp.example.com", Port: 587, From: "Surveys <surveys@example.com>"}

	cases := []struct {
		name    string
		mutate  func(*SMTPConfig)
		wantErr string
	}{
		{name: "valid", mutate: func(*SMTPConfig) {}},
		{name: "disabled skips checks", mutate: func(c *SMTPConfig) { *c = SMTPConfig{} }},
		{name: "missing host", mutate: func(c *SMTPConfig) { c.Host = " " }, wantErr: "email.smtp.host"},
		{name: "bad port", mutate: func(c *SMTPConfig) { c.Port = 70000 }, wantErr: "email.smtp.port"},
		{name: "bad sender", mutate: func(c *SMTPConfig) { c.From = "not-an-address" }, wantErr: "email.smtp.from"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			smtp := valid
			tc.mutate(&smtp)
			err := EmailConfig{SMTP: smtp}.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestSurveysConfigOptions(t *testing.T) {
	cfg := &Config{
		Email:   EmailConfig{SMTP: SMTPConfig{From: "surveys@example.com"}},
		Surveys: SurveysConfig{FrontendURL: "https://vote.example.com", InvitationTTL: time.Hour, NotifyTimeout: time.Second},
	}
	require.Len(t, cfg.Surveys.InvitationOptions(), 2)
	require.Len(t, cfg.NotifierOptions(), 2)

	var empty Config
	require.Len(t, empty.Surveys.InvitationOptions(), 1)
	require.Len(t, empty.NotifierOptions(), 1)
}
