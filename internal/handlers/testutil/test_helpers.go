package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/api"
	"github.com/charlesng35/groupchoice/internal/app"
	iauth "github.com/charlesng35/groupchoice/internal/auth"
	sharedtestutil "github.com/charlesng35/groupchoice/internal/database/testutil"
	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/pkg/crypto"
	"github.com/charlesng35/groupchoice/pkg/mail"
	"github.com/charlesng35/groupchoice/pkg/response"
)

const FrontendURL = "https://vote.example.com"

// Mailbox records every message the API sends.
type Mailbox struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *Mailbox) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// To returns the messages addressed to email in send order.
func (m *Mailbox) To(email string) []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []mail.Message
	for _, msg := range m.messages {
		for _, rcpt := range msg.To {
			if strings.EqualFold(rcpt, email) {
				out = append(out, msg)
				break
			}
		}
	}
	return out
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Services *api.Services
	Mailbox  *Mailbox
	Now      time.Time
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Email:   app.EmailConfig{SMTP: app.SMTPConfig{From: "surveys@example.com"}},
		Surveys: app.SurveysConfig{FrontendURL: FrontendURL},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	env := &Env{
		T:       t,
		DB:      db,
		JWT:     jwtSvc,
		Mailbox: &Mailbox{},
		Now:     time.Now().UTC().Truncate(time.Second),
	}

	env.Services, err = api.NewServices(db, cfg, env.Mailbox, api.WithClock(func() time.Time { return env.Now }))
	require.NoError(t, err)
	t.Cleanup(env.Services.Notifier.Wait)

	env.Router, err = api.NewRouter(db, jwtSvc, cfg, env.Services)
	require.NoError(t, err)

	return env
}

// CreateUser inserts an active account directly and returns it.
func (e *Env) CreateUser(username, password string, level models.PermissionLevel) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		Username:        username,
		Email:           username + "@example.com",
		Password:        hashed,
		PermissionLevel: level,
		IsActive:        true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
}

// Login authenticates with a password and returns the issued access token.
func (e *Env) Login(identifier, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.Equal(e.T, "Bearer", result.TokenType)
	return result
}

// WaitForMail blocks until pending notifications have been delivered.
func (e *Env) WaitForMail() {
	e.Services.Notifier.Wait()
}

// InvitationToken extracts the raw token from the latest invitation mailed to email.
func (e *Env) InvitationToken(email string) string {
	e.T.Helper()
	e.WaitForMail()

	messages := e.Mailbox.To(email)
	for i := len(messages) - 1; i >= 0; i-- {
		body := messages[i].Body
		idx := strings.Index(body, "?token=")
		if idx < 0 {
			continue
		}
		raw := body[idx+len("?token="):]
		if end := strings.IndexAny(raw, " \r\n"); end >= 0 {
			raw = raw[:end]
		}
		token, err := url.QueryUnescape(raw)
		require.NoError(e.T, err)
		return token
	}
	e.T.Fatalf("no invitation mailed to %s", email)
	return ""
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// RequireError asserts an error envelope with the given status and code.
func RequireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	resp := DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	require.Equal(t, code, resp.Error.Code, w.Body.String())
}

// Request executes an HTTP request against the test router, applying JSON
// encoding and auth headers automatically. A json.RawMessage body is sent verbatim.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = bytes.NewBuffer(nil)
	case json.RawMessage:
		buf = bytes.NewBuffer(b)
	default:
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
