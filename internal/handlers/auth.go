package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/groupchoice/internal/auth"
	"github.com/charlesng35/groupchoice/internal/models"
	"github.com/charlesng35/groupchoice/internal/services"
	apperrors "github.com/charlesng35/groupchoice/pkg/errors"
	"github.com/charlesng35/groupchoice/pkg/metrics"
	"github.com/charlesng35/groupchoice/pkg/response"
)

// AuthHandler manages account registration, sign-in and the current user.
type AuthHandler struct {
	users *services.UserService
	authn *iauth.LocalAuthenticator
	jwt   *iauth.JWTService
	audit *services.AuditService
}

func NewAuthHandler(users *services.UserService, authn *iauth.LocalAuthenticator, jwt *iauth.JWTService, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{users: users, authn: authn, jwt: jwt, audit: audit}
}

type registerRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=64"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"omitempty,max=64"`
	LastName  string `json:"last_name" validate:"omitempty,max=64"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type sessionResponse struct {
	*iauth.AccessToken
	User *models.User `json:"user"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Register(requestContext(c), services.RegisterUserInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.issue(user)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, sessionResponse{AccessToken: token, User: user})
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" {
		response.Error(c, apperrors.NewBadRequest("identifier is required"))
		return
	}

	ctx := requestContext(c)
	user, err := h.authn.Authenticate(ctx, iauth.Credentials{
		Identifier: req.Identifier,
		Password:   req.Password,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		result := "failure"
		if errors.Is(err, iauth.ErrAccountLocked) {
			result = "locked"
		}
		metrics.AuthAttempts.WithLabelValues(result).Inc()
		h.recordLogin(c, nil, req.Identifier, result)
		respondError(c, err)
		return
	}

	token, err := h.issue(user)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		respondError(c, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	h.recordLogin(c, &user.ID, user.Username, "success")

	response.Success(c, http.StatusOK, sessionResponse{AccessToken: token, User: user})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), currentUserID(c))
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			response.Error(c, apperrors.ErrUnauthorized)
			return
		}
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

func (h *AuthHandler) issue(user *models.User) (*iauth.AccessToken, error) {
	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:          user.ID,
		Username:        user.Username,
		PermissionLevel: string(user.PermissionLevel),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to issue access token")
	}
	return token, nil
}

func (h *AuthHandler) recordLogin(c *gin.Context, userID *string, username, result string) {
	if h.audit == nil {
		return
	}
	// Audit failures must not change the sign-in outcome.
	_ = h.audit.Log(requestContext(c), services.AuditEntry{
		UserID:    userID,
		Username:  username,
		Action:    services.AuditUserLogin,
		Result:    result,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}
