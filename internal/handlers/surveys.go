package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/groupchoice/internal/services"
	"github.com/charlesng35/groupchoice/internal/voting"
	appErrors "github.com/charlesng35/groupchoice/pkg/errors"
	"github.com/charlesng35/groupchoice/pkg/response"
)

// SurveyHandler exposes survey authoring, voting and results.
type SurveyHandler struct {
	svc *services.SurveyService
}

type choiceRequest struct {
	Text string `json:"text" validate:"required,notblank,max=500"`
	URL  string `json:"url" validate:"omitempty,httpurl,max=2048"`
}

type createSurveyRequest struct {
	Title         string          `json:"title" validate:"required,notblank,max=200"`
	Question      string          `json:"question" validate:"required,notblank,max=2000"`
	Description   string          `json:"description" validate:"omitempty,max=5000"`
	Method        string          `json:"method" validate:"required,oneof=ranked_choice five_stones"`
	GroupID       *string         `json:"group_id"`
	IsAnonymous   bool            `json:"is_anonymous"`
	ResultsPublic bool            `json:"results_public"`
	IsActive      *bool           `json:"is_active"`
	Deadline      *time.Time      `json:"deadline"`
	Choices       []choiceRequest `json:"choices" validate:"required,dive"`
}

type updateSurveyRequest struct {
	Title         *string         `json:"title" validate:"omitempty,notblank,max=200"`
	Question      *string         `json:"question" validate:"omitempty,notblank,max=2000"`
	Description   *string         `json:"description" validate:"omitempty,max=5000"`
	Method        *string         `json:"method" validate:"omitempty,oneof=ranked_choice five_stones"`
	GroupID       *string         `json:"group_id"`
	IsAnonymous   *bool           `json:"is_anonymous"`
	ResultsPublic *bool           `json:"results_public"`
	IsActive      *bool           `json:"is_active"`
	Deadline      *time.Time      `json:"deadline"`
	ClearDeadline bool            `json:"clear_deadline"`
	Choices       []choiceRequest `json:"choices" validate:"omitempty,dive"`
}

// respondRequest carries one ballot. A null, missing or blank token means
// the caller votes as the signed-in user.
type respondRequest struct {
	Token  *string               `json:"token"`
	Ranked []voting.RankedAnswer `json:"ranked_answers"`
	Stones []voting.StonesAnswer `json:"stones_answers"`
}

type respondResponse struct {
	ID          string    `json:"id"`
	SurveyID    string    `json:"survey_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func NewSurveyHandler(svc *services.SurveyService) *SurveyHandler {
	return &SurveyHandler{svc: svc}
}

// GET /api/surveys
func (h *SurveyHandler) List(c *gin.Context) {
	surveys, err := h.svc.ListForUser(requestContext(c), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, surveys, len(surveys))
}

// POST /api/surveys
func (h *SurveyHandler) Create(c *gin.Context) {
	var body createSurveyRequest
	if !bindAndValidate(c, &body) {
		return
	}

	survey, err := h.svc.Create(requestContext(c), currentUserID(c), services.CreateSurveyInput{
		Title:         body.Title,
		Question:      body.Question,
		Description:   body.Description,
		Method:        body.Method,
		GroupID:       body.GroupID,
		IsAnonymous:   body.IsAnonymous,
		ResultsPublic: body.ResultsPublic,
		IsActive:      body.IsActive,
		Deadline:      body.Deadline,
		Choices:       toChoiceInputs(body.Choices),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, survey)
}

// GET /api/surveys/:id
func (h *SurveyHandler) Get(c *gin.Context) {
	detail, err := h.svc.Get(requestContext(c), currentUserID(c), c.Query("token"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// PATCH /api/surveys/:id
func (h *SurveyHandler) Update(c *gin.Context) {
	var body updateSurveyRequest
	if !bindAndValidate(c, &body) {
		return
	}

	input := services.UpdateSurveyInput{
		Title:         body.Title,
		Question:      body.Question,
		Description:   body.Description,
		Method:        body.Method,
		GroupID:       body.GroupID,
		IsAnonymous:   body.IsAnonymous,
		ResultsPublic: body.ResultsPublic,
		IsActive:      body.IsActive,
		Deadline:      body.Deadline,
		ClearDeadline: body.ClearDeadline,
	}
	if body.Choices != nil {
		input.Choices = toChoiceInputs(body.Choices)
	}

	survey, err := h.svc.Update(requestContext(c), currentUserID(c), c.Param("id"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, survey)
}

// DELETE /api/surveys/:id
func (h *SurveyHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.NoContent(c)
}

// POST /api/surveys/:id/respond
func (h *SurveyHandler) Respond(c *gin.Context) {
	var body respondRequest
	if !bindAndValidate(c, &body) {
		return
	}

	resp, err := h.svc.Respond(requestContext(c), services.RespondInput{
		SurveyID:    c.Param("id"),
		RequesterID: currentUserID(c),
		Token:       body.Token,
		Ranked:      body.Ranked,
		Stones:      body.Stones,
		ClientIP:    c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, respondResponse{
		ID:          resp.ID,
		SurveyID:    resp.SurveyID,
		SubmittedAt: resp.SubmittedAt,
	})
}

// GET /api/surveys/:id/results
func (h *SurveyHandler) Results(c *gin.Context) {
	results, err := h.svc.Results(requestContext(c), c.Param("id"), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, results)
}

// GET /api/surveys/:id/response-status
func (h *SurveyHandler) ResponseStatus(c *gin.Context) {
	status, err := h.svc.CheckResponseStatus(requestContext(c), c.Param("id"), currentUserID(c), strings.TrimSpace(c.Query("token")))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// GET /api/surveys/:id/responses
func (h *SurveyHandler) Responses(c *gin.Context) {
	views, err := h.svc.ListResponses(requestContext(c), c.Param("id"), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, views, len(views))
}

// GET /api/surveys/:id/invitations
func (h *SurveyHandler) Invitations(c *gin.Context) {
	list, err := h.svc.ListInvitations(requestContext(c), c.Param("id"), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, list)
}

// POST /api/surveys/:id/invitations/:invitationID/reissue
func (h *SurveyHandler) ReissueInvitation(c *gin.Context) {
	issued, err := h.svc.ReissueInvitation(requestContext(c), c.Param("id"), currentUserID(c), c.Param("invitationID"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, issued)
}

// GET /api/surveys/:id/activity?limit=
func (h *SurveyHandler) Activity(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Error(c, appErrors.NewBadRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}

	logs, err := h.svc.Activity(requestContext(c), c.Param("id"), currentUserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, logs, len(logs))
}

// POST /api/surveys/:id/toggle-results
func (h *SurveyHandler) ToggleResults(c *gin.Context) {
	survey, err := h.svc.ToggleResultsVisibility(requestContext(c), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"id":             survey.ID,
		"results_public": survey.ResultsPublic,
	})
}

func toChoiceInputs(choices []choiceRequest) []services.ChoiceInput {
	out := make([]services.ChoiceInput, 0, len(choices))
	for _, choice := range choices {
		out = append(out, services.ChoiceInput{Text: choice.Text, URL: choice.URL})
	}
	return out
}
