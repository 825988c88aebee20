package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/groupchoice/internal/services"
	"github.com/charlesng35/groupchoice/pkg/response"
)

// GroupHandler exposes distribution group management.
type GroupHandler struct {
	svc *services.GroupService
}

type createGroupRequest struct {
	Name        string   `json:"name" validate:"required,notblank,max=128"`
	Description string   `json:"description" validate:"omitempty,max=512"`
	Emails      []string `json:"emails" validate:"omitempty,max=500,dive,email"`
}

type updateGroupRequest struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=128"`
	Description *string `json:"description" validate:"omitempty,max=512"`
}

type groupMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func NewGroupHandler(svc *services.GroupService) *GroupHandler {
	return &GroupHandler{svc: svc}
}

// GET /api/groups
func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.svc.List(requestContext(c), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, groups, len(groups))
}

// POST /api/groups
func (h *GroupHandler) Create(c *gin.Context) {
	var body createGroupRequest
	if !bindAndValidate(c, &body) {
		return
	}

	group, err := h.svc.Create(requestContext(c), currentUserID(c), services.CreateGroupInput{
		Name:        body.Name,
		Description: body.Description,
		Emails:      body.Emails,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, group)
}

// GET /api/groups/:id
func (h *GroupHandler) Get(c *gin.Context) {
	group, err := h.svc.Get(requestContext(c), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, group)
}

// PATCH /api/groups/:id
func (h *GroupHandler) Update(c *gin.Context) {
	var body updateGroupRequest
	if !bindAndValidate(c, &body) {
		return
	}

	group, err := h.svc.Update(requestContext(c), currentUserID(c), c.Param("id"), services.UpdateGroupInput{
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, group)
}

// DELETE /api/groups/:id
func (h *GroupHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(requestContext(c), currentUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.NoContent(c)
}

// GET /api/groups/:id/members
func (h *GroupHandler) ListMembers(c *gin.Context) {
	group, err := h.svc.Get(requestContext(c), currentUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.List(c, group.Members, len(group.Members))
}

// POST /api/groups/:id/members
func (h *GroupHandler) AddMember(c *gin.Context) {
	var body groupMemberRequest
	if !bindAndValidate(c, &body) {
		return
	}

	member, err := h.svc.AddMember(requestContext(c), currentUserID(c), c.Param("id"), body.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Created(c, member)
}

// DELETE /api/groups/:id/members/:email
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	if err := h.svc.RemoveMember(requestContext(c), currentUserID(c), c.Param("id"), c.Param("email")); err != nil {
		respondError(c, err)
		return
	}
	response.NoContent(c)
}
