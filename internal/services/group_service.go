package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/groupchoice/internal/models"
	apperrors "github.com/charlesng35/groupchoice/pkg/errors"
)

// CreateGroupInput captures new distribution group metadata.
type CreateGroupInput struct {
	Name        string
	Description string
	Emails      []string
}

// UpdateGroupInput describes mutable group fields.
type UpdateGroupInput struct {
	Name        *string
	Description *string
}

// GroupRecipient is one member of a group as seen by the invitation issuer.
type GroupRecipient struct {
	Email string
	User  *models.User
}

// GroupService handles distribution group lifecycle and membership.
type GroupService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewGroupService constructs a GroupService instance.
func NewGroupService(db *gorm.DB, auditService *AuditService) (*GroupService, error) {
	if db == nil {
		return nil, errors.New("group service: db is required")
	}
	return &GroupService{db: db, auditService: auditService}, nil
}

// Create registers a new group owned by the requester, optionally seeding members.
func (s *GroupService) Create(ctx context.Context, requesterID string, input CreateGroupInput) (*models.DistributionGroup, error) {
	ctx = ensureContext(ctx)

	owner, err := loadRequester(ctx, s.db, requesterID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrAuthenticationRequired
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("group name is required")
	}

	group := &models.DistributionGroup{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		OwnerID:     owner.ID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrGroupNameTaken
			}
			return err
		}
		for _, email := range normaliseEmails(input.Emails) {
			if _, err := addMember(ctx, tx, group.ID, email); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("group service: create group: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &owner.ID,
		Username: owner.Username,
		Action:   AuditGroupCreate,
		Resource: group.ID,
		Result:   "success",
		Metadata: map[string]any{"name": group.Name, "members": len(input.Emails)},
	})

	return s.load(ctx, group.ID)
}

// Get returns a group with its members when the requester may manage it.
func (s *GroupService) Get(ctx context.Context, requesterID, id string) (*models.DistributionGroup, error) {
	ctx = ensureContext(ctx)

	group, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, requesterID, group); err != nil {
		return nil, err
	}
	return group, nil
}

// List returns groups owned by the requester; privileged users see all groups.
func (s *GroupService) List(ctx context.Context, requesterID string) ([]models.DistributionGroup, error) {
	ctx = ensureContext(ctx)

	requester, err := loadRequester(ctx, s.db, requesterID)
	if err != nil {
		return nil, err
	}
	if requester == nil {
		return nil, ErrAuthenticationRequired
	}

	query := s.db.WithContext(ctx).Preload("Members", func(db *gorm.DB) *gorm.DB {
		return db.Order("email ASC")
	})
	if !requester.IsPrivileged() {
		query = query.Where("owner_id = ?", requester.ID)
	}

	var groups []models.DistributionGroup
	if err := query.Order("name ASC").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("group service: list groups: %w", err)
	}
	return groups, nil
}

// Update modifies group metadata.
func (s *GroupService) Update(ctx context.Context, requesterID, id string, input UpdateGroupInput) (*models.DistributionGroup, error) {
	ctx = ensureContext(ctx)

	group, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	requester, err := s.authorize(ctx, requesterID, group)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if name := trimmedPtr(input.Name); name != nil {
		if *name == "" {
			return nil, apperrors.NewBadRequest("group name is required")
		}
		if *name != group.Name {
			updates["name"] = *name
		}
	}
	if desc := trimmedPtr(input.Description); desc != nil {
		updates["description"] = *desc
	}
	if len(updates) == 0 {
		return group, nil
	}

	if err := s.db.WithContext(ctx).Model(group).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrGroupNameTaken
		}
		return nil, fmt.Errorf("group service: update group: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &requester.ID,
		Username: requester.Username,
		Action:   AuditGroupUpdate,
		Resource: group.ID,
		Result:   "success",
		Metadata: updates,
	})

	return s.load(ctx, id)
}

// Delete removes a group. Surveys sent to it keep their invitations.
func (s *GroupService) Delete(ctx context.Context, requesterID, id string) error {
	ctx = ensureContext(ctx)

	group, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	requester, err := s.authorize(ctx, requesterID, group)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Survey{}).Where("group_id = ?", group.ID).Update("group_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.DistributionGroup{}, "id = ?", group.ID).Error
	})
	if err != nil {
		return fmt.Errorf("group service: delete group: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &requester.ID,
		Username: requester.Username,
		Action:   AuditGroupDelete,
		Resource: group.ID,
		Result:   "success",
		Metadata: map[string]any{"name": group.Name},
	})
	return nil
}

// AddMember adds an email to the group, linking it to a registered account when one exists.
func (s *GroupService) AddMember(ctx context.Context, requesterID, groupID, email string) (*models.GroupMember, error) {
	ctx = ensureContext(ctx)

	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	group, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	requester, err := s.authorize(ctx, requesterID, group)
	if err != nil {
		return nil, err
	}

	member, err := addMember(ctx, s.db, group.ID, email)
	if err != nil {
		return nil, err
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &requester.ID,
		Username: requester.Username,
		Action:   AuditGroupMemberAdd,
		Resource: group.ID,
		Result:   "success",
		Metadata: map[string]any{"email": email, "linked": member.UserID != nil},
	})
	return member, nil
}

// RemoveMember drops an email from the group.
func (s *GroupService) RemoveMember(ctx context.Context, requesterID, groupID, email string) error {
	ctx = ensureContext(ctx)

	group, err := s.load(ctx, groupID)
	if err != nil {
		return err
	}
	requester, err := s.authorize(ctx, requesterID, group)
	if err != nil {
		return err
	}

	email = models.NormalizeEmail(email)
	result := s.db.WithContext(ctx).
		Where("group_id = ? AND email = ?", group.ID, email).
		Delete(&models.GroupMember{})
	if result.Error != nil {
		return fmt.Errorf("group service: remove member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrGroupMemberNotFound
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:   &requester.ID,
		Username: requester.Username,
		Action:   AuditGroupMemberDrop,
		Resource: group.ID,
		Result:   "success",
		Metadata: map[string]any{"email": email},
	})
	return nil
}

// Members lists every recipient of the group with the linked account, if any.
func (s *GroupService) Members(ctx context.Context, groupID string) ([]GroupRecipient, error) {
	return groupMembers(ensureContext(ctx), s.db, groupID)
}

func groupMembers(ctx context.Context, db *gorm.DB, groupID string) ([]GroupRecipient, error) {
	var members []models.GroupMember
	if err := db.WithContext(ctx).
		Preload("User").
		Where("group_id = ?", groupID).
		Order("email ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}

	out := make([]GroupRecipient, 0, len(members))
	for _, m := range members {
		out = append(out, GroupRecipient{Email: m.Email, User: m.User})
	}
	return out, nil
}

// addMember performs the explicit directory lookup before inserting, so the
// member row never depends on a save-time side effect.
func addMember(ctx context.Context, db *gorm.DB, groupID, email string) (*models.GroupMember, error) {
	user, err := lookupUserByEmail(ctx, db, email)
	if err != nil {
		return nil, err
	}

	member := &models.GroupMember{GroupID: groupID, Email: email}
	if user != nil {
		member.UserID = &user.ID
	}

	if err := db.WithContext(ctx).Create(member).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrGroupMemberExists
		}
		return nil, fmt.Errorf("add group member: %w", err)
	}
	return member, nil
}

func (s *GroupService) load(ctx context.Context, id string) (*models.DistributionGroup, error) {
	var group models.DistributionGroup
	err := s.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("email ASC") }).
		Take(&group, "id = ?", strings.TrimSpace(id)).Error
	if isNotFound(err) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("group service: load group: %w", err)
	}
	return &group, nil
}

func (s *GroupService) authorize(ctx context.Context, requesterID string, group *models.DistributionGroup) (*models.User, error) {
	requester, err := loadRequester(ctx, s.db, requesterID)
	if err != nil {
		return nil, err
	}
	if requester == nil {
		return nil, ErrAuthenticationRequired
	}
	if group.OwnerID != requester.ID && !requester.IsPrivileged() {
		return nil, ErrPermissionDenied
	}
	return requester, nil
}
