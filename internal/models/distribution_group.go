package models

import (
	"time"

	"gorm.io/gorm"
)

// DistributionGroup is a named list of recipients a survey can be sent to.
type DistributionGroup struct {
	BaseModel

	Name        string `gorm:"not null;uniqueIndex:idx_group_owner_name" json:"name"`
	Description string `json:"description"`
	OwnerID     string `gorm:"type:uuid;not null;uniqueIndex:idx_group_owner_name" json:"owner_id"`

	Owner   *User         `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
	Members []GroupMember `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// GroupMember is one recipient of a group, optionally linked to a registered user.
type GroupMember struct {
	BaseModel

	GroupID string    `gorm:"type:uuid;not null;uniqueIndex:idx_group_member_email" json:"group_id"`
	Email   string    `gorm:"not null;uniqueIndex:idx_group_member_email" json:"email"`
	UserID  *string   `gorm:"type:uuid;index" json:"user_id,omitempty"`
	AddedAt time.Time `json:"added_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"user,omitempty"`
}

// BeforeSave lower-cases the address so members compare case-insensitively.
func (m *GroupMember) BeforeSave(tx *gorm.DB) error {
	m.Email = NormalizeEmail(m.Email)
	if m.AddedAt.IsZero() {
		m.AddedAt = time.Now().UTC()
	}
	return nil
}
