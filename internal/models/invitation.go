package models

import "time"

// Invitation is a one-time voting credential issued to a group member.
type Invitation struct {
	BaseModel

	SurveyID  string     `gorm:"type:uuid;not null;uniqueIndex:idx_invitation_survey_email" json:"survey_id"`
	Email     string     `gorm:"not null;uniqueIndex:idx_invitation_survey_email" json:"email"`
	TokenHash string     `gorm:"not null;uniqueIndex" json:"-"`
	UserID    *string    `gorm:"type:uuid;index" json:"user_id,omitempty"`
	IsUsed    bool       `gorm:"not null;index" json:"is_used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expires_at"`

	Survey *Survey `gorm:"foreignKey:SurveyID;constraint:OnDelete:CASCADE" json:"-"`
	User   *User   `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`
}

// IsValid reports whether the invitation can still be redeemed.
func (i *Invitation) IsValid(now time.Time) bool {
	return i != nil && !i.IsUsed && now.Before(i.ExpiresAt)
}
