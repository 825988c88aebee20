package models

import "time"

// SurveyMethod identifies how ballots are cast and scored.
type SurveyMethod string

const (
	MethodRankedChoice SurveyMethod = "ranked_choice"
	MethodFiveStones   SurveyMethod = "five_stones"
)

// Survey is a question with a fixed method, a set of choices and an optional
// distribution group.
type Survey struct {
	BaseModel

	Title       string       `gorm:"not null" json:"title"`
	Question    string       `gorm:"type:text;not null" json:"question"`
	Description string       `gorm:"type:text" json:"description"`
	Method      SurveyMethod `gorm:"type:varchar(32);not null;index" json:"method"`

	OwnerID string  `gorm:"type:uuid;not null;index" json:"owner_id"`
	GroupID *string `gorm:"type:uuid;index" json:"group_id,omitempty"`

	IsAnonymous   bool       `gorm:"not null" json:"is_anonymous"`
	ResultsPublic bool       `gorm:"not null" json:"results_public"`
	IsActive      bool       `gorm:"not null" json:"is_active"`
	Deadline      *time.Time `gorm:"index" json:"deadline,omitempty"`

	Owner   *User              `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"owner,omitempty"`
	Group   *DistributionGroup `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL" json:"group,omitempty"`
	Choices []Choice           `gorm:"foreignKey:SurveyID;constraint:OnDelete:CASCADE" json:"choices,omitempty"`
}

// IsOpen reports whether the survey accepts votes at the given instant.
func (s *Survey) IsOpen(now time.Time) bool {
	if s == nil || !s.IsActive {
		return false
	}
	return s.Deadline == nil || now.Before(*s.Deadline)
}

// IsOwnedBy reports whether userID authored the survey.
func (s *Survey) IsOwnedBy(userID string) bool {
	return s != nil && userID != "" && s.OwnerID == userID
}

// Choice is one option of a survey. Position runs 1..N within the survey.
type Choice struct {
	BaseModel

	SurveyID string `gorm:"type:uuid;not null;uniqueIndex:idx_choice_survey_position" json:"survey_id"`
	Text     string `gorm:"not null" json:"text"`
	URL      string `json:"url,omitempty"`
	Position int    `gorm:"not null;uniqueIndex:idx_choice_survey_position" json:"order"`
}
