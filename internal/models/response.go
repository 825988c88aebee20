package models

import "time"

// Participation records that a voting identity has cast its one ballot on a
// survey. It never references the ballot, so anonymous responses stay
// detached from who submitted them.
type Participation struct {
	BaseModel

	SurveyID string  `gorm:"type:uuid;not null;uniqueIndex:idx_participation_survey_voter" json:"survey_id"`
	VoterKey string  `gorm:"not null;uniqueIndex:idx_participation_survey_voter" json:"-"`
	UserID   *string `gorm:"type:uuid;index" json:"user_id,omitempty"`

	Survey *Survey `gorm:"foreignKey:SurveyID;constraint:OnDelete:CASCADE" json:"-"`
	User   *User   `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`
}

// Response is one committed ballot. On anonymous surveys it carries no user,
// email or address, and its timestamps are coarsened to the day.
type Response struct {
	BaseModel

	SurveyID       string    `gorm:"type:uuid;not null;index" json:"survey_id"`
	UserID         *string   `gorm:"type:uuid;index" json:"user_id,omitempty"`
	AnonymousEmail string    `json:"anonymous_email,omitempty"`
	IPAddress      *string   `json:"ip_address,omitempty"`
	SubmittedAt    time.Time `gorm:"not null;index" json:"submitted_at"`

	Survey        *Survey        `gorm:"foreignKey:SurveyID;constraint:OnDelete:CASCADE" json:"-"`
	User          *User          `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`
	RankedAnswers []RankedAnswer `gorm:"foreignKey:ResponseID;constraint:OnDelete:CASCADE" json:"ranked_answers,omitempty"`
	StonesAnswers []StonesAnswer `gorm:"foreignKey:ResponseID;constraint:OnDelete:CASCADE" json:"stones_answers,omitempty"`
}

// RankedAnswer places one choice at a rank within a ranked-choice ballot.
type RankedAnswer struct {
	BaseModel

	ResponseID string `gorm:"type:uuid;not null;uniqueIndex:idx_ranked_response_choice" json:"response_id"`
	ChoiceID   string `gorm:"type:uuid;not null;uniqueIndex:idx_ranked_response_choice" json:"choice_id"`
	Rank       int    `gorm:"not null" json:"rank"`

	Choice *Choice `gorm:"foreignKey:ChoiceID;constraint:OnDelete:CASCADE" json:"choice,omitempty"`
}

// StonesAnswer allocates stones to one choice within a five-stones ballot.
type StonesAnswer struct {
	BaseModel

	ResponseID string `gorm:"type:uuid;not null;uniqueIndex:idx_stones_response_choice" json:"response_id"`
	ChoiceID   string `gorm:"type:uuid;not null;uniqueIndex:idx_stones_response_choice" json:"choice_id"`
	Stones     int    `gorm:"not null" json:"stones"`

	Choice *Choice `gorm:"foreignKey:ChoiceID;constraint:OnDelete:CASCADE" json:"choice,omitempty"`
}
