package voting

import (
	"net/http"

	apperrors "github.com/charlesng35/groupchoice/pkg/errors"
)

// RankedAnswer places one choice at a rank (1 is best).
type RankedAnswer struct {
	ChoiceID string `json:"choice_id"`
	Rank     int    `json:"rank"`
}

// StonesAnswer puts a number of stones on one choice.
type StonesAnswer struct {
	ChoiceID string `json:"choice_id"`
	Stones   int    `json:"stones"`
}

// Ballot is one voter's submission. Only the slice matching the survey
// method may be populated.
type Ballot struct {
	Ranked []RankedAnswer `json:"ranked_answers,omitempty"`
	Stones []StonesAnswer `json:"stones_answers,omitempty"`
}

const (
	MinRank     = 1
	MaxRank     = 10
	StonesTotal = 5
	MinStones   = 0
	MaxStones   = 5
)

var (
	ErrUnknownMethod      = apperrors.New("UNKNOWN_METHOD", "Unknown voting method", http.StatusBadRequest)
	ErrInvalidChoiceCount = apperrors.New("INVALID_CHOICE_COUNT", "Invalid number of choices for this voting method", http.StatusBadRequest)
	ErrUnknownChoice      = apperrors.New("UNKNOWN_CHOICE", "Ballot references a choice that is not part of this survey", http.StatusBadRequest)
	ErrDuplicateChoice    = apperrors.New("DUPLICATE_CHOICE", "Each choice may appear only once on a ballot", http.StatusBadRequest)
	ErrDuplicateRank      = apperrors.New("DUPLICATE_RANK", "Each rank may be used only once", http.StatusBadRequest)
	ErrInvalidRank        = apperrors.New("INVALID_RANK", "Rank is out of range", http.StatusBadRequest)
	ErrInvalidStones      = apperrors.New("INVALID_STONES", "Stones per choice must be between 0 and 5", http.StatusBadRequest)
	ErrIncompleteBallot   = apperrors.New("INCOMPLETE_BALLOT", "Every choice must be answered", http.StatusBadRequest)
	ErrStonesSumMismatch  = apperrors.New("STONES_SUM_MISMATCH", "Stones must add up to exactly 5", http.StatusBadRequest)
)
