package voting

import (
	"encoding/json"
	"sort"
)

// Results is the aggregated outcome of a survey.
type Results struct {
	Method         Method         `json:"type"`
	Scoring        string         `json:"method,omitempty"`
	TotalResponses int            `json:"total_responses"`
	TotalStones    *int           `json:"total_stones,omitempty"`
	Choices        []ChoiceResult `json:"results"`
}

// ChoiceResult is one choice's total and the individual values it received:
// ranks for ranked-choice, stone allocations for five-stones.
type ChoiceResult struct {
	ChoiceID string
	Text     string
	Position int
	Total    int
	Received []int

	method Method
}

// MarshalJSON names the total and the per-ballot values after the method.
func (r ChoiceResult) MarshalJSON() ([]byte, error) {
	received := r.Received
	if received == nil {
		received = []int{}
	}
	if r.method == FiveStones {
		return json.Marshal(struct {
			ChoiceID     string `json:"choice_id"`
			Text         string `json:"text"`
			Position     int    `json:"order"`
			Stones       int    `json:"stones"`
			Distribution []int  `json:"distribution"`
		}{r.ChoiceID, r.Text, r.Position, r.Total, received})
	}
	return json.Marshal(struct {
		ChoiceID string `json:"choice_id"`
		Text     string `json:"text"`
		Position int    `json:"order"`
		Score    int    `json:"score"`
		Rankings []int  `json:"rankings"`
	}{r.ChoiceID, r.Text, r.Position, r.Total, received})
}

type rowSet struct {
	ordered []*ChoiceResult
	byID    map[string]*ChoiceResult
}

func newRows(choices []ChoiceRef, method Method) rowSet {
	set := rowSet{
		ordered: make([]*ChoiceResult, 0, len(choices)),
		byID:    make(map[string]*ChoiceResult, len(choices)),
	}
	for _, c := range choices {
		row := &ChoiceResult{ChoiceID: c.ID, Text: c.Text, Position: c.Position, Received: []int{}, method: method}
		set.ordered = append(set.ordered, row)
		set.byID[c.ID] = row
	}
	return set
}

// sorted orders rows by total descending; equal totals keep survey position
// order so repeated tallies are identical.
func (s rowSet) sorted() []ChoiceResult {
	out := make([]ChoiceResult, len(s.ordered))
	for i, row := range s.ordered {
		out[i] = *row
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Position < out[j].Position
	})
	return out
}
