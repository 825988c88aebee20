// Package voting validates ballots and tallies results for the supported
// survey methods. It performs no I/O.
package voting

import (
	"fmt"
	"sort"
)

// Method identifies a voting method.
type Method string

const (
	RankedChoice Method = "ranked_choice"
	FiveStones   Method = "five_stones"
)

// ChoiceRef is the part of a survey choice the engine needs.
type ChoiceRef struct {
	ID       string
	Text     string
	Position int
}

// Scheme is the validate/tally capability pair of one voting method.
type Scheme interface {
	Method() Method
	// ChoiceBounds returns the inclusive number of choices a survey of this
	// method must carry.
	ChoiceBounds() (min, max int)
	Validate(choices []ChoiceRef, ballot Ballot) error
	Tally(choices []ChoiceRef, ballots []Ballot) Results
}

var schemes = map[Method]Scheme{
	RankedChoice: rankedScheme{},
	FiveStones:   stonesScheme{},
}

// SchemeFor returns the scheme implementing method.
func SchemeFor(method Method) (Scheme, error) {
	scheme, ok := schemes[method]
	if !ok {
		return nil, ErrUnknownMethod.WithMessage("unknown voting method %q", string(method))
	}
	return scheme, nil
}

// Methods lists the supported methods in a stable order.
func Methods() []Method {
	out := make([]Method, 0, len(schemes))
	for m := range schemes {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckChoiceCount verifies a survey's choice count against the method bounds.
func CheckChoiceCount(method Method, count int) error {
	scheme, err := SchemeFor(method)
	if err != nil {
		return err
	}
	lo, hi := scheme.ChoiceBounds()
	if count < lo || count > hi {
		if lo == hi {
			return ErrInvalidChoiceCount.WithMessage("%s surveys need exactly %d choices, got %d", method, lo, count)
		}
		return ErrInvalidChoiceCount.WithMessage("%s surveys need between %d and %d choices, got %d", method, lo, hi, count)
	}
	return nil
}

func indexChoices(choices []ChoiceRef) map[string]ChoiceRef {
	idx := make(map[string]ChoiceRef, len(choices))
	for _, c := range choices {
		idx[c.ID] = c
	}
	return idx
}

func describe(c ChoiceRef) string {
	if c.Text != "" {
		return fmt.Sprintf("%q", c.Text)
	}
	return c.ID
}
