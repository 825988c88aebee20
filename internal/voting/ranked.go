package voting

import "sort"

// rankedScheme scores ballots with the Borda count: a rank-k answer among N
// choices earns N-k+1 points.
type rankedScheme struct{}

func (rankedScheme) Method() Method { return RankedChoice }

func (rankedScheme) ChoiceBounds() (int, int) { return 2, 10 }

func (rankedScheme) Validate(choices []ChoiceRef, ballot Ballot) error {
	if len(ballot.Stones) > 0 {
		return ErrIncompleteBallot.WithMessage("ranked-choice surveys take ranked answers")
	}
	if len(ballot.Ranked) == 0 {
		return ErrIncompleteBallot.WithMessage("ranked answers are required")
	}

	known := indexChoices(choices)
	seenChoice := make(map[string]struct{}, len(ballot.Ranked))
	seenRank := make(map[int]struct{}, len(ballot.Ranked))

	for _, a := range ballot.Ranked {
		choice, ok := known[a.ChoiceID]
		if !ok {
			return ErrUnknownChoice.WithMessage("choice %s is not part of this survey", a.ChoiceID)
		}
		if _, dup := seenChoice[a.ChoiceID]; dup {
			return ErrDuplicateChoice.WithMessage("choice %s is ranked more than once", describe(choice))
		}
		seenChoice[a.ChoiceID] = struct{}{}

		if a.Rank < MinRank || a.Rank > MaxRank {
			return ErrInvalidRank.WithMessage("rank %d is outside %d..%d", a.Rank, MinRank, MaxRank)
		}
		if _, dup := seenRank[a.Rank]; dup {
			return ErrDuplicateRank.WithMessage("rank %d is used more than once", a.Rank)
		}
		seenRank[a.Rank] = struct{}{}
	}

	if len(ballot.Ranked) != len(choices) {
		return ErrIncompleteBallot.WithMessage("all %d choices must be ranked, got %d", len(choices), len(ballot.Ranked))
	}

	// N distinct ranks that are all <= N form a permutation of 1..N.
	for _, a := range ballot.Ranked {
		if a.Rank > len(choices) {
			return ErrInvalidRank.WithMessage("rank %d exceeds the number of choices (%d)", a.Rank, len(choices))
		}
	}
	return nil
}

func (rankedScheme) Tally(choices []ChoiceRef, ballots []Ballot) Results {
	n := len(choices)
	rows := newRows(choices, RankedChoice)

	for _, b := range ballots {
		for _, a := range b.Ranked {
			row, ok := rows.byID[a.ChoiceID]
			if !ok {
				continue
			}
			row.Total += n - a.Rank + 1
			row.Received = append(row.Received, a.Rank)
		}
	}

	for _, row := range rows.ordered {
		sort.Ints(row.Received)
	}

	return Results{
		Method:         RankedChoice,
		Scoring:        "borda_count",
		TotalResponses: len(ballots),
		Choices:        rows.sorted(),
	}
}
