package voting

import "sort"

// stonesScheme gives every voter five stones to spread over exactly three choices.
type stonesScheme struct{}

func (stonesScheme) Method() Method { return FiveStones }

func (stonesScheme) ChoiceBounds() (int, int) { return 3, 3 }

func (stonesScheme) Validate(choices []ChoiceRef, ballot Ballot) error {
	if len(ballot.Ranked) > 0 {
		return ErrIncompleteBallot.WithMessage("five-stones surveys take stone allocations")
	}
	if len(ballot.Stones) == 0 {
		return ErrIncompleteBallot.WithMessage("stone allocations are required")
	}

	known := indexChoices(choices)
	seen := make(map[string]struct{}, len(ballot.Stones))
	sum := 0

	for _, a := range ballot.Stones {
		choice, ok := known[a.ChoiceID]
		if !ok {
			return ErrUnknownChoice.WithMessage("choice %s is not part of this survey", a.ChoiceID)
		}
		if _, dup := seen[a.ChoiceID]; dup {
			return ErrDuplicateChoice.WithMessage("choice %s receives stones more than once", describe(choice))
		}
		seen[a.ChoiceID] = struct{}{}

		if a.Stones < MinStones || a.Stones > MaxStones {
			return ErrInvalidStones.WithMessage("%d stones on %s is outside %d..%d", a.Stones, describe(choice), MinStones, MaxStones)
		}
		sum += a.Stones
	}

	if sum != StonesTotal {
		return ErrStonesSumMismatch.WithMessage("stones add up to %d, expected %d", sum, StonesTotal)
	}
	if len(ballot.Stones) != len(choices) {
		return ErrIncompleteBallot.WithMessage("all %d choices need an allocation, got %d", len(choices), len(ballot.Stones))
	}
	return nil
}

func (stonesScheme) Tally(choices []ChoiceRef, ballots []Ballot) Results {
	rows := newRows(choices, FiveStones)

	for _, b := range ballots {
		for _, a := range b.Stones {
			row, ok := rows.byID[a.ChoiceID]
			if !ok {
				continue
			}
			row.Total += a.Stones
			row.Received = append(row.Received, a.Stones)
		}
	}

	for _, row := range rows.ordered {
		sort.Ints(row.Received)
	}

	// Expected total, not a sum of stored allocations.
	totalStones := len(ballots) * StonesTotal
	return Results{
		Method:         FiveStones,
		TotalResponses: len(ballots),
		TotalStones:    &totalStones,
		Choices:        rows.sorted(),
	}
}
