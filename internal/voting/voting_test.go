package voting

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func threeChoices() []ChoiceRef {
	return []ChoiceRef{
		{ID: "a", Text: "A", Position: 1},
		{ID: "b", Text: "B", Position: 2},
		{ID: "c", Text: "C", Position: 3},
	}
}

func ranked(pairs ...any) Ballot {
	var b Ballot
	for i := 0; i < len(pairs); i += 2 {
		b.Ranked = append(b.Ranked, RankedAnswer{ChoiceID: pairs[i].(string), Rank: pairs[i+1].(int)})
	}
	return b
}

func stones(pairs ...any) Ballot {
	var b Ballot
	for i := 0; i < len(pairs); i += 2 {
		b.Stones = append(b.Stones, StonesAnswer{ChoiceID: pairs[i].(string), Stones: pairs[i+1].(int)})
	}
	return b
}

func mustScheme(t *testing.T, m Method) Scheme {
	t.Helper()
	s, err := SchemeFor(m)
	require.NoError(t, err)
	require.Equal(t, m, s.Method())
	return s
}

func TestSchemeForUnknownMethod(t *testing.T) {
	_, err := SchemeFor("plurality")
	require.ErrorIs(t, err, ErrUnknownMethod)
	require.Equal(t, []Method{FiveStones, RankedChoice}, Methods())
}

func TestCheckChoiceCount(t *testing.T) {
	require.NoError(t, CheckChoiceCount(RankedChoice, 2))
	require.NoError(t, CheckChoiceCount(RankedChoice, 10))
	require.ErrorIs(t, CheckChoiceCount(RankedChoice, 1), ErrInvalidChoiceCount)
	require.ErrorIs(t, CheckChoiceCount(RankedChoice, 11), ErrInvalidChoiceCount)

	require.NoError(t, CheckChoiceCount(FiveStones, 3))
	err := CheckChoiceCount(FiveStones, 4)
	require.ErrorIs(t, err, ErrInvalidChoiceCount)
	require.Contains(t, err.Error(), "exactly 3")

	require.ErrorIs(t, CheckChoiceCount("other", 3), ErrUnknownMethod)
}

func TestRankedValidate(t *testing.T) {
	s := mustScheme(t, RankedChoice)
	choices := threeChoices()

	cases := []struct {
		name   string
		ballot Ballot
		want   error
	}{
		{"valid permutation", ranked("a", 1, "b", 2, "c", 3), nil},
		{"valid any order", ranked("c", 1, "a", 3, "b", 2), nil},
		{"unknown choice", ranked("a", 1, "b", 2, "z", 3), ErrUnknownChoice},
		{"duplicate choice", ranked("a", 1, "a", 2, "c", 3), ErrDuplicateChoice},
		{"duplicate rank", ranked("a", 1, "b", 1, "c", 3), ErrDuplicateRank},
		{"partial ranking", ranked("a", 1, "b", 2), ErrIncompleteBallot},
		{"rank zero", ranked("a", 0, "b", 2, "c", 3), ErrInvalidRank},
		{"rank above ten", ranked("a", 11, "b", 2, "c", 3), ErrInvalidRank},
		{"rank beyond choice count", ranked("a", 1, "b", 2, "c", 5), ErrInvalidRank},
		{"empty", Ballot{}, ErrIncompleteBallot},
		{"stones on ranked survey", stones("a", 5, "b", 0, "c", 0), ErrIncompleteBallot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Validate(choices, tc.ballot)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRankedValidateCheckOrder(t *testing.T) {
	s := mustScheme(t, RankedChoice)
	// Unknown choice is reported before the duplicate rank that follows it.
	err := s.Validate(threeChoices(), ranked("z", 1, "a", 1))
	require.ErrorIs(t, err, ErrUnknownChoice)

	// Duplicate rank is reported before the ballot is found incomplete.
	err = s.Validate(threeChoices(), ranked("a", 2, "b", 2))
	require.ErrorIs(t, err, ErrDuplicateRank)
}

func TestStonesValidate(t *testing.T) {
	s := mustScheme(t, FiveStones)
	choices := threeChoices()

	cases := []struct {
		name   string
		ballot Ballot
		want   error
	}{
		{"3-1-1", stones("a", 3, "b", 1, "c", 1), nil},
		{"2-2-1", stones("a", 2, "b", 2, "c", 1), nil},
		{"5-0-0", stones("a", 5, "b", 0, "c", 0), nil},
		{"3-3-0 sums to six", stones("a", 3, "b", 3, "c", 0), ErrStonesSumMismatch},
		{"sum too low", stones("a", 1, "b", 1, "c", 1), ErrStonesSumMismatch},
		{"negative", stones("a", 5, "b", -1, "c", 1), ErrInvalidStones},
		{"above five", stones("a", 6, "b", 0, "c", 0), ErrInvalidStones},
		{"unknown choice", stones("a", 3, "x", 1, "c", 1), ErrUnknownChoice},
		{"duplicate choice", stones("a", 3, "a", 1, "c", 1), ErrDuplicateChoice},
		{"two of three", stones("a", 3, "b", 2), ErrIncompleteBallot},
		{"ranked on stones survey", ranked("a", 1, "b", 2, "c", 3), ErrIncompleteBallot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Validate(choices, tc.ballot)
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestValidateIsPure(t *testing.T) {
	s := mustScheme(t, FiveStones)
	b := stones("a", 3, "b", 3, "c", 0)
	first := s.Validate(threeChoices(), b)
	second := s.Validate(threeChoices(), b)
	require.Equal(t, first.Error(), second.Error())
}

func TestBordaSingleBallot(t *testing.T) {
	s := mustScheme(t, RankedChoice)
	res := s.Tally(threeChoices(), []Ballot{ranked("a", 1, "b", 2, "c", 3)})

	require.Equal(t, RankedChoice, res.Method)
	require.Equal(t, "borda_count", res.Scoring)
	require.Equal(t, 1, res.TotalResponses)
	require.Nil(t, res.TotalStones)
	require.Len(t, res.Choices, 3)

	require.Equal(t, "A", res.Choices[0].Text)
	require.Equal(t, 3, res.Choices[0].Total)
	require.Equal(t, "B", res.Choices[1].Text)
	require.Equal(t, 2, res.Choices[1].Total)
	require.Equal(t, "C", res.Choices[2].Text)
	require.Equal(t, 1, res.Choices[2].Total)
	require.Equal(t, []int{1}, res.Choices[0].Received)
}

func TestBordaMultipleBallots(t *testing.T) {
	s := mustScheme(t, RankedChoice)
	res := s.Tally(threeChoices(), []Ballot{
		ranked("a", 1, "b", 2, "c", 3),
		ranked("c", 1, "b", 2, "a", 3),
		ranked("c", 1, "a", 2, "b", 3),
	})

	// a: 3+1+2=6, b: 2+2+1=5, c: 1+3+3=7
	require.Equal(t, "C", res.Choices[0].Text)
	require.Equal(t, 7, res.Choices[0].Total)
	require.Equal(t, "A", res.Choices[1].Text)
	require.Equal(t, 6, res.Choices[1].Total)
	require.Equal(t, []int{1, 2, 3}, res.Choices[1].Received)
	require.Equal(t, 5, res.Choices[2].Total)
}

func TestTiesFollowChoiceOrder(t *testing.T) {
	s := mustScheme(t, RankedChoice)
	res := s.Tally(threeChoices(), []Ballot{
		ranked("a", 1, "b", 2, "c", 3),
		ranked("c", 1, "b", 2, "a", 3),
	})
	// a=4, b=4, c=4
	require.Equal(t, []string{"A", "B", "C"}, []string{res.Choices[0].Text, res.Choices[1].Text, res.Choices[2].Text})

	res = mustScheme(t, FiveStones).Tally(threeChoices(), []Ballot{stones("a", 1, "b", 2, "c", 2)})
	require.Equal(t, []string{"B", "C", "A"}, []string{res.Choices[0].Text, res.Choices[1].Text, res.Choices[2].Text})
}

func TestStonesTally(t *testing.T) {
	s := mustScheme(t, FiveStones)
	res := s.Tally(threeChoices(), []Ballot{stones("a", 3, "b", 1, "c", 1)})

	require.Equal(t, FiveStones, res.Method)
	require.Empty(t, res.Scoring)
	require.Equal(t, 1, res.TotalResponses)
	require.NotNil(t, res.TotalStones)
	require.Equal(t, 5, *res.TotalStones)
	require.Equal(t, "A", res.Choices[0].Text)
	require.Equal(t, 3, res.Choices[0].Total)
}

func TestStonesDistributionIsAscending(t *testing.T) {
	s := mustScheme(t, FiveStones)
	res := s.Tally(threeChoices(), []Ballot{
		stones("a", 3, "b", 2, "c", 0),
		stones("a", 1, "b", 0, "c", 4),
		stones("a", 2, "b", 3, "c", 0),
		stones("a", 0, "b", 5, "c", 0),
	})

	// a=6, b=10, c=4
	require.Equal(t, []string{"B", "A", "C"}, []string{res.Choices[0].Text, res.Choices[1].Text, res.Choices[2].Text})
	require.Equal(t, []int{0, 2, 3, 5}, res.Choices[0].Received)
	require.Equal(t, []int{0, 1, 2, 3}, res.Choices[1].Received)
	require.Equal(t, []int{0, 0, 0, 4}, res.Choices[2].Received)
	require.Equal(t, 20, *res.TotalStones)
}

func TestStonesTotalIsDerivedFromResponseCount(t *testing.T) {
	s := mustScheme(t, FiveStones)
	// A response whose answers were lost still counts toward the expected total.
	res := s.Tally(threeChoices(), []Ballot{stones("a", 5, "b", 0, "c", 0), {}})
	require.Equal(t, 2, res.TotalResponses)
	require.Equal(t, 10, *res.TotalStones)
	require.Equal(t, 5, res.Choices[0].Total)
}

func TestTallyWithoutBallots(t *testing.T) {
	res := mustScheme(t, RankedChoice).Tally(threeChoices(), nil)
	require.Zero(t, res.TotalResponses)
	require.Len(t, res.Choices, 3)
	for _, c := range res.Choices {
		require.Zero(t, c.Total)
		require.Empty(t, c.Received)
	}
	require.Equal(t, "A", res.Choices[0].Text)
}

func TestTallyIsIdempotent(t *testing.T) {
	s := mustScheme(t, RankedChoice)
	ballots := []Ballot{ranked("b", 1, "a", 2, "c", 3), ranked("a", 1, "c", 2, "b", 3)}

	first, err := json.Marshal(s.Tally(threeChoices(), ballots))
	require.NoError(t, err)
	second, err := json.Marshal(s.Tally(threeChoices(), ballots))
	require.NoError(t, err)
	require.JSONEq(t, string(first), string(second))
}

func TestResultsJSONShape(t *testing.T) {
	rankedJSON, err := json.Marshal(mustScheme(t, RankedChoice).Tally(threeChoices(), []Ballot{ranked("a", 1, "b", 2, "c", 3)}))
	require.NoError(t, err)

	var rankedOut map[string]any
	require.NoError(t, json.Unmarshal(rankedJSON, &rankedOut))
	require.Equal(t, "ranked_choice", rankedOut["type"])
	require.Equal(t, "borda_count", rankedOut["method"])
	require.NotContains(t, rankedOut, "total_stones")
	first := rankedOut["results"].([]any)[0].(map[string]any)
	require.Equal(t, "A", first["text"])
	require.EqualValues(t, 3, first["score"])
	require.Equal(t, []any{float64(1)}, first["rankings"])

	stonesJSON, err := json.Marshal(mustScheme(t, FiveStones).Tally(threeChoices(), []Ballot{stones("a", 3, "b", 1, "c", 1)}))
	require.NoError(t, err)

	var stonesOut map[string]any
	require.NoError(t, json.Unmarshal(stonesJSON, &stonesOut))
	require.Equal(t, "five_stones", stonesOut["type"])
	require.EqualValues(t, 5, stonesOut["total_stones"])
	top := stonesOut["results"].([]any)[0].(map[string]any)
	require.EqualValues(t, 3, top["stones"])
	require.Contains(t, top, "distribution")
	require.NotContains(t, top, "score")
}
