package locset

import "context"

// Matcher probes one candidate. ok reports whether the candidate is accepted;
// count is the number of matches observed. An error counts as not matched.
type Matcher func(ctx context.Context, locator string) (count int, ok bool, err error)

// Match is the outcome of a first-match-wins resolution.
type Match struct {
	Locator string `json:"locator,omitempty"`
	Index   int    `json:"index"`
	Count   int    `json:"count"`

	// Tried is the number of candidates evaluated, the winner included.
	Tried int `json:"tried"`

	// LastErr is the error of the last rejected candidate, if any.
	LastErr error `json:"-"`
}

// FirstMatch tries candidates in order and returns the first one the matcher
// accepts. Candidates after the winner are not evaluated.
func FirstMatch(ctx context.Context, cands Candidates, m Matcher) (Match, bool) {
	res := Match{Index: -1}
	for i, loc := range cands {
		if ctx.Err() != nil {
			res.LastErr = ctx.Err()
			return res, false
		}
		res.Tried++
		count, ok, err := m(ctx, loc)
		if err != nil {
			res.LastErr = err
			continue
		}
		if ok {
			res.Locator = loc
			res.Index = i
			res.Count = count
			return res, true
		}
	}
	return res, false
}
