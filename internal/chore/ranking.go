package chore

import (
	"cmp"
	"slices"

	"github.com/dukerupert/coolive/internal/model"
)

// Rank sorts standings by points descending, breaking ties by user id so the
// order is reproducible, and numbers them with shared ranks for ties (1, 1, 3).
func Rank(standings []model.Standing) []model.Standing {
	out := slices.Clone(standings)
	slices.SortFunc(out, func(a, b model.Standing) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	for i := range out {
		if i > 0 && out[i].Points == out[i-1].Points {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out
}
