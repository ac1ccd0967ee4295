package chore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dukerupert/coolive/internal/model"
)

func TestRank(t *testing.T) {
	standings := []model.Standing{
		{UserID: 3, Points: 5},
		{UserID: 1, Points: 12},
		{UserID: 4, Points: 0},
		{UserID: 2, Points: 5},
	}

	got := Rank(standings)

	var order []int64
	var ranks []int
	for _, s := range got {
		order = append(order, s.UserID)
		ranks = append(ranks, s.Rank)
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, order)
	assert.Equal(t, []int{1, 2, 2, 4}, ranks)

	// Input is left untouched.
	assert.Equal(t, int64(3), standings[0].UserID)
	assert.Zero(t, standings[0].Rank)
}

func TestRankAllTied(t *testing.T) {
	got := Rank([]model.Standing{{UserID: 2}, {UserID: 1}, {UserID: 3}})
	for _, s := range got {
		assert.Equal(t, 1, s.Rank)
	}
	assert.Equal(t, int64(1), got[0].UserID)
}

func TestRankIsDeterministic(t *testing.T) {
	a := Rank([]model.Standing{{UserID: 9, Points: 3}, {UserID: 7, Points: 3}, {UserID: 8, Points: 3}})
	b := Rank([]model.Standing{{UserID: 8, Points: 3}, {UserID: 9, Points: 3}, {UserID: 7, Points: 3}})
	assert.Equal(t, a, b)
}

func TestRankEmpty(t *testing.T) {
	assert.Empty(t, Rank(nil))
}
