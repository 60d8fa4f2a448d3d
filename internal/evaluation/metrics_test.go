package evaluation

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRank(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		class  int
		want   int
	}{
		{"unique maximum", []float64{0.1, 0.7, 0.2}, 1, 1},
		{"unique minimum", []float64{0.1, 0.7, 0.2}, 0, 3},
		{"middle", []float64{0.1, 0.7, 0.2}, 2, 2},
		{"tie with true class is optimistic", []float64{0.5, 0.5, 0.1}, 1, 1},
		{"all equal", []float64{0.3, 0.3, 0.3, 0.3}, 3, 1},
		{"single class", []float64{0.9}, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rank(tt.scores, tt.class))
		})
	}
}

func TestRank_Bounds(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		c := 1 + r.IntN(30)
		scores := randomVector(r, c)
		class := r.IntN(c)
		got := Rank(scores, class)
		require.GreaterOrEqual(t, got, 1)
		require.LessOrEqual(t, got, c)
	}
}

func TestRank_TieInvariance(t *testing.T) {
	scores := []float64{0.2, 0.7, 0.7, 0.1}
	swapped := []float64{0.2, 0.7, 0.7, 0.1}
	swapped[1], swapped[2] = swapped[2], swapped[1]

	for _, class := range []int{0, 3} {
		assert.Equal(t, Rank(scores, class), Rank(swapped, class))
	}
	assert.Equal(t, 4, Rank(scores, 3))
	assert.Equal(t, 3, Rank(scores, 0))
}

func TestTopKAccuracy(t *testing.T) {
	ranks := []int{1, 3}
	assert.Equal(t, 50.0, TopKAccuracy(ranks, 1))
	assert.Equal(t, 100.0, TopKAccuracy(ranks, 3))
	assert.True(t, math.IsNaN(TopKAccuracy(nil, 1)))
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 1, Argmax([]float64{0.1, 0.9, 0.3}))
	assert.Equal(t, 0, Argmax([]float64{0.5, 0.5, 0.1}), "lowest index wins ties")
}

func TestTripletRank(t *testing.T) {
	sub := []float64{0.8, 0.1, 0.1}
	obj := []float64{0.1, 0.8, 0.1}
	rel := []float64{0.05, 0.6, 0.1, 0.15, 0.1}

	assert.Equal(t, 1, TripletRank(sub, obj, rel, 0, 1, 1))
	// 0.8*0.8*0.6 and 0.8*0.8*0.15 beat 0.8*0.8*0.1.
	assert.Equal(t, 3, TripletRank(sub, obj, rel, 0, 1, 2))
}

func TestTripletRank_SortedMatchesNaive(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		nObj := 1 + r.IntN(12)
		nRel := 1 + r.IntN(8)
		sub := randomVector(r, nObj)
		obj := randomVector(r, nObj)
		rel := randomVector(r, nRel)
		gs, gob, gr := r.IntN(nObj), r.IntN(nObj), r.IntN(nRel)
		target := sub[gs] * obj[gob] * rel[gr]

		require.Equal(t,
			tripletRankNaive(sub, obj, rel, target),
			tripletRankSorted(sub, obj, rel, target),
			"iteration %d", i)
	}
}

func TestTripletRank_NegativeScoresUseNaive(t *testing.T) {
	sub := []float64{-1, 2}
	obj := []float64{-3, 1}
	rel := []float64{1}

	// Products: 3, -1, -6, 2. Target -1 has two strictly larger products.
	assert.Equal(t, 3, TripletRank(sub, obj, rel, 0, 1, 0))
}
