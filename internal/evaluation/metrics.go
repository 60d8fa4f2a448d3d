package evaluation

import (
	"math"
	"sort"
)

// Rank returns the 1-indexed position of trueClass when scores are sorted in
// descending order. Only strictly greater scores push it down, so ties with
// the true class resolve in its favour.
func Rank(scores []float64, trueClass int) int {
	target := scores[trueClass]
	rank := 1
	for j, s := range scores {
		if j != trueClass && s > target {
			rank++
		}
	}
	return rank
}

// RankAll ranks each row of scores against its label.
func RankAll(scores [][]float64, labels []int) []int {
	ranks := make([]int, len(labels))
	for i, label := range labels {
		ranks[i] = Rank(scores[i], label)
	}
	return ranks
}

// TopKAccuracy returns the percentage of ranks within k. NaN for no ranks.
func TopKAccuracy(ranks []int, k int) float64 {
	if len(ranks) == 0 {
		return math.NaN()
	}
	hits := 0
	for _, r := range ranks {
		if r <= k {
			hits++
		}
	}
	return float64(hits) * 100 / float64(len(ranks))
}

// Argmax returns the index of the largest score, the lowest index on ties.
func Argmax(scores []float64) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best
}

// TripletRank ranks the ground-truth (subject, object, predicate) combination
// inside the edge's full product distribution sub[i] * obj[j] * rel[c].
func TripletRank(sub, obj, rel []float64, gtSub, gtObj, gtRel int) int {
	target := sub[gtSub] * obj[gtObj] * rel[gtRel]
	if nonNegative(sub) && nonNegative(obj) && nonNegative(rel) {
		return tripletRankSorted(sub, obj, rel, target)
	}
	return tripletRankNaive(sub, obj, rel, target)
}

// tripletRankNaive counts every product strictly above target.
func tripletRankNaive(sub, obj, rel []float64, target float64) int {
	rank := 1
	for _, a := range sub {
		for _, b := range obj {
			ab := a * b
			for _, c := range rel {
				if ab*c > target {
					rank++
				}
			}
		}
	}
	return rank
}

// tripletRankSorted produces the same count as the naive scan in
// O(|sub| * |rel| * log |obj|). With non-negative factors, (a*b)*c is
// monotone in b, so the products above target form a prefix of obj sorted
// in descending order.
func tripletRankSorted(sub, obj, rel []float64, target float64) int {
	sorted := make([]float64, len(obj))
	copy(sorted, obj)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	rank := 1
	for _, a := range sub {
		for _, c := range rel {
			rank += sort.Search(len(sorted), func(j int) bool {
				return (a*sorted[j])*c <= target
			})
		}
	}
	return rank
}

func nonNegative(v []float64) bool {
	for _, x := range v {
		if x < 0 || math.IsNaN(x) {
			return false
		}
	}
	return true
}
