package evaluation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RecallAggregator averages per-scan recall fractions across scans.
type RecallAggregator struct {
	sums  []float64
	scans int
}

// NewRecallAggregator creates an aggregator for n cutoffs.
func NewRecallAggregator(n int) *RecallAggregator {
	return &RecallAggregator{sums: make([]float64, n)}
}

// Add accumulates one scan's recall fraction per K.
func (a *RecallAggregator) Add(recall []float64) {
	floats.Add(a.sums, recall)
	a.scans++
}

// Scans returns how many scans were added.
func (a *RecallAggregator) Scans() int {
	return a.scans
}

// Finalize returns sum/scans*100 per K, NaN per K when no scan was added.
func (a *RecallAggregator) Finalize() []float64 {
	out := make([]float64, len(a.sums))
	for i, s := range a.sums {
		if a.scans == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = s / float64(a.scans) * 100
	}
	return out
}

// ClassRecall keeps per-class hit counts and instance totals so that recall
// can be macro averaged with equal class weight.
type ClassRecall struct {
	n      int
	hits   map[int][]int
	totals map[int]int
}

// NewClassRecall creates a per-class accumulator for n cutoffs.
func NewClassRecall(n int) *ClassRecall {
	return &ClassRecall{
		n:      n,
		hits:   make(map[int][]int),
		totals: make(map[int]int),
	}
}

// Add records total instances of class and how many were hit at each K.
func (c *ClassRecall) Add(class, total int, hits []int) {
	h, ok := c.hits[class]
	if !ok {
		h = make([]int, c.n)
		c.hits[class] = h
	}
	for i, v := range hits {
		h[i] += v
	}
	c.totals[class] += total
}

// AddScan merges a scan's graph-constrained per-class counts.
func (c *ClassRecall) AddScan(totals map[int]int, hits map[int][]int) {
	for class, total := range totals {
		c.Add(class, total, hits[class])
	}
}

// Classes returns the classes with at least one instance, ascending.
func (c *ClassRecall) Classes() []int {
	classes := make([]int, 0, len(c.totals))
	for class, total := range c.totals {
		if total > 0 {
			classes = append(classes, class)
		}
	}
	sort.Ints(classes)
	return classes
}

// PerClass returns each class's recall percentage at each K.
func (c *ClassRecall) PerClass() map[int][]float64 {
	out := make(map[int][]float64, len(c.totals))
	for _, class := range c.Classes() {
		r := make([]float64, c.n)
		for i, h := range c.hits[class] {
			r[i] = float64(h) * 100 / float64(c.totals[class])
		}
		out[class] = r
	}
	return out
}

// Macro averages per-class recall with equal weight. Classes without
// instances are left out; NaN per K when no class has instances.
func (c *ClassRecall) Macro() []float64 {
	perClass := c.PerClass()
	classes := c.Classes()

	out := make([]float64, c.n)
	for i := range out {
		if len(classes) == 0 {
			out[i] = math.NaN()
			continue
		}
		vals := make([]float64, len(classes))
		for j, class := range classes {
			vals[j] = perClass[class][i]
		}
		out[i] = stat.Mean(vals, nil)
	}
	return out
}

// MeanRecall is the class-balanced triplet recall over rows with a
// ground-truth relation: a row is retrieved at K when its triplet rank is
// within K.
func MeanRecall(rows []ClassMatrixRow, ks []int) []float64 {
	cr := NewClassRecall(len(ks))
	hits := make([]int, len(ks))
	for _, row := range rows {
		if !row.HasRelation() {
			continue
		}
		for i, k := range ks {
			hits[i] = 0
			if row.TripletRank <= k {
				hits[i] = 1
			}
		}
		cr.Add(row.Predicate, 1, hits)
	}
	return cr.Macro()
}
