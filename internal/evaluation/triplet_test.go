package evaluation

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenegraph/sgeval/internal/dataset"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

func TestParseCombination(t *testing.T) {
	c, err := ParseCombination("")
	require.NoError(t, err)
	assert.Equal(t, CombineTop1, c)

	c, err = ParseCombination("Predicate")
	require.NoError(t, err)
	assert.Equal(t, CombinePredicateOnly, c)
	assert.Equal(t, "predicate", c.String())

	_, err = ParseCombination("full")
	assert.True(t, apperrors.IsConfiguration(err))
}

// assembleFixture: predicates [none, a, b]; edge 0 is chair->table (a),
// edge 1 is table->lamp (b).
//
// Triplet candidates with top-1 object factors 0.63 and 0.49:
// e0a 0.378, e1a 0.245, e0b 0.189, e1b 0.147.
// Relation candidates: e0a 0.6, e1a 0.5, e0b 0.3, e1b 0.3 (edge order breaks the tie).
func assembleFixture() (obj, rel [][]float64, edges []dataset.Edge, objLabels, relLabels []int) {
	obj = [][]float64{
		{0.9, 0.1, 0.0},
		{0.2, 0.7, 0.1},
		{0.1, 0.2, 0.7},
	}
	rel = [][]float64{
		{0.1, 0.6, 0.3},
		{0.2, 0.5, 0.3},
	}
	edges = []dataset.Edge{{Subject: 0, Object: 1}, {Subject: 1, Object: 2}}
	return obj, rel, edges, []int{0, 1, 2}, []int{1, 2}
}

func TestTripletAssembler_Assemble(t *testing.T) {
	obj, rel, edges, objLabels, relLabels := assembleFixture()
	a := NewTripletAssembler([]int{1, 2, 4}, 0, CombineTop1)

	rec, ok := a.Assemble(obj, rel, edges, objLabels, relLabels)
	require.True(t, ok)
	assert.Equal(t, 2, rec.Total)

	assert.Equal(t, []int{1, 1, 2}, rec.Triplet.WithoutGC)
	// Edge 1's best predicate is a, so its ground truth b never survives the constraint.
	assert.Equal(t, []int{1, 1, 1}, rec.Triplet.WithGC)
	assert.Equal(t, []int{1, 1, 2}, rec.Relation.WithoutGC)
	assert.Equal(t, []int{1, 1, 1}, rec.Relation.WithGC)

	assert.Equal(t, []float64{0.5, 0.5, 1}, rec.Triplet.Recall(rec.Total, false))
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, rec.Triplet.Recall(rec.Total, true))

	assert.Equal(t, map[int]int{1: 1, 2: 1}, rec.ClassTotals)
	assert.Equal(t, []int{1, 1, 1}, rec.TripletClassHits[1])
	assert.Equal(t, []int{0, 0, 0}, rec.TripletClassHits[2])
}

func TestTripletAssembler_ObjectMismatchOnlyAffectsTriplets(t *testing.T) {
	obj, rel, edges, objLabels, relLabels := assembleFixture()
	objLabels[2] = 0 // lamp predicted, chair labelled

	rec, ok := NewTripletAssembler([]int{1, 2, 4}, 0, CombineTop1).Assemble(obj, rel, edges, objLabels, relLabels)
	require.True(t, ok)
	assert.Equal(t, []int{1, 1, 1}, rec.Triplet.WithoutGC)
	assert.Equal(t, []int{1, 1, 2}, rec.Relation.WithoutGC)
}

func TestTripletAssembler_NoGroundTruth(t *testing.T) {
	obj, rel, edges, objLabels, _ := assembleFixture()

	_, ok := NewTripletAssembler([]int{1}, 0, CombineTop1).Assemble(obj, rel, edges, objLabels, []int{0, 0})
	assert.False(t, ok)
}

func TestTripletAssembler_NoneClassNeverRetrieved(t *testing.T) {
	obj := [][]float64{{1}, {1}}
	rel := [][]float64{{0.9, 0.05, 0.05}}
	edges := []dataset.Edge{{Subject: 0, Object: 1}}

	// The none predicate scores highest but is not a candidate, so the
	// ground truth is the first candidate.
	rec, ok := NewTripletAssembler([]int{1}, 0, CombinePredicateOnly).Assemble(obj, rel, edges, []int{0, 0}, []int{1})
	require.True(t, ok)
	assert.Equal(t, []int{1}, rec.Triplet.WithoutGC)
	assert.Equal(t, []int{1}, rec.Triplet.WithGC)
}

func TestTripletAssembler_Properties(t *testing.T) {
	ks := []int{20, 50, 100}
	r := rand.New(rand.NewPCG(3, 5))

	for i := 0; i < 100; i++ {
		s, out := randomScan(r, 2+r.IntN(8), 4, 6)
		if len(s.Edges) == 0 {
			continue
		}
		for _, comb := range []Combination{CombineTop1, CombinePredicateOnly} {
			rec, ok := NewTripletAssembler(ks, 0, comb).Assemble(out.ObjectScores3D, out.RelationScores, s.Edges, s.ObjectClasses, s.RelationLabels)
			if !ok {
				continue
			}
			for _, p := range []PolicyHits{rec.Triplet, rec.Relation} {
				for j := range ks {
					require.LessOrEqual(t, p.WithGC[j], p.WithoutGC[j], "gc hits exceed unconstrained at K=%d", ks[j])
					require.LessOrEqual(t, p.WithoutGC[j], rec.Total)
					if j > 0 {
						require.LessOrEqual(t, p.WithoutGC[j-1], p.WithoutGC[j], "recall decreased with K")
						require.LessOrEqual(t, p.WithGC[j-1], p.WithGC[j], "gc recall decreased with K")
					}
				}
			}
		}
	}
}
