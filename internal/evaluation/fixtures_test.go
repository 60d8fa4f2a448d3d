package evaluation

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scenegraph/sgeval/internal/dataset"
	"github.com/scenegraph/sgeval/internal/inference"
)

// sceneVocab has a "none" predicate at index 0 and four real predicates.
func sceneVocab(t *testing.T) *dataset.Vocabulary {
	t.Helper()
	v, err := dataset.NewVocabulary(
		[]string{"chair", "table", "lamp"},
		[]string{"none", "standing on", "close by", "left", "right"},
	)
	require.NoError(t, err)
	return v
}

// sceneSample is a scan with objects [chair, table, lamp] and edges
// chair->table (standing on) and table->lamp (close by).
func sceneSample() *dataset.Sample {
	return &dataset.Sample{
		ScanID:         "scene-0001",
		ObjectClasses:  []int{0, 1, 2},
		Edges:          []dataset.Edge{{Subject: 0, Object: 1}, {Subject: 1, Object: 2}},
		RelationLabels: []int{1, 2},
	}
}

// sceneOutput ranks the first edge's predicate 1st and the second edge's
// predicate 3rd out of five.
func sceneOutput() *inference.Output {
	objects := [][]float64{
		{0.8, 0.1, 0.1},
		{0.1, 0.8, 0.1},
		{0.1, 0.1, 0.8},
	}
	return &inference.Output{
		ScanID:         "scene-0001",
		ObjectScores2D: objects,
		ObjectScores3D: objects,
		RelationScores: [][]float64{
			{0.05, 0.6, 0.1, 0.15, 0.1},
			{0.05, 0.4, 0.2, 0.3, 0.05},
		},
	}
}

// randomScan builds a scan with random scores and labels.
func randomScan(r *rand.Rand, numObjects, numObjClasses, numRelClasses int) (*dataset.Sample, *inference.Output) {
	s := &dataset.Sample{ScanID: "random"}
	out := &inference.Output{ScanID: "random"}
	for i := 0; i < numObjects; i++ {
		s.ObjectClasses = append(s.ObjectClasses, r.IntN(numObjClasses))
		out.ObjectScores3D = append(out.ObjectScores3D, randomVector(r, numObjClasses))
		out.ObjectScores2D = append(out.ObjectScores2D, randomVector(r, numObjClasses))
	}
	for i := 0; i < numObjects; i++ {
		for j := 0; j < numObjects; j++ {
			if i == j || r.IntN(2) == 0 {
				continue
			}
			s.Edges = append(s.Edges, dataset.Edge{Subject: i, Object: j})
			s.RelationLabels = append(s.RelationLabels, r.IntN(numRelClasses))
			out.RelationScores = append(out.RelationScores, randomVector(r, numRelClasses))
		}
	}
	return s, out
}

// randomVector draws scores from a coarse grid so ties are common.
func randomVector(r *rand.Rand, n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = float64(r.IntN(20)) / 20
	}
	return v
}
