package evaluation

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenegraph/sgeval/internal/dataset"
	"github.com/scenegraph/sgeval/internal/inference"
)

func sceneSettings() Settings {
	s := DefaultSettings()
	s.TripletKs = []int{1, 3}
	s.CalRecall = true
	s.Buckets = Buckets{Head: []int{1}, Body: []int{2}, Tail: []int{3, 4}}
	// chair standing on table was seen in training; table close by lamp was not.
	s.Cooccurrence = NewCooccurrenceTable([]TripletKey{{Subject: 0, Predicate: 1, Object: 1}})
	return s
}

func finalizeScene(t *testing.T, s Settings) *Report {
	t.Helper()
	acc := NewAccumulator(s)
	require.NoError(t, acc.Add(sceneSample(), sceneOutput()))
	r, err := acc.Finalize()
	require.NoError(t, err)
	return r
}

func metric(t *testing.T, r *Report, key string) float64 {
	t.Helper()
	v, ok := r.Value(key)
	require.True(t, ok, "missing metric %s", key)
	return v
}

func TestAccumulator_SceneRelationAccuracy(t *testing.T) {
	r := finalizeScene(t, sceneSettings())

	assert.Equal(t, 50.0, metric(t, r, "Acc@1/rel_cls_acc"))
	assert.Equal(t, 100.0, metric(t, r, "Acc@3/rel_cls_acc"))
	assert.Equal(t, 100.0, metric(t, r, "Acc@5/rel_cls_acc"))
	assert.Equal(t, 50.0, metric(t, r, "Acc@1/rel_cls_acc_mean"))

	assert.Equal(t, 100.0, metric(t, r, "Acc@1/obj_cls_acc_2d"))
	assert.Equal(t, 100.0, metric(t, r, "Acc@10/obj_cls_acc_3d"))

	assert.Equal(t, 50.0, metric(t, r, "Acc@1/triplet_acc"))
	assert.Equal(t, 100.0, metric(t, r, "Acc@3/triplet_acc"))
	assert.Equal(t, 50.0, metric(t, r, "mean_recall@1"))
	assert.Equal(t, 100.0, metric(t, r, "mean_recall@3"))

	assert.Equal(t, 1, r.SampleCount)
	assert.Equal(t, 2, r.EdgeCount)
}

func TestAccumulator_SceneZeroShot(t *testing.T) {
	r := finalizeScene(t, sceneSettings())

	require.NotNil(t, r.ZeroShotCounts)
	assert.Equal(t, PartitionCounts{ZeroShot: 1, NonZeroShot: 1, All: 2}, *r.ZeroShotCounts)

	// Only table close by lamp is zero-shot, and its triplet ranks 3rd.
	assert.Equal(t, 0.0, metric(t, r, "zero_shot_recall@1"))
	assert.Equal(t, 100.0, metric(t, r, "zero_shot_recall@3"))
	assert.Equal(t, 100.0, metric(t, r, "non_zero_shot_recall@1"))
	assert.Equal(t, 50.0, metric(t, r, "all_zero_shot_recall@1"))
}

func TestAccumulator_WithoutCooccurrenceTable(t *testing.T) {
	s := sceneSettings()
	s.Cooccurrence = nil
	r := finalizeScene(t, s)

	assert.Nil(t, r.ZeroShotCounts)
	assert.True(t, math.IsNaN(metric(t, r, "zero_shot_recall@1")))
	assert.True(t, math.IsNaN(metric(t, r, "all_zero_shot_recall@3")))
}

func TestAccumulator_SceneStrata(t *testing.T) {
	r := finalizeScene(t, sceneSettings())

	assert.Equal(t, 100.0, metric(t, r, "head_mean_acc@1"))
	assert.Equal(t, 0.0, metric(t, r, "body_mean_acc@1"))
	assert.Equal(t, 100.0, metric(t, r, "body_mean_acc@3"))
	assert.True(t, math.IsNaN(metric(t, r, "tail_mean_acc@1")))
}

func TestAccumulator_SceneRecall(t *testing.T) {
	r := finalizeScene(t, sceneSettings())

	for _, k := range []int{20, 50, 100} {
		assert.Equal(t, 100.0, metric(t, r, RecallKey(ModeTriplet, false, k)))
		// The second edge's best predicate is "standing on", not its label.
		assert.Equal(t, 50.0, metric(t, r, RecallKey(ModeTriplet, true, k)))
		assert.Equal(t, 50.0, metric(t, r, RecallKey(ModeRelation, true, k)))
		assert.Equal(t, 50.0, metric(t, r, GCMeanRecallKey(ModeTriplet, k)))
	}
}

func TestAccumulator_RecallDisabled(t *testing.T) {
	s := sceneSettings()
	s.CalRecall = false
	r := finalizeScene(t, s)

	_, ok := r.Value(RecallKey(ModeTriplet, true, 20))
	assert.False(t, ok)
}

func TestAccumulator_NoneEdges(t *testing.T) {
	sample := sceneSample()
	sample.Edges = append(sample.Edges, dataset.Edge{Subject: 2, Object: 0})
	sample.RelationLabels = append(sample.RelationLabels, 0)
	out := sceneOutput()
	out.RelationScores = append(out.RelationScores, []float64{0.9, 0.025, 0.025, 0.025, 0.025})

	acc := NewAccumulator(sceneSettings())
	require.NoError(t, acc.Add(sample, out))

	rows := acc.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, NoRelation, rows[2].Predicate)
	assert.False(t, rows[2].HasRelation())

	r, err := acc.Finalize()
	require.NoError(t, err)
	// Every edge counts toward plain accuracy, only labelled edges toward class means.
	assert.InDelta(t, 200.0/3, metric(t, r, "Acc@1/rel_cls_acc"), 1e-9)
	assert.Equal(t, 50.0, metric(t, r, "Acc@1/rel_cls_acc_mean"))
	assert.Equal(t, 50.0, metric(t, r, "mean_recall@1"))
}

func TestAccumulator_Artifacts(t *testing.T) {
	s := sceneSettings()
	s.KeepArtifacts = true
	r := finalizeScene(t, s)

	require.NotNil(t, r.Artifacts)
	assert.Equal(t, []int{1, 3}, r.Artifacts.RelationRanks)
	assert.Equal(t, []int{1, 3}, r.Artifacts.TripletRanks)
	assert.Equal(t, []int{1, 1, 1}, r.Artifacts.ObjectRanks3D)
	assert.Equal(t, [][3]int{{0, 1, 1}, {1, 2, 2}}, r.Artifacts.ClassMatrix)
	assert.Len(t, r.Artifacts.RelationScores, 2)
	assert.Contains(t, r.Artifacts.Named(), "cls_matrix_list")

	assert.Nil(t, finalizeScene(t, sceneSettings()).Artifacts)
}

func TestAccumulator_FinalizeOnce(t *testing.T) {
	acc := NewAccumulator(sceneSettings())
	require.NoError(t, acc.Add(sceneSample(), sceneOutput()))

	_, err := acc.Finalize()
	require.NoError(t, err)

	_, err = acc.Finalize()
	assert.ErrorIs(t, err, ErrFinalized)
	assert.ErrorIs(t, acc.Add(sceneSample(), sceneOutput()), ErrFinalized)
}

func TestAccumulator_Deterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(21, 42))
	type pair struct {
		s   *dataset.Sample
		out *inference.Output
	}
	var scans []pair
	for i := 0; i < 25; i++ {
		s, out := randomScan(r, 3+r.IntN(6), 5, 7)
		scans = append(scans, pair{s, out})
	}

	settings := DefaultSettings()
	settings.CalRecall = true
	settings.Buckets = BucketsByFrequency([]int{0, 9, 8, 7, 6, 5, 4}, 0)

	run := func() *Report {
		acc := NewAccumulator(settings)
		for _, p := range scans {
			require.NoError(t, acc.Add(p.s, p.out))
		}
		rep, err := acc.Finalize()
		require.NoError(t, err)
		return rep
	}

	first, second := run(), run()
	assert.Equal(t, first.Keys(), second.Keys())
	assert.Equal(t, first.Fingerprint(), second.Fingerprint())
}

func TestSettings_Validate(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	s.RecallKs = []int{20, 0}
	assert.Error(t, s.Validate())

	s = DefaultSettings()
	s.TripletBranch = "4d"
	assert.Error(t, s.Validate())
}

func TestReport_WriteText(t *testing.T) {
	r := finalizeScene(t, sceneSettings())
	r.RunID = "run-1"

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	text := buf.String()

	assert.Contains(t, text, "run run-1")
	assert.Regexp(t, `Eval: 3d rel Acc@1\s+: 50\.0000`, text)
	assert.Regexp(t, `Eval: tail mean Acc@1\s+: n/a`, text)
	assert.NotContains(t, text, "NaN")
}

func TestReport_MarshalJSON(t *testing.T) {
	r := finalizeScene(t, sceneSettings())

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded struct {
		Fingerprint string              `json:"fingerprint"`
		Metrics     map[string]*float64 `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, r.Fingerprint(), decoded.Fingerprint)
	require.Contains(t, decoded.Metrics, "tail_mean_acc@1")
	assert.Nil(t, decoded.Metrics["tail_mean_acc@1"])
	require.NotNil(t, decoded.Metrics["Acc@1/rel_cls_acc"])
	assert.Equal(t, 50.0, *decoded.Metrics["Acc@1/rel_cls_acc"])
}

func TestReport_KeysAndPrimary(t *testing.T) {
	r := finalizeScene(t, DefaultSettings())

	keys := r.Keys()
	assert.IsNonDecreasing(t, keys)
	assert.Contains(t, keys, "mean_recall@50")
	assert.Contains(t, keys, "all_zero_shot_recall@100")
	assert.Equal(t, metric(t, r, PrimaryKey), r.Primary())
	assert.Equal(t, 100.0, r.Primary())

	assert.True(t, math.IsNaN((&Report{}).Primary()))
}
