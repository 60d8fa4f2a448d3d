package evaluation

import (
	"errors"
	"fmt"
	"math"

	"github.com/scenegraph/sgeval/internal/dataset"
	"github.com/scenegraph/sgeval/internal/inference"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// ErrFinalized is returned when an accumulator is used after Finalize.
var ErrFinalized = errors.New("accumulator already finalized")

// Bucket names as they appear in metric keys.
const (
	BucketHead = "head"
	BucketBody = "body"
	BucketTail = "tail"
)

// Settings fixes what one evaluation pass measures.
type Settings struct {
	ObjectKs   []int
	RelationKs []int
	TripletKs  []int
	RecallKs   []int

	// NoneClass is the "no relation" predicate index, -1 when absent.
	NoneClass int
	// TripletBranch selects the object scores (Branch2D or Branch3D) used
	// for triplet ranks and recall.
	TripletBranch string
	Combination   Combination

	// CalRecall enables graph-constrained and unconstrained recall.
	CalRecall bool
	// KeepArtifacts retains per-object and per-edge arrays in the report.
	KeepArtifacts bool

	Buckets Buckets
	// Cooccurrence is optional; without it zero-shot metrics are NaN.
	Cooccurrence *CooccurrenceTable
}

// DefaultSettings returns the settings behind the stable report keys.
func DefaultSettings() Settings {
	return Settings{
		ObjectKs:      DefaultObjectKs,
		RelationKs:    DefaultRelationKs,
		TripletKs:     DefaultTripletKs,
		RecallKs:      DefaultRecallKs,
		NoneClass:     0,
		TripletBranch: Branch3D,
		Combination:   CombineTop1,
	}
}

// Validate reports settings that cannot produce a report.
func (s Settings) Validate() error {
	for _, set := range []struct {
		name string
		ks   []int
	}{{"object", s.ObjectKs}, {"relation", s.RelationKs}, {"triplet", s.TripletKs}, {"recall", s.RecallKs}} {
		for _, k := range set.ks {
			if k < 1 {
				return apperrors.ConfigurationError(fmt.Sprintf("%s K values must be positive, got %d", set.name, k))
			}
		}
	}
	if s.TripletBranch != Branch2D && s.TripletBranch != Branch3D {
		return apperrors.ConfigurationError(fmt.Sprintf("unknown object branch %q (must be 2d or 3d)", s.TripletBranch))
	}
	return nil
}

type recallPair struct {
	withoutGC *RecallAggregator
	withGC    *RecallAggregator
	classes   *ClassRecall
}

func newRecallPair(n int) recallPair {
	return recallPair{
		withoutGC: NewRecallAggregator(n),
		withGC:    NewRecallAggregator(n),
		classes:   NewClassRecall(n),
	}
}

// Accumulator owns the running state of one pass. Samples are added in
// order and the accumulator is finalized exactly once.
type Accumulator struct {
	settings  Settings
	assembler *TripletAssembler

	objRanks2D []int
	objRanks3D []int
	relRanks   []int
	rows       []ClassMatrixRow

	triplet  recallPair
	relation recallPair

	artifacts *Artifacts
	samples   int
	finalized bool
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator(settings Settings) *Accumulator {
	a := &Accumulator{
		settings:  settings,
		assembler: NewTripletAssembler(settings.RecallKs, settings.NoneClass, settings.Combination),
		triplet:   newRecallPair(len(settings.RecallKs)),
		relation:  newRecallPair(len(settings.RecallKs)),
	}
	if settings.KeepArtifacts {
		a.artifacts = &Artifacts{}
	}
	return a
}

// Add folds one sample and its model output into the running state. Shapes
// are assumed checked.
func (a *Accumulator) Add(s *dataset.Sample, out *inference.Output) error {
	if a.finalized {
		return ErrFinalized
	}
	a.samples++

	a.objRanks2D = append(a.objRanks2D, RankAll(out.ObjectScores2D, s.ObjectClasses)...)
	a.objRanks3D = append(a.objRanks3D, RankAll(out.ObjectScores3D, s.ObjectClasses)...)

	objScores := out.ObjectScores3D
	if a.settings.TripletBranch == Branch2D {
		objScores = out.ObjectScores2D
	}

	for e, edge := range s.Edges {
		gtSub := s.ObjectClasses[edge.Subject]
		gtObj := s.ObjectClasses[edge.Object]
		gtRel := s.RelationLabels[e]

		row := ClassMatrixRow{
			Subject:      gtSub,
			Object:       gtObj,
			Predicate:    gtRel,
			RelationRank: Rank(out.RelationScores[e], gtRel),
			TripletRank:  TripletRank(objScores[edge.Subject], objScores[edge.Object], out.RelationScores[e], gtSub, gtObj, gtRel),
		}
		if gtRel == a.settings.NoneClass {
			row.Predicate = NoRelation
		}
		a.relRanks = append(a.relRanks, row.RelationRank)
		a.rows = append(a.rows, row)

		if a.artifacts != nil {
			a.artifacts.ClassMatrix = append(a.artifacts.ClassMatrix, [3]int{row.Subject, row.Object, row.Predicate})
			a.artifacts.SubjectScores = append(a.artifacts.SubjectScores, objScores[edge.Subject])
			a.artifacts.ObjectScores = append(a.artifacts.ObjectScores, objScores[edge.Object])
			a.artifacts.RelationScores = append(a.artifacts.RelationScores, out.RelationScores[e])
		}
	}

	if a.settings.CalRecall {
		if rec, ok := a.assembler.Assemble(objScores, out.RelationScores, s.Edges, s.ObjectClasses, s.RelationLabels); ok {
			a.triplet.withoutGC.Add(rec.Triplet.Recall(rec.Total, false))
			a.triplet.withGC.Add(rec.Triplet.Recall(rec.Total, true))
			a.triplet.classes.AddScan(rec.ClassTotals, rec.TripletClassHits)

			a.relation.withoutGC.Add(rec.Relation.Recall(rec.Total, false))
			a.relation.withGC.Add(rec.Relation.Recall(rec.Total, true))
			a.relation.classes.AddScan(rec.ClassTotals, rec.RelationClassHits)
		}
	}
	return nil
}

// Samples returns how many samples were added.
func (a *Accumulator) Samples() int {
	return a.samples
}

// Edges returns how many edges were added.
func (a *Accumulator) Edges() int {
	return len(a.rows)
}

// RelationAccuracy returns the running Acc@k over every edge added so far.
func (a *Accumulator) RelationAccuracy(k int) float64 {
	return TopKAccuracy(a.relRanks, k)
}

// Rows returns the class-matrix rows accumulated so far.
func (a *Accumulator) Rows() []ClassMatrixRow {
	return a.rows
}

// Finalize reduces the running state into a report. The accumulator is
// unusable afterwards.
func (a *Accumulator) Finalize() (*Report, error) {
	if a.finalized {
		return nil, ErrFinalized
	}
	a.finalized = true

	s := a.settings
	r := &Report{SampleCount: a.samples, EdgeCount: len(a.rows)}

	for _, k := range s.ObjectKs {
		r.add(fmt.Sprintf("Eval: 2d obj Acc@%d", k), ObjectAccKey(k, Branch2D), TopKAccuracy(a.objRanks2D, k))
	}
	for _, k := range s.ObjectKs {
		r.add(fmt.Sprintf("Eval: 3d obj Acc@%d", k), ObjectAccKey(k, Branch3D), TopKAccuracy(a.objRanks3D, k))
	}

	for _, k := range s.RelationKs {
		r.add(fmt.Sprintf("Eval: 3d rel Acc@%d", k), RelationAccKey(k), TopKAccuracy(a.relRanks, k))
	}
	meanAcc := MeanPredicateAccuracy(a.rows, s.RelationKs)
	for i, k := range s.RelationKs {
		r.add(fmt.Sprintf("Eval: 3d mean rel Acc@%d", k), RelationMeanAccKey(k), meanAcc[i])
	}

	tripletRanks := make([]int, len(a.rows))
	for i, row := range a.rows {
		tripletRanks[i] = row.TripletRank
	}
	for _, k := range s.TripletKs {
		r.add(fmt.Sprintf("Eval: 3d triplet Acc@%d", k), TripletAccKey(k), TopKAccuracy(tripletRanks, k))
	}

	meanRecall := MeanRecall(a.rows, s.TripletKs)
	for i, k := range s.TripletKs {
		r.add(fmt.Sprintf("Eval: 3d mean recall@%d", k), MeanRecallKey(k), meanRecall[i])
	}

	a.addZeroShot(r)

	strata := Stratify(a.rows, s.Buckets, s.RelationKs)
	for _, b := range []struct {
		name string
		vals []float64
	}{{BucketHead, strata.Head}, {BucketBody, strata.Body}, {BucketTail, strata.Tail}} {
		for i, k := range s.RelationKs {
			r.add(fmt.Sprintf("Eval: %s mean Acc@%d", b.name, k), StratumKey(b.name, k), b.vals[i])
		}
	}

	if s.CalRecall {
		a.addRecall(r, ModeTriplet, a.triplet)
		a.addRecall(r, ModeRelation, a.relation)
	}

	if a.artifacts != nil {
		a.artifacts.ObjectRanks2D = a.objRanks2D
		a.artifacts.ObjectRanks3D = a.objRanks3D
		a.artifacts.RelationRanks = a.relRanks
		a.artifacts.TripletRanks = tripletRanks
		r.Artifacts = a.artifacts
	}
	return r, nil
}

func (a *Accumulator) addZeroShot(r *Report) {
	ks := a.settings.TripletKs
	zs := ZeroShotRecall{
		ZeroShot:    nanSlice(len(ks)),
		NonZeroShot: nanSlice(len(ks)),
		All:         nanSlice(len(ks)),
	}
	if a.settings.Cooccurrence != nil {
		zs = NewZeroShotPartitioner(a.settings.Cooccurrence).Recall(a.rows, ks)
		counts := zs.Counts
		r.ZeroShotCounts = &counts
	}
	for _, p := range []struct {
		name string
		vals []float64
	}{{PartitionZeroShot, zs.ZeroShot}, {PartitionNonZeroShot, zs.NonZeroShot}, {PartitionAll, zs.All}} {
		for i, k := range ks {
			r.add(fmt.Sprintf("Eval: %s recall@%d", p.name, k), ZeroShotKey(p.name, k), p.vals[i])
		}
	}
}

func (a *Accumulator) addRecall(r *Report, mode string, p recallPair) {
	ks := a.settings.RecallKs
	wo := p.withoutGC.Finalize()
	w := p.withGC.Finalize()
	mean := p.classes.Macro()
	for i, k := range ks {
		r.add(fmt.Sprintf("Eval: %s recall w/o gc@%d", mode, k), RecallKey(mode, false, k), wo[i])
	}
	for i, k := range ks {
		r.add(fmt.Sprintf("Eval: %s recall w/ gc@%d", mode, k), RecallKey(mode, true, k), w[i])
	}
	for i, k := range ks {
		r.add(fmt.Sprintf("Eval: %s mean recall w/ gc@%d", mode, k), GCMeanRecallKey(mode, k), mean[i])
	}
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
