package evaluation

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/scenegraph/sgeval/internal/dataset"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// Combination is the rule that scores a (subject, predicate, object) candidate.
type Combination int

const (
	// CombineTop1 multiplies the subject's and object's top-1 class scores
	// with the predicate score.
	CombineTop1 Combination = iota
	// CombinePredicateOnly scores a candidate by its predicate score alone.
	CombinePredicateOnly
)

// String returns the configuration name of c.
func (c Combination) String() string {
	switch c {
	case CombinePredicateOnly:
		return "predicate"
	default:
		return "top1"
	}
}

// ParseCombination resolves a combination rule name.
func ParseCombination(s string) (Combination, error) {
	switch strings.ToLower(s) {
	case "top1", "":
		return CombineTop1, nil
	case "predicate":
		return CombinePredicateOnly, nil
	default:
		return 0, apperrors.ConfigurationError(fmt.Sprintf("unknown score combination: %s (must be top1 or predicate)", s))
	}
}

// PolicyHits counts ground-truth triplets retrieved at each K, with and
// without the graph constraint.
type PolicyHits struct {
	WithoutGC []int
	WithGC    []int
}

// Recall returns hits/total per K for the requested policy.
func (p PolicyHits) Recall(total int, withGC bool) []float64 {
	src := p.WithoutGC
	if withGC {
		src = p.WithGC
	}
	out := make([]float64, len(src))
	for i, h := range src {
		out[i] = float64(h) / float64(total)
	}
	return out
}

// ScanRecall is what one scan contributes to the recall aggregators.
type ScanRecall struct {
	Total int

	// Triplet requires subject, object and predicate to match; Relation
	// only the predicate.
	Triplet  PolicyHits
	Relation PolicyHits

	// Per ground-truth predicate class, graph constrained.
	ClassTotals       map[int]int
	TripletClassHits  map[int][]int
	RelationClassHits map[int][]int
}

// TripletAssembler builds scan-global candidate rankings and checks which
// ground-truth triplets they retrieve.
type TripletAssembler struct {
	ks          []int
	noneClass   int
	combination Combination
}

// NewTripletAssembler creates an assembler. noneClass is the "no relation"
// predicate index or -1 when the vocabulary has none.
func NewTripletAssembler(ks []int, noneClass int, combination Combination) *TripletAssembler {
	return &TripletAssembler{ks: ks, noneClass: noneClass, combination: combination}
}

// Ks returns the retrieval cutoffs.
func (a *TripletAssembler) Ks() []int {
	return a.ks
}

type candidate struct {
	edge      int
	predicate int
	score     float64
}

// Assemble evaluates one scan. ok is false when the scan has no ground-truth
// relation edges; such scans contribute nothing.
//
// Candidates are every (edge, predicate) pair except the none predicate,
// ranked by combined score with ties broken by edge then predicate index.
// The retrieval set at K is the first K candidates. Under the graph
// constraint only each edge's best predicate may be retrieved, and it still
// has to sit inside the same first K slots, so graph-constrained hits are
// always a subset of unconstrained hits.
func (a *TripletAssembler) Assemble(objScores, relScores [][]float64, edges []dataset.Edge, objLabels, relLabels []int) (ScanRecall, bool) {
	rec := ScanRecall{
		Triplet:           newPolicyHits(len(a.ks)),
		Relation:          newPolicyHits(len(a.ks)),
		ClassTotals:       make(map[int]int),
		TripletClassHits:  make(map[int][]int),
		RelationClassHits: make(map[int][]int),
	}
	for _, r := range relLabels {
		if r != a.noneClass {
			rec.Total++
		}
	}
	if rec.Total == 0 {
		return rec, false
	}

	objTop := make([]int, len(objScores))
	objTopScore := make([]float64, len(objScores))
	for i, s := range objScores {
		objTop[i] = Argmax(s)
		objTopScore[i] = s[objTop[i]]
	}

	best := make([]int, len(edges))
	for e := range edges {
		best[e] = a.bestPredicate(relScores[e])
	}

	numPreds := len(relScores[0])
	tripletPos := rankPositions(a.candidates(relScores, edges, func(e int) float64 {
		if a.combination == CombinePredicateOnly {
			return 1
		}
		return objTopScore[edges[e].Subject] * objTopScore[edges[e].Object]
	}), len(edges), numPreds)
	relationPos := rankPositions(a.candidates(relScores, edges, func(int) float64 { return 1 }), len(edges), numPreds)

	for e, edge := range edges {
		gt := relLabels[e]
		if gt == a.noneClass {
			continue
		}
		rec.ClassTotals[gt]++
		if rec.TripletClassHits[gt] == nil {
			rec.TripletClassHits[gt] = make([]int, len(a.ks))
			rec.RelationClassHits[gt] = make([]int, len(a.ks))
		}

		classesMatch := objTop[edge.Subject] == objLabels[edge.Subject] &&
			objTop[edge.Object] == objLabels[edge.Object]
		tPos := tripletPos[e][gt]
		rPos := relationPos[e][gt]

		for i, k := range a.ks {
			if classesMatch && tPos <= k {
				rec.Triplet.WithoutGC[i]++
				if best[e] == gt {
					rec.Triplet.WithGC[i]++
					rec.TripletClassHits[gt][i]++
				}
			}
			if rPos <= k {
				rec.Relation.WithoutGC[i]++
				if best[e] == gt {
					rec.Relation.WithGC[i]++
					rec.RelationClassHits[gt][i]++
				}
			}
		}
	}

	return rec, true
}

// bestPredicate is the argmax over non-none predicates, lowest index on ties.
func (a *TripletAssembler) bestPredicate(scores []float64) int {
	best := -1
	for c, s := range scores {
		if c == a.noneClass {
			continue
		}
		if best < 0 || s > scores[best] {
			best = c
		}
	}
	return best
}

func (a *TripletAssembler) candidates(relScores [][]float64, edges []dataset.Edge, factor func(e int) float64) []candidate {
	out := make([]candidate, 0, len(edges)*len(relScores[0]))
	for e := range edges {
		f := factor(e)
		for c, s := range relScores[e] {
			if c == a.noneClass {
				continue
			}
			out = append(out, candidate{edge: e, predicate: c, score: f * s})
		}
	}
	return out
}

// rankPositions sorts candidates into the scan-global ranking and returns each
// candidate's 1-indexed position, indexed by edge then predicate.
func rankPositions(cands []candidate, numEdges, numPreds int) [][]int {
	slices.SortFunc(cands, func(x, y candidate) int {
		if c := cmp.Compare(y.score, x.score); c != 0 {
			return c
		}
		if c := cmp.Compare(x.edge, y.edge); c != 0 {
			return c
		}
		return cmp.Compare(x.predicate, y.predicate)
	})

	pos := make([][]int, numEdges)
	for e := range pos {
		pos[e] = make([]int, numPreds)
	}
	for i, c := range cands {
		pos[c.edge][c.predicate] = i + 1
	}
	return pos
}

func newPolicyHits(n int) PolicyHits {
	return PolicyHits{WithoutGC: make([]int, n), WithGC: make([]int, n)}
}
