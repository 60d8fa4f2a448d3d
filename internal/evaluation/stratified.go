package evaluation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// Default head/body/tail split of the 3RScan 26-predicate vocabulary, by
// training-set frequency.
var (
	DefaultHeadPredicates = []string{
		"left", "right", "front", "behind", "close by", "same as", "attached to", "standing on",
	}
	DefaultBodyPredicates = []string{
		"bigger than", "smaller than", "higher than", "lower than", "lying on", "hanging on",
	}
	DefaultTailPredicates = []string{
		"supported by", "inside", "same symmetry as", "connected to", "leaning against", "part of",
		"belonging to", "build in", "standing in", "cover", "lying in",
	}
)

// Buckets assigns predicate class indices to frequency strata.
type Buckets struct {
	Head []int
	Body []int
	Tail []int
}

// BucketsFromNames resolves predicate names against the relation vocabulary.
// An unknown name is a configuration error.
func BucketsFromNames(relations []string, head, body, tail []string) (Buckets, error) {
	index := make(map[string]int, len(relations))
	for i, name := range relations {
		index[name] = i
	}
	resolve := func(bucket string, names []string) ([]int, error) {
		out := make([]int, 0, len(names))
		for _, name := range names {
			i, ok := index[name]
			if !ok {
				return nil, apperrors.ConfigurationError(fmt.Sprintf("%s bucket: unknown predicate %q", bucket, name))
			}
			out = append(out, i)
		}
		return out, nil
	}

	var b Buckets
	var err error
	if b.Head, err = resolve("head", head); err != nil {
		return Buckets{}, err
	}
	if b.Body, err = resolve("body", body); err != nil {
		return Buckets{}, err
	}
	if b.Tail, err = resolve("tail", tail); err != nil {
		return Buckets{}, err
	}
	return b, nil
}

// BucketsByFrequency splits classes into thirds by descending training
// frequency, ties broken by class index. With n classes the head holds
// ceil(n/3), the tail floor(n/3), the body the rest. The exclude class
// (usually "none") is left out; pass -1 to keep every class.
func BucketsByFrequency(counts []int, exclude int) Buckets {
	classes := make([]int, 0, len(counts))
	for c := range counts {
		if c != exclude {
			classes = append(classes, c)
		}
	}
	sort.SliceStable(classes, func(i, j int) bool {
		return counts[classes[i]] > counts[classes[j]]
	})

	n := len(classes)
	head := (n + 2) / 3
	tail := n / 3
	return Buckets{
		Head: classes[:head],
		Body: classes[head : n-tail],
		Tail: classes[n-tail:],
	}
}

// StratifiedAccuracy holds bucket-mean predicate accuracy per K.
type StratifiedAccuracy struct {
	Head []float64
	Body []float64
	Tail []float64
}

// Stratify averages, per bucket and K, the per-class Acc@K of the bucket's
// classes. Classes without instances are skipped; an empty bucket is NaN.
func Stratify(rows []ClassMatrixRow, buckets Buckets, ks []int) StratifiedAccuracy {
	perClass := perClassAccuracy(rows, ks)
	return StratifiedAccuracy{
		Head: bucketMean(perClass, buckets.Head, len(ks)),
		Body: bucketMean(perClass, buckets.Body, len(ks)),
		Tail: bucketMean(perClass, buckets.Tail, len(ks)),
	}
}

// MeanPredicateAccuracy is the class-balanced relation Acc@K over every
// class that has instances.
func MeanPredicateAccuracy(rows []ClassMatrixRow, ks []int) []float64 {
	perClass := perClassAccuracy(rows, ks)
	classes := make([]int, 0, len(perClass))
	for c := range perClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return bucketMean(perClass, classes, len(ks))
}

// perClassAccuracy maps each ground-truth predicate to its Acc@K values.
func perClassAccuracy(rows []ClassMatrixRow, ks []int) map[int][]float64 {
	ranks := make(map[int][]int)
	for _, row := range rows {
		if row.HasRelation() {
			ranks[row.Predicate] = append(ranks[row.Predicate], row.RelationRank)
		}
	}
	out := make(map[int][]float64, len(ranks))
	for class, rs := range ranks {
		acc := make([]float64, len(ks))
		for i, k := range ks {
			acc[i] = TopKAccuracy(rs, k)
		}
		out[class] = acc
	}
	return out
}

func bucketMean(perClass map[int][]float64, classes []int, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		var vals []float64
		for _, c := range classes {
			if acc, ok := perClass[c]; ok {
				vals = append(vals, acc[i])
			}
		}
		if len(vals) == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = stat.Mean(vals, nil)
	}
	return out
}
