package evaluation

// NoRelation marks a class-matrix row whose edge carries no ground-truth relation.
const NoRelation = -1

// ClassMatrixRow is the per-edge record every aggregator consumes.
type ClassMatrixRow struct {
	Subject   int `json:"subject"`
	Object    int `json:"object"`
	Predicate int `json:"predicate"` // NoRelation for "none" edges

	// 1-indexed ranks of the ground truth within the edge's predicate
	// distribution and its subject x object x predicate product distribution.
	RelationRank int `json:"relation_rank"`
	TripletRank  int `json:"triplet_rank"`
}

// HasRelation reports whether the row counts toward per-class denominators.
func (r ClassMatrixRow) HasRelation() bool {
	return r.Predicate != NoRelation
}

// TripletKey identifies a (subject class, predicate, object class) combination.
type TripletKey struct {
	Subject   int
	Predicate int
	Object    int
}

// Key returns the row's triplet key.
func (r ClassMatrixRow) Key() TripletKey {
	return TripletKey{Subject: r.Subject, Predicate: r.Predicate, Object: r.Object}
}

// Default K lists used by the stable report keys.
var (
	DefaultObjectKs   = []int{1, 5, 10}
	DefaultRelationKs = []int{1, 3, 5}
	DefaultTripletKs  = []int{50, 100}
	DefaultRecallKs   = []int{20, 50, 100}
)
