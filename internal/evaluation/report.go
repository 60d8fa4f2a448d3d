package evaluation

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/scenegraph/sgeval/internal/pkg/hash"
)

// PrimaryKey is the metric handed back to the training loop.
const PrimaryKey = "mean_recall@50"

// Object score branches.
const (
	Branch2D = "2d"
	Branch3D = "3d"
)

// Zero-shot partitions as they appear in metric keys.
const (
	PartitionZeroShot    = "zero_shot"
	PartitionNonZeroShot = "non_zero_shot"
	PartitionAll         = "all_zero_shot"
)

// Recall modes as they appear in metric keys.
const (
	ModeTriplet  = "triplet"
	ModeRelation = "relation"
)

// ObjectAccKey is Acc@K/obj_cls_acc_{2d,3d}.
func ObjectAccKey(k int, branch string) string {
	return fmt.Sprintf("Acc@%d/obj_cls_acc_%s", k, branch)
}

// RelationAccKey is Acc@K/rel_cls_acc.
func RelationAccKey(k int) string {
	return fmt.Sprintf("Acc@%d/rel_cls_acc", k)
}

// RelationMeanAccKey is Acc@K/rel_cls_acc_mean.
func RelationMeanAccKey(k int) string {
	return fmt.Sprintf("Acc@%d/rel_cls_acc_mean", k)
}

// TripletAccKey is Acc@K/triplet_acc.
func TripletAccKey(k int) string {
	return fmt.Sprintf("Acc@%d/triplet_acc", k)
}

// MeanRecallKey is mean_recall@K.
func MeanRecallKey(k int) string {
	return fmt.Sprintf("mean_recall@%d", k)
}

// ZeroShotKey is {zero_shot,non_zero_shot,all_zero_shot}_recall@K.
func ZeroShotKey(partition string, k int) string {
	return fmt.Sprintf("%s_recall@%d", partition, k)
}

// StratumKey is {head,body,tail}_mean_acc@K.
func StratumKey(bucket string, k int) string {
	return fmt.Sprintf("%s_mean_acc@%d", bucket, k)
}

// RecallKey is {triplet,relation}_recall_{wo,w}_gc@K.
func RecallKey(mode string, withGC bool, k int) string {
	gc := "wo"
	if withGC {
		gc = "w"
	}
	return fmt.Sprintf("%s_recall_%s_gc@%d", mode, gc, k)
}

// GCMeanRecallKey is {triplet,relation}_mean_recall_w_gc@K.
func GCMeanRecallKey(mode string, k int) string {
	return fmt.Sprintf("%s_mean_recall_w_gc@%d", mode, k)
}

// Line is one entry of the human-readable report.
type Line struct {
	Label string
	Key   string
	Value float64
}

// Artifacts are the per-object and per-edge arrays kept for offline analysis.
type Artifacts struct {
	ObjectRanks2D  []int       `json:"topk_obj_2d_list"`
	ObjectRanks3D  []int       `json:"topk_obj_list"`
	RelationRanks  []int       `json:"topk_pred_list"`
	TripletRanks   []int       `json:"topk_triplet_list"`
	ClassMatrix    [][3]int    `json:"cls_matrix_list"`
	SubjectScores  [][]float64 `json:"sub_scores_list"`
	ObjectScores   [][]float64 `json:"obj_scores_list"`
	RelationScores [][]float64 `json:"rel_scores_list"`
}

// Named returns the artifact arrays keyed by their archive names.
func (a *Artifacts) Named() map[string]any {
	return map[string]any{
		"topk_obj_2d_list":  a.ObjectRanks2D,
		"topk_obj_list":     a.ObjectRanks3D,
		"topk_pred_list":    a.RelationRanks,
		"topk_triplet_list": a.TripletRanks,
		"cls_matrix_list":   a.ClassMatrix,
		"sub_scores_list":   a.SubjectScores,
		"obj_scores_list":   a.ObjectScores,
		"rel_scores_list":   a.RelationScores,
	}
}

// Report is the outcome of one evaluation pass.
type Report struct {
	RunID       string
	Dataset     string
	Split       string
	SampleCount int
	EdgeCount   int
	CreatedAt   time.Time

	// Lines preserve report order; Metrics indexes them by key.
	Lines   []Line
	Metrics map[string]float64

	// ZeroShotCounts is nil when no co-occurrence table was configured.
	ZeroShotCounts *PartitionCounts

	// Artifacts is nil unless artifact collection was enabled.
	Artifacts *Artifacts
}

func (r *Report) add(label, key string, value float64) {
	if r.Metrics == nil {
		r.Metrics = make(map[string]float64)
	}
	r.Lines = append(r.Lines, Line{Label: label, Key: key, Value: value})
	r.Metrics[key] = value
}

// Value returns the metric stored under key.
func (r *Report) Value(key string) (float64, bool) {
	v, ok := r.Metrics[key]
	return v, ok
}

// Keys returns every metric key in sorted order.
func (r *Report) Keys() []string {
	keys := make([]string, 0, len(r.Metrics))
	for k := range r.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Primary returns mean_recall@50, or NaN when it was not computed.
func (r *Report) Primary() float64 {
	if v, ok := r.Metrics[PrimaryKey]; ok {
		return v
	}
	return math.NaN()
}

// Fingerprint hashes the metric values bit for bit.
func (r *Report) Fingerprint() string {
	return hash.Metrics(r.Metrics)
}

// Undefined returns the keys whose value is NaN, sorted.
func (r *Report) Undefined() []string {
	var out []string
	for _, k := range r.Keys() {
		if math.IsNaN(r.Metrics[k]) {
			out = append(out, k)
		}
	}
	return out
}

// WriteText renders the report one metric per line. NaN prints as n/a.
func (r *Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "run %s dataset=%s split=%s samples=%d edges=%d fingerprint=%s\n",
		r.RunID, r.Dataset, r.Split, r.SampleCount, r.EdgeCount, hash.Short(r.Fingerprint(), 12))
	fmt.Fprintln(bw, "--------------------------------------------------")

	width := 0
	for _, l := range r.Lines {
		width = max(width, len(l.Label))
	}
	for _, l := range r.Lines {
		fmt.Fprintf(bw, "%-*s : %s\n", width, l.Label, formatValue(l.Value))
	}
	fmt.Fprintln(bw, "--------------------------------------------------")
	return bw.Flush()
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}

type reportJSON struct {
	RunID          string              `json:"run_id"`
	Dataset        string              `json:"dataset"`
	Split          string              `json:"split"`
	SampleCount    int                 `json:"sample_count"`
	EdgeCount      int                 `json:"edge_count"`
	CreatedAt      time.Time           `json:"created_at"`
	Fingerprint    string              `json:"fingerprint"`
	Metrics        map[string]*float64 `json:"metrics"`
	ZeroShotCounts *PartitionCounts    `json:"zero_shot_counts,omitempty"`
}

// MarshalJSON encodes the report with NaN metrics as null. Artifacts are
// archived separately and left out.
func (r *Report) MarshalJSON() ([]byte, error) {
	metrics := make(map[string]*float64, len(r.Metrics))
	for k, v := range r.Metrics {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			metrics[k] = nil
			continue
		}
		metrics[k] = &v
	}
	return json.Marshal(reportJSON{
		RunID:          r.RunID,
		Dataset:        r.Dataset,
		Split:          r.Split,
		SampleCount:    r.SampleCount,
		EdgeCount:      r.EdgeCount,
		CreatedAt:      r.CreatedAt,
		Fingerprint:    r.Fingerprint(),
		Metrics:        metrics,
		ZeroShotCounts: r.ZeroShotCounts,
	})
}
