package evaluation

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/scenegraph/sgeval/internal/dataset"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// CooccurrenceTable records which triplet combinations appear in the
// training distribution. It is immutable once built.
type CooccurrenceTable struct {
	seen map[TripletKey]struct{}
}

// NewCooccurrenceTable builds a table from seen combinations.
func NewCooccurrenceTable(keys []TripletKey) *CooccurrenceTable {
	t := &CooccurrenceTable{seen: make(map[TripletKey]struct{}, len(keys))}
	for _, k := range keys {
		t.seen[k] = struct{}{}
	}
	return t
}

// Seen reports whether the combination occurs in training data.
func (t *CooccurrenceTable) Seen(k TripletKey) bool {
	_, ok := t.seen[k]
	return ok
}

// Len returns the number of distinct seen combinations.
func (t *CooccurrenceTable) Len() int {
	return len(t.seen)
}

// ReadCooccurrence parses lines of "subject<TAB>predicate<TAB>object" class
// names. Blank lines and lines starting with '#' are skipped. Malformed lines
// and names missing from vocab are configuration errors.
func ReadCooccurrence(r io.Reader, vocab *dataset.Vocabulary) (*CooccurrenceTable, error) {
	var keys []TripletKey

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 3 {
			return nil, apperrors.ConfigurationError(fmt.Sprintf("co-occurrence line %d: want 3 tab-separated fields, got %d", line, len(fields)))
		}
		sub, ok := vocab.ObjectIndex(strings.TrimSpace(fields[0]))
		if !ok {
			return nil, unknownClass(line, "object class", fields[0])
		}
		pred, ok := vocab.RelationIndex(strings.TrimSpace(fields[1]))
		if !ok {
			return nil, unknownClass(line, "predicate", fields[1])
		}
		obj, ok := vocab.ObjectIndex(strings.TrimSpace(fields[2]))
		if !ok {
			return nil, unknownClass(line, "object class", fields[2])
		}
		keys = append(keys, TripletKey{Subject: sub, Predicate: pred, Object: obj})
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, "reading co-occurrence table", err)
	}
	return NewCooccurrenceTable(keys), nil
}

// LoadCooccurrence reads a co-occurrence table from path.
func LoadCooccurrence(path string, vocab *dataset.Vocabulary) (*CooccurrenceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, "opening co-occurrence table", err).WithDetail("path", path)
	}
	defer f.Close()
	return ReadCooccurrence(f, vocab)
}

func unknownClass(line int, what, name string) error {
	return apperrors.ConfigurationError(fmt.Sprintf("co-occurrence line %d: unknown %s %q", line, what, name))
}

// PartitionCounts are the member counts of each zero-shot partition.
type PartitionCounts struct {
	ZeroShot    int `json:"zero_shot"`
	NonZeroShot int `json:"non_zero_shot"`
	All         int `json:"all"`
}

// ZeroShotRecall holds recall per K for each partition. An empty partition
// yields NaN.
type ZeroShotRecall struct {
	ZeroShot    []float64
	NonZeroShot []float64
	All         []float64
	Counts      PartitionCounts
}

// ZeroShotPartitioner splits ground-truth triplets by whether their
// combination was seen in training.
type ZeroShotPartitioner struct {
	table *CooccurrenceTable
}

// NewZeroShotPartitioner creates a partitioner over table.
func NewZeroShotPartitioner(table *CooccurrenceTable) *ZeroShotPartitioner {
	return &ZeroShotPartitioner{table: table}
}

// Partition separates rows with a relation into zero-shot and seen rows.
func (p *ZeroShotPartitioner) Partition(rows []ClassMatrixRow) (zeroShot, nonZeroShot []ClassMatrixRow) {
	for _, row := range rows {
		if !row.HasRelation() {
			continue
		}
		if p.table.Seen(row.Key()) {
			nonZeroShot = append(nonZeroShot, row)
		} else {
			zeroShot = append(zeroShot, row)
		}
	}
	return zeroShot, nonZeroShot
}

// Recall computes triplet recall@K for each partition: the share of the
// partition's triplets whose triplet rank is within K.
func (p *ZeroShotPartitioner) Recall(rows []ClassMatrixRow, ks []int) ZeroShotRecall {
	zero, seen := p.Partition(rows)
	all := make([]ClassMatrixRow, 0, len(zero)+len(seen))
	all = append(all, zero...)
	all = append(all, seen...)

	return ZeroShotRecall{
		ZeroShot:    partitionRecall(zero, ks),
		NonZeroShot: partitionRecall(seen, ks),
		All:         partitionRecall(all, ks),
		Counts: PartitionCounts{
			ZeroShot:    len(zero),
			NonZeroShot: len(seen),
			All:         len(all),
		},
	}
}

func partitionRecall(rows []ClassMatrixRow, ks []int) []float64 {
	out := make([]float64, len(ks))
	for i, k := range ks {
		if len(rows) == 0 {
			out[i] = math.NaN()
			continue
		}
		hits := 0
		for _, row := range rows {
			if row.TripletRank <= k {
				hits++
			}
		}
		out[i] = float64(hits) * 100 / float64(len(rows))
	}
	return out
}
