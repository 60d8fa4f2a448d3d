package evaluation

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

func TestReadCooccurrence(t *testing.T) {
	vocab := sceneVocab(t)
	input := strings.Join([]string{
		"# subject\tpredicate\tobject",
		"chair\tstanding on\ttable",
		"",
		"lamp\tclose by\tchair",
		"chair\tstanding on\ttable",
	}, "\n")

	table, err := ReadCooccurrence(strings.NewReader(input), vocab)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.True(t, table.Seen(TripletKey{Subject: 0, Predicate: 1, Object: 1}))
	assert.True(t, table.Seen(TripletKey{Subject: 2, Predicate: 2, Object: 0}))
	assert.False(t, table.Seen(TripletKey{Subject: 1, Predicate: 2, Object: 2}))
}

func TestReadCooccurrence_Errors(t *testing.T) {
	vocab := sceneVocab(t)
	tests := []struct {
		name  string
		input string
	}{
		{"unknown subject", "sofa\tstanding on\ttable"},
		{"unknown predicate", "chair\tfloating over\ttable"},
		{"unknown object", "chair\tstanding on\tsofa"},
		{"too few fields", "chair\tstanding on"},
		{"space separated", "chair standing_on table"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCooccurrence(strings.NewReader(tt.input), vocab)
			require.Error(t, err)
			assert.True(t, apperrors.IsConfiguration(err))
		})
	}
}

func TestLoadCooccurrence_MissingFile(t *testing.T) {
	_, err := LoadCooccurrence(t.TempDir()+"/missing.tsv", sceneVocab(t))
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestZeroShotPartitioner_Recall(t *testing.T) {
	table := NewCooccurrenceTable([]TripletKey{{Subject: 0, Predicate: 1, Object: 1}})
	rows := []ClassMatrixRow{
		{Subject: 0, Predicate: 1, Object: 1, TripletRank: 1},
		{Subject: 1, Predicate: 2, Object: 2, TripletRank: 3},
		{Subject: 1, Predicate: 2, Object: 2, TripletRank: 60},
		{Subject: 0, Predicate: NoRelation, Object: 1, TripletRank: 1},
	}

	got := NewZeroShotPartitioner(table).Recall(rows, []int{1, 50})
	assert.Equal(t, PartitionCounts{ZeroShot: 2, NonZeroShot: 1, All: 3}, got.Counts)
	assert.Equal(t, []float64{0, 50}, got.ZeroShot)
	assert.Equal(t, []float64{100, 100}, got.NonZeroShot)
	assert.InDeltaSlice(t, []float64{100.0 / 3, 200.0 / 3}, got.All, 1e-9)
}

func TestZeroShotPartitioner_EmptyPartitionIsNaN(t *testing.T) {
	table := NewCooccurrenceTable(nil)
	rows := []ClassMatrixRow{{Subject: 0, Predicate: 1, Object: 1, TripletRank: 1}}

	got := NewZeroShotPartitioner(table).Recall(rows, []int{50})
	assert.Equal(t, []float64{100}, got.ZeroShot)
	assert.True(t, math.IsNaN(got.NonZeroShot[0]))
	assert.Equal(t, []float64{100}, got.All)
}

func TestZeroShotPartitioner_CountsSumToAll(t *testing.T) {
	r := rand.New(rand.NewPCG(13, 17))
	var keys []TripletKey
	for i := 0; i < 20; i++ {
		keys = append(keys, TripletKey{Subject: r.IntN(4), Predicate: r.IntN(4), Object: r.IntN(4)})
	}
	p := NewZeroShotPartitioner(NewCooccurrenceTable(keys))

	for i := 0; i < 50; i++ {
		rows := make([]ClassMatrixRow, r.IntN(30))
		for j := range rows {
			rows[j] = ClassMatrixRow{
				Subject:     r.IntN(4),
				Predicate:   r.IntN(5) - 1,
				Object:      r.IntN(4),
				TripletRank: 1 + r.IntN(100),
			}
		}
		c := p.Recall(rows, []int{50}).Counts
		require.Equal(t, c.All, c.ZeroShot+c.NonZeroShot)
	}
}
