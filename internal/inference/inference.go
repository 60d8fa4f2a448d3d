// Package inference defines the model collaborator consumed by the evaluator.
package inference

import (
	"context"
	"fmt"

	"github.com/scenegraph/sgeval/internal/dataset"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// Output holds the class score vectors a model produced for one sample.
// Scores are expected to be finite.
type Output struct {
	ScanID         string      `json:"scan_id"`
	ObjectScores2D [][]float64 `json:"object_scores_2d"`
	ObjectScores3D [][]float64 `json:"object_scores_3d"`
	RelationScores [][]float64 `json:"relation_scores"`
}

// Model runs inference for a sample.
type Model interface {
	Infer(ctx context.Context, sample *dataset.Sample) (*Output, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(ctx context.Context, sample *dataset.Sample) (*Output, error)

// Infer calls f.
func (f ModelFunc) Infer(ctx context.Context, sample *dataset.Sample) (*Output, error) {
	return f(ctx, sample)
}

// CheckShape verifies that out has one score row per object and per edge of s
// with the vocabulary widths.
func (o *Output) CheckShape(s *dataset.Sample, numObjectClasses, numRelationClasses int) error {
	if err := checkMatrix("object_scores_3d", o.ObjectScores3D, len(s.ObjectClasses), numObjectClasses); err != nil {
		return err
	}
	if err := checkMatrix("object_scores_2d", o.ObjectScores2D, len(s.ObjectClasses), numObjectClasses); err != nil {
		return err
	}
	return checkMatrix("relation_scores", o.RelationScores, len(s.Edges), numRelationClasses)
}

func checkMatrix(name string, m [][]float64, rows, cols int) error {
	if len(m) != rows {
		return apperrors.InferenceFailure(fmt.Sprintf("%s has %d rows, want %d", name, len(m), rows), nil)
	}
	for i, row := range m {
		if len(row) != cols {
			return apperrors.InferenceFailure(fmt.Sprintf("%s row %d has %d scores, want %d", name, i, len(row), cols), nil)
		}
	}
	return nil
}
