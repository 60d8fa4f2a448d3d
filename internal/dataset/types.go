// Package dataset describes scan samples and the loaders that yield them.
package dataset

import (
	"context"
	"fmt"

	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// Edge is a directed candidate relation between two objects of a scan.
type Edge struct {
	Subject int `json:"subject"`
	Object  int `json:"object"`
}

// Sample is one scan-derived unit: N objects and M candidate edges with labels.
// Loaders hand samples over fully formed; the evaluator never mutates them.
type Sample struct {
	ScanID         string `json:"scan_id"`
	SplitID        int    `json:"split_id"`
	ObjectClasses  []int  `json:"object_classes"`
	Edges          []Edge `json:"edges"`
	RelationLabels []int  `json:"relation_labels"`
}

// Validate checks label ranges and edge endpoints against the vocabulary sizes.
func (s *Sample) Validate(numObjectClasses, numRelationClasses int) error {
	if len(s.Edges) != len(s.RelationLabels) {
		return apperrors.ValidationError(fmt.Sprintf("scan %s: %d edges but %d relation labels",
			s.ScanID, len(s.Edges), len(s.RelationLabels)))
	}
	for i, c := range s.ObjectClasses {
		if c < 0 || c >= numObjectClasses {
			return apperrors.ValidationError(fmt.Sprintf("scan %s: object %d has class %d outside [0,%d)",
				s.ScanID, i, c, numObjectClasses))
		}
	}
	n := len(s.ObjectClasses)
	for i, e := range s.Edges {
		if e.Subject < 0 || e.Subject >= n || e.Object < 0 || e.Object >= n {
			return apperrors.ValidationError(fmt.Sprintf("scan %s: edge %d (%d,%d) references unknown object",
				s.ScanID, i, e.Subject, e.Object))
		}
		if r := s.RelationLabels[i]; r < 0 || r >= numRelationClasses {
			return apperrors.ValidationError(fmt.Sprintf("scan %s: edge %d has predicate %d outside [0,%d)",
				s.ScanID, i, r, numRelationClasses))
		}
	}
	return nil
}

// Loader yields samples in a deterministic order. Next returns io.EOF after the
// last sample; Reset rewinds the loader for another pass.
type Loader interface {
	Next(ctx context.Context) (*Sample, error)
	Reset() error
	Len() int
}
