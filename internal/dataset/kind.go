package dataset

import (
	"fmt"
	"strings"

	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// Kind selects a dataset variant.
type Kind string

const (
	KindWS          Kind = "ws"
	KindTransformer Kind = "transformer"
	KindOrigin      Kind = "origin"
	KindScanNet     Kind = "scannet"
)

// Split names one of the three recognized scan partitions.
type Split string

const (
	SplitTrain      Split = "train_scans"
	SplitValidation Split = "validation_scans"
	SplitTest       Split = "test_scans"
)

// layout is the on-disk shape of a dataset variant under its root directory.
type layout struct {
	objectVocab   string
	relationVocab string
	samplesDir    string
}

var layouts = map[Kind]layout{
	KindWS:          {objectVocab: "classes.txt", relationVocab: "relationships.txt", samplesDir: "ws"},
	KindTransformer: {objectVocab: "classes.txt", relationVocab: "relationships.txt", samplesDir: "transformer"},
	KindOrigin:      {objectVocab: "classes.txt", relationVocab: "relationships.txt", samplesDir: "origin"},
	KindScanNet:     {objectVocab: "scannet_classes.txt", relationVocab: "scannet_relationships.txt", samplesDir: "scannet"},
}

// ParseKind resolves a dataset kind. Empty and unknown kinds are configuration errors.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := layouts[k]; !ok {
		if s == "" {
			return "", apperrors.ConfigurationError("dataset kind is required")
		}
		return "", apperrors.ConfigurationError(fmt.Sprintf("unknown dataset kind: %s", s))
	}
	return k, nil
}

// ParseSplit resolves a split name.
func ParseSplit(s string) (Split, error) {
	switch Split(s) {
	case SplitTrain, SplitValidation, SplitTest:
		return Split(s), nil
	default:
		return "", apperrors.ConfigurationError(fmt.Sprintf("unknown split: %q (must be train_scans, validation_scans or test_scans)", s))
	}
}

// Kinds lists the supported dataset kinds.
func Kinds() []Kind {
	return []Kind{KindWS, KindTransformer, KindOrigin, KindScanNet}
}
