package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// maxLineSize bounds one JSONL record; dense scans carry a few thousand edges.
const maxLineSize = 64 << 20

// SliceLoader serves samples from memory in insertion order.
type SliceLoader struct {
	samples []*Sample
	pos     int
}

// NewSliceLoader creates a loader over the given samples.
func NewSliceLoader(samples []*Sample) *SliceLoader {
	return &SliceLoader{samples: samples}
}

// Next returns the next sample or io.EOF.
func (l *SliceLoader) Next(ctx context.Context) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.pos >= len(l.samples) {
		return nil, io.EOF
	}
	s := l.samples[l.pos]
	l.pos++
	return s, nil
}

// Reset rewinds the loader.
func (l *SliceLoader) Reset() error {
	l.pos = 0
	return nil
}

// Len returns the number of samples.
func (l *SliceLoader) Len() int {
	return len(l.samples)
}

// ReadJSONL decodes one sample per non-empty line.
func ReadJSONL(r io.Reader) ([]*Sample, error) {
	var samples []*Sample

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var s Sample
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("decoding sample on line %d", line), err)
		}
		samples = append(samples, &s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}
	return samples, nil
}

// OpenJSONL loads a samples file into a SliceLoader.
func OpenJSONL(path string) (*SliceLoader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, "opening samples", err).WithDetail("path", path)
	}
	defer f.Close()

	samples, err := ReadJSONL(f)
	if err != nil {
		return nil, err
	}
	return NewSliceLoader(samples), nil
}
