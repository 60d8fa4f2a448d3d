package inference

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/scenegraph/sgeval/internal/dataset"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// Replay serves model outputs dumped by an earlier inference run, keyed by scan ID.
type Replay struct {
	outputs map[string]*Output
}

// NewReplay indexes outputs by scan ID. A repeated scan ID keeps the last
// output; nil entries are skipped.
func NewReplay(outputs []*Output) *Replay {
	r := &Replay{outputs: make(map[string]*Output, len(outputs))}
	for _, o := range outputs {
		if o == nil {
			continue
		}
		r.outputs[o.ScanID] = o
	}
	return r
}

// Infer returns the recorded output for the sample's scan.
func (r *Replay) Infer(ctx context.Context, sample *dataset.Sample) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, ok := r.outputs[sample.ScanID]
	if !ok {
		return nil, apperrors.InferenceFailure(fmt.Sprintf("no recorded output for scan %s", sample.ScanID), nil)
	}
	return out, nil
}

// Len returns the number of recorded outputs.
func (r *Replay) Len() int {
	return len(r.outputs)
}

// ReadReplay decodes one Output per non-empty line.
func ReadReplay(rd io.Reader) (*Replay, error) {
	var outputs []*Output

	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 1<<20), 256<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var o Output
		if err := json.Unmarshal(sc.Bytes(), &o); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfiguration, fmt.Sprintf("decoding output on line %d", line), err)
		}
		outputs = append(outputs, &o)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading outputs: %w", err)
	}
	return NewReplay(outputs), nil
}

// OpenReplay loads a predictions dump from path.
func OpenReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, "opening predictions", err).WithDetail("path", path)
	}
	defer f.Close()
	return ReadReplay(f)
}
