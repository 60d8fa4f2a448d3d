package persistence

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/scenegraph/sgeval/internal/evaluation"
	apperrors "github.com/scenegraph/sgeval/internal/pkg/errors"
)

// Output file names inside the results directory.
const (
	ResultFile  = "result.txt"
	MetricsFile = "metrics.json"
)

// FileSink writes each report under <dir>/<run id>/ and appends its text
// rendering to <dir>/result.txt.
type FileSink struct {
	dir           string
	saveArtifacts bool
	mu            sync.Mutex

	openAppend func(path string) (io.WriteCloser, error)
}

// NewFileSink creates the results directory if needed.
func NewFileSink(dir string, saveArtifacts bool) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.PersistenceError("create results directory", err)
	}
	return &FileSink{dir: dir, saveArtifacts: saveArtifacts, openAppend: openAppend}, nil
}

func openAppend(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// RunDir returns the directory holding one run's files.
func (s *FileSink) RunDir(runID string) string {
	return filepath.Join(s.dir, runID)
}

func (s *FileSink) Write(ctx context.Context, report *evaluation.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runDir := s.RunDir(report.RunID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return apperrors.PersistenceError("create run directory", err)
	}

	if err := writeJSON(filepath.Join(runDir, MetricsFile), report); err != nil {
		return err
	}

	if s.saveArtifacts && report.Artifacts != nil {
		named := report.Artifacts.Named()
		names := make([]string, 0, len(named))
		for name := range named {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := writeJSON(filepath.Join(runDir, name+".json"), named[name]); err != nil {
				return err
			}
		}
	}

	return s.appendResult(report)
}

// appendResult adds the report to the shared result.txt. Close errors are
// returned like write errors.
func (s *FileSink) appendResult(report *evaluation.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.openAppend(filepath.Join(s.dir, ResultFile))
	if err != nil {
		return apperrors.PersistenceError("open result file", err)
	}

	if err := writeResult(f, report); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return apperrors.PersistenceError("close result file", err)
	}
	return nil
}

func writeResult(w io.Writer, report *evaluation.Report) error {
	if err := report.WriteText(w); err != nil {
		return apperrors.PersistenceError("write result file", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return apperrors.PersistenceError("write result file", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.PersistenceError("encode "+filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperrors.PersistenceError("write "+filepath.Base(path), err)
	}
	return nil
}
