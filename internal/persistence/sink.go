// Package persistence stores finished evaluation reports: result files on
// disk, metric history in Redis and completion events on the bus.
package persistence

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/scenegraph/sgeval/internal/evaluation"
)

// Sink receives every finalized report.
type Sink interface {
	Write(ctx context.Context, report *evaluation.Report) error
	Close() error
}

// FanOut writes a report to several sinks concurrently. The first failure is
// returned once every sink has finished.
type FanOut struct {
	sinks []Sink
}

// NewFanOut combines sinks. Nil entries are ignored.
func NewFanOut(sinks ...Sink) *FanOut {
	f := &FanOut{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of combined sinks.
func (f *FanOut) Len() int {
	return len(f.sinks)
}

func (f *FanOut) Write(ctx context.Context, report *evaluation.Report) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range f.sinks {
		g.Go(func() error {
			return s.Write(ctx, report)
		})
	}
	return g.Wait()
}

// Close closes every sink and joins their errors.
func (f *FanOut) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
