// Package workpool runs bounded groups of workers and chunked fold/reduce
// pipelines on top of errgroup.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Group is an errgroup.Group that turns worker panics into errors.
type Group struct {
	group  *errgroup.Group
	logger logrus.FieldLogger
}

// New returns a Group running at most limit workers at once, and the
// context cancelled when the first worker fails. A limit below 1 means
// runtime.NumCPU().
func New(ctx context.Context, limit int, logger logrus.FieldLogger) (*Group, context.Context) {
	if limit < 1 {
		limit = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	return &Group{group: g, logger: logger}, gctx
}

// Go runs f in a new goroutine, blocking while the limit is reached.
func (g *Group) Go(f func() error) {
	g.group.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				g.logger.WithFields(logrus.Fields{
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("recovered from panic in worker")
				err = fmt.Errorf("panic occurred: %v", r)
			}
		}()
		return f()
	})
}

// Wait blocks until every worker returns and reports the first error.
func (g *Group) Wait() error {
	return g.group.Wait()
}

// FoldReduce runs a chunked fold/reduce pipeline.
//
// produce is called on the calling goroutine and hands chunks to emit. Each
// chunk is folded by a worker into a local accumulator, and accumulators are
// handed to reduce one at a time, in completion order, on a single
// goroutine. reduce therefore needs no locking, but it must not depend on
// the order in which accumulators arrive.
//
// emit fails once a worker has failed or ctx is done; produce should stop
// and return that error. The first worker error takes precedence over the
// cancellation error it causes in produce.
func FoldReduce[C, A any](
	ctx context.Context,
	workers int,
	logger logrus.FieldLogger,
	produce func(emit func(C) error) error,
	fold func(C) (A, error),
	reduce func(A),
) error {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	g, gctx := New(ctx, workers, logger)

	results := make(chan A, workers+1)
	reduced := make(chan struct{})
	go func() {
		defer close(reduced)
		for acc := range results {
			reduce(acc)
		}
	}()

	emit := func(chunk C) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			acc, err := fold(chunk)
			if err != nil {
				return err
			}
			results <- acc
			return nil
		})
		return nil
	}

	produceErr := produce(emit)
	workErr := g.Wait()
	close(results)
	<-reduced

	if produceErr != nil && !errors.Is(produceErr, context.Canceled) {
		return produceErr
	}
	if workErr != nil {
		return workErr
	}
	if produceErr != nil {
		return produceErr
	}
	return ctx.Err()
}
