// Package executor fans independent builds out to a bounded worker pool. One
// target is only ever built by one worker, concurrent builds of the same
// target are rejected up front.
package executor

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/masonry-data/masonry/pkg/build"
	"github.com/masonry-data/masonry/pkg/query"
)

// Build pairs one target's configuration with the query producing its rows.
type Build struct {
	Config build.Config
	Query  *query.Query
}

// RunFunc executes a single build. The executor stays agnostic of adapters,
// the caller decides how a build maps to a connection.
type RunFunc func(ctx context.Context, b Build) (*build.Result, error)

type TargetResult struct {
	Target string
	Result *build.Result
	Err    error
}

type Concurrent struct {
	logger      *zap.SugaredLogger
	run         RunFunc
	workerCount int
}

func NewConcurrent(logger *zap.SugaredLogger, run RunFunc, workerCount int) *Concurrent {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if workerCount < 1 {
		workerCount = 1
	}

	return &Concurrent{
		logger:      logger,
		run:         run,
		workerCount: workerCount,
	}
}

// Run executes all builds with bounded parallelism and reports per-target
// outcomes in input order. A failed build does not stop the others, only a
// duplicate target aborts the whole batch before anything runs.
func (c *Concurrent) Run(ctx context.Context, builds []Build) ([]TargetResult, error) {
	seen := make(map[string]bool, len(builds))
	for _, b := range builds {
		target := b.Config.Target.String()
		if seen[target] {
			return nil, errors.Errorf("target %s appears more than once in the batch, concurrent builds of the same target are unsafe", target)
		}
		seen[target] = true
	}

	results := make([]TargetResult, len(builds))

	g := new(errgroup.Group)
	g.SetLimit(c.workerCount)

	for i, b := range builds {
		g.Go(func() error {
			target := b.Config.Target.String()
			logger := c.logger.With("target", target)
			logger.Infow("build started")

			result, err := c.run(ctx, b)
			if err != nil {
				logger.Errorw("build failed", "error", err)
			} else if result.Cleanup != nil {
				logger.Warnw("build succeeded with cleanup warnings", "warning", result.Cleanup.Error())
			} else {
				logger.Infow("build succeeded", "strategy", string(result.Strategy))
			}

			results[i] = TargetResult{Target: target, Result: result, Err: err}
			return nil
		})
	}

	// workers never return errors, failures live in the per-target results
	_ = g.Wait()

	return results, nil
}
