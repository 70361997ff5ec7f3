package build

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/masonry-data/masonry/pkg/diff"
	"github.com/masonry-data/masonry/pkg/query"
	"github.com/masonry-data/masonry/pkg/relation"
)

// Result reports the outcome of one successful build. Cleanup is non-nil when
// post-commit drops failed, the data update itself still stands.
type Result struct {
	Strategy  StrategyKind
	Relations []*relation.Relation
	Cleanup   *CleanupError
}

// Runner sequences one build end to end: hooks, staging, strategy selection,
// statement execution, commit and cleanup. It is the only component with side
// effects beyond SQL generation.
type Runner struct {
	adapter Adapter
	hooks   HookRunner
	logger  *zap.SugaredLogger
}

func NewRunner(adapter Adapter, hooks HookRunner, logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Runner{
		adapter: adapter,
		hooks:   hooks,
		logger:  logger,
	}
}

// Run brings the configured target up to date with the result of q. Any
// failure before commit rolls the transaction back and leaves the target
// untouched. Once committed, the build is successful even when cleanup or the
// final catalog fetch fail afterwards.
func (r *Runner) Run(ctx context.Context, cfg Config, q *query.Query) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if q == nil || q.IsEmpty() {
		return nil, &ConfigurationError{Reason: "build query is empty"}
	}

	logger := r.logger.With("target", cfg.Target.String(), "run_id", uuid.NewString())

	preOutside, preInside := splitHooks(cfg.Hooks.Pre)
	postOutside, postInside := splitHooks(cfg.Hooks.Post)

	if err := r.hooks.RunHooks(ctx, preOutside, false); err != nil {
		return nil, errors.Wrap(err, "pre-hooks failed")
	}

	if err := r.adapter.Begin(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to begin build transaction")
	}

	strategy, err := r.runInTransaction(ctx, logger, cfg, q, preInside, postInside)
	if err != nil {
		if rbErr := r.adapter.Rollback(ctx); rbErr != nil {
			logger.Warnw("rollback failed", "error", rbErr)
		}

		return nil, err
	}

	if err := r.adapter.Commit(ctx); err != nil {
		if rbErr := r.adapter.Rollback(ctx); rbErr != nil {
			logger.Warnw("rollback failed", "error", rbErr)
		}

		return nil, errors.Wrap(err, "failed to commit build transaction")
	}

	result := &Result{Strategy: strategy.Kind}

	// Commit is the durability boundary. A cancellation arriving now skips
	// cleanup and post-hooks, the queued relations are reported instead of
	// dropped.
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.Cleanup = pendingCleanup(strategy.DropAfterCommit, ctxErr)
		return result, nil
	}

	result.Cleanup = r.dropQueued(ctx, logger, strategy.DropAfterCommit)

	if err := r.hooks.RunHooks(ctx, postOutside, false); err != nil {
		return nil, errors.Wrap(err, "post-hooks failed after commit")
	}

	final, err := r.adapter.GetRelation(ctx, cfg.Target)
	if err != nil {
		logger.Warnw("failed to fetch final target relation", "error", err)
	} else if final != nil {
		result.Relations = append(result.Relations, final)
	}

	logger.Infow("build finished", "strategy", string(result.Strategy))

	return result, nil
}

func (r *Runner) runInTransaction(ctx context.Context, logger *zap.SugaredLogger, cfg Config, q *query.Query, preInside, postInside []Hook) (*Strategy, error) {
	if err := r.hooks.RunHooks(ctx, preInside, true); err != nil {
		return nil, errors.Wrap(err, "pre-hooks failed")
	}

	old, err := r.adapter.GetRelation(ctx, cfg.Target)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to inspect target relation %s", cfg.Target.String())
	}

	// Staging only matters when a merge is still on the table: an existing
	// table target without a forced full refresh. The drift check needs the
	// staged result's columns before the strategy can be resolved.
	stagingCreated := false
	var change diff.SchemaChange
	if old != nil && old.Kind == relation.KindTable && !cfg.FullRefresh {
		stagingQuery := CreateStagingAsSelect(cfg.Staging(), q)
		if _, err := r.adapter.Execute(ctx, stagingQuery); err != nil {
			return nil, &ExecutionError{Query: stagingQuery.String(), Err: err}
		}
		stagingCreated = true

		change, err = r.detectChange(ctx, cfg, old)
		if err != nil {
			return nil, err
		}

		if !change.Empty() {
			logger.Infow("schema drift detected", "change", change.String(), "policy", string(cfg.OnSchemaChange))
		}
	}

	// On SchemaChangeError the transaction rolls back without cleanup, the
	// staged relation is left for operator inspection.
	kind, err := SelectStrategy(old, cfg, change)
	if err != nil {
		return nil, err
	}

	logger.Infow("selected build strategy", "strategy", string(kind))

	strategy, err := Plan(kind, cfg, old, q, stagingCreated)
	if err != nil {
		return nil, err
	}

	if strategy.Swap != nil {
		// a backup can survive an earlier run whose post-commit drop failed,
		// it has to go before the rename can take its name
		leftover, err := r.adapter.GetRelation(ctx, strategy.Swap.Backup)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to inspect backup relation %s", strategy.Swap.Backup.String())
		}
		if leftover != nil {
			logger.Infow("dropping leftover backup relation", "relation", strategy.Swap.Backup.String())
			if err := r.adapter.Drop(ctx, leftover.Kind, strategy.Swap.Backup); err != nil {
				return nil, errors.Wrapf(err, "failed to drop leftover backup relation %s", strategy.Swap.Backup.String())
			}
		}

		if err := r.adapter.Rename(ctx, strategy.Swap.Kind, cfg.Target, strategy.Swap.Backup); err != nil {
			return nil, errors.Wrapf(err, "failed to rename %s to %s", cfg.Target.String(), strategy.Swap.Backup.String())
		}
	}

	for _, stmt := range strategy.Statements {
		rows, err := r.adapter.Execute(ctx, stmt)
		if err != nil {
			return nil, &ExecutionError{Query: stmt.String(), Err: err}
		}

		logger.Debugw("executed statement", "rows_affected", rows)
	}

	if err := r.hooks.RunHooks(ctx, postInside, true); err != nil {
		return nil, errors.Wrap(err, "post-hooks failed")
	}

	return strategy, nil
}

// detectChange prefers the adapter's native detection and only falls back to
// the portable diff when the adapter has no fast path or reported drift that
// needs detailing.
func (r *Runner) detectChange(ctx context.Context, cfg Config, old *relation.Relation) (diff.SchemaChange, error) {
	staging := cfg.Staging()

	if detector, ok := r.adapter.(SchemaChangeDetector); ok {
		changed, err := detector.HasSchemaChanged(ctx, cfg.Target, staging)
		if err != nil {
			return diff.SchemaChange{}, errors.Wrap(err, "failed to detect schema change")
		}

		if !changed {
			return diff.SchemaChange{}, nil
		}
	}

	columns, err := r.adapter.GetColumns(ctx, staging)
	if err != nil {
		return diff.SchemaChange{}, errors.Wrapf(err, "failed to fetch columns of staged relation %s", staging.String())
	}

	staged := &relation.Relation{Identifier: staging, Kind: relation.KindTable, Columns: columns}

	return diff.Diff(old, staged), nil
}

func (r *Runner) dropQueued(ctx context.Context, logger *zap.SugaredLogger, drops []DropTarget) *CleanupError {
	var failures []CleanupFailure
	for _, d := range drops {
		if err := r.adapter.Drop(ctx, d.Kind, d.Identifier); err != nil {
			logger.Warnw("failed to drop relation during cleanup", "relation", d.Identifier.String(), "error", err)
			failures = append(failures, CleanupFailure{Relation: d.Identifier, Err: err})
		}
	}

	if len(failures) == 0 {
		return nil
	}

	return &CleanupError{Failures: failures}
}

func pendingCleanup(drops []DropTarget, cause error) *CleanupError {
	if len(drops) == 0 {
		return nil
	}

	failures := make([]CleanupFailure, 0, len(drops))
	for _, d := range drops {
		failures = append(failures, CleanupFailure{Relation: d.Identifier, Err: cause})
	}

	return &CleanupError{Failures: failures}
}

func splitHooks(hooks []Hook) (outside, inside []Hook) {
	for _, h := range hooks {
		if h.Transaction {
			inside = append(inside, h)
		} else {
			outside = append(outside, h)
		}
	}

	return outside, inside
}
