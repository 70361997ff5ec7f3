package build

import (
	"fmt"

	"github.com/masonry-data/masonry/pkg/diff"
	"github.com/masonry-data/masonry/pkg/query"
	"github.com/masonry-data/masonry/pkg/relation"
)

type StrategyKind string

const (
	StrategyCreateNew        StrategyKind = "create_new"
	StrategyFullRefreshSwap  StrategyKind = "full_refresh_swap"
	StrategyIncrementalMerge StrategyKind = "incremental_merge"
)

// Swap renames the existing target aside before the replacement is built.
// Kind is the kind of the existing target, views rename with ALTER VIEW.
type Swap struct {
	Backup relation.Identifier
	Kind   relation.Kind
}

// DropTarget is one relation queued for a post-commit drop, addressed by the
// kind its DROP statement needs.
type DropTarget struct {
	Identifier relation.Identifier
	Kind       relation.Kind
}

// Strategy is the fully resolved plan for one build: the statements to run in
// order inside the transaction, an optional swap of the previous target to a
// backup name before they run, and the relations to drop after commit.
type Strategy struct {
	Kind StrategyKind

	// Swap is non-nil when the existing target is renamed to a backup name
	// before the statements run.
	Swap *Swap

	Statements []*query.Query

	DropAfterCommit []DropTarget
}

// SelectStrategy maps the observed target state and the build configuration to
// a strategy kind. It is called exactly once per build, after the old relation
// was fetched and, when staging happened, after the drift was computed. The
// rules are evaluated in order, first match wins.
func SelectStrategy(old *relation.Relation, cfg Config, change diff.SchemaChange) (StrategyKind, error) {
	if old == nil {
		return StrategyCreateNew, nil
	}

	if old.Kind == relation.KindView || cfg.FullRefresh {
		return StrategyFullRefreshSwap, nil
	}

	if !change.Empty() {
		switch cfg.OnSchemaChange {
		case OnSchemaChangeFail:
			return "", &SchemaChangeError{Target: cfg.Target, Change: change}
		case OnSchemaChangeFullRefresh:
			return StrategyFullRefreshSwap, nil
		case OnSchemaChangeIgnore:
			// drift is tolerated, the insert stays fixed to the target's
			// current columns and added staged columns are dropped
		default:
			return "", &ConfigurationError{Reason: fmt.Sprintf("unknown on_schema_change policy %q", cfg.OnSchemaChange)}
		}
	}

	return StrategyIncrementalMerge, nil
}

// Plan turns a strategy kind into the concrete statements for this build.
// stagingCreated reports whether the orchestrator already materialized the
// staging relation, it is always queued for post-commit drop when so.
func Plan(kind StrategyKind, cfg Config, old *relation.Relation, q *query.Query, stagingCreated bool) (*Strategy, error) {
	strategy := &Strategy{Kind: kind}
	if stagingCreated {
		strategy.DropAfterCommit = append(strategy.DropAfterCommit, DropTarget{Identifier: cfg.Staging(), Kind: relation.KindTable})
	}

	switch kind {
	case StrategyCreateNew:
		strategy.Statements = []*query.Query{CreateAsSelect(cfg.Target, q)}

	case StrategyFullRefreshSwap:
		if old != nil {
			backup := cfg.Backup()
			strategy.Swap = &Swap{Backup: backup, Kind: old.Kind}
			strategy.DropAfterCommit = append(strategy.DropAfterCommit, DropTarget{Identifier: backup, Kind: old.Kind})
		}
		strategy.Statements = []*query.Query{CreateAsSelect(cfg.Target, q)}

	case StrategyIncrementalMerge:
		if old == nil {
			return nil, &ConfigurationError{Reason: "incremental merge requires an existing target relation"}
		}
		if !stagingCreated {
			return nil, &ConfigurationError{Reason: "incremental merge requires a staged result"}
		}

		if len(cfg.UniqueKey) > 0 {
			deleteQuery, err := DeleteByKey(cfg.Target, cfg.Staging(), cfg.UniqueKey)
			if err != nil {
				return nil, err
			}
			strategy.Statements = append(strategy.Statements, deleteQuery)
		}

		insertQuery, err := InsertProjected(cfg.Target, cfg.Staging(), old.Columns)
		if err != nil {
			return nil, err
		}
		strategy.Statements = append(strategy.Statements, insertQuery)

	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown build strategy %q", kind)}
	}

	return strategy, nil
}
