package build

import (
	"context"

	"github.com/masonry-data/masonry/pkg/query"
	"github.com/masonry-data/masonry/pkg/relation"
)

// Adapter is the database collaborator a build runs against. All calls are
// blocking, the orchestrator issues them strictly in order.
type Adapter interface {
	// GetRelation returns the catalog snapshot for the identifier, or nil
	// when no such relation exists.
	GetRelation(ctx context.Context, id relation.Identifier) (*relation.Relation, error)
	GetColumns(ctx context.Context, id relation.Identifier) ([]relation.Column, error)
	Execute(ctx context.Context, q *query.Query) (int64, error)
	// Rename and Drop address the relation by kind, views take different DDL
	// than tables on every shipped backend.
	Rename(ctx context.Context, kind relation.Kind, from, to relation.Identifier) error
	Drop(ctx context.Context, kind relation.Kind, id relation.Identifier) error
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SchemaChangeDetector is an optional adapter capability: a native fast path
// for drift detection. Adapters without it fall back to the portable diff.
type SchemaChangeDetector interface {
	HasSchemaChanged(ctx context.Context, old, staged relation.Identifier) (bool, error)
}

// HookRunner executes the user's pre/post actions. Hook errors propagate as
// build failures.
type HookRunner interface {
	RunHooks(ctx context.Context, hooks []Hook, insideTransaction bool) error
}
