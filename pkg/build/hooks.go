package build

import (
	"context"

	"github.com/pkg/errors"

	"github.com/masonry-data/masonry/pkg/query"
)

// SQLHookRunner executes hook queries through the build's adapter. The
// orchestrator decides which hooks run inside the transaction, this runner
// only executes whatever list it is handed.
type SQLHookRunner struct {
	adapter Adapter
}

func NewSQLHookRunner(adapter Adapter) *SQLHookRunner {
	return &SQLHookRunner{adapter: adapter}
}

func (r *SQLHookRunner) RunHooks(ctx context.Context, hooks []Hook, insideTransaction bool) error {
	for _, hook := range hooks {
		q := query.New(hook.Query)
		if q.IsEmpty() {
			continue
		}

		if _, err := r.adapter.Execute(ctx, q); err != nil {
			return errors.Wrapf(err, "hook failed (inside transaction: %t)", insideTransaction)
		}
	}

	return nil
}
