package build

import (
	"fmt"
	"strings"

	"github.com/masonry-data/masonry/pkg/diff"
	"github.com/masonry-data/masonry/pkg/relation"
)

// SchemaChangeError is returned when drift was detected and the configured
// policy forbids it. The build is guaranteed to be a no-op in that case.
type SchemaChangeError struct {
	Target relation.Identifier
	Change diff.SchemaChange
}

func (e *SchemaChangeError) Error() string {
	return fmt.Sprintf("schema change detected on %s and on_schema_change is set to fail: %s", e.Target.String(), e.Change.String())
}

// ConfigurationError is returned before any statement executes when the build
// configuration itself is unusable.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid build configuration: " + e.Reason
}

// ExecutionError wraps a statement that the adapter failed to run. Any
// occurrence before commit rolls the whole build back.
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to execute statement %q: %s", e.Query, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// CleanupFailure records one relation that could not be dropped after commit.
type CleanupFailure struct {
	Relation relation.Identifier
	Err      error
}

// CleanupError is attached to an otherwise successful build when post-commit
// drops fail. It never reverses the committed result.
type CleanupError struct {
	Failures []CleanupFailure
}

func (e *CleanupError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("failed to drop %s: %s", f.Relation.String(), f.Err))
	}

	return "build succeeded but cleanup failed: " + strings.Join(msgs, "; ")
}
