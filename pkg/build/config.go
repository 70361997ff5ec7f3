package build

import (
	"fmt"

	"github.com/masonry-data/masonry/pkg/relation"
)

// OnSchemaChange controls what happens when the staged result's schema drifts
// from the existing target.
type OnSchemaChange string

const (
	OnSchemaChangeIgnore      OnSchemaChange = "ignore"
	OnSchemaChangeFail        OnSchemaChange = "fail"
	OnSchemaChangeFullRefresh OnSchemaChange = "full_refresh"
)

var AllOnSchemaChangePolicies = []OnSchemaChange{
	OnSchemaChangeIgnore,
	OnSchemaChangeFail,
	OnSchemaChangeFullRefresh,
}

// Hook is a single pre or post action. Transaction marks whether it runs
// inside the build transaction or around it.
type Hook struct {
	Query       string
	Transaction bool
}

type Hooks struct {
	Pre  []Hook
	Post []Hook
}

// Config is the immutable input for one build. The target identifier never
// changes for the duration of the build, staging and backup identifiers are
// derived from it.
type Config struct {
	Target         relation.Identifier
	UniqueKey      []string
	FullRefresh    bool
	OnSchemaChange OnSchemaChange
	Hooks          Hooks
}

func (c Config) Staging() relation.Identifier {
	return c.Target.Staging()
}

func (c Config) Backup() relation.Identifier {
	return c.Target.Backup()
}

func (c Config) Validate() error {
	if c.Target.Name == "" {
		return &ConfigurationError{Reason: "target relation name is required"}
	}

	switch c.OnSchemaChange {
	case OnSchemaChangeIgnore, OnSchemaChangeFail, OnSchemaChangeFullRefresh:
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unknown on_schema_change policy %q, must be one of %v", c.OnSchemaChange, AllOnSchemaChangePolicies)}
	}

	for _, key := range c.UniqueKey {
		if key == "" {
			return &ConfigurationError{Reason: "unique_key contains an empty column name"}
		}
	}

	return nil
}
