// Package diff compares two relation snapshots and reports schema drift. It is
// the portable fallback for adapters that cannot detect schema changes natively.
package diff

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/masonry-data/masonry/pkg/relation"
)

type TypeChange struct {
	Name    string
	OldType string
	NewType string
}

// SchemaChange describes the drift between an existing target and a freshly
// staged result. The zero value means no drift, callers that never ran Diff
// must not treat the zero value as a verdict.
type SchemaChange struct {
	Added       []relation.Column
	Removed     []relation.Column
	ChangedType []TypeChange
}

func (c SchemaChange) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.ChangedType) == 0
}

func (c SchemaChange) String() string {
	if c.Empty() {
		return "no schema change"
	}

	parts := make([]string, 0, 3)
	if len(c.Added) > 0 {
		parts = append(parts, fmt.Sprintf("added columns: %s", strings.Join(columnNames(c.Added), ", ")))
	}
	if len(c.Removed) > 0 {
		parts = append(parts, fmt.Sprintf("removed columns: %s", strings.Join(columnNames(c.Removed), ", ")))
	}
	for _, tc := range c.ChangedType {
		parts = append(parts, fmt.Sprintf("column %s changed type from %s to %s", tc.Name, tc.OldType, tc.NewType))
	}

	return strings.Join(parts, "; ")
}

func columnNames(cols []relation.Column) []string {
	return lo.Map(cols, func(c relation.Column, _ int) string {
		return c.Name
	})
}

// Diff compares the columns of old and staged by name. Column order is
// ignored, a rename shows up as one removal plus one addition.
func Diff(old, staged *relation.Relation) SchemaChange {
	oldByName := lo.KeyBy(old.Columns, func(c relation.Column) string { return c.Name })
	stagedByName := lo.KeyBy(staged.Columns, func(c relation.Column) string { return c.Name })

	var change SchemaChange

	for _, col := range staged.Columns {
		if _, ok := oldByName[col.Name]; !ok {
			change.Added = append(change.Added, col)
		}
	}

	for _, col := range old.Columns {
		stagedCol, ok := stagedByName[col.Name]
		if !ok {
			change.Removed = append(change.Removed, col)
			continue
		}

		if stagedCol.Type != col.Type {
			change.ChangedType = append(change.ChangedType, TypeChange{
				Name:    col.Name,
				OldType: col.Type,
				NewType: stagedCol.Type,
			})
		}
	}

	return change
}
