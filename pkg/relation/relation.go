package relation

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

type Kind string

const (
	KindTable Kind = "table"
	KindView  Kind = "view"
)

// Identifier addresses a relation in the catalog. Database and Schema may be
// empty, in which case the connection defaults apply.
type Identifier struct {
	Database string
	Schema   string
	Name     string
}

// ParseIdentifier splits a dotted relation name into its components.
// "orders" -> {Name: orders}, "analytics.orders" -> {Schema, Name},
// "warehouse.analytics.orders" -> {Database, Schema, Name}.
func ParseIdentifier(name string) (Identifier, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	switch len(parts) {
	case 1:
		return Identifier{Name: parts[0]}, nil
	case 2:
		return Identifier{Schema: parts[0], Name: parts[1]}, nil
	case 3:
		return Identifier{Database: parts[0], Schema: parts[1], Name: parts[2]}, nil
	default:
		return Identifier{}, fmt.Errorf("invalid relation name %q, expected at most 3 dot-separated parts", name)
	}
}

func (i Identifier) parts() []string {
	parts := make([]string, 0, 3)
	for _, p := range []string{i.Database, i.Schema, i.Name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func (i Identifier) String() string {
	return strings.Join(i.parts(), ".")
}

// Quoted returns the identifier with each component double-quoted, existing
// quotes doubled.
func (i Identifier) Quoted() string {
	quoted := lo.Map(i.parts(), func(p string, _ int) string {
		return `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	})
	return strings.Join(quoted, ".")
}

// Staging returns the deterministic staging identifier for this target. The
// staging relation is a temp table living in the session's temp schema, so the
// identifier carries no qualification. Two builds of the same target share the
// staging name on purpose; serializing them is the scheduler's job.
func (i Identifier) Staging() Identifier {
	return Identifier{Name: i.Name + "__tmp"}
}

// Backup returns the identifier the previous target is renamed to during a
// full-refresh swap.
func (i Identifier) Backup() Identifier {
	return Identifier{Database: i.Database, Schema: i.Schema, Name: i.Name + "__backup"}
}

type Column struct {
	Name string
	Type string
}

func (c Column) Quoted() string {
	return `"` + strings.ReplaceAll(c.Name, `"`, `""`) + `"`
}

// Relation is a snapshot of catalog state at the moment it was fetched, it is
// not kept in sync with the database afterwards.
type Relation struct {
	Identifier Identifier
	Kind       Kind
	Columns    []Column
}

func (r *Relation) ColumnNames() []string {
	return lo.Map(r.Columns, func(c Column, _ int) string {
		return c.Name
	})
}
