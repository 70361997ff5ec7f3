package build

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/masonry-data/masonry/pkg/query"
	"github.com/masonry-data/masonry/pkg/relation"
)

// The builders below only produce SQL text, they never touch the adapter.

func CreateAsSelect(target relation.Identifier, q *query.Query) *query.Query {
	return query.New(fmt.Sprintf("CREATE TABLE %s AS %s", target.String(), q.String()))
}

func CreateStagingAsSelect(staging relation.Identifier, q *query.Query) *query.Query {
	return query.New(fmt.Sprintf("CREATE TEMP TABLE %s AS %s", staging.String(), q.String()))
}

// DeleteByKey deletes every row in target whose key tuple appears in staging.
// Composite keys compare as tuples, values are never concatenated into a
// single string.
func DeleteByKey(target, staging relation.Identifier, keys []string) (*query.Query, error) {
	if len(keys) == 0 {
		return nil, &ConfigurationError{Reason: "delete by key requires at least one unique_key column"}
	}

	keyList := strings.Join(quoteColumns(keys), ", ")
	keyExpr := keyList
	if len(keys) > 1 {
		keyExpr = "(" + keyList + ")"
	}

	return query.New(fmt.Sprintf(
		"DELETE FROM %s WHERE %s IN (SELECT DISTINCT %s FROM %s)",
		target.String(),
		keyExpr,
		keyList,
		staging.String(),
	)), nil
}

// InsertProjected inserts the full staged row set into target, listing the
// destination columns in the target's declared order. Projecting by the
// target keeps a reordered or drifted staging result from misaligning values.
func InsertProjected(target, staging relation.Identifier, columns []relation.Column) (*query.Query, error) {
	if len(columns) == 0 {
		return nil, &ConfigurationError{Reason: "insert requires at least one destination column"}
	}

	columnList := strings.Join(lo.Map(columns, func(c relation.Column, _ int) string {
		return c.Quoted()
	}), ", ")

	return query.New(fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s",
		target.String(),
		columnList,
		columnList,
		staging.String(),
	)), nil
}

// RenameRelation renames within the relation's schema, the target name is
// never qualified. Views need their own ALTER keyword.
func RenameRelation(kind relation.Kind, from, to relation.Identifier) *query.Query {
	return query.New(fmt.Sprintf("ALTER %s %s RENAME TO %s", ddlKeyword(kind), from.String(), to.Name))
}

func DropRelation(kind relation.Kind, id relation.Identifier) *query.Query {
	return query.New(fmt.Sprintf("DROP %s IF EXISTS %s", ddlKeyword(kind), id.String()))
}

func ddlKeyword(kind relation.Kind) string {
	if kind == relation.KindView {
		return "VIEW"
	}

	return "TABLE"
}

func quoteColumns(names []string) []string {
	return lo.Map(names, func(name string, _ int) string {
		return relation.Column{Name: name}.Quoted()
	})
}
