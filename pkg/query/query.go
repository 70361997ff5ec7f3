package query

import (
	"strings"
)

// Query is a single executable SQL statement. The text is treated as opaque
// by everything except the adapter that runs it.
type Query struct {
	Query string
}

func New(q string) *Query {
	return &Query{Query: q}
}

func (q Query) String() string {
	return strings.TrimSpace(q.Query)
}

func (q Query) IsEmpty() bool {
	return strings.TrimSpace(q.Query) == ""
}
