package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/masonry-data/masonry/pkg/build"
	"github.com/masonry-data/masonry/pkg/query"
	"github.com/masonry-data/masonry/pkg/relation"
)

type connection interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Client implements the build adapter on top of a pgx pool. One client drives
// one build at a time, the open transaction is pinned to the client.
type Client struct {
	connection connection
	tx         pgx.Tx
}

func NewClient(ctx context.Context, dsn string) (*Client, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	return &Client{connection: pool}, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// querier returns the open transaction when there is one so that catalog
// lookups see relations created earlier in the same build.
func (c *Client) querier() querier {
	if c.tx != nil {
		return c.tx
	}

	return c.connection
}

const relationKindQuery = `SELECT table_type FROM information_schema.tables WHERE table_name = $1 AND ($2 = '' OR table_schema = $2) LIMIT 1`

// GetRelation returns the catalog snapshot for id, or nil when the relation
// does not exist.
func (c *Client) GetRelation(ctx context.Context, id relation.Identifier) (*relation.Relation, error) {
	rows, err := c.querier().Query(ctx, relationKindQuery, id.Name, id.Schema)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to look up relation %s", id.String())
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var tableType string
	if err := rows.Scan(&tableType); err != nil {
		return nil, errors.Wrap(err, "failed to scan relation kind")
	}
	rows.Close()

	kind := relation.KindTable
	if tableType == "VIEW" {
		kind = relation.KindView
	}

	columns, err := c.GetColumns(ctx, id)
	if err != nil {
		return nil, err
	}

	return &relation.Relation{Identifier: id, Kind: kind, Columns: columns}, nil
}

const columnsQuery = `SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND ($2 = '' OR table_schema = $2) ORDER BY ordinal_position`

func (c *Client) GetColumns(ctx context.Context, id relation.Identifier) ([]relation.Column, error) {
	rows, err := c.querier().Query(ctx, columnsQuery, id.Name, id.Schema)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch columns of %s", id.String())
	}
	defer rows.Close()

	var columns []relation.Column
	for rows.Next() {
		var col relation.Column
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, errors.Wrap(err, "failed to scan column")
		}

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

func (c *Client) Execute(ctx context.Context, q *query.Query) (int64, error) {
	tag, err := c.querier().Exec(ctx, q.String())
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (c *Client) Rename(ctx context.Context, kind relation.Kind, from, to relation.Identifier) error {
	_, err := c.Execute(ctx, build.RenameRelation(kind, from, to))
	return err
}

func (c *Client) Drop(ctx context.Context, kind relation.Kind, id relation.Identifier) error {
	_, err := c.Execute(ctx, build.DropRelation(kind, id))
	return err
}

func (c *Client) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errors.New("a transaction is already open on this connection")
	}

	tx, err := c.connection.Begin(ctx)
	if err != nil {
		return err
	}

	c.tx = tx
	return nil
}

func (c *Client) Commit(ctx context.Context) error {
	if c.tx == nil {
		return errors.New("no open transaction to commit")
	}

	err := c.tx.Commit(ctx)
	c.tx = nil
	return err
}

func (c *Client) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return errors.New("no open transaction to roll back")
	}

	err := c.tx.Rollback(ctx)
	c.tx = nil
	return err
}

// HasSchemaChanged is the native drift fast path: it compares the column sets
// of both relations in both directions and reports the first mismatch in name
// or declared type.
func (c *Client) HasSchemaChanged(ctx context.Context, old, staged relation.Identifier) (bool, error) {
	oldColumns, err := c.GetColumns(ctx, old)
	if err != nil {
		return false, err
	}

	stagedColumns, err := c.GetColumns(ctx, staged)
	if err != nil {
		return false, err
	}

	oldByName := make(map[string]relation.Column, len(oldColumns))
	for _, col := range oldColumns {
		oldByName[col.Name] = col
	}

	for _, col := range stagedColumns {
		oldCol, ok := oldByName[col.Name]
		if !ok || oldCol.Type != col.Type {
			return true, nil
		}
	}

	stagedByName := make(map[string]relation.Column, len(stagedColumns))
	for _, col := range stagedColumns {
		stagedByName[col.Name] = col
	}

	for _, col := range oldColumns {
		if _, ok := stagedByName[col.Name]; !ok {
			return true, nil
		}
	}

	return false, nil
}

// Ping runs a trivial query to validate the connection.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Execute(ctx, query.New("SELECT 1"))
	return errors.Wrap(err, "failed to run test query on postgres connection")
}

var _ build.Adapter = (*Client)(nil)

var _ build.SchemaChangeDetector = (*Client)(nil)
