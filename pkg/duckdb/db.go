package duck

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/pkg/errors"

	"github.com/masonry-data/masonry/pkg/build"
	"github.com/masonry-data/masonry/pkg/query"
	"github.com/masonry-data/masonry/pkg/relation"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Client implements the build adapter against an embedded DuckDB database.
// DuckDB has no native schema-change detection, builds on it go through the
// portable diff.
type Client struct {
	conn *sqlx.DB
	tx   *sqlx.Tx
}

func NewClient(path string) (*Client, error) {
	conn, err := sqlx.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open duckdb database")
	}

	return &Client{conn: conn}, nil
}

// NewClientWithDB wires an existing database handle, used by tests.
func NewClientWithDB(db *sqlx.DB) *Client {
	return &Client{conn: db}
}

func (c *Client) querier() querier {
	if c.tx != nil {
		return c.tx
	}

	return c.conn
}

const relationKindQuery = `SELECT table_type FROM information_schema.tables WHERE table_name = ? AND (? = '' OR table_schema = ?) LIMIT 1`

func (c *Client) GetRelation(ctx context.Context, id relation.Identifier) (*relation.Relation, error) {
	rows, err := c.querier().QueryContext(ctx, relationKindQuery, id.Name, id.Schema, id.Schema)
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

const columnsQuery = `SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ? AND (? = '' OR table_schema = ?) ORDER BY ordinal_position`

func (c *Client) GetColumns(ctx context.Context, id relation.Identifier) ([]relation.Column, error) {
	rows, err := c.querier().QueryContext(ctx, columnsQuery, id.Name, id.Schema, id.Schema)
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
	result, err := c.querier().ExecContext(ctx, q.String())
	if err != nil {
		return 0, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		// DDL statements report no row count
		return 0, nil
	}

	return rows, nil
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

	tx, err := c.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	c.tx = tx
	return nil
}

func (c *Client) Commit(context.Context) error {
	if c.tx == nil {
		return errors.New("no open transaction to commit")
	}

	err := c.tx.Commit()
	c.tx = nil
	return err
}

func (c *Client) Rollback(context.Context) error {
	if c.tx == nil {
		return errors.New("no open transaction to roll back")
	}

	err := c.tx.Rollback()
	c.tx = nil
	return err
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Execute(ctx, query.New("SELECT 1"))
	return errors.Wrap(err, "failed to run test query on duckdb connection")
}

var _ build.Adapter = (*Client)(nil)
