package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masonry-data/masonry/pkg/query"
	"github.com/masonry-data/masonry/pkg/relation"
)

func newMockClient(t *testing.T) (*Client, pgxmock.PgxPoolIface) {
	t.Helper()

	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	return &Client{connection: mockPool}, mockPool
}

func expectKindLookup(mock pgxmock.PgxPoolIface, tableType string) {
	rows := pgxmock.NewRows([]string{"table_type"})
	if tableType != "" {
		rows.AddRow(tableType)
	}

	mock.ExpectQuery(regexp.QuoteMeta(relationKindQuery)).
		WithArgs("orders", "analytics").
		WillReturnRows(rows)
}

func expectColumnLookup(mock pgxmock.PgxPoolIface, name, schema string, columns ...[]string) {
	rows := pgxmock.NewRows([]string{"column_name", "data_type"})
	for _, col := range columns {
		rows.AddRow(col[0], col[1])
	}

	mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).
		WithArgs(name, schema).
		WillReturnRows(rows)
}

func TestClient_GetRelation(t *testing.T) {
	t.Parallel()

	id := relation.Identifier{Schema: "analytics", Name: "orders"}

	t.Run("existing table", func(t *testing.T) {
		t.Parallel()

		client, mock := newMockClient(t)
		expectKindLookup(mock, "BASE TABLE")
		expectColumnLookup(mock, "orders", "analytics", []string{"id", "integer"}, []string{"val", "character varying"})

		rel, err := client.GetRelation(context.Background(), id)
		require.NoError(t, err)

		assert.Equal(t, relation.KindTable, rel.Kind)
		assert.Equal(t, []relation.Column{
			{Name: "id", Type: "integer"},
			{Name: "val", Type: "character varying"},
		}, rel.Columns)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing view", func(t *testing.T) {
		t.Parallel()

		client, mock := newMockClient(t)
		expectKindLookup(mock, "VIEW")
		expectColumnLookup(mock, "orders", "analytics", []string{"id", "integer"})

		rel, err := client.GetRelation(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, relation.KindView, rel.Kind)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing relation returns nil", func(t *testing.T) {
		t.Parallel()

		client, mock := newMockClient(t)
		expectKindLookup(mock, "")

		rel, err := client.GetRelation(context.Background(), id)
		require.NoError(t, err)
		assert.Nil(t, rel)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClient_Execute(t *testing.T) {
	t.Parallel()

	client, mock := newMockClient(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM orders WHERE id > 10")).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	rows, err := client.Execute(context.Background(), query.New("DELETE FROM orders WHERE id > 10"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_TransactionLifecycle(t *testing.T) {
	t.Parallel()

	client, mock := newMockClient(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE t AS SELECT 1")).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	require.NoError(t, client.Begin(ctx))
	// statements issued while the transaction is open run on it
	_, err := client.Execute(ctx, query.New("CREATE TABLE t AS SELECT 1"))
	require.NoError(t, err)
	require.NoError(t, client.Commit(ctx))

	require.NoError(t, mock.ExpectationsWereMet())

	// the transaction is gone afterwards
	require.Error(t, client.Commit(ctx))
}

func TestClient_Rollback(t *testing.T) {
	t.Parallel()

	client, mock := newMockClient(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectRollback()

	require.NoError(t, client.Begin(ctx))
	require.NoError(t, client.Rollback(ctx))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, client.Rollback(ctx))
}

func TestClient_BeginTwice(t *testing.T) {
	t.Parallel()

	client, mock := newMockClient(t)
	mock.ExpectBegin()

	require.NoError(t, client.Begin(context.Background()))
	require.Error(t, client.Begin(context.Background()))
}

func TestClient_RenameAndDrop(t *testing.T) {
	t.Parallel()

	client, mock := newMockClient(t)
	target := relation.Identifier{Schema: "analytics", Name: "orders"}

	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE analytics.orders RENAME TO orders__backup")).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS analytics.orders__backup")).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(regexp.QuoteMeta("ALTER VIEW analytics.orders RENAME TO orders__backup")).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec(regexp.QuoteMeta("DROP VIEW IF EXISTS analytics.orders__backup")).
		WillReturnResult(pgxmock.NewResult("DROP", 0))

	require.NoError(t, client.Rename(context.Background(), relation.KindTable, target, target.Backup()))
	require.NoError(t, client.Drop(context.Background(), relation.KindTable, target.Backup()))
	require.NoError(t, client.Rename(context.Background(), relation.KindView, target, target.Backup()))
	require.NoError(t, client.Drop(context.Background(), relation.KindView, target.Backup()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_HasSchemaChanged(t *testing.T) {
	t.Parallel()

	id := relation.Identifier{Schema: "analytics", Name: "orders"}
	staging := id.Staging()

	tests := []struct {
		name    string
		oldCols [][]string
		newCols [][]string
		want    bool
	}{
		{
			name:    "identical schema",
			oldCols: [][]string{{"id", "integer"}, {"val", "text"}},
			newCols: [][]string{{"id", "integer"}, {"val", "text"}},
			want:    false,
		},
		{
			name:    "column added",
			oldCols: [][]string{{"id", "integer"}},
			newCols: [][]string{{"id", "integer"}, {"val", "text"}},
			want:    true,
		},
		{
			name:    "column removed",
			oldCols: [][]string{{"id", "integer"}, {"val", "text"}},
			newCols: [][]string{{"id", "integer"}},
			want:    true,
		},
		{
			name:    "type changed",
			oldCols: [][]string{{"id", "integer"}},
			newCols: [][]string{{"id", "bigint"}},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client, mock := newMockClient(t)
			expectColumnLookup(mock, "orders", "analytics", tt.oldCols...)
			// the staging relation is unqualified, its lookup passes no schema
			expectColumnLookup(mock, "orders__tmp", "", tt.newCols...)

			changed, err := client.HasSchemaChanged(context.Background(), id, staging)
			require.NoError(t, err)
			assert.Equal(t, tt.want, changed)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
