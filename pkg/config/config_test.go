package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masonry-data/masonry/pkg/build"
	"github.com/masonry-data/masonry/pkg/relation"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/project/build.yml", `
connection:
  type: duckdb
  path: warehouse.db
targets:
  - name: analytics.orders
    query_file: sql/orders.sql
    unique_key: id
    on_schema_change: fail
    pre_hooks:
      - "SET memory_limit = '4GB'"
      - sql: "VACUUM"
        transaction: false
  - name: analytics.customers
    query: SELECT * FROM raw.customers
    unique_key: [customer_id, region]
    full_refresh: true
`)
	writeFile(t, fs, "/project/sql/orders.sql", "SELECT id, val FROM raw.orders")

	file, err := Load(fs, "/project/build.yml")
	require.NoError(t, err)

	assert.Equal(t, ConnectionTypeDuckDB, file.Connection.Type)
	assert.Equal(t, "warehouse.db", file.Connection.Path)
	require.Len(t, file.Targets, 2)

	orders := file.Targets[0]
	assert.Equal(t, []string{"id"}, orders.UniqueKey)

	cfg, err := orders.BuildConfig()
	require.NoError(t, err)
	assert.Equal(t, relation.Identifier{Schema: "analytics", Name: "orders"}, cfg.Target)
	assert.Equal(t, build.OnSchemaChangeFail, cfg.OnSchemaChange)
	require.Len(t, cfg.Hooks.Pre, 2)
	assert.Equal(t, build.Hook{Query: "SET memory_limit = '4GB'", Transaction: true}, cfg.Hooks.Pre[0])
	assert.Equal(t, build.Hook{Query: "VACUUM", Transaction: false}, cfg.Hooks.Pre[1])

	q, err := file.LoadQuery(orders)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, val FROM raw.orders", q.String())

	customers := file.Targets[1]
	assert.Equal(t, []string{"customer_id", "region"}, customers.UniqueKey)
	assert.True(t, customers.FullRefresh)

	customersCfg, err := customers.BuildConfig()
	require.NoError(t, err)
	// unset policy defaults to ignore
	assert.Equal(t, build.OnSchemaChangeIgnore, customersCfg.OnSchemaChange)

	inline, err := file.LoadQuery(customers)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM raw.customers", inline.String())
}

func TestLoad_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "unknown connection type",
			content: `
connection:
  type: oracle
targets:
  - name: t
    query: SELECT 1
`,
			wantErr: "unknown connection type",
		},
		{
			name: "postgres requires dsn",
			content: `
connection:
  type: postgres
targets:
  - name: t
    query: SELECT 1
`,
			wantErr: "require a dsn",
		},
		{
			name: "no targets",
			content: `
connection:
  type: duckdb
  path: w.db
targets: []
`,
			wantErr: "at least one target",
		},
		{
			name: "query and query_file are mutually exclusive",
			content: `
connection:
  type: duckdb
  path: w.db
targets:
  - name: t
    query: SELECT 1
    query_file: t.sql
`,
			wantErr: "pick one",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			writeFile(t, fs, "/build.yml", tt.content)

			_, err := Load(fs, "/build.yml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTarget_BuildConfig_InvalidPolicy(t *testing.T) {
	t.Parallel()

	target := Target{Name: "t", Query: "SELECT 1", OnSchemaChange: "explode"}

	_, err := target.BuildConfig()
	require.Error(t, err)

	var cfgErr *build.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
