// Package config loads build definitions from YAML files. It is the only
// place that parses user configuration, the build core receives ready values.
package config

import (
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/masonry-data/masonry/pkg/build"
	"github.com/masonry-data/masonry/pkg/query"
	"github.com/masonry-data/masonry/pkg/relation"
)

const (
	ConnectionTypePostgres = "postgres"
	ConnectionTypeDuckDB   = "duckdb"
)

type Connection struct {
	Type string `mapstructure:"type"`
	// DSN is the connection URI for server-backed databases.
	DSN string `mapstructure:"dsn"`
	// Path is the database file for embedded databases.
	Path string `mapstructure:"path"`
}

// Hook is a pre or post SQL action. A plain string in YAML becomes a hook that
// runs inside the build transaction, the mapping form can opt out with
// `transaction: false`.
type Hook struct {
	SQL         string `mapstructure:"sql"`
	Transaction *bool  `mapstructure:"transaction"`
}

type Target struct {
	Name           string   `mapstructure:"name"`
	Query          string   `mapstructure:"query"`
	QueryFile      string   `mapstructure:"query_file"`
	UniqueKey      []string `mapstructure:"unique_key"`
	FullRefresh    bool     `mapstructure:"full_refresh"`
	OnSchemaChange string   `mapstructure:"on_schema_change"`
	PreHooks       []Hook   `mapstructure:"pre_hooks"`
	PostHooks      []Hook   `mapstructure:"post_hooks"`
}

type File struct {
	Connection Connection `mapstructure:"connection"`
	Targets    []Target   `mapstructure:"targets"`

	fs      afero.Fs
	baseDir string
}

// Load reads and validates a build file. Query files referenced by targets are
// resolved relative to the build file's directory when loaded later.
func Load(fs afero.Fs, path string) (*File, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read build file %s", path)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse build file %s", path)
	}

	file := &File{fs: fs, baseDir: filepath.Dir(path)}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToHookHookFunc(),
			stringToSliceHookFunc(),
		),
		Result: file,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrapf(err, "failed to decode build file %s", path)
	}

	if err := file.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid build file %s", path)
	}

	return file, nil
}

func (f *File) validate() error {
	switch f.Connection.Type {
	case ConnectionTypePostgres:
		if f.Connection.DSN == "" {
			return errors.New("postgres connections require a dsn")
		}
	case ConnectionTypeDuckDB:
		if f.Connection.Path == "" {
			return errors.New("duckdb connections require a path")
		}
	default:
		return errors.Errorf("unknown connection type %q", f.Connection.Type)
	}

	if len(f.Targets) == 0 {
		return errors.New("at least one target is required")
	}

	for _, t := range f.Targets {
		if t.Name == "" {
			return errors.New("every target needs a name")
		}
		if t.Query == "" && t.QueryFile == "" {
			return errors.Errorf("target %s needs either a query or a query_file", t.Name)
		}
		if t.Query != "" && t.QueryFile != "" {
			return errors.Errorf("target %s has both a query and a query_file, pick one", t.Name)
		}
	}

	return nil
}

// BuildConfig turns a target definition into the immutable input of one build.
func (t Target) BuildConfig() (build.Config, error) {
	target, err := relation.ParseIdentifier(t.Name)
	if err != nil {
		return build.Config{}, err
	}

	policy := build.OnSchemaChange(strings.TrimSpace(t.OnSchemaChange))
	if policy == "" {
		policy = build.OnSchemaChangeIgnore
	}

	cfg := build.Config{
		Target:         target,
		UniqueKey:      t.UniqueKey,
		FullRefresh:    t.FullRefresh,
		OnSchemaChange: policy,
		Hooks: build.Hooks{
			Pre:  buildHooks(t.PreHooks),
			Post: buildHooks(t.PostHooks),
		},
	}

	return cfg, cfg.Validate()
}

// LoadQuery resolves the target's SQL, either inline or from its query file.
func (f *File) LoadQuery(t Target) (*query.Query, error) {
	if t.Query != "" {
		return query.New(t.Query), nil
	}

	path := t.QueryFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.baseDir, path)
	}

	content, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read query file for target %s", t.Name)
	}

	return query.New(string(content)), nil
}

func buildHooks(hooks []Hook) []build.Hook {
	out := make([]build.Hook, 0, len(hooks))
	for _, h := range hooks {
		transaction := true
		if h.Transaction != nil {
			transaction = *h.Transaction
		}

		out = append(out, build.Hook{Query: h.SQL, Transaction: transaction})
	}

	return out
}

// stringToHookHookFunc lets users write hooks as plain SQL strings.
func stringToHookHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(Hook{}) {
			return data, nil
		}

		return Hook{SQL: data.(string)}, nil
	}
}

// stringToSliceHookFunc lets a single-column unique_key be written without the
// list syntax.
func stringToSliceHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
			return data, nil
		}

		return []string{data.(string)}, nil
	}
}
