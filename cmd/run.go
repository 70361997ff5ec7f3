package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/masonry-data/masonry/pkg/build"
	"github.com/masonry-data/masonry/pkg/config"
	duck "github.com/masonry-data/masonry/pkg/duckdb"
	"github.com/masonry-data/masonry/pkg/executor"
	"github.com/masonry-data/masonry/pkg/postgres"
)

func Run() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Materialize every target defined in a build file",
		ArgsUsage: "[path to the build file]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "full-refresh",
				Usage: "rebuild all targets from scratch, discarding prior contents",
			},
			&cli.IntFlag{
				Name:  "workers",
				Value: 4,
				Usage: "number of targets to build in parallel",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable verbose logging",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().Get(0)
			if path == "" {
				return cli.Exit("please give the path to a build file", 1)
			}

			logger, err := buildLogger(c.Bool("debug"))
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			file, err := config.Load(afero.NewOsFs(), path)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			builds, err := collectBuilds(file, c.Bool("full-refresh"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			run := func(ctx context.Context, b executor.Build) (*build.Result, error) {
				adapter, err := newAdapter(ctx, file.Connection)
				if err != nil {
					return nil, err
				}

				runner := build.NewRunner(adapter, build.NewSQLHookRunner(adapter), logger)
				return runner.Run(ctx, b.Config, b.Query)
			}

			results, err := executor.NewConcurrent(logger, run, c.Int("workers")).Run(c.Context, builds)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			failed := 0
			for _, res := range results {
				switch {
				case res.Err != nil:
					failed++
					fmt.Printf("FAIL  %s: %s\n", res.Target, res.Err)
				case res.Result.Cleanup != nil:
					fmt.Printf("OK    %s (%s) with warning: %s\n", res.Target, res.Result.Strategy, res.Result.Cleanup.Error())
				default:
					fmt.Printf("OK    %s (%s)\n", res.Target, res.Result.Strategy)
				}
			}

			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d targets failed", failed, len(results)), 1)
			}

			return nil
		},
	}
}

func collectBuilds(file *config.File, fullRefresh bool) ([]executor.Build, error) {
	builds := make([]executor.Build, 0, len(file.Targets))
	for _, t := range file.Targets {
		cfg, err := t.BuildConfig()
		if err != nil {
			return nil, errors.Wrapf(err, "invalid target %s", t.Name)
		}

		if fullRefresh {
			cfg.FullRefresh = true
		}

		q, err := file.LoadQuery(t)
		if err != nil {
			return nil, err
		}

		builds = append(builds, executor.Build{Config: cfg, Query: q})
	}

	return builds, nil
}

// newAdapter opens a fresh connection per build, the open transaction is
// pinned to the adapter so builds cannot share one.
func newAdapter(ctx context.Context, conn config.Connection) (build.Adapter, error) {
	switch conn.Type {
	case config.ConnectionTypePostgres:
		return postgres.NewClient(ctx, conn.DSN)
	case config.ConnectionTypeDuckDB:
		return duck.NewClient(conn.Path)
	default:
		return nil, errors.Errorf("unknown connection type %q", conn.Type)
	}
}

func buildLogger(debug bool) (*zap.SugaredLogger, error) {
	if debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		return logger.Sugar(), nil
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
