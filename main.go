package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/masonry-data/masonry/cmd"
)

var version = "dev"

func main() {
	// an interrupt rolls the open build transaction back, it never runs
	// cleanup or post-hooks
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:     "masonry",
		Version:  version,
		Usage:    "Incremental table materialization for batch data pipelines",
		Compiled: time.Now(),
		Commands: []*cli.Command{
			cmd.Run(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
