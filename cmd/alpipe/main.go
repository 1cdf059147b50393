// Package main implements the alpipe command, which runs the active
// learning pipeline described by a master configuration file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/alpipe/internal/pipeline"
)

// options are the parsed command line flags.
type options struct {
	configPath string
	tests      pipeline.StageTests
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("alpipe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to the master configuration file (required)")
	fs.BoolVar(&opts.tests.Builder, "test-builder", false, "run one builder task, print it and exit")
	fs.BoolVar(&opts.tests.Sampler, "test-sampler", false, "run one builder and one sampler task, print them and exit")
	fs.BoolVar(&opts.tests.Labeler, "test-labeler", false, "run one builder and one labeler task, print them and exit")
	fs.BoolVar(&opts.tests.Trainer, "test-trainer", false, "run one training task, print it and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.configPath == "" {
		return options{}, errors.New("-config is required")
	}
	return opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "alpipe: %v\n", err)
		return 2
	}

	app, err := newApplication(ctx, opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "alpipe: %v\n", err)
		return 1
	}
	defer app.cleanup()

	if opts.tests.Any() {
		err = app.controller.RunStageTests(ctx, opts.tests, stdout)
	} else {
		err = app.run(ctx)
	}
	if err != nil {
		app.logger.Error("pipeline stopped", "error", err)
		return 1
	}
	return 0
}
