// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command refactorbench selects "promote method to function" refactor
// targets from Python sources and verifies proposed edits structurally.
//
// Usage:
//
//	refactorbench scan ./django
//	refactorbench scan --json --explain pkg/models.py
//	refactorbench verify --original baseconv.py --modified edited.py \
//	  --class BaseConverter --method convert
//	refactorbench verify --original baseconv.py --patch edit.diff \
//	  --class BaseConverter --method convert
//	refactorbench suite tasks/*/
//
// Exit status is 0 on success, 1 when a verification fails and 2 on usage,
// I/O or configuration errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AleutianAI/refactorbench/services/refactor/config"
	"github.com/AleutianAI/refactorbench/services/refactor/scan"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitError  = 2
)

// errVerificationFailed marks a completed run whose verdict was negative.
var errVerificationFailed = errors.New("verification failed")

// app holds the state shared by every subcommand.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	logLevel    string
	trace       bool
	metricsFile string

	cfg       *config.Config
	telemetry *telemetry
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if ferr := a.finish(context.Background()); ferr != nil && err == nil {
		err = ferr
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errVerificationFailed):
		return exitFailed
	default:
		fmt.Fprintf(stderr, "refactorbench: %v\n", err)
		return exitError
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "refactorbench",
		Short:         "Select and verify method-to-function refactors in Python code",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file (defaults are embedded)")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flags.BoolVar(&a.trace, "trace", false, "export OpenTelemetry spans and metrics to stderr")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(a.scanCommand(), a.verifyCommand(), a.suiteCommand())
	return root
}

// setup installs logging, loads configuration and starts telemetry.
func (a *app) setup(ctx context.Context) error {
	level, err := parseLevel(a.logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level})))

	a.telemetry, err = startTelemetry(a.stderr, a.trace, a.metricsFile != "")
	if err != nil {
		return err
	}

	a.cfg, err = config.LoadFile(ctx, a.configPath)
	if err != nil {
		return err
	}
	slog.Debug("configuration loaded",
		slog.String("path", a.configPath),
		slog.Int("min_method_size", a.cfg.MinMethodSize),
		slog.Int("max_method_size", a.cfg.MaxMethodSize),
		slog.Float64("class_ratio", a.cfg.ClassRatio),
		slog.Float64("tolerance", a.cfg.Tolerance),
		slog.String("count_strategy", a.cfg.CountStrategy),
	)
	return nil
}

// finish writes the metrics file and flushes telemetry. The file is written
// first because the OTel bridge stops collecting once its provider shuts
// down.
func (a *app) finish(ctx context.Context) error {
	var errs []error
	if a.metricsFile != "" && a.cfg != nil {
		errs = append(errs, scan.WriteMetrics(a.metricsFile))
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q: %w", s, err)
	}
	return level, nil
}
