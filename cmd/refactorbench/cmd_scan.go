// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/AleutianAI/refactorbench/services/refactor/render"
	"github.com/AleutianAI/refactorbench/services/refactor/scan"
	"github.com/spf13/cobra"
)

// scanFlags holds flag values for the scan command.
type scanFlags struct {
	json    bool
	explain bool
	watch   bool
	workers int
}

func (a *app) scanCommand() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan [root | files...]",
		Short: "Find methods that can be promoted to module-level functions",
		Long: `Scan parses every Python file under a root directory, or an explicit list
of files, and prints the methods that never use their receiver and satisfy
the configured size rules. Files that fail to parse are reported on stderr
and do not change the exit status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd.Context(), args, f)
		},
	}
	cmd.Flags().BoolVar(&f.json, "json", false, "write JSON lines instead of text")
	cmd.Flags().BoolVar(&f.explain, "explain", false, "report the verdict for every method")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "keep running and rescan files as they change")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "worker count (overrides configuration)")
	return cmd
}

func (a *app) runScan(ctx context.Context, args []string, f scanFlags) error {
	if len(args) == 0 {
		args = []string{"."}
	}
	if f.watch && (len(args) != 1 || !isDir(args[0])) {
		return errors.New("--watch requires a single root directory")
	}

	scanner := scan.NewScanner(a.cfg, scan.WithExplain(f.explain), scan.WithWorkers(f.workers))

	var report *scan.Report
	var err error
	if len(args) == 1 && isDir(args[0]) {
		report, err = scanner.ScanRoot(ctx, args[0], a.cfg)
	} else {
		var files []string
		files, err = expandArgs(args, a)
		if err != nil {
			return err
		}
		report, err = scanner.Run(ctx, files)
	}
	if report == nil {
		return err
	}
	if werr := a.writeReport(report, f); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}

	if f.watch {
		return a.watch(ctx, args[0], scanner, f)
	}
	return nil
}

// expandArgs replaces directory arguments with their discovered files.
func expandArgs(args []string, a *app) ([]string, error) {
	files := make([]string, 0, len(args))
	for _, arg := range args {
		if !isDir(arg) {
			files = append(files, arg)
			continue
		}
		found, err := scan.Discover(arg, a.cfg)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func (a *app) writeReport(report *scan.Report, f scanFlags) error {
	if f.json {
		var err error
		if f.explain {
			err = render.WriteJSONL(a.stdout, report.Evaluations)
		} else {
			err = render.WriteJSONL(a.stdout, report.Candidates)
		}
		if err != nil {
			return err
		}
		if err := render.WriteJSONL(a.stderr, report.Failures); err != nil {
			return err
		}
		return json.NewEncoder(a.stderr).Encode(struct {
			RunID string `json:"run_id"`
			scan.Summary
		}{RunID: report.RunID, Summary: report.Summary})
	}

	out := render.NewPrinter(a.stdout)
	if f.explain {
		out.Evaluations(report.Evaluations)
	} else {
		out.Candidates(report.Candidates)
	}
	diag := render.NewPrinter(a.stderr)
	diag.Failures(report.Failures)
	diag.Summary(report.Summary)
	return nil
}

func (a *app) watch(ctx context.Context, root string, scanner *scan.Scanner, f scanFlags) error {
	w, err := scan.NewWatcher(root, a.cfg, scanner)
	if err != nil {
		return err
	}
	out := render.NewPrinter(a.stdout)
	diag := render.NewPrinter(a.stderr)

	err = w.Run(ctx, func(r scan.Rescan) {
		if r.Err != nil {
			diag.Failures([]scan.FileFailure{{FilePath: r.FilePath, Message: r.Err.Error()}})
			return
		}
		slog.Info("rescanned", slog.String("file", r.FilePath), slog.Int("candidates", len(r.Candidates)))
		if f.json {
			if err := render.WriteJSONL(a.stdout, r.Candidates); err != nil {
				slog.Warn("write failed", slog.String("error", err.Error()))
			}
			return
		}
		if len(r.Candidates) == 0 {
			fmt.Fprintf(a.stderr, "%s: no candidates\n", r.FilePath)
			return
		}
		out.Candidates(r.Candidates)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
