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
	"github.com/AleutianAI/refactorbench/services/refactor/ast"
	"github.com/AleutianAI/refactorbench/services/refactor/render"
	"github.com/AleutianAI/refactorbench/services/refactor/suite"
	"github.com/AleutianAI/refactorbench/services/refactor/verify"
	"github.com/spf13/cobra"
)

func (a *app) suiteCommand() *cobra.Command {
	var (
		asJSON   bool
		strategy string
	)
	cmd := &cobra.Command{
		Use:   "suite DIR...",
		Short: "Verify benchmark task directories",
		Long: `Suite reads each task directory's "<stem>_test.py", which records the
method, its class and their original sizes, and verifies "<stem>.py" against
them. Recorded sizes are CPython ast.walk counts, so sizes are measured with
the pyast strategy unless --count-strategy says otherwise. Exit status is 1 if
any task fails or cannot be loaded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, dirs []string) error {
			cfg := *a.cfg
			cfg.CountStrategy = strategy
			if err := cfg.Validate(); err != nil {
				return err
			}

			outcomes := suite.Run(cmd.Context(), verify.New(&cfg), dirs, cfg.WorkerCount())

			if asJSON {
				if err := render.WriteJSONL(a.stdout, outcomes); err != nil {
					return err
				}
			} else {
				render.NewPrinter(a.stdout).Outcomes(outcomes)
			}

			for _, o := range outcomes {
				if !o.Passed() {
					return errVerificationFailed
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "write one JSON object per task")
	cmd.Flags().StringVar(&strategy, "count-strategy", ast.CounterPyAST,
		"size strategy the recorded sizes use: pyast, named or syntax")
	return cmd
}
