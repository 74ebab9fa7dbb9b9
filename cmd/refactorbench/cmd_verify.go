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
	"os"

	"github.com/AleutianAI/refactorbench/services/refactor/patch"
	"github.com/AleutianAI/refactorbench/services/refactor/render"
	"github.com/AleutianAI/refactorbench/services/refactor/verify"
	"github.com/spf13/cobra"
)

// verifyFlags holds flag values for the verify command.
type verifyFlags struct {
	original   string
	modified   string
	patch      string
	class      string
	method     string
	methodSize int
	classSize  int
	json       bool
}

func (a *app) verifyCommand() *cobra.Command {
	var f verifyFlags
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that a method was moved to module level intact",
		Long: `Verify parses the modified file and checks that a top-level function named
after the method exists with the method's original size, and that the class
shrank by exactly that size. The original sizes are measured from --original
unless both --method-size and --class-size are given.

Exit status is 0 when every check passes and 1 otherwise; the failed checks
are listed on stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sizesGiven := cmd.Flags().Changed("method-size") || cmd.Flags().Changed("class-size")
			return a.runVerify(cmd.Context(), f, sizesGiven)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.original, "original", "", "file before the edit")
	flags.StringVar(&f.modified, "modified", "", "file after the edit")
	flags.StringVar(&f.patch, "patch", "", "unified diff to apply to --original instead of --modified")
	flags.StringVar(&f.class, "class", "", "class the method was moved out of")
	flags.StringVar(&f.method, "method", "", "method that became a top-level function")
	flags.IntVar(&f.methodSize, "method-size", 0, "recorded method size")
	flags.IntVar(&f.classSize, "class-size", 0, "recorded class size")
	flags.BoolVar(&f.json, "json", false, "write the result as JSON to stdout")

	_ = cmd.MarkFlagRequired("class")
	_ = cmd.MarkFlagRequired("method")
	cmd.MarkFlagsMutuallyExclusive("modified", "patch")
	cmd.MarkFlagsOneRequired("modified", "patch")
	cmd.MarkFlagsRequiredTogether("method-size", "class-size")
	return cmd
}

func (a *app) runVerify(ctx context.Context, f verifyFlags, sizesGiven bool) error {
	if f.original == "" && (!sizesGiven || f.patch != "") {
		return errors.New("--original is required unless sizes are given with --modified")
	}

	var original []byte
	if f.original != "" {
		var err error
		if original, err = os.ReadFile(f.original); err != nil {
			return fmt.Errorf("reading original: %w", err)
		}
	}

	modified, label, err := a.modifiedSource(original, f)
	if err != nil {
		return err
	}

	v := verify.New(a.cfg)
	var result *verify.Result
	if sizesGiven {
		result, err = v.Verify(ctx, verify.Request{
			FilePath:           label,
			ModifiedSource:     modified,
			ClassName:          f.class,
			MethodName:         f.method,
			OriginalMethodSize: f.methodSize,
			OriginalClassSize:  f.classSize,
		})
	} else {
		result, err = v.VerifySources(ctx, original, modified, label, f.class, f.method)
	}
	if err != nil {
		return err
	}

	if f.json {
		if err := json.NewEncoder(a.stdout).Encode(result); err != nil {
			return err
		}
	}
	render.NewPrinter(a.stderr).Result(f.class+"."+f.method, result)

	if !result.Passed {
		return errVerificationFailed
	}
	return nil
}

// modifiedSource reads --modified or applies --patch to the original.
func (a *app) modifiedSource(original []byte, f verifyFlags) ([]byte, string, error) {
	if f.patch == "" {
		data, err := os.ReadFile(f.modified)
		if err != nil {
			return nil, "", fmt.Errorf("reading modified: %w", err)
		}
		return data, f.modified, nil
	}

	diffText, err := os.ReadFile(f.patch)
	if err != nil {
		return nil, "", fmt.Errorf("reading patch: %w", err)
	}
	data, err := patch.Apply(original, diffText)
	if err != nil {
		return nil, "", fmt.Errorf("applying %s: %w", f.patch, err)
	}
	return data, f.original, nil
}
