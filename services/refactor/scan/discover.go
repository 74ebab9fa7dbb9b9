// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/AleutianAI/refactorbench/services/refactor/config"
)

// Discover lists the source files under root that the scanner should read.
//
// Description:
//
//	Walks root, skipping excluded directory names and hidden directories,
//	and keeps regular files whose extension is configured. Files whose base
//	name contains "test" are skipped when cfg.SkipTestFiles is set. A root
//	that is itself a file is returned as-is when it matches.
//
// Inputs:
//   - root: Directory or file to scan.
//   - cfg: Discovery rules. Nil selects config.Default().
//
// Outputs:
//   - []string: Matching paths in lexical order. Never nil.
//   - error: Non-nil if root cannot be walked.
func Discover(root string, cfg *config.Config) ([]string, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	files := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && excludedDir(d.Name(), cfg.ExcludeDirs) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if Matches(path, cfg) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering files under %s: %w", root, err)
	}

	slices.Sort(files)
	return files, nil
}

// Matches reports whether path passes the extension and test-file rules.
func Matches(path string, cfg *config.Config) bool {
	base := filepath.Base(path)
	if !slices.Contains(cfg.Extensions, filepath.Ext(base)) {
		return false
	}
	if cfg.SkipTestFiles && strings.Contains(strings.ToLower(base), "test") {
		return false
	}
	return true
}

func excludedDir(name string, excluded []string) bool {
	if strings.HasPrefix(name, ".") && name != "." && name != ".." {
		return true
	}
	return slices.Contains(excluded, name)
}
