// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/AleutianAI/refactorbench/services/refactor/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 100, cfg.MinMethodSize)
	assert.Equal(t, 250, cfg.MaxMethodSize)
	assert.Equal(t, 2.0, cfg.ClassRatio)
	assert.Equal(t, 0.0, cfg.Tolerance)
	assert.Equal(t, "named", cfg.CountStrategy)
	assert.True(t, cfg.SkipTestFiles)
	assert.Equal(t, []string{".py"}, cfg.Extensions)
	assert.Contains(t, cfg.ExcludeDirs, ".git")
	assert.Equal(t, int64(10485760), cfg.MaxFileSize)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.WorkerCount())
	assert.Equal(t, ast.CounterNamed, cfg.Counter().Name())
}

func TestDefault_ReturnsCopies(t *testing.T) {
	a := Default()
	a.ExcludeDirs[0] = "mutated"
	b := Default()
	assert.NotEqual(t, "mutated", b.ExcludeDirs[0])
}

func TestLoad_PartialOverride(t *testing.T) {
	cfg, err := Load(context.Background(), []byte("tolerance: 0.1\nworkers: 3\ncount_strategy: syntax\n"))
	require.NoError(t, err)

	assert.Equal(t, 0.1, cfg.Tolerance)
	assert.Equal(t, 3, cfg.WorkerCount())
	assert.Equal(t, 100, cfg.MinMethodSize)
	assert.Equal(t, ast.CounterSyntax, cfg.Counter().Name())
	assert.Equal(t, ast.CounterSyntax, cfg.NewParser().Counter().Name())
}

func TestLoad_PyASTStrategy(t *testing.T) {
	cfg, err := Load(context.Background(), []byte("count_strategy: pyast\n"))
	require.NoError(t, err)

	assert.Equal(t, ast.CounterPyAST, cfg.Counter().Name())
	assert.Equal(t, ast.CounterPyAST, cfg.NewParser().Counter().Name())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantField string
	}{
		{name: "min above max", yaml: "min_method_size: 300\nmax_method_size: 200\n", wantField: "max_method_size"},
		{name: "negative ratio", yaml: "class_ratio: -1\n", wantField: "class_ratio"},
		{name: "zero min", yaml: "min_method_size: 0\n", wantField: "min_method_size"},
		{name: "tolerance above one", yaml: "tolerance: 1.5\n", wantField: "tolerance"},
		{name: "negative tolerance", yaml: "tolerance: -0.1\n", wantField: "tolerance"},
		{name: "unknown strategy", yaml: "count_strategy: bytes\n", wantField: "count_strategy"},
		{name: "negative workers", yaml: "workers: -2\n", wantField: "workers"},
		{name: "extension without dot", yaml: "extensions: [py]\n", wantField: "extensions[0]"},
		{name: "no extensions", yaml: "extensions: []\n", wantField: "extensions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), []byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.wantField, cerr.Field)
			assert.NotEmpty(t, cerr.Reason)
		})
	}
}

func TestLoad_MinAboveMaxMessage(t *testing.T) {
	_, err := Load(context.Background(), []byte("min_method_size: 300\nmax_method_size: 200\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_method_size")
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(context.Background(), []byte("min_method_size: [\n"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoad_TooLarge(t *testing.T) {
	_, err := Load(context.Background(), []byte(strings.Repeat("#", MaxYAMLFileSize+1)))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refactorbench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_method_size: 10\nmax_method_size: 20\n"), 0o644))

	cfg, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MinMethodSize)
	assert.Equal(t, 20, cfg.MaxMethodSize)

	cfg, err = LoadFile(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.MinMethodSize)

	_, err = LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "min_method_size", snakeCase("MinMethodSize"))
	assert.Equal(t, "workers", snakeCase("Workers"))
}
