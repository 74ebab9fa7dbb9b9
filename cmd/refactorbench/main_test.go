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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/refactorbench/services/refactor/ast"
	"github.com/AleutianAI/refactorbench/services/refactor/config"
	"github.com/AleutianAI/refactorbench/services/refactor/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Fixtures
// =============================================================================

func convertMethod(indent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sdef convert(self, number):\n%s    total = 0\n", indent, indent)
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "%s    total = total + number * %d\n", indent, i)
	}
	fmt.Fprintf(&b, "%s    return total\n", indent)
	return b.String()
}

func padMethod() string {
	var b strings.Builder
	b.WriteString("    def pad(self):\n        total = 0\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "        total = total + self.step * %d\n", i)
	}
	b.WriteString("        return total\n")
	return b.String()
}

func originalSource() string {
	return "class Converter:\n" + convertMethod("    ") + "\n" + padMethod()
}

func movedSource() string {
	return "class Converter:\n" + padMethod() + "\n\n" + convertMethod("")
}

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// =============================================================================
// scan
// =============================================================================

func TestScan_Text(t *testing.T) {
	root := t.TempDir()
	write(t, root, "pkg/converter.py", originalSource())
	write(t, root, "pkg/broken.py", "def broken(:\n")

	code, stdout, stderr := runCLI(t, "scan", root)

	assert.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "Converter.convert")
	assert.NotContains(t, stdout, "Converter.pad")
	assert.Contains(t, stderr, "broken.py")
	assert.Contains(t, stderr, "2 files scanned, 1 candidates, 1 parse failures")
}

func TestScan_JSONFiles(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "converter.py", originalSource())

	code, stdout, stderr := runCLI(t, "scan", "--json", path)
	require.Equal(t, exitOK, code, stderr)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(stdout)), &got))
	assert.Equal(t, path, got["file"])
	assert.Equal(t, "Converter", got["class"])
	assert.Equal(t, "convert", got["method"])
	assert.Contains(t, stderr, `"files_scanned":1`)
}

func TestScan_Explain(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "converter.py", originalSource())

	code, stdout, _ := runCLI(t, "scan", "--explain", path)
	require.Equal(t, exitOK, code)

	assert.Contains(t, stdout, "pick ")
	assert.Contains(t, stdout, "skip ")
	assert.Contains(t, stdout, "uses receiver parameter")
}

func TestScan_WatchNeedsDirectory(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "converter.py", originalSource())

	code, _, stderr := runCLI(t, "scan", "--watch", path)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "--watch")
}

// =============================================================================
// verify
// =============================================================================

func TestVerify_Pass(t *testing.T) {
	dir := t.TempDir()
	original := write(t, dir, "original.py", originalSource())
	modified := write(t, dir, "modified.py", movedSource())

	code, _, stderr := runCLI(t, "verify", "--original", original, "--modified", modified,
		"--class", "Converter", "--method", "convert")

	assert.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stderr, "PASS Converter.convert")
}

func TestVerify_ElidedFails(t *testing.T) {
	dir := t.TempDir()
	original := write(t, dir, "original.py", originalSource())
	modified := write(t, dir, "modified.py",
		"class Converter:\n"+padMethod()+"\n\ndef convert(self, number):\n    pass  # moved\n")

	code, stdout, stderr := runCLI(t, "verify", "--json", "--original", original, "--modified", modified,
		"--class", "Converter", "--method", "convert")

	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, "FAIL Converter.convert")
	assert.Contains(t, stderr, verify.MsgFunctionSize)

	var result verify.Result
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.False(t, result.Passed)
}

func TestVerify_Patch(t *testing.T) {
	dir := t.TempDir()
	original := write(t, dir, "original.py", "class Converter:\n"+
		"    def convert(self, n):\n        return n * 2\n\n"+
		"    def pad(self):\n        return self.offset\n")
	diff := write(t, dir, "edit.diff", `--- a/original.py
+++ b/original.py
@@ -1,6 +1,7 @@
 class Converter:
-    def convert(self, n):
-        return n * 2
-
     def pad(self):
         return self.offset
+
+
+def convert(self, n):
+    return n * 2
`)

	code, _, stderr := runCLI(t, "verify", "--original", original, "--patch", diff,
		"--class", "Converter", "--method", "convert")
	assert.Equal(t, exitOK, code, stderr)
}

func TestVerify_RecordedSizes(t *testing.T) {
	dir := t.TempDir()
	modified := write(t, dir, "modified.py", movedSource())

	code, _, stderr := runCLI(t, "verify", "--modified", modified,
		"--class", "Converter", "--method", "convert", "--method-size", "1", "--class-size", "2")

	assert.Equal(t, exitFailed, code)
	assert.Contains(t, stderr, verify.MsgFunctionSize)
	assert.Contains(t, stderr, verify.MsgClassSize)
}

func TestVerify_UsageErrors(t *testing.T) {
	dir := t.TempDir()
	original := write(t, dir, "original.py", originalSource())

	tests := []struct {
		name string
		args []string
	}{
		{name: "no modified or patch", args: []string{"verify", "--original", original, "--class", "C", "--method", "m"}},
		{name: "both modified and patch", args: []string{"verify", "--original", original, "--modified", original, "--patch", original, "--class", "C", "--method", "m"}},
		{name: "missing class", args: []string{"verify", "--original", original, "--modified", original, "--method", "m"}},
		{name: "one size only", args: []string{"verify", "--modified", original, "--class", "C", "--method", "m", "--method-size", "3"}},
		{name: "unknown class in original", args: []string{"verify", "--original", original, "--modified", original, "--class", "Nope", "--method", "convert"}},
		{name: "bad log level", args: []string{"--log-level", "loud", "verify", "--original", original, "--modified", original, "--class", "C", "--method", "m"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, exitError, code)
			assert.Contains(t, stderr, "refactorbench:")
		})
	}
}

func TestVerify_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := write(t, dir, "refactorbench.yaml", "tolerance: 2.0\n")
	original := write(t, dir, "original.py", originalSource())

	code, _, stderr := runCLI(t, "--config", cfg, "verify", "--original", original, "--modified", original,
		"--class", "Converter", "--method", "convert")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "tolerance")
}

// =============================================================================
// suite
// =============================================================================

func TestSuite(t *testing.T) {
	cfg := config.Default()
	cfg.CountStrategy = ast.CounterPyAST
	v := verify.New(cfg)
	m, err := v.Measure(context.Background(), []byte(originalSource()), "converter.py", "Converter", "convert")
	require.NoError(t, err)

	task := t.TempDir()
	write(t, task, "converter.py", movedSource())
	write(t, task, "converter_test.py", fmt.Sprintf(
		"from pathlib import Path\n\nfname = Path(__file__).parent / \"converter.py\"\n"+
			"method = \"convert\"\nmethod_children = %d\nclass_name = \"Converter\"\nclass_children = %d\n",
		m.MethodSize, m.ClassSize))

	code, stdout, stderr := runCLI(t, "suite", task)
	assert.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "1/1 tasks passed")

	code, stdout, _ = runCLI(t, "suite", "--json", task, t.TempDir())
	assert.Equal(t, exitFailed, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"passed":true`)
	assert.Contains(t, lines[1], `"passed":false`)
	assert.Contains(t, lines[1], `"error":`)

	// Sizes recorded with one strategy do not verify under another.
	code, _, _ = runCLI(t, "suite", "--count-strategy", "named", task)
	assert.Equal(t, exitFailed, code)

	code, _, stderr = runCLI(t, "suite", "--count-strategy", "bytes", task)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "count_strategy")
}

// =============================================================================
// telemetry
// =============================================================================

func TestMetricsFileAndTrace(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "converter.py", originalSource())
	metrics := filepath.Join(dir, "refactorbench.prom")

	code, _, stderr := runCLI(t, "--trace", "--metrics-file", metrics, "scan", path)
	require.Equal(t, exitOK, code, stderr)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "refactorbench_scan_files_total")
	assert.Contains(t, string(data), "refactorbench_ast_parse_total")
	assert.Contains(t, stderr, "scan.Run")
}
