// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package suite

import (
	"context"
	"errors"
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

func TestLoadTask(t *testing.T) {
	task, err := LoadTask(context.Background(), ast.NewPythonParser(), filepath.Join("testdata", "converter"))
	require.NoError(t, err)

	assert.Equal(t, Task{
		Dir:        filepath.Join("testdata", "converter"),
		TestFile:   filepath.Join("testdata", "converter", "converter_test.py"),
		TargetFile: filepath.Join("testdata", "converter", "converter.py"),
		ClassName:  "BaseConverter",
		MethodName: "convert",
		MethodSize: 144,
		ClassSize:  298,
	}, task)
}

func TestLoadTask_Incomplete(t *testing.T) {
	_, err := LoadTask(context.Background(), ast.NewPythonParser(), filepath.Join("testdata", "incomplete"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompleteTask))
	assert.Contains(t, err.Error(), "method_children")
	assert.Contains(t, err.Error(), "class_children")
}

func TestLoadTask_NoTestFile(t *testing.T) {
	_, err := LoadTask(context.Background(), ast.NewPythonParser(), t.TempDir())
	assert.Error(t, err)
}

func TestUnquote(t *testing.T) {
	tests := map[string]string{
		`"convert"`: "convert",
		`'convert'`: "convert",
		`r"a.py"`:   "a.py",
		`"""doc"""`: "doc",
		`''`:        "",
		`bare`:      "bare",
	}
	for in, want := range tests {
		assert.Equal(t, want, unquote(in), in)
	}
}

// =============================================================================
// Run
// =============================================================================

func body(indent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%sdef render(self, n):\n%s    total = 0\n", indent, indent)
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, "%s    total = total + n * %d\n", indent, i)
	}
	fmt.Fprintf(&b, "%s    return total\n", indent)
	return b.String()
}

const pad = "    def pad(self):\n        return self.offset + 1\n"

// makeTask writes a task directory whose target holds modified and whose
// test module records the sizes measured from the original.
func makeTask(t *testing.T, v *verify.Verifier, modified string) string {
	t.Helper()
	original := "class Widget:\n" + body("    ") + "\n" + pad

	m, err := v.Measure(context.Background(), []byte(original), "widget.py", "Widget", "render")
	require.NoError(t, err)

	dir := t.TempDir()
	test := fmt.Sprintf(`from pathlib import Path

class TheTest:
    def test_render(self):
        fname = Path(__file__).parent / "widget.py"
        method = "render"
        method_children = %d
        class_name = "Widget"
        class_children = %d
`, m.MethodSize, m.ClassSize)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget_test.py"), []byte(test), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "widget.py"), []byte(modified), 0o644))
	return dir
}

func TestRun(t *testing.T) {
	v := verify.New(nil)

	honest := makeTask(t, v, "class Widget:\n"+pad+"\n\n"+body(""))
	lazy := makeTask(t, v, "class Widget:\n"+pad+"\n\ndef render(self, n):\n    pass  # moved\n")
	missing := makeTask(t, v, "")
	require.NoError(t, os.Remove(filepath.Join(missing, "widget.py")))

	outcomes := Run(context.Background(), v, []string{honest, lazy, missing, filepath.Join("testdata", "incomplete")}, 2)
	require.Len(t, outcomes, 4)

	assert.Equal(t, honest, outcomes[0].Dir)
	assert.True(t, outcomes[0].Passed(), outcomes[0].Result)

	assert.False(t, outcomes[1].Passed())
	require.NotNil(t, outcomes[1].Result)
	assert.True(t, outcomes[1].Result.Has(verify.FailureFunctionSize))

	assert.False(t, outcomes[2].Passed())
	assert.Error(t, outcomes[2].Err)
	assert.NotNil(t, outcomes[2].Task)

	assert.ErrorIs(t, outcomes[3].Err, ErrIncompleteTask)
	assert.Nil(t, outcomes[3].Task)
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := Run(ctx, verify.New(nil), []string{"a", "b"}, 0)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

// =============================================================================
// Recorded tasks
// =============================================================================

// builtinDir holds a benchmark task whose sizes were recorded with
// CPython's ast.walk.
var builtinDir = filepath.Join("testdata", "builtin")

func pyASTVerifier() *verify.Verifier {
	cfg := config.Default()
	cfg.CountStrategy = ast.CounterPyAST
	return verify.New(cfg)
}

// promoteVerbatim moves class.method to the end of the module, dedented one
// level and otherwise untouched.
func promoteVerbatim(t *testing.T, source, className, methodName string) string {
	t.Helper()
	tree, err := ast.NewPythonParser().Parse(context.Background(), []byte(source), "target.py")
	require.NoError(t, err)
	defer tree.Close()

	class := ast.FindTopLevelClass(tree, className)
	require.NotNil(t, class)
	method := ast.FindMethod(tree, class, methodName)
	require.NotNil(t, method)

	lines := strings.SplitAfter(source, "\n")
	var kept, moved strings.Builder
	for i, line := range lines {
		if i+1 >= method.StartLine && i+1 <= method.EndLine {
			moved.WriteString(strings.TrimPrefix(line, "    "))
			continue
		}
		kept.WriteString(line)
	}
	return strings.TrimRight(kept.String(), "\n") + "\n\n\n" + moved.String()
}

func TestLoadTask_RecordedSizes(t *testing.T) {
	task, err := LoadTask(context.Background(), ast.NewPythonParser(), builtinDir)
	require.NoError(t, err)

	assert.Equal(t, "BuiltinVariable", task.ClassName)
	assert.Equal(t, "call_setattr", task.MethodName)
	assert.Equal(t, 534, task.MethodSize)
	assert.Equal(t, 8457, task.ClassSize)
	assert.Equal(t, filepath.Join(builtinDir, "builtin.py"), task.TargetFile)
}

func TestMeasure_MatchesRecordedSizes(t *testing.T) {
	original, err := os.ReadFile(filepath.Join(builtinDir, "builtin.py"))
	require.NoError(t, err)

	m, err := pyASTVerifier().Measure(context.Background(), original, "builtin.py", "BuiltinVariable", "call_setattr")
	require.NoError(t, err)
	assert.Equal(t, verify.Measurement{MethodSize: 534, ClassSize: 8457}, m)
}

func TestRun_RecordedTask(t *testing.T) {
	original, err := os.ReadFile(filepath.Join(builtinDir, "builtin.py"))
	require.NoError(t, err)
	recorded, err := os.ReadFile(filepath.Join(builtinDir, "builtin_test.py"))
	require.NoError(t, err)

	dir := t.TempDir()
	moved := promoteVerbatim(t, string(original), "BuiltinVariable", "call_setattr")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "builtin.py"), []byte(moved), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "builtin_test.py"), recorded, 0o644))

	outcomes := Run(context.Background(), pyASTVerifier(), []string{dir}, 1)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.True(t, outcomes[0].Passed(), outcomes[0].Result.Reasons())
	assert.Equal(t, 534, outcomes[0].Result.FunctionSize)
	assert.Equal(t, 8457-534, outcomes[0].Result.ClassSize)

	// The tree-sitter counts are on a different scale from the recorded ones.
	named := Run(context.Background(), verify.New(nil), []string{dir}, 1)
	require.Len(t, named, 1)
	assert.False(t, named[0].Passed())
}
