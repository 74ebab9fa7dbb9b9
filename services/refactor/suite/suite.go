// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package suite loads benchmark task directories and verifies them.
//
// A task directory holds the refactor target "<stem>.py" and a unittest
// module "<stem>_test.py" that records the expected sizes:
//
//	fname = Path(__file__).parent / "<stem>.py"
//	method = "convert"
//	method_children = 144
//	class_name = "BaseConverter"
//	class_children = 298
//
// The values are read by parsing the test module, never by executing it.
package suite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/refactorbench/services/refactor/ast"
	"github.com/AleutianAI/refactorbench/services/refactor/verify"
	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"
)

// testFileSuffix marks the module that records a task's expectations.
const testFileSuffix = "_test.py"

// Recorded variable names.
const (
	varMethod         = "method"
	varMethodChildren = "method_children"
	varClassName      = "class_name"
	varClassChildren  = "class_children"
)

// ErrIncompleteTask indicates the test module lacks a recorded value.
var ErrIncompleteTask = errors.New("task is missing a recorded value")

// Task is one benchmark task's recorded expectation.
type Task struct {
	Dir        string `json:"dir"`
	TestFile   string `json:"test_file"`
	TargetFile string `json:"target_file"`
	ClassName  string `json:"class"`
	MethodName string `json:"method"`
	MethodSize int    `json:"method_size"`
	ClassSize  int    `json:"class_size"`
}

// Outcome is the verdict for one task directory.
type Outcome struct {
	Dir    string         `json:"dir"`
	Task   *Task          `json:"task,omitempty"`
	Result *verify.Result `json:"result,omitempty"`

	// Err explains why the task has no verdict, including a context that
	// ended mid-verification.
	Err error `json:"-"`
}

// Passed reports whether the task loaded and verified.
func (o Outcome) Passed() bool {
	return o.Err == nil && o.Result != nil && o.Result.Passed
}

// MarshalJSON adds the pass flag and the error text.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type plain Outcome
	out := struct {
		plain
		Passed bool   `json:"passed"`
		Error  string `json:"error,omitempty"`
	}{plain: plain(o), Passed: o.Passed()}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return json.Marshal(out)
}

// =============================================================================
// Loading
// =============================================================================

// LoadTask reads the expectations recorded in dir.
//
// Description:
//
//	Finds the single "*_test.py" file in dir, parses it and collects the
//	module's string and integer assignments to method, method_children,
//	class_name and class_children at any depth. The target file is the
//	string literal joined onto Path(__file__).parent; when absent it falls
//	back to "<stem>.py".
//
// Inputs:
//   - ctx: Context for parse cancellation.
//   - parser: Parser used for the test module.
//   - dir: Task directory.
//
// Outputs:
//   - Task: The recorded expectation.
//   - error: Missing or ambiguous test module, parse failure, or
//     ErrIncompleteTask.
func LoadTask(ctx context.Context, parser *ast.PythonParser, dir string) (Task, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+testFileSuffix))
	if err != nil {
		return Task{}, fmt.Errorf("listing %s: %w", dir, err)
	}
	if len(matches) != 1 {
		return Task{}, fmt.Errorf("task %s: expected one *%s file, found %d", dir, testFileSuffix, len(matches))
	}
	testFile := matches[0]

	content, err := os.ReadFile(testFile)
	if err != nil {
		return Task{}, fmt.Errorf("reading %s: %w", testFile, err)
	}
	tree, err := parser.Parse(ctx, content, testFile)
	if err != nil {
		return Task{}, fmt.Errorf("task %s: %w", dir, err)
	}
	defer tree.Close()

	values := make(map[string]string)
	target := ""
	walk(tree.Root(), func(n *sitter.Node) {
		switch n.Type() {
		case "assignment":
			left := n.ChildByFieldName("left")
			right := n.ChildByFieldName("right")
			if left == nil || right == nil || left.Type() != "identifier" {
				return
			}
			switch right.Type() {
			case "string":
				values[tree.Text(left)] = unquote(tree.Text(right))
			case "integer":
				values[tree.Text(left)] = tree.Text(right)
			}
		case "binary_operator":
			if target == "" && isParentJoin(tree, n) {
				target = unquote(tree.Text(n.ChildByFieldName("right")))
			}
		}
	})

	task := Task{
		Dir:        dir,
		TestFile:   testFile,
		ClassName:  values[varClassName],
		MethodName: values[varMethod],
	}
	if target == "" {
		target = strings.TrimSuffix(filepath.Base(testFile), testFileSuffix) + ".py"
	}
	task.TargetFile = filepath.Join(dir, target)

	var missing []string
	if task.MethodName == "" {
		missing = append(missing, varMethod)
	}
	if task.ClassName == "" {
		missing = append(missing, varClassName)
	}
	if task.MethodSize, err = strconv.Atoi(values[varMethodChildren]); err != nil {
		missing = append(missing, varMethodChildren)
	}
	if task.ClassSize, err = strconv.Atoi(values[varClassChildren]); err != nil {
		missing = append(missing, varClassChildren)
	}
	if len(missing) > 0 {
		return Task{}, fmt.Errorf("%w: %s: %s", ErrIncompleteTask, testFile, strings.Join(missing, ", "))
	}
	return task, nil
}

// isParentJoin matches `<...>.parent / "<string>"`.
func isParentJoin(tree *ast.SyntaxTree, n *sitter.Node) bool {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	op := n.ChildByFieldName("operator")
	if left == nil || right == nil || op == nil {
		return false
	}
	if op.Type() != "/" || right.Type() != "string" || left.Type() != "attribute" {
		return false
	}
	attr := left.ChildByFieldName("attribute")
	return attr != nil && tree.Text(attr) == "parent"
}

// walk visits every node under root in source order.
func walk(root *sitter.Node, visit func(*sitter.Node)) {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(n)
		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.NamedChild(i))
		}
	}
}

// unquote strips a Python string literal's prefix and quotes. Escape
// sequences are left as written; task values are plain identifiers and
// file names.
func unquote(lit string) string {
	lit = strings.TrimLeft(lit, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(lit) >= 2*len(q) && strings.HasPrefix(lit, q) && strings.HasSuffix(lit, q) {
			return lit[len(q) : len(lit)-len(q)]
		}
	}
	return lit
}

// =============================================================================
// Running
// =============================================================================

// Run loads and verifies every task directory.
//
// Description:
//
//	Each directory is an independent unit. Load and read failures become
//	Outcome.Err and never stop the others. Outcomes keep the order of dirs.
//
// Inputs:
//   - ctx: Cancellation abandons unstarted tasks.
//   - v: Verifier whose parser also reads the test modules.
//   - dirs: Task directories.
//   - workers: Concurrency limit, at least 1.
func Run(ctx context.Context, v *verify.Verifier, dirs []string, workers int) []Outcome {
	if workers < 1 {
		workers = 1
	}
	logger := slog.Default().With(slog.String("component", "suite"))

	outcomes := make([]Outcome, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, dir := range dirs {
		outcomes[i].Dir = dir
		if err := gctx.Err(); err != nil {
			outcomes[i].Err = err
			continue
		}
		g.Go(func() error {
			outcomes[i] = runTask(gctx, v, dir)
			if outcomes[i].Err != nil {
				logger.Warn("task not verified",
					slog.String("dir", dir),
					slog.String("error", outcomes[i].Err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func runTask(ctx context.Context, v *verify.Verifier, dir string) Outcome {
	out := Outcome{Dir: dir}

	task, err := LoadTask(ctx, v.Parser(), dir)
	if err != nil {
		out.Err = err
		return out
	}
	out.Task = &task

	modified, err := os.ReadFile(task.TargetFile)
	if err != nil {
		out.Err = fmt.Errorf("reading target: %w", err)
		return out
	}

	out.Result, out.Err = v.Verify(ctx, verify.Request{
		FilePath:           task.TargetFile,
		ModifiedSource:     modified,
		ClassName:          task.ClassName,
		MethodName:         task.MethodName,
		OriginalMethodSize: task.MethodSize,
		OriginalClassSize:  task.ClassSize,
	})
	return out
}
