// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func mustParse(t *testing.T, source string) *SyntaxTree {
	t.Helper()
	tree, err := NewPythonParser().Parse(context.Background(), []byte(source), "test.py")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	t.Cleanup(tree.Close)
	return tree
}

func TestPythonParser_Parse_EmptyFile(t *testing.T) {
	tree := mustParse(t, "")

	if got := tree.Root().Type(); got != "module" {
		t.Errorf("root type = %q, want module", got)
	}
	if tree.FilePath != "test.py" {
		t.Errorf("FilePath = %q, want test.py", tree.FilePath)
	}
	if got := CountNodes(tree.Root()); got != 1 {
		t.Errorf("CountNodes(root) = %d, want 1", got)
	}
	if len(tree.Hash) != 64 {
		t.Errorf("len(Hash) = %d, want 64", len(tree.Hash))
	}
}

func TestPythonParser_Parse_CountsAssignment(t *testing.T) {
	// module > expression_statement > assignment > identifier, integer
	tree := mustParse(t, "x = 1\n")
	if got := tree.Count(tree.Root()); got != 5 {
		t.Errorf("Count(root) = %d, want 5", got)
	}
}

func TestPythonParser_Parse_SyntaxError(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		wantLine   int
		wantReason string
	}{
		{name: "unclosed parameter list", source: "def f(:\n    pass\n", wantLine: 1},
		{name: "double equals in assignment", source: "a = 1\nx = = 1\n", wantLine: 2},
		{name: "class without name", source: "import os\n\n\nclass :\n    pass\n", wantLine: 4},
		{name: "python 2 print", source: "x = 1\nprint \"hello\"\n", wantLine: 2, wantReason: reasonPrintStatement},
		{name: "python 2 exec", source: "exec \"x = 1\"\n", wantLine: 1, wantReason: reasonExecStatement},
		{name: "python 2 not-equal", source: "def f(a, b):\n    return a <> b\n", wantLine: 2, wantReason: reasonNotEqual},
		{name: "dedent to no enclosing level", source: "def f():\n    if x:\n        a = 1\n      b = 2\n", wantLine: 4},
		{name: "misaligned else", source: "if x:\n    a = 1\n  else:\n    a = 2\n", wantLine: 3, wantReason: reasonUnindent},
		{name: "misaligned except", source: "def f():\n    try:\n        pass\n     except E:\n        pass\n", wantLine: 4, wantReason: reasonUnindent},
		{name: "misaligned method", source: "class A:\n    def f(self):\n        pass\n   def g(self):\n        pass\n", wantLine: 4, wantReason: reasonUnindent},
		{name: "indented module statement", source: "x = 1\n  y = 2\n", wantLine: 2, wantReason: reasonUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := NewPythonParser().Parse(context.Background(), []byte(tt.source), "bad.py")
			if err == nil {
				tree.Close()
				t.Fatal("Parse() expected error")
			}
			if tree != nil {
				t.Error("Parse() returned a tree alongside the error")
			}
			if !errors.Is(err, ErrSyntax) {
				t.Errorf("errors.Is(err, ErrSyntax) = false for %v", err)
			}

			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error %T is not *ParseError", err)
			}
			if perr.FilePath != "bad.py" {
				t.Errorf("FilePath = %q, want bad.py", perr.FilePath)
			}
			if perr.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", perr.Line, tt.wantLine)
			}
			if !strings.Contains(perr.Error(), "bad.py:") {
				t.Errorf("Error() = %q, want file prefix", perr.Error())
			}
			if tt.wantReason != "" {
				if perr.Reason != tt.wantReason {
					t.Errorf("Reason = %q, want %q", perr.Reason, tt.wantReason)
				}
				if !strings.Contains(perr.Error(), tt.wantReason) {
					t.Errorf("Error() = %q, want it to mention %q", perr.Error(), tt.wantReason)
				}
			}
		})
	}
}

func TestPythonParser_Parse_AcceptsPython3Layout(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{name: "print chevron is a shift", source: "import sys\nprint >> sys.stderr, \"x\"\n"},
		{name: "print call", source: "print(\"x\")\n"},
		{name: "semicolons", source: "a = 1; b = 2\nif a: pass\n"},
		{name: "comments at any column", source: "def f():\n  # odd\n        # odder\n    return 1\n"},
		{name: "else after nested block", source: "if x:\n    if y:\n        pass\nelse:\n    pass\n"},
		{name: "decorated method", source: "class A:\n    @property\n    def f(self):\n        return 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := NewPythonParser().Parse(context.Background(), []byte(tt.source), "ok.py")
			if err != nil {
				t.Fatalf("Parse() error: %v", err)
			}
			tree.Close()
		})
	}
}

func TestPythonParser_Parse_FileTooLarge(t *testing.T) {
	parser := NewPythonParser(WithMaxFileSize(10))
	_, err := parser.Parse(context.Background(), []byte("x = 1234567890\n"), "big.py")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Parse() error = %v, want ErrFileTooLarge", err)
	}
}

func TestPythonParser_Parse_InvalidUTF8(t *testing.T) {
	_, err := NewPythonParser().Parse(context.Background(), []byte{'x', '=', 0xff, 0xfe}, "bin.py")
	if !errors.Is(err, ErrInvalidContent) {
		t.Errorf("Parse() error = %v, want ErrInvalidContent", err)
	}
}

func TestPythonParser_Parse_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPythonParser().Parse(ctx, []byte("x = 1\n"), "test.py")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Parse() error = %v, want context.Canceled", err)
	}
}

func TestPythonParser_WithCounter(t *testing.T) {
	parser := NewPythonParser(WithCounter(SyntaxCounter{}))
	tree, err := parser.Parse(context.Background(), []byte("x = 1\n"), "test.py")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	defer tree.Close()

	if got := tree.Counter().Name(); got != CounterSyntax {
		t.Errorf("Counter().Name() = %q, want %q", got, CounterSyntax)
	}
	// The anonymous "=" token is counted on top of the five named nodes.
	if got := tree.Count(tree.Root()); got != 6 {
		t.Errorf("Count(root) = %d, want 6", got)
	}
}

func TestPythonParser_Parse_Concurrent(t *testing.T) {
	source := strings.Repeat("def f(a):\n    return [a * i for i in range(10)]\n\n", 20)
	parser := NewPythonParser()

	want := mustParse(t, source)
	wantCount := want.Count(want.Root())

	var wg sync.WaitGroup
	counts := make([]int, 16)
	errs := make([]error, 16)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tree, err := parser.Parse(context.Background(), []byte(source), "c.py")
			if err != nil {
				errs[i] = err
				return
			}
			defer tree.Close()
			counts[i] = tree.Count(tree.Root())
		}(i)
	}
	wg.Wait()

	for i := range counts {
		if errs[i] != nil {
			t.Errorf("goroutine %d: Parse() error: %v", i, errs[i])
			continue
		}
		if counts[i] != wantCount {
			t.Errorf("goroutine %d: count = %d, want %d", i, counts[i], wantCount)
		}
	}
}

func TestPythonParser_Parse_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(previous)

	parser := NewPythonParser()
	tree, err := parser.Parse(context.Background(), []byte("x = 1\n"), "ok.py")
	if err != nil {
		t.Fatalf("Parse(ok) error: %v", err)
	}
	tree.Close()
	if _, err := parser.Parse(context.Background(), []byte("x = = 1\n"), "bad.py"); err == nil {
		t.Fatal("Parse(bad) expected error")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name() != "ast.Parse" {
		t.Errorf("span name = %q, want ast.Parse", spans[0].Name())
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("successful parse span has error status")
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("failed parse span status = %v, want Error", spans[1].Status().Code)
	}
}

func TestSyntaxTree_CloseTwice(t *testing.T) {
	tree, err := NewPythonParser().Parse(context.Background(), []byte("pass\n"), "p.py")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	tree.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("second Close panicked: %v", r)
		}
	}()
	tree.Close()
}

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: "success"},
		{err: &ParseError{}, want: "syntax_error"},
		{err: context.Canceled, want: "canceled"},
		{err: ErrFileTooLarge, want: "rejected"},
	}
	for _, tt := range tests {
		if got := parseOutcome(tt.err); got != tt.want {
			t.Errorf("parseOutcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestExcerpt(t *testing.T) {
	if got := excerpt("  abc  \ndef"); got != "abc" {
		t.Errorf("excerpt = %q, want abc", got)
	}
	long := strings.Repeat("x", maxErrorExcerpt+5)
	if got, want := excerpt(long), strings.Repeat("x", maxErrorExcerpt)+"..."; got != want {
		t.Errorf("excerpt(long) = %q, want %q", got, want)
	}
}
