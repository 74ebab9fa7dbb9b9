// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify judges whether a "promote method to function" edit moved
// the method intact.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/AleutianAI/refactorbench/services/refactor/ast"
	"github.com/AleutianAI/refactorbench/services/refactor/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var verifyTracer = otel.Tracer("refactorbench.verify")

// =============================================================================
// Result Types
// =============================================================================

// FailureKind classifies a structural mismatch.
type FailureKind string

const (
	FailureUnparseable     FailureKind = "unparseable"
	FailureFunctionMissing FailureKind = "function_missing"
	FailureFunctionSize    FailureKind = "function_size"
	FailureClassMissing    FailureKind = "class_missing"
	FailureClassSize       FailureKind = "class_size"
)

// Canonical failure messages. Details are appended after a colon.
const (
	MsgUnparseable     = "modified source does not parse"
	MsgFunctionMissing = "target function missing at top level"
	MsgFunctionSize    = "function body size diverged beyond tolerance"
	MsgClassMissing    = "class definition missing"
	MsgClassSize       = "class did not shrink by the expected amount"
)

// Failure is one failed structural check.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Result is the verdict for one verification call.
type Result struct {
	// Passed is true iff Failures is empty.
	Passed bool `json:"passed"`

	// Failures lists failed checks in the order they ran.
	Failures []Failure `json:"failures"`

	// FunctionSize is the measured size of the extracted function, zero
	// when it was not found.
	FunctionSize int `json:"function_size,omitempty"`

	// ClassSize is the measured size of the class after the edit, zero
	// when it was not found.
	ClassSize int `json:"class_size,omitempty"`
}

// Reasons returns the failure messages in order.
func (r *Result) Reasons() []string {
	reasons := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		reasons = append(reasons, f.Message)
	}
	return reasons
}

// Has reports whether a failure of kind was recorded.
func (r *Result) Has(kind FailureKind) bool {
	for _, f := range r.Failures {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

func (r *Result) fail(kind FailureKind, msg string) {
	r.Failures = append(r.Failures, Failure{Kind: kind, Message: msg})
}

// Request describes one verification.
type Request struct {
	// FilePath labels the modified source in errors and spans.
	FilePath string

	// ModifiedSource is the file after the edit.
	ModifiedSource []byte

	// ClassName is the class the method was moved out of.
	ClassName string

	// MethodName is the method, and the expected top-level function name.
	MethodName string

	// OriginalMethodSize is the method's size before the edit.
	OriginalMethodSize int

	// OriginalClassSize is the class's size before the edit.
	OriginalClassSize int
}

// Measurement holds the pre-edit sizes of a method and its class.
type Measurement struct {
	MethodSize int `json:"method_size"`
	ClassSize  int `json:"class_size"`
}

// =============================================================================
// Verifier
// =============================================================================

// Verifier checks refactor edits structurally.
//
// Description:
//
//	The verifier does not prove behavioral equivalence. It checks that a
//	module-level function with the method's name exists with the method's
//	size, and that the class shrank by exactly that size. Replacing code
//	with a placeholder collapses the node count and fails the first check.
//
// Thread Safety:
//
//	Verifier is safe for concurrent use.
type Verifier struct {
	parser    *ast.PythonParser
	tolerance float64
	workers   int
	logger    *slog.Logger
}

// New creates a Verifier from cfg.
//
// Inputs:
//   - cfg: Validated configuration. Nil selects config.Default(). The
//     Counter, tolerance and worker count come from it.
func New(cfg *config.Config) *Verifier {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Verifier{
		parser:    cfg.NewParser(),
		tolerance: cfg.Tolerance,
		workers:   cfg.WorkerCount(),
		logger:    slog.Default().With(slog.String("component", "verifier")),
	}
}

// Parser returns the parser bound to the verifier's Counter.
func (v *Verifier) Parser() *ast.PythonParser {
	return v.parser
}

// Verify runs every structural check against req.
//
// Description:
//
//	Checks run in a fixed order and all failures are collected. A modified
//	source that does not parse is the only early exit, since nothing else
//	can be measured without a tree.
//
// Inputs:
//   - ctx: Context for tracing and parse cancellation.
//   - req: The modified source, target names and original sizes.
//
// Outputs:
//   - *Result: The verdict. Structural mismatches never surface as errors.
//   - error: Non-nil only when ctx was canceled or timed out before a
//     verdict was reached; the Result is nil in that case.
func (v *Verifier) Verify(ctx context.Context, req Request) (*Result, error) {
	ctx, span := verifyTracer.Start(ctx, "verify.Verify",
		trace.WithAttributes(
			attribute.String("verify.file", req.FilePath),
			attribute.String("verify.class", req.ClassName),
			attribute.String("verify.method", req.MethodName),
		),
	)
	defer span.End()

	result, err := v.verify(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification interrupted")
		v.logger.Debug("verification interrupted",
			slog.String("file", req.FilePath),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("verifying %s: %w", req.FilePath, err)
	}

	span.SetAttributes(
		attribute.Bool("verify.passed", result.Passed),
		attribute.Int("verify.failures", len(result.Failures)),
	)
	if !result.Passed {
		span.SetStatus(codes.Error, "verification failed")
	}
	recordResult(result)

	v.logger.Debug("verification finished",
		slog.String("file", req.FilePath),
		slog.String("class", req.ClassName),
		slog.String("method", req.MethodName),
		slog.Bool("passed", result.Passed),
		slog.Int("failures", len(result.Failures)),
	)
	return result, nil
}

func (v *Verifier) verify(ctx context.Context, req Request) (*Result, error) {
	result := &Result{Failures: make([]Failure, 0)}

	tree, err := v.parser.Parse(ctx, req.ModifiedSource, req.FilePath)
	if err != nil {
		// A canceled parse says nothing about the edit.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		result.fail(FailureUnparseable, fmt.Sprintf("%s: %v", MsgUnparseable, err))
		return result, nil
	}
	defer tree.Close()

	if fn := ast.FindTopLevelFunction(tree, req.MethodName); fn == nil {
		result.fail(FailureFunctionMissing, fmt.Sprintf("%s: %q", MsgFunctionMissing, req.MethodName))
	} else {
		result.FunctionSize = fn.Size
		if !v.within(fn.Size, req.OriginalMethodSize) {
			result.fail(FailureFunctionSize, fmt.Sprintf("%s: expected %d nodes, got %d",
				MsgFunctionSize, req.OriginalMethodSize, fn.Size))
		}
	}

	if class := ast.FindTopLevelClass(tree, req.ClassName); class == nil {
		result.fail(FailureClassMissing, fmt.Sprintf("%s: %q", MsgClassMissing, req.ClassName))
	} else {
		result.ClassSize = class.Size
		expected := req.OriginalClassSize - req.OriginalMethodSize
		if !v.within(class.Size, expected) {
			result.fail(FailureClassSize, fmt.Sprintf("%s: expected %d nodes (%d - %d), got %d",
				MsgClassSize, expected, req.OriginalClassSize, req.OriginalMethodSize, class.Size))
		}
	}

	result.Passed = len(result.Failures) == 0
	return result, nil
}

// within reports whether got is within the relative tolerance of want.
func (v *Verifier) within(got, want int) bool {
	diff := math.Abs(float64(got - want))
	return diff <= v.tolerance*math.Abs(float64(want))
}

// Measure computes the pre-edit sizes of class.method in original.
//
// Outputs:
//   - Measurement: The method and class sizes under the verifier's Counter.
//   - error: A parse error, or an error naming the missing class or method.
func (v *Verifier) Measure(ctx context.Context, original []byte, filePath, className, methodName string) (Measurement, error) {
	tree, err := v.parser.Parse(ctx, original, filePath)
	if err != nil {
		return Measurement{}, fmt.Errorf("measuring original: %w", err)
	}
	defer tree.Close()

	class := ast.FindTopLevelClass(tree, className)
	if class == nil {
		return Measurement{}, fmt.Errorf("measuring original: class %q not found at top level", className)
	}
	method := ast.FindMethod(tree, class, methodName)
	if method == nil {
		return Measurement{}, fmt.Errorf("measuring original: method %q not found in class %q", methodName, className)
	}
	return Measurement{MethodSize: method.Size, ClassSize: class.Size}, nil
}

// VerifySources measures the original and verifies the modified source.
//
// Outputs:
//   - *Result: The verdict when the original could be measured.
//   - error: Non-nil when the original cannot be measured or ctx ended
//     first; the edit is not judged in that case.
func (v *Verifier) VerifySources(ctx context.Context, original, modified []byte, filePath, className, methodName string) (*Result, error) {
	m, err := v.Measure(ctx, original, filePath, className, methodName)
	if err != nil {
		return nil, err
	}
	return v.Verify(ctx, Request{
		FilePath:           filePath,
		ModifiedSource:     modified,
		ClassName:          className,
		MethodName:         methodName,
		OriginalMethodSize: m.MethodSize,
		OriginalClassSize:  m.ClassSize,
	})
}
