// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package selector finds methods that can be promoted to module-level
// functions without touching instance state.
package selector

import (
	"log/slog"

	"github.com/AleutianAI/refactorbench/services/refactor/ast"
	"github.com/AleutianAI/refactorbench/services/refactor/config"
)

// implicitReceiverNames are identifiers that reach the receiver without
// naming it: zero-argument super() and the __class__ cell both depend on
// the enclosing class and break once the method leaves it.
var implicitReceiverNames = []string{"super", "__class__"}

// =============================================================================
// Types
// =============================================================================

// Candidate is a method judged mechanically extractable.
//
// Invariant: MinMethodSize <= MethodSize <= MaxMethodSize and
// ClassSize >= ClassRatio * MethodSize under the Selector's configuration.
type Candidate struct {
	FilePath   string `json:"file"`
	ClassName  string `json:"class"`
	MethodName string `json:"method"`
	MethodSize int    `json:"method_size"`
	ClassSize  int    `json:"class_size"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
}

// Reason explains why a method was or was not selected.
type Reason string

const (
	ReasonEligible         Reason = "eligible"
	ReasonNoReceiver       Reason = "no receiver parameter"
	ReasonUsesReceiver     Reason = "uses receiver parameter"
	ReasonImplicitReceiver Reason = "uses super() or __class__"
	ReasonMethodTooSmall   Reason = "method below minimum size"
	ReasonMethodTooLarge   Reason = "method above maximum size"
	ReasonClassRatio       Reason = "class not large enough relative to method"
)

// Evaluation is the selector's verdict on one method.
type Evaluation struct {
	Candidate

	// Receiver is the receiver parameter name, empty when there is none.
	Receiver string `json:"receiver,omitempty"`

	// Eligible is true when Reason is ReasonEligible.
	Eligible bool `json:"eligible"`

	// Reason is the first rule the method failed, or ReasonEligible.
	Reason Reason `json:"reason"`

	// ReferenceLine is the 1-based line of the first receiver reference,
	// zero when the method does not reference its receiver.
	ReferenceLine int `json:"reference_line,omitempty"`
}

// =============================================================================
// Selector
// =============================================================================

// Selector applies the extraction heuristics to parsed files.
//
// Description:
//
//	A method qualifies when it never references its receiver parameter and
//	its size and its class's size satisfy the configured bounds. The sizes
//	come from the Counter bound to the SyntaxTree, which must be the same
//	Counter the verifier uses later.
//
// Thread Safety:
//
//	Selector holds only read-only configuration and is safe for concurrent
//	use.
type Selector struct {
	minSize int
	maxSize int
	ratio   float64
	logger  *slog.Logger
}

// New creates a Selector from cfg.
//
// Inputs:
//   - cfg: Validated configuration. Nil selects config.Default().
func New(cfg *config.Config) *Selector {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Selector{
		minSize: cfg.MinMethodSize,
		maxSize: cfg.MaxMethodSize,
		ratio:   cfg.ClassRatio,
		logger:  slog.Default().With(slog.String("component", "selector")),
	}
}

// SelectCandidates returns every eligible method of every top-level class.
//
// Description:
//
//	All qualifying methods are returned in source order; no ranking is
//	applied. A file with no candidates yields an empty slice.
//
// Inputs:
//   - tree: A parsed file. Not modified.
//
// Outputs:
//   - []Candidate: Eligible methods. Never nil.
func (s *Selector) SelectCandidates(tree *ast.SyntaxTree) []Candidate {
	candidates := make([]Candidate, 0)
	for _, ev := range s.Evaluate(tree) {
		if ev.Eligible {
			candidates = append(candidates, ev.Candidate)
		}
	}
	return candidates
}

// Evaluate returns a verdict for every method of every top-level class.
//
// Outputs:
//   - []Evaluation: One entry per method in source order. Never nil.
func (s *Selector) Evaluate(tree *ast.SyntaxTree) []Evaluation {
	evaluations := make([]Evaluation, 0)
	for _, class := range ast.FindTopLevelClasses(tree) {
		for _, method := range ast.FindMethods(tree, class) {
			ev := s.evaluateMethod(tree, class, method)
			s.logger.Debug("evaluated method",
				slog.String("file", tree.FilePath),
				slog.String("class", class.Name),
				slog.String("method", method.Name),
				slog.Int("method_size", ev.MethodSize),
				slog.Int("class_size", ev.ClassSize),
				slog.String("reason", string(ev.Reason)),
			)
			evaluations = append(evaluations, ev)
		}
	}
	return evaluations
}

// evaluateMethod applies the rules in order and records the first failure.
func (s *Selector) evaluateMethod(tree *ast.SyntaxTree, class *ast.ClassDecl, method *ast.MethodDecl) Evaluation {
	ev := Evaluation{
		Candidate: Candidate{
			FilePath:   tree.FilePath,
			ClassName:  class.Name,
			MethodName: method.Name,
			MethodSize: method.Size,
			ClassSize:  class.Size,
			StartLine:  method.StartLine,
			EndLine:    method.EndLine,
		},
	}

	receiver, kind := ast.ReceiverParam(method)
	ev.Receiver = receiver
	if kind == ast.ReceiverNone {
		ev.Reason = ReasonNoReceiver
		return ev
	}

	if ref := ast.FindReference(tree, method.Body, receiver); ref != nil {
		ev.Reason = ReasonUsesReceiver
		ev.ReferenceLine = int(ref.StartPoint().Row) + 1
		return ev
	}
	if ref := ast.FindReference(tree, method.Body, implicitReceiverNames...); ref != nil {
		ev.Reason = ReasonImplicitReceiver
		ev.ReferenceLine = int(ref.StartPoint().Row) + 1
		return ev
	}

	ev.Reason = s.sizeVerdict(method.Size, class.Size)
	ev.Eligible = ev.Reason == ReasonEligible
	return ev
}

// sizeVerdict checks the size bounds and the class ratio.
func (s *Selector) sizeVerdict(methodSize, classSize int) Reason {
	switch {
	case methodSize < s.minSize:
		return ReasonMethodTooSmall
	case methodSize > s.maxSize:
		return ReasonMethodTooLarge
	case float64(classSize) < s.ratio*float64(methodSize):
		return ReasonClassRatio
	default:
		return ReasonEligible
	}
}
