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
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Counter is a deterministic structural-size metric over syntax nodes.
//
// Description:
//
//	Candidate selection and refactor verification compare sizes measured at
//	different times on different trees. Both sides must use the same Counter
//	or the comparison is meaningless, which is why a SyntaxTree carries the
//	Counter it was parsed with.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use.
type Counter interface {
	// Name identifies the strategy in configuration and logs.
	Name() string

	// Count returns the size of the subtree rooted at n, including n.
	// source is the text n was parsed from; strategies that only look at
	// node types ignore it. A nil node has size zero.
	Count(n *sitter.Node, source []byte) int
}

// Counter strategy names accepted by CounterByName.
const (
	CounterNamed  = "named"
	CounterSyntax = "syntax"
	CounterPyAST  = "pyast"
)

// NamedCounter counts named nodes only.
//
// Comments, line continuations, punctuation and grouping parentheses are
// not counted, so the size is stable under reformatting.
type NamedCounter struct{}

// Name implements Counter.
func (NamedCounter) Name() string { return CounterNamed }

// Count implements Counter.
func (NamedCounter) Count(n *sitter.Node, _ []byte) int {
	return walkCount(n, true)
}

// SyntaxCounter counts named nodes and anonymous tokens.
//
// Extras are still skipped. Trailing commas and redundant parentheses
// change the result.
type SyntaxCounter struct{}

// Name implements Counter.
func (SyntaxCounter) Name() string { return CounterSyntax }

// Count implements Counter.
func (SyntaxCounter) Count(n *sitter.Node, _ []byte) int {
	return walkCount(n, false)
}

// DefaultCounter is the Counter used when none is configured.
var DefaultCounter Counter = NamedCounter{}

// CounterByName resolves a configured strategy name.
//
// Outputs:
//   - Counter: The matching strategy. An empty name selects DefaultCounter.
//   - error: Non-nil for an unknown name.
func CounterByName(name string) (Counter, error) {
	switch name {
	case "", CounterNamed:
		return NamedCounter{}, nil
	case CounterSyntax:
		return SyntaxCounter{}, nil
	case CounterPyAST:
		return PyASTCounter{}, nil
	default:
		return nil, fmt.Errorf("unknown count strategy %q", name)
	}
}

// CountNodes returns the size of n under NamedCounter.
func CountNodes(n *sitter.Node) int {
	return NamedCounter{}.Count(n, nil)
}

// walkCount visits n and its descendants in left-to-right source order.
//
// An explicit stack keeps deeply nested expressions from growing the
// goroutine stack.
func walkCount(n *sitter.Node, namedOnly bool) int {
	if n == nil {
		return 0
	}

	total := 0
	stack := []*sitter.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if isFormatting(cur) {
			continue
		}
		if namedOnly {
			if cur.IsNamed() && cur.Type() != "parenthesized_expression" {
				total++
			}
		} else {
			total++
		}

		for i := int(cur.ChildCount()) - 1; i >= 0; i-- {
			if child := cur.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
	return total
}

// isFormatting reports whether n carries no structure of its own.
func isFormatting(n *sitter.Node) bool {
	switch n.Type() {
	case "comment", "line_continuation":
		return true
	}
	return false
}
