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
	sitter "github.com/smacker/go-tree-sitter"
)

// SyntaxTree is a complete, error-free parse of one Python source file.
//
// Description:
//
//	SyntaxTree owns the underlying tree-sitter tree. Nodes obtained from it
//	are valid until Close is called. The tree carries the Counter it was
//	parsed with so every size derived from it uses the same metric.
//
// Thread Safety:
//
//	A SyntaxTree is read-only after Parse returns and may be read from
//	multiple goroutines. Close must not race with readers.
type SyntaxTree struct {
	// FilePath is the path given to Parse.
	FilePath string

	// Source is the parsed content.
	Source []byte

	// Hash is the hex SHA-256 of Source.
	Hash string

	tree    *sitter.Tree
	root    *sitter.Node
	counter Counter
}

// Root returns the module node.
func (t *SyntaxTree) Root() *sitter.Node {
	return t.root
}

// Counter returns the node-counting strategy bound to this tree.
func (t *SyntaxTree) Counter() Counter {
	return t.counter
}

// Count returns the size of n under the tree's Counter.
func (t *SyntaxTree) Count(n *sitter.Node) int {
	return t.counter.Count(n, t.Source)
}

// Text returns the source text spanned by n.
func (t *SyntaxTree) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(t.Source)
}

// Close releases the tree-sitter tree. It is safe to call more than once.
func (t *SyntaxTree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// lineOf returns the 1-based start line of n.
func lineOf(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// endLineOf returns the 1-based end line of n.
func endLineOf(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}
