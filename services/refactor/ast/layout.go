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

// Reasons reported by checkPython3.
const (
	reasonPrintStatement = "Python 2 print statement"
	reasonExecStatement  = "Python 2 exec statement"
	reasonNotEqual       = "Python 2 <> operator"
	reasonNotIndented    = "expected an indented block"
	reasonUnexpected     = "unexpected indent"
	reasonUnindent       = "unindent does not match any outer indentation level"
)

// clauseTypes are the children of a compound statement that must start at
// the statement's own column when they begin a new line.
var clauseTypes = map[string]bool{
	"elif_clause":         true,
	"else_clause":         true,
	"except_clause":       true,
	"except_group_clause": true,
	"finally_clause":      true,
	"decorator":           true,
	"function_definition": true,
	"class_definition":    true,
}

var compoundTypes = map[string]bool{
	"if_statement":         true,
	"for_statement":        true,
	"while_statement":      true,
	"try_statement":        true,
	"decorated_definition": true,
}

// checkPython3 rejects error-free trees that CPython 3 would still refuse.
//
// Description:
//
//	The grammar keeps Python 2 productions (print and exec statements,
//	the <> operator) and recovers from a dedent that matches no enclosing
//	level by attaching the statement to some block anyway. Neither leaves
//	an ERROR node, so both are detected here:
//	  - Statements of a module start at column 0; statements of a block
//	    share the column of its first statement, which lies right of the
//	    owning statement when it starts a new line.
//	  - Statements after a semicolon on the same line are exempt.
//	  - elif, else, except and finally clauses, and a decorated
//	    definition's parts, sit at their statement's column.
//	Comments and line continuations are ignored.
//
// Outputs:
//   - *ParseError: The first violation in source order, or nil.
func checkPython3(root *sitter.Node, content []byte, filePath string) *ParseError {
	at, reason := firstLayoutViolation(root)
	if at == nil {
		return nil
	}
	pos := at.StartPoint()
	return &ParseError{
		FilePath: filePath,
		Line:     int(pos.Row) + 1,
		Column:   int(pos.Column) + 1,
		Near:     excerpt(at.Content(content)),
		Reason:   reason,
	}
}

func firstLayoutViolation(n *sitter.Node) (*sitter.Node, string) {
	switch n.Type() {
	case "exec_statement":
		return n, reasonExecStatement
	case "print_statement":
		// print >>f, x is a valid right shift in a tuple.
		if first := n.NamedChild(0); first == nil || first.Type() != "chevron" {
			return n, reasonPrintStatement
		}
	case "comparison_operator":
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); !c.IsNamed() && c.Type() == "<>" {
				return c, reasonNotEqual
			}
		}
	}

	isBlock := n.Type() == "module" || n.Type() == "block"
	ref := -1
	if n.Type() == "module" {
		ref = 0
	}
	var owner *sitter.Node
	if n.Type() == "block" {
		owner = n.Parent()
	}
	start := n.StartPoint()
	prevEndRow, seen := uint32(0), false

	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || !c.IsNamed() || isFormatting(c) {
			continue
		}
		pos := c.StartPoint()
		sameLine := seen && pos.Row == prevEndRow

		switch {
		case isBlock && ref < 0:
			ref = int(pos.Column)
			if owner != nil && pos.Row != owner.StartPoint().Row && pos.Column <= owner.StartPoint().Column {
				return c, reasonNotIndented
			}
		case isBlock && !sameLine && int(pos.Column) > ref:
			return c, reasonUnexpected
		case isBlock && !sameLine && int(pos.Column) < ref:
			return c, reasonUnindent
		case compoundTypes[n.Type()] && clauseTypes[c.Type()] &&
			pos.Row != start.Row && pos.Column != start.Column:
			return c, reasonUnindent
		}

		prevEndRow, seen = c.EndPoint().Row, true
		if at, reason := firstLayoutViolation(c); at != nil {
			return at, reason
		}
	}
	return nil, ""
}
