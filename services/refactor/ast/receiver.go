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

// ReceiverKind classifies how a method is bound.
type ReceiverKind int

const (
	// ReceiverNone means no parameter is bound implicitly: module-level
	// functions, static methods and methods without positional parameters.
	ReceiverNone ReceiverKind = iota

	// ReceiverInstance means the first parameter is bound to the instance.
	ReceiverInstance

	// ReceiverClass means the first parameter is bound to the class.
	ReceiverClass
)

// String returns a log-friendly name.
func (k ReceiverKind) String() string {
	switch k {
	case ReceiverInstance:
		return "instance"
	case ReceiverClass:
		return "class"
	default:
		return "none"
	}
}

// ReceiverParam returns the parameter Python binds to the receiver of m.
//
// Description:
//
//	Python passes the instance (or the class, for @classmethod) as the first
//	positional argument of a method. The name is conventional, so this looks
//	at position rather than spelling: "def run(this, x)" binds "this".
//
// Outputs:
//   - string: The receiver parameter name, empty for ReceiverNone.
//   - ReceiverKind: How the receiver is bound.
func ReceiverParam(m *MethodDecl) (string, ReceiverKind) {
	if m == nil || m.Class == nil || m.Positional == 0 {
		return "", ReceiverNone
	}

	kind := ReceiverInstance
	for _, d := range m.Decorators {
		switch d {
		case "staticmethod":
			return "", ReceiverNone
		case "classmethod":
			kind = ReceiverClass
		}
	}
	return m.Params[0], kind
}

// FindReference returns the first reference to any of names under n.
//
// Description:
//
//	Walks every nested scope, including lambdas, comprehensions and inner
//	function definitions, so shadowing does not hide a use. An identifier is
//	a reference unless it is the member name of an attribute ("x.name") or
//	the keyword of a keyword argument ("f(name=1)").
//
// Inputs:
//   - tree: The tree n belongs to.
//   - n: Subtree to scan. Nil yields nil.
//   - names: Identifiers to look for.
//
// Outputs:
//   - *sitter.Node: The first referencing identifier in source order, or nil.
func FindReference(tree *SyntaxTree, n *sitter.Node, names ...string) *sitter.Node {
	if n == nil || len(names) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name != "" {
			want[name] = struct{}{}
		}
	}
	if len(want) == 0 {
		return nil
	}

	stack := []*sitter.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur.Type() == "identifier" {
			if _, ok := want[tree.Text(cur)]; ok {
				return cur
			}
			continue
		}

		skip := nonReferenceChild(cur)
		for i := int(cur.ChildCount()) - 1; i >= 0; i-- {
			child := cur.Child(i)
			if child == nil || sameNode(child, skip) {
				continue
			}
			stack = append(stack, child)
		}
	}
	return nil
}

// ReferencesName reports whether any identifier under n refers to name.
func ReferencesName(tree *SyntaxTree, n *sitter.Node, name string) bool {
	return FindReference(tree, n, name) != nil
}

// nonReferenceChild returns the child of n that names a member or keyword
// rather than referring to a variable.
func nonReferenceChild(n *sitter.Node) *sitter.Node {
	switch n.Type() {
	case "attribute":
		return n.ChildByFieldName("attribute")
	case "keyword_argument":
		return n.ChildByFieldName("name")
	}
	return nil
}

// sameNode compares nodes by position and kind. Node values returned by
// the binding are fresh wrappers, so pointer equality does not work.
func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}
