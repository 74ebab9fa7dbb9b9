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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// =============================================================================
// Declaration Types
// =============================================================================

// ClassDecl is a class declared in a SyntaxTree.
type ClassDecl struct {
	// Name is the class name.
	Name string

	// Node is the outermost node of the declaration: the decorated_definition
	// when the class is decorated, otherwise the class_definition.
	Node *sitter.Node

	// Definition is the class_definition node.
	Definition *sitter.Node

	// Body is the class block. Nil only for malformed trees.
	Body *sitter.Node

	// Decorators lists decorator names in source order.
	Decorators []string

	// Size is the tree's Counter applied to Node.
	Size int

	// StartLine and EndLine are 1-based and inclusive.
	StartLine int
	EndLine   int
}

// MethodDecl is a function-like declaration: a method when Class is set,
// otherwise a module-level function.
type MethodDecl struct {
	// Name is the function name.
	Name string

	// Class is the owning class, nil for module-level functions.
	Class *ClassDecl

	// Node is the outermost node of the declaration: the decorated_definition
	// when the function is decorated, otherwise the function_definition.
	Node *sitter.Node

	// Definition is the function_definition node.
	Definition *sitter.Node

	// Body is the function block.
	Body *sitter.Node

	// Params lists formal parameter names in order. Splat parameters keep
	// their "*" or "**" prefix; bare "*" and "/" separators are omitted.
	Params []string

	// Positional is how many leading entries of Params can be bound
	// positionally.
	Positional int

	// Decorators lists decorator names in source order.
	Decorators []string

	// IsAsync is true for "async def".
	IsAsync bool

	// Size is the tree's Counter applied to Node.
	Size int

	// StartLine and EndLine are 1-based and inclusive.
	StartLine int
	EndLine   int
}

// =============================================================================
// Declaration Discovery
// =============================================================================

// FindTopLevelClasses returns the classes declared at module scope.
//
// Description:
//
//	Only direct children of the module are considered, so classes nested in
//	functions, other classes or compound statements are not returned.
//
// Outputs:
//   - []*ClassDecl: Classes in source order. Empty, never nil.
func FindTopLevelClasses(tree *SyntaxTree) []*ClassDecl {
	classes := make([]*ClassDecl, 0)
	root := tree.Root()
	for i := 0; i < int(root.ChildCount()); i++ {
		outer := root.Child(i)
		def, decorators := unwrapDecorated(tree, outer)
		if def == nil || def.Type() != "class_definition" {
			continue
		}
		nameNode := def.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		classes = append(classes, &ClassDecl{
			Name:       tree.Text(nameNode),
			Node:       outer,
			Definition: def,
			Body:       def.ChildByFieldName("body"),
			Decorators: decorators,
			Size:       tree.Count(outer),
			StartLine:  lineOf(outer),
			EndLine:    endLineOf(outer),
		})
	}
	return classes
}

// FindTopLevelFunctions returns the functions declared at module scope.
//
// Outputs:
//   - []*MethodDecl: Functions in source order with Class set to nil.
//     A name defined twice appears twice.
func FindTopLevelFunctions(tree *SyntaxTree) []*MethodDecl {
	return collectFunctions(tree, tree.Root(), nil)
}

// FindMethods returns the function-like direct members of class.
//
// Description:
//
//	Nested classes, assignments and other statements in the class body are
//	skipped, as are functions defined inside compound statements such as
//	"if TYPE_CHECKING:" blocks.
func FindMethods(tree *SyntaxTree, class *ClassDecl) []*MethodDecl {
	if class == nil || class.Body == nil {
		return make([]*MethodDecl, 0)
	}
	return collectFunctions(tree, class.Body, class)
}

// FindTopLevelClass returns the last module-scope class called name, or nil.
func FindTopLevelClass(tree *SyntaxTree, name string) *ClassDecl {
	var found *ClassDecl
	for _, c := range FindTopLevelClasses(tree) {
		if c.Name == name {
			found = c
		}
	}
	return found
}

// FindTopLevelFunction returns the last module-scope function called name,
// or nil. The last definition is the one bound at import time.
func FindTopLevelFunction(tree *SyntaxTree, name string) *MethodDecl {
	var found *MethodDecl
	for _, fn := range FindTopLevelFunctions(tree) {
		if fn.Name == name {
			found = fn
		}
	}
	return found
}

// FindMethod returns the last method of class called name, or nil.
func FindMethod(tree *SyntaxTree, class *ClassDecl, name string) *MethodDecl {
	var found *MethodDecl
	for _, m := range FindMethods(tree, class) {
		if m.Name == name {
			found = m
		}
	}
	return found
}

// collectFunctions builds MethodDecls for the function children of parent.
func collectFunctions(tree *SyntaxTree, parent *sitter.Node, class *ClassDecl) []*MethodDecl {
	fns := make([]*MethodDecl, 0)
	for i := 0; i < int(parent.ChildCount()); i++ {
		outer := parent.Child(i)
		def, decorators := unwrapDecorated(tree, outer)
		if def == nil || def.Type() != "function_definition" {
			continue
		}
		nameNode := def.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		params, positional := formalParams(tree, def.ChildByFieldName("parameters"))
		fns = append(fns, &MethodDecl{
			Name:       tree.Text(nameNode),
			Class:      class,
			Node:       outer,
			Definition: def,
			Body:       def.ChildByFieldName("body"),
			Params:     params,
			Positional: positional,
			Decorators: decorators,
			IsAsync:    isAsync(def),
			Size:       tree.Count(outer),
			StartLine:  lineOf(outer),
			EndLine:    endLineOf(outer),
		})
	}
	return fns
}

// unwrapDecorated returns the definition inside a decorated_definition
// together with its decorator names. Other nodes are returned unchanged.
func unwrapDecorated(tree *SyntaxTree, n *sitter.Node) (*sitter.Node, []string) {
	if n == nil || n.Type() != "decorated_definition" {
		return n, nil
	}
	decorators := make([]string, 0)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "decorator" {
			decorators = append(decorators, decoratorName(tree, child))
		}
	}
	return n.ChildByFieldName("definition"), decorators
}

// decoratorName returns "name" for @name, @pkg.name and @name(args).
func decoratorName(tree *SyntaxTree, dec *sitter.Node) string {
	for i := 0; i < int(dec.NamedChildCount()); i++ {
		expr := dec.NamedChild(i)
		switch expr.Type() {
		case "identifier", "attribute":
			return tree.Text(expr)
		case "call":
			return tree.Text(expr.ChildByFieldName("function"))
		case "comment":
			continue
		default:
			return tree.Text(expr)
		}
	}
	return ""
}

// formalParams lists parameter names and the positional prefix length.
func formalParams(tree *SyntaxTree, params *sitter.Node) ([]string, int) {
	names := make([]string, 0)
	if params == nil {
		return names, 0
	}

	positional := 0
	positionalOpen := true
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		switch child.Type() {
		case "identifier":
			names = append(names, tree.Text(child))
		case "typed_parameter":
			name := firstIdentifier(tree, child)
			if inner := child.NamedChild(0); inner != nil {
				switch inner.Type() {
				case "list_splat_pattern":
					names = append(names, "*"+name)
					positionalOpen = false
					continue
				case "dictionary_splat_pattern":
					names = append(names, "**"+name)
					positionalOpen = false
					continue
				}
			}
			names = append(names, name)
		case "default_parameter", "typed_default_parameter":
			names = append(names, tree.Text(child.ChildByFieldName("name")))
		case "list_splat_pattern":
			names = append(names, "*"+firstIdentifier(tree, child))
			positionalOpen = false
			continue
		case "dictionary_splat_pattern":
			names = append(names, "**"+firstIdentifier(tree, child))
			positionalOpen = false
			continue
		case "keyword_separator":
			positionalOpen = false
			continue
		default:
			// positional_separator and comments
			continue
		}
		if positionalOpen {
			positional++
		}
	}
	return names, positional
}

// firstIdentifier returns the text of the first identifier under n,
// stripping splat prefixes from typed splat parameters.
func firstIdentifier(tree *SyntaxTree, n *sitter.Node) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "identifier":
			return tree.Text(child)
		case "list_splat_pattern", "dictionary_splat_pattern":
			return firstIdentifier(tree, child)
		}
	}
	return strings.TrimLeft(tree.Text(n), "*")
}

// isAsync reports whether def is an "async def".
func isAsync(def *sitter.Node) bool {
	for i := 0; i < int(def.ChildCount()); i++ {
		child := def.Child(i)
		if child.Type() == "async" {
			return true
		}
		if child.Type() == "def" {
			return false
		}
	}
	return false
}
