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

// PyASTCounter counts the nodes CPython's ast.walk visits for the same
// source.
//
// Description:
//
//	Benchmark tasks record sizes as len(list(ast.walk(node))) over the
//	FunctionDef or ClassDef, decorators included. Tree-sitter and CPython
//	shape the tree differently, so this strategy maps each tree-sitter
//	production onto the CPython nodes it stands for:
//	  - Name, Attribute, Subscript, Starred, List and Tuple carry an
//	    expression context node (Load, Store or Del).
//	  - Operators are nodes: BinOp, UnaryOp, BoolOp, AugAssign and each
//	    Compare operator add one.
//	  - Functions and lambdas carry an arguments node; every parameter is
//	    an arg, every call keyword and class keyword a keyword.
//	  - Blocks, decorators, parentheses and annotation wrappers add
//	    nothing; implicitly concatenated strings are one Constant or one
//	    JoinedStr.
//	The mapping follows CPython 3.11 ast.parse output.
//
// Thread Safety:
//
//	PyASTCounter is stateless and safe for concurrent use.
type PyASTCounter struct{}

// Name implements Counter.
func (PyASTCounter) Name() string { return CounterPyAST }

// Count implements Counter. source must be the text n was parsed from;
// f-string prefixes are only visible in the text.
func (PyASTCounter) Count(n *sitter.Node, source []byte) int {
	if n == nil {
		return 0
	}
	return pyWalker{src: source}.count(n)
}

type pyWalker struct {
	src []byte
}

// =============================================================================
// Node helpers
// =============================================================================

// structural returns the named children of n that are not comments or
// line continuations.
func structural(n *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil && !isFormatting(c) {
			out = append(out, c)
		}
	}
	return out
}

func firstStructural(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil && !isFormatting(c) {
			return c
		}
	}
	return nil
}

// hasToken reports whether n has an anonymous child spelled tok.
func hasToken(n *sitter.Node, tok string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && !c.IsNamed() && c.Type() == tok {
			return true
		}
	}
	return false
}

// fieldChildren returns the children of n stored under field.
func fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			out = append(out, n.Child(i))
		}
	}
	return out
}

func (w pyWalker) opt(n *sitter.Node) int {
	if n == nil {
		return 0
	}
	return w.count(n)
}

func (w pyWalker) sum(n *sitter.Node) int {
	total := 0
	for _, c := range structural(n) {
		total += w.count(c)
	}
	return total
}

// =============================================================================
// Statements and expressions
// =============================================================================

func (w pyWalker) count(n *sitter.Node) int {
	switch n.Type() {
	case "module":
		return 1 + w.sum(n)
	case "block", "decorated_definition", "decorator", "type",
		"parenthesized_expression", "as_pattern_target":
		return w.sum(n)

	case "identifier":
		// Name + ctx
		return 2
	case "integer", "float", "true", "false", "none", "ellipsis":
		return 1
	case "string":
		return w.strings([]*sitter.Node{n})
	case "concatenated_string":
		var parts []*sitter.Node
		for _, c := range structural(n) {
			if c.Type() == "string" {
				parts = append(parts, c)
			}
		}
		return w.strings(parts)

	case "function_definition":
		return 1 + w.parameters(n.ChildByFieldName("parameters")) +
			w.opt(n.ChildByFieldName("return_type")) + w.opt(n.ChildByFieldName("body"))
	case "class_definition":
		total := 1 + w.opt(n.ChildByFieldName("body"))
		if supers := n.ChildByFieldName("superclasses"); supers != nil {
			total += w.arguments(supers)
		}
		return total
	case "lambda":
		return 1 + w.parameters(n.ChildByFieldName("parameters")) + w.opt(n.ChildByFieldName("body"))
	case "call":
		args := n.ChildByFieldName("arguments")
		total := 1 + w.opt(n.ChildByFieldName("function"))
		if args != nil && args.Type() == "argument_list" {
			return total + w.arguments(args)
		}
		return total + w.opt(args)
	case "keyword_argument":
		return 1 + w.opt(n.ChildByFieldName("value"))

	case "expression_statement":
		children := structural(n)
		if len(children) == 1 {
			switch children[0].Type() {
			case "assignment", "augmented_assignment":
				return w.count(children[0])
			}
			if !hasToken(n, ",") {
				return 1 + w.count(children[0])
			}
		}
		// Expr + Tuple + ctx
		return 3 + w.sum(n)
	case "assignment":
		return w.assignment(n)
	case "augmented_assignment":
		return 2 + w.opt(n.ChildByFieldName("left")) + w.opt(n.ChildByFieldName("right"))
	case "print_statement":
		return w.chevronPrint(n)
	case "type_alias_statement":
		return w.typeAlias(n)

	case "tuple", "tuple_pattern":
		if len(structural(n)) == 1 && !hasToken(n, ",") {
			return w.sum(n)
		}
		return 2 + w.sum(n)
	case "pattern_list", "expression_list", "list", "list_pattern":
		return 2 + w.sum(n)
	case "set":
		return 1 + w.sum(n)
	case "dictionary":
		total := 1
		for _, c := range structural(n) {
			if c.Type() == "dictionary_splat" {
				total += w.sum(c)
				continue
			}
			total += w.count(c)
		}
		return total
	case "pair":
		return w.opt(n.ChildByFieldName("key")) + w.opt(n.ChildByFieldName("value"))
	case "list_splat", "list_splat_pattern", "splat_type":
		return 2 + w.sum(n)
	case "dictionary_splat":
		return 1 + w.sum(n)

	case "attribute":
		return 2 + w.opt(n.ChildByFieldName("object"))
	case "member_type":
		return 2 + w.opt(firstStructural(n))
	case "subscript":
		return w.subscript(n)
	case "generic_type":
		return 2 + w.opt(firstStructural(n)) + w.opt(n.NamedChild(1))
	case "type_parameter":
		elems := structural(n)
		starred := 0
		for _, e := range elems {
			if e.Type() == "type" {
				e = firstStructural(e)
			}
			if e != nil && e.Type() == "splat_type" {
				starred++
			}
		}
		if len(elems)+starred > 1 || hasToken(n, ",") {
			return 2 + w.sum(n)
		}
		return w.sum(n)
	case "slice":
		return 1 + w.sum(n)

	case "binary_operator":
		return 2 + w.opt(n.ChildByFieldName("left")) + w.opt(n.ChildByFieldName("right"))
	case "union_type":
		return 2 + w.sum(n)
	case "unary_operator", "not_operator":
		return 2 + w.opt(n.ChildByFieldName("argument"))
	case "boolean_operator":
		return 2 + w.boolOperands(n, n.ChildByFieldName("operator").Type())
	case "comparison_operator":
		operands := structural(n)
		return 1 + w.sum(n) + len(operands) - 1
	case "conditional_expression", "await", "yield":
		return 1 + w.sum(n)
	case "named_expression":
		return 1 + w.opt(n.ChildByFieldName("name")) + w.opt(n.ChildByFieldName("value"))
	case "as_pattern":
		return w.opt(firstStructural(n)) + w.opt(n.ChildByFieldName("alias"))
	case "list_comprehension", "set_comprehension", "generator_expression", "dictionary_comprehension":
		return w.comprehension(n)

	case "return_statement", "raise_statement", "assert_statement":
		return 1 + w.sum(n)
	case "pass_statement", "break_statement", "continue_statement",
		"global_statement", "nonlocal_statement":
		return 1
	case "delete_statement":
		target := firstStructural(n)
		if target != nil && target.Type() == "expression_list" {
			return 1 + w.sum(target)
		}
		return 1 + w.opt(target)
	case "import_statement", "import_from_statement", "future_import_statement":
		total := 1
		for i := 0; i < int(n.ChildCount()); i++ {
			if n.FieldNameForChild(i) == "name" || n.Child(i).Type() == "wildcard_import" {
				total++
			}
		}
		return total

	case "if_statement":
		total := 1 + w.opt(n.ChildByFieldName("condition")) + w.opt(n.ChildByFieldName("consequence"))
		for _, c := range structural(n) {
			switch c.Type() {
			case "elif_clause":
				total += 1 + w.opt(c.ChildByFieldName("condition")) + w.opt(c.ChildByFieldName("consequence"))
			case "else_clause":
				total += w.opt(c.ChildByFieldName("body"))
			}
		}
		return total
	case "for_statement":
		return 1 + w.opt(n.ChildByFieldName("left")) + w.opt(n.ChildByFieldName("right")) +
			w.opt(n.ChildByFieldName("body")) + w.elseBody(n)
	case "while_statement":
		return 1 + w.opt(n.ChildByFieldName("condition")) + w.opt(n.ChildByFieldName("body")) + w.elseBody(n)
	case "try_statement":
		return w.try(n)
	case "with_statement":
		total := 1 + w.opt(n.ChildByFieldName("body"))
		if clause := firstStructural(n); clause != nil {
			for _, item := range structural(clause) {
				if item.Type() == "with_item" {
					total += 1 + w.opt(item.ChildByFieldName("value"))
				}
			}
		}
		return total
	case "match_statement":
		return w.match(n)

	default:
		return 1 + w.sum(n)
	}
}

// assignment counts Assign, chained Assign and AnnAssign.
func (w pyWalker) assignment(n *sitter.Node) int {
	if annotation := n.ChildByFieldName("type"); annotation != nil {
		return 1 + w.opt(n.ChildByFieldName("left")) + w.count(annotation) + w.opt(n.ChildByFieldName("right"))
	}
	// a = b = c is one Assign with two targets.
	total := 1 + w.opt(n.ChildByFieldName("left"))
	right := n.ChildByFieldName("right")
	for right != nil && right.Type() == "assignment" && right.ChildByFieldName("type") == nil {
		total += w.opt(right.ChildByFieldName("left"))
		right = right.ChildByFieldName("right")
	}
	return total + w.opt(right)
}

// chevronPrint counts `print >>f, x`, which CPython reads as the tuple
// (print >> f, x). Other print statements are rejected by Parse.
func (w pyWalker) chevronPrint(n *sitter.Node) int {
	children := structural(n)
	if len(children) == 0 || children[0].Type() != "chevron" {
		return 1 + w.sum(n)
	}
	// Expr + BinOp + Name(print) + ctx + RShift
	total := 5 + w.sum(children[0])
	for _, c := range children[1:] {
		total += w.count(c)
	}
	if len(children) > 1 || hasToken(n, ",") {
		total += 2
	}
	return total
}

// typeAlias counts a type_alias_statement. The grammar also produces one
// for `type(x).attr = value`, where the call to type is lost; that form is
// restored as an Assign whose target starts with Call(Name).
func (w pyWalker) typeAlias(n *sitter.Node) int {
	total := 1 + w.sum(n)
	keyword := n.Child(0)
	left := firstStructural(n)
	if keyword == nil || left == nil || keyword.EndByte() != left.StartByte() ||
		int(left.StartByte()) >= len(w.src) || w.src[left.StartByte()] != '(' {
		return total
	}
	total += 3
	for x := firstStructural(left); x != nil; x = firstStructural(x) {
		if x.Type() == "parenthesized_expression" {
			break
		}
		if x.Type() == "tuple" {
			// (a, b) were call arguments, not a Tuple.
			total -= 2
			break
		}
	}
	return total
}

func (w pyWalker) elseBody(n *sitter.Node) int {
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		return w.opt(alt.ChildByFieldName("body"))
	}
	return 0
}

func (w pyWalker) try(n *sitter.Node) int {
	total := 1 + w.opt(n.ChildByFieldName("body"))
	for _, c := range structural(n) {
		switch c.Type() {
		case "except_clause", "except_group_clause":
			// ExceptHandler; the bound name is a plain string.
			total++
			for _, d := range structural(c) {
				if d.Type() == "as_pattern" {
					d = firstStructural(d)
				}
				if d != nil && d.Type() == "list_splat" {
					d = firstStructural(d)
				}
				total += w.opt(d)
			}
		case "else_clause", "finally_clause":
			total += w.sum(c)
		}
	}
	return total
}

// =============================================================================
// Calls, parameters, subscripts
// =============================================================================

// parameters counts the arguments node and one arg per parameter. A lambda
// without parameters still has an empty arguments node.
func (w pyWalker) parameters(n *sitter.Node) int {
	total := 1
	if n == nil {
		return total
	}
	for _, p := range structural(n) {
		switch p.Type() {
		case "keyword_separator", "positional_separator":
		case "typed_parameter":
			total += 1 + w.opt(p.ChildByFieldName("type"))
		case "default_parameter":
			total += 1 + w.opt(p.ChildByFieldName("value"))
		case "typed_default_parameter":
			total += 1 + w.opt(p.ChildByFieldName("type")) + w.opt(p.ChildByFieldName("value"))
		default:
			total++
		}
	}
	return total
}

// arguments counts a call's or class header's argument_list.
func (w pyWalker) arguments(n *sitter.Node) int {
	total := 0
	for _, c := range structural(n) {
		switch c.Type() {
		case "dictionary_splat":
			// keyword with arg=None
			total += 1 + w.sum(c)
		case "keyword_argument":
			total += 1 + w.opt(c.ChildByFieldName("value"))
		default:
			total += w.count(c)
		}
	}
	return total
}

func (w pyWalker) subscript(n *sitter.Node) int {
	total := 2 + w.opt(n.ChildByFieldName("value"))
	elems := fieldChildren(n, "subscript")
	slots := len(elems)
	inner := 0
	for _, e := range elems {
		if leadsWithSplat(e) {
			slots++
		}
		inner += w.count(e)
	}
	if slots > 1 || hasToken(n, ",") {
		// Tuple + ctx
		return total + 2 + inner
	}
	return total + inner
}

// leadsWithSplat reports whether n is a starred expression. The grammar
// binds `*` tighter than a trailing subscript, attribute or call.
func leadsWithSplat(n *sitter.Node) bool {
	for n != nil {
		switch n.Type() {
		case "list_splat":
			return true
		case "subscript":
			n = n.ChildByFieldName("value")
		case "attribute":
			n = n.ChildByFieldName("object")
		case "call":
			n = n.ChildByFieldName("function")
		default:
			return false
		}
	}
	return false
}

// boolOperands flattens `a and b and c` into one BoolOp.
func (w pyWalker) boolOperands(n *sitter.Node, op string) int {
	total := 0
	for _, side := range []string{"left", "right"} {
		c := n.ChildByFieldName(side)
		if c != nil && c.Type() == "boolean_operator" && c.ChildByFieldName("operator").Type() == op {
			total += w.boolOperands(c, op)
			continue
		}
		total += w.opt(c)
	}
	return total
}

func (w pyWalker) comprehension(n *sitter.Node) int {
	total := 1 + w.opt(n.ChildByFieldName("body"))
	for _, c := range structural(n) {
		switch c.Type() {
		case "for_in_clause":
			total += 1 + w.opt(c.ChildByFieldName("left")) + w.opt(c.ChildByFieldName("right"))
		case "if_clause":
			total += w.sum(c)
		}
	}
	return total
}

// =============================================================================
// Strings
// =============================================================================

// strings counts one implicitly concatenated string. Plain strings fold
// into a single Constant; if any part is an f-string the whole literal is
// a JoinedStr holding merged literal runs and FormattedValues.
func (w pyWalker) strings(parts []*sitter.Node) int {
	formatted := false
	for _, p := range parts {
		if w.isFString(p) {
			formatted = true
			break
		}
	}
	if !formatted {
		return 1
	}

	total, pending := 1, false
	for _, p := range parts {
		for i := 0; i < int(p.ChildCount()); i++ {
			c := p.Child(i)
			switch c.Type() {
			case "string_content":
				if c.EndByte() > c.StartByte() {
					pending = true
				}
			case "interpolation":
				// f"{x=}" puts "x=" into the preceding literal.
				if hasToken(c, "=") {
					pending = true
				}
				if pending {
					total++
					pending = false
				}
				total += w.formattedValue(c)
			}
		}
	}
	if pending {
		total++
	}
	return total
}

func (w pyWalker) isFString(s *sitter.Node) bool {
	start := s.Child(0)
	if start == nil {
		return false
	}
	for i := start.StartByte(); i < start.EndByte() && int(i) < len(w.src); i++ {
		if w.src[i] == 'f' || w.src[i] == 'F' {
			return true
		}
	}
	return false
}

func (w pyWalker) formattedValue(n *sitter.Node) int {
	total := 1 + w.opt(n.ChildByFieldName("expression"))
	if spec := n.ChildByFieldName("format_specifier"); spec != nil {
		total += w.formatSpec(spec)
	}
	return total
}

// formatSpec counts a format specifier's JoinedStr. Its literal text
// has no node of its own, so runs are found from the byte gaps between
// nested replacement fields.
func (w pyWalker) formatSpec(spec *sitter.Node) int {
	total, pending := 1, false
	pos := spec.StartByte() + 1 // past ':'
	for i := 0; i < int(spec.ChildCount()); i++ {
		c := spec.Child(i)
		if c.Type() != "format_expression" {
			continue
		}
		if c.StartByte() > pos {
			pending = true
		}
		if pending {
			total++
			pending = false
		}
		total += w.formattedValue(c)
		pos = c.EndByte()
	}
	if spec.EndByte() > pos {
		total++
	}
	return total
}

// =============================================================================
// Structural pattern matching
// =============================================================================

func (w pyWalker) match(n *sitter.Node) int {
	total := 1
	subjects := fieldChildren(n, "subject")
	inner := 0
	for _, s := range subjects {
		inner += w.count(s)
	}
	if len(subjects) > 1 || hasToken(n, ",") {
		inner += 2
	}
	total += inner

	if body := n.ChildByFieldName("body"); body != nil {
		for _, c := range structural(body) {
			if c.Type() == "case_clause" {
				total += w.caseClause(c)
			}
		}
	}
	return total
}

func (w pyWalker) caseClause(n *sitter.Node) int {
	total := 1
	patterns, inner := 0, 0
	for _, c := range structural(n) {
		if c.Type() == "case_pattern" {
			patterns++
			inner += w.pattern(c, false)
		}
	}
	if patterns > 1 || hasToken(n, ",") {
		// open sequence: MatchSequence
		inner++
	}
	total += inner
	if guard := n.ChildByFieldName("guard"); guard != nil {
		total += w.sum(guard)
	}
	return total + w.opt(n.ChildByFieldName("consequence"))
}

// patternGroup counts the first pattern among n's children from index
// from, honoring a leading unary minus and the `_` wildcard.
func (w pyWalker) patternGroup(n *sitter.Node, from int) int {
	negative := false
	for i := from; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if !c.IsNamed() {
			switch c.Type() {
			case "-":
				negative = true
			case "_":
				return 1
			}
			continue
		}
		if isFormatting(c) {
			continue
		}
		return w.pattern(c, negative)
	}
	return 1
}

func (w pyWalker) pattern(n *sitter.Node, negative bool) int {
	switch n.Type() {
	case "case_pattern":
		return w.patternGroup(n, 0)
	case "keyword_pattern":
		// the keyword itself is a plain string
		return w.patternGroup(n, 1)
	case "integer", "float":
		// MatchValue(Constant), or MatchValue(UnaryOp(USub, Constant))
		if negative {
			return 4
		}
		return 2
	case "string", "concatenated_string":
		return 1 + w.count(n)
	case "none", "true", "false":
		return 1
	case "dotted_name":
		parts := len(structural(n))
		if parts == 1 {
			// capture: MatchAs
			return 1
		}
		return 1 + 2*parts
	case "identifier":
		return 1
	case "complex_pattern":
		return w.complexPattern(n)
	case "list_pattern", "tuple_pattern":
		elems := structural(n)
		if n.Type() == "tuple_pattern" && len(elems) == 1 && !hasToken(n, ",") {
			return w.pattern(elems[0], false)
		}
		total := 1
		for _, e := range elems {
			total += w.pattern(e, false)
		}
		return total
	case "splat_pattern":
		// **rest is a plain string
		if hasToken(n, "**") {
			return 0
		}
		return 1
	case "dict_pattern":
		return w.dictPattern(n)
	case "class_pattern":
		elems := structural(n)
		total := 1
		for i, e := range elems {
			if i == 0 {
				total += 2 * len(structural(e))
				continue
			}
			total += w.pattern(e, false)
		}
		return total
	case "as_pattern":
		return 1 + w.pattern(firstStructural(n), false)
	case "union_pattern":
		total := 1
		negative := false
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if !c.IsNamed() {
				if c.Type() == "-" {
					negative = true
				}
				continue
			}
			if isFormatting(c) {
				continue
			}
			total += w.pattern(c, negative)
			negative = false
		}
		return total
	default:
		return 1
	}
}

// complexPattern counts MatchValue(BinOp(real, op, imag)).
func (w pyWalker) complexPattern(n *sitter.Node) int {
	total := 3
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch {
		case c.IsNamed():
			total++
		case i == 0 && c.Type() == "-":
			total += 2
		}
	}
	return total
}

func (w pyWalker) dictPattern(n *sitter.Node) int {
	total := 1
	negative := false
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if !c.IsNamed() {
			if c.Type() == "-" {
				negative = true
			}
			continue
		}
		if isFormatting(c) {
			continue
		}
		switch n.FieldNameForChild(i) {
		case "key":
			switch {
			case c.Type() == "dotted_name":
				total += 2 * len(structural(c))
			case c.Type() == "complex_pattern":
				total += w.complexPattern(c) - 1
			case negative:
				total += 2 + w.count(c)
			default:
				total += w.count(c)
			}
			negative = false
		case "value":
			total += w.pattern(c, false)
		}
	}
	return total
}
