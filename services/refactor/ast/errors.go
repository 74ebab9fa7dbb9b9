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
	"errors"
	"fmt"
)

// Sentinel errors returned by PythonParser.Parse.
var (
	// ErrSyntax indicates the source does not conform to the Python grammar.
	// Parse never returns a partial tree alongside it.
	ErrSyntax = errors.New("syntax error")

	// ErrFileTooLarge indicates the content exceeds the parser's size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidContent indicates the content is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")
)

const (
	// DefaultMaxFileSize is the default upper bound on parsed content (10 MiB).
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize is the size above which a parse logs a warning.
	WarnFileSize = 1024 * 1024
)

// ParseError describes the first syntax error found in a source file.
//
// Description:
//
//	Tree-sitter recovers from errors by inserting ERROR and MISSING nodes.
//	PythonParser treats any such node as a hard failure and reports the
//	earliest one in source order. Error-free trees that are still not
//	Python 3 are reported with a Reason. ParseError unwraps to ErrSyntax
//	so callers can test with errors.Is.
type ParseError struct {
	// FilePath is the path given to Parse.
	FilePath string

	// Line is the 1-based line of the offending node.
	Line int

	// Column is the 1-based column of the offending node.
	Column int

	// Missing is true when the parser inserted a token that was absent
	// from the source rather than skipping unexpected text.
	Missing bool

	// Near is a short excerpt of the offending source text.
	Near string

	// Reason names the rule broken when the tree itself is error-free but
	// the source is still not Python 3, such as a misaligned dedent.
	Reason string
}

// Error implements error.
func (e *ParseError) Error() string {
	what := "unexpected input"
	switch {
	case e.Reason != "":
		what = e.Reason
	case e.Missing:
		what = "missing token"
	}
	if e.Near != "" {
		return fmt.Sprintf("%s:%d:%d: %s: %s near %q", e.FilePath, e.Line, e.Column, ErrSyntax, what, e.Near)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", e.FilePath, e.Line, e.Column, ErrSyntax, what)
}

// Unwrap returns ErrSyntax.
func (e *ParseError) Unwrap() error {
	return ErrSyntax
}
