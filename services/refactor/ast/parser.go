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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// maxErrorExcerpt bounds ParseError.Near.
const maxErrorExcerpt = 40

// PythonParserOption configures a PythonParser instance.
type PythonParserOption func(*PythonParser)

// WithMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Non-positive values are ignored.
func WithMaxFileSize(bytes int64) PythonParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithCounter sets the node-counting strategy attached to parsed trees.
//
// Parameters:
//   - c: The Counter. A nil value is ignored.
func WithCounter(c Counter) PythonParserOption {
	return func(p *PythonParser) {
		if c != nil {
			p.counter = c
		}
	}
}

// PythonParser turns Python source into a SyntaxTree.
//
// Description:
//
//	PythonParser uses tree-sitter to parse Python source. Unlike an editor
//	integration it is strict: any recovered error makes the whole parse fail
//	with a *ParseError, because the size comparisons built on top of it are
//	only meaningful for complete trees.
//
// Thread Safety:
//
//	PythonParser instances are safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser internally.
//
// Example:
//
//	parser := NewPythonParser()
//	tree, err := parser.Parse(ctx, []byte("class A:\n    pass\n"), "a.py")
//	if err != nil {
//	    return err
//	}
//	defer tree.Close()
type PythonParser struct {
	maxFileSize int64
	counter     Counter
}

// NewPythonParser creates a new PythonParser with the given options.
//
// Inputs:
//   - opts: Optional configuration functions (WithMaxFileSize, WithCounter).
//
// Outputs:
//   - *PythonParser: Configured parser instance, never nil.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{
		maxFileSize: DefaultMaxFileSize,
		counter:     DefaultCounter,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Counter returns the strategy attached to trees produced by this parser.
func (p *PythonParser) Counter() Counter {
	return p.counter
}

// Parse parses Python source into a SyntaxTree.
//
// Description:
//
//	Validates size and encoding, runs tree-sitter, and rejects the result if
//	it contains any ERROR or MISSING node, or Python 2 syntax and dedents
//	the grammar silently accepts. Parsing is all-or-nothing: on error no
//	tree is returned.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//   - content: Raw Python source bytes.
//   - filePath: Path used in errors and spans.
//
// Outputs:
//   - *SyntaxTree: The complete parse. Caller must Close it.
//   - error: Non-nil on failure:
//   - *ParseError (errors.Is ErrSyntax): The source is not valid Python.
//   - ErrFileTooLarge: Content exceeds the configured limit.
//   - ErrInvalidContent: Content is not valid UTF-8.
//   - Context errors: The context was canceled.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (tree *SyntaxTree, err error) {
	ctx, span := startParseSpan(ctx, filePath, len(content))
	start := time.Now()
	defer func() {
		nodes := 0
		if tree != nil {
			nodes = tree.Count(tree.Root())
		}
		endParseSpan(span, nodes, err)
		span.End()
		recordParseMetrics(ctx, time.Since(start), parseOutcome(err))
	}()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	sitterTree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		sitterTree.Close()
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := sitterTree.RootNode()
	if root == nil {
		sitterTree.Close()
		return nil, &ParseError{FilePath: filePath, Line: 1, Column: 1}
	}

	if root.HasError() {
		perr := firstSyntaxError(root, content, filePath)
		sitterTree.Close()
		return nil, perr
	}

	if perr := checkPython3(root, content, filePath); perr != nil {
		sitterTree.Close()
		return nil, perr
	}

	return &SyntaxTree{
		FilePath: filePath,
		Source:   content,
		Hash:     hex.EncodeToString(hash[:]),
		tree:     sitterTree,
		root:     root,
		counter:  p.counter,
	}, nil
}

// firstSyntaxError locates the earliest ERROR or MISSING node under root.
func firstSyntaxError(root *sitter.Node, content []byte, filePath string) *ParseError {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur.IsMissing() || cur.Type() == "ERROR" {
			pos := cur.StartPoint()
			return &ParseError{
				FilePath: filePath,
				Line:     int(pos.Row) + 1,
				Column:   int(pos.Column) + 1,
				Missing:  cur.IsMissing(),
				Near:     excerpt(cur.Content(content)),
			}
		}
		if !cur.HasError() {
			continue
		}
		for i := int(cur.ChildCount()) - 1; i >= 0; i-- {
			if child := cur.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}

	// HasError was true but no culprit was found; report the module start.
	return &ParseError{FilePath: filePath, Line: 1, Column: 1}
}

// excerpt returns the first line of s, truncated to maxErrorExcerpt runes.
func excerpt(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxErrorExcerpt {
		runes := []rune(s)
		s = string(runes[:maxErrorExcerpt]) + "..."
	}
	return s
}

// parseOutcome maps a Parse error to a metric label.
func parseOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSyntax):
		return "syntax_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "rejected"
	}
}
