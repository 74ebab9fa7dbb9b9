// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patch applies unified diffs so a proposed edit can be verified
// without materializing the modified file first.
package patch

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/sourcegraph/go-diff/diff"
)

var (
	// ErrHunkMismatch indicates a context or removed line does not match
	// the original.
	ErrHunkMismatch = errors.New("hunk does not apply")

	// ErrNotSingleFile indicates the diff touches zero or several files.
	ErrNotSingleFile = errors.New("diff must modify exactly one file")
)

// MismatchError locates the first line that failed to apply.
type MismatchError struct {
	Hunk     int
	Line     int
	Expected string
	Actual   string
}

// Error implements error.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: hunk %d, line %d: expected %q, found %q",
		ErrHunkMismatch, e.Hunk, e.Line, e.Expected, e.Actual)
}

// Unwrap returns ErrHunkMismatch.
func (e *MismatchError) Unwrap() error {
	return ErrHunkMismatch
}

// Apply applies a single-file unified diff to original.
//
// Description:
//
//	Hunks are applied strictly in order: every context and removed line must
//	match the original at the hunk's recorded position. No fuzz or offset
//	search is attempted, so a stale diff fails instead of landing somewhere
//	unexpected. "\ No newline at end of file" markers are honored.
//
// Inputs:
//   - original: The file the diff was made against.
//   - diffText: A unified diff for exactly one file.
//
// Outputs:
//   - []byte: The patched content.
//   - error: A parse error, ErrNotSingleFile, or a *MismatchError.
func Apply(original, diffText []byte) ([]byte, error) {
	fileDiffs, err := diff.ParseMultiFileDiff(diffText)
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}
	if len(fileDiffs) != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrNotSingleFile, len(fileDiffs))
	}

	lines, trailingNewline := splitLines(original)
	out := make([]string, 0, len(lines))
	pos := 0

	for i, hunk := range fileDiffs[0].Hunks {
		start := int(hunk.OrigStartLine) - 1
		if hunk.OrigLines == 0 {
			// Pure insertion: the start line is the line after which to insert.
			start = int(hunk.OrigStartLine)
		}
		if start < pos || start > len(lines) {
			return nil, &MismatchError{Hunk: i + 1, Line: start + 1, Expected: "hunk start within file", Actual: "out of range"}
		}
		out = append(out, lines[pos:start]...)
		pos = start

		var last byte
		for _, line := range bodyLines(hunk.Body) {
			op, text := byte(' '), line
			if len(line) > 0 {
				op, text = line[0], line[1:]
			}
			switch op {
			case ' ', '-':
				if pos >= len(lines) || lines[pos] != text {
					actual := "end of file"
					if pos < len(lines) {
						actual = lines[pos]
					}
					return nil, &MismatchError{Hunk: i + 1, Line: pos + 1, Expected: text, Actual: actual}
				}
				if op == ' ' {
					out = append(out, text)
				}
				pos++
			case '+':
				out = append(out, text)
			case '\\':
				switch last {
				case '+', ' ':
					trailingNewline = false
				case '-':
					trailingNewline = true
				}
				continue
			default:
				return nil, fmt.Errorf("parsing diff: hunk %d: unexpected line %q", i+1, line)
			}
			last = op
		}
		if pos == len(lines) {
			trailingNewline = eofNewline(hunk, last, trailingNewline)
		}
	}
	out = append(out, lines[pos:]...)

	return joinLines(out, trailingNewline), nil
}

// eofNewline decides whether the result ends with a newline when a hunk
// reaches the end of the original. The parser may strip the "\ No newline"
// marker and leave the final body line unterminated instead.
func eofNewline(hunk *diff.Hunk, last byte, current bool) bool {
	if len(hunk.Body) == 0 {
		return current
	}
	terminated := bytes.HasSuffix(hunk.Body, []byte("\n"))
	switch {
	case !terminated && (last == '+' || last == ' '):
		return false
	case terminated && hunk.OrigNoNewlineAt > 0 && last == '+':
		return true
	default:
		return current
	}
}

// splitLines splits content on "\n" and reports whether it ended with one.
func splitLines(content []byte) ([]string, bool) {
	if len(content) == 0 {
		return nil, true
	}
	trailing := bytes.HasSuffix(content, []byte("\n"))
	text := string(content)
	if trailing {
		text = text[:len(text)-1]
	}
	lines := make([]string, 0, bytes.Count(content, []byte("\n"))+1)
	for _, l := range bytes.Split([]byte(text), []byte("\n")) {
		lines = append(lines, string(l))
	}
	return lines, trailing
}

func bodyLines(body []byte) []string {
	body = bytes.TrimSuffix(body, []byte("\n"))
	if len(body) == 0 {
		return nil
	}
	parts := bytes.Split(body, []byte("\n"))
	lines := make([]string, len(parts))
	for i, p := range parts {
		lines[i] = string(p)
	}
	return lines
}

func joinLines(lines []string, trailingNewline bool) []byte {
	var buf bytes.Buffer
	for i, l := range lines {
		buf.WriteString(l)
		if i < len(lines)-1 || trailingNewline {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}
