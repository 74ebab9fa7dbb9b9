// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render formats scan, verify and suite results for humans and
// machines.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/AleutianAI/refactorbench/services/refactor/scan"
	"github.com/AleutianAI/refactorbench/services/refactor/selector"
	"github.com/AleutianAI/refactorbench/services/refactor/suite"
	"github.com/AleutianAI/refactorbench/services/refactor/verify"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// WriteJSONL writes one JSON object per record, newline terminated.
func WriteJSONL[T any](w io.Writer, records []T) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	return nil
}

// Palette
var (
	colorPass  = lipgloss.Color("#8BC34A")
	colorFail  = lipgloss.Color("#E53935")
	colorWarn  = lipgloss.Color("#FFC107")
	colorMuted = lipgloss.Color("#8A94A6")
	colorName  = lipgloss.Color("#2196F3")
)

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes human-readable output.
//
// Thread Safety: Not safe for concurrent use; callers serialize writes.
type Printer struct {
	w     io.Writer
	color bool

	pass  lipgloss.Style
	fail  lipgloss.Style
	warn  lipgloss.Style
	muted lipgloss.Style
	name  lipgloss.Style
}

// NewPrinter creates a Printer over w. Styling is enabled only when w is a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	return NewPrinterWithColor(w, IsTerminal(w))
}

// NewPrinterWithColor creates a Printer with styling forced on or off.
func NewPrinterWithColor(w io.Writer, color bool) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:     w,
		color: color,
		pass:  r.NewStyle().Foreground(colorPass).Bold(true),
		fail:  r.NewStyle().Foreground(colorFail).Bold(true),
		warn:  r.NewStyle().Foreground(colorWarn),
		muted: r.NewStyle().Foreground(colorMuted),
		name:  r.NewStyle().Foreground(colorName),
	}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// Candidates prints one line per candidate.
func (p *Printer) Candidates(candidates []selector.Candidate) {
	for _, c := range candidates {
		fmt.Fprintf(p.w, "%s  %s  %s\n",
			p.style(p.muted, fmt.Sprintf("%s:%d-%d", c.FilePath, c.StartLine, c.EndLine)),
			p.style(p.name, c.ClassName+"."+c.MethodName),
			fmt.Sprintf("method=%d class=%d", c.MethodSize, c.ClassSize),
		)
	}
}

// Evaluations prints every method verdict.
func (p *Printer) Evaluations(evaluations []selector.Evaluation) {
	for _, ev := range evaluations {
		mark := p.style(p.muted, "skip")
		if ev.Eligible {
			mark = p.style(p.pass, "pick")
		}
		detail := string(ev.Reason)
		if ev.ReferenceLine > 0 {
			detail = fmt.Sprintf("%s (line %d)", detail, ev.ReferenceLine)
		}
		fmt.Fprintf(p.w, "%s %s:%d  %s  method=%d class=%d  %s\n",
			mark, ev.FilePath, ev.StartLine,
			p.style(p.name, ev.ClassName+"."+ev.MethodName),
			ev.MethodSize, ev.ClassSize, detail,
		)
	}
}

// Failures prints files that could not be analyzed.
func (p *Printer) Failures(failures []scan.FileFailure) {
	for _, f := range failures {
		fmt.Fprintf(p.w, "%s %s: %s\n", p.style(p.warn, "skipped"), f.FilePath, f.Message)
	}
}

// Summary prints scan totals.
func (p *Printer) Summary(s scan.Summary) {
	fmt.Fprintf(p.w, "%s files scanned, %s candidates, %s parse failures\n",
		p.style(p.name, fmt.Sprint(s.FilesScanned)),
		p.style(p.pass, fmt.Sprint(s.Candidates)),
		p.style(p.warn, fmt.Sprint(s.ParseFailures)),
	)
}

// Result prints a verdict headed by label, with reasons indented below.
func (p *Printer) Result(label string, r *verify.Result) {
	if r.Passed {
		fmt.Fprintf(p.w, "%s %s\n", p.style(p.pass, "PASS"), label)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.style(p.fail, "FAIL"), label)
	for _, reason := range r.Reasons() {
		fmt.Fprintf(p.w, "  - %s\n", reason)
	}
}

// Outcomes prints suite outcomes and a pass count.
func (p *Printer) Outcomes(outcomes []suite.Outcome) {
	passed := 0
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(p.w, "%s %s\n  - %v\n", p.style(p.fail, "ERROR"), o.Dir, o.Err)
		case o.Result != nil:
			label := o.Dir
			if o.Task != nil {
				label = fmt.Sprintf("%s (%s.%s)", o.Dir, o.Task.ClassName, o.Task.MethodName)
			}
			p.Result(label, o.Result)
		}
		if o.Passed() {
			passed++
		}
	}
	fmt.Fprintf(p.w, "%d/%d tasks passed\n", passed, len(outcomes))
}
