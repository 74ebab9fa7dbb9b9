// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scan runs the candidate selector over many files concurrently.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AleutianAI/refactorbench/services/refactor/ast"
	"github.com/AleutianAI/refactorbench/services/refactor/config"
	"github.com/AleutianAI/refactorbench/services/refactor/selector"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var scanTracer = otel.Tracer("refactorbench.scan")

// =============================================================================
// Report Types
// =============================================================================

// FileFailure records a file that could not be analyzed.
type FileFailure struct {
	FilePath string `json:"file"`
	Message  string `json:"error"`

	// Line is the 1-based line of a syntax error, zero otherwise.
	Line int `json:"line,omitempty"`
}

// Summary totals a scan.
type Summary struct {
	FilesScanned  int `json:"files_scanned"`
	Candidates    int `json:"candidates"`
	ParseFailures int `json:"parse_failures"`
}

// Report is the aggregate result of one scan.
type Report struct {
	// RunID identifies the scan in logs and output.
	RunID string `json:"run_id"`

	// Root is the scanned root, empty for explicit file lists.
	Root string `json:"root,omitempty"`

	// Candidates are ordered by input file, then source position.
	Candidates []selector.Candidate `json:"candidates"`

	// Evaluations holds every method verdict when explanation is enabled.
	Evaluations []selector.Evaluation `json:"evaluations,omitempty"`

	// Failures are ordered by input file.
	Failures []FileFailure `json:"failures"`

	Summary Summary `json:"summary"`
}

// fileResult is the per-file slot filled by a worker.
type fileResult struct {
	scanned     bool
	candidates  []selector.Candidate
	evaluations []selector.Evaluation
	failure     *FileFailure
}

// =============================================================================
// Scanner
// =============================================================================

// Scanner selects candidates across a batch of files.
//
// Description:
//
//	Each file is read, parsed and selected by one worker with no shared
//	mutable state. A file that cannot be read or parsed becomes a
//	FileFailure and the batch continues.
//
// Thread Safety:
//
//	Scanner is safe for concurrent use; each Run owns its results.
type Scanner struct {
	parser   *ast.PythonParser
	selector *selector.Selector
	workers  int
	explain  bool
	logger   *slog.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithExplain records every method's Evaluation in the Report.
func WithExplain(explain bool) ScannerOption {
	return func(s *Scanner) {
		s.explain = explain
	}
}

// WithWorkers overrides the configured worker count.
func WithWorkers(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewScanner creates a Scanner from cfg. Nil selects config.Default().
func NewScanner(cfg *config.Config, opts ...ScannerOption) *Scanner {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Scanner{
		parser:   cfg.NewParser(),
		selector: selector.New(cfg),
		workers:  cfg.WorkerCount(),
		logger:   slog.Default().With(slog.String("component", "scanner")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scans files and aggregates the results.
//
// Description:
//
//	Files are processed by a bounded worker pool. Results are merged in
//	input order regardless of completion order. Cancellation stops
//	scheduling further files; the partial report covers the files that
//	finished and is returned with the context error.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - files: Paths to scan, typically from Discover.
//
// Outputs:
//   - *Report: Never nil.
//   - error: Non-nil only when ctx was canceled.
func (s *Scanner) Run(ctx context.Context, files []string) (*Report, error) {
	runID := uuid.NewString()
	ctx, span := scanTracer.Start(ctx, "scan.Run",
		trace.WithAttributes(
			attribute.String("scan.run_id", runID),
			attribute.Int("scan.files", len(files)),
			attribute.Int("scan.workers", s.workers),
		),
	)
	defer span.End()

	start := time.Now()
	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			results[i] = s.scanFile(gctx, path)
			return nil
		})
	}
	_ = g.Wait()

	report := s.merge(runID, results)
	span.SetAttributes(
		attribute.Int("scan.candidates", report.Summary.Candidates),
		attribute.Int("scan.parse_failures", report.Summary.ParseFailures),
	)
	s.logger.Info("scan finished",
		slog.String("run_id", runID),
		slog.Int("files_scanned", report.Summary.FilesScanned),
		slog.Int("candidates", report.Summary.Candidates),
		slog.Int("parse_failures", report.Summary.ParseFailures),
		slog.Duration("duration", time.Since(start)),
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("scan canceled after %d of %d files: %w",
			report.Summary.FilesScanned, len(files), err)
	}
	return report, nil
}

// ScanFile analyzes a single file outside a batch.
func (s *Scanner) ScanFile(ctx context.Context, path string) ([]selector.Candidate, error) {
	res := s.scanFile(ctx, path)
	if res.failure != nil {
		return nil, errors.New(res.failure.Message)
	}
	return res.candidates, nil
}

func (s *Scanner) scanFile(ctx context.Context, path string) fileResult {
	start := time.Now()
	defer func() {
		scanFileDuration.Observe(time.Since(start).Seconds())
	}()

	content, err := os.ReadFile(path)
	if err != nil {
		scanFilesTotal.WithLabelValues(outcomeReadError).Inc()
		s.logger.Warn("file unreadable", slog.String("file", path), slog.String("error", err.Error()))
		return fileResult{scanned: true, failure: &FileFailure{FilePath: path, Message: err.Error()}}
	}

	tree, err := s.parser.Parse(ctx, content, path)
	if err != nil {
		if ctx.Err() != nil {
			return fileResult{}
		}
		scanFilesTotal.WithLabelValues(outcomeParseError).Inc()
		failure := &FileFailure{FilePath: path, Message: err.Error()}
		var perr *ast.ParseError
		if errors.As(err, &perr) {
			failure.Line = perr.Line
		}
		s.logger.Debug("file skipped", slog.String("file", path), slog.String("error", err.Error()))
		return fileResult{scanned: true, failure: failure}
	}
	defer tree.Close()

	res := fileResult{scanned: true}
	if s.explain {
		res.evaluations = s.selector.Evaluate(tree)
		res.candidates = make([]selector.Candidate, 0)
		for _, ev := range res.evaluations {
			if ev.Eligible {
				res.candidates = append(res.candidates, ev.Candidate)
			}
		}
	} else {
		res.candidates = s.selector.SelectCandidates(tree)
	}

	scanFilesTotal.WithLabelValues(outcomeSelected).Inc()
	scanCandidatesTotal.Add(float64(len(res.candidates)))
	return res
}

func (s *Scanner) merge(runID string, results []fileResult) *Report {
	report := &Report{
		RunID:      runID,
		Candidates: make([]selector.Candidate, 0),
		Failures:   make([]FileFailure, 0),
	}
	for _, res := range results {
		if !res.scanned {
			continue
		}
		report.Summary.FilesScanned++
		if res.failure != nil {
			report.Failures = append(report.Failures, *res.failure)
			continue
		}
		report.Candidates = append(report.Candidates, res.candidates...)
		report.Evaluations = append(report.Evaluations, res.evaluations...)
	}
	report.Summary.Candidates = len(report.Candidates)
	report.Summary.ParseFailures = len(report.Failures)
	return report
}

// ScanRoot discovers files under root and scans them.
func (s *Scanner) ScanRoot(ctx context.Context, root string, cfg *config.Config) (*Report, error) {
	files, err := Discover(root, cfg)
	if err != nil {
		return nil, err
	}
	report, err := s.Run(ctx, files)
	if report != nil {
		report.Root = root
	}
	return report, err
}
