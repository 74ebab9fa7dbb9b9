// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scan

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// File outcome label values.
const (
	outcomeSelected   = "selected"
	outcomeParseError = "parse_error"
	outcomeReadError  = "read_error"
)

// Package-level Prometheus metrics for batch scans.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// scanFilesTotal counts scanned files by outcome.
	//
	// Labels:
	//   - outcome: "selected", "parse_error" or "read_error"
	scanFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refactorbench",
			Subsystem: "scan",
			Name:      "files_total",
			Help:      "Total files scanned by outcome.",
		},
		[]string{"outcome"},
	)

	// scanCandidatesTotal counts candidates emitted.
	scanCandidatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "refactorbench",
			Subsystem: "scan",
			Name:      "candidates_total",
			Help:      "Total refactor candidates selected.",
		},
	)

	// scanFileDuration measures per-file read, parse and select time.
	scanFileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "refactorbench",
			Subsystem: "scan",
			Name:      "file_duration_seconds",
			Help:      "Time to read, parse and select one file.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)
)

// WriteMetrics writes the default registry to path in the node-exporter
// textfile collector format.
func WriteMetrics(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
