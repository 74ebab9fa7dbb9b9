// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level Prometheus metrics for verification.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// verifyResultsTotal counts verifications by outcome.
	//
	// Labels:
	//   - result: "passed" or "failed"
	verifyResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refactorbench",
			Subsystem: "verify",
			Name:      "results_total",
			Help:      "Total verifications by outcome.",
		},
		[]string{"result"},
	)

	// verifyFailuresTotal counts failed checks by kind.
	//
	// Labels:
	//   - kind: a FailureKind value
	verifyFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refactorbench",
			Subsystem: "verify",
			Name:      "failures_total",
			Help:      "Total failed structural checks by kind.",
		},
		[]string{"kind"},
	)
)

// recordResult records one verification outcome.
func recordResult(r *Result) {
	if r.Passed {
		verifyResultsTotal.WithLabelValues("passed").Inc()
		return
	}
	verifyResultsTotal.WithLabelValues("failed").Inc()
	for _, f := range r.Failures {
		verifyFailuresTotal.WithLabelValues(string(f.Kind)).Inc()
	}
}
