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
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// astTracerName is the OTel instrumentation scope for this package.
const astTracerName = "refactorbench.ast"

var (
	parseMetricsOnce sync.Once
	parseDuration    metric.Float64Histogram
	parseTotal       metric.Int64Counter
)

// initParseMetrics creates the parse instruments on first use.
//
// The global meter provider delegates to whatever provider is installed
// later, so creating the instruments before the CLI sets one up is fine.
func initParseMetrics() {
	parseMetricsOnce.Do(func() {
		meter := otel.Meter(astTracerName)

		var err error
		parseDuration, err = meter.Float64Histogram(
			"refactorbench.ast.parse.duration",
			metric.WithDescription("Duration of Python parses."),
			metric.WithUnit("s"),
		)
		if err != nil {
			slog.Warn("failed to create parse duration histogram", slog.String("error", err.Error()))
		}

		parseTotal, err = meter.Int64Counter(
			"refactorbench.ast.parse.total",
			metric.WithDescription("Number of Python parses by outcome."),
		)
		if err != nil {
			slog.Warn("failed to create parse counter", slog.String("error", err.Error()))
		}
	})
}

// startParseSpan opens the span that wraps a single Parse call.
func startParseSpan(ctx context.Context, filePath string, size int) (context.Context, trace.Span) {
	return otel.Tracer(astTracerName).Start(ctx, "ast.Parse",
		trace.WithAttributes(
			attribute.String("parse.language", "python"),
			attribute.String("parse.file", filePath),
			attribute.Int("parse.size_bytes", size),
		),
	)
}

// endParseSpan records the outcome on span.
func endParseSpan(span trace.Span, nodes int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.Int("parse.nodes", nodes))
}

// recordParseMetrics records duration and outcome for one parse.
//
// Outcome is one of "success", "syntax_error", "rejected" or "canceled".
func recordParseMetrics(ctx context.Context, duration time.Duration, outcome string) {
	initParseMetrics()

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if parseDuration != nil {
		parseDuration.Record(ctx, duration.Seconds(), attrs)
	}
	if parseTotal != nil {
		parseTotal.Add(ctx, 1, attrs)
	}
}
