// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// telemetry owns the SDK providers installed for one CLI run.
type telemetry struct {
	shutdowns []func(context.Context) error
}

// startTelemetry installs OpenTelemetry providers.
//
// Description:
//
//	With trace set, spans and metrics are exported to w. With prometheus
//	set, OTel instruments are also bridged into the default Prometheus
//	registry so the metrics file carries them. With neither, the global
//	no-op providers stay in place.
func startTelemetry(w io.Writer, trace, prometheus bool) (*telemetry, error) {
	t := &telemetry{}

	if trace {
		spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating span exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(spanExporter))
		otel.SetTracerProvider(tp)
		t.shutdowns = append(t.shutdowns, tp.Shutdown)
	}

	var readers []sdkmetric.Option
	if trace {
		metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	}
	if prometheus {
		promExporter, err := otelprom.New()
		if err != nil {
			return nil, fmt.Errorf("creating prometheus bridge: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(promExporter))
	}
	if len(readers) > 0 {
		mp := sdkmetric.NewMeterProvider(readers...)
		otel.SetMeterProvider(mp)
		t.shutdowns = append(t.shutdowns, mp.Shutdown)
	}

	return t, nil
}

// Shutdown flushes and stops every provider.
func (t *telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		errs = append(errs, t.shutdowns[i](ctx))
	}
	t.shutdowns = nil
	return errors.Join(errs...)
}
