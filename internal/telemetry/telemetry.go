// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires up the process-wide OpenTelemetry tracer/meter
// providers and, optionally, a Prometheus scrape endpoint (SPEC_FULL.md
// §10.5). Every package that creates a tracer or meter in this module
// (collector, adaptive, worker) resolves it from the global
// otel.GetTracerProvider()/otel.GetMeterProvider(), so installing the
// providers here is enough to light up instrumentation everywhere.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Package-level meter and its instruments, resolved from whatever
// MeterProvider Install registers - the same otel.Meter delegation that
// lets collector/adaptive/worker declare their tracers at package
// scope ahead of Install ever running.
var meter = otel.Meter("benchforge")

var (
	runsCounter     metric.Int64Counter
	sampleHistogram metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the package's metric instruments. Safe to call
// multiple times; only the first call does any work.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error
		runsCounter, err = meter.Int64Counter(
			"benchforge.benchmark.iterations",
			metric.WithDescription("iterations collected per completed benchmark run"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		sampleHistogram, err = meter.Float64Histogram(
			"benchforge.sample.duration_ms",
			metric.WithDescription("per-iteration sample duration"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// RecordSample records one collected iteration's measured duration,
// tagged with the benchmark it belongs to (§10.5's "sample latency
// distribution").
func RecordSample(ctx context.Context, benchmarkName string, ms float64) {
	if err := initMetrics(); err != nil {
		return
	}
	sampleHistogram.Record(ctx, ms, metric.WithAttributes(attribute.String("benchmark.name", benchmarkName)))
}

// RecordIterations adds n to the iterations-collected counter for a
// completed benchmark run (§10.5's "iterations collected").
func RecordIterations(ctx context.Context, benchmarkName string, n int64) {
	if err := initMetrics(); err != nil {
		return
	}
	runsCounter.Add(ctx, n, metric.WithAttributes(attribute.String("benchmark.name", benchmarkName)))
}

// Config controls how telemetry is wired. Zero value is the zero-config
// default: stdout exporters for traces and metrics, no Prometheus endpoint.
type Config struct {
	ServiceName   string
	PrettyPrint   bool
	MetricsAddr   string // empty disables the Prometheus endpoint
}

// Provider owns the tracer/meter providers and the optional metrics server,
// and is responsible for flushing/shutting both down.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metricsServer  *http.Server
}

// Install sets up the global tracer/meter providers per cfg and returns a
// Provider whose Shutdown must be called before process exit to flush
// pending spans/metrics.
func Install(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "benchforge"
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	traceExporterOpts := []stdouttrace.Option{}
	if cfg.PrettyPrint {
		traceExporterOpts = append(traceExporterOpts, stdouttrace.WithPrettyPrint())
	}
	traceExporter, err := stdouttrace.New(traceExporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: building metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	p := &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		p.metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			_ = p.metricsServer.ListenAndServe()
		}()
	}

	return p, nil
}

// Shutdown flushes and stops the tracer/meter providers and, if running,
// the Prometheus metrics server.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.metricsServer != nil {
		_ = p.metricsServer.Shutdown(ctx)
	}
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutting down tracer provider: %w", err)
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutting down meter provider: %w", err)
	}
	return nil
}
