// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package collector implements the sample collection loop: warmup,
// settle, measurement, and per-sample instrumentation for a single
// BenchmarkSpec.
//
// Description:
//
//	Collector is the in-process measurement primitive invoked either
//	directly (inline matrix variants) or from inside a worker child
//	(internal/worker). It does not itself decide how many samples are
//	enough; internal/adaptive wraps it for that.
//
// Thread Safety: A Collector holds no mutable state between calls to Run;
// it is safe to reuse across benchmarks, though pre-allocated sample
// arrays are owned solely by a single in-flight Run call.
package collector

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/benchforge/benchforge/internal/bencherr"
	"github.com/benchforge/benchforge/internal/benchfn"
	"github.com/benchforge/benchforge/internal/config"
	"github.com/benchforge/benchforge/internal/result"
	"github.com/benchforge/benchforge/internal/telemetry"
	"github.com/benchforge/benchforge/pkg/logging"
)

// SettleMS is the fixed settle window after warmup: 1,000 ms.
const SettleMS = 1000

var tracer = otel.Tracer("benchforge/collector")

// Collector runs the measurement loop described in SPEC_FULL.md §4.3.
type Collector struct {
	Logger *logging.Logger
}

// New returns a Collector logging through logger, or logging.Default() if
// logger is nil.
func New(logger *logging.Logger) *Collector {
	if logger == nil {
		logger = logging.Default()
	}
	return &Collector{Logger: logger}
}

// Run executes spec's callable repeatedly per opts, producing a
// MeasuredResults. batchOpts overrides (used by the adaptive controller
// for fixed-budget sub-batches) are applied by the caller before Run is
// invoked - Run itself has no notion of "batch".
func (c *Collector) Run(ctx context.Context, spec config.BenchmarkSpec, opts config.RunnerOptions) (*result.MeasuredResults, error) {
	ctx, span := tracer.Start(ctx, "collector.Run", trace.WithAttributes(
		attribute.String("benchmark.name", spec.Name),
	))
	defer span.End()

	if err := spec.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	fn, err := resolveCallable(spec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	state, err := resolveState(spec)
	if err != nil {
		wrapped := fmt.Errorf("benchmark %q: setup failed: %w", spec.Name, bencherr.ErrBenchmarkFailed)
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		return nil, wrapped
	}

	var warmupSamples []float64
	if opts.WarmupIterations > 0 && !opts.SkipWarmup {
		warmupSamples = c.runWarmup(fn, state, opts.WarmupIterations)

		runtime.GC()
		if !opts.SkipSettle {
			time.Sleep(SettleMS * time.Millisecond)
			runtime.GC()
		}
	}

	var heapBefore runtime.MemStats
	runtime.ReadMemStats(&heapBefore)

	mr, err := c.runMeasurement(ctx, spec.Name, fn, state, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	mr.WarmupSamples = warmupSamples

	var heapAfter runtime.MemStats
	runtime.ReadMemStats(&heapAfter)
	mr.HeapGrowthKB = amortizedHeapGrowthKB(heapBefore.HeapAlloc, heapAfter.HeapAlloc, len(mr.Samples))

	if err := mr.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c.Logger.Debug("collection complete",
		"benchmark", spec.Name,
		"samples", len(mr.Samples),
		"p50_ms", mr.Time.P50,
		"total_time_s", mr.TotalTimeS,
	)
	return mr, nil
}

// amortizedHeapGrowthKB implements SPEC_FULL.md §4.3's formula:
// max(0, after-before)/1024/count, reported as a single scalar (Open
// Question 3 resolution - see SPEC_FULL.md §9).
func amortizedHeapGrowthKB(before, after uint64, count int) float64 {
	if count == 0 {
		return 0
	}
	var growth int64
	if after > before {
		growth = int64(after - before)
	}
	return float64(growth) / 1024 / float64(count)
}

func resolveCallable(spec config.BenchmarkSpec) (config.BenchFunc, error) {
	if spec.Callable != nil {
		return spec.Callable, nil
	}
	fn, ok := benchfn.Lookup(spec.ExportName)
	if !ok {
		return nil, fmt.Errorf("benchmark %q: export %q not registered: %w", spec.Name, spec.ExportName, bencherr.ErrConfigInvalid)
	}
	return config.BenchFunc(fn), nil
}

func resolveState(spec config.BenchmarkSpec) (any, error) {
	if spec.Setup != nil {
		return spec.Setup()
	}
	if spec.SetupExportName != "" {
		setup, ok := benchfn.LookupSetup(spec.SetupExportName)
		if !ok {
			return nil, fmt.Errorf("setup export %q not registered", spec.SetupExportName)
		}
		return setup()
	}
	return spec.Param, nil
}

// runWarmup runs n untimed iterations, recording each duration.
func (c *Collector) runWarmup(fn config.BenchFunc, state any, n int) []float64 {
	samples := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		t0 := time.Now()
		_ = fn(state) // warmup errors are not fatal; measurement will surface a real failure
		samples = append(samples, float64(time.Since(t0))/float64(time.Millisecond))
	}
	return samples
}

// runMeasurement implements Phase 2 of §4.3: pre-allocated arrays,
// per-iteration timing, pause injection, and the dual max_iterations /
// max_time_ms termination rule.
func (c *Collector) runMeasurement(ctx context.Context, name string, fn config.BenchFunc, state any, opts config.RunnerOptions) (*result.MeasuredResults, error) {
	capacity := opts.EstimatedCapacity()
	samples := make([]float64, 0, capacity)
	timestamps := make([]int64, 0, capacity)
	heapSamples := make([]uint64, 0, capacity)
	var optSamples []result.OptStatus
	var pausePoints []result.PausePoint

	if opts.TraceOpt {
		optSamples = make([]result.OptStatus, 0, capacity)
	}

	loopStart := time.Now()
	var exclusion time.Duration
	count := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		t0 := time.Now()
		iterErr := fn(state)
		t1 := time.Now()

		if iterErr != nil {
			return nil, fmt.Errorf("benchmark %q: %v: %w", name, iterErr, bencherr.ErrBenchmarkFailed)
		}

		elapsedMS := float64(t1.Sub(t0)) / float64(time.Millisecond)
		samples = append(samples, elapsedMS)
		timestamps = append(timestamps, t1.UnixMicro())
		telemetry.RecordSample(ctx, name, elapsedMS)

		if opts.Collect {
			runtime.GC()
		}

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		heapSamples = append(heapSamples, mem.HeapAlloc)

		if opts.TraceOpt {
			optSamples = append(optSamples, result.OptStatusUnknown)
		}

		if opts.ShouldPause(count) {
			pausePoints = append(pausePoints, result.PausePoint{SampleIndex: count, DurationMS: float64(opts.PauseDurationMS)})
			pauseStart := time.Now()
			time.Sleep(time.Duration(opts.PauseDurationMS) * time.Millisecond)
			exclusion += time.Since(pauseStart)
		}

		count++

		elapsed := time.Since(loopStart) - exclusion
		elapsedMS2 := float64(elapsed) / float64(time.Millisecond)

		iterationsDone := opts.MaxIterations > 0 && count >= opts.MaxIterations
		timeDone := opts.MaxTimeMS > 0 && elapsedMS2 >= float64(opts.MaxTimeMS)
		if iterationsDone || timeDone {
			break
		}
	}

	if count == 0 {
		return nil, &bencherr.EmptySamplesError{Name: name}
	}
	telemetry.RecordIterations(ctx, name, int64(count))

	mr := &result.MeasuredResults{
		Name:        name,
		Samples:     samples,
		Timestamps:  timestamps,
		HeapSamples: heapSamples,
		OptSamples:  optSamples,
		PausePoints: pausePoints,
		TotalTimeS:  time.Since(loopStart).Seconds(),
	}
	if opts.Adaptive {
		mr.Time = result.ComputeAdaptiveTimeStats(samples)
	} else {
		mr.Time = result.ComputeTimeStats(samples)
	}
	return mr, nil
}
