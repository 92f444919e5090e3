// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package adaptive wraps internal/collector with the batch/convergence
// protocol described in SPEC_FULL.md §4.4: collect an initial batch, then
// repeatedly re-check convergence and collect more until the samples are
// stable, the time budget runs out, or a fallback confidence is reached.
package adaptive

import (
	"context"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/benchforge/benchforge/internal/collector"
	"github.com/benchforge/benchforge/internal/config"
	"github.com/benchforge/benchforge/internal/progress"
	"github.com/benchforge/benchforge/internal/result"
	"github.com/benchforge/benchforge/internal/stats"
	"github.com/benchforge/benchforge/pkg/logging"
)

var tracer = otel.Tracer("benchforge/adaptive")

// initialBatchMS and batchMS are the fixed budgets from §4.4's protocol.
const (
	initialBatchMS  = 100
	batchMS         = 100
	batchIterations = 10

	driftThreshold = 0.05
	fallbackFloor  = 80.0
)

// windowLookup implements the §4.4 median-sample-time -> window-size table.
// Entries are checked in order; the first threshold the median beats wins.
var windowLookup = []struct {
	lessThanUS float64
	window     int
}{
	{10, 200},
	{100, 100},
	{1000, 50},
	{10000, 30},
}

const windowDefault = 20 // >= 10ms median

// Controller runs the adaptive batch loop over a Collector.
type Controller struct {
	Collector *collector.Collector
	Logger    *logging.Logger
	Progress  *progress.Reporter
}

// New returns a Controller. Any nil argument gets a sensible default.
func New(c *collector.Collector, logger *logging.Logger, reporter *progress.Reporter) *Controller {
	if logger == nil {
		logger = logging.Default()
	}
	if c == nil {
		c = collector.New(logger)
	}
	if reporter == nil {
		reporter = progress.New(nil)
	}
	return &Controller{Collector: c, Logger: logger, Progress: reporter}
}

// Run executes the §4.4 protocol: an initial full-warmup batch followed by
// skip-warmup batches until convergence, time exhaustion, or the fallback
// confidence rule fires. opts.MaxTimeMS gates the adaptive clock, which
// starts only after the initial batch returns.
func (ctl *Controller) Run(ctx context.Context, spec config.BenchmarkSpec, opts config.RunnerOptions) (*result.MeasuredResults, error) {
	ctx, span := tracer.Start(ctx, "adaptive.Run", trace.WithAttributes(
		attribute.String("benchmark.name", spec.Name),
	))
	defer span.End()
	defer ctl.Progress.Done()

	initialOpts := opts
	initialOpts.MaxTimeMS = initialBatchMS
	initialOpts.MaxIterations = 0
	initialOpts.Adaptive = true

	batches := []*result.MeasuredResults{}
	first, err := ctl.Collector.Run(ctx, spec, initialOpts)
	if err != nil {
		return nil, err
	}
	batches = append(batches, first)

	clockStart := time.Now()
	var conv *result.Convergence

	for {
		all := flattenSamples(batches)
		conv = checkConvergence(all)

		ctl.Logger.Debug("adaptive check",
			"benchmark", spec.Name,
			"samples", len(all),
			"converged", conv.Converged,
			"confidence", conv.Confidence,
		)
		ctl.Progress.Update(conv.Reason)

		elapsedMS := time.Since(clockStart).Milliseconds()

		if opts.MaxTimeMS > 0 && elapsedMS >= opts.MaxTimeMS {
			break
		}
		if conv.Converged && conv.Confidence >= opts.TargetConfidence {
			break
		}
		if opts.MinTimeMS > 0 && elapsedMS >= opts.MinTimeMS && conv.Confidence >= math.Max(opts.TargetConfidence, fallbackFloor) {
			break
		}

		batchOpts := opts
		batchOpts.MaxTimeMS = batchMS
		batchOpts.MaxIterations = batchIterations
		batchOpts.SkipWarmup = true
		batchOpts.Adaptive = true

		next, err := ctl.Collector.Run(ctx, spec, batchOpts)
		if err != nil {
			return nil, err
		}
		batches = append(batches, next)
	}

	merged, err := result.Merge(spec.Name, batches, true)
	if err != nil {
		return nil, err
	}
	merged.Convergence = conv
	return merged, nil
}

func flattenSamples(batches []*result.MeasuredResults) []float64 {
	var all []float64
	for _, b := range batches {
		all = append(all, b.Samples...)
	}
	return all
}

// checkConvergence implements §4.4's convergence check verbatim.
func checkConvergence(samples []float64) *result.Convergence {
	w := windowSize(samples)
	if len(samples) < 2*w {
		n := len(samples)
		return &result.Convergence{
			Converged:  false,
			Confidence: (float64(n) / float64(2*w)) * 100,
			Reason:     progress.CollectingSamplesLine(n, w),
		}
	}

	recent := samples[len(samples)-w:]
	previous := samples[len(samples)-2*w : len(samples)-w]

	medianRecent := stats.Median(stats.Sorted(recent))
	medianPrevious := stats.Median(stats.Sorted(previous))
	var medianDrift float64
	if medianPrevious != 0 {
		medianDrift = math.Abs(medianRecent-medianPrevious) / medianPrevious
	}

	impactRecent := stats.OutlierImpact(recent)
	impactPrevious := stats.OutlierImpact(previous)
	impactDrift := math.Abs(impactRecent - impactPrevious)

	medianStable := medianDrift < driftThreshold
	impactStable := impactDrift < driftThreshold

	if medianStable && impactStable {
		return &result.Convergence{Converged: true, Confidence: 100, Reason: "Stable performance pattern"}
	}

	confidence := 50*(1-medianDrift/driftThreshold) + 50*(1-impactDrift/driftThreshold)
	confidence = math.Max(0, math.Min(100, confidence))

	reason := "Outlier impact drifting"
	if !medianStable && (impactStable || medianDrift >= impactDrift) {
		reason = "Median drifting"
	}
	return &result.Convergence{Converged: false, Confidence: confidence, Reason: reason}
}

// windowSize picks W from the median of the last 20 samples, per §4.4's table.
// Fewer than 20 samples yet uses the table's explicit default of 50.
func windowSize(samples []float64) int {
	const fewSamplesDefault = 50
	if len(samples) < 20 {
		return fewSamplesDefault
	}
	recent20 := samples[len(samples)-20:]
	medianUS := stats.Median(stats.Sorted(recent20)) * 1000 // samples are in ms; table is in us

	for _, entry := range windowLookup {
		if medianUS < entry.lessThanUS {
			return entry.window
		}
	}
	return windowDefault
}
