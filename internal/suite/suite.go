// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package suite runs a BenchGroup: an ordered list of benchmarks sharing an
// optional baseline, per §5's ordering guarantees. Without batching, the
// baseline (if any) runs first, then each member in declared order. With
// batching, total run budget is divided across N batches whose ordering
// alternates (baseline-first, benchmarks) / (benchmarks, baseline) to
// cancel systematic drift, and each benchmark's batches are concatenated
// back together with internal/result.Merge.
package suite

import (
	"context"
	"fmt"
	"math"

	"github.com/benchforge/benchforge/internal/bencherr"
	"github.com/benchforge/benchforge/internal/collector"
	"github.com/benchforge/benchforge/internal/config"
	"github.com/benchforge/benchforge/internal/result"
	"github.com/benchforge/benchforge/internal/stats"
	"github.com/benchforge/benchforge/internal/worker"
	"github.com/benchforge/benchforge/pkg/logging"
)

// GroupResult is one member benchmark's outcome, with an optional delta
// against the group's baseline.
type GroupResult struct {
	BenchmarkName string
	Results       *result.MeasuredResults
	Baseline      *result.MeasuredResults
	DeltaPct      float64
	HasBaseline   bool
}

// Runner executes a BenchGroup.
type Runner struct {
	Collector    *collector.Collector
	Orchestrator *worker.Orchestrator
	Logger       *logging.Logger
}

// New returns a Runner. Nil arguments get sensible defaults.
func New(c *collector.Collector, o *worker.Orchestrator, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	if c == nil {
		c = collector.New(logger)
	}
	if o == nil {
		o = worker.New(logger, "")
	}
	return &Runner{Collector: c, Orchestrator: o, Logger: logger}
}

// ordering is which half of a batch runs first.
type ordering int

const (
	baselineFirst ordering = iota
	benchmarksFirst
)

func orderingForBatch(i int) ordering {
	if i%2 == 0 {
		return baselineFirst
	}
	return benchmarksFirst
}

// Run executes g's members (and baseline, if set) across batches batches,
// honoring the baseline-first-then-members ordering and, when batches > 1,
// the alternating-order drift-cancellation rule.
func (r *Runner) Run(ctx context.Context, g config.BenchGroup, opts config.RunnerOptions, batches int) ([]GroupResult, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if batches < 1 {
		batches = 1
	}

	batchOpts := opts
	if batches > 1 {
		batchOpts = splitForBatches(opts, batches)
	}

	memberBatches := make([][]*result.MeasuredResults, len(g.Members))
	var baselineBatches []*result.MeasuredResults

	runBaseline := func() error {
		if g.Baseline == nil {
			return nil
		}
		spec := *g.Baseline
		if spec.Setup == nil {
			spec.Setup = g.Setup
		}
		mr, err := r.runSpec(ctx, spec, batchOpts)
		if err != nil {
			return fmt.Errorf("group %q: baseline %q: %w", g.Name, g.Baseline.Name, err)
		}
		baselineBatches = append(baselineBatches, mr)
		return nil
	}
	runMembers := func() error {
		for i, m := range g.Members {
			if m.Setup == nil {
				m.Setup = g.Setup
			}
			mr, err := r.runSpec(ctx, m, batchOpts)
			if err != nil {
				return fmt.Errorf("group %q: member %q: %w", g.Name, m.Name, err)
			}
			memberBatches[i] = append(memberBatches[i], mr)
		}
		return nil
	}

	for b := 0; b < batches; b++ {
		var first, second func() error
		if orderingForBatch(b) == baselineFirst {
			first, second = runBaseline, runMembers
		} else {
			first, second = runMembers, runBaseline
		}
		if err := first(); err != nil {
			return nil, err
		}
		if err := second(); err != nil {
			return nil, err
		}
	}

	var baselineMerged *result.MeasuredResults
	if g.Baseline != nil {
		var err error
		baselineMerged, err = result.Merge(g.Baseline.Name, baselineBatches, opts.Adaptive)
		if err != nil {
			return nil, fmt.Errorf("group %q: merging baseline batches: %w", g.Name, err)
		}
	}

	out := make([]GroupResult, len(g.Members))
	for i, m := range g.Members {
		merged, err := result.Merge(m.Name, memberBatches[i], opts.Adaptive)
		if err != nil {
			return nil, fmt.Errorf("group %q: merging member %q batches: %w", g.Name, m.Name, err)
		}
		gr := GroupResult{BenchmarkName: m.Name, Results: merged}
		if baselineMerged != nil {
			gr.Baseline = baselineMerged
			gr.HasBaseline = true
			gr.DeltaPct = deltaPercent(stats.Mean(merged.Samples), stats.Mean(baselineMerged.Samples))
		}
		out[i] = gr
	}
	return out, nil
}

// deltaPercent mirrors internal/matrix's (avg(current) - avg(baseline)) /
// avg(baseline) * 100, with the zero-baseline-average guard.
func deltaPercent(currentAvg, baselineAvg float64) float64 {
	if baselineAvg == 0 {
		return 0
	}
	return (currentAvg - baselineAvg) / baselineAvg * 100
}

// runSpec executes one BenchmarkSpec in-process (Callable set) or via a
// fresh worker (ModulePath/ExportName set), mirroring internal/matrix's
// dispatch.
func (r *Runner) runSpec(ctx context.Context, spec config.BenchmarkSpec, opts config.RunnerOptions) (*result.MeasuredResults, error) {
	if spec.IsInline() {
		return r.Collector.Run(ctx, spec, opts)
	}
	results, err := r.Orchestrator.Run(ctx, spec, "suite", opts, spec.Param)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, &bencherr.EmptySamplesError{Name: spec.Name}
	}
	return results[0], nil
}

// splitForBatches divides the time/iteration budget across n batches,
// rounding up so the sum of per-batch budgets never falls short of opts'
// original total.
func splitForBatches(opts config.RunnerOptions, n int) config.RunnerOptions {
	o := opts
	if o.MaxTimeMS > 0 {
		o.MaxTimeMS = int64(math.Ceil(float64(o.MaxTimeMS) / float64(n)))
	}
	if o.MaxIterations > 0 {
		o.MaxIterations = int(math.Ceil(float64(o.MaxIterations) / float64(n)))
	}
	return o
}
