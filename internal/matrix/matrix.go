// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package matrix runs a variants x cases cross product (§4.6), either
// in-process (inline variants) or via a fresh worker per cell (variantDir),
// with optional baseline-delta computation against a baseline directory or
// a designated baseline variant.
package matrix

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/benchforge/benchforge/internal/bencherr"
	"github.com/benchforge/benchforge/internal/collector"
	"github.com/benchforge/benchforge/internal/config"
	"github.com/benchforge/benchforge/internal/result"
	"github.com/benchforge/benchforge/internal/stats"
	"github.com/benchforge/benchforge/internal/worker"
	"github.com/benchforge/benchforge/pkg/logging"
)

// CellResult is one (variant, case) outcome, with an optional baseline
// comparison attached per §4.6's baseline_dir / baseline_variant semantics.
type CellResult struct {
	VariantName string
	CaseID      string
	Results     *result.MeasuredResults
	Baseline    *result.MeasuredResults
	DeltaPct    float64
	HasBaseline bool
}

// Runner executes a BenchMatrix.
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

// Run executes m's full cross product (after filtering), attaching baseline
// deltas per m's baseline mode, and returns one CellResult per surviving
// (variant, case) pair in variant-major, case-minor order.
func (r *Runner) Run(ctx context.Context, m config.BenchMatrix, opts config.RunnerOptions, filter string) ([]CellResult, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	variants, cases, err := applyFilter(m, filter)
	if err != nil {
		return nil, err
	}

	var baselineVariant *config.Variant
	if m.HasBaselineVariant() {
		for i := range variants {
			if variants[i].Name == m.BaselineVariant {
				baselineVariant = &variants[i]
				break
			}
		}
	}

	var out []CellResult
	for _, v := range variants {
		for _, c := range cases {
			mr, err := r.runCell(ctx, v, c, opts)
			if err != nil {
				return nil, fmt.Errorf("matrix %q: variant %q case %q: %w", m.Name, v.Name, c.ID, err)
			}
			cell := CellResult{VariantName: v.Name, CaseID: c.ID, Results: mr}

			switch {
			case m.HasBaselineDir():
				baseMR, err := r.runBaselineDirCell(ctx, m.BaselineDir, v, c, opts)
				if err != nil {
					return nil, fmt.Errorf("matrix %q: baseline for variant %q case %q: %w", m.Name, v.Name, c.ID, err)
				}
				if baseMR != nil {
					cell.Baseline = baseMR
					cell.HasBaseline = true
					cell.DeltaPct = deltaPercent(stats.Mean(mr.Samples), stats.Mean(baseMR.Samples))
				}
			case baselineVariant != nil && v.Name != baselineVariant.Name:
				baseMR, err := r.runCell(ctx, *baselineVariant, c, opts)
				if err != nil {
					return nil, fmt.Errorf("matrix %q: baseline variant %q case %q: %w", m.Name, baselineVariant.Name, c.ID, err)
				}
				cell.Baseline = baseMR
				cell.HasBaseline = true
				cell.DeltaPct = deltaPercent(stats.Mean(mr.Samples), stats.Mean(baseMR.Samples))
			}

			out = append(out, cell)
		}
	}
	return out, nil
}

// deltaPercent is §4.6's (avg(current) - avg(baseline)) / avg(baseline) * 100,
// with the explicit zero-baseline-average guard.
func deltaPercent(currentAvg, baselineAvg float64) float64 {
	if baselineAvg == 0 {
		return 0
	}
	return (currentAvg - baselineAvg) / baselineAvg * 100
}

// runCell executes one (variant, case) pair: in-process for an inline
// variant, via a fresh worker otherwise.
func (r *Runner) runCell(ctx context.Context, v config.Variant, c config.Case, opts config.RunnerOptions) (*result.MeasuredResults, error) {
	if v.Callable != nil {
		spec := config.BenchmarkSpec{Name: cellName(v.Name, c.ID), Callable: v.Callable, Param: c.Data}
		return r.Collector.Run(ctx, spec, opts)
	}
	spec := config.BenchmarkSpec{
		Name:       cellName(v.Name, c.ID),
		ModulePath: v.VariantDir,
		ExportName: c.ID,
	}
	results, err := r.Orchestrator.Run(ctx, spec, "matrix", opts, c.Data)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, &bencherr.EmptySamplesError{Name: spec.Name}
	}
	return results[0], nil
}

// runBaselineDirCell runs the same case against the baseline directory's
// copy of v, if one exists; a variant absent from baselineDir yields
// (nil, nil), which the caller treats as "no baseline attached".
func (r *Runner) runBaselineDirCell(ctx context.Context, baselineDir string, v config.Variant, c config.Case, opts config.RunnerOptions) (*result.MeasuredResults, error) {
	spec := config.BenchmarkSpec{
		Name:       cellName(v.Name, c.ID) + ".baseline",
		ModulePath: baselineDir + "/" + v.Name,
		ExportName: c.ID,
	}
	if _, err := os.Stat(spec.ModulePath); os.IsNotExist(err) {
		return nil, nil
	}
	results, err := r.Orchestrator.Run(ctx, spec, "matrix-baseline", opts, c.Data)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func cellName(variant, caseID string) string {
	return variant + "/" + caseID
}

// applyFilter implements §4.6's "case/variant" (either half optional)
// case-insensitive substring filter, intersected with any pre-existing
// FilteredCases/FilteredVariants, and its hard-error-on-empty-match rule.
func applyFilter(m config.BenchMatrix, filter string) ([]config.Variant, []config.Case, error) {
	caseFilter, variantFilter := splitFilter(filter)

	variants := filterVariants(m.Variants, variantFilter, m.FilteredVariants)
	cases := filterCases(m.Cases, caseFilter, m.FilteredCases)

	if filter != "" && (len(variants) == 0 || len(cases) == 0) {
		return nil, nil, fmt.Errorf("matrix %q: filter %q matched nothing: %w", m.Name, filter, bencherr.ErrFilterNoMatch)
	}
	return variants, cases, nil
}

// splitFilter parses "case/variant" where either half may be empty.
func splitFilter(filter string) (caseFilter, variantFilter string) {
	if filter == "" {
		return "", ""
	}
	parts := strings.SplitN(filter, "/", 2)
	caseFilter = parts[0]
	if len(parts) == 2 {
		variantFilter = parts[1]
	}
	return caseFilter, variantFilter
}

func filterVariants(all []config.Variant, substr string, preexisting []string) []config.Variant {
	var out []config.Variant
	for _, v := range all {
		if substr != "" && !containsFold(v.Name, substr) {
			continue
		}
		if len(preexisting) > 0 && !containsAny(v.Name, preexisting) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func filterCases(all []config.Case, substr string, preexisting []string) []config.Case {
	var out []config.Case
	for _, c := range all {
		if substr != "" && !containsFold(c.ID, substr) {
			continue
		}
		if len(preexisting) > 0 && !containsAny(c.ID, preexisting) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func containsAny(s string, candidates []string) bool {
	for _, c := range candidates {
		if containsFold(s, c) {
			return true
		}
	}
	return false
}
