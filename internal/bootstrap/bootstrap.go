// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bootstrap computes a confidence interval on the percentage
// difference of medians between a baseline and a candidate sample set via
// percentile-method bootstrap resampling.
package bootstrap

import (
	"math"
	"sort"

	"github.com/benchforge/benchforge/internal/stats"
)

// Direction classifies where the confidence interval falls relative to zero.
type Direction string

const (
	Faster    Direction = "faster"
	Slower    Direction = "slower"
	Uncertain Direction = "uncertain"
)

// Options configures a comparison.
type Options struct {
	// Resamples is the number of bootstrap iterations. Defaults to 10000
	// when zero.
	Resamples int

	// Confidence is the two-sided confidence level, e.g. 0.95. Defaults to
	// 0.95 when zero.
	Confidence float64

	// Bins is the number of equal-width histogram bins reported alongside
	// the CI. Defaults to 30 when zero.
	Bins int

	// Seed seeds the deterministic LCG used for resampling. Two calls with
	// the same inputs and seed produce identical output.
	Seed uint64
}

func (o Options) withDefaults() Options {
	if o.Resamples <= 0 {
		o.Resamples = 10_000
	}
	if o.Confidence <= 0 {
		o.Confidence = 0.95
	}
	if o.Bins <= 0 {
		o.Bins = 30
	}
	return o
}

// HistogramBin is one equal-width bin of the resample distribution.
type HistogramBin struct {
	Midpoint float64
	Count    int
}

// CI is the confidence interval comparator result.
type CI struct {
	// Percent is the observed percentage change of current vs baseline:
	// 100 * (median(current) - median(baseline)) / median(baseline).
	Percent float64

	// Lower and Upper bound the percentage-difference confidence interval.
	Lower float64
	Upper float64

	Direction Direction

	// Histogram bins the resample distribution into Options.Bins equal-width
	// bins for transport to a reporter. Empty when the baseline median is 0.
	Histogram []HistogramBin
}

// percentDiff computes the percentage difference of medians. Returns 0 and
// ok=false when the baseline median is zero — the edge case where the
// percentage expression is undefined and direction must be Uncertain.
func percentDiff(baseline, current []float64) (percent float64, ok bool) {
	baseMedian := stats.Median(stats.Sorted(baseline))
	curMedian := stats.Median(stats.Sorted(current))
	if baseMedian == 0 {
		return 0, false
	}
	return 100 * (curMedian - baseMedian) / baseMedian, true
}

// Compare runs the percentile-method bootstrap comparison described in the
// spec: resample both inputs with replacement `Resamples` times, compute
// the percentage-difference-of-medians on each draw, and take the
// [alpha/2, 1-alpha/2] quantiles of the resulting distribution as the CI.
//
// Edge case: if median(baseline) is 0, the percentage is undefined; this
// returns Percent=0, an empty CI (Lower=Upper=0), Direction=Uncertain, and
// no histogram. Callers must not treat this as an error.
func Compare(baseline, current []float64, opts Options) CI {
	opts = opts.withDefaults()

	observed, ok := percentDiff(baseline, current)
	if !ok {
		return CI{Percent: 0, Lower: 0, Upper: 0, Direction: Uncertain}
	}

	rng := stats.NewLCG(opts.Seed)
	diffs := make([]float64, 0, opts.Resamples)
	for i := 0; i < opts.Resamples; i++ {
		rb := stats.Resample(baseline, rng)
		rc := stats.Resample(current, rng)
		if d, ok := percentDiff(rb, rc); ok {
			diffs = append(diffs, d)
		}
	}

	if len(diffs) == 0 {
		return CI{Percent: observed, Lower: 0, Upper: 0, Direction: Uncertain}
	}

	sort.Float64s(diffs)
	alpha := 1 - opts.Confidence
	lower := stats.Percentile(diffs, alpha/2)
	upper := stats.Percentile(diffs, 1-alpha/2)

	direction := Uncertain
	switch {
	case upper < 0:
		direction = Faster
	case lower > 0:
		direction = Slower
	}

	return CI{
		Percent:   observed,
		Lower:     lower,
		Upper:     upper,
		Direction: direction,
		Histogram: histogram(diffs, opts.Bins),
	}
}

// histogram bins sorted values into n equal-width bins spanning
// [min(values), max(values)], reporting each bin's midpoint and count.
func histogram(sortedValues []float64, n int) []HistogramBin {
	if len(sortedValues) == 0 || n <= 0 {
		return nil
	}
	min := sortedValues[0]
	max := sortedValues[len(sortedValues)-1]

	bins := make([]HistogramBin, n)
	width := (max - min) / float64(n)
	if width == 0 {
		// All values identical: put them all in one bin, centered on the
		// shared value, and leave the rest empty but present.
		for i := range bins {
			bins[i].Midpoint = min
		}
		bins[0].Count = len(sortedValues)
		return bins
	}

	for i := range bins {
		bins[i].Midpoint = min + width*(float64(i)+0.5)
	}
	for _, v := range sortedValues {
		idx := int((v - min) / width)
		if idx >= n {
			idx = n - 1
		}
		if idx < 0 {
			idx = 0
		}
		bins[idx].Count++
	}
	return bins
}

// PValueAnalog returns an approximate two-sided p-value for the hypothesis
// that baseline and current have the same median, estimated as the
// fraction of bootstrap percentage-differences whose sign disagrees with
// the observed difference, doubled. It is not a classical bootstrap
// hypothesis test p-value; it exists to satisfy the "4x spread -> p-value
// analog << 0.01" and "identical samples -> p-value > 0.5" testable
// properties without introducing a second statistical framework.
func PValueAnalog(baseline, current []float64, opts Options) float64 {
	opts = opts.withDefaults()
	observed, ok := percentDiff(baseline, current)
	if !ok {
		return 1
	}

	rng := stats.NewLCG(opts.Seed)
	var disagree int
	total := opts.Resamples
	for i := 0; i < total; i++ {
		rb := stats.Resample(baseline, rng)
		rc := stats.Resample(current, rng)
		d, ok := percentDiff(rb, rc)
		if !ok {
			continue
		}
		if math.Signbit(d) != math.Signbit(observed) || d == 0 {
			disagree++
		}
	}
	p := 2 * float64(disagree) / float64(total)
	if p > 1 {
		p = 1
	}
	return p
}
