// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats provides the primitive statistics used throughout the
// harness: percentiles, dispersion, outlier detection, and resampling.
//
// Description:
//
//	Every function here operates on a slice of float64 samples (milliseconds
//	for timing data, but the functions are unit-agnostic). None of them
//	mutate the input slice; Sorted returns a sorted copy.
//
// Thread Safety: All functions are pure and safe for concurrent use.
package stats

import (
	"math"
	"sort"
)

// Sorted returns a sorted copy of samples, leaving the input untouched.
func Sorted(samples []float64) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)
	sort.Float64s(out)
	return out
}

// Percentile returns the nearest-rank percentile of sorted values for
// p in [0,1].
//
// Description:
//
//	Index = max(0, ceil(n*p) - 1). Callers must pass an already-sorted
//	slice; this function does not sort defensively so that repeated calls
//	over the same data (e.g. computing p50, p75, p99 in one pass) don't
//	each pay an O(n log n) sort.
//
// Inputs:
//   - sorted: ascending-order samples. Must be non-empty.
//   - p: percentile in [0, 1].
//
// Outputs:
//   - float64: the value at the computed rank.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(n)*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// Median returns Percentile(sorted, 0.5).
func Median(sorted []float64) float64 {
	return Percentile(sorted, 0.5)
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// StdDev returns the Bessel-corrected (n-1) sample standard deviation.
// Returns 0 for n <= 1.
func StdDev(samples []float64) float64 {
	n := len(samples)
	if n <= 1 {
		return 0
	}
	mean := Mean(samples)
	var sumSq float64
	for _, v := range samples {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// CoefficientOfVariation returns stddev/mean, or 0 if mean is 0.
func CoefficientOfVariation(samples []float64) float64 {
	mean := Mean(samples)
	if mean == 0 {
		return 0
	}
	return StdDev(samples) / mean
}

// MAD returns the median absolute deviation: median(|x - median(x)|).
//
// Inputs:
//   - samples: need not be sorted; MAD sorts internally (twice: once for
//     the median, once for the median of deviations).
func MAD(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := Sorted(samples)
	med := Median(sorted)
	deviations := make([]float64, len(samples))
	for i, v := range samples {
		deviations[i] = math.Abs(v - med)
	}
	sort.Float64s(deviations)
	return Median(deviations)
}

// Quartiles returns (q1, q3) using the same nearest-rank Percentile rule.
func Quartiles(sorted []float64) (q1, q3 float64) {
	return Percentile(sorted, 0.25), Percentile(sorted, 0.75)
}

// Outliers applies Tukey's fence (1.5x IQR) and returns the fraction of
// samples outside [Q1-1.5*IQR, Q3+1.5*IQR] along with their indices into
// the *original, unsorted* samples slice.
//
// Outputs:
//   - rate: outliers / len(samples), in [0, 1]. 0 for an empty or
//     single-element input (IQR is 0, so nothing can fall outside it).
//   - indices: positions in samples (not sorted order) that are outliers,
//     in ascending index order.
func Outliers(samples []float64) (rate float64, indices []int) {
	n := len(samples)
	if n == 0 {
		return 0, nil
	}
	sorted := Sorted(samples)
	q1, q3 := Quartiles(sorted)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	for i, v := range samples {
		if v < lower || v > upper {
			indices = append(indices, i)
		}
	}
	return float64(len(indices)) / float64(n), indices
}

// OutlierImpact is the fraction of total measured time attributable to
// samples beyond Tukey's upper fence, weighting by time cost rather than
// count: one 10x outlier matters more than ten 1.1x outliers.
//
// Description:
//
//	med = median(samples), q75 = Percentile(samples, 0.75),
//	threshold = med + 1.5*(q75 - med). For every sample s > threshold,
//	accumulate s - med into excess. impact = excess / total if total > 0,
//	else 0.
func OutlierImpact(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := Sorted(samples)
	med := Median(sorted)
	q75 := Percentile(sorted, 0.75)
	threshold := med + 1.5*(q75-med)

	var excess, total float64
	for _, v := range samples {
		total += v
		if v > threshold {
			excess += v - med
		}
	}
	if total == 0 {
		return 0
	}
	return excess / total
}

// LCG is a deterministic linear-congruential generator used wherever the
// harness needs reproducible pseudo-randomness (bootstrap resampling,
// seeded end-to-end tests). It is not cryptographically secure and is not
// meant to be: reproducibility, not unpredictability, is the point.
type LCG struct {
	state uint64
}

// NewLCG returns an LCG seeded with the given value. A seed of 0 is valid
// and deterministic like any other.
func NewLCG(seed uint64) *LCG {
	return &LCG{state: seed}
}

// Next advances the generator and returns the next raw 64-bit value.
func (g *LCG) Next() uint64 {
	g.state = g.state*6364136223846793005 + 1442695040888963407
	return g.state
}

// Intn returns a pseudo-random integer in [0, n). Panics if n <= 0.
func (g *LCG) Intn(n int) int {
	if n <= 0 {
		panic("stats: Intn called with n <= 0")
	}
	return int(g.Next() % uint64(n))
}

// Resample draws len(samples) values uniformly at random, with
// replacement, from samples using rng.
func Resample(samples []float64, rng *LCG) []float64 {
	n := len(samples)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = samples[rng.Intn(n)]
	}
	return out
}
