// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(start, end float64) []float64 {
	out := make([]float64, 0, int(end-start)+1)
	for v := start; v <= end; v++ {
		out = append(out, v)
	}
	return out
}

func scale(samples []float64, factor float64) []float64 {
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = v * factor
	}
	return out
}

func TestCompare_20PercentSpeedup(t *testing.T) {
	baseline := sequence(50, 149)
	current := scale(baseline, 0.8)

	ci := Compare(baseline, current, Options{Seed: 1})
	assert.InDelta(t, -20, ci.Percent, 1)
	assert.Less(t, ci.Upper, 0.0)
	assert.Equal(t, Faster, ci.Direction)
}

func TestCompare_30PercentRegression(t *testing.T) {
	baseline := sequence(100, 199)
	current := scale(baseline, 1.3)

	ci := Compare(baseline, current, Options{Seed: 2})
	assert.InDelta(t, 30, ci.Percent, 1)
	assert.Greater(t, ci.Lower, 0.0)
	assert.Equal(t, Slower, ci.Direction)
}

func TestCompare_SingleValueVsIdenticalVector(t *testing.T) {
	baseline := []float64{50}
	current := []float64{50, 50, 50, 50, 50}

	ci := Compare(baseline, current, Options{Seed: 3})
	assert.Equal(t, 0.0, ci.Percent)
	assert.Equal(t, Uncertain, ci.Direction)
}

func TestCompare_ZeroMedianBaseline(t *testing.T) {
	baseline := []float64{0, 0, 0}
	current := []float64{10, 20, 30}

	ci := Compare(baseline, current, Options{Seed: 4})
	assert.Equal(t, 0.0, ci.Percent)
	assert.Equal(t, 0.0, ci.Lower)
	assert.Equal(t, 0.0, ci.Upper)
	assert.Equal(t, Uncertain, ci.Direction)
	assert.Nil(t, ci.Histogram)
}

func TestCompare_IdenticalDistributions_Uncertain(t *testing.T) {
	baseline := sequence(200, 299)
	current := sequence(200, 299)

	ci := Compare(baseline, current, Options{Seed: 5})
	assert.InDelta(t, 0, ci.Percent, 0.01)
	assert.LessOrEqual(t, ci.Lower, 0.0)
	assert.GreaterOrEqual(t, ci.Upper, 0.0)
	assert.Equal(t, Uncertain, ci.Direction)
}

func TestCompare_HistogramHas30BinsByDefault(t *testing.T) {
	baseline := sequence(1, 100)
	current := scale(baseline, 1.1)

	ci := Compare(baseline, current, Options{Seed: 6})
	require.Len(t, ci.Histogram, 30)
	var total int
	for _, bin := range ci.Histogram {
		total += bin.Count
	}
	assert.Equal(t, 10_000, total)
}

func TestCompare_FourXSpread_StrongSignal(t *testing.T) {
	base := sequence(1, 200)
	fast := scale(base, 0.5)
	slow := scale(base, 2)

	ci := Compare(fast, slow, Options{Seed: 7})
	assert.Greater(t, ci.Lower, 0.0)
	p := PValueAnalog(fast, slow, Options{Seed: 8})
	assert.Less(t, p, 0.01)
}

func TestPValueAnalog_IdenticalSamples_GreaterThanHalf(t *testing.T) {
	baseline := sequence(10, 50)
	current := sequence(10, 50)
	p := PValueAnalog(baseline, current, Options{Seed: 9})
	assert.Greater(t, p, 0.5)
}

func TestCompare_CIContainsPercentUpToResampleNoise(t *testing.T) {
	baseline := sequence(50, 250)
	current := scale(baseline, 1.05)
	ci := Compare(baseline, current, Options{Seed: 10})
	// observed sits inside, or very near, the resample CI
	assert.True(t, ci.Lower-1 <= ci.Percent && ci.Percent <= ci.Upper+1)
}

// Open Question 1 (preserved, not "fixed"): swapping baseline and current
// does not exactly flip direction/percent when variances differ, because
// the percentage expression's denominator changes between orderings.
func TestCompare_AsymmetryIsPreserved(t *testing.T) {
	narrow := []float64{95, 100, 100, 100, 105}
	wide := []float64{60, 90, 120, 150, 300}

	forward := Compare(narrow, wide, Options{Seed: 11})
	backward := Compare(wide, narrow, Options{Seed: 11})

	// Not asserting exact negation - only that swapping is not a pure sign
	// flip, because the denominator (the new baseline's median) changes
	// between the two orderings.
	assert.NotEqual(t, -forward.Percent, backward.Percent)
}
