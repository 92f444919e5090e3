// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile_SingleElement(t *testing.T) {
	sorted := []float64{42}
	for _, p := range []float64{0, 0.5, 0.99, 1} {
		assert.Equal(t, 42.0, Percentile(sorted, p))
	}
}

func TestPercentile_NearestRank(t *testing.T) {
	// n=10: p50 -> ceil(5)-1 = 4 -> values[4]
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, 5.0, Percentile(sorted, 0.5))
	assert.Equal(t, 10.0, Percentile(sorted, 1.0))
	assert.Equal(t, 1.0, Percentile(sorted, 0.0))
}

func TestPercentile_Monotonic(t *testing.T) {
	sorted := Sorted([]float64{9, 1, 7, 3, 5, 2, 8, 4, 6, 0})
	prev := Percentile(sorted, 0.0)
	for _, p := range []float64{0.25, 0.5, 0.75, 0.95, 0.99, 1.0} {
		cur := Percentile(sorted, p)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestStdDev_BesselCorrected(t *testing.T) {
	assert.Equal(t, 0.0, StdDev(nil))
	assert.Equal(t, 0.0, StdDev([]float64{5}))
	// {2,4,6}: mean=4, variance = ((4+0+4))/2 = 4, stddev=2
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 6}), 1e-9)
}

func TestCoefficientOfVariation_ZeroMean(t *testing.T) {
	assert.Equal(t, 0.0, CoefficientOfVariation([]float64{0, 0, 0}))
}

func TestMAD(t *testing.T) {
	// median of {1,2,3,4,5} is 3; deviations {2,1,0,1,2} -> sorted {0,1,1,2,2} -> median 1
	assert.Equal(t, 1.0, MAD([]float64{1, 2, 3, 4, 5}))
}

func TestOutliers_RateInRange(t *testing.T) {
	samples := []float64{1, 2, 2, 3, 3, 3, 4, 4, 5, 100}
	rate, indices := Outliers(samples)
	require.GreaterOrEqual(t, rate, 0.0)
	require.LessOrEqual(t, rate, 1.0)
	assert.Contains(t, indices, 9) // the 100 is at index 9
}

func TestOutliers_EmptyAndSingle(t *testing.T) {
	rate, indices := Outliers(nil)
	assert.Equal(t, 0.0, rate)
	assert.Nil(t, indices)

	rate, indices = Outliers([]float64{5})
	assert.Equal(t, 0.0, rate)
	assert.Nil(t, indices)
}

func TestOutlierImpact_WeightsLargerOutlierMore(t *testing.T) {
	base := make([]float64, 0, 11)
	for i := 0; i < 10; i++ {
		base = append(base, 10)
	}
	tenX := append(append([]float64{}, base...), 100)
	oneTenth := append(append([]float64{}, base...), 11)

	assert.Greater(t, OutlierImpact(tenX), OutlierImpact(oneTenth))
}

func TestResample_SameLengthSameElements(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5}
	rng := NewLCG(42)
	resampled := Resample(samples, rng)
	require.Len(t, resampled, len(samples))
	set := make(map[float64]bool, len(samples))
	for _, v := range samples {
		set[v] = true
	}
	for _, v := range resampled {
		assert.True(t, set[v])
	}
}

func TestLCG_Deterministic(t *testing.T) {
	a := NewLCG(7)
	b := NewLCG(7)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}
