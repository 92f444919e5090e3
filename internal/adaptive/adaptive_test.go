// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package adaptive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchforge/benchforge/internal/config"
)

func TestWindowSize_FewerThan20Samples_Defaults50(t *testing.T) {
	assert.Equal(t, 50, windowSize(make([]float64, 19)))
}

func TestWindowSize_BucketsByMedianMicroseconds(t *testing.T) {
	// samples are in ms; table thresholds are in us, so 0.005ms = 5us.
	sub10us := repeat(0.005, 20)
	assert.Equal(t, 200, windowSize(sub10us))

	sub1ms := repeat(0.5, 20)
	assert.Equal(t, 50, windowSize(sub1ms))

	ge10ms := repeat(15, 20)
	assert.Equal(t, 20, windowSize(ge10ms))
}

func TestCheckConvergence_InsufficientSamples_ReportsProgress(t *testing.T) {
	samples := repeat(15, 10) // fewer than 20 samples: window defaults to 50; need 100 total
	conv := checkConvergence(samples)
	assert.False(t, conv.Converged)
	assert.Contains(t, conv.Reason, "Collecting samples")
}

func TestCheckConvergence_StableSamples_Converges(t *testing.T) {
	samples := repeat(15, 60)
	conv := checkConvergence(samples)
	assert.True(t, conv.Converged)
	assert.Equal(t, 100.0, conv.Confidence)
	assert.Equal(t, "Stable performance pattern", conv.Reason)
}

func TestCheckConvergence_DriftingMedian_DoesNotConverge(t *testing.T) {
	samples := append(repeat(15, 40), repeat(30, 20)...)
	conv := checkConvergence(samples)
	assert.False(t, conv.Converged)
	assert.Less(t, conv.Confidence, 100.0)
}

func TestRun_ConvergesWithinMaxTime(t *testing.T) {
	spec := config.BenchmarkSpec{
		Name:     "stable",
		Callable: func(any) error { return nil },
	}
	opts := config.DefaultRunnerOptions(
		config.WithAdaptive(95, 0),
		config.WithMaxTimeMS(5000),
		config.WithWarmupIterations(1),
		config.WithSkipSettle(true),
	)

	mr, err := New(nil, nil, nil).Run(context.Background(), spec, opts)
	require.NoError(t, err)
	require.NotNil(t, mr.Convergence)
	assert.NotEmpty(t, mr.Samples)
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
