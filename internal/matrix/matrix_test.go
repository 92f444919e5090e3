// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matrix

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchforge/benchforge/internal/bencherr"
	"github.com/benchforge/benchforge/internal/config"
)

func inlineMatrix() config.BenchMatrix {
	return config.BenchMatrix{
		Name: "m",
		Variants: []config.Variant{
			{Name: "fast", Callable: func(any) error { return nil }},
			{Name: "slow", Callable: func(any) error { return nil }},
		},
		Cases: []config.Case{
			{ID: "small", Data: 1},
			{ID: "large", Data: 1000},
		},
	}
}

func TestRun_InlineVariants_ProducesFullCrossProduct(t *testing.T) {
	m := inlineMatrix()
	opts := config.DefaultRunnerOptions(config.WithMaxIterations(5))

	cells, err := New(nil, nil, nil).Run(context.Background(), m, opts, "")
	require.NoError(t, err)
	assert.Len(t, cells, 4) // 2 variants x 2 cases
}

func TestRun_FilterMatchingNothing_IsHardError(t *testing.T) {
	m := inlineMatrix()
	opts := config.DefaultRunnerOptions(config.WithMaxIterations(5))

	_, err := New(nil, nil, nil).Run(context.Background(), m, opts, "nonexistent-case")
	require.Error(t, err)
	assert.True(t, errors.Is(err, bencherr.ErrFilterNoMatch))
}

func TestRun_FilterBySubstring_NarrowsToMatchingVariant(t *testing.T) {
	m := inlineMatrix()
	opts := config.DefaultRunnerOptions(config.WithMaxIterations(5))

	cells, err := New(nil, nil, nil).Run(context.Background(), m, opts, "/fast")
	require.NoError(t, err)
	assert.Len(t, cells, 2) // 1 variant x 2 cases
	for _, c := range cells {
		assert.Equal(t, "fast", c.VariantName)
	}
}

func TestRun_BaselineVariant_AttachesDeltaToNonBaselineCells(t *testing.T) {
	m := inlineMatrix()
	m.BaselineVariant = "fast"
	opts := config.DefaultRunnerOptions(config.WithMaxIterations(5))

	cells, err := New(nil, nil, nil).Run(context.Background(), m, opts, "")
	require.NoError(t, err)

	for _, c := range cells {
		if c.VariantName == "fast" {
			assert.False(t, c.HasBaseline)
		} else {
			assert.True(t, c.HasBaseline)
		}
	}
}

func TestDeltaPercent_ZeroBaselineAverage_ReturnsZero(t *testing.T) {
	assert.Zero(t, deltaPercent(100, 0))
}

func TestDeltaPercent_ComputesPercentageChange(t *testing.T) {
	assert.InDelta(t, 20.0, deltaPercent(120, 100), 0.0001)
	assert.InDelta(t, -20.0, deltaPercent(80, 100), 0.0001)
}

func TestSplitFilter_BothHalvesOptional(t *testing.T) {
	c, v := splitFilter("")
	assert.Empty(t, c)
	assert.Empty(t, v)

	c, v = splitFilter("mycase")
	assert.Equal(t, "mycase", c)
	assert.Empty(t, v)

	c, v = splitFilter("mycase/myvariant")
	assert.Equal(t, "mycase", c)
	assert.Equal(t, "myvariant", v)
}

func TestValidate_BaselineDirWithInlineVariant_IsRejectedBeforeRun(t *testing.T) {
	m := inlineMatrix()
	m.BaselineDir = "/tmp/baselines"

	err := m.Validate()
	require.Error(t, err)
}
