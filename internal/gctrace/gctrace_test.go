// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gctrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_V8ScavengeExample(t *testing.T) {
	line := `[71753:0x83280c000:0] 9 ms: pause=0.5 mutator=0.1 gc=s allocated=293224 promoted=653480 new_space_survived=290176 start_object_size=4392688 end_object_size=4287840`

	ev, ok := ParseLine(line)
	require.True(t, ok)
	assert.Equal(t, Scavenge, ev.Type)
	assert.Equal(t, 0.5, ev.PauseMS)
	assert.Equal(t, int64(293224), ev.Allocated)
	assert.Equal(t, int64(653480), ev.Promoted)
	assert.Equal(t, int64(290176), ev.Survived)
	assert.Equal(t, int64(4392688-4287840), ev.Collected)
	assert.True(t, ev.HasAllocatedInfo)
}

func TestParseLine_MissingPause_NoEvent(t *testing.T) {
	_, ok := ParseLine("gc=s allocated=1 promoted=2")
	assert.False(t, ok)
}

func TestParseLine_UnrecognizedGCCode_NoEvent(t *testing.T) {
	_, ok := ParseLine("pause=1.0 gc=weird")
	assert.False(t, ok)
}

func TestParseLine_MalformedPause_NoEvent(t *testing.T) {
	_, ok := ParseLine("pause=notanumber gc=s")
	assert.False(t, ok)
}

func TestParseLine_MarkCompactVariants(t *testing.T) {
	for _, code := range []string{"mc", "ms", "mark-compact"} {
		ev, ok := ParseLine("pause=1.0 gc=" + code)
		require.True(t, ok)
		assert.Equal(t, MarkCompact, ev.Type)
	}
}

func TestParseLine_MinorMSVariants(t *testing.T) {
	for _, code := range []string{"mmc", "minor-mc", "minor-ms"} {
		ev, ok := ParseLine("pause=1.0 gc=" + code)
		require.True(t, ok)
		assert.Equal(t, MinorMS, ev.Type)
	}
}

func TestParseLine_SurvivedFallback(t *testing.T) {
	ev, ok := ParseLine("pause=1.0 gc=s survived=500")
	require.True(t, ok)
	assert.Equal(t, int64(500), ev.Survived)
}

func TestParseLine_MissingFieldsDefaultToZero(t *testing.T) {
	ev, ok := ParseLine("pause=1.0 gc=s")
	require.True(t, ok)
	assert.Equal(t, int64(0), ev.Allocated)
	assert.False(t, ev.HasAllocatedInfo)
}

func TestAggregateEvents_Empty(t *testing.T) {
	agg := AggregateEvents(nil)
	assert.Equal(t, Aggregate{}, agg)
}

func TestAggregateEvents_SingleEvent(t *testing.T) {
	ev, ok := ParseLine("pause=2.5 gc=s start_object_size=100 end_object_size=40")
	require.True(t, ok)

	agg := AggregateEvents([]Event{ev})
	assert.Equal(t, 1, agg.Scavenges)
	assert.Equal(t, 0, agg.MarkCompacts)
	assert.Equal(t, int64(60), agg.TotalCollected)
	assert.Equal(t, 2.5, agg.GCPauseTimeMS)
}

func TestAggregateEvents_AllocationTrioPresentIffAnyEventHasIt(t *testing.T) {
	withAlloc, _ := ParseLine("pause=1.0 gc=s allocated=10")
	withoutAlloc, _ := ParseLine("pause=1.0 gc=mc")

	agg := AggregateEvents([]Event{withoutAlloc, withAlloc})
	assert.True(t, agg.HasAllocationInfo)
	assert.Equal(t, int64(10), agg.TotalAllocated)

	agg2 := AggregateEvents([]Event{withoutAlloc})
	assert.False(t, agg2.HasAllocationInfo)
}

func TestParseLine_NonMatchingLineIsNotAnEvent(t *testing.T) {
	_, ok := ParseLine("this is just a regular log line")
	assert.False(t, ok)
}
