// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package result defines MeasuredResults, the canonical record a benchmark
// produces, consumed by reporters and exporters outside this module's scope.
package result

import (
	"fmt"

	"github.com/benchforge/benchforge/internal/gctrace"
	"github.com/benchforge/benchforge/internal/stats"
)

// TimeStats is the {min, max, avg, p25, p50, p75, p95, p99, p999} block.
// P25, P95, CV, MAD, and OutlierRate are only populated when the adaptive
// controller was used (see MeasuredResults.Convergence).
type TimeStats struct {
	Min  float64
	Max  float64
	Avg  float64
	P25  float64
	P50  float64
	P75  float64
	P95  float64
	P99  float64
	P999 float64

	CV          float64
	MAD         float64
	OutlierRate float64
}

// ComputeTimeStats derives the always-present subset of TimeStats from raw
// samples. Callers that ran the adaptive controller additionally populate
// P25, P95, CV, MAD, and OutlierRate via ComputeAdaptiveTimeStats.
func ComputeTimeStats(samples []float64) TimeStats {
	sorted := stats.Sorted(samples)
	return TimeStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Avg:  stats.Mean(samples),
		P50:  stats.Percentile(sorted, 0.5),
		P75:  stats.Percentile(sorted, 0.75),
		P99:  stats.Percentile(sorted, 0.99),
		P999: stats.Percentile(sorted, 0.999),
	}
}

// ComputeAdaptiveTimeStats fills in the fields reported only when the
// adaptive controller ran.
func ComputeAdaptiveTimeStats(samples []float64) TimeStats {
	ts := ComputeTimeStats(samples)
	sorted := stats.Sorted(samples)
	ts.P25 = stats.Percentile(sorted, 0.25)
	ts.P95 = stats.Percentile(sorted, 0.95)
	ts.CV = stats.CoefficientOfVariation(samples)
	ts.MAD = stats.MAD(samples)
	rate, _ := stats.Outliers(samples)
	ts.OutlierRate = rate
	return ts
}

// PausePoint records a scheduled pause's position and duration.
type PausePoint struct {
	SampleIndex int
	DurationMS  float64
}

// Convergence is written once, at the end of the adaptive loop, and never
// mutated thereafter.
type Convergence struct {
	Converged  bool
	Confidence float64
	Reason     string
}

// OptStatus is the per-sample optimization-tier code. Go exposes no public
// tiered-compiler status query, so this is always "unknown"; the field
// exists for MeasuredResults shape parity with reporters that expect it.
type OptStatus string

const OptStatusUnknown OptStatus = "unknown"

// MeasuredResults is the canonical record a benchmark produces.
//
// Invariants:
//   - len(Samples) > 0
//   - Time.Min <= Time.P50 <= Time.P99 <= Time.Max
//   - percentiles are monotonically non-decreasing
//   - every PausePoints[i].SampleIndex < len(Samples)
//   - if Timestamps is non-nil, len(Timestamps) == len(Samples)
type MeasuredResults struct {
	Name    string
	Samples []float64 // milliseconds, insertion order
	Time    TimeStats

	WarmupSamples []float64
	HeapSamples   []uint64 // used-heap bytes, one per sample
	Timestamps    []int64  // wall-clock microseconds, one per sample
	OptSamples    []OptStatus

	PausePoints []PausePoint

	GCStats      *gctrace.Aggregate
	HeapProfile  []byte // opaque; populated by an out-of-scope profiler hook
	Convergence  *Convergence
	TotalTimeS   float64
	HeapGrowthKB float64
}

// Validate checks the invariants from the package doc comment. It is
// called once at the end of sample collection, before a MeasuredResults
// is handed to a reporter.
func (m *MeasuredResults) Validate() error {
	if len(m.Samples) == 0 {
		return fmt.Errorf("measured results %q: samples must not be empty", m.Name)
	}
	if m.Time.Min > m.Time.P50 || m.Time.P50 > m.Time.P99 || m.Time.P99 > m.Time.Max {
		return fmt.Errorf("measured results %q: time stats not monotonic: min=%v p50=%v p99=%v max=%v",
			m.Name, m.Time.Min, m.Time.P50, m.Time.P99, m.Time.Max)
	}
	if m.Timestamps != nil && len(m.Timestamps) != len(m.Samples) {
		return fmt.Errorf("measured results %q: timestamps length %d != samples length %d",
			m.Name, len(m.Timestamps), len(m.Samples))
	}
	for _, p := range m.PausePoints {
		if p.SampleIndex >= len(m.Samples) {
			return fmt.Errorf("measured results %q: pause point index %d out of range (samples=%d)",
				m.Name, p.SampleIndex, len(m.Samples))
		}
	}
	return nil
}

// Merge concatenates n batches' samples in order, shifting each batch's
// PausePoints.SampleIndex by the cumulative sample offset. Used when
// ordering-alternation batching (SYSTEM §5) is enabled. adaptive selects
// which of ComputeTimeStats/ComputeAdaptiveTimeStats recomputes the merged
// record's Time block — it must match whatever populated each batch's own
// Time, or the merged record silently drops the adaptive-only fields.
func Merge(name string, batches []*MeasuredResults, adaptive bool) (*MeasuredResults, error) {
	if len(batches) == 0 {
		return nil, fmt.Errorf("measured results %q: cannot merge zero batches", name)
	}

	merged := &MeasuredResults{Name: name}
	var offset int
	hasTimestamps := true
	hasHeap := true
	hasOpt := true

	for _, b := range batches {
		merged.Samples = append(merged.Samples, b.Samples...)
		merged.WarmupSamples = append(merged.WarmupSamples, b.WarmupSamples...)

		if b.Timestamps == nil {
			hasTimestamps = false
		} else {
			merged.Timestamps = append(merged.Timestamps, b.Timestamps...)
		}
		if b.HeapSamples == nil {
			hasHeap = false
		} else {
			merged.HeapSamples = append(merged.HeapSamples, b.HeapSamples...)
		}
		if b.OptSamples == nil {
			hasOpt = false
		} else {
			merged.OptSamples = append(merged.OptSamples, b.OptSamples...)
		}

		for _, p := range b.PausePoints {
			merged.PausePoints = append(merged.PausePoints, PausePoint{
				SampleIndex: p.SampleIndex + offset,
				DurationMS:  p.DurationMS,
			})
		}

		merged.TotalTimeS += b.TotalTimeS
		offset += len(b.Samples)
	}

	if !hasTimestamps {
		merged.Timestamps = nil
	}
	if !hasHeap {
		merged.HeapSamples = nil
	}
	if !hasOpt {
		merged.OptSamples = nil
	}

	if adaptive {
		merged.Time = ComputeAdaptiveTimeStats(merged.Samples)
	} else {
		merged.Time = ComputeTimeStats(merged.Samples)
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}
