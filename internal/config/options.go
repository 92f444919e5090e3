// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the tunables and data-model types consumed by the
// collector, adaptive controller, worker orchestrator, and matrix runner:
// RunnerOptions, BenchmarkSpec, BenchGroup, and BenchMatrix.
package config

import (
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/benchforge/benchforge/internal/bencherr"
)

// RunnerOptions holds every tunable consumed by the collector.
//
// Description:
//
//	Built with the functional-options pattern over DefaultRunnerOptions:
//	opts := config.DefaultRunnerOptions(config.WithMaxTimeMS(500), config.WithAdaptive(95, 0))
type RunnerOptions struct {
	MaxTimeMS      int64 `validate:"omitempty,min=0"`
	MaxIterations  int   `validate:"omitempty,min=0"`
	WarmupIterations int `validate:"min=0"`
	SkipWarmup     bool
	SkipSettle     bool
	Collect        bool // force GC after each iteration

	PauseFirst      int // 0 means unset
	PauseInterval   int
	PauseDurationMS int64

	TraceOpt bool
	GCStats  bool

	Adaptive         bool
	MinTimeMS        int64
	TargetConfidence float64 `validate:"gte=0,lte=100"`
}

// Option mutates a RunnerOptions during construction.
type Option func(*RunnerOptions)

// DefaultRunnerOptions returns RunnerOptions with the stated package
// defaults, then applies opts in order.
func DefaultRunnerOptions(opts ...Option) RunnerOptions {
	o := RunnerOptions{
		WarmupIterations: 3,
		TargetConfidence: 95,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithMaxTimeMS(ms int64) Option         { return func(o *RunnerOptions) { o.MaxTimeMS = ms } }
func WithMaxIterations(n int) Option        { return func(o *RunnerOptions) { o.MaxIterations = n } }
func WithWarmupIterations(n int) Option     { return func(o *RunnerOptions) { o.WarmupIterations = n } }
func WithSkipWarmup(skip bool) Option       { return func(o *RunnerOptions) { o.SkipWarmup = skip } }
func WithSkipSettle(skip bool) Option       { return func(o *RunnerOptions) { o.SkipSettle = skip } }
func WithCollect(collect bool) Option       { return func(o *RunnerOptions) { o.Collect = collect } }
func WithTraceOpt(trace bool) Option        { return func(o *RunnerOptions) { o.TraceOpt = trace } }
func WithGCStats(enabled bool) Option       { return func(o *RunnerOptions) { o.GCStats = enabled } }

// WithPauseSchedule injects a scheduled pause at iteration `first`, then
// every `interval` iterations (interval == 0 means "only at first"), for
// `durationMS` milliseconds each time.
func WithPauseSchedule(first, interval int, durationMS int64) Option {
	return func(o *RunnerOptions) {
		o.PauseFirst = first
		o.PauseInterval = interval
		o.PauseDurationMS = durationMS
	}
}

// WithAdaptive enables the adaptive controller with the given target
// confidence (0-100) and, optionally, a minimum elapsed time before the
// fallback-confidence stop rule may fire.
func WithAdaptive(targetConfidence float64, minTimeMS int64) Option {
	return func(o *RunnerOptions) {
		o.Adaptive = true
		o.TargetConfidence = targetConfidence
		o.MinTimeMS = minTimeMS
	}
}

var validate = validator.New()

// Validate enforces ConfigInvalid conditions: at least one of MaxTimeMS or
// MaxIterations must be set, and struct-tag constraints (warmup >= 0,
// confidence in [0,100]) must hold.
func (o RunnerOptions) Validate() error {
	if o.MaxTimeMS <= 0 && o.MaxIterations <= 0 {
		return bencherr.NewConfigError("at least one of max_time_ms or max_iterations must be set")
	}
	if err := validate.Struct(o); err != nil {
		return bencherr.NewConfigError("runner options: %v", err)
	}
	return nil
}

// ShouldPause reports whether iteration should trigger a scheduled pause,
// per the spec's precise rule: trigger at iteration == PauseFirst (if
// PauseFirst > 0), and additionally whenever iteration >= PauseFirst and
// (iteration - PauseFirst) mod PauseInterval == 0 with PauseInterval > 0.
//
// When PauseFirst is set but PauseInterval == 0, exactly one pause fires,
// at PauseFirst (Design Note / Open Question 2).
func (o RunnerOptions) ShouldPause(iteration int) bool {
	if o.PauseFirst <= 0 && o.PauseInterval <= 0 {
		return false
	}
	if iteration == o.PauseFirst {
		return true
	}
	if o.PauseInterval <= 0 {
		return false
	}
	if iteration < o.PauseFirst {
		return false
	}
	return (iteration-o.PauseFirst)%o.PauseInterval == 0
}

// EstimatedCapacity returns the pre-allocation size for sample arrays:
// max(MaxIterations, ceil(MaxTimeMS / 0.1)).
func (o RunnerOptions) EstimatedCapacity() int {
	byTime := 0
	if o.MaxTimeMS > 0 {
		byTime = int(math.Ceil(float64(o.MaxTimeMS) / 0.1))
	}
	if o.MaxIterations > byTime {
		return o.MaxIterations
	}
	if byTime == 0 {
		return 1024 // no time bound either; a sane floor, grows via append past it
	}
	return byTime
}
