// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bencherr defines the harness-wide error taxonomy. Every error a
// caller can meaningfully branch on is a sentinel here; call sites wrap it
// with fmt.Errorf("...: %w", err) so errors.Is still matches after the
// detail is attached.
package bencherr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigInvalid signals conflicting or incomplete RunnerOptions/BenchMatrix
	// configuration. Fail fast, no work performed.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrEmptySamples signals the measurement loop produced zero samples.
	ErrEmptySamples = errors.New("empty samples")

	// ErrBenchmarkFailed signals the user callable raised inside the worker.
	ErrBenchmarkFailed = errors.New("benchmark failed")

	// ErrBenchmarkTimeout signals no worker reply arrived within the hard 60s limit.
	ErrBenchmarkTimeout = errors.New("benchmark timeout")

	// ErrWorkerCrashed signals the child exited non-zero before sending a result.
	ErrWorkerCrashed = errors.New("worker crashed")

	// ErrFilterNoMatch signals a filter matched no benchmarks/cases/variants.
	ErrFilterNoMatch = errors.New("filter matched nothing")
)

// ConfigError carries the detail behind ErrConfigInvalid.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }
func (e *ConfigError) Unwrap() error { return ErrConfigInvalid }

// NewConfigError wraps a reason as a ConfigError satisfying errors.Is(err, ErrConfigInvalid).
func NewConfigError(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// TimeoutError carries the detail behind ErrBenchmarkTimeout.
type TimeoutError struct {
	Name string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("benchmark %q: no reply within 60s", e.Name)
}
func (e *TimeoutError) Unwrap() error { return ErrBenchmarkTimeout }

// CrashError carries the detail behind ErrWorkerCrashed: exit code and a
// bounded tail of the child's stderr.
type CrashError struct {
	Name     string
	ExitCode int
	Stderr   string
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("benchmark %q: worker exited %d: %s", e.Name, e.ExitCode, e.Stderr)
}
func (e *CrashError) Unwrap() error { return ErrWorkerCrashed }

// FailedError carries the detail behind ErrBenchmarkFailed: the in-worker
// callable's message and, if available, its stack trace.
type FailedError struct {
	Name    string
	Message string
	Stack   string
}

func (e *FailedError) Error() string {
	if e.Stack == "" {
		return fmt.Sprintf("benchmark %q: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("benchmark %q: %s\n%s", e.Name, e.Message, e.Stack)
}
func (e *FailedError) Unwrap() error { return ErrBenchmarkFailed }

// EmptySamplesError carries the benchmark name behind ErrEmptySamples.
type EmptySamplesError struct {
	Name string
}

func (e *EmptySamplesError) Error() string {
	return fmt.Sprintf("benchmark %q: produced zero samples", e.Name)
}
func (e *EmptySamplesError) Unwrap() error { return ErrEmptySamples }
