// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/benchforge/benchforge/internal/bencherr"
)

// BenchFunc is an in-process callable: a setup-produced (or nil) state
// value in, an error out. Benchmarks that need per-iteration state build
// it once via Setup and pass it through the closure.
type BenchFunc func(state any) error

// SetupFunc produces the state value threaded into each BenchFunc
// invocation. Benchmarks that are stateless leave Setup nil.
type SetupFunc func() (any, error)

// BenchmarkSpec is a named unit of measurable work.
//
// Invariant: exactly one of Callable or (ModulePath, ExportName) is set.
// The in-process path (Callable) is used by inline matrix variants and
// ad hoc single-benchmark runs; the descriptor path is used whenever the
// worker needs to re-resolve the callable inside an isolated child
// process (internal/benchfn.Register/Lookup implements the re-resolution).
type BenchmarkSpec struct {
	Name  string `yaml:"name"`
	Param any    `yaml:"param,omitempty"`

	Callable BenchFunc `yaml:"-"`
	Setup    SetupFunc `yaml:"-"`

	ModulePath      string `yaml:"module_path,omitempty"`
	ExportName      string `yaml:"export_name,omitempty"`
	SetupExportName string `yaml:"setup_export_name,omitempty"`
}

// Validate enforces the Callable XOR (ModulePath, ExportName) invariant.
func (s BenchmarkSpec) Validate() error {
	if s.Name == "" {
		return bencherr.NewConfigError("benchmark spec: name must not be empty")
	}
	hasCallable := s.Callable != nil
	hasDescriptor := s.ModulePath != "" || s.ExportName != ""
	switch {
	case hasCallable && hasDescriptor:
		return bencherr.NewConfigError("benchmark %q: exactly one of callable or (module_path, export_name) may be set, not both", s.Name)
	case !hasCallable && !hasDescriptor:
		return bencherr.NewConfigError("benchmark %q: exactly one of callable or (module_path, export_name) must be set", s.Name)
	case hasDescriptor && (s.ModulePath == "" || s.ExportName == ""):
		return bencherr.NewConfigError("benchmark %q: module_path and export_name must both be set", s.Name)
	}
	return nil
}

// IsInline reports whether this spec runs via an in-process Callable
// rather than a worker-resolved descriptor.
func (s BenchmarkSpec) IsInline() bool { return s.Callable != nil }

// BenchGroup is an ordered list of BenchmarkSpecs that share a single
// setup step and an optional baseline compared against every member.
type BenchGroup struct {
	Name     string            `yaml:"name"`
	Setup    SetupFunc         `yaml:"-"`
	Baseline *BenchmarkSpec    `yaml:"baseline,omitempty"`
	Members  []BenchmarkSpec   `yaml:"members"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// Validate checks every member spec and rejects an empty group.
func (g BenchGroup) Validate() error {
	if len(g.Members) == 0 {
		return bencherr.NewConfigError("group %q: must contain at least one benchmark", g.Name)
	}
	if g.Baseline != nil {
		if err := g.Baseline.Validate(); err != nil {
			return err
		}
	}
	for _, m := range g.Members {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Variant is one axis of a BenchMatrix: the code under test. Exactly one
// of Callable or VariantDir is set, mirroring BenchmarkSpec's union.
type Variant struct {
	Name       string `yaml:"name"`
	Callable   BenchFunc `yaml:"-"`
	VariantDir string    `yaml:"variant_dir,omitempty"`
}

// Case is the other axis: the input a variant runs against. Exactly one
// of Data or CasesModule is set.
type Case struct {
	ID          string `yaml:"id"`
	Data        any    `yaml:"data,omitempty"`
	CasesModule string `yaml:"cases_module,omitempty"`
}

// BenchMatrix is a named variants x cases cross product.
//
// Invariant: BaselineDir and BaselineVariant are never both set.
type BenchMatrix struct {
	Name     string    `yaml:"name"`
	Variants []Variant `yaml:"variants"`
	Cases    []Case    `yaml:"cases"`

	BaselineDir     string `yaml:"baseline_dir,omitempty"`
	BaselineVariant string `yaml:"baseline_variant,omitempty"`

	FilteredCases    []string `yaml:"filtered_cases,omitempty"`
	FilteredVariants []string `yaml:"filtered_variants,omitempty"`
}

// Validate enforces the BaselineDir/BaselineVariant XOR and the
// inline-variants-incompatible-with-baseline_dir rule (§4.6).
func (m BenchMatrix) Validate() error {
	if m.BaselineDir != "" && m.BaselineVariant != "" {
		return bencherr.NewConfigError("matrix %q: baseline_dir and baseline_variant are mutually exclusive", m.Name)
	}
	if len(m.Variants) == 0 {
		return bencherr.NewConfigError("matrix %q: must declare at least one variant", m.Name)
	}
	if len(m.Cases) == 0 {
		return bencherr.NewConfigError("matrix %q: must declare at least one case", m.Name)
	}
	if m.BaselineDir != "" {
		for _, v := range m.Variants {
			if v.Callable != nil {
				return bencherr.NewConfigError("matrix %q: variant %q is inline; baseline_dir requires re-resolvable module variants", m.Name, v.Name)
			}
		}
	}
	return nil
}

// LoadBenchGroupYAML reads a BenchGroup definition from a YAML suite file.
// Members and the optional baseline must use the descriptor form
// (module_path/export_name): a group loaded from YAML can never carry an
// in-process Callable, matching LoadBenchMatrixYAML's variant constraint.
func LoadBenchGroupYAML(path string) (*BenchGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bencherr.NewConfigError("reading group file %q: %v", path, err)
	}
	var g BenchGroup
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, bencherr.NewConfigError("parsing group file %q: %v", path, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// HasBaselineDir reports whether per-variant baseline modules are configured.
func (m BenchMatrix) HasBaselineDir() bool { return m.BaselineDir != "" }

// HasBaselineVariant reports whether one variant serves as the reference
// for the others.
func (m BenchMatrix) HasBaselineVariant() bool { return m.BaselineVariant != "" }

// LoadBenchMatrixYAML reads a BenchMatrix definition from a YAML suite
// file. The CLI argument parser that decides which file to load is out
// of scope (§1); this is the loader it is expected to call.
func LoadBenchMatrixYAML(path string) (*BenchMatrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bencherr.NewConfigError("reading matrix file %q: %v", path, err)
	}
	var m BenchMatrix
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, bencherr.NewConfigError("parsing matrix file %q: %v", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
