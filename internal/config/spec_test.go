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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBenchmarkSpec_Validate_RejectsBothCallableAndDescriptor(t *testing.T) {
	s := BenchmarkSpec{Name: "x", Callable: func(any) error { return nil }, ModulePath: "m", ExportName: "e"}
	require.Error(t, s.Validate())
}

func TestBenchmarkSpec_Validate_RejectsNeitherCallableNorDescriptor(t *testing.T) {
	s := BenchmarkSpec{Name: "x"}
	require.Error(t, s.Validate())
}

func TestBenchmarkSpec_Validate_RejectsPartialDescriptor(t *testing.T) {
	s := BenchmarkSpec{Name: "x", ModulePath: "m"}
	require.Error(t, s.Validate())
}

func TestBenchmarkSpec_IsInline(t *testing.T) {
	assert.True(t, BenchmarkSpec{Name: "x", Callable: func(any) error { return nil }}.IsInline())
	assert.False(t, BenchmarkSpec{Name: "x", ModulePath: "m", ExportName: "e"}.IsInline())
}

func TestBenchGroup_Validate_RejectsEmptyMembers(t *testing.T) {
	g := BenchGroup{Name: "g"}
	require.Error(t, g.Validate())
}

func TestBenchGroup_Validate_ChecksBaselineAndMembers(t *testing.T) {
	g := BenchGroup{
		Name:     "g",
		Baseline: &BenchmarkSpec{Name: "b", ModulePath: "m", ExportName: "e"},
		Members:  []BenchmarkSpec{{Name: "a", ModulePath: "m", ExportName: "a"}},
	}
	assert.NoError(t, g.Validate())

	g.Members = append(g.Members, BenchmarkSpec{Name: ""})
	require.Error(t, g.Validate())
}

func TestLoadBenchGroupYAML_ParsesDescriptorMembersAndBaseline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "group.yaml")
	yamlContent := `
name: parsing-suite
baseline:
  name: baseline
  module_path: ./variants/old
  export_name: Parse
members:
  - name: fast-path
    module_path: ./variants/new
    export_name: Parse
  - name: slow-path
    module_path: ./variants/new
    export_name: ParseSlow
`
	require.NoError(t, writeFile(path, yamlContent))

	g, err := LoadBenchGroupYAML(path)
	require.NoError(t, err)
	assert.Equal(t, "parsing-suite", g.Name)
	require.NotNil(t, g.Baseline)
	assert.Equal(t, "baseline", g.Baseline.Name)
	require.Len(t, g.Members, 2)
	assert.Equal(t, "fast-path", g.Members[0].Name)
}

func TestLoadBenchGroupYAML_InvalidGroup_ReturnsConfigError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "group.yaml")
	require.NoError(t, writeFile(path, "name: empty\nmembers: []\n"))

	_, err := LoadBenchGroupYAML(path)
	require.Error(t, err)
}

func TestLoadBenchGroupYAML_MissingFile_ReturnsConfigError(t *testing.T) {
	_, err := LoadBenchGroupYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestBenchMatrix_Validate_RejectsBaselineDirWithInlineVariant(t *testing.T) {
	m := BenchMatrix{
		Name:        "m",
		Variants:    []Variant{{Name: "v", Callable: func(any) error { return nil }}},
		Cases:       []Case{{ID: "c"}},
		BaselineDir: "/tmp/baselines",
	}
	require.Error(t, m.Validate())
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
