// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command benchforge is the harness's single binary: it re-execs itself as
// an isolated worker child when BENCHFORGE_WORKER is set, and otherwise
// loads a suite or matrix file and runs it. Argument parsing beyond "the
// one positional file path" is out of scope; a real CLI surface (flags,
// subcommands, report rendering) is an external collaborator this binary
// hands results to, not something it implements itself.
package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/benchforge/benchforge/internal/config"
	"github.com/benchforge/benchforge/internal/matrix"
	"github.com/benchforge/benchforge/internal/suite"
	"github.com/benchforge/benchforge/internal/telemetry"
	"github.com/benchforge/benchforge/internal/worker"
	"github.com/benchforge/benchforge/pkg/logging"

	// internal/benchfn is the registry itself and registers nothing on
	// import; benchmark packages whose init() calls benchfn.Register must
	// be blank-imported here for Serve or Run to find their callables -
	// the Go analogue of the module-path/export-name resolution.
	_ "github.com/benchforge/benchforge/internal/benchfn"
)

func main() {
	os.Exit(run())
}

func run() int {
	if os.Getenv(worker.EnvWorkerMode) != "" {
		// The worker child logs JSON at Debug: its stderr is captured into
		// the parent's crash errors rather than read on a terminal.
		workerLogger := logging.New(logging.Config{Level: logging.LevelDebug, JSON: true, Service: "worker"})
		defer workerLogger.Close()
		return worker.Serve(context.Background(), workerLogger)
	}

	logger := logging.Default()
	defer logger.Close()

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: benchforge <suite-or-matrix.yaml>")
		return 2
	}

	ctx := context.Background()
	provider, err := telemetry.Install(ctx, telemetry.Config{ServiceName: "benchforge"})
	if err != nil {
		logger.Error("installing telemetry", "error", err)
		return 1
	}
	defer provider.Shutdown(ctx)

	opts := config.DefaultRunnerOptions(config.WithAdaptive(95, 1000), config.WithMaxTimeMS(10_000))

	isMatrix, err := fileDeclaresVariants(os.Args[1])
	if err != nil {
		logger.Error("reading file", "path", os.Args[1], "error", err)
		return 1
	}

	if isMatrix {
		return runMatrix(ctx, logger, os.Args[1], opts)
	}
	return runSuite(ctx, logger, os.Args[1], opts)
}

// fileDeclaresVariants distinguishes a BenchMatrix file (top-level
// "variants") from a BenchGroup file (top-level "members") by a cheap
// untyped probe, ahead of the real typed load.
func fileDeclaresVariants(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading %q: %w", path, err)
	}
	var probe map[string]any
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return false, fmt.Errorf("parsing %q: %w", path, err)
	}
	_, hasVariants := probe["variants"]
	return hasVariants, nil
}

func runMatrix(ctx context.Context, logger *logging.Logger, path string, opts config.RunnerOptions) int {
	m, err := config.LoadBenchMatrixYAML(path)
	if err != nil {
		logger.Error("loading matrix", "path", path, "error", err)
		return 1
	}

	runner := matrix.New(nil, worker.New(logger, ""), logger)
	cells, err := runner.Run(ctx, *m, opts, "")
	if err != nil {
		logger.Error("running matrix", "matrix", m.Name, "error", err)
		return 1
	}

	for _, cell := range cells {
		if cell.HasBaseline {
			logger.Info("cell complete",
				"variant", cell.VariantName, "case", cell.CaseID,
				"p50_ms", cell.Results.Time.P50, "delta_pct", cell.DeltaPct,
			)
		} else {
			logger.Info("cell complete",
				"variant", cell.VariantName, "case", cell.CaseID,
				"p50_ms", cell.Results.Time.P50,
			)
		}
	}
	return 0
}

func runSuite(ctx context.Context, logger *logging.Logger, path string, opts config.RunnerOptions) int {
	g, err := config.LoadBenchGroupYAML(path)
	if err != nil {
		logger.Error("loading group", "path", path, "error", err)
		return 1
	}

	runner := suite.New(nil, worker.New(logger, ""), logger)
	results, err := runner.Run(ctx, *g, opts, 1)
	if err != nil {
		logger.Error("running group", "group", g.Name, "error", err)
		return 1
	}

	for _, r := range results {
		if r.HasBaseline {
			logger.Info("benchmark complete",
				"name", r.BenchmarkName, "p50_ms", r.Results.Time.P50, "delta_pct", r.DeltaPct,
			)
		} else {
			logger.Info("benchmark complete",
				"name", r.BenchmarkName, "p50_ms", r.Results.Time.P50,
			)
		}
	}
	return 0
}
