// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/benchforge/benchforge/internal/bencherr"
	"github.com/benchforge/benchforge/internal/config"
	"github.com/benchforge/benchforge/internal/gctrace"
	"github.com/benchforge/benchforge/internal/result"
	"github.com/benchforge/benchforge/pkg/logging"
)

// HardTimeout is the §4.5 "hard 60-second timeout from send".
const HardTimeout = 60 * time.Second

// stderrTailBytes bounds how much of the child's stderr rides along on a
// CrashError.
const stderrTailBytes = 4096

var tracer = otel.Tracer("benchforge/worker")

// Orchestrator spawns one isolated child process per benchmark.
type Orchestrator struct {
	Logger      *logging.Logger
	ExecPath    string // defaults to os.Executable()
}

// New returns an Orchestrator. execPath overrides the binary re-exec'd as
// the worker child; pass "" to use the current executable.
func New(logger *logging.Logger, execPath string) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{Logger: logger, ExecPath: execPath}
}

// Run spawns a worker child, sends it spec/runnerName/opts/params, and
// returns its MeasuredResults. Implements §4.5's contract and §5's
// scheduling/suspension/ordering guarantees for a single benchmark.
func (o *Orchestrator) Run(ctx context.Context, spec config.BenchmarkSpec, runnerName string, opts config.RunnerOptions, params any) ([]*result.MeasuredResults, error) {
	correlationID := uuid.New().String()
	ctx, span := tracer.Start(ctx, "worker.Run", trace.WithAttributes(
		attribute.String("benchmark.name", spec.Name),
		attribute.String("worker.correlation_id", correlationID),
	))
	defer span.End()

	execPath := o.ExecPath
	if execPath == "" {
		var err error
		execPath, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("worker: resolving executable: %w", err)
		}
	}

	cmd := exec.Command(execPath)
	// Does not set a GC-trace-emitting runtime flag for the child, so
	// opts.GCStats collection below only ever sees lines the child happens
	// to print on its own; pumpStdout's parser/aggregator are otherwise idle.
	cmd.Env = append(os.Environ(), EnvWorkerMode+"=1")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: opening stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: opening stdout pipe: %w", err)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("worker: starting child: %w", err)
	}

	o.Logger.Debug("worker spawned", "benchmark", spec.Name, "correlation_id", correlationID, "pid", cmd.Process.Pid)

	run := RunMessage{
		Type:       "run",
		RunnerName: runnerName,
		Options:    opts,
		Params:     params,
		Spec: SpecDescriptor{
			Name:            spec.Name,
			ModulePath:      spec.ModulePath,
			ExportName:      spec.ExportName,
			SetupExportName: spec.SetupExportName,
		},
	}
	if err := WriteMessage(stdin, run); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("worker: sending run message: %w", err)
	}
	_ = stdin.Close()

	type outcome struct {
		results []*result.MeasuredResults
		err     error
		gcAgg   gctrace.Aggregate
	}

	// The stdout pump and the process wait run concurrently as a group:
	// unless the hard timeout or ctx fires first, both must finish before
	// this call decides the benchmark's outcome. The group's derived
	// context is not used.
	g, _ := errgroup.WithContext(ctx)
	var out outcome
	var waitErr error

	g.Go(func() error {
		results, gcEvents, err := pumpStdout(stdout, opts.GCStats)
		out = outcome{results: results, err: err, gcAgg: gctrace.AggregateEvents(gcEvents)}
		return err
	})
	g.Go(func() error {
		waitErr = cmd.Wait()
		return waitErr
	})

	doneCh := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(doneCh)
	}()

	timer := time.NewTimer(HardTimeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		_ = cmd.Process.Signal(syscall.SIGTERM)
		<-doneCh
		err := &bencherr.TimeoutError{Name: spec.Name}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err

	case <-doneCh:
		var childFailure *childFailedError
		if errors.As(out.err, &childFailure) {
			failed := &bencherr.FailedError{Name: spec.Name, Message: childFailure.message, Stack: childFailure.stack}
			span.RecordError(failed)
			return nil, failed
		}
		if waitErr != nil {
			crash := &bencherr.CrashError{Name: spec.Name, ExitCode: exitCode(waitErr), Stderr: tail(stderrBuf.String(), stderrTailBytes)}
			span.RecordError(crash)
			span.SetStatus(codes.Error, crash.Error())
			return nil, crash
		}
		if out.err != nil {
			span.RecordError(out.err)
			return nil, out.err
		}
		if opts.GCStats {
			agg := out.gcAgg
			for _, r := range out.results {
				r.GCStats = &agg
			}
		}
		return out.results, nil

	case <-ctx.Done():
		_ = cmd.Process.Signal(syscall.SIGTERM)
		<-doneCh
		return nil, ctx.Err()
	}
}

// pumpStdout line-buffers the child's stdout. Framed protocol messages are
// decoded and returned; GC-trace-shaped lines are parsed and accumulated;
// everything else passes through to this process's own stdout unchanged.
func pumpStdout(stdout interface{ Read([]byte) (int, error) }, gcStats bool) ([]*result.MeasuredResults, []gctrace.Event, error) {
	reader := bufio.NewReader(stdout)
	var events []gctrace.Event

	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if IsFrameStart(line) {
				msgType, body, ferr := ReadFramedMessage(reader, line)
				if ferr != nil {
					return nil, events, fmt.Errorf("worker: reading protocol message: %w", ferr)
				}
				switch msgType {
				case "result":
					var rm ResultMessage
					if jerr := json.Unmarshal(body, &rm); jerr != nil {
						return nil, events, fmt.Errorf("worker: decoding result message: %w", jerr)
					}
					return rm.Results, events, nil
				case "error":
					var em ErrorMessage
					if jerr := json.Unmarshal(body, &em); jerr != nil {
						return nil, events, fmt.Errorf("worker: decoding error message: %w", jerr)
					}
					return nil, events, &childFailedError{message: em.Error, stack: em.Stack}
				default:
					// unrecognized framed message type; ignore and continue
				}
				continue
			}
			if gcStats {
				if ev, ok := gctrace.ParseLine(line); ok {
					events = append(events, ev)
					continue
				}
			}
			fmt.Fprint(os.Stdout, line)
		}
		if err != nil {
			return nil, events, fmt.Errorf("worker: child closed stdout without a reply: %w", err)
		}
	}
}

// childFailedError carries a decoded ErrorMessage from the child up through
// pumpStdout's error return before it is translated into a bencherr.FailedError.
type childFailedError struct {
	message string
	stack   string
}

func (e *childFailedError) Error() string { return e.message }

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
