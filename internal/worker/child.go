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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/benchforge/benchforge/internal/adaptive"
	"github.com/benchforge/benchforge/internal/collector"
	"github.com/benchforge/benchforge/internal/config"
	"github.com/benchforge/benchforge/internal/result"
	"github.com/benchforge/benchforge/pkg/logging"
)

// selfKillAfter is the child's last-resort safety net (§4.5 "Child lifetime").
const selfKillAfter = 5 * time.Minute

// Serve is the worker child's entire lifetime: read exactly one RunMessage
// from stdin, run the benchmark, write exactly one reply, exit 0. Any other
// exit path (panic, self-kill timer) is a parent-side orchestrator error.
func Serve(ctx context.Context, logger *logging.Logger) int {
	if logger == nil {
		logger = logging.Default()
	}

	killTimer := time.AfterFunc(selfKillAfter, func() {
		logger.Error("worker self-kill triggered", "after", selfKillAfter.String())
		os.Exit(1)
	})
	defer killTimer.Stop()

	defer func() {
		if r := recover(); r != nil {
			writeError(os.Stdout, fmt.Sprintf("%v", r), string(debug.Stack()))
			os.Exit(1)
		}
	}()

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		writeError(os.Stdout, fmt.Sprintf("reading run message: %v", err), "")
		return 1
	}
	if !IsFrameStart(line) {
		writeError(os.Stdout, "expected Content-Length frame for run message", "")
		return 1
	}
	msgType, body, err := ReadFramedMessage(reader, line)
	if err != nil || msgType != "run" {
		writeError(os.Stdout, fmt.Sprintf("decoding run message: %v", err), "")
		return 1
	}
	var run RunMessage
	if err := json.Unmarshal(body, &run); err != nil {
		writeError(os.Stdout, fmt.Sprintf("unmarshaling run message: %v", err), "")
		return 1
	}

	mr, err := execute(ctx, logger, run)
	if err != nil {
		writeError(os.Stdout, err.Error(), "")
		return 1
	}

	if err := WriteMessage(os.Stdout, ResultMessage{
		Type:    "result",
		Results: []*result.MeasuredResults{mr},
	}); err != nil {
		logger.Error("writing result message", "error", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, logger *logging.Logger, run RunMessage) (*result.MeasuredResults, error) {
	spec := config.BenchmarkSpec{
		Name:            run.Spec.Name,
		ModulePath:      run.Spec.ModulePath,
		ExportName:      run.Spec.ExportName,
		SetupExportName: run.Spec.SetupExportName,
		Param:           run.Params,
	}

	if run.Options.Adaptive {
		return adaptive.New(nil, logger, nil).Run(ctx, spec, run.Options)
	}
	return collector.New(logger).Run(ctx, spec, run.Options)
}

func writeError(w io.Writer, message, stack string) {
	_ = WriteMessage(w, ErrorMessage{Type: "error", Error: message, Stack: stack})
}
