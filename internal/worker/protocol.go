// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worker implements the parent/child protocol of §4.5 and §6: a
// Content-Length-framed JSON message exchanged over the child's stdin/stdout,
// the same framing LSP-style tools use so that ordinary print output can
// share the stream without corrupting the protocol channel.
package worker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/benchforge/benchforge/internal/config"
	"github.com/benchforge/benchforge/internal/result"
)

// EnvWorkerMode is set in the child's environment so cmd/benchforge knows to
// dispatch into worker.Serve instead of the orchestrator entry point.
const EnvWorkerMode = "BENCHFORGE_WORKER"

// SpecDescriptor is the wire form of config.BenchmarkSpec: a callable can't
// cross a process boundary, so only the re-resolvable descriptor fields
// travel; the child looks ExportName back up in internal/benchfn.
type SpecDescriptor struct {
	Name            string `json:"name"`
	ModulePath      string `json:"module_path,omitempty"`
	ExportName      string `json:"export_name,omitempty"`
	SetupExportName string `json:"setup_export_name,omitempty"`
	VariantDir      string `json:"variant_dir,omitempty"`
	VariantID       string `json:"variant_id,omitempty"`
	CaseID          string `json:"case_id,omitempty"`
	CaseData        any    `json:"case_data,omitempty"`
	CasesModule     string `json:"cases_module,omitempty"`
}

// RunMessage is the parent's single request to the child.
type RunMessage struct {
	Type       string              `json:"type"` // always "run"
	Spec       SpecDescriptor      `json:"spec"`
	RunnerName string              `json:"runner_name"`
	Options    config.RunnerOptions `json:"options"`
	Params     any                 `json:"params,omitempty"`
}

// ResultMessage is the child's success reply.
type ResultMessage struct {
	Type        string                     `json:"type"` // always "result"
	Results     []*result.MeasuredResults  `json:"results"`
	HeapProfile []byte                     `json:"heap_profile,omitempty"`
}

// ErrorMessage is the child's failure reply.
type ErrorMessage struct {
	Type  string `json:"type"` // always "error"
	Error string `json:"error"`
	Stack string `json:"stack,omitempty"`
}

type envelope struct {
	Type string `json:"type"`
}

// WriteMessage frames v as "Content-Length: N\r\n\r\n<json>" and writes it to w.
func WriteMessage(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("worker: encoding message: %w", err)
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return fmt.Errorf("worker: writing header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("worker: writing body: %w", err)
	}
	return nil
}

// readFramedBody reads exactly length bytes following a header block
// already consumed by ReadFramedMessage.
func readFramedBody(r *bufio.Reader, length int) ([]byte, error) {
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("worker: reading body: %w", err)
	}
	return body, nil
}

// IsFrameStart reports whether line looks like the start of a
// Content-Length-framed message rather than an ordinary print/GC-trace line.
func IsFrameStart(line string) bool {
	return strings.HasPrefix(strings.ToLower(line), "content-length:")
}

// ReadFramedMessage reads one framed message given its already-peeked first
// header line, returning the message type and raw JSON body.
func ReadFramedMessage(r *bufio.Reader, firstLine string) (string, []byte, error) {
	length, err := parseContentLength(firstLine)
	if err != nil {
		return "", nil, err
	}
	// Consume the remaining headers (typically just the blank separator line).
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		if strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}
	body, err := readFramedBody(r, length)
	if err != nil {
		return "", nil, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", nil, fmt.Errorf("worker: decoding envelope: %w", err)
	}
	return env.Type, body, nil
}

func parseContentLength(line string) (int, error) {
	_, value, ok := strings.Cut(line, ":")
	if !ok {
		return 0, fmt.Errorf("worker: malformed header %q", line)
	}
	return strconv.Atoi(strings.TrimSpace(value))
}
