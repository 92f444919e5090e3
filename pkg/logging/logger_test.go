// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestDefault_LogsInfoPlusToStderr(t *testing.T) {
	logger := Default()
	defer logger.Close()
	logger.Debug("should be filtered")
	logger.Info("collection started", "benchmark", "parseJSON")
}

func TestNew_Quiet_NoPanic(t *testing.T) {
	logger := New(Config{Level: LevelInfo, Quiet: true})
	defer logger.Close()
	logger.Error("worker crashed", "exit_code", 1)
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: LevelInfo, LogDir: dir, Service: "worker", Quiet: true})
	logger.Info("convergence reached", "confidence", 100)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	name := "worker_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "convergence reached") {
		t.Errorf("log file missing message, got: %s", data)
	}
	if !strings.Contains(string(data), `"service":"worker"`) {
		t.Errorf("log file missing service attribute, got: %s", data)
	}
}

func TestLogger_With_AddsAttributesWithoutMutatingParent(t *testing.T) {
	sink := NewBufferedSink()
	parent := New(Config{Level: LevelInfo, Quiet: true, Sink: sink})
	defer parent.Close()

	child := parent.With("run_id", "abc123")
	child.Info("batch collected")
	parent.Info("parent event")

	time.Sleep(20 * time.Millisecond) // sink export happens in a goroutine
	entries := sink.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestBufferedSink_CollectsEntries(t *testing.T) {
	sink := NewBufferedSink()
	logger := New(Config{Level: LevelInfo, Quiet: true, Sink: sink})
	defer logger.Close()

	logger.Info("hello", "n", 1)
	time.Sleep(20 * time.Millisecond)

	entries := sink.Entries()
	if len(entries) != 1 || entries[0].Message != "hello" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestWriterSink_WritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	logger := New(Config{Level: LevelInfo, Quiet: true, Sink: sink})
	defer logger.Close()

	logger.Warn("dropped gc trace line")
	time.Sleep(20 * time.Millisecond)

	if !strings.Contains(buf.String(), "dropped gc trace line") {
		t.Errorf("writer sink missing message, got: %s", buf.String())
	}
}

func TestExpandPath(t *testing.T) {
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("expandPath unchanged path = %v", got)
	}
	home, _ := os.UserHomeDir()
	if got := expandPath("~/logs"); got != filepath.Join(home, "logs") {
		t.Errorf("expandPath(~) = %v, want %v", got, filepath.Join(home, "logs"))
	}
}
