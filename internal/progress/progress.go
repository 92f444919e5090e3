// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package progress throttles the adaptive controller's "Collecting
// samples: n/2W" line to at most 1 Hz (§4.4) and adapts its line-ending
// style to whether stderr is a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"
)

// Reporter emits a rate-limited progress line to an io.Writer (stderr by
// default). A non-TTY writer gets one line per update, newline-terminated;
// a TTY gets carriage-return redraws on the same line.
type Reporter struct {
	w       io.Writer
	limiter *rate.Limiter
	isTTY   bool

	mu       sync.Mutex
	lastLine string
}

// New returns a Reporter writing to w, throttled to at most once per
// second. Pass nil to default to os.Stderr.
func New(w io.Writer) *Reporter {
	if w == nil {
		w = os.Stderr
	}
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd())
	}
	return &Reporter{
		w:       w,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		isTTY:   tty,
	}
}

// Update reports line if the 1 Hz budget allows it. Calls beyond the
// budget are silently dropped - this is advisory output, not a log.
func (r *Reporter) Update(line string) {
	if !r.limiter.Allow() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.lastLine
	r.lastLine = line
	if r.isTTY {
		fmt.Fprintf(r.w, "\r%s", padTo(line, len(prev)))
	} else {
		fmt.Fprintln(r.w, line)
	}
}

// Done prints a final newline after the last TTY redraw so subsequent
// output doesn't overwrite the progress line.
func (r *Reporter) Done() {
	if r.isTTY {
		fmt.Fprintln(r.w)
	}
}

func padTo(s string, n int) string {
	for len(s) < n {
		s += " "
	}
	return s
}

// CollectingSamplesLine formats the §4.4 "insufficient samples yet" line.
func CollectingSamplesLine(n, windowSize int) string {
	return fmt.Sprintf("Collecting samples: %d/%d", n, 2*windowSize)
}
