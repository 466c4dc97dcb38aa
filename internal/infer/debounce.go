// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package infer

import (
	"sync"
	"time"
)

// DefaultDelay is how long after the last keystroke a pending evaluation
// fires.
const DefaultDelay = 300 * time.Millisecond

// Debouncer coalesces per-keystroke re-inference: each Schedule call
// supersedes any earlier pending evaluation, so only the latest fires.
// Pending evaluations are replaced, never queued.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	gen   uint64 // increments per Schedule; stale timers check it and bail
}

// NewDebouncer creates a debouncer with the given delay; zero or negative
// means DefaultDelay.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay}
}

// Schedule arranges for fn to run after the delay, cancelling any earlier
// pending run. fn executes on a timer goroutine; callers hand the result
// back to their own loop.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		stale := gen != d.gen
		d.mu.Unlock()
		if stale {
			// A later Schedule won the race between Stop and firing.
			return
		}
		fn()
	})
}

// Stop cancels any pending evaluation. Further Schedule calls work normally.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
