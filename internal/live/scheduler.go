// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package live

import (
	"sync"
	"time"
)

// Scheduler assigns gapless start times to incoming audio chunks. Chunks
// usually arrive faster than they play; each one is scheduled at the exact
// end of the previous chunk, or immediately when the queue has drained.
type Scheduler struct {
	mu        sync.Mutex
	now       func() time.Time
	nextStart time.Time
	pending   []time.Time // end times of scheduled chunks, pruned as they pass
}

// NewScheduler creates a scheduler using the wall clock.
func NewScheduler() *Scheduler {
	return &Scheduler{now: time.Now}
}

// newSchedulerWithClock injects a clock for tests.
func newSchedulerWithClock(now func() time.Time) *Scheduler {
	return &Scheduler{now: now}
}

// pcmDuration converts a 16-bit mono PCM byte count to play time.
func pcmDuration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteLen / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Schedule returns the start time for a chunk and advances the queue tail
// by its duration. Never schedules in the past: a chunk arriving after the
// queue drained starts now, not at the stale tail.
func (s *Scheduler) Schedule(pcm []byte, sampleRate int) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)

	start := s.nextStart
	if now.After(start) {
		start = now
	}
	end := start.Add(pcmDuration(len(pcm), sampleRate))
	s.nextStart = end
	s.pending = append(s.pending, end)
	return start
}

// prune drops bookkeeping for chunks that have finished playing.
func (s *Scheduler) prune(now time.Time) {
	keep := s.pending[:0]
	for _, end := range s.pending {
		if end.After(now) {
			keep = append(keep, end)
		}
	}
	s.pending = keep
}

// Pending returns the number of chunks still queued or playing.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(s.now())
	return len(s.pending)
}

// Reset discards the queue. Playback already handed to the sink is the
// sink's to stop.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextStart = time.Time{}
	s.pending = nil
}
