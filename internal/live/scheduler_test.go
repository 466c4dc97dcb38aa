// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package live

import (
	"testing"
	"time"
)

// fakeClock lets tests advance time manually.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// pcmChunk returns a buffer that plays for d at the given rate.
func pcmChunk(d time.Duration, sampleRate int) []byte {
	samples := int(d.Seconds() * float64(sampleRate))
	return make([]byte, samples*2)
}

func TestScheduleBackToBack(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newSchedulerWithClock(clock.now)

	// Three 100ms chunks arriving instantly must play gapless.
	chunk := pcmChunk(100*time.Millisecond, 24000)

	s1 := s.Schedule(chunk, 24000)
	s2 := s.Schedule(chunk, 24000)
	s3 := s.Schedule(chunk, 24000)

	if !s1.Equal(clock.t) {
		t.Fatalf("first chunk start = %v, want now", s1)
	}
	if got := s2.Sub(s1); got != 100*time.Millisecond {
		t.Fatalf("second chunk offset = %v", got)
	}
	if got := s3.Sub(s2); got != 100*time.Millisecond {
		t.Fatalf("third chunk offset = %v", got)
	}
}

func TestScheduleAfterDrainStartsNow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newSchedulerWithClock(clock.now)

	chunk := pcmChunk(100*time.Millisecond, 24000)
	s.Schedule(chunk, 24000)

	// A long silence: queue drains well before the next chunk arrives.
	clock.advance(5 * time.Second)

	start := s.Schedule(chunk, 24000)
	if !start.Equal(clock.t) {
		t.Fatalf("post-drain start = %v, want now (%v)", start, clock.t)
	}
}

func TestPendingPrunesFinishedChunks(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newSchedulerWithClock(clock.now)

	chunk := pcmChunk(100*time.Millisecond, 24000)
	s.Schedule(chunk, 24000)
	s.Schedule(chunk, 24000)
	if got := s.Pending(); got != 2 {
		t.Fatalf("pending = %d", got)
	}

	clock.advance(150 * time.Millisecond)
	if got := s.Pending(); got != 1 {
		t.Fatalf("pending after first finished = %d", got)
	}

	clock.advance(100 * time.Millisecond)
	if got := s.Pending(); got != 0 {
		t.Fatalf("pending after all finished = %d", got)
	}
}

func TestResetClearsQueue(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := newSchedulerWithClock(clock.now)

	s.Schedule(pcmChunk(time.Second, 24000), 24000)
	s.Reset()
	if got := s.Pending(); got != 0 {
		t.Fatalf("pending after reset = %d", got)
	}

	start := s.Schedule(pcmChunk(100*time.Millisecond, 24000), 24000)
	if !start.Equal(clock.t) {
		t.Fatalf("start after reset = %v, want now", start)
	}
}

func TestPCMDuration(t *testing.T) {
	if got := pcmDuration(48000, 24000); got != time.Second {
		t.Fatalf("duration = %v", got)
	}
	if got := pcmDuration(100, 0); got != 0 {
		t.Fatalf("zero-rate duration = %v", got)
	}
}
