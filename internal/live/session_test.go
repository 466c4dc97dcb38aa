// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/omnichat/omnichat-tui/internal/backend"
)

// fakeSink records scheduled playback.
type fakeSink struct {
	mu      sync.Mutex
	played  []time.Time
	stopped bool
}

func (f *fakeSink) PlayAt(pcm []byte, sampleRate int, start time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, start)
}

func (f *fakeSink) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeSink) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.played)
}

// fakeLiveConn feeds scripted events.
type fakeLiveConn struct {
	events chan backend.LiveEvent

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeLiveConn() *fakeLiveConn {
	return &fakeLiveConn{events: make(chan backend.LiveEvent, 32)}
}

func (c *fakeLiveConn) Events() <-chan backend.LiveEvent { return c.events }

func (c *fakeLiveConn) SendAudio(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, pcm)
	return nil
}

func (c *fakeLiveConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

type fakeOpener struct {
	conn *fakeLiveConn
	err  error
}

func (o *fakeOpener) OpenLive(ctx context.Context) (backend.LiveConn, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.conn, nil
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not shut down")
	}
}

func TestSessionLifecycle(t *testing.T) {
	conn := newFakeLiveConn()
	sink := &fakeSink{}
	s := NewSession(sink, Handlers{})

	if s.State() != StateIdle {
		t.Fatalf("initial state = %s", s.State())
	}
	if err := s.Connect(context.Background(), &fakeOpener{conn: conn}); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateActive {
		t.Fatalf("state after connect = %s", s.State())
	}

	s.Disconnect()
	waitDone(t, s)
	if s.State() != StateClosed {
		t.Fatalf("state after disconnect = %s", s.State())
	}
	if !sink.stopped {
		t.Fatal("sink not stopped")
	}

	// Closed is terminal: a second Connect is refused.
	if err := s.Connect(context.Background(), &fakeOpener{conn: newFakeLiveConn()}); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("want ErrNotIdle, got %v", err)
	}
}

func TestConnectFailureClosesSession(t *testing.T) {
	s := NewSession(&fakeSink{}, Handlers{})
	err := s.Connect(context.Background(), &fakeOpener{err: errors.New("dial refused")})
	if err == nil {
		t.Fatal("want connect error")
	}
	if s.State() != StateClosed {
		t.Fatalf("state = %s", s.State())
	}
	waitDone(t, s)
}

func TestTurnCompleteFlushesTranscripts(t *testing.T) {
	conn := newFakeLiveConn()
	var turns [][2]string
	var turnsMu sync.Mutex
	s := NewSession(&fakeSink{}, Handlers{
		OnTurn: func(user, model string) {
			turnsMu.Lock()
			turns = append(turns, [2]string{user, model})
			turnsMu.Unlock()
		},
	})
	if err := s.Connect(context.Background(), &fakeOpener{conn: conn}); err != nil {
		t.Fatal(err)
	}

	conn.events <- backend.LiveEvent{InputText: "what time "}
	conn.events <- backend.LiveEvent{InputText: "is it"}
	conn.events <- backend.LiveEvent{OutputText: "It is noon."}
	conn.events <- backend.LiveEvent{TurnComplete: true}

	// Second turn must start from empty buffers.
	conn.events <- backend.LiveEvent{InputText: "thanks"}
	conn.events <- backend.LiveEvent{OutputText: "Anytime."}
	conn.events <- backend.LiveEvent{TurnComplete: true}
	conn.Close()
	waitDone(t, s)

	turnsMu.Lock()
	defer turnsMu.Unlock()
	if len(turns) != 2 {
		t.Fatalf("turns = %+v", turns)
	}
	if turns[0] != [2]string{"what time is it", "It is noon."} {
		t.Fatalf("first turn = %+v", turns[0])
	}
	if turns[1] != [2]string{"thanks", "Anytime."} {
		t.Fatalf("second turn = %+v", turns[1])
	}
}

func TestDisconnectFlushesPartialTurn(t *testing.T) {
	conn := newFakeLiveConn()
	var turns [][2]string
	var turnsMu sync.Mutex
	s := NewSession(&fakeSink{}, Handlers{
		OnTurn: func(user, model string) {
			turnsMu.Lock()
			turns = append(turns, [2]string{user, model})
			turnsMu.Unlock()
		},
	})
	if err := s.Connect(context.Background(), &fakeOpener{conn: conn}); err != nil {
		t.Fatal(err)
	}

	conn.events <- backend.LiveEvent{InputText: "hello there"}
	// Give the consumer a moment to absorb the delta before closing.
	waitFor(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.userBuf.Len() > 0
	})

	s.Disconnect()
	waitDone(t, s)

	turnsMu.Lock()
	defer turnsMu.Unlock()
	if len(turns) != 1 || turns[0][0] != "hello there" {
		t.Fatalf("partial turn not flushed: %+v", turns)
	}
}

func TestAudioEventsAreScheduled(t *testing.T) {
	conn := newFakeLiveConn()
	sink := &fakeSink{}
	s := NewSession(sink, Handlers{})
	if err := s.Connect(context.Background(), &fakeOpener{conn: conn}); err != nil {
		t.Fatal(err)
	}

	conn.events <- backend.LiveEvent{Audio: make([]byte, 4800), SampleRate: 24000}
	conn.events <- backend.LiveEvent{Audio: make([]byte, 4800), SampleRate: 24000}
	conn.Close()
	waitDone(t, s)

	if sink.playCount() != 2 {
		t.Fatalf("played = %d", sink.playCount())
	}
	// Second chunk starts when the first ends (100ms later), not before.
	sink.mu.Lock()
	gap := sink.played[1].Sub(sink.played[0])
	sink.mu.Unlock()
	if gap < 100*time.Millisecond {
		t.Fatalf("chunks overlap: gap = %v", gap)
	}
}

func TestSendAudioOnlyWhenActive(t *testing.T) {
	conn := newFakeLiveConn()
	s := NewSession(&fakeSink{}, Handlers{})

	// Idle: dropped, not an error.
	if err := s.SendAudio([]byte{1}); err != nil {
		t.Fatal(err)
	}

	if err := s.Connect(context.Background(), &fakeOpener{conn: conn}); err != nil {
		t.Fatal(err)
	}
	if err := s.SendAudio([]byte{2}); err != nil {
		t.Fatal(err)
	}

	s.Disconnect()
	waitDone(t, s)
	if err := s.SendAudio([]byte{3}); err != nil {
		t.Fatal(err)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.sent) != 1 {
		t.Fatalf("sent = %d chunks", len(conn.sent))
	}
}

func TestErrorEventSurfacesAndSessionCloses(t *testing.T) {
	conn := newFakeLiveConn()
	var gotErr error
	var errMu sync.Mutex
	s := NewSession(&fakeSink{}, Handlers{
		OnError: func(err error) {
			errMu.Lock()
			gotErr = err
			errMu.Unlock()
		},
	})
	if err := s.Connect(context.Background(), &fakeOpener{conn: conn}); err != nil {
		t.Fatal(err)
	}

	conn.events <- backend.LiveEvent{Err: errors.New("socket dropped")}
	conn.Close()
	waitDone(t, s)

	errMu.Lock()
	defer errMu.Unlock()
	if gotErr == nil {
		t.Fatal("error not surfaced")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	conn := newFakeLiveConn()
	closedCount := 0
	var closedMu sync.Mutex
	s := NewSession(&fakeSink{}, Handlers{
		OnClosed: func() {
			closedMu.Lock()
			closedCount++
			closedMu.Unlock()
		},
	})
	if err := s.Connect(context.Background(), &fakeOpener{conn: conn}); err != nil {
		t.Fatal(err)
	}

	s.Disconnect()
	s.Disconnect()
	waitDone(t, s)
	s.Disconnect()

	closedMu.Lock()
	defer closedMu.Unlock()
	if closedCount != 1 {
		t.Fatalf("OnClosed fired %d times", closedCount)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}
