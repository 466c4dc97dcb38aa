// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package live coordinates bidirectional voice sessions: connection
// lifecycle, gapless audio playback scheduling, and transcript buffering
// until turn boundaries.
package live

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/omnichat/omnichat-tui/internal/backend"
)

// State is the session lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ErrNotIdle is returned when Connect is called on a session that already
// ran. Sessions are single-use; start a new one after Disconnect.
var ErrNotIdle = errors.New("live session already used")

// Sink plays scheduled PCM audio. The TUI provides a speaker-backed
// implementation; tests provide a recording fake.
type Sink interface {
	// PlayAt queues pcm for playback starting at the given time.
	PlayAt(pcm []byte, sampleRate int, start time.Time)
	// Stop halts playback and discards anything queued.
	Stop()
}

// Handlers receive session output. All callbacks fire from the session's
// consumer goroutine, never concurrently with each other.
type Handlers struct {
	// OnTurn delivers a completed exchange: what the user said and what
	// the model answered, assembled from transcript deltas.
	OnTurn func(userText, modelText string)
	// OnTranscript reports in-progress transcript growth for live display.
	OnTranscript func(userText, modelText string)
	// OnError reports a session failure. The session closes afterward.
	OnError func(err error)
	// OnClosed fires exactly once when the session has fully shut down.
	OnClosed func()
}

// Session is one voice conversation. Lifecycle: idle, connecting, active,
// closed - never backward, and closed is terminal.
type Session struct {
	sink     Sink
	sched    *Scheduler
	handlers Handlers

	mu    sync.Mutex
	state State
	conn  backend.LiveConn

	// Transcript buffers accumulate deltas until the turn completes.
	userBuf  strings.Builder
	modelBuf strings.Builder

	closeOnce sync.Once
	done      chan struct{}
}

// nopSink discards audio. Used when no playback sink is wired.
type nopSink struct{}

func (nopSink) PlayAt([]byte, int, time.Time) {}
func (nopSink) Stop()                         {}

// NewSession creates an idle session.
func NewSession(sink Sink, handlers Handlers) *Session {
	if sink == nil {
		sink = nopSink{}
	}
	return &Session{
		sink:     sink,
		sched:    NewScheduler(),
		handlers: handlers,
		state:    StateIdle,
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether audio is flowing.
func (s *Session) Active() bool {
	return s.State() == StateActive
}

// Connect opens the session through the provider and starts consuming
// events. Returns once the connection is established; events flow on a
// background goroutine until the session ends.
func (s *Session) Connect(ctx context.Context, opener backend.LiveOpener) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.state = StateConnecting
	s.mu.Unlock()

	conn, err := opener.OpenLive(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		s.finish()
		return err
	}

	s.mu.Lock()
	// Disconnect may have raced the dial.
	if s.state != StateConnecting {
		s.mu.Unlock()
		conn.Close()
		return errors.New("live session cancelled during connect")
	}
	s.conn = conn
	s.state = StateActive
	s.mu.Unlock()

	go s.consume(conn)
	return nil
}

// consume drains connection events until the channel closes.
func (s *Session) consume(conn backend.LiveConn) {
	for ev := range conn.Events() {
		switch {
		case ev.Err != nil:
			if s.handlers.OnError != nil {
				s.handlers.OnError(ev.Err)
			}

		case len(ev.Audio) > 0:
			start := s.sched.Schedule(ev.Audio, ev.SampleRate)
			s.sink.PlayAt(ev.Audio, ev.SampleRate, start)

		case ev.TurnComplete:
			s.completeTurn()

		default:
			if ev.InputText == "" && ev.OutputText == "" {
				continue
			}
			s.mu.Lock()
			s.userBuf.WriteString(ev.InputText)
			s.modelBuf.WriteString(ev.OutputText)
			user, model := s.userBuf.String(), s.modelBuf.String()
			s.mu.Unlock()
			if s.handlers.OnTranscript != nil {
				s.handlers.OnTranscript(user, model)
			}
		}
	}
	s.shutdown()
}

// completeTurn flushes both transcript buffers as one exchange. Both reset
// together even if one side is empty, so a half-captured turn cannot bleed
// into the next one.
func (s *Session) completeTurn() {
	s.mu.Lock()
	user := strings.TrimSpace(s.userBuf.String())
	model := strings.TrimSpace(s.modelBuf.String())
	s.userBuf.Reset()
	s.modelBuf.Reset()
	s.mu.Unlock()

	if user == "" && model == "" {
		return
	}
	if s.handlers.OnTurn != nil {
		s.handlers.OnTurn(user, model)
	}
}

// SendAudio forwards captured microphone audio. Dropped silently when the
// session is not active; the mic keeps recording across brief reconnects.
func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	conn := s.conn
	active := s.state == StateActive
	s.mu.Unlock()

	if !active || conn == nil {
		return nil
	}
	return conn.SendAudio(pcm)
}

// Disconnect ends the session: closes the connection, stops playback, and
// flushes any buffered partial turn. Safe to call repeatedly and from any
// state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	prev := s.state
	s.state = StateClosed
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
		// consume() observes the closed channel and finishes shutdown.
		return
	}
	if prev != StateClosed {
		s.finish()
	}
}

// shutdown runs when the event channel closes, whatever caused it.
func (s *Session) shutdown() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.completeTurn()
	s.finish()
}

func (s *Session) finish() {
	s.closeOnce.Do(func() {
		s.sink.Stop()
		s.sched.Reset()
		close(s.done)
		if s.handlers.OnClosed != nil {
			s.handlers.OnClosed()
		}
	})
}

// Done is closed when the session has fully shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
