// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omnichat/omnichat-tui/internal/backend"
)

// DefaultLiveURL is the websocket endpoint for bidirectional sessions.
const DefaultLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// liveOutputSampleRate is the PCM rate the live model speaks at.
const liveOutputSampleRate = 24000

// =============================================================================
// WIRE TYPES
// =============================================================================

type liveSetupMessage struct {
	Setup struct {
		Model            string                `json:"model"`
		GenerationConfig *wireGenerationConfig `json:"generationConfig,omitempty"`
		InputTranscript  *struct{}             `json:"inputAudioTranscription,omitempty"`
		OutputTranscript *struct{}             `json:"outputAudioTranscription,omitempty"`
	} `json:"setup"`
}

type liveAudioMessage struct {
	RealtimeInput struct {
		Audio wireInlineData `json:"audio"`
	} `json:"realtimeInput"`
}

type liveServerMessage struct {
	SetupComplete *struct{} `json:"setupComplete"`
	ServerContent *struct {
		ModelTurn *struct {
			Parts []wirePart `json:"parts"`
		} `json:"modelTurn"`
		InputTranscription *struct {
			Text string `json:"text"`
		} `json:"inputTranscription"`
		OutputTranscription *struct {
			Text string `json:"text"`
		} `json:"outputTranscription"`
		TurnComplete bool `json:"turnComplete"`
	} `json:"serverContent"`
}

// =============================================================================
// LIVE CONNECTION
// =============================================================================

// liveConn is an open bidirectional session. A single reader goroutine owns
// the websocket read side and feeds the events channel; SendAudio writes are
// serialized by writeMu per the websocket concurrency rules.
type liveConn struct {
	conn   *websocket.Conn
	events chan backend.LiveEvent

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// OpenLive implements backend.LiveOpener: dial, send setup, wait for the
// setup acknowledgement, then hand the connection to the reader loop.
func (c *Client) OpenLive(ctx context.Context) (backend.LiveConn, error) {
	if !c.IsConfigured() {
		return nil, backend.ErrNotConfigured
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	wsURL := DefaultLiveURL + "?key=" + c.apiKey
	if c.baseURL != DefaultBaseURL {
		// Test override: derive the ws endpoint from the custom base URL.
		wsURL = strings.Replace(c.baseURL, "http://", "ws://", 1)
		wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("live connect: %w", err)
	}

	var setup liveSetupMessage
	setup.Setup.Model = "models/" + ModelLive
	setup.Setup.GenerationConfig = &wireGenerationConfig{
		ResponseModalities: []string{"AUDIO"},
	}
	setup.Setup.InputTranscript = &struct{}{}
	setup.Setup.OutputTranscript = &struct{}{}

	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("live setup: %w", err)
	}

	var ack liveServerMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("live setup ack: %w", err)
	}
	if ack.SetupComplete == nil {
		conn.Close()
		return nil, fmt.Errorf("live setup rejected")
	}

	lc := &liveConn{
		conn:   conn,
		events: make(chan backend.LiveEvent, 64),
	}
	go lc.readLoop()
	return lc, nil
}

// readLoop translates server messages into LiveEvents until the connection
// drops. The channel closes when the loop exits, which is how consumers
// observe session end.
func (lc *liveConn) readLoop() {
	defer close(lc.events)

	for {
		_, raw, err := lc.conn.ReadMessage()
		if err != nil {
			// A locally initiated close is not an error worth surfacing.
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			select {
			case lc.events <- backend.LiveEvent{Err: fmt.Errorf("live session: %w", err)}:
			default:
			}
			return
		}

		var msg liveServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.ServerContent == nil {
			continue
		}
		sc := msg.ServerContent

		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData == nil {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil || len(pcm) == 0 {
					continue
				}
				lc.events <- backend.LiveEvent{Audio: pcm, SampleRate: liveOutputSampleRate}
			}
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			lc.events <- backend.LiveEvent{InputText: sc.InputTranscription.Text}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			lc.events <- backend.LiveEvent{OutputText: sc.OutputTranscription.Text}
		}
		if sc.TurnComplete {
			lc.events <- backend.LiveEvent{TurnComplete: true}
		}
	}
}

// Events implements backend.LiveConn.
func (lc *liveConn) Events() <-chan backend.LiveEvent {
	return lc.events
}

// SendAudio implements backend.LiveConn, streaming 16kHz PCM upstream.
func (lc *liveConn) SendAudio(pcm []byte) error {
	var msg liveAudioMessage
	msg.RealtimeInput.Audio = wireInlineData{
		MIMEType: "audio/pcm;rate=16000",
		Data:     base64.StdEncoding.EncodeToString(pcm),
	}

	lc.writeMu.Lock()
	defer lc.writeMu.Unlock()
	if err := lc.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("live send: %w", err)
	}
	return nil
}

// Close implements backend.LiveConn. Safe to call more than once.
func (lc *liveConn) Close() error {
	lc.closeOnce.Do(func() {
		lc.writeMu.Lock()
		lc.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		lc.writeMu.Unlock()
		lc.closeErr = lc.conn.Close()
	})
	return lc.closeErr
}
