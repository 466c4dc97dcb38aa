// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/convo"
	"github.com/omnichat/omnichat-tui/internal/util"
)

// =============================================================================
// SAVED SESSION TYPES
// =============================================================================

// SavedSession is a persisted conversation snapshot.
type SavedSession struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Provider string         `json:"provider"`
	Mode     string         `json:"mode"`
	SavedAt  time.Time      `json:"saved_at"`
	Messages []SavedMessage `json:"messages"`
}

// SavedMessage is a persisted message. Only terminal, non-errored messages
// are snapshotted, so restored logs are always replayable history.
type SavedMessage struct {
	ID        string       `json:"id"`
	Role      string       `json:"role"`
	Timestamp time.Time    `json:"timestamp"`
	Text      string       `json:"text,omitempty"`
	ImageURL  string       `json:"image_url,omitempty"`
	VideoURL  string       `json:"video_url,omitempty"`
	Links     []convo.Link `json:"links,omitempty"`

	// Attachment wire data so a restored log can resend the file in history.
	Base64Data string `json:"base64_data,omitempty"`
	MIMEType   string `json:"mime_type,omitempty"`
}

// ProviderValue resolves the stored provider key.
func (s *SavedSession) ProviderValue() catalog.Provider {
	p, err := catalog.ParseProvider(s.Provider)
	if err != nil {
		return catalog.ProviderGemini
	}
	return p
}

// ModeValue resolves the stored mode key.
func (s *SavedSession) ModeValue() catalog.Mode {
	m, err := catalog.ParseMode(s.Mode)
	if err != nil {
		return catalog.ModeChat
	}
	return m
}

// =============================================================================
// SESSION STORE
// =============================================================================

const (
	// MaxSessions caps the saved-session list; the oldest entries fall off.
	MaxSessions = 20

	sessionsKey = "sessions"
)

// ErrSessionNotFound is returned when a saved session doesn't exist.
var ErrSessionNotFound = &SessionError{Message: "session not found"}

// SessionError represents a session persistence error.
type SessionError struct {
	Message string
}

func (e *SessionError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing session errors.
func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// SessionStore keeps saved sessions as one JSON document in the key-value
// store, newest first.
type SessionStore struct {
	kv *KV
}

// NewSessionStore creates a session store over kv. A nil kv degrades to an
// empty list that drops saves.
func NewSessionStore(kv *KV) *SessionStore {
	return &SessionStore{kv: kv}
}

// Save snapshots the given log and prepends it to the saved list, evicting
// the oldest entries beyond MaxSessions. Non-terminal and errored messages
// are skipped. Returns the stored snapshot.
func (s *SessionStore) Save(provider catalog.Provider, mode catalog.Mode, msgs []*convo.Message) (*SavedSession, error) {
	sess := &SavedSession{
		ID:       generateSessionID(),
		Title:    deriveTitle(msgs),
		Provider: provider.Key(),
		Mode:     mode.Key(),
		SavedAt:  time.Now(),
		Messages: snapshotMessages(msgs),
	}

	sessions := s.List()
	sessions = append([]SavedSession{*sess}, sessions...)
	if len(sessions) > MaxSessions {
		sessions = sessions[:MaxSessions]
	}

	if err := s.writeList(sessions); err != nil {
		return nil, err
	}
	return sess, nil
}

// List returns all saved sessions, newest first. Missing or unparseable
// stored data degrades to an empty list.
func (s *SessionStore) List() []SavedSession {
	data, ok := s.kv.Get(sessionsKey)
	if !ok {
		return nil
	}

	var sessions []SavedSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil
	}
	return sessions
}

// Load retrieves a saved session by ID.
func (s *SessionStore) Load(id string) (*SavedSession, error) {
	for _, sess := range s.List() {
		if sess.ID == id {
			return &sess, nil
		}
	}
	return nil, ErrSessionNotFound
}

// Delete removes a saved session by ID.
func (s *SessionStore) Delete(id string) error {
	sessions := s.List()
	for i, sess := range sessions {
		if sess.ID == id {
			sessions = append(sessions[:i], sessions[i+1:]...)
			return s.writeList(sessions)
		}
	}
	return ErrSessionNotFound
}

// Clear removes all saved sessions.
func (s *SessionStore) Clear() error {
	return s.kv.Remove(sessionsKey)
}

func (s *SessionStore) writeList(sessions []SavedSession) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	return s.kv.Set(sessionsKey, data)
}

// =============================================================================
// SNAPSHOT / RESTORE
// =============================================================================

// snapshotMessages converts a live log to its persisted form, skipping
// messages that are still in flight or terminated in error.
func snapshotMessages(msgs []*convo.Message) []SavedMessage {
	out := make([]SavedMessage, 0, len(msgs))
	for _, m := range msgs {
		if !m.State().Terminal() || m.Errored() {
			continue
		}
		out = append(out, SavedMessage{
			ID:         m.ID,
			Role:       string(m.Role),
			Timestamp:  m.Timestamp,
			Text:       m.Text,
			ImageURL:   m.ImageURL,
			VideoURL:   m.VideoURL,
			Links:      m.Links,
			Base64Data: m.Base64Data,
			MIMEType:   m.MIMEType,
		})
	}
	return out
}

// Restore rebuilds a terminal message log from a snapshot, suitable for
// handing to the reducer's Replace.
func (s *SavedSession) Restore() []*convo.Message {
	out := make([]*convo.Message, 0, len(s.Messages))
	for _, sm := range s.Messages {
		m := convo.Restored(sm.ID, convo.Role(sm.Role), sm.Timestamp)
		m.Text = sm.Text
		m.ImageURL = sm.ImageURL
		m.VideoURL = sm.VideoURL
		m.Links = sm.Links
		m.Base64Data = sm.Base64Data
		m.MIMEType = sm.MIMEType
		out = append(out, m)
	}
	return out
}

// deriveTitle takes the first user message with text, truncated for display.
func deriveTitle(msgs []*convo.Message) string {
	for _, m := range msgs {
		if m.Role == convo.RoleUser && m.Text != "" {
			title := strings.ReplaceAll(m.Text, "\n", " ")
			title = strings.ReplaceAll(title, "\r", "")
			return util.TruncateWidth(title, 50)
		}
	}
	return "New conversation"
}

// generateSessionID creates a unique session ID.
func generateSessionID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "sess_" + hex.EncodeToString(bytes)
}
