// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/convo"
)

func openTestKV(t *testing.T) *KV {
	t.Helper()
	kv, err := OpenKV(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenKV failed: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

// =============================================================================
// KEY-VALUE STORE TESTS
// =============================================================================

func TestKV_SetGetRemove(t *testing.T) {
	kv := openTestKV(t)

	if _, ok := kv.Get("missing"); ok {
		t.Error("missing key should not be found")
	}

	if err := kv.Set("greeting", []byte("hello")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, ok := kv.Get("greeting")
	if !ok || string(value) != "hello" {
		t.Errorf("Get = %q, %v; want hello, true", value, ok)
	}

	// Overwrite replaces.
	if err := kv.Set("greeting", []byte("goodbye")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, _ = kv.Get("greeting")
	if string(value) != "goodbye" {
		t.Errorf("Get after overwrite = %q, want goodbye", value)
	}

	if err := kv.Remove("greeting"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := kv.Get("greeting"); ok {
		t.Error("removed key should not be found")
	}

	// Removing a missing key is not an error.
	if err := kv.Remove("greeting"); err != nil {
		t.Errorf("Remove of missing key = %v, want nil", err)
	}
}

func TestKV_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	kv, err := OpenKV(path)
	if err != nil {
		t.Fatalf("OpenKV failed: %v", err)
	}
	if err := kv.Set("k", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	kv.Close()

	kv2, err := OpenKV(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer kv2.Close()

	value, ok := kv2.Get("k")
	if !ok || string(value) != "v" {
		t.Errorf("Get after reopen = %q, %v; want v, true", value, ok)
	}
}

func TestKV_NilStoreDegrades(t *testing.T) {
	var kv *KV

	if _, ok := kv.Get("k"); ok {
		t.Error("nil store Get should report not found")
	}
	if err := kv.Set("k", []byte("v")); err != nil {
		t.Errorf("nil store Set = %v, want nil", err)
	}
	if err := kv.Remove("k"); err != nil {
		t.Errorf("nil store Remove = %v, want nil", err)
	}
	if err := kv.Close(); err != nil {
		t.Errorf("nil store Close = %v, want nil", err)
	}
}

// =============================================================================
// SESSION STORE TESTS
// =============================================================================

// completedLog builds a terminal user/model exchange through the reducer.
func completedLog(t *testing.T, userText, modelText string) []*convo.Message {
	t.Helper()
	r := convo.NewReducer()
	id, err := r.BeginTurn(convo.UserTurn{Text: userText})
	if err != nil {
		t.Fatalf("BeginTurn failed: %v", err)
	}
	if err := r.FirstChunk(id, modelText, nil); err != nil {
		t.Fatalf("FirstChunk failed: %v", err)
	}
	if err := r.FinishStream(id); err != nil {
		t.Fatalf("FinishStream failed: %v", err)
	}
	return r.Messages()
}

func TestSessionStore_SaveAndLoad(t *testing.T) {
	store := NewSessionStore(openTestKV(t))

	sess, err := store.Save(catalog.ProviderGemini, catalog.ModeSearch, completedLog(t, "What is Go?", "A programming language."))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasPrefix(sess.ID, "sess_") {
		t.Errorf("ID should start with 'sess_', got %q", sess.ID)
	}
	if sess.Title != "What is Go?" {
		t.Errorf("Title = %q", sess.Title)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("snapshot has %d messages, want 2", len(sess.Messages))
	}

	loaded, err := store.Load(sess.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ProviderValue() != catalog.ProviderGemini {
		t.Errorf("provider = %v", loaded.ProviderValue())
	}
	if loaded.ModeValue() != catalog.ModeSearch {
		t.Errorf("mode = %v", loaded.ModeValue())
	}
	if loaded.Messages[1].Text != "A programming language." {
		t.Errorf("model text = %q", loaded.Messages[1].Text)
	}
}

func TestSessionStore_SkipsInFlightAndErroredMessages(t *testing.T) {
	store := NewSessionStore(openTestKV(t))

	r := convo.NewReducer()
	id, _ := r.BeginTurn(convo.UserTurn{Text: "first"})
	r.FirstChunk(id, "done answer", nil)
	r.FinishStream(id)

	id2, _ := r.BeginTurn(convo.UserTurn{Text: "second"})
	r.Fail(id2, "Something went wrong.")

	// Third turn still pending.
	r.BeginTurn(convo.UserTurn{Text: "third"})

	sess, err := store.Save(catalog.ProviderOpenAI, catalog.ModeChat, r.Messages())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// 3 user messages + 1 completed model message; the errored and pending
	// model messages are dropped.
	if len(sess.Messages) != 4 {
		t.Fatalf("snapshot has %d messages, want 4", len(sess.Messages))
	}
	for _, m := range sess.Messages {
		if m.Text == "Something went wrong." {
			t.Error("errored message was snapshotted")
		}
	}
}

func TestSessionStore_NewestFirstAndCapped(t *testing.T) {
	store := NewSessionStore(openTestKV(t))

	for i := 0; i < MaxSessions+5; i++ {
		msgs := completedLog(t, "prompt "+string(rune('a'+i)), "answer")
		if _, err := store.Save(catalog.ProviderGemini, catalog.ModeChat, msgs); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	sessions := store.List()
	if len(sessions) != MaxSessions {
		t.Fatalf("list has %d sessions, want %d", len(sessions), MaxSessions)
	}

	// Newest first: the last save is at the head.
	want := "prompt " + string(rune('a'+MaxSessions+4))
	if sessions[0].Title != want {
		t.Errorf("head title = %q, want %q", sessions[0].Title, want)
	}
}

func TestSessionStore_Delete(t *testing.T) {
	store := NewSessionStore(openTestKV(t))

	sess, err := store.Save(catalog.ProviderGemini, catalog.ModeChat, completedLog(t, "keep or drop", "ok"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete(sess.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load after delete = %v, want ErrSessionNotFound", err)
	}
	if err := store.Delete(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Delete = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStore_RestoreReplacesLog(t *testing.T) {
	store := NewSessionStore(openTestKV(t))

	sess, err := store.Save(catalog.ProviderGemini, catalog.ModeChat, completedLog(t, "hello", "hi there"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(sess.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	r := convo.NewReducer()
	r.BeginTurn(convo.UserTurn{Text: "unrelated"})
	r.Replace(loaded.Restore())

	msgs := r.Messages()
	if len(msgs) != 2 {
		t.Fatalf("restored log has %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != convo.RoleUser || msgs[0].Text != "hello" {
		t.Errorf("restored user message = %+v", msgs[0])
	}
	if msgs[1].Role != convo.RoleModel || msgs[1].Text != "hi there" {
		t.Errorf("restored model message = %+v", msgs[1])
	}
	if !msgs[1].State().Terminal() {
		t.Error("restored message should be terminal")
	}
	if r.Busy() {
		t.Error("reducer should not be busy after restore")
	}
}

func TestSessionStore_CorruptDataDegradesToEmpty(t *testing.T) {
	kv := openTestKV(t)
	if err := kv.Set(sessionsKey, []byte("{not json")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	store := NewSessionStore(kv)
	if got := store.List(); len(got) != 0 {
		t.Errorf("corrupt data should list empty, got %d", len(got))
	}

	// Saving over the corrupt blob starts a fresh list.
	if _, err := store.Save(catalog.ProviderGemini, catalog.ModeChat, completedLog(t, "fresh start", "ok")); err != nil {
		t.Fatalf("Save over corrupt data failed: %v", err)
	}
	if got := store.List(); len(got) != 1 {
		t.Errorf("list has %d sessions, want 1", len(got))
	}
}

func TestSessionStore_NilKVDropsSaves(t *testing.T) {
	store := NewSessionStore(nil)

	if got := store.List(); len(got) != 0 {
		t.Errorf("nil kv should list empty, got %d", len(got))
	}
	if _, err := store.Save(catalog.ProviderGemini, catalog.ModeChat, completedLog(t, "hello", "hi")); err != nil {
		t.Errorf("Save with nil kv = %v, want nil", err)
	}
}

func TestDeriveTitle(t *testing.T) {
	long := strings.Repeat("x", 60)
	wide := strings.Repeat("会", 30) // 60 display cells
	tests := []struct {
		name string
		msgs []*convo.Message
		want string
	}{
		{"empty log", nil, "New conversation"},
		{"short prompt", logWithUserText(t, "hello world"), "hello world"},
		{"long prompt truncated", logWithUserText(t, long), long[:47] + "..."},
		{"wide runes measured by cells", logWithUserText(t, wide), strings.Repeat("会", 23) + "..."},
		{"newlines flattened", logWithUserText(t, "line one\nline two"), "line one line two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveTitle(tt.msgs); got != tt.want {
				t.Errorf("deriveTitle = %q, want %q", got, tt.want)
			}
		})
	}
}

func logWithUserText(t *testing.T, text string) []*convo.Message {
	t.Helper()
	m := convo.Restored("msg_test", convo.RoleUser, time.Now())
	m.Text = text
	return []*convo.Message{m}
}
