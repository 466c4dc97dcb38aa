// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides persistence for omnichat.
//
// Two layers live here: a SQLite-backed key-value store (KV) and session
// snapshots (SessionStore) layered on top of it.
//
// # Key Types
//
//   - KV: string-keyed blob store; a nil *KV degrades to empty reads
//   - SessionStore: saved conversation snapshots, newest first, capped
//   - SavedSession / SavedMessage: serializable snapshot forms
//
// # Usage
//
// Open the store and save the current log:
//
//	kv, err := storage.OpenKV(path)
//	sessions := storage.NewSessionStore(kv)
//	saved, err := sessions.Save(provider, mode, reducer.Messages())
//
// List and restore:
//
//	for _, s := range sessions.List() { ... }
//	sess, err := sessions.Load(id)
//	reducer.Replace(sess.Restore())
//
// # Storage Location
//
// The database lives at ~/.omnichat/omnichat.db by default.
package storage
