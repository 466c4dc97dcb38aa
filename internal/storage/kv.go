// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the on-disk persistence bridge: a small key-value
// store backed by SQLite, and session snapshots layered on top of it.
//
// Persistence is best-effort. A store that failed to open still satisfies
// every call: reads come back empty and writes are dropped, so a broken disk
// never takes the chat down with it.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// KEY-VALUE STORE
// =============================================================================

// KV is a string-keyed blob store over a single SQLite table. A nil *KV is
// valid and behaves as an empty, write-discarding store.
type KV struct {
	mu sync.Mutex
	db *sql.DB
}

const kvSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// DefaultPath returns the default database location under the user's home
// directory.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".omnichat", "omnichat.db"), nil
}

// OpenKV opens (creating if needed) the store at path.
func OpenKV(path string) (*KV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(kvSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &KV{db: db}, nil
}

// Get returns the stored value for key. Missing keys, a nil store, and read
// failures all report (nil, false).
func (k *KV) Get(key string) ([]byte, bool) {
	if k == nil || k.db == nil {
		return nil, false
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	var value []byte
	err := k.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set stores value under key, replacing any previous value. A nil store
// discards the write.
func (k *KV) Set(key string, value []byte) error {
	if k == nil || k.db == nil {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	_, err := k.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	return err
}

// Remove deletes key. Removing a missing key is not an error.
func (k *KV) Remove(key string) error {
	if k == nil || k.db == nil {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	_, err := k.db.Exec("DELETE FROM kv WHERE key = ?", key)
	return err
}

// Close releases the underlying database.
func (k *KV) Close() error {
	if k == nil || k.db == nil {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.db.Close()
}
