// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/omnichat/omnichat-tui/internal/catalog"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DefaultProvider != "gemini" {
		t.Errorf("DefaultProvider = %q, want gemini", cfg.DefaultProvider)
	}
	if cfg.LocalServer.URL != "http://127.0.0.1:11434" {
		t.Errorf("LocalServer.URL = %q", cfg.LocalServer.URL)
	}
	if cfg.Device.Model != "gemma3:1b" {
		t.Errorf("Device.Model = %q", cfg.Device.Model)
	}
	if cfg.Speech.Voice != "Zephyr" {
		t.Errorf("Speech.Voice = %q", cfg.Speech.Voice)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
default_provider = "anthropic"

[keys]
gemini = "g-key"
anthropic = "a-key"

[local_server]
url = "http://192.168.1.5:11434"
model = "mistral"

[speech]
voice = "Puck"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Provider() != catalog.ProviderAnthropic {
		t.Errorf("Provider() = %v", cfg.Provider())
	}
	if cfg.KeyFor(catalog.ProviderGemini) != "g-key" {
		t.Errorf("gemini key = %q", cfg.KeyFor(catalog.ProviderGemini))
	}
	if cfg.LocalServer.Model != "mistral" {
		t.Errorf("LocalServer.Model = %q", cfg.LocalServer.Model)
	}
	if cfg.Speech.Voice != "Puck" {
		t.Errorf("Speech.Voice = %q", cfg.Speech.Voice)
	}

	// Missing fields still get defaults.
	if cfg.Device.Model != "gemma3:1b" {
		t.Errorf("Device.Model = %q, want default", cfg.Device.Model)
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.DefaultProvider != Default().DefaultProvider {
		t.Errorf("DefaultProvider = %q", cfg.DefaultProvider)
	}
}

func TestLoadFromPath_InvalidProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`default_provider = "clippy"`), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatal("want validation error")
	}
	var verrs ValidateErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("error type = %T", err)
	}
	if verrs[0].Field != "default_provider" {
		t.Errorf("field = %q", verrs[0].Field)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.SetKeyFor(catalog.ProviderOpenAI, "sk-test")
	cfg.DefaultProvider = "openai"
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	// Saved file is owner read/write only.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.KeyFor(catalog.ProviderOpenAI) != "sk-test" {
		t.Errorf("openai key = %q", loaded.KeyFor(catalog.ProviderOpenAI))
	}
	if loaded.Provider() != catalog.ProviderOpenAI {
		t.Errorf("provider = %v", loaded.Provider())
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("OMNICHAT_PROVIDER", "cohere")
	t.Setenv("GEMINI_API_KEY", "env-gemini")
	t.Setenv("OMNICHAT_LOCAL_MODEL", "phi3")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.DefaultProvider != "cohere" {
		t.Errorf("DefaultProvider = %q", cfg.DefaultProvider)
	}
	if cfg.Keys.Gemini != "env-gemini" {
		t.Errorf("Keys.Gemini = %q", cfg.Keys.Gemini)
	}
	if cfg.LocalServer.Model != "phi3" {
		t.Errorf("LocalServer.Model = %q", cfg.LocalServer.Model)
	}
}

func TestStringRedactsKeys(t *testing.T) {
	cfg := Default()
	cfg.Keys.Gemini = "super-secret-key"
	cfg.Keys.Anthropic = "another-secret"

	out := cfg.String()
	if strings.Contains(out, "super-secret-key") || strings.Contains(out, "another-secret") {
		t.Error("String() leaked an API key")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("String() should mark redacted keys")
	}

	// Redaction must not mutate the original.
	if cfg.Keys.Gemini != "super-secret-key" {
		t.Error("String() mutated the config")
	}
}

func TestKeyForRoundTrip(t *testing.T) {
	cfg := Default()
	providers := []catalog.Provider{
		catalog.ProviderGemini, catalog.ProviderOpenAI, catalog.ProviderAnthropic,
		catalog.ProviderCohere, catalog.ProviderHuggingFace,
	}
	for _, p := range providers {
		cfg.SetKeyFor(p, "key-"+p.Key())
		if got := cfg.KeyFor(p); got != "key-"+p.Key() {
			t.Errorf("KeyFor(%v) = %q", p, got)
		}
	}

	// Keyless providers report empty.
	if cfg.KeyFor(catalog.ProviderDevice) != "" {
		t.Error("device provider should have no key")
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`default_provider = "gemini"`), 0600); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()
	w.debounce = 50 * time.Millisecond

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte(`default_provider = "openai"`), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Provider() != catalog.ProviderOpenAI {
			t.Errorf("reloaded provider = %v", cfg.Provider())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload never fired")
	}
}

func TestWatcherIgnoresBrokenEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`default_provider = "gemini"`), 0600); err != nil {
		t.Fatal(err)
	}

	reloads := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { reloads <- cfg })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()
	w.debounce = 50 * time.Millisecond

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	// A syntactically broken file must not produce a reload.
	if err := os.WriteFile(path, []byte(`default_provider = `), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloads:
		t.Fatal("broken config produced a reload")
	case <-time.After(500 * time.Millisecond):
	}
}
