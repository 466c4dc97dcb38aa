// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for omnichat.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides. The file lives at ~/.omnichat/config.toml.
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete omnichat configuration.
type Config struct {
	// DefaultProvider is the provider selected at startup (catalog key).
	DefaultProvider string `toml:"default_provider"`

	// Keys holds per-provider API credentials.
	Keys KeysConfig `toml:"keys"`

	// LocalServer configures the local-network model server.
	LocalServer LocalServerConfig `toml:"local_server"`

	// Device configures the on-device model runtime.
	Device DeviceConfig `toml:"device"`

	// Speech configures voice synthesis and live conversation audio.
	Speech SpeechConfig `toml:"speech"`

	// Maps supplies the location hint for maps-grounded chat.
	Maps MapsConfig `toml:"maps"`

	// UI configures the terminal interface.
	UI UIConfig `toml:"ui"`
}

// KeysConfig contains per-provider API keys.
type KeysConfig struct {
	Gemini      string `toml:"gemini"`
	OpenAI      string `toml:"openai"`
	Anthropic   string `toml:"anthropic"`
	Cohere      string `toml:"cohere"`
	HuggingFace string `toml:"huggingface"`
}

// LocalServerConfig contains local model server (Ollama API) configuration.
type LocalServerConfig struct {
	// URL is the base URL of the server.
	URL string `toml:"url"`
	// Model is the default model name sent with each request.
	Model string `toml:"model"`
}

// DeviceConfig contains on-device runtime configuration.
type DeviceConfig struct {
	// Model is the pinned small model the managed runtime serves.
	Model string `toml:"model"`
}

// SpeechConfig contains audio configuration.
type SpeechConfig struct {
	// Voice is the prebuilt voice name used for synthesis.
	Voice string `toml:"voice"`
}

// MapsConfig contains the static location hint. Terminals have no geolocation
// API; unset coordinates mean maps queries go out without a hint.
type MapsConfig struct {
	Latitude  float64 `toml:"latitude"`
	Longitude float64 `toml:"longitude"`
}

// Set reports whether a location hint was configured.
func (m MapsConfig) Set() bool {
	return m.Latitude != 0 || m.Longitude != 0
}

// UIConfig contains terminal UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// CompactMode uses a more compact layout
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DefaultProvider: catalog.ProviderGemini.Key(),

		LocalServer: LocalServerConfig{
			URL:   "http://127.0.0.1:11434",
			Model: "llama3.2",
		},

		Device: DeviceConfig{
			Model: "gemma3:1b",
		},

		Speech: SpeechConfig{
			Voice: "Zephyr",
		},

		UI: UIConfig{
			Theme:       "dark",
			CompactMode: false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the omnichat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".omnichat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on the config file.
// API keys live in it, so it should be owner read/write only.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// defaults when the file is missing. Environment overrides apply last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with validation.
// A missing file is not an error; defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := ensureSecurePermissions(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with owner-only
// permissions, since it carries API keys.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# omnichat configuration file")
	fmt.Fprintln(&buf, "# Edit with care: keys are secrets.")
	fmt.Fprintln(&buf, "")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// Atomic write: a crash mid-save must not leave a truncated config that
	// the next load would reject, losing the stored keys.
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.DefaultProvider != "" {
		if _, err := catalog.ParseProvider(c.DefaultProvider); err != nil {
			errs = append(errs, ValidationError{
				Field:   "default_provider",
				Message: err.Error(),
			})
		}
	}

	if c.LocalServer.URL != "" {
		if _, err := url.Parse(c.LocalServer.URL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "local_server.url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		}
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.DefaultProvider == "" {
		c.DefaultProvider = defaults.DefaultProvider
	}
	if c.LocalServer.URL == "" {
		c.LocalServer.URL = defaults.LocalServer.URL
	}
	if c.LocalServer.Model == "" {
		c.LocalServer.Model = defaults.LocalServer.Model
	}
	if c.Device.Model == "" {
		c.Device.Model = defaults.Device.Model
	}
	if c.Speech.Voice == "" {
		c.Speech.Voice = defaults.Speech.Voice
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - OMNICHAT_PROVIDER: overrides default_provider
//   - OMNICHAT_VOICE: overrides speech.voice
//   - OMNICHAT_LOCAL_URL: overrides local_server.url
//   - OMNICHAT_LOCAL_MODEL: overrides local_server.model
//   - GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, CO_API_KEY,
//     HF_TOKEN: override the respective provider keys
func (c *Config) ApplyEnvOverrides() {
	if provider := os.Getenv("OMNICHAT_PROVIDER"); provider != "" {
		c.DefaultProvider = provider
	}
	if voice := os.Getenv("OMNICHAT_VOICE"); voice != "" {
		c.Speech.Voice = voice
	}
	if url := os.Getenv("OMNICHAT_LOCAL_URL"); url != "" {
		c.LocalServer.URL = url
	}
	if model := os.Getenv("OMNICHAT_LOCAL_MODEL"); model != "" {
		c.LocalServer.Model = model
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Keys.Gemini = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Keys.OpenAI = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.Keys.Anthropic = key
	}
	if key := os.Getenv("CO_API_KEY"); key != "" {
		c.Keys.Cohere = key
	}
	if key := os.Getenv("HF_TOKEN"); key != "" {
		c.Keys.HuggingFace = key
	}
}

// =============================================================================
// ACCESS HELPERS
// =============================================================================

// KeyFor returns the stored API key for a provider. Providers that need no
// credential report an empty key.
func (c *Config) KeyFor(p catalog.Provider) string {
	switch p {
	case catalog.ProviderGemini:
		return c.Keys.Gemini
	case catalog.ProviderOpenAI:
		return c.Keys.OpenAI
	case catalog.ProviderAnthropic:
		return c.Keys.Anthropic
	case catalog.ProviderCohere:
		return c.Keys.Cohere
	case catalog.ProviderHuggingFace:
		return c.Keys.HuggingFace
	default:
		return ""
	}
}

// SetKeyFor stores an API key for a provider.
func (c *Config) SetKeyFor(p catalog.Provider, key string) {
	switch p {
	case catalog.ProviderGemini:
		c.Keys.Gemini = key
	case catalog.ProviderOpenAI:
		c.Keys.OpenAI = key
	case catalog.ProviderAnthropic:
		c.Keys.Anthropic = key
	case catalog.ProviderCohere:
		c.Keys.Cohere = key
	case catalog.ProviderHuggingFace:
		c.Keys.HuggingFace = key
	}
}

// Provider resolves the configured default provider.
func (c *Config) Provider() catalog.Provider {
	p, err := catalog.ParseProvider(c.DefaultProvider)
	if err != nil {
		return catalog.ProviderGemini
	}
	return p
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a redacted representation of the config for debugging.
// API keys never appear in plaintext in log or debug output.
func (c *Config) String() string {
	safe := c.Clone()
	redact := func(s string) string {
		if s == "" {
			return ""
		}
		return "[REDACTED]"
	}
	safe.Keys.Gemini = redact(safe.Keys.Gemini)
	safe.Keys.OpenAI = redact(safe.Keys.OpenAI)
	safe.Keys.Anthropic = redact(safe.Keys.Anthropic)
	safe.Keys.Cohere = redact(safe.Keys.Cohere)
	safe.Keys.HuggingFace = redact(safe.Keys.HuggingFace)

	var sb strings.Builder
	encoder := toml.NewEncoder(&sb)
	if err := encoder.Encode(safe); err != nil {
		return fmt.Sprintf("config (encode error: %v)", err)
	}
	return sb.String()
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
			cfg.ApplyEnvOverrides()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
