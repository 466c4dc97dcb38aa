// omnichat - one terminal for every AI provider.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/omnichat/omnichat-tui/internal/backend"
	"github.com/omnichat/omnichat-tui/internal/backend/anthropic"
	"github.com/omnichat/omnichat-tui/internal/backend/cohere"
	"github.com/omnichat/omnichat-tui/internal/backend/device"
	"github.com/omnichat/omnichat-tui/internal/backend/gemini"
	"github.com/omnichat/omnichat-tui/internal/backend/localserver"
	"github.com/omnichat/omnichat-tui/internal/backend/openai"
	"github.com/omnichat/omnichat-tui/internal/catalog"
	"github.com/omnichat/omnichat-tui/internal/cli"
	"github.com/omnichat/omnichat-tui/internal/config"
	"github.com/omnichat/omnichat-tui/internal/controller"
	"github.com/omnichat/omnichat-tui/internal/convo"
	"github.com/omnichat/omnichat-tui/internal/live"
	"github.com/omnichat/omnichat-tui/internal/media"
	"github.com/omnichat/omnichat-tui/internal/storage"
	"github.com/omnichat/omnichat-tui/internal/ui/chat"
	"github.com/omnichat/omnichat-tui/internal/ui/styles"
	"github.com/omnichat/omnichat-tui/internal/util"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		flagProvider = flag.String("provider", "", "start with this provider (gemini, openai, anthropic, ...)")
		flagREPL     = flag.Bool("repl", false, "use the plain-terminal REPL instead of the full-screen UI")
		flagQuiet    = flag.Bool("quiet", false, "suppress the welcome banner")
		flagVersion  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *flagVersion {
		fmt.Printf("omnichat %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*flagProvider, *flagREPL, *flagQuiet); err != nil {
		fmt.Fprintf(os.Stderr, "omnichat: %v\n", err)
		os.Exit(1)
	}
}

func run(providerFlag string, forceREPL, quiet bool) error {
	defer util.CloseLog()

	cfg, err := config.Load()
	if err != nil {
		util.Logf("config load failed, using defaults: %v", err)
		cfg = config.Default()
		cfg.ApplyEnvOverrides()
	}
	config.SetGlobal(cfg)

	provider := cfg.Provider()
	if providerFlag != "" {
		p, err := catalog.ParseProvider(providerFlag)
		if err != nil {
			return err
		}
		provider = p
	}

	registry := backend.NewRegistry()
	engine := registerBackends(registry, cfg)
	go func() {
		if err := engine.Init(context.Background()); err != nil {
			util.Logf("device engine init: %v", err)
		}
	}()

	reducer := convo.NewReducer()
	sessions := storage.NewSessionStore(openStore())

	opts := []controller.Option{
		controller.WithEngine(engine),
		controller.WithAudioSink(live.NewFileSink(liveRecordingPath())),
	}
	if extractor, err := media.NewFFmpegExtractor(); err == nil {
		opts = append(opts, controller.WithFrameExtractor(extractor))
	} else {
		util.Logf("video understanding disabled: %v", err)
	}
	if cfg.Maps.Set() {
		opts = append(opts, controller.WithLocator(staticLocator{
			lat: cfg.Maps.Latitude,
			lon: cfg.Maps.Longitude,
		}))
	}

	if forceREPL || !cli.IsInteractive() {
		return runREPL(registry, reducer, sessions, provider, quiet, opts)
	}
	return runTUI(registry, reducer, sessions, provider, cfg, opts)
}

// runTUI starts the full-screen interface.
func runTUI(registry *backend.Registry, reducer *convo.Reducer, sessions *storage.SessionStore,
	provider catalog.Provider, cfg *config.Config, opts []controller.Option) error {

	relay := chat.NewRelay()
	ctrl := controller.New(registry, reducer, sessions, provider, relay.Handlers(), opts...)
	defer ctrl.Teardown()

	watcher := watchConfig(registry)
	if watcher != nil {
		defer watcher.Close()
	}

	theme := styles.NewTheme(cfg.UI.Theme)
	program := tea.NewProgram(chat.New(theme, ctrl), tea.WithAltScreen())
	relay.Attach(program)

	_, err := program.Run()
	return err
}

// runREPL starts the line-oriented fallback.
func runREPL(registry *backend.Registry, reducer *convo.Reducer, sessions *storage.SessionStore,
	provider catalog.Provider, quiet bool, opts []controller.Option) error {

	repl := cli.NewREPL(quiet)
	ctrl := controller.New(registry, reducer, sessions, provider, repl.Handlers(), opts...)
	defer ctrl.Teardown()

	watcher := watchConfig(registry)
	if watcher != nil {
		defer watcher.Close()
	}

	return repl.Run(context.Background(), ctrl)
}

// registerBackends installs one backend per provider and returns the shared
// on-device engine.
func registerBackends(registry *backend.Registry, cfg *config.Config) *device.Engine {
	registerRemote(registry, cfg)

	engine := device.NewEngineWithConfig(&localserver.ClientConfig{}, cfg.Device.Model)
	registry.Register(catalog.ProviderDevice, engine)
	registry.Register(catalog.ProviderFree, engine)
	return engine
}

// registerRemote installs the network-backed providers. Called again by the
// config watcher when credentials change.
func registerRemote(registry *backend.Registry, cfg *config.Config) {
	registry.Register(catalog.ProviderGemini,
		gemini.NewClient(cfg.Keys.Gemini).WithVoice(cfg.Speech.Voice))
	registry.Register(catalog.ProviderOpenAI, openai.NewClient(cfg.Keys.OpenAI))
	registry.Register(catalog.ProviderAnthropic, anthropic.NewClient(cfg.Keys.Anthropic))
	registry.Register(catalog.ProviderCohere, cohere.NewClient(cfg.Keys.Cohere))
	registry.Register(catalog.ProviderHuggingFace,
		openai.NewHuggingFaceClient(cfg.Keys.HuggingFace, ""))
	registry.Register(catalog.ProviderLocalServer,
		localserver.NewClientWithConfig(&localserver.ClientConfig{
			BaseURL:      cfg.LocalServer.URL,
			DefaultModel: cfg.LocalServer.Model,
		}))
}

// watchConfig reloads edited API keys into the registry without a restart.
// The running device engine is kept; re-registering it would drop init state.
func watchConfig(registry *backend.Registry) *config.Watcher {
	path, err := config.ConfigPath()
	if err != nil {
		return nil
	}
	watcher, err := config.NewWatcher(path, func(cfg *config.Config) {
		config.SetGlobal(cfg)
		registerRemote(registry, cfg)
		util.Logf("config reloaded")
	})
	if err != nil {
		util.Logf("config watch unavailable: %v", err)
		return nil
	}
	if err := watcher.Watch(); err != nil {
		watcher.Close()
		util.Logf("config watch failed: %v", err)
		return nil
	}
	return watcher
}

// openStore opens the session database; persistence degrades to in-memory
// no-ops when the database cannot be opened.
func openStore() *storage.KV {
	path, err := storage.DefaultPath()
	if err != nil {
		util.Logf("session store disabled: %v", err)
		return nil
	}
	kv, err := storage.OpenKV(path)
	if err != nil {
		util.Logf("session store disabled: %v", err)
		return nil
	}
	return kv
}

// staticLocator serves the configured location hint for maps-grounded chat.
type staticLocator struct {
	lat, lon float64
}

func (l staticLocator) Locate() (backend.Location, bool) {
	return backend.Location{Latitude: l.lat, Longitude: l.lon}, true
}

// liveRecordingPath names the WAV file a live conversation records into.
func liveRecordingPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("live-%s.wav", time.Now().Format("20060102-150405")))
}
