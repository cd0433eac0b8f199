// Command earshot runs the local voice interaction pipeline: microphone
// capture, wake detection, and the wake → ASR → NLU → skill → TTS session
// loop, with the event stream and metrics served over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/earshot-ai/earshot/internal/app"
	"github.com/earshot-ai/earshot/internal/config"
	"github.com/earshot-ai/earshot/internal/intent"
	intentllm "github.com/earshot-ai/earshot/internal/intent/llm"
	"github.com/earshot-ai/earshot/internal/intent/rules"
	"github.com/earshot-ai/earshot/internal/observe"
	"github.com/earshot-ai/earshot/pkg/audio"
	malgosource "github.com/earshot-ai/earshot/pkg/audio/malgo"
	"github.com/earshot-ai/earshot/pkg/audio/playback"
	asrmock "github.com/earshot-ai/earshot/pkg/provider/asr/mock"
	"github.com/earshot-ai/earshot/pkg/provider/asr/whisper"
	ttsmock "github.com/earshot-ai/earshot/pkg/provider/tts/mock"
	"github.com/earshot-ai/earshot/pkg/provider/tts/piper"
	"github.com/earshot-ai/earshot/pkg/provider/wakeword/phonetic"
)

// version is stamped via -ldflags at release time.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "earshot: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "earshot: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("earshot starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "earshot",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	providers, cleanup, err := buildProviders(cfg, logger)
	defer cleanup()
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("pipeline ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProviders instantiates the providers named in cfg. The returned
// cleanup releases whatever was constructed before an error, so callers
// can defer it unconditionally.
func buildProviders(cfg *config.Config, logger *slog.Logger) (app.Providers, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	ps := app.Providers{
		Source: malgosource.New(audioSourceConfig(cfg), logger),
	}

	// ── ASR ──────────────────────────────────────────────────────────
	asrEntry := cfg.Providers.ASR
	switch asrEntry.Name {
	case "whisper":
		var opts []whisper.Option
		if asrEntry.Language != "" {
			opts = append(opts, whisper.WithLanguage(asrEntry.Language))
		}
		if cfg.Audio.SampleRate > 0 {
			opts = append(opts, whisper.WithSampleRate(cfg.Audio.SampleRate))
		}
		p, err := whisper.New(asrEntry.Model, opts...)
		if err != nil {
			return ps, cleanup, fmt.Errorf("create asr provider %q: %w", asrEntry.Name, err)
		}
		closers = append(closers, func() { _ = p.Close() })
		ps.ASR = p
	case "mock":
		slog.Warn("using mock asr provider; transcripts will stay empty")
		ps.ASR = asrmock.NewProvider()
	default:
		return ps, cleanup, fmt.Errorf("unknown asr provider %q", asrEntry.Name)
	}
	slog.Info("provider created", "kind", "asr", "name", asrEntry.Name)

	// ── TTS ──────────────────────────────────────────────────────────
	ttsEntry := cfg.Providers.TTS
	switch ttsEntry.Name {
	case "piper":
		player, err := playback.NewPlayer(0, 1)
		if err != nil {
			return ps, cleanup, fmt.Errorf("open speaker: %w", err)
		}
		voice := ttsEntry.Voice
		if voice == "" {
			voice = ttsEntry.Model
		}
		p, err := piper.New(piper.Config{
			Binary: ttsEntry.Binary,
			Model:  voice,
			Player: player,
			Logger: logger,
		})
		if err != nil {
			return ps, cleanup, fmt.Errorf("create tts provider %q: %w", ttsEntry.Name, err)
		}
		ps.TTS = p
	case "mock":
		slog.Warn("using mock tts provider; responses will not be audible")
		ps.TTS = &ttsmock.Provider{}
	default:
		return ps, cleanup, fmt.Errorf("unknown tts provider %q", ttsEntry.Name)
	}
	slog.Info("provider created", "kind", "tts", "name", ttsEntry.Name)

	// ── NLU ──────────────────────────────────────────────────────────
	interp, err := buildInterpreter(cfg.Providers.NLU)
	if err != nil {
		return ps, cleanup, err
	}
	ps.Interpreter = interp
	slog.Info("provider created", "kind", "nlu", "name", cfg.Providers.NLU.Name)

	// ── Wake-word spotter (keyword strategy only) ────────────────────
	if cfg.Wake.Strategy == config.WakeKeyword {
		rec, ok := ps.ASR.(phonetic.Recognizer)
		if !ok {
			return ps, cleanup, fmt.Errorf("keyword wake strategy requires the whisper asr provider, got %q", asrEntry.Name)
		}
		spotter, err := phonetic.New(cfg.Wake.Phrases, rec,
			phonetic.WithSampleRate(cfg.Audio.SampleRate))
		if err != nil {
			return ps, cleanup, fmt.Errorf("create wake-word spotter: %w", err)
		}
		ps.Spotter = spotter
	}

	return ps, cleanup, nil
}

func buildInterpreter(entry config.ProviderEntry) (intent.Interpreter, error) {
	switch entry.Name {
	case "rules", "":
		return rules.New(), nil
	case "openai", "anthropic", "ollama":
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := intentllm.New(entry.Name, entry.Model, opts)
		if err != nil {
			return nil, fmt.Errorf("create nlu provider %q: %w", entry.Name, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown nlu provider %q", entry.Name)
	}
}

func audioSourceConfig(cfg *config.Config) audio.SourceConfig {
	return audio.SourceConfig{
		SampleRate:    cfg.Audio.SampleRate,
		Channels:      cfg.Audio.Channels,
		FrameDuration: cfg.Audio.FrameMs,
		Device:        cfg.Audio.Device,
	}
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Earshot — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("ASR", cfg.Providers.ASR.Name, cfg.Providers.ASR.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Voice)
	printProvider("NLU", cfg.Providers.NLU.Name, cfg.Providers.NLU.Model)
	fmt.Printf("║  Wake strategy   : %-19s ║\n", cfg.Wake.Strategy)
	if cfg.Memory.PostgresDSN != "" {
		fmt.Printf("║  Fact store      : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Fact store      : %-19s ║\n", "in-memory")
	}
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.MCP.Servers))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
