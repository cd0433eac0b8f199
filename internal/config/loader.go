package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"asr": {"whisper", "mock"},
	"tts": {"piper", "mock"},
	"nlu": {"rules", "openai", "anthropic", "ollama"},
}

// Load reads the YAML configuration file at path, layered over
// [Default], and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It
// returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 1 {
		errs = append(errs, fmt.Errorf("audio.channels %d must be at least 1", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d must be positive", cfg.Audio.FrameMs))
	}

	if !cfg.Wake.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("wake.strategy %q is invalid; valid values: energy, keyword", cfg.Wake.Strategy))
	}
	if cfg.Wake.EnergyThreshold <= 0 || cfg.Wake.EnergyThreshold > 1 {
		errs = append(errs, fmt.Errorf("wake.energy_threshold %.3f is out of range (0, 1]", cfg.Wake.EnergyThreshold))
	}
	if cfg.Wake.TriggerDurationMs <= 0 {
		errs = append(errs, fmt.Errorf("wake.trigger_duration_ms %d must be positive", cfg.Wake.TriggerDurationMs))
	}
	if cfg.Wake.Strategy == WakeKeyword && len(cfg.Wake.Phrases) == 0 {
		errs = append(errs, errors.New("wake.phrases is required when wake.strategy is keyword"))
	}
	if cfg.Wake.ConfidenceThreshold < 0 || cfg.Wake.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("wake.confidence_threshold %.3f is out of range [0, 1]", cfg.Wake.ConfidenceThreshold))
	}

	for _, timeout := range []struct {
		key string
		ms  int
	}{
		{"session.listen_timeout_ms", cfg.Session.ListenTimeoutMs},
		{"session.recognize_timeout_ms", cfg.Session.RecognizeTimeoutMs},
		{"session.understand_timeout_ms", cfg.Session.UnderstandTimeoutMs},
		{"session.execute_timeout_ms", cfg.Session.ExecuteTimeoutMs},
		{"session.respond_timeout_ms", cfg.Session.RespondTimeoutMs},
	} {
		if timeout.ms <= 0 {
			errs = append(errs, fmt.Errorf("%s %d must be positive", timeout.key, timeout.ms))
		}
	}
	if cfg.Session.MaxTurns <= 0 {
		errs = append(errs, fmt.Errorf("session.max_turns %d must be positive", cfg.Session.MaxTurns))
	}

	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("nlu", cfg.Providers.NLU.Name)

	// Model paths are only needed once the provider is constructed, so a
	// default config without them still validates.
	if cfg.Providers.ASR.Name == "whisper" && cfg.Providers.ASR.Model == "" {
		slog.Warn("providers.asr.model is empty; the whisper provider will fail to start")
	}
	if cfg.Providers.TTS.Name == "piper" && cfg.Providers.TTS.Model == "" {
		slog.Warn("providers.tts.model is empty; the piper provider will fail to start")
	}
	switch cfg.Providers.NLU.Name {
	case "openai", "anthropic", "ollama":
		if cfg.Providers.NLU.Model == "" {
			errs = append(errs, fmt.Errorf("providers.nlu.model is required for the %s provider", cfg.Providers.NLU.Name))
		}
	}

	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; remembered facts will not survive a restart")
	}

	routedTools := make(map[string]bool)
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
			}
		case "http":
			if srv.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when transport is http", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, http", prefix, srv.Transport))
		}
	}
	for intentType, tool := range cfg.MCP.Routes {
		if tool == "" {
			errs = append(errs, fmt.Errorf("mcp.routes[%q] names no tool", intentType))
		}
		routedTools[tool] = true
	}
	if len(routedTools) > 0 && len(cfg.MCP.Servers) == 0 {
		errs = append(errs, errors.New("mcp.routes is set but mcp.servers is empty"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not
// found in the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
