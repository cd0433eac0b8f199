// Package config provides the configuration schema and loader for the
// Earshot voice pipeline.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// WakeStrategy selects the wake detection variant.
type WakeStrategy string

const (
	// WakeEnergy triggers on sustained loudness above a threshold.
	WakeEnergy WakeStrategy = "energy"

	// WakeKeyword triggers on a recognised wake phrase.
	WakeKeyword WakeStrategy = "keyword"
)

// IsValid reports whether s is a recognised wake strategy.
func (s WakeStrategy) IsValid() bool {
	return s == WakeEnergy || s == WakeKeyword
}

// Config is the root configuration structure. It is typically loaded
// from a YAML file using [Load] or [LoadFromReader]; unset fields keep
// the [Default] values.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Wake      WakeConfig      `yaml:"wake"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
	Memory    MemoryConfig    `yaml:"memory"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server (events WebSocket,
	// health, metrics) listens on.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig describes the capture format.
type AudioConfig struct {
	// SampleRate in Hz. The pipeline is tuned for 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels of the capture device. Multi-channel input is downmixed
	// to mono before it reaches the frame bus.
	Channels int `yaml:"channels"`

	// FrameMs is the frame duration in milliseconds.
	FrameMs int `yaml:"frame_ms"`

	// Device optionally names the capture device. Empty selects the
	// system default.
	Device string `yaml:"device"`
}

// WakeConfig tunes wake detection.
type WakeConfig struct {
	Strategy WakeStrategy `yaml:"strategy"`

	// EnergyThreshold is the normalised RMS level (0..1] the energy
	// strategy must sustain.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// TriggerDurationMs is how long the energy must stay above the
	// threshold before the detector fires.
	TriggerDurationMs int `yaml:"trigger_duration_ms"`

	// Phrases are the wake phrases for the keyword strategy.
	Phrases []string `yaml:"phrases"`

	// ConfidenceThreshold is the minimum keyword match score.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// SessionConfig tunes the per-stage session deadlines.
type SessionConfig struct {
	ListenTimeoutMs     int `yaml:"listen_timeout_ms"`
	RecognizeTimeoutMs  int `yaml:"recognize_timeout_ms"`
	UnderstandTimeoutMs int `yaml:"understand_timeout_ms"`
	ExecuteTimeoutMs    int `yaml:"execute_timeout_ms"`
	RespondTimeoutMs    int `yaml:"respond_timeout_ms"`

	// MaxTurns caps slot-filling rounds per session.
	MaxTurns int `yaml:"max_turns"`
}

// ProvidersConfig declares which implementation to use per pipeline
// stage.
type ProvidersConfig struct {
	ASR ProviderEntry `yaml:"asr"`
	TTS ProviderEntry `yaml:"tts"`
	NLU ProviderEntry `yaml:"nlu"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
// Only the fields relevant to a given kind are read.
type ProviderEntry struct {
	// Name selects the implementation (asr: whisper, mock; tts: piper,
	// mock; nlu: rules, openai, anthropic, ollama).
	Name string `yaml:"name"`

	// Model is the model path (whisper, piper) or model name (nlu).
	Model string `yaml:"model"`

	// Language hints the ASR language, e.g. "en".
	Language string `yaml:"language"`

	// Binary is the synthesis executable for the piper provider.
	Binary string `yaml:"binary"`

	// Voice optionally selects a TTS voice.
	Voice string `yaml:"voice"`

	// APIKey authenticates hosted NLU backends.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the NLU backend endpoint (e.g. a local ollama).
	BaseURL string `yaml:"base_url"`
}

// MemoryConfig selects the long-term fact store.
type MemoryConfig struct {
	// PostgresDSN enables the persistent store. Empty keeps facts in
	// memory only.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// MCPConfig declares external MCP tool servers and the intents routed
// to them.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`

	// Routes maps intent types to MCP tool names. Routed intents are
	// tried against the tool before the built-in skills.
	Routes map[string]string `yaml:"routes"`
}

// MCPServerConfig describes one MCP server connection.
type MCPServerConfig struct {
	Name string `yaml:"name"`

	// Transport is "stdio" or "http".
	Transport string `yaml:"transport"`

	// Command is the executable plus arguments for stdio transport.
	Command string `yaml:"command"`

	// Env holds additional environment variables for stdio servers.
	Env map[string]string `yaml:"env"`

	// URL is the endpoint for http transport.
	URL string `yaml:"url"`
}

// Default returns the configuration used when no file (or an empty
// file) is provided. Load decodes on top of these values, so a config
// file only needs the fields it changes.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			FrameMs:    20,
		},
		Wake: WakeConfig{
			Strategy:            WakeEnergy,
			EnergyThreshold:     0.05,
			TriggerDurationMs:   500,
			Phrases:             []string{"earshot", "hey earshot", "okay earshot"},
			ConfidenceThreshold: 0.6,
		},
		Session: SessionConfig{
			ListenTimeoutMs:     10000,
			RecognizeTimeoutMs:  15000,
			UnderstandTimeoutMs: 10000,
			ExecuteTimeoutMs:    30000,
			RespondTimeoutMs:    30000,
			MaxTurns:            5,
		},
		Providers: ProvidersConfig{
			ASR: ProviderEntry{Name: "whisper", Language: "en"},
			TTS: ProviderEntry{Name: "piper", Binary: "piper"},
			NLU: ProviderEntry{Name: "rules"},
		},
	}
}
