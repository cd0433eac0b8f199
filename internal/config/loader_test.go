package config

import (
	"strings"
	"testing"
)

func TestLoadFromReaderLayersOverDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFromReader(strings.NewReader(`
server:
  listen_addr: ":9090"
wake:
  energy_threshold: 0.1
providers:
  asr:
    name: mock
  tts:
    name: mock
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Wake.EnergyThreshold != 0.1 {
		t.Errorf("energy_threshold = %v", cfg.Wake.EnergyThreshold)
	}
	// Untouched fields keep their defaults.
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.FrameMs != 20 {
		t.Errorf("audio defaults lost: %+v", cfg.Audio)
	}
	if cfg.Session.MaxTurns != 5 {
		t.Errorf("max_turns = %d", cfg.Session.MaxTurns)
	}
}

func TestLoadFromReaderEmptyIsDefault(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.Wake.Strategy != def.Wake.Strategy || cfg.Server.ListenAddr != def.Server.ListenAddr {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := LoadFromReader(strings.NewReader("server:\n  listne_addr: \":8080\"\n"))
	if err == nil {
		t.Error("expected error for misspelled field")
	}
}

func TestValidateCollectsAllFailures(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Server.LogLevel = "verbose"
	cfg.Audio.SampleRate = 0
	cfg.Wake.EnergyThreshold = 2.0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log_level", "sample_rate", "energy_threshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateKeywordRequiresPhrases(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Wake.Strategy = WakeKeyword
	cfg.Wake.Phrases = nil

	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "phrases") {
		t.Errorf("err = %v, want missing-phrases failure", err)
	}
}

func TestValidateHostedNLURequiresModel(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Providers.NLU = ProviderEntry{Name: "ollama"}

	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "nlu.model") {
		t.Errorf("err = %v, want missing-model failure", err)
	}
}

func TestValidateMCPServers(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.MCP.Servers = []MCPServerConfig{
		{Name: "tools", Transport: "stdio"},       // missing command
		{Name: "remote", Transport: "http"},       // missing url
		{Name: "odd", Transport: "websocket"},     // bad transport
		{Transport: "stdio", Command: "/bin/foo"}, // missing name
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"command", "url", "transport", "name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestValidateRoutesNeedServers(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.MCP.Routes = map[string]string{"weather": "get_weather"}

	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "mcp.servers") {
		t.Errorf("err = %v, want routes-without-servers failure", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load("/nonexistent/earshot.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFromReader(strings.NewReader(`
server:
  listen_addr: ":8099"
  log_level: debug
audio:
  sample_rate: 48000
  channels: 2
  frame_ms: 10
  device: "usb-mic"
wake:
  strategy: keyword
  phrases: ["hey computer"]
  confidence_threshold: 0.75
session:
  listen_timeout_ms: 5000
  max_turns: 3
providers:
  asr:
    name: whisper
    model: /models/ggml-base.en.bin
    language: en
  tts:
    name: piper
    binary: /usr/bin/piper
    model: /models/en_US-amy-medium.onnx
  nlu:
    name: ollama
    model: llama3.2
    base_url: http://localhost:11434
memory:
  postgres_dsn: postgres://earshot@localhost/earshot
mcp:
  servers:
    - name: home
      transport: stdio
      command: /usr/local/bin/mcp-home
      env:
        HOME_TOKEN: secret
  routes:
    weather: get_weather
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Wake.Strategy != WakeKeyword || len(cfg.Wake.Phrases) != 1 {
		t.Errorf("wake = %+v", cfg.Wake)
	}
	if cfg.Session.ListenTimeoutMs != 5000 || cfg.Session.MaxTurns != 3 {
		t.Errorf("session = %+v", cfg.Session)
	}
	// Partially-set sections keep defaults for the rest.
	if cfg.Session.ExecuteTimeoutMs != 30000 {
		t.Errorf("execute_timeout_ms = %d", cfg.Session.ExecuteTimeoutMs)
	}
	if cfg.Providers.NLU.BaseURL != "http://localhost:11434" {
		t.Errorf("nlu = %+v", cfg.Providers.NLU)
	}
	if len(cfg.MCP.Servers) != 1 || cfg.MCP.Servers[0].Env["HOME_TOKEN"] != "secret" {
		t.Errorf("mcp = %+v", cfg.MCP)
	}
	if cfg.MCP.Routes["weather"] != "get_weather" {
		t.Errorf("routes = %v", cfg.MCP.Routes)
	}
}
