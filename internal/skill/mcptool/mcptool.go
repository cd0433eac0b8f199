// Package mcptool routes intents to tools exposed by MCP servers. It
// connects over stdio or streamable-HTTP transports using the official
// MCP Go SDK, discovers each server's tool catalogue at startup, and
// executes a configured intent-to-tool mapping ahead of the built-in
// skills.
//
// Typical usage:
//
//	e, err := mcptool.New(ctx, mcptool.Config{
//	    Servers: []mcptool.ServerConfig{{
//	        Name:      "home",
//	        Transport: mcptool.TransportStdio,
//	        Command:   "/usr/local/bin/mcp-home-server",
//	    }},
//	    Routes: map[string]string{intent.TypeWeather: "get_weather"},
//	})
//	if err != nil { … }
//	defer e.Close()
//	chain := skill.Chain{e, builtinExecutor}
package mcptool

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/earshot-ai/earshot/internal/intent"
	"github.com/earshot-ai/earshot/internal/skill"
)

// TransportKind selects how a server connection is established.
type TransportKind string

const (
	// TransportStdio launches the server as a child process and speaks
	// MCP over its stdin/stdout.
	TransportStdio TransportKind = "stdio"
	// TransportStreamableHTTP connects to a server's streamable-HTTP
	// endpoint.
	TransportStreamableHTTP TransportKind = "http"
)

// ServerConfig describes one MCP server to connect to.
type ServerConfig struct {
	// Name identifies the server in logs and the tool registry.
	Name string
	// Transport selects stdio or streamable-HTTP.
	Transport TransportKind
	// Command is the executable plus arguments for stdio transport,
	// split on whitespace.
	Command string
	// Env holds additional environment variables for stdio servers.
	Env map[string]string
	// URL is the endpoint address for streamable-HTTP transport.
	URL string
}

// Config configures the MCP executor.
type Config struct {
	// Servers to connect to at construction time. Connection or tool
	// discovery failure for any server fails [New].
	Servers []ServerConfig

	// Routes maps intent types to tool names. An intent with no route,
	// or whose routed tool no server exposes, is declined with
	// [skill.ErrUnsupported] so a later executor in the chain can
	// handle it.
	Routes map[string]string

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// toolCaller is the slice of the SDK session the executor needs.
// *mcpsdk.ClientSession satisfies it; tests substitute fakes.
type toolCaller interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
	Close() error
}

// Executor implements [skill.Executor] over MCP servers. Safe for
// concurrent use.
type Executor struct {
	routes map[string]string
	log    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]toolCaller // key: server name
	tools    map[string]string     // key: tool name, value: server name
}

var _ skill.Executor = (*Executor)(nil)

// New connects to every configured server and imports its tool
// catalogue. Callers own the returned executor and must Close it.
func New(ctx context.Context, cfg Config) (*Executor, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	e := &Executor{
		routes:   cfg.Routes,
		log:      cfg.Logger,
		sessions: make(map[string]toolCaller),
		tools:    make(map[string]string),
	}
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "earshot", Version: "1.0.0"},
		nil,
	)
	for _, server := range cfg.Servers {
		if err := e.connect(ctx, client, server); err != nil {
			_ = e.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *Executor) connect(ctx context.Context, client *mcpsdk.Client, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcptool: server config must have a non-empty name")
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		parts := strings.Fields(cfg.Command)
		if len(parts) == 0 {
			return fmt.Errorf("mcptool: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcptool: http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return fmt.Errorf("mcptool: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcptool: connect to server %q: %w", cfg.Name, err)
	}

	var names []string
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcptool: list tools for server %q: %w", cfg.Name, err)
		}
		names = append(names, tool.Name)
	}

	e.mu.Lock()
	e.sessions[cfg.Name] = session
	for _, name := range names {
		e.tools[name] = cfg.Name
	}
	e.mu.Unlock()

	e.log.Info("mcp server connected", "server", cfg.Name, "tools", len(names))
	return nil
}

// Execute implements [skill.Executor]. The intent's parameters are
// passed to the tool as its arguments object. A tool call that
// completes but reports IsError becomes an unsuccessful spoken result
// rather than a Go error.
func (e *Executor) Execute(ctx context.Context, it *intent.Intent) (skill.Result, error) {
	toolName, ok := e.routes[it.Type]
	if !ok {
		return skill.Result{}, skill.ErrUnsupported
	}

	e.mu.RLock()
	serverName, known := e.tools[toolName]
	session := e.sessions[serverName]
	e.mu.RUnlock()
	if !known || session == nil {
		return skill.Result{}, skill.ErrUnsupported
	}

	args := make(map[string]any, len(it.Params))
	for k, v := range it.Params {
		args[k] = v
	}

	callResult, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		return skill.Result{}, fmt.Errorf("%w: tool %q on %q: %v", skill.ErrExecution, toolName, serverName, err)
	}

	var sb strings.Builder
	for _, c := range callResult.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	spoken := sb.String()
	if callResult.IsError {
		if spoken == "" {
			spoken = "That didn't work."
		}
		return skill.Result{Success: false, Spoken: spoken}, nil
	}
	return skill.Result{Success: true, Spoken: spoken}, nil
}

// Tools returns the names of all discovered tools, for diagnostics.
func (e *Executor) Tools() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.tools))
	for name := range e.tools {
		out = append(out, name)
	}
	return out
}

// Close shuts down all server connections.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for name, session := range e.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcptool: close server %q: %w", name, err)
		}
		delete(e.sessions, name)
	}
	e.tools = make(map[string]string)
	return firstErr
}
