// Package mcphost spawns and supervises MCP tool subprocesses and carries
// tool enumeration and invocation requests to them.
package mcphost

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/onlysaid/agentd/internal/config"
	"github.com/onlysaid/agentd/internal/domain"
)

// Host owns one MCP client session per configured server. Unlike the
// teacher's auto-recovering client, a dead subprocess is never
// respawned: per spec, a fresh process start is required and the host
// simply records the server as failed.
type Host struct {
	manifest *config.MCPServersManifest

	mu       sync.RWMutex
	sessions map[string]*mcpsdk.ClientSession
	failed   map[string]string

	toolCacheMu sync.RWMutex
	toolCache   map[string][]*mcpsdk.Tool

	descriptions map[string]string

	logger *slog.Logger
}

// New constructs a Host bound to a manifest. Call Initialize to spawn
// subprocesses.
func New(manifest *config.MCPServersManifest) *Host {
	return &Host{
		manifest:     manifest,
		sessions:     make(map[string]*mcpsdk.ClientSession),
		failed:       make(map[string]string),
		toolCache:    make(map[string][]*mcpsdk.Tool),
		descriptions: make(map[string]string),
		logger:       slog.Default().With("component", "mcphost"),
	}
}

// Initialize spawns every server named in the manifest. A server that
// fails to start is recorded in FailedServers rather than aborting
// startup — partial availability is acceptable at process start.
func (h *Host) Initialize(ctx context.Context) error {
	for name, entry := range h.manifest.MCPServers {
		if err := h.initializeServer(ctx, name, entry); err != nil {
			h.mu.Lock()
			h.failed[name] = err.Error()
			h.mu.Unlock()
			h.logger.Warn("MCP server failed to start", "server", name, "error", err)
		}
	}
	return nil
}

func (h *Host) initializeServer(ctx context.Context, name string, entry config.MCPServerManifestEntry) error {
	cmd, err := buildCommand(entry.Path)
	if err != nil {
		return err
	}

	transport := &mcpsdk.CommandTransport{Command: cmd}

	initCtx, cancel := context.WithTimeout(ctx, MCPInitTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "agentd",
		Version: "dev",
	}, nil)

	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		// CommandTransport owns the spawned process; a failed Connect
		// has already reaped it, nothing left to close here.
		return fmt.Errorf("connect to %q: %w", name, err)
	}

	h.mu.Lock()
	h.sessions[name] = session
	delete(h.failed, name)
	h.mu.Unlock()

	if entry.DescriptionFile != "" {
		if desc, err := readDescription(entry.DescriptionFile); err == nil {
			h.mu.Lock()
			h.descriptions[name] = desc
			h.mu.Unlock()
		} else {
			h.logger.Warn("failed to read server description file", "server", name, "error", err)
		}
	}

	h.logger.Info("MCP server connected", "server", name)
	return nil
}

// buildCommand picks python or node based on the script's extension,
// per spec.md §6's subprocess transport contract.
func buildCommand(path string) (*exec.Cmd, error) {
	switch {
	case strings.HasSuffix(path, ".py"):
		return exec.Command("python3", path), nil
	case strings.HasSuffix(path, ".js"):
		return exec.Command("node", path), nil
	default:
		return nil, fmt.Errorf("unsupported MCP server script extension: %s", path)
	}
}

// ListTools returns a server's tool list, caching the first successful
// result per spec.md §4.1 ("list_tools is called once per server at
// startup and its result cached").
func (h *Host) ListTools(ctx context.Context, server string) ([]*mcpsdk.Tool, error) {
	h.toolCacheMu.RLock()
	if cached, ok := h.toolCache[server]; ok {
		h.toolCacheMu.RUnlock()
		return cached, nil
	}
	h.toolCacheMu.RUnlock()

	h.mu.RLock()
	session, ok := h.sessions[server]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no session for server %q", server)
	}

	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools from %q: %w", server, err)
	}

	tools := result.Tools
	if tools == nil {
		tools = []*mcpsdk.Tool{}
	}
	h.toolCacheMu.Lock()
	h.toolCache[server] = tools
	h.toolCacheMu.Unlock()

	return tools, nil
}

// ListAllServers projects every live server into the domain shape used
// by get_servers/get_tools.
func (h *Host) ListAllServers(ctx context.Context) (map[string]domain.MCPServer, error) {
	h.mu.RLock()
	names := make([]string, 0, len(h.sessions))
	for name := range h.sessions {
		names = append(names, name)
	}
	h.mu.RUnlock()

	out := make(map[string]domain.MCPServer, len(names))
	for _, name := range names {
		tools, err := h.ListTools(ctx, name)
		if err != nil {
			h.logger.Warn("failed to list tools", "server", name, "error", err)
			continue
		}
		out[name] = domain.MCPServer{
			Name:        name,
			Description: h.descriptions[name],
			Tools:       toDomainTools(tools),
		}
	}
	return out, nil
}

func toDomainTools(tools []*mcpsdk.Tool) []domain.MCPTool {
	out := make([]domain.MCPTool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]interface{}
		if t.InputSchema != nil {
			schema = schemaToMap(t.InputSchema)
		}
		out = append(out, domain.MCPTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return out
}

// CallTool invokes a tool on a server. At most one retry is attempted,
// for errors ClassifyError deems transient and not requiring a fresh
// subprocess (spec.md §4.1: a dead process is never respawned here).
func (h *Host) CallTool(ctx context.Context, server, tool string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	params := &mcpsdk.CallToolParams{Name: tool, Arguments: args}

	result, err := h.callOnce(ctx, server, params)
	if err == nil {
		return result, nil
	}

	if ClassifyError(err) != RetryTransient {
		return nil, err
	}

	backoff := RetryBackoffMin + time.Duration(rand.Int64N(int64(RetryBackoffMax-RetryBackoffMin)))
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	result, err = h.callOnce(ctx, server, params)
	if err != nil {
		return nil, fmt.Errorf("retry failed for %q.%s: %w", server, tool, err)
	}
	return result, nil
}

func (h *Host) callOnce(ctx context.Context, server string, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	h.mu.RLock()
	session, ok := h.sessions[server]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no session for server %q", server)
	}

	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	return session.CallTool(opCtx, params)
}

// FailedServers returns the set of servers that never reached a live
// session, keyed by name with the last error message.
func (h *Host) FailedServers() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]string, len(h.failed))
	for k, v := range h.failed {
		out[k] = v
	}
	return out
}

// Close shuts down every live session.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, session := range h.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q: %w", name, err)
		}
	}
	h.sessions = make(map[string]*mcpsdk.ClientSession)
	return firstErr
}
