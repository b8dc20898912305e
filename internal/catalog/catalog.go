// Package catalog projects MCP tools into the LLM-facing "function"
// descriptors the gateway needs for forced tool-choice calls, and into
// the human-readable per-server summaries the planner prompts with.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/onlysaid/agentd/internal/domain"
)

// Host is the subset of internal/mcphost.Host the catalog needs.
type Host interface {
	ListTools(ctx context.Context, server string) ([]*mcpsdk.Tool, error)
	ListAllServers(ctx context.Context) (map[string]domain.MCPServer, error)
}

// Catalog derives LLM-facing tool descriptors from a Host.
type Catalog struct {
	host Host
}

// New builds a Catalog over a Host.
func New(host Host) *Catalog {
	return &Catalog{host: host}
}

// FunctionDescriptors returns the "function" projection of every tool
// on a server, per spec.md §4.2.
func (c *Catalog) FunctionDescriptors(ctx context.Context, server string) ([]domain.FunctionDescriptor, error) {
	tools, err := c.host.ListTools(ctx, server)
	if err != nil {
		return nil, err
	}
	out := make([]domain.FunctionDescriptor, 0, len(tools))
	for _, t := range tools {
		params := schemaToMap(t.InputSchema)
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		out = append(out, domain.FunctionDescriptor{
			Type: "function",
			Function: domain.FunctionSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out, nil
}

// FormatServerDescriptions builds the planner's server-and-tool summary
// block: each server's description postfixed with a bullet list of its
// tools (name + first line of description), per spec.md §4.2.
func (c *Catalog) FormatServerDescriptions(ctx context.Context) (string, error) {
	servers, err := c.host.ListAllServers(ctx)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		srv := servers[name]
		fmt.Fprintf(&b, "## %s\n%s\n", name, srv.Description)
		for _, tool := range srv.Tools {
			firstLine := tool.Description
			if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
				firstLine = firstLine[:idx]
			}
			fmt.Fprintf(&b, "- %s: %s\n", tool.Name, firstLine)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// ToolSchema looks up a single tool's JSON schema on a server, used by
// the LLM gateway to enrich skill synthesis arguments.
func (c *Catalog) ToolSchema(ctx context.Context, server, tool string) (map[string]interface{}, error) {
	tools, err := c.host.ListTools(ctx, server)
	if err != nil {
		return nil, err
	}
	for _, t := range tools {
		if t.Name == tool {
			return schemaToMap(t.InputSchema), nil
		}
	}
	return nil, fmt.Errorf("tool %q not found on server %q", tool, server)
}

func schemaToMap(schema any) map[string]interface{} {
	if schema == nil {
		return nil
	}
	if m, ok := schema.(map[string]interface{}); ok {
		return m
	}
	data, ok := marshalSchema(schema)
	if !ok {
		return nil
	}
	return data
}
