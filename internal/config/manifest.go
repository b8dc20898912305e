package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// MCPServerManifestEntry describes one configured tool server.
type MCPServerManifestEntry struct {
	Path            string           `json:"path"`
	DescriptionFile string           `json:"description"`
	DataMasking     *DataMaskingRule `json:"data_masking,omitempty"`
}

// DataMaskingRule configures which built-in and custom patterns apply to a
// server's tool results before they reach a PlanLog.
type DataMaskingRule struct {
	Enabled        bool            `json:"enabled"`
	Patterns       []string        `json:"patterns,omitempty"`
	CustomPatterns []CustomPattern `json:"custom_patterns,omitempty"`
}

// CustomPattern is a server-specific regex masking rule.
type CustomPattern struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description,omitempty"`
}

// MCPServersManifest is the top-level shape of MCP_SERVERS_JSON.
type MCPServersManifest struct {
	MCPServers map[string]MCPServerManifestEntry `json:"mcpServers"`
}

// LoadMCPManifest reads and parses the MCP server manifest file. An
// unreadable manifest is a fatal startup error per spec.md §7.
func LoadMCPManifest(path string) (*MCPServersManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading MCP server manifest %s: %w", path, err)
	}
	var manifest MCPServersManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing MCP server manifest %s: %w", path, err)
	}
	if len(manifest.MCPServers) == 0 {
		return nil, fmt.Errorf("MCP server manifest %s declares no servers", path)
	}
	return &manifest, nil
}
