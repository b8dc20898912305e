// Package masking redacts sensitive content out of MCP tool results
// before an Engine writes them into a PlanLog's content field.
package masking

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/onlysaid/agentd/internal/config"
)

// Masker is a code-based masker for content that needs structural
// awareness beyond regex substitution.
type Masker interface {
	Name() string
	AppliesTo(data string) bool
	Mask(data string) string
}

// compiledPattern is a pre-compiled regex masking rule.
type compiledPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// builtinPatterns are applied to every server's output regardless of its
// manifest entry, mirroring the teacher's built-in pattern group concept
// without needing a pattern_groups indirection layer.
var builtinPatterns = map[string]string{
	"aws_access_key":    `AKIA[0-9A-Z]{16}`,
	"generic_api_key":   `(?i)(api[_-]?key|token)["'\s:=]+[A-Za-z0-9_\-]{20,}`,
	"bearer_auth":       `(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`,
	"private_key_block": `-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`,
}

const redactedPlaceholder = "[REDACTED]"

// Service applies configured masking rules to tool results. One Service
// is built at startup from the MCP server manifest and shared across
// every skill execution.
type Service struct {
	manifest    *config.MCPServersManifest
	patterns    map[string]compiledPattern
	codeMaskers []Masker
}

// New compiles the built-in patterns plus every server's custom patterns
// declared in the manifest, and registers the code-based maskers.
func New(manifest *config.MCPServersManifest) *Service {
	s := &Service{
		manifest: manifest,
		patterns: make(map[string]compiledPattern),
		codeMaskers: []Masker{
			&KubernetesSecretMasker{},
		},
	}

	for name, pattern := range builtinPatterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			slog.Error("failed to compile built-in masking pattern, skipping", "pattern", name, "error", err)
			continue
		}
		s.patterns[name] = compiledPattern{regex: compiled, replacement: redactedPlaceholder}
	}

	if manifest != nil {
		for server, entry := range manifest.MCPServers {
			if entry.DataMasking == nil || !entry.DataMasking.Enabled {
				continue
			}
			for i, cp := range entry.DataMasking.CustomPatterns {
				name := fmt.Sprintf("custom:%s:%d", server, i)
				compiled, err := regexp.Compile(cp.Pattern)
				if err != nil {
					slog.Error("failed to compile custom masking pattern, skipping", "pattern", name, "error", err)
					continue
				}
				replacement := cp.Replacement
				if replacement == "" {
					replacement = redactedPlaceholder
				}
				s.patterns[name] = compiledPattern{regex: compiled, replacement: replacement}
			}
		}
	}

	return s
}

// MaskToolResult applies the code-based maskers and every applicable
// regex pattern to a tool result's content before it is persisted.
// Masking is fail-open for regex substitution (a pattern never panics)
// and fail-closed for a code masker's parse failure: on a parse error
// KubernetesSecretMasker.Mask already returns the original content.
func (s *Service) MaskToolResult(content, serverID string) string {
	if content == "" {
		return content
	}

	masked := content
	for _, m := range s.codeMaskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}

	if s.serverMaskingEnabled(serverID) {
		for _, name := range s.serverPatternNames(serverID) {
			if cp, ok := s.patterns[name]; ok {
				masked = cp.regex.ReplaceAllString(masked, cp.replacement)
			}
		}
	}

	// Built-in patterns always apply, independent of per-server config.
	for name, cp := range s.patterns {
		if len(name) >= 7 && name[:7] == "custom:" {
			continue
		}
		masked = cp.regex.ReplaceAllString(masked, cp.replacement)
	}

	return masked
}

func (s *Service) serverMaskingEnabled(serverID string) bool {
	if s.manifest == nil {
		return false
	}
	entry, ok := s.manifest.MCPServers[serverID]
	return ok && entry.DataMasking != nil && entry.DataMasking.Enabled
}

func (s *Service) serverPatternNames(serverID string) []string {
	var names []string
	for name := range s.patterns {
		prefix := fmt.Sprintf("custom:%s:", serverID)
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			names = append(names, name)
		}
	}
	return names
}
