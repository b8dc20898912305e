// Package config loads environment-driven runtime settings and the MCP
// server manifest, mirroring the teacher's load → merge-defaults →
// validate pipeline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// LLMConfig holds the OpenAI-compatible chat backend settings.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// EmbeddingConfig holds the Ollama-compatible embeddings backend settings,
// used only by the optional bypasser path.
type EmbeddingConfig struct {
	BaseURL    string
	EmbedModel string
	ChatModel  string
}

// Config is the fully resolved, validated runtime configuration.
type Config struct {
	HTTPAddr string

	LLM       LLMConfig
	Embedding EmbeddingConfig

	MCPServersManifest string
	ClientURL          string
	SocketServerURL    string

	// AgentUserID is the chat-platform user id this orchestrator acts
	// as: the sender of every message it posts and the identity it
	// authenticates the realtime connection with.
	AgentUserID string

	// Timeouts per spec.md §5.
	PersistenceHealthTimeout time.Duration
	PersistenceCallTimeout   time.Duration
	MCPCallTimeout           time.Duration

	// Worker pool bound for internal/store execution jobs.
	MaxConcurrentExecutions int

	// AdminGroupActionsByPlanID resolves design-note ambiguity (a): group
	// admin-derived actions under a shared plan_id when one is present in
	// the tool call arguments, rather than minting one per action.
	AdminGroupActionsByPlanID bool

	DatabaseURL string
}

// FileOverrides is the shape of an optional YAML config file
// (AGENTD_CONFIG_FILE) carrying operator overrides for the handful of
// settings operators tend to tune per deployment rather than per
// environment variable.
type FileOverrides struct {
	HTTPAddr                  string        `yaml:"http_addr"`
	PersistenceHealthTimeout  time.Duration `yaml:"persistence_health_timeout"`
	PersistenceCallTimeout    time.Duration `yaml:"persistence_call_timeout"`
	MCPCallTimeout            time.Duration `yaml:"mcp_call_timeout"`
	MaxConcurrentExecutions   int           `yaml:"max_concurrent_executions"`
	AdminGroupActionsByPlanID *bool         `yaml:"admin_group_by_plan_id"`
}

// loadFileOverrides reads AGENTD_CONFIG_FILE if set and merges its
// non-zero fields onto cfg, operator-file values winning over the
// environment-derived defaults already in cfg.
func loadFileOverrides(cfg *Config) error {
	path := os.Getenv("AGENTD_CONFIG_FILE")
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var overrides FileOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.AdminGroupActionsByPlanID != nil {
		cfg.AdminGroupActionsByPlanID = *overrides.AdminGroupActionsByPlanID
	}

	durations := struct {
		PersistenceHealthTimeout time.Duration
		PersistenceCallTimeout   time.Duration
		MCPCallTimeout           time.Duration
		MaxConcurrentExecutions  int
	}{
		PersistenceHealthTimeout: overrides.PersistenceHealthTimeout,
		PersistenceCallTimeout:   overrides.PersistenceCallTimeout,
		MCPCallTimeout:           overrides.MCPCallTimeout,
		MaxConcurrentExecutions:  overrides.MaxConcurrentExecutions,
	}
	current := struct {
		PersistenceHealthTimeout time.Duration
		PersistenceCallTimeout   time.Duration
		MCPCallTimeout           time.Duration
		MaxConcurrentExecutions  int
	}{
		PersistenceHealthTimeout: cfg.PersistenceHealthTimeout,
		PersistenceCallTimeout:   cfg.PersistenceCallTimeout,
		MCPCallTimeout:           cfg.MCPCallTimeout,
		MaxConcurrentExecutions:  cfg.MaxConcurrentExecutions,
	}
	if err := mergo.Merge(&current, durations, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge config file overrides: %w", err)
	}
	cfg.PersistenceHealthTimeout = current.PersistenceHealthTimeout
	cfg.PersistenceCallTimeout = current.PersistenceCallTimeout
	cfg.MCPCallTimeout = current.MCPCallTimeout
	cfg.MaxConcurrentExecutions = current.MaxConcurrentExecutions
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Load reads and validates runtime configuration from the environment,
// following spec.md §6's recognized option list.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8090"),
		LLM: LLMConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			BaseURL:     getenv("OPENAI_API_BASE_URL", "https://api.openai.com/v1"),
			Model:       getenv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature: 0.2,
		},
		Embedding: EmbeddingConfig{
			BaseURL:    getenv("OLLAMA_API_BASE_URL", "http://localhost:11434"),
			EmbedModel: getenv("EMBED_MODEL", "nomic-embed-text"),
			ChatModel:  getenv("OLLAMA_MODEL", ""),
		},
		MCPServersManifest:        getenv("MCP_SERVERS_JSON", "./mcp_servers.json"),
		ClientURL:                 os.Getenv("CLIENT_URL"),
		SocketServerURL:           os.Getenv("SOCKET_SERVER_URL"),
		AgentUserID:               os.Getenv("AGENT_USER_ID"),
		PersistenceHealthTimeout:  getenvDuration("PERSISTENCE_HEALTH_TIMEOUT", 10*time.Second),
		PersistenceCallTimeout:    getenvDuration("PERSISTENCE_CALL_TIMEOUT", 30*time.Second),
		MCPCallTimeout:            getenvDuration("MCP_CALL_TIMEOUT", 120*time.Second),
		MaxConcurrentExecutions:   getenvInt("MAX_CONCURRENT_EXECUTIONS", 8),
		AdminGroupActionsByPlanID: getenvBool("ADMIN_GROUP_BY_PLAN_ID", true),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
	}

	if err := loadFileOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ClientURL == "" {
		return fmt.Errorf("CLIENT_URL is required")
	}
	if c.SocketServerURL == "" {
		return fmt.Errorf("SOCKET_SERVER_URL is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.AgentUserID == "" {
		return fmt.Errorf("AGENT_USER_ID is required")
	}
	return nil
}
