package engine

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/germanamz/tabletalk/pkg/database"
	"github.com/germanamz/tabletalk/pkg/memory"
	"github.com/germanamz/tabletalk/pkg/providers/scripted"
	"github.com/germanamz/tabletalk/pkg/tracing"
)

// Provider kinds understood by the engine.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderScripted  = "scripted"
)

// Config is the top-level engine configuration.
type Config struct {
	LogLevel string          `yaml:"log_level"`
	Provider ProviderConfig  `yaml:"provider"`
	Database database.Config `yaml:"database"`
	Memory   memory.Config   `yaml:"memory"`
	Agent    AgentConfig     `yaml:"agent"`
	Tools    ToolsConfig     `yaml:"tools"`
	Tracing  tracing.Config  `yaml:"tracing"`
}

// RateLimitConfig controls provider rate limiting. Zero values disable the
// corresponding limit.
type RateLimitConfig struct {
	RPM        int           `yaml:"rpm"`         // Requests per minute.
	InputTPM   int           `yaml:"input_tpm"`   // Input tokens per minute.
	OutputTPM  int           `yaml:"output_tpm"`  // Output tokens per minute.
	MaxRetries int           `yaml:"max_retries"` // Max retries on 429 (default 3).
	BaseDelay  time.Duration `yaml:"base_delay"`  // Initial backoff delay (e.g. "1s", "500ms").
}

func (r RateLimitConfig) enabled() bool {
	return r.RPM > 0 || r.InputTPM > 0 || r.OutputTPM > 0 || r.MaxRetries > 0 || r.BaseDelay > 0
}

// ProviderConfig describes the model provider.
type ProviderConfig struct {
	Kind        string          `yaml:"kind"`
	BaseURL     string          `yaml:"base_url"`
	APIKey      string          `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model       string          `yaml:"model"`
	Temperature float64         `yaml:"temperature"`
	MaxTokens   int             `yaml:"max_tokens"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`

	// Script and Loop configure the scripted provider.
	Script []scripted.Step `yaml:"script"`
	Loop   bool            `yaml:"loop"`
}

// AgentConfig holds the agent's behaviour settings.
type AgentConfig struct {
	Name          string        `yaml:"name"`
	Instructions  string        `yaml:"instructions"`
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"` // Bound on a whole turn (0 = none).
	// Tools restricts the registry to the named tools. Empty offers all.
	Tools []string `yaml:"tools"`
}

// ToolsConfig configures the tool registry.
type ToolsConfig struct {
	ReportDir      string      `yaml:"report_dir"`
	ConfineReports bool        `yaml:"confine_reports"`
	MaxRows        int         `yaml:"max_rows"`
	SchemaCache    int         `yaml:"schema_cache"`
	MCPServers     []MCPConfig `yaml:"mcp_servers"`
}

// MCPConfig describes an MCP server whose tools are added to the registry.
// Either Command (stdio) or URL (SSE) must be set.
type MCPConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing, so API keys and DSNs can live in the environment (e.g.
// loaded from a .env file) rather than in the config.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig expands environment variables in data and decodes it.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("engine: config: %w", err)
	}

	if err := c.Provider.validate(); err != nil {
		return err
	}

	if c.Database.DSN != "" {
		if d := database.NormalizeDriver(c.Database.Driver); d != database.DriverSQLite && d != database.DriverPostgres {
			return fmt.Errorf("engine: config: database: unsupported driver %q", c.Database.Driver)
		}
	}

	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("engine: config: %w", err)
	}

	if c.Agent.MaxIterations < 0 {
		return fmt.Errorf("engine: config: agent.max_iterations must not be negative")
	}
	if c.Agent.Timeout < 0 {
		return fmt.Errorf("engine: config: agent.timeout must not be negative")
	}
	for _, name := range c.Agent.Tools {
		if name == "" {
			return fmt.Errorf("engine: config: agent.tools must not contain empty names")
		}
	}

	if c.Tools.MaxRows < 0 || c.Tools.SchemaCache < 0 {
		return fmt.Errorf("engine: config: tools.max_rows and tools.schema_cache must not be negative")
	}

	mcpNames := make(map[string]struct{}, len(c.Tools.MCPServers))
	for _, m := range c.Tools.MCPServers {
		if m.Name == "" {
			return fmt.Errorf("engine: config: mcp server name is required")
		}
		if (m.Command == "") == (m.URL == "") {
			return fmt.Errorf("engine: config: mcp server %q: exactly one of command or url is required", m.Name)
		}
		if _, dup := mcpNames[m.Name]; dup {
			return fmt.Errorf("engine: config: duplicate mcp server name %q", m.Name)
		}
		mcpNames[m.Name] = struct{}{}
	}

	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("engine: config: %w", err)
	}

	return nil
}

func (p ProviderConfig) validate() error {
	switch p.Kind {
	case ProviderOpenAI, ProviderAnthropic:
		if p.Model == "" {
			return fmt.Errorf("engine: config: provider %q: model is required", p.Kind)
		}
	case ProviderScripted:
		if len(p.Script) == 0 {
			return fmt.Errorf("engine: config: provider %q: script is required", p.Kind)
		}
	case "":
		return fmt.Errorf("engine: config: provider.kind is required")
	default:
		return fmt.Errorf("engine: config: unknown provider kind %q", p.Kind)
	}

	if p.RateLimit.RPM < 0 || p.RateLimit.InputTPM < 0 || p.RateLimit.OutputTPM < 0 || p.RateLimit.MaxRetries < 0 {
		return fmt.Errorf("engine: config: provider.rate_limit values must not be negative")
	}
	return nil
}

// ParseLogLevel maps a level name to a slog level. An empty name is info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
