// Package config loads agora runtime settings from defaults, an optional YAML
// file, a .env file and AGORA_ environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override (AGORA_SERVER_ADDR -> server.addr).
const EnvPrefix = "AGORA_"

// Agent kinds selectable with agent.kind.
const (
	KindTime         = "time"
	KindGreeting     = "greeting"
	KindOrchestrator = "orchestrator"
	KindLLM          = "llm"
)

type Config struct {
	Log        LogConfig        `koanf:"log"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Server     ServerConfig     `koanf:"server"`
	Agent      AgentConfig      `koanf:"agent"`
	LLM        LLMConfig        `koanf:"llm"`
	Registry   RegistryConfig   `koanf:"registry"`
	Delegation DelegationConfig `koanf:"delegation"`
	MCP        MCPConfig        `koanf:"mcp"`
	Memory     MemoryConfig     `koanf:"memory"`
	Guardrails GuardrailsConfig `koanf:"guardrails"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp, prometheus
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
	// PublicURL is advertised in the agent card; defaults to http://<addr>.
	PublicURL       string        `koanf:"public_url"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// AgentConfig describes the local agent and its reasoning step.
type AgentConfig struct {
	Name          string        `koanf:"name"`
	Description   string        `koanf:"description"`
	Version       string        `koanf:"version"`
	Kind          string        `koanf:"kind"`
	Streaming     bool          `koanf:"streaming"`
	Instructions  string        `koanf:"instructions"`
	TimeAgent     string        `koanf:"time_agent"`
	MaxIterations int           `koanf:"max_iterations"`
	RunTimeout    time.Duration `koanf:"run_timeout"`
	Skills        []SkillConfig `koanf:"skills"`
	// SkillsDir holds one subdirectory per skill, each with a SKILL.md.
	SkillsDir string      `koanf:"skills_dir"`
	Tools     ToolsConfig `koanf:"tools"`
}

// ToolsConfig limits the local tools offered to the model. Entries are
// names or glob patterns; deny wins over allow.
type ToolsConfig struct {
	Allow []string `koanf:"allow"`
	Deny  []string `koanf:"deny"`
	// FromSkills adds the allowed-tools of every loaded skill to Allow.
	FromSkills bool `koanf:"from_skills"`
}

type SkillConfig struct {
	ID          string   `koanf:"id"`
	Name        string   `koanf:"name"`
	Description string   `koanf:"description"`
	Tags        []string `koanf:"tags"`
	Examples    []string `koanf:"examples"`
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // ollama, openai, mock, none
	Model    string `koanf:"model"`
	// BaseURL defaults to the provider's public endpoint when empty.
	BaseURL string `koanf:"base_url"`
	// APIKey is used by openai; OPENAI_API_KEY applies when empty.
	APIKey string `koanf:"api_key"`
}

type RegistryConfig struct {
	// File is a YAML or JSON list of agent endpoints.
	File      string       `koanf:"file"`
	Watch     bool         `koanf:"watch"`
	CacheSize int          `koanf:"cache_size"`
	Agents    []AgentEntry `koanf:"agents"`
}

type AgentEntry struct {
	Name string `koanf:"name"`
	URL  string `koanf:"url"`
}

type DelegationConfig struct {
	Timeout          time.Duration `koanf:"timeout"`
	MaxAttempts      int           `koanf:"max_attempts"`
	RateLimit        float64       `koanf:"rate_limit"` // calls per second per agent, 0 disables
	Burst            int           `koanf:"burst"`
	BreakerThreshold int           `koanf:"breaker_threshold"`
	BreakerReset     time.Duration `koanf:"breaker_reset"`
}

type MCPConfig struct {
	Servers map[string]MCPServerConfig `koanf:"servers"`
}

type MCPServerConfig struct {
	Transport       string        `koanf:"transport"` // stdio, http
	Command         string        `koanf:"command"`
	Args            []string      `koanf:"args"`
	URL             string        `koanf:"url"`
	ProtocolVersion string        `koanf:"protocol_version"`
	Timeout         time.Duration `koanf:"timeout"`
}

// MemoryConfig bounds per-session conversation history.
type MemoryConfig struct {
	// Strategy is "window" (last Window messages) or "tokens" (MaxTokens
	// budget, estimated at four characters per token).
	Strategy    string `koanf:"strategy"`
	Window      int    `koanf:"window"`
	MaxTokens   int    `koanf:"max_tokens"`
	MaxSessions int    `koanf:"max_sessions"`
	// TTL drops messages older than this on every sweep; zero keeps them.
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	SweepTimeout  time.Duration `koanf:"sweep_timeout"`
}

// GuardrailsConfig screens inbound messages and outbound replies.
type GuardrailsConfig struct {
	PromptInjection    bool     `koanf:"prompt_injection"`
	InjectionThreshold float64  `koanf:"injection_threshold"`
	InjectionPatterns  []string `koanf:"injection_patterns"`
	// PII is off, mask, redact or hash.
	PII      string   `koanf:"pii"`
	PIITypes []string `koanf:"pii_types"`
	// BlockPII rejects inbound messages carrying PII.
	BlockPII bool `koanf:"block_pii"`
}

var defaults = map[string]any{
	"log.level":                    "info",
	"log.format":                   "text",
	"telemetry.exporter":           "none",
	"server.addr":                  "localhost:10000",
	"server.shutdown_timeout":      "10s",
	"agent.name":                   "TellTimeAgent",
	"agent.description":            "Tells the current time when asked.",
	"agent.version":                "1.0.0",
	"agent.kind":                   KindTime,
	"agent.streaming":              true,
	"agent.time_agent":             "TellTimeAgent",
	"agent.max_iterations":         8,
	"agent.run_timeout":            "2m",
	"llm.provider":                 "none",
	"llm.model":                    "qwen2.5-coder:7b-instruct-q5_K_M",
	"registry.cache_size":          128,
	"delegation.timeout":           "30s",
	"delegation.max_attempts":      3,
	"delegation.rate_limit":        0,
	"delegation.burst":             1,
	"delegation.breaker_threshold": 5,
	"delegation.breaker_reset":     "30s",
	"memory.strategy":              "window",
	"memory.window":                40,
	"memory.max_tokens":            8000,
	"memory.max_sessions":          1000,
	"memory.ttl":                   "1h",
	"memory.sweep_interval":        "5m",
	"memory.sweep_timeout":         "10s",
	"guardrails.pii":               "off",
}

// Load builds the configuration. path may be empty. A .env file in the
// working directory is read when present.
func Load(path string) (*Config, error) {
	return LoadWithDotenv(path, ".env")
}

// LoadWithDotenv is Load with an explicit .env location; empty skips it.
func LoadWithDotenv(path, dotenv string) (*Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps AGORA_DELEGATION_MAX_ATTEMPTS to delegation.max_attempts: the
// first segment names the section, the rest is the field.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, found := strings.Cut(key, "_")
	if !found {
		return section
	}
	return section + "." + field
}

// Validate rejects settings the runtime cannot start with.
func (c *Config) Validate() error {
	switch c.Agent.Kind {
	case KindTime, KindGreeting, KindOrchestrator, KindLLM:
	default:
		return fmt.Errorf("unknown agent.kind %q", c.Agent.Kind)
	}
	if strings.TrimSpace(c.Agent.Name) == "" {
		return errors.New("agent.name is required")
	}
	if c.Delegation.Timeout <= 0 {
		return errors.New("delegation.timeout must be positive")
	}
	if c.Delegation.MaxAttempts < 1 {
		return errors.New("delegation.max_attempts must be at least 1")
	}
	if c.Memory.Window < 0 || c.Memory.MaxSessions < 0 || c.Memory.MaxTokens < 0 {
		return errors.New("memory.window, memory.max_tokens and memory.max_sessions must not be negative")
	}
	switch c.Memory.Strategy {
	case "", "window", "tokens":
	default:
		return fmt.Errorf("unknown memory.strategy %q", c.Memory.Strategy)
	}
	switch c.Guardrails.PII {
	case "", "off", "mask", "redact", "hash":
	default:
		return fmt.Errorf("unknown guardrails.pii %q", c.Guardrails.PII)
	}
	if t := c.Guardrails.InjectionThreshold; t < 0 || t > 1 {
		return errors.New("guardrails.injection_threshold must be between 0 and 1")
	}
	if c.Agent.Kind == KindLLM && c.LLM.Provider == "none" {
		return errors.New("agent.kind llm requires an llm.provider")
	}
	return nil
}

// PublicURL is the base URL advertised to other agents.
func (c *Config) PublicURL() string {
	if c.Server.PublicURL != "" {
		return strings.TrimRight(c.Server.PublicURL, "/")
	}
	return "http://" + c.Server.Addr
}
