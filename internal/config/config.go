// Package config handles Reverie configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./reverie.yaml, ~/.config/reverie/config.yaml, /etc/reverie/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"reverie.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "reverie", "config.yaml"))
	}

	paths = append(paths, "/etc/reverie/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Reverie configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Persona   string          `yaml:"persona"`
	LogLevel  string          `yaml:"log_level"`
	LLM       LLMConfig       `yaml:"llm"`
	Budget    BudgetConfig    `yaml:"budget"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Email     EmailConfig     `yaml:"email"`
	Messaging MessagingConfig `yaml:"messaging"`
	Search    SearchConfig    `yaml:"search"`
	Browser   BrowserConfig   `yaml:"browser"`
}

// LLMConfig defines the reasoning service connection and model routing.
type LLMConfig struct {
	// BaseURL is the chat completion endpoint root (OpenAI-compatible).
	BaseURL string `yaml:"base_url"`
	// APIKey authenticates requests. Overridable via REVERIE_LLM_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the primary model used for user-facing inference.
	Model string `yaml:"model"`
	// UtilityModel handles classification and analytical calls. Falls
	// back to Model when empty.
	UtilityModel string `yaml:"utility_model"`
}

// BudgetConfig controls the context-size budget and consolidation shape.
type BudgetConfig struct {
	// ContextTokens is the hard context window size in tokens.
	ContextTokens int `yaml:"context_tokens"`
	// RollingOverlap is the number of recent turns carried through a
	// consolidation flush.
	RollingOverlap int `yaml:"rolling_overlap"`
	// FallbackKeep is the number of turns retained when the sift call
	// fails and the buffer is truncated instead of summarized.
	FallbackKeep int `yaml:"fallback_keep"`
}

// SchedulerConfig tunes inference call pacing.
type SchedulerConfig struct {
	MinSpacing  time.Duration `yaml:"min_spacing"`
	DedupWindow time.Duration `yaml:"dedup_window"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// HeartbeatConfig controls the autonomous background cycle.
type HeartbeatConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	IdleWindow time.Duration `yaml:"idle_window"`
}

// EmailConfig defines the outbound SMTP transport. Email capability is
// disabled when Host is empty.
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	StartTLS bool   `yaml:"starttls"`
	Username string `yaml:"username"`
	// Password is overridable via REVERIE_SMTP_PASSWORD.
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// MessagingConfig defines the MQTT messaging gateway. Messaging is
// disabled when BrokerURL is empty.
type MessagingConfig struct {
	BrokerURL string `yaml:"broker_url"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	// Password is overridable via REVERIE_MQTT_PASSWORD.
	Password string `yaml:"password"`
	// TopicPrefix is prepended to outbound channel names.
	TopicPrefix string `yaml:"topic_prefix"`
	// AllowedSender is the single inbound channel identity the gateway
	// accepts messages from. Inbound is disabled when empty.
	AllowedSender string `yaml:"allowed_sender"`
}

// SearchConfig defines web search providers. Search is disabled when no
// provider has a usable endpoint or key.
type SearchConfig struct {
	// Provider names the primary backend: "searxng" or "brave".
	Provider   string `yaml:"provider"`
	SearXNGURL string `yaml:"searxng_url"`
	// BraveAPIKey is overridable via REVERIE_BRAVE_API_KEY.
	BraveAPIKey string `yaml:"brave_api_key"`
}

// BrowserConfig defines the page-automation endpoint. Browsing is
// disabled when DevToolsURL is empty.
type BrowserConfig struct {
	// DevToolsURL is the websocket debugger URL of a headless browser
	// (e.g., ws://localhost:9222/devtools/page/<id>).
	DevToolsURL string `yaml:"devtools_url"`
}

// Load reads and parses the config file at path, then applies defaults
// and environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.LLM.UtilityModel == "" {
		c.LLM.UtilityModel = c.LLM.Model
	}
	if c.Budget.ContextTokens <= 0 {
		c.Budget.ContextTokens = 64000
	}
	if c.Budget.RollingOverlap <= 0 {
		c.Budget.RollingOverlap = 3
	}
	if c.Budget.FallbackKeep <= 0 {
		c.Budget.FallbackKeep = 15
	}
	if c.Scheduler.MinSpacing <= 0 {
		c.Scheduler.MinSpacing = 2 * time.Second
	}
	if c.Scheduler.DedupWindow <= 0 {
		c.Scheduler.DedupWindow = 1500 * time.Millisecond
	}
	if c.Scheduler.CallTimeout <= 0 {
		c.Scheduler.CallTimeout = 55 * time.Second
	}
	if c.Scheduler.LockTimeout <= 0 {
		c.Scheduler.LockTimeout = 60 * time.Second
	}
	if c.Heartbeat.Interval <= 0 {
		c.Heartbeat.Interval = 30 * time.Minute
	}
	if c.Heartbeat.IdleWindow <= 0 {
		c.Heartbeat.IdleWindow = 2 * time.Minute
	}
	if c.Email.Port == 0 {
		c.Email.Port = 465
	}
	if c.Messaging.ClientID == "" {
		c.Messaging.ClientID = "reverie"
	}
	if c.Search.Provider == "" {
		c.Search.Provider = "searxng"
	}
}

// applyEnv overrides secret-bearing fields from the environment so
// credentials can live outside the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("REVERIE_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("REVERIE_SMTP_PASSWORD"); v != "" {
		c.Email.Password = v
	}
	if v := os.Getenv("REVERIE_MQTT_PASSWORD"); v != "" {
		c.Messaging.Password = v
	}
	if v := os.Getenv("REVERIE_BRAVE_API_KEY"); v != "" {
		c.Search.BraveAPIKey = v
	}
}
