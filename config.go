// config.go
// ----------
// This file defines Config, the settings of the whole bridge: backend addresses,
// per-request timeout, retry policy, health monitoring, message bus and logging.
//
// LoadConfig reads an optional YAML file and then applies environment overrides,
// so deployments can run from the environment alone.
package backendbridge

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Retry   RetryPolicy   `yaml:"retry"`
	Health  HealthConfig  `yaml:"health"`
	Bus     BusConfig     `yaml:"bus"`
	Log     LogConfig     `yaml:"log"`
}

type BackendConfig struct {
	BaseURL       string        `yaml:"base_url"`
	SubstituteURL string        `yaml:"substitute_url"`
	UseSubstitute bool          `yaml:"use_substitute"`
	Timeout       time.Duration `yaml:"timeout"` // per attempt
	OAuth         OAuthConfig   `yaml:"oauth"`
}

// OAuthConfig enables client-credentials bearer tokens when TokenURL is set.
type OAuthConfig struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

type BusConfig struct {
	URL        string        `yaml:"url"` // redis://host:6379/0
	Subjects   []string      `yaml:"subjects"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	RulesFile  string        `yaml:"rules_file"`
}

type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

const (
	DefaultTimeout          = 10 * time.Second
	DefaultMaxRetries       = 3
	DefaultBaseDelay        = 100 * time.Millisecond
	DefaultMaxDelay         = 5 * time.Second
	DefaultHealthInterval   = 30 * time.Second
	DefaultHealthTTL        = 5 * time.Second
	DefaultFailureThreshold = 3
	DefaultBusRetryDelay    = 2 * time.Second
)

// DefaultSubjects are the bus subject patterns the dashboard listens to.
var DefaultSubjects = []string{
	"bus.extensions.events.*",
	"bus.messages.events.*",
	"bus.policies.events.*",
	"bus.usage.events.*",
}

func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{Timeout: DefaultTimeout},
		Retry:   DefaultRetryPolicy(),
		Health:  DefaultHealthConfig(),
		Bus: BusConfig{
			Subjects:   append([]string(nil), DefaultSubjects...),
			RetryDelay: DefaultBusRetryDelay,
		},
		Log: LogConfig{Env: "dev", Level: "info"},
	}
}

// LoadConfig builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and environment overrides, then validates it.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	c.fillDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// fillDefaults fills zero values. A wholly zero RetryPolicy means "not configured"
// and gets DefaultRetryPolicy; MaxRetries 0 next to a delay disables retries.
func (c *Config) fillDefaults() {
	if c.Retry == (RetryPolicy{}) {
		c.Retry = DefaultRetryPolicy()
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = DefaultTimeout
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = DefaultMaxDelay
	}
	if c.Health.Interval == 0 {
		c.Health.Interval = DefaultHealthInterval
	}
	if c.Health.TTL == 0 {
		c.Health.TTL = DefaultHealthTTL
	}
	if c.Health.FailureThreshold == 0 {
		c.Health.FailureThreshold = DefaultFailureThreshold
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = c.Backend.Timeout
	}
	if c.Bus.RetryDelay == 0 {
		c.Bus.RetryDelay = DefaultBusRetryDelay
	}
	if len(c.Bus.Subjects) == 0 {
		c.Bus.Subjects = append([]string(nil), DefaultSubjects...)
	}
}

// Validate rejects values no component can work with. Backend addresses are
// checked per call by the selector instead, so a bad URL degrades into errors
// rather than a failed start.
func (c *Config) Validate() error {
	switch {
	case c.Backend.Timeout < 0:
		return fmt.Errorf("config: backend timeout must not be negative")
	case c.Retry.MaxRetries < 0:
		return fmt.Errorf("config: retry max_retries must not be negative")
	case c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0:
		return fmt.Errorf("config: retry delays must not be negative")
	case c.Health.Interval < 0 || c.Health.TTL < 0 || c.Health.Timeout < 0:
		return fmt.Errorf("config: health interval, ttl and timeout must not be negative")
	case c.Health.FailureThreshold < 0:
		return fmt.Errorf("config: health failure_threshold must not be negative")
	case c.Bus.RetryDelay < 0:
		return fmt.Errorf("config: bus retry_delay must not be negative")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("BACKEND_BASE_URL"); ok {
		c.Backend.BaseURL = v
	}
	if v, ok := getEnvStr("BACKEND_SUBSTITUTE_URL"); ok {
		c.Backend.SubstituteURL = v
	}
	if v, ok := getEnvBool("BACKEND_USE_SUBSTITUTE"); ok {
		c.Backend.UseSubstitute = v
	}
	if v, ok := getEnvDur("BACKEND_TIMEOUT"); ok {
		c.Backend.Timeout = v
	}
	if v, ok := getEnvStr("BACKEND_OAUTH_TOKEN_URL"); ok {
		c.Backend.OAuth.TokenURL = v
	}
	if v, ok := getEnvStr("BACKEND_OAUTH_CLIENT_ID"); ok {
		c.Backend.OAuth.ClientID = v
	}
	if v, ok := getEnvStr("BACKEND_OAUTH_CLIENT_SECRET"); ok {
		c.Backend.OAuth.ClientSecret = v
	}
	if v, ok := getEnvCSV("BACKEND_OAUTH_SCOPES"); ok {
		c.Backend.OAuth.Scopes = v
	}

	if v, ok := getEnvInt("BACKEND_MAX_RETRIES"); ok {
		c.Retry.MaxRetries = v
	}
	if v, ok := getEnvDur("BACKEND_RETRY_BASE"); ok {
		c.Retry.BaseDelay = v
	}
	if v, ok := getEnvDur("BACKEND_RETRY_MAX"); ok {
		c.Retry.MaxDelay = v
	}

	if v, ok := getEnvDur("HEALTH_CHECK_INTERVAL"); ok {
		c.Health.Interval = v
	}
	if v, ok := getEnvDur("HEALTH_CACHE_TTL"); ok {
		c.Health.TTL = v
	}
	if v, ok := getEnvInt("HEALTH_FAILURE_THRESHOLD"); ok {
		c.Health.FailureThreshold = v
	}
	if v, ok := getEnvDur("HEALTH_TIMEOUT"); ok {
		c.Health.Timeout = v
	}

	if v, ok := getEnvStr("BUS_URL"); ok {
		c.Bus.URL = v
	}
	if v, ok := getEnvCSV("BUS_SUBJECTS"); ok {
		c.Bus.Subjects = v
	}
	if v, ok := getEnvDur("BUS_RETRY_DELAY"); ok {
		c.Bus.RetryDelay = v
	}
	if v, ok := getEnvStr("TOPIC_RULES_FILE"); ok {
		c.Bus.RulesFile = v
	}

	if v, ok := getEnvStr("LOG_ENV"); ok {
		c.Log.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
}

// ---- env helpers ----

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(s); err == nil {
			return b, true
		}
	}
	return false, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d, true
		}
	}
	return 0, false
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}
