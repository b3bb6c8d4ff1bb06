package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/edimap/pkg/storage"
	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is where the mapping service listens by default.
const DefaultBaseURL = "http://localhost:8001"

// Environment overrides.
const (
	EnvBaseURL        = "EDIMAP_BASE_URL"
	EnvRequestTimeout = "EDIMAP_REQUEST_TIMEOUT"
)

// Config stores client defaults for a workspace.
type Config struct {
	BaseURL string `yaml:"base_url"`
	// RequestTimeout bounds each non-streaming API call. Zero disables it.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
	// FetchAttempts is the attempt budget for idempotent reads. 1 disables retry.
	FetchAttempts int    `yaml:"fetch_attempts,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`
	// Webhooks receive session journal events as they are recorded.
	Webhooks []Webhook `yaml:"webhooks,omitempty"`
}

// Webhook is one notification endpoint.
type Webhook struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret,omitempty"`
	Events []string `yaml:"events,omitempty"`
	// MaxRetries is the attempt budget per delivery. Zero means 3.
	MaxRetries int           `yaml:"max_retries,omitempty"`
	RetryDelay time.Duration `yaml:"retry_delay,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BaseURL:       DefaultBaseURL,
		FetchAttempts: 1,
		LogLevel:      "info",
	}
}

// Load reads root/.edimap/config.yaml, fills unset fields with defaults and
// applies environment overrides. A missing file is not an error.
func Load(root string) (*Config, error) {
	cfg := Default()

	repo := storage.NewFilesystemRepository(root)
	path, err := repo.ResolvePath(storage.ConfigFile)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- path is confined to the workspace directory
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
		cfg.merge(&fileCfg)
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to root/.edimap/config.yaml, creating the directory.
func Save(root string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	repo := storage.NewFilesystemRepository(root)
	if err := repo.Initialize(); err != nil {
		return err
	}
	path, err := repo.ResolvePath(storage.ConfigFile)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks the base URL and numeric bounds.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid base_url %q: want http(s)://host[:port]", c.BaseURL)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if c.FetchAttempts < 1 {
		return fmt.Errorf("fetch_attempts must be at least 1")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, w := range c.Webhooks {
		if w.Name == "" {
			return fmt.Errorf("webhooks[%d]: name is required", i)
		}
		if seen[w.Name] {
			return fmt.Errorf("webhooks[%d]: duplicate name %q", i, w.Name)
		}
		seen[w.Name] = true
		u, err := url.Parse(w.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("webhook %q: invalid url %q", w.Name, w.URL)
		}
		if w.MaxRetries < 0 || w.RetryDelay < 0 {
			return fmt.Errorf("webhook %q: retries and delay must not be negative", w.Name)
		}
	}
	return nil
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	lvl, _ := ParseLevel(c.LogLevel)
	return lvl
}

// ParseLevel maps debug, info, warn and error onto slog levels. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log_level %q", s)
}

func (c *Config) merge(o *Config) {
	if o.BaseURL != "" {
		c.BaseURL = o.BaseURL
	}
	if o.RequestTimeout != 0 {
		c.RequestTimeout = o.RequestTimeout
	}
	if o.FetchAttempts != 0 {
		c.FetchAttempts = o.FetchAttempts
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if len(o.Webhooks) > 0 {
		c.Webhooks = o.Webhooks
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBaseURL); ok && strings.TrimSpace(v) != "" {
		c.BaseURL = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	if v, ok := lookup(EnvRequestTimeout); ok && strings.TrimSpace(v) != "" {
		d, err := parseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRequestTimeout, err)
		}
		c.RequestTimeout = d
	}
	return nil
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}
