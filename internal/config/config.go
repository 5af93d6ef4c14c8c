package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines client configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Sync    SyncConfig    `yaml:"sync"`
	State   StateConfig   `yaml:"state"`
	Log     LogConfig     `yaml:"log"`
	Console ConsoleConfig `yaml:"console"`
}

type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type SyncConfig struct {
	Interval   time.Duration `yaml:"interval"`
	NudgeDelay time.Duration `yaml:"nudge_delay"`
}

// StateConfig locates the credential database. Profile scopes the stored
// token the way a browser profile scopes local storage.
type StateConfig struct {
	Path    string `yaml:"path"`
	Profile string `yaml:"profile"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// Console modes.
const (
	ModeWatch = "watch"
	ModeMCP   = "mcp"
)

type ConsoleConfig struct {
	Mode        string `yaml:"mode"`
	MetricsAddr string `yaml:"metrics_addr"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			RequestTimeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			Interval:   5 * time.Second,
			NudgeDelay: time.Second,
		},
		State: StateConfig{
			Path:    "hubwatch.db",
			Profile: "default",
		},
		Log: LogConfig{
			Level: "info",
		},
		Console: ConsoleConfig{
			Mode: ModeWatch,
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("HUBWATCH_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if url := os.Getenv("HUBWATCH_API_URL"); url != "" {
		cfg.API.BaseURL = url
	}
	if err := durationEnv("HUBWATCH_REQUEST_TIMEOUT", &cfg.API.RequestTimeout); err != nil {
		return Config{}, err
	}
	if err := durationEnv("HUBWATCH_POLL_INTERVAL", &cfg.Sync.Interval); err != nil {
		return Config{}, err
	}
	if err := durationEnv("HUBWATCH_NUDGE_DELAY", &cfg.Sync.NudgeDelay); err != nil {
		return Config{}, err
	}
	if path := os.Getenv("HUBWATCH_STATE_PATH"); path != "" {
		cfg.State.Path = path
	}
	if profile := os.Getenv("HUBWATCH_PROFILE"); profile != "" {
		cfg.State.Profile = profile
	}
	if level := os.Getenv("HUBWATCH_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if path := os.Getenv("HUBWATCH_LOG_PATH"); path != "" {
		cfg.Log.Path = path
	}
	if mode := os.Getenv("HUBWATCH_MODE"); mode != "" {
		cfg.Console.Mode = mode
	}
	if addr := os.Getenv("HUBWATCH_METRICS_ADDR"); addr != "" {
		cfg.Console.MetricsAddr = addr
	}
	if user := os.Getenv("HUBWATCH_USERNAME"); user != "" {
		cfg.Console.Username = user
	}
	if pass := os.Getenv("HUBWATCH_PASSWORD"); pass != "" {
		cfg.Console.Password = pass
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base url is required")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", c.Sync.Interval)
	}
	if c.Sync.NudgeDelay <= 0 {
		return fmt.Errorf("nudge delay must be positive, got %s", c.Sync.NudgeDelay)
	}
	switch c.Console.Mode {
	case ModeWatch, ModeMCP:
	default:
		return fmt.Errorf("unknown mode %q", c.Console.Mode)
	}
	return nil
}

func durationEnv(key string, dst *time.Duration) error {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
		return nil
	}
	// Bare integers are milliseconds.
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
