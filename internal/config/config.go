package config

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Events    EventsConfig    `yaml:"events"`
	Log       LogConfig       `yaml:"log"`
}

// BridgeConfig contains bridge connection settings
type BridgeConfig struct {
	// IP and ApplicationKey override the stored session when set, skipping
	// discovery and pairing entirely.
	IP             string `yaml:"ip"`
	ApplicationKey string `yaml:"application_key"`

	SessionPath string   `yaml:"session_path"` // Where pairing credentials are stored
	Timeout     Duration `yaml:"timeout"`      // HTTP timeout for bridge API requests

	// Rate limiting tiers. The grouped-light endpoint congests the Zigbee
	// mesh far faster than individual lights, hence the stricter interval.
	RateInterval      Duration `yaml:"rate_interval"`       // Minimum gap between requests (default: 100ms)
	GroupRateInterval Duration `yaml:"group_rate_interval"` // Minimum gap between group requests (default: 1s)

	// Names sent to the bridge during pairing
	AppName    string `yaml:"app_name"`
	DeviceName string `yaml:"device_name"`
}

// DiscoveryConfig contains bridge discovery settings
type DiscoveryConfig struct {
	Timeout Duration `yaml:"timeout"` // mDNS query window (default: 5s)
}

// EventsConfig contains event stream reconnect settings
type EventsConfig struct {
	MinRetryBackoff Duration `yaml:"min_retry_backoff"` // Minimum backoff between reconnects (default: 1s)
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"` // Maximum backoff between reconnects (default: 2m)
	RetryMultiplier float64  `yaml:"retry_multiplier"`  // Backoff multiplier (default: 2.0)
	MaxReconnects   int      `yaml:"max_reconnects"`    // Max reconnect attempts, 0 = infinite (default: 0)
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"` // Structured output instead of the console writer
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Bridge defaults
	if cfg.Bridge.SessionPath == "" {
		cfg.Bridge.SessionPath = defaultSessionPath()
	}
	if cfg.Bridge.Timeout == 0 {
		cfg.Bridge.Timeout = Duration(30 * time.Second)
	}
	if cfg.Bridge.RateInterval == 0 {
		cfg.Bridge.RateInterval = Duration(100 * time.Millisecond)
	}
	if cfg.Bridge.GroupRateInterval == 0 {
		cfg.Bridge.GroupRateInterval = Duration(1 * time.Second)
	}
	if cfg.Bridge.AppName == "" {
		cfg.Bridge.AppName = "huectl"
	}
	if cfg.Bridge.DeviceName == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "go"
		}
		cfg.Bridge.DeviceName = host
	}

	// Discovery defaults
	if cfg.Discovery.Timeout == 0 {
		cfg.Discovery.Timeout = Duration(5 * time.Second)
	}

	// Event stream defaults
	if cfg.Events.MinRetryBackoff == 0 {
		cfg.Events.MinRetryBackoff = Duration(1 * time.Second)
	}
	if cfg.Events.MaxRetryBackoff == 0 {
		cfg.Events.MaxRetryBackoff = Duration(2 * time.Minute)
	}
	if cfg.Events.RetryMultiplier == 0 {
		cfg.Events.RetryMultiplier = 2.0
	}
	// MaxReconnects defaults to 0 (infinite), nothing to set
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "huectl-session.json"
	}
	return filepath.Join(home, ".config", "huectl", "session.json")
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if value, ok := os.LookupEnv(varName); ok {
			return value
		}
		return defaultVal
	})
}
