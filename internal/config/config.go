package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file
const (
	EnvChannelID  = "SUBMETER_CHANNEL_ID"
	EnvReadAPIKey = "SUBMETER_READ_API_KEY"
	EnvTimezone   = "SUBMETER_TIMEZONE"
)

// Config holds the application configuration
type Config struct {
	ThingSpeak      ThingSpeakConfig `yaml:"thingspeak"`
	Timezone        string           `yaml:"timezone,omitempty"`         // IANA zone for civil dates (default America/New_York)
	WindowRadius    time.Duration    `yaml:"window_radius,omitempty"`    // Search radius around each target (default 48h)
	RefreshInterval time.Duration    `yaml:"refresh_interval,omitempty"` // Latest-reading poll period (default 60s)
	SiteLabel       string           `yaml:"site_label,omitempty"`
	ExportDir       string           `yaml:"export_dir,omitempty"`
	MQTT            MQTTConfig       `yaml:"mqtt,omitempty"`
	HomeAssistant   HAConfig         `yaml:"home_assistant,omitempty"`
}

// ThingSpeakConfig identifies the channel and field holding the meter reading
type ThingSpeakConfig struct {
	BaseURL    string        `yaml:"base_url,omitempty"`
	ChannelID  string        `yaml:"channel_id"`
	ReadAPIKey string        `yaml:"read_api_key,omitempty"`
	Field      int           `yaml:"field,omitempty"`       // 1-8 (default 1)
	Timeout    time.Duration `yaml:"timeout,omitempty"`     // HTTP timeout (default 30s)
	MaxResults int           `yaml:"max_results,omitempty"` // Window result cap (default 8000)
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"` // default "submeter"
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`       // e.g., "http://homeassistant.local:8123"
	Token    string `yaml:"token"`     // Long-lived access token
	EntityID string `yaml:"entity_id"` // e.g., "sensor.submeter_energy"
}

// Defaults
const (
	DefaultBaseURL         = "https://api.thingspeak.com"
	DefaultTimezone        = "America/New_York"
	DefaultWindowRadius    = 48 * time.Hour
	DefaultRefreshInterval = 60 * time.Second
	DefaultSiteLabel       = "665 D Street Sub Meter"
	DefaultTimeout         = 30 * time.Second
	DefaultMaxResults      = 8000
)

// Load reads the config file, then applies .env and environment overrides
func Load(configPath string) (*Config, error) {
	cfg, err := readFile(configPath)
	if err != nil {
		return nil, err
	}

	envFile := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}
	cfg.applyEnv()

	return cfg, nil
}

func readFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvChannelID); v != "" {
		c.ThingSpeak.ChannelID = v
	}
	if v := os.Getenv(EnvReadAPIKey); v != "" {
		c.ThingSpeak.ReadAPIKey = v
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		c.Timezone = v
	}
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// Validate checks the settings that have no usable default
func (c *Config) Validate() error {
	if c.ThingSpeak.ChannelID == "" {
		return fmt.Errorf("thingspeak.channel_id is required (or set %s)", EnvChannelID)
	}
	if f := c.ThingSpeak.Field; f != 0 && (f < 1 || f > 8) {
		return fmt.Errorf("thingspeak.field must be between 1 and 8, got %d", f)
	}
	if c.WindowRadius < 0 || c.RefreshInterval < 0 || c.ThingSpeak.Timeout < 0 {
		return fmt.Errorf("durations must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// Location loads the configured time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.GetTimezone())
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.GetTimezone(), err)
	}
	return loc, nil
}

// GetTimezone returns the configured zone name, defaulting to America/New_York
func (c *Config) GetTimezone() string {
	if c.Timezone == "" {
		return DefaultTimezone
	}
	return c.Timezone
}

// GetWindowRadius returns the sample search radius with a default of 48 hours
func (c *Config) GetWindowRadius() time.Duration {
	if c.WindowRadius <= 0 {
		return DefaultWindowRadius
	}
	return c.WindowRadius
}

// GetRefreshInterval returns the latest-reading poll period with a default of one minute
func (c *Config) GetRefreshInterval() time.Duration {
	if c.RefreshInterval <= 0 {
		return DefaultRefreshInterval
	}
	return c.RefreshInterval
}

// GetSiteLabel returns the report heading label
func (c *Config) GetSiteLabel() string {
	if c.SiteLabel == "" {
		return DefaultSiteLabel
	}
	return c.SiteLabel
}

// GetExportDir returns the directory reports are written to
func (c *Config) GetExportDir() string {
	if c.ExportDir == "" {
		return "."
	}
	return c.ExportDir
}

// GetBaseURL returns the ThingSpeak API root
func (t ThingSpeakConfig) GetBaseURL() string {
	if t.BaseURL == "" {
		return DefaultBaseURL
	}
	return t.BaseURL
}

// GetField returns the channel field number, defaulting to field1
func (t ThingSpeakConfig) GetField() int {
	if t.Field == 0 {
		return 1
	}
	return t.Field
}

// GetTimeout returns the HTTP timeout
func (t ThingSpeakConfig) GetTimeout() time.Duration {
	if t.Timeout <= 0 {
		return DefaultTimeout
	}
	return t.Timeout
}

// GetMaxResults returns the per-window result cap
func (t ThingSpeakConfig) GetMaxResults() int {
	if t.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return t.MaxResults
}
