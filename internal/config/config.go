package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath            = "/etc/melbridge/config.yaml"
	DefaultHTTPAddr        = "0.0.0.0:8080"
	DefaultStatePath       = "/var/lib/melbridge/melcloud.json"
	DefaultTopicPrefix     = "melbridge"
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultClientID        = "melbridge"
	DefaultPollSeconds     = 60
)

// Config is the root configuration, loaded from a single YAML file.
type Config struct {
	MELCloud MELCloudConfig `yaml:"melcloud"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
	Poll     PollConfig     `yaml:"poll"`
	Blob     *BlobConfig    `yaml:"blob"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MELCloudConfig holds account credentials and local credential state.
type MELCloudConfig struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	StatePath string `yaml:"state_path"`
}

// MQTTConfig points at the hub's MQTT broker.
type MQTTConfig struct {
	Broker          string `yaml:"broker"`
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	TopicPrefix     string `yaml:"topic_prefix"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// HTTPConfig configures the health/metrics listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// PollConfig controls the hub-side refresh cadence. The per-device throttle
// still bounds how often the cloud is actually hit.
type PollConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// BlobConfig mirrors credential state to S3-compatible object storage.
// Optional; when absent the local state file is authoritative.
type BlobConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	AccessKeyFile string `yaml:"access_key_file"`
	SecretKeyFile string `yaml:"secret_key_file"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load parses the YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.MELCloud.StatePath == "" {
		cfg.MELCloud.StatePath = DefaultStatePath
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = DefaultClientID
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if cfg.Poll.IntervalSeconds == 0 {
		cfg.Poll.IntervalSeconds = DefaultPollSeconds
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.MELCloud.Email == "" {
		return fmt.Errorf("melcloud.email is required")
	}
	if cfg.MELCloud.Password == "" {
		return fmt.Errorf("melcloud.password is required")
	}
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if cfg.Poll.IntervalSeconds < 0 {
		return fmt.Errorf("poll.interval_seconds must not be negative")
	}
	if cfg.Blob != nil {
		if cfg.Blob.Endpoint == "" {
			return fmt.Errorf("blob.endpoint is required")
		}
		if cfg.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required")
		}
		if cfg.Blob.AccessKeyFile == "" {
			return fmt.Errorf("blob.access_key_file is required")
		}
		if cfg.Blob.SecretKeyFile == "" {
			return fmt.Errorf("blob.secret_key_file is required")
		}
	}
	return nil
}

// PollInterval returns the poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}
