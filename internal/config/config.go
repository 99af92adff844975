package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models dealline.yml.
type Config struct {
	Auth struct {
		JWTSecret             string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool  `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Gate struct {
		RequestsPerWindow int    `yaml:"requests_per_window"`
		WindowSeconds     int    `yaml:"window_seconds"`
		LeaseTTLSeconds   int    `yaml:"lease_ttl_seconds"`
		RedisAddr         string `yaml:"redis_addr"`
	} `yaml:"gate"`
	Payments struct {
		ProcessorURL         string `yaml:"processor_url"`
		CallbackSecret       string `yaml:"callback_secret"`
		SystemActorID        string `yaml:"system_actor_id"`
		Currency             string `yaml:"currency"`
		SubmitTimeoutSeconds int    `yaml:"submit_timeout_seconds"`
		MaxAttempts          int    `yaml:"max_attempts"`
		SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
		StaleAfterSeconds    int    `yaml:"stale_after_seconds"`
	} `yaml:"payments"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one outbound notification target.
type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Events []string `yaml:"events"`
	Secret string   `yaml:"secret"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with dl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Gate.RequestsPerWindow <= 0 {
		return fmt.Errorf("config.gate.requests_per_window must be positive")
	}
	if c.Gate.WindowSeconds <= 0 {
		return fmt.Errorf("config.gate.window_seconds must be positive")
	}
	if c.Gate.LeaseTTLSeconds <= 0 {
		return fmt.Errorf("config.gate.lease_ttl_seconds must be positive")
	}
	if c.Payments.SystemActorID == "" {
		return fmt.Errorf("config.payments.system_actor_id is required")
	}
	if c.Payments.Currency == "" {
		return fmt.Errorf("config.payments.currency is required")
	}
	if c.Payments.MaxAttempts <= 0 {
		return fmt.Errorf("config.payments.max_attempts must be positive")
	}
	if c.Payments.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("config.payments.sweep_interval_seconds must be positive")
	}
	if c.Payments.StaleAfterSeconds <= 0 {
		return fmt.Errorf("config.payments.stale_after_seconds must be positive")
	}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "dealline.yml")
}

// Default returns the built-in defaults.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Missing
// sections fall back to the defaults before validation.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `auth:
  jwt_secret: ""
  allow_legacy_actor_header: true

gate:
  requests_per_window: 10
  window_seconds: 60
  lease_ttl_seconds: 30
  redis_addr: ""

payments:
  processor_url: ""
  callback_secret: ""
  system_actor_id: payment-coordinator
  currency: USD
  submit_timeout_seconds: 10
  max_attempts: 5
  sweep_interval_seconds: 30
  stale_after_seconds: 120

webhooks: []
`
