package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PasswordEnv overrides secrets.password so it can stay out of the file
const PasswordEnv = "PROVISIONER_SECRETS_PASSWORD"

type Config struct {
	ProvisionerID string        `yaml:"provisionerId"`
	DataDir       string        `yaml:"dataDir"`
	Loop          LoopConfig    `yaml:"loop"`
	Secrets       SecretsConfig `yaml:"secrets"`
	Cloud         CloudConfig   `yaml:"cloud"`
	Queue         QueueConfig   `yaml:"queue"`
	Pricing       PricingConfig `yaml:"pricing"`
	Metrics       MetricsConfig `yaml:"metrics"`
	Log           LogConfig     `yaml:"log"`
}

type LoopConfig struct {
	Interval               time.Duration `yaml:"interval"`
	PacingDelay            time.Duration `yaml:"pacingDelay"`
	WatchdogTimeout        time.Duration `yaml:"watchdogTimeout"`
	MaxConsecutiveFailures int           `yaml:"maxConsecutiveFailures"`
	FatalGrace             time.Duration `yaml:"fatalGrace"`
}

type SecretsConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	PurgeInterval time.Duration `yaml:"purgeInterval"`
	Password      string        `yaml:"password"`
}

type CloudConfig struct {
	FulfillAfter      time.Duration `yaml:"fulfillAfter"`
	BootAfter         time.Duration `yaml:"bootAfter"`
	ZombieAfter       time.Duration `yaml:"zombieAfter"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

// QueueConfig selects the backlog source: the queue service at URL, or the
// Static map when URL is empty
type QueueConfig struct {
	URL    string         `yaml:"url"`
	Static map[string]int `yaml:"static,omitempty"`
}

// PricingConfig selects the price source: the sheet at File, or the Static
// prices when File is empty
type PricingConfig struct {
	File   string                                   `yaml:"file"`
	Static map[string]map[string]map[string]float64 `yaml:"static,omitempty"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

func Default() Config {
	return Config{
		ProvisionerID: "fleet-provisioner",
		DataDir:       "/var/lib/fleet-provisioner",
		Loop: LoopConfig{
			Interval:               75 * time.Second,
			PacingDelay:            500 * time.Millisecond,
			WatchdogTimeout:        10 * time.Minute,
			MaxConsecutiveFailures: 15,
			FatalGrace:             30 * time.Second,
		},
		Secrets: SecretsConfig{
			TTL:           40 * time.Minute,
			PurgeInterval: 5 * time.Minute,
		},
		Cloud: CloudConfig{
			FulfillAfter:      30 * time.Second,
			BootAfter:         90 * time.Second,
			ZombieAfter:       90 * time.Minute,
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9090",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// Load reads the config at path over the defaults. An empty path or a
// missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	if v := os.Getenv(PasswordEnv); v != "" {
		cfg.Secrets.Password = v
	}
	return cfg, nil
}

// Validate checks the settings the daemon cannot run without
func (c Config) Validate() error {
	if c.ProvisionerID == "" {
		return fmt.Errorf("provisionerId is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("dataDir is required")
	}
	if c.Loop.Interval < 0 {
		return fmt.Errorf("loop.interval cannot be negative")
	}
	if c.Loop.PacingDelay < 0 {
		return fmt.Errorf("loop.pacingDelay cannot be negative")
	}
	if c.Loop.WatchdogTimeout <= 0 {
		return fmt.Errorf("loop.watchdogTimeout must be positive")
	}
	if c.Loop.Interval >= c.Loop.WatchdogTimeout {
		return fmt.Errorf("loop.interval (%s) must be shorter than loop.watchdogTimeout (%s)", c.Loop.Interval, c.Loop.WatchdogTimeout)
	}
	if c.Loop.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("loop.maxConsecutiveFailures must be positive")
	}
	if c.Loop.FatalGrace < 0 {
		return fmt.Errorf("loop.fatalGrace cannot be negative")
	}
	if c.Secrets.TTL <= 0 {
		return fmt.Errorf("secrets.ttl must be positive")
	}
	if c.Secrets.PurgeInterval <= 0 {
		return fmt.Errorf("secrets.purgeInterval must be positive")
	}
	if c.Secrets.Password == "" {
		return fmt.Errorf("secrets.password is required (or set %s)", PasswordEnv)
	}
	if c.Cloud.Burst < 0 || c.Cloud.RequestsPerSecond < 0 {
		return fmt.Errorf("cloud rate limits cannot be negative")
	}
	return nil
}

func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
