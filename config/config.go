// Package config loads proxyrpc settings from YAML and PROXYRPC_* environment
// variables, and turns them into options for the other packages.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PROXYRPC"

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Client   ClientConfig   `yaml:"client"`
	Registry RegistryConfig `yaml:"registry"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type ServerConfig struct {
	Address        string   `yaml:"address"`
	Advertise      string   `yaml:"advertise"` // routable address published to the registry
	Version        string   `yaml:"version"`
	Codec          string   `yaml:"codec"`
	MaxConcurrent  int      `yaml:"max_concurrent" split_words:"true"`
	MaxFrameSize   uint32   `yaml:"max_frame_size" split_words:"true"`
	IdleTimeout    Duration `yaml:"idle_timeout" split_words:"true"`
	RequestTimeout Duration `yaml:"request_timeout" split_words:"true"`
	RateLimit      float64  `yaml:"rate_limit" split_words:"true"` // requests per second, 0 disables
	RateBurst      int      `yaml:"rate_burst" split_words:"true"`
	Recovery       bool     `yaml:"recovery"`
	LogRequests    bool     `yaml:"log_requests" split_words:"true"`
}

type ClientConfig struct {
	Address        string   `yaml:"address"`
	Codec          string   `yaml:"codec"`
	MaxOutstanding int      `yaml:"max_outstanding" split_words:"true"`
	MaxFrameSize   uint32   `yaml:"max_frame_size" split_words:"true"`
	CallTimeout    Duration `yaml:"call_timeout" split_words:"true"`
	Heartbeat      Duration `yaml:"heartbeat"`
}

type RegistryConfig struct {
	Type        string   `yaml:"type"` // "", etcd or memory
	Endpoints   []string `yaml:"endpoints"`
	DialTimeout Duration `yaml:"dial_timeout" split_words:"true"`
	TTL         int64    `yaml:"ttl"`
}

// Duration reads "1.5s" style strings from YAML and the environment.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.Decode(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Decode implements envconfig.Decoder.
func (d *Duration) Decode(s string) error {
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dd
	return nil
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Address:       ":8080",
			Codec:         "json",
			MaxConcurrent: 1024,
			Recovery:      true,
		},
		Client: ClientConfig{
			Codec:       "json",
			CallTimeout: Duration{30 * time.Second},
			Heartbeat:   Duration{30 * time.Second},
		},
		Registry: RegistryConfig{
			Endpoints:   []string{"127.0.0.1:2379"},
			DialTimeout: Duration{5 * time.Second},
			TTL:         10,
		},
	}
}

// Load starts from Default, applies the YAML file at path (skipped when path
// is empty) and then PROXYRPC_* variables, e.g. PROXYRPC_SERVER_MAX_CONCURRENT.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Registry.Type {
	case "", "etcd", "memory":
	default:
		return fmt.Errorf("config: unknown registry type %q", c.Registry.Type)
	}
	if c.Registry.Type == "etcd" && len(c.Registry.Endpoints) == 0 {
		return fmt.Errorf("config: etcd registry needs endpoints")
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("config: negative rate limit")
	}
	return nil
}
