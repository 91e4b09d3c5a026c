package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts Go duration strings ("2m", "45s") in YAML; bare numbers
// are read as seconds.
type Duration time.Duration

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		n, err := strconv.ParseInt(value.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}

	parsed, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full configuration for the dispatch process, loaded from a
// YAML file with defaults applied for anything omitted.
type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"database"`
	} `yaml:"database"`

	RabbitMQ struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"rabbitmq"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		GeoKey   string `yaml:"geo_key"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		LocationTopic string   `yaml:"location_topic"`
	} `yaml:"kafka"`

	HTTP struct {
		Port          int `yaml:"port"`
		MaxConcurrent int `yaml:"max_concurrent"`
	} `yaml:"http"`

	JWT struct {
		SecretKey string `yaml:"secret_key"`
	} `yaml:"jwt"`

	// Dispatch holds matching-policy knobs. The shipped defaults mirror the
	// production values; they are configurable rather than hardcoded.
	Dispatch struct {
		RideSearchTimeout     Duration `yaml:"ride_search_timeout"`
		DeliverySearchTimeout Duration `yaml:"delivery_search_timeout"`
		SessionRetention      Duration `yaml:"session_retention"`
		SessionSweepInterval  Duration `yaml:"session_sweep_interval"`
		BlacklistTTL          Duration `yaml:"blacklist_ttl"`
	} `yaml:"dispatch"`
}

// LoadFromFile reads, parses, defaults, and validates the config file.
func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.GeoKey == "" {
		cfg.Redis.GeoKey = "workers_geo"
	}

	// Kafka
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.LocationTopic == "" {
		cfg.Kafka.LocationTopic = "driver-locations"
	}

	// HTTP
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 3000
	}
	if cfg.HTTP.MaxConcurrent == 0 {
		cfg.HTTP.MaxConcurrent = 256
	}

	// Dispatch policy
	if cfg.Dispatch.RideSearchTimeout == 0 {
		cfg.Dispatch.RideSearchTimeout = Duration(2 * time.Minute)
	}
	if cfg.Dispatch.DeliverySearchTimeout == 0 {
		cfg.Dispatch.DeliverySearchTimeout = Duration(3 * time.Minute)
	}
	if cfg.Dispatch.SessionRetention == 0 {
		cfg.Dispatch.SessionRetention = Duration(10 * time.Minute)
	}
	if cfg.Dispatch.SessionSweepInterval == 0 {
		cfg.Dispatch.SessionSweepInterval = Duration(5 * time.Minute)
	}
	if cfg.Dispatch.BlacklistTTL == 0 {
		cfg.Dispatch.BlacklistTTL = Duration(10 * time.Minute)
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.database is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// HTTP
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		problems = append(problems, "http.port must be in 1..65535")
	}

	// Dispatch policy
	if c.Dispatch.RideSearchTimeout <= 0 {
		problems = append(problems, "dispatch.ride_search_timeout must be positive")
	}
	if c.Dispatch.DeliverySearchTimeout <= 0 {
		problems = append(problems, "dispatch.delivery_search_timeout must be positive")
	}
	if c.Dispatch.BlacklistTTL <= 0 {
		problems = append(problems, "dispatch.blacklist_ttl must be positive")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
