// Package config loads service configuration from defaults, an optional YAML
// file and CLEANROUTE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Env        string           `mapstructure:"env"`
	Server     ServerConfig     `mapstructure:"server"`
	Directions DirectionsConfig `mapstructure:"directions"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Scorer     ScorerConfig     `mapstructure:"scorer"`
	Geocoding  GeocodingConfig  `mapstructure:"geocoding"`
	AirQuality AirQualityConfig `mapstructure:"airquality"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Events     EventsConfig     `mapstructure:"events"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Session    SessionConfig    `mapstructure:"session"`
	Worker     WorkerConfig     `mapstructure:"worker"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequireTLS      bool          `mapstructure:"require_tls"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// Directions providers.
const (
	ProviderMapbox           = "mapbox"
	ProviderOpenRouteService = "openrouteservice"
)

type DirectionsConfig struct {
	Provider string        `mapstructure:"provider"`
	Token    string        `mapstructure:"token"`
	BaseURL  string        `mapstructure:"base_url"`
	Profile  string        `mapstructure:"profile"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type DiscoveryConfig struct {
	TargetCount  int           `mapstructure:"target_count"`
	Offsets      []float64     `mapstructure:"offsets"`
	Concurrency  int           `mapstructure:"concurrency"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type ScorerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GeocodingConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	UserAgent    string        `mapstructure:"user_agent"`
	CountryCodes []string      `mapstructure:"country_codes"`
	Interval     time.Duration `mapstructure:"interval"`
}

type AirQualityConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Cache backends.
const (
	CacheMemory = "memory"
	CacheValkey = "valkey"
)

type CacheConfig struct {
	Backend         string        `mapstructure:"backend"`
	ValkeyAddr      string        `mapstructure:"valkey_addr"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	TTL             time.Duration `mapstructure:"ttl"`
	StaleIfErrorTTL time.Duration `mapstructure:"stale_if_error_ttl"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type EventsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

type PubSubConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type SessionConfig struct {
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxSessions     int           `mapstructure:"max_sessions"`
}

type WorkerConfig struct {
	CorridorsFile string `mapstructure:"corridors_file"`
	Concurrency   int    `mapstructure:"concurrency"`
	HealthPort    int    `mapstructure:"health_port"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return load(v)
}

// LoadFile reads configuration from an explicit YAML file plus environment variables.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Environment variables: CLEANROUTE_DIRECTIONS_TOKEN → directions.token
	v.SetEnvPrefix("CLEANROUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.require_tls", false)

	v.SetDefault("directions.provider", ProviderMapbox)
	v.SetDefault("directions.token", "")
	v.SetDefault("directions.base_url", "")
	v.SetDefault("directions.profile", "driving")
	v.SetDefault("directions.timeout", 10*time.Second)

	v.SetDefault("discovery.target_count", 5)
	v.SetDefault("discovery.offsets", []float64{0.01, -0.01, 0.015, -0.015, 0.02, -0.02, 0.025, -0.025})
	v.SetDefault("discovery.concurrency", 1)
	v.SetDefault("discovery.fetch_timeout", 60*time.Second)

	v.SetDefault("scorer.base_url", "http://localhost:8000")
	v.SetDefault("scorer.timeout", 30*time.Second)

	v.SetDefault("geocoding.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoding.user_agent", "CleanRoute/1.0")
	v.SetDefault("geocoding.country_codes", []string{"in"})
	v.SetDefault("geocoding.interval", 500*time.Millisecond)

	v.SetDefault("airquality.api_key", "")
	v.SetDefault("airquality.base_url", "")
	v.SetDefault("airquality.cache_ttl", 10*time.Minute)

	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.valkey_addr", "localhost:6379")
	v.SetDefault("cache.key_prefix", "cleanroute:directions:")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.stale_if_error_ttl", 15*time.Minute)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "cleanroute")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "cleanroute")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.nats_url", "nats://localhost:4222")
	v.SetDefault("events.subject", "route.planned")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.subscription_id", "cleanroute-worker")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("session.idle_ttl", 30*time.Minute)
	v.SetDefault("session.cleanup_interval", time.Minute)
	v.SetDefault("session.max_sessions", 10000)

	v.SetDefault("worker.corridors_file", "")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.health_port", 8081)
}

// Validate checks that required configuration fields are present and sane.
// A missing directions token is not an error here; it surfaces per request.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Directions.Provider {
	case ProviderMapbox, ProviderOpenRouteService:
	default:
		errs = append(errs, fmt.Sprintf("directions.provider must be %q or %q, got %q",
			ProviderMapbox, ProviderOpenRouteService, c.Directions.Provider))
	}
	switch c.Directions.Profile {
	case "driving", "cycling", "walking":
	default:
		errs = append(errs, fmt.Sprintf("directions.profile must be driving, cycling or walking, got %q", c.Directions.Profile))
	}

	if c.Discovery.TargetCount <= 0 {
		errs = append(errs, "discovery.target_count must be positive")
	}
	if c.Discovery.Concurrency <= 0 {
		errs = append(errs, "discovery.concurrency must be positive")
	}
	for i, o := range c.Discovery.Offsets {
		if o == 0 {
			errs = append(errs, fmt.Sprintf("discovery.offsets[%d] must be non-zero", i))
		}
	}

	if c.Scorer.BaseURL == "" {
		errs = append(errs, "scorer.base_url is required")
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheValkey:
		if c.Cache.ValkeyAddr == "" {
			errs = append(errs, "cache.valkey_addr is required when cache.backend is valkey")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend must be %q or %q, got %q", CacheMemory, CacheValkey, c.Cache.Backend))
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.Name == "" {
			errs = append(errs, "database.name is required")
		}
	}

	if c.Events.Enabled && c.Events.NATSURL == "" {
		errs = append(errs, "events.nats_url is required when events are enabled")
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("telemetry.sample_ratio must be in [0, 1], got %g", c.Telemetry.SampleRatio))
	}
	if c.Session.IdleTTL <= 0 {
		errs = append(errs, "session.idle_ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
